// File path: internal/llm/providers/local.go
package providers

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
)

type Message struct {
	Role    string
	Content string
}

type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	Embed(ctx context.Context, input []string) ([][]float32, error)
	Name() string
}

// LocalProvider keeps the insight pipeline working without any API key. Chat
// returns the final message body unchanged, so callers that pre-render a
// narrative get it back deterministically.
type LocalProvider struct{}

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

func (l *LocalProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages provided")
	}
	return strings.TrimSpace(messages[len(messages)-1].Content), nil
}

// Embed hashes tokens into fixed 8-dim vectors. Not semantically meaningful,
// but stable across runs, which is all the offline mode needs.
func (l *LocalProvider) Embed(ctx context.Context, input []string) ([][]float32, error) {
	vectors := make([][]float32, len(input))
	for i, text := range input {
		vec := make([]float32, 8)
		for _, token := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			h.Write([]byte(token))
			sum := h.Sum32()
			vec[sum%8] += float32(sum%251)/251.0 - 0.5
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (l *LocalProvider) Name() string {
	return "local"
}
