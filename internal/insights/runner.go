// File path: internal/insights/runner.go
package insights

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	"github.com/tmc/langgraphgo/graph"

	"github.com/nicodishanthj/Peregrine_phase1/internal/common"
	"github.com/nicodishanthj/Peregrine_phase1/internal/llm"
)

const defaultCacheTTL = 30 * time.Minute

const consultantRole = "You are a migration consultant summarizing a VMware to IBM Cloud assessment. Write plain, specific prose and keep every number exactly as given."

var draftPrompt = prompts.NewPromptTemplate(
	`Write the {{.section}} section of a migration assessment report using only the context below. Cite the concrete numbers, call out anything that needs action, and stay under 250 words.

Context:
{{.context}}`,
	[]string{"section", "context"},
)

var polishPrompt = prompts.NewPromptTemplate(
	`Tighten the draft below into final report prose. Keep every number and VM name unchanged, remove repetition, and do not invent facts.

Draft:
{{.draft}}`,
	[]string{"draft"},
)

// Runner turns report data into narrative sections through a small
// collect/draft/polish graph. The polish step only runs when a real model
// backs the provider; the local provider returns the deterministic draft.
type Runner struct {
	provider llm.Provider
	builder  *Builder
	cache    *ttlCache
}

type RunnerOption func(*Runner)

func WithBuilder(b *Builder) RunnerOption {
	return func(r *Runner) {
		if b != nil {
			r.builder = b
		}
	}
}

func WithCacheTTL(ttl time.Duration) RunnerOption {
	return func(r *Runner) {
		if ttl > 0 {
			r.cache = newTTLCache(ttl)
		}
	}
}

func NewRunner(provider llm.Provider, opts ...RunnerOption) *Runner {
	r := &Runner{provider: provider, builder: NewBuilder(), cache: newTTLCache(defaultCacheTTL)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Section produces the narrative for one section, reusing a cached result
// when the report data has not changed.
func (r *Runner) Section(ctx context.Context, section string, data *ReportData) (string, error) {
	if r.provider == nil {
		return "", errors.New("insights: no provider configured")
	}
	blocks, err := r.builder.Blocks(section, data)
	if err != nil {
		return "", err
	}
	key := fingerprint(section, data)
	if text, ok := r.cache.get(key); ok {
		return text, nil
	}

	local := r.provider.Name() == "local"
	g := graph.NewMessageGraph()
	g.AddNode("collect", func(ctx context.Context, state []llms.MessageContent) ([]llms.MessageContent, error) {
		return append(state, llms.TextParts(llms.ChatMessageTypeSystem, renderBlocks(blocks))), nil
	})
	g.AddNode("draft", r.draftNode(section, local))
	g.SetEntryPoint("collect")
	g.AddEdge("collect", "draft")
	if local {
		g.AddEdge("draft", graph.END)
	} else {
		g.AddNode("polish", r.polishNode())
		g.AddEdge("draft", "polish")
		g.AddEdge("polish", graph.END)
	}
	runnable, err := g.Compile()
	if err != nil {
		return "", fmt.Errorf("insights: compile graph: %w", err)
	}

	state, err := runnable.Invoke(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf("Write the %s section for report %s.", section, data.ReportID)),
	})
	if err != nil {
		return "", fmt.Errorf("insights: %s: %w", section, err)
	}
	text := strings.TrimSpace(lastText(state, llms.ChatMessageTypeAI))
	if text == "" {
		return "", fmt.Errorf("insights: empty %s narrative", section)
	}
	r.cache.set(key, text)
	common.Logger().Debug("insights: section generated", "section", section, "provider", r.provider.Name(), "chars", len(text))
	return text, nil
}

// Report renders every section for the report.
func (r *Runner) Report(ctx context.Context, data *ReportData) (map[string]string, error) {
	out := make(map[string]string, len(Sections))
	for _, section := range Sections {
		text, err := r.Section(ctx, section, data)
		if err != nil {
			return nil, err
		}
		out[section] = text
	}
	return out, nil
}

func (r *Runner) draftNode(section string, local bool) func(context.Context, []llms.MessageContent) ([]llms.MessageContent, error) {
	return func(ctx context.Context, state []llms.MessageContent) ([]llms.MessageContent, error) {
		contextText := lastText(state, llms.ChatMessageTypeSystem)
		if local {
			// Offline mode: the rendered blocks are the narrative.
			return append(state, llms.TextParts(llms.ChatMessageTypeAI, contextText)), nil
		}
		prompt, err := draftPrompt.Format(map[string]any{"section": section, "context": contextText})
		if err != nil {
			return nil, err
		}
		reply, err := r.provider.Chat(ctx, []llm.Message{
			{Role: "system", Content: consultantRole},
			{Role: "user", Content: prompt},
		})
		if err != nil {
			return nil, err
		}
		return append(state, llms.TextParts(llms.ChatMessageTypeAI, reply)), nil
	}
}

func (r *Runner) polishNode() func(context.Context, []llms.MessageContent) ([]llms.MessageContent, error) {
	return func(ctx context.Context, state []llms.MessageContent) ([]llms.MessageContent, error) {
		draft := lastText(state, llms.ChatMessageTypeAI)
		if strings.TrimSpace(draft) == "" {
			return nil, errors.New("insights: nothing to polish")
		}
		prompt, err := polishPrompt.Format(map[string]any{"draft": draft})
		if err != nil {
			return nil, err
		}
		reply, err := r.provider.Chat(ctx, []llm.Message{
			{Role: "system", Content: consultantRole},
			{Role: "user", Content: prompt},
		})
		if err != nil {
			return nil, err
		}
		return append(state, llms.TextParts(llms.ChatMessageTypeAI, reply)), nil
	}
}

func renderBlocks(blocks []Block) string {
	var sb strings.Builder
	for i, block := range blocks {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(block.Title)
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(block.Body))
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

func lastText(state []llms.MessageContent, role llms.ChatMessageType) string {
	for i := len(state) - 1; i >= 0; i-- {
		if state[i].Role != role {
			continue
		}
		var sb strings.Builder
		for _, part := range state[i].Parts {
			if text, ok := part.(llms.TextContent); ok {
				sb.WriteString(text.Text)
			}
		}
		return sb.String()
	}
	return ""
}

// fingerprint keys the cache by section plus a stable digest of the report
// data, so a replan or re-estimate naturally misses.
func fingerprint(section string, data *ReportData) string {
	h := sha256.New()
	h.Write([]byte(section))
	h.Write([]byte{'|'})
	if data != nil {
		h.Write([]byte(data.ReportID))
		if enc, err := json.Marshal(data); err == nil {
			h.Write(enc)
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}
