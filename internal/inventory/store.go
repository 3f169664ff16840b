// File path: internal/inventory/store.go
package inventory

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nicodishanthj/Peregrine_phase1/internal/rvtools"
)

// ErrReportNotFound is returned when no stored report matches the id.
var ErrReportNotFound = errors.New("inventory: report not found")

// Meta carries report identity and provenance alongside the parsed rows.
type Meta struct {
	ReportID   string    `json:"report_id"`
	SourceFile string    `json:"source_file,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
	ParsedAt   time.Time `json:"parsed_at,omitempty"`
	SheetNames []string  `json:"sheet_names,omitempty"`
	VMCount    int       `json:"vm_count"`
	Warnings   []string  `json:"warnings,omitempty"`
}

// recordEnvelope wraps each JSONL line so one file carries mixed row kinds.
type recordEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

const (
	kindMeta      = "meta"
	kindVM        = "vm"
	kindDisk      = "disk"
	kindNIC       = "nic"
	kindHost      = "host"
	kindCluster   = "cluster"
	kindDatastore = "datastore"
	kindTools     = "tools"
	kindSnapshot  = "snapshot"
)

// Store persists parsed inventories as one JSONL file per report. Writes go
// through a temp file and rename, so readers never observe a half-written
// report.
type Store struct {
	path string
	mu   sync.RWMutex
}

func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path required")
	}
	basePath := determineRoot(path)
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{path: basePath}, nil
}

// SaveInventory writes the full report atomically, replacing any previous
// version. Meta fields left zero are backfilled from the inventory header.
func (s *Store) SaveInventory(ctx context.Context, meta Meta, inv *rvtools.Inventory) error {
	if inv == nil {
		return errors.New("inventory required")
	}
	filePath, err := s.reportFile(meta.ReportID)
	if err != nil {
		return err
	}
	if meta.UploadedAt.IsZero() {
		meta.UploadedAt = time.Now().UTC()
	}
	if meta.ParsedAt.IsZero() {
		meta.ParsedAt = inv.ParsedAt
	}
	if len(meta.SheetNames) == 0 {
		meta.SheetNames = inv.SheetNames
	}
	if len(meta.Warnings) == 0 {
		meta.Warnings = inv.Warnings
	}
	if meta.SourceFile == "" {
		meta.SourceFile = inv.SourceName
	}
	meta.VMCount = len(inv.VMs)

	s.mu.Lock()
	defer s.mu.Unlock()
	tmp, err := os.CreateTemp(s.path, "report_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp store: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	enc := json.NewEncoder(tmp)
	write := func(kind string, record interface{}) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("encode %s: %w", kind, err)
		}
		return enc.Encode(recordEnvelope{Kind: kind, Data: data})
	}
	if err := write(kindMeta, meta); err != nil {
		return err
	}
	for _, vm := range inv.VMs {
		if err := write(kindVM, vm); err != nil {
			return err
		}
	}
	for _, disk := range inv.Disks {
		if err := write(kindDisk, disk); err != nil {
			return err
		}
	}
	for _, nic := range inv.NICs {
		if err := write(kindNIC, nic); err != nil {
			return err
		}
	}
	for _, host := range inv.Hosts {
		if err := write(kindHost, host); err != nil {
			return err
		}
	}
	for _, cluster := range inv.Clusters {
		if err := write(kindCluster, cluster); err != nil {
			return err
		}
	}
	for _, ds := range inv.Datastores {
		if err := write(kindDatastore, ds); err != nil {
			return err
		}
	}
	for _, tools := range inv.Tools {
		if err := write(kindTools, tools); err != nil {
			return err
		}
	}
	for _, snap := range inv.Snapshots {
		if err := write(kindSnapshot, snap); err != nil {
			return err
		}
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}

// LoadInventory reads one stored report back into memory.
func (s *Store) LoadInventory(ctx context.Context, reportID string) (Meta, *rvtools.Inventory, error) {
	filePath, err := s.reportFile(reportID)
	if err != nil {
		return Meta{}, nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Meta{}, nil, fmt.Errorf("%w: %s", ErrReportNotFound, reportID)
		}
		return Meta{}, nil, fmt.Errorf("open store: %w", err)
	}
	defer file.Close()

	var meta Meta
	inv := &rvtools.Inventory{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64<<10), 8<<20)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return Meta{}, nil, ctx.Err()
		default:
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env recordEnvelope
		if err := json.Unmarshal(line, &env); err != nil {
			return Meta{}, nil, fmt.Errorf("decode envelope: %w", err)
		}
		if err := decodeRecord(env, &meta, inv); err != nil {
			return Meta{}, nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return Meta{}, nil, fmt.Errorf("scan report: %w", err)
	}
	if meta.ReportID == "" {
		return Meta{}, nil, fmt.Errorf("report %s has no meta record", reportID)
	}
	inv.SourceName = meta.SourceFile
	inv.SheetNames = meta.SheetNames
	inv.ParsedAt = meta.ParsedAt
	inv.Warnings = meta.Warnings
	return meta, inv, nil
}

func decodeRecord(env recordEnvelope, meta *Meta, inv *rvtools.Inventory) error {
	switch env.Kind {
	case kindMeta:
		if err := json.Unmarshal(env.Data, meta); err != nil {
			return fmt.Errorf("decode meta: %w", err)
		}
	case kindVM:
		var vm rvtools.VM
		if err := json.Unmarshal(env.Data, &vm); err != nil {
			return fmt.Errorf("decode vm: %w", err)
		}
		inv.VMs = append(inv.VMs, vm)
	case kindDisk:
		var disk rvtools.Disk
		if err := json.Unmarshal(env.Data, &disk); err != nil {
			return fmt.Errorf("decode disk: %w", err)
		}
		inv.Disks = append(inv.Disks, disk)
	case kindNIC:
		var nic rvtools.NIC
		if err := json.Unmarshal(env.Data, &nic); err != nil {
			return fmt.Errorf("decode nic: %w", err)
		}
		inv.NICs = append(inv.NICs, nic)
	case kindHost:
		var host rvtools.Host
		if err := json.Unmarshal(env.Data, &host); err != nil {
			return fmt.Errorf("decode host: %w", err)
		}
		inv.Hosts = append(inv.Hosts, host)
	case kindCluster:
		var cluster rvtools.Cluster
		if err := json.Unmarshal(env.Data, &cluster); err != nil {
			return fmt.Errorf("decode cluster: %w", err)
		}
		inv.Clusters = append(inv.Clusters, cluster)
	case kindDatastore:
		var ds rvtools.Datastore
		if err := json.Unmarshal(env.Data, &ds); err != nil {
			return fmt.Errorf("decode datastore: %w", err)
		}
		inv.Datastores = append(inv.Datastores, ds)
	case kindTools:
		var tools rvtools.ToolsInfo
		if err := json.Unmarshal(env.Data, &tools); err != nil {
			return fmt.Errorf("decode tools: %w", err)
		}
		inv.Tools = append(inv.Tools, tools)
	case kindSnapshot:
		var snap rvtools.Snapshot
		if err := json.Unmarshal(env.Data, &snap); err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		inv.Snapshots = append(inv.Snapshots, snap)
	default:
		// Unknown kinds are skipped so an older reader survives a newer
		// writer's records.
	}
	return nil
}

// DeleteReport removes one stored report.
func (s *Store) DeleteReport(reportID string) error {
	filePath, err := s.reportFile(reportID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrReportNotFound, reportID)
		}
		return fmt.Errorf("delete report: %w", err)
	}
	return nil
}

// Reports lists stored report metadata, newest upload first.
func (s *Store) Reports(ctx context.Context) ([]Meta, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.path)
	if err != nil {
		return nil, fmt.Errorf("read store dir: %w", err)
	}
	metas := make([]Meta, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := decodeReportFile(entry.Name()); !ok {
			continue
		}
		meta, err := readMeta(ctx, filepath.Join(s.path, entry.Name()))
		if err != nil {
			return nil, err
		}
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool {
		if metas[i].UploadedAt.Equal(metas[j].UploadedAt) {
			return metas[i].ReportID < metas[j].ReportID
		}
		return metas[i].UploadedAt.After(metas[j].UploadedAt)
	})
	return metas, nil
}

// Root returns the underlying directory used for persistence.
func (s *Store) Root() string {
	if s == nil {
		return ""
	}
	return s.path
}

// readMeta scans only as far as the meta record, which SaveInventory always
// writes first.
func readMeta(ctx context.Context, filePath string) (Meta, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return Meta{}, fmt.Errorf("open store: %w", err)
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64<<10), 8<<20)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return Meta{}, ctx.Err()
		default:
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env recordEnvelope
		if err := json.Unmarshal(line, &env); err != nil {
			return Meta{}, fmt.Errorf("decode envelope: %w", err)
		}
		if env.Kind != kindMeta {
			continue
		}
		var meta Meta
		if err := json.Unmarshal(env.Data, &meta); err != nil {
			return Meta{}, fmt.Errorf("decode meta: %w", err)
		}
		return meta, nil
	}
	if err := scanner.Err(); err != nil {
		return Meta{}, fmt.Errorf("scan report: %w", err)
	}
	return Meta{}, fmt.Errorf("%s has no meta record", filepath.Base(filePath))
}

func (s *Store) reportFile(reportID string) (string, error) {
	trimmed := strings.TrimSpace(reportID)
	if trimmed == "" {
		return "", fmt.Errorf("report id required")
	}
	encoded := base64.RawURLEncoding.EncodeToString([]byte(trimmed))
	if encoded == "" {
		return "", fmt.Errorf("invalid report id")
	}
	name := fmt.Sprintf("report_%s.jsonl", encoded)
	return filepath.Join(s.path, name), nil
}

func decodeReportFile(name string) (string, bool) {
	if !strings.HasPrefix(name, "report_") || !strings.HasSuffix(name, ".jsonl") {
		return "", false
	}
	encoded := strings.TrimSuffix(strings.TrimPrefix(name, "report_"), ".jsonl")
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	return string(data), true
}

func determineRoot(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "."
	}
	info, err := os.Stat(trimmed)
	if err == nil {
		if info.IsDir() {
			return trimmed
		}
		return filepath.Dir(trimmed)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return filepath.Dir(trimmed)
	}
	// Path does not exist; assume caller intended a file if an extension is present.
	if ext := filepath.Ext(trimmed); ext != "" {
		dir := filepath.Dir(trimmed)
		if dir == "" || dir == "." {
			return "."
		}
		return dir
	}
	return trimmed
}
