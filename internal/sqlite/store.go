// File path: internal/sqlite/store.go
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store wraps a pooled sqlx.DB connection to the SQLite catalog.
type Store struct {
	db *sqlx.DB
}

// Open constructs a Store backed by the SQLite database at the provided path.
// The database schema is automatically migrated and seeded on first use.
func Open(path string) (*Store, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		cfg.Path = trimmed
	}
	return OpenWithConfig(cfg)
}

// OpenWithConfig constructs a Store using the provided configuration.
func OpenWithConfig(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path required")
	}
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite path: %w", err)
	}
	busy := int(cfg.BusyTimeout / time.Millisecond)
	if busy <= 0 {
		busy = 5000
	}
	// journal_mode cannot change inside the migration transaction, so every
	// pragma rides on the DSN; _time_format keeps time.Time params readable.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_time_format=sqlite", abs, busy)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingTimeout := cfg.BusyTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying sqlx.DB for advanced callers.
func (s *Store) DB() *sqlx.DB {
	if s == nil {
		return nil
	}
	return s.db
}

func (s *Store) migrate(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store not initialised")
	}
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute schema statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS reports (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                report_id TEXT NOT NULL,
                source_file TEXT,
                uploaded_at DATETIME,
                vm_count INTEGER NOT NULL DEFAULT 0,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                UNIQUE(report_id)
        );`,
	`CREATE TABLE IF NOT EXISTS vms (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                report_id INTEGER NOT NULL,
                name TEXT NOT NULL,
                moref TEXT,
                cluster TEXT,
                host TEXT,
                power_state TEXT,
                guest_os TEXT,
                os_family TEXT,
                cpus INTEGER NOT NULL DEFAULT 0,
                memory_mib INTEGER NOT NULL DEFAULT 0,
                disk_mib INTEGER NOT NULL DEFAULT 0,
                template INTEGER NOT NULL DEFAULT 0,
                fingerprint TEXT,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                FOREIGN KEY(report_id) REFERENCES reports(id) ON DELETE CASCADE,
                UNIQUE(report_id, name)
        );`,
	`CREATE TABLE IF NOT EXISTS assessments (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                vm_id INTEGER NOT NULL,
                target TEXT NOT NULL,
                score INTEGER NOT NULL DEFAULT 0,
                band TEXT NOT NULL,
                hard_block INTEGER NOT NULL DEFAULT 0,
                support TEXT,
                caveats TEXT,
                profile TEXT,
                monthly_usd REAL NOT NULL DEFAULT 0,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                FOREIGN KEY(vm_id) REFERENCES vms(id) ON DELETE CASCADE,
                UNIQUE(vm_id, target)
        );`,
	`CREATE TABLE IF NOT EXISTS waves (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                report_id INTEGER NOT NULL,
                number INTEGER NOT NULL,
                label TEXT NOT NULL,
                memory_mib INTEGER NOT NULL DEFAULT 0,
                disk_mib INTEGER NOT NULL DEFAULT 0,
                bands TEXT,
                notes TEXT,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                FOREIGN KEY(report_id) REFERENCES reports(id) ON DELETE CASCADE,
                UNIQUE(report_id, number)
        );`,
	`CREATE TABLE IF NOT EXISTS wave_members (
                wave_id INTEGER NOT NULL,
                vm_name TEXT NOT NULL,
                sequence INTEGER NOT NULL DEFAULT 0,
                PRIMARY KEY (wave_id, vm_name),
                FOREIGN KEY(wave_id) REFERENCES waves(id) ON DELETE CASCADE
        );`,
	`CREATE TABLE IF NOT EXISTS remediations (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                report_id INTEGER NOT NULL,
                vm_name TEXT NOT NULL,
                severity TEXT NOT NULL,
                category TEXT NOT NULL,
                message TEXT NOT NULL,
                effort TEXT,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                FOREIGN KEY(report_id) REFERENCES reports(id) ON DELETE CASCADE
        );`,
	`CREATE TABLE IF NOT EXISTS audit_log (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                report_id TEXT,
                action TEXT NOT NULL,
                detail TEXT,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE INDEX IF NOT EXISTS idx_reports_uploaded ON reports(uploaded_at);`,
	`CREATE INDEX IF NOT EXISTS idx_vms_report_name ON vms(report_id, name);`,
	`CREATE INDEX IF NOT EXISTS idx_vms_report_cluster ON vms(report_id, cluster);`,
	`CREATE INDEX IF NOT EXISTS idx_vms_report_family ON vms(report_id, os_family);`,
	`CREATE INDEX IF NOT EXISTS idx_assessments_vm_target ON assessments(vm_id, target);`,
	`CREATE INDEX IF NOT EXISTS idx_waves_report_number ON waves(report_id, number);`,
	`CREATE INDEX IF NOT EXISTS idx_remediations_report_vm ON remediations(report_id, vm_name);`,
	`CREATE INDEX IF NOT EXISTS idx_audit_report_created ON audit_log(report_id, created_at);`,
	`CREATE VIEW IF NOT EXISTS band_distribution_view AS
                SELECT
                        r.report_id,
                        a.target,
                        a.band,
                        COUNT(*) AS vm_count
                FROM assessments a
                INNER JOIN vms v ON v.id = a.vm_id
                INNER JOIN reports r ON r.id = v.report_id
                GROUP BY r.report_id, a.target, a.band;`,
	`CREATE VIEW IF NOT EXISTS os_support_view AS
                SELECT
                        r.report_id,
                        a.target,
                        COALESCE(NULLIF(a.support, ''), 'unknown') AS support,
                        COUNT(*) AS vm_count
                FROM assessments a
                INNER JOIN vms v ON v.id = a.vm_id
                INNER JOIN reports r ON r.id = v.report_id
                GROUP BY r.report_id, a.target, COALESCE(NULLIF(a.support, ''), 'unknown');`,
	`CREATE VIEW IF NOT EXISTS cluster_rollup_view AS
                SELECT
                        r.report_id,
                        COALESCE(NULLIF(v.cluster, ''), 'unclustered') AS cluster,
                        COUNT(*) AS vm_count,
                        SUM(v.cpus) AS total_cpus,
                        SUM(v.memory_mib) AS total_memory_mib,
                        SUM(v.disk_mib) AS total_disk_mib
                FROM vms v
                INNER JOIN reports r ON r.id = v.report_id
                GROUP BY r.report_id, COALESCE(NULLIF(v.cluster, ''), 'unclustered');`,
	`CREATE VIEW IF NOT EXISTS report_change_history AS
                SELECT
                        a.id,
                        a.report_id,
                        a.action,
                        a.detail,
                        a.created_at
                FROM audit_log a
                WHERE a.action <> 'schema_created';`,
	`INSERT INTO audit_log(report_id, action, detail)
        SELECT '', 'schema_created', 'initial schema loaded'
        WHERE NOT EXISTS (SELECT 1 FROM audit_log WHERE action = 'schema_created');`,
}
