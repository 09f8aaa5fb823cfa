// Package postgres provides Postgres-backed persistence for probe history.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/listforge/dirwatch/internal/monitor"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// HistoryStoreConfig controls the Postgres connection pool used for the
// probe journal.
type HistoryStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// HistoryStore appends one row per probe so health history survives
// restarts and can be analyzed offline. It implements monitor.Journal.
type HistoryStore struct {
	pool  execCloser
	table string
}

// NewHistoryStore creates a Postgres-backed HistoryStore using the provided config.
func NewHistoryStore(ctx context.Context, cfg HistoryStoreConfig) (*HistoryStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres_dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "probe_history"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &HistoryStore{pool: pool, table: table}, nil
}

// NewHistoryStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewHistoryStoreWithPool(pool execCloser, table string) (*HistoryStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "probe_history"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &HistoryStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *HistoryStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// RecordProbe inserts one probe outcome row.
func (s *HistoryStore) RecordProbe(ctx context.Context, result monitor.ProbeResult) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("history store is not configured")
	}
	if result.DirectoryID == "" {
		return fmt.Errorf("directory id is required")
	}
	signalsJSON, err := json.Marshal(signalStrings(result.AntiBot.Signals))
	if err != nil {
		return fmt.Errorf("marshal signals: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	directory_id,
	probed_at,
	status,
	http_status,
	response_time_ms,
	transport_error,
	form_count,
	fingerprint,
	selector_accuracy,
	config_issue,
	anti_bot_detected,
	anti_bot_score,
	anti_bot_risk,
	anti_bot_signals
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)`, s.table)

	args := []any{
		result.DirectoryID,
		result.StartedAt,
		string(result.Accessibility.Status),
		result.Accessibility.HTTPStatus,
		result.Accessibility.ResponseTime.Milliseconds(),
		result.Accessibility.Err,
		result.Structure.FormCount,
		result.Fingerprint,
		result.Selectors.Accuracy,
		result.Selectors.ConfigIssue,
		result.AntiBot.Detected,
		result.AntiBot.Score,
		string(result.AntiBot.RiskLevel),
		signalsJSON,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert probe row: %w", err)
	}
	return nil
}

func signalStrings(signals []monitor.Signal) []string {
	out := make([]string, 0, len(signals))
	for _, sig := range signals {
		out = append(out, sig.Category+": "+sig.Evidence)
	}
	return out
}
