// Package postgres stores heartbeats and violations directly in
// PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jackc/pgx/v4/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/remote"
)

const storeName = "postgres"

//go:embed migrations/*.sql
var migrations embed.FS

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Close()
}

// Config holds database settings.
type Config struct {
	DSN      string        `json:"-"`
	MaxConns int32         `json:"max_conns"`
	Migrate  bool          `json:"migrate"` // Apply embedded migrations on Open
	Timeout  time.Duration `json:"timeout"` // Connect timeout
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConns: 4,
		Migrate:  true,
		Timeout:  10 * time.Second,
	}
}

// DSNForLog returns the DSN with the password masked.
func (c *Config) DSNForLog() string {
	u, err := url.Parse(c.DSN)
	if err != nil || u.User == nil {
		return "postgres://***"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// Store implements remote.Store and remote.StatusChecker.
type Store struct {
	db DB
}

// New wraps an existing connection.
func New(db DB) *Store {
	return &Store{db: db}
}

// Open connects a pool, optionally migrates, and returns the store.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	logger = log.Or(logger).With("component", "postgres")

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	if cfg.Migrate {
		if err := migrate(ctx, poolCfg.ConnConfig, logger); err != nil {
			return nil, err
		}
	}

	connectCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	pool, err := pgxpool.ConnectConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	logger.Info("postgres store ready", "dsn", cfg.DSNForLog())
	return New(pool), nil
}

func migrate(ctx context.Context, connCfg *pgx.ConnConfig, logger *slog.Logger) error {
	db := stdlib.OpenDB(*connCfg)
	defer db.Close()

	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		return fmt.Errorf("postgres: migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	for _, r := range results {
		logger.Info("migration applied", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// Name implements remote.Store.
func (s *Store) Name() string { return storeName }

// Close implements remote.Store.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

const upsertHeartbeat = `
INSERT INTO proctoring_status (student_id, exam_id, session_id, is_active, last_heartbeat)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (student_id, exam_id)
DO UPDATE SET session_id = EXCLUDED.session_id,
              last_heartbeat = EXCLUDED.last_heartbeat`

// UpsertHeartbeat merges the liveness row for (student, exam). is_active
// is written only when the row is created; after that it belongs to the
// exam server, which clears it to end the exam.
func (s *Store) UpsertHeartbeat(ctx context.Context, hb remote.Heartbeat) error {
	_, err := s.db.Exec(ctx, upsertHeartbeat, hb.StudentID, hb.ExamID, hb.SessionID, hb.Active, hb.At)
	return remote.WrapError(storeName, "upsert heartbeat", err)
}

const insertViolation = `
INSERT INTO violation_logs (id, session_id, student_id, exam_id, violation_type, kinds, risk_score, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// InsertViolation appends one violation row.
func (s *Store) InsertViolation(ctx context.Context, v remote.ViolationRecord) error {
	kinds := v.Kinds
	if kinds == nil {
		kinds = []string{}
	}
	_, err := s.db.Exec(ctx, insertViolation,
		v.ID, v.SessionID, v.StudentID, v.ExamID, v.Detail, kinds, v.RiskScore, v.Band, v.At)
	return remote.WrapError(storeName, "insert violation", err)
}

const selectActive = `SELECT is_active FROM proctoring_status WHERE student_id = $1 AND exam_id = $2`

// ExamActive reads is_active for (student, exam). A missing row counts
// as active.
func (s *Store) ExamActive(ctx context.Context, studentID, examID string) (bool, error) {
	var active bool
	err := s.db.QueryRow(ctx, selectActive, studentID, examID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return true, remote.WrapError(storeName, "exam status", err)
	}
	return active, nil
}
