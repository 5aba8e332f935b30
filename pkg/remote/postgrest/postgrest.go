// Package postgrest stores heartbeats and violations in a Supabase
// (PostgREST) project over its REST interface.
package postgrest

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teslashibe/go-proctor/internal/httpc"
	"github.com/teslashibe/go-proctor/pkg/remote"
)

const storeName = "postgrest"

// Config holds PostgREST connection settings.
type Config struct {
	URL            string        `json:"url"`             // Project URL, e.g. https://xyz.supabase.co
	APIKey         string        `json:"-"`               // anon or service key
	StatusTable    string        `json:"status_table"`    // Liveness table
	ViolationTable string        `json:"violation_table"` // Append-only violation log
	Timeout        time.Duration `json:"timeout"`

	// ExtendedViolations also writes session_id, status and kinds. The
	// table must have those columns.
	ExtendedViolations bool `json:"extended_violations"`
}

// DefaultConfig returns the table names used by the exam dashboard.
func DefaultConfig() Config {
	return Config{
		StatusTable:    "proctoring_status",
		ViolationTable: "violation_logs",
		Timeout:        10 * time.Second,
	}
}

// Store implements remote.Store and remote.StatusChecker.
type Store struct {
	config Config
	base   string
	client *http.Client
}

// New creates a PostgREST store.
func New(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("postgrest: URL required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("postgrest: API key required")
	}
	if cfg.StatusTable == "" {
		cfg.StatusTable = DefaultConfig().StatusTable
	}
	if cfg.ViolationTable == "" {
		cfg.ViolationTable = DefaultConfig().ViolationTable
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Store{
		config: cfg,
		base:   strings.TrimRight(cfg.URL, "/") + "/rest/v1/",
		client: httpc.NewClient(cfg.Timeout),
	}, nil
}

// Name implements remote.Store.
func (s *Store) Name() string { return storeName }

// Close implements remote.Store.
func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// statusRow carries no is_active: merge-duplicates only updates the
// columns sent, so a server-cleared flag survives heartbeats and new rows
// take the column default.
type statusRow struct {
	StudentID     string `json:"student_id"`
	ExamID        string `json:"exam_id"`
	LastHeartbeat string `json:"last_heartbeat"`
}

// UpsertHeartbeat merges the liveness row for (student, exam).
func (s *Store) UpsertHeartbeat(ctx context.Context, hb remote.Heartbeat) error {
	row := statusRow{
		StudentID:     hb.StudentID,
		ExamID:        hb.ExamID,
		LastHeartbeat: hb.At.UTC().Format(time.RFC3339Nano),
	}
	q := url.Values{"on_conflict": {"student_id,exam_id"}}
	req, err := s.request(ctx, http.MethodPost, s.config.StatusTable, q, row)
	if err != nil {
		return remote.WrapError(storeName, "upsert heartbeat", err)
	}
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")
	return remote.WrapError(storeName, "upsert heartbeat", httpc.DoJSON(s.client, req, nil))
}

type violationRow struct {
	StudentID     string   `json:"student_id"`
	ExamID        string   `json:"exam_id"`
	ViolationType string   `json:"violation_type"`
	RiskScore     int      `json:"risk_score"`
	SessionID     string   `json:"session_id,omitempty"`
	Status        string   `json:"status,omitempty"`
	Kinds         []string `json:"kinds,omitempty"`
}

// InsertViolation appends one violation row.
func (s *Store) InsertViolation(ctx context.Context, v remote.ViolationRecord) error {
	row := violationRow{
		StudentID:     v.StudentID,
		ExamID:        v.ExamID,
		ViolationType: v.Detail,
		RiskScore:     v.RiskScore,
	}
	if s.config.ExtendedViolations {
		row.SessionID = v.SessionID
		row.Status = v.Band
		row.Kinds = v.Kinds
	}
	req, err := s.request(ctx, http.MethodPost, s.config.ViolationTable, nil, row)
	if err != nil {
		return remote.WrapError(storeName, "insert violation", err)
	}
	req.Header.Set("Prefer", "return=minimal")
	return remote.WrapError(storeName, "insert violation", httpc.DoJSON(s.client, req, nil))
}

// ExamActive reads is_active for (student, exam). A missing row counts
// as active.
func (s *Store) ExamActive(ctx context.Context, studentID, examID string) (bool, error) {
	q := url.Values{
		"select":     {"is_active"},
		"student_id": {"eq." + studentID},
		"exam_id":    {"eq." + examID},
		"limit":      {"1"},
	}
	req, err := s.request(ctx, http.MethodGet, s.config.StatusTable, q, nil)
	if err != nil {
		return true, remote.WrapError(storeName, "exam status", err)
	}

	var rows []struct {
		IsActive bool `json:"is_active"`
	}
	if err := httpc.DoJSON(s.client, req, &rows); err != nil {
		return true, remote.WrapError(storeName, "exam status", err)
	}
	if len(rows) == 0 {
		return true, nil
	}
	return rows[0].IsActive, nil
}

func (s *Store) request(ctx context.Context, method, table string, q url.Values, body any) (*http.Request, error) {
	u := s.base + url.PathEscape(table)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := httpc.NewJSONRequest(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", s.config.APIKey)
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	return req, nil
}
