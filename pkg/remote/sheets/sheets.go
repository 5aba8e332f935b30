// Package sheets mirrors heartbeats and violations into a Google
// Sheets spreadsheet, for deployments without a database.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/teslashibe/go-proctor/pkg/remote"
)

const storeName = "sheets"

// Config configures the spreadsheet store.
type Config struct {
	CredentialsFile string `json:"credentials_file"` // Service account JSON key
	SpreadsheetID   string `json:"spreadsheet_id"`
	StatusSheet     string `json:"status_sheet"`    // Columns: student, exam, active, heartbeat, session
	ViolationSheet  string `json:"violation_sheet"` // Columns: time, session, student, exam, detail, kinds, risk, status, id
}

// DefaultConfig returns the default sheet names.
func DefaultConfig() Config {
	return Config{
		StatusSheet:    "proctoring_status",
		ViolationSheet: "violation_logs",
	}
}

// valuesAPI is the slice of the Sheets values API the store uses.
type valuesAPI interface {
	Get(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error)
	Update(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error
	Append(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error
}

// Store implements remote.Store and remote.StatusChecker.
type Store struct {
	config Config
	values valuesAPI

	// rows caches the 1-based sheet row of each (student, exam) key.
	mu   sync.Mutex
	rows map[string]int
}

// New authenticates with a service account key and returns a store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("sheets: spreadsheet ID required")
	}
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("sheets: read credentials: %w", err)
	}
	jwt, err := google.JWTConfigFromJSON(data, sheetsapi.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("sheets: parse credentials: %w", err)
	}

	service, err := sheetsapi.NewService(ctx, option.WithHTTPClient(jwt.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("sheets: create service: %w", err)
	}
	return newStore(cfg, &serviceValues{svc: service.Spreadsheets.Values}), nil
}

func newStore(cfg Config, values valuesAPI) *Store {
	def := DefaultConfig()
	if cfg.StatusSheet == "" {
		cfg.StatusSheet = def.StatusSheet
	}
	if cfg.ViolationSheet == "" {
		cfg.ViolationSheet = def.ViolationSheet
	}
	return &Store{config: cfg, values: values, rows: make(map[string]int)}
}

// Name implements remote.Store.
func (s *Store) Name() string { return storeName }

// Close implements remote.Store.
func (s *Store) Close() error { return nil }

// UpsertHeartbeat appends the status row for (student, exam) or, when it
// exists, rewrites its heartbeat and session columns. The active column
// is left to the exam server after the row is created.
func (s *Store) UpsertHeartbeat(ctx context.Context, hb remote.Heartbeat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := hb.At.UTC().Format(time.RFC3339)
	n, err := s.findRowLocked(ctx, hb.StudentID, hb.ExamID)
	if err != nil {
		return remote.WrapError(storeName, "upsert heartbeat", err)
	}

	if n == 0 {
		row := []interface{}{hb.StudentID, hb.ExamID, hb.Active, at, hb.SessionID}
		err = s.values.Append(ctx, s.config.SpreadsheetID, s.config.StatusSheet+"!A:E", [][]interface{}{row})
		// The appended row number is unknown; the next call reads the sheet.
	} else {
		rng := fmt.Sprintf("%s!D%d:E%d", s.config.StatusSheet, n, n)
		err = s.values.Update(ctx, s.config.SpreadsheetID, rng, [][]interface{}{{at, hb.SessionID}})
	}
	return remote.WrapError(storeName, "upsert heartbeat", err)
}

// InsertViolation appends one violation row.
func (s *Store) InsertViolation(ctx context.Context, v remote.ViolationRecord) error {
	row := []interface{}{
		v.At.UTC().Format(time.RFC3339),
		v.SessionID,
		v.StudentID,
		v.ExamID,
		v.Detail,
		strings.Join(v.Kinds, ","),
		v.RiskScore,
		v.Band,
		v.ID,
	}
	err := s.values.Append(ctx, s.config.SpreadsheetID, s.config.ViolationSheet+"!A:I", [][]interface{}{row})
	return remote.WrapError(storeName, "insert violation", err)
}

// ExamActive reads the active column of the status row. A missing row
// counts as active.
func (s *Store) ExamActive(ctx context.Context, studentID, examID string) (bool, error) {
	rows, err := s.values.Get(ctx, s.config.SpreadsheetID, s.config.StatusSheet+"!A:C")
	if err != nil {
		return true, remote.WrapError(storeName, "exam status", err)
	}
	for _, r := range rows {
		if len(r) < 3 || cell(r, 0) != studentID || cell(r, 1) != examID {
			continue
		}
		active, err := strconv.ParseBool(strings.ToLower(cell(r, 2)))
		if err != nil {
			return true, remote.WrapError(storeName, "exam status", err)
		}
		return active, nil
	}
	return true, nil
}

// findRowLocked returns the 1-based row of the key, or 0 when absent.
func (s *Store) findRowLocked(ctx context.Context, studentID, examID string) (int, error) {
	key := studentID + "\x00" + examID
	if n, ok := s.rows[key]; ok {
		return n, nil
	}
	rows, err := s.values.Get(ctx, s.config.SpreadsheetID, s.config.StatusSheet+"!A:B")
	if err != nil {
		return 0, err
	}
	for i, r := range rows {
		if cell(r, 0) == studentID && cell(r, 1) == examID {
			s.rows[key] = i + 1
			return i + 1, nil
		}
	}
	return 0, nil
}

func cell(row []interface{}, i int) string {
	if i >= len(row) {
		return ""
	}
	return fmt.Sprint(row[i])
}

// serviceValues adapts the generated Sheets client.
type serviceValues struct {
	svc *sheetsapi.SpreadsheetsValuesService
}

func (v *serviceValues) Get(ctx context.Context, id, rng string) ([][]interface{}, error) {
	resp, err := v.svc.Get(id, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (v *serviceValues) Update(ctx context.Context, id, rng string, rows [][]interface{}) error {
	_, err := v.svc.Update(id, rng, &sheetsapi.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

func (v *serviceValues) Append(ctx context.Context, id, rng string, rows [][]interface{}) error {
	_, err := v.svc.Append(id, rng, &sheetsapi.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}
