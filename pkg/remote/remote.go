// Package remote reports session liveness and violations to a remote
// store. Reporting is best-effort: failures are logged and dropped.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for gateway conditions.
var (
	// ErrQueueFull is reported when a call is dropped because the worker
	// is behind.
	ErrQueueFull = errors.New("remote: queue full")

	// ErrClosed is reported for calls made after Close.
	ErrClosed = errors.New("remote: gateway closed")

	// ErrNotFound is returned by stores when a lookup has no row.
	ErrNotFound = errors.New("remote: not found")
)

// StoreError wraps a failed store operation.
type StoreError struct {
	Store string
	Op    string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("remote [%s]: %s: %v", e.Store, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with store and operation context.
func WrapError(store, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Store: store, Op: op, Err: err}
}

// Heartbeat is the liveness row keyed by (student, exam).
type Heartbeat struct {
	SessionID string    `json:"session_id"`
	StudentID string    `json:"student_id"`
	ExamID    string    `json:"exam_id"`
	Active    bool      `json:"is_active"`
	At        time.Time `json:"last_heartbeat"`
}

// ViolationRecord is one appended violation log row.
type ViolationRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	StudentID string    `json:"student_id"`
	ExamID    string    `json:"exam_id"`
	At        time.Time `json:"created_at"`
	Kinds     []string  `json:"kinds"`
	Detail    string    `json:"violation_type"` // Event details joined with " | "
	RiskScore int       `json:"risk_score"`
	Band      string    `json:"status"`
}

// Store is an upsert-capable liveness table plus an append-only
// violation log.
type Store interface {
	UpsertHeartbeat(ctx context.Context, hb Heartbeat) error
	InsertViolation(ctx context.Context, v ViolationRecord) error
	Name() string
	Close() error
}

// StatusChecker reports whether an exam is still running.
type StatusChecker interface {
	ExamActive(ctx context.Context, studentID, examID string) (bool, error)
}
