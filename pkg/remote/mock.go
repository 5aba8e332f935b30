package remote

import (
	"context"
	"sync"
)

// Mock implements Store and StatusChecker for testing.
type Mock struct {
	// UpsertHeartbeatFunc is called when UpsertHeartbeat is invoked.
	UpsertHeartbeatFunc func(ctx context.Context, hb Heartbeat) error

	// InsertViolationFunc is called when InsertViolation is invoked.
	InsertViolationFunc func(ctx context.Context, v ViolationRecord) error

	// ExamActiveFunc is called when ExamActive is invoked. Nil means active.
	ExamActiveFunc func(ctx context.Context, studentID, examID string) (bool, error)

	mu         sync.Mutex
	calls      []string
	heartbeats []Heartbeat
	violations []ViolationRecord
}

// NewMock creates a mock store that accepts everything.
func NewMock() *Mock {
	return &Mock{}
}

// Name implements Store.
func (m *Mock) Name() string { return "mock" }

// UpsertHeartbeat records hb and calls UpsertHeartbeatFunc.
func (m *Mock) UpsertHeartbeat(ctx context.Context, hb Heartbeat) error {
	m.mu.Lock()
	m.calls = append(m.calls, OpHeartbeat)
	m.heartbeats = append(m.heartbeats, hb)
	m.mu.Unlock()
	if m.UpsertHeartbeatFunc != nil {
		return m.UpsertHeartbeatFunc(ctx, hb)
	}
	return nil
}

// InsertViolation records v and calls InsertViolationFunc.
func (m *Mock) InsertViolation(ctx context.Context, v ViolationRecord) error {
	m.mu.Lock()
	m.calls = append(m.calls, OpViolation)
	m.violations = append(m.violations, v)
	m.mu.Unlock()
	if m.InsertViolationFunc != nil {
		return m.InsertViolationFunc(ctx, v)
	}
	return nil
}

// ExamActive calls ExamActiveFunc.
func (m *Mock) ExamActive(ctx context.Context, studentID, examID string) (bool, error) {
	if m.ExamActiveFunc != nil {
		return m.ExamActiveFunc(ctx, studentID, examID)
	}
	return true, nil
}

// Close implements Store.
func (m *Mock) Close() error { return nil }

// Calls returns the operation names in call order.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Heartbeats returns the recorded heartbeats.
func (m *Mock) Heartbeats() []Heartbeat {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Heartbeat(nil), m.heartbeats...)
}

// Violations returns the recorded violation rows.
func (m *Mock) Violations() []ViolationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ViolationRecord(nil), m.violations...)
}
