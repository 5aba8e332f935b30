package detection

import (
	"errors"
	"sync"

	"github.com/teslashibe/go-proctor/pkg/frame"
)

// Mock implements Detector for testing.
type Mock struct {
	// DetectFunc is called when Detect is invoked.
	DetectFunc func(f frame.Frame) ([]Record, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	// Variant is returned by Kind.
	Variant Kind

	mu    sync.Mutex
	calls []uint64
}

// NewMock creates a mock detector that always returns recs.
func NewMock(kind Kind, recs ...Record) *Mock {
	return &Mock{
		Variant: kind,
		DetectFunc: func(frame.Frame) ([]Record, error) {
			out := make([]Record, len(recs))
			copy(out, recs)
			return out, nil
		},
	}
}

// NewFailingMock creates a mock detector whose every call fails.
func NewFailingMock(kind Kind) *Mock {
	return &Mock{
		Variant: kind,
		DetectFunc: func(frame.Frame) ([]Record, error) {
			return nil, errors.New("mock detector failure")
		},
	}
}

// Detect calls DetectFunc and records the frame sequence.
func (m *Mock) Detect(f frame.Frame) ([]Record, error) {
	m.mu.Lock()
	m.calls = append(m.calls, f.Seq)
	m.mu.Unlock()
	if m.DetectFunc != nil {
		return m.DetectFunc(f)
	}
	return nil, nil
}

// Kind implements Detector.
func (m *Mock) Kind() Kind {
	return m.Variant
}

// Close calls CloseFunc if set.
func (m *Mock) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Calls returns the frame sequence numbers Detect was called with.
func (m *Mock) Calls() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint64, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Detect calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
