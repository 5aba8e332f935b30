package remote

import (
	"context"
	"errors"
	"strings"
)

// Multi writes to several stores in order. A failing store does not stop
// the others; all errors are joined.
type Multi []Store

// Name implements Store.
func (m Multi) Name() string {
	names := make([]string, len(m))
	for i, s := range m {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

// UpsertHeartbeat implements Store.
func (m Multi) UpsertHeartbeat(ctx context.Context, hb Heartbeat) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.UpsertHeartbeat(ctx, hb))
	}
	return errors.Join(errs...)
}

// InsertViolation implements Store.
func (m Multi) InsertViolation(ctx context.Context, v ViolationRecord) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.InsertViolation(ctx, v))
	}
	return errors.Join(errs...)
}

// Close implements Store.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// ExamActive asks the first store that can answer. With none, the exam
// is considered active.
func (m Multi) ExamActive(ctx context.Context, studentID, examID string) (bool, error) {
	for _, s := range m {
		if sc, ok := s.(StatusChecker); ok {
			return sc.ExamActive(ctx, studentID, examID)
		}
	}
	return true, nil
}

// Discard is a Store that accepts and drops everything.
type Discard struct{}

func (Discard) Name() string                                          { return "none" }
func (Discard) UpsertHeartbeat(context.Context, Heartbeat) error       { return nil }
func (Discard) InsertViolation(context.Context, ViolationRecord) error { return nil }
func (Discard) Close() error                                          { return nil }
