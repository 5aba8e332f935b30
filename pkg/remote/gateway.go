package remote

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

// Operation names reported to OnResult.
const (
	OpHeartbeat = "heartbeat"
	OpViolation = "violation"
)

// Config holds gateway configuration.
type Config struct {
	// QueueSize bounds calls waiting for the worker. Calls beyond it are dropped.
	QueueSize int `json:"queue_size"`

	// CallTimeout bounds a single store call.
	CallTimeout time.Duration `json:"call_timeout"`

	// SessionID is stamped on every row.
	SessionID string `json:"session_id"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:   64,
		CallTimeout: 5 * time.Second,
	}
}

type job struct {
	op string
	hb Heartbeat
	v  ViolationRecord
}

// Gateway forwards heartbeats and violations to a Store from a single
// background worker. Calls never block the caller and are sent in the
// order they were made.
type Gateway struct {
	store  Store
	config Config
	logger *slog.Logger
	now    func() time.Time

	// OnResult, if set, is called after every store call.
	OnResult func(op string, err error)

	mu     sync.Mutex
	closed bool
	queue  chan job
}

// NewGateway creates a gateway over store. Call Run to start the worker.
func NewGateway(store Store, cfg Config, logger *slog.Logger) *Gateway {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig().CallTimeout
	}
	return &Gateway{
		store:  store,
		config: cfg,
		logger: log.Or(logger).With("component", "sync", "store", store.Name()),
		now:    time.Now,
		queue:  make(chan job, cfg.QueueSize),
	}
}

// Heartbeat queues a liveness upsert for (studentID, examID).
func (g *Gateway) Heartbeat(studentID, examID string) {
	g.enqueue(job{op: OpHeartbeat, hb: Heartbeat{
		SessionID: g.config.SessionID,
		StudentID: studentID,
		ExamID:    examID,
		Active:    true,
		At:        g.now().UTC(),
	}})
}

// LogViolation queues one violation row for the frame's assessment.
// Empty assessments are ignored.
func (g *Gateway) LogViolation(studentID, examID string, a violation.Assessment) {
	if a.Empty() {
		return
	}
	kinds := make([]string, len(a.Events))
	for i, k := range a.Kinds() {
		kinds[i] = string(k)
	}
	g.enqueue(job{op: OpViolation, v: ViolationRecord{
		ID:        uuid.NewString(),
		SessionID: g.config.SessionID,
		StudentID: studentID,
		ExamID:    examID,
		At:        g.now().UTC(),
		Kinds:     kinds,
		Detail:    a.Summary(),
		RiskScore: a.Risk,
		Band:      string(a.Band),
	}})
}

func (g *Gateway) enqueue(j job) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		g.logger.Debug("sync call after close dropped", "op", j.op)
		g.report(j.op, ErrClosed)
		return
	}
	select {
	case g.queue <- j:
	default:
		g.logger.Warn("sync queue full, dropping call", "op", j.op, "queue_size", g.config.QueueSize)
		g.report(j.op, ErrQueueFull)
	}
}

// Run sends queued calls until Close is called and the queue is drained,
// or ctx is cancelled. Calls still queued at cancellation are dropped.
func (g *Gateway) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j, ok := <-g.queue:
			if !ok {
				return nil
			}
			g.send(ctx, j)
		}
	}
}

// Close stops accepting calls. Run returns once queued calls are sent.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.closed = true
		close(g.queue)
	}
}

func (g *Gateway) send(ctx context.Context, j job) {
	if ctx.Err() != nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, g.config.CallTimeout)
	defer cancel()

	var err error
	switch j.op {
	case OpHeartbeat:
		err = g.store.UpsertHeartbeat(callCtx, j.hb)
	case OpViolation:
		err = g.store.InsertViolation(callCtx, j.v)
	}

	if err != nil {
		g.logger.Warn("sync failed", "op", j.op, "error", err)
	} else if j.op == OpViolation {
		g.logger.Debug("violation logged", "risk", j.v.RiskScore, "kinds", strings.Join(j.v.Kinds, ","))
	}
	g.report(j.op, err)
}

func (g *Gateway) report(op string, err error) {
	if g.OnResult != nil {
		g.OnResult(op, err)
	}
}
