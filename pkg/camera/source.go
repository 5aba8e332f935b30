package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/frame"
)

// State is the lifecycle state of a Source.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Device is an opened capture device.
type Device interface {
	// Read blocks for at most one frame interval. An empty frame or an
	// error means the device is dead.
	Read() (frame.Frame, error)
	Close() error
}

// Opener opens a device for an index on a backend.
type Opener interface {
	Open(index int, backend Backend) (Device, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(index int, backend Backend) (Device, error)

// Open implements Opener.
func (f OpenerFunc) Open(index int, backend Backend) (Device, error) {
	return f(index, backend)
}

// Candidate is one (index, backend) pair tried during selection.
type Candidate struct {
	Index   int     `json:"index"`
	Backend Backend `json:"backend"`
}

func (c Candidate) String() string {
	return fmt.Sprintf("%d/%s", c.Index, c.Backend.Name)
}

type scanResult struct {
	dev  Device
	cand Candidate
}

// Source produces frames from the best available camera and hides
// disconnects behind placeholder frames while a background scan looks
// for a replacement device. At most one device is open at any time.
type Source struct {
	cfg    Config
	opener Opener
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	dev       Device
	active    Candidate
	seq       uint64
	width     int
	height    int
	ctx       context.Context
	cancel    context.CancelFunc
	scan      chan scanResult
	exhausted bool
}

// NewSource creates a closed source. Call Open before Read.
func NewSource(cfg Config, opener Opener, logger *slog.Logger) *Source {
	return &Source{
		cfg:    cfg,
		opener: opener,
		logger: log.Or(logger).With("component", "camera"),
		width:  cfg.Width,
		height: cfg.Height,
	}
}

// Open selects the first candidate that yields a frame brighter than
// MinBrightness within WarmupAttempts reads. The context bounds the
// selection and every later reconnect scan.
func (s *Source) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateClosed {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	s.state = StateOpening
	s.mu.Unlock()

	dev, cand, ok := s.selectDevice(ctx, s.cfg.WarmupAttempts)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !ok {
		s.state = StateClosed
		s.logger.Error("no camera produced a live frame", "candidates", len(s.cfg.Candidates()))
		return ErrNoCamera
	}
	if s.state != StateOpening {
		// Closed while selecting.
		dev.Close()
		return ErrClosed
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.dev = dev
	s.active = cand
	s.state = StateOpen
	s.logger.Info("camera opened", "candidate", cand.String())
	return nil
}

// Read returns the next frame. While reconnecting it returns a black
// placeholder immediately. Once a reconnect window is exhausted it keeps
// returning placeholders together with ErrReconnectExhausted until
// Reconnect is called.
func (s *Source) Read() (frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed, StateOpening:
		return frame.Frame{}, ErrClosed

	case StateReconnecting:
		if !s.pollScanLocked() {
			if s.exhausted {
				return s.placeholderLocked(), ErrReconnectExhausted
			}
			return s.placeholderLocked(), nil
		}
	}

	f, err := s.dev.Read()
	if err != nil || f.Empty() {
		s.logger.Warn("camera read failed, reconnecting",
			"candidate", s.active.String(),
			"error", err,
		)
		s.dev.Close()
		s.dev = nil
		s.state = StateReconnecting
		s.startScanLocked()
		return s.placeholderLocked(), nil
	}

	s.seq++
	f.Seq = s.seq
	if f.CapturedAt.IsZero() {
		f.CapturedAt = time.Now()
	}
	s.width, s.height = f.Width, f.Height
	return f, nil
}

// Reconnect starts a new reconnect window after the previous one was
// exhausted. It is a no-op in any other state.
func (s *Source) Reconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed, StateOpening:
		return ErrClosed
	case StateReconnecting:
		if s.exhausted {
			s.exhausted = false
			s.startScanLocked()
		}
	}
	return nil
}

// Close releases the device and stops any scan in progress. A device
// found by a cancelled scan is closed when the scan returns.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil
	}
	prev := s.state
	s.state = StateClosed
	if s.cancel != nil {
		s.cancel()
	}
	if s.scan != nil {
		pending := s.scan
		s.scan = nil
		go func() {
			if r := <-pending; r.dev != nil {
				r.dev.Close()
			}
		}()
	}

	var err error
	if s.dev != nil {
		err = s.dev.Close()
		s.dev = nil
	}
	if prev != StateOpening {
		s.logger.Info("camera closed")
	}
	return err
}

// State returns the current lifecycle state.
func (s *Source) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active returns the candidate currently in use.
func (s *Source) Active() (Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.state == StateOpen
}

func (s *Source) placeholderLocked() frame.Frame {
	s.seq++
	return frame.Blank(s.seq, time.Now(), s.width, s.height)
}

// pollScanLocked adopts the scan result if one is ready. It reports
// whether the source is open again.
func (s *Source) pollScanLocked() bool {
	if s.scan == nil {
		return false
	}
	select {
	case r := <-s.scan:
		s.scan = nil
		if r.dev == nil {
			s.exhausted = true
			s.logger.Error("camera reconnect window exhausted", "window", s.cfg.ReconnectWindow)
			return false
		}
		s.dev = r.dev
		s.active = r.cand
		s.state = StateOpen
		s.logger.Info("camera reconnected", "candidate", r.cand.String())
		return true
	default:
		return false
	}
}

func (s *Source) startScanLocked() {
	done := make(chan scanResult, 1)
	s.scan = done
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.ReconnectWindow)

	go func() {
		defer cancel()
		for {
			dev, cand, ok := s.selectDevice(ctx, s.cfg.ReconnectWarmupAttempts)
			if ok {
				done <- scanResult{dev: dev, cand: cand}
				return
			}
			select {
			case <-ctx.Done():
				done <- scanResult{}
				return
			case <-time.After(s.cfg.RetryInterval):
			}
		}
	}()
}

// selectDevice tries every candidate in order and returns the first one
// that warms up. Failing candidates are released before the next is tried.
func (s *Source) selectDevice(ctx context.Context, attempts int) (Device, Candidate, bool) {
	for _, cand := range s.cfg.Candidates() {
		if ctx.Err() != nil {
			return nil, Candidate{}, false
		}
		dev, err := s.opener.Open(cand.Index, cand.Backend)
		if err != nil {
			s.logger.Debug("camera candidate failed to open", "candidate", cand.String(), "error", err)
			continue
		}
		if s.warmup(ctx, dev, attempts) {
			return dev, cand, true
		}
		dev.Close()
		s.logger.Debug("camera candidate produced no live frame", "candidate", cand.String())
	}
	return nil, Candidate{}, false
}

func (s *Source) warmup(ctx context.Context, dev Device, attempts int) bool {
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return false
		}
		f, err := dev.Read()
		if err != nil || f.Empty() {
			continue
		}
		if f.Mean() > s.cfg.MinBrightness {
			return true
		}
	}
	return false
}
