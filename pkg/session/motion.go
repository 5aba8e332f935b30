package session

import "github.com/teslashibe/go-proctor/pkg/frame"

// motion flags movement between consecutive live frames by counting the
// luma pixels that changed by more than delta.
type motion struct {
	delta    int
	fraction float64

	prev          []byte
	width, height int
}

func newMotion(cfg Config) motion {
	return motion{delta: cfg.MovementDelta, fraction: cfg.MovementFraction}
}

// observe compares f with the previous live frame and keeps f as the new
// reference. Placeholder frames break the sequence, so the first live
// frame after an outage never alerts.
func (m *motion) observe(f frame.Frame) bool {
	if m.fraction <= 0 {
		return false
	}
	if f.Placeholder || f.Empty() {
		m.prev = nil
		return false
	}

	gray := f.Gray()
	moved := false
	if m.prev != nil && m.width == f.Width && m.height == f.Height {
		changed := frame.ChangedPixels(m.prev, gray, m.delta)
		moved = float64(changed) > m.fraction*float64(len(gray))
	}
	m.prev, m.width, m.height = gray, f.Width, f.Height
	return moved
}
