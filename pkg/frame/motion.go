package frame

// Gray returns the luma plane of the frame, one byte per pixel, using
// BT.601 weights in fixed point. Empty frames give nil.
func (f Frame) Gray() []byte {
	if f.Empty() {
		return nil
	}
	n := f.Width * f.Height
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		p := f.Pixels[i*Channels : i*Channels+Channels]
		out[i] = byte((29*uint32(p[0]) + 150*uint32(p[1]) + 77*uint32(p[2])) >> 8)
	}
	return out
}

// ChangedPixels counts positions where a and b differ by more than
// delta. Only the common prefix of the two planes is compared.
func ChangedPixels(a, b []byte, delta int) int {
	n := min(len(a), len(b))
	changed := 0
	for i := 0; i < n; i++ {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		if d > delta {
			changed++
		}
	}
	return changed
}
