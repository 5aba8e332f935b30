package camera

import "strings"

// Backend is a capture API. API carries OpenCV's VideoCaptureAPI value so
// this package stays free of cgo.
type Backend struct {
	Name string `json:"name"`
	API  int    `json:"api"`
}

// String implements fmt.Stringer.
func (b Backend) String() string {
	return b.Name
}

// Known capture backends.
var (
	BackendAny          = Backend{Name: "ANY", API: 0}
	BackendV4L2         = Backend{Name: "V4L2", API: 200}
	BackendDShow        = Backend{Name: "DSHOW", API: 700}
	BackendAVFoundation = Backend{Name: "AVFOUNDATION", API: 1200}
	BackendMSMF         = Backend{Name: "MSMF", API: 1400}
	BackendGStreamer    = Backend{Name: "GSTREAMER", API: 1800}
)

// Backends returns every known backend keyed by lower-case name.
func Backends() map[string]Backend {
	return map[string]Backend{
		"any":          BackendAny,
		"v4l2":         BackendV4L2,
		"dshow":        BackendDShow,
		"avfoundation": BackendAVFoundation,
		"msmf":         BackendMSMF,
		"gstreamer":    BackendGStreamer,
	}
}

// BackendByName looks up a backend by name (case-insensitive).
func BackendByName(name string) (Backend, bool) {
	b, ok := Backends()[strings.ToLower(strings.TrimSpace(name))]
	return b, ok
}

// BackendsFor returns the backend order for an operating system.
//
// On Windows MSMF is tried first and DSHOW second because some drivers
// only hand out black frames through one of them.
func BackendsFor(goos string) []Backend {
	switch goos {
	case "windows":
		return []Backend{BackendMSMF, BackendDShow, BackendAny}
	case "linux":
		return []Backend{BackendV4L2, BackendAny}
	case "darwin":
		return []Backend{BackendAVFoundation, BackendAny}
	default:
		return []Backend{BackendAny}
	}
}
