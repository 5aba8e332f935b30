package opencv

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/frame"
	"github.com/teslashibe/go-proctor/pkg/gaze"
	"github.com/teslashibe/go-proctor/pkg/session"
	"gocv.io/x/gocv"
)

var (
	colorOK      = color.RGBA{0, 200, 0, 0}
	colorAlert   = color.RGBA{255, 0, 0, 0}
	colorObject  = color.RGBA{255, 50, 0, 0}
	colorWarn    = color.RGBA{255, 100, 0, 0}
	colorMuted   = color.RGBA{200, 200, 200, 0}
	colorTitle   = color.RGBA{255, 200, 80, 0}
	colorWhite   = color.RGBA{255, 255, 255, 0}
	colorBanner  = color.RGBA{220, 0, 0, 0}
	colorPanel   = color.RGBA{10, 10, 10, 0}
	colorSecure  = color.RGBA{50, 140, 0, 0}
	colorEyeBox  = color.RGBA{255, 255, 0, 0}
	colorExtra   = color.RGBA{255, 0, 255, 0}
)

const font = gocv.FontHersheyDuplex

// Renderer draws the monitoring overlay on a copy of the frame and
// encodes it as JPEG.
type Renderer struct {
	Quality int  // JPEG quality, 1-100
	HUD     bool // Draw the status panel and banner
}

// NewRenderer returns a renderer with the status panel on.
func NewRenderer() *Renderer {
	return &Renderer{Quality: 80, HUD: true}
}

// Encode implements the dashboard frame encoder. The captured frame is
// never modified.
func (r *Renderer) Encode(f frame.Frame, snap session.Snapshot) ([]byte, error) {
	img, err := ToMat(f)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	r.draw(&img, snap)
	return EncodeJPEG(img, r.Quality)
}

func (r *Renderer) draw(img *gocv.Mat, snap session.Snapshot) {
	w, h := img.Cols(), img.Rows()

	for i, b := range snap.Face.Boxes {
		c := colorOK
		if i > 0 {
			c = colorExtra
		} else if snap.Face.Gaze != gaze.Forward {
			c = colorWarn
		}
		gocv.Rectangle(img, b.Rect(), c, 2)
	}
	for _, e := range snap.Face.Eyes {
		gocv.Rectangle(img, e.Rect(), colorEyeBox, 1)
	}
	for _, o := range snap.Objects {
		drawObject(img, o)
	}

	if !r.HUD {
		return
	}

	blend(img, image.Rect(0, 0, min(260, w), min(135, h)), colorPanel, 0.65)
	gocv.PutText(img, "PROCTOR MONITOR", image.Pt(10, 22), font, 0.5, colorTitle, 1)

	faceText, faceColor := "MISSING", colorAlert
	if snap.Face.Present {
		faceText, faceColor = "DETECTED", colorOK
	}
	gazeColor := colorOK
	if snap.Face.Gaze != gaze.Forward {
		gazeColor = colorWarn
	}
	objText, objColor := "CLEAR", colorOK
	if len(snap.Objects) > 0 {
		objText, objColor = "DETECTED", colorAlert
	}
	gocv.PutText(img, "FACE  : "+faceText, image.Pt(10, 46), font, 0.48, faceColor, 1)
	gocv.PutText(img, "GAZE  : "+snap.Face.Gaze.String(), image.Pt(10, 66), font, 0.48, gazeColor, 1)
	gocv.PutText(img, "EYES  : "+snap.Face.EyeStatus.String(), image.Pt(10, 86), font, 0.48, colorMuted, 1)
	gocv.PutText(img, "OBJECT: "+objText, image.Pt(10, 106), font, 0.48, objColor, 1)
	motionText, motionColor := "STILL", colorOK
	if snap.MovementAlert {
		motionText, motionColor = "MOVING", colorWarn
	}
	gocv.PutText(img, "MOTION: "+motionText, image.Pt(10, 126), font, 0.48, motionColor, 1)

	risk := fmt.Sprintf("RISK %d %s", snap.Risk, strings.ToUpper(string(snap.Band)))
	gocv.PutText(img, risk, image.Pt(max(w-170, 0), 22), font, 0.45, colorMuted, 1)

	switch {
	case snap.Warning != "":
		blend(img, image.Rect(0, h-40, w, h), colorBanner, 0.8)
		gocv.PutText(img, snap.Warning, image.Pt(20, h-14), font, 0.6, colorWhite, 2)
	case !snap.Empty():
		blend(img, image.Rect(0, h-65, w, h), colorBanner, 0.8)
		gocv.PutText(img, "MALPRACTICE DETECTED", image.Pt(30, h-42), font, 0.65, colorWhite, 2)
		gocv.PutText(img, strings.ToUpper(snap.Events[0].Detail), image.Pt(30, h-18), font, 0.45, colorWhite, 1)
		gocv.Rectangle(img, image.Rect(0, 0, w-1, h-1), colorAlert, 4)
	case snap.MovementAlert:
		gocv.Rectangle(img, image.Rect(0, 0, w-1, h-1), colorWarn, 3)
		label(img, "MOVEMENT DETECTED", image.Pt(w/2-90, h-15), 0.5, colorWhite, colorWarn)
	default:
		gocv.Rectangle(img, image.Rect(0, 0, w-1, h-1), colorSecure, 2)
		label(img, "SECURE - NO VIOLATIONS", image.Pt(w/2-110, h-15), 0.5, colorWhite, colorSecure)
	}
}

func drawObject(img *gocv.Mat, o detection.Record) {
	r := o.Box.Rect()
	gocv.Rectangle(img, r, colorObject, 3)
	text := fmt.Sprintf("%s %.0f%%", o.Label, o.Confidence*100)
	label(img, text, image.Pt(r.Min.X, max(r.Min.Y-12, 18)), 0.5, colorWhite, colorBanner)
}

// label draws text on a solid background.
func label(img *gocv.Mat, text string, at image.Point, scale float64, fg, bg color.RGBA) {
	const pad = 6
	sz := gocv.GetTextSize(text, font, scale, 1)
	gocv.Rectangle(img, image.Rect(at.X-pad, at.Y-sz.Y-pad, at.X+sz.X+pad, at.Y+pad), bg, -1)
	gocv.PutText(img, text, at, font, scale, fg, 1)
}

// blend fills r with c at the given opacity.
func blend(img *gocv.Mat, r image.Rectangle, c color.RGBA, alpha float64) {
	r = r.Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
	if r.Empty() {
		return
	}
	roi := img.Region(r)
	defer roi.Close()

	fill := roi.Clone()
	defer fill.Close()
	fill.SetTo(gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0))
	gocv.AddWeighted(fill, alpha, roi, 1-alpha, 0, &roi)
}

// EncodeJPEG encodes a Mat as JPEG.
func EncodeJPEG(img gocv.Mat, quality int) ([]byte, error) {
	if img.Empty() {
		return nil, ErrEmptyImage
	}
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory freed by Close.
	return append([]byte(nil), buf.GetBytes()...), nil
}

// EncodeFrame encodes a frame as JPEG without any overlay.
func EncodeFrame(f frame.Frame, quality int) ([]byte, error) {
	img, err := ToMat(f)
	if err != nil {
		return nil, err
	}
	defer img.Close()
	return EncodeJPEG(img, quality)
}
