package opencv

import (
	"encoding/base64"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/teslashibe/go-proctor/pkg/frame"
	"gocv.io/x/gocv"
)

// MinAnalyzeWidth is the width uploaded images are upscaled to so small
// objects stay detectable.
const MinAnalyzeWidth = 640

// DecodeImage decodes an encoded image (JPEG, PNG, ...) into a frame,
// upscaling it to MinAnalyzeWidth if narrower.
func DecodeImage(data []byte) (frame.Frame, error) {
	if len(data) == 0 {
		return frame.Frame{}, ErrEmptyImage
	}
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return frame.Frame{}, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return frame.Frame{}, ErrEmptyImage
	}

	if w := img.Cols(); w < MinAnalyzeWidth {
		h := img.Rows() * MinAnalyzeWidth / w
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(img, &resized, image.Pt(MinAnalyzeWidth, h), 0, 0, gocv.InterpolationLanczos4)
		return FromMat(resized, 1, time.Now())
	}
	return FromMat(img, 1, time.Now())
}

// DecodeBase64 accepts plain base64 or a data URL.
func DecodeBase64(s string) (frame.Frame, error) {
	if _, payload, ok := strings.Cut(s, ","); ok {
		s = payload
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return frame.Frame{}, fmt.Errorf("decode base64: %w", err)
	}
	return DecodeImage(data)
}
