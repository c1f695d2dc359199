package cdn

import (
	"net/url"
	"strconv"
	"strings"
)

// Fit modes accepted by the image pipeline.
const (
	FitCover   = "cover"
	FitContain = "contain"
	FitFill    = "fill"
	FitInside  = "inside"
	FitOutside = "outside"
)

const (
	maxQuality = 100
	maxEffect  = 250
)

// ImageTransform describes an on-the-fly image derivation encoded into CDN
// URL query parameters. The zero value emits no parameters.
type ImageTransform struct {
	// Width and Height bound the output size in pixels.
	Width  int
	Height int

	// Fit selects how the image is fitted into Width x Height (one of the
	// Fit* constants).
	Fit string

	// Format requests an output format, for example "webp" or "avif".
	Format string

	// Quality is the encoder quality, capped at 100.
	Quality int

	// Sharpen and Blur are effect strengths, capped at 250.
	Sharpen int
	Blur    int

	// Rotate is the clockwise rotation in degrees.
	Rotate int

	// Progressive requests progressive encoding where the format supports it.
	Progressive bool
}

// encode renders the transform as query parameters in canonical order
// (w, h, fit, f, q, sharpen, blur, rotate, progressive). Zero and negative
// numeric fields are treated as unset; out-of-range values are capped.
func (t *ImageTransform) encode() string {
	if t == nil {
		return ""
	}
	var b strings.Builder
	add := func(k, v string) {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(v))
	}
	if t.Width > 0 {
		add("w", strconv.Itoa(t.Width))
	}
	if t.Height > 0 {
		add("h", strconv.Itoa(t.Height))
	}
	if t.Fit != "" {
		add("fit", t.Fit)
	}
	if t.Format != "" {
		add("f", t.Format)
	}
	if t.Quality > 0 {
		add("q", strconv.Itoa(min(t.Quality, maxQuality)))
	}
	if t.Sharpen > 0 {
		add("sharpen", strconv.Itoa(min(t.Sharpen, maxEffect)))
	}
	if t.Blur > 0 {
		add("blur", strconv.Itoa(min(t.Blur, maxEffect)))
	}
	if t.Rotate != 0 {
		add("rotate", strconv.Itoa(t.Rotate))
	}
	if t.Progressive {
		add("progressive", "true")
	}
	return b.String()
}
