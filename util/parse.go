package util

import (
	"strconv"
	"strings"
)

// sizeUnits maps the accepted suffixes to binary multipliers. Longer
// suffixes come first so "KB" is never read as a bare "B".
var sizeUnits = []struct {
	suffix string
	bytes  int64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// ParseSize reads a human-readable binary size ("512KB", "2GB", "10mb")
// into a byte count. A bare number is taken as bytes. Anything that does
// not parse as a non-negative size yields fallback.
func ParseSize(s string, fallback int64) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return fallback
	}
	unit := int64(1)
	for _, u := range sizeUnits {
		if strings.HasSuffix(s, u.suffix) {
			unit = u.bytes
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return fallback
	}
	return n * unit
}

// FormatSize renders a byte count using the same binary units ParseSize
// accepts, keeping at most one decimal ("1.5MB", "2GB", "512B").
func FormatSize(bytes int64) string {
	render := func(unit int64, suffix string) string {
		s := strconv.FormatFloat(float64(bytes)/float64(unit), 'f', 1, 64)
		return strings.TrimSuffix(s, ".0") + suffix
	}
	switch {
	case bytes >= 1<<30:
		return render(1<<30, "GB")
	case bytes >= 1<<20:
		return render(1<<20, "MB")
	case bytes >= 1<<10:
		return render(1<<10, "KB")
	}
	return strconv.FormatInt(bytes, 10) + "B"
}

// MaskSecret keeps the first visible bytes of a credential for log
// output and hides the rest. Values too short to mask safely come back
// fully hidden.
func MaskSecret(s string, visible int) string {
	if visible < 0 {
		visible = 0
	}
	if len(s) <= visible {
		return "***"
	}
	return s[:visible] + "***"
}
