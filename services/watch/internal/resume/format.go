package resume

import (
	"fmt"
	"math"
)

const maxElapsed = 1 << 62

// FormatElapsed renders seconds as h:mm:ss, or m:ss when under an hour.
// Fractions are truncated and negative input renders as 0:00. Values past
// maxElapsed are clamped so the integer conversion cannot overflow.
func FormatElapsed(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	if seconds > maxElapsed {
		seconds = maxElapsed
	}
	total := int64(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
