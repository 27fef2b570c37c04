package player

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidSource is returned when no video id can be extracted.
var ErrInvalidSource = errors.New("player: invalid video source")

var videoIDPattern = regexp.MustCompile(`^.*(youtu\.be/|v/|u/\w/|embed/|watch\?v=|&v=)([^#&?]*).*`)

const videoIDLen = 11

// ParseVideoID extracts the 11-character video id from a watch, short,
// embed or legacy URL.
func ParseVideoID(source string) (string, error) {
	m := videoIDPattern.FindStringSubmatch(strings.TrimSpace(source))
	if m == nil || len(m[2]) != videoIDLen {
		return "", ErrInvalidSource
	}
	return m[2], nil
}
