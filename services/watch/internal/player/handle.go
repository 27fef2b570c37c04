// Package player drives one embedded video player for a viewing session and
// turns its lifecycle into progress samples.
package player

import (
	"errors"
	"net/url"
	"strconv"
)

var (
	// ErrDestroyed is returned by a Handle after Destroy.
	ErrDestroyed = errors.New("player: destroyed")
	// ErrNotReady is returned by a Handle whose player has not reported ready.
	ErrNotReady = errors.New("player: not ready")
)

// State is the embed API play state.
type State int

const (
	StateUnstarted State = -1
	StateEnded     State = 0
	StatePlaying   State = 1
	StatePaused    State = 2
	StateBuffering State = 3
	StateCued      State = 5
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateEnded:
		return "ended"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateBuffering:
		return "buffering"
	case StateCued:
		return "cued"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Valid reports whether s is one of the embed API states.
func (s State) Valid() bool {
	switch s {
	case StateUnstarted, StateEnded, StatePlaying, StatePaused, StateBuffering, StateCued:
		return true
	}
	return false
}

// Handle is a live player instance. Any method may fail, for example when the
// player was torn down underneath the caller.
type Handle interface {
	SeekTo(seconds float64, allowSeekAhead bool) error
	CurrentTime() (float64, error)
	Duration() (float64, error)
	State() (State, error)
	Destroy() error
}

// PlayerVars are the construction parameters passed to the embed.
type PlayerVars struct {
	Start          int `json:"start,omitempty"`
	Autoplay       int `json:"autoplay"`
	Rel            int `json:"rel"`
	ModestBranding int `json:"modestbranding"`
}

// DefaultPlayerVars autoplays without related videos or heavy branding.
func DefaultPlayerVars(start float64) PlayerVars {
	v := PlayerVars{Autoplay: 1, Rel: 0, ModestBranding: 1}
	if start > 0 {
		v.Start = int(start)
	}
	return v
}

// EmbedURL returns the iframe URL for videoID with vars applied.
func EmbedURL(videoID string, vars PlayerVars) string {
	q := url.Values{}
	q.Set("autoplay", strconv.Itoa(vars.Autoplay))
	q.Set("rel", strconv.Itoa(vars.Rel))
	q.Set("modestbranding", strconv.Itoa(vars.ModestBranding))
	q.Set("enablejsapi", "1")
	if vars.Start > 0 {
		q.Set("start", strconv.Itoa(vars.Start))
	}
	return "https://www.youtube.com/embed/" + url.PathEscape(videoID) + "?" + q.Encode()
}

// Events are the callbacks a Runtime invokes for a player it constructed.
type Events struct {
	OnReady       func()
	OnStateChange func(State)
	OnError       func(code int)
}
