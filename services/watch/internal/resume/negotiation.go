// Package resume decides, for one viewing session, whether to offer resuming
// from saved progress and turns the viewer's choice into a start offset.
package resume

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/example/movieon/internal/platform/logging"
	"github.com/example/movieon/services/watch/internal/progress"
)

// ErrNoPendingChoice is returned when a decision is made outside
// ProgressAvailable.
var ErrNoPendingChoice = errors.New("resume: no pending choice")

type State int

const (
	Idle State = iota
	ProgressAvailable
	ResumeChosen
	RestartChosen
	Resolved
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ProgressAvailable:
		return "progress_available"
	case ResumeChosen:
		return "resume_chosen"
	case RestartChosen:
		return "restart_chosen"
	case Resolved:
		return "resolved"
	default:
		return "unknown"
	}
}

type Choice string

const (
	ChoiceResume  Choice = "resume"
	ChoiceRestart Choice = "restart"
)

// Decision tells the caller where playback starts.
type Decision struct {
	Choice  Choice  `json:"choice"`
	StartAt float64 `json:"start_at"`
}

// Prompt is what the caller renders while a choice is pending.
type Prompt struct {
	CurrentTime float64 `json:"current_time"`
	Label       string  `json:"label"`
}

// Clearer drops the stored record when the viewer restarts.
type Clearer interface {
	ClearProgress(ctx context.Context)
}

// Source pushes controller changes.
type Source interface {
	Subscribe(fn func(progress.Change)) (cancel func())
}

// Negotiation is the Idle -> ProgressAvailable -> chosen -> Resolved flow.
type Negotiation struct {
	clear Clearer
	log   *zap.Logger

	mu       sync.Mutex
	state    State
	record   progress.WatchProgress
	decision *Decision
}

func New(clear Clearer, log *zap.Logger) *Negotiation {
	return &Negotiation{clear: clear, log: logging.OrNop(log)}
}

// Offer presents a loaded record. It only leaves Idle for a resumable record
// with a non-zero position and reports whether a choice is now pending.
func (n *Negotiation) Offer(p progress.WatchProgress, ok bool) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != Idle {
		return false
	}
	if !ok || p.CurrentTime <= 0 || p.Finished() {
		return false
	}
	n.state = ProgressAvailable
	n.record = p
	return true
}

// Prompt returns the pending choice, if any.
func (n *Negotiation) Prompt() (Prompt, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != ProgressAvailable {
		return Prompt{}, false
	}
	return Prompt{CurrentTime: n.record.CurrentTime, Label: FormatElapsed(n.record.CurrentTime)}, true
}

// Resume starts playback at the saved position and leaves the record as is.
func (n *Negotiation) Resume() (Decision, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != ProgressAvailable {
		return Decision{}, ErrNoPendingChoice
	}
	n.state = ResumeChosen
	d := Decision{Choice: ChoiceResume, StartAt: n.record.CurrentTime}
	n.resolve(d)
	return d, nil
}

// Restart clears the saved record and starts playback at zero.
func (n *Negotiation) Restart(ctx context.Context) (Decision, error) {
	n.mu.Lock()
	if n.state != ProgressAvailable {
		n.mu.Unlock()
		return Decision{}, ErrNoPendingChoice
	}
	n.state = RestartChosen
	n.mu.Unlock()

	if n.clear != nil {
		n.clear.ClearProgress(ctx)
	}

	d := Decision{Choice: ChoiceRestart, StartAt: 0}
	n.mu.Lock()
	n.resolve(d)
	n.mu.Unlock()
	return d, nil
}

func (n *Negotiation) resolve(d Decision) {
	n.state = Resolved
	n.decision = &d
	n.log.Debug("resume: resolved", zap.String("choice", string(d.Choice)), zap.Float64("start_at", d.StartAt))
}

func (n *Negotiation) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Decision returns the resolved decision.
func (n *Negotiation) Decision() (Decision, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.decision == nil {
		return Decision{}, false
	}
	return *n.decision, true
}

// Reset returns to Idle for a new movie.
func (n *Negotiation) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = Idle
	n.record = progress.WatchProgress{}
	n.decision = nil
}

// Attach offers every Loaded change from src. Saves during playback never
// re-open the prompt.
func (n *Negotiation) Attach(src Source) (detach func()) {
	return src.Subscribe(func(ch progress.Change) {
		if ch.Kind != progress.Loaded {
			return
		}
		n.Offer(ch.Progress, ch.Available)
	})
}
