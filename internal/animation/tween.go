// Package animation moves layer elements between their closed and open
// positions over a fixed duration. Nothing here runs on its own
// goroutine: the owner calls Advance from its frame or tick loop, and
// every Done callback fires inside that call.
package animation

import (
	"time"

	"github.com/Mr-Dark-debug/layerlens/internal/layer"
)

// DefaultDuration is how long an open or close takes.
const DefaultDuration = 600 * time.Millisecond

// Easing maps linear progress in [0,1] onto eased progress in [0,1].
type Easing func(t float64) float64

// Linear is the identity easing.
func Linear(t float64) float64 { return t }

// EaseInOutCubic accelerates through the first half and decelerates
// through the second.
func EaseInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	f := 2*t - 2
	return 0.5*f*f*f + 1
}

type direction int

const (
	opening direction = iota
	closing
)

func (d direction) String() string {
	if d == opening {
		return "open"
	}
	return "close"
}

type tween struct {
	dir     direction
	t       layer.Transition
	elapsed time.Duration
}

// QueueTween is a layer.Animator that steps transitions on demand.
// Transitions for different layers run side by side.
type QueueTween struct {
	Duration time.Duration
	Ease     Easing

	queue []*tween
}

var _ layer.Animator = (*QueueTween)(nil)

// NewQueueTween returns an animator with the given duration. A
// non-positive duration finishes transitions on the next Advance.
func NewQueueTween(d time.Duration) *QueueTween {
	return &QueueTween{Duration: d, Ease: EaseInOutCubic}
}

func (q *QueueTween) OpenLayer(t layer.Transition)  { q.enqueue(opening, t) }
func (q *QueueTween) CloseLayer(t layer.Transition) { q.enqueue(closing, t) }

func (q *QueueTween) enqueue(dir direction, t layer.Transition) {
	if len(t.From) != len(t.Elements) || len(t.To) != len(t.Elements) {
		layer.Logf("[WARN] layer %d %s: %d elements, %d from, %d to",
			t.LayerIndex, dir, len(t.Elements), len(t.From), len(t.To))
	}
	q.queue = append(q.queue, &tween{dir: dir, t: t})
}

// Busy reports whether any transition is pending.
func (q *QueueTween) Busy() bool { return len(q.queue) > 0 }

// Pending is the number of queued transitions.
func (q *QueueTween) Pending() int { return len(q.queue) }

// Advance moves every pending transition forward by dt and finishes
// those that reached the end. It returns how many finished.
func (q *QueueTween) Advance(dt time.Duration) int {
	if len(q.queue) == 0 {
		return 0
	}

	var running, finished []*tween
	for _, tw := range q.queue {
		tw.elapsed += dt
		p := q.progress(tw.elapsed)
		apply(tw.t, q.ease(p))
		if p >= 1 {
			finished = append(finished, tw)
		} else {
			running = append(running, tw)
		}
	}
	// Done may queue a follow-up transition, so swap the queue first.
	q.queue = running
	for _, tw := range finished {
		if tw.t.Done != nil {
			tw.t.Done()
		}
	}
	return len(finished)
}

// Flush finishes everything pending immediately.
func (q *QueueTween) Flush() int {
	n := 0
	for q.Busy() {
		n += q.Advance(q.Duration + time.Nanosecond)
	}
	return n
}

func (q *QueueTween) progress(elapsed time.Duration) float64 {
	if q.Duration <= 0 || elapsed >= q.Duration {
		return 1
	}
	return float64(elapsed) / float64(q.Duration)
}

func (q *QueueTween) ease(p float64) float64 {
	if q.Ease == nil || p >= 1 {
		return p
	}
	return q.Ease(p)
}

func apply(t layer.Transition, p float64) {
	for i, el := range t.Elements {
		if i >= len(t.From) || i >= len(t.To) {
			break
		}
		el.SetPosition(t.From[i].Lerp(t.To[i], p))
	}
}
