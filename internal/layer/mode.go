package layer

import (
	"errors"
	"fmt"
)

// Mode is the display state of a layer.
type Mode int

const (
	Closed Mode = iota
	Opening
	Open
	Closing
)

func (m Mode) String() string {
	switch m {
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Stable reports whether no transition is in flight.
func (m Mode) Stable() bool {
	return m == Closed || m == Open
}

type modeEvent int

const (
	evOpen modeEvent = iota
	evOpened
	evClose
	evClosed
)

func (e modeEvent) String() string {
	switch e {
	case evOpen:
		return "open"
	case evOpened:
		return "opened"
	case evClose:
		return "close"
	case evClosed:
		return "closed"
	default:
		return fmt.Sprintf("modeEvent(%d)", int(e))
	}
}

var (
	// ErrTransitionInProgress is returned when a toggle arrives while
	// an open or close animation has not finished yet.
	ErrTransitionInProgress = errors.New("layer transition in progress")
	// errNoTransition marks an event with no edge from the current mode.
	errNoTransition = errors.New("no transition")
)

// modeTable lists every legal edge. Anything absent is rejected.
var modeTable = map[Mode]map[modeEvent]Mode{
	Closed:  {evOpen: Opening},
	Opening: {evOpened: Open},
	Open:    {evClose: Closing},
	Closing: {evClosed: Closed},
}

// next returns the mode reached from m on ev.
func (m Mode) next(ev modeEvent) (Mode, error) {
	if to, ok := modeTable[m][ev]; ok {
		return to, nil
	}
	if !m.Stable() && (ev == evOpen || ev == evClose) {
		return m, fmt.Errorf("%s while %s: %w", ev, m, ErrTransitionInProgress)
	}
	return m, fmt.Errorf("%s while %s: %w", ev, m, errNoTransition)
}
