package layer

import (
	"errors"
	"testing"
)

func TestModeTable(t *testing.T) {
	tests := []struct {
		from    Mode
		ev      modeEvent
		want    Mode
		wantErr error
	}{
		{Closed, evOpen, Opening, nil},
		{Opening, evOpened, Open, nil},
		{Open, evClose, Closing, nil},
		{Closing, evClosed, Closed, nil},

		{Opening, evOpen, Opening, ErrTransitionInProgress},
		{Opening, evClose, Opening, ErrTransitionInProgress},
		{Closing, evOpen, Closing, ErrTransitionInProgress},
		{Closing, evClose, Closing, ErrTransitionInProgress},

		{Closed, evClose, Closed, errNoTransition},
		{Open, evOpen, Open, errNoTransition},
		{Closed, evOpened, Closed, errNoTransition},
		{Open, evClosed, Open, errNoTransition},
	}

	for _, tt := range tests {
		got, err := tt.from.next(tt.ev)
		if got != tt.want {
			t.Errorf("%s on %s: got %s, want %s", tt.from, tt.ev, got, tt.want)
		}
		if tt.wantErr == nil && err != nil {
			t.Errorf("%s on %s: unexpected error %v", tt.from, tt.ev, err)
		}
		if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
			t.Errorf("%s on %s: got error %v, want %v", tt.from, tt.ev, err, tt.wantErr)
		}
	}
}

func TestModeStable(t *testing.T) {
	for m, want := range map[Mode]bool{Closed: true, Opening: false, Open: true, Closing: false} {
		if m.Stable() != want {
			t.Errorf("%s.Stable() = %v", m, m.Stable())
		}
	}
}
