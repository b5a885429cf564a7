package animation

import (
	"math"
	"testing"
	"time"

	"github.com/Mr-Dark-debug/layerlens/internal/channel"
	"github.com/Mr-Dark-debug/layerlens/internal/layer"
	"github.com/Mr-Dark-debug/layerlens/internal/scene"
)

func TestEaseInOutCubic(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{0.25, 0.0625},
		{0.75, 0.9375},
	}
	for _, tt := range tests {
		if got := EaseInOutCubic(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("EaseInOutCubic(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func newLayer(t *testing.T, q *QueueTween) *layer.Layer2d {
	t.Helper()
	l := layer.NewLayer2d(layer.Deps{
		Scene:    scene.NewScene(),
		Factory:  scene.NewFactory(scene.DefaultPalette()),
		Animator: q,
		Pipeline: channel.Pipeline{},
	})
	l.LoadLayerConfig(layer.LayerConfig{Name: "conv", Width: 4, Depth: 3})
	if err := l.Assemble(0); err != nil {
		t.Fatal(err)
	}
	if err := l.Init(layer.Vec3{}, 1, layer.Vec3{}); err != nil {
		t.Fatal(err)
	}
	return l
}

func TestQueueTweenOpensOverTime(t *testing.T) {
	q := NewQueueTween(100 * time.Millisecond)
	q.Ease = Linear
	l := newLayer(t, q)

	done, err := l.OpenLayer()
	if err != nil {
		t.Fatal(err)
	}
	if !q.Busy() || l.Mode() != layer.Opening {
		t.Fatalf("busy=%v mode=%s", q.Busy(), l.Mode())
	}

	if n := q.Advance(50 * time.Millisecond); n != 0 {
		t.Fatalf("finished %d transitions halfway", n)
	}
	want := l.OpenCenters()
	for i, g := range l.GridElements() {
		if got := g.Position().Z; math.Abs(got-want[i].Z/2) > 1e-9 {
			t.Errorf("grid %d halfway at z=%v, want %v", i, got, want[i].Z/2)
		}
	}

	if n := q.Advance(60 * time.Millisecond); n != 1 {
		t.Fatalf("expected 1 finished transition, got %d", n)
	}
	select {
	case <-done:
	default:
		t.Fatal("done not closed")
	}
	if l.Mode() != layer.Open || q.Busy() {
		t.Fatalf("mode=%s busy=%v", l.Mode(), q.Busy())
	}
	for i, g := range l.GridElements() {
		if g.Position() != want[i] {
			t.Errorf("grid %d ended at %+v, want %+v", i, g.Position(), want[i])
		}
	}
}

func TestQueueTweenCloseThenFlush(t *testing.T) {
	q := NewQueueTween(time.Second)
	l := newLayer(t, q)

	l.OpenLayer()
	if n := q.Flush(); n != 1 {
		t.Fatalf("Flush finished %d", n)
	}

	done, err := l.CloseLayer()
	if err != nil {
		t.Fatal(err)
	}
	q.Advance(10 * time.Millisecond)
	if l.Mode() != layer.Closing {
		t.Fatalf("expected closing, got %s", l.Mode())
	}

	q.Flush()
	select {
	case <-done:
	default:
		t.Fatal("close not signalled")
	}
	if l.Mode() != layer.Closed || l.Aggregation() == nil {
		t.Fatalf("mode=%s aggregation=%v", l.Mode(), l.Aggregation())
	}
}

func TestZeroDurationFinishesOnFirstAdvance(t *testing.T) {
	q := NewQueueTween(0)
	l := newLayer(t, q)

	l.OpenLayer()
	if n := q.Advance(0); n != 1 {
		t.Fatalf("expected 1 finished, got %d", n)
	}
	if l.Mode() != layer.Open {
		t.Fatalf("expected open, got %s", l.Mode())
	}
}

func TestAdvanceIdle(t *testing.T) {
	q := NewQueueTween(DefaultDuration)
	if q.Advance(time.Second) != 0 || q.Busy() {
		t.Error("idle animator reported work")
	}
}
