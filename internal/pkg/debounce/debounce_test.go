package debounce_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/samirrijal/mapcore/internal/pkg/debounce"
)

func TestDebouncer_OnlyLastCallRuns(t *testing.T) {
	d := debounce.New(20 * time.Millisecond)
	var last atomic.Int32
	var calls atomic.Int32

	for i := 1; i <= 5; i++ {
		n := int32(i)
		d.Trigger(func() {
			calls.Add(1)
			last.Store(n)
		})
	}

	time.Sleep(100 * time.Millisecond)
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
	if last.Load() != 5 {
		t.Errorf("expected last trigger to win, got %d", last.Load())
	}
}

func TestDebouncer_Cancel(t *testing.T) {
	d := debounce.New(20 * time.Millisecond)
	var calls atomic.Int32
	d.Trigger(func() { calls.Add(1) })
	if !d.Pending() {
		t.Error("expected pending call")
	}
	d.Cancel()

	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 0 {
		t.Errorf("expected cancelled call not to run, got %d", calls.Load())
	}
}

func TestDebouncer_StopRejectsTriggers(t *testing.T) {
	d := debounce.New(10 * time.Millisecond)
	var calls atomic.Int32
	d.Stop()
	d.Trigger(func() { calls.Add(1) })

	time.Sleep(40 * time.Millisecond)
	if calls.Load() != 0 {
		t.Errorf("expected no calls after Stop, got %d", calls.Load())
	}
}
