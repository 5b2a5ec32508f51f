package timer_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/timer"
)

func TestNearestDeadlineEmptyWheelFallsBack(t *testing.T) {
	w := timer.New()
	d := w.NearestDeadline()
	if d < 59*time.Second {
		t.Errorf("NearestDeadline() = %v, want ~60s fallback", d)
	}
}

func TestScheduleFiresOnFireDue(t *testing.T) {
	w := timer.New()
	var fired int32

	w.Schedule(10*time.Millisecond, func() {
		atomic.AddInt32(&fired, 1)
	})

	if w.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", w.Pending())
	}

	time.Sleep(20 * time.Millisecond)
	w.FireDue()

	if atomic.LoadInt32(&fired) != 1 {
		t.Errorf("callback fired %d times, want 1", fired)
	}
	if w.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0 after firing", w.Pending())
	}
}

func TestFireDueOnlyFiresExpiredEntries(t *testing.T) {
	w := timer.New()
	var early, late int32

	w.Schedule(5*time.Millisecond, func() { atomic.AddInt32(&early, 1) })
	w.Schedule(time.Hour, func() { atomic.AddInt32(&late, 1) })

	time.Sleep(10 * time.Millisecond)
	w.FireDue()

	if atomic.LoadInt32(&early) != 1 {
		t.Errorf("early callback fired %d times, want 1", early)
	}
	if atomic.LoadInt32(&late) != 0 {
		t.Errorf("late callback fired %d times, want 0", late)
	}
	if w.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1 (late timer still pending)", w.Pending())
	}
}

func TestNearestDeadlineOrdersByEarliest(t *testing.T) {
	w := timer.New()
	w.Schedule(time.Hour, func() {})
	w.Schedule(50*time.Millisecond, func() {})

	d := w.NearestDeadline()
	if d > 100*time.Millisecond {
		t.Errorf("NearestDeadline() = %v, want ~50ms", d)
	}
}
