package clock

import (
	"testing"
	"time"
)

func TestFake_FiresInDueOrder(t *testing.T) {
	f := NewFake(time.Unix(0, 0))

	var order []string
	f.Schedule(3*time.Second, func() { order = append(order, "c") })
	f.Schedule(1*time.Second, func() { order = append(order, "a") })
	f.Schedule(2*time.Second, func() { order = append(order, "b") })

	f.Advance(5 * time.Second)

	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("order = %v, want [a b c]", order)
	}
	if f.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", f.Pending())
	}
}

func TestFake_CancelPreventsCallback(t *testing.T) {
	f := NewFake(time.Unix(0, 0))

	fired := false
	task := f.Schedule(time.Second, func() { fired = true })
	if !task.Cancel() {
		t.Fatal("first Cancel should report true")
	}
	if task.Cancel() {
		t.Fatal("second Cancel should report false")
	}

	f.Advance(2 * time.Second)
	if fired {
		t.Fatal("cancelled task must not fire")
	}
}

func TestFake_CallbackCanScheduleFollowUp(t *testing.T) {
	f := NewFake(time.Unix(0, 0))

	ticks := 0
	var tick func()
	tick = func() {
		ticks++
		if ticks < 3 {
			f.Schedule(time.Second, tick)
		}
	}
	f.Schedule(time.Second, tick)

	f.Advance(10 * time.Second)
	if ticks != 3 {
		t.Fatalf("ticks = %d, want 3", ticks)
	}
	if got := f.Now(); !got.Equal(time.Unix(10, 0)) {
		t.Fatalf("now = %v, want %v", got, time.Unix(10, 0))
	}
}

func TestFake_AdvanceStopsAtTarget(t *testing.T) {
	f := NewFake(time.Unix(0, 0))

	fired := false
	f.Schedule(30*time.Second, func() { fired = true })

	f.Advance(29 * time.Second)
	if fired {
		t.Fatal("task before its due time must not fire")
	}
	if f.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", f.Pending())
	}

	f.Advance(time.Second)
	if !fired {
		t.Fatal("task must fire once due")
	}
}

func TestSystem_ScheduleAndCancel(t *testing.T) {
	c := System()

	ch := make(chan struct{})
	c.Schedule(time.Millisecond, func() { close(ch) })
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("scheduled callback never fired")
	}

	task := c.Schedule(time.Hour, func() {})
	if !task.Cancel() {
		t.Fatal("Cancel of a far-future task should report true")
	}
}
