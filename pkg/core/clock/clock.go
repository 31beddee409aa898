// Package clock provides the cancellable delayed-task primitive used by every
// timed component in the server. Timer-driven transitions always re-check
// state validity in their callback, so a Cancel that loses the race with an
// already-fired task is harmless.
package clock

import (
	"sync"
	"time"
)

// Task is a handle to a scheduled callback.
type Task interface {
	// Cancel stops the task. It reports whether the callback was prevented
	// from running; false means the callback already fired or is running.
	Cancel() bool
}

// Clock schedules delayed callbacks and reads the current time.
type Clock interface {
	Now() time.Time
	// Schedule runs fn once after d on an unspecified goroutine.
	Schedule(d time.Duration, fn func()) Task
}

// System returns the real clock backed by time.AfterFunc.
func System() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Schedule(d time.Duration, fn func()) Task {
	return systemTask{timer: time.AfterFunc(d, fn)}
}

type systemTask struct {
	timer *time.Timer
}

func (t systemTask) Cancel() bool { return t.timer.Stop() }

// Fake is a manually advanced clock for tests. Callbacks run synchronously
// on the goroutine calling Advance, in due-time order.
type Fake struct {
	mu    sync.Mutex
	now   time.Time
	next  int
	tasks map[int]*fakeTask
}

// NewFake returns a fake clock starting at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start, tasks: make(map[int]*fakeTask)}
}

type fakeTask struct {
	clock *Fake
	id    int
	due   time.Time
	fn    func()
}

func (t *fakeTask) Cancel() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if _, ok := t.clock.tasks[t.id]; !ok {
		return false
	}
	delete(t.clock.tasks, t.id)
	return true
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Schedule(d time.Duration, fn func()) Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	task := &fakeTask{clock: f, id: f.next, due: f.now.Add(d), fn: fn}
	f.tasks[task.id] = task
	return task
}

// Advance moves the clock forward by d, firing due callbacks in order.
// A callback may schedule follow-up tasks; those fire too if they fall
// within the advanced window.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		var due *fakeTask
		for _, t := range f.tasks {
			if t.due.After(target) {
				continue
			}
			if due == nil || t.due.Before(due.due) || (t.due.Equal(due.due) && t.id < due.id) {
				due = t
			}
		}
		if due == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		delete(f.tasks, due.id)
		if due.due.After(f.now) {
			f.now = due.due
		}
		f.mu.Unlock()
		due.fn()
	}
}

// Pending reports the number of scheduled, unfired tasks.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}
