package session

import (
	"sync"
	"time"
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. Tests swap in a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock runs callbacks on the runtime timer.
var RealClock Clock = realClock{}

type taskState int

const (
	taskIdle taskState = iota
	taskScheduled
	taskRunning
	taskPaused
)

func (s taskState) String() string {
	switch s {
	case taskIdle:
		return "idle"
	case taskScheduled:
		return "scheduled"
	case taskRunning:
		return "running"
	case taskPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// refreshTask owns the single periodic refresh timer of a session. A fire from
// a timer that was replaced or stopped is dropped by the sequence check.
type refreshTask struct {
	clock    Clock
	interval time.Duration
	fire     func()

	mu    sync.Mutex
	state taskState
	timer Timer
	seq   uint64
}

func newRefreshTask(clock Clock, interval time.Duration, fire func()) *refreshTask {
	return &refreshTask{clock: clock, interval: interval, fire: fire}
}

// reset replaces any live timer with a fresh one. A paused task stays paused.
func (t *refreshTask) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == taskPaused {
		return
	}
	t.stopLocked()
	t.seq++
	seq := t.seq
	t.state = taskScheduled
	t.timer = t.clock.AfterFunc(t.interval, func() { t.onFire(seq) })
}

func (t *refreshTask) onFire(seq uint64) {
	t.mu.Lock()
	if seq != t.seq || t.state != taskScheduled {
		t.mu.Unlock()
		return
	}
	t.state = taskRunning
	t.timer = nil
	t.mu.Unlock()

	t.fire()
}

// done returns a running task to idle once its pass has been started.
func (t *refreshTask) done() {
	t.mu.Lock()
	if t.state == taskRunning {
		t.state = taskIdle
	}
	t.mu.Unlock()
}

func (t *refreshTask) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	if t.state != taskPaused {
		t.state = taskIdle
	}
}

func (t *refreshTask) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.seq++
}

func (t *refreshTask) pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.state = taskPaused
}

// resume leaves the paused state without scheduling; callers reset when a
// timer is wanted.
func (t *refreshTask) resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == taskPaused {
		t.state = taskIdle
	}
}

func (t *refreshTask) current() taskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
