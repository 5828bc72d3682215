package playback

import "time"

// DefaultRepeatDelay is the pause between two repetitions of an utterance.
const DefaultRepeatDelay = 500 * time.Millisecond

// Task is a scheduled callback that can be cancelled before it fires.
type Task interface {
	// Stop prevents the callback from running. It reports false if the
	// callback already ran or was already stopped.
	Stop() bool
}

// Scheduler runs a callback once after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Task
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(d time.Duration, f func()) Task

// AfterFunc calls fn(d, f).
func (fn SchedulerFunc) AfterFunc(d time.Duration, f func()) Task { return fn(d, f) }

// timerScheduler schedules on the runtime timer.
var timerScheduler = SchedulerFunc(func(d time.Duration, f func()) Task {
	return time.AfterFunc(d, f)
})
