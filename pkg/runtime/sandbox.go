package runtime

import "fmt"

// Runtime is the top-level ECMAScript execution context: the global
// object plus the Job Queue this module's async primitives drain
// through. It wraps the existing AsyncRuntime microtask queue
// (async.go) rather than reimplementing one, adapting
// ScheduleMicrotask's bare func() callback to carry a typed Job.
type Runtime struct {
	Global *Object
	Async  AsyncRuntime
}

func NewRuntime() *Runtime {
	return &Runtime{
		Global: NewObject(nil),
		Async:  NewDefaultAsyncRuntime(),
	}
}

// EnqueueJob schedules j onto the microtask queue: jobs run FIFO, to
// completion, never interleaved with another job's steps. Errors from
// Run are swallowed at the queue level the same
// way an unhandled promise rejection is: by design nothing propagates
// out of a drain tick, since no caller is waiting synchronously on a
// queued job (only DrainJobs' caller observes completion at all, and
// only as "did work happen", not per-job success).
func (rt *Runtime) EnqueueJob(j Job) {
	rt.Async.ScheduleMicrotask(func() {
		j.Run(rt)
	})
}

// DrainJobs runs queued jobs to exhaustion: a job enqueuing another job
// during its own run is picked up in the same drain call (DrainJobs
// calls RunUntilIdle again until a call finds no queued work), never left for a
// caller to notice and re-invoke.
func (rt *Runtime) DrainJobs() {
	for rt.Async.RunUntilIdle() {
	}
}

// Sandbox runs fn inside a scoped exception boundary: a panic carrying
// a *ThrownError (an ECMAScript throw that unwound past the
// interpreter's own try/catch machinery, e.g. a bug in host-native
// code) is caught and reported as an ordinary (Value, error) pair
// rather than crashing the host. Any other panic is a fatal host
// invariant violation and is
// re-raised, the same asymmetry pkg/compiler's recoverGenerateError
// draws between a generation error and a real bug.
func Sandbox(fn func() (Value, error)) (result Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			if thrown, ok := r.(*ThrownError); ok {
				result, err = Undefined, thrown
				return
			}
			panic(r)
		}
	}()
	return fn()
}

// Throw is the idiomatic way host-native code aborts with an
// ECMAScript exception from inside a Sandbox-wrapped call stack: it
// panics with a *ThrownError, which only a Sandbox boundary (or, once
// built, pkg/activation's interpreter loop implementing the 11-step
// call protocol's own try/catch unwinding) is expected to catch.
func Throw(v Value) {
	panic(&ThrownError{Value: v})
}

// ThrowTypeError is a convenience wrapper around Throw for the most
// common host-native failure mode.
func ThrowTypeError(format string, args ...interface{}) {
	Throw(String(fmt.Sprintf(format, args...)))
}
