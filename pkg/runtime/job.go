package runtime

// Job is a deferred unit of work queued onto the microtask queue,
// grounded on Job.cpp's three concrete job kinds:
// PromiseReactionJob, PromiseResolveThenableJob, and CleanupSomeJob.
// Each Job's Run method returns the value a caller awaiting the
// enclosing Promise would observe, and an error if running the job
// itself threw (a handler's *ThrownError return is reported as a Go
// error carrying the thrown Value; Run does not recover panics, so a
// native handler that aborts through Throw panics out of Run).
type Job interface {
	Run(rt *Runtime) (Value, error)
}

// ThrownError wraps a thrown ECMAScript value so it can travel through
// a Go error return without losing its identity: a job that throws
// reports the thrown value, not a host error.
type ThrownError struct {
	Value Value
}

func (e *ThrownError) Error() string {
	return "uncaught exception: " + e.Value.ToString()
}

// Identity and Thrower are Promise.resolve's
// and Promise.prototype.then's default pass-through/rethrow handlers,
// represented as named sentinel values rather than closures so a
// PromiseReactionJob can tell "no handler supplied" apart from "handler
// that happens to return its argument" (a resolved Open Question,
// recorded in DESIGN.md: Identity/Thrower are exported *Object
// singletons rather than a magic nil check).
var (
	Identity = NewFunction("", NativeFunc(func(this Value, args []Value) (Value, error) {
		if len(args) == 0 {
			return Undefined, nil
		}
		return args[0], nil
	}))
	Thrower = NewFunction("", NativeFunc(func(this Value, args []Value) (Value, error) {
		if len(args) == 0 {
			return Value{}, &ThrownError{Value: Undefined}
		}
		return Value{}, &ThrownError{Value: args[0]}
	}))
)

// Capability bundles a Promise with its resolve/reject functions, plus
// a saved stack trace carried alongside it for diagnostics.
type Capability struct {
	Promise        *Object
	ResolveFunc    *Object
	RejectFunc     *Object
	SavedStackTrace []string
}

// PromiseReactionJob implements one queued .then/.catch reaction: call
// Handler with Argument as its sole parameter, then settle Capability
// with the result (or propagate a thrown value to Capability's reject
// function), per Job.cpp's PromiseReactionJob::run.
type PromiseReactionJob struct {
	Handler    *Object
	Argument   Value
	Capability *Capability // nil for a reaction with no capability (internal chaining)
}

func (j *PromiseReactionJob) Run(rt *Runtime) (Value, error) {
	var result Value
	var err error
	if j.Handler == nil {
		result, err = j.Argument, nil
	} else {
		result, err = j.Handler.Call(Undefined, []Value{j.Argument})
	}

	if j.Capability == nil {
		return result, err
	}
	if err != nil {
		thrown, ok := err.(*ThrownError)
		if !ok {
			thrown = &ThrownError{Value: String(err.Error())}
		}
		if _, rejErr := j.Capability.RejectFunc.Call(Undefined, []Value{thrown.Value}); rejErr != nil {
			return Value{}, rejErr
		}
		return Undefined, nil
	}
	if _, resErr := j.Capability.ResolveFunc.Call(Undefined, []Value{result}); resErr != nil {
		return Value{}, resErr
	}
	return Undefined, nil
}

// PromiseResolveThenableJob adopts a thenable by calling its `then`
// with fresh resolve/reject functions bound to Capability, per
// Job.cpp's PromiseResolveThenableJob::run. If calling `then` itself
// throws, Capability is rejected with the thrown value instead of the
// throw propagating out of the job ("thenable-adoption-throws").
type PromiseResolveThenableJob struct {
	Thenable   Value
	Then       *Object
	Capability *Capability
}

func (j *PromiseResolveThenableJob) Run(rt *Runtime) (Value, error) {
	resolveFn := NewFunction("", NativeFunc(func(this Value, args []Value) (Value, error) {
		var v Value
		if len(args) > 0 {
			v = args[0]
		}
		return j.Capability.ResolveFunc.Call(Undefined, []Value{v})
	}))
	rejectFn := NewFunction("", NativeFunc(func(this Value, args []Value) (Value, error) {
		var v Value
		if len(args) > 0 {
			v = args[0]
		}
		return j.Capability.RejectFunc.Call(Undefined, []Value{v})
	}))

	_, err := j.Then.Call(j.Thenable, []Value{ObjectValue(resolveFn), ObjectValue(rejectFn)})
	if err != nil {
		thrown, ok := err.(*ThrownError)
		if !ok {
			thrown = &ThrownError{Value: String(err.Error())}
		}
		return j.Capability.RejectFunc.Call(Undefined, []Value{thrown.Value})
	}
	return Undefined, nil
}

// CleanupSomeJob drains a FinalizationRegistry's pending cells, per
// Job.cpp's CleanupSomeJob::run. CleanupCallback overrides the
// registry's own callback for this one drain when non-nil (the
// `registry.cleanupSome(callback)` form).
type CleanupSomeJob struct {
	Registry         *FinalizationRegistry
	CleanupCallback  *Object
}

func (j *CleanupSomeJob) Run(rt *Runtime) (Value, error) {
	cb := j.CleanupCallback
	if cb == nil {
		cb = j.Registry.CleanupCallback
	}
	for {
		held, ok := j.Registry.popPendingCell()
		if !ok {
			return Undefined, nil
		}
		if cb == nil {
			continue
		}
		if _, err := cb.Call(Undefined, []Value{held}); err != nil {
			return Value{}, err
		}
	}
}

// FinalizationRegistry is a minimal FinalizationRegistry: register
// pairs a target with a held value, and unregister drops every
// registration under a token. Go has no weak references the compiler
// can hook a finalizer queue into without unsafe/runtime internals, so
// entries are only ever enqueued for cleanup explicitly via
// NotifyCollected — a test hook standing in for the host GC's finalizer
// callback (documented in DESIGN.md).
type FinalizationRegistry struct {
	CleanupCallback *Object
	pending         []Value
	tokens          map[*Object][]Value
}

func NewFinalizationRegistry(cleanup *Object) *FinalizationRegistry {
	return &FinalizationRegistry{CleanupCallback: cleanup, tokens: make(map[*Object][]Value)}
}

func (f *FinalizationRegistry) Register(heldValue Value, unregisterToken *Object) {
	if unregisterToken != nil {
		f.tokens[unregisterToken] = append(f.tokens[unregisterToken], heldValue)
	}
}

func (f *FinalizationRegistry) Unregister(token *Object) bool {
	_, ok := f.tokens[token]
	delete(f.tokens, token)
	return ok
}

// NotifyCollected simulates the host GC deciding a registered target is
// unreachable, enqueuing heldValue for the next CleanupSomeJob drain.
func (f *FinalizationRegistry) NotifyCollected(heldValue Value) {
	f.pending = append(f.pending, heldValue)
}

func (f *FinalizationRegistry) popPendingCell() (Value, bool) {
	if len(f.pending) == 0 {
		return Value{}, false
	}
	v := f.pending[0]
	f.pending = f.pending[1:]
	return v, true
}
