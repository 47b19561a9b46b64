package runtime

import "testing"

type recordingJob struct {
	label string
	order *[]string
}

func (j *recordingJob) Run(rt *Runtime) (Value, error) {
	*j.order = append(*j.order, j.label)
	return Undefined, nil
}

func TestDrainJobsRunsFIFO(t *testing.T) {
	rt := NewRuntime()
	var order []string
	rt.EnqueueJob(&recordingJob{label: "a", order: &order})
	rt.EnqueueJob(&recordingJob{label: "b", order: &order})
	rt.EnqueueJob(&recordingJob{label: "c", order: &order})

	rt.DrainJobs()

	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("expected FIFO order [a b c], got %v", order)
	}
}

type chainingJob struct {
	order *[]string
}

func (j *chainingJob) Run(rt *Runtime) (Value, error) {
	*j.order = append(*j.order, "first")
	rt.EnqueueJob(&recordingJob{label: "second", order: j.order})
	return Undefined, nil
}

func TestDrainJobsPicksUpJobsEnqueuedDuringDrain(t *testing.T) {
	rt := NewRuntime()
	var order []string
	rt.EnqueueJob(&chainingJob{order: &order})

	rt.DrainJobs()

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected a job enqueued mid-drain to run in the same drain call, got %v", order)
	}
}

func TestSandboxCatchesThrow(t *testing.T) {
	v, err := Sandbox(func() (Value, error) {
		Throw(String("boom"))
		panic("unreachable")
	})
	if err == nil {
		t.Fatal("expected Sandbox to catch the panic and report it as an error")
	}
	thrown, ok := err.(*ThrownError)
	if !ok {
		t.Fatalf("expected *ThrownError, got %T", err)
	}
	if thrown.Value.ToString() != "boom" {
		t.Fatalf("expected thrown value \"boom\", got %q", thrown.Value.ToString())
	}
	if !v.IsUndefined() {
		t.Fatalf("expected Undefined result alongside the error, got %v", v)
	}
}

func TestSandboxPassesThroughNormalReturn(t *testing.T) {
	v, err := Sandbox(func() (Value, error) {
		return Integer(42), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.ToString() != "42" {
		t.Fatalf("expected 42, got %s", v.ToString())
	}
}

func TestPromiseResolveThenableJobAdoptsRejection(t *testing.T) {
	rc := newTestCapability(t)
	thenable := NewObject(nil)
	thenFn := NewFunction("then", NativeFunc(func(this Value, args []Value) (Value, error) {
		// args[1] is the reject callback; call it to adopt a rejection.
		return args[1].AsObject().Call(Undefined, []Value{String("adopted-rejection")})
	}))
	thenable.SetOwn("then", ObjectValue(thenFn))

	job := &PromiseResolveThenableJob{Thenable: ObjectValue(thenable), Then: thenFn, Capability: &rc.Capability}
	if _, err := job.Run(NewRuntime()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rc.rejected {
		t.Fatal("expected the thenable's rejection to be adopted")
	}
	if rc.rejectedWith.ToString() != "adopted-rejection" {
		t.Fatalf("expected rejected value \"adopted-rejection\", got %q", rc.rejectedWith.ToString())
	}
}

// newTestCapability builds a Capability whose resolve/reject functions
// record what they were called with, standing in for a real Promise's
// [[Resolve]]/[[Reject]] machinery (out of scope here).
func newTestCapability(t *testing.T) *recordingCapability {
	t.Helper()
	rc := &recordingCapability{}
	resolveFn := NewFunction("resolve", NativeFunc(func(this Value, args []Value) (Value, error) {
		rc.resolved = true
		if len(args) > 0 {
			rc.resolvedWith = args[0]
		}
		return Undefined, nil
	}))
	rejectFn := NewFunction("reject", NativeFunc(func(this Value, args []Value) (Value, error) {
		rc.rejected = true
		if len(args) > 0 {
			rc.rejectedWith = args[0]
		}
		return Undefined, nil
	}))
	rc.Capability = Capability{
		Promise:     NewObject(nil),
		ResolveFunc: resolveFn,
		RejectFunc:  rejectFn,
	}
	return rc
}

type recordingCapability struct {
	Capability
	resolved     bool
	resolvedWith Value
	rejected     bool
	rejectedWith Value
}
