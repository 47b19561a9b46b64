package activation_test

import (
	"testing"

	"escargo/pkg/activation"
	"escargo/pkg/compiler"
	"escargo/pkg/lexer"
	"escargo/pkg/parser"
	"escargo/pkg/runtime"
)

func compileSource(t *testing.T, src string) *compiler.CompiledClosure {
	t.Helper()
	l := lexer.NewLexer(src)
	p := parser.NewParser(l)
	prog, errs := p.ParseProgram()
	if len(errs) > 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	result := compiler.CompileProgram(prog)
	return &compiler.CompiledClosure{CodeBlock: result.CodeBlock}
}

func runSource(t *testing.T, src string) (runtime.Value, error) {
	t.Helper()
	cc := compileSource(t, src)
	rt := runtime.NewRuntime()
	ip := activation.NewInterpreter(rt)
	return activation.Run(ip, cc)
}

func TestGlobalAssignmentAndReturn(t *testing.T) {
	v, err := runSource(t, `
		x = 1 + 2;
		x;
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.ToString() != "3" {
		t.Fatalf("expected 3, got %s", v.ToString())
	}
}

func TestBreakAcrossTryRunsFinally(t *testing.T) {
	v, err := runSource(t, `
		log = "";
		for (i = 0; i < 3; i = i + 1) {
			try {
				if (i == 1) {
					break;
				}
				log = log + "b";
			} finally {
				log = log + "f";
			}
		}
		log;
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// i=0: body runs ("b"), finally runs ("f") -> "bf".
	// i=1: break fires before the body appends, finally still runs ("f") -> "bff".
	// i=1's break then exits the loop entirely.
	if v.ToString() != "bff" {
		t.Fatalf("expected finally to run even when break exits the try, got %q", v.ToString())
	}
}

func TestThrowCaughtByEnclosingCatch(t *testing.T) {
	v, err := runSource(t, `
		result = "";
		try {
			throw "boom";
		} catch (e) {
			result = "caught:" + e;
		}
		result;
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.ToString() != "caught:boom" {
		t.Fatalf("expected caught:boom, got %q", v.ToString())
	}
}

func TestUncaughtThrowPropagatesAsError(t *testing.T) {
	_, err := runSource(t, `throw "uncaught";`)
	if err == nil {
		t.Fatal("expected an uncaught throw to surface as a Go error")
	}
	thrown, ok := err.(*runtime.ThrownError)
	if !ok {
		t.Fatalf("expected *runtime.ThrownError, got %T", err)
	}
	if thrown.Value.ToString() != "uncaught" {
		t.Fatalf("expected thrown value \"uncaught\", got %q", thrown.Value.ToString())
	}
}

func TestFunctionCallWithParameters(t *testing.T) {
	v, err := runSource(t, `
		function add(a, b) {
			return a + b;
		}
		add(2, 3);
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.ToString() != "5" {
		t.Fatalf("expected 5, got %s", v.ToString())
	}
}

func TestStackOverflowGuardThrowsRangeError(t *testing.T) {
	_, err := runSource(t, `
		function recurse() {
			return recurse();
		}
		recurse();
	`)
	if err == nil {
		t.Fatal("expected unbounded recursion to throw")
	}
	thrown, ok := err.(*runtime.ThrownError)
	if !ok {
		t.Fatalf("expected *runtime.ThrownError, got %T", err)
	}
	if thrown.Value.ToString() == "" {
		t.Fatal("expected a non-empty RangeError message")
	}
}

func TestStringMethodDispatch(t *testing.T) {
	v, err := runSource(t, `
		"hello".toUpperCase();
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.ToString() != "HELLO" {
		t.Fatalf("expected HELLO, got %q", v.ToString())
	}
}
