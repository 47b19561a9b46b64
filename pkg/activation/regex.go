package activation

import (
	"fmt"

	"github.com/dlclark/regexp2"

	"escargo/pkg/bytecode"
	"escargo/pkg/runtime"
)

// regexOptions translates a /pattern/flags node's flag string into
// regexp2's option bitmask. regexp2.ECMAScript is always set so
// backreferences and lookaround match JS semantics rather than Go's
// RE2-derived defaults.
func regexOptions(flags string) regexp2.RegexOptions {
	opts := regexp2.ECMAScript
	for _, f := range flags {
		switch f {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		}
	}
	return opts
}

// compileRegexLiteral turns a literal-pool RegexLiteral into a RegExp
// object wrapping a regexp2.Regexp, exposing the subset of the
// RegExp.prototype surface exercised by OpCall: test and exec. It runs
// on every evaluation of the OpLoadLiteral, compiling the pattern
// afresh each time. A malformed pattern yields an object whose
// test/exec always throw — the engine has no SyntaxError object to
// construct at this point, only a thrown diagnostic string.
func compileRegexLiteral(lit bytecode.RegexLiteral) runtime.Value {
	re, compileErr := regexp2.Compile(lit.Pattern, regexOptions(lit.Flags))

	obj := runtime.NewObject(nil)
	obj.DefineOwnProperty("source", runtime.Property{Value: runtime.String(lit.Pattern)})
	obj.DefineOwnProperty("flags", runtime.Property{Value: runtime.String(lit.Flags)})
	obj.DefineOwnProperty("global", runtime.Property{Value: runtime.Boolean(containsFlag(lit.Flags, 'g'))})
	obj.DefineOwnProperty("lastIndex", runtime.Property{Value: runtime.Integer(0), Writable: true})

	obj.DefineOwnProperty("test", runtime.Property{Value: runtime.ObjectValue(runtime.NewFunction("test", runtime.NativeFunc(
		func(this runtime.Value, args []runtime.Value) (runtime.Value, error) {
			if compileErr != nil {
				return runtime.Undefined, typeError("invalid regular expression: %s", compileErr.Error())
			}
			s := argString(args, 0)
			m, err := re.FindStringMatch(s)
			if err != nil {
				return runtime.Undefined, typeError("regular expression match failed: %s", err.Error())
			}
			return runtime.Boolean(m != nil), nil
		}))),
	})

	obj.DefineOwnProperty("exec", runtime.Property{Value: runtime.ObjectValue(runtime.NewFunction("exec", runtime.NativeFunc(
		func(this runtime.Value, args []runtime.Value) (runtime.Value, error) {
			if compileErr != nil {
				return runtime.Undefined, typeError("invalid regular expression: %s", compileErr.Error())
			}
			s := argString(args, 0)
			m, err := re.FindStringMatch(s)
			if err != nil {
				return runtime.Undefined, typeError("regular expression match failed: %s", err.Error())
			}
			if m == nil {
				return runtime.Null, nil
			}
			result := runtime.NewArray()
			for i, g := range m.Groups() {
				result.DefineOwnProperty(fmt.Sprintf("%d", i), runtime.Property{Value: runtime.String(g.String())})
			}
			result.DefineOwnProperty("index", runtime.Property{Value: runtime.Integer(int64(m.Index))})
			result.DefineOwnProperty("input", runtime.Property{Value: runtime.String(s)})
			return runtime.ObjectValue(result), nil
		}))),
	})

	return runtime.ObjectValue(obj)
}

func containsFlag(flags string, f byte) bool {
	for i := 0; i < len(flags); i++ {
		if flags[i] == f {
			return true
		}
	}
	return false
}

func argString(args []runtime.Value, i int) string {
	if i >= len(args) {
		return ""
	}
	return args[i].ToString()
}
