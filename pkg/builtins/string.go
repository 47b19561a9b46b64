// Package builtins supplies the host functions the engine core exposes
// on its primitive String values, grounded on the host's
// pkg/builtins/string_init.go: a flat registry of method implementations
// keyed by name, installed once and consulted by pkg/activation's
// property-get path whenever a String.prototype method is read off a
// string primitive.
package builtins

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"escargo/pkg/runtime"
)

var (
	upperCaser = cases.Upper(language.Und)
	lowerCaser = cases.Lower(language.Und)
)

// StringMethod is a String.prototype method implementation: receiver
// plus arguments in, a Value/error pair out, the same shape
// runtime.NativeFunc expects.
type StringMethod func(receiver string, args []runtime.Value) (runtime.Value, error)

var stringMethods = map[string]StringMethod{
	"toUpperCase":       func(r string, _ []runtime.Value) (runtime.Value, error) { return runtime.String(strings.ToUpper(r)), nil },
	"toLowerCase":       func(r string, _ []runtime.Value) (runtime.Value, error) { return runtime.String(strings.ToLower(r)), nil },
	// toLocaleUpperCase/toLocaleLowerCase use x/text/cases rather than
	// strings.ToUpper/ToLower, the same split the host draws in
	// string_init.go between the ASCII-only simple case ops and the
	// locale-aware ones (there: golang.org/x/text/unicode/norm for NFC
	// normalization; here: golang.org/x/text/cases for full Unicode
	// case folding, the same module's case-conversion concern).
	"toLocaleUpperCase": func(r string, _ []runtime.Value) (runtime.Value, error) { return runtime.String(upperCaser.String(r)), nil },
	"toLocaleLowerCase": func(r string, _ []runtime.Value) (runtime.Value, error) { return runtime.String(lowerCaser.String(r)), nil },
	"trim":              func(r string, _ []runtime.Value) (runtime.Value, error) { return runtime.String(strings.TrimSpace(r)), nil },
	"includes": func(r string, args []runtime.Value) (runtime.Value, error) {
		return runtime.Boolean(strings.Contains(r, argString(args, 0))), nil
	},
	"indexOf": func(r string, args []runtime.Value) (runtime.Value, error) {
		return runtime.Integer(int64(strings.Index(r, argString(args, 0)))), nil
	},
	"charAt": func(r string, args []runtime.Value) (runtime.Value, error) {
		runes := []rune(r)
		i := int(argValue(args, 0).ToInteger())
		if i < 0 || i >= len(runes) {
			return runtime.String(""), nil
		}
		return runtime.String(string(runes[i])), nil
	},
	"split": func(r string, args []runtime.Value) (runtime.Value, error) {
		sep := argString(args, 0)
		var parts []string
		if sep == "" {
			for _, c := range r {
				parts = append(parts, string(c))
			}
		} else {
			parts = strings.Split(r, sep)
		}
		elems := make([]runtime.Value, len(parts))
		for i, p := range parts {
			elems[i] = runtime.String(p)
		}
		return runtime.ObjectValue(runtime.NewArray(elems...)), nil
	},
	"concat": func(r string, args []runtime.Value) (runtime.Value, error) {
		var b strings.Builder
		b.WriteString(r)
		for _, a := range args {
			b.WriteString(a.ToString())
		}
		return runtime.String(b.String()), nil
	},
	"repeat": func(r string, args []runtime.Value) (runtime.Value, error) {
		n := int(argValue(args, 0).ToInteger())
		if n < 0 {
			return runtime.Undefined, &runtime.ThrownError{Value: runtime.String("RangeError: Invalid count value")}
		}
		return runtime.String(strings.Repeat(r, n)), nil
	},
}

func argString(args []runtime.Value, i int) string {
	return argValue(args, i).ToString()
}

func argValue(args []runtime.Value, i int) runtime.Value {
	if i >= len(args) {
		return runtime.Undefined
	}
	return args[i]
}

// StringMethodLookup returns the named String.prototype method, and
// whether it exists, for pkg/activation's getProperty to consult before
// falling back to Undefined — strings have no allocated Object to
// carry a prototype link, so this stands in for one.
func StringMethodLookup(name string) (StringMethod, bool) {
	m, ok := stringMethods[name]
	return m, ok
}
