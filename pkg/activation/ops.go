package activation

import (
	"math"

	"escargo/pkg/builtins"
	"escargo/pkg/bytecode"
	"escargo/pkg/runtime"
)

// evalBinary implements OpBinary's operator set. Arithmetic and
// ordering follow ECMAScript's ToNumber-coercing semantics via
// runtime.Value; && / || / ?? are handled at compile time via jumps
// (lower_expr.go's lowerShortCircuit/lowerNullish) so BinAnd/BinOr/
// BinNullish never actually reach here as OpBinary — they are listed
// in bytecode.BinaryOp only so the operator enumeration stays complete.
func evalBinary(op bytecode.BinaryOp, l, r runtime.Value) runtime.Value {
	switch op {
	case bytecode.BinAdd:
		if l.IsString() || r.IsString() {
			return runtime.String(l.ToString() + r.ToString())
		}
		return runtime.Number(l.ToNumber() + r.ToNumber())
	case bytecode.BinSub:
		return runtime.Number(l.ToNumber() - r.ToNumber())
	case bytecode.BinMul:
		return runtime.Number(l.ToNumber() * r.ToNumber())
	case bytecode.BinDiv:
		return runtime.Number(l.ToNumber() / r.ToNumber())
	case bytecode.BinMod:
		return runtime.Number(math.Mod(l.ToNumber(), r.ToNumber()))
	case bytecode.BinEq:
		return runtime.Boolean(l.Equals(r))
	case bytecode.BinStrictEq:
		return runtime.Boolean(l.StrictlyEquals(r))
	case bytecode.BinNeq:
		return runtime.Boolean(!l.Equals(r))
	case bytecode.BinStrictNeq:
		return runtime.Boolean(!l.StrictlyEquals(r))
	case bytecode.BinLt:
		return runtime.Boolean(l.ToNumber() < r.ToNumber())
	case bytecode.BinLte:
		return runtime.Boolean(l.ToNumber() <= r.ToNumber())
	case bytecode.BinGt:
		return runtime.Boolean(l.ToNumber() > r.ToNumber())
	case bytecode.BinGte:
		return runtime.Boolean(l.ToNumber() >= r.ToNumber())
	case bytecode.BinAnd:
		if !l.IsTruthy() {
			return l
		}
		return r
	case bytecode.BinOr:
		if l.IsTruthy() {
			return l
		}
		return r
	case bytecode.BinNullish:
		if !l.IsNullish() {
			return l
		}
		return r
	case bytecode.BinInstanceOf:
		return runtime.Boolean(instanceOf(l, r))
	case bytecode.BinIn:
		if !r.IsObject() {
			return runtime.False
		}
		return runtime.Boolean(r.AsObject().Has(l.ToString()))
	default:
		return runtime.Undefined
	}
}

func instanceOf(l, r runtime.Value) bool {
	if !l.IsObject() || !r.IsObject() {
		return false
	}
	proto := r.AsObject().Get("prototype")
	if !proto.IsObject() {
		return false
	}
	cur := l.AsObject().Prototype()
	for cur != nil {
		if cur == proto.AsObject() {
			return true
		}
		cur = cur.Prototype()
	}
	return false
}

// evalUnary implements OpUnary. ++/-- operate on the numeric value
// already loaded into Operand2 (lower_expr.go's lowerUpdate/applyUpdate
// load-then-store the target register around this), so UnaryIncrement/
// UnaryDecrement here are pure numeric transforms.
func (ip *Interpreter) evalUnary(ctx *ExecutionContext, op bytecode.UnaryOp, operandReg uint32) (runtime.Value, error) {
	v := ctx.registers[operandReg]
	switch op {
	case bytecode.UnaryNeg:
		return runtime.Number(-v.ToNumber()), nil
	case bytecode.UnaryNot:
		return runtime.Boolean(!v.IsTruthy()), nil
	case bytecode.UnaryTypeof:
		return runtime.String(v.TypeOf()), nil
	case bytecode.UnaryVoid:
		return runtime.Undefined, nil
	case bytecode.UnaryBitNot:
		return runtime.Number(float64(^int32(v.ToInteger()))), nil
	case bytecode.UnaryIncrement:
		return runtime.Number(v.ToNumber() + 1), nil
	case bytecode.UnaryDecrement:
		return runtime.Number(v.ToNumber() - 1), nil
	case bytecode.UnaryNullishCheck:
		return runtime.Boolean(v.IsNullish()), nil
	default:
		return runtime.Undefined, nil
	}
}

// getProperty/setProperty implement OpGetObject/OpSetObject's property
// and index read/write. Strings carry no allocated Object to hold a
// prototype link, so a string receiver's property get is special-cased
// here: "length", numeric indexing, and the String.prototype method
// table (pkg/builtins) are consulted directly instead of going through
// runtime.Object.Get.
func (ip *Interpreter) getProperty(target, key runtime.Value) runtime.Value {
	if target.IsString() {
		return ip.getStringProperty(target.AsString(), key)
	}
	if !target.IsObject() {
		return runtime.Undefined
	}
	return target.AsObject().Get(key.ToString())
}

func (ip *Interpreter) getStringProperty(s string, key runtime.Value) runtime.Value {
	name := key.ToString()
	if name == "length" {
		return runtime.Integer(int64(len([]rune(s))))
	}
	if idx, ok := stringIndex(name); ok {
		runes := []rune(s)
		if idx < len(runes) {
			return runtime.String(string(runes[idx]))
		}
		return runtime.Undefined
	}
	if m, ok := builtins.StringMethodLookup(name); ok {
		return runtime.ObjectValue(runtime.NewFunction(name, runtime.NativeFunc(
			func(this runtime.Value, args []runtime.Value) (runtime.Value, error) {
				return m(s, args)
			})))
	}
	return runtime.Undefined
}

func stringIndex(key string) (int, bool) {
	if key == "" {
		return 0, false
	}
	n := 0
	for _, c := range key {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

func (ip *Interpreter) setProperty(target, key, value runtime.Value) {
	if !target.IsObject() {
		return
	}
	target.AsObject().Set(key.ToString(), value)
}

// getGlobal/setGlobal implement OpGetGlobal/OpSetGlobal, consulting any
// active with-objects innermost-first before falling back to the
// global object — the one piece of real with-statement semantics this
// compiler's static name resolution leaves for the interpreter (see
// lower_stmt.go's lowerWith doc comment and DESIGN.md).
func (ip *Interpreter) getGlobal(ctx *ExecutionContext, name string) runtime.Value {
	for i := len(ctx.scopes) - 1; i >= 0; i-- {
		s := ctx.scopes[i]
		if s.kind == scopeWith && s.withObject.Has(name) {
			return s.withObject.Get(name)
		}
	}
	return ip.Runtime.Global.Get(name)
}

func (ip *Interpreter) setGlobal(ctx *ExecutionContext, name string, value runtime.Value) {
	for i := len(ctx.scopes) - 1; i >= 0; i-- {
		s := ctx.scopes[i]
		if s.kind == scopeWith && s.withObject.Has(name) {
			s.withObject.Set(name, value)
			return
		}
	}
	ip.Runtime.Global.SetOwn(name, value)
}
