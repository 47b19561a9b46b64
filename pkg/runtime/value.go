// Package runtime implements the value/object model and the job queue
// that the bytecode/activation packages are built against. It stands
// in for the "interpreter/GC interface" external collaborator: a
// compact set of ECMAScript value primitives, not a full opcode
// interpreter (that remains out of scope).
package runtime

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
)

// ValueType tags the dynamic type of a Value.
type ValueType uint8

const (
	TypeUndefined ValueType = iota
	TypeNull
	TypeBoolean
	TypeIntegerNumber
	TypeFloatNumber
	TypeBigInt
	TypeString
	TypeSymbol
	TypeObject
	TypeFunction
)

func (t ValueType) String() string {
	switch t {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		return "boolean"
	case TypeIntegerNumber, TypeFloatNumber:
		return "number"
	case TypeBigInt:
		return "bigint"
	case TypeString:
		return "string"
	case TypeSymbol:
		return "symbol"
	case TypeObject:
		return "object"
	case TypeFunction:
		return "function"
	default:
		return "unknown"
	}
}

// Value is a tagged union over ECMAScript primitive and reference
// values. It is deliberately small and copyable; objects/functions are
// held by pointer in obj.
type Value struct {
	typ    ValueType
	num    float64
	str    string
	bigInt *big.Int
	sym    *Symbol
	obj    *Object
}

var (
	Undefined = Value{typ: TypeUndefined}
	Null      = Value{typ: TypeNull}
	True      = Value{typ: TypeBoolean, num: 1}
	False     = Value{typ: TypeBoolean, num: 0}
)

// Number returns a number Value tagged IntegerNumber when n is integral
// and within ±2^53, and FloatNumber otherwise, matching the host's
// IntegerNumber vs FloatNumber split so integral literals keep an exact
// internal representation.
func Number(n float64) Value {
	if n == math.Trunc(n) && !math.IsInf(n, 0) && n >= -(1<<53) && n <= (1<<53) {
		return Value{typ: TypeIntegerNumber, num: n}
	}
	return Value{typ: TypeFloatNumber, num: n}
}

// Integer returns an integer-number Value directly.
func Integer(n int64) Value {
	return Value{typ: TypeIntegerNumber, num: float64(n)}
}

func Boolean(b bool) Value {
	if b {
		return True
	}
	return False
}

func String(s string) Value {
	return Value{typ: TypeString, str: s}
}

func BigInt(b *big.Int) Value {
	return Value{typ: TypeBigInt, bigInt: b}
}

func SymbolValue(s *Symbol) Value {
	return Value{typ: TypeSymbol, sym: s}
}

func ObjectValue(o *Object) Value {
	if o.callable != nil {
		return Value{typ: TypeFunction, obj: o}
	}
	return Value{typ: TypeObject, obj: o}
}

func (v Value) Type() ValueType { return v.typ }

func (v Value) IsUndefined() bool { return v.typ == TypeUndefined }
func (v Value) IsNull() bool      { return v.typ == TypeNull }
func (v Value) IsNullish() bool   { return v.typ == TypeUndefined || v.typ == TypeNull }
func (v Value) IsBoolean() bool   { return v.typ == TypeBoolean }
func (v Value) IsNumber() bool    { return v.typ == TypeIntegerNumber || v.typ == TypeFloatNumber }
func (v Value) IsBigInt() bool    { return v.typ == TypeBigInt }
func (v Value) IsString() bool    { return v.typ == TypeString }
func (v Value) IsSymbol() bool    { return v.typ == TypeSymbol }
func (v Value) IsObject() bool    { return v.typ == TypeObject || v.typ == TypeFunction }
func (v Value) IsFunction() bool  { return v.typ == TypeFunction }

func (v Value) AsBoolean() bool  { return v.num != 0 }
func (v Value) AsNumber() float64 { return v.num }
func (v Value) AsString() string  { return v.str }
func (v Value) AsBigInt() *big.Int { return v.bigInt }
func (v Value) AsSymbol() *Symbol  { return v.sym }
func (v Value) AsObject() *Object  { return v.obj }

// IsTruthy implements ECMAScript ToBoolean.
func (v Value) IsTruthy() bool {
	switch v.typ {
	case TypeUndefined, TypeNull:
		return false
	case TypeBoolean:
		return v.num != 0
	case TypeIntegerNumber, TypeFloatNumber:
		return v.num != 0 && !math.IsNaN(v.num)
	case TypeBigInt:
		return v.bigInt.Sign() != 0
	case TypeString:
		return len(v.str) > 0
	default:
		return true
	}
}

func (v Value) IsFalsey() bool { return !v.IsTruthy() }

// ToNumber implements a (simplified) ECMAScript ToNumber abstract
// operation sufficient for the engine core's arithmetic opcodes; full
// coverage (Symbol.toPrimitive hints, exotic objects) is out of scope.
func (v Value) ToNumber() float64 {
	switch v.typ {
	case TypeUndefined:
		return math.NaN()
	case TypeNull:
		return 0
	case TypeBoolean:
		return v.num
	case TypeIntegerNumber, TypeFloatNumber:
		return v.num
	case TypeString:
		s := v.str
		if s == "" {
			return 0
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return n
	default:
		return math.NaN()
	}
}

func (v Value) ToInteger() int64 {
	n := v.ToNumber()
	if math.IsNaN(n) {
		return 0
	}
	return int64(math.Trunc(n))
}

// ToString implements ToString for the value kinds this engine core
// needs directly; object stringification (toString/valueOf dispatch)
// goes through ToPrimitive below.
func (v Value) ToString() string {
	switch v.typ {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		if v.num != 0 {
			return "true"
		}
		return "false"
	case TypeIntegerNumber:
		return strconv.FormatInt(int64(v.num), 10)
	case TypeFloatNumber:
		if math.IsNaN(v.num) {
			return "NaN"
		}
		if math.IsInf(v.num, 1) {
			return "Infinity"
		}
		if math.IsInf(v.num, -1) {
			return "-Infinity"
		}
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case TypeBigInt:
		return v.bigInt.String()
	case TypeString:
		return v.str
	case TypeSymbol:
		return fmt.Sprintf("Symbol(%s)", v.sym.Description)
	case TypeObject, TypeFunction:
		return v.obj.ToPrimitiveString()
	default:
		return "<unknown>"
	}
}

// StrictlyEquals implements ECMAScript === (SameValueNonNumeric plus
// numeric equality, no NaN special-casing beyond IEEE semantics).
func (a Value) StrictlyEquals(b Value) bool {
	if a.typ != b.typ {
		// IntegerNumber and FloatNumber are the same ECMAScript "number" type.
		if a.IsNumber() && b.IsNumber() {
			return a.num == b.num
		}
		return false
	}
	switch a.typ {
	case TypeUndefined, TypeNull:
		return true
	case TypeBoolean, TypeIntegerNumber, TypeFloatNumber:
		return a.num == b.num
	case TypeBigInt:
		return a.bigInt.Cmp(b.bigInt) == 0
	case TypeString:
		return a.str == b.str
	case TypeSymbol:
		return a.sym == b.sym
	case TypeObject, TypeFunction:
		return a.obj == b.obj
	default:
		return false
	}
}

// Equals implements ECMAScript == (loose equality) to the extent this
// engine core's operand set needs it.
func (a Value) Equals(b Value) bool {
	if a.typ == b.typ {
		return a.StrictlyEquals(b)
	}
	if a.IsNullish() && b.IsNullish() {
		return true
	}
	if a.IsNullish() || b.IsNullish() {
		return false
	}
	if a.IsNumber() && b.IsString() {
		return a.num == b.ToNumber()
	}
	if a.IsString() && b.IsNumber() {
		return a.ToNumber() == b.num
	}
	if a.IsBoolean() {
		return Number(a.num).Equals(b)
	}
	if b.IsBoolean() {
		return a.Equals(Number(b.num))
	}
	if (a.IsNumber() || a.IsString()) && b.IsObject() {
		return a.Equals(b.obj.ToPrimitive())
	}
	if a.IsObject() && (b.IsNumber() || b.IsString()) {
		return a.obj.ToPrimitive().Equals(b)
	}
	return false
}

// ToPrimitive implements the ToPrimitive abstract operation's default
// hint: objects defer to their Callable-provided valueOf/toString
// convention via Object.ToPrimitive.
func (v Value) ToPrimitive() Value {
	if !v.IsObject() {
		return v
	}
	return v.obj.ToPrimitive()
}

func (v Value) TypeOf() string {
	switch v.typ {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "object"
	case TypeBoolean:
		return "boolean"
	case TypeIntegerNumber, TypeFloatNumber:
		return "number"
	case TypeBigInt:
		return "bigint"
	case TypeString:
		return "string"
	case TypeSymbol:
		return "symbol"
	case TypeFunction:
		return "function"
	case TypeObject:
		return "object"
	default:
		return "undefined"
	}
}
