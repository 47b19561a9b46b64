package activation

import (
	"escargo/pkg/bytecode"
	"escargo/pkg/runtime"
)

func gatherArgs(ctx *ExecutionContext, start, count uint32) []runtime.Value {
	args := make([]runtime.Value, count)
	for i := uint32(0); i < count; i++ {
		args[i] = ctx.registers[start+i]
	}
	return args
}

// execCall implements OpCall: ordinary function invocation, the callee
// and receiver already resolved into registers by lower_expr.go's
// lowerCall (which special-cases MemberExpression/IndexExpression
// callees so `this` binds correctly).
func (ip *Interpreter) execCall(ctx *ExecutionContext, instr bytecode.Instruction) (runtime.Value, error) {
	callee := ctx.registers[instr.Operand2]
	if !callee.IsFunction() {
		return runtime.Undefined, typeError("%s is not a function", callee.ToString())
	}
	this := ctx.registers[instr.Operand3]
	args := gatherArgs(ctx, instr.Operand4, instr.Operand5)
	return callee.AsObject().Call(this, args)
}

// execNew implements OpNew: allocate a fresh object linked to the
// constructor's prototype property, invoke the constructor with that
// object as the receiver, and use its return value only if the
// constructor returned an object (ECMAScript's ordinary [[Construct]]
// rule). A Closure constructor is invoked with isNew=true directly so
// call()'s receiver-substitution step is skipped for it; any other
// Callable (a native constructor) goes through the ordinary Call path.
func (ip *Interpreter) execNew(ctx *ExecutionContext, instr bytecode.Instruction) (runtime.Value, error) {
	ctorVal := ctx.registers[instr.Operand2]
	if !ctorVal.IsFunction() || !ctorVal.AsObject().IsConstructor() {
		return runtime.Undefined, typeError("%s is not a constructor", ctorVal.ToString())
	}
	ctor := ctorVal.AsObject()
	args := gatherArgs(ctx, instr.Operand3, instr.Operand4)

	var proto *runtime.Object
	if protoVal := ctor.Get("prototype"); protoVal.IsObject() {
		proto = protoVal.AsObject()
	}
	newObj := runtime.NewObject(proto)
	receiver := runtime.ObjectValue(newObj)

	var result runtime.Value
	var err error
	if cl, ok := ctor.Callable().(*Closure); ok {
		result, err = ip.call(cl.cc, receiver, args, true)
	} else {
		result, err = ctor.Call(receiver, args)
	}
	if err != nil {
		return runtime.Undefined, err
	}
	if result.IsObject() {
		return result, nil
	}
	return receiver, nil
}
