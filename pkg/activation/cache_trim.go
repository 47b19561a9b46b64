package activation

import "escargo/pkg/bytecode"

// codeCacheThreshold is the exact constant FunctionObject.cpp's
// generateByteCodeBlock compares its live bytecode total against
// before evicting cold CodeBlocks.
const codeCacheThreshold = 2 * 1024 * 1024

// TrimCodeCacheIfNeeded sums CodeBlock.TotalCodeSize() across every
// CodeBlock this Interpreter has ever executed and, once the total
// crosses codeCacheThreshold, evicts (cb.Block = nil) every compiled
// CodeBlock that is not reachable from ctx's Outer chain — i.e. not
// part of a call currently in progress. An evicted CodeBlock recompiles
// lazily on its next call via compiler.CompiledClosure.EnsureCompiled
// (lowerFunctionExpression interns the CompiledClosure, not the bare
// CodeBlock, specifically so this trim-then-recompile round trip has
// somewhere to get the source FunctionLiteral back from).
func (ip *Interpreter) TrimCodeCacheIfNeeded(ctx *ExecutionContext) {
	total := 0
	for _, cb := range ip.compiled {
		total += cb.TotalCodeSize()
	}
	if total < codeCacheThreshold {
		return
	}

	live := make(map[*bytecode.CodeBlock]bool)
	for c := ctx; c != nil; c = c.Outer {
		live[c.CodeBlock] = true
	}

	kept := ip.compiled[:0]
	for _, cb := range ip.compiled {
		if live[cb] || cb.Block == nil {
			kept = append(kept, cb)
			continue
		}
		cb.Block = nil
		kept = append(kept, cb)
	}
	ip.compiled = kept
}
