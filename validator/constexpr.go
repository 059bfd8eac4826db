package validator

import (
	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/wasm"
)

// constEnv describes where a constant expression appears
type constEnv struct {
	// globals visible to global.get
	globalLimit     uint32
	importedGlobals uint32
	// referenced receives every ref.func target
	referenced func(funcIdx uint32)
}

// isConstOp reports whether instr may appear in a constant expression.
// Gated operators are still checked by their visit function.
func (v *operatorValidator) isConstOp(instr *wasm.Instruction) bool {
	switch instr.Opcode {
	case wasm.OpI32Const, wasm.OpI64Const, wasm.OpF32Const, wasm.OpF64Const,
		wasm.OpRefNull, wasm.OpRefFunc, wasm.OpGlobalGet, wasm.OpEnd:
		return true
	case wasm.OpI32Add, wasm.OpI32Sub, wasm.OpI32Mul,
		wasm.OpI64Add, wasm.OpI64Sub, wasm.OpI64Mul:
		return v.features.Has(FeatureExtendedConst)
	case wasm.OpPrefixSIMD:
		imm, ok := instr.Imm.(wasm.SIMDImm)
		return ok && imm.SubOpcode == wasm.SimdV128Const
	case wasm.OpPrefixAtomic:
		imm, ok := instr.Imm.(wasm.AtomicImm)
		return ok && imm.SubOpcode == wasm.AtomicRefI31Shared
	case wasm.OpPrefixGC:
		imm, ok := instr.Imm.(wasm.GCImm)
		if !ok {
			return false
		}
		switch imm.SubOpcode {
		case wasm.GCStructNew, wasm.GCStructNewDefault,
			wasm.GCArrayNew, wasm.GCArrayNewDefault, wasm.GCArrayNewFixed,
			wasm.GCRefI31, wasm.GCAnyConvertExtern, wasm.GCExternConvertAny:
			return true
		}
	}
	return false
}

// validateConstExpr checks that expr is constant and leaves exactly one
// value of type expected.
func validateConstExpr(res Resources, features Features, env constEnv, expr wasm.ConstExpr, expected ValType, alloc Allocations) (Allocations, error) {
	var v operatorValidator
	v.reset(res, FuncConfig{Features: features}, alloc)
	v.constExpr = true
	v.globalLimit = env.globalLimit
	v.importedGlobals = env.importedGlobals
	v.referenced = env.referenced

	err := v.runConstExpr(expr, expected)
	return v.intoAllocations(), err
}

func (v *operatorValidator) runConstExpr(expr wasm.ConstExpr, expected ValType) error {
	if err := v.enterFrame(FrameBlock, ValueBlock(expected)); err != nil {
		return err
	}
	r := wasm.NewOperatorReader(expr.Code, expr.Offset)
	for !r.EOF() {
		instr, err := r.Read()
		if err != nil {
			return decodeError(err)
		}
		v.offset = instr.Offset
		if len(v.control) == 0 {
			return v.errorf(errors.KindOperatorsAfterEnd, "operators remaining after end of constant expression")
		}
		if !v.isConstOp(&instr) {
			return v.errorf(errors.KindConstantExpression, "constant expression required: non-constant operator")
		}
		if err := v.visit(&instr); err != nil {
			return err
		}
	}
	v.offset = expr.Offset + len(expr.Code)
	if len(v.control) != 0 {
		return v.errorf(errors.KindUnterminatedFunction, "constant expression missing END opcode")
	}
	return nil
}
