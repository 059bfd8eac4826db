package validator

import (
	"strings"

	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/wasm"
)

func (v *operatorValidator) visitBlock(kind FrameKind, imm wasm.BlockImm) error {
	bt, err := v.blockType(imm)
	if err != nil {
		return err
	}
	if err := v.popTypes(bt.params()); err != nil {
		return err
	}
	return v.pushCtrl(kind, bt)
}

func (v *operatorValidator) visitIf(imm wasm.BlockImm) error {
	bt, err := v.blockType(imm)
	if err != nil {
		return err
	}
	if _, err := v.pop(I32); err != nil {
		return err
	}
	if err := v.popTypes(bt.params()); err != nil {
		return err
	}
	return v.pushCtrl(FrameIf, bt)
}

func (v *operatorValidator) visitElse() error {
	frame, err := v.popCtrl()
	if err != nil {
		return err
	}
	if frame.Kind != FrameIf {
		return v.errorf(errors.KindInvalidData, "else found outside of an `if` block")
	}
	return v.pushCtrl(FrameElse, frame.Block)
}

func (v *operatorValidator) visitEnd() error {
	frame, err := v.popCtrl()
	if err != nil {
		return err
	}
	if frame.Kind == FrameIf {
		// An if without else behaves as if an empty else followed
		if err := v.pushCtrl(FrameElse, frame.Block); err != nil {
			return err
		}
		if frame, err = v.popCtrl(); err != nil {
			return err
		}
	}
	v.pushTypes(frame.Block.results())
	if len(v.control) == 0 {
		v.endOffset = v.offset
	}
	return nil
}

func (v *operatorValidator) visitBr(depth uint32) error {
	types, err := v.labelTypesAt(depth)
	if err != nil {
		return err
	}
	if err := v.popTypes(types); err != nil {
		return err
	}
	return v.unreachable()
}

func (v *operatorValidator) visitBrIf(depth uint32) error {
	if _, err := v.pop(I32); err != nil {
		return err
	}
	types, err := v.labelTypesAt(depth)
	if err != nil {
		return err
	}
	if err := v.popTypes(types); err != nil {
		return err
	}
	v.pushTypes(types)
	return nil
}

func (v *operatorValidator) visitBrTable(imm wasm.BrTableImm) error {
	if _, err := v.pop(I32); err != nil {
		return err
	}
	defaults, err := v.labelTypesAt(imm.Default)
	if err != nil {
		return err
	}
	for _, depth := range imm.Labels {
		types, err := v.labelTypesAt(depth)
		if err != nil {
			return err
		}
		if types.Len() != defaults.Len() {
			return v.errorf(errors.KindTypeMismatch, "type mismatch: br_table target labels have different number of types")
		}
		if err := v.matchStackOperands(types); err != nil {
			return err
		}
	}
	if err := v.popTypes(defaults); err != nil {
		return err
	}
	return v.unreachable()
}

func (v *operatorValidator) functionResults() typeSeq {
	return v.control[0].Block.results()
}

func (v *operatorValidator) visitReturn() error {
	if err := v.popTypes(v.functionResults()); err != nil {
		return err
	}
	return v.unreachable()
}

func (v *operatorValidator) checkCall(fn *FuncType) error {
	if err := v.popTypes(seqOf(fn.Params)); err != nil {
		return err
	}
	v.pushTypes(seqOf(fn.Results))
	return nil
}

// checkReturnCall validates a tail call: the callee results must match
// the caller results.
func (v *operatorValidator) checkReturnCall(fn *FuncType) error {
	if err := v.popTypes(seqOf(fn.Params)); err != nil {
		return err
	}
	caller := v.functionResults()
	if caller.Len() != len(fn.Results) {
		return v.errorf(errors.KindTypeMismatch, "type mismatch: current function requires result type [%s] but callee returns [%s]", seqString(caller), seqString(seqOf(fn.Results)))
	}
	for i, t := range fn.Results {
		if !v.res.IsSubtype(t, caller.At(i)) {
			return v.errorf(errors.KindTypeMismatch, "type mismatch: current function requires result type [%s] but callee returns [%s]", seqString(caller), seqString(seqOf(fn.Results)))
		}
	}
	return v.unreachable()
}

func (v *operatorValidator) visitCall(funcIdx uint32, tail bool) error {
	if tail {
		if err := v.require(FeatureTailCall, "return_call"); err != nil {
			return err
		}
	}
	fn, err := v.funcTypeOf(funcIdx)
	if err != nil {
		return err
	}
	if tail {
		return v.checkReturnCall(fn)
	}
	return v.checkCall(fn)
}

func (v *operatorValidator) visitCallIndirect(imm wasm.CallIndirectImm, tail bool) error {
	if tail {
		if err := v.require(FeatureTailCall, "return_call_indirect"); err != nil {
			return err
		}
	}
	table, err := v.tableAt(imm.TableIdx)
	if err != nil {
		return err
	}
	if !v.res.IsSubtype(table.Element.Val(), FuncRef) && !v.res.IsSubtype(table.Element.Val(), Ref(true, SharedAbstract(HeapFunc))) {
		return v.errorf(errors.KindTypeMismatch, "type mismatch: indirect calls must go through a table with type <= funcref")
	}
	fn, err := v.funcTypeAt(imm.TypeIdx)
	if err != nil {
		return err
	}
	if _, err := v.pop(table.IndexType()); err != nil {
		return err
	}
	if tail {
		return v.checkReturnCall(fn)
	}
	return v.checkCall(fn)
}

func (v *operatorValidator) visitCallRef(typeIdx uint32, tail bool) error {
	if err := v.require(FeatureFunctionReferences, "call_ref"); err != nil {
		return err
	}
	if tail {
		if err := v.require(FeatureTailCall, "return_call_ref"); err != nil {
			return err
		}
	}
	h := ModuleType(typeIdx)
	if err := v.res.CheckHeapType(&h, v.offset); err != nil {
		return err
	}
	fn, err := v.funcTypeAt(typeIdx)
	if err != nil {
		return err
	}
	if _, err := v.pop(Ref(true, h)); err != nil {
		return err
	}
	if tail {
		return v.checkReturnCall(fn)
	}
	return v.checkCall(fn)
}

func (v *operatorValidator) visitDrop() error {
	_, err := v.popAny()
	return err
}

func (v *operatorValidator) visitSelect() error {
	if _, err := v.pop(I32); err != nil {
		return err
	}
	t1, err := v.popAny()
	if err != nil {
		return err
	}
	t2, err := v.popAny()
	if err != nil {
		return err
	}
	if isRefOperand(t1) || isRefOperand(t2) {
		return v.errorf(errors.KindTypeMismatch, "type mismatch: select only takes integral types")
	}
	switch {
	case t1.IsBottom():
		v.push(t2)
	case t2.IsBottom():
		v.push(t1)
	default:
		a, _ := t1.Type()
		b, _ := t2.Type()
		if a != b {
			return v.errorf(errors.KindTypeMismatch, "type mismatch: select operands have different types")
		}
		v.push(t1)
	}
	return nil
}

func isRefOperand(t MaybeType) bool {
	if t.state == maybeUnknownRef {
		return true
	}
	return t.state == maybeKnown && t.ty.IsRef()
}

func (v *operatorValidator) visitTypedSelect(imm wasm.SelectTypeImm) error {
	if err := v.require(FeatureReferenceTypes, "typed select"); err != nil {
		return err
	}
	if len(imm.Types) != 1 {
		return v.errorf(errors.KindInvalidData, "invalid result arity")
	}
	t, err := v.valType(imm.Types[0])
	if err != nil {
		return err
	}
	if _, err := v.pop(I32); err != nil {
		return err
	}
	if _, err := v.pop(t); err != nil {
		return err
	}
	if _, err := v.pop(t); err != nil {
		return err
	}
	v.pushType(t)
	return nil
}

func seqString(s typeSeq) string {
	names := make([]string, s.Len())
	for i := range names {
		names[i] = s.At(i).String()
	}
	return strings.Join(names, " ")
}
