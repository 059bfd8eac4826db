package validator

import (
	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/wasm"
)

// contAt resolves a continuation type and the function type it wraps
func (v *operatorValidator) contAt(typeIdx uint32) (*FuncType, HeapType, error) {
	st, err := v.subTypeAt(typeIdx)
	if err != nil {
		return nil, HeapType{}, err
	}
	if st.Composite.Kind != CompCont {
		return nil, HeapType{}, v.errorf(errors.KindTypeMismatch, "type mismatch: non-continuation type %d", typeIdx)
	}
	h, err := v.concreteHeap(typeIdx)
	if err != nil {
		return nil, h, err
	}
	return v.res.SubTypeByID(st.Composite.Cont.Func).Composite.Func, h, nil
}

// contOfRef returns the function type behind a reference to a concrete
// continuation type.
func (v *operatorValidator) contOfRef(t ValType) (*FuncType, bool) {
	if !t.IsRef() || !t.ref.heap.IsConcrete() {
		return nil, false
	}
	st := v.res.SubTypeByID(t.ref.heap.id)
	if st.Composite.Kind != CompCont {
		return nil, false
	}
	return v.res.SubTypeByID(st.Composite.Cont.Func).Composite.Func, true
}

func (v *operatorValidator) subtypes(sub, super []ValType) bool {
	if len(sub) != len(super) {
		return false
	}
	for i := range sub {
		if !v.res.IsSubtype(sub[i], super[i]) {
			return false
		}
	}
	return true
}

func (v *operatorValidator) visitContNew(typeIdx uint32) error {
	_, h, err := v.contAt(typeIdx)
	if err != nil {
		return err
	}
	st, _ := v.res.SubTypeAt(typeIdx)
	fh := concreteHeap(st.Composite.Cont.Func, h.shared)
	if _, err := v.pop(Ref(true, fh)); err != nil {
		return err
	}
	v.pushType(Ref(false, h))
	return nil
}

// visitContBind partially applies the leading params of the source
// continuation, leaving the target's params as the remainder.
func (v *operatorValidator) visitContBind(srcIdx, dstIdx uint32) error {
	src, sh, err := v.contAt(srcIdx)
	if err != nil {
		return err
	}
	dst, dh, err := v.contAt(dstIdx)
	if err != nil {
		return err
	}
	if len(src.Params) < len(dst.Params) {
		return v.errorf(errors.KindTypeMismatch, "type mismatch: cont.bind target takes more arguments than the source")
	}
	bound := len(src.Params) - len(dst.Params)
	if !v.subtypes(dst.Params, src.Params[bound:]) || !v.subtypes(src.Results, dst.Results) {
		return v.errorf(errors.KindTypeMismatch, "type mismatch: cont.bind target type does not match the source")
	}
	if _, err := v.pop(Ref(true, sh)); err != nil {
		return err
	}
	if err := v.popTypes(seqOf(src.Params[:bound])); err != nil {
		return err
	}
	v.pushType(Ref(false, dh))
	return nil
}

func (v *operatorValidator) visitSuspend(tagIdx uint32) error {
	fn, err := v.tagAt(tagIdx)
	if err != nil {
		return err
	}
	return v.checkCall(fn)
}

// checkHandlers validates resume handler clauses against the resumed
// continuation's results.
func (v *operatorValidator) checkHandlers(handlers []wasm.Handler, results []ValType) error {
	for _, h := range handlers {
		tag, err := v.tagAt(h.TagIdx)
		if err != nil {
			return err
		}
		if h.Kind == wasm.HandlerOnSwitch {
			if len(tag.Params) != 0 {
				return v.errorf(errors.KindTypeMismatch, "type mismatch: switch handler tag must not take params")
			}
			continue
		}
		labels, err := v.labelTypesAt(h.LabelIdx)
		if err != nil {
			return err
		}
		if labels.Len() != len(tag.Params)+1 {
			return v.errorf(errors.KindTypeMismatch, "type mismatch: handler label must take the tag params and a continuation")
		}
		for i, p := range tag.Params {
			if err := v.matchOperand(p, labels.At(i)); err != nil {
				return err
			}
		}
		last := labels.At(len(tag.Params))
		fn, ok := v.contOfRef(last)
		if !ok {
			return v.errorf(errors.KindTypeMismatch, "type mismatch: expected continuation reference, found %s", last)
		}
		if !v.subtypes(fn.Params, tag.Results) || !v.subtypes(results, fn.Results) {
			return v.errorf(errors.KindTypeMismatch, "type mismatch: handler continuation type does not match tag %d", h.TagIdx)
		}
	}
	return nil
}

func (v *operatorValidator) visitResume(imm wasm.ContImm) error {
	fn, h, err := v.contAt(imm.TypeIdx)
	if err != nil {
		return err
	}
	if err := v.checkHandlers(imm.Handlers, fn.Results); err != nil {
		return err
	}
	if _, err := v.pop(Ref(true, h)); err != nil {
		return err
	}
	return v.checkCall(fn)
}

func (v *operatorValidator) visitResumeThrow(imm wasm.ContImm) error {
	fn, h, err := v.contAt(imm.TypeIdx)
	if err != nil {
		return err
	}
	tag, err := v.exceptionTagAt(imm.TagIdx)
	if err != nil {
		return err
	}
	if err := v.checkHandlers(imm.Handlers, fn.Results); err != nil {
		return err
	}
	if _, err := v.pop(Ref(true, h)); err != nil {
		return err
	}
	if err := v.popTypes(seqOf(tag.Params)); err != nil {
		return err
	}
	v.pushTypes(seqOf(fn.Results))
	return nil
}

// visitSwitch transfers control to the continuation on the stack, whose
// last param receives the suspended current continuation.
func (v *operatorValidator) visitSwitch(imm wasm.ContImm) error {
	fn, h, err := v.contAt(imm.TypeIdx)
	if err != nil {
		return err
	}
	tag, err := v.tagAt(imm.TagIdx)
	if err != nil {
		return err
	}
	if len(tag.Params) != 0 {
		return v.errorf(errors.KindTypeMismatch, "type mismatch: switch tag must not take params")
	}
	if len(fn.Params) == 0 {
		return v.errorf(errors.KindTypeMismatch, "type mismatch: switch continuation must take a continuation param")
	}
	last := fn.Params[len(fn.Params)-1]
	ret, ok := v.contOfRef(last)
	if !ok {
		return v.errorf(errors.KindTypeMismatch, "type mismatch: expected continuation reference, found %s", last)
	}
	if !v.subtypes(fn.Results, tag.Results) || !v.subtypes(ret.Results, tag.Results) {
		return v.errorf(errors.KindTypeMismatch, "type mismatch: switch results do not match tag %d", imm.TagIdx)
	}
	if _, err := v.pop(Ref(true, h)); err != nil {
		return err
	}
	if err := v.popTypes(seqOf(fn.Params[:len(fn.Params)-1])); err != nil {
		return err
	}
	v.pushTypes(seqOf(ret.Params))
	return nil
}

func (v *operatorValidator) visitCont(op byte, imm wasm.ContImm) error {
	if err := v.require(FeatureStackSwitching, "stack switching instruction"); err != nil {
		return err
	}
	switch op {
	case wasm.OpContNew:
		return v.visitContNew(imm.TypeIdx)
	case wasm.OpContBind:
		return v.visitContBind(imm.TypeIdx, imm.TypeIdx2)
	case wasm.OpSuspend:
		return v.visitSuspend(imm.TagIdx)
	case wasm.OpResume:
		return v.visitResume(imm)
	case wasm.OpResumeThrow:
		return v.visitResumeThrow(imm)
	case wasm.OpSwitch:
		return v.visitSwitch(imm)
	}
	return v.errorf(errors.KindInvalidData, "unknown stack switching opcode 0x%x", op)
}
