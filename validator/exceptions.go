package validator

import (
	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/wasm"
)

func (v *operatorValidator) visitThrow(tagIdx uint32) error {
	if !v.features.Has(FeatureExceptions) && !v.features.Has(FeatureLegacyExceptions) {
		return errors.FeatureDisabled(v.offset, FeatureExceptions.Name(), "throw")
	}
	fn, err := v.exceptionTagAt(tagIdx)
	if err != nil {
		return err
	}
	if err := v.popTypes(seqOf(fn.Params)); err != nil {
		return err
	}
	return v.unreachable()
}

func (v *operatorValidator) visitThrowRef() error {
	if err := v.require(FeatureExceptions, "throw_ref"); err != nil {
		return err
	}
	if _, err := v.pop(ExnRef); err != nil {
		return err
	}
	return v.unreachable()
}

// visitTryTable checks every catch clause against its label before the
// try_table frame exists, so label depths count from the enclosing block.
func (v *operatorValidator) visitTryTable(imm wasm.TryTableImm) error {
	if err := v.require(FeatureExceptions, "try_table"); err != nil {
		return err
	}
	bt, err := v.blockType(imm.Block)
	if err != nil {
		return err
	}
	if err := v.popTypes(bt.params()); err != nil {
		return err
	}
	exn := Ref(false, Abstract(HeapExn))
	for _, c := range imm.Catches {
		labels, err := v.labelTypesAt(c.LabelIdx)
		if err != nil {
			return err
		}
		var params []ValType
		if c.Kind == wasm.CatchKindCatch || c.Kind == wasm.CatchKindCatchRef {
			fn, err := v.exceptionTagAt(c.TagIdx)
			if err != nil {
				return err
			}
			params = fn.Params
		}
		switch c.Kind {
		case wasm.CatchKindCatch:
			if labels.Len() != len(params) {
				return v.errorf(errors.KindTypeMismatch, "type mismatch: catch label must have same number of types as tag")
			}
		case wasm.CatchKindCatchRef:
			if labels.Len() != len(params)+1 {
				return v.errorf(errors.KindTypeMismatch, "type mismatch: catch_ref label must have one more type than tag types")
			}
			if err := v.matchOperand(exn, labels.At(len(params))); err != nil {
				return err
			}
		case wasm.CatchKindCatchAll:
			if labels.Len() != 0 {
				return v.errorf(errors.KindTypeMismatch, "type mismatch: catch_all label must have no result types")
			}
		case wasm.CatchKindCatchAllRef:
			if labels.Len() != 1 {
				return v.errorf(errors.KindTypeMismatch, "type mismatch: catch_all_ref label must have exactly one result type")
			}
			if err := v.matchOperand(exn, labels.At(0)); err != nil {
				return err
			}
		default:
			return v.errorf(errors.KindInvalidData, "invalid catch clause kind 0x%x", c.Kind)
		}
		for i, p := range params {
			if err := v.matchOperand(p, labels.At(i)); err != nil {
				return err
			}
		}
	}
	return v.pushCtrl(FrameTryTable, bt)
}

func (v *operatorValidator) visitLegacyTry(imm wasm.BlockImm) error {
	if err := v.require(FeatureLegacyExceptions, "try"); err != nil {
		return err
	}
	return v.visitBlock(FrameLegacyTry, imm)
}

func (v *operatorValidator) visitLegacyCatch(tagIdx uint32) error {
	if err := v.require(FeatureLegacyExceptions, "catch"); err != nil {
		return err
	}
	frame, err := v.popCtrl()
	if err != nil {
		return err
	}
	if frame.Kind != FrameLegacyTry && frame.Kind != FrameLegacyCatch {
		return v.errorf(errors.KindInvalidData, "catch found outside of an `try` block")
	}
	if err := v.enterFrame(FrameLegacyCatch, frame.Block); err != nil {
		return err
	}
	fn, err := v.exceptionTagAt(tagIdx)
	if err != nil {
		return err
	}
	v.pushTypes(seqOf(fn.Params))
	return nil
}

func (v *operatorValidator) visitLegacyCatchAll() error {
	if err := v.require(FeatureLegacyExceptions, "catch_all"); err != nil {
		return err
	}
	frame, err := v.popCtrl()
	if err != nil {
		return err
	}
	switch frame.Kind {
	case FrameLegacyTry, FrameLegacyCatch:
	case FrameLegacyCatchAll:
		return v.errorf(errors.KindInvalidData, "only one catch_all allowed per `try` block")
	default:
		return v.errorf(errors.KindInvalidData, "catch_all found outside of a `try` block")
	}
	return v.enterFrame(FrameLegacyCatchAll, frame.Block)
}

// visitDelegate closes a try whose exceptions are forwarded to an outer
// label; the label only has to exist.
func (v *operatorValidator) visitDelegate(depth uint32) error {
	if err := v.require(FeatureLegacyExceptions, "delegate"); err != nil {
		return err
	}
	frame, err := v.popCtrl()
	if err != nil {
		return err
	}
	if frame.Kind != FrameLegacyTry {
		return v.errorf(errors.KindInvalidData, "delegate found outside of an `try` block")
	}
	if _, _, err := v.jump(depth); err != nil {
		return err
	}
	v.pushTypes(frame.Block.results())
	return nil
}

func (v *operatorValidator) visitRethrow(depth uint32) error {
	if err := v.require(FeatureLegacyExceptions, "rethrow"); err != nil {
		return err
	}
	_, kind, err := v.jump(depth)
	if err != nil {
		return err
	}
	if kind != FrameLegacyCatch && kind != FrameLegacyCatchAll {
		return v.errorf(errors.KindInvalidData, "invalid rethrow label: target was not a `catch` block")
	}
	return v.unreachable()
}
