package validator

import (
	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/wasm"
)

func (v *operatorValidator) visitGlobalGet(idx uint32) error {
	g, err := v.globalAt(idx)
	if err != nil {
		return err
	}
	if v.constExpr {
		if g.Mutable {
			return v.errorf(errors.KindConstantExpression, "constant expression required: global.get of mutable global")
		}
		if idx >= v.importedGlobals && !v.features.Has(FeatureGC) {
			return v.errorf(errors.KindConstantExpression, "constant expression required: global.get of locally defined global")
		}
	}
	v.pushType(g.Content)
	return nil
}

func (v *operatorValidator) visitGlobalSet(idx uint32) error {
	g, err := v.globalAt(idx)
	if err != nil {
		return err
	}
	if !g.Mutable {
		return v.errorf(errors.KindImmutable, "global is immutable: cannot modify it with `global.set`")
	}
	_, err = v.pop(g.Content)
	return err
}

func (v *operatorValidator) visitRefNull(imm wasm.RefNullImm) error {
	if err := v.require(FeatureReferenceTypes, "ref.null"); err != nil {
		return err
	}
	h, err := v.heapType(imm.HeapType, imm.Shared)
	if err != nil {
		return err
	}
	v.pushType(Ref(true, h))
	return nil
}

func (v *operatorValidator) visitRefIsNull() error {
	if err := v.require(FeatureReferenceTypes, "ref.is_null"); err != nil {
		return err
	}
	if _, err := v.popRef(); err != nil {
		return err
	}
	v.pushType(I32)
	return nil
}

// visitRefFunc pushes a non-null reference to the function's exact type.
// Inside a body the function must also be declared by the module; constant
// expressions are where such declarations come from.
func (v *operatorValidator) visitRefFunc(funcIdx uint32) error {
	if err := v.require(FeatureReferenceTypes, "ref.func"); err != nil {
		return err
	}
	typeIdx, ok := v.res.TypeIndexOfFunction(funcIdx)
	if !ok {
		return errors.Unknown(errors.KindUnknownFunction, "function", funcIdx, v.offset)
	}
	if v.constExpr {
		if v.referenced != nil {
			v.referenced(funcIdx)
		}
	} else if !v.res.IsFunctionReferenced(funcIdx) {
		return v.errorf(errors.KindInvalidData, "undeclared function reference")
	}
	h, err := v.concreteHeap(typeIdx)
	if err != nil {
		return err
	}
	v.pushType(Ref(false, h))
	return nil
}

func nonNull(t MaybeType) MaybeType {
	if t.state == maybeKnown {
		t.ty.ref.nullable = false
	}
	return t
}

func (v *operatorValidator) visitRefAsNonNull() error {
	if err := v.require(FeatureFunctionReferences, "ref.as_non_null"); err != nil {
		return err
	}
	t, err := v.popRef()
	if err != nil {
		return err
	}
	v.push(nonNull(t))
	return nil
}

func (v *operatorValidator) visitBrOnNull(depth uint32) error {
	if err := v.require(FeatureFunctionReferences, "br_on_null"); err != nil {
		return err
	}
	t, err := v.popRef()
	if err != nil {
		return err
	}
	labels, err := v.labelTypesAt(depth)
	if err != nil {
		return err
	}
	if err := v.popTypes(labels); err != nil {
		return err
	}
	v.pushTypes(labels)
	v.push(nonNull(t))
	return nil
}

func (v *operatorValidator) visitBrOnNonNull(depth uint32) error {
	if err := v.require(FeatureFunctionReferences, "br_on_non_null"); err != nil {
		return err
	}
	labels, err := v.labelTypesAt(depth)
	if err != nil {
		return err
	}
	if labels.Len() == 0 {
		return v.errorf(errors.KindTypeMismatch, "type mismatch: br_on_non_null target has no label types")
	}
	last := labels.At(labels.Len() - 1)
	if !last.IsRef() {
		return v.errorf(errors.KindTypeMismatch, "type mismatch: br_on_non_null target does not end with heap type")
	}
	if _, err := v.pop(last.ref.AsNullable().Val()); err != nil {
		return err
	}
	rest := labels.withoutLast()
	if err := v.popTypes(rest); err != nil {
		return err
	}
	v.pushTypes(rest)
	return nil
}

func (v *operatorValidator) visitRefEq() error {
	if err := v.require(FeatureGC, "ref.eq"); err != nil {
		return err
	}
	a, err := v.popMaybeSharedRef(HeapEq)
	if err != nil {
		return err
	}
	b, err := v.popMaybeSharedRef(HeapEq)
	if err != nil {
		return err
	}
	at, aok := a.Type()
	bt, bok := b.Type()
	if aok && bok && at.ref.heap.shared != bt.ref.heap.shared {
		return v.errorf(errors.KindTypeMismatch, "type mismatch: expected `ref.eq` types to match `shared`-ness")
	}
	v.pushType(I32)
	return nil
}

func (v *operatorValidator) visitTableGet(idx uint32) error {
	if err := v.require(FeatureReferenceTypes, "table.get"); err != nil {
		return err
	}
	t, err := v.tableAt(idx)
	if err != nil {
		return err
	}
	return v.checkShape(shapeConvert, t.IndexType(), t.Element.Val())
}

func (v *operatorValidator) visitTableSet(idx uint32) error {
	if err := v.require(FeatureReferenceTypes, "table.set"); err != nil {
		return err
	}
	t, err := v.tableAt(idx)
	if err != nil {
		return err
	}
	return v.popTypes(seqOf([]ValType{t.IndexType(), t.Element.Val()}))
}

func (v *operatorValidator) visitTableSize(idx uint32) error {
	if err := v.require(FeatureReferenceTypes, "table.size"); err != nil {
		return err
	}
	t, err := v.tableAt(idx)
	if err != nil {
		return err
	}
	v.pushType(t.IndexType())
	return nil
}

func (v *operatorValidator) visitTableGrow(idx uint32) error {
	if err := v.require(FeatureReferenceTypes, "table.grow"); err != nil {
		return err
	}
	t, err := v.tableAt(idx)
	if err != nil {
		return err
	}
	return v.stackOp(seqOf([]ValType{t.Element.Val(), t.IndexType()}), t.IndexType())
}

func (v *operatorValidator) visitTableFill(idx uint32) error {
	if err := v.require(FeatureReferenceTypes, "table.fill"); err != nil {
		return err
	}
	t, err := v.tableAt(idx)
	if err != nil {
		return err
	}
	return v.popTypes(seqOf([]ValType{t.IndexType(), t.Element.Val(), t.IndexType()}))
}

func (v *operatorValidator) visitTableCopy(dst, src uint32) error {
	if err := v.require(FeatureBulkMemory, "table.copy"); err != nil {
		return err
	}
	dt, err := v.tableAt(dst)
	if err != nil {
		return err
	}
	st, err := v.tableAt(src)
	if err != nil {
		return err
	}
	if !v.res.IsSubtype(st.Element.Val(), dt.Element.Val()) {
		return v.mismatch(dt.Element.String(), st.Element.String())
	}
	length := I32
	if dt.Table64 && st.Table64 {
		length = I64
	}
	return v.popTypes(seqOf([]ValType{dt.IndexType(), st.IndexType(), length}))
}

func (v *operatorValidator) visitTableInit(elemIdx, tableIdx uint32) error {
	if err := v.require(FeatureBulkMemory, "table.init"); err != nil {
		return err
	}
	t, err := v.tableAt(tableIdx)
	if err != nil {
		return err
	}
	seg, err := v.elemTypeAt(elemIdx)
	if err != nil {
		return err
	}
	if !v.res.IsSubtype(seg.Val(), t.Element.Val()) {
		return v.mismatch(t.Element.String(), seg.String())
	}
	return v.popTypes(seqOf([]ValType{t.IndexType(), I32, I32}))
}

func (v *operatorValidator) visitElemDrop(elemIdx uint32) error {
	if err := v.require(FeatureBulkMemory, "elem.drop"); err != nil {
		return err
	}
	_, err := v.elemTypeAt(elemIdx)
	return err
}
