package validator

import (
	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/wasm"
)

func (v *operatorValidator) concreteHeap(typeIdx uint32) (HeapType, error) {
	h := ModuleType(typeIdx)
	if err := v.res.CheckHeapType(&h, v.offset); err != nil {
		return HeapType{}, err
	}
	return h, nil
}

func (v *operatorValidator) structAt(typeIdx uint32) (*StructType, HeapType, error) {
	st, err := v.subTypeAt(typeIdx)
	if err != nil {
		return nil, HeapType{}, err
	}
	if st.Composite.Kind != CompStruct {
		return nil, HeapType{}, v.errorf(errors.KindTypeMismatch, "type mismatch: expected struct type at index %d, found %s", typeIdx, st.Composite.Kind)
	}
	h, err := v.concreteHeap(typeIdx)
	return st.Composite.Struct, h, err
}

func (v *operatorValidator) arrayAt(typeIdx uint32) (*ArrayType, HeapType, error) {
	st, err := v.subTypeAt(typeIdx)
	if err != nil {
		return nil, HeapType{}, err
	}
	if st.Composite.Kind != CompArray {
		return nil, HeapType{}, v.errorf(errors.KindTypeMismatch, "type mismatch: expected array type at index %d, found %s", typeIdx, st.Composite.Kind)
	}
	h, err := v.concreteHeap(typeIdx)
	return st.Composite.Array, h, err
}

func (v *operatorValidator) fieldAt(typeIdx, fieldIdx uint32) (FieldType, HeapType, error) {
	s, h, err := v.structAt(typeIdx)
	if err != nil {
		return FieldType{}, h, err
	}
	if int(fieldIdx) >= len(s.Fields) {
		return FieldType{}, h, v.errorf(errors.KindInvalidData, "unknown field: field index out of bounds")
	}
	return s.Fields[fieldIdx], h, nil
}

func (v *operatorValidator) mutableArrayAt(typeIdx uint32) (*ArrayType, HeapType, error) {
	a, h, err := v.arrayAt(typeIdx)
	if err != nil {
		return nil, h, err
	}
	if !a.Elem.Mutable {
		return nil, h, v.errorf(errors.KindImmutable, "invalid array modification: array is immutable")
	}
	return a, h, nil
}

// popMaybeSharedRef pops a reference below abs in either the shared or
// the unshared hierarchy.
func (v *operatorValidator) popMaybeSharedRef(abs AbstractHeap) (MaybeType, error) {
	t, err := v.popRef()
	if err != nil {
		return t, err
	}
	switch t.state {
	case maybeKnown:
		h := Abstract(abs)
		h.shared = t.ty.ref.heap.shared
		if !v.res.IsSubtype(t.ty, Ref(true, h)) {
			return t, v.mismatch(Ref(true, h).String(), t.ty.String())
		}
	case maybeUnknownRef:
		if t.abs != 0 && !abstractSubtype(t.abs, abs) {
			return t, v.mismatch(Ref(true, Abstract(abs)).String(), t.String())
		}
	}
	return t, nil
}

func (v *operatorValidator) visitStructNew(typeIdx uint32) error {
	s, h, err := v.structAt(typeIdx)
	if err != nil {
		return err
	}
	for i := len(s.Fields) - 1; i >= 0; i-- {
		if _, err := v.pop(s.Fields[i].Storage.Unpacked()); err != nil {
			return err
		}
	}
	v.pushType(Ref(false, h))
	return nil
}

func isDefaultable(s StorageType) bool {
	return s.Packed != 0 || s.Val.IsDefaultable()
}

func (v *operatorValidator) visitStructNewDefault(typeIdx uint32) error {
	s, h, err := v.structAt(typeIdx)
	if err != nil {
		return err
	}
	for i, f := range s.Fields {
		if !isDefaultable(f.Storage) {
			return v.errorf(errors.KindInvalidData, "invalid `struct.new_default`: field %d type is not defaultable", i)
		}
	}
	v.pushType(Ref(false, h))
	return nil
}

func (v *operatorValidator) visitStructGet(typeIdx, fieldIdx uint32, packed bool, name string) error {
	f, h, err := v.fieldAt(typeIdx, fieldIdx)
	if err != nil {
		return err
	}
	if packed != (f.Storage.Packed != 0) {
		if packed {
			return v.errorf(errors.KindInvalidData, "cannot use %s with non-packed storage types", name)
		}
		return v.errorf(errors.KindInvalidData, "can only use %s with non-packed storage types", name)
	}
	if _, err := v.pop(Ref(true, h)); err != nil {
		return err
	}
	v.pushType(f.Storage.Unpacked())
	return nil
}

func (v *operatorValidator) visitStructSet(typeIdx, fieldIdx uint32) error {
	f, h, err := v.fieldAt(typeIdx, fieldIdx)
	if err != nil {
		return err
	}
	if !f.Mutable {
		return v.errorf(errors.KindImmutable, "invalid struct modification: struct field is immutable")
	}
	if _, err := v.pop(f.Storage.Unpacked()); err != nil {
		return err
	}
	_, err = v.pop(Ref(true, h))
	return err
}

func (v *operatorValidator) visitArrayNew(typeIdx uint32, withDefault bool) error {
	a, h, err := v.arrayAt(typeIdx)
	if err != nil {
		return err
	}
	if withDefault && !isDefaultable(a.Elem.Storage) {
		return v.errorf(errors.KindInvalidData, "invalid `array.new_default`: %s field is not defaultable", a.Elem.Storage)
	}
	if _, err := v.pop(I32); err != nil {
		return err
	}
	if !withDefault {
		if _, err := v.pop(a.Elem.Storage.Unpacked()); err != nil {
			return err
		}
	}
	v.pushType(Ref(false, h))
	return nil
}

func (v *operatorValidator) visitArrayNewFixed(typeIdx, size uint32) error {
	a, h, err := v.arrayAt(typeIdx)
	if err != nil {
		return err
	}
	elem := a.Elem.Storage.Unpacked()
	for i := uint32(0); i < size; i++ {
		if _, err := v.pop(elem); err != nil {
			return err
		}
	}
	v.pushType(Ref(false, h))
	return nil
}

func (v *operatorValidator) checkNumericElem(a *ArrayType, name string) error {
	if a.Elem.Storage.Packed == 0 && a.Elem.Storage.Val.IsRef() {
		return v.errorf(errors.KindTypeMismatch, "type mismatch: %s can only create arrays with numeric from data segments", name)
	}
	return nil
}

func (v *operatorValidator) checkRefElem(a *ArrayType, elemIdx uint32, name string) error {
	if a.Elem.Storage.Packed != 0 || !a.Elem.Storage.Val.IsRef() {
		return v.errorf(errors.KindTypeMismatch, "type mismatch: %s can only create arrays with reference elements", name)
	}
	seg, err := v.elemTypeAt(elemIdx)
	if err != nil {
		return err
	}
	if !v.res.IsSubtype(seg.Val(), a.Elem.Storage.Val) {
		return v.mismatch(a.Elem.Storage.Val.String(), seg.String())
	}
	return nil
}

func (v *operatorValidator) visitArrayNewData(typeIdx, dataIdx uint32) error {
	a, h, err := v.arrayAt(typeIdx)
	if err != nil {
		return err
	}
	if err := v.checkNumericElem(a, "array.new_data"); err != nil {
		return err
	}
	if err := v.checkDataIndex(dataIdx); err != nil {
		return err
	}
	if err := v.popTypes(seqOf([]ValType{I32, I32})); err != nil {
		return err
	}
	v.pushType(Ref(false, h))
	return nil
}

func (v *operatorValidator) visitArrayNewElem(typeIdx, elemIdx uint32) error {
	a, h, err := v.arrayAt(typeIdx)
	if err != nil {
		return err
	}
	if err := v.checkRefElem(a, elemIdx, "array.new_elem"); err != nil {
		return err
	}
	if err := v.popTypes(seqOf([]ValType{I32, I32})); err != nil {
		return err
	}
	v.pushType(Ref(false, h))
	return nil
}

func (v *operatorValidator) visitArrayGet(typeIdx uint32, packed bool, name string) error {
	a, h, err := v.arrayAt(typeIdx)
	if err != nil {
		return err
	}
	if packed != (a.Elem.Storage.Packed != 0) {
		if packed {
			return v.errorf(errors.KindInvalidData, "cannot use %s with non-packed storage types", name)
		}
		return v.errorf(errors.KindInvalidData, "can only use %s with non-packed storage types", name)
	}
	if _, err := v.pop(I32); err != nil {
		return err
	}
	if _, err := v.pop(Ref(true, h)); err != nil {
		return err
	}
	v.pushType(a.Elem.Storage.Unpacked())
	return nil
}

func (v *operatorValidator) visitArraySet(typeIdx uint32) error {
	a, h, err := v.mutableArrayAt(typeIdx)
	if err != nil {
		return err
	}
	if _, err := v.pop(a.Elem.Storage.Unpacked()); err != nil {
		return err
	}
	if _, err := v.pop(I32); err != nil {
		return err
	}
	_, err = v.pop(Ref(true, h))
	return err
}

func (v *operatorValidator) visitArrayLen() error {
	if _, err := v.popMaybeSharedRef(HeapArray); err != nil {
		return err
	}
	v.pushType(I32)
	return nil
}

func (v *operatorValidator) visitArrayFill(typeIdx uint32) error {
	a, h, err := v.mutableArrayAt(typeIdx)
	if err != nil {
		return err
	}
	if _, err := v.pop(I32); err != nil {
		return err
	}
	if _, err := v.pop(a.Elem.Storage.Unpacked()); err != nil {
		return err
	}
	if _, err := v.pop(I32); err != nil {
		return err
	}
	_, err = v.pop(Ref(true, h))
	return err
}

func (v *operatorValidator) visitArrayCopy(dstIdx, srcIdx uint32) error {
	dst, dh, err := v.mutableArrayAt(dstIdx)
	if err != nil {
		return err
	}
	src, sh, err := v.arrayAt(srcIdx)
	if err != nil {
		return err
	}
	ds, ss := dst.Elem.Storage, src.Elem.Storage
	compatible := ds.Packed == ss.Packed
	if compatible && ds.Packed == 0 {
		compatible = v.res.IsSubtype(ss.Val, ds.Val)
	}
	if !compatible {
		return v.errorf(errors.KindTypeMismatch, "type mismatch: array.copy src type %s is not a subtype of dst type %s", ss, ds)
	}
	if err := v.popTypes(seqOf([]ValType{Ref(true, dh), I32, Ref(true, sh), I32, I32})); err != nil {
		return err
	}
	return nil
}

func (v *operatorValidator) visitArrayInitData(typeIdx, dataIdx uint32) error {
	a, h, err := v.mutableArrayAt(typeIdx)
	if err != nil {
		return err
	}
	if err := v.checkNumericElem(a, "array.init_data"); err != nil {
		return err
	}
	if err := v.checkDataIndex(dataIdx); err != nil {
		return err
	}
	return v.popTypes(seqOf([]ValType{Ref(true, h), I32, I32, I32}))
}

func (v *operatorValidator) visitArrayInitElem(typeIdx, elemIdx uint32) error {
	a, h, err := v.mutableArrayAt(typeIdx)
	if err != nil {
		return err
	}
	if err := v.checkRefElem(a, elemIdx, "array.init_elem"); err != nil {
		return err
	}
	return v.popTypes(seqOf([]ValType{Ref(true, h), I32, I32, I32}))
}

// popDowncastSource pops the operand of a cast to target, which must lie
// in the same hierarchy.
func (v *operatorValidator) popDowncastSource(target RefType) error {
	top := v.res.TopType(target.heap)
	_, err := v.pop(Ref(true, top))
	return err
}

func (v *operatorValidator) visitRefTest(imm wasm.GCImm) error {
	target, err := v.refType(imm.RefType)
	if err != nil {
		return err
	}
	if err := v.popDowncastSource(target); err != nil {
		return err
	}
	v.pushType(I32)
	return nil
}

func (v *operatorValidator) visitRefCast(imm wasm.GCImm) error {
	target, err := v.refType(imm.RefType)
	if err != nil {
		return err
	}
	if err := v.popDowncastSource(target); err != nil {
		return err
	}
	v.pushType(target.Val())
	return nil
}

// castDifference is the type left over when a cast from from to to fails
func castDifference(from, to RefType) RefType {
	from.nullable = from.nullable && !to.nullable
	return from
}

func (v *operatorValidator) castTypes(imm wasm.GCImm) (RefType, RefType, typeSeq, error) {
	from, err := v.refType(imm.RefType)
	if err != nil {
		return from, RefType{}, typeSeq{}, err
	}
	to, err := v.refType(imm.RefType2)
	if err != nil {
		return from, to, typeSeq{}, err
	}
	if !v.res.IsSubtype(to.Val(), from.Val()) {
		return from, to, typeSeq{}, v.mismatch(from.String(), to.String())
	}
	labels, err := v.labelTypesAt(imm.LabelIdx)
	return from, to, labels, err
}

func (v *operatorValidator) visitBrOnCast(imm wasm.GCImm) error {
	from, to, labels, err := v.castTypes(imm)
	if err != nil {
		return err
	}
	if labels.Len() == 0 {
		return v.errorf(errors.KindTypeMismatch, "type mismatch: br_on_cast to label with empty types, must have a reference type")
	}
	last := labels.At(labels.Len() - 1)
	if !v.res.IsSubtype(to.Val(), last) {
		return v.errorf(errors.KindTypeMismatch, "type mismatch: casting to type %s, but it does not match label result type %s", to, last)
	}
	if _, err := v.pop(from.Val()); err != nil {
		return err
	}
	rest := labels.withoutLast()
	if err := v.popTypes(rest); err != nil {
		return err
	}
	v.pushTypes(rest)
	v.pushType(castDifference(from, to).Val())
	return nil
}

func (v *operatorValidator) visitBrOnCastFail(imm wasm.GCImm) error {
	from, to, labels, err := v.castTypes(imm)
	if err != nil {
		return err
	}
	if labels.Len() == 0 {
		return v.errorf(errors.KindTypeMismatch, "type mismatch: expected a reference type, found nothing")
	}
	diff := castDifference(from, to)
	last := labels.At(labels.Len() - 1)
	if !v.res.IsSubtype(diff.Val(), last) {
		return v.errorf(errors.KindTypeMismatch, "type mismatch: expected label result type %s, found %s", last, diff)
	}
	if _, err := v.pop(from.Val()); err != nil {
		return err
	}
	rest := labels.withoutLast()
	if err := v.popTypes(rest); err != nil {
		return err
	}
	v.pushTypes(rest)
	v.pushType(to.Val())
	return nil
}

func (v *operatorValidator) visitConvertRef(from, to AbstractHeap) error {
	t, err := v.popMaybeSharedRef(from)
	if err != nil {
		return err
	}
	if known, ok := t.Type(); ok {
		h := Abstract(to)
		h.shared = known.ref.heap.shared
		v.pushType(Ref(known.ref.nullable, h))
		return nil
	}
	v.push(UnknownRef(to))
	return nil
}

func (v *operatorValidator) visitRefI31(shared bool) error {
	if _, err := v.pop(I32); err != nil {
		return err
	}
	h := Abstract(HeapI31)
	h.shared = shared
	v.pushType(Ref(false, h))
	return nil
}

func (v *operatorValidator) visitI31Get() error {
	if _, err := v.popMaybeSharedRef(HeapI31); err != nil {
		return err
	}
	v.pushType(I32)
	return nil
}

func (v *operatorValidator) visitGC(imm wasm.GCImm) error {
	if err := v.require(FeatureGC, "gc instruction"); err != nil {
		return err
	}
	switch imm.SubOpcode {
	case wasm.GCStructNew:
		return v.visitStructNew(imm.TypeIdx)
	case wasm.GCStructNewDefault:
		return v.visitStructNewDefault(imm.TypeIdx)
	case wasm.GCStructGet:
		return v.visitStructGet(imm.TypeIdx, imm.FieldIdx, false, "struct.get")
	case wasm.GCStructGetS:
		return v.visitStructGet(imm.TypeIdx, imm.FieldIdx, true, "struct.get_s")
	case wasm.GCStructGetU:
		return v.visitStructGet(imm.TypeIdx, imm.FieldIdx, true, "struct.get_u")
	case wasm.GCStructSet:
		return v.visitStructSet(imm.TypeIdx, imm.FieldIdx)
	case wasm.GCArrayNew:
		return v.visitArrayNew(imm.TypeIdx, false)
	case wasm.GCArrayNewDefault:
		return v.visitArrayNew(imm.TypeIdx, true)
	case wasm.GCArrayNewFixed:
		return v.visitArrayNewFixed(imm.TypeIdx, imm.Size)
	case wasm.GCArrayNewData:
		return v.visitArrayNewData(imm.TypeIdx, imm.DataIdx)
	case wasm.GCArrayNewElem:
		return v.visitArrayNewElem(imm.TypeIdx, imm.ElemIdx)
	case wasm.GCArrayGet:
		return v.visitArrayGet(imm.TypeIdx, false, "array.get")
	case wasm.GCArrayGetS:
		return v.visitArrayGet(imm.TypeIdx, true, "array.get_s")
	case wasm.GCArrayGetU:
		return v.visitArrayGet(imm.TypeIdx, true, "array.get_u")
	case wasm.GCArraySet:
		return v.visitArraySet(imm.TypeIdx)
	case wasm.GCArrayLen:
		return v.visitArrayLen()
	case wasm.GCArrayFill:
		return v.visitArrayFill(imm.TypeIdx)
	case wasm.GCArrayCopy:
		return v.visitArrayCopy(imm.TypeIdx, imm.TypeIdx2)
	case wasm.GCArrayInitData:
		return v.visitArrayInitData(imm.TypeIdx, imm.DataIdx)
	case wasm.GCArrayInitElem:
		return v.visitArrayInitElem(imm.TypeIdx, imm.ElemIdx)
	case wasm.GCRefTest, wasm.GCRefTestNull:
		return v.visitRefTest(imm)
	case wasm.GCRefCast, wasm.GCRefCastNull:
		return v.visitRefCast(imm)
	case wasm.GCBrOnCast:
		return v.visitBrOnCast(imm)
	case wasm.GCBrOnCastFail:
		return v.visitBrOnCastFail(imm)
	case wasm.GCAnyConvertExtern:
		return v.visitConvertRef(HeapExtern, HeapAny)
	case wasm.GCExternConvertAny:
		return v.visitConvertRef(HeapAny, HeapExtern)
	case wasm.GCRefI31:
		return v.visitRefI31(false)
	case wasm.GCI31GetS, wasm.GCI31GetU:
		return v.visitI31Get()
	}
	return v.errorf(errors.KindInvalidData, "unknown 0xfb subopcode: 0x%x", imm.SubOpcode)
}
