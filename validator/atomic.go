package validator

import (
	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/wasm"
)

// atomicPattern is the access width of each of the seven variants that
// repeat across atomic loads, stores and read-modify-write groups.
var atomicPattern = [7]memAccess{
	{I32, 2}, {I64, 3},
	{I32, 0}, {I32, 1},
	{I64, 0}, {I64, 1}, {I64, 2},
}

// checkAtomicMemArg is checkMemArg with the additional rule that atomics
// always name their natural alignment.
func (v *operatorValidator) checkAtomicMemArg(m *wasm.MemoryImm, align uint32) (ValType, error) {
	if m == nil {
		return ValType{}, v.errorf(errors.KindInvalidData, "atomic instruction without memarg")
	}
	idx, err := v.checkMemArg(*m, align)
	if err != nil {
		return ValType{}, err
	}
	if m.Align != align {
		return ValType{}, v.errorf(errors.KindInvalidData, "atomic instructions must always specify maximum alignment")
	}
	return idx, nil
}

func (v *operatorValidator) visitAtomic(imm wasm.AtomicImm) error {
	if imm.SubOpcode >= wasm.AtomicGlobalGet {
		if err := v.require(FeatureSharedEverythingThreads, "shared-everything atomic instruction"); err != nil {
			return err
		}
		return v.visitSharedAtomic(imm)
	}
	if err := v.require(FeatureThreads, "atomic instruction"); err != nil {
		return err
	}
	sub := imm.SubOpcode
	switch {
	case sub == wasm.AtomicFence:
		return nil
	case sub == wasm.AtomicNotify:
		idx, err := v.checkAtomicMemArg(imm.MemArg, 2)
		if err != nil {
			return err
		}
		return v.stackOp(seqOf([]ValType{idx, I32}), I32)
	case sub == wasm.AtomicWait32:
		idx, err := v.checkAtomicMemArg(imm.MemArg, 2)
		if err != nil {
			return err
		}
		return v.stackOp(seqOf([]ValType{idx, I32, I64}), I32)
	case sub == wasm.AtomicWait64:
		idx, err := v.checkAtomicMemArg(imm.MemArg, 3)
		if err != nil {
			return err
		}
		return v.stackOp(seqOf([]ValType{idx, I64, I64}), I32)
	case sub >= wasm.AtomicI32Load && sub <= wasm.AtomicI64Load32U:
		acc := atomicPattern[sub-wasm.AtomicI32Load]
		idx, err := v.checkAtomicMemArg(imm.MemArg, acc.align)
		if err != nil {
			return err
		}
		return v.checkShape(shapeConvert, idx, acc.ty)
	case sub >= wasm.AtomicI32Store && sub <= wasm.AtomicI64Store32:
		acc := atomicPattern[sub-wasm.AtomicI32Store]
		idx, err := v.checkAtomicMemArg(imm.MemArg, acc.align)
		if err != nil {
			return err
		}
		return v.popTypes(seqOf([]ValType{idx, acc.ty}))
	case sub >= wasm.AtomicI32RmwAdd && sub <= wasm.AtomicI64Rmw32XchgU:
		acc := atomicPattern[(sub-wasm.AtomicI32RmwAdd)%7]
		idx, err := v.checkAtomicMemArg(imm.MemArg, acc.align)
		if err != nil {
			return err
		}
		return v.stackOp(seqOf([]ValType{idx, acc.ty}), acc.ty)
	case sub >= wasm.AtomicI32RmwCmpxchg && sub <= wasm.AtomicI64Rmw32CmpxchgU:
		acc := atomicPattern[sub-wasm.AtomicI32RmwCmpxchg]
		idx, err := v.checkAtomicMemArg(imm.MemArg, acc.align)
		if err != nil {
			return err
		}
		return v.stackOp(seqOf([]ValType{idx, acc.ty, acc.ty}), acc.ty)
	}
	return v.errorf(errors.KindInvalidData, "unknown 0xfe subopcode: 0x%x", sub)
}

// inRefHierarchy reports whether t is a reference below abs in either the
// shared or the unshared hierarchy.
func (v *operatorValidator) inRefHierarchy(t ValType, abs AbstractHeap) bool {
	if !t.IsRef() {
		return false
	}
	h := Abstract(abs)
	h.shared = t.ref.heap.shared
	return v.res.IsSubtype(t, Ref(true, h))
}

func isAtomicInt(t ValType) bool {
	return t == I32 || t == I64
}

// checkAtomicValue applies the type restriction of the shared-everything
// atomics: get, set and xchg accept i32, i64 and anyref subtypes, cmpxchg
// narrows references to eqref and rmw arithmetic accepts only integers.
func (v *operatorValidator) checkAtomicValue(t ValType, sub uint32, name string) error {
	switch sub {
	case wasm.AtomicGlobalRmwAdd, wasm.AtomicGlobalRmwSub, wasm.AtomicGlobalRmwAnd, wasm.AtomicGlobalRmwOr, wasm.AtomicGlobalRmwXor,
		wasm.AtomicStructRmwAdd, wasm.AtomicStructRmwSub, wasm.AtomicStructRmwAnd, wasm.AtomicStructRmwOr, wasm.AtomicStructRmwXor,
		wasm.AtomicArrayRmwAdd, wasm.AtomicArrayRmwSub, wasm.AtomicArrayRmwAnd, wasm.AtomicArrayRmwOr, wasm.AtomicArrayRmwXor:
		if !isAtomicInt(t) {
			return v.errorf(errors.KindTypeMismatch, "invalid type: `%s` only allows `i32` and `i64`", name)
		}
	case wasm.AtomicGlobalRmwCmpxchg, wasm.AtomicStructRmwCmpxchg, wasm.AtomicArrayRmwCmpxchg:
		if !isAtomicInt(t) && !v.inRefHierarchy(t, HeapEq) {
			return v.errorf(errors.KindTypeMismatch, "invalid type: `%s` only allows `i32`, `i64` and subtypes of `eqref`", name)
		}
	default:
		if !isAtomicInt(t) && !v.inRefHierarchy(t, HeapAny) {
			return v.errorf(errors.KindTypeMismatch, "invalid type: `%s` only allows `i32`, `i64` and subtypes of `anyref`", name)
		}
	}
	return nil
}

func (v *operatorValidator) visitSharedAtomic(imm wasm.AtomicImm) error {
	sub := imm.SubOpcode
	switch {
	case sub == wasm.AtomicRefI31Shared:
		return v.visitRefI31(true)
	case sub <= wasm.AtomicGlobalRmwCmpxchg:
		return v.visitGlobalAtomic(sub, imm.Index)
	case sub <= wasm.AtomicTableRmwCmpxchg:
		return v.visitTableAtomic(sub, imm.Index)
	case sub <= wasm.AtomicStructRmwCmpxchg:
		return v.visitStructAtomic(sub, imm.TypeIdx, imm.FieldIdx)
	case sub <= wasm.AtomicArrayRmwCmpxchg:
		return v.visitArrayAtomic(sub, imm.TypeIdx)
	}
	return v.errorf(errors.KindInvalidData, "unknown 0xfe subopcode: 0x%x", sub)
}

func (v *operatorValidator) visitGlobalAtomic(sub, idx uint32) error {
	g, err := v.globalAt(idx)
	if err != nil {
		return err
	}
	name := "global.atomic.rmw"
	switch sub {
	case wasm.AtomicGlobalGet:
		name = "global.atomic.get"
	case wasm.AtomicGlobalSet:
		name = "global.atomic.set"
	}
	if err := v.checkAtomicValue(g.Content, sub, name); err != nil {
		return err
	}
	switch sub {
	case wasm.AtomicGlobalGet:
		return v.visitGlobalGet(idx)
	case wasm.AtomicGlobalSet:
		return v.visitGlobalSet(idx)
	}
	if !g.Mutable {
		return v.errorf(errors.KindImmutable, "global is immutable: cannot modify it with `global.atomic.rmw`")
	}
	if sub == wasm.AtomicGlobalRmwCmpxchg {
		return v.stackOp(seqOf([]ValType{g.Content, g.Content}), g.Content)
	}
	return v.checkShape(shapeUnary, g.Content, g.Content)
}

func (v *operatorValidator) visitTableAtomic(sub, idx uint32) error {
	t, err := v.tableAt(idx)
	if err != nil {
		return err
	}
	elem := t.Element.Val()
	switch sub {
	case wasm.AtomicTableRmwCmpxchg:
		if !v.inRefHierarchy(elem, HeapEq) {
			return v.errorf(errors.KindTypeMismatch, "invalid type: `table.atomic.rmw.cmpxchg` only allows subtypes of `eqref`")
		}
		return v.stackOp(seqOf([]ValType{t.IndexType(), elem, elem}), elem)
	default:
		if !v.inRefHierarchy(elem, HeapAny) {
			return v.errorf(errors.KindTypeMismatch, "invalid type: `table.atomic` only allows subtypes of `anyref`")
		}
	}
	switch sub {
	case wasm.AtomicTableGet:
		return v.visitTableGet(idx)
	case wasm.AtomicTableSet:
		return v.visitTableSet(idx)
	}
	return v.stackOp(seqOf([]ValType{t.IndexType(), elem}), elem)
}

func (v *operatorValidator) visitStructAtomic(sub, typeIdx, fieldIdx uint32) error {
	f, h, err := v.fieldAt(typeIdx, fieldIdx)
	if err != nil {
		return err
	}
	switch sub {
	case wasm.AtomicStructGetS:
		return v.visitStructGet(typeIdx, fieldIdx, true, "struct.atomic.get_s")
	case wasm.AtomicStructGetU:
		return v.visitStructGet(typeIdx, fieldIdx, true, "struct.atomic.get_u")
	}
	ty := f.Storage.Unpacked()
	if f.Storage.Packed == 0 {
		if err := v.checkAtomicValue(ty, sub, "struct.atomic"); err != nil {
			return err
		}
	} else if sub != wasm.AtomicStructSet {
		return v.errorf(errors.KindTypeMismatch, "invalid type: `struct.atomic` on packed field %d", fieldIdx)
	}
	switch sub {
	case wasm.AtomicStructGet:
		return v.visitStructGet(typeIdx, fieldIdx, false, "struct.atomic.get")
	case wasm.AtomicStructSet:
		return v.visitStructSet(typeIdx, fieldIdx)
	}
	if !f.Mutable {
		return v.errorf(errors.KindImmutable, "invalid struct modification: struct field is immutable")
	}
	if sub == wasm.AtomicStructRmwCmpxchg {
		return v.stackOp(seqOf([]ValType{Ref(true, h), ty, ty}), ty)
	}
	return v.stackOp(seqOf([]ValType{Ref(true, h), ty}), ty)
}

func (v *operatorValidator) visitArrayAtomic(sub, typeIdx uint32) error {
	a, h, err := v.arrayAt(typeIdx)
	if err != nil {
		return err
	}
	switch sub {
	case wasm.AtomicArrayGetS:
		return v.visitArrayGet(typeIdx, true, "array.atomic.get_s")
	case wasm.AtomicArrayGetU:
		return v.visitArrayGet(typeIdx, true, "array.atomic.get_u")
	}
	ty := a.Elem.Storage.Unpacked()
	if a.Elem.Storage.Packed == 0 {
		if err := v.checkAtomicValue(ty, sub, "array.atomic"); err != nil {
			return err
		}
	} else if sub != wasm.AtomicArraySet {
		return v.errorf(errors.KindTypeMismatch, "invalid type: `array.atomic` on packed elements")
	}
	switch sub {
	case wasm.AtomicArrayGet:
		return v.visitArrayGet(typeIdx, false, "array.atomic.get")
	case wasm.AtomicArraySet:
		return v.visitArraySet(typeIdx)
	}
	if !a.Elem.Mutable {
		return v.errorf(errors.KindImmutable, "invalid array modification: array is immutable")
	}
	if sub == wasm.AtomicArrayRmwCmpxchg {
		return v.stackOp(seqOf([]ValType{Ref(true, h), I32, ty, ty}), ty)
	}
	return v.stackOp(seqOf([]ValType{Ref(true, h), I32, ty}), ty)
}
