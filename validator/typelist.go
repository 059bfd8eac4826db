package validator

import (
	"strconv"
	"strings"
	"sync"

	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/wasm"
)

// maxSubtypeDepth bounds declared supertype chains
const maxSubtypeDepth = 63

// CompositeKind is the kind of a composite type
type CompositeKind uint8

// Composite type kinds
const (
	CompFunc CompositeKind = iota + 1
	CompStruct
	CompArray
	CompCont
)

func (k CompositeKind) String() string {
	switch k {
	case CompFunc:
		return "func"
	case CompStruct:
		return "struct"
	case CompArray:
		return "array"
	case CompCont:
		return "cont"
	}
	return "invalid"
}

// FuncType is a canonicalized function signature
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// StorageType is a field storage type: a value type or a packed integer
type StorageType struct {
	Val    ValType
	Packed uint8 // 8 or 16, zero for value storage
}

// Unpacked returns the value type of a field read
func (s StorageType) Unpacked() ValType {
	if s.Packed != 0 {
		return I32
	}
	return s.Val
}

func (s StorageType) String() string {
	switch s.Packed {
	case 8:
		return "i8"
	case 16:
		return "i16"
	}
	return s.Val.String()
}

// FieldType is a struct field or array element
type FieldType struct {
	Storage StorageType
	Mutable bool
}

// StructType is a canonicalized struct type
type StructType struct {
	Fields []FieldType
}

// ArrayType is a canonicalized array type
type ArrayType struct {
	Elem FieldType
}

// ContType is a continuation over a function type
type ContType struct {
	Func CoreTypeID
}

// CompositeType is one of func, struct, array or cont
type CompositeType struct {
	Func   *FuncType
	Struct *StructType
	Array  *ArrayType
	Cont   *ContType
	Kind   CompositeKind
	Shared bool
}

// SubType is a canonical type definition with its declared supertype
type SubType struct {
	Composite    CompositeType
	Supertype    CoreTypeID
	HasSupertype bool
	Final        bool
	Depth        uint8
}

// typeView is an immutable prefix of a type list
type typeView struct {
	types []SubType
	owner ValidatorID
}

func (v typeView) sub(id CoreTypeID) *SubType {
	if id.owner != v.owner {
		panic("validator: type identity belongs to a different validator")
	}
	return &v.types[id.index]
}

func (v typeView) isSubtype(a, b ValType) bool {
	if a.kind != b.kind {
		return false
	}
	if a.kind != KindRef {
		return true
	}
	return v.refSubtype(a.ref, b.ref)
}

func (v typeView) refSubtype(a, b RefType) bool {
	if a.nullable && !b.nullable {
		return false
	}
	return v.heapSubtype(a.heap, b.heap)
}

func (v typeView) heapSubtype(a, b HeapType) bool {
	if a.shared != b.shared {
		return false
	}
	switch {
	case a.kind == heapAbstract && b.kind == heapAbstract:
		return abstractSubtype(a.abs, b.abs)
	case a.kind == heapConcrete && b.kind == heapAbstract:
		switch v.sub(a.id).Composite.Kind {
		case CompFunc:
			return b.abs == HeapFunc
		case CompStruct:
			return b.abs == HeapStruct || b.abs == HeapEq || b.abs == HeapAny
		case CompArray:
			return b.abs == HeapArray || b.abs == HeapEq || b.abs == HeapAny
		case CompCont:
			return b.abs == HeapCont
		}
	case a.kind == heapAbstract && b.kind == heapConcrete:
		return a.abs == bottomOf(v.sub(b.id).Composite.Kind)
	case a.kind == heapConcrete && b.kind == heapConcrete:
		return v.idSubtype(a.id, b.id)
	}
	return false
}

func (v typeView) idSubtype(a, b CoreTypeID) bool {
	for {
		if a == b {
			return true
		}
		st := v.sub(a)
		if !st.HasSupertype {
			return false
		}
		a = st.Supertype
	}
}

func (v typeView) topType(h HeapType) HeapType {
	if h.kind == heapConcrete {
		top := HeapAny
		switch v.sub(h.id).Composite.Kind {
		case CompFunc:
			top = HeapFunc
		case CompCont:
			top = HeapCont
		}
		return HeapType{kind: heapAbstract, abs: top, shared: h.shared}
	}
	return HeapType{kind: heapAbstract, abs: h.abs.Top(), shared: h.shared}
}

func bottomOf(k CompositeKind) AbstractHeap {
	switch k {
	case CompFunc:
		return HeapNoFunc
	case CompCont:
		return HeapNoCont
	}
	return HeapNone
}

// TypeList is the canonical type store of one Validator. Rec groups are
// deduplicated structurally, so equal groups share identities across
// modules validated by the same Validator.
type TypeList struct {
	mu     sync.RWMutex
	types  []SubType
	groups map[string]uint32
	id     ValidatorID
}

// NewTypeList creates an empty store with a fresh identity
func NewTypeList() *TypeList {
	return &TypeList{
		id:     newValidatorID(),
		groups: make(map[string]uint32),
	}
}

// ID returns the identity stamped on every type this store mints
func (l *TypeList) ID() ValidatorID { return l.id }

// Len returns the number of canonical types
func (l *TypeList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.types)
}

// snapshot returns a read-only view of every type added so far
func (l *TypeList) snapshot() typeView {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := len(l.types)
	return typeView{owner: l.id, types: l.types[:n:n]}
}

// SubTypeByID returns the definition of a canonical type
func (l *TypeList) SubTypeByID(id CoreTypeID) *SubType {
	return l.snapshot().sub(id)
}

// groupBuilder converts one rec group of a module into canonical form
type groupBuilder struct {
	m     *wasm.Module
	types []SubType
	ids   []CoreTypeID // canonical ids of module types before the group
	start uint32       // module index of the first type in the group
	count uint32
	base  uint32 // tentative canonical index of the first type
	owner ValidatorID
}

func (g *groupBuilder) heap(code int64, shared bool) (HeapType, error) {
	if code < 0 {
		return FromWasmHeap(code, shared)
	}
	idx := uint32(code)
	switch {
	case idx < g.start:
		id := g.ids[idx]
		return concreteHeap(id, g.types[id.index].Composite.Shared), nil
	case idx < g.start+g.count:
		id := CoreTypeID{owner: g.owner, index: g.base + idx - g.start}
		return concreteHeap(id, g.m.Types[idx].CompType.Shared), nil
	}
	return HeapType{}, errors.New(errors.PhaseValidate, errors.KindUnknownType).
		Value(idx).
		Detail("unknown type %d: type index out of bounds", idx).
		Build()
}

func (g *groupBuilder) val(t wasm.ExtValType) (ValType, error) {
	t = t.Normalize()
	if !t.IsRef() {
		return FromWasm(t)
	}
	h, err := g.heap(t.RefType.HeapType, t.RefType.Shared)
	if err != nil {
		return ValType{}, err
	}
	return Ref(t.RefType.Nullable, h), nil
}

func (g *groupBuilder) vals(ts []wasm.ExtValType) ([]ValType, error) {
	out := make([]ValType, len(ts))
	for i, t := range ts {
		v, err := g.val(t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (g *groupBuilder) field(f wasm.FieldType) (FieldType, error) {
	ft := FieldType{Mutable: f.Mutable}
	switch f.Type.Kind {
	case wasm.StorageKindPacked:
		switch f.Type.Packed {
		case wasm.PackedI8:
			ft.Storage.Packed = 8
		case wasm.PackedI16:
			ft.Storage.Packed = 16
		default:
			return ft, errors.InvalidData(errors.PhaseValidate, nil, "invalid packed storage type")
		}
	case wasm.StorageKindRef:
		v, err := g.val(wasm.ExtValType{Kind: wasm.ExtValKindRef, RefType: f.Type.RefType})
		if err != nil {
			return ft, err
		}
		ft.Storage.Val = v
	default:
		v, err := g.val(wasm.Val(f.Type.ValType))
		if err != nil {
			return ft, err
		}
		ft.Storage.Val = v
	}
	return ft, nil
}

func (g *groupBuilder) subType(st *wasm.SubType) (SubType, error) {
	out := SubType{Final: st.Final}
	ct := &st.CompType
	out.Composite.Shared = ct.Shared
	switch ct.Kind {
	case wasm.CompKindFunc:
		params, err := g.vals(ct.Func.Params)
		if err != nil {
			return out, err
		}
		results, err := g.vals(ct.Func.Results)
		if err != nil {
			return out, err
		}
		out.Composite.Kind = CompFunc
		out.Composite.Func = &FuncType{Params: params, Results: results}
	case wasm.CompKindStruct:
		fields := make([]FieldType, len(ct.Struct.Fields))
		for i, f := range ct.Struct.Fields {
			ft, err := g.field(f)
			if err != nil {
				return out, err
			}
			fields[i] = ft
		}
		out.Composite.Kind = CompStruct
		out.Composite.Struct = &StructType{Fields: fields}
	case wasm.CompKindArray:
		ft, err := g.field(ct.Array.Element)
		if err != nil {
			return out, err
		}
		out.Composite.Kind = CompArray
		out.Composite.Array = &ArrayType{Elem: ft}
	case wasm.CompKindCont:
		h, err := g.heap(int64(ct.Cont.TypeIdx), false)
		if err != nil {
			return out, err
		}
		out.Composite.Kind = CompCont
		out.Composite.Cont = &ContType{Func: h.id}
	default:
		return out, errors.InvalidData(errors.PhaseValidate, nil, "invalid composite type")
	}
	if len(st.Parents) > 1 {
		return out, errors.InvalidData(errors.PhaseValidate, nil, "multiple supertypes not supported")
	}
	if len(st.Parents) == 1 {
		h, err := g.heap(int64(st.Parents[0]), false)
		if err != nil {
			return out, err
		}
		out.Supertype = h.id
		out.HasSupertype = true
	}
	return out, nil
}

// AddRecGroup canonicalizes module types [start, start+count). ids holds
// the canonical identities of every earlier module type. The returned
// identities are appended in module order.
func (l *TypeList) AddRecGroup(m *wasm.Module, group wasm.RecGroup, ids []CoreTypeID) ([]CoreTypeID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	g := &groupBuilder{
		m:     m,
		types: l.types,
		ids:   ids,
		start: group.Start,
		count: group.Count,
		base:  uint32(len(l.types)),
		owner: l.id,
	}
	converted := make([]SubType, group.Count)
	for i := range converted {
		st, err := g.subType(&m.Types[group.Start+uint32(i)])
		if err != nil {
			return nil, err
		}
		if st.HasSupertype && st.Supertype.index >= g.base+uint32(i) {
			return nil, errors.New(errors.PhaseValidate, errors.KindUnknownType).
				Value(group.Start + uint32(i)).
				Detail("supertype of type %d must be declared before it", group.Start+uint32(i)).
				Build()
		}
		converted[i] = st
	}

	key := groupKey(converted, g.base)
	if first, ok := l.groups[key]; ok {
		return appendRange(ids, l.id, first, group.Count), nil
	}

	l.types = append(l.types, converted...)
	view := typeView{owner: l.id, types: l.types}
	for i := range converted {
		err := checkSupertype(view, CoreTypeID{owner: l.id, index: g.base + uint32(i)})
		if err == nil && converted[i].Composite.Kind == CompCont {
			if view.sub(converted[i].Composite.Cont.Func).Composite.Kind != CompFunc {
				err = errors.New(errors.PhaseValidate, errors.KindTypeMismatch).
					Value(group.Start + uint32(i)).
					Detail("continuation type %d must reference a function type", group.Start+uint32(i)).
					Build()
			}
		}
		if err != nil {
			l.types = l.types[:g.base]
			return nil, err
		}
	}
	l.groups[key] = g.base
	return appendRange(ids, l.id, g.base, group.Count), nil
}

func appendRange(ids []CoreTypeID, owner ValidatorID, first, count uint32) []CoreTypeID {
	for i := uint32(0); i < count; i++ {
		ids = append(ids, CoreTypeID{owner: owner, index: first + i})
	}
	return ids
}

// checkSupertype validates the declared supertype of id and records its depth
func checkSupertype(v typeView, id CoreTypeID) error {
	st := v.sub(id)
	if !st.HasSupertype {
		return nil
	}
	super := v.sub(st.Supertype)
	fail := func(msg string) error {
		return errors.New(errors.PhaseValidate, errors.KindTypeMismatch).
			Value(id.index).
			Detail("sub type must match super type: %s", msg).
			Build()
	}
	if super.Final {
		return fail("super type is final")
	}
	if super.Depth >= maxSubtypeDepth {
		return errors.New(errors.PhaseValidate, errors.KindLimitExceeded).
			Detail("subtype depth exceeds %d", maxSubtypeDepth).
			Build()
	}
	st.Depth = super.Depth + 1
	a, b := &st.Composite, &super.Composite
	if a.Kind != b.Kind {
		return fail("composite kinds differ")
	}
	if a.Shared != b.Shared {
		return fail("sharedness differs")
	}
	if !compositeSubtype(v, a, b) {
		return fail("structure is incompatible")
	}
	return nil
}

func compositeSubtype(v typeView, a, b *CompositeType) bool {
	switch a.Kind {
	case CompFunc:
		fa, fb := a.Func, b.Func
		if len(fa.Params) != len(fb.Params) || len(fa.Results) != len(fb.Results) {
			return false
		}
		for i := range fa.Params {
			if !v.isSubtype(fb.Params[i], fa.Params[i]) {
				return false
			}
		}
		for i := range fa.Results {
			if !v.isSubtype(fa.Results[i], fb.Results[i]) {
				return false
			}
		}
		return true
	case CompStruct:
		if len(a.Struct.Fields) < len(b.Struct.Fields) {
			return false
		}
		for i := range b.Struct.Fields {
			if !fieldSubtype(v, a.Struct.Fields[i], b.Struct.Fields[i]) {
				return false
			}
		}
		return true
	case CompArray:
		return fieldSubtype(v, a.Array.Elem, b.Array.Elem)
	case CompCont:
		return v.idSubtype(a.Cont.Func, b.Cont.Func)
	}
	return false
}

func fieldSubtype(v typeView, a, b FieldType) bool {
	if a.Mutable != b.Mutable || a.Storage.Packed != b.Storage.Packed {
		return false
	}
	if a.Storage.Packed != 0 {
		return true
	}
	if a.Mutable {
		return v.isSubtype(a.Storage.Val, b.Storage.Val) && v.isSubtype(b.Storage.Val, a.Storage.Val)
	}
	return v.isSubtype(a.Storage.Val, b.Storage.Val)
}

// groupKey encodes a rec group so that structurally equal groups collide.
// References into the group are written relative to its start.
func groupKey(group []SubType, base uint32) string {
	var b strings.Builder
	id := func(id CoreTypeID) {
		if id.index >= base {
			b.WriteByte('r')
			b.WriteString(strconv.FormatUint(uint64(id.index-base), 10))
		} else {
			b.WriteByte('c')
			b.WriteString(strconv.FormatUint(uint64(id.index), 10))
		}
	}
	val := func(t ValType) {
		switch t.kind {
		case KindI32:
			b.WriteByte('I')
		case KindI64:
			b.WriteByte('L')
		case KindF32:
			b.WriteByte('F')
		case KindF64:
			b.WriteByte('D')
		case KindV128:
			b.WriteByte('V')
		case KindRef:
			if t.ref.nullable {
				b.WriteByte('N')
			} else {
				b.WriteByte('R')
			}
			if t.ref.heap.shared {
				b.WriteByte('s')
			}
			if t.ref.heap.kind == heapConcrete {
				id(t.ref.heap.id)
			} else {
				b.WriteByte('a')
				b.WriteString(strconv.Itoa(int(t.ref.heap.abs)))
			}
		}
		b.WriteByte(',')
	}
	field := func(f FieldType) {
		if f.Mutable {
			b.WriteByte('m')
		}
		switch f.Storage.Packed {
		case 8:
			b.WriteString("p8,")
		case 16:
			b.WriteString("p16,")
		default:
			val(f.Storage.Val)
		}
	}

	for _, st := range group {
		b.WriteByte('{')
		if st.Final {
			b.WriteByte('f')
		}
		if st.Composite.Shared {
			b.WriteByte('s')
		}
		if st.HasSupertype {
			b.WriteByte('<')
			id(st.Supertype)
		}
		b.WriteString(st.Composite.Kind.String())
		b.WriteByte('(')
		switch st.Composite.Kind {
		case CompFunc:
			for _, p := range st.Composite.Func.Params {
				val(p)
			}
			b.WriteString("->")
			for _, r := range st.Composite.Func.Results {
				val(r)
			}
		case CompStruct:
			for _, f := range st.Composite.Struct.Fields {
				field(f)
			}
		case CompArray:
			field(st.Composite.Array.Elem)
		case CompCont:
			id(st.Composite.Cont.Func)
		}
		b.WriteString(")}")
	}
	return b.String()
}
