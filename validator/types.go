package validator

import (
	"fmt"
	"sync/atomic"

	"github.com/wippyai/wasm-validator/wasm"
)

// ValKind is the kind of a value type
type ValKind uint8

// Value type kinds
const (
	KindI32 ValKind = iota + 1
	KindI64
	KindF32
	KindF64
	KindV128
	KindRef
)

// AbstractHeap names an abstract heap type
type AbstractHeap uint8

// Abstract heap types
const (
	HeapFunc AbstractHeap = iota + 1
	HeapExtern
	HeapAny
	HeapNone
	HeapNoExtern
	HeapNoFunc
	HeapEq
	HeapStruct
	HeapArray
	HeapI31
	HeapExn
	HeapNoExn
	HeapCont
	HeapNoCont
)

var abstractNames = [...]string{
	HeapFunc:     "func",
	HeapExtern:   "extern",
	HeapAny:      "any",
	HeapNone:     "none",
	HeapNoExtern: "noextern",
	HeapNoFunc:   "nofunc",
	HeapEq:       "eq",
	HeapStruct:   "struct",
	HeapArray:    "array",
	HeapI31:      "i31",
	HeapExn:      "exn",
	HeapNoExn:    "noexn",
	HeapCont:     "cont",
	HeapNoCont:   "nocont",
}

func (a AbstractHeap) String() string {
	if int(a) < len(abstractNames) && abstractNames[a] != "" {
		return abstractNames[a]
	}
	return "unknown"
}

// Top returns the top of a's hierarchy
func (a AbstractHeap) Top() AbstractHeap {
	switch a {
	case HeapFunc, HeapNoFunc:
		return HeapFunc
	case HeapExtern, HeapNoExtern:
		return HeapExtern
	case HeapExn, HeapNoExn:
		return HeapExn
	case HeapCont, HeapNoCont:
		return HeapCont
	default:
		return HeapAny
	}
}

// Bottom returns the bottom of a's hierarchy
func (a AbstractHeap) Bottom() AbstractHeap {
	switch a.Top() {
	case HeapFunc:
		return HeapNoFunc
	case HeapExtern:
		return HeapNoExtern
	case HeapExn:
		return HeapNoExn
	case HeapCont:
		return HeapNoCont
	default:
		return HeapNone
	}
}

// IsBottom reports whether a is the bottom of its hierarchy
func (a AbstractHeap) IsBottom() bool {
	return a == a.Bottom()
}

// abstractSubtype is the subtype relation between abstract heap types
func abstractSubtype(a, b AbstractHeap) bool {
	if a == b {
		return true
	}
	if a.Top() != b.Top() {
		return false
	}
	if a.IsBottom() {
		return true
	}
	switch b {
	case HeapAny:
		return true
	case HeapEq:
		return a == HeapI31 || a == HeapStruct || a == HeapArray
	}
	return false
}

// ValidatorID identifies the type store that minted a CoreTypeID.
// Identities from different stores never compare equal.
type ValidatorID uint64

var lastValidatorID atomic.Uint64

func newValidatorID() ValidatorID {
	return ValidatorID(lastValidatorID.Add(1))
}

// CoreTypeID is a canonical type identity. Structurally identical types
// canonicalized by the same store share one identity.
type CoreTypeID struct {
	owner ValidatorID
	index uint32
}

// Owner returns the store that minted the identity
func (id CoreTypeID) Owner() ValidatorID { return id.owner }

// Index returns the position of the type within its store
func (id CoreTypeID) Index() uint32 { return id.index }

type heapKind uint8

const (
	heapAbstract heapKind = iota
	heapModule            // module-local type index, not yet canonicalized
	heapConcrete          // canonical identity
)

// HeapType is an abstract heap type, a module-local type index awaiting
// canonicalization, or a canonical type identity.
type HeapType struct {
	id     CoreTypeID
	index  uint32
	kind   heapKind
	abs    AbstractHeap
	shared bool
}

// Abstract returns the unshared abstract heap type a
func Abstract(a AbstractHeap) HeapType {
	return HeapType{kind: heapAbstract, abs: a}
}

// SharedAbstract returns the shared abstract heap type a
func SharedAbstract(a AbstractHeap) HeapType {
	return HeapType{kind: heapAbstract, abs: a, shared: true}
}

// ModuleType returns a heap type naming module-local type index idx
func ModuleType(idx uint32) HeapType {
	return HeapType{kind: heapModule, index: idx}
}

func concreteHeap(id CoreTypeID, shared bool) HeapType {
	return HeapType{kind: heapConcrete, id: id, shared: shared}
}

// IsAbstract reports whether h is an abstract heap type
func (h HeapType) IsAbstract() bool { return h.kind == heapAbstract }

// IsConcrete reports whether h is a canonical type identity
func (h HeapType) IsConcrete() bool { return h.kind == heapConcrete }

// IsModuleIndex reports whether h still names a module-local index
func (h HeapType) IsModuleIndex() bool { return h.kind == heapModule }

// AbstractKind returns the abstract heap kind, or 0 for concrete types
func (h HeapType) AbstractKind() AbstractHeap { return h.abs }

// ID returns the canonical identity of a concrete heap type
func (h HeapType) ID() CoreTypeID { return h.id }

// ModuleIndex returns the module-local index of an unresolved heap type
func (h HeapType) ModuleIndex() uint32 { return h.index }

// Shared reports whether h is shared
func (h HeapType) Shared() bool { return h.shared }

func (h HeapType) String() string {
	var s string
	switch h.kind {
	case heapAbstract:
		s = h.abs.String()
	case heapModule:
		s = fmt.Sprintf("%d", h.index)
	default:
		s = fmt.Sprintf("(type %d)", h.id.index)
	}
	if h.shared {
		return "(shared " + s + ")"
	}
	return s
}

// RefType is a reference type: nullability plus heap type
type RefType struct {
	heap     HeapType
	nullable bool
}

// NewRefType creates a reference type
func NewRefType(nullable bool, heap HeapType) RefType {
	return RefType{heap: heap, nullable: nullable}
}

// Nullable reports whether null inhabits the type
func (r RefType) Nullable() bool { return r.nullable }

// Heap returns the heap type
func (r RefType) Heap() HeapType { return r.heap }

// AsNonNull returns the non-nullable variant
func (r RefType) AsNonNull() RefType {
	r.nullable = false
	return r
}

// AsNullable returns the nullable variant
func (r RefType) AsNullable() RefType {
	r.nullable = true
	return r
}

// Val returns r as a value type
func (r RefType) Val() ValType {
	return ValType{kind: KindRef, ref: r}
}

var shorthandNames = map[AbstractHeap]string{
	HeapFunc:     "funcref",
	HeapExtern:   "externref",
	HeapAny:      "anyref",
	HeapNone:     "nullref",
	HeapNoExtern: "nullexternref",
	HeapNoFunc:   "nullfuncref",
	HeapEq:       "eqref",
	HeapStruct:   "structref",
	HeapArray:    "arrayref",
	HeapI31:      "i31ref",
	HeapExn:      "exnref",
	HeapNoExn:    "nullexnref",
	HeapCont:     "contref",
	HeapNoCont:   "nullcontref",
}

func (r RefType) String() string {
	if r.nullable && r.heap.kind == heapAbstract && !r.heap.shared {
		return shorthandNames[r.heap.abs]
	}
	if r.nullable {
		return "(ref null " + r.heap.String() + ")"
	}
	return "(ref " + r.heap.String() + ")"
}

// ValType is a fully resolved value type. It is small and comparable so
// that operand stack entries copy without allocation.
type ValType struct {
	ref  RefType
	kind ValKind
}

// Numeric and vector types
var (
	I32  = ValType{kind: KindI32}
	I64  = ValType{kind: KindI64}
	F32  = ValType{kind: KindF32}
	F64  = ValType{kind: KindF64}
	V128 = ValType{kind: KindV128}
)

// Nullable abstract reference types
var (
	FuncRef   = Ref(true, Abstract(HeapFunc))
	ExternRef = Ref(true, Abstract(HeapExtern))
	AnyRef    = Ref(true, Abstract(HeapAny))
	EqRef     = Ref(true, Abstract(HeapEq))
	I31Ref    = Ref(true, Abstract(HeapI31))
	StructRef = Ref(true, Abstract(HeapStruct))
	ArrayRef  = Ref(true, Abstract(HeapArray))
	ExnRef    = Ref(true, Abstract(HeapExn))
	ContRef   = Ref(true, Abstract(HeapCont))
)

// Ref returns a reference value type
func Ref(nullable bool, heap HeapType) ValType {
	return ValType{kind: KindRef, ref: RefType{heap: heap, nullable: nullable}}
}

// Kind returns the value type kind
func (t ValType) Kind() ValKind { return t.kind }

// IsRef reports whether t is a reference type
func (t ValType) IsRef() bool { return t.kind == KindRef }

// Ref returns the reference type of a reference value type
func (t ValType) Ref() RefType { return t.ref }

// IsDefaultable reports whether locals of type t start with a default value
func (t ValType) IsDefaultable() bool {
	return t.kind != KindRef || t.ref.nullable
}

func (t ValType) String() string {
	switch t.kind {
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindV128:
		return "v128"
	case KindRef:
		return t.ref.String()
	}
	return "invalid"
}

type maybeState uint8

const (
	maybeBottom maybeState = iota
	maybeUnknownRef
	maybeKnown
)

// MaybeType is an abstract operand: Bottom in unreachable code, a reference
// of unknown type with an optional known abstract family, or a known type.
type MaybeType struct {
	ty    ValType
	state maybeState
	abs   AbstractHeap
}

// Bottom returns the operand that matches any expectation
func Bottom() MaybeType { return MaybeType{state: maybeBottom} }

// UnknownRef returns a reference operand of unknown type. abs may be zero
// when not even the abstract family is known.
func UnknownRef(abs AbstractHeap) MaybeType {
	return MaybeType{state: maybeUnknownRef, abs: abs}
}

// Known returns an operand of known type t
func Known(t ValType) MaybeType { return MaybeType{state: maybeKnown, ty: t} }

// IsBottom reports whether m is Bottom
func (m MaybeType) IsBottom() bool { return m.state == maybeBottom }

// IsUnknownRef reports whether m is a reference of unknown type
func (m MaybeType) IsUnknownRef() bool { return m.state == maybeUnknownRef }

// Type returns the known type, if any
func (m MaybeType) Type() (ValType, bool) {
	return m.ty, m.state == maybeKnown
}

// Family returns the known abstract family of an unknown reference
func (m MaybeType) Family() AbstractHeap { return m.abs }

func (m MaybeType) String() string {
	switch m.state {
	case maybeBottom:
		return "bot"
	case maybeUnknownRef:
		if m.abs == 0 {
			return "(ref ?)"
		}
		return "(ref ? " + m.abs.String() + ")"
	}
	return m.ty.String()
}

// FromWasmHeap converts a decoded heap type code
func FromWasmHeap(code int64, shared bool) (HeapType, error) {
	if code >= 0 {
		return ModuleType(uint32(code)), nil
	}
	var a AbstractHeap
	switch code {
	case wasm.HeapTypeFunc:
		a = HeapFunc
	case wasm.HeapTypeExtern:
		a = HeapExtern
	case wasm.HeapTypeAny:
		a = HeapAny
	case wasm.HeapTypeNone:
		a = HeapNone
	case wasm.HeapTypeNoExtern:
		a = HeapNoExtern
	case wasm.HeapTypeNoFunc:
		a = HeapNoFunc
	case wasm.HeapTypeEq:
		a = HeapEq
	case wasm.HeapTypeStruct:
		a = HeapStruct
	case wasm.HeapTypeArray:
		a = HeapArray
	case wasm.HeapTypeI31:
		a = HeapI31
	case wasm.HeapTypeExn:
		a = HeapExn
	case wasm.HeapTypeNoExn:
		a = HeapNoExn
	case wasm.HeapTypeCont:
		a = HeapCont
	case wasm.HeapTypeNoCont:
		a = HeapNoCont
	default:
		return HeapType{}, fmt.Errorf("invalid heap type %d", code)
	}
	return HeapType{kind: heapAbstract, abs: a, shared: shared}, nil
}

// FromWasmRef converts a decoded reference type
func FromWasmRef(rt wasm.RefType) (RefType, error) {
	h, err := FromWasmHeap(rt.HeapType, rt.Shared)
	if err != nil {
		return RefType{}, err
	}
	return RefType{heap: h, nullable: rt.Nullable}, nil
}

// FromWasm converts a decoded value type. Concrete heap types keep their
// module-local index until the resolver canonicalizes them.
func FromWasm(t wasm.ExtValType) (ValType, error) {
	t = t.Normalize()
	if t.IsRef() {
		rt, err := FromWasmRef(t.RefType)
		if err != nil {
			return ValType{}, err
		}
		return rt.Val(), nil
	}
	switch t.ValType {
	case wasm.ValI32:
		return I32, nil
	case wasm.ValI64:
		return I64, nil
	case wasm.ValF32:
		return F32, nil
	case wasm.ValF64:
		return F64, nil
	case wasm.ValV128:
		return V128, nil
	}
	return ValType{}, fmt.Errorf("invalid value type 0x%02x", byte(t.ValType))
}
