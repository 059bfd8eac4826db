package validator

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/wippyai/wasm-validator/errors"
)

// GlobalType is a resolved global declaration
type GlobalType struct {
	Content ValType
	Mutable bool
	Shared  bool
}

// TableType is a resolved table declaration
type TableType struct {
	Max     *uint64
	Element RefType
	Initial uint64
	Table64 bool
	Shared  bool
}

// IndexType returns the type of table addresses
func (t TableType) IndexType() ValType {
	if t.Table64 {
		return I64
	}
	return I32
}

// MemoryType is a resolved memory declaration
type MemoryType struct {
	Memory64 bool
	Shared   bool
}

// IndexType returns the type of memory addresses
func (m MemoryType) IndexType() ValType {
	if m.Memory64 {
		return I64
	}
	return I32
}

// Resources answers the module-level queries a function validator makes.
// Implementations must be safe for concurrent readers and must not change
// while any function of the module is being validated.
type Resources interface {
	TypeIndexOfFunction(idx uint32) (uint32, bool)
	SubTypeAt(idx uint32) (*SubType, bool)
	TypeIDAt(idx uint32) (CoreTypeID, bool)
	SubTypeByID(id CoreTypeID) *SubType
	GlobalAt(idx uint32) (GlobalType, bool)
	TableAt(idx uint32) (TableType, bool)
	MemoryAt(idx uint32) (MemoryType, bool)
	TagAt(idx uint32) (*FuncType, bool)
	ElementTypeAt(idx uint32) (RefType, bool)
	ElementCount() uint32
	DataCount() (uint32, bool)
	FunctionCount() uint32
	TypeCount() uint32

	IsSubtype(a, b ValType) bool
	IsShared(t ValType) bool
	TopType(h HeapType) HeapType
	IsFunctionReferenced(idx uint32) bool

	// CheckHeapType canonicalizes h in place
	CheckHeapType(h *HeapType, offset int) error
	// CheckValueType feature-gates and canonicalizes t in place
	CheckValueType(t *ValType, features Features, offset int) error
	// CheckRefType feature-gates and canonicalizes r in place
	CheckRefType(r *RefType, features Features, offset int) error
}

// ModuleResources is the immutable snapshot of a module's declarations
// taken before any function body is validated.
type ModuleResources struct {
	view       typeView
	typeIDs    []CoreTypeID
	funcs      []uint32
	globals    []GlobalType
	tables     []TableType
	memories   []MemoryType
	tags       []CoreTypeID
	elements   []RefType
	dataCount  *uint32
	referenced *bitset.BitSet
}

var _ Resources = (*ModuleResources)(nil)

// TypeIndexOfFunction returns the module type index of function idx
func (r *ModuleResources) TypeIndexOfFunction(idx uint32) (uint32, bool) {
	if int(idx) >= len(r.funcs) {
		return 0, false
	}
	return r.funcs[idx], true
}

// SubTypeAt returns the definition of module type idx
func (r *ModuleResources) SubTypeAt(idx uint32) (*SubType, bool) {
	id, ok := r.TypeIDAt(idx)
	if !ok {
		return nil, false
	}
	return r.view.sub(id), true
}

// TypeIDAt returns the canonical identity of module type idx
func (r *ModuleResources) TypeIDAt(idx uint32) (CoreTypeID, bool) {
	if int(idx) >= len(r.typeIDs) {
		return CoreTypeID{}, false
	}
	return r.typeIDs[idx], true
}

// SubTypeByID returns a canonical definition. It panics when id was
// minted by another validator.
func (r *ModuleResources) SubTypeByID(id CoreTypeID) *SubType {
	return r.view.sub(id)
}

// GlobalAt returns global idx
func (r *ModuleResources) GlobalAt(idx uint32) (GlobalType, bool) {
	if int(idx) >= len(r.globals) {
		return GlobalType{}, false
	}
	return r.globals[idx], true
}

// TableAt returns table idx
func (r *ModuleResources) TableAt(idx uint32) (TableType, bool) {
	if int(idx) >= len(r.tables) {
		return TableType{}, false
	}
	return r.tables[idx], true
}

// MemoryAt returns memory idx
func (r *ModuleResources) MemoryAt(idx uint32) (MemoryType, bool) {
	if int(idx) >= len(r.memories) {
		return MemoryType{}, false
	}
	return r.memories[idx], true
}

// TagAt returns the signature of tag idx
func (r *ModuleResources) TagAt(idx uint32) (*FuncType, bool) {
	if int(idx) >= len(r.tags) {
		return nil, false
	}
	return r.view.sub(r.tags[idx]).Composite.Func, true
}

// ElementTypeAt returns the reference type of element segment idx
func (r *ModuleResources) ElementTypeAt(idx uint32) (RefType, bool) {
	if int(idx) >= len(r.elements) {
		return RefType{}, false
	}
	return r.elements[idx], true
}

// ElementCount returns the number of element segments
func (r *ModuleResources) ElementCount() uint32 { return uint32(len(r.elements)) }

// DataCount returns the declared data segment count, if any
func (r *ModuleResources) DataCount() (uint32, bool) {
	if r.dataCount == nil {
		return 0, false
	}
	return *r.dataCount, true
}

// FunctionCount returns the size of the function index space
func (r *ModuleResources) FunctionCount() uint32 { return uint32(len(r.funcs)) }

// TypeCount returns the size of the type index space
func (r *ModuleResources) TypeCount() uint32 { return uint32(len(r.typeIDs)) }

// IsSubtype reports whether a matches b
func (r *ModuleResources) IsSubtype(a, b ValType) bool {
	return a == b || r.view.isSubtype(a, b)
}

// IsShared reports whether values of type t may be shared between threads
func (r *ModuleResources) IsShared(t ValType) bool {
	return t.kind != KindRef || t.ref.heap.shared
}

// TopType returns the top of h's hierarchy
func (r *ModuleResources) TopType(h HeapType) HeapType {
	return r.view.topType(h)
}

// IsFunctionReferenced reports whether function idx is declared outside
// function bodies, which ref.func requires.
func (r *ModuleResources) IsFunctionReferenced(idx uint32) bool {
	return r.referenced != nil && r.referenced.Test(uint(idx))
}

// CheckHeapType canonicalizes a module-local type index
func (r *ModuleResources) CheckHeapType(h *HeapType, offset int) error {
	if h.kind != heapModule {
		return nil
	}
	id, ok := r.TypeIDAt(h.index)
	if !ok {
		return errors.Unknown(errors.KindUnknownType, "type", h.index, offset)
	}
	*h = concreteHeap(id, r.view.sub(id).Composite.Shared)
	return nil
}

// CheckValueType feature-gates t and canonicalizes its heap type
func (r *ModuleResources) CheckValueType(t *ValType, features Features, offset int) error {
	switch t.kind {
	case KindI32, KindI64, KindF32, KindF64:
		return nil
	case KindV128:
		if !features.Has(FeatureSIMD) {
			return errors.FeatureDisabled(offset, FeatureSIMD.Name(), "v128 value type")
		}
		return nil
	}
	return r.CheckRefType(&t.ref, features, offset)
}

// CheckRefType feature-gates r and canonicalizes its heap type
func (r *ModuleResources) CheckRefType(ref *RefType, features Features, offset int) error {
	if !features.Has(FeatureReferenceTypes) {
		return errors.FeatureDisabled(offset, FeatureReferenceTypes.Name(), "reference value type")
	}
	h := &ref.heap
	if h.shared && !features.Has(FeatureSharedEverythingThreads) {
		return errors.FeatureDisabled(offset, FeatureSharedEverythingThreads.Name(), "shared reference type")
	}
	if h.kind != heapAbstract {
		if !features.Has(FeatureFunctionReferences) {
			return errors.FeatureDisabled(offset, FeatureFunctionReferences.Name(), "concrete reference type")
		}
		return r.CheckHeapType(h, offset)
	}
	if !ref.nullable && !features.Has(FeatureFunctionReferences) {
		return errors.FeatureDisabled(offset, FeatureFunctionReferences.Name(), "non-nullable reference type")
	}
	switch h.abs {
	case HeapFunc, HeapExtern:
	case HeapAny, HeapNone, HeapEq, HeapStruct, HeapArray, HeapI31, HeapNoExtern, HeapNoFunc:
		if !features.Has(FeatureGC) {
			return errors.FeatureDisabled(offset, FeatureGC.Name(), ref.String())
		}
	case HeapExn, HeapNoExn:
		if !features.Has(FeatureExceptions) {
			return errors.FeatureDisabled(offset, FeatureExceptions.Name(), ref.String())
		}
	case HeapCont, HeapNoCont:
		if !features.Has(FeatureStackSwitching) {
			return errors.FeatureDisabled(offset, FeatureStackSwitching.Name(), ref.String())
		}
	default:
		return errors.Validation(errors.KindInvalidData, offset, "invalid heap type")
	}
	return nil
}
