package wasm

// Module represents a parsed WebAssembly module.
// Indices stored here are module-local; canonicalization happens in the validator.
type Module struct {
	Types     []SubType  // Flat type index space; rec groups are expanded
	RecGroups []RecGroup // Partition of Types into recursion groups
	Imports   []Import
	Funcs     []uint32 // Type indices for declared functions
	Tables    []TableType
	Memories  []MemoryType
	Globals   []Global
	Exports   []Export
	Start     *uint32
	Elements  []Element
	Code      []FuncBody
	Data      []DataSegment

	// DataCount holds the count from the DataCount section (ID 12).
	// Required when data indices appear in code (bulk memory operations).
	DataCount *uint32

	// Tags holds exception handling tags (ID 13).
	Tags []TagType

	CustomSections []CustomSection
}

// RecGroup is a run of type indices declared together.
// Explicit is false for a type declared without a rec wrapper.
type RecGroup struct {
	Start    uint32
	Count    uint32
	Explicit bool
}

// FuncType represents a WebAssembly function signature with parameter and result types.
type FuncType struct {
	Params  []ExtValType
	Results []ExtValType
}

// ExtValType is a full value type: a simple numeric/vector code, or a
// reference type with its heap type. Shorthand reference codes such as
// funcref are expanded to ExtValKindRef by the decoder.
type ExtValType struct {
	Kind    byte    // ExtValKindSimple or ExtValKindRef
	ValType ValType // For simple types
	RefType RefType // For reference types
}

// Extended value type kinds
const (
	ExtValKindSimple byte = 0 // Simple valtype (single byte)
	ExtValKindRef    byte = 1 // Reference type with heap type
)

// Val returns the simple value type for code v.
func Val(v ValType) ExtValType {
	return ExtValType{Kind: ExtValKindSimple, ValType: v}
}

// Ref returns a reference value type.
func Ref(nullable bool, heapType int64) ExtValType {
	code := ValRef
	if nullable {
		code = ValRefNull
	}
	return ExtValType{Kind: ExtValKindRef, ValType: code, RefType: RefType{Nullable: nullable, HeapType: heapType}}
}

// Common value types
var (
	I32       = Val(ValI32)
	I64       = Val(ValI64)
	F32       = Val(ValF32)
	F64       = Val(ValF64)
	V128      = Val(ValV128)
	FuncRef   = Ref(true, HeapTypeFunc)
	ExternRef = Ref(true, HeapTypeExtern)
	ExnRef    = Ref(true, HeapTypeExn)
)

// IsRef reports whether t is a reference type
func (t ExtValType) IsRef() bool {
	return t.Kind == ExtValKindRef
}

// Normalize expands a shorthand reference code held as a simple type
func (t ExtValType) Normalize() ExtValType {
	if t.Kind == ExtValKindSimple {
		if heap, ok := shorthandHeapType(t.ValType); ok {
			return Ref(true, heap)
		}
	}
	return t
}

// FieldType represents a struct field with mutability and storage type
type FieldType struct {
	Type    StorageType
	Mutable bool
}

// StorageType represents a type that can be stored in a struct field or array.
type StorageType struct {
	Kind    byte // StorageKindVal, StorageKindPacked, StorageKindRef
	ValType ValType
	Packed  byte // PackedI8, PackedI16
	RefType RefType
}

// Storage type kind constants
const (
	StorageKindVal    byte = 0
	StorageKindPacked byte = 1
	StorageKindRef    byte = 2
)

// RefType represents a reference type with nullable flag and heap type
type RefType struct {
	Nullable bool
	Shared   bool  // Abstract heap type marked shared
	HeapType int64 // Encoded as s33: negative for abstract types, non-negative for type indices
}

// IsConcrete reports whether the heap type is a type index
func (r RefType) IsConcrete() bool {
	return r.HeapType >= 0
}

// StructType represents a GC struct type definition
type StructType struct {
	Fields []FieldType
}

// ArrayType represents a GC array type definition
type ArrayType struct {
	Element FieldType
}

// ContType is a continuation type over a function type index
type ContType struct {
	TypeIdx uint32
}

// SubType represents a subtype definition wrapping a composite type
type SubType struct {
	CompType CompType
	Parents  []uint32
	Final    bool
}

// CompType is a composite type: func, struct, array or cont
type CompType struct {
	Func   *FuncType
	Struct *StructType
	Array  *ArrayType
	Cont   *ContType
	Kind   byte
	Shared bool
}

// Composite type kinds
const (
	CompKindFunc   byte = FuncTypeByte   // 0x60
	CompKindStruct byte = StructTypeByte // 0x5F
	CompKindArray  byte = ArrayTypeByte  // 0x5E
	CompKindCont   byte = ContTypeByte   // 0x5D
)

// FuncSubType wraps a function type as a final subtype without parents
func FuncSubType(ft FuncType) SubType {
	return SubType{Final: true, CompType: CompType{Kind: CompKindFunc, Func: &ft}}
}

// ValType represents a WebAssembly value type code.
// See constants.go for ValI32, ValI64, ValF32, ValF64, etc.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExtern:
		return "externref"
	case ValAnyRef:
		return "anyref"
	case ValEqRef:
		return "eqref"
	case ValI31Ref:
		return "i31ref"
	case ValStructRef:
		return "structref"
	case ValArrayRef:
		return "arrayref"
	case ValExnRef:
		return "exnref"
	case ValContRef:
		return "contref"
	case ValNullRef:
		return "nullref"
	case ValNullExternRef:
		return "nullexternref"
	case ValNullFuncRef:
		return "nullfuncref"
	case ValNullExnRef:
		return "nullexnref"
	case ValNullContRef:
		return "nullcontref"
	case ValRefNull:
		return "ref null"
	case ValRef:
		return "ref"
	default:
		return "unknown"
	}
}

// shorthandHeapType maps a shorthand reference code to its heap type.
func shorthandHeapType(v ValType) (int64, bool) {
	switch v {
	case ValFuncRef:
		return HeapTypeFunc, true
	case ValExtern:
		return HeapTypeExtern, true
	case ValAnyRef:
		return HeapTypeAny, true
	case ValEqRef:
		return HeapTypeEq, true
	case ValI31Ref:
		return HeapTypeI31, true
	case ValStructRef:
		return HeapTypeStruct, true
	case ValArrayRef:
		return HeapTypeArray, true
	case ValExnRef:
		return HeapTypeExn, true
	case ValContRef:
		return HeapTypeCont, true
	case ValNullRef:
		return HeapTypeNone, true
	case ValNullExternRef:
		return HeapTypeNoExtern, true
	case ValNullFuncRef:
		return HeapTypeNoFunc, true
	case ValNullExnRef:
		return HeapTypeNoExn, true
	case ValNullContRef:
		return HeapTypeNoCont, true
	}
	return 0, false
}

// Import represents an imported function, table, memory, global, or tag.
type Import struct {
	Desc   ImportDesc
	Module string
	Name   string
}

// ImportDesc describes an imported item.
// Kind uses KindFunc, KindTable, KindMemory, KindGlobal, or KindTag constants.
type ImportDesc struct {
	Table   *TableType
	Memory  *MemoryType
	Global  *GlobalType
	Tag     *TagType
	TypeIdx uint32
	Kind    byte
}

// TableType describes a table with element type and size limits.
type TableType struct {
	Init     *ConstExpr // Explicit initializer (0x40 0x00 form)
	Limits   Limits
	ElemType RefType
}

// MemoryType describes a linear memory with size limits.
type MemoryType struct {
	PageSizeLog2 *uint32
	Limits       Limits
}

// Limits describes size constraints for tables and memories.
// Memory64 also marks 64-bit tables.
type Limits struct {
	Max      *uint64
	Min      uint64
	Shared   bool
	Memory64 bool
}

// GlobalType describes a global variable's type and mutability.
type GlobalType struct {
	Type    ExtValType
	Mutable bool
	Shared  bool
}

// ConstExpr is a constant expression with the module offset of its first byte.
type ConstExpr struct {
	Code   []byte // Raw bytes including the terminating end
	Offset int
}

// Global represents a global variable with type and initialization.
type Global struct {
	Init ConstExpr
	Type GlobalType
}

// TagType describes an exception handling tag type.
type TagType struct {
	Attribute byte   // Tag attribute (0 = exception)
	TypeIdx   uint32 // Function type index for tag signature
}

// Export describes an exported item.
// Kind uses KindFunc, KindTable, KindMemory, KindGlobal, or KindTag constants.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// Element represents an element segment.
// Flags determine the format:
//   - 0: active, tableIdx=0, offset expr, vec(funcidx)
//   - 1: passive, elemkind, vec(funcidx)
//   - 2: active, tableIdx, offset expr, elemkind, vec(funcidx)
//   - 3: declarative, elemkind, vec(funcidx)
//   - 4: active, tableIdx=0, offset expr, vec(expr)
//   - 5: passive, reftype, vec(expr)
//   - 6: active, tableIdx, offset expr, reftype, vec(expr)
//   - 7: declarative, reftype, vec(expr)
type Element struct {
	Offset   ConstExpr
	FuncIdxs []uint32
	Exprs    []ConstExpr
	Type     RefType // Element reference type; funcref for elemkind forms
	Flags    uint32
	TableIdx uint32
}

// IsActive reports whether the segment is copied into a table at instantiation
func (e *Element) IsActive() bool { return e.Flags&0x01 == 0 }

// IsDeclarative reports whether the segment only declares function references
func (e *Element) IsDeclarative() bool { return e.Flags&0x03 == 0x03 }

// UsesExprs reports whether the segment items are constant expressions
func (e *Element) UsesExprs() bool { return e.Flags&0x04 != 0 }

// Len returns the number of items in the segment
func (e *Element) Len() int {
	if e.UsesExprs() {
		return len(e.Exprs)
	}
	return len(e.FuncIdxs)
}

// FuncBody represents a function's local declarations and bytecode.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte // Raw code bytes including end opcode
	Offset int    // Module offset of Code[0]
}

// End returns the module offset just past the body
func (b *FuncBody) End() int {
	return b.Offset + len(b.Code)
}

// LocalEntry represents a group of local variables with the same type.
type LocalEntry struct {
	Type  ExtValType
	Count uint32
}

// DataSegment represents a data segment.
// Flags determine the format:
//   - 0: active, memIdx=0, offset expr, vec(byte)
//   - 1: passive, vec(byte)
//   - 2: active, memIdx, offset expr, vec(byte)
type DataSegment struct {
	Offset ConstExpr
	Init   []byte
	Flags  uint32
	MemIdx uint32
}

// IsActive reports whether the segment is copied into memory at instantiation
func (d *DataSegment) IsActive() bool { return d.Flags != 1 }

// CustomSection holds a named custom section's data.
type CustomSection struct {
	Name string
	Data []byte
}

func (m *Module) numImported(kind byte) int {
	count := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == kind {
			count++
		}
	}
	return count
}

// NumImportedFuncs returns the number of imported functions
func (m *Module) NumImportedFuncs() int { return m.numImported(KindFunc) }

// NumImportedGlobals returns the number of imported globals
func (m *Module) NumImportedGlobals() int { return m.numImported(KindGlobal) }

// NumImportedTables returns the number of imported tables
func (m *Module) NumImportedTables() int { return m.numImported(KindTable) }

// NumImportedMemories returns the number of imported memories
func (m *Module) NumImportedMemories() int { return m.numImported(KindMemory) }

// NumImportedTags returns the number of imported tags
func (m *Module) NumImportedTags() int { return m.numImported(KindTag) }

// NumTypes returns the number of types in the flat type index space.
func (m *Module) NumTypes() int {
	return len(m.Types)
}

// FuncTypeIdx returns the type index of function funcIdx
func (m *Module) FuncTypeIdx(funcIdx uint32) (uint32, bool) {
	for _, imp := range m.Imports {
		if imp.Desc.Kind != KindFunc {
			continue
		}
		if funcIdx == 0 {
			return imp.Desc.TypeIdx, true
		}
		funcIdx--
	}
	if int(funcIdx) >= len(m.Funcs) {
		return 0, false
	}
	return m.Funcs[funcIdx], true
}

// GetFuncType returns the type of a function by its index
func (m *Module) GetFuncType(funcIdx uint32) *FuncType {
	typeIdx, ok := m.FuncTypeIdx(funcIdx)
	if !ok {
		return nil
	}
	return m.FuncTypeAt(typeIdx)
}

// FuncTypeAt returns the function type at typeIdx, or nil when the index is
// out of range or names a non-function type.
func (m *Module) FuncTypeAt(typeIdx uint32) *FuncType {
	if int(typeIdx) >= len(m.Types) {
		return nil
	}
	ct := m.Types[typeIdx].CompType
	if ct.Kind != CompKindFunc {
		return nil
	}
	return ct.Func
}

// AddType adds a function type in its own recursion group and returns its
// index, reusing an existing singleton function type if equal.
func (m *Module) AddType(ft FuncType) uint32 {
	for _, g := range m.RecGroups {
		if g.Explicit || g.Count != 1 {
			continue
		}
		st := &m.Types[g.Start]
		if st.Final && len(st.Parents) == 0 && st.CompType.Kind == CompKindFunc &&
			!st.CompType.Shared && funcTypesEqual(*st.CompType.Func, ft) {
			return g.Start
		}
	}
	return m.AddSubTypes(false, FuncSubType(ft))
}

// AddSubTypes appends a recursion group and returns the index of its first type
func (m *Module) AddSubTypes(explicit bool, types ...SubType) uint32 {
	start := uint32(len(m.Types))
	m.Types = append(m.Types, types...)
	m.RecGroups = append(m.RecGroups, RecGroup{Start: start, Count: uint32(len(types)), Explicit: explicit})
	return start
}

func funcTypesEqual(a, b FuncType) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}
