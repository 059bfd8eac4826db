package wasm

import (
	"bytes"
	"fmt"

	"github.com/wippyai/wasm-validator/wasm/internal/binary"
)

// Instruction represents a decoded WebAssembly instruction
type Instruction struct {
	Imm    interface{}
	Offset int // Module offset of the opcode byte
	Opcode byte
}

// BlockImm holds the block type for block, loop, if, and try instructions.
type BlockImm struct {
	Ref  *RefType // Set when Type is BlockTypeRef or BlockTypeRefNull
	Type int32    // -64=void, negative value type code, or >=0 type index
}

// IsVoid reports whether the block has neither params nor results
func (b BlockImm) IsVoid() bool { return b.Type == BlockTypeVoid }

// IsTypeIndex reports whether the block type names a function type
func (b BlockImm) IsTypeIndex() bool { return b.Type >= 0 }

// ValType returns the single-result value type code of a shorthand block type
func (b BlockImm) ValType() ValType {
	return ValType(byte(int8(b.Type)) & 0x7F)
}

// BranchImm holds the label index for br and br_if instructions.
type BranchImm struct {
	LabelIdx uint32
}

// BrTableImm holds the label table for br_table instruction.
type BrTableImm struct {
	Labels  []uint32
	Default uint32
}

// CallImm holds the function index for call instruction.
type CallImm struct {
	FuncIdx uint32
}

// CallIndirectImm holds type and table indices for call_indirect instruction.
type CallIndirectImm struct {
	TypeIdx  uint32
	TableIdx uint32
}

// LocalImm holds the local index for local.get, local.set, local.tee.
type LocalImm struct {
	LocalIdx uint32
}

// GlobalImm holds the global index for global.get and global.set.
type GlobalImm struct {
	GlobalIdx uint32
}

// MemoryImm holds memory access parameters for load and store instructions.
type MemoryImm struct {
	Offset uint64
	Align  uint32
	MemIdx uint32
}

// MemoryIdxImm holds memory index for memory.size, memory.grow
type MemoryIdxImm struct {
	MemIdx uint32
}

// I32Imm holds the constant value for i32.const instruction.
type I32Imm struct {
	Value int32
}

// I64Imm holds the constant value for i64.const instruction.
type I64Imm struct {
	Value int64
}

// F32Imm holds the constant value for f32.const instruction.
type F32Imm struct {
	Value float32
}

// F64Imm holds the constant value for f64.const instruction.
type F64Imm struct {
	Value float64
}

// MiscImm holds the sub-opcode and immediates for 0xFC prefix instructions
type MiscImm struct {
	Operands  []uint32
	SubOpcode uint32
}

// TableImm holds table index for table.get/table.set
type TableImm struct {
	TableIdx uint32
}

// RefNullImm holds the heap type for ref.null
type RefNullImm struct {
	HeapType int64
	Shared   bool
}

// RefFuncImm holds the function index for ref.func
type RefFuncImm struct {
	FuncIdx uint32
}

// SelectTypeImm holds value types for typed select
type SelectTypeImm struct {
	Types []ExtValType
}

// SIMDImm holds SIMD instruction immediates
type SIMDImm struct {
	MemArg    *MemoryImm
	LaneIdx   *byte
	V128Bytes []byte
	SubOpcode uint32
}

// AtomicImm holds atomic instruction immediates.
// Shared-everything atomics carry an ordering and the accessed
// global, table, struct or array instead of a memarg.
type AtomicImm struct {
	MemArg    *MemoryImm
	SubOpcode uint32
	Index     uint32 // Global or table index
	TypeIdx   uint32 // Struct or array type
	FieldIdx  uint32
	Ordering  byte
}

// GCImm holds GC instruction immediates for struct/array/ref operations
type GCImm struct {
	SubOpcode uint32
	TypeIdx   uint32  // For struct.new, array.new, etc.
	FieldIdx  uint32  // For struct.get/set
	TypeIdx2  uint32  // Second type for array.copy
	DataIdx   uint32  // For array.new_data, array.init_data
	ElemIdx   uint32  // For array.new_elem, array.init_elem
	Size      uint32  // For array.new_fixed
	LabelIdx  uint32  // For br_on_cast
	RefType   RefType // Cast target of ref.test/ref.cast; source of br_on_cast
	RefType2  RefType // Target of br_on_cast
	CastFlags byte    // For br_on_cast variants
}

// ThrowImm holds tag index for throw instruction
type ThrowImm struct {
	TagIdx uint32
}

// CallRefImm holds type index for call_ref and return_call_ref
type CallRefImm struct {
	TypeIdx uint32
}

// CatchClause represents a single catch clause in try_table
type CatchClause struct {
	Kind     byte   // 0=catch, 1=catch_ref, 2=catch_all, 3=catch_all_ref
	TagIdx   uint32 // Only for Kind 0, 1
	LabelIdx uint32
}

// TryTableImm holds immediates for try_table instruction
type TryTableImm struct {
	Catches []CatchClause
	Block   BlockImm
}

// Handler is a resume handler clause: on tag label, or on tag switch
type Handler struct {
	Kind     byte // HandlerOnLabel or HandlerOnSwitch
	TagIdx   uint32
	LabelIdx uint32
}

// ContImm holds stack switching immediates
type ContImm struct {
	Handlers []Handler
	TypeIdx  uint32 // Continuation type (cont.new, cont.bind source, resume, switch)
	TypeIdx2 uint32 // cont.bind target
	TagIdx   uint32 // suspend, resume_throw, switch
}

// ParseError reports a malformed byte sequence with its module offset.
type ParseError = binary.ParseError

// OperatorReader decodes a function body or constant expression one
// instruction at a time, stamping each with its module offset.
type OperatorReader struct {
	r *binary.Reader
}

// NewOperatorReader creates a reader over code whose first byte sits at
// module offset base.
func NewOperatorReader(code []byte, base int) *OperatorReader {
	return &OperatorReader{r: binary.NewReaderAt(code, base)}
}

// EOF reports whether every byte has been decoded
func (o *OperatorReader) EOF() bool { return o.r.EOF() }

// Offset returns the module offset of the next instruction
func (o *OperatorReader) Offset() int { return o.r.Offset() }

// Read decodes the next instruction
func (o *OperatorReader) Read() (Instruction, error) {
	start := o.r.Offset()
	instr, err := decodeInstruction(o.r)
	if err != nil {
		return Instruction{}, &ParseError{Section: "code", Position: start, Err: err}
	}
	return instr, nil
}

// DecodeInstructions decodes a sequence of instructions from raw bytes
func DecodeInstructions(code []byte) ([]Instruction, error) {
	return DecodeInstructionsAt(code, 0)
}

// DecodeInstructionsAt decodes code whose first byte sits at module offset base
func DecodeInstructionsAt(code []byte, base int) ([]Instruction, error) {
	o := NewOperatorReader(code, base)
	// Pre-allocate based on estimation: roughly 2 bytes per instruction on average
	instrs := make([]Instruction, 0, len(code)/2)
	for !o.EOF() {
		instr, err := o.Read()
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, instr)
	}
	return instrs, nil
}

func decodeInstruction(r *binary.Reader) (Instruction, error) {
	instr := Instruction{Offset: r.Offset()}
	op, err := r.ReadByte()
	if err != nil {
		return instr, err
	}
	instr.Opcode = op

	switch op {
	case OpBlock, OpLoop, OpIf, OpTry:
		bt, err := readBlockType(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = bt

	case OpCatch, OpThrow:
		tagIdx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = ThrowImm{TagIdx: tagIdx}

	case OpRethrow, OpDelegate, OpBr, OpBrIf, OpBrOnNull, OpBrOnNonNull:
		labelIdx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = BranchImm{LabelIdx: labelIdx}

	case OpTryTable:
		bt, err := readBlockType(r)
		if err != nil {
			return instr, err
		}
		catchCount, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		catches := make([]CatchClause, 0, min(int(catchCount), r.Len()))
		for i := uint32(0); i < catchCount; i++ {
			kind, err := r.ReadByte()
			if err != nil {
				return instr, err
			}
			if kind > CatchKindCatchAllRef {
				return instr, fmt.Errorf("invalid catch kind 0x%02x", kind)
			}
			var tagIdx uint32
			if kind == CatchKindCatch || kind == CatchKindCatchRef {
				tagIdx, err = r.ReadU32()
				if err != nil {
					return instr, err
				}
			}
			labelIdx, err := r.ReadU32()
			if err != nil {
				return instr, err
			}
			catches = append(catches, CatchClause{Kind: kind, TagIdx: tagIdx, LabelIdx: labelIdx})
		}
		instr.Imm = TryTableImm{Block: bt, Catches: catches}

	case OpBrTable:
		count, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		labels := make([]uint32, 0, min(int(count), r.Len()))
		for i := uint32(0); i < count; i++ {
			l, err := r.ReadU32()
			if err != nil {
				return instr, err
			}
			labels = append(labels, l)
		}
		def, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = BrTableImm{Labels: labels, Default: def}

	case OpCall, OpReturnCall:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = CallImm{FuncIdx: idx}

	case OpCallIndirect, OpReturnCallIndirect:
		typeIdx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		tableIdx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = CallIndirectImm{TypeIdx: typeIdx, TableIdx: tableIdx}

	case OpCallRef, OpReturnCallRef:
		typeIdx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = CallRefImm{TypeIdx: typeIdx}

	case OpLocalGet, OpLocalSet, OpLocalTee:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = LocalImm{LocalIdx: idx}

	case OpGlobalGet, OpGlobalSet:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = GlobalImm{GlobalIdx: idx}

	case OpTableGet, OpTableSet:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = TableImm{TableIdx: idx}

	case OpI32Load, OpI64Load, OpF32Load, OpF64Load,
		OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U,
		OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U, OpI64Load32S, OpI64Load32U,
		OpI32Store, OpI64Store, OpF32Store, OpF64Store,
		OpI32Store8, OpI32Store16, OpI64Store8, OpI64Store16, OpI64Store32:
		memImm, err := readMemArg(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = memImm

	case OpMemorySize, OpMemoryGrow:
		memIdx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = MemoryIdxImm{MemIdx: memIdx}

	case OpI32Const:
		val, err := r.ReadS32()
		if err != nil {
			return instr, err
		}
		instr.Imm = I32Imm{Value: val}

	case OpI64Const:
		val, err := r.ReadS64()
		if err != nil {
			return instr, err
		}
		instr.Imm = I64Imm{Value: val}

	case OpF32Const:
		val, err := r.ReadF32()
		if err != nil {
			return instr, err
		}
		instr.Imm = F32Imm{Value: val}

	case OpF64Const:
		val, err := r.ReadF64()
		if err != nil {
			return instr, err
		}
		instr.Imm = F64Imm{Value: val}

	case OpRefNull:
		heap, shared, err := readHeapType(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = RefNullImm{HeapType: heap, Shared: shared}

	case OpRefFunc:
		funcIdx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = RefFuncImm{FuncIdx: funcIdx}

	case OpSelectType:
		count, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		types := make([]ExtValType, 0, min(int(count), r.Len()))
		for i := uint32(0); i < count; i++ {
			t, err := readValType(r)
			if err != nil {
				return instr, err
			}
			types = append(types, t)
		}
		instr.Imm = SelectTypeImm{Types: types}

	case OpContNew:
		typeIdx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = ContImm{TypeIdx: typeIdx}

	case OpContBind:
		src, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		dst, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = ContImm{TypeIdx: src, TypeIdx2: dst}

	case OpSuspend:
		tagIdx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = ContImm{TagIdx: tagIdx}

	case OpResume, OpResumeThrow:
		var imm ContImm
		if imm.TypeIdx, err = r.ReadU32(); err != nil {
			return instr, err
		}
		if op == OpResumeThrow {
			if imm.TagIdx, err = r.ReadU32(); err != nil {
				return instr, err
			}
		}
		if imm.Handlers, err = readHandlers(r); err != nil {
			return instr, err
		}
		instr.Imm = imm

	case OpSwitch:
		typeIdx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		tagIdx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = ContImm{TypeIdx: typeIdx, TagIdx: tagIdx}

	case OpUnreachable, OpNop, OpElse, OpEnd, OpReturn, OpDrop, OpSelect, OpRefIsNull,
		OpRefAsNonNull, OpRefEq, OpCatchAll, OpThrowRef:
		// No immediate

	case OpPrefixMisc:
		imm, err := decodeMiscImmediate(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = imm

	case OpPrefixSIMD:
		imm, err := decodeSIMDImmediate(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = imm

	case OpPrefixAtomic:
		imm, err := decodeAtomicImmediate(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = imm

	case OpPrefixGC:
		imm, err := decodeGCImmediate(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = imm

	default:
		// Numeric operators 0x45..0xC4 carry no immediates
		if op < OpI32Eqz || op > OpI64Extend32S {
			return instr, fmt.Errorf("unknown opcode: 0x%02x", op)
		}
	}

	return instr, nil
}

func readBlockType(r *binary.Reader) (BlockImm, error) {
	v, err := r.ReadS33()
	if err != nil {
		return BlockImm{}, err
	}
	if v > int64(^uint32(0)) {
		return BlockImm{}, fmt.Errorf("block type index %d out of range", v)
	}
	bt := BlockImm{Type: int32(v)}
	if v >= 0 {
		return bt, nil
	}
	if bt.Type == BlockTypeRef || bt.Type == BlockTypeRefNull {
		heap, shared, err := readHeapType(r)
		if err != nil {
			return BlockImm{}, err
		}
		bt.Ref = &RefType{Nullable: bt.Type == BlockTypeRefNull, Shared: shared, HeapType: heap}
		return bt, nil
	}
	if v < -64 {
		return BlockImm{}, fmt.Errorf("invalid block type %d", v)
	}
	return bt, nil
}

// readHeapType reads an s33 heap type with an optional shared prefix
func readHeapType(r *binary.Reader) (int64, bool, error) {
	v, err := r.ReadS33()
	if err != nil {
		return 0, false, err
	}
	if v != HeapTypeSharedPrefix {
		return v, false, checkHeapType(v)
	}
	v, err = r.ReadS33()
	if err != nil {
		return 0, false, err
	}
	if v >= 0 {
		return 0, false, fmt.Errorf("shared prefix on concrete heap type %d", v)
	}
	return v, true, checkHeapType(v)
}

func checkHeapType(v int64) error {
	if v >= 0 {
		if v > int64(^uint32(0)) {
			return fmt.Errorf("heap type index %d out of range", v)
		}
		return nil
	}
	if v >= HeapTypeCont && v <= HeapTypeNoCont {
		return nil
	}
	return fmt.Errorf("invalid heap type %d", v)
}

// readValType reads a value type, expanding shorthand reference codes
func readValType(r *binary.Reader) (ExtValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return ExtValType{}, err
	}
	v := ValType(b)
	switch v {
	case ValI32, ValI64, ValF32, ValF64, ValV128:
		return Val(v), nil
	case ValRef, ValRefNull:
		heap, shared, err := readHeapType(r)
		if err != nil {
			return ExtValType{}, err
		}
		t := Ref(v == ValRefNull, heap)
		t.RefType.Shared = shared
		return t, nil
	}
	if heap, ok := shorthandHeapType(v); ok {
		return Ref(true, heap), nil
	}
	return ExtValType{}, fmt.Errorf("invalid value type 0x%02x", b)
}

// readRefType reads a value type that must be a reference type
func readRefType(r *binary.Reader) (RefType, error) {
	t, err := readValType(r)
	if err != nil {
		return RefType{}, err
	}
	if !t.IsRef() {
		return RefType{}, fmt.Errorf("expected reference type, found %s", t.ValType)
	}
	return t.RefType, nil
}

func readHandlers(r *binary.Reader) ([]Handler, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	handlers := make([]Handler, 0, min(int(count), r.Len()))
	for i := uint32(0); i < count; i++ {
		kind, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		h := Handler{Kind: kind}
		if h.TagIdx, err = r.ReadU32(); err != nil {
			return nil, err
		}
		switch kind {
		case HandlerOnLabel:
			if h.LabelIdx, err = r.ReadU32(); err != nil {
				return nil, err
			}
		case HandlerOnSwitch:
		default:
			return nil, fmt.Errorf("invalid resume handler kind 0x%02x", kind)
		}
		handlers = append(handlers, h)
	}
	return handlers, nil
}

func decodeMiscImmediate(r *binary.Reader) (MiscImm, error) {
	subOp, err := r.ReadU32()
	if err != nil {
		return MiscImm{}, err
	}
	imm := MiscImm{SubOpcode: subOp}

	var n int
	switch subOp {
	case MiscI32TruncSatF32S, MiscI32TruncSatF32U,
		MiscI32TruncSatF64S, MiscI32TruncSatF64U,
		MiscI64TruncSatF32S, MiscI64TruncSatF32U,
		MiscI64TruncSatF64S, MiscI64TruncSatF64U:
		n = 0
	case MiscMemoryInit, MiscMemoryCopy, MiscTableInit, MiscTableCopy:
		// memory.init: dataidx memidx, memory.copy: dst src,
		// table.init: elemidx tableidx, table.copy: dst src
		n = 2
	case MiscDataDrop, MiscMemoryFill, MiscElemDrop,
		MiscTableGrow, MiscTableSize, MiscTableFill, MiscMemoryDiscard:
		n = 1
	default:
		return MiscImm{}, fmt.Errorf("unknown 0xFC sub-opcode: 0x%02x", subOp)
	}
	if n > 0 {
		imm.Operands = make([]uint32, n)
		for i := range imm.Operands {
			if imm.Operands[i], err = r.ReadU32(); err != nil {
				return MiscImm{}, err
			}
		}
	}
	return imm, nil
}

func decodeSIMDImmediate(r *binary.Reader) (SIMDImm, error) {
	subOp, err := r.ReadU32()
	if err != nil {
		return SIMDImm{}, err
	}
	if subOp > SimdI32x4RelaxedDotI8x16I7x16AddS {
		return SIMDImm{}, fmt.Errorf("unknown 0xFD sub-opcode: 0x%02x", subOp)
	}

	imm := SIMDImm{SubOpcode: subOp}

	switch {
	case subOp <= SimdV128Load64Splat || subOp == SimdV128Store,
		subOp == SimdV128Load32Zero || subOp == SimdV128Load64Zero:
		memArg, err := readMemArg(r)
		if err != nil {
			return SIMDImm{}, err
		}
		imm.MemArg = &memArg

	case subOp == SimdV128Const, subOp == SimdI8x16Shuffle:
		// 16 raw bytes: the constant or the shuffle lane indices
		raw, err := r.ReadBytes(16)
		if err != nil {
			return SIMDImm{}, err
		}
		imm.V128Bytes = append([]byte(nil), raw...)

	case subOp >= SimdI8x16ExtractLaneS && subOp <= SimdF64x2ReplaceLane:
		b, err := r.ReadByte()
		if err != nil {
			return SIMDImm{}, err
		}
		imm.LaneIdx = &b

	case subOp >= SimdV128Load8Lane && subOp <= SimdV128Store64Lane:
		memArg, err := readMemArg(r)
		if err != nil {
			return SIMDImm{}, err
		}
		imm.MemArg = &memArg
		b, err := r.ReadByte()
		if err != nil {
			return SIMDImm{}, err
		}
		imm.LaneIdx = &b
	}

	return imm, nil
}

func decodeAtomicImmediate(r *binary.Reader) (AtomicImm, error) {
	subOp, err := r.ReadU32()
	if err != nil {
		return AtomicImm{}, err
	}

	imm := AtomicImm{SubOpcode: subOp}

	switch {
	case subOp == AtomicFence:
		// atomic.fence has a single reserved byte
		b, err := r.ReadByte()
		if err != nil {
			return AtomicImm{}, err
		}
		if b != 0 {
			return AtomicImm{}, fmt.Errorf("atomic.fence reserved byte must be zero, got 0x%02x", b)
		}

	case subOp <= AtomicI64Rmw32CmpxchgU:
		memArg, err := readMemArg(r)
		if err != nil {
			return AtomicImm{}, err
		}
		imm.MemArg = &memArg

	case subOp == AtomicRefI31Shared:
		// No immediates

	case subOp >= AtomicGlobalGet && subOp <= AtomicArrayRmwCmpxchg:
		if imm.Ordering, err = r.ReadByte(); err != nil {
			return AtomicImm{}, err
		}
		if imm.Ordering > OrderAcqRel {
			return AtomicImm{}, fmt.Errorf("invalid memory ordering 0x%02x", imm.Ordering)
		}
		switch {
		case subOp <= AtomicTableRmwCmpxchg:
			imm.Index, err = r.ReadU32()
		case subOp <= AtomicStructRmwCmpxchg:
			if imm.TypeIdx, err = r.ReadU32(); err == nil {
				imm.FieldIdx, err = r.ReadU32()
			}
		default:
			imm.TypeIdx, err = r.ReadU32()
		}
		if err != nil {
			return AtomicImm{}, err
		}

	default:
		return AtomicImm{}, fmt.Errorf("unknown 0xFE sub-opcode: 0x%02x", subOp)
	}

	return imm, nil
}

func decodeGCImmediate(r *binary.Reader) (GCImm, error) {
	subOp, err := r.ReadU32()
	if err != nil {
		return GCImm{}, err
	}

	imm := GCImm{SubOpcode: subOp}

	switch subOp {
	case GCStructNew, GCStructNewDefault,
		GCArrayNew, GCArrayNewDefault, GCArrayGet, GCArrayGetS, GCArrayGetU,
		GCArraySet, GCArrayFill:
		imm.TypeIdx, err = r.ReadU32()

	case GCStructGet, GCStructGetS, GCStructGetU, GCStructSet:
		if imm.TypeIdx, err = r.ReadU32(); err == nil {
			imm.FieldIdx, err = r.ReadU32()
		}

	case GCArrayNewFixed:
		if imm.TypeIdx, err = r.ReadU32(); err == nil {
			imm.Size, err = r.ReadU32()
		}

	case GCArrayNewData, GCArrayInitData:
		if imm.TypeIdx, err = r.ReadU32(); err == nil {
			imm.DataIdx, err = r.ReadU32()
		}

	case GCArrayNewElem, GCArrayInitElem:
		if imm.TypeIdx, err = r.ReadU32(); err == nil {
			imm.ElemIdx, err = r.ReadU32()
		}

	case GCArrayCopy:
		if imm.TypeIdx, err = r.ReadU32(); err == nil {
			imm.TypeIdx2, err = r.ReadU32()
		}

	case GCRefTest, GCRefTestNull, GCRefCast, GCRefCastNull:
		heap, shared, herr := readHeapType(r)
		err = herr
		imm.RefType = RefType{
			Nullable: subOp == GCRefTestNull || subOp == GCRefCastNull,
			Shared:   shared,
			HeapType: heap,
		}

	case GCBrOnCast, GCBrOnCastFail:
		// castflags, labelidx, heaptype, heaptype
		if imm.CastFlags, err = r.ReadByte(); err != nil {
			return GCImm{}, err
		}
		if imm.CastFlags > CastFlagsBothNull {
			return GCImm{}, fmt.Errorf("invalid cast flags 0x%02x", imm.CastFlags)
		}
		if imm.LabelIdx, err = r.ReadU32(); err != nil {
			return GCImm{}, err
		}
		heap, shared, err := readHeapType(r)
		if err != nil {
			return GCImm{}, err
		}
		imm.RefType = RefType{Nullable: imm.CastFlags&CastFlagsFirstNull != 0, Shared: shared, HeapType: heap}
		heap, shared, err = readHeapType(r)
		if err != nil {
			return GCImm{}, err
		}
		imm.RefType2 = RefType{Nullable: imm.CastFlags&CastFlagsSecondNull != 0, Shared: shared, HeapType: heap}

	case GCArrayLen, GCAnyConvertExtern, GCExternConvertAny,
		GCRefI31, GCI31GetS, GCI31GetU:
		// No immediates

	default:
		return GCImm{}, fmt.Errorf("unknown 0xFB sub-opcode: 0x%02x", subOp)
	}
	if err != nil {
		return GCImm{}, err
	}

	return imm, nil
}

// Multi-memory memarg bit flag
const memArgMultiMemBit = 0x40

// readMemArg reads a memarg with multi-memory support.
// If bit 6 of align is set, a separate memidx LEB128 follows.
func readMemArg(r *binary.Reader) (MemoryImm, error) {
	alignRaw, err := r.ReadU32()
	if err != nil {
		return MemoryImm{}, err
	}

	var memIdx uint32
	if alignRaw&memArgMultiMemBit != 0 {
		memIdx, err = r.ReadU32()
		if err != nil {
			return MemoryImm{}, err
		}
	}

	offset, err := r.ReadU64()
	if err != nil {
		return MemoryImm{}, err
	}

	return MemoryImm{
		Align:  alignRaw & ^uint32(memArgMultiMemBit),
		Offset: offset,
		MemIdx: memIdx,
	}, nil
}

// EncodeInstructionTo writes a single instruction to the provided buffer.
func EncodeInstructionTo(buf *bytes.Buffer, instr *Instruction) {
	buf.WriteByte(instr.Opcode)

	switch instr.Opcode {
	case OpBlock, OpLoop, OpIf, OpTry:
		writeBlockType(buf, instr.Imm.(BlockImm))

	case OpCatch, OpThrow:
		binary.PutU32(buf, instr.Imm.(ThrowImm).TagIdx)

	case OpRethrow, OpDelegate, OpBr, OpBrIf, OpBrOnNull, OpBrOnNonNull:
		binary.PutU32(buf, instr.Imm.(BranchImm).LabelIdx)

	case OpTryTable:
		imm := instr.Imm.(TryTableImm)
		writeBlockType(buf, imm.Block)
		binary.PutU32(buf, uint32(len(imm.Catches)))
		for _, c := range imm.Catches {
			buf.WriteByte(c.Kind)
			if c.Kind == CatchKindCatch || c.Kind == CatchKindCatchRef {
				binary.PutU32(buf, c.TagIdx)
			}
			binary.PutU32(buf, c.LabelIdx)
		}

	case OpBrTable:
		imm := instr.Imm.(BrTableImm)
		binary.PutU32(buf, uint32(len(imm.Labels)))
		for _, l := range imm.Labels {
			binary.PutU32(buf, l)
		}
		binary.PutU32(buf, imm.Default)

	case OpCall, OpReturnCall:
		binary.PutU32(buf, instr.Imm.(CallImm).FuncIdx)

	case OpCallIndirect, OpReturnCallIndirect:
		imm := instr.Imm.(CallIndirectImm)
		binary.PutU32(buf, imm.TypeIdx)
		binary.PutU32(buf, imm.TableIdx)

	case OpCallRef, OpReturnCallRef:
		binary.PutU32(buf, instr.Imm.(CallRefImm).TypeIdx)

	case OpLocalGet, OpLocalSet, OpLocalTee:
		binary.PutU32(buf, instr.Imm.(LocalImm).LocalIdx)

	case OpGlobalGet, OpGlobalSet:
		binary.PutU32(buf, instr.Imm.(GlobalImm).GlobalIdx)

	case OpTableGet, OpTableSet:
		binary.PutU32(buf, instr.Imm.(TableImm).TableIdx)

	case OpI32Load, OpI64Load, OpF32Load, OpF64Load,
		OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U,
		OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U, OpI64Load32S, OpI64Load32U,
		OpI32Store, OpI64Store, OpF32Store, OpF64Store,
		OpI32Store8, OpI32Store16, OpI64Store8, OpI64Store16, OpI64Store32:
		writeMemArg(buf, instr.Imm.(MemoryImm))

	case OpMemorySize, OpMemoryGrow:
		binary.PutU32(buf, instr.Imm.(MemoryIdxImm).MemIdx)

	case OpI32Const:
		binary.PutS64(buf, int64(instr.Imm.(I32Imm).Value))

	case OpI64Const:
		binary.PutS64(buf, instr.Imm.(I64Imm).Value)

	case OpF32Const:
		binary.PutF32(buf, instr.Imm.(F32Imm).Value)

	case OpF64Const:
		binary.PutF64(buf, instr.Imm.(F64Imm).Value)

	case OpRefNull:
		imm := instr.Imm.(RefNullImm)
		writeHeapType(buf, imm.HeapType, imm.Shared)

	case OpRefFunc:
		binary.PutU32(buf, instr.Imm.(RefFuncImm).FuncIdx)

	case OpSelectType:
		imm := instr.Imm.(SelectTypeImm)
		binary.PutU32(buf, uint32(len(imm.Types)))
		for _, t := range imm.Types {
			writeValType(buf, t)
		}

	case OpContNew:
		binary.PutU32(buf, instr.Imm.(ContImm).TypeIdx)

	case OpContBind:
		imm := instr.Imm.(ContImm)
		binary.PutU32(buf, imm.TypeIdx)
		binary.PutU32(buf, imm.TypeIdx2)

	case OpSuspend:
		binary.PutU32(buf, instr.Imm.(ContImm).TagIdx)

	case OpResume, OpResumeThrow:
		imm := instr.Imm.(ContImm)
		binary.PutU32(buf, imm.TypeIdx)
		if instr.Opcode == OpResumeThrow {
			binary.PutU32(buf, imm.TagIdx)
		}
		binary.PutU32(buf, uint32(len(imm.Handlers)))
		for _, h := range imm.Handlers {
			buf.WriteByte(h.Kind)
			binary.PutU32(buf, h.TagIdx)
			if h.Kind == HandlerOnLabel {
				binary.PutU32(buf, h.LabelIdx)
			}
		}

	case OpSwitch:
		imm := instr.Imm.(ContImm)
		binary.PutU32(buf, imm.TypeIdx)
		binary.PutU32(buf, imm.TagIdx)

	case OpPrefixMisc:
		imm := instr.Imm.(MiscImm)
		binary.PutU32(buf, imm.SubOpcode)
		for _, v := range imm.Operands {
			binary.PutU32(buf, v)
		}

	case OpPrefixSIMD:
		encodeSIMDImmediate(buf, instr.Imm.(SIMDImm))

	case OpPrefixAtomic:
		encodeAtomicImmediate(buf, instr.Imm.(AtomicImm))

	case OpPrefixGC:
		encodeGCImmediate(buf, instr.Imm.(GCImm))
	}
}

// EncodeInstructionsTo writes multiple instructions to the provided buffer.
func EncodeInstructionsTo(buf *bytes.Buffer, instrs []Instruction) {
	for i := range instrs {
		EncodeInstructionTo(buf, &instrs[i])
	}
}

// EncodeInstructions encodes instructions to bytes
func EncodeInstructions(instrs []Instruction) []byte {
	var buf bytes.Buffer
	buf.Grow(len(instrs) * 3) // estimate 3 bytes per instruction
	EncodeInstructionsTo(&buf, instrs)
	return buf.Bytes()
}

func writeBlockType(buf *bytes.Buffer, bt BlockImm) {
	if bt.Ref != nil {
		writeValType(buf, ExtValType{Kind: ExtValKindRef, RefType: *bt.Ref})
		return
	}
	binary.PutS64(buf, int64(bt.Type))
}

func writeHeapType(buf *bytes.Buffer, heap int64, shared bool) {
	if shared {
		buf.WriteByte(SharedTypeByte)
	}
	binary.PutS64(buf, heap)
}

// writeValType writes t, using the one-byte shorthand for nullable
// unshared abstract references.
func writeValType(buf *bytes.Buffer, t ExtValType) {
	if !t.IsRef() {
		buf.WriteByte(byte(t.ValType))
		return
	}
	rt := t.RefType
	if rt.Nullable && !rt.Shared && rt.HeapType < 0 {
		buf.WriteByte(byte(rt.HeapType) & 0x7F)
		return
	}
	if rt.Nullable {
		buf.WriteByte(byte(ValRefNull))
	} else {
		buf.WriteByte(byte(ValRef))
	}
	writeHeapType(buf, rt.HeapType, rt.Shared)
}

func encodeSIMDImmediate(buf *bytes.Buffer, imm SIMDImm) {
	binary.PutU32(buf, imm.SubOpcode)

	if imm.MemArg != nil {
		writeMemArg(buf, *imm.MemArg)
	}
	if len(imm.V128Bytes) > 0 {
		buf.Write(imm.V128Bytes)
	}
	if imm.LaneIdx != nil {
		buf.WriteByte(*imm.LaneIdx)
	}
}

func encodeAtomicImmediate(buf *bytes.Buffer, imm AtomicImm) {
	binary.PutU32(buf, imm.SubOpcode)

	switch {
	case imm.SubOpcode == AtomicFence:
		buf.WriteByte(0) // reserved byte
	case imm.SubOpcode <= AtomicI64Rmw32CmpxchgU:
		if imm.MemArg != nil {
			writeMemArg(buf, *imm.MemArg)
		}
	case imm.SubOpcode == AtomicRefI31Shared:
	case imm.SubOpcode <= AtomicTableRmwCmpxchg:
		buf.WriteByte(imm.Ordering)
		binary.PutU32(buf, imm.Index)
	case imm.SubOpcode <= AtomicStructRmwCmpxchg:
		buf.WriteByte(imm.Ordering)
		binary.PutU32(buf, imm.TypeIdx)
		binary.PutU32(buf, imm.FieldIdx)
	default:
		buf.WriteByte(imm.Ordering)
		binary.PutU32(buf, imm.TypeIdx)
	}
}

func encodeGCImmediate(buf *bytes.Buffer, imm GCImm) {
	binary.PutU32(buf, imm.SubOpcode)

	switch imm.SubOpcode {
	case GCStructNew, GCStructNewDefault,
		GCArrayNew, GCArrayNewDefault, GCArrayGet, GCArrayGetS, GCArrayGetU,
		GCArraySet, GCArrayFill:
		binary.PutU32(buf, imm.TypeIdx)

	case GCStructGet, GCStructGetS, GCStructGetU, GCStructSet:
		binary.PutU32(buf, imm.TypeIdx)
		binary.PutU32(buf, imm.FieldIdx)

	case GCArrayNewFixed:
		binary.PutU32(buf, imm.TypeIdx)
		binary.PutU32(buf, imm.Size)

	case GCArrayNewData, GCArrayInitData:
		binary.PutU32(buf, imm.TypeIdx)
		binary.PutU32(buf, imm.DataIdx)

	case GCArrayNewElem, GCArrayInitElem:
		binary.PutU32(buf, imm.TypeIdx)
		binary.PutU32(buf, imm.ElemIdx)

	case GCArrayCopy:
		binary.PutU32(buf, imm.TypeIdx)
		binary.PutU32(buf, imm.TypeIdx2)

	case GCRefTest, GCRefTestNull, GCRefCast, GCRefCastNull:
		writeHeapType(buf, imm.RefType.HeapType, imm.RefType.Shared)

	case GCBrOnCast, GCBrOnCastFail:
		buf.WriteByte(imm.CastFlags)
		binary.PutU32(buf, imm.LabelIdx)
		writeHeapType(buf, imm.RefType.HeapType, imm.RefType.Shared)
		writeHeapType(buf, imm.RefType2.HeapType, imm.RefType2.Shared)
	}
}

// writeMemArg writes a memarg with multi-memory support.
func writeMemArg(buf *bytes.Buffer, imm MemoryImm) {
	alignRaw := imm.Align
	if imm.MemIdx != 0 {
		alignRaw |= memArgMultiMemBit
	}
	binary.PutU32(buf, alignRaw)
	if imm.MemIdx != 0 {
		binary.PutU32(buf, imm.MemIdx)
	}
	binary.PutU64(buf, imm.Offset)
}
