package validator

import (
	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/wasm"
)

// FrameKind identifies the instruction that opened a control frame
type FrameKind uint8

// Control frame kinds
const (
	FrameBlock FrameKind = iota
	FrameLoop
	FrameIf
	FrameElse
	FrameTryTable
	FrameLegacyTry
	FrameLegacyCatch
	FrameLegacyCatchAll
)

func (k FrameKind) String() string {
	switch k {
	case FrameBlock:
		return "block"
	case FrameLoop:
		return "loop"
	case FrameIf:
		return "if"
	case FrameElse:
		return "else"
	case FrameTryTable:
		return "try_table"
	case FrameLegacyTry:
		return "try"
	case FrameLegacyCatch:
		return "catch"
	case FrameLegacyCatchAll:
		return "catch_all"
	}
	return "unknown"
}

type blockKind uint8

const (
	blockEmpty blockKind = iota
	blockValue
	blockFunc
)

// BlockType is the signature of a structured instruction
type BlockType struct {
	fn   *FuncType
	val  ValType
	kind blockKind
}

// EmptyBlock has neither params nor results
var EmptyBlock = BlockType{}

// ValueBlock produces a single value of type t
func ValueBlock(t ValType) BlockType {
	return BlockType{kind: blockValue, val: t}
}

// FuncBlock takes and produces the values of fn
func FuncBlock(fn *FuncType) BlockType {
	return BlockType{kind: blockFunc, fn: fn}
}

func (b BlockType) params() typeSeq {
	if b.kind == blockFunc {
		return typeSeq{list: b.fn.Params}
	}
	return typeSeq{}
}

func (b BlockType) results() typeSeq {
	switch b.kind {
	case blockValue:
		return typeSeq{one: b.val, single: true}
	case blockFunc:
		return typeSeq{list: b.fn.Results}
	}
	return typeSeq{}
}

// typeSeq is a read-only sequence of value types that does not allocate
// for the single result case.
type typeSeq struct {
	list   []ValType
	one    ValType
	single bool
}

func (s typeSeq) Len() int {
	if s.single {
		return 1
	}
	return len(s.list)
}

func (s typeSeq) At(i int) ValType {
	if s.single {
		return s.one
	}
	return s.list[i]
}

// withoutLast drops the final type. s must not be empty.
func (s typeSeq) withoutLast() typeSeq {
	if s.single {
		return typeSeq{}
	}
	return typeSeq{list: s.list[:len(s.list)-1]}
}

func seqOf(list []ValType) typeSeq { return typeSeq{list: list} }

// Frame is one entry of the control stack
type Frame struct {
	Block       BlockType
	Height      int
	InitHeight  int
	Kind        FrameKind
	Unreachable bool
}

// operatorValidator is the operand and control stack machine for one
// function body or constant expression.
type operatorValidator struct {
	res      Resources
	operands []MaybeType
	control  []Frame
	popPush  []MaybeType
	locals   locals
	inits    localInits

	features   Features
	offset     int
	endOffset  int
	maxControl int
	maxOperand int

	constExpr       bool
	globalLimit     uint32
	importedGlobals uint32
	referenced      func(funcIdx uint32)
}

func (v *operatorValidator) errorf(kind errors.Kind, format string, args ...any) error {
	return errors.Validation(kind, v.offset, format, args...)
}

func (v *operatorValidator) mismatch(expected, found string) error {
	return errors.TypeMismatch(v.offset, expected, found)
}

func (v *operatorValidator) require(f Features, what string) error {
	if v.features.Has(f) {
		return nil
	}
	return errors.FeatureDisabled(v.offset, f.Name(), what)
}

func (v *operatorValidator) push(t MaybeType) {
	v.operands = append(v.operands, t)
}

func (v *operatorValidator) pushType(t ValType) {
	v.operands = append(v.operands, MaybeType{state: maybeKnown, ty: t})
}

func (v *operatorValidator) pushTypes(s typeSeq) {
	for i := 0; i < s.Len(); i++ {
		v.pushType(s.At(i))
	}
}

// pop removes the top operand, checking it against expected. The common
// case of an exact match above the frame floor returns immediately.
func (v *operatorValidator) pop(expected ValType) (MaybeType, error) {
	n := len(v.operands)
	if n > 0 && len(v.control) > 0 {
		top := v.operands[n-1]
		if top.state == maybeKnown && top.ty == expected && n > v.control[len(v.control)-1].Height {
			v.operands = v.operands[:n-1]
			return top, nil
		}
	}
	return v.popSlow(expected, true)
}

// popAny removes the top operand without checking its type
func (v *operatorValidator) popAny() (MaybeType, error) {
	return v.popSlow(ValType{}, false)
}

func (v *operatorValidator) popSlow(expected ValType, check bool) (MaybeType, error) {
	if len(v.control) == 0 {
		return MaybeType{}, v.errorf(errors.KindControlStackUnderflow, "control stack empty: operators remaining after end of function")
	}
	frame := &v.control[len(v.control)-1]
	var actual MaybeType
	if len(v.operands) == frame.Height {
		if !frame.Unreachable {
			desc := "a type"
			if check {
				desc = expected.String()
			}
			return MaybeType{}, errors.StackUnderflow(v.offset, desc)
		}
		actual = Bottom()
	} else {
		actual = v.operands[len(v.operands)-1]
		v.operands = v.operands[:len(v.operands)-1]
	}
	if !check {
		return actual, nil
	}
	switch actual.state {
	case maybeUnknownRef:
		if !expected.IsRef() {
			return MaybeType{}, v.mismatch(expected.String(), actual.String())
		}
		if actual.abs != 0 {
			h := HeapType{kind: heapAbstract, abs: actual.abs, shared: expected.ref.heap.shared}
			if !v.res.IsSubtype(Ref(true, h), Ref(true, expected.ref.heap)) {
				return MaybeType{}, v.mismatch(expected.String(), actual.String())
			}
		}
	case maybeKnown:
		if !v.res.IsSubtype(actual.ty, expected) {
			return MaybeType{}, v.mismatch(expected.String(), actual.ty.String())
		}
	}
	return actual, nil
}

// popRef pops any reference. Bottom becomes an unknown reference.
func (v *operatorValidator) popRef() (MaybeType, error) {
	t, err := v.popAny()
	if err != nil {
		return t, err
	}
	switch t.state {
	case maybeBottom:
		return UnknownRef(0), nil
	case maybeKnown:
		if !t.ty.IsRef() {
			return t, v.mismatch("reference type", t.ty.String())
		}
	}
	return t, nil
}

func (v *operatorValidator) popTypes(s typeSeq) error {
	for i := s.Len() - 1; i >= 0; i-- {
		if _, err := v.pop(s.At(i)); err != nil {
			return err
		}
	}
	return nil
}

// stackOp pops in and pushes out
func (v *operatorValidator) stackOp(in typeSeq, out ValType) error {
	if err := v.popTypes(in); err != nil {
		return err
	}
	v.pushType(out)
	return nil
}

// matchOperand checks actual against expected without a net stack effect
func (v *operatorValidator) matchOperand(actual, expected ValType) error {
	v.pushType(actual)
	_, err := v.pop(expected)
	return err
}

// matchStackOperands checks the top of the stack against expected and
// leaves it unchanged.
func (v *operatorValidator) matchStackOperands(expected typeSeq) error {
	v.popPush = v.popPush[:0]
	for i := expected.Len() - 1; i >= 0; i-- {
		t, err := v.pop(expected.At(i))
		if err != nil {
			return err
		}
		v.popPush = append(v.popPush, t)
	}
	for i := len(v.popPush) - 1; i >= 0; i-- {
		v.push(v.popPush[i])
	}
	return nil
}

func (v *operatorValidator) pushCtrl(kind FrameKind, bt BlockType) error {
	if err := v.enterFrame(kind, bt); err != nil {
		return err
	}
	v.pushTypes(bt.params())
	return nil
}

// enterFrame opens a frame at the current height without pushing params
func (v *operatorValidator) enterFrame(kind FrameKind, bt BlockType) error {
	if v.maxControl > 0 && len(v.control) >= v.maxControl {
		return v.errorf(errors.KindLimitExceeded, "control frames nested deeper than %d", v.maxControl)
	}
	v.control = append(v.control, Frame{
		Kind:       kind,
		Block:      bt,
		Height:     len(v.operands),
		InitHeight: v.inits.height(),
	})
	return nil
}

func (v *operatorValidator) popCtrl() (Frame, error) {
	if len(v.control) == 0 {
		return Frame{}, v.errorf(errors.KindControlStackUnderflow, "control stack empty: operators remaining after end of function")
	}
	frame := v.control[len(v.control)-1]
	v.inits.resetTo(frame.InitHeight)
	if err := v.popTypes(frame.Block.results()); err != nil {
		return Frame{}, err
	}
	if len(v.operands) != frame.Height {
		return Frame{}, v.errorf(errors.KindUnbalancedStack, "type mismatch: values remaining on stack at end of block")
	}
	v.control = v.control[:len(v.control)-1]
	return frame, nil
}

// jump resolves a relative branch depth
func (v *operatorValidator) jump(depth uint32) (BlockType, FrameKind, error) {
	if int64(depth) >= int64(len(v.control)) {
		return BlockType{}, 0, v.errorf(errors.KindUnknownLabel, "unknown label: branch depth too large")
	}
	f := &v.control[len(v.control)-1-int(depth)]
	return f.Block, f.Kind, nil
}

// labelTypes returns what a branch to a frame must supply
func labelTypes(bt BlockType, kind FrameKind) typeSeq {
	if kind == FrameLoop {
		return bt.params()
	}
	return bt.results()
}

func (v *operatorValidator) labelTypesAt(depth uint32) (typeSeq, error) {
	bt, kind, err := v.jump(depth)
	if err != nil {
		return typeSeq{}, err
	}
	return labelTypes(bt, kind), nil
}

// unreachable marks the rest of the current frame as dead code
func (v *operatorValidator) unreachable() error {
	if len(v.control) == 0 {
		return v.errorf(errors.KindControlStackUnderflow, "control stack empty: operators remaining after end of function")
	}
	frame := &v.control[len(v.control)-1]
	frame.Unreachable = true
	v.operands = v.operands[:frame.Height]
	return nil
}

// blockType resolves and feature-gates a decoded block type
func (v *operatorValidator) blockType(imm wasm.BlockImm) (BlockType, error) {
	switch {
	case imm.IsVoid():
		return EmptyBlock, nil
	case imm.IsTypeIndex():
		fn, err := v.funcTypeAt(uint32(imm.Type))
		if err != nil {
			return BlockType{}, err
		}
		if (len(fn.Params) > 0 || len(fn.Results) > 1) && !v.features.Has(FeatureMultiValue) {
			return BlockType{}, errors.FeatureDisabled(v.offset, FeatureMultiValue.Name(), "block type with params or multiple results")
		}
		return FuncBlock(fn), nil
	case imm.Ref != nil:
		rt, err := FromWasmRef(*imm.Ref)
		if err != nil {
			return BlockType{}, v.errorf(errors.KindInvalidData, "%v", err)
		}
		t := rt.Val()
		if err := v.res.CheckValueType(&t, v.features, v.offset); err != nil {
			return BlockType{}, err
		}
		return ValueBlock(t), nil
	}
	t, err := FromWasm(wasm.Val(imm.ValType()))
	if err != nil {
		return BlockType{}, v.errorf(errors.KindInvalidData, "%v", err)
	}
	if err := v.res.CheckValueType(&t, v.features, v.offset); err != nil {
		return BlockType{}, err
	}
	return ValueBlock(t), nil
}

// valType converts, feature-gates and canonicalizes a decoded value type
func (v *operatorValidator) valType(t wasm.ExtValType) (ValType, error) {
	vt, err := FromWasm(t)
	if err != nil {
		return ValType{}, v.errorf(errors.KindInvalidData, "%v", err)
	}
	if err := v.res.CheckValueType(&vt, v.features, v.offset); err != nil {
		return ValType{}, err
	}
	return vt, nil
}

// refType converts, feature-gates and canonicalizes a decoded reference type
func (v *operatorValidator) refType(r wasm.RefType) (RefType, error) {
	rt, err := FromWasmRef(r)
	if err != nil {
		return RefType{}, v.errorf(errors.KindInvalidData, "%v", err)
	}
	if err := v.res.CheckRefType(&rt, v.features, v.offset); err != nil {
		return RefType{}, err
	}
	return rt, nil
}

func (v *operatorValidator) heapType(code int64, shared bool) (HeapType, error) {
	rt, err := v.refType(wasm.RefType{Nullable: true, Shared: shared, HeapType: code})
	if err != nil {
		return HeapType{}, err
	}
	return rt.heap, nil
}

func (v *operatorValidator) subTypeAt(idx uint32) (*SubType, error) {
	st, ok := v.res.SubTypeAt(idx)
	if !ok {
		return nil, errors.Unknown(errors.KindUnknownType, "type", idx, v.offset)
	}
	return st, nil
}

func (v *operatorValidator) funcTypeAt(idx uint32) (*FuncType, error) {
	st, err := v.subTypeAt(idx)
	if err != nil {
		return nil, err
	}
	if st.Composite.Kind != CompFunc {
		return nil, v.errorf(errors.KindTypeMismatch, "type mismatch: expected func type at index %d, found %s", idx, st.Composite.Kind)
	}
	return st.Composite.Func, nil
}

func (v *operatorValidator) funcTypeOf(funcIdx uint32) (*FuncType, error) {
	typeIdx, ok := v.res.TypeIndexOfFunction(funcIdx)
	if !ok {
		return nil, errors.Unknown(errors.KindUnknownFunction, "function", funcIdx, v.offset)
	}
	return v.funcTypeAt(typeIdx)
}

func (v *operatorValidator) memoryAt(idx uint32) (MemoryType, error) {
	if idx != 0 && !v.features.Has(FeatureMultiMemory) {
		return MemoryType{}, errors.FeatureDisabled(v.offset, FeatureMultiMemory.Name(), "non-zero memory index")
	}
	m, ok := v.res.MemoryAt(idx)
	if !ok {
		return MemoryType{}, errors.Unknown(errors.KindUnknownMemory, "memory", idx, v.offset)
	}
	return m, nil
}

func (v *operatorValidator) tableAt(idx uint32) (TableType, error) {
	if idx != 0 && !v.features.Has(FeatureReferenceTypes) {
		return TableType{}, errors.FeatureDisabled(v.offset, FeatureReferenceTypes.Name(), "non-zero table index")
	}
	t, ok := v.res.TableAt(idx)
	if !ok {
		return TableType{}, errors.Unknown(errors.KindUnknownTable, "table", idx, v.offset)
	}
	return t, nil
}

func (v *operatorValidator) globalAt(idx uint32) (GlobalType, error) {
	g, ok := v.res.GlobalAt(idx)
	if !ok || (v.constExpr && idx >= v.globalLimit) {
		return GlobalType{}, errors.Unknown(errors.KindUnknownGlobal, "global", idx, v.offset)
	}
	return g, nil
}

func (v *operatorValidator) tagAt(idx uint32) (*FuncType, error) {
	fn, ok := v.res.TagAt(idx)
	if !ok {
		return nil, errors.Unknown(errors.KindUnknownTag, "tag", idx, v.offset)
	}
	return fn, nil
}

// exceptionTagAt returns a tag usable by throw and catch, which must not
// declare results.
func (v *operatorValidator) exceptionTagAt(idx uint32) (*FuncType, error) {
	fn, err := v.tagAt(idx)
	if err != nil {
		return nil, err
	}
	if len(fn.Results) != 0 {
		return nil, v.errorf(errors.KindInvalidData, "invalid exception type: non-empty tag result type")
	}
	return fn, nil
}

func (v *operatorValidator) elemTypeAt(idx uint32) (RefType, error) {
	rt, ok := v.res.ElementTypeAt(idx)
	if !ok {
		return RefType{}, errors.Unknown(errors.KindUnknownElement, "elem segment", idx, v.offset)
	}
	return rt, nil
}

func (v *operatorValidator) checkDataIndex(idx uint32) error {
	count, ok := v.res.DataCount()
	if !ok {
		return v.errorf(errors.KindUnknownData, "data count section required")
	}
	if idx >= count {
		return errors.Unknown(errors.KindUnknownData, "data segment", idx, v.offset)
	}
	return nil
}
