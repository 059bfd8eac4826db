package validator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/wasm"
)

func TestLocalGetReturnsParam(t *testing.T) {
	requireValid(t, DefaultFeatures,
		fn(sig(vals(i32), vals(i32)), wasm.OpLocalGet, 0, wasm.OpEnd))
}

func TestUnderflowReportsInstructionOffset(t *testing.T) {
	m := buildModule(fn(sig(vals(i32), vals(i32)), wasm.OpI64Add, wasm.OpEnd))
	err := validateWith(t, DefaultFeatures, m)

	e := requireKind(t, err, errors.KindStackUnderflow)
	require.ErrorIs(t, err, errors.ErrTypeMismatch)
	require.Equal(t, bodyOffset(t, m, 0), e.Offset)
	require.Equal(t, 0, e.Func)
	require.Contains(t, e.Message(), "expected i64 but nothing on stack")
}

func TestUnreachableBlockResult(t *testing.T) {
	requireValid(t, DefaultFeatures,
		fn(sig(nil, vals(i32)),
			wasm.OpBlock, 0x7F, wasm.OpUnreachable, wasm.OpEnd,
			wasm.OpEnd))

	requireValid(t, DefaultFeatures,
		fn(sig(nil, vals(i32)),
			wasm.OpBlock, 0x7F, wasm.OpUnreachable, wasm.OpI64Const, 0, wasm.OpDrop, wasm.OpEnd,
			wasm.OpEnd))
}

func TestUnreachableKeepsPushedTypes(t *testing.T) {
	// Values pushed after unreachable are still checked at the block end
	e := requireInvalid(t, DefaultFeatures, errors.KindTypeMismatch,
		fn(sig(nil, vals(i32)),
			wasm.OpBlock, 0x7F, wasm.OpUnreachable, wasm.OpI64Const, 0, wasm.OpEnd,
			wasm.OpEnd))
	require.Contains(t, e.Message(), "expected i32, found i64")
}

func TestLoopBranchUsesParams(t *testing.T) {
	loop := func(depth byte) testFunc {
		return fn(sig(vals(i32), vals(i32)),
			wasm.OpLocalGet, 0,
			wasm.OpLoop, 0x00, // type 0: [i32] -> [i32]
			wasm.OpLocalGet, 0,
			wasm.OpBr, depth,
			wasm.OpEnd,
			wasm.OpEnd)
	}
	requireValid(t, DefaultFeatures, loop(0))
	requireValid(t, DefaultFeatures, loop(1))
	requireInvalid(t, DefaultFeatures, errors.KindUnknownLabel, loop(2))
}

func TestLoopBranchRejectsResultTypes(t *testing.T) {
	// type 0 is [i32] -> [i64]; a branch back to the loop carries an i32
	loop := func(body ...byte) testFunc {
		code := append([]byte{wasm.OpLocalGet, 0, wasm.OpLoop, 0x00}, body...)
		return fn(sig(vals(i32), vals(i64)), append(code, wasm.OpEnd, wasm.OpEnd)...)
	}
	requireValid(t, DefaultFeatures, loop(wasm.OpBr, 0))

	e := requireInvalid(t, DefaultFeatures, errors.KindTypeMismatch,
		loop(wasm.OpDrop, wasm.OpI64Const, 1, wasm.OpBr, 0))
	require.Contains(t, e.Message(), "expected i32, found i64")
}

func TestIfElse(t *testing.T) {
	requireValid(t, DefaultFeatures,
		fn(sig(vals(i32), vals(i32)),
			wasm.OpLocalGet, 0,
			wasm.OpIf, 0x7F,
			wasm.OpI32Const, 1,
			wasm.OpElse,
			wasm.OpI32Const, 2,
			wasm.OpEnd,
			wasm.OpEnd))
}

func TestIfWithoutElse(t *testing.T) {
	// [i32] -> [i32]: the implicit else passes the param through
	requireValid(t, DefaultFeatures,
		fn(sig(vals(i32), vals(i32)),
			wasm.OpI32Const, 7,
			wasm.OpLocalGet, 0,
			wasm.OpIf, 0x00,
			wasm.OpEnd,
			wasm.OpEnd))

	// [] -> [i32] cannot synthesize its result
	requireInvalid(t, DefaultFeatures, errors.KindStackUnderflow,
		fn(sig(vals(i32), vals(i32)),
			wasm.OpLocalGet, 0,
			wasm.OpIf, 0x7F,
			wasm.OpI32Const, 1,
			wasm.OpEnd,
			wasm.OpEnd))
}

func TestElseOutsideIf(t *testing.T) {
	e := requireInvalid(t, DefaultFeatures, errors.KindInvalidData,
		fn(sig(nil, nil), wasm.OpBlock, 0x40, wasm.OpElse, wasm.OpEnd, wasm.OpEnd))
	require.Contains(t, e.Message(), "else found outside")
}

func TestUnbalancedBlock(t *testing.T) {
	requireInvalid(t, DefaultFeatures, errors.KindUnbalancedStack,
		fn(sig(nil, nil), wasm.OpI32Const, 1, wasm.OpEnd))
}

func TestBrTableArity(t *testing.T) {
	requireInvalid(t, DefaultFeatures, errors.KindTypeMismatch,
		fn(sig(nil, nil),
			wasm.OpBlock, 0x40,
			wasm.OpBlock, 0x7F,
			wasm.OpI32Const, 0,
			wasm.OpI32Const, 0,
			wasm.OpBrTable, 1, 0, 1,
			wasm.OpEnd,
			wasm.OpDrop,
			wasm.OpEnd,
			wasm.OpEnd))

	requireValid(t, DefaultFeatures,
		fn(sig(nil, vals(i32)),
			wasm.OpBlock, 0x7F,
			wasm.OpI32Const, 5,
			wasm.OpI32Const, 0,
			wasm.OpBrTable, 1, 0, 1,
			wasm.OpEnd,
			wasm.OpEnd))
}

func TestUnknownLocal(t *testing.T) {
	e := requireInvalid(t, DefaultFeatures, errors.KindUnknownLocal,
		fn(sig(vals(i32), nil), wasm.OpLocalGet, 1, wasm.OpDrop, wasm.OpEnd))
	require.Equal(t, uint32(1), e.Value)
}

func TestDeclaredLocals(t *testing.T) {
	requireValid(t, DefaultFeatures,
		fn(sig(vals(i32), vals(i64)),
			wasm.OpLocalGet, 3,
			wasm.OpEnd).withLocals(2, i32).withLocals(1, i64))

	requireInvalid(t, DefaultFeatures, errors.KindTypeMismatch,
		fn(sig(vals(i32), vals(i64)),
			wasm.OpLocalGet, 2,
			wasm.OpEnd).withLocals(2, i32).withLocals(1, i64))
}

func TestNonDefaultableLocalInitialization(t *testing.T) {
	ref := wasm.Ref(false, wasm.HeapTypeFunc)
	// Set and read inside a dead block, then read again after it
	f := fn(sig(nil, nil),
		wasm.OpBlock, 0x40,
		wasm.OpUnreachable,
		wasm.OpLocalSet, 0,
		wasm.OpLocalGet, 0,
		wasm.OpDrop,
		wasm.OpEnd,
		wasm.OpLocalGet, 0,
		wasm.OpDrop,
		wasm.OpEnd).withLocals(1, ref)
	e := requireInvalid(t, DefaultFeatures, errors.KindUninitializedLocal, f)
	require.Contains(t, e.Message(), "uninitialized local: 0")

	g := fn(sig(nil, nil),
		wasm.OpBlock, 0x40,
		wasm.OpUnreachable,
		wasm.OpLocalSet, 0,
		wasm.OpLocalGet, 0,
		wasm.OpDrop,
		wasm.OpEnd,
		wasm.OpEnd).withLocals(1, ref)
	requireValid(t, DefaultFeatures, g)

	requireInvalid(t, WASM2Features, errors.KindFeatureDisabled, g)
}

func TestTerminalConditions(t *testing.T) {
	e := requireInvalid(t, DefaultFeatures, errors.KindUnterminatedFunction,
		fn(sig(nil, nil), wasm.OpNop))
	require.Contains(t, e.Message(), "END opcode expected")

	requireInvalid(t, DefaultFeatures, errors.KindOperatorsAfterEnd,
		fn(sig(nil, nil), wasm.OpEnd, wasm.OpNop))
}

func TestReturnPolymorphism(t *testing.T) {
	requireValid(t, DefaultFeatures,
		fn(sig(nil, vals(i32)),
			wasm.OpI32Const, 1,
			wasm.OpReturn,
			wasm.OpI64Add,
			wasm.OpDrop,
			wasm.OpEnd))
}

func TestDepthLimits(t *testing.T) {
	m := buildModule(fn(sig(nil, nil),
		wasm.OpBlock, 0x40,
		wasm.OpBlock, 0x40,
		wasm.OpEnd,
		wasm.OpEnd,
		wasm.OpEnd))
	ctx := t.Context()

	require.NoError(t, New(WithMaxControlDepth(3)).ValidateModule(ctx, roundTrip(t, m)))
	requireKind(t, New(WithMaxControlDepth(2)).ValidateModule(ctx, roundTrip(t, m)), errors.KindLimitExceeded)

	m = buildModule(fn(sig(nil, nil),
		wasm.OpI32Const, 1,
		wasm.OpI32Const, 2,
		wasm.OpDrop,
		wasm.OpDrop,
		wasm.OpEnd))
	require.NoError(t, New(WithMaxOperandDepth(2)).ValidateModule(ctx, roundTrip(t, m)))
	requireKind(t, New(WithMaxOperandDepth(1)).ValidateModule(ctx, roundTrip(t, m)), errors.KindLimitExceeded)
}

func TestFuncValidatorStreaming(t *testing.T) {
	m := buildModule(fn(sig(vals(i32), vals(i32)), wasm.OpLocalGet, 0, wasm.OpEnd))
	_, res := testResources(t, m)

	fv, err := NewFuncValidator(res, 0, FuncConfig{Features: DefaultFeatures}, Allocations{})
	require.NoError(t, err)
	require.Equal(t, uint32(0), fv.FuncIndex())

	require.NoError(t, fv.Op(&wasm.Instruction{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 0}, Offset: 100}))
	operands, control := fv.Depth()
	require.Equal(t, 1, operands)
	require.Equal(t, 1, control)

	require.NoError(t, fv.Op(&wasm.Instruction{Opcode: wasm.OpEnd, Offset: 102}))
	requireKind(t, fv.Finish(105), errors.KindOperatorsAfterEnd)
	require.NoError(t, fv.Finish(103))

	err = fv.Op(&wasm.Instruction{Opcode: wasm.OpNop, Offset: 103})
	requireKind(t, err, errors.KindOperatorsAfterEnd)
}

func TestAllocationsAreRecycled(t *testing.T) {
	m := buildModule(
		fn(sig(vals(i32, i32), vals(i32)),
			wasm.OpBlock, 0x7F,
			wasm.OpLocalGet, 0,
			wasm.OpLocalGet, 1,
			wasm.OpI32Add,
			wasm.OpEnd,
			wasm.OpEnd),
		fn(sig(nil, nil), wasm.OpEnd))
	decoded := roundTrip(t, m)
	_, res := testResources(t, decoded)
	cfg := FuncConfig{Features: DefaultFeatures}

	fv, err := NewFuncValidator(res, 0, cfg, Allocations{})
	require.NoError(t, err)
	require.NoError(t, fv.Validate(&decoded.Code[0]))
	alloc := fv.IntoAllocations()

	require.Empty(t, alloc.operands)
	require.NotZero(t, cap(alloc.operands))
	require.NotZero(t, cap(alloc.control))
	require.NotNil(t, alloc.initBits)

	fv, err = NewFuncValidator(res, 1, cfg, alloc)
	require.NoError(t, err)
	require.NoError(t, fv.Validate(&decoded.Code[1]))
	operands, control := fv.Depth()
	require.Zero(t, operands)
	require.Zero(t, control)
}

func TestTooManyLocals(t *testing.T) {
	m := buildModule(fn(sig(nil, nil), wasm.OpEnd))
	_, res := testResources(t, m)
	fv, err := NewFuncValidator(res, 0, FuncConfig{Features: DefaultFeatures}, Allocations{})
	require.NoError(t, err)

	require.NoError(t, fv.DefineLocals(0, MaxLocals, I32))
	requireKind(t, fv.DefineLocals(0, 1, I32), errors.KindLimitExceeded)
}

func TestLocalsLookupBeyondFlatPrefix(t *testing.T) {
	var l locals
	l.reset(nil, nil)
	require.True(t, l.define(maxFlatLocals+10, I32))
	require.True(t, l.define(5, I64))
	require.True(t, l.define(1000, F64))

	got, ok := l.get(maxFlatLocals + 9)
	require.True(t, ok)
	require.Equal(t, I32, got)
	got, ok = l.get(maxFlatLocals + 12)
	require.True(t, ok)
	require.Equal(t, I64, got)
	got, ok = l.get(maxFlatLocals + 15)
	require.True(t, ok)
	require.Equal(t, F64, got)
	_, ok = l.get(maxFlatLocals + 1015)
	require.False(t, ok)
}
