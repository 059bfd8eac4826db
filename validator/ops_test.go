package validator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/wasm"
)

type opCase struct {
	name     string
	features Features
	setup    func(m *wasm.Module)
	fn       testFunc
	extra    []testFunc
	kind     errors.Kind
}

func runOpCases(t *testing.T, cases []opCase) {
	t.Helper()
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			features := tt.features
			if features == 0 {
				features = DefaultFeatures
			}
			m := &wasm.Module{}
			if tt.setup != nil {
				tt.setup(m)
			}
			addFuncs(m, append([]testFunc{tt.fn}, tt.extra...)...)
			err := validateWith(t, features, m)
			if tt.kind == "" {
				require.NoError(t, err)
				return
			}
			requireKind(t, err, tt.kind)
		})
	}
}

// join flattens opcodes, immediates and byte runs into one body
func join(parts ...any) []byte {
	var out []byte
	for _, p := range parts {
		switch p := p.(type) {
		case byte:
			out = append(out, p)
		case int:
			out = append(out, byte(p))
		case []byte:
			out = append(out, p...)
		default:
			panic("join: unsupported part")
		}
	}
	return out
}

func v128Const() []byte {
	return append([]byte{wasm.OpPrefixSIMD, byte(wasm.SimdV128Const)}, make([]byte, 16)...)
}

func withMemory(limits wasm.Limits) func(*wasm.Module) {
	return func(m *wasm.Module) {
		m.Memories = append(m.Memories, wasm.MemoryType{Limits: limits})
	}
}

func withTables(elems ...int64) func(*wasm.Module) {
	return func(m *wasm.Module) {
		for _, heap := range elems {
			m.Tables = append(m.Tables, wasm.TableType{
				ElemType: wasm.RefType{Nullable: true, HeapType: heap},
				Limits:   wasm.Limits{Min: 1},
			})
		}
	}
}

func withTag(params ...wasm.ExtValType) func(*wasm.Module) {
	return func(m *wasm.Module) {
		m.Tags = append(m.Tags, wasm.TagType{TypeIdx: m.AddType(sig(params, nil))})
	}
}

// withGCTypes declares an immutable struct {i32} at index 0 and a mutable
// array of i32 at index 1.
func withGCTypes(m *wasm.Module) {
	i32Field := wasm.StorageType{Kind: wasm.StorageKindVal, ValType: wasm.ValI32}
	m.AddSubTypes(false, wasm.SubType{Final: true, CompType: wasm.CompType{
		Kind:   wasm.CompKindStruct,
		Struct: &wasm.StructType{Fields: []wasm.FieldType{{Type: i32Field}}},
	}})
	m.AddSubTypes(false, wasm.SubType{Final: true, CompType: wasm.CompType{
		Kind:  wasm.CompKindArray,
		Array: &wasm.ArrayType{Element: wasm.FieldType{Type: i32Field, Mutable: true}},
	}})
}

func withPassiveData(count bool) func(*wasm.Module) {
	return func(m *wasm.Module) {
		withMemory(wasm.Limits{Min: 1})(m)
		m.Data = append(m.Data, wasm.DataSegment{Flags: 1, Init: []byte("x")})
		if count {
			n := uint32(len(m.Data))
			m.DataCount = &n
		}
	}
}

func TestMemoryInstructions(t *testing.T) {
	mem := withMemory(wasm.Limits{Min: 1})
	load := join(wasm.OpLocalGet, 0, wasm.OpI32Load, 2, 0, wasm.OpEnd)
	initSeg := join(wasm.OpI32Const, 0, wasm.OpI32Const, 0, wasm.OpI32Const, 0,
		wasm.OpPrefixMisc, 0x08, 0, 0, wasm.OpEnd)

	runOpCases(t, []opCase{
		{name: "load", setup: mem, fn: fn(sig(vals(i32), vals(i32)), load...)},
		{name: "load without memory", fn: fn(sig(vals(i32), vals(i32)), load...), kind: errors.KindUnknownMemory},
		{
			name:  "alignment larger than natural",
			setup: mem,
			fn:    fn(sig(vals(i32), vals(i32)), wasm.OpLocalGet, 0, wasm.OpI32Load, 3, 0, wasm.OpEnd),
			kind:  errors.KindInvalidData,
		},
		{
			name:  "store",
			setup: mem,
			fn:    fn(sig(vals(i32), nil), wasm.OpLocalGet, 0, wasm.OpI64Const, 1, wasm.OpI64Store, 3, 0, wasm.OpEnd),
		},
		{
			name:  "store wrong value",
			setup: mem,
			fn:    fn(sig(vals(i32), nil), wasm.OpLocalGet, 0, wasm.OpI32Const, 1, wasm.OpI64Store, 3, 0, wasm.OpEnd),
			kind:  errors.KindTypeMismatch,
		},
		{name: "memory64 address", setup: withMemory(wasm.Limits{Min: 1, Memory64: true}), fn: fn(sig(vals(i64), vals(i32)), load...)},
		{
			name:  "memory64 with i32 address",
			setup: withMemory(wasm.Limits{Min: 1, Memory64: true}),
			fn:    fn(sig(vals(i32), vals(i32)), load...),
			kind:  errors.KindTypeMismatch,
		},
		{
			name:  "memory.grow",
			setup: mem,
			fn:    fn(sig(nil, vals(i32)), wasm.OpI32Const, 1, wasm.OpMemoryGrow, 0, wasm.OpEnd),
		},
		{name: "memory.init", setup: withPassiveData(true), fn: fn(sig(nil, nil), initSeg...)},
		{name: "memory.init without data count", setup: withPassiveData(false), fn: fn(sig(nil, nil), initSeg...), kind: errors.KindUnknownData},
		{
			name:  "data.drop out of range",
			setup: withPassiveData(true),
			fn:    fn(sig(nil, nil), wasm.OpPrefixMisc, 0x09, 1, wasm.OpEnd),
			kind:  errors.KindUnknownData,
		},
	})
}

func TestTableInstructions(t *testing.T) {
	zeros := join(wasm.OpI32Const, 0, wasm.OpI32Const, 0, wasm.OpI32Const, 0)

	runOpCases(t, []opCase{
		{
			name:  "table.get",
			setup: withTables(wasm.HeapTypeFunc),
			fn:    fn(sig(vals(i32), vals(wasm.FuncRef)), wasm.OpLocalGet, 0, wasm.OpTableGet, 0, wasm.OpEnd),
		},
		{
			name: "table.size without table",
			fn:   fn(sig(nil, vals(i32)), wasm.OpPrefixMisc, 0x10, 0, wasm.OpEnd),
			kind: errors.KindUnknownTable,
		},
		{
			name:  "call_indirect",
			setup: withTables(wasm.HeapTypeFunc),
			fn:    fn(sig(nil, vals(i32)), wasm.OpI32Const, 0, wasm.OpCallIndirect, 0, 0, wasm.OpEnd),
		},
		{
			name:  "call_indirect through externref table",
			setup: withTables(wasm.HeapTypeExtern),
			fn:    fn(sig(nil, vals(i32)), wasm.OpI32Const, 0, wasm.OpCallIndirect, 0, 0, wasm.OpEnd),
			kind:  errors.KindTypeMismatch,
		},
		{
			name:  "table.copy between element types",
			setup: withTables(wasm.HeapTypeExtern, wasm.HeapTypeFunc),
			fn:    fn(sig(nil, nil), join(zeros, wasm.OpPrefixMisc, 0x0E, 0, 1, wasm.OpEnd)...),
			kind:  errors.KindTypeMismatch,
		},
		{
			name:  "table.copy",
			setup: withTables(wasm.HeapTypeFunc, wasm.HeapTypeFunc),
			fn:    fn(sig(nil, nil), join(zeros, wasm.OpPrefixMisc, 0x0E, 0, 1, wasm.OpEnd)...),
		},
	})
}

func TestReferenceInstructions(t *testing.T) {
	immutable := func(m *wasm.Module) {
		m.Globals = append(m.Globals, global(i32, false, constExpr(wasm.OpI32Const, 0)))
	}

	runOpCases(t, []opCase{
		{name: "ref.is_null", fn: fn(sig(nil, vals(i32)), wasm.OpRefNull, 0x70, wasm.OpRefIsNull, wasm.OpEnd)},
		{
			name:     "ref.as_non_null disabled",
			features: WASM2Features,
			fn:       fn(sig(nil, nil), wasm.OpRefNull, 0x70, wasm.OpRefAsNonNull, wasm.OpDrop, wasm.OpEnd),
			kind:     errors.KindFeatureDisabled,
		},
		{
			name: "br_on_null",
			fn: fn(sig(vals(wasm.FuncRef), nil),
				wasm.OpBlock, 0x40, wasm.OpLocalGet, 0, wasm.OpBrOnNull, 0, wasm.OpDrop, wasm.OpEnd, wasm.OpEnd),
		},
		{
			name: "typed select",
			fn: fn(sig(nil, nil), wasm.OpRefNull, 0x70, wasm.OpRefNull, 0x70, wasm.OpI32Const, 1,
				wasm.OpSelectType, 1, 0x70, wasm.OpDrop, wasm.OpEnd),
		},
		{
			name: "untyped select of references",
			fn: fn(sig(nil, nil), wasm.OpRefNull, 0x70, wasm.OpRefNull, 0x70, wasm.OpI32Const, 1,
				wasm.OpSelect, wasm.OpDrop, wasm.OpEnd),
			kind: errors.KindTypeMismatch,
		},
		{
			name:  "global.set of immutable global",
			setup: immutable,
			fn:    fn(sig(nil, nil), wasm.OpI32Const, 1, wasm.OpGlobalSet, 0, wasm.OpEnd),
			kind:  errors.KindImmutable,
		},
	})
}

func TestNumericInstructions(t *testing.T) {
	extend := fn(sig(nil, vals(i32)), wasm.OpI32Const, 1, wasm.OpI32Extend8S, wasm.OpEnd)

	runOpCases(t, []opCase{
		{name: "sign extension", fn: extend},
		{name: "sign extension disabled", features: WASM1Features, fn: extend, kind: errors.KindFeatureDisabled},
		{
			name:     "saturating truncation disabled",
			features: WASM1Features,
			fn:       fn(sig(nil, vals(i32)), wasm.OpF32Const, 0, 0, 0, 0, wasm.OpPrefixMisc, 0x00, wasm.OpEnd),
			kind:     errors.KindFeatureDisabled,
		},
		{
			name: "mixed operands",
			fn:   fn(sig(nil, vals(i32)), wasm.OpI32Const, 1, wasm.OpI64Const, 1, wasm.OpI32Add, wasm.OpEnd),
			kind: errors.KindTypeMismatch,
		},
		{
			name: "comparison result",
			fn:   fn(sig(vals(f64, f64), vals(i32)), wasm.OpLocalGet, 0, wasm.OpLocalGet, 1, wasm.OpF64Lt, wasm.OpEnd),
		},
	})
}

func TestCallInstructions(t *testing.T) {
	callee := fn(sig(vals(i32), nil), wasm.OpLocalGet, 0, wasm.OpDrop, wasm.OpEnd)
	tail := fn(sig(nil, nil), wasm.OpReturnCall, 0, wasm.OpEnd)

	runOpCases(t, []opCase{
		{name: "call", fn: fn(sig(nil, nil), wasm.OpI32Const, 1, wasm.OpCall, 1, wasm.OpEnd), extra: []testFunc{callee}},
		{
			name:  "call without arguments",
			fn:    fn(sig(nil, nil), wasm.OpCall, 1, wasm.OpEnd),
			extra: []testFunc{callee},
			kind:  errors.KindStackUnderflow,
		},
		{name: "call unknown function", fn: fn(sig(nil, nil), wasm.OpCall, 5, wasm.OpEnd), kind: errors.KindUnknownFunction},
		{name: "return_call", fn: tail},
		{name: "return_call disabled", features: WASM2Features, fn: tail, kind: errors.KindFeatureDisabled},
		{
			name:  "return_call result mismatch",
			fn:    fn(sig(nil, vals(i32)), wasm.OpReturnCall, 1, wasm.OpEnd),
			extra: []testFunc{fn(sig(nil, vals(i64)), wasm.OpI64Const, 0, wasm.OpEnd)},
			kind:  errors.KindTypeMismatch,
		},
	})
}

func TestReturnCallResultMessage(t *testing.T) {
	e := requireInvalid(t, DefaultFeatures, errors.KindTypeMismatch,
		fn(sig(nil, vals(i32, i64)), wasm.OpReturnCall, 1, wasm.OpEnd),
		fn(sig(nil, vals(i64)), wasm.OpI64Const, 0, wasm.OpEnd))
	require.Contains(t, e.Message(), "requires result type [i32 i64] but callee returns [i64]")
	require.Empty(t, seqString(seqOf(nil)))
}

func TestSIMDInstructions(t *testing.T) {
	splat := join(wasm.OpI32Const, 1, wasm.OpPrefixSIMD, byte(wasm.SimdI32x4Splat))
	v128 := wasm.V128

	runOpCases(t, []opCase{
		{
			name: "i32x4.add",
			fn:   fn(sig(nil, vals(v128)), join(v128Const(), v128Const(), wasm.OpPrefixSIMD, 0xAE, 0x01, wasm.OpEnd)...),
		},
		{
			name: "extract lane",
			fn:   fn(sig(nil, vals(i32)), join(splat, wasm.OpPrefixSIMD, byte(wasm.SimdI32x4ExtractLane), 3, wasm.OpEnd)...),
		},
		{
			name: "lane out of bounds",
			fn:   fn(sig(nil, vals(i32)), join(splat, wasm.OpPrefixSIMD, byte(wasm.SimdI32x4ExtractLane), 4, wasm.OpEnd)...),
			kind: errors.KindInvalidData,
		},
		{
			name: "any_true",
			fn:   fn(sig(nil, vals(i32)), join(v128Const(), wasm.OpPrefixSIMD, byte(wasm.SimdV128AnyTrue), wasm.OpEnd)...),
		},
		{
			name:     "relaxed madd disabled",
			features: WASM2Features,
			fn:       fn(sig(nil, vals(v128)), join(v128Const(), v128Const(), v128Const(), wasm.OpPrefixSIMD, 0x85, 0x02, wasm.OpEnd)...),
			kind:     errors.KindFeatureDisabled,
		},
	})
}

func TestAtomicInstructions(t *testing.T) {
	mem := withMemory(wasm.Limits{Min: 1})
	fence := fn(sig(nil, nil), wasm.OpPrefixAtomic, byte(wasm.AtomicFence), 0, wasm.OpEnd)

	runOpCases(t, []opCase{
		{name: "fence", fn: fence},
		{name: "threads disabled", features: WASM2Features, fn: fence, kind: errors.KindFeatureDisabled},
		{
			name:  "load",
			setup: mem,
			fn:    fn(sig(vals(i32), vals(i32)), wasm.OpLocalGet, 0, wasm.OpPrefixAtomic, byte(wasm.AtomicI32Load), 2, 0, wasm.OpEnd),
		},
		{
			name:  "load below natural alignment",
			setup: mem,
			fn:    fn(sig(vals(i32), vals(i32)), wasm.OpLocalGet, 0, wasm.OpPrefixAtomic, byte(wasm.AtomicI32Load), 0, 0, wasm.OpEnd),
			kind:  errors.KindInvalidData,
		},
		{
			name:  "rmw add",
			setup: mem,
			fn: fn(sig(vals(i32), vals(i32)), wasm.OpLocalGet, 0, wasm.OpI32Const, 1,
				wasm.OpPrefixAtomic, byte(wasm.AtomicI32RmwAdd), 2, 0, wasm.OpEnd),
		},
	})
}

func TestExceptionInstructions(t *testing.T) {
	legacy := fn(sig(nil, nil), wasm.OpTry, 0x40, wasm.OpCatchAll, wasm.OpEnd, wasm.OpEnd)

	runOpCases(t, []opCase{
		{name: "throw", setup: withTag(), fn: fn(sig(nil, vals(i32)), wasm.OpThrow, 0, wasm.OpEnd)},
		{
			name:  "throw without payload",
			setup: withTag(i32),
			fn:    fn(sig(nil, nil), wasm.OpThrow, 0, wasm.OpEnd),
			kind:  errors.KindStackUnderflow,
		},
		{
			name:  "try_table catch",
			setup: withTag(i32),
			fn: fn(sig(nil, vals(i32)),
				wasm.OpBlock, 0x7F,
				wasm.OpTryTable, 0x40, 1, wasm.CatchKindCatch, 0, 0,
				wasm.OpI32Const, 1, wasm.OpThrow, 0,
				wasm.OpEnd,
				wasm.OpI32Const, 0,
				wasm.OpEnd,
				wasm.OpEnd),
		},
		{
			name:  "catch label arity",
			setup: withTag(i32),
			fn: fn(sig(nil, nil),
				wasm.OpBlock, 0x40,
				wasm.OpTryTable, 0x40, 1, wasm.CatchKindCatch, 0, 0,
				wasm.OpEnd,
				wasm.OpEnd,
				wasm.OpEnd),
			kind: errors.KindTypeMismatch,
		},
		{name: "throw_ref", fn: fn(sig(vals(wasm.ExnRef), nil), wasm.OpLocalGet, 0, wasm.OpThrowRef, wasm.OpEnd)},
		{name: "legacy try", features: AllFeatures, fn: legacy},
		{name: "legacy try disabled", fn: legacy, kind: errors.KindFeatureDisabled},
		{
			name:     "rethrow outside catch",
			features: AllFeatures,
			fn:       fn(sig(nil, nil), wasm.OpTry, 0x40, wasm.OpRethrow, 0, wasm.OpEnd, wasm.OpEnd),
			kind:     errors.KindInvalidData,
		},
	})
}

func TestGCInstructions(t *testing.T) {
	structNew := join(wasm.OpI32Const, 7, wasm.OpPrefixGC, byte(wasm.GCStructNew), 0)
	i31 := fn(sig(nil, vals(i32)), wasm.OpI32Const, 5,
		wasm.OpPrefixGC, byte(wasm.GCRefI31), wasm.OpPrefixGC, byte(wasm.GCI31GetS), wasm.OpEnd)

	runOpCases(t, []opCase{
		{
			name:  "struct.new and struct.get",
			setup: withGCTypes,
			fn:    fn(sig(nil, vals(i32)), join(structNew, wasm.OpPrefixGC, byte(wasm.GCStructGet), 0, 0, wasm.OpEnd)...),
		},
		{
			name:  "struct.get field out of bounds",
			setup: withGCTypes,
			fn:    fn(sig(nil, vals(i32)), join(structNew, wasm.OpPrefixGC, byte(wasm.GCStructGet), 0, 1, wasm.OpEnd)...),
			kind:  errors.KindInvalidData,
		},
		{
			name:  "struct.set of immutable field",
			setup: withGCTypes,
			fn:    fn(sig(nil, nil), join(structNew, wasm.OpI32Const, 1, wasm.OpPrefixGC, byte(wasm.GCStructSet), 0, 0, wasm.OpEnd)...),
			kind:  errors.KindImmutable,
		},
		{
			name:  "array.new_fixed",
			setup: withGCTypes,
			fn: fn(sig(nil, vals(i32)), wasm.OpI32Const, 1, wasm.OpI32Const, 2,
				wasm.OpPrefixGC, byte(wasm.GCArrayNewFixed), 1, 2,
				wasm.OpPrefixGC, byte(wasm.GCArrayLen), wasm.OpEnd),
		},
		{
			name:  "array.new_fixed of struct type",
			setup: withGCTypes,
			fn: fn(sig(nil, nil), wasm.OpI32Const, 1, wasm.OpI32Const, 2,
				wasm.OpPrefixGC, byte(wasm.GCArrayNewFixed), 0, 2, wasm.OpDrop, wasm.OpEnd),
			kind: errors.KindTypeMismatch,
		},
		{name: "i31", fn: i31},
		{name: "i31 disabled", features: WASM2Features, fn: i31, kind: errors.KindFeatureDisabled},
	})
}
