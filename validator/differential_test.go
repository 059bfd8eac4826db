package validator

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-validator/wasm"
)

// differentialModules are small WASM 1.0 modules whose validity is
// unambiguous. Each is compiled by wazero and by this package and the
// verdicts must agree.
func differentialModules() map[string]*wasm.Module {
	withMem := func(m *wasm.Module) *wasm.Module {
		m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}}
		return m
	}
	withTable := func(m *wasm.Module, offset wasm.ConstExpr, funcs ...uint32) *wasm.Module {
		m.Tables = []wasm.TableType{{ElemType: wasm.FuncRef.RefType, Limits: wasm.Limits{Min: 2}}}
		m.Elements = []wasm.Element{{Offset: offset, FuncIdxs: funcs}}
		return m
	}
	withGlobal := func(m *wasm.Module, g wasm.Global) *wasm.Module {
		m.Globals = append(m.Globals, g)
		return m
	}
	withData := func(m *wasm.Module, offset wasm.ConstExpr) *wasm.Module {
		m.Data = []wasm.DataSegment{{Offset: offset, Init: []byte("abc")}}
		return m
	}
	// importing declares imports before any defined function
	importing := func(imports []wasm.Import, funcs ...testFunc) *wasm.Module {
		m := &wasm.Module{Imports: imports}
		return addFuncs(m, funcs...)
	}

	i32Zero := constExpr(wasm.OpI32Const, 0)
	indirect := fn(sig(nil, vals(i32)), wasm.OpI32Const, 0, wasm.OpCallIndirect, 0, 0, wasm.OpEnd)
	target := fn(sig(nil, vals(i32)), wasm.OpI32Const, 7, wasm.OpEnd)
	readGlobal := fn(sig(nil, vals(i32)), wasm.OpGlobalGet, 0, wasm.OpEnd)
	importedGlobal := wasm.Import{Module: "env", Name: "g", Desc: wasm.ImportDesc{Kind: wasm.KindGlobal, Global: &wasm.GlobalType{Type: i32}}}

	return map[string]*wasm.Module{
		"call_indirect":               withTable(buildModule(indirect, target), i32Zero, 0, 1),
		"call_indirect without table": buildModule(indirect, target),
		"call_indirect arity": withTable(buildModule(
			fn(sig(nil, vals(i32)), wasm.OpI32Const, 0, wasm.OpCallIndirect, 1, 0, wasm.OpEnd),
			fn(sig(vals(i32, i32), vals(i32)), wasm.OpLocalGet, 0, wasm.OpEnd)), i32Zero, 1),
		"element function out of range": withTable(buildModule(target), i32Zero, 4),
		"element offset type":           withTable(buildModule(target), constExpr(wasm.OpI64Const, 0), 0),
		"global":                        withGlobal(buildModule(readGlobal), global(i32, false, constExpr(wasm.OpI32Const, 5))),
		"global init mismatch":          withGlobal(buildModule(readGlobal), global(i32, false, constExpr(wasm.OpI64Const, 5))),
		"global.set immutable": withGlobal(buildModule(fn(sig(nil, nil), wasm.OpI32Const, 1, wasm.OpGlobalSet, 0, wasm.OpEnd)),
			global(i32, false, constExpr(wasm.OpI32Const, 0))),
		"global.set mutable": withGlobal(buildModule(fn(sig(nil, nil), wasm.OpI32Const, 1, wasm.OpGlobalSet, 0, wasm.OpEnd)),
			global(i32, true, constExpr(wasm.OpI32Const, 0))),
		"data segment":        withData(withMem(buildModule(target)), i32Zero),
		"data without memory": withData(buildModule(target), i32Zero),
		"data offset type":    withData(withMem(buildModule(target)), constExpr(wasm.OpF32Const, 0, 0, 0, 0)),
		"imported function": func() *wasm.Module {
			m := &wasm.Module{}
			typeIdx := m.AddType(sig(vals(i32), nil))
			m.Imports = []wasm.Import{{Module: "env", Name: "f", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: typeIdx}}}
			return addFuncs(m, fn(sig(nil, nil), wasm.OpI32Const, 1, wasm.OpCall, 0, wasm.OpEnd))
		}(),
		"imported global": importing([]wasm.Import{importedGlobal}, readGlobal),
		"imported global initializer": withGlobal(importing([]wasm.Import{importedGlobal},
			fn(sig(nil, vals(i32)), wasm.OpGlobalGet, 1, wasm.OpEnd)),
			global(i32, false, constExpr(wasm.OpGlobalGet, 0))),

		"add": buildModule(fn(sig(vals(i32, i32), vals(i32)),
			wasm.OpLocalGet, 0, wasm.OpLocalGet, 1, wasm.OpI32Add, wasm.OpEnd)),
		"add mismatch": buildModule(fn(sig(vals(i32, i64), vals(i32)),
			wasm.OpLocalGet, 0, wasm.OpLocalGet, 1, wasm.OpI32Add, wasm.OpEnd)),
		"underflow": buildModule(fn(sig(nil, vals(i64)), wasm.OpEnd)),
		"extra value": buildModule(fn(sig(nil, nil), wasm.OpI32Const, 0, wasm.OpEnd)),
		"unknown local": buildModule(fn(sig(vals(i32), vals(i32)), wasm.OpLocalGet, 1, wasm.OpEnd)),
		"declared local": buildModule(fn(sig(nil, vals(f64)), wasm.OpLocalGet, 0, wasm.OpEnd).withLocals(1, f64)),
		"branch out of range": buildModule(fn(sig(nil, nil),
			wasm.OpBlock, 0x40, wasm.OpBr, 2, wasm.OpEnd, wasm.OpEnd)),
		"block result": buildModule(fn(sig(nil, vals(i32)),
			wasm.OpBlock, 0x7F, wasm.OpI32Const, 1, wasm.OpEnd, wasm.OpEnd)),
		"unreachable result": buildModule(fn(sig(nil, vals(i32)),
			wasm.OpBlock, 0x7F, wasm.OpUnreachable, wasm.OpEnd, wasm.OpEnd)),
		"if without else": buildModule(fn(sig(vals(i32), vals(i32)),
			wasm.OpLocalGet, 0, wasm.OpIf, 0x7F, wasm.OpI32Const, 1, wasm.OpEnd, wasm.OpEnd)),
		"if else": buildModule(fn(sig(vals(i32), vals(i32)),
			wasm.OpLocalGet, 0, wasm.OpIf, 0x7F, wasm.OpI32Const, 1, wasm.OpElse, wasm.OpI32Const, 2, wasm.OpEnd, wasm.OpEnd)),
		"br_table": buildModule(fn(sig(vals(i32), nil),
			wasm.OpBlock, 0x40, wasm.OpBlock, 0x40, wasm.OpLocalGet, 0, wasm.OpBrTable, 1, 0, 1, wasm.OpEnd, wasm.OpEnd, wasm.OpEnd)),
		"br_table arity": buildModule(fn(sig(vals(i32), nil),
			wasm.OpBlock, 0x40, wasm.OpBlock, 0x7F, wasm.OpI32Const, 0, wasm.OpLocalGet, 0,
			wasm.OpBrTable, 1, 0, 1, wasm.OpEnd, wasm.OpDrop, wasm.OpEnd, wasm.OpEnd)),
		"loop": buildModule(fn(sig(vals(i32), nil),
			wasm.OpLoop, 0x40, wasm.OpLocalGet, 0, wasm.OpBrIf, 0, wasm.OpEnd, wasm.OpEnd)),
		"load": withMem(buildModule(fn(sig(vals(i32), vals(i32)),
			wasm.OpLocalGet, 0, wasm.OpI32Load, 2, 0, wasm.OpEnd))),
		"load without memory": buildModule(fn(sig(vals(i32), vals(i32)),
			wasm.OpLocalGet, 0, wasm.OpI32Load, 2, 0, wasm.OpEnd)),
		"misaligned load": withMem(buildModule(fn(sig(vals(i32), vals(i32)),
			wasm.OpLocalGet, 0, wasm.OpI32Load, 3, 0, wasm.OpEnd))),
		"select": buildModule(fn(sig(vals(i32), vals(i64)),
			wasm.OpI64Const, 1, wasm.OpI64Const, 2, wasm.OpLocalGet, 0, wasm.OpSelect, wasm.OpEnd)),
		"select mismatch": buildModule(fn(sig(vals(i32), vals(i64)),
			wasm.OpI64Const, 1, wasm.OpI32Const, 2, wasm.OpLocalGet, 0, wasm.OpSelect, wasm.OpEnd)),
		"call": buildModule(
			fn(sig(nil, vals(i32)), wasm.OpI32Const, 3, wasm.OpCall, 1, wasm.OpEnd),
			fn(sig(vals(i32), vals(i32)), wasm.OpLocalGet, 0, wasm.OpEnd)),
		"return": buildModule(fn(sig(nil, vals(i32)),
			wasm.OpI32Const, 1, wasm.OpReturn, wasm.OpI64Const, 0, wasm.OpEnd)),
	}
}

func TestAgreesWithWazero(t *testing.T) {
	tests := []struct {
		name     string
		core     api.CoreFeatures
		features Features
	}{
		{"wasm1", api.CoreFeaturesV1, WASM1Features},
		{"wasm2", api.CoreFeaturesV2, WASM2Features},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter().WithCoreFeatures(tt.core))
			defer func() { require.NoError(t, r.Close(ctx)) }()
			v := New(WithFeatures(tt.features))

			want := map[string]bool{}
			got := map[string]bool{}
			for name, m := range differentialModules() {
				bin := m.Encode()

				compiled, err := r.CompileModule(ctx, bin)
				want[name] = err == nil
				if compiled != nil {
					require.NoError(t, compiled.Close(ctx))
				}

				_, err = v.Validate(ctx, bin)
				got[name] = err == nil
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("validity differs from wazero (-wazero +validator):\n%s", diff)
			}
		})
	}
}
