package wasm_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/wippyai/wasm-validator/wasm"
)

func ptrTo[T any](v T) *T { return &v }

// oneFunc returns a module with a single [] -> [] function
func oneFunc() *wasm.Module {
	m := &wasm.Module{}
	m.Funcs = []uint32{m.AddType(wasm.FuncType{})}
	m.Code = []wasm.FuncBody{{Code: []byte{wasm.OpEnd}}}
	return m
}

func TestModuleValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(m *wasm.Module)
		want   string
	}{
		{name: "valid", modify: func(*wasm.Module) {}},
		{
			name:   "function type out of range",
			modify: func(m *wasm.Module) { m.Funcs[0] = 7 },
			want:   "invalid type index 7",
		},
		{
			name: "function type is a struct",
			modify: func(m *wasm.Module) {
				m.AddSubTypes(false, wasm.SubType{Final: true, CompType: wasm.CompType{Kind: wasm.CompKindStruct, Struct: &wasm.StructType{}}})
				m.Funcs[0] = 1
			},
			want: "not a function type",
		},
		{
			name:   "export of missing function",
			modify: func(m *wasm.Module) { m.Exports = []wasm.Export{{Name: "f", Kind: wasm.KindFunc, Idx: 3}} },
			want:   "invalid function index 3",
		},
		{
			name: "duplicate export",
			modify: func(m *wasm.Module) {
				m.Exports = []wasm.Export{{Name: "f", Kind: wasm.KindFunc}, {Name: "f", Kind: wasm.KindFunc}}
			},
			want: "duplicate export name",
		},
		{
			name:   "export of missing global",
			modify: func(m *wasm.Module) { m.Exports = []wasm.Export{{Name: "g", Kind: wasm.KindGlobal}} },
			want:   "invalid global index 0",
		},
		{
			name: "start with params",
			modify: func(m *wasm.Module) {
				m.Funcs[0] = m.AddType(wasm.FuncType{Params: []wasm.ExtValType{wasm.I32}})
				m.Start = ptrTo(uint32(0))
			},
			want: "start function must have signature",
		},
		{
			name:   "start out of range",
			modify: func(m *wasm.Module) { m.Start = ptrTo(uint32(4)) },
			want:   "exceeds function count",
		},
		{
			name: "active data without memory",
			modify: func(m *wasm.Module) {
				m.Data = []wasm.DataSegment{{Offset: wasm.ConstExpr{Code: []byte{wasm.OpI32Const, 0, wasm.OpEnd}}}}
			},
			want: "invalid memory index 0",
		},
		{
			name: "passive data without memory",
			modify: func(m *wasm.Module) {
				m.Data = []wasm.DataSegment{{Flags: 1}}
			},
		},
		{
			name: "data count mismatch",
			modify: func(m *wasm.Module) {
				m.DataCount = ptrTo(uint32(2))
			},
			want: "data count section declares 2",
		},
		{
			name: "memory min above max",
			modify: func(m *wasm.Module) {
				m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 2, Max: ptrTo(uint64(1))}}}
			},
			want: "size minimum must not be greater than maximum",
		},
		{
			name: "memory too large",
			modify: func(m *wasm.Module) {
				m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 65537}}}
			},
			want: "exceeds maximum",
		},
		{
			name: "shared memory without max",
			modify: func(m *wasm.Module) {
				m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 1, Shared: true}}}
			},
			want: "must have maximum limit",
		},
		{
			name: "custom page size",
			modify: func(m *wasm.Module) {
				m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}, PageSizeLog2: ptrTo(uint32(3))}}
			},
			want: "invalid custom page size",
		},
		{
			name: "element function out of range",
			modify: func(m *wasm.Module) {
				m.Elements = []wasm.Element{{Flags: 1, FuncIdxs: []uint32{0, 9}}}
			},
			want: "entry 1 references invalid function index 9",
		},
		{
			name: "table min above max",
			modify: func(m *wasm.Module) {
				m.Tables = []wasm.TableType{{
					ElemType: wasm.RefType{Nullable: true, HeapType: wasm.HeapTypeFunc},
					Limits:   wasm.Limits{Min: 3, Max: ptrTo(uint64(1))},
				}}
			},
			want: "table 0: size minimum",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := oneFunc()
			tt.modify(m)
			err := m.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestIndexErrors(t *testing.T) {
	m := oneFunc()
	m.Exports = []wasm.Export{{Name: "t", Kind: wasm.KindTable, Idx: 2}}

	var ie *wasm.IndexError
	if err := m.Validate(); !errors.As(err, &ie) {
		t.Fatalf("Validate() = %v, want *IndexError", err)
	}
	if ie.Space != wasm.SpaceTable || ie.Index != 2 {
		t.Errorf("index error = %s %d, want table 2", ie.Space, ie.Index)
	}

	m = oneFunc()
	m.Exports = []wasm.Export{{Name: "f", Kind: wasm.KindFunc}, {Name: "f", Kind: wasm.KindFunc}}
	if err := m.Validate(); err == nil || errors.As(err, &ie) {
		t.Errorf("duplicate export should not be an index error: %v", err)
	}
}
