package wasm_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/wippyai/wasm-validator/wasm"
)

func header() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
}

func TestParseMinimalModule(t *testing.T) {
	m, err := wasm.ParseModule(header())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if len(m.Types) != 0 || len(m.Code) != 0 {
		t.Errorf("expected empty module, got %d types, %d bodies", len(m.Types), len(m.Code))
	}
}

func TestParseHeaderErrors(t *testing.T) {
	if _, err := wasm.ParseModule([]byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}); !errors.Is(err, wasm.ErrInvalidMagic) {
		t.Errorf("bad magic: got %v", err)
	}
	if _, err := wasm.ParseModule([]byte{0x00, 0x61, 0x73, 0x6D, 0x02, 0x00, 0x00, 0x00}); !errors.Is(err, wasm.ErrInvalidVersion) {
		t.Errorf("bad version: got %v", err)
	}

	_, err := wasm.ParseModule([]byte{0x00, 0x61, 0x73})
	var pe *wasm.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("truncated header: expected ParseError, got %v", err)
	}
	if pe.Section != "header" {
		t.Errorf("section = %q, want header", pe.Section)
	}
}

func TestParseSectionOutOfOrder(t *testing.T) {
	data := header()
	data = append(data, wasm.SectionMemory, 0x03, 0x01, 0x00, 0x01) // one memory, min 1
	data = append(data, wasm.SectionType, 0x01, 0x00)                // empty type section

	_, err := wasm.ParseModule(data)
	var pe *wasm.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Position != 14 {
		t.Errorf("position = %d, want 14", pe.Position)
	}
	if !strings.Contains(pe.Error(), "out of order") {
		t.Errorf("unexpected message: %v", pe)
	}
}

func TestParseBodyOffsets(t *testing.T) {
	m := &wasm.Module{}
	m.Funcs = []uint32{m.AddType(wasm.FuncType{Results: []wasm.ExtValType{wasm.I32}})}
	m.Code = []wasm.FuncBody{{
		Locals: []wasm.LocalEntry{{Type: wasm.I64, Count: 2}},
		Code:   []byte{wasm.OpI32Const, 7, wasm.OpEnd},
	}}
	data := m.Encode()

	parsed, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	body := &parsed.Code[0]
	if got := data[body.Offset:body.End()]; !bytes.Equal(got, body.Code) {
		t.Errorf("body bytes at offset %d = %x, want %x", body.Offset, got, body.Code)
	}
	if len(body.Locals) != 1 || body.Locals[0].Count != 2 || body.Locals[0].Type != wasm.I64 {
		t.Errorf("locals = %+v", body.Locals)
	}
}

func TestParseConstExprOffset(t *testing.T) {
	m := &wasm.Module{
		Globals: []wasm.Global{{
			Type: wasm.GlobalType{Type: wasm.I32},
			Init: wasm.ConstExpr{Code: []byte{wasm.OpI32Const, 42, wasm.OpEnd}},
		}},
	}
	data := m.Encode()

	parsed, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	init := parsed.Globals[0].Init
	if got := data[init.Offset : init.Offset+len(init.Code)]; !bytes.Equal(got, init.Code) {
		t.Errorf("init bytes at offset %d = %x, want %x", init.Offset, got, init.Code)
	}
	if !bytes.Equal(init.Code, []byte{wasm.OpI32Const, 42, wasm.OpEnd}) {
		t.Errorf("init code = %x", init.Code)
	}
}

func TestParseTooManyLocals(t *testing.T) {
	m := &wasm.Module{}
	m.Funcs = []uint32{m.AddType(wasm.FuncType{})}
	m.Code = []wasm.FuncBody{{
		Locals: []wasm.LocalEntry{{Type: wasm.I32, Count: 40000}, {Type: wasm.I32, Count: 40000}},
		Code:   []byte{wasm.OpEnd},
	}}
	_, err := wasm.ParseModule(m.Encode())
	if err == nil || !strings.Contains(err.Error(), "too many locals") {
		t.Fatalf("expected too many locals, got %v", err)
	}
}

func TestParseRecGroups(t *testing.T) {
	i32Field := wasm.FieldType{Type: wasm.StorageType{Kind: wasm.StorageKindVal, ValType: wasm.ValI32}}
	m := &wasm.Module{}
	m.AddType(wasm.FuncType{})
	m.AddSubTypes(true,
		wasm.SubType{CompType: wasm.CompType{Kind: wasm.CompKindStruct, Struct: &wasm.StructType{Fields: []wasm.FieldType{i32Field}}}},
		wasm.SubType{Final: true, Parents: []uint32{1}, CompType: wasm.CompType{Kind: wasm.CompKindStruct, Struct: &wasm.StructType{Fields: []wasm.FieldType{i32Field, i32Field}}}},
	)

	parsed, err := wasm.ParseModule(m.Encode())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	want := []wasm.RecGroup{{Start: 0, Count: 1}, {Start: 1, Count: 2, Explicit: true}}
	if len(parsed.RecGroups) != len(want) {
		t.Fatalf("rec groups = %+v", parsed.RecGroups)
	}
	for i, g := range want {
		if parsed.RecGroups[i] != g {
			t.Errorf("group %d = %+v, want %+v", i, parsed.RecGroups[i], g)
		}
	}
	sub := parsed.Types[2]
	if !sub.Final || len(sub.Parents) != 1 || sub.Parents[0] != 1 {
		t.Errorf("subtype = %+v", sub)
	}
	if parsed.Types[1].Final {
		t.Error("type 1 should be open to subtyping")
	}
}

func TestParseFunctionIndexSegmentsAreFuncref(t *testing.T) {
	offset := wasm.ConstExpr{Code: []byte{wasm.OpI32Const, 0, wasm.OpEnd}}
	m := &wasm.Module{}
	m.Funcs = []uint32{m.AddType(wasm.FuncType{})}
	m.Code = []wasm.FuncBody{{Code: []byte{wasm.OpEnd}}}
	m.Tables = []wasm.TableType{{ElemType: wasm.FuncRef.RefType, Limits: wasm.Limits{Min: 1}}}
	for flags := uint32(0); flags <= 3; flags++ {
		m.Elements = append(m.Elements, wasm.Element{Flags: flags, Offset: offset, FuncIdxs: []uint32{0}})
	}

	parsed, err := wasm.ParseModule(m.Encode())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	for _, e := range parsed.Elements {
		if e.Type != wasm.FuncRef.RefType {
			t.Errorf("flags %d: element type = %+v, want nullable funcref", e.Flags, e.Type)
		}
	}
}
