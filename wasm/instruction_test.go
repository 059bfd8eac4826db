package wasm_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/wippyai/wasm-validator/wasm"
)

func TestOperatorReaderOffsets(t *testing.T) {
	code := []byte{
		wasm.OpI32Const, 0xAC, 0x02, // i32.const 300
		wasm.OpLocalGet, 0x00,
		wasm.OpEnd,
	}
	r := wasm.NewOperatorReader(code, 100)

	var offsets []int
	for !r.EOF() {
		instr, err := r.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		offsets = append(offsets, instr.Offset)
		if instr.Opcode == wasm.OpI32Const && instr.Imm.(wasm.I32Imm).Value != 300 {
			t.Errorf("i32.const = %d, want 300", instr.Imm.(wasm.I32Imm).Value)
		}
	}
	want := []int{100, 103, 105}
	if len(offsets) != len(want) {
		t.Fatalf("offsets = %v, want %v", offsets, want)
	}
	for i := range want {
		if offsets[i] != want[i] {
			t.Errorf("offset %d = %d, want %d", i, offsets[i], want[i])
		}
	}
	if r.Offset() != 106 {
		t.Errorf("final offset = %d, want 106", r.Offset())
	}
}

func TestOperatorReaderTruncatedImmediate(t *testing.T) {
	r := wasm.NewOperatorReader([]byte{wasm.OpNop, wasm.OpI64Const}, 40)
	if _, err := r.Read(); err != nil {
		t.Fatalf("nop: %v", err)
	}
	_, err := r.Read()
	var pe *wasm.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Position != 41 {
		t.Errorf("position = %d, want 41", pe.Position)
	}
	if pe.Section != "code" {
		t.Errorf("section = %q, want code", pe.Section)
	}
}

func TestDecodeUnknownOpcode(t *testing.T) {
	if _, err := wasm.DecodeInstructions([]byte{0xFF}); err == nil {
		t.Fatal("expected error for unknown opcode")
	}
}

func TestBlockTypes(t *testing.T) {
	instrs, err := wasm.DecodeInstructions([]byte{
		wasm.OpBlock, 0x40,
		wasm.OpLoop, 0x7F,
		wasm.OpIf, 0x02,
	})
	if err != nil {
		t.Fatalf("DecodeInstructions: %v", err)
	}
	void := instrs[0].Imm.(wasm.BlockImm)
	if !void.IsVoid() {
		t.Errorf("block 0x40 should be void, got %d", void.Type)
	}
	val := instrs[1].Imm.(wasm.BlockImm)
	if val.Type != wasm.BlockTypeI32 || val.ValType() != wasm.ValI32 {
		t.Errorf("loop 0x7f = %+v", val)
	}
	idx := instrs[2].Imm.(wasm.BlockImm)
	if !idx.IsTypeIndex() || idx.Type != 2 {
		t.Errorf("if 0x02 = %+v", idx)
	}
}

func TestEncodeDecodedBody(t *testing.T) {
	code := []byte{
		wasm.OpBlock, 0x40,
		wasm.OpLocalGet, 0x00,
		wasm.OpBrTable, 0x02, 0x00, 0x01, 0x00,
		wasm.OpEnd,
		wasm.OpI32Const, 0x00,
		wasm.OpI64Load, 0x03, 0x80, 0x01, // align 3, offset 128
		wasm.OpDrop,
		wasm.OpF64Const, 0, 0, 0, 0, 0, 0, 0xF0, 0x3F, // 1.0
		wasm.OpDrop,
		wasm.OpI64Const, 0x7F, // -1
		wasm.OpDrop,
		wasm.OpRefNull, 0x70,
		wasm.OpDrop,
		wasm.OpPrefixMisc, 0x0A, 0x00, 0x00, // memory.copy 0 0
		wasm.OpEnd,
	}
	instrs, err := wasm.DecodeInstructions(code)
	if err != nil {
		t.Fatalf("DecodeInstructions: %v", err)
	}
	if got := wasm.EncodeInstructions(instrs); !bytes.Equal(got, code) {
		t.Errorf("re-encoded body differs:\n got %x\nwant %x", got, code)
	}

	mem := instrs[5].Imm.(wasm.MemoryImm)
	if mem.Align != 3 || mem.Offset != 128 {
		t.Errorf("memarg = %+v", mem)
	}
	if f := instrs[7].Imm.(wasm.F64Imm).Value; f != 1.0 {
		t.Errorf("f64.const = %v", f)
	}
	if v := instrs[9].Imm.(wasm.I64Imm).Value; v != -1 {
		t.Errorf("i64.const = %d", v)
	}
}
