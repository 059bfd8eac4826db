// Package wasm provides WebAssembly binary format parsing and encoding.
//
// ParseModule decodes a binary module into a Module: type section with
// recursion groups, imports, functions, tables, memories, tags, globals,
// exports, element and data segments, and raw function bodies. Every
// function body and constant expression remembers the module offset of
// its first byte, and the operator decoder stamps each Instruction with
// the offset of its opcode, so later stages can report precise positions.
//
// # Decoding operators
//
//	body := m.Code[0]
//	ops := wasm.NewOperatorReader(body.Code, body.Offset)
//	for !ops.EOF() {
//	    instr, err := ops.Read()
//	    if err != nil {
//	        return err
//	    }
//	    // instr.Offset, instr.Opcode, instr.Imm
//	}
//
// Immediates are typed: BlockImm for block types, MemoryImm for memargs,
// GCImm, SIMDImm, AtomicImm and ContImm for prefixed and stack-switching
// instructions.
//
// # Value types
//
// Shorthand reference codes such as funcref are expanded by the decoder
// into ExtValType with ExtValKindRef, so (ref null func) and funcref decode
// identically. Shared abstract heap types carry RefType.Shared.
//
// # Encoding
//
// Module.Encode and EncodeInstructions produce the binary form. They are
// used to author fixtures programmatically.
//
// # Structural checks
//
// Module.Validate performs index-space and limits checks that need no
// type information. Type checking of code lives in the validator package.
package wasm
