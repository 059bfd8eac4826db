package validator

import (
	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/wasm"
)

// immediate extracts the decoded immediate of instr as T
func immediate[T any](v *operatorValidator, instr *wasm.Instruction) (T, error) {
	imm, ok := instr.Imm.(T)
	if !ok {
		var zero T
		return zero, v.errorf(errors.KindInvalidData, "malformed immediate for opcode 0x%02x", instr.Opcode)
	}
	return imm, nil
}

// visit validates a single decoded instruction
func (v *operatorValidator) visit(instr *wasm.Instruction) error {
	op := instr.Opcode
	switch op {
	case wasm.OpUnreachable:
		return v.unreachable()
	case wasm.OpNop:
		return nil
	case wasm.OpBlock, wasm.OpLoop, wasm.OpIf, wasm.OpTry:
		imm, err := immediate[wasm.BlockImm](v, instr)
		if err != nil {
			return err
		}
		switch op {
		case wasm.OpBlock:
			return v.visitBlock(FrameBlock, imm)
		case wasm.OpLoop:
			return v.visitBlock(FrameLoop, imm)
		case wasm.OpIf:
			return v.visitIf(imm)
		}
		return v.visitLegacyTry(imm)
	case wasm.OpElse:
		return v.visitElse()
	case wasm.OpEnd:
		return v.visitEnd()
	case wasm.OpCatch, wasm.OpThrow:
		imm, err := immediate[wasm.ThrowImm](v, instr)
		if err != nil {
			return err
		}
		if op == wasm.OpCatch {
			return v.visitLegacyCatch(imm.TagIdx)
		}
		return v.visitThrow(imm.TagIdx)
	case wasm.OpCatchAll:
		return v.visitLegacyCatchAll()
	case wasm.OpThrowRef:
		return v.visitThrowRef()
	case wasm.OpTryTable:
		imm, err := immediate[wasm.TryTableImm](v, instr)
		if err != nil {
			return err
		}
		return v.visitTryTable(imm)
	case wasm.OpBr, wasm.OpBrIf, wasm.OpRethrow, wasm.OpDelegate, wasm.OpBrOnNull, wasm.OpBrOnNonNull:
		imm, err := immediate[wasm.BranchImm](v, instr)
		if err != nil {
			return err
		}
		switch op {
		case wasm.OpBr:
			return v.visitBr(imm.LabelIdx)
		case wasm.OpBrIf:
			return v.visitBrIf(imm.LabelIdx)
		case wasm.OpRethrow:
			return v.visitRethrow(imm.LabelIdx)
		case wasm.OpDelegate:
			return v.visitDelegate(imm.LabelIdx)
		case wasm.OpBrOnNull:
			return v.visitBrOnNull(imm.LabelIdx)
		}
		return v.visitBrOnNonNull(imm.LabelIdx)
	case wasm.OpBrTable:
		imm, err := immediate[wasm.BrTableImm](v, instr)
		if err != nil {
			return err
		}
		return v.visitBrTable(imm)
	case wasm.OpReturn:
		return v.visitReturn()
	case wasm.OpCall, wasm.OpReturnCall:
		imm, err := immediate[wasm.CallImm](v, instr)
		if err != nil {
			return err
		}
		return v.visitCall(imm.FuncIdx, op == wasm.OpReturnCall)
	case wasm.OpCallIndirect, wasm.OpReturnCallIndirect:
		imm, err := immediate[wasm.CallIndirectImm](v, instr)
		if err != nil {
			return err
		}
		return v.visitCallIndirect(imm, op == wasm.OpReturnCallIndirect)
	case wasm.OpCallRef, wasm.OpReturnCallRef:
		imm, err := immediate[wasm.CallRefImm](v, instr)
		if err != nil {
			return err
		}
		return v.visitCallRef(imm.TypeIdx, op == wasm.OpReturnCallRef)
	case wasm.OpDrop:
		return v.visitDrop()
	case wasm.OpSelect:
		return v.visitSelect()
	case wasm.OpSelectType:
		imm, err := immediate[wasm.SelectTypeImm](v, instr)
		if err != nil {
			return err
		}
		return v.visitTypedSelect(imm)
	case wasm.OpLocalGet, wasm.OpLocalSet, wasm.OpLocalTee:
		imm, err := immediate[wasm.LocalImm](v, instr)
		if err != nil {
			return err
		}
		switch op {
		case wasm.OpLocalGet:
			return v.visitLocalGet(imm.LocalIdx)
		case wasm.OpLocalSet:
			return v.visitLocalSet(imm.LocalIdx)
		}
		return v.visitLocalTee(imm.LocalIdx)
	case wasm.OpGlobalGet, wasm.OpGlobalSet:
		imm, err := immediate[wasm.GlobalImm](v, instr)
		if err != nil {
			return err
		}
		if op == wasm.OpGlobalGet {
			return v.visitGlobalGet(imm.GlobalIdx)
		}
		return v.visitGlobalSet(imm.GlobalIdx)
	case wasm.OpTableGet, wasm.OpTableSet:
		imm, err := immediate[wasm.TableImm](v, instr)
		if err != nil {
			return err
		}
		if op == wasm.OpTableGet {
			return v.visitTableGet(imm.TableIdx)
		}
		return v.visitTableSet(imm.TableIdx)
	case wasm.OpMemorySize, wasm.OpMemoryGrow:
		imm, err := immediate[wasm.MemoryIdxImm](v, instr)
		if err != nil {
			return err
		}
		if op == wasm.OpMemorySize {
			return v.visitMemorySize(imm.MemIdx)
		}
		return v.visitMemoryGrow(imm.MemIdx)
	case wasm.OpI32Const:
		return v.visitConst(I32)
	case wasm.OpI64Const:
		return v.visitConst(I64)
	case wasm.OpF32Const:
		return v.visitConst(F32)
	case wasm.OpF64Const:
		return v.visitConst(F64)
	case wasm.OpRefNull:
		imm, err := immediate[wasm.RefNullImm](v, instr)
		if err != nil {
			return err
		}
		return v.visitRefNull(imm)
	case wasm.OpRefIsNull:
		return v.visitRefIsNull()
	case wasm.OpRefFunc:
		imm, err := immediate[wasm.RefFuncImm](v, instr)
		if err != nil {
			return err
		}
		return v.visitRefFunc(imm.FuncIdx)
	case wasm.OpRefAsNonNull:
		return v.visitRefAsNonNull()
	case wasm.OpRefEq:
		return v.visitRefEq()
	case wasm.OpContNew, wasm.OpContBind, wasm.OpSuspend, wasm.OpResume, wasm.OpResumeThrow, wasm.OpSwitch:
		imm, err := immediate[wasm.ContImm](v, instr)
		if err != nil {
			return err
		}
		return v.visitCont(op, imm)
	case wasm.OpPrefixMisc:
		imm, err := immediate[wasm.MiscImm](v, instr)
		if err != nil {
			return err
		}
		return v.visitMisc(imm)
	case wasm.OpPrefixSIMD:
		imm, err := immediate[wasm.SIMDImm](v, instr)
		if err != nil {
			return err
		}
		return v.visitSIMD(imm)
	case wasm.OpPrefixAtomic:
		imm, err := immediate[wasm.AtomicImm](v, instr)
		if err != nil {
			return err
		}
		return v.visitAtomic(imm)
	case wasm.OpPrefixGC:
		imm, err := immediate[wasm.GCImm](v, instr)
		if err != nil {
			return err
		}
		return v.visitGC(imm)
	}

	if _, ok := loadOps[op]; ok {
		imm, err := immediate[wasm.MemoryImm](v, instr)
		if err != nil {
			return err
		}
		return v.visitLoad(op, imm)
	}
	if _, ok := storeOps[op]; ok {
		imm, err := immediate[wasm.MemoryImm](v, instr)
		if err != nil {
			return err
		}
		return v.visitStore(op, imm)
	}
	if handled, err := v.visitNumeric(op); handled {
		return err
	}
	return v.errorf(errors.KindInvalidData, "illegal opcode 0x%02x", op)
}

// miscOperand returns operand i of a 0xFC immediate, defaulting to zero
func miscOperand(imm wasm.MiscImm, i int) uint32 {
	if i < len(imm.Operands) {
		return imm.Operands[i]
	}
	return 0
}

func (v *operatorValidator) visitMisc(imm wasm.MiscImm) error {
	a, b := miscOperand(imm, 0), miscOperand(imm, 1)
	switch imm.SubOpcode {
	case wasm.MiscI32TruncSatF32S, wasm.MiscI32TruncSatF32U,
		wasm.MiscI32TruncSatF64S, wasm.MiscI32TruncSatF64U,
		wasm.MiscI64TruncSatF32S, wasm.MiscI64TruncSatF32U,
		wasm.MiscI64TruncSatF64S, wasm.MiscI64TruncSatF64U:
		return v.visitTruncSat(imm.SubOpcode)
	case wasm.MiscMemoryInit:
		return v.visitMemoryInit(a, b)
	case wasm.MiscDataDrop:
		return v.visitDataDrop(a)
	case wasm.MiscMemoryCopy:
		return v.visitMemoryCopy(a, b)
	case wasm.MiscMemoryFill:
		return v.visitMemoryFill(a)
	case wasm.MiscTableInit:
		return v.visitTableInit(a, b)
	case wasm.MiscElemDrop:
		return v.visitElemDrop(a)
	case wasm.MiscTableCopy:
		return v.visitTableCopy(a, b)
	case wasm.MiscTableGrow:
		return v.visitTableGrow(a)
	case wasm.MiscTableSize:
		return v.visitTableSize(a)
	case wasm.MiscTableFill:
		return v.visitTableFill(a)
	case wasm.MiscMemoryDiscard:
		return v.visitMemoryDiscard(a)
	}
	return v.errorf(errors.KindInvalidData, "unknown 0xfc subopcode: 0x%x", imm.SubOpcode)
}
