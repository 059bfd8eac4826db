package validator

import (
	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/wasm"
)

type simdShape uint8

const (
	simdReserved simdShape = iota
	simdLoad               // idx -> v128
	simdStore              // idx v128 ->
	simdLoadLane           // idx v128 -> v128
	simdStoreLane          // idx v128 ->
	simdConst              // -> v128
	simdShuffle            // v128 v128 -> v128
	simdSplat              // scalar -> v128
	simdExtract            // v128 -> scalar
	simdReplace            // v128 scalar -> v128
	simdUnary              // v128 -> v128
	simdBinary             // v128 v128 -> v128
	simdTernary            // v128 v128 v128 -> v128
	simdTest               // v128 -> i32
	simdShift              // v128 i32 -> v128
)

// simdOp describes one 0xFD sub-opcode. align is the natural alignment
// exponent of memory forms; lanes bounds the lane immediate.
type simdOp struct {
	scalar  ValType
	shape   simdShape
	align   uint8
	lanes   uint8
	relaxed bool
}

const simdOpCount = wasm.SimdI32x4RelaxedDotI8x16I7x16AddS + 1

var simdOps [simdOpCount]simdOp

func simdRange(first, last uint32, op simdOp) {
	for i := first; i <= last; i++ {
		simdOps[i] = op
	}
}

func simdSet(shape simdShape, codes ...uint32) {
	for _, c := range codes {
		simdOps[c] = simdOp{shape: shape}
	}
}

func init() {
	simdRange(wasm.SimdV128Load, wasm.SimdV128Load, simdOp{shape: simdLoad, align: 4})
	simdRange(wasm.SimdV128Load8x8S, wasm.SimdV128Load32x2U, simdOp{shape: simdLoad, align: 3})
	for i, align := range []uint8{0, 1, 2, 3} {
		simdOps[wasm.SimdV128Load8Splat+uint32(i)] = simdOp{shape: simdLoad, align: align}
		simdOps[wasm.SimdV128Load8Lane+uint32(i)] = simdOp{shape: simdLoadLane, align: align, lanes: 16 >> i}
		simdOps[wasm.SimdV128Store8Lane+uint32(i)] = simdOp{shape: simdStoreLane, align: align, lanes: 16 >> i}
	}
	simdOps[wasm.SimdV128Load32Zero] = simdOp{shape: simdLoad, align: 2}
	simdOps[wasm.SimdV128Load64Zero] = simdOp{shape: simdLoad, align: 3}
	simdOps[wasm.SimdV128Store] = simdOp{shape: simdStore, align: 4}
	simdOps[wasm.SimdV128Const] = simdOp{shape: simdConst}
	simdOps[wasm.SimdI8x16Shuffle] = simdOp{shape: simdShuffle, lanes: 32}

	splats := []ValType{I32, I32, I32, I64, F32, F64}
	for i, t := range splats {
		simdOps[wasm.SimdI8x16Splat+uint32(i)] = simdOp{shape: simdSplat, scalar: t}
	}
	lanes := []struct {
		extract []uint32
		replace uint32
		scalar  ValType
		lanes   uint8
	}{
		{[]uint32{wasm.SimdI8x16ExtractLaneS, wasm.SimdI8x16ExtractLaneU}, wasm.SimdI8x16ReplaceLane, I32, 16},
		{[]uint32{wasm.SimdI16x8ExtractLaneS, wasm.SimdI16x8ExtractLaneU}, wasm.SimdI16x8ReplaceLane, I32, 8},
		{[]uint32{wasm.SimdI32x4ExtractLane}, wasm.SimdI32x4ReplaceLane, I32, 4},
		{[]uint32{wasm.SimdI64x2ExtractLane}, wasm.SimdI64x2ReplaceLane, I64, 2},
		{[]uint32{wasm.SimdF32x4ExtractLane}, wasm.SimdF32x4ReplaceLane, F32, 4},
		{[]uint32{wasm.SimdF64x2ExtractLane}, wasm.SimdF64x2ReplaceLane, F64, 2},
	}
	for _, l := range lanes {
		for _, c := range l.extract {
			simdOps[c] = simdOp{shape: simdExtract, scalar: l.scalar, lanes: l.lanes}
		}
		simdOps[l.replace] = simdOp{shape: simdReplace, scalar: l.scalar, lanes: l.lanes}
	}

	// Arithmetic defaults to binary; the remaining shapes are listed
	// explicitly and reserved codes are cleared afterwards.
	simdRange(wasm.SimdI8x16Swizzle, wasm.SimdI8x16Swizzle, simdOp{shape: simdBinary})
	simdRange(wasm.SimdI8x16Eq, wasm.SimdF64x2Ge, simdOp{shape: simdBinary})
	simdRange(wasm.SimdV128And, wasm.SimdV128Xor, simdOp{shape: simdBinary})
	simdRange(wasm.SimdI8x16Abs, wasm.SimdF64x2ConvertLowI32x4U, simdOp{shape: simdBinary})
	simdSet(simdUnary, wasm.SimdV128Not, wasm.SimdF32x4DemoteF64x2Zero, wasm.SimdF64x2PromoteLowF32x4)
	simdSet(simdTernary, wasm.SimdV128Bitselect)
	simdSet(simdTest, wasm.SimdV128AnyTrue,
		wasm.SimdI8x16AllTrue, wasm.SimdI8x16Bitmask,
		wasm.SimdI16x8AllTrue, wasm.SimdI16x8Bitmask,
		wasm.SimdI32x4AllTrue, wasm.SimdI32x4Bitmask,
		wasm.SimdI64x2AllTrue, wasm.SimdI64x2Bitmask)
	simdSet(simdShift,
		wasm.SimdI8x16Shl, wasm.SimdI8x16ShrS, wasm.SimdI8x16ShrU,
		wasm.SimdI16x8Shl, wasm.SimdI16x8ShrS, wasm.SimdI16x8ShrU,
		wasm.SimdI32x4Shl, wasm.SimdI32x4ShrS, wasm.SimdI32x4ShrU,
		wasm.SimdI64x2Shl, wasm.SimdI64x2ShrS, wasm.SimdI64x2ShrU)
	simdSet(simdUnary,
		wasm.SimdI8x16Abs, wasm.SimdI8x16Neg, wasm.SimdI8x16Popcnt,
		wasm.SimdF32x4Ceil, wasm.SimdF32x4Floor, wasm.SimdF32x4Trunc, wasm.SimdF32x4Nearest,
		wasm.SimdF64x2Ceil, wasm.SimdF64x2Floor, wasm.SimdF64x2Trunc, wasm.SimdF64x2Nearest,
		wasm.SimdI16x8ExtAddPairwiseI8x16S, wasm.SimdI16x8ExtAddPairwiseI8x16U,
		wasm.SimdI32x4ExtAddPairwiseI16x8S, wasm.SimdI32x4ExtAddPairwiseI16x8U,
		wasm.SimdI16x8Abs, wasm.SimdI16x8Neg,
		wasm.SimdI16x8ExtendLowI8x16S, wasm.SimdI16x8ExtendHighI8x16S,
		wasm.SimdI16x8ExtendLowI8x16U, wasm.SimdI16x8ExtendHighI8x16U,
		wasm.SimdI32x4Abs, wasm.SimdI32x4Neg,
		wasm.SimdI32x4ExtendLowI16x8S, wasm.SimdI32x4ExtendHighI16x8S,
		wasm.SimdI32x4ExtendLowI16x8U, wasm.SimdI32x4ExtendHighI16x8U,
		wasm.SimdI64x2Abs, wasm.SimdI64x2Neg,
		wasm.SimdI64x2ExtendLowI32x4S, wasm.SimdI64x2ExtendHighI32x4S,
		wasm.SimdI64x2ExtendLowI32x4U, wasm.SimdI64x2ExtendHighI32x4U,
		wasm.SimdF32x4Abs, wasm.SimdF32x4Neg, wasm.SimdF32x4Sqrt,
		wasm.SimdF64x2Abs, wasm.SimdF64x2Neg, wasm.SimdF64x2Sqrt)
	simdRange(wasm.SimdI32x4TruncSatF32x4S, wasm.SimdF64x2ConvertLowI32x4U, simdOp{shape: simdUnary})
	for _, c := range []uint32{
		0x9A, 0xA2, 0xA5, 0xA6, 0xAF, 0xB0, 0xB2, 0xB3, 0xB4, 0xBB,
		0xC2, 0xC5, 0xC6, 0xCF, 0xD0, 0xD2, 0xD3, 0xD4, 0xE2, 0xEE,
	} {
		simdOps[c] = simdOp{}
	}

	relaxed := func(shape simdShape, codes ...uint32) {
		for _, c := range codes {
			simdOps[c] = simdOp{shape: shape, relaxed: true}
		}
	}
	relaxed(simdBinary, wasm.SimdI8x16RelaxedSwizzle,
		wasm.SimdF32x4RelaxedMin, wasm.SimdF32x4RelaxedMax,
		wasm.SimdF64x2RelaxedMin, wasm.SimdF64x2RelaxedMax,
		wasm.SimdI16x8RelaxedQ15MulrS, wasm.SimdI16x8RelaxedDotI8x16I7x16S)
	relaxed(simdUnary,
		wasm.SimdI32x4RelaxedTruncF32x4S, wasm.SimdI32x4RelaxedTruncF32x4U,
		wasm.SimdI32x4RelaxedTruncF64x2SZero, wasm.SimdI32x4RelaxedTruncF64x2UZero)
	relaxed(simdTernary,
		wasm.SimdF32x4RelaxedMadd, wasm.SimdF32x4RelaxedNmadd,
		wasm.SimdF64x2RelaxedMadd, wasm.SimdF64x2RelaxedNmadd,
		wasm.SimdI8x16RelaxedLaneselect, wasm.SimdI16x8RelaxedLaneselect,
		wasm.SimdI32x4RelaxedLaneselect, wasm.SimdI64x2RelaxedLaneselect,
		wasm.SimdI32x4RelaxedDotI8x16I7x16AddS)
}

func (v *operatorValidator) checkLane(lane *byte, max uint8) error {
	if lane == nil {
		return v.errorf(errors.KindInvalidData, "missing lane index")
	}
	if *lane >= max {
		return v.errorf(errors.KindInvalidData, "SIMD index out of bounds")
	}
	return nil
}

func (v *operatorValidator) simdMemArg(m *wasm.MemoryImm, align uint8) (ValType, error) {
	if m == nil {
		return ValType{}, v.errorf(errors.KindInvalidData, "SIMD memory instruction without memarg")
	}
	return v.checkMemArg(*m, uint32(align))
}

func (v *operatorValidator) visitSIMD(imm wasm.SIMDImm) error {
	if imm.SubOpcode >= simdOpCount || simdOps[imm.SubOpcode].shape == simdReserved {
		return v.errorf(errors.KindInvalidData, "unknown 0xfd subopcode: 0x%x", imm.SubOpcode)
	}
	op := simdOps[imm.SubOpcode]
	if op.relaxed {
		if err := v.require(FeatureRelaxedSIMD, "relaxed SIMD instruction"); err != nil {
			return err
		}
	} else if err := v.require(FeatureSIMD, "SIMD instruction"); err != nil {
		return err
	}

	switch op.shape {
	case simdLoad:
		idx, err := v.simdMemArg(imm.MemArg, op.align)
		if err != nil {
			return err
		}
		return v.checkShape(shapeConvert, idx, V128)
	case simdStore:
		idx, err := v.simdMemArg(imm.MemArg, op.align)
		if err != nil {
			return err
		}
		return v.popTypes(seqOf([]ValType{idx, V128}))
	case simdLoadLane, simdStoreLane:
		idx, err := v.simdMemArg(imm.MemArg, op.align)
		if err != nil {
			return err
		}
		if err := v.checkLane(imm.LaneIdx, op.lanes); err != nil {
			return err
		}
		if err := v.popTypes(seqOf([]ValType{idx, V128})); err != nil {
			return err
		}
		if op.shape == simdLoadLane {
			v.pushType(V128)
		}
		return nil
	case simdConst:
		v.pushType(V128)
		return nil
	case simdShuffle:
		for _, lane := range imm.V128Bytes {
			if lane >= op.lanes {
				return v.errorf(errors.KindInvalidData, "SIMD index out of bounds")
			}
		}
		return v.checkShape(shapeBinary, V128, V128)
	case simdSplat:
		return v.checkShape(shapeConvert, op.scalar, V128)
	case simdExtract:
		if err := v.checkLane(imm.LaneIdx, op.lanes); err != nil {
			return err
		}
		return v.checkShape(shapeConvert, V128, op.scalar)
	case simdReplace:
		if err := v.checkLane(imm.LaneIdx, op.lanes); err != nil {
			return err
		}
		return v.stackOp(seqOf([]ValType{V128, op.scalar}), V128)
	case simdUnary:
		return v.checkShape(shapeUnary, V128, V128)
	case simdBinary:
		return v.checkShape(shapeBinary, V128, V128)
	case simdTernary:
		return v.stackOp(seqOf([]ValType{V128, V128, V128}), V128)
	case simdTest:
		return v.checkShape(shapeTest, V128, I32)
	case simdShift:
		return v.stackOp(seqOf([]ValType{V128, I32}), V128)
	}
	return nil
}
