package validator

import (
	"github.com/wippyai/wasm-validator/wasm"
)

type shape uint8

const (
	shapeNone shape = iota
	shapeTest       // T -> i32
	shapeCompare    // T T -> i32
	shapeUnary      // T -> T
	shapeBinary     // T T -> T
	shapeConvert    // From -> To
)

// numericOp is the stack effect of one plain numeric opcode
type numericOp struct {
	in      ValType
	out     ValType
	shape   shape
	feature Features
}

// numericOps covers opcodes 0x45 through 0xC4
var numericOps [256]numericOp

func defineRange(first, last byte, s shape, in, out ValType) {
	for op := int(first); op <= int(last); op++ {
		numericOps[op] = numericOp{shape: s, in: in, out: out}
	}
}

func init() {
	defineRange(wasm.OpI32Eqz, wasm.OpI32Eqz, shapeTest, I32, I32)
	defineRange(wasm.OpI32Eq, wasm.OpI32GeU, shapeCompare, I32, I32)
	defineRange(wasm.OpI64Eqz, wasm.OpI64Eqz, shapeTest, I64, I32)
	defineRange(wasm.OpI64Eq, wasm.OpI64GeU, shapeCompare, I64, I32)
	defineRange(wasm.OpF32Eq, wasm.OpF32Ge, shapeCompare, F32, I32)
	defineRange(wasm.OpF64Eq, wasm.OpF64Ge, shapeCompare, F64, I32)

	defineRange(wasm.OpI32Clz, wasm.OpI32Popcnt, shapeUnary, I32, I32)
	defineRange(wasm.OpI32Add, wasm.OpI32Rotr, shapeBinary, I32, I32)
	defineRange(wasm.OpI64Clz, wasm.OpI64Popcnt, shapeUnary, I64, I64)
	defineRange(wasm.OpI64Add, wasm.OpI64Rotr, shapeBinary, I64, I64)
	defineRange(wasm.OpF32Abs, wasm.OpF32Sqrt, shapeUnary, F32, F32)
	defineRange(wasm.OpF32Add, wasm.OpF32Copysign, shapeBinary, F32, F32)
	defineRange(wasm.OpF64Abs, wasm.OpF64Sqrt, shapeUnary, F64, F64)
	defineRange(wasm.OpF64Add, wasm.OpF64Copysign, shapeBinary, F64, F64)

	defineRange(wasm.OpI32WrapI64, wasm.OpI32WrapI64, shapeConvert, I64, I32)
	defineRange(wasm.OpI32TruncF32S, wasm.OpI32TruncF32U, shapeConvert, F32, I32)
	defineRange(wasm.OpI32TruncF64S, wasm.OpI32TruncF64U, shapeConvert, F64, I32)
	defineRange(wasm.OpI64ExtendI32S, wasm.OpI64ExtendI32U, shapeConvert, I32, I64)
	defineRange(wasm.OpI64TruncF32S, wasm.OpI64TruncF32U, shapeConvert, F32, I64)
	defineRange(wasm.OpI64TruncF64S, wasm.OpI64TruncF64U, shapeConvert, F64, I64)
	defineRange(wasm.OpF32ConvertI32S, wasm.OpF32ConvertI32U, shapeConvert, I32, F32)
	defineRange(wasm.OpF32ConvertI64S, wasm.OpF32ConvertI64U, shapeConvert, I64, F32)
	defineRange(wasm.OpF32DemoteF64, wasm.OpF32DemoteF64, shapeConvert, F64, F32)
	defineRange(wasm.OpF64ConvertI32S, wasm.OpF64ConvertI32U, shapeConvert, I32, F64)
	defineRange(wasm.OpF64ConvertI64S, wasm.OpF64ConvertI64U, shapeConvert, I64, F64)
	defineRange(wasm.OpF64PromoteF32, wasm.OpF64PromoteF32, shapeConvert, F32, F64)
	defineRange(wasm.OpI32ReinterpretF32, wasm.OpI32ReinterpretF32, shapeConvert, F32, I32)
	defineRange(wasm.OpI64ReinterpretF64, wasm.OpI64ReinterpretF64, shapeConvert, F64, I64)
	defineRange(wasm.OpF32ReinterpretI32, wasm.OpF32ReinterpretI32, shapeConvert, I32, F32)
	defineRange(wasm.OpF64ReinterpretI64, wasm.OpF64ReinterpretI64, shapeConvert, I64, F64)

	defineRange(wasm.OpI32Extend8S, wasm.OpI32Extend16S, shapeUnary, I32, I32)
	defineRange(wasm.OpI64Extend8S, wasm.OpI64Extend32S, shapeUnary, I64, I64)
	for op := wasm.OpI32Extend8S; op <= wasm.OpI64Extend32S; op++ {
		numericOps[op].feature = FeatureSignExtension
	}
}

// checkShape applies a unary, binary, test, compare or convert stack effect
func (v *operatorValidator) checkShape(s shape, in, out ValType) error {
	switch s {
	case shapeBinary, shapeCompare:
		if _, err := v.pop(in); err != nil {
			return err
		}
	}
	if _, err := v.pop(in); err != nil {
		return err
	}
	v.pushType(out)
	return nil
}

func (v *operatorValidator) visitNumeric(op byte) (bool, error) {
	n := &numericOps[op]
	if n.shape == shapeNone {
		return false, nil
	}
	if n.feature != 0 {
		if err := v.require(n.feature, "sign extension operator"); err != nil {
			return true, err
		}
	}
	return true, v.checkShape(n.shape, n.in, n.out)
}

// truncSatOps maps 0xFC sub-opcodes 0 through 7 to their conversions
var truncSatOps = [8][2]ValType{
	{F32, I32}, {F32, I32},
	{F64, I32}, {F64, I32},
	{F32, I64}, {F32, I64},
	{F64, I64}, {F64, I64},
}

func (v *operatorValidator) visitTruncSat(sub uint32) error {
	if err := v.require(FeatureSaturatingFloatToInt, "saturating float to int conversion"); err != nil {
		return err
	}
	conv := truncSatOps[sub]
	return v.checkShape(shapeConvert, conv[0], conv[1])
}

func (v *operatorValidator) visitConst(t ValType) error {
	if t == V128 {
		if err := v.require(FeatureSIMD, "v128.const"); err != nil {
			return err
		}
	}
	v.pushType(t)
	return nil
}
