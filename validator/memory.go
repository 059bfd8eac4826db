package validator

import (
	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/wasm"
)

// memAccess describes a load or store: the value type and the natural
// alignment exponent of the access.
type memAccess struct {
	ty    ValType
	align uint32
}

var loadOps = map[byte]memAccess{
	wasm.OpI32Load:    {I32, 2},
	wasm.OpI64Load:    {I64, 3},
	wasm.OpF32Load:    {F32, 2},
	wasm.OpF64Load:    {F64, 3},
	wasm.OpI32Load8S:  {I32, 0},
	wasm.OpI32Load8U:  {I32, 0},
	wasm.OpI32Load16S: {I32, 1},
	wasm.OpI32Load16U: {I32, 1},
	wasm.OpI64Load8S:  {I64, 0},
	wasm.OpI64Load8U:  {I64, 0},
	wasm.OpI64Load16S: {I64, 1},
	wasm.OpI64Load16U: {I64, 1},
	wasm.OpI64Load32S: {I64, 2},
	wasm.OpI64Load32U: {I64, 2},
}

var storeOps = map[byte]memAccess{
	wasm.OpI32Store:   {I32, 2},
	wasm.OpI64Store:   {I64, 3},
	wasm.OpF32Store:   {F32, 2},
	wasm.OpF64Store:   {F64, 3},
	wasm.OpI32Store8:  {I32, 0},
	wasm.OpI32Store16: {I32, 1},
	wasm.OpI64Store8:  {I64, 0},
	wasm.OpI64Store16: {I64, 1},
	wasm.OpI64Store32: {I64, 2},
}

// checkMemArg resolves the memory of a memarg and returns its index type.
// The alignment may not exceed maxAlign.
func (v *operatorValidator) checkMemArg(m wasm.MemoryImm, maxAlign uint32) (ValType, error) {
	if m.Align > maxAlign {
		return ValType{}, v.errorf(errors.KindInvalidData, "alignment must not be larger than natural")
	}
	mem, err := v.memoryAt(m.MemIdx)
	if err != nil {
		return ValType{}, err
	}
	if !mem.Memory64 && m.Offset > 1<<32-1 {
		return ValType{}, v.errorf(errors.KindInvalidData, "offset out of range: must be <= 2**32")
	}
	return mem.IndexType(), nil
}

func (v *operatorValidator) visitLoad(op byte, m wasm.MemoryImm) error {
	acc := loadOps[op]
	idx, err := v.checkMemArg(m, acc.align)
	if err != nil {
		return err
	}
	return v.checkShape(shapeConvert, idx, acc.ty)
}

func (v *operatorValidator) visitStore(op byte, m wasm.MemoryImm) error {
	acc := storeOps[op]
	idx, err := v.checkMemArg(m, acc.align)
	if err != nil {
		return err
	}
	if _, err := v.pop(acc.ty); err != nil {
		return err
	}
	_, err = v.pop(idx)
	return err
}

func (v *operatorValidator) visitMemorySize(memIdx uint32) error {
	mem, err := v.memoryAt(memIdx)
	if err != nil {
		return err
	}
	v.pushType(mem.IndexType())
	return nil
}

func (v *operatorValidator) visitMemoryGrow(memIdx uint32) error {
	mem, err := v.memoryAt(memIdx)
	if err != nil {
		return err
	}
	return v.checkShape(shapeUnary, mem.IndexType(), mem.IndexType())
}

func (v *operatorValidator) visitMemoryInit(dataIdx, memIdx uint32) error {
	if err := v.require(FeatureBulkMemory, "memory.init"); err != nil {
		return err
	}
	mem, err := v.memoryAt(memIdx)
	if err != nil {
		return err
	}
	if err := v.checkDataIndex(dataIdx); err != nil {
		return err
	}
	if _, err := v.pop(I32); err != nil {
		return err
	}
	if _, err := v.pop(I32); err != nil {
		return err
	}
	_, err = v.pop(mem.IndexType())
	return err
}

func (v *operatorValidator) visitDataDrop(dataIdx uint32) error {
	if err := v.require(FeatureBulkMemory, "data.drop"); err != nil {
		return err
	}
	return v.checkDataIndex(dataIdx)
}

func (v *operatorValidator) visitMemoryCopy(dst, src uint32) error {
	if err := v.require(FeatureBulkMemory, "memory.copy"); err != nil {
		return err
	}
	dstMem, err := v.memoryAt(dst)
	if err != nil {
		return err
	}
	srcMem, err := v.memoryAt(src)
	if err != nil {
		return err
	}
	// The length uses the narrower of the two address spaces
	length := I32
	if dstMem.Memory64 && srcMem.Memory64 {
		length = I64
	}
	if _, err := v.pop(length); err != nil {
		return err
	}
	if _, err := v.pop(srcMem.IndexType()); err != nil {
		return err
	}
	_, err = v.pop(dstMem.IndexType())
	return err
}

func (v *operatorValidator) visitMemoryFill(memIdx uint32) error {
	if err := v.require(FeatureBulkMemory, "memory.fill"); err != nil {
		return err
	}
	mem, err := v.memoryAt(memIdx)
	if err != nil {
		return err
	}
	idx := mem.IndexType()
	if _, err := v.pop(idx); err != nil {
		return err
	}
	if _, err := v.pop(I32); err != nil {
		return err
	}
	_, err = v.pop(idx)
	return err
}

func (v *operatorValidator) visitMemoryDiscard(memIdx uint32) error {
	if err := v.require(FeatureMemoryControl, "memory.discard"); err != nil {
		return err
	}
	mem, err := v.memoryAt(memIdx)
	if err != nil {
		return err
	}
	idx := mem.IndexType()
	if _, err := v.pop(idx); err != nil {
		return err
	}
	_, err = v.pop(idx)
	return err
}
