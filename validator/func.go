package validator

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/wasm"
)

// Allocations holds the scratch buffers of a finished validator so the
// next function body can reuse their capacity. The zero value is valid.
type Allocations struct {
	initBits *bitset.BitSet
	operands []MaybeType
	control  []Frame
	popPush  []MaybeType
	flat     []ValType
	runs     []localRun
	initLog  []uint32
}

// FuncConfig controls one function validation
type FuncConfig struct {
	Features Features
	// MaxControlDepth caps nested control frames, zero means unbounded
	MaxControlDepth int
	// MaxOperandDepth caps the operand stack, zero means unbounded
	MaxOperandDepth int
}

// FuncValidator validates the body of a single function. It consumes
// decoded instructions one at a time and reports the first violation.
type FuncValidator struct {
	ops     operatorValidator
	funcIdx uint32
}

// NewFuncValidator prepares a validator for function funcIdx. The
// function's params become its first locals and its signature seeds the
// outermost control frame.
func NewFuncValidator(res Resources, funcIdx uint32, cfg FuncConfig, alloc Allocations) (*FuncValidator, error) {
	f := &FuncValidator{funcIdx: funcIdx}
	v := &f.ops
	v.reset(res, cfg, alloc)

	typeIdx, ok := res.TypeIndexOfFunction(funcIdx)
	if !ok {
		return nil, errors.Unknown(errors.KindUnknownFunction, "function", funcIdx, errors.NoOffset)
	}
	fn, err := v.funcTypeAt(typeIdx)
	if err != nil {
		return nil, err
	}
	for _, p := range fn.Params {
		if err := v.defineLocals(1, p); err != nil {
			return nil, err
		}
	}
	// Params are locals, not operands
	if err := v.enterFrame(FrameBlock, FuncBlock(fn)); err != nil {
		return nil, err
	}
	return f, nil
}

func (v *operatorValidator) reset(res Resources, cfg FuncConfig, alloc Allocations) {
	v.res = res
	v.features = cfg.Features
	v.maxControl = cfg.MaxControlDepth
	v.maxOperand = cfg.MaxOperandDepth
	v.operands = alloc.operands[:0]
	v.control = alloc.control[:0]
	v.popPush = alloc.popPush[:0]
	v.locals.reset(alloc.flat, alloc.runs)
	v.inits.reset(alloc.initBits, alloc.initLog)
	v.offset = 0
	v.endOffset = 0
}

// FuncIndex returns the index of the function being validated
func (f *FuncValidator) FuncIndex() uint32 { return f.funcIdx }

// Op validates one instruction
func (f *FuncValidator) Op(instr *wasm.Instruction) error {
	v := &f.ops
	v.offset = instr.Offset
	if len(v.control) == 0 {
		return v.errorf(errors.KindOperatorsAfterEnd, "operators remaining after end of function")
	}
	if err := v.visit(instr); err != nil {
		return err
	}
	if v.maxOperand > 0 && len(v.operands) > v.maxOperand {
		return v.errorf(errors.KindLimitExceeded, "operand stack deeper than %d", v.maxOperand)
	}
	return nil
}

// Finish checks the terminal condition. offset is the module offset just
// past the body; the final end must be the byte before it.
func (f *FuncValidator) Finish(offset int) error {
	v := &f.ops
	v.offset = offset
	if len(v.control) != 0 {
		return v.errorf(errors.KindUnterminatedFunction, "control frames remain at end of function: END opcode expected")
	}
	if v.endOffset != offset-1 {
		return v.errorf(errors.KindOperatorsAfterEnd, "operators remaining after end of function")
	}
	return nil
}

// Validate declares the body's locals and runs every instruction through
// Op, then Finish.
func (f *FuncValidator) Validate(body *wasm.FuncBody) error {
	for _, l := range body.Locals {
		t, err := FromWasm(l.Type)
		if err != nil {
			return errors.Validation(errors.KindInvalidData, body.Offset, "%v", err)
		}
		if err := f.DefineLocals(body.Offset, l.Count, t); err != nil {
			return err
		}
	}
	r := wasm.NewOperatorReader(body.Code, body.Offset)
	for !r.EOF() {
		instr, err := r.Read()
		if err != nil {
			return decodeError(err)
		}
		if err := f.Op(&instr); err != nil {
			return err
		}
	}
	return f.Finish(body.End())
}

// Depth returns the current operand and control stack depths
func (f *FuncValidator) Depth() (operands, control int) {
	return len(f.ops.operands), len(f.ops.control)
}

// IntoAllocations releases the validator's buffers for reuse
func (f *FuncValidator) IntoAllocations() Allocations {
	return f.ops.intoAllocations()
}

func (v *operatorValidator) intoAllocations() Allocations {
	a := Allocations{
		operands: v.operands[:0],
		control:  v.control[:0],
		popPush:  v.popPush[:0],
		flat:     v.locals.flat[:0],
		runs:     v.locals.runs[:0],
		initBits: v.inits.bits,
		initLog:  v.inits.log[:0],
	}
	*v = operatorValidator{}
	return a
}

// decodeError converts a decoder failure into a decode-phase error
func decodeError(err error) error {
	var pe *wasm.ParseError
	if errors.As(err, &pe) {
		return errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Offset(pe.Position).
			Cause(pe.Err).
			Detail("%v", pe.Err).
			Build()
	}
	return errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "decode")
}
