package validator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/wasm"
)

func checkModule(m *wasm.Module) error {
	return New().ValidateModule(context.Background(), m)
}

func kindOf(t *rapid.T, err error) errors.Kind {
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	return e.Kind
}

// Straight-line i32 code that never pops past its own pushes validates,
// and the stack depth tracks the model exactly.
func TestPropertyStraightLine(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ops := rapid.SliceOfN(rapid.IntRange(0, 4), 0, 64).Draw(t, "ops")

		var code []byte
		height := 0
		for _, op := range ops {
			switch {
			case op == 0:
				code = append(code, wasm.OpI32Const, 1)
				height++
			case op == 1:
				code = append(code, wasm.OpLocalGet, 0)
				height++
			case op == 2 && height >= 2:
				code = append(code, wasm.OpI32Add)
				height--
			case op == 3 && height >= 1:
				code = append(code, wasm.OpI32Eqz)
			case op == 4 && height >= 1:
				code = append(code, wasm.OpDrop)
				height--
			}
		}

		res, err := New().Resources(buildModule(fn(sig(vals(i32), nil), wasm.OpEnd)))
		require.NoError(t, err)
		fv, err := NewFuncValidator(res, 0, FuncConfig{Features: DefaultFeatures}, Allocations{})
		require.NoError(t, err)
		instrs, err := wasm.DecodeInstructions(code)
		require.NoError(t, err)
		for i := range instrs {
			require.NoError(t, fv.Op(&instrs[i]))
		}
		operands, control := fv.Depth()
		require.Equal(t, height, operands)
		require.Equal(t, 1, control)

		for range height {
			code = append(code, wasm.OpDrop)
		}
		code = append(code, wasm.OpEnd)
		require.NoError(t, checkModule(buildModule(fn(sig(vals(i32), nil), code...))))
	})
}

// After unreachable, pops past the frame floor always succeed. The body is
// valid exactly when at most one value is left for the i32 result.
func TestPropertyUnreachablePolymorphism(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ops := rapid.SliceOfN(rapid.IntRange(0, 3), 0, 32).Draw(t, "ops")

		code := []byte{wasm.OpUnreachable}
		height := 0
		for _, op := range ops {
			switch op {
			case 0:
				code = append(code, wasm.OpI32Const, 0)
				height++
			case 1:
				code = append(code, wasm.OpI32Add)
				height = max(height-2, 0) + 1
			case 2:
				code = append(code, wasm.OpI32Eqz)
				height = max(height-1, 0) + 1
			case 3:
				code = append(code, wasm.OpDrop)
				height = max(height-1, 0)
			}
		}
		code = append(code, wasm.OpEnd)

		err := checkModule(buildModule(fn(sig(nil, vals(i32)), code...)))
		if height <= 1 {
			require.NoError(t, err)
			return
		}
		require.Equal(t, errors.KindUnbalancedStack, kindOf(t, err))
	})
}

// A branch resolves iff its depth names an enclosing frame, counting the
// function frame itself.
func TestPropertyBranchDepth(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		depth := rapid.IntRange(0, 24).Draw(t, "depth")
		target := rapid.IntRange(0, depth+3).Draw(t, "target")
		loop := rapid.Bool().Draw(t, "loop")

		opener := wasm.OpBlock
		if loop {
			opener = wasm.OpLoop
		}
		var code []byte
		for range depth {
			code = append(code, opener, 0x40)
		}
		code = append(code, wasm.OpBr, byte(target))
		for range depth {
			code = append(code, wasm.OpEnd)
		}
		code = append(code, wasm.OpEnd)

		err := checkModule(buildModule(fn(sig(nil, nil), code...)))
		if target <= depth {
			require.NoError(t, err)
			return
		}
		require.Equal(t, errors.KindUnknownLabel, kindOf(t, err))
	})
}

// br_table carrying an i32 is valid only if every target label takes an i32.
func TestPropertyBrTableArity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		inner := rapid.SampledFrom([]byte{0x7F, 0x7E}).Draw(t, "inner")
		targets := rapid.SliceOfN(rapid.IntRange(0, 1), 1, 8).Draw(t, "targets")

		code := []byte{
			wasm.OpBlock, 0x7F,
			wasm.OpBlock, inner,
			wasm.OpI32Const, 0,
			wasm.OpI32Const, 0,
			wasm.OpBrTable, byte(len(targets) - 1),
		}
		usesInner := false
		for _, l := range targets {
			code = append(code, byte(l))
			usesInner = usesInner || l == 0
		}
		code = append(code, wasm.OpEnd)
		if inner != 0x7F {
			code = append(code, wasm.OpDrop, wasm.OpI32Const, 0)
		}
		code = append(code, wasm.OpEnd, wasm.OpEnd)

		err := checkModule(buildModule(fn(sig(nil, vals(i32)), code...)))
		if inner == 0x7F || !usesInner {
			require.NoError(t, err)
			return
		}
		require.Equal(t, errors.KindTypeMismatch, kindOf(t, err))
	})
}
