package validator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/wasm"
)

type testFunc struct {
	typ    wasm.FuncType
	locals []wasm.LocalEntry
	code   []byte
}

func sig(params, results []wasm.ExtValType) wasm.FuncType {
	return wasm.FuncType{Params: params, Results: results}
}

func vals(ts ...wasm.ExtValType) []wasm.ExtValType { return ts }

func fn(typ wasm.FuncType, code ...byte) testFunc {
	return testFunc{typ: typ, code: code}
}

func (f testFunc) withLocals(count uint32, t wasm.ExtValType) testFunc {
	f.locals = append(f.locals, wasm.LocalEntry{Count: count, Type: t})
	return f
}

// buildModule declares one function per entry, each with its own type
func buildModule(funcs ...testFunc) *wasm.Module {
	return addFuncs(&wasm.Module{}, funcs...)
}

// addFuncs appends funcs after the declarations already in m
func addFuncs(m *wasm.Module, funcs ...testFunc) *wasm.Module {
	for _, f := range funcs {
		m.Funcs = append(m.Funcs, m.AddType(f.typ))
		m.Code = append(m.Code, wasm.FuncBody{Locals: f.locals, Code: f.code})
	}
	return m
}

// roundTrip encodes m and decodes it again so bodies carry module offsets
func roundTrip(t *testing.T, m *wasm.Module) *wasm.Module {
	t.Helper()
	out, err := wasm.ParseModule(m.Encode())
	require.NoError(t, err)
	return out
}

func validateWith(t *testing.T, features Features, m *wasm.Module) error {
	t.Helper()
	return New(WithFeatures(features)).ValidateModule(context.Background(), roundTrip(t, m))
}

func requireValid(t *testing.T, features Features, funcs ...testFunc) {
	t.Helper()
	require.NoError(t, validateWith(t, features, buildModule(funcs...)))
}

func requireKind(t *testing.T, err error, kind errors.Kind) *errors.Error {
	t.Helper()
	require.Error(t, err)
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, kind, e.Kind, "error: %v", err)
	return e
}

func requireInvalid(t *testing.T, features Features, kind errors.Kind, funcs ...testFunc) *errors.Error {
	t.Helper()
	return requireKind(t, validateWith(t, features, buildModule(funcs...)), kind)
}

// bodyOffset returns the module offset of the first instruction of body i
func bodyOffset(t *testing.T, m *wasm.Module, i int) int {
	t.Helper()
	decoded := roundTrip(t, m)
	return decoded.Code[i].Offset
}

// testResources builds module resources for m with every feature enabled
func testResources(t *testing.T, m *wasm.Module) (*Validator, *ModuleResources) {
	t.Helper()
	v := New(WithFeatures(AllFeatures))
	res, err := v.Resources(m)
	require.NoError(t, err)
	return v, res
}

var (
	i32 = wasm.I32
	i64 = wasm.I64
	f32 = wasm.F32
	f64 = wasm.F64
)
