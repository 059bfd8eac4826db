// Package validator checks WebAssembly function bodies in a single forward
// pass over their instructions.
//
// Each body is run through an abstract operand stack and a stack of
// control frames. Operands are tracked as MaybeType values: a known value
// type, an unknown reference produced by dead code, or the bottom type
// that stands in for anything popped past the floor of an unreachable
// frame. The first violation ends validation and is reported with the
// byte offset of the offending instruction.
//
// Module-level declarations are resolved once into an immutable
// ModuleResources snapshot. FuncValidator values read it concurrently,
// one per body, and hand their scratch buffers back through Allocations
// so a worker validating many bodies reuses them.
//
//	v := validator.New(validator.WithFeatures(validator.DefaultFeatures))
//	if _, err := v.Validate(ctx, wasmBytes); err != nil {
//	    // err is an *errors.Error carrying kind, offset and function index
//	}
//
// Type identities minted by one Validator carry its ValidatorID. Handing
// an identity to a different validator's resolver is a programming error
// and panics.
package validator
