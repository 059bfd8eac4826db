// Package errors provides structured error types for the validator.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// Validation errors carry the byte offset of the offending instruction and, when
// produced by the module driver, the index of the function being validated.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseValidate, errors.KindImmutable).
//		Offset(0x2a).
//		Detail("global is immutable: cannot modify it with `global.set`").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TypeMismatch(off, "i32", "i64")
//	err := errors.Unknown(errors.KindUnknownGlobal, "global", 7, off)
//
// Sentinels such as ErrTypeMismatch match on Phase and Kind with errors.Is.
package errors
