package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDecode   Phase = "decode"   // bytes to module records
	PhaseValidate Phase = "validate" // type and structure checking
	PhaseConfig   Phase = "config"   // feature and option parsing
	PhaseLoad     Phase = "load"     // reading module files
)

// Kind categorizes the error
type Kind string

const (
	KindControlStackUnderflow Kind = "control_stack_underflow"
	KindStackUnderflow        Kind = "stack_underflow"
	KindTypeMismatch          Kind = "type_mismatch"
	KindUnknownLabel          Kind = "unknown_label"
	KindUnknownLocal          Kind = "unknown_local"
	KindUnknownMemory         Kind = "unknown_memory"
	KindUnknownTable          Kind = "unknown_table"
	KindUnknownGlobal         Kind = "unknown_global"
	KindUnknownFunction       Kind = "unknown_function"
	KindUnknownType           Kind = "unknown_type"
	KindUnknownTag            Kind = "unknown_tag"
	KindUnknownData           Kind = "unknown_data_segment"
	KindUnknownElement        Kind = "unknown_element_segment"
	KindUnbalancedStack       Kind = "unbalanced_stack"
	KindFeatureDisabled       Kind = "feature_disabled"
	KindUninitializedLocal    Kind = "uninitialized_local"
	KindImmutable             Kind = "immutable_modification"
	KindUnterminatedFunction  Kind = "unterminated_function"
	KindOperatorsAfterEnd     Kind = "operators_after_end"
	KindConstantExpression    Kind = "constant_expression"
	KindInvalidData           Kind = "invalid_data"
	KindLimitExceeded         Kind = "limit_exceeded"
	KindInvalidInput          Kind = "invalid_input"
)

// NoOffset marks an error that is not tied to a byte position.
const NoOffset = -1

// Error is the structured error type used throughout the validator
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
	Offset int
	Func   int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Offset >= 0 {
		fmt.Fprintf(&b, " (at offset 0x%x)", e.Offset)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Message returns the bare detail without phase, kind or position.
func (e *Error) Message() string {
	return e.Detail
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A stack underflow is also a type mismatch: an operand was expected
// and none was available.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e.Phase != t.Phase {
		return false
	}
	if e.Kind == t.Kind {
		return true
	}
	return e.Kind == KindStackUnderflow && t.Kind == KindTypeMismatch
}

// InFunc returns a copy of e attributed to function index idx.
func (e *Error) InFunc(idx uint32) *Error {
	c := *e
	c.Func = int(idx)
	c.Path = append([]string{fmt.Sprintf("func[%d]", idx)}, e.Path...)
	return &c
}

// At returns a copy of e located under path, e.g. At("global[2]", "init").
func (e *Error) At(path ...string) *Error {
	c := *e
	c.Path = append(append([]string{}, path...), e.Path...)
	return &c
}

// Located prefixes path onto err when it is an *Error, leaving other
// errors unchanged.
func Located(err error, path ...string) error {
	var e *Error
	if As(err, &e) {
		return e.At(path...)
	}
	return err
}

// Sentinel values for errors.Is.
var (
	ErrControlStackUnderflow = &Error{Phase: PhaseValidate, Kind: KindControlStackUnderflow}
	ErrStackUnderflow        = &Error{Phase: PhaseValidate, Kind: KindStackUnderflow}
	ErrTypeMismatch          = &Error{Phase: PhaseValidate, Kind: KindTypeMismatch}
	ErrUnknownLabel          = &Error{Phase: PhaseValidate, Kind: KindUnknownLabel}
	ErrUnknownLocal          = &Error{Phase: PhaseValidate, Kind: KindUnknownLocal}
	ErrUnknownMemory         = &Error{Phase: PhaseValidate, Kind: KindUnknownMemory}
	ErrUnknownTable          = &Error{Phase: PhaseValidate, Kind: KindUnknownTable}
	ErrUnknownGlobal         = &Error{Phase: PhaseValidate, Kind: KindUnknownGlobal}
	ErrUnknownFunction       = &Error{Phase: PhaseValidate, Kind: KindUnknownFunction}
	ErrUnknownType           = &Error{Phase: PhaseValidate, Kind: KindUnknownType}
	ErrUnknownTag            = &Error{Phase: PhaseValidate, Kind: KindUnknownTag}
	ErrUnknownData           = &Error{Phase: PhaseValidate, Kind: KindUnknownData}
	ErrUnknownElement        = &Error{Phase: PhaseValidate, Kind: KindUnknownElement}
	ErrUnbalancedStack       = &Error{Phase: PhaseValidate, Kind: KindUnbalancedStack}
	ErrFeatureDisabled       = &Error{Phase: PhaseValidate, Kind: KindFeatureDisabled}
	ErrUninitializedLocal    = &Error{Phase: PhaseValidate, Kind: KindUninitializedLocal}
	ErrImmutable             = &Error{Phase: PhaseValidate, Kind: KindImmutable}
	ErrUnterminatedFunction  = &Error{Phase: PhaseValidate, Kind: KindUnterminatedFunction}
	ErrOperatorsAfterEnd     = &Error{Phase: PhaseValidate, Kind: KindOperatorsAfterEnd}
	ErrInvalidData           = &Error{Phase: PhaseValidate, Kind: KindInvalidData}
	ErrLimitExceeded         = &Error{Phase: PhaseValidate, Kind: KindLimitExceeded}
)

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase:  phase,
			Kind:   kind,
			Offset: NoOffset,
			Func:   -1,
		},
	}
}

// Path sets the location path, e.g. "global[2]", "init"
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Offset sets the byte offset
func (b *Builder) Offset(off int) *Builder {
	b.err.Offset = off
	return b
}

// Func sets the function index
func (b *Builder) Func(idx uint32) *Builder {
	b.err.Func = int(idx)
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Validation creates a validation error of the given kind at offset.
func Validation(kind Kind, offset int, msg string, args ...any) *Error {
	return New(PhaseValidate, kind).Offset(offset).Detail(msg, args...).Build()
}

// TypeMismatch creates a type mismatch error naming both types
func TypeMismatch(offset int, expected, found string) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindTypeMismatch,
		Detail: fmt.Sprintf("type mismatch: expected %s, found %s", expected, found),
		Offset: offset,
		Func:   -1,
	}
}

// StackUnderflow creates an error for a pop at a reachable frame floor
func StackUnderflow(offset int, expected string) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindStackUnderflow,
		Detail: fmt.Sprintf("type mismatch: expected %s but nothing on stack", expected),
		Offset: offset,
		Func:   -1,
	}
}

// Unknown creates an out-of-bounds index error, e.g. Unknown(KindUnknownGlobal, "global", 7, off)
func Unknown(kind Kind, what string, index uint32, offset int) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   kind,
		Detail: fmt.Sprintf("unknown %s %d: %s index out of bounds", what, index, what),
		Value:  index,
		Offset: offset,
		Func:   -1,
	}
}

// FeatureDisabled creates an error for an instruction or type gated off
func FeatureDisabled(offset int, feature, what string) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindFeatureDisabled,
		Detail: fmt.Sprintf("%s support is not enabled (required by %s)", feature, what),
		Value:  feature,
		Offset: offset,
		Func:   -1,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
		Offset: NoOffset,
		Func:   -1,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
		Offset: NoOffset,
		Func:   -1,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
		Offset: NoOffset,
		Func:   -1,
	}
}

// Decode creates a decoding error
func Decode(detail string, cause error) *Error {
	return Wrap(PhaseDecode, KindInvalidData, cause, detail)
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return Wrap(PhaseLoad, KindInvalidData, cause, detail)
}

// OffsetOf returns the byte offset carried by err, if any.
func OffsetOf(err error) (int, bool) {
	var e *Error
	if As(err, &e) && e.Offset >= 0 {
		return e.Offset, true
	}
	return 0, false
}
