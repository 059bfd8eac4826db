package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
		excludes []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseValidate,
				Kind:   KindTypeMismatch,
				Path:   []string{"func[3]"},
				Detail: "type mismatch: expected i32, found i64",
				Offset: 0x1f,
			},
			contains: []string{"[validate]", "type_mismatch", "func[3]", "expected i32, found i64", "offset 0x1f"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase:  PhaseDecode,
				Kind:   KindInvalidData,
				Offset: NoOffset,
			},
			contains: []string{"[decode]", "invalid_data"},
			excludes: []string{"offset"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindInvalidData,
				Detail: "read module",
				Offset: NoOffset,
				Cause:  errors.New("no such file"),
			},
			contains: []string{"[load]", "read module", "caused by", "no such file"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(msg, s) {
					t.Errorf("error message %q should not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Decode("parse module", cause)

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find cause")
	}
}

func TestError_Is(t *testing.T) {
	err := TypeMismatch(4, "i32", "f32")

	if !errors.Is(err, ErrTypeMismatch) {
		t.Error("Is should match same phase and kind")
	}
	if errors.Is(err, ErrUnknownLabel) {
		t.Error("Is should not match different kind")
	}
	if err.Is(&Error{Phase: PhaseDecode, Kind: KindTypeMismatch}) {
		t.Error("Is should not match different phase")
	}

	underflow := StackUnderflow(9, "i64")
	if !errors.Is(underflow, ErrStackUnderflow) {
		t.Error("underflow should match its own sentinel")
	}
	if !errors.Is(underflow, ErrTypeMismatch) {
		t.Error("underflow should also match type mismatch")
	}
	if errors.Is(err, ErrStackUnderflow) {
		t.Error("type mismatch must not match stack underflow")
	}

	wrapped := fmt.Errorf("function 3: %w", err)
	if !errors.Is(wrapped, ErrTypeMismatch) {
		t.Error("errors.Is should see through fmt wrapping")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseValidate, KindImmutable).
		Path("global[1]").
		Offset(0x40).
		Func(2).
		Value(uint32(1)).
		Cause(cause).
		Detail("global %d is immutable", 1).
		Build()

	if err.Phase != PhaseValidate {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseValidate)
	}
	if err.Kind != KindImmutable {
		t.Errorf("Kind = %v, want %v", err.Kind, KindImmutable)
	}
	if err.Offset != 0x40 {
		t.Errorf("Offset = %d, want 0x40", err.Offset)
	}
	if err.Func != 2 {
		t.Errorf("Func = %d, want 2", err.Func)
	}
	if err.Detail != "global 1 is immutable" {
		t.Errorf("Detail = %q", err.Detail)
	}
	if err.Value != uint32(1) {
		t.Errorf("Value = %v", err.Value)
	}
	if err.Cause != cause {
		t.Error("Cause not set")
	}
}

func TestBuilderDefaults(t *testing.T) {
	err := New(PhaseConfig, KindInvalidInput).Build()
	if err.Offset != NoOffset {
		t.Errorf("Offset = %d, want NoOffset", err.Offset)
	}
	if err.Func != -1 {
		t.Errorf("Func = %d, want -1", err.Func)
	}
}

func TestInFunc(t *testing.T) {
	base := Validation(KindUnknownLocal, 12, "unknown local %d: local index out of bounds", 5)
	got := base.InFunc(7)

	if got.Func != 7 {
		t.Errorf("Func = %d, want 7", got.Func)
	}
	if base.Func != -1 {
		t.Error("InFunc must not modify the receiver")
	}
	if !strings.Contains(got.Error(), "func[7]") {
		t.Errorf("message %q missing function path", got.Error())
	}
	if got.Offset != 12 {
		t.Errorf("Offset = %d, want 12", got.Offset)
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		kind   Kind
		detail string
	}{
		{"unknown", Unknown(KindUnknownGlobal, "global", 7, 3), KindUnknownGlobal, "unknown global 7"},
		{"feature", FeatureDisabled(3, "simd", "v128.const"), KindFeatureDisabled, "simd support is not enabled"},
		{"underflow", StackUnderflow(3, "i32"), KindStackUnderflow, "expected i32 but nothing on stack"},
		{"mismatch", TypeMismatch(3, "i32", "i64"), KindTypeMismatch, "expected i32, found i64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
			if !strings.Contains(tt.err.Message(), tt.detail) {
				t.Errorf("Message %q missing %q", tt.err.Message(), tt.detail)
			}
			if tt.err.Offset != 3 {
				t.Errorf("Offset = %d, want 3", tt.err.Offset)
			}
		})
	}
}

func TestOffsetOf(t *testing.T) {
	off, ok := OffsetOf(fmt.Errorf("wrap: %w", TypeMismatch(0x99, "i32", "i64")))
	if !ok || off != 0x99 {
		t.Errorf("OffsetOf = %d, %v", off, ok)
	}
	if _, ok := OffsetOf(errors.New("plain")); ok {
		t.Error("plain error has no offset")
	}
	if _, ok := OffsetOf(InvalidInput(PhaseConfig, "bad")); ok {
		t.Error("NoOffset must report false")
	}
}
