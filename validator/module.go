package validator

import (
	"context"
	"runtime"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/wasm"
)

const tracerName = "github.com/wippyai/wasm-validator/validator"

// Validator validates whole modules. Canonical types accumulate in its
// TypeList, so every module validated by one Validator shares type
// identities. A Validator is safe for concurrent use.
type Validator struct {
	types       *TypeList
	logger      *zap.Logger
	tracer      trace.Tracer
	features    Features
	parallelism int
	maxControl  int
	maxOperand  int
}

// Option configures a Validator
type Option func(*Validator)

// WithFeatures sets the enabled capabilities
func WithFeatures(f Features) Option {
	return func(v *Validator) { v.features = f }
}

// WithLogger sets the logger used for debug output
func WithLogger(l *zap.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithParallelism bounds how many function bodies are validated at once.
// Values below one mean GOMAXPROCS.
func WithParallelism(n int) Option {
	return func(v *Validator) { v.parallelism = n }
}

// WithMaxControlDepth caps nested control frames per function
func WithMaxControlDepth(n int) Option {
	return func(v *Validator) { v.maxControl = n }
}

// WithMaxOperandDepth caps the operand stack per function
func WithMaxOperandDepth(n int) Option {
	return func(v *Validator) { v.maxOperand = n }
}

// WithTracer sets the tracer used for validation spans
func WithTracer(t trace.Tracer) Option {
	return func(v *Validator) {
		if t != nil {
			v.tracer = t
		}
	}
}

// New creates a Validator with DefaultFeatures unless overridden
func New(opts ...Option) *Validator {
	v := &Validator{
		types:    NewTypeList(),
		features: DefaultFeatures,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = Logger()
	}
	if v.tracer == nil {
		v.tracer = otel.Tracer(tracerName)
	}
	if v.parallelism < 1 {
		v.parallelism = runtime.GOMAXPROCS(0)
	}
	return v
}

// ID returns the identity stamped on every type this validator mints
func (v *Validator) ID() ValidatorID { return v.types.ID() }

// Types returns the validator's canonical type store
func (v *Validator) Types() *TypeList { return v.types }

// Features returns the enabled capabilities
func (v *Validator) Features() Features { return v.features }

// FuncConfig returns the per-function settings derived from the options
func (v *Validator) FuncConfig() FuncConfig {
	return FuncConfig{
		Features:        v.features,
		MaxControlDepth: v.maxControl,
		MaxOperandDepth: v.maxOperand,
	}
}

// FuncResult is the outcome of validating one function body
type FuncResult struct {
	Err error
	// Index is the function's position in the function index space
	Index  uint32
	Offset int
	Size   int
}

// Validate decodes and validates a binary module
func (v *Validator) Validate(ctx context.Context, data []byte) (*wasm.Module, error) {
	m, err := wasm.ParseModule(data)
	if err != nil {
		return nil, decodeError(err)
	}
	if err := v.ValidateModule(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Resources validates every module-level declaration and returns the
// snapshot function bodies are checked against.
func (v *Validator) Resources(m *wasm.Module) (*ModuleResources, error) {
	if err := m.Validate(); err != nil {
		return nil, errors.New(errors.PhaseValidate, structuralKind(err)).
			Cause(err).
			Detail("%v", err).
			Build()
	}
	if len(m.Code) != len(m.Funcs) {
		return nil, errors.Validation(errors.KindInvalidData, errors.NoOffset,
			"function and code section have inconsistent lengths")
	}
	return newResourceBuilder(m, v.types, v.features).build()
}

var unknownIndexKinds = map[wasm.IndexSpace]errors.Kind{
	wasm.SpaceType:   errors.KindUnknownType,
	wasm.SpaceFunc:   errors.KindUnknownFunction,
	wasm.SpaceTable:  errors.KindUnknownTable,
	wasm.SpaceMemory: errors.KindUnknownMemory,
	wasm.SpaceGlobal: errors.KindUnknownGlobal,
	wasm.SpaceTag:    errors.KindUnknownTag,
}

// structuralKind classifies an error from wasm.Module.Validate
func structuralKind(err error) errors.Kind {
	var ie *wasm.IndexError
	if errors.As(err, &ie) {
		if kind, ok := unknownIndexKinds[ie.Space]; ok {
			return kind
		}
	}
	return errors.KindInvalidData
}

// ValidateModule validates m and returns the first error. Bodies are
// checked in parallel; when several fail, the lowest function index wins.
func (v *Validator) ValidateModule(ctx context.Context, m *wasm.Module) error {
	ctx, span := v.tracer.Start(ctx, "validator.ValidateModule")
	defer span.End()

	err := v.validateModule(ctx, m, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid module")
	}
	return err
}

func (v *Validator) validateModule(ctx context.Context, m *wasm.Module, span trace.Span) error {
	res, err := v.Resources(m)
	if err != nil {
		return err
	}
	results, err := v.validateBodies(ctx, res, m, true, span)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

// ValidateFunctions validates every body independently. The error is
// non-nil only for module-level failures or cancellation.
func (v *Validator) ValidateFunctions(ctx context.Context, m *wasm.Module) ([]FuncResult, error) {
	ctx, span := v.tracer.Start(ctx, "validator.ValidateFunctions")
	defer span.End()

	res, err := v.Resources(m)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid module")
		return nil, err
	}
	return v.validateBodies(ctx, res, m, false, span)
}

// validateBodies hands out body indices in increasing order to a bounded
// set of workers, each owning its own allocations. With stopEarly, a
// worker stops once its next index lies past the lowest failure seen.
func (v *Validator) validateBodies(ctx context.Context, res Resources, m *wasm.Module, stopEarly bool, span trace.Span) ([]FuncResult, error) {
	n := len(m.Code)
	results := make([]FuncResult, n)
	if n == 0 {
		return results, nil
	}
	workers := min(v.parallelism, n)
	imported := uint32(m.NumImportedFuncs())
	cfg := v.FuncConfig()

	span.SetAttributes(
		attribute.Int("wasm.functions", n),
		attribute.Int("wasm.workers", workers),
		attribute.String("wasm.features", v.features.String()),
	)
	v.logger.Debug("validating function bodies",
		zap.Int("functions", n),
		zap.Int("workers", workers),
		zap.Stringer("features", v.features))

	var next atomic.Int64
	var lowestFailure atomic.Int64
	lowestFailure.Store(int64(n))

	g, ctx := errgroup.WithContext(ctx)
	for range workers {
		g.Go(func() error {
			var alloc Allocations
			for {
				if err := ctx.Err(); err != nil {
					return err
				}
				i := next.Add(1) - 1
				if i >= int64(n) || (stopEarly && i > lowestFailure.Load()) {
					return nil
				}
				body := &m.Code[i]
				idx := imported + uint32(i)
				var err error
				alloc, err = validateBody(res, idx, cfg, body, alloc)
				if err != nil {
					err = inFunc(err, idx)
					v.logger.Debug("function rejected", zap.Uint32("func", idx), zap.Error(err))
					lowerTo(&lowestFailure, i)
				}
				results[i] = FuncResult{
					Index:  idx,
					Offset: body.Offset,
					Size:   body.End() - body.Offset,
					Err:    err,
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func validateBody(res Resources, idx uint32, cfg FuncConfig, body *wasm.FuncBody, alloc Allocations) (Allocations, error) {
	fv, err := NewFuncValidator(res, idx, cfg, alloc)
	if err != nil {
		return Allocations{}, err
	}
	err = fv.Validate(body)
	return fv.IntoAllocations(), err
}

func lowerTo(a *atomic.Int64, v int64) {
	for {
		cur := a.Load()
		if v >= cur || a.CompareAndSwap(cur, v) {
			return
		}
	}
}

func inFunc(err error, idx uint32) error {
	var e *errors.Error
	if errors.As(err, &e) {
		return e.InFunc(idx)
	}
	return err
}
