package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/validator"
	"github.com/wippyai/wasm-validator/wasm"
)

const version = "dev"

// errRejected reports that at least one input failed validation. The
// report has already been printed.
var errRejected = stderrors.New("one or more modules failed validation")

type options struct {
	features     string
	configPath   string
	otelEndpoint string
	jobs         int
	maxControl   int
	maxOperand   int
	perFunction  bool
	interactive  bool
	verbose      bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "wasm-validate [flags] FILE...",
		Short: "Validate WebAssembly modules",
		Long: `Validate WebAssembly binary modules against the core type system.

Each function body is type checked in a single pass. Bodies are validated
in parallel; the first failure in function index order is reported.

Examples:
  wasm-validate module.wasm
  wasm-validate --features wasm2,threads module.wasm
  wasm-validate --features default,-simd --per-function module.wasm
  wasm-validate -i module.wasm`,
		Args:          cobra.MinimumNArgs(1),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.features, "features", "default",
		"Comma separated features or presets (wasm1, wasm2, wasm3, default, all); prefix with - to disable")
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	flags.IntVarP(&opts.jobs, "jobs", "j", 0, "Function bodies validated in parallel (0 = GOMAXPROCS)")
	flags.IntVar(&opts.maxControl, "max-control-depth", 0, "Maximum nested blocks per function (0 = unbounded)")
	flags.IntVar(&opts.maxOperand, "max-operand-depth", 0, "Maximum operand stack height per function (0 = unbounded)")
	flags.BoolVar(&opts.perFunction, "per-function", false, "Report every function body instead of stopping at the first error")
	flags.BoolVarP(&opts.interactive, "interactive", "i", false, "Browse per-function results in a terminal UI")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&opts.otelEndpoint, "otel-endpoint", "", "Export traces to this OTLP/HTTP endpoint (host:port)")

	cmd.AddCommand(newFeaturesCmd())
	return cmd
}

func newFeaturesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "features",
		Short: "List feature names and presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, name := range validator.FeatureNames() {
				fmt.Fprintln(out, name)
			}
			fmt.Fprintf(out, "\npresets: wasm1 wasm2 wasm3 default all\ndefault: %s\n", validator.DefaultFeatures)
			return nil
		},
	}
}

// validatorOptions merges flags with the optional config file. Flags the
// user set explicitly win.
func validatorOptions(flags *pflag.FlagSet, opts *options) ([]validator.Option, error) {
	features, err := validator.ParseFeatures(opts.features)
	if err != nil {
		return nil, err
	}
	jobs, maxControl, maxOperand := opts.jobs, opts.maxControl, opts.maxOperand

	if opts.configPath != "" {
		cfg, err := loadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
		features = cfg.Features.resolve(features, flags.Changed("features"))
		if !flags.Changed("jobs") && cfg.Jobs > 0 {
			jobs = cfg.Jobs
		}
		if !flags.Changed("max-control-depth") && cfg.Limits.MaxControlDepth > 0 {
			maxControl = cfg.Limits.MaxControlDepth
		}
		if !flags.Changed("max-operand-depth") && cfg.Limits.MaxOperandDepth > 0 {
			maxOperand = cfg.Limits.MaxOperandDepth
		}
	}

	return []validator.Option{
		validator.WithFeatures(features),
		validator.WithParallelism(jobs),
		validator.WithMaxControlDepth(maxControl),
		validator.WithMaxOperandDepth(maxOperand),
	}, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	cfg.Encoding = "console"
	return cfg.Build()
}

func run(cmd *cobra.Command, opts *options, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.interactive && len(args) != 1 {
		return errors.InvalidInput(errors.PhaseConfig, "interactive mode takes exactly one file")
	}

	vopts, err := validatorOptions(cmd.Flags(), opts)
	if err != nil {
		return err
	}

	logger, err := newLogger(opts.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	tp, shutdown, err := initTelemetry(ctx, opts.otelEndpoint)
	if err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "initialize telemetry")
	}
	defer shutdown()

	vopts = append(vopts,
		validator.WithLogger(logger),
		validator.WithTracer(tp.Tracer(serviceName)),
	)
	v := validator.New(vopts...)
	logger.Debug("validator ready",
		zap.Stringer("features", v.Features()),
		zap.Int("files", len(args)))

	perFunction := opts.perFunction || opts.interactive
	reports := make([]*fileReport, 0, len(args))
	for _, path := range args {
		rep, err := validateFile(ctx, v, path, perFunction)
		if err != nil {
			return err
		}
		reports = append(reports, rep)
	}

	if opts.interactive {
		rep := reports[0]
		if rep.Err != nil {
			newPrinter(cmd.OutOrStdout()).print(rep)
			return errRejected
		}
		return runBrowser(rep)
	}

	p := newPrinter(cmd.OutOrStdout())
	rejected := false
	for _, rep := range reports {
		p.print(rep)
		rejected = rejected || rep.failed()
	}
	if rejected {
		return errRejected
	}
	return nil
}

// validateFile validates one module file. Only cancellation is returned as
// an error; rejections are recorded in the report.
func validateFile(ctx context.Context, v *validator.Validator, path string, perFunction bool) (*fileReport, error) {
	rep := &fileReport{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		rep.Err = errors.Load("read "+path, err)
		return rep, nil
	}

	if !perFunction {
		m, err := v.Validate(ctx, data)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			rep.Err = err
			return rep, nil
		}
		rep.NumFuncs = len(m.Code)
		return rep, nil
	}

	m, err := wasm.ParseModule(data)
	if err != nil {
		rep.Err = errors.Decode("malformed module", err)
		return rep, nil
	}
	results, err := v.ValidateFunctions(ctx, m)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		rep.Err = err
		return rep, nil
	}
	rep.Funcs = results
	rep.NumFuncs = len(results)
	return rep, nil
}
