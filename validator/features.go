package validator

import (
	"fmt"
	"math/bits"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-validator/errors"
)

// Features is a set of WebAssembly capabilities enabled for a validation run.
// Every gated opcode and value type is checked against it before the operand
// stack is touched.
type Features uint32

// Capability flags
const (
	FeatureMutableGlobal Features = 1 << iota
	FeatureSaturatingFloatToInt
	FeatureSignExtension
	FeatureReferenceTypes
	FeatureMultiValue
	FeatureBulkMemory
	FeatureSIMD
	FeatureRelaxedSIMD
	FeatureThreads
	FeatureSharedEverythingThreads
	FeatureTailCall
	FeatureMultiMemory
	FeatureExceptions
	FeatureLegacyExceptions
	FeatureMemory64
	FeatureExtendedConst
	FeatureFunctionReferences
	FeatureGC
	FeatureStackSwitching
	FeatureMemoryControl
	FeatureCustomPageSizes

	featureEnd
)

// Feature presets
const (
	WASM1Features Features = FeatureMutableGlobal

	WASM2Features = WASM1Features |
		FeatureSaturatingFloatToInt |
		FeatureSignExtension |
		FeatureReferenceTypes |
		FeatureMultiValue |
		FeatureBulkMemory |
		FeatureSIMD

	WASM3Features = WASM2Features |
		FeatureRelaxedSIMD |
		FeatureTailCall |
		FeatureMultiMemory |
		FeatureExceptions |
		FeatureMemory64 |
		FeatureExtendedConst |
		FeatureFunctionReferences |
		FeatureGC

	// DefaultFeatures enables finished proposals plus threads.
	DefaultFeatures = WASM3Features | FeatureThreads

	// AllFeatures enables every known capability.
	AllFeatures = featureEnd - 1
)

var featureNames = map[Features]string{
	FeatureMutableGlobal:           "mutable-global",
	FeatureSaturatingFloatToInt:    "saturating-float-to-int",
	FeatureSignExtension:           "sign-extension",
	FeatureReferenceTypes:          "reference-types",
	FeatureMultiValue:              "multi-value",
	FeatureBulkMemory:              "bulk-memory",
	FeatureSIMD:                    "simd",
	FeatureRelaxedSIMD:             "relaxed-simd",
	FeatureThreads:                 "threads",
	FeatureSharedEverythingThreads: "shared-everything-threads",
	FeatureTailCall:                "tail-call",
	FeatureMultiMemory:             "multi-memory",
	FeatureExceptions:              "exceptions",
	FeatureLegacyExceptions:        "legacy-exceptions",
	FeatureMemory64:                "memory64",
	FeatureExtendedConst:           "extended-const",
	FeatureFunctionReferences:      "function-references",
	FeatureGC:                      "gc",
	FeatureStackSwitching:          "stack-switching",
	FeatureMemoryControl:           "memory-control",
	FeatureCustomPageSizes:         "custom-page-sizes",
}

var presetNames = map[string]Features{
	"wasm1":   WASM1Features,
	"wasm2":   WASM2Features,
	"wasm3":   WASM3Features,
	"default": DefaultFeatures,
	"all":     AllFeatures,
}

// Has reports whether every flag in f2 is enabled
func (f Features) Has(f2 Features) bool {
	return f&f2 == f2
}

// Name returns the canonical name of a single flag
func (f Features) Name() string {
	if name, ok := featureNames[f]; ok {
		return name
	}
	return fmt.Sprintf("feature(0x%x)", uint32(f))
}

// Names lists the enabled flags in bit order
func (f Features) Names() []string {
	names := make([]string, 0, bits.OnesCount32(uint32(f)))
	for bit := Features(1); bit < featureEnd; bit <<= 1 {
		if f&bit != 0 {
			names = append(names, bit.Name())
		}
	}
	return names
}

func (f Features) String() string {
	return strings.Join(f.Names(), ",")
}

// FeatureNames returns every known flag name, sorted
func FeatureNames() []string {
	names := make([]string, 0, len(featureNames))
	for _, n := range featureNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LookupFeature resolves a flag or preset name
func LookupFeature(name string) (Features, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if f, ok := presetNames[name]; ok {
		return f, nil
	}
	for f, n := range featureNames {
		if n == name {
			return f, nil
		}
	}
	return 0, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
		Value(name).
		Detail("unknown feature %q", name).
		Build()
}

// ParseFeatures parses a comma separated list of flag or preset names.
// A leading '-' removes the named flags, e.g. "default,-simd".
func ParseFeatures(s string) (Features, error) {
	var f Features
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		remove := strings.HasPrefix(part, "-")
		flag, err := LookupFeature(strings.TrimPrefix(part, "-"))
		if err != nil {
			return 0, err
		}
		if remove {
			f &^= flag
		} else {
			f |= flag
		}
	}
	return f, nil
}

// MarshalYAML encodes the set as a list of flag names
func (f Features) MarshalYAML() (interface{}, error) {
	return f.Names(), nil
}

// UnmarshalYAML accepts either a list of names or a comma separated string
func (f *Features) UnmarshalYAML(node *yaml.Node) error {
	var names []string
	switch node.Kind {
	case yaml.SequenceNode:
		if err := node.Decode(&names); err != nil {
			return err
		}
	case yaml.ScalarNode:
		names = []string{node.Value}
	default:
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("line %d: features must be a list or string", node.Line))
	}
	parsed, err := ParseFeatures(strings.Join(names, ","))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
