package main

import (
	"bytes"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/validator"
)

// fileConfig is the YAML configuration accepted by --config.
//
//	features:
//	  preset: wasm2
//	  enable: [threads]
//	  disable: [simd]
//	jobs: 4
//	limits:
//	  max_control_depth: 10000
//	  max_operand_depth: 100000
type fileConfig struct {
	Features featureConfig `yaml:"features"`
	Limits   limitsConfig  `yaml:"limits"`
	Jobs     int           `yaml:"jobs"`
}

type featureConfig struct {
	Preset  *validator.Features `yaml:"preset"`
	Enable  validator.Features  `yaml:"enable"`
	Disable validator.Features  `yaml:"disable"`
}

type limitsConfig struct {
	MaxControlDepth int `yaml:"max_control_depth"`
	MaxOperandDepth int `yaml:"max_operand_depth"`
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "read config "+path)
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*fileConfig, error) {
	cfg := &fileConfig{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		var e *errors.Error
		if errors.As(err, &e) {
			return nil, e
		}
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse config")
	}
	if cfg.Jobs < 0 || cfg.Limits.MaxControlDepth < 0 || cfg.Limits.MaxOperandDepth < 0 {
		return nil, errors.InvalidInput(errors.PhaseConfig, "jobs and limits must not be negative")
	}
	return cfg, nil
}

// resolve applies the file's feature edits on top of base. A preset in the
// file replaces base unless the caller set features explicitly.
func (c featureConfig) resolve(base validator.Features, explicit bool) validator.Features {
	f := base
	if c.Preset != nil && !explicit {
		f = *c.Preset
	}
	return (f | c.Enable) &^ c.Disable
}
