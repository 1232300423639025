// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package implicit

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"

	"honnef.co/go/implicit/compiler"
	"honnef.co/go/implicit/internal/logging"
	"honnef.co/go/implicit/renderer"
)

type Config struct {
	// Capacity of the point buffer, per pixel.
	PointMultiplier uint32 `toml:"point_multiplier"`
	// Width of the fine pass's indirect dispatch grid.
	DispatchWidth uint32 `toml:"dispatch_width"`
	// Maximum number of enabled formulas in a scene.
	MaxFunctions int `toml:"max_functions"`

	DistanceScale      float64 `toml:"distance_scale"`
	GradientEpsilon    float64 `toml:"gradient_epsilon"`
	DenominatorEpsilon float64 `toml:"denominator_epsilon"`
	ClipOffscreen      bool    `toml:"clip_offscreen"`
	RewriteExponential bool    `toml:"rewrite_exponential"`

	// Validate assembled shaders with naga before using them.
	ValidateShaders bool `toml:"validate_shaders"`

	Limits LimitsConfig `toml:"limits"`
}

type LimitsConfig struct {
	MaxStorageBufferBindingSize      uint64 `toml:"max_storage_buffer_binding_size"`
	MaxTextureDimension2D            uint32 `toml:"max_texture_dimension_2d"`
	MaxComputeWorkgroupsPerDimension uint32 `toml:"max_compute_workgroups_per_dimension"`
}

func DefaultConfig() *Config {
	opts := compiler.DefaultOptions()
	limits := renderer.DefaultLimits()
	return &Config{
		PointMultiplier:    renderer.DefaultPointMultiplier,
		DispatchWidth:      renderer.DefaultDispatchWidth,
		MaxFunctions:       16,
		DistanceScale:      opts.DistanceScale,
		GradientEpsilon:    opts.GradientEpsilon,
		DenominatorEpsilon: opts.DenominatorEpsilon,
		Limits: LimitsConfig{
			MaxStorageBufferBindingSize:      limits.MaxStorageBufferBindingSize,
			MaxTextureDimension2D:            limits.MaxTextureDimension2D,
			MaxComputeWorkgroupsPerDimension: limits.MaxComputeWorkgroupsPerDimension,
		},
	}
}

// LoadConfig reads a TOML configuration file. Keys missing from the file
// keep their default values.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't read config file: %w", err)
	}
	return cfg, cfg.finish(md)
}

// ParseConfig is like LoadConfig but reads from r.
func ParseConfig(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.NewDecoder(r).Decode(cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse config: %w", err)
	}
	return cfg, cfg.finish(md)
}

func (cfg *Config) finish(md toml.MetaData) error {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		logging.Logger().Warn("ignoring unknown config keys", "keys", strings.Join(keys, ", "))
	}
	return cfg.Validate()
}

// Validate checks that the configuration is usable.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.PointMultiplier == 0 {
		errs = append(errs, errors.New("point_multiplier must be positive"))
	}
	if cfg.DispatchWidth == 0 {
		errs = append(errs, errors.New("dispatch_width must be positive"))
	}
	if cfg.MaxFunctions <= 0 {
		errs = append(errs, errors.New("max_functions must be positive"))
	}
	if !(cfg.DistanceScale > 0) {
		errs = append(errs, errors.New("distance_scale must be positive"))
	}
	if cfg.GradientEpsilon < 0 || cfg.DenominatorEpsilon < 0 {
		errs = append(errs, errors.New("epsilons must not be negative"))
	}
	return errors.Join(errs...)
}

// Save writes the configuration as TOML.
func (cfg *Config) Save(w io.Writer) error {
	return toml.NewEncoder(w).Encode(cfg)
}

func (cfg *Config) CompilerOptions() compiler.Options {
	return compiler.Options{
		DistanceScale:      cfg.DistanceScale,
		GradientEpsilon:    cfg.GradientEpsilon,
		DenominatorEpsilon: cfg.DenominatorEpsilon,
		ClipOffscreen:      cfg.ClipOffscreen,
		RewriteExponential: cfg.RewriteExponential,
	}
}

func (cfg *Config) RendererLimits() renderer.Limits {
	return renderer.Limits{
		MaxStorageBufferBindingSize:      cfg.Limits.MaxStorageBufferBindingSize,
		MaxTextureDimension2D:            cfg.Limits.MaxTextureDimension2D,
		MaxComputeWorkgroupsPerDimension: cfg.Limits.MaxComputeWorkgroupsPerDimension,
	}
}
