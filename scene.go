// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package implicit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"honnef.co/go/color"
	"honnef.co/go/curve"

	"honnef.co/go/implicit/algebra"
	"honnef.co/go/implicit/compiler"
	"honnef.co/go/implicit/engine/wgpu_engine/shaders"
	"honnef.co/go/implicit/gfx"
	"honnef.co/go/implicit/internal/logging"
	"honnef.co/go/implicit/renderer"
)

// Scene is a set of formulas and the view they're looked at through.
//
//	canvas: {width: 800, height: 600}
//	view: {offset: [0, 0], zoom: 0.1}
//	formulas:
//	  - expression: x^2 + y^2 = 1
//	    domain: ["x > 0"]
//	    color: "#1f77b4"
type Scene struct {
	Canvas   CanvasSpec    `yaml:"canvas"`
	View     ViewSpec      `yaml:"view"`
	Formulas []FormulaSpec `yaml:"formulas"`
}

type CanvasSpec struct {
	Width  uint32 `yaml:"width"`
	Height uint32 `yaml:"height"`
}

type ViewSpec struct {
	Offset [2]float64 `yaml:"offset"`
	// Visible world height is 1/Zoom.
	Zoom float64 `yaml:"zoom"`
}

type FormulaSpec struct {
	// ID defaults to a random UUID.
	ID         string   `yaml:"id,omitempty"`
	Expression string   `yaml:"expression"`
	Domain     []string `yaml:"domain,omitempty"`
	// Enabled defaults to true.
	Enabled *bool `yaml:"enabled,omitempty"`
	// Color is "#rrggbb" or "#rrggbbaa" in sRGB. It defaults to black.
	Color string `yaml:"color,omitempty"`
}

const (
	defaultCanvasWidth  = 800
	defaultCanvasHeight = 600
)

// LoadScene reads a YAML scene file.
func LoadScene(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't read scene: %w", err)
	}
	s, err := ParseScene(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScene decodes a YAML scene, fills in defaults and checks it.
func ParseScene(r io.Reader) (*Scene, error) {
	var s Scene
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return nil, fmt.Errorf("couldn't parse scene: %w", err)
	}

	if s.Canvas.Width == 0 {
		s.Canvas.Width = defaultCanvasWidth
	}
	if s.Canvas.Height == 0 {
		s.Canvas.Height = defaultCanvasHeight
	}
	if s.View.Zoom == 0 {
		s.View.Zoom = renderer.DefaultView(s.Canvas.Width, s.Canvas.Height).Zoom
	} else if !(s.View.Zoom > 0) {
		return nil, fmt.Errorf("zoom must be positive, got %g", s.View.Zoom)
	}

	seen := make(map[string]int, len(s.Formulas))
	for i := range s.Formulas {
		f := &s.Formulas[i]
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		if j, ok := seen[f.ID]; ok {
			return nil, fmt.Errorf("formulas %d and %d have the same ID %q", j, i, f.ID)
		}
		seen[f.ID] = i
		if f.Color != "" {
			if _, err := ParseColor(f.Color); err != nil {
				return nil, fmt.Errorf("formula %q: %w", f.ID, err)
			}
		}
	}
	logging.Logger().Debug("loaded scene", "formulas", len(s.Formulas))
	return &s, nil
}

// ParseColor parses "#rgb", "#rgba", "#rrggbb" or "#rrggbbaa".
func ParseColor(s string) (*color.Color, error) {
	hex, ok := strings.CutPrefix(s, "#")
	if !ok {
		return nil, fmt.Errorf("invalid color %q, want #rrggbb or #rrggbbaa", s)
	}
	switch len(hex) {
	case 3, 4:
		var sb strings.Builder
		for _, c := range hex {
			sb.WriteRune(c)
			sb.WriteRune(c)
		}
		hex = sb.String()
	case 6, 8:
	default:
		return nil, fmt.Errorf("invalid color %q, want #rrggbb or #rrggbbaa", s)
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid color %q: %w", s, err)
	}
	comp := func(shift uint) float64 { return float64((v>>shift)&0xff) / 255 }
	return gfx.SRGB(comp(24), comp(16), comp(8), comp(0)), nil
}

// Encode writes the scene as YAML.
func (s *Scene) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}

// CompilerFormulas converts the scene's formulas. Colors have been checked
// by ParseScene.
func (s *Scene) CompilerFormulas() []compiler.Formula {
	out := make([]compiler.Formula, len(s.Formulas))
	for i, f := range s.Formulas {
		cf := compiler.Formula{
			ID:         f.ID,
			Expression: f.Expression,
			Domain:     f.Domain,
			Enabled:    f.Enabled == nil || *f.Enabled,
		}
		if f.Color != "" {
			cf.Color, _ = ParseColor(f.Color)
		}
		out[i] = cf
	}
	return out
}

// RendererView returns the scene's view, clamped to the configured limits.
func (s *Scene) RendererView(cfg *Config) renderer.View {
	w, h := renderer.ClampCanvas(s.Canvas.Width, s.Canvas.Height, cfg.RendererLimits())
	return renderer.View{
		Width:  w,
		Height: h,
		Offset: curve.Point{X: s.View.Offset[0], Y: s.View.Offset[1]},
		Zoom:   s.View.Zoom,
	}
}

// TooManyFormulasError is returned by Compile for scenes with more enabled
// formulas than the configuration allows.
type TooManyFormulasError struct {
	Count int
	Limit int
}

func (e *TooManyFormulasError) Error() string {
	return fmt.Sprintf("scene has %d enabled formulas, at most %d are allowed", e.Count, e.Limit)
}

// Compile compiles the scene's enabled formulas.
func (s *Scene) Compile(ctx context.Context, cfg *Config) (*compiler.Program, error) {
	formulas := s.CompilerFormulas()
	n := 0
	for _, f := range formulas {
		if f.Enabled {
			n++
		}
	}
	if n > cfg.MaxFunctions {
		return nil, &TooManyFormulasError{Count: n, Limit: cfg.MaxFunctions}
	}
	return compiler.Compile(ctx, algebra.New(), formulas, cfg.CompilerOptions())
}

// BuildShaders assembles the shaders for prog, validating them if the
// configuration asks for it.
func BuildShaders(prog *compiler.Program, cfg *Config, opts shaders.BuildOptions) (*shaders.Collection, error) {
	c, err := shaders.Build(prog, opts)
	if err != nil {
		return nil, err
	}
	if cfg.ValidateShaders {
		if err := c.ValidateAll(); err != nil {
			return nil, err
		}
	}
	return c, nil
}
