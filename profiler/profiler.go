// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package profiler times nested phases of CPU-side work.
package profiler

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

type ProfilerGroup interface {
	Start(label string) ProfilerGroup
	End()
}

// Nop is a ProfilerGroup that records nothing.
var Nop ProfilerGroup = nop{}

type nop struct{}

func (nop) Start(string) ProfilerGroup { return nop{} }
func (nop) End()                       {}

// Slog reports the duration of every ended group to a logger, at the given
// level. Nested groups are labeled with their full path, such as
// "Frame/Extraction.Record".
type Slog struct {
	Logger *slog.Logger
	Level  slog.Level

	// now is swapped out in tests.
	now func() time.Time
}

func NewSlog(logger *slog.Logger, level slog.Level) *Slog {
	return &Slog{Logger: logger, Level: level, now: time.Now}
}

func (p *Slog) Start(label string) ProfilerGroup {
	return p.start(nil, label)
}

// End is a no-op; the root has nothing to time.
func (p *Slog) End() {}

func (p *Slog) start(parent *slogGroup, label string) *slogGroup {
	path := label
	if parent != nil {
		path = parent.path + "/" + label
	}
	now := p.now
	if now == nil {
		now = time.Now
	}
	return &slogGroup{p: p, path: path, start: now()}
}

type slogGroup struct {
	p     *Slog
	path  string
	start time.Time
	ended bool
}

func (g *slogGroup) Start(label string) ProfilerGroup {
	return g.p.start(g, label)
}

func (g *slogGroup) End() {
	if g.ended {
		return
	}
	g.ended = true
	now := g.p.now
	if now == nil {
		now = time.Now
	}
	g.p.Logger.Log(context.Background(), g.p.Level, "phase",
		"path", g.path,
		"depth", strings.Count(g.path, "/"),
		"duration", now().Sub(g.start))
}
