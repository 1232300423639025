// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package profiler

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlog(t *testing.T) {
	var buf bytes.Buffer
	p := NewSlog(slog.New(slog.NewTextHandler(&buf, nil)), slog.LevelInfo)
	clock := time.Unix(0, 0)
	p.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}

	frame := p.Start("Frame")
	extract := frame.Start("Extraction.Record")
	extract.End()
	extract.End()
	frame.End()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if assert.Len(t, lines, 2) {
		assert.Contains(t, lines[0], "path=Frame/Extraction.Record")
		assert.Contains(t, lines[0], "depth=1")
		assert.Contains(t, lines[0], "duration=1ms")
		assert.Contains(t, lines[1], "path=Frame")
		assert.Contains(t, lines[1], "duration=3ms")
	}
}

func TestSlogLevel(t *testing.T) {
	var buf bytes.Buffer
	p := NewSlog(slog.New(slog.NewTextHandler(&buf, nil)), slog.LevelDebug)
	p.Start("hidden").End()
	assert.Empty(t, buf.String())
}

func TestNop(t *testing.T) {
	g := Nop.Start("a").Start("b")
	g.End()
	assert.Equal(t, Nop, g)
}
