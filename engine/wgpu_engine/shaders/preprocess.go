// Copyright 2023 the Vello Authors
// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package shaders

import (
	"bytes"
	"fmt"
	"io/fs"
	"sync"

	"honnef.co/go/implicit/internal/logging"
)

// Preprocessor implements the directives used by the WGSL sources:
//
//	#import name    splices shared/name.wgsl, itself preprocessed
//	#insert name    splices Inserts[name] verbatim
//	#ifdef name / #ifndef name / #else / #endif
//
// Conditional directives must be the first item on their line.
type Preprocessor struct {
	Imports fs.FS
	Defines map[string]struct{}
	Inserts map[string]string

	mu      sync.Mutex
	imports map[string][]byte
}

func (p *Preprocessor) debugf(f string, v ...any) {
	logging.Logger().Debug(fmt.Sprintf(f, v...), "component", "preprocessor")
}

func (p *Preprocessor) getImport(name string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if src, ok := p.imports[name]; ok {
		return src, nil
	}
	p.debugf("loading import %q", name)
	if p.Imports == nil {
		return nil, fmt.Errorf("no import source configured")
	}
	src, err := fs.ReadFile(p.Imports, name+".wgsl")
	if err != nil {
		return nil, err
	}
	if p.imports == nil {
		p.imports = make(map[string][]byte)
	}
	p.imports[name] = src
	return src, nil
}

func (p *Preprocessor) Preprocess(source []byte, name string) ([]byte, error) {
	var out []byte
	nl := []byte("\n")
	space := []byte(" ")
	dirMarker := []byte("#")
	commentMarker := []byte("//")
	type stackItem struct {
		active     bool
		elsePassed bool
	}
	var stack []stackItem
	lineNo := 0
	errorf := func(f string, v ...any) error {
		v = append(v[:len(v):len(v)], name, lineNo)
		return fmt.Errorf(f+" (at %s:%d)", v...)
	}
	active := func() bool {
		for _, item := range stack {
			if !item.active {
				return false
			}
		}
		return true
	}

allLines:
	for len(source) > 0 {
		lineNo++
		var line []byte
		line, source, _ = bytes.Cut(source, nl)

		for len(line) > 0 {
			hashIdx := bytes.IndexByte(line, '#')
			commentIdx := bytes.Index(line, commentMarker)
			if hashIdx == -1 || (commentIdx != -1 && commentIdx < hashIdx) {
				break
			}

			end := bytes.IndexByte(line[hashIdx+1:], ' ')
			if end == -1 {
				end = len(line)
			} else {
				end += hashIdx + 1
			}
			directive := string(line[hashIdx+1 : end])
			atStart := bytes.HasPrefix(bytes.TrimSpace(line), dirMarker)
			arg := bytes.TrimSpace(line[end:])

			switch directive {
			case "ifdef", "ifndef", "else", "endif", "insert":
				if !atStart {
					return nil, errorf("%q directives must be the first non-whitespace item on their line", directive)
				}
			}

			switch directive {
			case "ifdef", "ifndef":
				if len(arg) == 0 {
					return nil, errorf("#%s needs an argument", directive)
				}
				_, exists := p.Defines[string(arg)]
				on := (directive == "ifdef") == exists
				stack = append(stack, stackItem{active: on})
				p.debugf("#%s %s: active=%t", directive, arg, on)
				continue allLines

			case "else":
				if len(stack) == 0 {
					return nil, errorf("#else without #ifdef or #ifndef")
				}
				if len(arg) != 0 {
					return nil, errorf("#else directive doesn't accept arguments")
				}
				item := &stack[len(stack)-1]
				if item.elsePassed {
					return nil, errorf("second else for same ifdef/ifndef")
				}
				item.elsePassed = true
				item.active = !item.active
				continue allLines

			case "endif":
				if len(stack) == 0 {
					return nil, errorf("mismatched endif")
				}
				stack = stack[:len(stack)-1]
				if len(arg) != 0 && !bytes.HasPrefix(arg, commentMarker) {
					return nil, errorf("#endif directive doesn't accept arguments")
				}
				continue allLines

			case "insert":
				if len(arg) == 0 {
					return nil, errorf("#insert needs an argument")
				}
				if !active() {
					continue allLines
				}
				src, ok := p.Inserts[string(arg)]
				if !ok {
					return nil, errorf("nothing to insert for %q", arg)
				}
				p.debugf("inserting %q (%d bytes)", arg, len(src))
				out = append(out, src...)
				if len(src) > 0 && src[len(src)-1] != '\n' {
					out = append(out, '\n')
				}
				continue allLines

			case "import":
				out = append(out, line[:hashIdx]...)
				if len(arg) == 0 {
					return nil, errorf("#import needs an argument")
				}
				var importName []byte
				importName, line, _ = bytes.Cut(arg, space)
				if !active() {
					continue
				}
				importSrc, err := p.getImport(string(importName))
				if err != nil {
					return nil, errorf("couldn't import %q: %w", importName, err)
				}
				imported, err := p.Preprocess(importSrc, "#import "+string(importName))
				if err != nil {
					return nil, err
				}
				out = append(out, imported...)

			default:
				return nil, errorf("unknown preprocessor directive %q", directive)
			}
		}

		if active() {
			out = append(out, line...)
			out = append(out, '\n')
		}
	}

	if len(stack) != 0 {
		return nil, fmt.Errorf("%s: %d unterminated #ifdef/#ifndef", name, len(stack))
	}
	return out, nil
}
