package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Registry maps file formats to parsers.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry returns a registry with the built-in pdf, docx and text
// parsers.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	for _, p := range []Parser{&PDFParser{}, &DOCXParser{}, &TextParser{}} {
		for _, f := range p.SupportedFormats() {
			r.parsers[f] = p
		}
	}
	return r
}

// Get returns the parser for format.
func (r *Registry) Get(format string) (Parser, error) {
	p, ok := r.parsers[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("no parser for format: %s", format)
	}
	return p, nil
}

// Register adds or replaces the parser for format.
func (r *Registry) Register(format string, p Parser) {
	r.parsers[strings.ToLower(format)] = p
}

// Formats lists the registered formats.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.parsers))
	for f := range r.parsers {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// FormatOf returns the format of path derived from its extension.
func FormatOf(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// ParseFile picks the parser by file extension and parses path.
func (r *Registry) ParseFile(ctx context.Context, path string) (*ParseResult, error) {
	p, err := r.Get(FormatOf(path))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := p.Parse(ctx, path)
	if err != nil {
		return nil, err
	}
	if res.Metadata == nil {
		res.Metadata = make(map[string]string)
	}
	res.Metadata["filename"] = filepath.Base(path)
	res.Metadata["format"] = FormatOf(path)
	return res, nil
}
