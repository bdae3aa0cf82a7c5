package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TextParser handles plain text and markdown exports of a specification.
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string { return []string{"txt", "md"} }

func (p *TextParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}
	text := strings.TrimSpace(strings.ReplaceAll(string(data), "\r\n", "\n"))
	if text == "" {
		return &ParseResult{Method: "native"}, nil
	}

	// Markdown heading markers are stripped so numbered clause headings
	// are recognised the same way as in PDFs.
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimLeft(l, "# ")
	}
	sections := splitIntoSections(strings.Join(lines, "\n"), 0)
	if len(sections) == 0 {
		sections = []Section{{Heading: filepath.Base(path), Content: text, Level: 1, Type: "section"}}
	}
	return &ParseResult{Sections: mergeContinuations(sections), Method: "native"}, nil
}
