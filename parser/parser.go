// Package parser turns specification documents into ordered sections.
package parser

import "context"

// ParseResult is what a parser produces from a document file.
type ParseResult struct {
	Sections []Section
	Method   string // "native"
	Metadata map[string]string
}

// Section is a logical section of a parsed document.
type Section struct {
	Heading    string
	Clause     string // leading clause number of the heading, e.g. "5.5.1.2.4"
	Content    string
	Level      int // heading depth (1=top)
	PageNumber int
	Type       string // "section", "table", "definition", "requirement", "annex"
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}
