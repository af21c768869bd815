// Package parser extracts plain text from documents so it can be fed to
// the graph builder.
package parser

import (
	"context"
	"strings"
)

// ParseResult is what a parser produces from a document file.
type ParseResult struct {
	Sections []Section // Ordered sections extracted from the document
	Method   string    // "native"
	Metadata map[string]string
}

// Section represents a logical section of a parsed document.
type Section struct {
	Heading    string
	Content    string
	Level      int // Heading level (1=top, 2=sub, etc.)
	PageNumber int
	Metadata   map[string]string
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}

// Text flattens the result into paragraphs separated by blank lines, with
// each heading on its own paragraph.
func (r *ParseResult) Text() string {
	var parts []string
	for _, s := range r.Sections {
		if h := strings.TrimSpace(s.Heading); h != "" {
			parts = append(parts, h)
		}
		if c := strings.TrimSpace(s.Content); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n\n")
}
