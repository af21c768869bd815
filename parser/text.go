package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TextParser handles plain text and markdown files.
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string { return []string{"txt", "md"} }

func (p *TextParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}

	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	if strings.TrimSpace(content) == "" {
		return &ParseResult{
			Method: "native",
		}, nil
	}

	return &ParseResult{
		Sections: []Section{
			{
				Content: content,
				Level:   1,
			},
		},
		Method:   "native",
		Metadata: map[string]string{"filename": filepath.Base(path)},
	}, nil
}
