package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

type PDFParser struct{}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

func (p *PDFParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	sections := make([]Section, 0)

	for i := 1; i <= totalPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages that fail to extract
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		sections = append(sections, splitPageIntoSections(text, i)...)
	}

	if len(sections) == 0 {
		return nil, fmt.Errorf("no text found in PDF")
	}

	return &ParseResult{
		Sections: sections,
		Method:   "native",
		Metadata: map[string]string{"pages": fmt.Sprintf("%d", totalPages)},
	}, nil
}

// splitPageIntoSections breaks page text into sections at heading-like
// lines so that paragraph boundaries survive flattening.
func splitPageIntoSections(text string, pageNum int) []Section {
	lines := strings.Split(text, "\n")
	var sections []Section
	var currentContent strings.Builder
	var currentHeading string
	currentLevel := 0

	flush := func() {
		if currentContent.Len() > 0 {
			sections = append(sections, Section{
				Heading:    currentHeading,
				Content:    strings.TrimSpace(currentContent.String()),
				Level:      currentLevel,
				PageNumber: pageNum,
			})
			currentContent.Reset()
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if currentContent.Len() > 0 {
				currentContent.WriteString("\n")
			}
			continue
		}

		if isLikelyHeading(trimmed) {
			flush()
			currentHeading = trimmed
			currentLevel = detectHeadingLevel(trimmed)
		} else {
			if currentContent.Len() > 0 {
				currentContent.WriteString("\n")
			}
			currentContent.WriteString(trimmed)
		}
	}
	flush()

	return sections
}

func isLikelyHeading(line string) bool {
	if line == "" {
		return false
	}
	// All caps and short
	if len(line) < 100 && line == strings.ToUpper(line) && line != strings.ToLower(line) && len(line) > 2 {
		return true
	}
	if len(line) >= 120 {
		return false
	}
	// Numbered section like "1.", "1.1", "3.9.1"
	if line[0] >= '0' && line[0] <= '9' && strings.Contains(line[:min(10, len(line))], ".") {
		return true
	}
	lower := strings.ToLower(line)
	for _, prefix := range []string{
		"section ", "article ", "chapter ", "part ",
		"sezione ", "articolo ", "capitolo ", "allegato ",
	} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func detectHeadingLevel(heading string) int {
	// Count dots in numbering to determine depth
	parts := strings.SplitN(heading, " ", 2)
	if dots := strings.Count(parts[0], "."); dots > 0 {
		return dots
	}
	// All-caps = top level
	if heading == strings.ToUpper(heading) {
		return 1
	}
	return 2
}
