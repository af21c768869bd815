package chunker

import "strings"

// isTable reports whether every line of a paragraph looks like a table row
// and there are at least two of them.
func isTable(para string) bool {
	lines := strings.Split(para, "\n")
	if len(lines) < 2 {
		return false
	}
	for _, l := range lines {
		if !isTableLine(l) {
			return false
		}
	}
	return true
}

// splitByRows packs whole table rows into chunks. A single row over budget
// is packed by words.
func (c *Chunker) splitByRows(table string) []string {
	var (
		chunks        []string
		current       []string
		currentTokens int
	)
	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n"))
			current = nil
			currentTokens = 0
		}
	}

	for _, row := range strings.Split(table, "\n") {
		rowTokens := EstimateTokens(row)
		if rowTokens > c.cfg.MaxTokens {
			flush()
			chunks = append(chunks, c.splitByWords(row)...)
			continue
		}
		if currentTokens+rowTokens > c.cfg.MaxTokens {
			flush()
		}
		current = append(current, row)
		currentTokens += rowTokens
	}
	flush()
	return chunks
}

// isTableLine reports whether a line looks like part of a table.
func isTableLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	// Markdown-style pipe tables.
	if strings.Contains(trimmed, "|") {
		return true
	}
	// Tab-delimited columns (at least two tabs).
	if strings.Count(trimmed, "\t") >= 2 {
		return true
	}
	return isHeaderSeparator(trimmed)
}

// isHeaderSeparator detects markdown-style header separators like
// "|---|---|" or "------".
func isHeaderSeparator(line string) bool {
	cleaned := strings.TrimSpace(line)
	cleaned = strings.ReplaceAll(cleaned, "|", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, ":", "") // alignment markers
	if len(cleaned) < 3 {
		return false
	}
	for _, r := range cleaned {
		if r != '-' {
			return false
		}
	}
	return true
}
