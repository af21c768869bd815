// Package chunker splits long input into pieces that fit an approximate
// token budget. Pieces do not overlap: every word of the input lands in
// exactly one chunk, in input order.
package chunker

import (
	"math"
	"strings"
)

// DefaultMaxTokens is used when Config.MaxTokens is zero.
const DefaultMaxTokens = 1000

// Config controls the chunking behaviour.
type Config struct {
	MaxTokens int // Maximum estimated tokens per chunk.
}

// Chunker splits text into token-bounded chunks.
type Chunker struct {
	cfg Config
}

// New returns a Chunker with the given configuration.
// Zero-value fields are replaced with sensible defaults.
func New(cfg Config) *Chunker {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Chunker{cfg: cfg}
}

// MaxTokens returns the configured budget.
func (c *Chunker) MaxTokens() int { return c.cfg.MaxTokens }

// Split breaks text into chunks of at most MaxTokens estimated tokens,
// preferring paragraph boundaries, then sentence boundaries, then word
// boundaries. Text that already fits is returned as a single chunk.
// Blank input yields no chunks.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if EstimateTokens(text) <= c.cfg.MaxTokens {
		return []string{text}
	}

	var (
		chunks        []string
		current       strings.Builder
		currentTokens int
	)
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
			currentTokens = 0
		}
	}

	for _, para := range splitParagraphs(text) {
		paraTokens := EstimateTokens(para)

		// A paragraph over budget is split on its own, tables by row.
		if paraTokens > c.cfg.MaxTokens {
			flush()
			if isTable(para) {
				chunks = append(chunks, c.splitByRows(para)...)
			} else {
				chunks = append(chunks, c.splitBySentences(para)...)
			}
			continue
		}

		if currentTokens+paraTokens > c.cfg.MaxTokens {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
		currentTokens += paraTokens
	}
	flush()

	return chunks
}

// splitBySentences packs sentences into chunks, falling back to word
// packing for a single sentence over budget.
func (c *Chunker) splitBySentences(text string) []string {
	var (
		chunks        []string
		current       strings.Builder
		currentTokens int
	)
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
			currentTokens = 0
		}
	}

	for _, sent := range splitSentences(text) {
		sentTokens := EstimateTokens(sent)
		if sentTokens > c.cfg.MaxTokens {
			flush()
			chunks = append(chunks, c.splitByWords(sent)...)
			continue
		}
		if currentTokens+sentTokens > c.cfg.MaxTokens {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sent)
		currentTokens += sentTokens
	}
	flush()

	return chunks
}

// splitByWords cuts text into runs of at most maxWords words, the largest
// count whose estimate stays within budget.
func (c *Chunker) splitByWords(text string) []string {
	words := strings.Fields(text)
	maxWords := int(float64(c.cfg.MaxTokens) / tokensPerWord)
	if maxWords < 1 {
		maxWords = 1
	}
	var chunks []string
	for start := 0; start < len(words); start += maxWords {
		end := min(start+maxWords, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks
}

// tokensPerWord is the word-to-token ratio of EstimateTokens.
const tokensPerWord = 1.3

// EstimateTokens approximates the token count of text using a simple
// word-based heuristic: tokens ~ words * 1.3.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * tokensPerWord))
}

// splitParagraphs splits text on blank-line boundaries.
func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences is a simple sentence tokeniser.  It splits on
// period/question-mark/exclamation followed by whitespace or end of
// string.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '?' || runes[i] == '!' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				s := strings.TrimSpace(cur.String())
				if s != "" {
					sentences = append(sentences, s)
				}
				cur.Reset()
			}
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
