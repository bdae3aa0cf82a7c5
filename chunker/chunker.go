// Package chunker cuts parsed specification sections into bounded text
// chunks that keep their clause number, so extracted records can cite
// where they came from.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/brunobiangulo/nasgraph/parser"
)

// Config controls the chunking behaviour.
type Config struct {
	MaxTokens int // Maximum estimated tokens per chunk.
	Overlap   int // Token overlap between consecutive fragments of a clause.
}

// Chunk is a bounded piece of one clause.
type Chunk struct {
	ID          string // "<source>#<index>", index counts from 0 per document
	Source      string
	Index       int
	Clause      string
	Heading     string
	Content     string
	Type        string // "section", "table", "definition", "requirement", "annex"
	PageNumber  int
	TokenCount  int
	ContentHash string
}

// Chunker converts parsed document sections into chunks.
type Chunker struct {
	cfg Config
}

// New returns a Chunker with the given configuration.
// Zero-value fields are replaced with defaults.
func New(cfg Config) *Chunker {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if cfg.Overlap <= 0 {
		cfg.Overlap = 64
	}
	if cfg.Overlap >= cfg.MaxTokens {
		cfg.Overlap = cfg.MaxTokens / 4
	}
	return &Chunker{cfg: cfg}
}

// Chunk splits every section of the document source into chunks in
// document order. Tables are never split; prose is split at paragraph and
// then sentence boundaries.
func (c *Chunker) Chunk(source string, sections []parser.Section) []Chunk {
	var chunks []Chunk
	for _, sec := range sections {
		for _, frag := range c.fragments(sec.Content) {
			idx := len(chunks)
			chunks = append(chunks, Chunk{
				ID:          fmt.Sprintf("%s#%d", source, idx),
				Source:      source,
				Index:       idx,
				Clause:      sec.Clause,
				Heading:     sec.Heading,
				Content:     frag,
				Type:        chunkType(sec, frag),
				PageNumber:  sec.PageNumber,
				TokenCount:  estimateTokens(frag),
				ContentHash: contentHash(frag),
			})
		}
	}
	return chunks
}

func (c *Chunker) fragments(text string) []string {
	var out []string
	for _, piece := range PreserveTableChunks(text) {
		if isTable(piece) {
			out = append(out, piece)
			continue
		}
		for _, f := range c.splitContent(piece) {
			if f != "" {
				out = append(out, f)
			}
		}
	}
	return out
}

// splitContent breaks a long text into fragments that each fit within
// MaxTokens, splitting at paragraph and then sentence boundaries.
// Consecutive fragments share an overlap of c.cfg.Overlap tokens worth
// of trailing text from the previous fragment.
func (c *Chunker) splitContent(text string) []string {
	if estimateTokens(text) <= c.cfg.MaxTokens {
		return []string{strings.TrimSpace(text)}
	}

	var fragments []string
	var current strings.Builder
	currentTokens := 0
	overlap := ""

	flush := func() {
		fragments = append(fragments, strings.TrimSpace(current.String()))
		overlap = extractOverlap(current.String(), c.cfg.Overlap)
		current.Reset()
		currentTokens = 0
	}

	for _, para := range splitParagraphs(text) {
		paraTokens := estimateTokens(para)

		if paraTokens > c.cfg.MaxTokens {
			if current.Len() > 0 {
				flush()
			}
			sentences := c.splitBySentences(para, overlap)
			fragments = append(fragments, sentences...)
			if len(sentences) > 0 {
				overlap = extractOverlap(sentences[len(sentences)-1], c.cfg.Overlap)
			}
			continue
		}

		if currentTokens+paraTokens > c.cfg.MaxTokens && current.Len() > 0 {
			flush()
			if overlap != "" {
				current.WriteString(overlap)
				currentTokens = estimateTokens(overlap)
			}
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
		currentTokens += paraTokens
	}
	if current.Len() > 0 {
		fragments = append(fragments, strings.TrimSpace(current.String()))
	}
	return fragments
}

// splitBySentences breaks a paragraph into fragments at sentence
// boundaries, prepending overlap from the previous fragment.
func (c *Chunker) splitBySentences(text, initialOverlap string) []string {
	var fragments []string
	var current strings.Builder
	currentTokens := 0

	if initialOverlap != "" {
		current.WriteString(initialOverlap)
		currentTokens = estimateTokens(initialOverlap)
	}

	for _, sent := range splitSentences(text) {
		sentTokens := estimateTokens(sent)
		if currentTokens+sentTokens > c.cfg.MaxTokens && current.Len() > 0 {
			fragments = append(fragments, strings.TrimSpace(current.String()))
			overlap := extractOverlap(current.String(), c.cfg.Overlap)
			current.Reset()
			currentTokens = 0
			if overlap != "" {
				current.WriteString(overlap)
				currentTokens = estimateTokens(overlap)
			}
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sent)
		currentTokens += sentTokens
	}
	if current.Len() > 0 {
		fragments = append(fragments, strings.TrimSpace(current.String()))
	}
	return fragments
}

// estimateTokens approximates the token count of text: tokens ~ words * 1.3.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * 1.3))
}

func chunkType(sec parser.Section, frag string) string {
	if isTable(frag) {
		return "table"
	}
	switch sec.Type {
	case "definition", "annex":
		return sec.Type
	}
	if IsRequirement(frag) {
		return "requirement"
	}
	return "section"
}

// splitParagraphs splits text on blank lines. Parsers emit one line per
// paragraph, so single newlines count as breaks when there are no blank
// lines at all.
func splitParagraphs(text string) []string {
	sep := "\n\n"
	if !strings.Contains(text, sep) {
		sep = "\n"
	}
	raw := strings.Split(text, sep)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences splits on '.', '?' or '!' followed by whitespace or the
// end of text. Clause numbers such as "5.5.1" are not split because the
// dot is followed by a digit.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if runes[i] != '.' && runes[i] != '?' && runes[i] != '!' {
			continue
		}
		if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
			if s := strings.TrimSpace(cur.String()); s != "" {
				sentences = append(sentences, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// extractOverlap returns the trailing words of text whose estimated token
// count is at most maxTokens.
func extractOverlap(text string, maxTokens int) string {
	words := strings.Fields(text)
	maxWords := int(float64(maxTokens) / 1.3)
	if maxWords > len(words) {
		maxWords = len(words)
	}
	if maxWords <= 0 {
		return ""
	}
	return strings.Join(words[len(words)-maxWords:], " ")
}

func contentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
