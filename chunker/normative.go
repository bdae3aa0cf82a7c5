package chunker

import (
	"regexp"
	"strings"
)

// requirementPattern matches the normative keywords of 3GPP TR 21.801
// annex E.
var requirementPattern = regexp.MustCompile(`(?i)\b(SHALL\s+NOT|SHALL|SHOULD\s+NOT|SHOULD|MAY|CAN)\b`)

// Requirement is a normative sentence.
type Requirement struct {
	Text    string // the sentence containing the keyword
	Keyword string // "SHALL", "SHALL NOT", ...
	Level   string // "mandatory", "recommended" or "optional"
	Index   int    // zero-based sentence index within the input text
}

// DetectRequirements returns every sentence of text that contains a
// normative keyword. Sentences may span lines.
func DetectRequirements(text string) []Requirement {
	var reqs []Requirement
	for i, sent := range Sentences(text) {
		m := requirementPattern.FindString(sent)
		if m == "" {
			continue
		}
		kw := strings.ToUpper(strings.Join(strings.Fields(m), " "))
		reqs = append(reqs, Requirement{
			Text:    sent,
			Keyword: kw,
			Level:   requirementLevel(kw),
			Index:   i,
		})
	}
	return reqs
}

// Sentences splits text into sentences with whitespace collapsed, so a
// sentence wrapped over several lines comes back as one string.
func Sentences(text string) []string {
	return splitSentences(strings.Join(strings.Fields(text), " "))
}

// IsRequirement reports whether text contains a mandatory keyword.
func IsRequirement(text string) bool {
	for _, m := range requirementPattern.FindAllString(text, -1) {
		if requirementLevel(strings.ToUpper(m)) == "mandatory" {
			return true
		}
	}
	return false
}

func requirementLevel(keyword string) string {
	switch {
	case strings.HasPrefix(keyword, "SHALL"):
		return "mandatory"
	case strings.HasPrefix(keyword, "SHOULD"):
		return "recommended"
	default:
		return "optional"
	}
}

// TableChunk is a contiguous block of tabular lines.
type TableChunk struct {
	Content    string
	StartLine  int // zero-based, inclusive
	EndLine    int // zero-based, exclusive
	HasHeaders bool
}

// DetectTables finds contiguous blocks of at least two table lines.
func DetectTables(text string) []TableChunk {
	lines := strings.Split(text, "\n")
	var tables []TableChunk

	for i := 0; i < len(lines); {
		if !isTableLine(lines[i]) {
			i++
			continue
		}
		start := i
		hasHeaders := false
		for i < len(lines) && isTableLine(lines[i]) {
			if isHeaderSeparator(lines[i]) {
				hasHeaders = true
			}
			i++
		}
		if i-start >= 2 {
			tables = append(tables, TableChunk{
				Content:    strings.Join(lines[start:i], "\n"),
				StartLine:  start,
				EndLine:    i,
				HasHeaders: hasHeaders,
			})
		}
	}
	return tables
}

// PreserveTableChunks returns text as document-ordered pieces in which
// each table is a single piece.
func PreserveTableChunks(text string) []string {
	tables := DetectTables(text)
	if len(tables) == 0 {
		return []string{text}
	}

	lines := strings.Split(text, "\n")
	var pieces []string
	cursor := 0
	for _, tbl := range tables {
		if cursor < tbl.StartLine {
			if prose := strings.TrimSpace(strings.Join(lines[cursor:tbl.StartLine], "\n")); prose != "" {
				pieces = append(pieces, prose)
			}
		}
		pieces = append(pieces, tbl.Content)
		cursor = tbl.EndLine
	}
	if cursor < len(lines) {
		if prose := strings.TrimSpace(strings.Join(lines[cursor:], "\n")); prose != "" {
			pieces = append(pieces, prose)
		}
	}
	return pieces
}

func isTable(piece string) bool {
	lines := strings.Split(strings.TrimSpace(piece), "\n")
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

func isTableLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return false
	case strings.HasPrefix(trimmed, "|"), strings.Count(trimmed, "|") >= 2:
		return true
	case strings.Count(trimmed, "\t") >= 2:
		return true
	}
	return isHeaderSeparator(trimmed)
}

// isHeaderSeparator detects separators such as "|---|---|" or "------".
func isHeaderSeparator(line string) bool {
	cleaned := strings.NewReplacer("|", "", " ", "", ":", "").Replace(strings.TrimSpace(line))
	if len(cleaned) < 3 {
		return false
	}
	return strings.Trim(cleaned, "-") == ""
}
