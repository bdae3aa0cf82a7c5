package parser

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFParser extracts text from PDF specifications.
type PDFParser struct{}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

func (p *PDFParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	var sections []Section
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
			// Pages with broken content streams are skipped.
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		sections = append(sections, splitIntoSections(text, i)...)
	}

	return &ParseResult{
		Sections: mergeContinuations(sections),
		Method:   "native",
		Metadata: map[string]string{"pages": fmt.Sprint(totalPages)},
	}, nil
}

// runningHeader matches the page furniture repeated on every page of a
// 3GPP or ETSI specification.
var runningHeader = regexp.MustCompile(`^(3GPP TS \d+\.\d+ [vV]?\d+\.\d+\.\d+|ETSI TS \d+ \d+ [vV]\d+\.\d+\.\d+|Release \d+\s*\d*$|\d+\s*$)`)

// clauseHeading matches numbered clause headings such as
// "5.5.1.2.4 Initial registration accepted by the network" or
// "Annex D (normative): UE policy delivery service".
var clauseHeading = regexp.MustCompile(`^((?:\d+\.)*\d+|[A-Z]\.\d+(?:\.\d+)*)\s+([A-Z0-9].{1,118})$`)

var annexHeading = regexp.MustCompile(`^Annex [A-Z]+\b`)

// splitIntoSections breaks page text into logical sections at clause
// headings. Running headers are dropped.
func splitIntoSections(text string, pageNum int) []Section {
	var sections []Section
	var content strings.Builder
	var heading, clause string
	level := 0

	flush := func() {
		if content.Len() == 0 {
			return
		}
		body := strings.TrimSpace(content.String())
		sections = append(sections, Section{
			Heading:    heading,
			Clause:     clause,
			Content:    body,
			Level:      level,
			PageNumber: pageNum,
			Type:       classifySectionType(heading, body),
		})
		content.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || runningHeader.MatchString(trimmed) {
			continue
		}
		if isLikelyHeading(trimmed) {
			flush()
			heading = trimmed
			clause = clauseOf(trimmed)
			level = detectHeadingLevel(trimmed)
			continue
		}
		if content.Len() > 0 {
			content.WriteString("\n")
		}
		content.WriteString(trimmed)
	}
	flush()
	return sections
}

// mergeContinuations joins a section without a heading onto the previous
// one; it is the rest of a clause that continued across a page break.
func mergeContinuations(sections []Section) []Section {
	var out []Section
	for _, s := range sections {
		if s.Heading == "" && len(out) > 0 {
			prev := &out[len(out)-1]
			prev.Content += "\n" + s.Content
			if prev.Type == "section" {
				prev.Type = s.Type
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

func isLikelyHeading(line string) bool {
	if len(line) >= 120 {
		return false
	}
	if annexHeading.MatchString(line) {
		return true
	}
	m := clauseHeading.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	// Headings do not end a sentence, list items and table rows do.
	title := m[2]
	return !strings.HasSuffix(title, ".") && !strings.HasSuffix(title, ";") && !strings.Contains(title, "\t")
}

// clauseOf returns the clause number a heading starts with.
func clauseOf(heading string) string {
	if m := annexHeading.FindString(heading); m != "" {
		return strings.TrimPrefix(m, "Annex ")
	}
	if m := clauseHeading.FindStringSubmatch(heading); m != nil {
		return m[1]
	}
	return ""
}

func detectHeadingLevel(heading string) int {
	if annexHeading.MatchString(heading) {
		return 1
	}
	if c := clauseOf(heading); c != "" {
		return strings.Count(c, ".") + 1
	}
	return 1
}

func classifySectionType(heading, content string) string {
	h := strings.ToLower(heading)
	c := strings.ToLower(content)
	switch {
	case strings.Contains(h, "definition") || strings.Contains(h, "abbreviation"):
		return "definition"
	case strings.HasPrefix(h, "annex"):
		return "annex"
	case strings.Contains(h, "table") || strings.Count(content, "\t") > 3 || strings.Count(content, "|") > 3:
		return "table"
	case strings.Contains(c, " shall ") || strings.Contains(c, " shall\n"):
		return "requirement"
	}
	return "section"
}
