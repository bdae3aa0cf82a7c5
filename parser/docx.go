package parser

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DOCXParser reads Word exports of a specification.
type DOCXParser struct{}

func (p *DOCXParser) SupportedFormats() []string { return []string{"docx"} }

func (p *DOCXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening DOCX: %w", err)
	}
	defer r.Close()

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, fmt.Errorf("word/document.xml not found in DOCX")
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("opening document.xml: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	sections, err := parseDocxXML(data)
	if err != nil {
		return nil, fmt.Errorf("parsing DOCX XML: %w", err)
	}
	return &ParseResult{Sections: sections, Method: "native"}, nil
}

// DOCX XML structures (simplified)
type docxBody struct {
	XMLName xml.Name    `xml:"body"`
	Paras   []docxPara  `xml:"p"`
	Tables  []docxTable `xml:"tbl"`
}

type docxDocument struct {
	XMLName xml.Name `xml:"document"`
	Body    docxBody `xml:"body"`
}

type docxPara struct {
	XMLName xml.Name    `xml:"p"`
	PPr     *docxParaPr `xml:"pPr"`
	Runs    []docxRun   `xml:"r"`
}

type docxParaPr struct {
	PStyle *docxPStyle `xml:"pStyle"`
}

type docxPStyle struct {
	Val string `xml:"val,attr"`
}

type docxRun struct {
	Text []docxText `xml:"t"`
}

type docxText struct {
	Content string `xml:",chardata"`
}

type docxTable struct {
	Rows []docxRow `xml:"tr"`
}

type docxRow struct {
	Cells []docxCell `xml:"tc"`
}

type docxCell struct {
	Paras []docxPara `xml:"p"`
}

// parseDocxXML splits the body at heading-styled paragraphs. 3GPP
// templates style clause headings "Heading1".."Heading9" and annex
// headings "Heading8"; tables are appended as pipe-separated rows.
func parseDocxXML(data []byte) ([]Section, error) {
	var doc docxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	var sections []Section
	var content strings.Builder
	var heading string
	level := 0

	flush := func() {
		if content.Len() == 0 && heading == "" {
			return
		}
		body := strings.TrimSpace(content.String())
		sections = append(sections, Section{
			Heading: heading,
			Clause:  clauseOf(heading),
			Content: body,
			Level:   level,
			Type:    classifySectionType(heading, body),
		})
		content.Reset()
	}

	for _, para := range doc.Body.Paras {
		text := strings.TrimSpace(extractParaText(para))
		if text == "" {
			continue
		}
		style := ""
		if para.PPr != nil && para.PPr.PStyle != nil {
			style = para.PPr.PStyle.Val
		}
		if lvl, ok := headingStyleLevel(style); ok {
			flush()
			heading = text
			level = lvl
			continue
		}
		if content.Len() > 0 {
			content.WriteString("\n")
		}
		content.WriteString(text)
	}
	flush()

	for _, tbl := range doc.Body.Tables {
		var b strings.Builder
		for _, row := range tbl.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				parts := make([]string, 0, len(cell.Paras))
				for _, p := range cell.Paras {
					if t := strings.TrimSpace(extractParaText(p)); t != "" {
						parts = append(parts, t)
					}
				}
				cells = append(cells, strings.Join(parts, " "))
			}
			b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		}
		sections = append(sections, Section{Content: b.String(), Type: "table"})
	}
	return sections, nil
}

func extractParaText(para docxPara) string {
	var b strings.Builder
	for _, run := range para.Runs {
		for _, t := range run.Text {
			b.WriteString(t.Content)
		}
	}
	return b.String()
}

// headingStyleLevel reports whether style is a heading style and its level.
func headingStyleLevel(style string) (int, bool) {
	lower := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	switch {
	case strings.HasPrefix(lower, "title"):
		return 1, true
	case strings.HasPrefix(lower, "heading"):
		if n, err := strconv.Atoi(strings.TrimPrefix(lower, "heading")); err == nil && n > 0 {
			return n, true
		}
		return 1, true
	}
	return 0, false
}
