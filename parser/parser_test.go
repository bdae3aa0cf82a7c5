package parser

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBuiltInParsers(t *testing.T) {
	reg := NewRegistry()
	for format, want := range map[string]string{
		"pdf":  "*parser.PDFParser",
		"docx": "*parser.DOCXParser",
		"txt":  "*parser.TextParser",
		"MD":   "*parser.TextParser",
	} {
		p, err := reg.Get(format)
		require.NoError(t, err, format)
		assert.Equal(t, want, fmt.Sprintf("%T", p), format)
	}
	assert.Equal(t, []string{"docx", "md", "pdf", "txt"}, reg.Formats())

	for _, format := range []string{"xlsx", "pptx", "doc", ""} {
		_, err := reg.Get(format)
		assert.Error(t, err, format)
	}
}

type stubParser struct{}

func (stubParser) Parse(context.Context, string) (*ParseResult, error) {
	return &ParseResult{Method: "stub"}, nil
}
func (stubParser) SupportedFormats() []string { return []string{"rtf"} }

func TestRegistryCustomParser(t *testing.T) {
	reg := NewRegistry()
	reg.Register("rtf", stubParser{})
	res, err := reg.ParseFile(context.Background(), "/tmp/spec.RTF")
	require.NoError(t, err)
	assert.Equal(t, "stub", res.Method)
	assert.Equal(t, "spec.RTF", res.Metadata["filename"])
	assert.Equal(t, "rtf", res.Metadata["format"])
}

const page = `3GPP TS 24.501 V17.7.1 (2022-09)
Release 17
5.5.1.2 Registration procedure for initial registration
5.5.1.2.1 General
This procedure can be used by a UE for initial registration.
5.5.1.2.2 Initial registration initiation
The UE in state 5GMM-DEREGISTERED shall initiate the registration procedure by
sending a REGISTRATION REQUEST message to the AMF,
starting timer T3510 and entering state 5GMM-REGISTERED-INITIATED.
123`

func TestSplitIntoSections(t *testing.T) {
	sections := splitIntoSections(page, 42)
	require.Len(t, sections, 2)

	assert.Equal(t, "5.5.1.2.1 General", sections[0].Heading)
	assert.Equal(t, "5.5.1.2.1", sections[0].Clause)
	assert.Equal(t, 5, sections[0].Level)
	assert.Equal(t, "section", sections[0].Type)

	assert.Equal(t, "5.5.1.2.2", sections[1].Clause)
	assert.Equal(t, "requirement", sections[1].Type)
	assert.Equal(t, 42, sections[1].PageNumber)
	assert.NotContains(t, sections[1].Content, "123")
	assert.Contains(t, sections[1].Content, "entering state 5GMM-REGISTERED-INITIATED.")
}

func TestIsLikelyHeading(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"5.5.1.2.4 Initial registration accepted by the network", true},
		{"4 General", true},
		{"D.2 UE policy delivery", true},
		{"Annex A (informative): Cause values", true},
		{"a) the UE shall enter 5GMM-REGISTERED.", false},
		{"2 The UE shall stop timer T3510.", false},
		{"5GMM-REGISTERED", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isLikelyHeading(tt.line), tt.line)
	}
}

func TestMergeContinuations(t *testing.T) {
	got := mergeContinuations([]Section{
		{Heading: "5.5.1 Registration", Content: "first part", Type: "section"},
		{Content: "the UE shall continue", Type: "requirement"},
		{Heading: "5.5.2 De-registration", Content: "next"},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "first part\nthe UE shall continue", got[0].Content)
	assert.Equal(t, "requirement", got[0].Type)
}

func TestTextParser(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spec.md")
	require.NoError(t, os.WriteFile(path, []byte("## 5.3.2 Permanent identifiers\r\nThe SUPI shall be allocated.\r\n"), 0o644))

	res, err := NewRegistry().ParseFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, res.Sections, 1)
	assert.Equal(t, "5.3.2", res.Sections[0].Clause)
	assert.Equal(t, "The SUPI shall be allocated.", res.Sections[0].Content)
}

func TestDOCXParser(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spec.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:pPr><w:pStyle w:val="Heading4"/></w:pPr><w:r><w:t>5.6.1.2 Service request initiation</w:t></w:r></w:p>
<w:p><w:r><w:t>The UE shall enter state </w:t></w:r><w:r><w:t>5GMM-SERVICE-REQUEST-INITIATED.</w:t></w:r></w:p>
<w:tbl><w:tr><w:tc><w:p><w:r><w:t>T3517</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>15s</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	res, err := NewRegistry().ParseFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, res.Sections, 2)
	assert.Equal(t, "5.6.1.2", res.Sections[0].Clause)
	assert.Equal(t, 4, res.Sections[0].Level)
	assert.Equal(t, "The UE shall enter state 5GMM-SERVICE-REQUEST-INITIATED.", res.Sections[0].Content)
	assert.Equal(t, "table", res.Sections[1].Type)
	assert.Equal(t, "| T3517 | 15s |\n", res.Sections[1].Content)
}

func TestHeadingStyleLevel(t *testing.T) {
	for style, want := range map[string]int{"Heading1": 1, "heading 3": 3, "Title": 1, "Heading": 1} {
		got, ok := headingStyleLevel(style)
		assert.True(t, ok, style)
		assert.Equal(t, want, got, style)
	}
	_, ok := headingStyleLevel("B1")
	assert.False(t, ok)
}
