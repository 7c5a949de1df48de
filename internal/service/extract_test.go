package service

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openXMLPackage(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractText(t *testing.T) {
	docx := openXMLPackage(t, map[string]string{
		"word/document.xml": `<w:document xmlns:w="w"><w:body><w:p><w:r><w:t>Loan terms</w:t></w:r>` +
			`<w:r><w:t>apply.</w:t></w:r></w:p></w:body></w:document>`,
		"word/styles.xml": `<w:styles xmlns:w="w"><w:t>ignored</w:t></w:styles>`,
	})
	pptx := openXMLPackage(t, map[string]string{
		"ppt/slides/slide1.xml": `<p:sld xmlns:a="a" xmlns:p="p"><a:t>Quarterly</a:t><a:t>review</a:t></p:sld>`,
	})

	tests := []struct {
		name     string
		filename string
		mimeType string
		data     []byte
		want     string
	}{
		{name: "plain text", filename: "notes.txt", data: []byte("  line one\n\tline   two "), want: "line one line two"},
		{name: "csv", filename: "rates.csv", data: []byte("term,rate\n12,4.5\n"), want: "term,rate 12,4.5"},
		{name: "docx", filename: "terms.docx", data: docx, want: "Loan terms apply."},
		{name: "pptx", filename: "deck.pptx", data: pptx, want: "Quarterly review"},
		{name: "image has no text", filename: "scan.png", data: []byte{0x89, 'P', 'N', 'G'}, want: ""},
		{name: "legacy word has no text", filename: "old.doc", data: []byte{0xd0, 0xcf}, want: ""},
		{name: "text mime on unknown extension", filename: "readme", mimeType: "text/markdown", data: []byte("# Title"), want: "# Title"},
		{name: "empty", filename: "empty.txt", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractText(tt.filename, tt.mimeType, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractText_BrokenDocuments(t *testing.T) {
	_, err := ExtractText("report.pdf", "application/pdf", []byte("not a pdf at all"))
	assert.Error(t, err)

	_, err = ExtractText("memo.docx", "", []byte("not a zip"))
	assert.Error(t, err)
}

func TestChunk(t *testing.T) {
	assert.Nil(t, Chunk("   ", 10, 2))
	assert.Equal(t, []string{"short text"}, Chunk("short text", 100, 20))

	text := strings.Repeat("word ", 300)
	chunks := Chunk(text, ChunkSize, ChunkOverlap)
	require.Greater(t, len(chunks), 2)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), ChunkSize)
		assert.False(t, strings.HasPrefix(c, " "))
	}
	// consecutive passages share their boundary text
	assert.True(t, strings.HasSuffix(chunks[0], chunks[1][:99]))

	// no spaces to break on
	runes := Chunk(strings.Repeat("é", 25), 10, 0)
	assert.Equal(t, []string{strings.Repeat("é", 10), strings.Repeat("é", 10), strings.Repeat("é", 5)}, runes)
}
