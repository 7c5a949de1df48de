package service

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dslipak/pdf"
)

// Passage sizes of the knowledge base index, in runes
const (
	ChunkSize    = 500
	ChunkOverlap = 100
)

// ExtractText returns the plain text of an uploaded document. Types without
// a text layer (images, archives, spreadsheets) return "" and no error.
func ExtractText(name, mimeType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}

	switch DetectFileType(name) {
	case FileTypePDF:
		return extractPDF(data)
	case FileTypeWord:
		if strings.EqualFold(filepath.Ext(name), ".doc") {
			return "", nil
		}
		return extractOpenXML(data, func(part string) bool { return part == "word/document.xml" })
	case FileTypePowerPoint:
		if strings.EqualFold(filepath.Ext(name), ".ppt") {
			return "", nil
		}
		return extractOpenXML(data, func(part string) bool {
			return strings.HasPrefix(part, "ppt/slides/") && strings.HasSuffix(part, ".xml")
		})
	case FileTypeText, FileTypeCSV, FileTypeEmail, FileTypeRTF:
		if !utf8.Valid(data) {
			data = bytes.ToValidUTF8(data, []byte(" "))
		}
		return collapseWhitespace(string(data)), nil
	}

	if strings.HasPrefix(mimeType, "text/") {
		return collapseWhitespace(string(bytes.ToValidUTF8(data, []byte(" ")))), nil
	}
	return "", nil
}

func extractPDF(data []byte) (text string, err error) {
	// the parser panics on some malformed streams
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf parse: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plain text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	return collapseWhitespace(string(b)), nil
}

// extractOpenXML collects the <t> runs of the matching parts of an Office
// Open XML package
func extractOpenXML(data []byte, wantPart func(string) bool) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open xml package: %w", err)
	}

	var out strings.Builder
	for _, f := range zr.File {
		if !wantPart(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		dec := xml.NewDecoder(rc)
		for {
			tok, err := dec.Token()
			if err != nil {
				break
			}
			se, ok := tok.(xml.StartElement)
			if !ok || se.Name.Local != "t" {
				continue
			}
			var v string
			if dec.DecodeElement(&v, &se) == nil && v != "" {
				out.WriteString(v)
				out.WriteString(" ")
			}
		}
		rc.Close()
		out.WriteString("\n")
	}
	return collapseWhitespace(out.String()), nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Chunk splits text into passages of at most size runes that overlap by
// overlap runes. Passages end on a space when one is near the limit.
func Chunk(text string, size, overlap int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if overlap >= size {
		overlap = 0
	}

	var chunks []string
	for start := 0; start < len(runes); {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, strings.TrimSpace(string(runes[start:])))
			break
		}
		// back off to a word boundary in the last fifth of the passage
		for cut := end; cut > start+size*4/5; cut-- {
			if unicode.IsSpace(runes[cut]) {
				end = cut
				break
			}
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[start:end])))

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}
