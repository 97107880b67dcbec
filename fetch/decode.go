package fetch

import (
	"bytes"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/ledongthuc/pdf"
)

var pdfMagic = []byte("%PDF-")

// decode converts a fetched body to text.
func decode(data []byte, contentType, name string) (string, error) {
	if isPDF(data, contentType, name) {
		return extractPDF(data)
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

func isPDF(data []byte, contentType, name string) bool {
	if bytes.HasPrefix(data, pdfMagic) {
		return true
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "application/pdf" {
		return true
	}
	return strings.EqualFold(path.Ext(name), ".pdf")
}

// extractPDF returns the plain text of every page, separated by blank lines.
func extractPDF(data []byte) (text string, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var sb strings.Builder
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("extracting pdf page %d: %w", i, err)
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(strings.TrimSpace(pageText))
	}
	return sb.String(), nil
}
