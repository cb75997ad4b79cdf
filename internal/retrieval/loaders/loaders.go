// Package loaders extracts plain text from knowledge-base corpus files and
// session attachments, dispatching by file extension.
package loaders

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Load reads path and returns its extracted plain text, dispatching by
// extension. Unknown extensions fall back to a raw-bytes read, matching the
// teacher's text-vs-binary sniffing default of "read it unless it's clearly
// binary".
func Load(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return loadPDF(path)
	case ".txt", ".md", ".markdown", "":
		return loadText(path)
	default:
		return loadText(path)
	}
}

func loadText(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("loaders: read %s: %w", path, err)
	}
	return string(b), nil
}

func loadPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("loaders: open pdf %s: %w", path, err)
	}
	defer f.Close()

	var sb strings.Builder
	total := r.NumPage()
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// LoadBytes extracts plain text from in-memory data, dispatching by ext the
// same way Load dispatches by file extension. Used by lane workers that pull
// attachment bytes from an objectstore rather than local disk.
func LoadBytes(data []byte, ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return loadPDFBytes(data)
	default:
		return string(data), nil
	}
}

func loadPDFBytes(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("loaders: open pdf bytes: %w", err)
	}
	var sb strings.Builder
	total := r.NumPage()
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// IsBinary reports whether buf looks like non-text content (a NUL byte
// anywhere in buf).
func IsBinary(buf []byte) bool {
	for _, b := range buf {
		if b == 0 {
			return true
		}
	}
	return false
}
