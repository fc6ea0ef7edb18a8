// Package ingest turns uploaded files into plain text ready for embedding.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
)

// ErrUnsupportedType is returned for file extensions ingestion cannot handle.
var ErrUnsupportedType = errors.New("unsupported file type, use .txt, .pdf or .html")

// ExtractText extracts plain text from a .txt, .pdf or .html/.htm file.
// Extraction failures for supported types degrade to a raw byte read with
// invalid UTF-8 stripped, so a half-broken file still yields something.
func ExtractText(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		return strings.TrimSpace(strings.ToValidUTF8(string(raw), "")), nil
	case ".pdf":
		text, err := extractPDF(path)
		if err != nil {
			return rawFallback(path)
		}
		return text, nil
	case ".html", ".htm":
		text, err := extractHTML(path)
		if err != nil {
			return rawFallback(path)
		}
		return text, nil
	default:
		return "", ErrUnsupportedType
	}
}

func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func extractHTML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	pageURL := &url.URL{Scheme: "file", Path: path}
	article, err := readability.FromReader(f, pageURL)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(article.TextContent), nil
}

func rawFallback(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return strings.TrimSpace(strings.ToValidUTF8(string(raw), "")), nil
}
