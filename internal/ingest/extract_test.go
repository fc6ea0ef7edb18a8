package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExtractTextTxt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("  hello ingestion world \n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ExtractText(path)
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if got != "hello ingestion world" {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestExtractTextInvalidUTF8(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bin.txt")
	if err := os.WriteFile(path, []byte{'o', 'k', 0xff, 0xfe, '!'}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ExtractText(path)
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if got != "ok!" {
		t.Fatalf("invalid bytes should be dropped, got %q", got)
	}
}

func TestExtractTextUnsupported(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sheet.xlsx")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := ExtractText(path)
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestChunkWords(t *testing.T) {
	words := make([]string, 1250)
	for i := range words {
		words[i] = "w"
	}
	chunks := ChunkWords(strings.Join(words, " "), 500)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if n := len(strings.Fields(chunks[2])); n != 250 {
		t.Fatalf("expected trailing chunk of 250 words, got %d", n)
	}
}

func TestChunkWordsEmpty(t *testing.T) {
	if chunks := ChunkWords("   ", 500); chunks != nil {
		t.Fatalf("expected nil for blank text, got %v", chunks)
	}
}
