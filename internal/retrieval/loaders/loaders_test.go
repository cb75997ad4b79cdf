package loaders

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_PlainTextFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(p, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	text, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("got %q", text)
	}
}

func TestLoad_MarkdownFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "doc.md")
	if err := os.WriteFile(p, []byte("# Title\n\nbody"), 0o644); err != nil {
		t.Fatal(err)
	}
	text, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "# Title\n\nbody" {
		t.Fatalf("got %q", text)
	}
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/path/file.txt")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestIsBinary_DetectsNulByte(t *testing.T) {
	if !IsBinary([]byte{0x00, 0x01, 0x02}) {
		t.Fatal("expected buffer with NUL byte to be detected as binary")
	}
	if IsBinary([]byte("plain ascii text")) {
		t.Fatal("expected plain text to not be detected as binary")
	}
}
