package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestSupportedExtension(t *testing.T) {
	for _, name := range []string{"notes.pdf", "Essay.DOCX", "readme.txt", "guide.md"} {
		if !SupportedExtension(name) {
			t.Fatalf("%s should be supported", name)
		}
	}
	for _, name := range []string{"image.png", "archive.zip", "noext"} {
		if SupportedExtension(name) {
			t.Fatalf("%s should not be supported", name)
		}
	}
}

func TestTextPlain(t *testing.T) {
	got, err := Text([]byte("  hello world \n"), "notes.txt")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if got != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestTextUnsupported(t *testing.T) {
	_, err := Text([]byte("data"), "image.png")
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("err = %v, want ErrUnsupportedType", err)
	}
}

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestTextDocx(t *testing.T) {
	body := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second</w:t></w:r><w:r><w:t> paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`

	got, err := Text(buildDocx(t, body), "essay.docx")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if !strings.Contains(got, "First paragraph.") {
		t.Fatalf("missing first paragraph in %q", got)
	}
	if !strings.Contains(got, "Second paragraph.") {
		t.Fatalf("runs within a paragraph should join: %q", got)
	}
	lines := strings.Split(got, "\n")
	if len(lines) < 2 {
		t.Fatalf("expected one line per paragraph, got %q", got)
	}
}

func TestTextDocxMissingBody(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if _, err := zw.Create("other.xml"); err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if _, err := Text(buf.Bytes(), "essay.docx"); err == nil {
		t.Fatal("expected error for docx without document.xml")
	}
}

func TestCleanCollapsesWhitespace(t *testing.T) {
	got := Clean("hello   world\n\nnext\tline")
	if got != "hello world next line" {
		t.Fatalf("got %q", got)
	}
}

func TestCleanSquashesLongRuns(t *testing.T) {
	got := Clean("edge " + strings.Repeat("-", 40) + " case")
	if got != "edge - case" {
		t.Fatalf("got %q", got)
	}
	// Runs at or below the threshold stay intact.
	got = Clean("dots .......... end")
	if got != "dots .......... end" {
		t.Fatalf("got %q", got)
	}
}

func TestWordCount(t *testing.T) {
	if n := WordCount("one two  three"); n != 3 {
		t.Fatalf("WordCount = %d, want 3", n)
	}
}
