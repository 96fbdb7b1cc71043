package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestExtractText_Plain(t *testing.T) {
	path := writeTestFile(t, "notes.txt", "Haircuts cost $20.\n")

	got, err := ExtractText(path)
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if got != "Haircuts cost $20.\n" {
		t.Errorf("got %q", got)
	}
}

func TestExtractText_Missing(t *testing.T) {
	if _, err := ExtractText(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestExtractText_HTML(t *testing.T) {
	path := writeTestFile(t, "services.html", `<html>
<head><style>body { color: red; }</style><script>alert("hi")</script></head>
<body><h1>Services</h1><p>Hair coloring from $50.</p></body>
</html>`)

	got, err := ExtractText(path)
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if !strings.Contains(got, "Services") || !strings.Contains(got, "Hair coloring from $50.") {
		t.Errorf("got %q, want body text", got)
	}
	if strings.Contains(got, "alert") || strings.Contains(got, "color: red") {
		t.Errorf("got %q, script/style content should be stripped", got)
	}
}

func TestParagraphs(t *testing.T) {
	text := "First paragraph\nwith a wrapped line.\n\n\nSecond   paragraph.\n\n   \n\nThird."

	got := Paragraphs(text)
	want := []string{
		"First paragraph with a wrapped line.",
		"Second paragraph.",
		"Third.",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d paragraphs %v, want %d", len(got), got, len(want))
	}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("paragraphs[%d] = %q, want %q", i, got[i], w)
		}
	}
}

func TestParagraphs_CRLF(t *testing.T) {
	got := Paragraphs("one\r\n\r\ntwo")
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Errorf("got %v, want [one two]", got)
	}
}

func TestParagraphs_Empty(t *testing.T) {
	if got := Paragraphs("   \n\n  \n"); len(got) != 0 {
		t.Errorf("got %v, want none", got)
	}
}
