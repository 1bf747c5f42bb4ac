package textload

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFromReaderPlainUTF8(t *testing.T) {
	got, err := FromReader(strings.NewReader("plain text"))
	if err != nil {
		t.Fatalf("FromReader: %v", err)
	}
	if got != "plain text" {
		t.Errorf("got %q", got)
	}
}

func TestFromReaderStripsUTF8BOM(t *testing.T) {
	got, err := FromReader(strings.NewReader("\xef\xbb\xbfhello"))
	if err != nil {
		t.Fatalf("FromReader: %v", err)
	}
	if got != "hello" {
		t.Errorf("got %q, want BOM stripped", got)
	}
}

func TestFromReaderDecodesUTF16(t *testing.T) {
	// "hi" in UTF-16LE with BOM.
	le := string([]byte{0xff, 0xfe, 'h', 0, 'i', 0})
	got, err := FromReader(strings.NewReader(le))
	if err != nil {
		t.Fatalf("FromReader LE: %v", err)
	}
	if got != "hi" {
		t.Errorf("LE got %q", got)
	}

	// Same text in UTF-16BE with BOM.
	be := string([]byte{0xfe, 0xff, 0, 'h', 0, 'i'})
	got, err = FromReader(strings.NewReader(be))
	if err != nil {
		t.Fatalf("FromReader BE: %v", err)
	}
	if got != "hi" {
		t.Errorf("BE got %q", got)
	}
}

func TestLoadPlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.txt")
	if err := os.WriteFile(path, []byte("some # text [with](markdown) syntax"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// A .txt file is never treated as markdown.
	if got != "some # text [with](markdown) syntax" {
		t.Errorf("got %q", got)
	}
}

func TestLoadMarkdownFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.md")
	src := "# Title\n\nFirst paragraph.\n\n```go\nfmt.Println(\"skip me\")\n```\n\n- item one\n- item two\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if strings.Contains(got, "skip me") {
		t.Errorf("code block leaked into speakable text: %q", got)
	}
	for _, want := range []string{"Title.", "First paragraph.", "item one.", "item two."} {
		if !strings.Contains(got, want) {
			t.Errorf("speakable text %q missing %q", got, want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatal("Load succeeded on a missing file")
	}
}

func TestExtractSpeakable(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
		not  []string
	}{
		{
			name: "heading gets terminal punctuation",
			in:   "## Setup\n\nInstall it.",
			want: []string{"Setup.", "Install it."},
		},
		{
			name: "heading ending in punctuation is untouched",
			in:   "## Ready?\n\nYes.",
			want: []string{"Ready?"},
			not:  []string{"Ready?."},
		},
		{
			name: "inline code kept, link text kept",
			in:   "Run `orate` from the [docs](https://example.com).",
			want: []string{"Run orate from the docs."},
			not:  []string{"https://example.com"},
		},
		{
			name: "html block dropped",
			in:   "<div>raw</div>\n\nspoken",
			want: []string{"spoken"},
			not:  []string{"raw", "div"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractSpeakable(tt.in)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("ExtractSpeakable(%q) = %q, missing %q", tt.in, got, w)
				}
			}
			for _, n := range tt.not {
				if strings.Contains(got, n) {
					t.Errorf("ExtractSpeakable(%q) = %q, should not contain %q", tt.in, got, n)
				}
			}
		})
	}
}

func TestIsMarkdown(t *testing.T) {
	for path, want := range map[string]bool{
		"a.md": true, "b.MARKDOWN": true, "c.txt": false, "d": false,
	} {
		if got := IsMarkdown(path); got != want {
			t.Errorf("IsMarkdown(%q) = %v", path, want)
		}
	}
}
