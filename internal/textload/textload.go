// Package textload reads synthesis input from files or stdin,
// normalizing encodings and reducing markdown to speakable text.
package textload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Load reads the source text for a job. Path "-" reads stdin. A
// markdown file is reduced to its speakable plain text.
func Load(path string) (string, error) {
	if path == "-" {
		return FromReader(os.Stdin)
	}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("expand input path: %w", err)
	}
	f, err := os.Open(expanded)
	if err != nil {
		return "", fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	text, err := FromReader(f)
	if err != nil {
		return "", err
	}
	if IsMarkdown(expanded) {
		text = ExtractSpeakable(text)
	}
	return text, nil
}

// FromReader decodes r into a UTF-8 string. UTF-16 input is detected
// by its byte-order mark; everything else is passed through as UTF-8.
func FromReader(r io.Reader) (string, error) {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	raw, err := io.ReadAll(transform.NewReader(r, decoder))
	if err != nil {
		return "", fmt.Errorf("decode input text: %w", err)
	}
	return string(raw), nil
}

// IsMarkdown reports whether path names a markdown document.
func IsMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".mdown":
		return true
	}
	return false
}
