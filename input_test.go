package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInputRead(t *testing.T) {
	dir := t.TempDir()
	mdPath := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(mdPath, []byte("# Title\n\nSome *text*.\n\n```go\nfmt.Println()\n```\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	txtPath := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txtPath, []byte("  # not a heading\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		in   input
		want string
	}{
		{"args joined", input{args: []string{"hello", "there"}}, "hello there"},
		{"markdown file by extension", input{file: mdPath}, "Title. Some text."},
		{"plain file kept", input{file: txtPath}, "# not a heading"},
		{"markdown flag on args", input{args: []string{"**bold** move"}, markdown: true}, "bold move."},
		{"stdin dash", input{file: "-", stdin: strings.NewReader("from stdin\n")}, "from stdin"},
		{"piped stdin", input{stdinPipe: true, stdin: strings.NewReader("piped")}, "piped"},
		{"args win over pipe", input{args: []string{"arg"}, stdinPipe: true, stdin: strings.NewReader("piped")}, "arg"},
		{"clipboard", input{clipboard: true, readClip: func() (string, error) { return " copied ", nil }}, "copied"},
		{"code marker", input{args: []string{"Intro.\n\n```\nx\n```"}, markdown: true, codeMarker: true}, "Intro. Code block omitted."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.read()
			if err != nil {
				t.Fatalf("read() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("read() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInputReadErrors(t *testing.T) {
	tests := []struct {
		name string
		in   input
		want error
	}{
		{"nothing", input{}, errNoInput},
		{"blank args", input{args: []string{"  "}}, errNoInput},
		{"only code", input{args: []string{"```\ncode\n```"}, markdown: true}, errNoInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.in.read(); !errors.Is(err, tt.want) {
				t.Errorf("read() error = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := input{file: filepath.Join(t.TempDir(), "nope.txt")}.read()
		if err == nil || !strings.Contains(err.Error(), "unable to open file") {
			t.Errorf("read() error = %v, want open failure", err)
		}
	})

	t.Run("clipboard failure", func(t *testing.T) {
		_, err := input{clipboard: true, readClip: func() (string, error) { return "", errors.New("no display") }}.read()
		if err == nil || !strings.Contains(err.Error(), "clipboard") {
			t.Errorf("read() error = %v, want clipboard failure", err)
		}
	})
}

func TestIsMarkdownFile(t *testing.T) {
	tests := map[string]bool{
		"README.md":       true,
		"doc.MARKDOWN":    true,
		"notes.txt":       false,
		"no-extension":    false,
		"archive.md.gz":   false,
		"dir/sub/page.md": true,
	}
	for path, want := range tests {
		if got := isMarkdownFile(path); got != want {
			t.Errorf("isMarkdownFile(%q) = %v, want %v", path, got, want)
		}
	}
}
