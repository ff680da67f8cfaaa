package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/mitchellh/go-homedir"

	"github.com/vista-tts/vista/internal/markdown"
)

var errNoInput = errors.New("nothing to speak: pass text, --file, --clipboard or pipe it on stdin")

var markdownExtensions = []string{".md", ".markdown", ".mdown", ".mkd"}

// input describes where speak reads its text from.
type input struct {
	args       []string
	file       string
	clipboard  bool
	markdown   bool
	codeMarker bool

	stdin     io.Reader
	stdinPipe bool
	readClip  func() (string, error)
}

// read returns the text to speak. Markdown files, or any input when
// markdown is set, are reduced to plain text first.
func (in input) read() (string, error) {
	var (
		text         string
		fromMarkdown = in.markdown
	)

	switch {
	case in.clipboard:
		readClip := in.readClip
		if readClip == nil {
			readClip = clipboard.ReadAll
		}
		s, err := readClip()
		if err != nil {
			return "", fmt.Errorf("unable to read clipboard: %w", err)
		}
		text = s

	case in.file == "-":
		b, err := io.ReadAll(in.stdin)
		if err != nil {
			return "", fmt.Errorf("unable to read from stdin: %w", err)
		}
		text = string(b)

	case in.file != "":
		path, err := homedir.Expand(in.file)
		if err != nil {
			return "", err
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("unable to open file: %w", err)
		}
		text = string(b)
		fromMarkdown = fromMarkdown || isMarkdownFile(path)

	case len(in.args) > 0:
		text = strings.Join(in.args, " ")

	case in.stdinPipe:
		b, err := io.ReadAll(in.stdin)
		if err != nil {
			return "", fmt.Errorf("unable to read from stdin: %w", err)
		}
		text = string(b)

	default:
		return "", errNoInput
	}

	if fromMarkdown {
		text = in.extractor().PlainText(text)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errNoInput
	}
	return text, nil
}

func (in input) extractor() *markdown.Extractor {
	return markdown.NewExtractor(markdown.WithCodeMarker(in.codeMarker))
}

func isMarkdownFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, v := range markdownExtensions {
		if ext == v {
			return true
		}
	}
	return false
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}
