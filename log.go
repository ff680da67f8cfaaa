package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"

	"github.com/vista-tts/vista/internal/config"
)

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, config.AppName).CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "vista.log"), nil
}

// setupLog logs warnings to stderr, or everything to a log file when debug
// is set. The returned func closes the log file.
func setupLog(debug bool) (func() error, error) {
	if !debug {
		log.SetOutput(os.Stderr)
		log.SetLevel(log.WarnLevel)
		return func() error { return nil }, nil
	}

	log.SetOutput(io.Discard)

	logFile, err := getLogFilePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		return nil, err
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return nil, err
	}
	log.SetOutput(f)
	log.SetLevel(log.DebugLevel)
	log.SetReportTimestamp(true)
	return f.Close, nil
}
