package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vista-tts/vista/internal/history"
)

var (
	historyLimit int

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show recently spoken text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			if !a.cfg.History.Enabled {
				return errors.New("history is disabled in the configuration")
			}
			store, err := history.Open(cmd.Context(), a.cfg.History.Path)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			entries, err := store.Recent(cmd.Context(), historyLimit)
			if err != nil {
				return err
			}
			return renderHistory(cmd.OutOrStdout(), entries, time.Now(), terminalWidth())
		},
	}
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of entries to show")
}

func renderHistory(w io.Writer, entries []history.Entry, now time.Time, width int) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, faint("No history yet."))
		return err
	}
	t := table{header: []string{"WHEN", "STATE", "VOICE", "SIZE", "TEXT"}}
	for _, e := range entries {
		text := e.Preview
		if e.Error != "" {
			text = e.Error
		}
		t.add(
			humanize.RelTime(e.StartedAt, now, "ago", "from now"),
			e.State,
			e.Voice,
			humanize.IBytes(uint64(max(e.Bytes, 0))),
			text,
		)
	}
	return t.render(w, width)
}
