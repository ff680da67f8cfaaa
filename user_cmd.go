package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vista-tts/vista/internal/elevenlabs"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Show account usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck

		client, err := a.client(cmd.Context())
		if err != nil {
			return err
		}
		u, err := client.GetUser(cmd.Context())
		if err != nil {
			return err
		}
		return renderUser(cmd.OutOrStdout(), u, time.Now())
	},
}

func renderUser(w io.Writer, u elevenlabs.User, now time.Time) error {
	reset := "unknown"
	if !u.NextReset.IsZero() {
		reset = fmt.Sprintf("%s (%s)", u.NextReset.Format("Jan 2, 2006"), humanize.RelTime(u.NextReset, now, "ago", "from now"))
	}
	used := 0.0
	if u.CharacterLimit > 0 {
		used = float64(u.CharacterCount) / float64(u.CharacterLimit) * 100
	}

	_, err := fmt.Fprintf(w, "%s\n\n  Characters  %s of %s used (%.1f%%), %s left\n  Resets      %s\n  Voices      %d of %d slots used\n",
		keyword(u.FirstName),
		humanize.Comma(int64(u.CharacterCount)),
		humanize.Comma(int64(u.CharacterLimit)),
		used,
		humanize.Comma(int64(u.CharactersRemaining())),
		reset,
		u.VoiceSlotsUsed, u.VoiceLimit,
	)
	return err
}
