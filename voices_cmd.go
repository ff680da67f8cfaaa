package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/vista-tts/vista/internal/elevenlabs"
)

var (
	voicesSearch string
	voicesOutput string
	modelsOutput string

	voicesCmd = &cobra.Command{
		Use:     "voices",
		Short:   "List the voices in your ElevenLabs library",
		Example: paragraph("vista voices\nvista voices --search narrator\nvista voices --output json"),
		Args:    cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			return validateOutput(voicesOutput)
		},
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
			voices, err := client.ListVoices(cmd.Context())
			if err != nil {
				return err
			}
			voices = filterVoices(voices, voicesSearch)
			if voicesOutput != outputTable {
				return encode(cmd.OutOrStdout(), voicesOutput, "voices", voices)
			}
			return renderVoices(cmd.OutOrStdout(), voices, terminalWidth())
		},
	}

	modelsCmd = &cobra.Command{
		Use:   "models",
		Short: "List the synthesis models",
		Args:  cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			return validateOutput(modelsOutput)
		},
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
			models, err := client.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			if modelsOutput != outputTable {
				return encode(cmd.OutOrStdout(), modelsOutput, "models", models)
			}
			return renderModels(cmd.OutOrStdout(), models, terminalWidth())
		},
	}
)

func init() {
	voicesCmd.Flags().StringVarP(&voicesSearch, "search", "s", "", "fuzzy search by name, labels and description")
	voicesCmd.Flags().StringVarP(&voicesOutput, "output", "o", outputTable, "output format: table, json, yaml or toml")
	modelsCmd.Flags().StringVarP(&modelsOutput, "output", "o", outputTable, "output format: table, json, yaml or toml")
}

// voiceSource adapts voices to fuzzy.Source.
type voiceSource []elevenlabs.Voice

func (s voiceSource) Len() int { return len(s) }

func (s voiceSource) String(i int) string {
	v := s[i]
	return strings.Join([]string{
		v.Name, v.Category,
		v.Labels.Accent, v.Labels.Gender, v.Labels.Age, v.Labels.Descriptive, v.Labels.UseCase,
		v.Description,
	}, " ")
}

// filterVoices returns the voices matching query, best match first. An
// empty query returns voices unchanged.
func filterVoices(voices []elevenlabs.Voice, query string) []elevenlabs.Voice {
	query = strings.TrimSpace(query)
	if query == "" {
		return voices
	}
	matches := fuzzy.FindFrom(query, voiceSource(voices))
	out := make([]elevenlabs.Voice, 0, len(matches))
	for _, m := range matches {
		out = append(out, voices[m.Index])
	}
	return out
}

func voiceLabels(l elevenlabs.VoiceLabels) string {
	var parts []string
	for _, s := range []string{l.Gender, l.Age, l.Accent, l.UseCase} {
		if s != "" && s != elevenlabs.NotAvailable {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return elevenlabs.NotAvailable
	}
	return strings.Join(parts, ", ")
}

func renderVoices(w io.Writer, voices []elevenlabs.Voice, width int) error {
	if len(voices) == 0 {
		_, err := fmt.Fprintln(w, faint("No voices found."))
		return err
	}
	t := table{header: []string{"ID", "NAME", "CATEGORY", "LABELS", "DESCRIPTION"}}
	for _, v := range voices {
		t.add(v.VoiceID, v.Name, v.Category, voiceLabels(v.Labels), v.Description)
	}
	return t.render(w, width)
}

func renderModels(w io.Writer, models []elevenlabs.Model, width int) error {
	t := table{header: []string{"ID", "NAME", "MAX CHARS", "DESCRIPTION"}}
	for _, m := range models {
		if !m.CanDoTextToSpeech {
			continue
		}
		limit := "-"
		if m.MaxCharacters > 0 {
			limit = fmt.Sprint(m.MaxCharacters)
		}
		t.add(m.ModelID, m.Name, limit, m.Description)
	}
	return t.render(w, width)
}
