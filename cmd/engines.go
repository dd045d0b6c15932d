package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

type backendInfo struct {
	name        string
	description string
	// envKeys lists the API keys the backend needs, any one of which is
	// enough
	envKeys []string
}

var knownBackends = []backendInfo{
	{"tone", "Offline sine-tone synthesis for development and tests", nil},
	{"exec", "External synthesizer subprocess (e.g. piper), raw s16le on stdout", nil},
	{"openai", "OpenAI speech API (gpt-4o-mini-tts)", []string{"OPENAI_API_KEY"}},
	{"google", "Google Gemini speech API", []string{"GOOGLE_AI_API_KEY", "GEMINI_API_KEY"}},
	{"elevenlabs", "ElevenLabs speech API", []string{"ELEVENLABS_API_KEY"}},
}

var (
	nameStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Width(12)
	activeStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	readyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	missingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	describeStyle = lipgloss.NewStyle().Faint(true)
)

func backendReady(b backendInfo) (bool, string) {
	if len(b.envKeys) == 0 {
		return true, ""
	}
	for _, key := range b.envKeys {
		if os.Getenv(key) != "" {
			return true, ""
		}
	}
	if len(b.envKeys) == 1 {
		return false, b.envKeys[0] + " not set"
	}
	return false, b.envKeys[0] + " or " + b.envKeys[1] + " not set"
}

// enginesCmd lists the synthesis backends and whether each is usable in the
// current environment.
var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List available TTS backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}

		for _, b := range knownBackends {
			name := nameStyle.Render(b.name)
			if b.name == cfg.TTS.Backend {
				name = activeStyle.Render("*") + nameStyle.Render(b.name)
			} else {
				name = " " + name
			}

			status := readyStyle.Render("ready")
			if ok, why := backendReady(b); !ok {
				status = missingStyle.Render(why)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s  %s\n", name, status, describeStyle.Render(b.description))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enginesCmd)
}
