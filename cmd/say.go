package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/blacktop/mcp-narrator/internal/playback"
	"github.com/blacktop/mcp-narrator/internal/tts"
)

var (
	saySpeed float64
	sayVoice string
	saveWAV  string
)

// sayCmd narrates text once from the command line, or saves it as a WAV
// file instead of playing it.
var sayCmd = &cobra.Command{
	Use:   "say [text]",
	Short: "Narrate text once and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		if sayVoice != "" {
			cfg.TTS.Voice = sayVoice
		}
		text := strings.Join(args, " ")

		if saveWAV != "" {
			engine, err := tts.NewEngine(cfg.TTS.Backend, tts.Options{
				Model:      cfg.TTS.Model,
				Voice:      cfg.TTS.Voice,
				Command:    cfg.TTS.Command,
				SampleRate: cfg.TTS.SampleRate,
			})
			if err != nil {
				return err
			}
			manager := tts.NewManager(engine)
			audio, err := manager.Generate(cmd.Context(), tts.Request{
				Text:  text,
				Voice: cfg.TTS.Voice,
				Speed: saySpeed,
			}, nil)
			if err != nil {
				return err
			}
			data := audio.Data
			if !audio.IsWAV() {
				data = playback.EncodeWAV(audio.Data, audio.SampleRate)
			}
			if err := os.WriteFile(saveWAV, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", saveWAV, err)
			}
			log.Info("Audio saved", "path", saveWAV, "bytes", len(data))
			return nil
		}

		n, err := buildNarrator(cfg, playback.OpenSpeakerSink)
		if err != nil {
			return err
		}
		defer n.Close()
		if saySpeed > 0 {
			n.SetSpeed(saySpeed)
		}

		events, unsub := n.Events().Subscribe()
		defer unsub()

		if _, err := n.Say(cmd.Context(), text); err != nil {
			return err
		}

		// block until this single chunk has been played out
		for {
			select {
			case e, ok := <-events:
				if !ok {
					return nil
				}
				switch e.Kind {
				case playback.EventChunkFinished:
					return nil
				case playback.EventGenerationError, playback.EventError:
					return fmt.Errorf("narration failed: %s", e.Message)
				}
			case <-time.After(10 * time.Minute):
				return fmt.Errorf("narration timed out")
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}
		}
	},
}

func init() {
	sayCmd.Flags().Float64Var(&saySpeed, "speed", 0, "Narration speed (0.5-2.0)")
	sayCmd.Flags().StringVar(&sayVoice, "voice", "", "Voice override for the active backend")
	sayCmd.Flags().StringVar(&saveWAV, "save", "", "Write a WAV file to this path instead of playing")
	rootCmd.AddCommand(sayCmd)
}
