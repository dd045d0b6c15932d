/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"errors"
	"os"
	"time"

	"github.com/caarlos0/ctrlc"
	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/blacktop/mcp-narrator/internal/config"
	"github.com/blacktop/mcp-narrator/internal/narrator"
	"github.com/blacktop/mcp-narrator/internal/playback"
	"github.com/blacktop/mcp-narrator/internal/tts"
)

var (
	verbose bool
	cfgPath string
)

// rootCmd serves the narrator over MCP stdio.
var rootCmd = &cobra.Command{
	Use:   "mcp-narrator",
	Short: "Streaming TTS narration MCP Server",
	Long: `mcp-narrator is a streaming TTS narration MCP Server.

It exposes session-based chunked narration tools: chunks are synthesized
concurrently, played back gapless in index order, and playback reports
progress through lifecycle events.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}

		n, err := buildNarrator(cfg, playback.OpenSpeakerSink)
		if err != nil {
			return err
		}
		defer n.Close()

		go logEvents(n.Events())
		go func() {
			if err := n.Warmup(cmd.Context()); err != nil {
				log.Warn("Backend warmup failed", "backend", cfg.TTS.Backend, "error", err)
			}
		}()

		server := newServer(n)
		err = ctrlc.Default.Run(cmd.Context(), func() error {
			log.Info("Starting MCP server", "transport", "stdio", "backend", cfg.TTS.Backend)
			return server.Run(cmd.Context(), &mcp.StdioTransport{})
		})
		if err != nil {
			var interrupt ctrlc.ErrorCtrlC
			if errors.As(err, &interrupt) {
				log.Warn("Interrupted, shutting down")
				return nil
			}
			return err
		}
		return nil
	},
}

// setup loads config and applies the log level.
func setup() (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return cfg, err
	}
	if verbose {
		log.SetLevel(log.DebugLevel)
	} else if lvl, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(lvl)
	}
	return cfg, nil
}

func buildNarrator(cfg config.Config, open playback.SinkOpener) (*narrator.Narrator, error) {
	engine, err := tts.NewEngine(cfg.TTS.Backend, tts.Options{
		Model:      cfg.TTS.Model,
		Voice:      cfg.TTS.Voice,
		Command:    cfg.TTS.Command,
		SampleRate: cfg.TTS.SampleRate,
	})
	if err != nil {
		return nil, err
	}
	return narrator.New(tts.NewManager(engine), narrator.Config{
		Voice:      cfg.TTS.Voice,
		Speed:      cfg.Playback.Speed,
		SampleRate: cfg.Playback.SampleRate,
		Poll:       time.Duration(cfg.Playback.PollMS) * time.Millisecond,
		Preroll:    time.Duration(cfg.Playback.PrerollMS) * time.Millisecond,
		Open:       open,
	}), nil
}

// logEvents mirrors playback lifecycle events into the structured log so
// stdio clients without event support still get visibility on stderr.
func logEvents(bus *playback.Bus) {
	ch, unsub := bus.Subscribe()
	defer unsub()
	for e := range ch {
		switch e.Kind {
		case playback.EventGenerationError, playback.EventError:
			log.Warn("Playback event", "event", e.Kind, "session", e.Session, "chunk", e.ChunkIndex, "message", e.Message)
		default:
			log.Debug("Playback event", "event", e.Kind, "session", e.Session, "chunk", e.ChunkIndex)
		}
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "Enable verbose debug logging")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default: built-in defaults)")
}
