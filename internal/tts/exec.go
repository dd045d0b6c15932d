package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync/atomic"

	"github.com/charmbracelet/log"
	shellwords "github.com/mattn/go-shellwords"
)

// piper's medium-quality voices emit s16le mono at 22050Hz
const defaultExecRate = 22050

// ExecEngine shells out to an external synthesizer such as piper.
// The command receives text on stdin and must write raw s16le mono
// PCM to stdout.
type ExecEngine struct {
	cmd        []string
	sampleRate int
	ready      atomic.Bool
}

// NewExecEngine parses the command line; sampleRate <= 0 selects the
// piper default.
func NewExecEngine(command string, sampleRate int) (*ExecEngine, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command is empty")
	}
	if sampleRate <= 0 {
		sampleRate = defaultExecRate
	}
	return &ExecEngine{cmd: args, sampleRate: sampleRate}, nil
}

func (e *ExecEngine) Name() string { return "exec" }

func (e *ExecEngine) Initialize(ctx context.Context) error {
	if _, err := exec.LookPath(e.cmd[0]); err != nil {
		return fmt.Errorf("tts command not found: %w", err)
	}
	e.ready.Store(true)
	return nil
}

func (e *ExecEngine) run(ctx context.Context, text string) (*exec.Cmd, io.ReadCloser, error) {
	if !e.ready.Load() {
		return nil, nil, ErrNotInitialized
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewBufferString(text)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start %s: %w", e.cmd[0], err)
	}
	return cmd, stdout, nil
}

func (e *ExecEngine) Generate(ctx context.Context, req Request) (*Audio, error) {
	cmd, stdout, err := e.run(ctx, req.Text)
	if err != nil {
		return nil, err
	}

	data, readErr := io.ReadAll(stdout)
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("%s failed: %w", e.cmd[0], err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("failed to read %s output: %w", e.cmd[0], readErr)
	}
	log.Debug("exec TTS generated", "bytes", len(data), "command", e.cmd[0])
	return &Audio{Data: data, SampleRate: e.sampleRate}, nil
}

func (e *ExecEngine) GenerateStreaming(ctx context.Context, req StreamRequest) (*Stream, error) {
	cmd, stdout, err := e.run(ctx, req.Text)
	if err != nil {
		return nil, err
	}

	blocks := make(chan []float32, 32)
	go func() {
		defer close(blocks)
		defer cmd.Wait()

		var carry []byte
		buf := make([]byte, 8192)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				raw := append(carry, buf[:n]...)
				block := decodeS16LE(raw)
				carry = append(carry[:0], raw[len(raw)&^1:]...)
				select {
				case blocks <- block:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					log.Warn("exec TTS stream ended with error", "command", e.cmd[0], "error", err)
				}
				return
			}
		}
	}()
	return &Stream{Blocks: blocks, SampleRate: e.sampleRate}, nil
}
