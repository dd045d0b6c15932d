// Package tts defines the synthesis engine boundary: one polymorphic
// generation capability with selectable backends, consumed by the playback
// layer as a black box that produces either a finished audio buffer or a
// live stream of sample blocks.
package tts

import (
	"context"
	"errors"
)

var (
	// ErrEngineBusy reports that the synthesis resource is already held by
	// an in-flight streaming generation.
	ErrEngineBusy = errors.New("tts engine is busy")
	// ErrNotInitialized reports use of an engine before Initialize.
	ErrNotInitialized = errors.New("tts engine not initialized")
)

// Audio is a finished synthesis result. Data is either a complete WAV file
// or raw s16le mono PCM, in which case SampleRate describes it. SpeedBaked
// reports whether the requested speed was applied during generation, so
// playback does not time-stretch a second time.
type Audio struct {
	Data       []byte
	SampleRate int
	SpeedBaked bool
}

// Request are the parameters for whole-buffer synthesis.
type Request struct {
	Text  string
	Voice string
	Speed float64
}

// StreamRequest are the parameters for progressive synthesis.
type StreamRequest struct {
	Text        string
	Speaker     string
	Temperature float64
	Speed       float64
}

// Stream is a live sequence of mono sample blocks. The producer closes
// Blocks when generation ends and stops promptly once ctx is cancelled.
type Stream struct {
	Blocks     <-chan []float32
	SampleRate int
	// SpeedBaked reports whether the requested speed was applied during
	// generation.
	SpeedBaked bool
}

// Engine is one synthesis backend.
type Engine interface {
	Name() string
	// Initialize prepares the backend. It is idempotent and may take a
	// long time on first use (model fetch).
	Initialize(ctx context.Context) error
	// Generate synthesizes req.Text into one finished buffer.
	Generate(ctx context.Context, req Request) (*Audio, error)
	// GenerateStreaming synthesizes req.Text progressively. The returned
	// stream's producer goroutine is owned by the engine and honors ctx.
	GenerateStreaming(ctx context.Context, req StreamRequest) (*Stream, error)
}

// IsWAV reports whether the audio data carries a WAV container rather than
// raw PCM.
func (a *Audio) IsWAV() bool {
	return len(a.Data) > 4 && string(a.Data[:4]) == "RIFF"
}

// decodeS16LE converts raw little-endian 16-bit samples to float32.
// A trailing odd byte is ignored.
func decodeS16LE(raw []byte) []float32 {
	usable := len(raw) &^ 1
	block := make([]float32, usable/2)
	for i := range block {
		v := int16(raw[i*2]) | int16(raw[i*2+1])<<8
		block[i] = float32(v) / 32768.0
	}
	return block
}
