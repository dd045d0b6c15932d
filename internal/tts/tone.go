package tts

import (
	"context"
	"math"
	"sync/atomic"
	"time"
)

const toneSampleRate = 24000

// ToneEngine synthesizes a sine sweep instead of speech. It needs no model
// or network and is the default backend for development and tests: timing
// behaves like real synthesis (duration scales with text length) without
// any of the cost.
type ToneEngine struct {
	initialized atomic.Bool
	// Latency delays each generation to simulate model inference.
	Latency time.Duration
	// SamplesPerRune controls how much audio a text produces.
	SamplesPerRune int
}

func NewToneEngine() *ToneEngine {
	return &ToneEngine{SamplesPerRune: toneSampleRate / 50} // ~20ms per rune
}

func (e *ToneEngine) Name() string { return "tone" }

func (e *ToneEngine) Initialize(ctx context.Context) error {
	e.initialized.Store(true)
	return nil
}

func (e *ToneEngine) synthesize(text string, speed float64) []float32 {
	n := len([]rune(text)) * e.SamplesPerRune
	if n == 0 {
		n = e.SamplesPerRune
	}
	if speed > 0 {
		n = int(float64(n) / speed)
	}
	samples := make([]float32, n)
	// frequency drifts with text content so distinct chunks are audibly
	// (and testably) distinct
	freq := 220.0 + float64(len(text)%13)*20.0
	for i := range samples {
		samples[i] = float32(0.2 * math.Sin(2*math.Pi*freq*float64(i)/toneSampleRate))
	}
	return samples
}

func (e *ToneEngine) Generate(ctx context.Context, req Request) (*Audio, error) {
	if !e.initialized.Load() {
		return nil, ErrNotInitialized
	}
	if e.Latency > 0 {
		select {
		case <-time.After(e.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	samples := e.synthesize(req.Text, req.Speed)
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(s * 32767)
		data[i*2] = byte(v)
		data[i*2+1] = byte(v >> 8)
	}
	return &Audio{Data: data, SampleRate: toneSampleRate, SpeedBaked: true}, nil
}

func (e *ToneEngine) GenerateStreaming(ctx context.Context, req StreamRequest) (*Stream, error) {
	if !e.initialized.Load() {
		return nil, ErrNotInitialized
	}

	samples := e.synthesize(req.Text, req.Speed)
	blocks := make(chan []float32, 32)
	go func() {
		defer close(blocks)
		const blockSize = 1024
		for off := 0; off < len(samples); off += blockSize {
			end := off + blockSize
			if end > len(samples) {
				end = len(samples)
			}
			select {
			case blocks <- samples[off:end]:
			case <-ctx.Done():
				return
			}
			if e.Latency > 0 {
				select {
				case <-time.After(e.Latency):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return &Stream{Blocks: blocks, SampleRate: toneSampleRate, SpeedBaked: true}, nil
}
