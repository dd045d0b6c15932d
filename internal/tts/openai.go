package tts

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	defaultOpenAIModel = "gpt-4o-mini-tts"
	defaultOpenAIVoice = "alloy"
	// the speech endpoint's pcm response format is s16le mono at 24kHz
	openaiPCMRate = 24000
)

// OpenAIEngine is the OpenAI speech backend.
type OpenAIEngine struct {
	client openai.Client
	model  string
	voice  string
	ready  atomic.Bool
}

// NewOpenAIEngine builds the backend; empty model/voice select defaults.
func NewOpenAIEngine(model, voice string) *OpenAIEngine {
	if model == "" {
		model = defaultOpenAIModel
	}
	if voice == "" {
		voice = defaultOpenAIVoice
	}
	return &OpenAIEngine{
		client: openai.NewClient(option.WithAPIKey(os.Getenv("OPENAI_API_KEY"))),
		model:  model,
		voice:  voice,
	}
}

func (e *OpenAIEngine) Name() string { return "openai" }

func (e *OpenAIEngine) Initialize(ctx context.Context) error {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return fmt.Errorf("OPENAI_API_KEY is not set")
	}
	e.ready.Store(true)
	return nil
}

// apiSpeed clamps to the range the speech endpoint accepts.
func apiSpeed(speed float64) float64 {
	if speed <= 0 {
		return 1.0
	}
	if speed < 0.25 {
		return 0.25
	}
	if speed > 4.0 {
		return 4.0
	}
	return speed
}

func (e *OpenAIEngine) params(text, voice string, speed float64, format openai.AudioSpeechNewParamsResponseFormat) openai.AudioSpeechNewParams {
	if voice == "" {
		voice = e.voice
	}
	return openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(e.model),
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: format,
		Speed:          openai.Float(apiSpeed(speed)),
	}
}

func (e *OpenAIEngine) Generate(ctx context.Context, req Request) (*Audio, error) {
	if !e.ready.Load() {
		return nil, ErrNotInitialized
	}

	res, err := e.client.Audio.Speech.New(ctx, e.params(req.Text, req.Voice, req.Speed, openai.AudioSpeechNewParamsResponseFormatWAV))
	if err != nil {
		return nil, fmt.Errorf("openai speech request failed: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read openai speech response: %w", err)
	}
	log.Debug("OpenAI TTS generated", "bytes", len(data), "model", e.model, "voice", e.voice)
	return &Audio{Data: data, SpeedBaked: true}, nil
}

func (e *OpenAIEngine) GenerateStreaming(ctx context.Context, req StreamRequest) (*Stream, error) {
	if !e.ready.Load() {
		return nil, ErrNotInitialized
	}

	res, err := e.client.Audio.Speech.New(ctx, e.params(req.Text, req.Speaker, req.Speed, openai.AudioSpeechNewParamsResponseFormatPCM))
	if err != nil {
		return nil, fmt.Errorf("openai speech request failed: %w", err)
	}

	blocks := make(chan []float32, 32)
	go func() {
		defer close(blocks)
		defer res.Body.Close()

		// carry holds a trailing odd byte across reads so 16-bit frames
		// are never split
		var carry []byte
		buf := make([]byte, 8192)
		for {
			n, err := res.Body.Read(buf)
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
					log.Warn("OpenAI speech stream ended with error", "error", err)
				}
				return
			}
		}
	}()
	return &Stream{Blocks: blocks, SampleRate: openaiPCMRate, SpeedBaked: true}, nil
}
