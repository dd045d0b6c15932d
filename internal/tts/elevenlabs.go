package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

const (
	defaultElevenLabsModel = "eleven_multilingual_v2"
	defaultElevenLabsVoice = "21m00Tcm4TlvDq8ikWAM"
	elevenLabsEndpoint     = "https://api.elevenlabs.io/v1/text-to-speech"
	// output_format=pcm_24000 yields s16le mono at 24kHz
	elevenLabsPCMRate = 24000
)

// SynthesisOptions are the voice_settings knobs the ElevenLabs API accepts.
type SynthesisOptions struct {
	Stability       float64 `json:"stability,omitempty"`
	SimilarityBoost float64 `json:"similarity_boost,omitempty"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
	Speed           float64 `json:"speed,omitempty"`
}

// ElevenLabsParams is the text-to-speech request body.
type ElevenLabsParams struct {
	Text          string            `json:"text"`
	ModelID       string            `json:"model_id,omitempty"`
	LanguageCode  string            `json:"language_code,omitempty"`
	PreviousText  string            `json:"previous_text,omitempty"`
	NextText      string            `json:"next_text,omitempty"`
	VoiceSettings *SynthesisOptions `json:"voice_settings,omitempty"`
}

// ElevenLabsEngine is the ElevenLabs speech backend.
type ElevenLabsEngine struct {
	client *http.Client
	model  string
	voice  string
	ready  atomic.Bool
}

// NewElevenLabsEngine builds the backend; empty model/voice select defaults.
func NewElevenLabsEngine(model, voice string) *ElevenLabsEngine {
	if model == "" {
		model = defaultElevenLabsModel
	}
	if voice == "" {
		voice = defaultElevenLabsVoice
	}
	return &ElevenLabsEngine{
		client: &http.Client{Timeout: 60 * time.Second},
		model:  model,
		voice:  voice,
	}
}

func (e *ElevenLabsEngine) Name() string { return "elevenlabs" }

func (e *ElevenLabsEngine) Initialize(ctx context.Context) error {
	if os.Getenv("ELEVENLABS_API_KEY") == "" {
		return fmt.Errorf("ELEVENLABS_API_KEY is not set")
	}
	e.ready.Store(true)
	return nil
}

// elevenLabsSpeed maps a requested speed onto voice_settings.speed, which
// only accepts [0.7, 1.2]. value is zero when no setting should be sent.
// baked reports whether sending value honors the request; a speed outside
// the accepted range is left for playback to time-stretch instead of being
// silently flattened to the nearest bound.
func elevenLabsSpeed(speed float64) (value float64, baked bool) {
	if speed <= 0 || speed == 1.0 {
		return 0, true
	}
	if speed < 0.7 || speed > 1.2 {
		return 0, false
	}
	return speed, true
}

func (e *ElevenLabsEngine) synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, bool, error) {
	if !e.ready.Load() {
		return nil, false, ErrNotInitialized
	}
	if voice == "" {
		voice = e.voice
	}

	params := ElevenLabsParams{
		Text:    text,
		ModelID: e.model,
	}
	s, baked := elevenLabsSpeed(speed)
	if s > 0 {
		params.VoiceSettings = &SynthesisOptions{Speed: s}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode elevenlabs request: %w", err)
	}

	url := fmt.Sprintf("%s/%s?output_format=pcm_24000", elevenLabsEndpoint, voice)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to build elevenlabs request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", os.Getenv("ELEVENLABS_API_KEY"))

	res, err := e.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("elevenlabs request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
		return nil, false, fmt.Errorf("elevenlabs returned %s: %s", res.Status, msg)
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read elevenlabs response: %w", err)
	}
	log.Debug("ElevenLabs TTS generated", "bytes", len(data), "model", e.model, "voice", voice)
	return data, baked, nil
}

func (e *ElevenLabsEngine) Generate(ctx context.Context, req Request) (*Audio, error) {
	data, baked, err := e.synthesize(ctx, req.Text, req.Voice, req.Speed)
	if err != nil {
		return nil, err
	}
	return &Audio{Data: data, SampleRate: elevenLabsPCMRate, SpeedBaked: baked}, nil
}

func (e *ElevenLabsEngine) GenerateStreaming(ctx context.Context, req StreamRequest) (*Stream, error) {
	data, baked, err := e.synthesize(ctx, req.Text, req.Speaker, req.Speed)
	if err != nil {
		return nil, err
	}
	s := streamFromPCM(ctx, data, elevenLabsPCMRate)
	s.SpeedBaked = baked
	return s, nil
}
