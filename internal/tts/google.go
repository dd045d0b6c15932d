package tts

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"google.golang.org/genai"
)

const (
	defaultGoogleModel = "gemini-2.5-flash-preview-tts"
	defaultGoogleVoice = "Kore"
	// gemini tts returns s16le mono at 24kHz unless the mime type says otherwise
	googlePCMRate = 24000
)

// GoogleEngine is the Gemini speech backend.
type GoogleEngine struct {
	mu     sync.Mutex
	client *genai.Client
	model  string
	voice  string
}

// NewGoogleEngine builds the backend; empty model/voice select defaults.
func NewGoogleEngine(model, voice string) *GoogleEngine {
	if model == "" {
		model = defaultGoogleModel
	}
	if voice == "" {
		voice = defaultGoogleVoice
	}
	return &GoogleEngine{model: model, voice: voice}
}

func (e *GoogleEngine) Name() string { return "google" }

func (e *GoogleEngine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		return nil
	}

	apiKey := os.Getenv("GOOGLE_AI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("GOOGLE_AI_API_KEY or GEMINI_API_KEY is not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return fmt.Errorf("failed to create genai client: %w", err)
	}
	e.client = client
	return nil
}

// pcmRate parses the sample rate out of an audio mime type such as
// "audio/L16;codec=pcm;rate=24000".
func pcmRate(mimeType string) int {
	for _, part := range strings.Split(mimeType, ";") {
		if rate, ok := strings.CutPrefix(strings.TrimSpace(part), "rate="); ok {
			if n, err := strconv.Atoi(rate); err == nil && n > 0 {
				return n
			}
		}
	}
	return googlePCMRate
}

func (e *GoogleEngine) Generate(ctx context.Context, req Request) (*Audio, error) {
	e.mu.Lock()
	client := e.client
	e.mu.Unlock()
	if client == nil {
		return nil, ErrNotInitialized
	}

	voice := req.Voice
	if voice == "" {
		voice = e.voice
	}

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, e.model, []*genai.Content{
		{Parts: []*genai.Part{{Text: req.Text}}, Role: "user"},
	}, cfg)
	if err != nil {
		return nil, fmt.Errorf("google tts request failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("google tts returned no candidates")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			log.Debug("Google TTS generated", "bytes", len(part.InlineData.Data), "model", e.model, "voice", voice)
			return &Audio{
				Data:       part.InlineData.Data,
				SampleRate: pcmRate(part.InlineData.MIMEType),
			}, nil
		}
	}
	return nil, fmt.Errorf("google tts returned no audio data")
}

// GenerateStreaming synthesizes the whole text, then feeds it out in blocks.
// The gemini tts endpoint has no incremental audio mode.
func (e *GoogleEngine) GenerateStreaming(ctx context.Context, req StreamRequest) (*Stream, error) {
	audio, err := e.Generate(ctx, Request{Text: req.Text, Voice: req.Speaker, Speed: req.Speed})
	if err != nil {
		return nil, err
	}
	return streamFromPCM(ctx, audio.Data, audio.SampleRate), nil
}

// streamFromPCM chops s16le mono audio into float32 blocks on a channel.
func streamFromPCM(ctx context.Context, data []byte, sampleRate int) *Stream {
	blocks := make(chan []float32, 32)
	go func() {
		defer close(blocks)
		const blockSamples = 1024
		for off := 0; off+1 < len(data); off += blockSamples * 2 {
			end := off + blockSamples*2
			if end > len(data) {
				end = len(data) &^ 1
			}
			block := decodeS16LE(data[off:end])
			select {
			case blocks <- block:
			case <-ctx.Done():
				return
			}
		}
	}()
	return &Stream{Blocks: blocks, SampleRate: sampleRate}
}
