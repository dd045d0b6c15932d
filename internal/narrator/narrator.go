// Package narrator ties the pieces together: it owns the session cell, the
// synthesis manager, and the playback driver, and exposes the operations the
// command surface calls.
package narrator

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gopxl/beep/v2"

	"github.com/blacktop/mcp-narrator/internal/playback"
	"github.com/blacktop/mcp-narrator/internal/session"
	"github.com/blacktop/mcp-narrator/internal/tts"
)

// Playback speed bounds. Requests outside this range are clamped, never
// rejected.
const (
	MinSpeed = 0.5
	MaxSpeed = 2.0
)

// Config tunes a Narrator. Zero values select production defaults.
type Config struct {
	Voice      string
	Speed      float64
	SampleRate int
	Poll       time.Duration
	Preroll    time.Duration
	Open       playback.SinkOpener
}

// Status is a point-in-time snapshot of the narrator.
type Status struct {
	SessionID    string  `json:"session_id,omitempty"`
	Playing      bool    `json:"playing"`
	Paused       bool    `json:"paused"`
	QueuedChunks int     `json:"queued_chunks"`
	CurrentChunk int     `json:"current_chunk"`
	Speed        float64 `json:"speed"`
	Backend      string  `json:"backend"`
}

// Narrator narrates text: chunked synthesis with ordered gapless playback,
// or a single progressive stream. All operations are safe for concurrent
// use.
type Narrator struct {
	manager  *tts.Manager
	sessions *session.State
	bus      *playback.Bus
	driver   *playback.Driver
	voice    string
	preroll  time.Duration
	speed    atomic.Uint64

	mu           sync.Mutex
	streamCancel context.CancelFunc
}

func New(manager *tts.Manager, cfg Config) *Narrator {
	n := &Narrator{
		manager:  manager,
		sessions: session.New(),
		bus:      playback.NewBus(),
		voice:    cfg.Voice,
	}
	n.driver = playback.NewDriver(n.bus, playback.DriverConfig{
		SampleRate: beep.SampleRate(cfg.SampleRate),
		Poll:       cfg.Poll,
		Open:       cfg.Open,
	})
	if cfg.Preroll > 0 {
		n.preroll = cfg.Preroll
	} else {
		n.preroll = playback.DefaultPreroll
	}
	if cfg.Speed > 0 {
		n.SetSpeed(cfg.Speed)
	} else {
		n.SetSpeed(1.0)
	}
	return n
}

// Events returns the playback event bus for subscriptions.
func (n *Narrator) Events() *playback.Bus { return n.bus }

// Close tears down playback. Pending generations for the dead session are
// abandoned at their next liveness check.
func (n *Narrator) Close() {
	n.cancelStream()
	n.sessions.Clear()
	n.driver.Close()
	n.bus.Close()
}

// Warmup initializes the synthesis backend ahead of the first chunk.
func (n *Narrator) Warmup(ctx context.Context) error {
	return n.manager.Warmup(ctx)
}

// StartSession supersedes any current session and returns the new token.
// In-flight work for the old session dies at its next liveness check.
func (n *Narrator) StartSession() string {
	token := n.sessions.Begin()
	n.driver.StartSession(token)
	log.Info("session started", "session", token)
	return token
}

// EnqueueChunk schedules synthesis and ordered playback of one chunk. It
// returns immediately; completion is reported on the event bus. Chunks with
// only whitespace are ignored. A positive speed overrides the global speed
// for this chunk only; zero falls back to the global value.
func (n *Narrator) EnqueueChunk(ctx context.Context, token string, index int, text string, speed float64) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if err := n.sessions.Checkpoint(token); err != nil {
		log.Debug("dropping chunk for superseded session", "chunk", index, "session", token)
		return nil
	}

	// generation outlives the enqueue call; liveness checks, not the
	// caller's context, decide when to abandon it
	go n.generate(context.WithoutCancel(ctx), token, index, text, n.effectiveSpeed(speed))
	return nil
}

// effectiveSpeed resolves a per-call speed request against the global one.
func (n *Narrator) effectiveSpeed(speed float64) float64 {
	if speed <= 0 {
		return n.Speed()
	}
	return clampSpeed(speed)
}

func (n *Narrator) generate(ctx context.Context, token string, index int, text string, speed float64) {
	audio, err := n.manager.Generate(ctx, tts.Request{Text: text, Voice: n.voice, Speed: speed}, func() error {
		// the wait for the synthesis lock can outlive the session
		return n.sessions.Checkpoint(token)
	})
	if err != nil {
		if errors.Is(err, session.ErrSuperseded) || errors.Is(err, context.Canceled) {
			log.Debug("generation abandoned", "chunk", index, "session", token)
			return
		}
		n.bus.Publish(playback.Event{
			Session:    token,
			ChunkIndex: index,
			Kind:       playback.EventGenerationError,
			Message:    err.Error(),
		})
		return
	}

	if err := n.sessions.Checkpoint(token); err != nil {
		log.Debug("discarding finished audio for superseded session", "chunk", index, "session", token)
		return
	}

	p := playback.Payload{Data: audio.Data, SampleRate: audio.SampleRate}
	if !audio.SpeedBaked {
		p.Speed = speed
	}
	n.driver.Enqueue(token, index, p)
}

// StreamText plays one progressive synthesis stream in the given session.
// It fails with tts.ErrEngineBusy while another stream is live. A positive
// speed overrides the global speed for this stream only.
func (n *Narrator) StreamText(ctx context.Context, token, text string, speed float64) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if err := n.sessions.Checkpoint(token); err != nil {
		log.Debug("dropping stream for superseded session", "session", token)
		return nil
	}

	sctx, cancel := context.WithCancel(context.Background())
	stream, err := n.manager.GenerateStreaming(sctx, tts.StreamRequest{
		Text:    text,
		Speaker: n.voice,
		Speed:   n.effectiveSpeed(speed),
	})
	if err != nil {
		cancel()
		if !errors.Is(err, tts.ErrEngineBusy) {
			n.bus.Publish(playback.Event{
				Session: token,
				Kind:    playback.EventGenerationError,
				Message: err.Error(),
			})
		}
		return err
	}

	src := playback.NewStreamSource(stream.Blocks, beep.SampleRate(stream.SampleRate), n.preroll)
	n.mu.Lock()
	if n.streamCancel != nil {
		n.streamCancel()
	}
	n.streamCancel = cancel
	n.mu.Unlock()

	// when the driver discards the source, stop the producer too
	go func() {
		<-src.Done()
		cancel()
	}()

	n.driver.AppendStream(token, src)
	return nil
}

func (n *Narrator) cancelStream() {
	n.mu.Lock()
	if n.streamCancel != nil {
		n.streamCancel()
		n.streamCancel = nil
	}
	n.mu.Unlock()
}

// Stop clears the session and tears down playback immediately.
func (n *Narrator) Stop() {
	n.cancelStream()
	n.sessions.Clear()
	n.driver.Stop()
	log.Info("playback stopped")
}

// Pause suspends playback without losing buffered audio.
func (n *Narrator) Pause() { n.driver.Pause() }

// Resume continues playback from where Pause left it.
func (n *Narrator) Resume() { n.driver.Resume() }

// clampSpeed pins v into [MinSpeed, MaxSpeed].
func clampSpeed(v float64) float64 {
	return math.Min(math.Max(v, MinSpeed), MaxSpeed)
}

// SetSpeed clamps v into [MinSpeed, MaxSpeed] and returns the applied
// value. Speed takes effect at the next generation; audio already
// synthesized keeps the speed it was generated with.
func (n *Narrator) SetSpeed(v float64) float64 {
	v = clampSpeed(v)
	n.speed.Store(math.Float64bits(v))
	return v
}

// Speed returns the current playback speed.
func (n *Narrator) Speed() float64 {
	return math.Float64frombits(n.speed.Load())
}

func (n *Narrator) IsPlaying() bool { return n.driver.Status().Playing() }
func (n *Narrator) IsPaused() bool  { return n.driver.Status().Paused() }

// Status snapshots the narrator's state.
func (n *Narrator) CurrentStatus() Status {
	st := n.driver.Status()
	return Status{
		SessionID:    n.sessions.Current(),
		Playing:      st.Playing(),
		Paused:       st.Paused(),
		QueuedChunks: st.QueuedChunks(),
		CurrentChunk: st.CurrentChunk(),
		Speed:        n.Speed(),
		Backend:      n.manager.Name(),
	}
}

// Say is the one-shot path: it supersedes any current session and narrates
// text as a single chunk, returning once generation has been handed to
// playback.
func (n *Narrator) Say(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	token := n.StartSession()

	audio, err := n.manager.Generate(ctx, tts.Request{Text: text, Voice: n.voice, Speed: n.Speed()}, func() error {
		return n.sessions.Checkpoint(token)
	})
	if err != nil {
		return token, err
	}
	if err := n.sessions.Checkpoint(token); err != nil {
		return token, err
	}

	p := playback.Payload{Data: audio.Data, SampleRate: audio.SampleRate}
	if !audio.SpeedBaked {
		p.Speed = n.Speed()
	}
	n.driver.Enqueue(token, 0, p)
	return token, nil
}
