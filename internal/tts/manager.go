package tts

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"
)

// Options selects and tunes a backend.
type Options struct {
	Model string
	Voice string
	// Command is the external synthesizer command line for the exec
	// backend.
	Command string
	// SampleRate overrides the exec backend's output rate.
	SampleRate int
}

// NewEngine builds a backend by name.
func NewEngine(name string, opts Options) (Engine, error) {
	switch name {
	case "tone":
		return NewToneEngine(), nil
	case "exec":
		return NewExecEngine(opts.Command, opts.SampleRate)
	case "openai":
		return NewOpenAIEngine(opts.Model, opts.Voice), nil
	case "google":
		return NewGoogleEngine(opts.Model, opts.Voice), nil
	case "elevenlabs":
		return NewElevenLabsEngine(opts.Model, opts.Voice), nil
	default:
		return nil, fmt.Errorf("unknown tts backend %q", name)
	}
}

// Manager serializes access to the active backend. Only one generation
// runs at a time: queued chunk synthesis waits its turn, streaming
// synthesis fails fast with ErrEngineBusy instead of queueing behind
// another caller.
type Manager struct {
	mu     sync.Mutex
	engine Engine
	sem    *semaphore.Weighted
}

func NewManager(engine Engine) *Manager {
	return &Manager{engine: engine, sem: semaphore.NewWeighted(1)}
}

func (m *Manager) current() Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine
}

// Name returns the active backend's name.
func (m *Manager) Name() string { return m.current().Name() }

// SetBackend swaps the active backend. It fails with ErrEngineBusy while
// a generation is in flight.
func (m *Manager) SetBackend(name string, opts Options) error {
	engine, err := NewEngine(name, opts)
	if err != nil {
		return err
	}
	if !m.sem.TryAcquire(1) {
		return ErrEngineBusy
	}
	defer m.sem.Release(1)

	m.mu.Lock()
	m.engine = engine
	m.mu.Unlock()
	log.Info("TTS backend selected", "backend", name)
	return nil
}

// Warmup initializes the active backend ahead of the first generation.
func (m *Manager) Warmup(ctx context.Context) error {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.sem.Release(1)
	return m.current().Initialize(ctx)
}

// Generate runs whole-buffer synthesis, waiting for the lock if another
// generation holds it. ready, if non-nil, runs after the lock is held and
// before any work; returning an error abandons the generation without
// touching the backend.
func (m *Manager) Generate(ctx context.Context, req Request, ready func() error) (*Audio, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer m.sem.Release(1)

	if ready != nil {
		if err := ready(); err != nil {
			return nil, err
		}
	}

	engine := m.current()
	if err := engine.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize %s backend: %w", engine.Name(), err)
	}
	return engine.Generate(ctx, req)
}

// GenerateStreaming runs progressive synthesis. The lock is held until the
// producer closes the stream, so a second streaming call while one is live
// fails with ErrEngineBusy.
func (m *Manager) GenerateStreaming(ctx context.Context, req StreamRequest) (*Stream, error) {
	if !m.sem.TryAcquire(1) {
		return nil, ErrEngineBusy
	}

	engine := m.current()
	if err := engine.Initialize(ctx); err != nil {
		m.sem.Release(1)
		return nil, fmt.Errorf("failed to initialize %s backend: %w", engine.Name(), err)
	}

	src, err := engine.GenerateStreaming(ctx, req)
	if err != nil {
		m.sem.Release(1)
		return nil, err
	}

	// Relay the producer's blocks so the lock releases exactly when the
	// producer finishes, even if the consumer walks away first.
	blocks := make(chan []float32, 32)
	go func() {
		defer m.sem.Release(1)
		defer close(blocks)
		for b := range src.Blocks {
			select {
			case blocks <- b:
			case <-ctx.Done():
				for range src.Blocks {
				}
				return
			}
		}
	}()
	return &Stream{Blocks: blocks, SampleRate: src.SampleRate, SpeedBaked: src.SpeedBaked}, nil
}
