package narrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blacktop/mcp-narrator/internal/playback"
	"github.com/blacktop/mcp-narrator/internal/tts"
)

// memSink stands in for the speaker so tests control sample consumption.
type memSink struct {
	mu       sync.Mutex
	queue    []beep.Streamer
	appended int
	paused   bool
	closed   bool
}

func (f *memSink) Append(s beep.Streamer) {
	f.mu.Lock()
	f.queue = append(f.queue, s)
	f.appended++
	f.mu.Unlock()
}

func (f *memSink) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

func (f *memSink) Empty() bool { return f.Len() == 0 }

func (f *memSink) Pause() {
	f.mu.Lock()
	f.paused = true
	f.mu.Unlock()
}

func (f *memSink) Resume() {
	f.mu.Lock()
	f.paused = false
	f.mu.Unlock()
}

func (f *memSink) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *memSink) Close() {
	f.mu.Lock()
	f.closed = true
	f.queue = nil
	f.mu.Unlock()
}

func (f *memSink) consume(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paused || f.closed {
		return
	}
	buf := make([][2]float64, 64)
	total := 0
	for total < n && len(f.queue) > 0 {
		want := n - total
		if want > len(buf) {
			want = len(buf)
		}
		m, ok := f.queue[0].Stream(buf[:want])
		total += m
		if !ok {
			f.queue = f.queue[1:]
		}
	}
}

func (f *memSink) totalAppended() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appended
}

type memSinks struct {
	mu    sync.Mutex
	sinks []*memSink
}

func (ms *memSinks) open(beep.SampleRate) (playback.Sink, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	s := &memSink{}
	ms.sinks = append(ms.sinks, s)
	return s, nil
}

func (ms *memSinks) last() *memSink {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if len(ms.sinks) == 0 {
		return nil
	}
	return ms.sinks[len(ms.sinks)-1]
}

func newTestNarrator(t *testing.T, engine tts.Engine) (*Narrator, *memSinks) {
	t.Helper()
	sinks := &memSinks{}
	n := New(tts.NewManager(engine), Config{
		SampleRate: 24000,
		Poll:       2 * time.Millisecond,
		Preroll:    5 * time.Millisecond,
		Open:       sinks.open,
	})
	t.Cleanup(n.Close)
	return n, sinks
}

// recorded collects bus events for assertions.
type recorded struct {
	mu     sync.Mutex
	events []playback.Event
}

func record(t *testing.T, n *Narrator) *recorded {
	t.Helper()
	r := &recorded{}
	ch, unsub := n.Events().Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range ch {
			r.mu.Lock()
			r.events = append(r.events, e)
			r.mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		unsub()
		<-done
	})
	return r
}

func (r *recorded) count(kind playback.EventKind, index int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := 0
	for _, e := range r.events {
		if e.Kind == kind && e.ChunkIndex == index {
			c++
		}
	}
	return c
}

func waitCount(t *testing.T, r *recorded, kind playback.EventKind, index, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return r.count(kind, index) >= want
	}, 2*time.Second, 5*time.Millisecond, "waiting for %s on chunk %d", kind, index)
}

func TestSpeedClamp(t *testing.T) {
	n, _ := newTestNarrator(t, tts.NewToneEngine())

	assert.Equal(t, 1.0, n.Speed())
	assert.Equal(t, 2.0, n.SetSpeed(5.0))
	assert.Equal(t, 0.5, n.SetSpeed(0.1))
	// even zero and negative requests clamp to the nearest bound
	assert.Equal(t, 0.5, n.SetSpeed(0))
	assert.Equal(t, 0.5, n.SetSpeed(-1.0))
	assert.Equal(t, 1.5, n.SetSpeed(1.5))
	assert.Equal(t, 1.5, n.Speed())
}

func TestConfigSpeedDefaultsWhenUnset(t *testing.T) {
	n, _ := newTestNarrator(t, tts.NewToneEngine())
	assert.Equal(t, 1.0, n.Speed())
}

func TestChunksPlayInIndexOrder(t *testing.T) {
	n, sinks := newTestNarrator(t, tts.NewToneEngine())
	r := record(t, n)

	token := n.StartSession()
	ctx := context.Background()
	// submit out of order; playback must still be 0 then 1
	require.NoError(t, n.EnqueueChunk(ctx, token, 1, "second chunk", 0))
	require.NoError(t, n.EnqueueChunk(ctx, token, 0, "first", 0))

	waitCount(t, r, playback.EventChunkQueued, 0, 1)
	waitCount(t, r, playback.EventChunkQueued, 1, 1)
	waitCount(t, r, playback.EventChunkStarted, 0, 1)

	sink := sinks.last()
	require.NotNil(t, sink)
	require.Eventually(t, func() bool {
		sink.consume(100000)
		return r.count(playback.EventChunkFinished, 1) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, r.count(playback.EventChunkStarted, 1))
	assert.False(t, n.IsPlaying())
}

func TestSupersededSessionDropsChunk(t *testing.T) {
	n, sinks := newTestNarrator(t, tts.NewToneEngine())

	old := n.StartSession()
	fresh := n.StartSession()
	require.NotEqual(t, old, fresh)

	require.NoError(t, n.EnqueueChunk(context.Background(), old, 0, "stale text", 0))

	// the stale chunk must never reach the new session's sink
	time.Sleep(50 * time.Millisecond)
	sink := sinks.last()
	require.NotNil(t, sink)
	assert.Zero(t, sink.totalAppended())
}

func TestEmptyChunkIsIgnored(t *testing.T) {
	n, sinks := newTestNarrator(t, tts.NewToneEngine())

	token := n.StartSession()
	require.NoError(t, n.EnqueueChunk(context.Background(), token, 0, "   \n\t", 0))

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, sinks.last().totalAppended())
}

func TestGenerationErrorIsReported(t *testing.T) {
	n, _ := newTestNarrator(t, tts.NewToneEngine())
	r := record(t, n)

	// an exec backend whose command does not exist fails at Initialize
	require.NoError(t, n.manager.SetBackend("exec", tts.Options{Command: "definitely-not-a-tts-binary"}))

	token := n.StartSession()
	require.NoError(t, n.EnqueueChunk(context.Background(), token, 0, "some text", 0))

	waitCount(t, r, playback.EventGenerationError, 0, 1)
}

func TestSay(t *testing.T) {
	n, sinks := newTestNarrator(t, tts.NewToneEngine())
	r := record(t, n)

	token, err := n.Say(context.Background(), "read this aloud")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	waitCount(t, r, playback.EventChunkQueued, 0, 1)
	assert.Equal(t, 1, sinks.last().totalAppended())
}

func TestStreamTextBusy(t *testing.T) {
	engine := tts.NewToneEngine()
	engine.SamplesPerRune = 200000
	n, _ := newTestNarrator(t, engine)

	token := n.StartSession()
	require.NoError(t, n.StreamText(context.Background(), token, "a very long passage", 0))

	err := n.StreamText(context.Background(), token, "another passage", 0)
	assert.ErrorIs(t, err, tts.ErrEngineBusy)
}

func TestStopTearsDownStream(t *testing.T) {
	engine := tts.NewToneEngine()
	engine.SamplesPerRune = 200000
	n, _ := newTestNarrator(t, engine)

	token := n.StartSession()
	require.NoError(t, n.StreamText(context.Background(), token, "a very long passage", 0))

	n.Stop()

	// the producer must be released so a new stream can start
	require.Eventually(t, func() bool {
		token := n.StartSession()
		err := n.StreamText(context.Background(), token, "short", 0)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStatusSnapshot(t *testing.T) {
	n, _ := newTestNarrator(t, tts.NewToneEngine())

	token := n.StartSession()
	st := n.CurrentStatus()
	assert.Equal(t, token, st.SessionID)
	assert.Equal(t, "tone", st.Backend)
	assert.Equal(t, 1.0, st.Speed)
	assert.False(t, st.Playing)
	assert.False(t, st.Paused)
}

func TestPauseResume(t *testing.T) {
	n, sinks := newTestNarrator(t, tts.NewToneEngine())
	r := record(t, n)

	token := n.StartSession()
	require.NoError(t, n.EnqueueChunk(context.Background(), token, 0, "pause me", 0))
	waitCount(t, r, playback.EventChunkQueued, 0, 1)

	n.Pause()
	require.Eventually(t, func() bool { return n.IsPaused() }, time.Second, 5*time.Millisecond)
	assert.True(t, sinks.last().Paused())

	n.Resume()
	require.Eventually(t, func() bool { return !n.IsPaused() }, time.Second, 5*time.Millisecond)
}

// captureEngine wraps the tone engine and records the speed of every
// whole-buffer request it receives.
type captureEngine struct {
	*tts.ToneEngine
	mu     sync.Mutex
	speeds []float64
}

func (c *captureEngine) Generate(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	c.mu.Lock()
	c.speeds = append(c.speeds, req.Speed)
	c.mu.Unlock()
	return c.ToneEngine.Generate(ctx, req)
}

func (c *captureEngine) requested() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]float64(nil), c.speeds...)
}

func TestPerChunkSpeedOverride(t *testing.T) {
	engine := &captureEngine{ToneEngine: tts.NewToneEngine()}
	n, _ := newTestNarrator(t, engine)
	r := record(t, n)

	n.SetSpeed(1.0)
	token := n.StartSession()
	ctx := context.Background()

	// explicit per-chunk speed wins over the global one
	require.NoError(t, n.EnqueueChunk(ctx, token, 0, "fast part", 2.0))
	waitCount(t, r, playback.EventChunkQueued, 0, 1)
	// zero falls back to the global speed
	require.NoError(t, n.EnqueueChunk(ctx, token, 1, "normal part", 0))
	waitCount(t, r, playback.EventChunkQueued, 1, 1)
	// out-of-range per-chunk requests are clamped
	require.NoError(t, n.EnqueueChunk(ctx, token, 2, "way too fast", 5.0))
	waitCount(t, r, playback.EventChunkQueued, 2, 1)

	assert.Equal(t, []float64{2.0, 1.0, 2.0}, engine.requested())
}

func TestStaleStreamTextIsSilent(t *testing.T) {
	n, sinks := newTestNarrator(t, tts.NewToneEngine())

	old := n.StartSession()
	fresh := n.StartSession()
	require.NotEqual(t, old, fresh)

	// a stream for a superseded token is dropped without an error
	require.NoError(t, n.StreamText(context.Background(), old, "stale text", 0))

	time.Sleep(50 * time.Millisecond)
	sink := sinks.last()
	require.NotNil(t, sink)
	assert.Zero(t, sink.totalAppended())
}
