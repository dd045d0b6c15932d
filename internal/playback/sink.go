package playback

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// Sink plays decoded chunks back to back with no inserted silence between
// them. A sink belongs to exactly one session and is owned by the driver
// goroutine; it is created fresh on StartSession and dropped on Stop.
type Sink interface {
	// Append adds a decoded chunk after any already-queued audio.
	Append(s beep.Streamer)
	// Len is the number of appended chunks not yet fully played, including
	// the one currently playing. A chunk leaves the count exactly when its
	// last sample has been consumed.
	Len() int
	Empty() bool
	Pause()
	Resume()
	Paused() bool
	// Close stops playback and drops all queued audio.
	Close()
}

// SinkOpener creates a sink for a new session at the given sample rate.
type SinkOpener func(sampleRate beep.SampleRate) (Sink, error)

// chunkFIFO is a beep.Streamer over a queue of chunk streamers. Queued
// chunks are consumed contiguously, so successive chunks share a single
// Stream call with no silence in between; silence is emitted only when the
// queue has run dry, which keeps the speaker pulling through underruns.
//
// A queued streamer may block inside its pull (a stream source pre-rolling,
// for one), so push, len, and close must never wait on an in-flight Stream
// call: arrivals land in incoming behind a short-lived mutex, the mixer
// goroutine alone owns active, and depth is an atomic counter. The driver's
// poll loop stays responsive no matter how long a pull takes.
type chunkFIFO struct {
	mu       sync.Mutex
	incoming []beep.Streamer

	// active is touched only from Stream; the speaker mixer serializes
	// those calls.
	active []beep.Streamer

	depth  atomic.Int64
	closed atomic.Bool
}

func (q *chunkFIFO) push(s beep.Streamer) {
	if q.closed.Load() {
		return
	}
	q.mu.Lock()
	q.incoming = append(q.incoming, s)
	q.mu.Unlock()
	q.depth.Add(1)
}

func (q *chunkFIFO) len() int { return int(q.depth.Load()) }

func (q *chunkFIFO) close() {
	q.closed.Store(true)
	q.depth.Store(0)
	q.mu.Lock()
	q.incoming = nil
	q.mu.Unlock()
}

// absorb moves newly pushed chunks onto the active queue.
func (q *chunkFIFO) absorb() {
	q.mu.Lock()
	q.active = append(q.active, q.incoming...)
	q.incoming = nil
	q.mu.Unlock()
}

func (q *chunkFIFO) Stream(samples [][2]float64) (n int, ok bool) {
	if q.closed.Load() {
		q.active = nil
		return 0, false
	}
	q.absorb()

	filled := 0
	for filled < len(samples) {
		if q.closed.Load() {
			q.active = nil
			return 0, false
		}
		if len(q.active) == 0 {
			q.absorb()
		}
		if len(q.active) == 0 {
			// Underrun: pad with silence so the mixer keeps us alive.
			for i := filled; i < len(samples); i++ {
				samples[i] = [2]float64{}
			}
			return len(samples), true
		}
		n, ok := q.active[0].Stream(samples[filled:])
		if !ok {
			q.active = q.active[1:]
			q.depth.Add(-1)
			continue
		}
		filled += n
	}
	return len(samples), true
}

func (q *chunkFIFO) Err() error { return nil }

// speaker state is process-wide in beep; guard re-initialization.
var (
	speakerMu   sync.Mutex
	speakerRate beep.SampleRate
)

func ensureSpeaker(sr beep.SampleRate) error {
	speakerMu.Lock()
	defer speakerMu.Unlock()
	if speakerRate == sr {
		return nil
	}
	// ~100ms of buffered samples keeps latency low without crackle.
	if err := speaker.Init(sr, sr.N(100*time.Millisecond)); err != nil {
		return fmt.Errorf("failed to open audio output: %w", err)
	}
	speakerRate = sr
	return nil
}

// speakerSink drives the real audio device through the beep speaker.
type speakerSink struct {
	fifo *chunkFIFO
	ctrl *beep.Ctrl
}

// OpenSpeakerSink initializes the audio device (once per sample rate) and
// registers a fresh chunk queue with the speaker mixer.
func OpenSpeakerSink(sr beep.SampleRate) (Sink, error) {
	if err := ensureSpeaker(sr); err != nil {
		return nil, err
	}
	fifo := &chunkFIFO{}
	ctrl := &beep.Ctrl{Streamer: fifo}
	speaker.Play(ctrl)
	return &speakerSink{fifo: fifo, ctrl: ctrl}, nil
}

func (s *speakerSink) Append(st beep.Streamer) { s.fifo.push(st) }
func (s *speakerSink) Len() int                { return s.fifo.len() }
func (s *speakerSink) Empty() bool             { return s.fifo.len() == 0 }

func (s *speakerSink) Pause() {
	speaker.Lock()
	s.ctrl.Paused = true
	speaker.Unlock()
}

func (s *speakerSink) Resume() {
	speaker.Lock()
	s.ctrl.Paused = false
	speaker.Unlock()
}

func (s *speakerSink) Paused() bool {
	speaker.Lock()
	defer speaker.Unlock()
	return s.ctrl.Paused
}

func (s *speakerSink) Close() {
	// Closing the fifo makes its next Stream return false and the speaker
	// mixer drops the streamer.
	s.fifo.close()
}
