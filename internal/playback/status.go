package playback

import "sync/atomic"

// Status is the observable playback state for the active session. It is
// mutated only by the driver goroutine and may be read from any goroutine.
type Status struct {
	playing atomic.Bool
	paused  atomic.Bool
	queued  atomic.Int64
	current atomic.Int64
}

// Playing reports whether audio is currently flowing to the sink.
func (s *Status) Playing() bool { return s.playing.Load() }

// Paused reports whether the sink is paused.
func (s *Status) Paused() bool { return s.paused.Load() }

// QueuedChunks is the number of chunks appended to the sink and not yet
// fully played.
func (s *Status) QueuedChunks() int { return int(s.queued.Load()) }

// CurrentChunk is the index of the chunk currently playing (or the next one
// to play while the sink catches up).
func (s *Status) CurrentChunk() int { return int(s.current.Load()) }

func (s *Status) reset() {
	s.playing.Store(false)
	s.paused.Store(false)
	s.queued.Store(0)
	s.current.Store(0)
}
