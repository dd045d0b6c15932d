package playback

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

const (
	// DefaultPreroll is how much audio accumulates before the first sample
	// is released, absorbing generator startup jitter.
	DefaultPreroll = 2 * time.Second
	// underrunWait bounds how long a pull blocks when the generator falls
	// behind; after it we yield silence rather than stall the audio thread.
	underrunWait = 50 * time.Millisecond
)

// StreamSource adapts a push-style generator of sample blocks into a
// pull-style beep.Streamer. Exactly one producer feeds the blocks channel
// and closes it when generation ends; exactly one consumer streams from the
// source. Closing the source signals the producer (via Done) to stop
// generating audio nobody will hear.
type StreamSource struct {
	blocks     <-chan []float32
	sampleRate beep.SampleRate

	buf  []float64
	head int

	preroll   int // samples to accumulate before the first yield
	prerolled bool
	closed    bool // producer channel closed
	finished  bool // all buffered samples consumed after close

	done     chan struct{}
	stopOnce sync.Once
}

// NewStreamSource wraps blocks of mono samples arriving at sampleRate.
// preroll <= 0 selects DefaultPreroll.
func NewStreamSource(blocks <-chan []float32, sampleRate beep.SampleRate, preroll time.Duration) *StreamSource {
	if preroll <= 0 {
		preroll = DefaultPreroll
	}
	return &StreamSource{
		blocks:     blocks,
		sampleRate: sampleRate,
		preroll:    sampleRate.N(preroll),
		done:       make(chan struct{}),
	}
}

// SampleRate returns the fixed rate of the incoming samples.
func (s *StreamSource) SampleRate() beep.SampleRate { return s.sampleRate }

// Done is closed when the consumer is gone; the producer must stop sending
// promptly once it is.
func (s *StreamSource) Done() <-chan struct{} { return s.done }

// Close releases the consumer side. Remaining and future producer blocks are
// discarded.
func (s *StreamSource) Close() error {
	s.stopOnce.Do(func() { close(s.done) })
	return nil
}

func (s *StreamSource) buffered() int { return len(s.buf) - s.head }

func (s *StreamSource) extend(block []float32) {
	for _, v := range block {
		s.buf = append(s.buf, float64(v))
	}
}

func (s *StreamSource) pop() float64 {
	v := s.buf[s.head]
	s.head++
	if s.head > 4096 && s.head*2 > len(s.buf) {
		s.buf = append(s.buf[:0], s.buf[s.head:]...)
		s.head = 0
	}
	return v
}

// fill drains every block available right now without blocking.
func (s *StreamSource) fill() {
	for {
		select {
		case block, ok := <-s.blocks:
			if !ok {
				s.closed = true
				return
			}
			s.extend(block)
		default:
			return
		}
	}
}

// waitPreroll blocks until the pre-roll threshold is buffered or the
// producer finishes first, so a short utterance still plays in full.
func (s *StreamSource) waitPreroll() {
	for !s.closed && s.buffered() < s.preroll {
		select {
		case block, ok := <-s.blocks:
			if !ok {
				s.closed = true
			} else {
				s.extend(block)
			}
		case <-s.done:
			s.closed = true
			s.finished = true
		}
	}
	s.prerolled = true
}

// next yields one sample, or false at end of stream.
func (s *StreamSource) next() (float64, bool) {
	if s.finished {
		return 0, false
	}
	if !s.prerolled {
		s.waitPreroll()
		if s.finished {
			return 0, false
		}
	}

	if s.buffered() == 0 {
		s.fill()
	}
	if s.buffered() > 0 {
		return s.pop(), true
	}
	if s.closed {
		s.finished = true
		return 0, false
	}

	// Generator slower than playback: wait briefly, then trade a moment of
	// silence for never blocking the audio thread indefinitely.
	timer := time.NewTimer(underrunWait)
	defer timer.Stop()
	select {
	case block, ok := <-s.blocks:
		if !ok {
			s.closed = true
			s.finished = true
			return 0, false
		}
		s.extend(block)
		return s.pop(), true
	case <-s.done:
		s.finished = true
		return 0, false
	case <-timer.C:
		return 0, true
	}
}

func (s *StreamSource) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		v, ok := s.next()
		if !ok {
			return i, i > 0
		}
		samples[i][0] = v
		samples[i][1] = v
	}
	return len(samples), true
}

func (s *StreamSource) Err() error { return nil }
