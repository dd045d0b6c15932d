package playback

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gopxl/beep/v2"
)

const (
	// DefaultSampleRate is the sink rate; chunk payloads at other rates are
	// resampled on decode.
	DefaultSampleRate = beep.SampleRate(24000)
	// defaultPoll is the driver tick. Short enough to both react to commands
	// and observe chunk boundaries without busy-waiting.
	defaultPoll = 25 * time.Millisecond
)

type startSessionCmd struct{ token string }

type enqueueCmd struct {
	token   string
	index   int
	payload Payload
}

type appendStreamCmd struct {
	token string
	src   *StreamSource
}

type stopCmd struct{}
type pauseCmd struct{}
type resumeCmd struct{}

// DriverConfig tunes a Driver. Zero values select production defaults.
type DriverConfig struct {
	SampleRate beep.SampleRate
	Poll       time.Duration
	Open       SinkOpener
}

// Driver owns the audio sink for the active session and runs a command loop
// on a dedicated goroutine. The sink is never shared: all interaction goes
// through the command channel, which makes the driver a single-writer actor
// over an audio primitive that is not safe to share across goroutines.
//
// Chunks are appended to the sink strictly in ascending index order via the
// reorder queue, regardless of the order generation finishes in.
type Driver struct {
	cmds   chan any
	quit   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
	status *Status
	bus    *Bus

	sampleRate beep.SampleRate
	poll       time.Duration
	open       SinkOpener
}

// NewDriver starts the driver goroutine.
func NewDriver(bus *Bus, cfg DriverConfig) *Driver {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Poll == 0 {
		cfg.Poll = defaultPoll
	}
	if cfg.Open == nil {
		cfg.Open = OpenSpeakerSink
	}
	d := &Driver{
		cmds:       make(chan any, 64),
		quit:       make(chan struct{}),
		status:     &Status{},
		bus:        bus,
		sampleRate: cfg.SampleRate,
		poll:       cfg.Poll,
		open:       cfg.Open,
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Status is readable from any goroutine.
func (d *Driver) Status() *Status { return d.status }

// StartSession drops any existing sink and binds a fresh one to token.
func (d *Driver) StartSession(token string) {
	d.send(startSessionCmd{token: token})
}

// Enqueue submits a chunk for ordered playback. Chunks from superseded
// sessions are discarded silently.
func (d *Driver) Enqueue(token string, index int, p Payload) {
	d.send(enqueueCmd{token: token, index: index, payload: p})
}

// AppendStream attaches a live sample stream as the session's next chunk.
func (d *Driver) AppendStream(token string, src *StreamSource) {
	d.send(appendStreamCmd{token: token, src: src})
}

// Stop drops the sink, clears reorder state, and returns to idle.
func (d *Driver) Stop() { d.send(stopCmd{}) }

func (d *Driver) Pause()  { d.send(pauseCmd{}) }
func (d *Driver) Resume() { d.send(resumeCmd{}) }

// Close terminates the driver goroutine, dropping any active sink.
func (d *Driver) Close() {
	d.once.Do(func() { close(d.quit) })
	d.wg.Wait()
}

func (d *Driver) send(cmd any) {
	select {
	case d.cmds <- cmd:
	case <-d.quit:
	}
}

// loopState is confined to the driver goroutine.
type loopState struct {
	d       *Driver
	session string
	sink    Sink
	reorder *reorderQueue

	appended int // chunks appended to the sink this session
	current  int // index of the chunk currently playing
	lastLen  int // sink depth observed on the previous tick
	stream   *StreamSource
}

func (d *Driver) run() {
	defer d.wg.Done()

	st := &loopState{d: d, reorder: newReorderQueue()}
	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	for {
		select {
		case <-d.quit:
			st.teardown()
			return
		case cmd := <-d.cmds:
			st.handle(cmd)
			st.tick()
		case <-ticker.C:
			st.tick()
		}
	}
}

func (st *loopState) emit(index int, kind EventKind, msg string) {
	st.d.bus.Publish(Event{Session: st.session, ChunkIndex: index, Kind: kind, Message: msg})
}

func (st *loopState) handle(cmd any) {
	switch c := cmd.(type) {
	case startSessionCmd:
		st.teardown()
		st.session = c.token
		sink, err := st.d.open(st.d.sampleRate)
		if err != nil {
			log.Error("Failed to open audio sink", "session", c.token, "error", err)
			st.emit(0, EventError, err.Error())
			return
		}
		st.sink = sink
		log.Debug("Session started", "session", c.token)

	case enqueueCmd:
		if c.token != st.session {
			log.Debug("Dropping chunk for superseded session",
				"session", c.token, "index", c.index)
			return
		}
		if !st.reorder.put(c.index, c.payload) {
			log.Debug("Dropping chunk below watermark", "session", c.token, "index", c.index)
			return
		}
		st.emit(c.index, EventChunkReady, "")

	case appendStreamCmd:
		if c.token != st.session || st.sink == nil {
			// Closing tells the producer to stop generating.
			c.src.Close()
			return
		}
		var s beep.Streamer = c.src
		if c.src.SampleRate() != st.d.sampleRate {
			s = beep.Resample(resampleQuality, c.src.SampleRate(), st.d.sampleRate, s)
		}
		st.stream = c.src
		st.appendChunk(st.appended, s)

	case stopCmd:
		st.teardown()
		log.Debug("Playback stopped")

	case pauseCmd:
		if st.sink != nil {
			st.sink.Pause()
			st.d.status.paused.Store(true)
		}

	case resumeCmd:
		if st.sink != nil {
			st.sink.Resume()
			st.d.status.paused.Store(false)
		}
	}
}

// appendChunk puts a decoded chunk on the sink and emits queue events.
func (st *loopState) appendChunk(index int, s beep.Streamer) {
	st.sink.Append(s)
	st.appended++

	queued := st.sink.Len()
	st.d.status.queued.Store(int64(queued))

	// First audio after the sink was empty: playback (re)starts here.
	if st.lastLen == 0 {
		st.d.status.playing.Store(true)
		st.emit(st.current, EventChunkStarted, "")
		st.lastLen = queued
	}
	st.emit(index, EventChunkQueued, "")
}

func (st *loopState) tick() {
	if st.session == "" || st.sink == nil {
		return
	}

	// Release every contiguously ready chunk, in index order.
	for {
		payload, index, ok := st.reorder.takeReady()
		if !ok {
			break
		}
		s, err := decode(payload, st.d.sampleRate)
		if err != nil {
			// The watermark has already advanced past this index; one bad
			// chunk must not stall the rest of the queue.
			log.Warn("Chunk decode failed", "session", st.session, "index", index, "error", err)
			st.emit(index, EventError, err.Error())
			continue
		}
		st.appendChunk(index, s)
	}

	st.d.status.paused.Store(st.sink.Paused())

	cur := st.sink.Len()
	if cur < st.lastLen {
		// One finished/started pair per completed chunk; the sink removes a
		// chunk exactly when its samples are exhausted, so the delta is an
		// exact count even when several chunks finish between polls.
		completed := st.lastLen - cur
		for i := 0; i < completed; i++ {
			st.emit(st.current, EventChunkFinished, "")
			st.current++
			last := i == completed-1
			if !last || cur > 0 {
				st.emit(st.current, EventChunkStarted, "")
			}
		}
		st.d.status.current.Store(int64(st.current))
		if cur == 0 {
			// Underrun, not completion: generation may still be catching
			// up. Indices and watermark are kept so playback resumes
			// seamlessly when the next chunk lands.
			st.d.status.playing.Store(false)
		}
	} else if cur > 0 {
		st.d.status.playing.Store(true)
	}

	st.lastLen = cur
	st.d.status.queued.Store(int64(cur))
}

func (st *loopState) teardown() {
	if st.stream != nil {
		st.stream.Close()
		st.stream = nil
	}
	if st.sink != nil {
		st.sink.Close()
		st.sink = nil
	}
	st.reorder.reset()
	st.session = ""
	st.appended = 0
	st.current = 0
	st.lastLen = 0
	st.d.status.reset()
}
