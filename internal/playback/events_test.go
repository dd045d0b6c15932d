package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch1, unsub1 := b.Subscribe()
	ch2, unsub2 := b.Subscribe()
	defer unsub1()
	defer unsub2()

	e := Event{Session: "s1", ChunkIndex: 3, Kind: EventChunkReady}
	b.Publish(e)

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, e, got)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestBusPublishNeverBlocks(t *testing.T) {
	b := NewBus()
	defer b.Close()

	_, unsub := b.Subscribe()
	defer unsub()

	// nobody is reading; overflow past the channel buffer must not block
	done := make(chan struct{})
	go func() {
		for i := 0; i < 256; i++ {
			b.Publish(Event{Session: "s", ChunkIndex: i, Kind: EventChunkQueued})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, unsub := b.Subscribe()
	unsub()
	unsub() // idempotent

	_, open := <-ch
	assert.False(t, open)

	// publishing after unsubscribe is harmless
	b.Publish(Event{Kind: EventError})
}

func TestBusClose(t *testing.T) {
	b := NewBus()
	ch, _ := b.Subscribe()
	b.Close()

	_, open := <-ch
	require.False(t, open)

	// post-close subscribe yields a closed channel, not a panic
	ch2, unsub := b.Subscribe()
	_, open = <-ch2
	assert.False(t, open)
	unsub()

	b.Publish(Event{Kind: EventError}) // ignored
	b.Close()                          // idempotent
}
