package playback

import (
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRate = beep.SampleRate(24000)

// drain pulls from src until end of stream, returning every yielded sample.
func drain(t *testing.T, src *StreamSource) []float64 {
	t.Helper()
	var out []float64
	buf := make([][2]float64, 512)
	for {
		n, ok := src.Stream(buf)
		for i := 0; i < n; i++ {
			out = append(out, buf[i][0])
		}
		if !ok {
			return out
		}
	}
}

func TestStreamYieldsAllSamplesWhenProducerClosesEarly(t *testing.T) {
	// fewer samples than the pre-roll threshold: the source must still
	// terminate and yield exactly what was produced
	blocks := make(chan []float32, 4)
	blocks <- []float32{0.1, 0.2, 0.3}
	blocks <- []float32{0.4}
	close(blocks)

	src := NewStreamSource(blocks, testRate, time.Second)
	got := drain(t, src)

	require.Len(t, got, 4)
	assert.InDelta(t, 0.1, got[0], 1e-6)
	assert.InDelta(t, 0.4, got[3], 1e-6)
}

func TestStreamPrerollBlocksUntilThreshold(t *testing.T) {
	blocks := make(chan []float32, 8)
	// threshold of ~10ms at 24kHz = 240 samples
	src := NewStreamSource(blocks, testRate, 10*time.Millisecond)

	started := make(chan struct{})
	done := make(chan int)
	go func() {
		close(started)
		buf := make([][2]float64, 240)
		n, _ := src.Stream(buf)
		done <- n
	}()

	<-started
	select {
	case <-done:
		t.Fatal("Stream returned before pre-roll threshold was met")
	case <-time.After(20 * time.Millisecond):
	}

	blocks <- make([]float32, 240)
	select {
	case n := <-done:
		assert.Equal(t, 240, n)
	case <-time.After(time.Second):
		t.Fatal("Stream did not return after pre-roll was satisfied")
	}
	close(blocks)
}

func TestStreamUnderrunYieldsSilence(t *testing.T) {
	blocks := make(chan []float32, 1)
	blocks <- []float32{0.5}
	src := NewStreamSource(blocks, testRate, time.Nanosecond)

	buf := make([][2]float64, 2)
	start := time.Now()
	n, ok := src.Stream(buf)
	elapsed := time.Since(start)

	require.True(t, ok)
	require.Equal(t, 2, n)
	assert.InDelta(t, 0.5, buf[0][0], 1e-6)
	// second sample is the underrun silence after the timeout
	assert.Zero(t, buf[1][0])
	assert.GreaterOrEqual(t, elapsed, underrunWait)
	close(blocks)
}

func TestStreamDrainsAfterProducerCloses(t *testing.T) {
	blocks := make(chan []float32, 2)
	src := NewStreamSource(blocks, testRate, time.Nanosecond)

	buf := make([][2]float64, 1)
	blocks <- []float32{0.7}
	n, ok := src.Stream(buf)
	require.True(t, ok)
	require.Equal(t, 1, n)

	blocks <- []float32{0.9}
	close(blocks)

	got := drain(t, src)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.9, got[0], 1e-6)

	// terminated: further calls keep reporting end of stream
	n, ok = src.Stream(buf)
	assert.Zero(t, n)
	assert.False(t, ok)
}

func TestStreamCloseSignalsProducer(t *testing.T) {
	blocks := make(chan []float32)
	src := NewStreamSource(blocks, testRate, time.Nanosecond)

	require.NoError(t, src.Close())
	select {
	case <-src.Done():
	default:
		t.Fatal("Done not closed after Close")
	}

	buf := make([][2]float64, 8)
	n, ok := src.Stream(buf)
	assert.Zero(t, n)
	assert.False(t, ok)

	// Close is idempotent
	require.NoError(t, src.Close())
}

func TestStreamStereoDuplication(t *testing.T) {
	blocks := make(chan []float32, 1)
	blocks <- []float32{0.25}
	close(blocks)

	src := NewStreamSource(blocks, testRate, time.Nanosecond)
	buf := make([][2]float64, 1)
	n, _ := src.Stream(buf)
	require.Equal(t, 1, n)
	assert.Equal(t, buf[0][0], buf[0][1], "mono samples are duplicated to both channels")
}
