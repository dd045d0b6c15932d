package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payloadN(n byte) Payload {
	return Payload{Data: []byte{n, 0}, SampleRate: 24000}
}

func TestReorderReleasesInOrder(t *testing.T) {
	q := newReorderQueue()

	// submit 2, 0, 1 out of order
	q.put(2, payloadN(2))
	_, _, ok := q.takeReady()
	assert.False(t, ok, "nothing ready before index 0 arrives")

	q.put(0, payloadN(0))
	q.put(1, payloadN(1))

	var got []int
	for {
		_, idx, ok := q.takeReady()
		if !ok {
			break
		}
		got = append(got, idx)
	}
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.Equal(t, 0, q.pendingCount())
}

func TestReorderStallsAtGap(t *testing.T) {
	q := newReorderQueue()
	q.put(0, payloadN(0))
	q.put(2, payloadN(2))

	_, idx, ok := q.takeReady()
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	// index 1 is missing: release stops at the gap
	_, _, ok = q.takeReady()
	assert.False(t, ok)
	assert.Equal(t, 1, q.pendingCount())

	q.put(1, payloadN(1))
	_, idx, ok = q.takeReady()
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	_, idx, ok = q.takeReady()
	require.True(t, ok)
	assert.Equal(t, 2, idx)
}

func TestReorderSkipAdvancesWatermark(t *testing.T) {
	q := newReorderQueue()
	q.put(1, payloadN(1))

	// index 0 is known bad: skipping it unblocks the remainder
	q.skip()
	_, idx, ok := q.takeReady()
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestReorderDropsBelowWatermark(t *testing.T) {
	q := newReorderQueue()
	q.put(0, payloadN(0))
	_, _, ok := q.takeReady()
	require.True(t, ok)

	assert.False(t, q.put(0, payloadN(0)), "already-released index is dropped")
	assert.Equal(t, 0, q.pendingCount())
}

func TestReorderReset(t *testing.T) {
	q := newReorderQueue()
	q.put(0, payloadN(0))
	q.put(1, payloadN(1))
	_, _, _ = q.takeReady()

	q.reset()
	assert.Equal(t, 0, q.pendingCount())
	assert.Equal(t, 0, q.watermark)
}
