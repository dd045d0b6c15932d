package playback

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
)

// resampleQuality balances fidelity against CPU; beep's docs recommend 3-4
// for realtime use.
const resampleQuality = 4

var errEmptyPayload = errors.New("empty audio payload")

// Payload is one chunk of synthesized audio awaiting playback. Data is
// either a complete WAV file or raw s16le mono PCM, in which case SampleRate
// must be set. Speed is a decode-time time-stretch factor; zero or one means
// the chunk plays at its natural rate (generation may have baked speed in
// already, and it must not be applied twice).
type Payload struct {
	Data       []byte
	SampleRate int
	Speed      float64
}

// decode turns a payload into a streamer at the sink's sample rate.
func decode(p Payload, target beep.SampleRate) (beep.Streamer, error) {
	if len(p.Data) == 0 {
		return nil, errEmptyPayload
	}

	var (
		s    beep.Streamer
		rate beep.SampleRate
	)
	if bytes.HasPrefix(p.Data, []byte("RIFF")) {
		stream, format, err := wav.Decode(io.NopCloser(bytes.NewReader(p.Data)))
		if err != nil {
			return nil, fmt.Errorf("failed to decode WAV: %w", err)
		}
		s, rate = stream, format.SampleRate
	} else {
		if len(p.Data)%2 != 0 {
			return nil, fmt.Errorf("raw PCM payload has odd length %d", len(p.Data))
		}
		if p.SampleRate <= 0 {
			return nil, fmt.Errorf("raw PCM payload missing sample rate")
		}
		s, rate = NewPCMStream(p.Data, beep.SampleRate(p.SampleRate)), beep.SampleRate(p.SampleRate)
	}

	if rate != target {
		s = beep.Resample(resampleQuality, rate, target, s)
	}
	if p.Speed > 0 && p.Speed != 1.0 {
		// Time-stretch once, here. The mixer never reapplies speed.
		s = beep.ResampleRatio(resampleQuality, p.Speed, s)
	}
	return s, nil
}
