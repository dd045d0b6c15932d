package playback

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// EncodeWAV wraps raw s16le mono PCM data in a WAV container.
func EncodeWAV(pcmData []byte, sampleRate int) []byte {
	var buf bytes.Buffer
	buf.Grow(44 + len(pcmData))
	// the buffer writer never fails
	_ = writeWAVHeader(&buf, len(pcmData), sampleRate, 1, 16)
	buf.Write(pcmData)
	return buf.Bytes()
}

// writeWAVHeader writes a standard WAV file header.
func writeWAVHeader(w io.Writer, dataSize, sampleRate, channels, bitsPerSample int) error {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	chunkSize := 36 + dataSize

	// RIFF header
	if _, err := w.Write([]byte("RIFF")); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(chunkSize)); err != nil {
		return err
	}
	if _, err := w.Write([]byte("WAVE")); err != nil {
		return err
	}

	// fmt subchunk
	if _, err := w.Write([]byte("fmt ")); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(16)); err != nil { // Subchunk1Size for PCM
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(1)); err != nil { // AudioFormat: PCM
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(channels)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(sampleRate)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(byteRate)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(blockAlign)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(bitsPerSample)); err != nil {
		return err
	}

	// data subchunk
	if _, err := w.Write([]byte("data")); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(dataSize)); err != nil {
		return err
	}

	return nil
}

// SaveWAV is a convenience for writing PCM data as a WAV file stream.
func SaveWAV(w io.Writer, pcmData []byte, sampleRate int) error {
	if err := writeWAVHeader(w, len(pcmData), sampleRate, 1, 16); err != nil {
		return fmt.Errorf("failed to write WAV header: %w", err)
	}
	if _, err := w.Write(pcmData); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}
	return nil
}
