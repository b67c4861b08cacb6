// Package audio holds the PCM plumbing shared by synthesis and playback:
// LINEAR16 decoding, float conversion, and paced frame delivery.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"
)

// Buffer is a decoded mono utterance: normalized float samples at a fixed rate.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration reports the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// DecodeBase64PCM decodes a base64-encoded LINEAR16 payload into raw bytes.
func DecodeBase64PCM(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("audio: decode base64 pcm: %w", err)
	}
	return raw, nil
}

// PCM16ToFloat32 converts 16-bit little-endian signed samples to normalized
// floats (sample / 32768.0). A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[2*i : 2*i+2]))
		out[i] = float32(v) / 32768.0
	}
	return out
}

// Float32ToPCM16 converts normalized floats back to 16-bit little-endian
// bytes, clamping out-of-range samples.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s * 32768.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[2*i:2*i+2], uint16(int16(v)))
	}
	return out
}
