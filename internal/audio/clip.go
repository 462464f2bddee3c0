// Package audio plays the sound attached to a flag when its trigger fires.
package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"
)

// Defaults for the generated tone used when a flag has no sound file.
const (
	DefaultSampleRate = 44100
	DefaultFrequency  = 440.0
	DefaultDuration   = 100 * time.Millisecond
)

// Clip is mono 16-bit PCM audio.
type Clip struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// Tone generates a full-scale sine wave.
func Tone(frequency float64, duration time.Duration, sampleRate int) Clip {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	n := int(float64(sampleRate) * duration.Seconds())
	if n < 0 {
		n = 0
	}

	samples := make([]int16, n)
	for i := range samples {
		v := math.Sin(2 * math.Pi * frequency * float64(i) / float64(sampleRate))
		samples[i] = int16(v * math.MaxInt16)
	}

	return Clip{Samples: samples, SampleRate: sampleRate}
}

// WAV encodes the clip as a canonical RIFF/WAVE file.
func (c Clip) WAV() []byte {
	const (
		channels      = 1
		bitsPerSample = 16
		headerSize    = 44
	)
	dataSize := len(c.Samples) * 2
	blockAlign := channels * bitsPerSample / 8

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+dataSize))
	le := binary.LittleEndian

	buf.WriteString("RIFF")
	binary.Write(buf, le, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, le, uint32(16))
	binary.Write(buf, le, uint16(1)) // PCM
	binary.Write(buf, le, uint16(channels))
	binary.Write(buf, le, uint32(c.SampleRate))
	binary.Write(buf, le, uint32(c.SampleRate*blockAlign))
	binary.Write(buf, le, uint16(blockAlign))
	binary.Write(buf, le, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, le, uint32(dataSize))
	binary.Write(buf, le, c.Samples)

	return buf.Bytes()
}
