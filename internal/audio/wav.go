package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

// PCM is a decoded audio buffer. Samples are interleaved and scaled to [-1, 1].
type PCM struct {
	Samples    []float64
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames (samples per channel).
func (p PCM) Frames() int {
	if p.Channels <= 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// Duration returns the buffer length in seconds.
func (p PCM) Duration() float64 {
	if p.SampleRate <= 0 {
		return 0
	}
	return float64(p.Frames()) / float64(p.SampleRate)
}

// ReadWAV decodes an integer PCM WAV file.
func ReadWAV(path string) (PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return PCM{}, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()
	return DecodeWAV(f)
}

// DecodeWAV decodes integer PCM WAV data from r.
func DecodeWAV(r io.ReadSeeker) (PCM, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return PCM{}, errors.New("not a valid WAV file")
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return PCM{}, fmt.Errorf("unsupported WAV encoding %d (integer PCM required)", dec.WavAudioFormat)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return PCM{}, fmt.Errorf("decode pcm: %w", err)
	}
	channels := int(dec.NumChans)
	if channels <= 0 {
		return PCM{}, errors.New("WAV header declares no channels")
	}
	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 || bitDepth > 32 {
		return PCM{}, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}

	samples := make([]float64, len(buf.Data))
	if bitDepth == 8 {
		// 8-bit WAV is unsigned with a 128 midpoint.
		for i, v := range buf.Data {
			samples[i] = float64(v-128) / 128
		}
	} else {
		scale := math.Pow(2, float64(bitDepth-1))
		for i, v := range buf.Data {
			samples[i] = float64(v) / scale
		}
	}
	return PCM{Samples: samples, SampleRate: int(dec.SampleRate), Channels: channels}, nil
}

// WriteWAV encodes samples as 16-bit PCM. Samples outside [-1, 1] are clamped.
func WriteWAV(w io.WriteSeeker, pcm PCM) error {
	if pcm.Channels <= 0 {
		pcm.Channels = 1
	}
	data := make([]int, len(pcm.Samples))
	for i, s := range pcm.Samples {
		data[i] = toInt16(s)
	}
	enc := wav.NewEncoder(w, pcm.SampleRate, 16, pcm.Channels, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: pcm.Channels, SampleRate: pcm.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode pcm: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

func toInt16(s float64) int {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int(math.Round(s * math.MaxInt16))
}
