package testsupport

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Tone describes a synthetic 16-bit PCM fixture.
type Tone struct {
	SampleRate int
	Channels   int
	Seconds    float64
	Frequency  float64
	// Amplitude is relative to full scale, in [0, 1].
	Amplitude float64
}

// WriteToneWAV writes a sine tone WAV file at path and returns path.
func WriteToneWAV(t testing.TB, path string, tone Tone) string {
	t.Helper()

	if tone.SampleRate <= 0 {
		tone.SampleRate = 16000
	}
	if tone.Channels <= 0 {
		tone.Channels = 1
	}
	if tone.Frequency <= 0 {
		tone.Frequency = 440
	}
	frames := int(tone.Seconds * float64(tone.SampleRate))
	data := make([]int, frames*tone.Channels)
	for i := 0; i < frames; i++ {
		v := tone.Amplitude * math.Sin(2*math.Pi*tone.Frequency*float64(i)/float64(tone.SampleRate))
		for c := 0; c < tone.Channels; c++ {
			data[i*tone.Channels+c] = int(math.Round(v * 32767))
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, tone.SampleRate, 16, tone.Channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: tone.Channels, SampleRate: tone.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("finalize %s: %v", path, err)
	}
	return path
}

// WriteFile fills path with size bytes of a repeating pattern. A size <= 0
// writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
