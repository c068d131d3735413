package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestEncodeWAV(t *testing.T) {
	// 440Hz sine wave for 0.1 seconds at 22050Hz
	sampleRate := 22050
	numSamples := int(float64(sampleRate) * 0.1)
	samples := make([]int16, numSamples)
	for i := range samples {
		tm := float64(i) / float64(sampleRate)
		samples[i] = int16(16383.0 * math.Sin(2*math.Pi*440*tm))
	}

	wavData, err := EncodeWAV(samples, sampleRate, 1)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	expectedSize := 44 + len(samples)*2
	if len(wavData) != expectedSize {
		t.Errorf("Expected WAV size %d, got %d", expectedSize, len(wavData))
	}

	if DetectContainer(wavData) != ContainerWAV {
		t.Errorf("Expected WAV container, got %s", DetectContainer(wavData))
	}

	if got := binary.LittleEndian.Uint32(wavData[24:28]); got != uint32(sampleRate) {
		t.Errorf("Expected sample rate %d in header, got %d", sampleRate, got)
	}
}

func TestEncodeWAVStereoHeader(t *testing.T) {
	wavData, err := EncodeWAV([]int16{1, 2, 3, 4}, 44100, 2)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if got := binary.LittleEndian.Uint16(wavData[22:24]); got != 2 {
		t.Errorf("Expected 2 channels, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(wavData[32:34]); got != 4 {
		t.Errorf("Expected block align 4, got %d", got)
	}
}

func TestEncodeWAVEmpty(t *testing.T) {
	_, err := EncodeWAV([]int16{}, 22050, 1)
	if err == nil {
		t.Error("Expected error for empty samples")
	}
}

func TestEncodeWAVInvalidParameters(t *testing.T) {
	samples := []int16{100, 200, 300}

	if _, err := EncodeWAV(samples, 0, 1); err == nil {
		t.Error("Expected error for zero sample rate")
	}

	if _, err := EncodeWAV(samples, -1000, 1); err == nil {
		t.Error("Expected error for negative sample rate")
	}

	if _, err := EncodeWAV(samples, 22050, 2); err == nil {
		t.Error("Expected error for odd sample count with 2 channels")
	}
}

func TestFloatToPCM16Clipping(t *testing.T) {
	got := FloatToPCM16([]float64{0, 0.5, 1.5, -1.5})
	want := []int16{0, 16384, 32767, -32768}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestEncodeWAVRoundTrip(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768, 42}

	wavData, err := EncodeWAV(samples, 16000, 2)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	pcm, err := Decode(wavData)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if pcm.SampleRate != 16000 || pcm.Channels != 2 || pcm.Frames() != 3 {
		t.Errorf("Unexpected PCM shape: rate=%d channels=%d frames=%d", pcm.SampleRate, pcm.Channels, pcm.Frames())
	}
	if math.Abs(pcm.Samples[1]-1000.0/32768.0) > 1e-6 {
		t.Errorf("Expected sample 1 to be %f, got %f", 1000.0/32768.0, pcm.Samples[1])
	}
}

// floatWAV builds an IEEE float WAV file. With extensible set the fmt chunk
// is WAVE_FORMAT_EXTENSIBLE carrying the float subformat GUID.
func floatWAV(t *testing.T, samples []float64, sampleRate, channels, bits int, extensible bool) []byte {
	t.Helper()
	width := bits / 8

	var data bytes.Buffer
	for _, v := range samples {
		if bits == 32 {
			binary.Write(&data, binary.LittleEndian, float32(v))
		} else {
			binary.Write(&data, binary.LittleEndian, v)
		}
	}

	var fmtChunk bytes.Buffer
	tag := uint16(3)
	if extensible {
		tag = 0xFFFE
	}
	binary.Write(&fmtChunk, binary.LittleEndian, tag)
	binary.Write(&fmtChunk, binary.LittleEndian, uint16(channels))
	binary.Write(&fmtChunk, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&fmtChunk, binary.LittleEndian, uint32(sampleRate*channels*width))
	binary.Write(&fmtChunk, binary.LittleEndian, uint16(channels*width))
	binary.Write(&fmtChunk, binary.LittleEndian, uint16(bits))
	if extensible {
		binary.Write(&fmtChunk, binary.LittleEndian, uint16(22))
		binary.Write(&fmtChunk, binary.LittleEndian, uint16(bits))
		binary.Write(&fmtChunk, binary.LittleEndian, uint32(0))
		fmtChunk.Write([]byte{0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71})
	}

	var out bytes.Buffer
	out.WriteString("RIFF")
	binary.Write(&out, binary.LittleEndian, uint32(4+8+fmtChunk.Len()+8+data.Len()))
	out.WriteString("WAVE")
	out.WriteString("fmt ")
	binary.Write(&out, binary.LittleEndian, uint32(fmtChunk.Len()))
	out.Write(fmtChunk.Bytes())
	out.WriteString("data")
	binary.Write(&out, binary.LittleEndian, uint32(data.Len()))
	out.Write(data.Bytes())
	return out.Bytes()
}

func TestDecodeFloatWAV(t *testing.T) {
	// stereo frames: left is a ramp, right is its negation
	samples := []float64{0, -0, 0.25, -0.25, -0.5, 0.5, 0.75, -0.75, 1, -1}

	tests := []struct {
		name       string
		bits       int
		extensible bool
	}{
		{"float32", 32, false},
		{"float64", 64, false},
		{"extensible float32", 32, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pcm, err := Decode(floatWAV(t, samples, 48000, 2, tt.bits, tt.extensible))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if pcm.Container != ContainerWAV || pcm.SampleRate != 48000 || pcm.Channels != 2 || pcm.Frames() != 5 {
				t.Fatalf("Unexpected PCM: container=%s rate=%d channels=%d frames=%d",
					pcm.Container, pcm.SampleRate, pcm.Channels, pcm.Frames())
			}
			for i, want := range samples {
				if pcm.Samples[i] != want {
					t.Errorf("Sample %d: expected %f, got %f", i, want, pcm.Samples[i])
				}
			}
		})
	}
}

func TestDecodeFloatWAVUnsupportedDepth(t *testing.T) {
	data := floatWAV(t, []float64{0.1, 0.2}, 22050, 1, 32, false)
	// claim 16 bit float in the fmt chunk (bits per sample at offset 34)
	binary.LittleEndian.PutUint16(data[34:36], 16)

	if _, err := Decode(data); !errors.Is(err, ErrDecode) {
		t.Errorf("Expected ErrDecode, got %v", err)
	}
}

func TestNormalizeFloatWAV(t *testing.T) {
	n := testNormalizer(t)

	samples := make([]float64, 22050)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/22050)
	}

	w, err := n.Normalize(floatWAV(t, samples, 22050, 1, 32, false))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	for i := 0; i < 22050; i++ {
		if math.Abs(w.Samples[i]-samples[i]) > 1e-6 {
			t.Fatalf("Sample %d: expected %f, got %f", i, samples[i], w.Samples[i])
		}
	}
}
