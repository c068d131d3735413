package features

import (
	"errors"
	"math"
	"testing"

	"github.com/pegut0/ClassificadorSomIA/internal/audio"
)

func testExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := NewExtractor(DefaultConfig())
	if err != nil {
		t.Fatalf("NewExtractor failed: %v", err)
	}
	return e
}

func sineWaveform(freq, amplitude float64) audio.Waveform {
	samples := make([]float64, 110250)
	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/22050)
	}
	return audio.Waveform{Samples: samples, SampleRate: 22050}
}

func TestHannWindow(t *testing.T) {
	w := hannWindow(2048)
	if len(w) != 2048 {
		t.Fatalf("expected 2048, got %d", len(w))
	}
	if w[0] != 0 {
		t.Errorf("w[0] = %f, want 0", w[0])
	}
	if math.Abs(w[1024]-1.0) > 1e-12 {
		t.Errorf("w[1024] = %f, want 1.0", w[1024])
	}
}

func TestMelConversion(t *testing.T) {
	// Slaney scale is linear below 1 kHz: 1000 Hz -> 15 mel
	if mel := hzToMel(1000); math.Abs(mel-15) > 1e-9 {
		t.Errorf("hzToMel(1000) = %f, want 15", mel)
	}
	if mel := hzToMel(200); math.Abs(mel-3) > 1e-9 {
		t.Errorf("hzToMel(200) = %f, want 3", mel)
	}
	for _, hz := range []float64{0, 440, 1000, 4000, 11025} {
		if got := melToHz(hzToMel(hz)); math.Abs(got-hz) > 1e-6 {
			t.Errorf("melToHz(hzToMel(%f)) = %f", hz, got)
		}
	}
}

func TestMelFilterBank(t *testing.T) {
	bank := melFilterBank(128, 2048, 22050, 0, 11025)
	if len(bank) != 128 {
		t.Fatalf("expected 128 filters, got %d", len(bank))
	}
	for i, f := range bank {
		if len(f) != 1025 {
			t.Fatalf("filter %d: expected 1025 bins, got %d", i, len(f))
		}
		hasNonZero := false
		for _, v := range f {
			if v < 0 {
				t.Fatalf("filter %d has negative weight %f", i, v)
			}
			if v > 0 {
				hasNonZero = true
			}
		}
		if !hasNonZero {
			t.Errorf("filter %d is all zeros", i)
		}
	}
}

func TestExtractShape(t *testing.T) {
	e := testExtractor(t)

	spec, err := e.Extract(sineWaveform(440, 0.5))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if spec.Bins != 128 {
		t.Errorf("expected 128 bins, got %d", spec.Bins)
	}
	if spec.Frames != 216 {
		t.Errorf("expected 216 frames, got %d", spec.Frames)
	}
	if len(spec.Data) != 128*216 {
		t.Errorf("expected %d values, got %d", 128*216, len(spec.Data))
	}
}

func TestExtractReferencedToMax(t *testing.T) {
	e := testExtractor(t)

	for _, amplitude := range []float64{0.01, 0.9} {
		spec, err := e.Extract(sineWaveform(1000, amplitude))
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}

		maxV, minV := math.Inf(-1), math.Inf(1)
		for _, v := range spec.Data {
			maxV = math.Max(maxV, v)
			minV = math.Min(minV, v)
		}
		if math.Abs(maxV) > 1e-9 {
			t.Errorf("amplitude %f: expected max 0 dB, got %f", amplitude, maxV)
		}
		if minV < -80-1e-9 {
			t.Errorf("amplitude %f: expected values clipped at -80 dB, got %f", amplitude, minV)
		}
	}
}

func TestExtractLoudestBinMatchesTone(t *testing.T) {
	e := testExtractor(t)

	spec, err := e.Extract(sineWaveform(1000, 0.5))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	frame := spec.Frames / 2
	best := 0
	for m := 1; m < spec.Bins; m++ {
		if spec.Row(m)[frame] > spec.Row(best)[frame] {
			best = m
		}
	}

	// 1000 Hz sits at 15 mel; bins are spaced ~0.3 mel apart up to Nyquist
	centerHz := melToHz(hzToMel(11025) * float64(best+1) / 129)
	if math.Abs(centerHz-1000) > 100 {
		t.Errorf("loudest bin %d centered at %.0f Hz, want ~1000 Hz", best, centerHz)
	}
}

func TestExtractSilenceIsFinite(t *testing.T) {
	e := testExtractor(t)

	spec, err := e.Extract(audio.Waveform{Samples: make([]float64, 110250), SampleRate: 22050})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !spec.Finite() {
		t.Error("expected finite spectrogram for silence")
	}
}

func TestExtractDegenerate(t *testing.T) {
	e := testExtractor(t)

	w := sineWaveform(440, 0.5)
	w.Samples[1000] = math.NaN()

	_, err := e.Extract(w)
	if !errors.Is(err, ErrDegenerate) {
		t.Errorf("expected ErrDegenerate, got %v", err)
	}

	_, err = e.Extract(audio.Waveform{SampleRate: 22050})
	if !errors.Is(err, ErrDegenerate) {
		t.Errorf("expected ErrDegenerate for empty waveform, got %v", err)
	}
}

func TestExtractSampleRateMismatch(t *testing.T) {
	e := testExtractor(t)

	_, err := e.Extract(audio.Waveform{Samples: make([]float64, 1024), SampleRate: 16000})
	if err == nil {
		t.Error("expected error for sample rate mismatch")
	}
}

func TestNewExtractorValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"zero hop", func(c *Config) { c.HopLength = 0 }},
		{"zero mels", func(c *Config) { c.NumMels = 0 }},
		{"tiny fft", func(c *Config) { c.FFTSize = 1 }},
		{"low above high", func(c *Config) { c.LowFreq = 20000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if _, err := NewExtractor(cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPowerToDB(t *testing.T) {
	s := &Spectrogram{Bins: 1, Frames: 4, Data: []float64{100, 10, 1, 0}}
	PowerToDB(s, 15)

	want := []float64{0, -10, -15, -15}
	for i := range want {
		if math.Abs(s.Data[i]-want[i]) > 1e-9 {
			t.Errorf("value %d: expected %f, got %f", i, want[i], s.Data[i])
		}
	}
}

func TestFrameRMS(t *testing.T) {
	samples := make([]float64, 4096)
	for i := range samples {
		samples[i] = 0.5
	}

	rms := FrameRMS(samples, 2048, 512)
	if len(rms) != 1+4096/512 {
		t.Fatalf("expected %d frames, got %d", 1+4096/512, len(rms))
	}

	// first frame is half zero padding
	if math.Abs(rms[0]-0.5/math.Sqrt2) > 1e-9 {
		t.Errorf("frame 0: expected %f, got %f", 0.5/math.Sqrt2, rms[0])
	}
	if math.Abs(rms[4]-0.5) > 1e-9 {
		t.Errorf("frame 4: expected 0.5, got %f", rms[4])
	}

	if FrameRMS(nil, 2048, 512) != nil {
		t.Error("expected nil for empty input")
	}
}
