package audio

import "fmt"

// Waveform is a mono, fixed-rate, fixed-length clip
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// NormalizerConfig contains the target waveform shape
type NormalizerConfig struct {
	SampleRate int     // target sample rate in Hz (22050)
	Duration   float64 // target clip length in seconds (5)
}

// Normalizer decodes clips into Waveforms of exactly TargetLength samples.
// It holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	sampleRate   int
	targetLength int
}

// NewNormalizer creates a new Normalizer
func NewNormalizer(cfg NormalizerConfig) (*Normalizer, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.Duration <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %f", cfg.Duration)
	}

	return &Normalizer{
		sampleRate:   cfg.SampleRate,
		targetLength: int(cfg.Duration * float64(cfg.SampleRate)),
	}, nil
}

// SampleRate returns the target sample rate
func (n *Normalizer) SampleRate() int {
	return n.sampleRate
}

// TargetLength returns the number of samples in every normalized waveform
func (n *Normalizer) TargetLength() int {
	return n.targetLength
}

// Normalize decodes data and returns a mono waveform at the target rate and
// length. Decoding failures wrap ErrDecode.
func (n *Normalizer) Normalize(data []byte) (Waveform, error) {
	pcm, err := Decode(data)
	if err != nil {
		return Waveform{}, err
	}

	mono := Downmix(pcm.Samples, pcm.Channels)

	if pcm.SampleRate != n.sampleRate {
		mono, err = Resample(mono, pcm.SampleRate, n.sampleRate)
		if err != nil {
			return Waveform{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}

	return Waveform{
		Samples:    FitLength(mono, n.targetLength),
		SampleRate: n.sampleRate,
	}, nil
}

// Downmix averages interleaved channels into a mono signal
func Downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		out := make([]float64, len(interleaved))
		copy(out, interleaved)
		return out
	}

	frames := len(interleaved) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for ch := 0; ch < channels; ch++ {
			sum += interleaved[i*channels+ch]
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// FitLength pads samples with trailing zeros or truncates them to length
func FitLength(samples []float64, length int) []float64 {
	out := make([]float64, length)
	copy(out, samples)
	return out
}
