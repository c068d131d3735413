package features

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"github.com/pegut0/ClassificadorSomIA/internal/audio"
)

// ErrDegenerate is returned when extraction produces non-finite values
var ErrDegenerate = errors.New("degenerate feature output")

// amin is the power floor applied before taking logarithms
const amin = 1e-10

// Config controls mel spectrogram extraction
type Config struct {
	SampleRate int     // audio sample rate in Hz (22050)
	FFTSize    int     // FFT and window length in samples (2048)
	HopLength  int     // hop between frames in samples (512)
	NumMels    int     // number of mel bins (128)
	LowFreq    float64 // lowest filter edge in Hz (0)
	HighFreq   float64 // highest filter edge in Hz, 0 means Nyquist
	TopDB      float64 // dynamic range below the clip maximum, 0 disables clipping (80)
}

// DefaultConfig returns the parameters the acoustic model was trained with
func DefaultConfig() Config {
	return Config{
		SampleRate: 22050,
		FFTSize:    2048,
		HopLength:  512,
		NumMels:    128,
		LowFreq:    0,
		HighFreq:   0,
		TopDB:      80,
	}
}

// Spectrogram is a row-major [Bins][Frames] matrix of log-power values in dB
type Spectrogram struct {
	Bins   int
	Frames int
	Data   []float64
}

// NewSpectrogram allocates a zero-valued spectrogram
func NewSpectrogram(bins, frames int) *Spectrogram {
	return &Spectrogram{
		Bins:   bins,
		Frames: frames,
		Data:   make([]float64, bins*frames),
	}
}

// Set stores a value for a mel bin at a time frame
func (s *Spectrogram) Set(bin, frame int, v float64) {
	s.Data[bin*s.Frames+frame] = v
}

// Row returns the time series of one mel bin. The slice aliases Data.
func (s *Spectrogram) Row(bin int) []float64 {
	return s.Data[bin*s.Frames : (bin+1)*s.Frames]
}

// Finite reports whether every value is a finite real number
func (s *Spectrogram) Finite() bool {
	for _, v := range s.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Extractor computes log mel spectrograms. It only holds read-only tables
// and is safe for concurrent use.
type Extractor struct {
	cfg     Config
	window  []float64
	melBank [][]float64
}

// NewExtractor creates a new Extractor with the given config
func NewExtractor(cfg Config) (*Extractor, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.FFTSize < 2 {
		return nil, fmt.Errorf("fft size must be at least 2, got %d", cfg.FFTSize)
	}
	if cfg.HopLength <= 0 {
		return nil, fmt.Errorf("hop length must be positive, got %d", cfg.HopLength)
	}
	if cfg.NumMels <= 0 {
		return nil, fmt.Errorf("number of mel bins must be positive, got %d", cfg.NumMels)
	}

	nyquist := float64(cfg.SampleRate) / 2
	if cfg.HighFreq <= 0 || cfg.HighFreq > nyquist {
		cfg.HighFreq = nyquist
	}
	if cfg.LowFreq < 0 || cfg.LowFreq >= cfg.HighFreq {
		return nil, fmt.Errorf("low frequency must be in [0, %.0f), got %f", cfg.HighFreq, cfg.LowFreq)
	}

	return &Extractor{
		cfg:     cfg,
		window:  hannWindow(cfg.FFTSize),
		melBank: melFilterBank(cfg.NumMels, cfg.FFTSize, cfg.SampleRate, cfg.LowFreq, cfg.HighFreq),
	}, nil
}

// Config returns the effective extraction parameters
func (e *Extractor) Config() Config {
	return e.cfg
}

// FrameCount returns the number of time frames produced for n samples
func (e *Extractor) FrameCount(n int) int {
	return 1 + n/e.cfg.HopLength
}

// Extract computes the mel power spectrogram of w and converts it to dB
// relative to its own maximum.
func (e *Extractor) Extract(w audio.Waveform) (*Spectrogram, error) {
	if len(w.Samples) == 0 {
		return nil, fmt.Errorf("%w: empty waveform", ErrDegenerate)
	}
	if w.SampleRate != e.cfg.SampleRate {
		return nil, fmt.Errorf("waveform sample rate %d does not match extractor rate %d", w.SampleRate, e.cfg.SampleRate)
	}

	power := e.melPower(w.Samples)
	PowerToDB(power, e.cfg.TopDB)

	if !power.Finite() {
		return nil, fmt.Errorf("%w: non-finite values in spectrogram", ErrDegenerate)
	}
	return power, nil
}

// melPower computes a centered, zero-padded STFT and projects its power
// spectrum onto the mel filterbank.
func (e *Extractor) melPower(samples []float64) *Spectrogram {
	cfg := e.cfg
	nfft := cfg.FFTSize
	half := nfft / 2
	numFrames := e.FrameCount(len(samples))

	spec := NewSpectrogram(cfg.NumMels, numFrames)
	fft := fourier.NewFFT(nfft)
	frame := make([]float64, nfft)
	coeff := make([]complex128, nfft/2+1)
	power := make([]float64, nfft/2+1)

	for t := 0; t < numFrames; t++ {
		start := t*cfg.HopLength - half
		for i := 0; i < nfft; i++ {
			idx := start + i
			if idx >= 0 && idx < len(samples) {
				frame[i] = samples[idx] * e.window[i]
			} else {
				frame[i] = 0
			}
		}

		coeff = fft.Coefficients(coeff, frame)
		for k, c := range coeff {
			a := cmplx.Abs(c)
			power[k] = a * a
		}

		for m, filter := range e.melBank {
			spec.Set(m, t, floats.Dot(filter, power))
		}
	}

	return spec
}

// PowerToDB converts a power spectrogram to decibels in place, referenced to
// its maximum value so the loudest cell is 0 dB. Values more than topDB below
// the maximum are clipped; topDB <= 0 disables clipping.
func PowerToDB(s *Spectrogram, topDB float64) {
	if len(s.Data) == 0 {
		return
	}

	ref := 10 * math.Log10(math.Max(amin, floats.Max(s.Data)))
	for i, v := range s.Data {
		s.Data[i] = 10*math.Log10(math.Max(amin, v)) - ref
	}

	if topDB > 0 {
		floor := floats.Max(s.Data) - topDB
		for i, v := range s.Data {
			if v < floor {
				s.Data[i] = floor
			}
		}
	}
}
