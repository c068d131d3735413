// Package gate implements the three rejection checks that wrap the acoustic
// classifier: silence (waveform energy), stationarity (spectral variation over
// time) and clarity (margin between the two most probable classes).
//
// A failed gate is a decision, not an error: the caller reports the clip as
// unrecognized.
package gate

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/pegut0/ClassificadorSomIA/internal/features"
)

// Name identifies a gate
type Name string

const (
	Silence      Name = "silence"
	Stationarity Name = "stationarity"
	Clarity      Name = "clarity"
)

// Thresholds holds the offline-tuned rejection thresholds
type Thresholds struct {
	Silence      float64 // minimum mean frame RMS
	Stationarity float64 // minimum mean temporal std-dev in dB
	Clarity      float64 // minimum gap between top two probabilities
}

// DefaultThresholds returns the thresholds the model was calibrated with
func DefaultThresholds() Thresholds {
	return Thresholds{
		Silence:      0.01,
		Stationarity: 4.0,
		Clarity:      0.3,
	}
}

// Outcome is the result of a single gate check
type Outcome struct {
	Gate      Name    `json:"gate"`
	Passed    bool    `json:"passed"`
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
}

// String formats the outcome for log lines
func (o Outcome) String() string {
	verdict := "pass"
	if !o.Passed {
		verdict = "reject"
	}
	return fmt.Sprintf("%s %s (score %.4f, threshold %.4f)", o.Gate, verdict, o.Score, o.Threshold)
}

// Ranking holds the two most probable classes of a probability vector
type Ranking struct {
	Top        int
	TopProb    float64
	Second     int
	SecondProb float64
}

// Gap returns the margin between the top two probabilities
func (r Ranking) Gap() float64 {
	return r.TopProb - r.SecondProb
}

// Chain evaluates the gates with fixed thresholds. It is stateless and safe
// for concurrent use.
type Chain struct {
	thresholds  Thresholds
	frameLength int
	hopLength   int
}

// NewChain creates a gate chain. frameLength and hopLength configure the
// RMS framing of the silence gate.
func NewChain(thresholds Thresholds, frameLength, hopLength int) (*Chain, error) {
	if thresholds.Silence < 0 {
		return nil, fmt.Errorf("silence threshold cannot be negative, got %f", thresholds.Silence)
	}
	if thresholds.Stationarity < 0 {
		return nil, fmt.Errorf("stationarity threshold cannot be negative, got %f", thresholds.Stationarity)
	}
	if thresholds.Clarity < 0 || thresholds.Clarity > 1 {
		return nil, fmt.Errorf("clarity threshold must be between 0 and 1, got %f", thresholds.Clarity)
	}
	if frameLength <= 0 || hopLength <= 0 {
		return nil, fmt.Errorf("rms frame and hop length must be positive, got %d/%d", frameLength, hopLength)
	}

	return &Chain{
		thresholds:  thresholds,
		frameLength: frameLength,
		hopLength:   hopLength,
	}, nil
}

// CheckSilence rejects waveforms whose mean frame RMS is below the silence
// threshold.
func (c *Chain) CheckSilence(samples []float64) Outcome {
	score := 0.0
	if rms := features.FrameRMS(samples, c.frameLength, c.hopLength); len(rms) > 0 {
		score = stat.Mean(rms, nil)
	}
	return outcome(Silence, score, c.thresholds.Silence)
}

// CheckStationarity rejects spectrograms whose temporal variation, the mean
// over mel bins of the per-bin standard deviation across time, is below the
// stationarity threshold.
func (c *Chain) CheckStationarity(spec *features.Spectrogram) Outcome {
	return outcome(Stationarity, TemporalVariation(spec), c.thresholds.Stationarity)
}

// CheckClarity rejects probability vectors whose top two classes are closer
// than the clarity threshold, regardless of which class ranked first.
func (c *Chain) CheckClarity(probs []float64) (Outcome, Ranking) {
	r := Rank(probs)
	return outcome(Clarity, r.Gap(), c.thresholds.Clarity), r
}

// TemporalVariation averages the population standard deviation of every mel
// bin across time frames.
func TemporalVariation(spec *features.Spectrogram) float64 {
	if spec == nil || spec.Bins == 0 || spec.Frames == 0 {
		return 0
	}

	stds := make([]float64, spec.Bins)
	for m := range stds {
		stds[m] = stat.PopStdDev(spec.Row(m), nil)
	}
	return stat.Mean(stds, nil)
}

// Rank returns the indices and values of the two largest probabilities.
// Ties rank the lower index first. A vector with a single class has a second
// probability of zero.
func Rank(probs []float64) Ranking {
	r := Ranking{Top: -1, Second: -1}
	for i, p := range probs {
		switch {
		case r.Top < 0 || p > r.TopProb:
			r.Second, r.SecondProb = r.Top, r.TopProb
			r.Top, r.TopProb = i, p
		case r.Second < 0 || p > r.SecondProb:
			r.Second, r.SecondProb = i, p
		}
	}
	if r.Second < 0 {
		r.SecondProb = 0
	}
	return r
}

func outcome(name Name, score, threshold float64) Outcome {
	return Outcome{
		Gate:      name,
		Passed:    score >= threshold,
		Score:     score,
		Threshold: threshold,
	}
}
