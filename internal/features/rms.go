package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// FrameRMS computes root-mean-square energy over centered, zero-padded
// frames of frameLength samples taken every hop samples.
func FrameRMS(samples []float64, frameLength, hop int) []float64 {
	if frameLength <= 0 || hop <= 0 || len(samples) == 0 {
		return nil
	}

	half := frameLength / 2
	numFrames := 1 + len(samples)/hop
	rms := make([]float64, numFrames)

	for t := range rms {
		// padding contributes zeros, so only the overlap with samples counts
		start := max(t*hop-half, 0)
		end := min(t*hop-half+frameLength, len(samples))
		sum := 0.0
		if start < end {
			frame := samples[start:end]
			sum = floats.Dot(frame, frame)
		}
		rms[t] = math.Sqrt(sum / float64(frameLength))
	}
	return rms
}
