// Package features converts normalized waveforms into log mel spectrograms.
//
// The front-end mirrors the one the acoustic model was trained with:
//
//	FFTSize:   2048 (periodic Hann window)
//	HopLength: 512, centered frames with zero padding
//	NumMels:   128 (Slaney scale, area normalized)
//	dB scale:  10*log10(S/max(S)), clipped 80 dB below the maximum
//
// For a 5 s clip at 22050 Hz the output is a 128 x 216 matrix.
package features
