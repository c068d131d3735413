// Package audio turns encoded audio clips into fixed-length mono waveforms.
// It sniffs the container (WAV, FLAC or MP3), decodes it to PCM, downmixes to
// mono, resamples to the target rate and pads or truncates to the target
// duration so downstream feature extraction always sees the same shape.
package audio
