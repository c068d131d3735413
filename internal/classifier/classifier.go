// Package classifier defines the contract of the pre-trained acoustic model
// and provides a TensorFlow Serving REST client that fulfils it.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/pegut0/ClassificadorSomIA/internal/features"
)

// ErrModelUnavailable is returned when the model is missing, unreachable or
// produces output that does not match the ClassSet.
var ErrModelUnavailable = errors.New("model unavailable")

// Classifier predicts class probabilities for a single spectrogram.
// The returned vector is ordered like the ClassSet the model was trained with.
type Classifier interface {
	Predict(ctx context.Context, spec *features.Spectrogram) ([]float64, error)
}

// ClassSet is the immutable, ordered list of labels the model predicts
type ClassSet struct {
	labels []string
}

// DefaultLabels are the six environmental sound classes of the model
var DefaultLabels = []string{
	"clock_alarm",
	"crying_baby",
	"dog",
	"door_wood_knock",
	"glass_breaking",
	"siren",
}

// NewClassSet creates a ClassSet. Labels must be non-empty and unique.
func NewClassSet(labels ...string) (ClassSet, error) {
	if len(labels) < 2 {
		return ClassSet{}, fmt.Errorf("class set needs at least 2 labels, got %d", len(labels))
	}

	seen := make(map[string]bool, len(labels))
	for i, label := range labels {
		if label == "" {
			return ClassSet{}, fmt.Errorf("label %d is empty", i)
		}
		if seen[label] {
			return ClassSet{}, fmt.Errorf("duplicate label %q", label)
		}
		seen[label] = true
	}

	owned := make([]string, len(labels))
	copy(owned, labels)
	return ClassSet{labels: owned}, nil
}

// Len returns the number of classes
func (c ClassSet) Len() int {
	return len(c.labels)
}

// Label returns the label at index i
func (c ClassSet) Label(i int) string {
	return c.labels[i]
}

// Labels returns a copy of the labels in model order
func (c ClassSet) Labels() []string {
	out := make([]string, len(c.labels))
	copy(out, c.labels)
	return out
}

// CheckOutput verifies that probs matches the ClassSet dimensionality and
// that every value is a probability in [0, 1]. Logits are rejected.
func (c ClassSet) CheckOutput(probs []float64) error {
	if len(probs) != len(c.labels) {
		return fmt.Errorf("%w: model returned %d probabilities, class set has %d labels",
			ErrModelUnavailable, len(probs), len(c.labels))
	}
	for i, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("%w: probability %d is not finite", ErrModelUnavailable, i)
		}
		if p < 0 || p > 1 {
			return fmt.Errorf("%w: probability %d is %g, outside [0, 1]", ErrModelUnavailable, i, p)
		}
	}
	return nil
}
