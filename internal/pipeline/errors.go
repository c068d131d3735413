package pipeline

import (
	"errors"
	"fmt"

	"github.com/pegut0/ClassificadorSomIA/internal/audio"
	"github.com/pegut0/ClassificadorSomIA/internal/classifier"
	"github.com/pegut0/ClassificadorSomIA/internal/features"
)

// Kind classifies pipeline failures
type Kind string

const (
	KindDecode           Kind = "decode"
	KindFeature          Kind = "feature"
	KindModelUnavailable Kind = "model_unavailable"
	KindInternal         Kind = "internal"
)

// Error is the single failure type returned by Engine.Classify
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of a pipeline error, or KindInternal for any
// other non-nil error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return classify(err)
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, audio.ErrDecode):
		return KindDecode
	case errors.Is(err, features.ErrDegenerate):
		return KindFeature
	case errors.Is(err, classifier.ErrModelUnavailable):
		return KindModelUnavailable
	default:
		return KindInternal
	}
}

func wrap(err error) *Error {
	return &Error{Kind: classify(err), Err: err}
}
