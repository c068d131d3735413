package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/pegut0/ClassificadorSomIA/internal/audio"
	"github.com/pegut0/ClassificadorSomIA/internal/classifier"
	"github.com/pegut0/ClassificadorSomIA/internal/features"
	"github.com/pegut0/ClassificadorSomIA/internal/gate"
	"github.com/pegut0/ClassificadorSomIA/internal/labels"
	"github.com/pegut0/ClassificadorSomIA/internal/metrics"
)

// Verdict is the outcome of classifying one clip. Label is the display
// label; Class is the internal label and stays empty when the clip is
// unrecognized, in which case Confidence is 0 and Rejected names the gate
// that failed. Gates lists every gate evaluated, in order.
type Verdict struct {
	Label      string         `json:"prediction"`
	Class      string         `json:"class,omitempty"`
	Confidence float64        `json:"confidence"`
	Recognized bool           `json:"recognized"`
	Rejected   *gate.Outcome  `json:"rejected_by,omitempty"`
	Gates      []gate.Outcome `json:"gates"`
}

// ConfidenceString formats the confidence with two decimal places
func (v Verdict) ConfidenceString() string {
	return strconv.FormatFloat(v.Confidence, 'f', 2, 64)
}

// Config wires the engine dependencies
type Config struct {
	Normalizer   *audio.Normalizer
	Extractor    *features.Extractor
	Gates        *gate.Chain
	Classifier   classifier.Classifier
	Classes      classifier.ClassSet
	Labels       *labels.Table
	Unrecognized string // sentinel internal label, defaults to labels.Unrecognized
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// Stats represents engine statistics
type Stats struct {
	Requests       uint64               `json:"requests"`
	Recognized     uint64               `json:"recognized"`
	Unrecognized   uint64               `json:"unrecognized"`
	Failed         uint64               `json:"failed"`
	RejectedBy     map[gate.Name]uint64 `json:"rejected_by"`
	ErrorsByKind   map[Kind]uint64      `json:"errors_by_kind"`
	ModelAvailable bool                 `json:"model_available"`
	ModelError     string               `json:"model_error,omitempty"`
	LastVerified   time.Time            `json:"last_verified"`
}

// Engine runs the decision pipeline. It is safe for concurrent use.
type Engine struct {
	normalizer *audio.Normalizer
	extractor  *features.Extractor
	gates      *gate.Chain
	model      classifier.Classifier
	classes    classifier.ClassSet
	labels     *labels.Table
	sentinel   string
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// model verification state
	modelErr     error
	lastVerified time.Time

	// Statistics
	requests     uint64
	recognized   uint64
	unrecognized uint64
	rejected     map[gate.Name]uint64
	failed       map[Kind]uint64

	mu sync.RWMutex
}

// statusChecker is implemented by classifiers that can report readiness
// without running a prediction.
type statusChecker interface {
	Status(ctx context.Context) (*classifier.ModelStatus, error)
}

// New creates an Engine. A missing classifier is reported as
// classifier.ErrModelUnavailable.
func New(cfg Config) (*Engine, error) {
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("%w: no classifier configured", classifier.ErrModelUnavailable)
	}
	if cfg.Normalizer == nil || cfg.Extractor == nil || cfg.Gates == nil {
		return nil, fmt.Errorf("normalizer, extractor and gates are required")
	}
	if cfg.Classes.Len() == 0 {
		return nil, fmt.Errorf("class set cannot be empty")
	}
	if cfg.Normalizer.SampleRate() != cfg.Extractor.Config().SampleRate {
		return nil, fmt.Errorf("normalizer rate %d does not match extractor rate %d",
			cfg.Normalizer.SampleRate(), cfg.Extractor.Config().SampleRate)
	}
	if cfg.Unrecognized == "" {
		cfg.Unrecognized = labels.Unrecognized
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Engine{
		normalizer: cfg.Normalizer,
		extractor:  cfg.Extractor,
		gates:      cfg.Gates,
		model:      cfg.Classifier,
		classes:    cfg.Classes,
		labels:     cfg.Labels,
		sentinel:   cfg.Unrecognized,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		rejected:   make(map[gate.Name]uint64),
		failed:     make(map[Kind]uint64),
	}, nil
}

// Classes returns the class set the engine reports on
func (e *Engine) Classes() classifier.ClassSet {
	return e.classes
}

// Verify checks that the classifier is reachable and that its output matches
// the ClassSet, by probing it with a silent spectrogram of the expected shape.
// The result is remembered: after a failed Verify every Classify fails with
// KindModelUnavailable until a later Verify succeeds.
func (e *Engine) Verify(ctx context.Context) error {
	err := e.probe(ctx)
	if err != nil && !errors.Is(err, classifier.ErrModelUnavailable) {
		err = fmt.Errorf("%w: %v", classifier.ErrModelUnavailable, err)
	}

	e.mu.Lock()
	e.modelErr = err
	e.lastVerified = time.Now()
	e.mu.Unlock()

	e.metrics.SetModelAvailable(err == nil)
	if err != nil {
		e.logger.Error("Model verification failed", "error", err)
		return err
	}

	e.logger.Info("Model verified", "classes", e.classes.Len())
	return nil
}

func (e *Engine) probe(ctx context.Context) error {
	if sc, ok := e.model.(statusChecker); ok {
		if _, err := sc.Status(ctx); err != nil {
			return err
		}
	}

	cfg := e.extractor.Config()
	spec := features.NewSpectrogram(cfg.NumMels, e.extractor.FrameCount(e.normalizer.TargetLength()))
	probs, err := e.model.Predict(ctx, spec)
	if err != nil {
		return err
	}
	return e.classes.CheckOutput(probs)
}

// Ready returns the error of the last failed Verify, or nil
func (e *Engine) Ready() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.modelErr
}

// Classify runs the pipeline on raw audio bytes. Gate rejections produce an
// unrecognized Verdict with a nil error; every failure is an *Error.
func (e *Engine) Classify(ctx context.Context, data []byte) (v Verdict, err error) {
	start := time.Now()
	requestID := RequestID(ctx)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Pipeline panic",
				"request_id", requestID,
				"panic", r,
				"stack", string(debug.Stack()))
			v, err = Verdict{}, &Error{Kind: KindInternal, Err: fmt.Errorf("panic: %v", r)}
		}

		var pe *Error
		if errors.As(err, &pe) {
			e.recordFailure(pe.Kind)
			e.logger.Warn("Classification failed",
				"request_id", requestID,
				"kind", string(pe.Kind),
				"error", pe.Err,
				"elapsed", time.Since(start))
			return
		}
		e.recordVerdict(v)
		e.logger.Info("Classification",
			"request_id", requestID,
			"prediction", v.Label,
			"confidence", v.ConfidenceString(),
			"class", v.Class,
			"gate", gateName(v.Rejected),
			"score", gateScore(v.Rejected),
			"elapsed", time.Since(start))
	}()

	e.incrementRequests()
	e.metrics.RecordAudioSize(len(data))

	if err := e.Ready(); err != nil {
		return Verdict{}, &Error{Kind: KindModelUnavailable, Err: err}
	}

	stageStart := time.Now()
	wave, err := e.normalizer.Normalize(data)
	e.metrics.RecordStage("normalize", time.Since(stageStart).Seconds())
	if err != nil {
		return Verdict{}, wrap(err)
	}

	var outcomes []gate.Outcome

	silence := e.gates.CheckSilence(wave.Samples)
	outcomes = append(outcomes, silence)
	e.metrics.RecordGateScore(string(silence.Gate), silence.Score)
	if !silence.Passed {
		return e.reject(silence, outcomes), nil
	}

	stageStart = time.Now()
	spec, err := e.extractor.Extract(wave)
	e.metrics.RecordStage("extract", time.Since(stageStart).Seconds())
	if err != nil {
		return Verdict{}, wrap(err)
	}

	stationarity := e.gates.CheckStationarity(spec)
	outcomes = append(outcomes, stationarity)
	e.metrics.RecordGateScore(string(stationarity.Gate), stationarity.Score)
	if !stationarity.Passed {
		return e.reject(stationarity, outcomes), nil
	}

	probs, err := e.predict(ctx, spec)
	if err != nil {
		return Verdict{}, wrap(err)
	}

	clarity, rank := e.gates.CheckClarity(probs)
	outcomes = append(outcomes, clarity)
	e.metrics.RecordGateScore(string(clarity.Gate), clarity.Score)
	if !clarity.Passed {
		return e.reject(clarity, outcomes), nil
	}

	class := e.classes.Label(rank.Top)
	return Verdict{
		Label:      e.labels.Translate(class),
		Class:      class,
		Confidence: rank.TopProb,
		Recognized: true,
		Gates:      outcomes,
	}, nil
}

func (e *Engine) predict(ctx context.Context, spec *features.Spectrogram) ([]float64, error) {
	start := time.Now()
	probs, err := e.model.Predict(ctx, spec)
	if err == nil {
		err = e.classes.CheckOutput(probs)
	}
	e.metrics.RecordStage("predict", time.Since(start).Seconds())

	if err != nil {
		e.metrics.RecordModelFailure(time.Since(start).Seconds())
		return nil, err
	}
	e.metrics.RecordModelSuccess(time.Since(start).Seconds())
	return probs, nil
}

func (e *Engine) reject(failed gate.Outcome, outcomes []gate.Outcome) Verdict {
	return Verdict{
		Label:      e.labels.Translate(e.sentinel),
		Confidence: 0,
		Rejected:   &failed,
		Gates:      outcomes,
	}
}

func gateName(o *gate.Outcome) string {
	if o == nil {
		return ""
	}
	return string(o.Gate)
}

func gateScore(o *gate.Outcome) float64 {
	if o == nil {
		return 0
	}
	return o.Score
}

func (e *Engine) incrementRequests() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests++
}

func (e *Engine) recordVerdict(v Verdict) {
	e.mu.Lock()
	if v.Recognized {
		e.recognized++
	} else {
		e.unrecognized++
		if v.Rejected != nil {
			e.rejected[v.Rejected.Gate]++
		}
	}
	e.mu.Unlock()

	if v.Recognized {
		e.metrics.RecordVerdict(v.Class, v.Confidence)
	} else if v.Rejected != nil {
		e.metrics.RecordRejection(string(v.Rejected.Gate))
	}
}

func (e *Engine) recordFailure(kind Kind) {
	e.mu.Lock()
	e.failed[kind]++
	e.mu.Unlock()

	e.metrics.RecordPipelineError(string(kind))
}

// GetStats returns current engine statistics
func (e *Engine) GetStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := Stats{
		Requests:       e.requests,
		Recognized:     e.recognized,
		Unrecognized:   e.unrecognized,
		RejectedBy:     make(map[gate.Name]uint64, len(e.rejected)),
		ErrorsByKind:   make(map[Kind]uint64, len(e.failed)),
		ModelAvailable: e.modelErr == nil,
		LastVerified:   e.lastVerified,
	}
	for k, n := range e.rejected {
		stats.RejectedBy[k] = n
	}
	for k, n := range e.failed {
		stats.ErrorsByKind[k] = n
		stats.Failed += n
	}
	if e.modelErr != nil {
		stats.ModelError = e.modelErr.Error()
	}
	return stats
}
