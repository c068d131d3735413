package main

import (
	"fmt"
	"log/slog"

	"github.com/pegut0/ClassificadorSomIA/internal/audio"
	"github.com/pegut0/ClassificadorSomIA/internal/classifier"
	"github.com/pegut0/ClassificadorSomIA/internal/config"
	"github.com/pegut0/ClassificadorSomIA/internal/features"
	"github.com/pegut0/ClassificadorSomIA/internal/gate"
	"github.com/pegut0/ClassificadorSomIA/internal/labels"
	"github.com/pegut0/ClassificadorSomIA/internal/metrics"
	"github.com/pegut0/ClassificadorSomIA/internal/pipeline"
)

// buildEngine wires the decision engine and its model client from cfg
func buildEngine(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*pipeline.Engine, *classifier.TFServing, error) {
	normalizer, err := audio.NewNormalizer(audio.NormalizerConfig{
		SampleRate: cfg.Audio.SampleRate,
		Duration:   cfg.Audio.Duration,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create normalizer: %w", err)
	}

	extractor, err := features.NewExtractor(features.Config{
		SampleRate: cfg.Audio.SampleRate,
		FFTSize:    cfg.Features.FFTSize,
		HopLength:  cfg.Features.HopLength,
		NumMels:    cfg.Features.NumMels,
		LowFreq:    cfg.Features.LowFreq,
		HighFreq:   cfg.Features.HighFreq,
		TopDB:      cfg.Features.TopDB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create feature extractor: %w", err)
	}

	gates, err := gate.NewChain(gate.Thresholds{
		Silence:      cfg.Gates.Silence,
		Stationarity: cfg.Gates.Stationarity,
		Clarity:      cfg.Gates.Clarity,
	}, cfg.Gates.RMSFrameLength, cfg.Gates.RMSHopLength)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gates: %w", err)
	}

	classes, err := classifier.NewClassSet(cfg.Model.Classes...)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid class list: %w", err)
	}

	table, err := labels.NewTable(cfg.Labels.Translations)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid translation table: %w", err)
	}
	if missing := table.Missing(classes.Labels()); len(missing) > 0 {
		logger.Warn("Classes without translation are shown untranslated", "labels", missing)
	}

	model, err := classifier.NewTFServing(classifier.TFServingConfig{
		Endpoint:      cfg.Model.Endpoint,
		Model:         cfg.Model.Name,
		SignatureName: cfg.Model.SignatureName,
		Timeout:       cfg.Model.GetTimeoutDuration(),
		MaxRetries:    cfg.Model.MaxRetries,
		MaxConcurrent: cfg.Model.MaxConcurrent,
		RetryBackoff:  cfg.Model.GetRetryBackoffDuration(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create model client: %w", err)
	}

	engine, err := pipeline.New(pipeline.Config{
		Normalizer:   normalizer,
		Extractor:    extractor,
		Gates:        gates,
		Classifier:   model,
		Classes:      classes,
		Labels:       table,
		Unrecognized: cfg.Labels.Unrecognized,
		Logger:       logger,
		Metrics:      m,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	return engine, model, nil
}
