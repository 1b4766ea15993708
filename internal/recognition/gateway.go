// File: internal/recognition/gateway.go

// Package recognition fronts the heterogeneous classify/transcribe/OCR
// backends behind one uniform contract with ordered fallback. Callers never
// learn which backend served a request or why another one was skipped; they
// see an aggregate error only when every backend has failed.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/config"
)

// ErrNoBackend is returned when every backend in the chain is unavailable or
// failed at runtime. The aggregated per-backend causes are attached.
var ErrNoBackend = errors.New("no recognition backend could serve the request")

// ErrUnavailable marks a backend that is not installed or not configured, as
// opposed to one that ran and failed. Both advance the fallback chain.
var ErrUnavailable = errors.New("backend unavailable")

// Classifier answers "does this image contain <category>".
type Classifier interface {
	Name() string
	// Ready reports nil when the backend can serve requests, or an error
	// wrapping ErrUnavailable describing why not.
	Ready() error
	Classify(ctx context.Context, image []byte, category string) (schemas.RecognitionResult, error)
}

// Transcriber converts an audio asset on disk into text.
type Transcriber interface {
	Name() string
	Ready() error
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Recognizer runs OCR over an image file under one parameter profile.
type Recognizer interface {
	Name() string
	Ready() error
	Recognize(ctx context.Context, imagePath string, profile OCRProfile) (string, error)
}

// Gateway owns the ordered backend lists. Availability is probed once per
// instance and cached for its lifetime; the dispatcher constructs a fresh
// Gateway per resolution so the cache never outlives one solve call.
type Gateway struct {
	logger       *zap.Logger
	classifiers  []Classifier
	transcribers []Transcriber
	recognizers  []Recognizer

	probeOnce        sync.Once
	readyClassifiers []Classifier
	readyTranscribe  []Transcriber
	readyRecognize   []Recognizer
	probeErrs        map[string]error
}

// NewGateway builds the backend chain from configuration. preferLocal puts
// the on-disk model ahead of the cloud service; otherwise the cloud service
// leads because its accuracy is usually better.
func NewGateway(cfg config.RecognitionConfig, preferLocal bool, logger *zap.Logger) *Gateway {
	local := NewLocalModel(cfg.LocalModel, logger)
	cloud := NewCloudVision(cfg.CloudVision, logger)

	classifiers := []Classifier{cloud, local}
	if preferLocal {
		classifiers = []Classifier{local, cloud}
	}

	return &Gateway{
		logger:       logger.Named("recognition"),
		classifiers:  classifiers,
		transcribers: []Transcriber{NewSpeechBackend(cfg.Speech, logger)},
		recognizers:  []Recognizer{NewOCRBackend(cfg.OCR, logger)},
		probeErrs:    make(map[string]error),
	}
}

// NewGatewayWith assembles a gateway from explicit backends; used by tests
// and by callers with exotic backend sets.
func NewGatewayWith(logger *zap.Logger, classifiers []Classifier, transcribers []Transcriber, recognizers []Recognizer) *Gateway {
	return &Gateway{
		logger:       logger.Named("recognition"),
		classifiers:  classifiers,
		transcribers: transcribers,
		recognizers:  recognizers,
		probeErrs:    make(map[string]error),
	}
}

// probe partitions backends into ready and unavailable, once.
func (g *Gateway) probe() {
	g.probeOnce.Do(func() {
		for _, c := range g.classifiers {
			if err := c.Ready(); err != nil {
				g.probeErrs[c.Name()] = err
				g.logger.Debug("classifier unavailable", zap.String("backend", c.Name()), zap.Error(err))
				continue
			}
			g.readyClassifiers = append(g.readyClassifiers, c)
		}
		for _, t := range g.transcribers {
			if err := t.Ready(); err != nil {
				g.probeErrs[t.Name()] = err
				g.logger.Debug("transcriber unavailable", zap.String("backend", t.Name()), zap.Error(err))
				continue
			}
			g.readyTranscribe = append(g.readyTranscribe, t)
		}
		for _, r := range g.recognizers {
			if err := r.Ready(); err != nil {
				g.probeErrs[r.Name()] = err
				g.logger.Debug("recognizer unavailable", zap.String("backend", r.Name()), zap.Error(err))
				continue
			}
			g.readyRecognize = append(g.readyRecognize, r)
		}
	})
}

// Classify tries each ready classifier in order and returns the first
// verdict. Unavailability and runtime failure both advance the chain; the
// caller only sees an error when the whole chain is exhausted.
func (g *Gateway) Classify(ctx context.Context, image []byte, category string) (schemas.RecognitionResult, error) {
	g.probe()

	var errs error
	for name, err := range g.probeErrs {
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
	}

	for _, c := range g.readyClassifiers {
		if ctx.Err() != nil {
			return schemas.RecognitionResult{}, ctx.Err()
		}
		res, err := c.Classify(ctx, image, category)
		if err != nil {
			g.logger.Debug("classifier failed, trying next",
				zap.String("backend", c.Name()), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", c.Name(), err))
			continue
		}
		res.Backend = c.Name()
		return res, nil
	}

	return schemas.RecognitionResult{}, fmt.Errorf("%w: %w", ErrNoBackend, errs)
}

// Transcribe runs the transcriber chain over an audio file.
func (g *Gateway) Transcribe(ctx context.Context, audioPath string) (string, error) {
	g.probe()

	var errs error
	for _, t := range g.transcribers {
		if err, skipped := g.probeErrs[t.Name()]; skipped {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		}
	}

	for _, t := range g.readyTranscribe {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		text, err := t.Transcribe(ctx, audioPath)
		if err != nil {
			g.logger.Debug("transcriber failed, trying next",
				zap.String("backend", t.Name()), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", t.Name(), err))
			continue
		}
		return text, nil
	}

	return "", fmt.Errorf("%w: %w", ErrNoBackend, errs)
}

// Recognize runs the OCR chain under one profile.
func (g *Gateway) Recognize(ctx context.Context, imagePath string, profile OCRProfile) (string, error) {
	g.probe()

	var errs error
	for _, r := range g.recognizers {
		if err, skipped := g.probeErrs[r.Name()]; skipped {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", r.Name(), err))
		}
	}

	for _, r := range g.readyRecognize {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		text, err := r.Recognize(ctx, imagePath, profile)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", r.Name(), err))
			continue
		}
		return text, nil
	}

	return "", fmt.Errorf("%w: %w", ErrNoBackend, errs)
}
