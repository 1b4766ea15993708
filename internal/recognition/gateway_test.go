// File: internal/recognition/gateway_test.go
package recognition

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/gatecrash/api/schemas"
)

type scriptedClassifier struct {
	name       string
	readyErr   error
	readyCalls atomic.Int32
	res        schemas.RecognitionResult
	err        error
}

func (c *scriptedClassifier) Name() string { return c.name }

func (c *scriptedClassifier) Ready() error {
	c.readyCalls.Add(1)
	return c.readyErr
}

func (c *scriptedClassifier) Classify(ctx context.Context, image []byte, category string) (schemas.RecognitionResult, error) {
	return c.res, c.err
}

type scriptedTranscriber struct {
	name     string
	readyErr error
	text     string
	err      error
}

func (t *scriptedTranscriber) Name() string { return t.name }
func (t *scriptedTranscriber) Ready() error { return t.readyErr }
func (t *scriptedTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	return t.text, t.err
}

func TestGatewayClassifyFallsThroughFailures(t *testing.T) {
	broken := &scriptedClassifier{name: "broken", err: errors.New("model exploded")}
	working := &scriptedClassifier{name: "working", res: schemas.RecognitionResult{Match: true, Confidence: 0.8}}

	g := NewGatewayWith(zaptest.NewLogger(t), []Classifier{broken, working}, nil, nil)
	res, err := g.Classify(context.Background(), []byte("img"), "crosswalk")
	require.NoError(t, err)
	assert.True(t, res.Match)
	assert.Equal(t, "working", res.Backend)
}

func TestGatewayClassifySkipsUnavailableBackends(t *testing.T) {
	offline := &scriptedClassifier{name: "offline", readyErr: fmt.Errorf("%w: no model", ErrUnavailable)}
	working := &scriptedClassifier{name: "working", res: schemas.RecognitionResult{Match: true, Confidence: 0.9}}

	g := NewGatewayWith(zaptest.NewLogger(t), []Classifier{offline, working}, nil, nil)
	res, err := g.Classify(context.Background(), []byte("img"), "bus")
	require.NoError(t, err)
	assert.Equal(t, "working", res.Backend)
}

func TestGatewayClassifyAggregatesWhenExhausted(t *testing.T) {
	offline := &scriptedClassifier{name: "offline", readyErr: fmt.Errorf("%w: no key", ErrUnavailable)}
	broken := &scriptedClassifier{name: "broken", err: errors.New("boom")}

	g := NewGatewayWith(zaptest.NewLogger(t), []Classifier{offline, broken}, nil, nil)
	_, err := g.Classify(context.Background(), []byte("img"), "car")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoBackend)
	assert.Contains(t, err.Error(), "offline")
	assert.Contains(t, err.Error(), "boom")
}

func TestGatewayProbesAvailabilityOnce(t *testing.T) {
	c := &scriptedClassifier{name: "c", res: schemas.RecognitionResult{Match: true}}
	g := NewGatewayWith(zaptest.NewLogger(t), []Classifier{c}, nil, nil)

	for i := 0; i < 3; i++ {
		_, err := g.Classify(context.Background(), []byte("img"), "boat")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), c.readyCalls.Load())
}

func TestGatewayTranscribeFallback(t *testing.T) {
	dead := &scriptedTranscriber{name: "dead", readyErr: fmt.Errorf("%w: missing binary", ErrUnavailable)}
	g := NewGatewayWith(zaptest.NewLogger(t), nil, []Transcriber{dead}, nil)

	_, err := g.Transcribe(context.Background(), "/tmp/a.mp3")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoBackend)

	live := &scriptedTranscriber{name: "live", text: "seven three oh"}
	g = NewGatewayWith(zaptest.NewLogger(t), nil, []Transcriber{dead, live}, nil)
	text, err := g.Transcribe(context.Background(), "/tmp/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, "seven three oh", text)
}

func TestGatewayClassifyHonorsContext(t *testing.T) {
	working := &scriptedClassifier{name: "working", res: schemas.RecognitionResult{Match: true}}
	g := NewGatewayWith(zaptest.NewLogger(t), []Classifier{working}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Classify(ctx, []byte("img"), "car")
	assert.ErrorIs(t, err, context.Canceled)
}
