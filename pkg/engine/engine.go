package engine

import (
	"context"
	"errors"

	"github.com/taleweave/fable/pkg/config"
	"github.com/taleweave/fable/pkg/types"
)

// STT transcribes one audio file into text with timing segments.
type STT interface {
	Transcribe(ctx context.Context, audioPath string) (*types.Transcript, error)
}

// MT translates text between two language codes.
type MT interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// Metrics samples host resource usage for the worker's health gate.
type Metrics interface {
	Sample() (*types.SystemSample, error)
}

// HealthChecker is implemented by engines that can probe their backend.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Bundle groups the collaborators a worker needs to run pipelines.
type Bundle struct {
	STT     STT
	MT      MT
	Metrics Metrics
}

// FromConfig wires HTTP adapters for the configured backends. The
// client timeout matches the per-task budget since a single model call
// may legitimately run for minutes.
func FromConfig(cfg *config.Config) (*Bundle, error) {
	if cfg.STTEndpoint == "" || cfg.MTEndpoint == "" {
		return nil, errors.New("engine: STT and MT endpoints are required")
	}
	timeout := cfg.TaskDeadline()
	return &Bundle{
		STT:     NewHTTPSTT(cfg.STTEndpoint, cfg.STTModel, timeout),
		MT:      NewHTTPMT(cfg.MTEndpoint, timeout),
		Metrics: SystemMetrics{},
	}, nil
}

// Health probes every engine in the bundle that exposes a check.
func (b *Bundle) Health(ctx context.Context) error {
	for _, e := range []any{b.STT, b.MT} {
		if hc, ok := e.(HealthChecker); ok {
			if err := hc.Health(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}
