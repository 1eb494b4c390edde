package framework

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/taleweave/fable/pkg/types"
)

// StubSTT is a scriptable speech-to-text engine. By default it returns
// a deterministic transcript derived from the file name; tests can
// inject failures, block calls or override the transcript.
type StubSTT struct {
	mu         sync.Mutex
	err        error
	healthErr  error
	transcript func(path string) string
	gate       chan struct{}
	calls      int
}

func NewStubSTT() *StubSTT {
	return &StubSTT{}
}

func (s *StubSTT) Transcribe(ctx context.Context, audioPath string) (*types.Transcript, error) {
	s.mu.Lock()
	gate := s.gate
	err := s.err
	transcript := s.transcript
	s.calls++
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("transcript of %s", fileID(audioPath))
	if transcript != nil {
		text = transcript(audioPath)
	}
	return &types.Transcript{
		Text:     text,
		Segments: []types.TranscriptSegment{{ID: 0, Start: 0, End: 1, Text: text}},
	}, nil
}

// Fail makes every following call return err (nil restores success).
func (s *StubSTT) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// SetTranscript overrides the produced text per audio path.
func (s *StubSTT) SetTranscript(fn func(path string) string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = fn
}

// Block makes following calls wait on the returned channel; close it
// to release them. Blocked calls still honor context cancellation.
func (s *StubSTT) Block() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
	return s.gate
}

// Unblock removes a previously installed gate for future calls.
func (s *StubSTT) Unblock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = nil
}

func (s *StubSTT) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *StubSTT) Health(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthErr
}

// SetHealth scripts the health probe (nil means healthy).
func (s *StubSTT) SetHealth(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthErr = err
}

// StubMT is a scriptable translation engine producing deterministic
// "[target] text" translations.
type StubMT struct {
	mu        sync.Mutex
	err       error
	healthErr error
	calls     int
}

func NewStubMT() *StubMT {
	return &StubMT{}
}

func (m *StubMT) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	m.mu.Lock()
	err := m.err
	m.calls++
	m.mu.Unlock()

	if err != nil {
		return "", err
	}
	return fmt.Sprintf("[%s] %s", targetLang, text), nil
}

func (m *StubMT) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *StubMT) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *StubMT) Health(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthErr
}

func (m *StubMT) SetHealth(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthErr = err
}

// StubMetrics reports a fixed host sample so the worker health gate is
// deterministic in tests.
type StubMetrics struct {
	mu     sync.Mutex
	sample types.SystemSample
}

func NewStubMetrics() *StubMetrics {
	return &StubMetrics{sample: types.SystemSample{
		CPUPercent:        10,
		MemoryPercent:     40,
		MemoryAvailableGB: 8,
	}}
}

func (m *StubMetrics) Sample() (*types.SystemSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sample
	return &s, nil
}

func (m *StubMetrics) SetMemoryPercent(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sample.MemoryPercent = v
}

// fileID mirrors the pipeline's file id derivation: base name without
// the extension.
func fileID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
