package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taleweave/fable/pkg/types"
)

func TestHTTPSTTTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transcribe", r.URL.Path)

		var req transcribeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "uploads/segment_001.mp3", req.AudioPath)
		assert.Equal(t, "base", req.Model)

		json.NewEncoder(w).Encode(types.Transcript{
			Text: "once upon a time",
			Segments: []types.TranscriptSegment{
				{ID: 0, Start: 0, End: 2.4, Text: "once upon a time"},
			},
		})
	}))
	defer srv.Close()

	stt := NewHTTPSTT(srv.URL, "base", time.Minute)
	got, err := stt.Transcribe(context.Background(), "uploads/segment_001.mp3")
	require.NoError(t, err)
	assert.Equal(t, "once upon a time", got.Text)
	require.Len(t, got.Segments, 1)
	assert.Equal(t, 2.4, got.Segments[0].End)
}

func TestHTTPMTTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/translate", r.URL.Path)

		var req translateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req.Text)
		assert.Equal(t, "en", req.SourceLanguage)
		assert.Equal(t, "ja", req.TargetLanguage)

		json.NewEncoder(w).Encode(translateResponse{Translation: "こんにちは"})
	}))
	defer srv.Close()

	mt := NewHTTPMT(srv.URL, time.Minute)
	got, err := mt.Translate(context.Background(), "hello", "en", "ja")
	require.NoError(t, err)
	assert.Equal(t, "こんにちは", got)
}

func TestHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	mt := NewHTTPMT(srv.URL, time.Minute)
	_, err := mt.Translate(context.Background(), "hello", "en", "ja")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	mt := NewHTTPMT(srv.URL, time.Minute)
	ctx := context.Background()

	var err error
	for i := 0; i < 10; i++ {
		_, err = mt.Translate(ctx, "hello", "en", "ja")
		require.Error(t, err)
	}

	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Less(t, hits, 10, "open breaker must stop hitting the backend")
}

func TestHealth(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	sick := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer sick.Close()

	ctx := context.Background()
	assert.NoError(t, NewHTTPSTT(healthy.URL, "base", time.Minute).Health(ctx))
	assert.Error(t, NewHTTPMT(sick.URL, time.Minute).Health(ctx))
}

type staticSTT struct{}

func (staticSTT) Transcribe(context.Context, string) (*types.Transcript, error) {
	return &types.Transcript{}, nil
}

type staticMT struct{}

func (staticMT) Translate(context.Context, string, string, string) (string, error) {
	return "", nil
}

func TestBundleHealth(t *testing.T) {
	probes := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			probes++
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b := &Bundle{
		STT: NewHTTPSTT(srv.URL, "base", time.Minute),
		MT:  NewHTTPMT(srv.URL, time.Minute),
	}
	require.NoError(t, b.Health(context.Background()))
	assert.Equal(t, 2, probes)

	// Engines without a probe are simply skipped.
	plain := &Bundle{STT: staticSTT{}, MT: staticMT{}}
	assert.NoError(t, plain.Health(context.Background()))
}
