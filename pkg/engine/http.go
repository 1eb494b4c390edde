package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/taleweave/fable/pkg/types"
)

// HTTPSTT adapts a speech-to-text service speaking JSON over HTTP. The
// service shares the upload volume with the workers, so requests carry
// file paths rather than audio bytes.
type HTTPSTT struct {
	endpoint string
	model    string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
}

// NewHTTPSTT creates an adapter for the backend at endpoint. model
// selects which speech model the backend loads.
func NewHTTPSTT(endpoint, model string, timeout time.Duration) *HTTPSTT {
	return &HTTPSTT{
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: timeout},
		breaker:  gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "stt"}),
	}
}

type transcribeRequest struct {
	AudioPath string `json:"audio_path"`
	Model     string `json:"model,omitempty"`
}

// Transcribe sends the file to the backend and returns its transcript.
func (e *HTTPSTT) Transcribe(ctx context.Context, audioPath string) (*types.Transcript, error) {
	var out types.Transcript
	in := transcribeRequest{AudioPath: audioPath, Model: e.model}
	if err := postJSON(ctx, e.client, e.breaker, e.endpoint+"/transcribe", in, &out); err != nil {
		return nil, fmt.Errorf("failed to transcribe %s: %w", audioPath, err)
	}
	return &out, nil
}

// Health probes the backend's health endpoint.
func (e *HTTPSTT) Health(ctx context.Context) error {
	return checkHealth(ctx, e.client, e.endpoint)
}

// HTTPMT adapts a machine-translation service speaking JSON over HTTP.
type HTTPMT struct {
	endpoint string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
}

// NewHTTPMT creates an adapter for the backend at endpoint.
func NewHTTPMT(endpoint string, timeout time.Duration) *HTTPMT {
	return &HTTPMT{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		breaker:  gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "mt"}),
	}
}

type translateRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
}

type translateResponse struct {
	Translation string `json:"translation"`
}

// Translate sends text to the backend and returns the translation.
func (e *HTTPMT) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	in := translateRequest{Text: text, SourceLanguage: sourceLang, TargetLanguage: targetLang}
	var out translateResponse
	if err := postJSON(ctx, e.client, e.breaker, e.endpoint+"/translate", in, &out); err != nil {
		return "", fmt.Errorf("failed to translate to %s: %w", targetLang, err)
	}
	return out.Translation, nil
}

// Health probes the backend's health endpoint.
func (e *HTTPMT) Health(ctx context.Context) error {
	return checkHealth(ctx, e.client, e.endpoint)
}

// postJSON runs one JSON round trip through the breaker. Transport
// faults, non-200 statuses and undecodable bodies all count as breaker
// failures; once it opens, calls fail fast with gobreaker.ErrOpenState
// until the backend recovers.
func postJSON(ctx context.Context, client *http.Client, cb *gobreaker.CircuitBreaker, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	_, err = cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, bytes.TrimSpace(msg))
		}
		return nil, json.NewDecoder(resp.Body).Decode(out)
	})
	return err
}

func checkHealth(ctx context.Context, client *http.Client, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s/health returned %d", endpoint, resp.StatusCode)
	}
	return nil
}
