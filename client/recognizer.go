package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrSessionNotFound means the analysis service no longer knows the session.
// The session is terminal: its result can never be retrieved, so the caller
// must drop it from the recovery ledger rather than retry forever.
var ErrSessionNotFound = errors.New("analysis session not found")

// AnalysisResult is the sentiment output for one recording.
type AnalysisResult struct {
	SessionID string  `json:"sessionId"`
	Status    string  `json:"status"` // "processing" or "done"
	Sentiment string  `json:"sentiment,omitempty"`
	Score     float64 `json:"score,omitempty"`
}

// Recognizer submits captured audio for sentiment analysis and polls for
// results. Submit returns a session ID that survives app restarts via the
// SessionLedger.
type Recognizer interface {
	Submit(ctx context.Context, audio io.Reader) (sessionID string, err error)
	Poll(ctx context.Context, sessionID string) (*AnalysisResult, error)
}

// HTTPRecognizer talks to the analysis service over HTTP.
type HTTPRecognizer struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewHTTPRecognizer(baseURL, apiKey string) *HTTPRecognizer {
	return &HTTPRecognizer{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (r *HTTPRecognizer) Submit(ctx context.Context, audio io.Reader) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/sessions", audio)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to submit audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("analysis submit failed: status %d", resp.StatusCode)
	}

	var body struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.SessionID == "" {
		return "", errors.New("analysis service returned no session id")
	}
	return body.SessionID, nil
}

func (r *HTTPRecognizer) Poll(ctx context.Context, sessionID string) (*AnalysisResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/v1/sessions/"+sessionID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to poll session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, ErrSessionNotFound
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("poll failed: status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var result AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	result.SessionID = sessionID
	return &result, nil
}
