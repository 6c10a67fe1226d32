package ttsadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ProviderAClient calls provider A's voice-cloning API.
type ProviderAClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewProviderAClient creates a provider A client with the given call
// timeout (spec.md §5's provider_call_timeout).
func NewProviderAClient(baseURL, apiKey string, callTimeout time.Duration) *ProviderAClient {
	return &ProviderAClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: callTimeout},
	}
}

type providerACreateRequest struct {
	Name   string `json:"name"`
	Sample []byte `json:"sample"`
}

type providerACreateResponse struct {
	VoiceID string `json:"voice_id"`
}

// CreateVoice registers a new cloned voice from a sample.
func (c *ProviderAClient) CreateVoice(ctx context.Context, sample []byte, name string) (string, error) {
	body, err := json.Marshal(providerACreateRequest{Name: name, Sample: sample})
	if err != nil {
		return "", fmt.Errorf("marshalling request: %w", err)
	}

	url := c.baseURL + "/v1/voices"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling provider A: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("provider A returned HTTP %d", resp.StatusCode)
	}

	var result providerACreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return result.VoiceID, nil
}

// DeleteVoice removes a remote voice.
func (c *ProviderAClient) DeleteVoice(ctx context.Context, remoteID string) error {
	url := fmt.Sprintf("%s/v1/voices/%s", c.baseURL, remoteID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling provider A: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("provider A returned HTTP %d", resp.StatusCode)
	}
	return nil
}

type providerASynthesizeRequest struct {
	Text string `json:"text"`
}

// Synthesize renders text through a remote voice, returning raw audio bytes.
func (c *ProviderAClient) Synthesize(ctx context.Context, remoteID, text string) ([]byte, error) {
	body, err := json.Marshal(providerASynthesizeRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/voices/%s/synthesize", c.baseURL, remoteID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling provider A: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrRemoteVoiceMissing
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider A returned HTTP %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading audio response: %w", err)
	}
	return audio, nil
}
