package ttsadapter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ProviderBClient calls provider B's voice-cloning API. Provider B's wire
// format differs from provider A's (base64-encoded sample, a nested
// "clip" envelope on synthesis) but the Adapter contract hides that.
type ProviderBClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewProviderBClient creates a provider B client with the given call
// timeout (spec.md §5's provider_call_timeout).
func NewProviderBClient(baseURL, apiKey string, callTimeout time.Duration) *ProviderBClient {
	return &ProviderBClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: callTimeout},
	}
}

type providerBCreateRequest struct {
	DisplayName  string `json:"display_name"`
	SampleBase64 string `json:"sample_base64"`
}

type providerBCreateResponse struct {
	ID string `json:"id"`
}

// CreateVoice registers a new cloned voice from a sample.
func (c *ProviderBClient) CreateVoice(ctx context.Context, sample []byte, name string) (string, error) {
	body, err := json.Marshal(providerBCreateRequest{
		DisplayName:  name,
		SampleBase64: base64.StdEncoding.EncodeToString(sample),
	})
	if err != nil {
		return "", fmt.Errorf("marshalling request: %w", err)
	}

	url := c.baseURL + "/api/clones"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling provider B: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider B returned HTTP %d", resp.StatusCode)
	}

	var result providerBCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return result.ID, nil
}

// DeleteVoice removes a remote voice.
func (c *ProviderBClient) DeleteVoice(ctx context.Context, remoteID string) error {
	url := fmt.Sprintf("%s/api/clones/%s", c.baseURL, remoteID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling provider B: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("provider B returned HTTP %d", resp.StatusCode)
	}
	return nil
}

type providerBSynthesizeRequest struct {
	Clip struct {
		Text string `json:"text"`
	} `json:"clip"`
}

type providerBSynthesizeResponse struct {
	AudioBase64 string `json:"audio_base64"`
}

// Synthesize renders text through a remote voice, returning raw audio bytes.
func (c *ProviderBClient) Synthesize(ctx context.Context, remoteID, text string) ([]byte, error) {
	var reqBody providerBSynthesizeRequest
	reqBody.Clip.Text = text
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/clones/%s/speak", c.baseURL, remoteID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling provider B: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, ErrRemoteVoiceMissing
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider B returned HTTP %d", resp.StatusCode)
	}

	var result providerBSynthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(result.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("decoding audio payload: %w", err)
	}
	return audio, nil
}
