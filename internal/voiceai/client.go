// Package voiceai is the HTTP adapter for the voice-AI calling provider.
//
// Rules:
//   - No provider HTTP calls outside this package.
//   - Request/response types stay provider-shaped; the lifecycle engine maps
//     them onto the local Call model.
package voiceai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// API is the provider surface consumed by the call lifecycle engine.
type API interface {
	// StartCall places an outbound call and returns the provider call id.
	StartCall(ctx context.Context, req StartCallRequest) (StartCallResult, error)
	// GetCall fetches the current provider-side state of one call.
	GetCall(ctx context.Context, callID string) (ProviderCall, error)
	// ListCalls returns the complete snapshot of calls known to the provider.
	ListCalls(ctx context.Context) ([]ProviderCall, error)
}

type StartCallRequest struct {
	PhoneNumber string `json:"phone_number"`
	Task        string `json:"task"`

	Voice           string `json:"voice,omitempty"`
	WaitForGreeting bool   `json:"wait_for_greeting"`
	Record          bool   `json:"record"`
	AnsweredByCheck bool   `json:"answered_by_enabled"`
	MaxDuration     int    `json:"max_duration,omitempty"`
	Model           string `json:"model,omitempty"`
	Language        string `json:"language,omitempty"`
	VoicemailAction string `json:"voicemail_action,omitempty"`

	// LocalCallID is echoed back by the provider in webhook metadata.
	LocalCallID string `json:"metadata_call_id,omitempty"`

	WebhookURL string `json:"webhook_url,omitempty"`
}

type StartCallResult struct {
	CallID string `json:"call_id"`
}

// ProviderCall is one provider-side call record as returned by GetCall and
// ListCalls. Duration may arrive as whole seconds ("duration") or as the
// legacy minutes float ("call_length"); transcripts and responses are
// aliases for the same payload across provider versions.
type ProviderCall struct {
	CallID     string  `json:"call_id"`
	Status     string  `json:"status"`
	ToNumber   string  `json:"to_number"`
	FromNumber string  `json:"from_number"`
	Duration   int     `json:"duration"`
	CallLength float64 `json:"call_length"`

	RecordingURL string          `json:"recording_url"`
	Transcripts  json.RawMessage `json:"transcripts"`
	Responses    json.RawMessage `json:"responses"`
	Summary      string          `json:"summary"`
	Script       string          `json:"script"`

	Model     string `json:"model"`
	PathwayID string `json:"pathway_id"`

	AnsweredBy  string `json:"answered_by"`
	CallEndedBy string `json:"call_ended_by"`
}

// DurationSeconds resolves the duration alias pair to whole seconds.
func (p ProviderCall) DurationSeconds() int {
	if p.Duration > 0 {
		return p.Duration
	}
	if p.CallLength > 0 {
		return int(p.CallLength * 60)
	}
	return 0
}

// TranscriptData returns the raw transcript payload, if any.
func (p ProviderCall) TranscriptData() (string, bool) {
	for _, raw := range []json.RawMessage{p.Transcripts, p.Responses} {
		if len(raw) > 0 && string(raw) != "null" {
			return string(raw), true
		}
	}
	return "", false
}

// PathwayTag resolves the model/pathway alias pair.
func (p ProviderCall) PathwayTag() string {
	if p.PathwayID != "" {
		return p.PathwayID
	}
	return p.Model
}

type Config struct {
	BaseURL    string
	APIKey     string
	WebhookURL string
	Timeout    time.Duration
}

// Client talks to the provider REST API. It implements API.
type Client struct {
	baseURL    string
	apiKey     string
	webhookURL string
	http       *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		webhookURL: cfg.WebhookURL,
		http:       &http.Client{Timeout: timeout},
	}
}

func (c *Client) StartCall(ctx context.Context, req StartCallRequest) (StartCallResult, error) {
	if req.WebhookURL == "" {
		req.WebhookURL = c.webhookURL
	}
	applyStartDefaults(&req)

	var out StartCallResult
	if err := c.do(ctx, http.MethodPost, "/v1/calls", req, &out); err != nil {
		return StartCallResult{}, err
	}
	if out.CallID == "" {
		return StartCallResult{}, fmt.Errorf("voiceai: start call response missing call_id")
	}
	return out, nil
}

func (c *Client) GetCall(ctx context.Context, callID string) (ProviderCall, error) {
	var out ProviderCall
	if err := c.do(ctx, http.MethodGet, "/v1/calls/"+callID, nil, &out); err != nil {
		return ProviderCall{}, err
	}
	return out, nil
}

func (c *Client) ListCalls(ctx context.Context) ([]ProviderCall, error) {
	var out struct {
		Calls []ProviderCall `json:"calls"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/calls", nil, &out); err != nil {
		return nil, err
	}
	return out.Calls, nil
}

func applyStartDefaults(req *StartCallRequest) {
	if req.Voice == "" {
		req.Voice = "June"
	}
	if req.MaxDuration <= 0 {
		req.MaxDuration = 12
	}
	if req.Model == "" {
		req.Model = "base"
	}
	if req.Language == "" {
		req.Language = "en"
	}
	if req.VoicemailAction == "" {
		req.VoicemailAction = "hangup"
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("voiceai: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read a bounded slice of the body for the log line; the detail is
		// never surfaced to API callers.
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("voiceai: %s %s: status %d: %s", method, path, resp.StatusCode, detail)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
