// Package chatterbox adapts the Chatterbox model server to core.VoiceModel.
//
// The models run in a co-located inference server; this package speaks its
// HTTP API: load a model onto a device, generate speech as WAV, list the
// languages of the multilingual model and report health.
package chatterbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"
)

// API endpoints and paths.
const (
	apiLoadModel      = "/v1/models/load"
	apiGenerateSpeech = "/v1/generate/speech"
	apiLanguages      = "/v1/languages"
	apiHealth         = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

// Error messages.
const (
	errFmtUnexpectedContentType = "%w: expected audio/wav, got %s"
	errFmtServiceErrorWithCode  = "%w (%s): %s (code: %s)"
	errFmtServiceNonOKStatus    = "%w: %s, body: %s"
)

var (
	ErrTextEmpty             = errors.New("text cannot be empty")
	ErrUnexpectedContentType = errors.New("unexpected content type")
	ErrEmptyAudio            = errors.New("received empty audio data")
	ErrServiceStatus         = errors.New("model server error")
)

// Client talks to the Chatterbox model server.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// SpeechRequest is the JSON payload of a generation call.
// Nil sampling fields are omitted; only the English model reads them.
type SpeechRequest struct {
	Model string `json:"model"`
	Text  string `json:"text"`
	// Language is only read by the multilingual model.
	Language string `json:"language,omitempty"`
	// SpeakerRefPath is a path to reference audio readable by the server.
	SpeakerRefPath    string   `json:"speaker_ref_path,omitempty"`
	Exaggeration      float64  `json:"exaggeration"`
	Temperature       float64  `json:"temperature"`
	CFGWeight         float64  `json:"cfg_weight"`
	MinP              *float64 `json:"min_p,omitempty"`
	TopP              *float64 `json:"top_p,omitempty"`
	RepetitionPenalty *float64 `json:"repetition_penalty,omitempty"`
	// Seed of zero leaves generation unseeded.
	Seed int64 `json:"seed"`
}

// LoadRequest asks the server to make a model resident on a device.
type LoadRequest struct {
	Model  string `json:"model"`
	Device string `json:"device"`
}

// LanguagesResponse lists the language codes of a model.
type LanguagesResponse struct {
	Languages []string `json:"languages"`
}

// ErrorResponse is the structured error body returned by the server.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// NewClient creates a client for the server at baseURL (e.g. "http://127.0.0.1:8000").
// The timeout applies to every request, including model loads.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// LoadModel loads a model onto the given device, blocking until it is resident.
func (c *Client) LoadModel(ctx context.Context, req LoadRequest) error {
	resp, err := c.postJSON(ctx, apiLoadModel, req, contentTypeJSON)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp)
	}

	return nil
}

// GenerateSpeech sends a generation request and returns the WAV bytes.
func (c *Client) GenerateSpeech(ctx context.Context, req SpeechRequest) ([]byte, error) {
	if req.Text == "" {
		return nil, ErrTextEmpty
	}

	resp, err := c.postJSON(ctx, apiGenerateSpeech, req, contentTypeWAV)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get(headerContentType))
	if mediaType != contentTypeWAV {
		return nil, fmt.Errorf(errFmtUnexpectedContentType, ErrUnexpectedContentType, mediaType)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	return audioData, nil
}

// Languages returns the language codes the named model supports.
func (c *Client) Languages(ctx context.Context, model string) ([]string, error) {
	endpoint := c.baseURL + apiLanguages + "?" + url.Values{"model": {model}}.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create languages request: %w", err)
	}

	httpReq.Header.Set(headerAccept, contentTypeJSON)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to query languages at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	var body LanguagesResponse

	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode languages response: %w", decodeErr)
	}

	return body.Languages, nil
}

// HealthCheck verifies that the model server is up.
func (c *Client) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("health check failed for server at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check returned %s", ErrServiceStatus, resp.Status)
	}

	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, accept string) (*http.Response, error) {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, accept)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to model server at %s: %w", c.baseURL, err)
	}

	return resp, nil
}

// parseErrorResponse prefers the structured error body and falls back to the raw text.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp ErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf(errFmtServiceErrorWithCode, ErrServiceStatus, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, ErrServiceStatus, resp.Status, string(body))
}
