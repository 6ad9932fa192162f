// Package inference is the HTTP client for Hugging Face style text
// generation endpoints.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"pkt.systems/codebench/core"
	"pkt.systems/codebench/internal/logx"
	"pkt.systems/codebench/internal/tracex"
	"pkt.systems/codebench/schema"
)

const (
	// DefaultCodeModelURL serves code generation.
	DefaultCodeModelURL = "https://api-inference.huggingface.co/models/bigcode/starcoder2-15b"
	// DefaultChatModelURL serves free-text chat.
	DefaultChatModelURL = "https://api-inference.huggingface.co/models/mistralai/Mistral-7B-Instruct-v0.3"
	// DefaultTokenEnv names the environment variable holding the API token.
	DefaultTokenEnv = "HF_TOKEN"
	// DefaultTimeout bounds a single HTTP exchange.
	DefaultTimeout = 30 * time.Second

	maxResponseBody = 10 << 20
)

// Config configures the generation client.
type Config struct {
	CodeModelURL string
	ChatModelURL string
	// Token is sent as a bearer credential when non-empty.
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client generates text from prompts.
type Client struct {
	models map[schema.GeneratePurpose]string
	token  string
	http   *http.Client
}

// New constructs a client. Empty model URLs fall back to the defaults.
func New(cfg Config) *Client {
	code := strings.TrimSpace(cfg.CodeModelURL)
	if code == "" {
		code = DefaultCodeModelURL
	}
	chat := strings.TrimSpace(cfg.ChatModelURL)
	if chat == "" {
		chat = DefaultChatModelURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		models: map[schema.GeneratePurpose]string{
			schema.PurposeCode: code,
			schema.PurposeChat: chat,
		},
		token: strings.TrimSpace(cfg.Token),
		http:  httpClient,
	}
}

// ModelURL returns the endpoint a purpose routes to.
func (c *Client) ModelURL(purpose schema.GeneratePurpose) string {
	if url, ok := c.models[purpose]; ok {
		return url
	}
	return c.models[schema.PurposeCode]
}

// HasToken reports whether a credential is configured.
func (c *Client) HasToken() bool {
	return c.token != ""
}

type generateRequest struct {
	Inputs string `json:"inputs"`
}

type candidate struct {
	GeneratedText *string `json:"generated_text"`
}

// Generate sends req.Prompt to the model selected by req.Purpose and returns
// the first candidate's text.
func (c *Client) Generate(ctx context.Context, req core.GenerateRequest) (text string, err error) {
	url := c.ModelURL(req.Purpose)
	ctx, span := tracex.StartSpan(ctx, "inference.generate",
		attribute.String("purpose", string(req.Purpose)),
		attribute.Int("prompt_bytes", len(req.Prompt)),
	)
	defer func() { tracex.End(span, err) }()

	log := logx.Ctx(ctx)
	body, err := json.Marshal(generateRequest{Inputs: req.Prompt})
	if err != nil {
		return "", core.NewRemoteError(core.RemoteErrorMalformed, "generate", fmt.Errorf("encode request: %w", err))
	}
	start := time.Now()
	respBody, err := c.post(ctx, url, body)
	if err != nil {
		log.Warn("inference generate failed", "purpose", req.Purpose, "err", err, "elapsed", time.Since(start))
		return "", err
	}
	text, err = decodeCandidates(respBody)
	if err != nil {
		return "", err
	}
	log.Debug("inference generate done", "purpose", req.Purpose, "bytes", len(text), "elapsed", time.Since(start))
	return text, nil
}

func decodeCandidates(body []byte) (string, error) {
	var candidates []candidate
	if err := json.Unmarshal(body, &candidates); err != nil {
		return "", core.NewRemoteError(core.RemoteErrorMalformed, "generate", fmt.Errorf("decode response: %w", err))
	}
	if len(candidates) == 0 {
		return "", core.NewRemoteError(core.RemoteErrorMalformed, "generate", errors.New("response has no candidates"))
	}
	if candidates[0].GeneratedText == nil {
		return "", core.NewRemoteError(core.RemoteErrorMalformed, "generate", errors.New("response candidate has no generated_text"))
	}
	return *candidates[0].GeneratedText, nil
}

func (c *Client) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, core.NewRemoteError(core.RemoteErrorTransport, "generate", fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, core.NewRemoteError(core.RemoteErrorTransport, "generate", fmt.Errorf("http request: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, core.NewRemoteError(core.RemoteErrorTransport, "generate", fmt.Errorf("read response: %w", err))
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, mapHTTPError(httpResp.StatusCode, respBody)
	}
	return respBody, nil
}

func mapHTTPError(status int, body []byte) error {
	remote := &core.RemoteError{Kind: core.RemoteErrorGeneration, Op: "generate", StatusCode: status}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		remote.Message = payload.Error
	} else {
		remote.Message = fmt.Sprintf("inference service returned %d", status)
	}
	return remote
}
