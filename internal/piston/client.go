// Package piston is the HTTP client for a Piston-compatible code execution service.
package piston

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
	// DefaultEndpoint is the public Piston API.
	DefaultEndpoint = "https://emkc.org/api/v2/piston"
	// DefaultTimeout bounds a single HTTP exchange.
	DefaultTimeout = 30 * time.Second

	maxResponseBody = 10 << 20
)

// Config configures the execution client.
type Config struct {
	Endpoint   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client executes source code remotely.
type Client struct {
	endpoint string
	http     *http.Client
}

// New constructs a client. A zero Config targets DefaultEndpoint.
func New(cfg Config) *Client {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{endpoint: endpoint, http: httpClient}
}

// Endpoint returns the configured base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type executeFile struct {
	Content string `json:"content"`
}

type executeRequest struct {
	Language string        `json:"language"`
	Version  string        `json:"version"`
	Files    []executeFile `json:"files"`
}

type runResult struct {
	Stdout string  `json:"stdout"`
	Stderr string  `json:"stderr"`
	Output string  `json:"output"`
	Code   *int    `json:"code"`
	Signal *string `json:"signal"`
}

type executeResponse struct {
	Run     *runResult `json:"run"`
	Message string     `json:"message"`
}

// Execute runs req.SourceText and normalizes the output into lines.
func (c *Client) Execute(ctx context.Context, req core.ExecuteRequest) (result schema.ExecutionResult, err error) {
	ctx, span := tracex.StartSpan(ctx, "piston.execute",
		attribute.String("language", string(req.Language)),
		attribute.Int("source_bytes", len(req.SourceText)),
	)
	defer func() { tracex.End(span, err) }()

	log := logx.Ctx(ctx)
	body, err := json.Marshal(executeRequest{
		Language: string(req.Language),
		Version:  req.Language.RuntimeVersion(),
		Files:    []executeFile{{Content: req.SourceText}},
	})
	if err != nil {
		return schema.ExecutionResult{}, core.NewRemoteError(core.RemoteErrorMalformed, "execute", fmt.Errorf("encode request: %w", err))
	}

	start := time.Now()
	respBody, err := c.do(ctx, http.MethodPost, c.endpoint+"/execute", body, "execute")
	if err != nil {
		log.Warn("piston execute failed", "err", err, "elapsed", time.Since(start))
		return schema.ExecutionResult{}, err
	}

	var resp executeResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return schema.ExecutionResult{}, core.NewRemoteError(core.RemoteErrorMalformed, "execute", fmt.Errorf("decode response: %w", err))
	}
	if resp.Run == nil {
		remote := core.NewRemoteError(core.RemoteErrorMalformed, "execute", errors.New("response has no run result"))
		if resp.Message != "" {
			remote.Message = resp.Message
		}
		return schema.ExecutionResult{}, remote
	}
	result = schema.ExecutionResult{
		OutputLines: schema.SplitOutput(resp.Run.Output),
		HasError:    resp.Run.Stderr != "",
	}
	log.Debug("piston execute done", "lines", len(result.OutputLines), "has_error", result.HasError, "elapsed", time.Since(start))
	return result, nil
}

// Runtimes lists the language runtimes the service offers.
func (c *Client) Runtimes(ctx context.Context) (runtimes []schema.Runtime, err error) {
	ctx, span := tracex.StartSpan(ctx, "piston.runtimes")
	defer func() { tracex.End(span, err) }()

	respBody, err := c.do(ctx, http.MethodGet, c.endpoint+"/runtimes", nil, "runtimes")
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(respBody, &runtimes); err != nil {
		return nil, core.NewRemoteError(core.RemoteErrorMalformed, "runtimes", fmt.Errorf("decode response: %w", err))
	}
	return runtimes, nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, op string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, core.NewRemoteError(core.RemoteErrorTransport, op, fmt.Errorf("create request: %w", err))
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, core.NewRemoteError(core.RemoteErrorTransport, op, fmt.Errorf("http request: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, core.NewRemoteError(core.RemoteErrorTransport, op, fmt.Errorf("read response: %w", err))
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, mapHTTPError(op, httpResp.StatusCode, respBody)
	}
	return respBody, nil
}

func mapHTTPError(op string, status int, body []byte) error {
	remote := &core.RemoteError{Kind: core.RemoteErrorExecution, Op: op, StatusCode: status}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		remote.Message = payload.Message
	} else {
		remote.Message = fmt.Sprintf("execution service returned %d", status)
	}
	return remote
}
