// Package openai is the speech synthesis adapter for the OpenAI audio
// API. It streams responses, classifies failures for the retry
// scheduler, and applies a client-side request rate limit.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/orate/internal/synth"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.openai.com/v1"

// DefaultTimeout bounds the wait for response headers. The audio body
// itself may stream for longer; only the caller's context limits it.
const DefaultTimeout = 60 * time.Second

// Config configures the speech client.
type Config struct {
	APIKey  string
	BaseURL string
	// Timeout is the time allowed until response headers arrive.
	Timeout time.Duration
	// RPM is the client-side request budget per minute; zero disables
	// the limiter.
	RPM int
}

// Client calls the speech endpoint. It is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// New builds a Client from cfg, filling defaults for the base URL and
// header timeout.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: missing API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: cfg.Timeout,
			},
		},
	}
	if cfg.RPM > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RPM)), 1)
	}
	return c, nil
}

// speechRequest is the wire body for /audio/speech.
type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
	Instructions   string  `json:"instructions,omitempty"`
}

// Synthesize posts one chunk of text and returns the audio stream. The
// caller owns the stream and must close it. Failures come back as
// *synth.APIError so the scheduler can pick retry or abort.
func (c *Client) Synthesize(ctx context.Context, text string, p synth.Params) (io.ReadCloser, synth.RequestInfo, error) {
	var info synth.RequestInfo

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, info, err
		}
	}

	body := speechRequest{
		Model:          p.Model,
		Input:          text,
		Voice:          p.Voice,
		ResponseFormat: p.Format,
		Speed:          p.Speed,
	}
	if SupportsInstructions(p.Model) {
		body.Instructions = p.Instructions
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, info, fmt.Errorf("encode speech request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, info, fmt.Errorf("build speech request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	log.Debug("speech request", "model", p.Model, "voice", p.Voice, "chars", len(text))

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, info, ctx.Err()
		}
		return nil, info, classifyTransport(err)
	}

	info.ID = resp.Header.Get("x-request-id")
	info.Model = resp.Header.Get("openai-model")

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, info, classifyStatus(resp.StatusCode, resp.Header, readAPIError(resp.Body), info.ID)
	}
	return resp.Body, info, nil
}

// classifyStatus maps an HTTP failure to the scheduler's taxonomy:
// 429 is rate-limited (with any server hint attached), 5xx is
// retryable, every other status is terminal.
func classifyStatus(code int, h http.Header, msg, requestID string) *synth.APIError {
	apiErr := &synth.APIError{
		StatusCode: code,
		RequestID:  requestID,
		Err:        errors.New(msg),
	}
	switch {
	case code == http.StatusTooManyRequests:
		apiErr.Class = synth.RateLimited
		apiErr.RetryAfter = parseRetryAfter(h.Get("Retry-After"))
	case code >= 500:
		apiErr.Class = synth.Retryable
	default:
		apiErr.Class = synth.Terminal
	}
	return apiErr
}

// classifyTransport treats network-layer failures (timeouts, resets,
// DNS blips) as retryable.
func classifyTransport(err error) *synth.APIError {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &synth.APIError{Class: synth.Retryable, Err: fmt.Errorf("request timed out: %w", err)}
	}
	return &synth.APIError{Class: synth.Retryable, Err: fmt.Errorf("network failure: %w", err)}
}

// parseRetryAfter reads a Retry-After header in either the seconds or
// the HTTP-date form, returning zero when absent or malformed.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// apiErrorBody is the provider's error envelope.
type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// readAPIError extracts a human-readable message from an error
// response, falling back to the raw body.
func readAPIError(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return "no error detail provided"
	}
	var envelope apiErrorBody
	if jerr := json.Unmarshal(raw, &envelope); jerr == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
