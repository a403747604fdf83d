package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// ChatEngine talks to an OpenAI-compatible chat completions endpoint such as
// xAI Grok or a local Ollama server.
type ChatEngine struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
	maxRetries  uint64
	backoff     time.Duration
}

// ChatConfig configures a ChatEngine.
type ChatConfig struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
	Backoff     time.Duration
}

func NewChatEngine(cfg ChatConfig) (*ChatEngine, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.x.ai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "grok-2-latest"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return &ChatEngine{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      key,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: cfg.Timeout},
		maxRetries:  uint64(cfg.MaxRetries),
		backoff:     cfg.Backoff,
	}, nil
}

func (e *ChatEngine) Name() string { return e.model }

// Generate sends the assembled conversation. Every failure is a *CommError.
func (e *ChatEngine) Generate(ctx context.Context, query string, contexts []string) (string, error) {
	b := retry.WithCappedDuration(10*time.Second, retry.NewExponential(e.backoff))
	b = retry.WithMaxRetries(e.maxRetries, b)

	msgs := BuildMessages(query, contexts)
	var reply string
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		out, err := e.complete(ctx, msgs)
		if err != nil {
			return err
		}
		reply = out
		return nil
	})
	if err != nil {
		return "", &CommError{Engine: e.Name(), Err: err}
	}
	return reply, nil
}

func (e *ChatEngine) complete(ctx context.Context, msgs []Message) (string, error) {
	type reqBody struct {
		Model       string    `json:"model"`
		Messages    []Message `json:"messages"`
		Temperature float64   `json:"temperature"`
	}
	data, err := json.Marshal(reqBody{Model: e.model, Messages: msgs, Temperature: e.temperature})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", retry.RetryableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			select {
			case <-time.After(time.Duration(secs) * time.Second):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		return "", retry.RetryableError(fmt.Errorf("chat completion failed: %s", resp.Status))
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("chat completion failed: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Choices []struct {
			Message Message `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}
