package correct

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/Crypto69/speechy/internal/config"
)

// TransportError marks a transient failure reaching the correction
// service. These are retried.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("correction service unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ModelMissingError means the configured model is not present on the
// server. Retrying cannot help.
type ModelMissingError struct {
	Model string
}

func (e *ModelMissingError) Error() string {
	return fmt.Sprintf("correction model not found: %s", e.Model)
}

// MalformedResponseError means the server answered with something the
// client cannot use.
type MalformedResponseError struct {
	Detail string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed correction response: %s", e.Detail)
}

// RetryExhaustedError wraps the last transient error after all retries.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("correction failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// Client corrects transcripts through a local Ollama server.
type Client struct {
	cfg        config.Config
	baseURL    string
	httpClient *http.Client
	sleep      func(time.Duration)
	Debug      bool
}

// New creates a correction client. A nil httpClient gets a default with
// the configured request timeout.
func New(cfg config.Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(cfg.CorrectionTimeoutSec) * time.Second}
	}
	return &Client{
		cfg:        cfg,
		baseURL:    cfg.OllamaURL(),
		httpClient: httpClient,
		sleep:      time.Sleep,
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// Correct sends the transcript through the configured prompt strategy
// and returns the corrected text. Transient failures are retried with
// exponential backoff; a missing model or malformed response fails
// immediately.
func (c *Client) Correct(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", &MalformedResponseError{Detail: "empty input text"}
	}

	try := 0
	delay := c.cfg.CorrectionRetryBaseDelay
	attempts := c.cfg.CorrectionMaxRetries
	if attempts < 1 {
		attempts = 1
	}

	for {
		try++
		out, err := c.generate(ctx, text)
		if err == nil {
			return out, nil
		}

		var transport *TransportError
		if !errors.As(err, &transport) {
			return "", err
		}
		if c.Debug {
			log.Printf("[correct] attempt %d failed: %v", try, err)
		}
		if try >= attempts {
			return "", &RetryExhaustedError{Attempts: try, Last: err}
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("correction aborted: %w", ctx.Err())
		case <-c.after(time.Duration(delay * float64(time.Second))):
		}
		delay *= 2
	}
}

func (c *Client) generate(ctx context.Context, text string) (string, error) {
	reqBody := generateRequest{
		Model:  c.cfg.OllamaModel,
		Prompt: BuildPrompt(c.cfg.PromptStrategy, text),
		Stream: false,
		Options: map[string]any{
			"temperature": 0.1,
		},
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("correction aborted: %w", ctx.Err())
		}
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", &ModelMissingError{Model: c.cfg.OllamaModel}
	case resp.StatusCode >= 500:
		return "", &TransportError{Err: fmt.Errorf("server error %d: %s", resp.StatusCode, truncate(body))}
	case resp.StatusCode != http.StatusOK:
		return "", &MalformedResponseError{Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(body))}
	}

	var gen generateResponse
	if err := json.Unmarshal(body, &gen); err != nil {
		return "", &MalformedResponseError{Detail: err.Error()}
	}
	if gen.Error != "" {
		if strings.Contains(gen.Error, "not found") {
			return "", &ModelMissingError{Model: c.cfg.OllamaModel}
		}
		return "", &MalformedResponseError{Detail: gen.Error}
	}

	out := strings.TrimSpace(gen.Response)
	if out == "" {
		return "", &MalformedResponseError{Detail: "empty response text"}
	}
	return out, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the model names available on the server.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Err: fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body))}
	}

	var tags tagsResponse
	if err := json.Unmarshal(body, &tags); err != nil {
		return nil, &MalformedResponseError{Detail: err.Error()}
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ListModels(ctx)
	return err
}

// HasModel reports whether the configured model is available.
func (c *Client) HasModel(ctx context.Context) (bool, error) {
	names, err := c.ListModels(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == c.cfg.OllamaModel || strings.TrimSuffix(n, ":latest") == c.cfg.OllamaModel {
			return true, nil
		}
	}
	return false, nil
}

// Pull asks the server to download the configured model.
func (c *Client) Pull(ctx context.Context) error {
	b, err := json.Marshal(map[string]any{"name": c.cfg.OllamaModel, "stream": false})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/pull", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model pull failed: status %d: %s", resp.StatusCode, truncate(body))
	}
	return nil
}

// after is a sleep that can be interrupted via select.
func (c *Client) after(d time.Duration) <-chan time.Time {
	if c.sleep == nil {
		return time.After(d)
	}
	ch := make(chan time.Time, 1)
	go func() {
		c.sleep(d)
		ch <- time.Now()
	}()
	return ch
}

func truncate(b []byte) string {
	const max = 500
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
