// Package llm is a small client for OpenAI-compatible chat-completion APIs.
//
// A Client holds a ring of API keys. An authentication failure (401/403)
// moves to the next key; other transient failures are retried with
// exponential backoff. When the primary model exhausts its attempts the
// fallback model, if configured, gets the same treatment.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/jiujiugas/gasops/internal/sentinel"
)

const (
	// ErrNoAPIKeys is returned by New when no key is configured.
	ErrNoAPIKeys = sentinel.Error("no API keys configured")

	// ErrEmptyResponse means the API answered 200 without any choice.
	ErrEmptyResponse = sentinel.Error("response has no choices")
)

// Defaults applied by New to zero Config fields.
const (
	DefaultTimeout        = 60 * time.Second
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 10 * time.Second

	// maxErrorBody bounds how much of a failed response is kept in errors.
	maxErrorBody = 512
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, e.g. https://open.bigmodel.cn/api/paas/v4/.
	// Requests go to BaseURL + "chat/completions".
	BaseURL       string
	APIKeys       []string
	Model         string
	FallbackModel string
	Timeout       time.Duration
	// MaxRetries is the number of attempts per model, not counting key
	// rotations.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// StatusError is a non-200 answer from the API.
type StatusError struct {
	Model string
	Code  int
	Body  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model %s: status %d: %s", e.Model, e.Code, e.Body)
}

// Auth reports whether the key was rejected.
func (e *StatusError) Auth() bool {
	return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
}

// Retryable reports whether the same request may succeed later.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Client sends chat-completion requests. Safe for concurrent use.
type Client struct {
	cfg      Config
	endpoint string
	http     *http.Client
	log      *slog.Logger

	mu     sync.Mutex
	keyIdx int
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	keys := make([]string, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	var errs []error
	if len(keys) == 0 {
		errs = append(errs, ErrNoAPIKeys)
	}
	if cfg.BaseURL == "" {
		errs = append(errs, errors.New("base URL is required"))
	}
	if cfg.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if cfg.Timeout < 0 || cfg.MaxRetries < 0 || cfg.InitialBackoff < 0 || cfg.MaxBackoff < 0 {
		errs = append(errs, errors.New("timeout, retries and backoff must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid llm config: %w", err)
	}

	cfg.APIKeys = keys
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default().With("component", "llm")
	}

	return &Client{
		cfg:      cfg,
		endpoint: strings.TrimSuffix(cfg.BaseURL, "/") + "/chat/completions",
		http:     hc,
		log:      log,
	}, nil
}

// Chat sends messages to the primary model, then to the fallback model if
// the primary failed every attempt.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	models := []string{c.cfg.Model}
	if fb := c.cfg.FallbackModel; fb != "" && fb != c.cfg.Model {
		models = append(models, fb)
	}

	var errs []error
	for _, model := range models {
		reply, err := c.chatModel(ctx, model, messages)
		if err == nil {
			return reply, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		c.log.Warn("model failed", "model", model, "error", err)
	}
	return "", fmt.Errorf("chat completion: %w", errors.Join(errs...))
}

// chatModel retries one model. Delays double from InitialBackoff up to
// MaxBackoff. An auth failure rotates the key and retries at once while
// untried keys remain.
func (c *Client) chatModel(ctx context.Context, model string, messages []Message) (string, error) {
	backoff := wait.Backoff{
		Duration: c.cfg.InitialBackoff,
		Factor:   2,
		Cap:      c.cfg.MaxBackoff,
		Steps:    math.MaxInt32,
	}
	rotations := 0

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; {
		key := c.currentKey()
		reply, err := c.send(ctx, key, model, messages)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		var se *StatusError
		if errors.As(err, &se) && se.Auth() {
			if rotations+1 >= len(c.cfg.APIKeys) {
				return "", err
			}
			rotations++
			c.rotate(key)
			c.log.Warn("api key rejected, rotating", "model", model, "status", se.Code)
			continue
		}
		if errors.As(err, &se) && !se.Retryable() {
			return "", err
		}

		attempt++
		if attempt >= c.cfg.MaxRetries {
			break
		}
		delay := backoff.Step()
		c.log.Debug("retrying chat completion", "model", model, "attempt", attempt, "delay", delay, "error", err)
		if err := sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("model %s: %d attempts failed: %w", model, c.cfg.MaxRetries, lastErr)
}

func (c *Client) currentKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.APIKeys[c.keyIdx]
}

// rotate advances past bad unless another caller already did.
func (c *Client) rotate(bad string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.APIKeys[c.keyIdx] == bad {
		c.keyIdx = (c.keyIdx + 1) % len(c.cfg.APIKeys)
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

func (c *Client) send(ctx context.Context, key, model string, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{Model: model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &StatusError{Model: model, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Conversation builds the request messages: an optional system prompt, the
// prior turns and the new user text.
func Conversation(system string, history []Message, user string) []Message {
	msgs := make([]Message, 0, len(history)+2)
	if system != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: system})
	}
	msgs = append(msgs, history...)
	return append(msgs, Message{Role: RoleUser, Content: user})
}
