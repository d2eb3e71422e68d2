package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// fakeAPI is a scripted chat-completion endpoint.
type fakeAPI struct {
	mu       sync.Mutex
	requests []recorded
	// respond returns status and body for the n-th request (0-based).
	respond func(n int, r recorded) (int, string)
}

type recorded struct {
	Key   string
	Model string
	Body  chatRequest
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v4/chat/completions" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec := recorded{
		Key:   strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "),
		Model: body.Model,
		Body:  body,
	}
	f.mu.Lock()
	n := len(f.requests)
	f.requests = append(f.requests, rec)
	f.mu.Unlock()

	code, out := f.respond(n, rec)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	io.WriteString(w, out)
}

func (f *fakeAPI) all() []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recorded(nil), f.requests...)
}

func reply(text string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]string{"role": "assistant", "content": text}}},
	})
	return string(b)
}

func newTestClient(t *testing.T, api *fakeAPI, modify func(c *Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cfg := Config{
		BaseURL:        srv.URL + "/v4/",
		APIKeys:        []string{"key-a"},
		Model:          "glm-main",
		FallbackModel:  "glm-flash",
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
		Logger:         slog.New(slog.DiscardHandler),
	}
	if modify != nil {
		modify(&cfg)
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestClient_ChatSuccess(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{respond: func(int, recorded) (int, string) { return http.StatusOK, reply("你好") }}
	c := newTestClient(t, api, nil)

	msgs := Conversation("system prompt", []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hello"}}, "價格")
	got, err := c.Chat(context.Background(), msgs)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if got != "你好" {
		t.Fatalf("Chat() = %q, want %q", got, "你好")
	}

	reqs := api.all()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	if reqs[0].Key != "key-a" || reqs[0].Model != "glm-main" {
		t.Fatalf("request key/model = %s/%s, want key-a/glm-main", reqs[0].Key, reqs[0].Model)
	}
	if diff := cmp.Diff(msgs, reqs[0].Body.Messages); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_RotatesKeyOnAuthFailure(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{respond: func(_ int, r recorded) (int, string) {
		if r.Key == "key-a" {
			return http.StatusUnauthorized, `{"error":{"message":"bad key"}}`
		}
		return http.StatusOK, reply("ok")
	}}
	c := newTestClient(t, api, func(c *Config) { c.APIKeys = []string{"key-a", "key-b"} })

	for range 2 {
		if _, err := c.Chat(context.Background(), Conversation("", nil, "hi")); err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
	}

	var keys []string
	for _, r := range api.all() {
		keys = append(keys, r.Key)
	}
	// The second call starts on the key that worked.
	if diff := cmp.Diff([]string{"key-a", "key-b", "key-b"}, keys); diff != "" {
		t.Fatalf("keys used mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_AllKeysRejected(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{respond: func(int, recorded) (int, string) { return http.StatusForbidden, "denied" }}
	c := newTestClient(t, api, func(c *Config) {
		c.APIKeys = []string{"key-a", "key-b"}
		c.FallbackModel = ""
	})

	_, err := c.Chat(context.Background(), Conversation("", nil, "hi"))
	var se *StatusError
	if !errors.As(err, &se) || !se.Auth() {
		t.Fatalf("Chat() error = %v, want auth StatusError", err)
	}
	if n := len(api.all()); n != 2 {
		t.Fatalf("requests = %d, want one per key (2)", n)
	}
}

func TestClient_RetriesTransientErrors(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{respond: func(n int, _ recorded) (int, string) {
		if n < 2 {
			return http.StatusServiceUnavailable, "busy"
		}
		return http.StatusOK, reply("done")
	}}
	c := newTestClient(t, api, nil)

	got, err := c.Chat(context.Background(), Conversation("", nil, "hi"))
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if got != "done" {
		t.Fatalf("Chat() = %q, want %q", got, "done")
	}
	for i, r := range api.all() {
		if r.Model != "glm-main" {
			t.Fatalf("request %d model = %s, want glm-main", i, r.Model)
		}
	}
}

func TestClient_FallbackModel(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		primaryStatus    int
		wantPrimaryCalls int
	}{
		"server errors exhaust retries": {primaryStatus: http.StatusInternalServerError, wantPrimaryCalls: 3},
		"rate limited":                  {primaryStatus: http.StatusTooManyRequests, wantPrimaryCalls: 3},
		"bad request is not retried":    {primaryStatus: http.StatusBadRequest, wantPrimaryCalls: 1},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			api := &fakeAPI{respond: func(_ int, r recorded) (int, string) {
				if r.Model == "glm-main" {
					return tc.primaryStatus, "nope"
				}
				return http.StatusOK, reply("from fallback")
			}}
			c := newTestClient(t, api, nil)

			got, err := c.Chat(context.Background(), Conversation("", nil, "hi"))
			if err != nil {
				t.Fatalf("Chat() error = %v", err)
			}
			if got != "from fallback" {
				t.Fatalf("Chat() = %q, want %q", got, "from fallback")
			}
			primary := 0
			for _, r := range api.all() {
				if r.Model == "glm-main" {
					primary++
				}
			}
			if primary != tc.wantPrimaryCalls {
				t.Fatalf("primary calls = %d, want %d", primary, tc.wantPrimaryCalls)
			}
		})
	}
}

func TestClient_EmptyResponse(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{respond: func(int, recorded) (int, string) { return http.StatusOK, `{"choices":[]}` }}
	c := newTestClient(t, api, func(c *Config) { c.MaxRetries = 1 })

	_, err := c.Chat(context.Background(), Conversation("", nil, "hi"))
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("Chat() error = %v, want ErrEmptyResponse", err)
	}
	if n := len(api.all()); n != 2 {
		t.Fatalf("requests = %d, want 2 (primary and fallback)", n)
	}
}

func TestClient_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{respond: func(int, recorded) (int, string) { return http.StatusBadGateway, "down" }}
	c := newTestClient(t, api, func(c *Config) {
		c.InitialBackoff = time.Hour
		c.MaxBackoff = time.Hour
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Chat(ctx, Conversation("", nil, "hi"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Chat() error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Chat() took %v, want it to stop at the deadline", elapsed)
	}
	if n := len(api.all()); n != 1 {
		t.Fatalf("requests = %d, want 1 (no fallback after cancellation)", n)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		cfg          Config
		wantContains string
		wantNoKeys   bool
	}{
		"no keys":       {cfg: Config{BaseURL: "http://x/", Model: "m"}, wantContains: "no API keys", wantNoKeys: true},
		"blank keys":    {cfg: Config{BaseURL: "http://x/", Model: "m", APIKeys: []string{" ", ""}}, wantNoKeys: true, wantContains: "no API keys"},
		"no base url":   {cfg: Config{Model: "m", APIKeys: []string{"k"}}, wantContains: "base URL"},
		"no model":      {cfg: Config{BaseURL: "http://x/", APIKeys: []string{"k"}}, wantContains: "model"},
		"negative wait": {cfg: Config{BaseURL: "http://x/", Model: "m", APIKeys: []string{"k"}, MaxBackoff: -1}, wantContains: "negative"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tc.cfg)
			if err == nil {
				t.Fatal("New() expected error")
			}
			if !strings.Contains(err.Error(), tc.wantContains) {
				t.Fatalf("New() error = %q, want it to contain %q", err, tc.wantContains)
			}
			if got := errors.Is(err, ErrNoAPIKeys); got != tc.wantNoKeys {
				t.Fatalf("errors.Is(err, ErrNoAPIKeys) = %v, want %v", got, tc.wantNoKeys)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	c, err := New(Config{BaseURL: "https://open.bigmodel.cn/api/paas/v4/", Model: "m", APIKeys: []string{" k "}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.endpoint != "https://open.bigmodel.cn/api/paas/v4/chat/completions" {
		t.Fatalf("endpoint = %s", c.endpoint)
	}
	if c.cfg.MaxRetries != DefaultMaxRetries || c.cfg.Timeout != DefaultTimeout {
		t.Fatalf("retries/timeout = %d/%v, want %d/%v", c.cfg.MaxRetries, c.cfg.Timeout, DefaultMaxRetries, DefaultTimeout)
	}
	if c.cfg.InitialBackoff != DefaultInitialBackoff || c.cfg.MaxBackoff != DefaultMaxBackoff {
		t.Fatalf("backoff = %v..%v, want %v..%v", c.cfg.InitialBackoff, c.cfg.MaxBackoff, DefaultInitialBackoff, DefaultMaxBackoff)
	}
	if diff := cmp.Diff([]string{"k"}, c.cfg.APIKeys); diff != "" {
		t.Fatalf("APIKeys mismatch (-want +got):\n%s", diff)
	}
}

func TestConversation(t *testing.T) {
	t.Parallel()

	hist := []Message{{Role: RoleUser, Content: "a"}, {Role: RoleAssistant, Content: "b"}}
	tests := map[string]struct {
		system string
		want   []Message
	}{
		"with system": {
			system: "sys",
			want: []Message{
				{Role: RoleSystem, Content: "sys"},
				{Role: RoleUser, Content: "a"},
				{Role: RoleAssistant, Content: "b"},
				{Role: RoleUser, Content: "c"},
			},
		},
		"without system": {
			want: []Message{
				{Role: RoleUser, Content: "a"},
				{Role: RoleAssistant, Content: "b"},
				{Role: RoleUser, Content: "c"},
			},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if diff := cmp.Diff(tc.want, Conversation(tc.system, hist, "c")); diff != "" {
				t.Fatalf("Conversation() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
