package linebot

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// Submitter accepts events for background processing. *Dispatcher
// implements it.
type Submitter interface {
	Submit(ev Event) bool
}

// WebhookHandler verifies LINE webhook requests and queues their events.
// Valid requests are answered 200 immediately; a bad or missing signature
// or an unparsable body gets 400.
func WebhookHandler(channelSecret string, s Submitter, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default().With("component", "linebot")
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cb, err := webhook.ParseRequest(channelSecret, r)
		if err != nil {
			if errors.Is(err, webhook.ErrInvalidSignature) {
				log.Warn("webhook signature rejected", "remote", r.RemoteAddr)
				writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "invalid signature"})
				return
			}
			log.Warn("webhook body rejected", "error", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "invalid request"})
			return
		}

		queued := 0
		for _, raw := range cb.Events {
			ev, ok := fromWebhook(raw)
			if !ok {
				log.Debug("unsupported webhook event", "type", fmt.Sprintf("%T", raw))
				continue
			}
			if s.Submit(ev) {
				queued++
			}
		}
		log.Debug("webhook accepted", "events", len(cb.Events), "queued", queued)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
