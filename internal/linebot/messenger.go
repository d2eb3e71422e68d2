package linebot

import (
	"context"
	"fmt"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// LINE reply limits.
const (
	maxReplyMessages = 5
	maxTextRunes     = 5000
)

// LineMessenger replies through the LINE Messaging API.
type LineMessenger struct {
	api *messaging_api.MessagingApiAPI
}

// NewLineMessenger returns a Messenger authenticated with the channel
// access token. An empty endpoint uses the public LINE API.
func NewLineMessenger(token, endpoint string) (*LineMessenger, error) {
	var opts []messaging_api.MessagingApiAPIOption
	if endpoint != "" {
		opts = append(opts, messaging_api.WithEndpoint(endpoint))
	}
	api, err := messaging_api.NewMessagingApiAPI(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create messaging client: %w", err)
	}
	return &LineMessenger{api: api}, nil
}

// Reply sends texts as separate messages. LINE takes at most five per
// reply; the rest are dropped. Each text is cut to the LINE length limit.
func (m *LineMessenger) Reply(ctx context.Context, replyToken string, texts ...string) error {
	msgs := replyMessages(texts)
	if len(msgs) == 0 {
		return nil
	}
	_, err := m.api.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   msgs,
	})
	if err != nil {
		return fmt.Errorf("reply message: %w", err)
	}
	return nil
}

// DisplayName fetches the user's profile name.
func (m *LineMessenger) DisplayName(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", nil
	}
	p, err := m.api.WithContext(ctx).GetProfile(userID)
	if err != nil {
		return "", fmt.Errorf("get profile: %w", err)
	}
	return p.DisplayName, nil
}

func replyMessages(texts []string) []messaging_api.MessageInterface {
	var msgs []messaging_api.MessageInterface
	for _, t := range texts {
		if t == "" {
			continue
		}
		if len(msgs) == maxReplyMessages {
			break
		}
		msgs = append(msgs, messaging_api.TextMessage{Text: truncate(t, maxTextRunes)})
	}
	return msgs
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
