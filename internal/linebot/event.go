package linebot

import (
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// EventKind is the type of a webhook event.
type EventKind string

// Event kinds the bot handles.
const (
	EventMessage  EventKind = "message"
	EventFollow   EventKind = "follow"
	EventUnfollow EventKind = "unfollow"
	EventJoin     EventKind = "join"
	EventLeave    EventKind = "leave"
	EventPostback EventKind = "postback"
)

// SourceKind is where an event came from.
type SourceKind string

const (
	SourceUser  SourceKind = "user"
	SourceGroup SourceKind = "group"
	SourceRoom  SourceKind = "room"
)

// MessageKind is the content type of a message event.
type MessageKind string

const (
	MessageText     MessageKind = "text"
	MessageImage    MessageKind = "image"
	MessageVideo    MessageKind = "video"
	MessageAudio    MessageKind = "audio"
	MessageLocation MessageKind = "location"
	MessageSticker  MessageKind = "sticker"
)

// Source identifies the chat an event belongs to.
type Source struct {
	Kind    SourceKind
	UserID  string
	GroupID string
	RoomID  string
}

// ChatID is the group or room id, or the user id for a 1:1 chat.
func (s Source) ChatID() string {
	switch s.Kind {
	case SourceGroup:
		return s.GroupID
	case SourceRoom:
		return s.RoomID
	default:
		return s.UserID
	}
}

// SessionKey keys conversation history: the user id, or the chat id when
// LINE omits the user (group members who have not added the bot).
func (s Source) SessionKey() string {
	if s.UserID != "" {
		return s.UserID
	}
	return s.ChatID()
}

// Message is the content of a message event. Only the fields for Kind are
// set.
type Message struct {
	Kind      MessageKind
	ID        string
	Text      string
	Title     string
	Address   string
	Latitude  float64
	Longitude float64
}

// Event is a webhook event reduced to what the bot acts on.
type Event struct {
	Kind         EventKind
	ReplyToken   string
	Source       Source
	Message      Message
	PostbackData string
}

// fromWebhook converts an SDK event. It returns false for event types the
// bot ignores.
func fromWebhook(ev webhook.EventInterface) (Event, bool) {
	switch e := ev.(type) {
	case webhook.MessageEvent:
		msg, ok := fromMessage(e.Message)
		if !ok {
			return Event{}, false
		}
		return Event{Kind: EventMessage, ReplyToken: e.ReplyToken, Source: fromSource(e.Source), Message: msg}, true
	case webhook.FollowEvent:
		return Event{Kind: EventFollow, ReplyToken: e.ReplyToken, Source: fromSource(e.Source)}, true
	case webhook.UnfollowEvent:
		return Event{Kind: EventUnfollow, Source: fromSource(e.Source)}, true
	case webhook.JoinEvent:
		return Event{Kind: EventJoin, ReplyToken: e.ReplyToken, Source: fromSource(e.Source)}, true
	case webhook.LeaveEvent:
		return Event{Kind: EventLeave, Source: fromSource(e.Source)}, true
	case webhook.PostbackEvent:
		out := Event{Kind: EventPostback, ReplyToken: e.ReplyToken, Source: fromSource(e.Source)}
		if e.Postback != nil {
			out.PostbackData = e.Postback.Data
		}
		return out, true
	default:
		return Event{}, false
	}
}

func fromSource(src webhook.SourceInterface) Source {
	switch s := src.(type) {
	case webhook.UserSource:
		return Source{Kind: SourceUser, UserID: s.UserId}
	case webhook.GroupSource:
		return Source{Kind: SourceGroup, GroupID: s.GroupId, UserID: s.UserId}
	case webhook.RoomSource:
		return Source{Kind: SourceRoom, RoomID: s.RoomId, UserID: s.UserId}
	default:
		return Source{}
	}
}

func fromMessage(m webhook.MessageContentInterface) (Message, bool) {
	switch c := m.(type) {
	case webhook.TextMessageContent:
		return Message{Kind: MessageText, ID: c.Id, Text: c.Text}, true
	case webhook.ImageMessageContent:
		return Message{Kind: MessageImage, ID: c.Id}, true
	case webhook.VideoMessageContent:
		return Message{Kind: MessageVideo, ID: c.Id}, true
	case webhook.AudioMessageContent:
		return Message{Kind: MessageAudio, ID: c.Id}, true
	case webhook.LocationMessageContent:
		return Message{
			Kind:      MessageLocation,
			ID:        c.Id,
			Title:     c.Title,
			Address:   c.Address,
			Latitude:  c.Latitude,
			Longitude: c.Longitude,
		}, true
	case webhook.StickerMessageContent:
		return Message{Kind: MessageSticker, ID: c.Id}, true
	default:
		return Message{}, false
	}
}
