package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedPayload is returned when a webhook body cannot be interpreted.
// The handler maps it to a client error with no persistence.
var ErrMalformedPayload = errors.New("malformed webhook payload")

// WebhookPayload is the raw inbound webhook body from the messaging
// platform. Only the first contact/message pair is meaningful; the platform
// delivers one message per callback.
type WebhookPayload struct {
	Contacts []Contact        `json:"contacts"`
	Messages []InboundMessage `json:"messages"`
}

type Contact struct {
	Profile Profile `json:"profile"`
	WaID    string  `json:"wa_id"`
}

type Profile struct {
	Name string `json:"name"`
}

type InboundMessage struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	Timestamp string        `json:"timestamp"`
	Text      *TextContent  `json:"text,omitempty"`
	Image     *MediaContent `json:"image,omitempty"`
	Document  *MediaContent `json:"document,omitempty"`
}

type TextContent struct {
	Body string `json:"body"`
}

type MediaContent struct {
	ID      string `json:"id"`
	Caption string `json:"caption,omitempty"`
}

// Event is the normalized view of one webhook delivery.
type Event struct {
	MessageID  string
	Sender     string
	SenderName string
	Type       string
	Text       string
	MediaID    string
}

// ParsePayload validates and normalizes a webhook body.
func ParsePayload(body []byte) (Event, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(payload.Contacts) == 0 || len(payload.Messages) == 0 {
		return Event{}, fmt.Errorf("%w: contacts and messages are required", ErrMalformedPayload)
	}

	contact := payload.Contacts[0]
	msg := payload.Messages[0]
	if strings.TrimSpace(msg.ID) == "" {
		return Event{}, fmt.Errorf("%w: message id is required", ErrMalformedPayload)
	}
	if strings.TrimSpace(contact.WaID) == "" {
		return Event{}, fmt.Errorf("%w: sender wa_id is required", ErrMalformedPayload)
	}

	ev := Event{
		MessageID:  msg.ID,
		Sender:     contact.WaID,
		SenderName: contact.Profile.Name,
		Type:       msg.Type,
	}
	switch msg.Type {
	case "text":
		if msg.Text == nil || strings.TrimSpace(msg.Text.Body) == "" {
			return Event{}, fmt.Errorf("%w: text body is required", ErrMalformedPayload)
		}
		ev.Text = msg.Text.Body
	case "image":
		if msg.Image == nil || strings.TrimSpace(msg.Image.ID) == "" {
			return Event{}, fmt.Errorf("%w: image id is required", ErrMalformedPayload)
		}
		ev.MediaID = msg.Image.ID
		ev.Text = msg.Image.Caption
	case "document":
		if msg.Document == nil || strings.TrimSpace(msg.Document.ID) == "" {
			return Event{}, fmt.Errorf("%w: document id is required", ErrMalformedPayload)
		}
		ev.MediaID = msg.Document.ID
		ev.Text = msg.Document.Caption
	case "":
		return Event{}, fmt.Errorf("%w: message type is required", ErrMalformedPayload)
	}
	return ev, nil
}
