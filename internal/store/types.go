package store

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrAccountNotFound is returned when a business account is not provisioned.
	ErrAccountNotFound = errors.New("business account not found")
	// ErrNotFound is returned when a scoped entity does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidTransition is returned when an outbound status update would
	// move a message out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// MediaState tracks the media pipeline progress of an inbound event.
type MediaState string

const (
	MediaStateNone       MediaState = "none"
	MediaStateProcessing MediaState = "processing"
	MediaStateComplete   MediaState = "complete"
	MediaStateFailed     MediaState = "failed"
)

// OutboundStatus is the dispatch status of an outbound message.
// Transitions are monotonic: pending -> sent or pending -> failed.
type OutboundStatus string

const (
	StatusPending OutboundStatus = "pending"
	StatusSent    OutboundStatus = "sent"
	StatusFailed  OutboundStatus = "failed"
)

// ContentType distinguishes the three outbound variants.
type ContentType string

const (
	ContentText         ContentType = "text"
	ContentTemplate     ContentType = "template"
	ContentNotification ContentType = "notification"
)

// NotificationStatus is the state of an outbox entry.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationDone    NotificationStatus = "done"
	NotificationFailed  NotificationStatus = "failed"
)

// BusinessAccount is the tenant registry row. Immutable once created.
type BusinessAccount struct {
	Account   string    `json:"account"`
	BotToken  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// InboundEvent is a persisted webhook event. Never mutated after insert
// except for its media state.
type InboundEvent struct {
	ID              string     `json:"id"`
	BusinessAccount string     `json:"business_account"`
	MessageID       string     `json:"message_id"`
	Sender          string     `json:"sender"`
	SenderName      string     `json:"sender_name,omitempty"`
	MessageType     string     `json:"message_type"`
	TextBody        string     `json:"text_body,omitempty"`
	MediaID         string     `json:"media_id,omitempty"`
	MediaState      MediaState `json:"media_state"`
	ReceivedAt      time.Time  `json:"received_at"`
}

// MediaAsset is a processed media attachment owned by one inbound event.
type MediaAsset struct {
	ID              string    `json:"id"`
	InboundEventID  string    `json:"inbound_event_id"`
	BusinessAccount string    `json:"business_account"`
	OriginalMediaID string    `json:"original_media_id"`
	ContentHash     string    `json:"content_hash"`
	ContentType     string    `json:"content_type"`
	StorageKey      string    `json:"storage_key"`
	ThumbnailKey    string    `json:"thumbnail_key,omitempty"`
	SizeBytes       int64     `json:"size_bytes"`
	CreatedAt       time.Time `json:"created_at"`
}

// OutboundMessage is a dispatched (or dispatching) message. Audit trail:
// rows are never deleted.
type OutboundMessage struct {
	ID              string          `json:"id"`
	BusinessAccount string          `json:"business_account"`
	Recipient       string          `json:"recipient"`
	ContentType     ContentType     `json:"content_type"`
	Body            json.RawMessage `json:"body"`
	Status          OutboundStatus  `json:"status"`
	UpstreamID      string          `json:"upstream_id,omitempty"`
	FailureDetail   string          `json:"failure_detail,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ChatRoom maps a (business account, client) pair to its core API
// conversation.
type ChatRoom struct {
	ID              string    `json:"id"`
	BusinessAccount string    `json:"business_account"`
	ClientID        string    `json:"client_id"`
	ChatRoomID      string    `json:"chat_room_id"`
	ChannelID       string    `json:"channel_id"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CoreNotification is an outbox entry: a persisted intent to notify the
// core API about an inbound event.
type CoreNotification struct {
	ID              string             `json:"id"`
	BusinessAccount string             `json:"business_account"`
	InboundEventID  string             `json:"inbound_event_id"`
	Status          NotificationStatus `json:"status"`
	Attempts        int                `json:"attempts"`
	LastError       string             `json:"last_error,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}
