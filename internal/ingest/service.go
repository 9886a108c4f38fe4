package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/chatcrm/wagateway/internal/media"
	"github.com/chatcrm/wagateway/internal/store"
	"github.com/chatcrm/wagateway/internal/whatsapp"
)

// unsupportedReply is sent back to the chat when a message type the
// gateway cannot handle arrives.
const unsupportedReply = "Sorry, this message type is not supported yet. Please send text, an image, or a document."

// Store is the persistence surface the ingestion service needs. The insert
// carries the notify intent so the event and its outbox entry commit
// together.
type Store interface {
	GetBusinessAccount(ctx context.Context, account string) (store.BusinessAccount, error)
	InsertInboundEvent(ctx context.Context, ev store.InboundEvent, notify bool) (store.InboundEvent, bool, error)
	SetMediaState(ctx context.Context, account, eventID string, state store.MediaState) error
}

// MediaProcessor runs the media pipeline for one inbound attachment.
type MediaProcessor interface {
	Process(ctx context.Context, input media.ProcessInput) (store.MediaAsset, error)
}

// Replier sends auto-replies back into the originating chat.
type Replier interface {
	SendText(ctx context.Context, botToken string, msg whatsapp.TextMessage, idempotencyKey string) (whatsapp.SendResponse, error)
}

// Result reports what ingestion did with one webhook delivery.
type Result struct {
	Event   store.InboundEvent `json:"event"`
	Created bool               `json:"created"`
}

// Service ingests webhook deliveries. Deliveries are idempotent on
// (business account, message id): replays return the stored event without
// re-notifying, only resuming a media pipeline the first delivery left
// unfinished.
type Service struct {
	store   Store
	media   MediaProcessor
	replier Replier
	logger  *slog.Logger
}

// NewService creates an ingestion service.
func NewService(log *slog.Logger, st Store, processor MediaProcessor, replier Replier) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:   st,
		media:   processor,
		replier: replier,
		logger:  log.With(slog.String("service", "ingest")),
	}
}

// Handle processes one raw webhook body for the given business account.
func (s *Service) Handle(ctx context.Context, account string, body []byte) (Result, error) {
	ev, err := ParsePayload(body)
	if err != nil {
		return Result{}, err
	}

	ba, err := s.store.GetBusinessAccount(ctx, account)
	if err != nil {
		return Result{}, err
	}

	mediaState := store.MediaStateNone
	if ev.MediaID != "" {
		mediaState = store.MediaStateProcessing
	}
	stored, created, err := s.store.InsertInboundEvent(ctx, store.InboundEvent{
		BusinessAccount: ba.Account,
		MessageID:       ev.MessageID,
		Sender:          ev.Sender,
		SenderName:      ev.SenderName,
		MessageType:     ev.Type,
		TextBody:        ev.Text,
		MediaID:         ev.MediaID,
		MediaState:      mediaState,
	}, supportedType(ev.Type))
	if err != nil {
		return Result{}, fmt.Errorf("persist inbound event: %w", err)
	}
	if !created {
		if stored.MediaID != "" && stored.MediaState == store.MediaStateProcessing {
			// A crash mid-pipeline left the event half done. The pipeline
			// is content addressed, so the replay can pick it back up.
			stored.MediaState = s.processMedia(ctx, ba, stored)
		}
		s.logger.Info("duplicate webhook delivery",
			slog.String("business_account", ba.Account),
			slog.String("message_id", ev.MessageID),
		)
		return Result{Event: stored, Created: false}, nil
	}

	if !supportedType(ev.Type) {
		s.autoReply(ctx, ba, ev)
		return Result{Event: stored, Created: true}, nil
	}

	if ev.MediaID != "" {
		stored.MediaState = s.processMedia(ctx, ba, stored)
	}

	s.logger.Info("inbound event stored",
		slog.String("business_account", ba.Account),
		slog.String("message_id", ev.MessageID),
		slog.String("message_type", ev.Type),
	)
	return Result{Event: stored, Created: true}, nil
}

// processMedia runs the pipeline and records the outcome. Media failures
// degrade the event instead of failing the delivery: the text part is
// already durable and the platform would replay the whole webhook otherwise.
func (s *Service) processMedia(ctx context.Context, ba store.BusinessAccount, ev store.InboundEvent) store.MediaState {
	_, err := s.media.Process(ctx, media.ProcessInput{
		BusinessAccount: ba.Account,
		BotToken:        ba.BotToken,
		InboundEventID:  ev.ID,
		MediaID:         ev.MediaID,
	})
	state := store.MediaStateComplete
	if err != nil {
		state = store.MediaStateFailed
		s.logger.Error("media pipeline failed",
			slog.String("business_account", ba.Account),
			slog.String("media_id", ev.MediaID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.store.SetMediaState(ctx, ba.Account, ev.ID, state); err != nil {
		s.logger.Error("set media state",
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
	}
	return state
}

// autoReply tells the sender their message type cannot be handled. Best
// effort; the event is already stored.
func (s *Service) autoReply(ctx context.Context, ba store.BusinessAccount, ev Event) {
	if s.replier == nil {
		return
	}
	msg := whatsapp.TextMessage{
		To:   ev.Sender,
		Text: whatsapp.TextBody{Body: unsupportedReply},
	}
	if _, err := s.replier.SendText(ctx, ba.BotToken, msg, uuid.NewString()); err != nil {
		s.logger.Error("auto-reply failed",
			slog.String("business_account", ba.Account),
			slog.String("sender", ev.Sender),
			slog.String("error", err.Error()),
		)
	}
}

func supportedType(t string) bool {
	switch t {
	case "text", "image", "document":
		return true
	}
	return false
}
