package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/chatcrm/wagateway/internal/store"
	"github.com/chatcrm/wagateway/internal/whatsapp"
)

const (
	maxSendAttempts = 3
	initialBackoff  = 250 * time.Millisecond
)

// ErrValidation wraps request validation failures so handlers can map
// them to client errors.
var ErrValidation = errors.New("invalid request")

var validate = validator.New()

// Store is the persistence surface the dispatch service needs.
type Store interface {
	GetBusinessAccount(ctx context.Context, account string) (store.BusinessAccount, error)
	CreateOutboundMessage(ctx context.Context, msg store.OutboundMessage) (store.OutboundMessage, error)
	MarkOutboundSent(ctx context.Context, account, id, upstreamID string) error
	MarkOutboundFailed(ctx context.Context, account, id, detail string) error
}

// Transport submits messages to the upstream API.
type Transport interface {
	SendText(ctx context.Context, botToken string, msg whatsapp.TextMessage, idempotencyKey string) (whatsapp.SendResponse, error)
	SendTemplate(ctx context.Context, botToken string, msg whatsapp.TemplateMessage, idempotencyKey string) (whatsapp.SendResponse, error)
}

// Service dispatches outbound messages. Every send persists a pending
// record before the upstream call, so a crash mid-dispatch leaves a
// recoverable row instead of silent loss. The pending row id doubles as
// the upstream idempotency key, which keeps bounded retries duplicate-safe.
type Service struct {
	store     Store
	transport Transport
	logger    *slog.Logger
}

// NewService creates a dispatch service.
func NewService(log *slog.Logger, st Store, transport Transport) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:     st,
		transport: transport,
		logger:    log.With(slog.String("service", "dispatch")),
	}
}

// SendMessage sends an operator-authored text to a chat.
func (s *Service) SendMessage(ctx context.Context, req MessageRequest) (store.OutboundMessage, error) {
	if err := validate.Struct(req); err != nil {
		return store.OutboundMessage{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	msg := whatsapp.TextMessage{
		To:   req.To,
		Text: whatsapp.TextBody{Body: operatorPrefix + req.Text},
	}
	return s.dispatch(ctx, req.BusinessAccount, req.To, store.ContentText, msg, func(ctx context.Context, token, key string) (whatsapp.SendResponse, error) {
		return s.transport.SendText(ctx, token, msg, key)
	})
}

// SendNotification sends an automated text to a chat.
func (s *Service) SendNotification(ctx context.Context, req NotificationRequest) (store.OutboundMessage, error) {
	if err := validate.Struct(req); err != nil {
		return store.OutboundMessage{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	msg := whatsapp.TextMessage{
		To:   req.To,
		Text: whatsapp.TextBody{Body: notificationPrefix + req.Text},
	}
	return s.dispatch(ctx, req.BusinessAccount, req.To, store.ContentNotification, msg, func(ctx context.Context, token, key string) (whatsapp.SendResponse, error) {
		return s.transport.SendText(ctx, token, msg, key)
	})
}

// SendTemplate sends a pre-approved template message.
func (s *Service) SendTemplate(ctx context.Context, req TemplateRequest) (store.OutboundMessage, error) {
	if err := validate.Struct(req); err != nil {
		return store.OutboundMessage{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	params := make([]whatsapp.Param, 0, len(req.Params))
	for _, p := range req.Params {
		params = append(params, whatsapp.Param{Default: p})
	}
	msg := whatsapp.TemplateMessage{
		To:  req.To,
		TTL: req.TTL,
		HSM: whatsapp.HSMBody{
			Namespace:         req.Namespace,
			ElementName:       req.ElementName,
			Language:          whatsapp.Language{Policy: "deterministic", Code: req.LanguageCode},
			LocalizableParams: params,
		},
	}
	return s.dispatch(ctx, req.BusinessAccount, req.To, store.ContentTemplate, msg, func(ctx context.Context, token, key string) (whatsapp.SendResponse, error) {
		return s.transport.SendTemplate(ctx, token, msg, key)
	})
}

type sendFunc func(ctx context.Context, botToken, idempotencyKey string) (whatsapp.SendResponse, error)

func (s *Service) dispatch(ctx context.Context, account, recipient string, content store.ContentType, payload any, send sendFunc) (store.OutboundMessage, error) {
	ba, err := s.store.GetBusinessAccount(ctx, account)
	if err != nil {
		return store.OutboundMessage{}, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return store.OutboundMessage{}, fmt.Errorf("marshal payload: %w", err)
	}
	pending, err := s.store.CreateOutboundMessage(ctx, store.OutboundMessage{
		BusinessAccount: ba.Account,
		Recipient:       recipient,
		ContentType:     content,
		Body:            body,
	})
	if err != nil {
		return store.OutboundMessage{}, fmt.Errorf("persist outbound message: %w", err)
	}

	resp, err := s.sendWithRetry(ctx, ba.BotToken, pending.ID, send)
	if err != nil {
		if markErr := s.store.MarkOutboundFailed(ctx, ba.Account, pending.ID, err.Error()); markErr != nil {
			s.logger.Error("mark outbound failed",
				slog.String("message_id", pending.ID),
				slog.String("error", markErr.Error()),
			)
		}
		pending.Status = store.StatusFailed
		pending.FailureDetail = err.Error()
		return pending, err
	}

	upstreamID := ""
	if len(resp.Messages) > 0 {
		upstreamID = resp.Messages[0].ID
	}
	if err := s.store.MarkOutboundSent(ctx, ba.Account, pending.ID, upstreamID); err != nil {
		return pending, fmt.Errorf("mark outbound sent: %w", err)
	}
	pending.Status = store.StatusSent
	pending.UpstreamID = upstreamID

	s.logger.Info("outbound message sent",
		slog.String("business_account", ba.Account),
		slog.String("content_type", string(content)),
		slog.String("message_id", pending.ID),
		slog.String("upstream_id", upstreamID),
	)
	return pending, nil
}

// sendWithRetry retries transient upstream failures with exponential
// backoff. Permanent failures (upstream 4xx) return immediately.
func (s *Service) sendWithRetry(ctx context.Context, botToken, idempotencyKey string, send sendFunc) (whatsapp.SendResponse, error) {
	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		resp, err := send(ctx, botToken, idempotencyKey)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if whatsapp.IsPermanent(err) {
			return whatsapp.SendResponse{}, err
		}
		if attempt == maxSendAttempts {
			break
		}
		s.logger.Warn("upstream send failed, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return whatsapp.SendResponse{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return whatsapp.SendResponse{}, fmt.Errorf("send exhausted %d attempts: %w", maxSendAttempts, lastErr)
}
