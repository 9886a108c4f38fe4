package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chatcrm/wagateway/internal/coreapi"
	"github.com/chatcrm/wagateway/internal/store"
)

const (
	sweepBatchSize      = 100
	sweepTimeout        = 2 * time.Minute
	chatRoomStatusOpen  = "active"
	chatRoomStatusDone  = "closed"
	defaultMaxAttempts  = 5
	defaultSweepCadence = "@every 1m"
	mediaGraceWindow    = 5 * time.Minute
)

// errMediaInFlight defers an entry whose media pipeline is still running.
// The entry stays pending without consuming an attempt.
var errMediaInFlight = errors.New("media still processing")

// Store is the persistence surface the sweeper needs.
type Store interface {
	ListPendingCoreNotifications(ctx context.Context, limit int32) ([]store.CoreNotification, error)
	MarkCoreNotificationDone(ctx context.Context, id string) error
	MarkCoreNotificationFailed(ctx context.Context, id, lastError string, maxAttempts int) error
	GetBusinessAccount(ctx context.Context, account string) (store.BusinessAccount, error)
	GetInboundEventByID(ctx context.Context, account, id string) (store.InboundEvent, error)
	ListMediaAssets(ctx context.Context, account, eventID string) ([]store.MediaAsset, error)
	GetChatRoom(ctx context.Context, account, clientID string) (store.ChatRoom, error)
	UpsertChatRoom(ctx context.Context, cr store.ChatRoom) (store.ChatRoom, error)
	SetChatRoomStatus(ctx context.Context, account, clientID, status string) error
}

// CoreAPI is the chat-room surface of the core API.
type CoreAPI interface {
	CreateChatRoom(ctx context.Context, channelTechnicalID, clientID, whatsappChatID string) (coreapi.ChatRoom, error)
	CreateChatRoomMessage(ctx context.Context, chatRoomID, authorID, channelID, messageType, text, contentURL string) (coreapi.ChatRoomMessage, error)
	ActivateClosedChatRoom(ctx context.Context, chatRoomID, clientID string) (coreapi.ChatRoom, error)
}

// AssetResolver turns a storage key into a public content URL.
type AssetResolver interface {
	URL(key string) string
}

// Sweeper drains the core-notification outbox on a schedule. Each entry is
// retried until it reaches the attempt cap; webhook ingestion only ever
// enqueues, so core API downtime never blocks an inbound response.
type Sweeper struct {
	store       Store
	core        CoreAPI
	assets      AssetResolver
	schedule    string
	maxAttempts int
	logger      *slog.Logger
	cron        *cron.Cron
}

// NewSweeper creates an outbox sweeper.
func NewSweeper(log *slog.Logger, st Store, core CoreAPI, assets AssetResolver, schedule string, maxAttempts int) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	if schedule == "" {
		schedule = defaultSweepCadence
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Sweeper{
		store:       st,
		core:        core,
		assets:      assets,
		schedule:    schedule,
		maxAttempts: maxAttempts,
		logger:      log.With(slog.String("service", "outbox")),
	}
}

// Start begins the periodic sweep.
func (s *Sweeper) Start() error {
	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if err := s.Sweep(ctx); err != nil {
			s.logger.Error("sweep failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("outbox sweeper started", slog.String("schedule", s.schedule))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Sweep processes one batch of pending notifications. Entries fail
// independently; one poisoned notification never stalls the rest.
func (s *Sweeper) Sweep(ctx context.Context) error {
	pending, err := s.store.ListPendingCoreNotifications(ctx, sweepBatchSize)
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}
	for _, n := range pending {
		if err := s.notify(ctx, n); err != nil {
			if errors.Is(err, errMediaInFlight) {
				s.logger.Info("deferring notification",
					slog.String("notification_id", n.ID),
					slog.String("reason", err.Error()),
				)
				continue
			}
			s.logger.Warn("notify core api",
				slog.String("notification_id", n.ID),
				slog.Int("attempts", n.Attempts+1),
				slog.String("error", err.Error()),
			)
			if markErr := s.store.MarkCoreNotificationFailed(ctx, n.ID, err.Error(), s.maxAttempts); markErr != nil {
				s.logger.Error("mark notification failed",
					slog.String("notification_id", n.ID),
					slog.String("error", markErr.Error()),
				)
			}
			continue
		}
		if err := s.store.MarkCoreNotificationDone(ctx, n.ID); err != nil {
			s.logger.Error("mark notification done",
				slog.String("notification_id", n.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// notify pushes one inbound event into the core API: make sure the chat
// room exists and is open, then create the message in it.
func (s *Sweeper) notify(ctx context.Context, n store.CoreNotification) error {
	ev, err := s.store.GetInboundEventByID(ctx, n.BusinessAccount, n.InboundEventID)
	if err != nil {
		return fmt.Errorf("load inbound event: %w", err)
	}
	if ev.MediaState == store.MediaStateProcessing && time.Since(n.CreatedAt) < mediaGraceWindow {
		return errMediaInFlight
	}
	ba, err := s.store.GetBusinessAccount(ctx, n.BusinessAccount)
	if err != nil {
		return fmt.Errorf("load business account: %w", err)
	}

	room, err := s.ensureChatRoom(ctx, ba, ev.Sender)
	if err != nil {
		return err
	}

	contentURL, err := s.contentURL(ctx, ev)
	if err != nil {
		return err
	}
	_, err = s.core.CreateChatRoomMessage(ctx, room.ChatRoomID, ev.Sender, room.ChannelID,
		ev.MessageType, ev.TextBody, contentURL)
	if err != nil {
		return fmt.Errorf("create chat room message: %w", err)
	}
	return nil
}

func (s *Sweeper) ensureChatRoom(ctx context.Context, ba store.BusinessAccount, clientID string) (store.ChatRoom, error) {
	room, err := s.store.GetChatRoom(ctx, ba.Account, clientID)
	if errors.Is(err, store.ErrNotFound) {
		created, err := s.core.CreateChatRoom(ctx, ba.BotToken, clientID, clientID)
		if err != nil {
			return store.ChatRoom{}, fmt.Errorf("create chat room: %w", err)
		}
		return s.store.UpsertChatRoom(ctx, store.ChatRoom{
			BusinessAccount: ba.Account,
			ClientID:        clientID,
			ChatRoomID:      created.ChatRoomID,
			ChannelID:       created.ChannelID,
			Status:          chatRoomStatusOpen,
		})
	}
	if err != nil {
		return store.ChatRoom{}, fmt.Errorf("load chat room: %w", err)
	}

	if room.Status == chatRoomStatusDone {
		if _, err := s.core.ActivateClosedChatRoom(ctx, room.ChatRoomID, clientID); err != nil {
			return store.ChatRoom{}, fmt.Errorf("activate chat room: %w", err)
		}
		if err := s.store.SetChatRoomStatus(ctx, ba.Account, clientID, chatRoomStatusOpen); err != nil {
			return store.ChatRoom{}, err
		}
		room.Status = chatRoomStatusOpen
	}
	return room, nil
}

// contentURL resolves the processed media location for events that carry an
// attachment. Media still in flight is not an error: the text goes through
// and the asset link is absent.
func (s *Sweeper) contentURL(ctx context.Context, ev store.InboundEvent) (string, error) {
	if ev.MediaID == "" || ev.MediaState != store.MediaStateComplete {
		return "", nil
	}
	assets, err := s.store.ListMediaAssets(ctx, ev.BusinessAccount, ev.ID)
	if err != nil {
		return "", fmt.Errorf("list media assets: %w", err)
	}
	if len(assets) == 0 {
		return "", nil
	}
	return s.assets.URL(assets[0].StorageKey), nil
}
