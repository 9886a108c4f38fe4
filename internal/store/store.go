package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatcrm/wagateway/internal/db"
)

// Store is the persistence gateway. Every operation is scoped by business
// account: the account is a mandatory parameter, never ambient state.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store backed by the given pool.
func New(log *slog.Logger, pool *pgxpool.Pool) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		pool:   pool,
		logger: log.With(slog.String("service", "store")),
	}
}

// --- business accounts ---

// GetBusinessAccount resolves a tenant and its upstream bot token.
func (s *Store) GetBusinessAccount(ctx context.Context, account string) (BusinessAccount, error) {
	if strings.TrimSpace(account) == "" {
		return BusinessAccount{}, fmt.Errorf("business account is required")
	}
	var ba BusinessAccount
	err := s.pool.QueryRow(ctx,
		`SELECT account, bot_token, created_at FROM business_accounts WHERE account = $1`,
		account,
	).Scan(&ba.Account, &ba.BotToken, &ba.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BusinessAccount{}, ErrAccountNotFound
		}
		return BusinessAccount{}, fmt.Errorf("get business account: %w", err)
	}
	return ba, nil
}

// CreateBusinessAccount provisions a tenant. Conflicts are an error:
// accounts are immutable once created.
func (s *Store) CreateBusinessAccount(ctx context.Context, account, botToken string) (BusinessAccount, error) {
	if strings.TrimSpace(account) == "" || strings.TrimSpace(botToken) == "" {
		return BusinessAccount{}, fmt.Errorf("account and bot token are required")
	}
	var ba BusinessAccount
	err := s.pool.QueryRow(ctx,
		`INSERT INTO business_accounts (account, bot_token)
		 VALUES ($1, $2)
		 RETURNING account, bot_token, created_at`,
		account, botToken,
	).Scan(&ba.Account, &ba.BotToken, &ba.CreatedAt)
	if err != nil {
		return BusinessAccount{}, fmt.Errorf("create business account: %w", err)
	}
	return ba, nil
}

// --- inbound events ---

// InsertInboundEvent persists a webhook event idempotently. The unique
// constraint on (business_account, message_id) makes the check-then-insert
// atomic: a conflicting insert means the event was already processed, and
// the existing row is returned with created=false. When notify is set, the
// core-notification outbox entry is written in the same transaction, so a
// committed event always carries its notify intent.
func (s *Store) InsertInboundEvent(ctx context.Context, ev InboundEvent, notify bool) (InboundEvent, bool, error) {
	if strings.TrimSpace(ev.BusinessAccount) == "" {
		return InboundEvent{}, false, fmt.Errorf("business account is required")
	}
	if strings.TrimSpace(ev.MessageID) == "" {
		return InboundEvent{}, false, fmt.Errorf("message id is required")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return InboundEvent{}, false, fmt.Errorf("begin insert inbound event: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`INSERT INTO inbound_events
			(business_account, message_id, sender, sender_name, message_type, text_body, media_id, media_state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (business_account, message_id) DO NOTHING
		 RETURNING id::text, business_account, message_id, sender,
			coalesce(sender_name, ''), message_type, coalesce(text_body, ''),
			coalesce(media_id, ''), media_state, received_at`,
		ev.BusinessAccount, ev.MessageID, ev.Sender, nullable(ev.SenderName),
		ev.MessageType, nullable(ev.TextBody), nullable(ev.MediaID), string(ev.MediaState),
	)
	inserted, err := scanInboundEvent(row)
	if err == nil {
		if notify {
			if _, err := tx.Exec(ctx,
				`INSERT INTO core_notifications (business_account, inbound_event_id)
				 VALUES ($1, $2::uuid)`,
				inserted.BusinessAccount, inserted.ID,
			); err != nil {
				return InboundEvent{}, false, fmt.Errorf("enqueue core notification: %w", err)
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return InboundEvent{}, false, fmt.Errorf("commit inbound event: %w", err)
		}
		return inserted, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return InboundEvent{}, false, fmt.Errorf("insert inbound event: %w", err)
	}
	existing, err := s.GetInboundEvent(ctx, ev.BusinessAccount, ev.MessageID)
	if err != nil {
		return InboundEvent{}, false, err
	}
	return existing, false, nil
}

// GetInboundEvent fetches one event by its dedup key.
func (s *Store) GetInboundEvent(ctx context.Context, account, messageID string) (InboundEvent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id::text, business_account, message_id, sender,
			coalesce(sender_name, ''), message_type, coalesce(text_body, ''),
			coalesce(media_id, ''), media_state, received_at
		 FROM inbound_events
		 WHERE business_account = $1 AND message_id = $2`,
		account, messageID,
	)
	ev, err := scanInboundEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InboundEvent{}, ErrNotFound
		}
		return InboundEvent{}, fmt.Errorf("get inbound event: %w", err)
	}
	return ev, nil
}

// GetInboundEventByID fetches one event by its row id, still scoped by
// tenant.
func (s *Store) GetInboundEventByID(ctx context.Context, account, id string) (InboundEvent, error) {
	if !validID(id) {
		return InboundEvent{}, ErrNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT id::text, business_account, message_id, sender,
			coalesce(sender_name, ''), message_type, coalesce(text_body, ''),
			coalesce(media_id, ''), media_state, received_at
		 FROM inbound_events
		 WHERE business_account = $1 AND id = $2::uuid`,
		account, id,
	)
	ev, err := scanInboundEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InboundEvent{}, ErrNotFound
		}
		return InboundEvent{}, fmt.Errorf("get inbound event: %w", err)
	}
	return ev, nil
}

// ListInboundEvents returns the most recent events for one tenant.
func (s *Store) ListInboundEvents(ctx context.Context, account string, limit int32) ([]InboundEvent, error) {
	if strings.TrimSpace(account) == "" {
		return nil, fmt.Errorf("business account is required")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, business_account, message_id, sender,
			coalesce(sender_name, ''), message_type, coalesce(text_body, ''),
			coalesce(media_id, ''), media_state, received_at
		 FROM inbound_events
		 WHERE business_account = $1
		 ORDER BY received_at DESC
		 LIMIT $2`,
		account, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list inbound events: %w", err)
	}
	defer rows.Close()

	var events []InboundEvent
	for rows.Next() {
		ev, err := scanInboundEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inbound event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SetMediaState updates the media pipeline state of one event.
func (s *Store) SetMediaState(ctx context.Context, account, eventID string, state MediaState) error {
	if !validID(eventID) {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE inbound_events SET media_state = $3
		 WHERE business_account = $1 AND id = $2::uuid`,
		account, eventID, string(state),
	)
	if err != nil {
		return fmt.Errorf("set media state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- media assets ---

// CreateMediaAsset records a processed asset owned by one inbound event.
func (s *Store) CreateMediaAsset(ctx context.Context, asset MediaAsset) (MediaAsset, error) {
	if strings.TrimSpace(asset.BusinessAccount) == "" {
		return MediaAsset{}, fmt.Errorf("business account is required")
	}
	if strings.TrimSpace(asset.InboundEventID) == "" {
		return MediaAsset{}, fmt.Errorf("inbound event id is required")
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO media_assets
			(inbound_event_id, business_account, original_media_id, content_hash,
			 content_type, storage_key, thumbnail_key, size_bytes)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id::text, created_at`,
		asset.InboundEventID, asset.BusinessAccount, asset.OriginalMediaID,
		asset.ContentHash, asset.ContentType, asset.StorageKey,
		nullable(asset.ThumbnailKey), asset.SizeBytes,
	).Scan(&asset.ID, &asset.CreatedAt)
	if err != nil {
		return MediaAsset{}, fmt.Errorf("create media asset: %w", err)
	}
	return asset, nil
}

// ListMediaAssets returns the assets of one inbound event, tenant scoped.
func (s *Store) ListMediaAssets(ctx context.Context, account, eventID string) ([]MediaAsset, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, inbound_event_id::text, business_account, original_media_id,
			content_hash, content_type, storage_key, coalesce(thumbnail_key, ''),
			size_bytes, created_at
		 FROM media_assets
		 WHERE business_account = $1 AND inbound_event_id = $2::uuid
		 ORDER BY created_at`,
		account, eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list media assets: %w", err)
	}
	defer rows.Close()

	var assets []MediaAsset
	for rows.Next() {
		var a MediaAsset
		if err := rows.Scan(&a.ID, &a.InboundEventID, &a.BusinessAccount, &a.OriginalMediaID,
			&a.ContentHash, &a.ContentType, &a.StorageKey, &a.ThumbnailKey,
			&a.SizeBytes, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan media asset: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// --- outbound messages ---

// CreateOutboundMessage persists a pending dispatch record. The returned id
// is the sole mutation key for the later status transition.
func (s *Store) CreateOutboundMessage(ctx context.Context, msg OutboundMessage) (OutboundMessage, error) {
	if strings.TrimSpace(msg.BusinessAccount) == "" {
		return OutboundMessage{}, fmt.Errorf("business account is required")
	}
	if strings.TrimSpace(msg.Recipient) == "" {
		return OutboundMessage{}, fmt.Errorf("recipient is required")
	}
	body := msg.Body
	if len(body) == 0 {
		body = []byte("{}")
	}
	msg.Status = StatusPending
	err := s.pool.QueryRow(ctx,
		`INSERT INTO outbound_messages (business_account, recipient, content_type, body, status)
		 VALUES ($1, $2, $3, $4, 'pending')
		 RETURNING id::text, created_at, updated_at`,
		msg.BusinessAccount, msg.Recipient, string(msg.ContentType), body,
	).Scan(&msg.ID, &msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		return OutboundMessage{}, fmt.Errorf("create outbound message: %w", err)
	}
	return msg, nil
}

// MarkOutboundSent transitions pending -> sent. The WHERE clause enforces
// monotonicity at the store: a row already sent or failed is not touched.
func (s *Store) MarkOutboundSent(ctx context.Context, account, id, upstreamID string) error {
	return s.transitionOutbound(ctx, account, id,
		`UPDATE outbound_messages
		 SET status = 'sent', upstream_id = $3, updated_at = now()
		 WHERE business_account = $1 AND id = $2::uuid AND status = 'pending'`,
		upstreamID,
	)
}

// MarkOutboundFailed transitions pending -> failed with an error detail.
func (s *Store) MarkOutboundFailed(ctx context.Context, account, id, detail string) error {
	return s.transitionOutbound(ctx, account, id,
		`UPDATE outbound_messages
		 SET status = 'failed', failure_detail = $3, updated_at = now()
		 WHERE business_account = $1 AND id = $2::uuid AND status = 'pending'`,
		detail,
	)
}

func (s *Store) transitionOutbound(ctx context.Context, account, id, query, arg string) error {
	if !validID(id) {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, query, account, id, arg)
	if err != nil {
		return fmt.Errorf("update outbound message: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.GetOutboundMessage(ctx, account, id); err != nil {
		return err
	}
	return ErrInvalidTransition
}

// GetOutboundMessage fetches one outbound message, tenant scoped.
func (s *Store) GetOutboundMessage(ctx context.Context, account, id string) (OutboundMessage, error) {
	if !validID(id) {
		return OutboundMessage{}, ErrNotFound
	}
	var msg OutboundMessage
	var status, contentType string
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, business_account, recipient, content_type, body, status,
			coalesce(upstream_id, ''), coalesce(failure_detail, ''), created_at, updated_at
		 FROM outbound_messages
		 WHERE business_account = $1 AND id = $2::uuid`,
		account, id,
	).Scan(&msg.ID, &msg.BusinessAccount, &msg.Recipient, &contentType, &msg.Body,
		&status, &msg.UpstreamID, &msg.FailureDetail, &msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OutboundMessage{}, ErrNotFound
		}
		return OutboundMessage{}, fmt.Errorf("get outbound message: %w", err)
	}
	msg.ContentType = ContentType(contentType)
	msg.Status = OutboundStatus(status)
	return msg, nil
}

// --- outbox (core notifications) ---

// GetChatRoom fetches the conversation mapping for one client.
func (s *Store) GetChatRoom(ctx context.Context, account, clientID string) (ChatRoom, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id::text, business_account, client_id, chat_room_id, channel_id,
			status, created_at, updated_at
		 FROM chat_rooms
		 WHERE business_account = $1 AND client_id = $2`,
		account, clientID,
	)
	var cr ChatRoom
	err := row.Scan(&cr.ID, &cr.BusinessAccount, &cr.ClientID, &cr.ChatRoomID,
		&cr.ChannelID, &cr.Status, &cr.CreatedAt, &cr.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ChatRoom{}, ErrNotFound
		}
		return ChatRoom{}, fmt.Errorf("get chat room: %w", err)
	}
	return cr, nil
}

// UpsertChatRoom saves or refreshes the conversation mapping for one client.
func (s *Store) UpsertChatRoom(ctx context.Context, cr ChatRoom) (ChatRoom, error) {
	if cr.Status == "" {
		cr.Status = "active"
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO chat_rooms (business_account, client_id, chat_room_id, channel_id, status)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (business_account, client_id) DO UPDATE
		 SET chat_room_id = EXCLUDED.chat_room_id,
			 channel_id = EXCLUDED.channel_id,
			 status = EXCLUDED.status,
			 updated_at = now()
		 RETURNING id::text, business_account, client_id, chat_room_id, channel_id,
			status, created_at, updated_at`,
		cr.BusinessAccount, cr.ClientID, cr.ChatRoomID, cr.ChannelID, cr.Status,
	)
	var saved ChatRoom
	err := row.Scan(&saved.ID, &saved.BusinessAccount, &saved.ClientID, &saved.ChatRoomID,
		&saved.ChannelID, &saved.Status, &saved.CreatedAt, &saved.UpdatedAt)
	if err != nil {
		return ChatRoom{}, fmt.Errorf("upsert chat room: %w", err)
	}
	return saved, nil
}

// SetChatRoomStatus records the core API's view of the room state.
func (s *Store) SetChatRoomStatus(ctx context.Context, account, clientID, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE chat_rooms SET status = $3, updated_at = now()
		 WHERE business_account = $1 AND client_id = $2`,
		account, clientID, status,
	)
	if err != nil {
		return fmt.Errorf("set chat room status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPendingCoreNotifications returns pending outbox entries for the sweep.
func (s *Store) ListPendingCoreNotifications(ctx context.Context, limit int32) ([]CoreNotification, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, business_account, inbound_event_id::text, status, attempts,
			coalesce(last_error, ''), created_at, updated_at
		 FROM core_notifications
		 WHERE status = 'pending'
		 ORDER BY updated_at
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}
	defer rows.Close()

	var items []CoreNotification
	for rows.Next() {
		var n CoreNotification
		if err := rows.Scan(&n.ID, &n.BusinessAccount, &n.InboundEventID, &n.Status,
			&n.Attempts, &n.LastError, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// MarkCoreNotificationDone closes an outbox entry after a successful notify.
func (s *Store) MarkCoreNotificationDone(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE core_notifications SET status = 'done', updated_at = now()
		 WHERE id = $1::uuid AND status = 'pending'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark notification done: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCoreNotificationFailed bumps the attempt counter; once maxAttempts is
// reached the entry goes terminal so the sweep stops retrying it.
func (s *Store) MarkCoreNotificationFailed(ctx context.Context, id, lastError string, maxAttempts int) error {
	if !validID(id) {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE core_notifications
		 SET attempts = attempts + 1,
			 last_error = $2,
			 status = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE 'pending' END,
			 updated_at = now()
		 WHERE id = $1::uuid AND status = 'pending'`,
		id, lastError, maxAttempts,
	)
	if err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInboundEvent(row rowScanner) (InboundEvent, error) {
	var ev InboundEvent
	var state string
	err := row.Scan(&ev.ID, &ev.BusinessAccount, &ev.MessageID, &ev.Sender,
		&ev.SenderName, &ev.MessageType, &ev.TextBody, &ev.MediaID, &state, &ev.ReceivedAt)
	if err != nil {
		return InboundEvent{}, err
	}
	ev.MediaState = MediaState(state)
	return ev, nil
}

func nullable(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

// validID rejects row ids that are not UUIDs before they reach a query, so
// a malformed id reads as "no such row" instead of a database error.
func validID(id string) bool {
	_, err := db.ParseUUID(id)
	return err == nil
}
