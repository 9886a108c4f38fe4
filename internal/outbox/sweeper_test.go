package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatcrm/wagateway/internal/coreapi"
	"github.com/chatcrm/wagateway/internal/store"
)

type fakeStore struct {
	pending []store.CoreNotification
	events  map[string]store.InboundEvent
	assets  map[string][]store.MediaAsset
	rooms   map[string]store.ChatRoom

	done    []string
	failed  []string
	maxSeen int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events: map[string]store.InboundEvent{},
		assets: map[string][]store.MediaAsset{},
		rooms:  map[string]store.ChatRoom{},
	}
}

func (f *fakeStore) ListPendingCoreNotifications(ctx context.Context, limit int32) ([]store.CoreNotification, error) {
	return f.pending, nil
}

func (f *fakeStore) MarkCoreNotificationDone(ctx context.Context, id string) error {
	f.done = append(f.done, id)
	return nil
}

func (f *fakeStore) MarkCoreNotificationFailed(ctx context.Context, id, lastError string, maxAttempts int) error {
	f.failed = append(f.failed, id)
	f.maxSeen = maxAttempts
	return nil
}

func (f *fakeStore) GetBusinessAccount(ctx context.Context, account string) (store.BusinessAccount, error) {
	return store.BusinessAccount{Account: account, BotToken: "tech-" + account}, nil
}

func (f *fakeStore) GetInboundEventByID(ctx context.Context, account, id string) (store.InboundEvent, error) {
	ev, ok := f.events[id]
	if !ok {
		return store.InboundEvent{}, store.ErrNotFound
	}
	return ev, nil
}

func (f *fakeStore) ListMediaAssets(ctx context.Context, account, eventID string) ([]store.MediaAsset, error) {
	return f.assets[eventID], nil
}

func (f *fakeStore) GetChatRoom(ctx context.Context, account, clientID string) (store.ChatRoom, error) {
	room, ok := f.rooms[account+"/"+clientID]
	if !ok {
		return store.ChatRoom{}, store.ErrNotFound
	}
	return room, nil
}

func (f *fakeStore) UpsertChatRoom(ctx context.Context, cr store.ChatRoom) (store.ChatRoom, error) {
	cr.ID = "cr-1"
	f.rooms[cr.BusinessAccount+"/"+cr.ClientID] = cr
	return cr, nil
}

func (f *fakeStore) SetChatRoomStatus(ctx context.Context, account, clientID, status string) error {
	room, ok := f.rooms[account+"/"+clientID]
	if !ok {
		return store.ErrNotFound
	}
	room.Status = status
	f.rooms[account+"/"+clientID] = room
	return nil
}

type fakeCore struct {
	createdRooms  int
	activations   int
	messages      []string
	contentURLs   []string
	messageErr    error
	createRoomErr error
}

func (f *fakeCore) CreateChatRoom(ctx context.Context, channelTechnicalID, clientID, whatsappChatID string) (coreapi.ChatRoom, error) {
	f.createdRooms++
	if f.createRoomErr != nil {
		return coreapi.ChatRoom{}, f.createRoomErr
	}
	return coreapi.ChatRoom{ChatRoomID: "room-1", ChannelID: "ch-1", ChatRoomStatus: "active"}, nil
}

func (f *fakeCore) CreateChatRoomMessage(ctx context.Context, chatRoomID, authorID, channelID, messageType, text, contentURL string) (coreapi.ChatRoomMessage, error) {
	if f.messageErr != nil {
		return coreapi.ChatRoomMessage{}, f.messageErr
	}
	f.messages = append(f.messages, text)
	f.contentURLs = append(f.contentURLs, contentURL)
	return coreapi.ChatRoomMessage{ChatRoomID: chatRoomID, MessageID: "msg-1"}, nil
}

func (f *fakeCore) ActivateClosedChatRoom(ctx context.Context, chatRoomID, clientID string) (coreapi.ChatRoom, error) {
	f.activations++
	return coreapi.ChatRoom{ChatRoomID: chatRoomID, ChatRoomStatus: "active"}, nil
}

type fakeResolver struct{}

func (fakeResolver) URL(key string) string { return "http://files/" + key }

func textNotification(st *fakeStore) store.CoreNotification {
	st.events["ev-1"] = store.InboundEvent{
		ID:              "ev-1",
		BusinessAccount: "acct_1",
		MessageID:       "wamid.1",
		Sender:          "15551234567",
		MessageType:     "text",
		TextBody:        "hi",
		MediaState:      store.MediaStateNone,
	}
	n := store.CoreNotification{ID: "n-1", BusinessAccount: "acct_1", InboundEventID: "ev-1"}
	st.pending = []store.CoreNotification{n}
	return n
}

func TestSweepBootstrapsChatRoom(t *testing.T) {
	st := newFakeStore()
	textNotification(st)
	core := &fakeCore{}
	sweeper := NewSweeper(nil, st, core, fakeResolver{}, "", 0)

	require.NoError(t, sweeper.Sweep(context.Background()))
	assert.Equal(t, 1, core.createdRooms)
	assert.Equal(t, []string{"hi"}, core.messages)
	assert.Equal(t, []string{"n-1"}, st.done)
	assert.Empty(t, st.failed)

	room, err := st.GetChatRoom(context.Background(), "acct_1", "15551234567")
	require.NoError(t, err)
	assert.Equal(t, "room-1", room.ChatRoomID)
	assert.Equal(t, chatRoomStatusOpen, room.Status)
}

func TestSweepReusesExistingRoom(t *testing.T) {
	st := newFakeStore()
	textNotification(st)
	st.rooms["acct_1/15551234567"] = store.ChatRoom{
		BusinessAccount: "acct_1",
		ClientID:        "15551234567",
		ChatRoomID:      "room-7",
		ChannelID:       "ch-7",
		Status:          chatRoomStatusOpen,
	}
	core := &fakeCore{}
	sweeper := NewSweeper(nil, st, core, fakeResolver{}, "", 0)

	require.NoError(t, sweeper.Sweep(context.Background()))
	assert.Zero(t, core.createdRooms)
	assert.Zero(t, core.activations)
	assert.Equal(t, []string{"n-1"}, st.done)
}

func TestSweepReactivatesClosedRoom(t *testing.T) {
	st := newFakeStore()
	textNotification(st)
	st.rooms["acct_1/15551234567"] = store.ChatRoom{
		BusinessAccount: "acct_1",
		ClientID:        "15551234567",
		ChatRoomID:      "room-7",
		ChannelID:       "ch-7",
		Status:          chatRoomStatusDone,
	}
	core := &fakeCore{}
	sweeper := NewSweeper(nil, st, core, fakeResolver{}, "", 0)

	require.NoError(t, sweeper.Sweep(context.Background()))
	assert.Equal(t, 1, core.activations)
	assert.Equal(t, chatRoomStatusOpen, st.rooms["acct_1/15551234567"].Status)
	assert.Equal(t, []string{"n-1"}, st.done)
}

func TestSweepAttachesContentURL(t *testing.T) {
	st := newFakeStore()
	st.events["ev-2"] = store.InboundEvent{
		ID:              "ev-2",
		BusinessAccount: "acct_1",
		Sender:          "15551234567",
		MessageType:     "image",
		MediaID:         "media-9",
		MediaState:      store.MediaStateComplete,
	}
	st.assets["ev-2"] = []store.MediaAsset{{StorageKey: "acct_1/media/ab/abcd.jpg"}}
	st.pending = []store.CoreNotification{{ID: "n-2", BusinessAccount: "acct_1", InboundEventID: "ev-2"}}
	core := &fakeCore{}
	sweeper := NewSweeper(nil, st, core, fakeResolver{}, "", 0)

	require.NoError(t, sweeper.Sweep(context.Background()))
	require.Len(t, core.contentURLs, 1)
	assert.Equal(t, "http://files/acct_1/media/ab/abcd.jpg", core.contentURLs[0])
}

func TestSweepFailedMediaOmitsContentURL(t *testing.T) {
	st := newFakeStore()
	st.events["ev-3"] = store.InboundEvent{
		ID:              "ev-3",
		BusinessAccount: "acct_1",
		Sender:          "15551234567",
		MessageType:     "image",
		MediaID:         "media-9",
		MediaState:      store.MediaStateFailed,
	}
	st.pending = []store.CoreNotification{{ID: "n-3", BusinessAccount: "acct_1", InboundEventID: "ev-3"}}
	core := &fakeCore{}
	sweeper := NewSweeper(nil, st, core, fakeResolver{}, "", 0)

	require.NoError(t, sweeper.Sweep(context.Background()))
	require.Len(t, core.contentURLs, 1)
	assert.Empty(t, core.contentURLs[0])
	assert.Equal(t, []string{"n-3"}, st.done)
}

func TestSweepDefersInFlightMedia(t *testing.T) {
	st := newFakeStore()
	st.events["ev-4"] = store.InboundEvent{
		ID:              "ev-4",
		BusinessAccount: "acct_1",
		Sender:          "15551234567",
		MessageType:     "image",
		MediaID:         "media-9",
		MediaState:      store.MediaStateProcessing,
	}
	st.pending = []store.CoreNotification{{
		ID: "n-4", BusinessAccount: "acct_1", InboundEventID: "ev-4",
		CreatedAt: time.Now(),
	}}
	core := &fakeCore{}
	sweeper := NewSweeper(nil, st, core, fakeResolver{}, "", 0)

	require.NoError(t, sweeper.Sweep(context.Background()))
	// Stays pending for the next sweep without burning an attempt.
	assert.Empty(t, core.messages)
	assert.Empty(t, st.done)
	assert.Empty(t, st.failed)
}

func TestSweepStuckMediaDegradesAfterGrace(t *testing.T) {
	st := newFakeStore()
	st.events["ev-5"] = store.InboundEvent{
		ID:              "ev-5",
		BusinessAccount: "acct_1",
		Sender:          "15551234567",
		MessageType:     "image",
		MediaID:         "media-9",
		MediaState:      store.MediaStateProcessing,
	}
	st.pending = []store.CoreNotification{{
		ID: "n-5", BusinessAccount: "acct_1", InboundEventID: "ev-5",
		CreatedAt: time.Now().Add(-2 * mediaGraceWindow),
	}}
	core := &fakeCore{}
	sweeper := NewSweeper(nil, st, core, fakeResolver{}, "", 0)

	require.NoError(t, sweeper.Sweep(context.Background()))
	require.Len(t, core.contentURLs, 1)
	assert.Empty(t, core.contentURLs[0])
	assert.Equal(t, []string{"n-5"}, st.done)
}

func TestSweepMarksFailureAndContinues(t *testing.T) {
	st := newFakeStore()
	st.events["ev-1"] = store.InboundEvent{
		ID: "ev-1", BusinessAccount: "acct_1", Sender: "1", MessageType: "text", TextBody: "a",
	}
	st.events["ev-2"] = store.InboundEvent{
		ID: "ev-2", BusinessAccount: "acct_1", Sender: "2", MessageType: "text", TextBody: "b",
	}
	st.pending = []store.CoreNotification{
		{ID: "n-1", BusinessAccount: "acct_1", InboundEventID: "ev-missing"},
		{ID: "n-2", BusinessAccount: "acct_1", InboundEventID: "ev-2"},
	}
	core := &fakeCore{}
	sweeper := NewSweeper(nil, st, core, fakeResolver{}, "", 3)

	require.NoError(t, sweeper.Sweep(context.Background()))
	assert.Equal(t, []string{"n-1"}, st.failed)
	assert.Equal(t, []string{"n-2"}, st.done)
	assert.Equal(t, 3, st.maxSeen)
}

func TestSweepCoreAPIDownMarksFailed(t *testing.T) {
	st := newFakeStore()
	textNotification(st)
	core := &fakeCore{messageErr: errors.New("core api unreachable")}
	sweeper := NewSweeper(nil, st, core, fakeResolver{}, "", 0)

	require.NoError(t, sweeper.Sweep(context.Background()))
	assert.Equal(t, []string{"n-1"}, st.failed)
	assert.Empty(t, st.done)
}
