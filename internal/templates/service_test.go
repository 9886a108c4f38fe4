package templates

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatcrm/wagateway/internal/store"
	"github.com/chatcrm/wagateway/internal/whatsapp"
)

type fakeStore struct{}

func (fakeStore) GetBusinessAccount(ctx context.Context, account string) (store.BusinessAccount, error) {
	if account != "acct_1" {
		return store.BusinessAccount{}, store.ErrAccountNotFound
	}
	return store.BusinessAccount{Account: "acct_1", BotToken: "token-1"}, nil
}

type fakeCatalog struct {
	calls     int
	templates []whatsapp.Template
	err       error
}

func (f *fakeCatalog) ListTemplates(ctx context.Context, botToken string) ([]whatsapp.Template, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.templates, nil
}

func TestListFetchesAndCaches(t *testing.T) {
	catalog := &fakeCatalog{templates: []whatsapp.Template{
		{Name: "order_update", Language: "en", Status: "approved"},
	}}
	svc := NewService(nil, fakeStore{}, catalog, time.Minute)

	first, err := svc.List(context.Background(), "acct_1")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "order_update", first[0].Name)

	second, err := svc.List(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, catalog.calls)
}

func TestListCacheExpires(t *testing.T) {
	catalog := &fakeCatalog{templates: []whatsapp.Template{{Name: "a", Language: "en"}}}
	svc := NewService(nil, fakeStore{}, catalog, time.Minute)

	now := time.Now()
	svc.now = func() time.Time { return now }

	_, err := svc.List(context.Background(), "acct_1")
	require.NoError(t, err)

	svc.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = svc.List(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.calls)
}

func TestListUnknownAccount(t *testing.T) {
	svc := NewService(nil, fakeStore{}, &fakeCatalog{}, time.Minute)

	_, err := svc.List(context.Background(), "acct_other")
	assert.ErrorIs(t, err, store.ErrAccountNotFound)
}

func TestListUpstreamErrorNotCached(t *testing.T) {
	catalog := &fakeCatalog{err: &whatsapp.APIError{Status: 503, Body: "busy"}}
	svc := NewService(nil, fakeStore{}, catalog, time.Minute)

	_, err := svc.List(context.Background(), "acct_1")
	require.Error(t, err)

	catalog.err = nil
	catalog.templates = []whatsapp.Template{{Name: "a", Language: "en"}}
	list, err := svc.List(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 2, catalog.calls)
}
