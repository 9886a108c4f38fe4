package templates

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chatcrm/wagateway/internal/store"
	"github.com/chatcrm/wagateway/internal/whatsapp"
)

const defaultCacheTTL = 5 * time.Minute

// Store resolves business accounts to their upstream credentials.
type Store interface {
	GetBusinessAccount(ctx context.Context, account string) (store.BusinessAccount, error)
}

// Catalog lists templates from the upstream API.
type Catalog interface {
	ListTemplates(ctx context.Context, botToken string) ([]whatsapp.Template, error)
}

type cacheEntry struct {
	templates []whatsapp.Template
	expiresAt time.Time
}

// Service serves the per-account template catalog. Catalog entries are
// pass-through value objects, cached in memory with a short TTL because
// the upstream list changes rarely but the endpoint is rate limited.
type Service struct {
	store   Store
	catalog Catalog
	ttl     time.Duration
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

// NewService creates a template catalog service.
func NewService(log *slog.Logger, st Store, catalog Catalog, ttl time.Duration) *Service {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Service{
		store:   st,
		catalog: catalog,
		ttl:     ttl,
		logger:  log.With(slog.String("service", "templates")),
		cache:   make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// List returns the template catalog for one business account.
func (s *Service) List(ctx context.Context, account string) ([]whatsapp.Template, error) {
	if cached, ok := s.fromCache(account); ok {
		return cached, nil
	}

	ba, err := s.store.GetBusinessAccount(ctx, account)
	if err != nil {
		return nil, err
	}
	templates, err := s.catalog.ListTemplates(ctx, ba.BotToken)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	s.mu.Lock()
	s.cache[account] = cacheEntry{templates: templates, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()

	s.logger.Info("template catalog refreshed",
		slog.String("business_account", account),
		slog.Int("count", len(templates)),
	)
	return templates, nil
}

func (s *Service) fromCache(account string) ([]whatsapp.Template, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[account]
	if !ok || s.now().After(entry.expiresAt) {
		delete(s.cache, account)
		return nil, false
	}
	return entry.templates, true
}
