package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/conedex/conedex/internal/app/domain/badge"
	"github.com/conedex/conedex/internal/app/domain/flavor"
	"github.com/conedex/conedex/internal/app/domain/moderation"
	"github.com/conedex/conedex/internal/app/domain/newsletter"
	"github.com/conedex/conedex/internal/app/domain/notification"
	"github.com/conedex/conedex/internal/app/domain/profile"
	"github.com/conedex/conedex/internal/app/domain/quest"
	"github.com/conedex/conedex/internal/app/domain/shop"
	"github.com/conedex/conedex/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu             sync.RWMutex
	now            func() time.Time
	profiles       map[string]profile.Profile
	shops          map[string]shop.Shop
	claims         map[string]shop.Claim
	flavors        map[string]flavor.Flavor
	logs           map[string]flavor.Log
	quests         map[string]quest.Quest
	participations map[string]quest.Participation
	badges         map[string]badge.Badge
	awards         map[string]badge.Award
	notifications  map[string]notification.Notification
	subscribers    map[string]newsletter.Subscriber
	newsletters    map[string]newsletter.Newsletter
	moderation     map[string]moderation.Item
}

var (
	_ storage.ProfileStore      = (*Store)(nil)
	_ storage.ShopStore         = (*Store)(nil)
	_ storage.ClaimStore        = (*Store)(nil)
	_ storage.FlavorStore       = (*Store)(nil)
	_ storage.LogStore          = (*Store)(nil)
	_ storage.QuestStore        = (*Store)(nil)
	_ storage.BadgeStore        = (*Store)(nil)
	_ storage.NotificationStore = (*Store)(nil)
	_ storage.NewsletterStore   = (*Store)(nil)
	_ storage.ModerationStore   = (*Store)(nil)
	_ storage.AnalyticsStore    = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		now:            func() time.Time { return time.Now().UTC() },
		profiles:       make(map[string]profile.Profile),
		shops:          make(map[string]shop.Shop),
		claims:         make(map[string]shop.Claim),
		flavors:        make(map[string]flavor.Flavor),
		logs:           make(map[string]flavor.Log),
		quests:         make(map[string]quest.Quest),
		participations: make(map[string]quest.Participation),
		badges:         make(map[string]badge.Badge),
		awards:         make(map[string]badge.Award),
		notifications:  make(map[string]notification.Notification),
		subscribers:    make(map[string]newsletter.Subscriber),
		newsletters:    make(map[string]newsletter.Newsletter),
		moderation:     make(map[string]moderation.Item),
	}
}

// SetClock replaces the store's time source. Tests use it to control
// CreatedAt stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = func() time.Time { return now().UTC() }
	s.mu.Unlock()
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
}

func conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), storage.ErrConflict)
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func stamp(created *time.Time, updated *time.Time, now time.Time) {
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
