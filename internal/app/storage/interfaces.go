package storage

import (
	"context"
	"errors"
	"time"

	"github.com/conedex/conedex/internal/app/domain/analytics"
	"github.com/conedex/conedex/internal/app/domain/badge"
	"github.com/conedex/conedex/internal/app/domain/flavor"
	"github.com/conedex/conedex/internal/app/domain/moderation"
	"github.com/conedex/conedex/internal/app/domain/newsletter"
	"github.com/conedex/conedex/internal/app/domain/notification"
	"github.com/conedex/conedex/internal/app/domain/profile"
	"github.com/conedex/conedex/internal/app/domain/quest"
	"github.com/conedex/conedex/internal/app/domain/shop"
)

var (
	// ErrNotFound is wrapped by every store when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is wrapped when a uniqueness or state precondition fails.
	ErrConflict = errors.New("conflict")
)

// ProfileStore persists user profiles.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error)
	UpdateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error)
	GetProfile(ctx context.Context, id string) (profile.Profile, error)
	GetProfileByUsername(ctx context.Context, username string) (profile.Profile, error)
	ListProfiles(ctx context.Context, filter profile.Filter) ([]profile.Profile, error)
	DeleteProfile(ctx context.Context, id string) error
	AddPoints(ctx context.Context, id string, delta int) (profile.Profile, error)
	Leaderboard(ctx context.Context, limit int) ([]profile.Profile, error)
}

// ShopStore persists shop listings.
type ShopStore interface {
	CreateShop(ctx context.Context, s shop.Shop) (shop.Shop, error)
	UpdateShop(ctx context.Context, s shop.Shop) (shop.Shop, error)
	GetShop(ctx context.Context, id string) (shop.Shop, error)
	GetShopByPlaceID(ctx context.Context, placeID string) (shop.Shop, error)
	ListShops(ctx context.Context, filter shop.Filter) ([]shop.Shop, error)
}

// ClaimStore persists shop ownership claims.
type ClaimStore interface {
	CreateClaim(ctx context.Context, c shop.Claim) (shop.Claim, error)
	UpdateClaim(ctx context.Context, c shop.Claim) (shop.Claim, error)
	GetClaim(ctx context.Context, id string) (shop.Claim, error)
	ListClaims(ctx context.Context, filter shop.ClaimFilter) ([]shop.Claim, error)
}

// FlavorStore persists flavors.
type FlavorStore interface {
	CreateFlavor(ctx context.Context, f flavor.Flavor) (flavor.Flavor, error)
	UpdateFlavor(ctx context.Context, f flavor.Flavor) (flavor.Flavor, error)
	GetFlavor(ctx context.Context, id string) (flavor.Flavor, error)
	ListFlavors(ctx context.Context, filter flavor.Filter) ([]flavor.Flavor, error)
}

// LogStore persists flavor logs.
type LogStore interface {
	CreateLog(ctx context.Context, l flavor.Log) (flavor.Log, error)
	UpdateLog(ctx context.Context, l flavor.Log) (flavor.Log, error)
	GetLog(ctx context.Context, id string) (flavor.Log, error)
	DeleteLog(ctx context.Context, id string) error
	ListLogs(ctx context.Context, userID string, limit, offset int) ([]flavor.Log, error)
	// ListLogEntries returns the user's logs visited at or after since,
	// joined with flavor categories. A zero since returns everything.
	ListLogEntries(ctx context.Context, userID string, since time.Time) ([]flavor.LogEntry, error)
}

// QuestStore persists quests and participations.
type QuestStore interface {
	CreateQuest(ctx context.Context, q quest.Quest) (quest.Quest, error)
	UpdateQuest(ctx context.Context, q quest.Quest) (quest.Quest, error)
	GetQuest(ctx context.Context, id string) (quest.Quest, error)
	ListQuests(ctx context.Context, activeOnly bool) ([]quest.Quest, error)
	DeleteQuest(ctx context.Context, id string) error

	CreateParticipation(ctx context.Context, p quest.Participation) (quest.Participation, error)
	UpdateParticipation(ctx context.Context, p quest.Participation) (quest.Participation, error)
	GetParticipation(ctx context.Context, userID, questID string) (quest.Participation, error)
	ListParticipations(ctx context.Context, userID string, status quest.ParticipationStatus) ([]quest.Participation, error)
	ListQuestParticipations(ctx context.Context, questID string, status quest.ParticipationStatus) ([]quest.Participation, error)
}

// BadgeStore persists badges and awards.
type BadgeStore interface {
	CreateBadge(ctx context.Context, b badge.Badge) (badge.Badge, error)
	UpdateBadge(ctx context.Context, b badge.Badge) (badge.Badge, error)
	GetBadge(ctx context.Context, id string) (badge.Badge, error)
	ListBadges(ctx context.Context) ([]badge.Badge, error)
	DeleteBadge(ctx context.Context, id string) error

	// CreateAward returns ErrConflict when the user already holds the badge.
	CreateAward(ctx context.Context, a badge.Award) (badge.Award, error)
	GetAward(ctx context.Context, userID, badgeID string) (badge.Award, error)
	ListAwards(ctx context.Context, userID string) ([]badge.Award, error)
}

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error)
	GetNotification(ctx context.Context, id string) (notification.Notification, error)
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]notification.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error)
	DeleteNotification(ctx context.Context, id string) error
}

// NewsletterStore persists subscribers and campaigns.
type NewsletterStore interface {
	CreateSubscriber(ctx context.Context, s newsletter.Subscriber) (newsletter.Subscriber, error)
	UpdateSubscriber(ctx context.Context, s newsletter.Subscriber) (newsletter.Subscriber, error)
	GetSubscriberByEmail(ctx context.Context, email string) (newsletter.Subscriber, error)
	GetSubscriberByToken(ctx context.Context, token string) (newsletter.Subscriber, error)
	ListSubscribers(ctx context.Context, status newsletter.SubscriberStatus) ([]newsletter.Subscriber, error)

	CreateNewsletter(ctx context.Context, n newsletter.Newsletter) (newsletter.Newsletter, error)
	UpdateNewsletter(ctx context.Context, n newsletter.Newsletter) (newsletter.Newsletter, error)
	GetNewsletter(ctx context.Context, id string) (newsletter.Newsletter, error)
	ListNewsletters(ctx context.Context) ([]newsletter.Newsletter, error)
	DeleteNewsletter(ctx context.Context, id string) error
	// TransitionNewsletter moves a newsletter to `to` only if its current
	// status is one of from; otherwise it returns ErrConflict.
	TransitionNewsletter(ctx context.Context, id string, from []newsletter.Status, to newsletter.Status) (newsletter.Newsletter, error)
	ListDueNewsletters(ctx context.Context, now time.Time) ([]newsletter.Newsletter, error)
}

// ModerationStore persists moderation queue items.
type ModerationStore interface {
	CreateModerationItem(ctx context.Context, item moderation.Item) (moderation.Item, error)
	UpdateModerationItem(ctx context.Context, item moderation.Item) (moderation.Item, error)
	GetModerationItem(ctx context.Context, id string) (moderation.Item, error)
	ListModerationItems(ctx context.Context, status moderation.Status) ([]moderation.Item, error)
}

// Entity names accepted by AnalyticsStore.CountCreated.
const (
	EntityUsers = "users"
	EntityShops = "shops"
	EntityLogs  = "logs"
)

// AnalyticsStore runs aggregate queries.
type AnalyticsStore interface {
	Totals(ctx context.Context) (analytics.Totals, error)
	// CountCreated counts rows of entity created in [from, to).
	CountCreated(ctx context.Context, entity string, from, to time.Time) (int, error)
	TopFlavors(ctx context.Context, limit int, since time.Time) ([]analytics.RankedFlavor, error)
	TopShops(ctx context.Context, limit int, since time.Time) ([]analytics.RankedShop, error)
	// RatingDistribution counts logs per rating, for one shop or all when
	// shopID is empty.
	RatingDistribution(ctx context.Context, shopID string) (map[int]int, error)
	// DailyLogCounts returns per-UTC-day counts since the given time. Days
	// without logs are omitted.
	DailyLogCounts(ctx context.Context, since time.Time) ([]analytics.DailyCount, error)
	ShopStats(ctx context.Context, shopID string) (shop.Stats, error)
}
