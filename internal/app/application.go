package app

import (
	"context"
	"fmt"
	"time"

	"github.com/conedex/conedex/internal/app/metrics"
	"github.com/conedex/conedex/internal/app/services/analytics"
	"github.com/conedex/conedex/internal/app/services/badges"
	"github.com/conedex/conedex/internal/app/services/claims"
	"github.com/conedex/conedex/internal/app/services/flavors"
	"github.com/conedex/conedex/internal/app/services/importer"
	"github.com/conedex/conedex/internal/app/services/logs"
	"github.com/conedex/conedex/internal/app/services/moderation"
	"github.com/conedex/conedex/internal/app/services/newsletters"
	"github.com/conedex/conedex/internal/app/services/notifications"
	"github.com/conedex/conedex/internal/app/services/profiles"
	"github.com/conedex/conedex/internal/app/services/quests"
	"github.com/conedex/conedex/internal/app/services/shops"
	"github.com/conedex/conedex/internal/app/storage"
	"github.com/conedex/conedex/internal/app/storage/memory"
	"github.com/conedex/conedex/internal/app/system"
	"github.com/conedex/conedex/internal/cache"
	"github.com/conedex/conedex/internal/mailer"
	"github.com/conedex/conedex/internal/scheduler"
	"github.com/conedex/conedex/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Profiles      storage.ProfileStore
	Shops         storage.ShopStore
	Claims        storage.ClaimStore
	Flavors       storage.FlavorStore
	Logs          storage.LogStore
	Quests        storage.QuestStore
	Badges        storage.BadgeStore
	Notifications storage.NotificationStore
	Newsletters   storage.NewsletterStore
	Moderation    storage.ModerationStore
	Analytics     storage.AnalyticsStore
}

// Providers are the hosted backends. Every member is optional; leave a
// member nil (not a typed nil pointer) to disable it.
type Providers struct {
	Auth          profiles.AuthAdmin
	Objects       shops.ObjectStore
	Places        importer.PlacesClient
	Describer     importer.Describer
	Mailer        mailer.Mailer
	AI            moderation.Providers
	Cache         cache.Cache
	PublicBaseURL string
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Profiles      *profiles.Service
	Shops         *shops.Service
	Claims        *claims.Service
	Importer      *importer.Service
	Flavors       *flavors.Service
	Logs          *logs.Service
	Quests        *quests.Service
	Badges        *badges.Service
	Notifications *notifications.Service
	Newsletters   *newsletters.Service
	Moderation    *moderation.Service
	Analytics     *analytics.Service
	Scheduler     *scheduler.Scheduler
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, providers Providers, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Profiles == nil {
		stores.Profiles = mem
	}
	if stores.Shops == nil {
		stores.Shops = mem
	}
	if stores.Claims == nil {
		stores.Claims = mem
	}
	if stores.Flavors == nil {
		stores.Flavors = mem
	}
	if stores.Logs == nil {
		stores.Logs = mem
	}
	if stores.Quests == nil {
		stores.Quests = mem
	}
	if stores.Badges == nil {
		stores.Badges = mem
	}
	if stores.Notifications == nil {
		stores.Notifications = mem
	}
	if stores.Newsletters == nil {
		stores.Newsletters = mem
	}
	if stores.Moderation == nil {
		stores.Moderation = mem
	}
	if stores.Analytics == nil {
		stores.Analytics = mem
	}
	if providers.Mailer == nil {
		providers.Mailer = mailer.NewLogMailer(log.Named("mailer"))
	}

	manager := system.NewManager()

	notificationService := notifications.New(stores.Notifications, stores.Profiles, notifications.NewHub(0), log.Named("notifications"))
	profileService := profiles.New(stores.Profiles, providers.Auth, log.Named("profiles"))
	badgeService := badges.New(stores.Badges, stores.Profiles, stores.Logs, stores.Quests, notificationService, log.Named("badges"))
	questService := quests.New(stores.Quests, stores.Logs, stores.Profiles, badgeService, notificationService, log.Named("quests"))
	moderationService := moderation.New(stores.Moderation, stores.Flavors, stores.Logs, stores.Shops, providers.AI, notificationService, log.Named("moderation"))
	shopService := shops.New(stores.Shops, stores.Analytics, providers.Objects, notificationService, log.Named("shops"))
	claimService := claims.New(stores.Claims, stores.Shops, profileService, notificationService, log.Named("claims"))
	importService := importer.New(stores.Shops, providers.Places, providers.Describer, log.Named("importer"))
	flavorService := flavors.New(stores.Flavors, stores.Shops, moderationService, log.Named("flavors"))
	logService := logs.New(stores.Logs, stores.Flavors, stores.Shops, moderationService, questService, badgeService, log.Named("logs"))
	newsletterService := newsletters.New(stores.Newsletters, providers.Mailer, providers.PublicBaseURL, log.Named("newsletters"))
	analyticsService := analytics.New(stores.Analytics, providers.Cache, log.Named("analytics"))

	jobs := scheduler.New(log.Named("scheduler")).WithObserver(func(name string, d time.Duration, err error) {
		metrics.RecordJobRun(name, d, err == nil)
	})
	if err := registerJobs(jobs, newsletterService, analyticsService, questService); err != nil {
		return nil, err
	}
	if err := manager.Register(jobs); err != nil {
		return nil, fmt.Errorf("register %s: %w", jobs.Name(), err)
	}

	return &Application{
		manager:       manager,
		log:           log,
		Profiles:      profileService,
		Shops:         shopService,
		Claims:        claimService,
		Importer:      importService,
		Flavors:       flavorService,
		Logs:          logService,
		Quests:        questService,
		Badges:        badgeService,
		Notifications: notificationService,
		Newsletters:   newsletterService,
		Moderation:    moderationService,
		Analytics:     analyticsService,
		Scheduler:     jobs,
	}, nil
}

// Job names accepted by Scheduler.RunNow.
const (
	JobNewsletterDispatch = "newsletter-dispatch"
	JobAnalyticsRollup    = "analytics-rollup"
	JobQuestExpiry        = "quest-expiry"
)

func registerJobs(jobs *scheduler.Scheduler, news *newsletters.Service, stats *analytics.Service, q *quests.Service) error {
	specs := []struct {
		name    string
		spec    string
		timeout time.Duration
		fn      scheduler.JobFunc
	}{
		{JobNewsletterDispatch, "@every 1m", 10 * time.Minute, func(ctx context.Context) error {
			_, err := news.DispatchDue(ctx, time.Now().UTC())
			return err
		}},
		{JobAnalyticsRollup, "@hourly", 2 * time.Minute, func(ctx context.Context) error {
			_, err := stats.Rollup(ctx)
			return err
		}},
		{JobQuestExpiry, "@daily", 5 * time.Minute, func(ctx context.Context) error {
			_, err := q.ExpireEnded(ctx, time.Now().UTC())
			return err
		}},
	}
	for _, s := range specs {
		if err := jobs.Add(s.name, s.spec, s.timeout, s.fn); err != nil {
			return fmt.Errorf("register job %s: %w", s.name, err)
		}
	}
	return nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
