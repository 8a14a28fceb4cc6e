package badges

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conedex/conedex/internal/app/domain/badge"
	"github.com/conedex/conedex/internal/app/domain/flavor"
	"github.com/conedex/conedex/internal/app/domain/notification"
	"github.com/conedex/conedex/internal/app/domain/quest"
	"github.com/conedex/conedex/internal/app/metrics"
	"github.com/conedex/conedex/internal/app/storage"
	svcerrors "github.com/conedex/conedex/internal/errors"
	"github.com/conedex/conedex/pkg/logger"
)

// Award sources.
const (
	SourceManual   = "manual"
	SourceCriteria = "criteria"
	SourceQuest    = "quest"
)

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, userID string, typ notification.Type, title, message, link string)
}

// Service manages badges and awards them to users.
type Service struct {
	store    storage.BadgeStore
	profiles storage.ProfileStore
	logs     storage.LogStore
	quests   storage.QuestStore
	notifier Notifier
	log      *logger.Logger
	now      func() time.Time
}

// New constructs a badge service. notifier may be nil.
func New(store storage.BadgeStore, profiles storage.ProfileStore, logs storage.LogStore, quests storage.QuestStore, notifier Notifier, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("badges")
	}
	return &Service{
		store:    store,
		profiles: profiles,
		logs:     logs,
		quests:   quests,
		notifier: notifier,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func validate(b badge.Badge) error {
	if strings.TrimSpace(b.Name) == "" {
		return svcerrors.Validation("name is required")
	}
	if b.Points < 0 {
		return svcerrors.Validation("points cannot be negative")
	}
	c := b.Criteria
	if c.Kind == "" {
		return svcerrors.Validation("criteria.kind is required")
	}
	if !c.Kind.Valid() {
		return svcerrors.Validation("unknown criteria kind %q", c.Kind)
	}
	if c.Kind != badge.CriteriaManual && c.Threshold < 1 {
		return svcerrors.Validation("criteria.threshold must be at least 1")
	}
	if c.Kind == badge.CriteriaCategoryTried && !flavor.ValidCategory(c.Category) {
		return svcerrors.Validation("criteria.category must be a known flavor category")
	}
	return nil
}

// Create registers a badge.
func (s *Service) Create(ctx context.Context, b badge.Badge) (badge.Badge, error) {
	b.Name = strings.TrimSpace(b.Name)
	b.Description = strings.TrimSpace(b.Description)
	if err := validate(b); err != nil {
		return badge.Badge{}, err
	}
	b.ID = ""
	created, err := s.store.CreateBadge(ctx, b)
	if err != nil {
		return badge.Badge{}, err
	}
	s.log.WithField("badge_id", created.ID).WithField("name", created.Name).Info("badge created")
	return created, nil
}

// Update replaces a badge's mutable fields.
func (s *Service) Update(ctx context.Context, id string, b badge.Badge) (badge.Badge, error) {
	existing, err := s.store.GetBadge(ctx, id)
	if err != nil {
		return badge.Badge{}, err
	}
	b.ID = existing.ID
	b.CreatedAt = existing.CreatedAt
	b.Name = strings.TrimSpace(b.Name)
	if err := validate(b); err != nil {
		return badge.Badge{}, err
	}
	updated, err := s.store.UpdateBadge(ctx, b)
	if err != nil {
		return badge.Badge{}, err
	}
	s.log.WithField("badge_id", id).Info("badge updated")
	return updated, nil
}

// Delete removes a badge and its awards.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteBadge(ctx, id); err != nil {
		return err
	}
	s.log.WithField("badge_id", id).Info("badge deleted")
	return nil
}

// Get returns one badge.
func (s *Service) Get(ctx context.Context, id string) (badge.Badge, error) {
	return s.store.GetBadge(ctx, id)
}

// List returns every badge ordered by name.
func (s *Service) List(ctx context.Context) ([]badge.Badge, error) {
	return s.store.ListBadges(ctx)
}

// ListForUser returns the user's awards with their badges.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]badge.AwardView, error) {
	awards, err := s.store.ListAwards(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]badge.AwardView, 0, len(awards))
	for _, a := range awards {
		b, err := s.store.GetBadge(ctx, a.BadgeID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		views = append(views, badge.AwardView{Award: a, Badge: b})
	}
	return views, nil
}

// Award gives a badge to a user by hand.
func (s *Service) Award(ctx context.Context, userID, badgeID, reason string) (badge.Award, error) {
	award, _, err := s.Grant(ctx, userID, badgeID, reason, SourceManual)
	return award, err
}

// Grant awards badgeID to userID once. A repeat grant returns the existing
// award with created=false and adds no points.
func (s *Service) Grant(ctx context.Context, userID, badgeID, reason, source string) (badge.Award, bool, error) {
	if strings.TrimSpace(userID) == "" {
		return badge.Award{}, false, svcerrors.Validation("user_id is required")
	}
	b, err := s.store.GetBadge(ctx, badgeID)
	if err != nil {
		return badge.Award{}, false, err
	}
	if existing, err := s.store.GetAward(ctx, userID, badgeID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return badge.Award{}, false, err
	}

	award, err := s.store.CreateAward(ctx, badge.Award{
		UserID:    userID,
		BadgeID:   badgeID,
		Reason:    strings.TrimSpace(reason),
		AwardedAt: s.now(),
	})
	if errors.Is(err, storage.ErrConflict) {
		existing, getErr := s.store.GetAward(ctx, userID, badgeID)
		return existing, false, getErr
	}
	if err != nil {
		return badge.Award{}, false, err
	}

	if b.Points > 0 && s.profiles != nil {
		if _, err := s.profiles.AddPoints(ctx, userID, b.Points); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("badge points not credited")
		}
	}
	metrics.RecordBadgeAwarded(source)
	if s.notifier != nil {
		s.notifier.Notify(ctx, userID, notification.TypeBadgeAwarded,
			fmt.Sprintf("You earned the %s badge", b.Name), b.Description, "/me/badges")
	}
	s.log.WithField("user_id", userID).
		WithField("badge_id", badgeID).
		WithField("source", source).
		Info("badge awarded")
	return award, true, nil
}

// Evaluate awards every automatic badge whose criteria the user now meets and
// returns the new awards.
func (s *Service) Evaluate(ctx context.Context, userID string) ([]badge.Award, error) {
	all, err := s.store.ListBadges(ctx)
	if err != nil {
		return nil, err
	}
	held, err := s.store.ListAwards(ctx, userID)
	if err != nil {
		return nil, err
	}
	owned := make(map[string]bool, len(held))
	for _, a := range held {
		owned[a.BadgeID] = true
	}

	var pending []badge.Badge
	for _, b := range all {
		if b.Criteria.Kind != badge.CriteriaManual && !owned[b.ID] {
			pending = append(pending, b)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	entries, err := s.logs.ListLogEntries(ctx, userID, time.Time{})
	if err != nil {
		return nil, err
	}
	activity := flavor.Summarize(entries)
	completed := 0
	if s.quests != nil {
		parts, err := s.quests.ListParticipations(ctx, userID, quest.ParticipationCompleted)
		if err != nil {
			return nil, err
		}
		completed = len(parts)
	}

	var awarded []badge.Award
	for _, b := range pending {
		if !Meets(b.Criteria, activity, completed) {
			continue
		}
		award, created, err := s.Grant(ctx, userID, b.ID, "criteria met", SourceCriteria)
		if err != nil {
			s.log.WithError(err).WithField("badge_id", b.ID).Warn("badge evaluation award failed")
			continue
		}
		if created {
			awarded = append(awarded, award)
		}
	}
	return awarded, nil
}

// Meets reports whether activity satisfies c.
func Meets(c badge.Criteria, activity flavor.Activity, questsCompleted int) bool {
	switch c.Kind {
	case badge.CriteriaFlavorsLogged:
		return activity.TotalLogs >= c.Threshold
	case badge.CriteriaUniqueFlavors:
		return activity.UniqueFlavors >= c.Threshold
	case badge.CriteriaShopsVisited:
		return activity.UniqueShops >= c.Threshold
	case badge.CriteriaCategoryTried:
		threshold := c.Threshold
		if threshold < 1 {
			threshold = 1
		}
		return activity.Categories[c.Category] >= threshold
	case badge.CriteriaQuestsCompleted:
		return questsCompleted >= c.Threshold
	}
	return false
}
