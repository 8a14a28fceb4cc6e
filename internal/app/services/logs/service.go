package logs

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/conedex/conedex/internal/app/domain/badge"
	"github.com/conedex/conedex/internal/app/domain/flavor"
	"github.com/conedex/conedex/internal/app/domain/moderation"
	"github.com/conedex/conedex/internal/app/domain/quest"
	"github.com/conedex/conedex/internal/app/domain/shop"
	"github.com/conedex/conedex/internal/app/metrics"
	"github.com/conedex/conedex/internal/app/storage"
	svcerrors "github.com/conedex/conedex/internal/errors"
	"github.com/conedex/conedex/pkg/logger"
)

const maxNotesLength = 1000

// Screener checks notes and queues flagged ones.
type Screener interface {
	Check(ctx context.Context, text string) moderation.Verdict
	Open(ctx context.Context, contentType moderation.ContentType, contentID, userID, text string, verdict moderation.Verdict) (moderation.Item, error)
}

// QuestRefresher recomputes quest progress after activity changes.
type QuestRefresher interface {
	Refresh(ctx context.Context, userID string) ([]quest.Participation, error)
}

// BadgeEvaluator awards badges the user's activity has earned.
type BadgeEvaluator interface {
	Evaluate(ctx context.Context, userID string) ([]badge.Award, error)
}

// Input describes a new log.
type Input struct {
	FlavorID  string     `json:"flavor_id"`
	Rating    int        `json:"rating"`
	Notes     string     `json:"notes"`
	PhotoURL  string     `json:"photo_url"`
	VisitedAt *time.Time `json:"visited_at"`
}

// Patch holds optional log changes.
type Patch struct {
	Rating *int    `json:"rating"`
	Notes  *string `json:"notes"`
}

// Service records what users have tasted.
type Service struct {
	store    storage.LogStore
	flavors  storage.FlavorStore
	shops    storage.ShopStore
	screener Screener
	quests   QuestRefresher
	badges   BadgeEvaluator
	log      *logger.Logger
	now      func() time.Time
}

// New constructs a log service. quests and badges may be nil.
func New(store storage.LogStore, flavors storage.FlavorStore, shops storage.ShopStore, screener Screener, quests QuestRefresher, badges BadgeEvaluator, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("logs")
	}
	return &Service{
		store:    store,
		flavors:  flavors,
		shops:    shops,
		screener: screener,
		quests:   quests,
		badges:   badges,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Record stores a tasting and then updates the user's quests and badges.
func (s *Service) Record(ctx context.Context, userID string, in Input) (flavor.Log, error) {
	if err := validateRating(in.Rating); err != nil {
		return flavor.Log{}, err
	}
	notes := strings.TrimSpace(in.Notes)
	if err := validateNotes(notes); err != nil {
		return flavor.Log{}, err
	}
	now := s.now()
	visited := now
	if in.VisitedAt != nil && !in.VisitedAt.IsZero() {
		visited = in.VisitedAt.UTC()
		if visited.After(now) {
			return flavor.Log{}, svcerrors.Validation("visited_at cannot be in the future")
		}
	}

	f, err := s.flavors.GetFlavor(ctx, in.FlavorID)
	if err != nil {
		return flavor.Log{}, err
	}
	if f.Moderation == flavor.ModerationRejected {
		return flavor.Log{}, svcerrors.Validation("flavor %s is not available", f.ID)
	}
	sh, err := s.shops.GetShop(ctx, f.ShopID)
	if err != nil {
		return flavor.Log{}, err
	}
	if sh.Status != shop.StatusActive {
		return flavor.Log{}, svcerrors.Validation("shop %s is not active", sh.ID)
	}

	var verdict moderation.Verdict
	if notes != "" {
		verdict = s.screener.Check(ctx, notes)
	}

	l, err := s.store.CreateLog(ctx, flavor.Log{
		UserID:    userID,
		FlavorID:  f.ID,
		ShopID:    f.ShopID,
		Rating:    in.Rating,
		Notes:     notes,
		PhotoURL:  strings.TrimSpace(in.PhotoURL),
		VisitedAt: visited,
	})
	if err != nil {
		return flavor.Log{}, err
	}
	if verdict.Flagged {
		if _, err := s.screener.Open(ctx, moderation.ContentLog, l.ID, userID, notes, verdict); err != nil {
			s.log.WithError(err).WithField("log_id", l.ID).Error("failed to queue log for moderation")
		}
	}
	metrics.RecordFlavorLog()
	s.log.WithFields(map[string]interface{}{
		"log_id":    l.ID,
		"user_id":   userID,
		"flavor_id": f.ID,
		"rating":    l.Rating,
	}).Info("flavor logged")

	s.afterActivity(ctx, userID)
	return l, nil
}

// Update changes the rating or notes of the user's own log.
func (s *Service) Update(ctx context.Context, userID, id string, patch Patch) (flavor.Log, error) {
	l, err := s.owned(ctx, userID, id)
	if err != nil {
		return flavor.Log{}, err
	}
	if patch.Rating != nil {
		if err := validateRating(*patch.Rating); err != nil {
			return flavor.Log{}, err
		}
		l.Rating = *patch.Rating
	}
	var verdict moderation.Verdict
	if patch.Notes != nil {
		notes := strings.TrimSpace(*patch.Notes)
		if err := validateNotes(notes); err != nil {
			return flavor.Log{}, err
		}
		if notes != "" && notes != l.Notes {
			verdict = s.screener.Check(ctx, notes)
		}
		l.Notes = notes
	}

	l, err = s.store.UpdateLog(ctx, l)
	if err != nil {
		return flavor.Log{}, err
	}
	if verdict.Flagged {
		if _, err := s.screener.Open(ctx, moderation.ContentLog, l.ID, userID, l.Notes, verdict); err != nil {
			s.log.WithError(err).WithField("log_id", l.ID).Error("failed to queue log for moderation")
		}
	}
	s.afterActivity(ctx, userID)
	return l, nil
}

// Delete removes the user's own log.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.DeleteLog(ctx, id); err != nil {
		return err
	}
	s.log.WithField("log_id", id).WithField("user_id", userID).Info("flavor log deleted")
	return nil
}

// List returns the user's logs, most recent visit first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]flavor.Log, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListLogs(ctx, userID, limit, offset)
}

// Summary aggregates all of the user's logs.
func (s *Service) Summary(ctx context.Context, userID string) (flavor.Activity, error) {
	entries, err := s.store.ListLogEntries(ctx, userID, time.Time{})
	if err != nil {
		return flavor.Activity{}, err
	}
	return flavor.Summarize(entries), nil
}

func (s *Service) owned(ctx context.Context, userID, id string) (flavor.Log, error) {
	l, err := s.store.GetLog(ctx, id)
	if err != nil {
		return flavor.Log{}, err
	}
	if l.UserID != userID {
		return flavor.Log{}, svcerrors.NotFound("log", id)
	}
	return l, nil
}

// afterActivity runs gamification updates. Failures are logged only; the
// log itself has already been stored.
func (s *Service) afterActivity(ctx context.Context, userID string) {
	if s.quests != nil {
		if _, err := s.quests.Refresh(ctx, userID); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("quest refresh failed")
		}
	}
	if s.badges != nil {
		if _, err := s.badges.Evaluate(ctx, userID); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("badge evaluation failed")
		}
	}
}

func validateRating(r int) error {
	if r < 1 || r > 5 {
		return svcerrors.Validation("rating must be between 1 and 5")
	}
	return nil
}

func validateNotes(notes string) error {
	if utf8.RuneCountInString(notes) > maxNotesLength {
		return svcerrors.Validation("notes must be at most %d characters", maxNotesLength)
	}
	return nil
}
