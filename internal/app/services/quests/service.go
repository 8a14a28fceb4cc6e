package quests

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
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

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, userID string, typ notification.Type, title, message, link string)
}

// BadgeGranter awards a quest's linked badge.
type BadgeGranter interface {
	Grant(ctx context.Context, userID, badgeID, reason, source string) (badge.Award, bool, error)
}

// Service manages quests and users' progress through them.
type Service struct {
	store    storage.QuestStore
	logs     storage.LogStore
	profiles storage.ProfileStore
	badges   BadgeGranter
	notifier Notifier
	log      *logger.Logger
	now      func() time.Time

	// progress updates for one user are serialised so completion rewards
	// are paid once.
	locks [32]sync.Mutex
}

// New constructs a quest service. badges and notifier may be nil.
func New(store storage.QuestStore, logs storage.LogStore, profiles storage.ProfileStore, badges BadgeGranter, notifier Notifier, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("quests")
	}
	return &Service{
		store:    store,
		logs:     logs,
		profiles: profiles,
		badges:   badges,
		notifier: notifier,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) lockUser(userID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	mu := &s.locks[h.Sum32()%uint32(len(s.locks))]
	mu.Lock()
	return mu.Unlock
}

func validate(q quest.Quest) error {
	if strings.TrimSpace(q.Title) == "" {
		return svcerrors.Validation("title is required")
	}
	if len(q.Objectives) == 0 {
		return svcerrors.Validation("at least one objective is required")
	}
	for i, o := range q.Objectives {
		if !o.Kind.Valid() {
			return svcerrors.Validation("objective %d: unknown kind %q", i, o.Kind)
		}
		if o.Target < 1 {
			return svcerrors.Validation("objective %d: target must be at least 1", i)
		}
		if o.Kind == quest.ObjectiveTryCategory && !flavor.ValidCategory(o.Category) {
			return svcerrors.Validation("objective %d: category must be a known flavor category", i)
		}
	}
	if q.Points < 0 {
		return svcerrors.Validation("points cannot be negative")
	}
	if q.EndsAt != nil && !q.EndsAt.After(q.StartsAt) {
		return svcerrors.Validation("ends_at must be after starts_at")
	}
	return nil
}

// Create registers a quest. A zero StartsAt means now.
func (s *Service) Create(ctx context.Context, q quest.Quest) (quest.Quest, error) {
	q.ID = ""
	q.Title = strings.TrimSpace(q.Title)
	q.Description = strings.TrimSpace(q.Description)
	if q.StartsAt.IsZero() {
		q.StartsAt = s.now()
	}
	if err := validate(q); err != nil {
		return quest.Quest{}, err
	}
	created, err := s.store.CreateQuest(ctx, q)
	if err != nil {
		return quest.Quest{}, err
	}
	s.log.WithField("quest_id", created.ID).WithField("title", created.Title).Info("quest created")
	return created, nil
}

// Update replaces a quest's definition.
func (s *Service) Update(ctx context.Context, id string, q quest.Quest) (quest.Quest, error) {
	existing, err := s.store.GetQuest(ctx, id)
	if err != nil {
		return quest.Quest{}, err
	}
	q.ID = existing.ID
	q.CreatedAt = existing.CreatedAt
	q.Title = strings.TrimSpace(q.Title)
	if q.StartsAt.IsZero() {
		q.StartsAt = existing.StartsAt
	}
	if err := validate(q); err != nil {
		return quest.Quest{}, err
	}
	updated, err := s.store.UpdateQuest(ctx, q)
	if err != nil {
		return quest.Quest{}, err
	}
	s.log.WithField("quest_id", id).Info("quest updated")
	return updated, nil
}

// Deactivate hides a quest from new participants.
func (s *Service) Deactivate(ctx context.Context, id string) (quest.Quest, error) {
	q, err := s.store.GetQuest(ctx, id)
	if err != nil {
		return quest.Quest{}, err
	}
	if !q.Active {
		return q, nil
	}
	q.Active = false
	q, err = s.store.UpdateQuest(ctx, q)
	if err != nil {
		return quest.Quest{}, err
	}
	s.log.WithField("quest_id", id).Info("quest deactivated")
	return q, nil
}

// Delete removes a quest nobody has joined. A quest with participants is
// deactivated instead and deleted is false.
func (s *Service) Delete(ctx context.Context, id string) (deleted bool, err error) {
	err = s.store.DeleteQuest(ctx, id)
	if err == nil {
		s.log.WithField("quest_id", id).Info("quest deleted")
		return true, nil
	}
	if !errors.Is(err, storage.ErrConflict) {
		return false, err
	}
	if _, err := s.Deactivate(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// Get returns one quest.
func (s *Service) Get(ctx context.Context, id string) (quest.Quest, error) {
	return s.store.GetQuest(ctx, id)
}

// ListAll returns every quest.
func (s *Service) ListAll(ctx context.Context) ([]quest.Quest, error) {
	return s.store.ListQuests(ctx, false)
}

// ListAvailable returns quests that are active, started and not ended.
func (s *Service) ListAvailable(ctx context.Context, now time.Time) ([]quest.Quest, error) {
	all, err := s.store.ListQuests(ctx, true)
	if err != nil {
		return nil, err
	}
	result := make([]quest.Quest, 0, len(all))
	for _, q := range all {
		if q.AvailableAt(now) {
			result = append(result, q)
		}
	}
	return result, nil
}

// Join enrols the user in a quest. Joining twice returns the existing
// participation.
func (s *Service) Join(ctx context.Context, userID, questID string) (quest.Participation, error) {
	q, err := s.store.GetQuest(ctx, questID)
	if err != nil {
		return quest.Participation{}, err
	}

	unlock := s.lockUser(userID)
	defer unlock()

	if existing, err := s.store.GetParticipation(ctx, userID, questID); err == nil {
		return existing, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return quest.Participation{}, err
	}

	now := s.now()
	if !q.AvailableAt(now) {
		return quest.Participation{}, svcerrors.Validation("quest is not open for joining")
	}

	p := quest.Participation{
		UserID:   userID,
		QuestID:  questID,
		Status:   quest.ParticipationActive,
		JoinedAt: now,
	}
	p.Progress, err = s.compute(ctx, userID, q)
	if err != nil {
		return quest.Participation{}, err
	}
	p.Percent = quest.Percent(p.Progress)

	p, err = s.store.CreateParticipation(ctx, p)
	if errors.Is(err, storage.ErrConflict) {
		return s.store.GetParticipation(ctx, userID, questID)
	}
	if err != nil {
		return quest.Participation{}, err
	}
	s.log.WithField("user_id", userID).WithField("quest_id", questID).Info("quest joined")

	if p.Percent == 100 {
		return s.complete(ctx, p, q)
	}
	return p, nil
}

// Progress refreshes and returns the user's participations with quests.
func (s *Service) Progress(ctx context.Context, userID string) ([]quest.ParticipationView, error) {
	if _, err := s.Refresh(ctx, userID); err != nil {
		return nil, err
	}
	parts, err := s.store.ListParticipations(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	views := make([]quest.ParticipationView, 0, len(parts))
	for _, p := range parts {
		q, err := s.store.GetQuest(ctx, p.QuestID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		views = append(views, quest.ParticipationView{Participation: p, Quest: q})
	}
	return views, nil
}

// Refresh recomputes the user's active participations and returns those it
// completed.
func (s *Service) Refresh(ctx context.Context, userID string) ([]quest.Participation, error) {
	unlock := s.lockUser(userID)
	defer unlock()

	parts, err := s.store.ListParticipations(ctx, userID, quest.ParticipationActive)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var completed []quest.Participation
	for _, p := range parts {
		q, err := s.store.GetQuest(ctx, p.QuestID)
		if err != nil {
			s.log.WithError(err).WithField("quest_id", p.QuestID).Warn("participation references missing quest")
			continue
		}
		if q.EndedAt(now) {
			continue
		}
		progress, err := s.compute(ctx, userID, q)
		if err != nil {
			return completed, err
		}
		percent := quest.Percent(progress)
		if percent == p.Percent && sameProgress(progress, p.Progress) {
			continue
		}
		p.Progress = progress
		p.Percent = percent
		if percent == 100 {
			done, err := s.complete(ctx, p, q)
			if err != nil {
				return completed, err
			}
			completed = append(completed, done)
			continue
		}
		if _, err := s.store.UpdateParticipation(ctx, p); err != nil {
			return completed, err
		}
	}
	return completed, nil
}

// complete marks p completed and pays its rewards. Callers hold the user lock.
func (s *Service) complete(ctx context.Context, p quest.Participation, q quest.Quest) (quest.Participation, error) {
	now := s.now()
	p.Status = quest.ParticipationCompleted
	p.Percent = 100
	p.CompletedAt = &now
	p, err := s.store.UpdateParticipation(ctx, p)
	if err != nil {
		return quest.Participation{}, err
	}

	if q.Points > 0 && s.profiles != nil {
		if _, err := s.profiles.AddPoints(ctx, p.UserID, q.Points); err != nil {
			s.log.WithError(err).WithField("user_id", p.UserID).Warn("quest points not credited")
		}
	}
	if q.BadgeID != "" && s.badges != nil {
		if _, _, err := s.badges.Grant(ctx, p.UserID, q.BadgeID, "completed quest "+q.Title, "quest"); err != nil {
			s.log.WithError(err).WithField("badge_id", q.BadgeID).Warn("quest badge not awarded")
		}
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, p.UserID, notification.TypeQuestCompleted,
			fmt.Sprintf("Quest complete: %s", q.Title),
			fmt.Sprintf("You earned %d points.", q.Points), "/me/quests")
	}
	metrics.RecordQuestCompleted()
	s.log.WithField("user_id", p.UserID).WithField("quest_id", q.ID).Info("quest completed")
	return p, nil
}

// ExpireEnded marks active participations of ended quests expired and
// returns how many changed.
func (s *Service) ExpireEnded(ctx context.Context, now time.Time) (int, error) {
	all, err := s.store.ListQuests(ctx, false)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, q := range all {
		if !q.EndedAt(now) {
			continue
		}
		parts, err := s.store.ListQuestParticipations(ctx, q.ID, quest.ParticipationActive)
		if err != nil {
			return expired, err
		}
		for _, p := range parts {
			p.Status = quest.ParticipationExpired
			if _, err := s.store.UpdateParticipation(ctx, p); err != nil {
				return expired, err
			}
			expired++
		}
	}
	if expired > 0 {
		s.log.WithField("count", expired).Info("quest participations expired")
	}
	return expired, nil
}

// compute derives objective progress from the user's logs inside the quest
// window.
func (s *Service) compute(ctx context.Context, userID string, q quest.Quest) ([]quest.ObjectiveProgress, error) {
	entries, err := s.logs.ListLogEntries(ctx, userID, q.StartsAt)
	if err != nil {
		return nil, err
	}
	if q.EndsAt != nil {
		inWindow := entries[:0:0]
		for _, e := range entries {
			if e.VisitedAt.Before(*q.EndsAt) {
				inWindow = append(inWindow, e)
			}
		}
		entries = inWindow
	}
	return Evaluate(q.Objectives, flavor.Summarize(entries)), nil
}

// Evaluate scores objectives against an activity summary. Current is capped
// at Target.
func Evaluate(objectives []quest.Objective, act flavor.Activity) []quest.ObjectiveProgress {
	progress := make([]quest.ObjectiveProgress, len(objectives))
	for i, o := range objectives {
		var current int
		switch o.Kind {
		case quest.ObjectiveLogFlavors:
			current = act.TotalLogs
		case quest.ObjectiveUniqueFlavors:
			current = act.UniqueFlavors
		case quest.ObjectiveVisitShops:
			current = act.UniqueShops
		case quest.ObjectiveTryCategory:
			current = act.Categories[o.Category]
		case quest.ObjectiveRateHigh:
			current = act.HighRatings
		}
		if current > o.Target {
			current = o.Target
		}
		progress[i] = quest.ObjectiveProgress{
			Kind:     o.Kind,
			Category: o.Category,
			Current:  current,
			Target:   o.Target,
			Done:     current >= o.Target,
		}
	}
	return progress
}

func sameProgress(a, b []quest.ObjectiveProgress) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
