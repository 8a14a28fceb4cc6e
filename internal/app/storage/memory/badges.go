package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/conedex/conedex/internal/app/domain/badge"
)

// BadgeStore implementation ----------------------------------------------------

func (s *Store) CreateBadge(_ context.Context, b badge.Badge) (badge.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	for _, other := range s.badges {
		if other.Name == b.Name {
			return badge.Badge{}, conflict("badge %q already exists", b.Name)
		}
	}
	stamp(&b.CreatedAt, &b.UpdatedAt, s.now())
	s.badges[b.ID] = b
	return b, nil
}

func (s *Store) UpdateBadge(_ context.Context, b badge.Badge) (badge.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.badges[b.ID]
	if !ok {
		return badge.Badge{}, notFound("badge", b.ID)
	}
	for _, other := range s.badges {
		if other.ID != b.ID && other.Name == b.Name {
			return badge.Badge{}, conflict("badge %q already exists", b.Name)
		}
	}
	b.CreatedAt = original.CreatedAt
	b.UpdatedAt = s.now()
	s.badges[b.ID] = b
	return b, nil
}

func (s *Store) GetBadge(_ context.Context, id string) (badge.Badge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.badges[id]
	if !ok {
		return badge.Badge{}, notFound("badge", id)
	}
	return b, nil
}

func (s *Store) ListBadges(_ context.Context) ([]badge.Badge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]badge.Badge, 0, len(s.badges))
	for _, b := range s.badges {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Store) DeleteBadge(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.badges[id]; !ok {
		return notFound("badge", id)
	}
	delete(s.badges, id)
	for awardID, a := range s.awards {
		if a.BadgeID == id {
			delete(s.awards, awardID)
		}
	}
	return nil
}

func (s *Store) CreateAward(_ context.Context, a badge.Award) (badge.Award, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.awards {
		if existing.UserID == a.UserID && existing.BadgeID == a.BadgeID {
			return badge.Award{}, conflict("badge %s already awarded", a.BadgeID)
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AwardedAt.IsZero() {
		a.AwardedAt = s.now()
	}
	s.awards[a.ID] = a
	return a, nil
}

func (s *Store) GetAward(_ context.Context, userID, badgeID string) (badge.Award, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.awards {
		if a.UserID == userID && a.BadgeID == badgeID {
			return a, nil
		}
	}
	return badge.Award{}, notFound("award", userID+"/"+badgeID)
}

func (s *Store) ListAwards(_ context.Context, userID string) ([]badge.Award, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]badge.Award, 0)
	for _, a := range s.awards {
		if a.UserID == userID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AwardedAt.After(result[j].AwardedAt) })
	return result, nil
}
