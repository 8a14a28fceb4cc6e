package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/conedex/conedex/internal/app/domain/profile"
)

// ProfileStore implementation --------------------------------------------------

func (s *Store) CreateProfile(_ context.Context, p profile.Profile) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	} else if _, exists := s.profiles[p.ID]; exists {
		return profile.Profile{}, conflict("profile %s already exists", p.ID)
	}
	if err := s.checkUsernameLocked(p.ID, p.Username); err != nil {
		return profile.Profile{}, err
	}
	stamp(&p.CreatedAt, &p.UpdatedAt, s.now())
	s.profiles[p.ID] = p
	return p, nil
}

func (s *Store) UpdateProfile(_ context.Context, p profile.Profile) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.profiles[p.ID]
	if !ok {
		return profile.Profile{}, notFound("profile", p.ID)
	}
	if err := s.checkUsernameLocked(p.ID, p.Username); err != nil {
		return profile.Profile{}, err
	}
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = s.now()
	s.profiles[p.ID] = p
	return p, nil
}

func (s *Store) checkUsernameLocked(id, username string) error {
	if username == "" {
		return nil
	}
	for _, other := range s.profiles {
		if other.ID != id && strings.EqualFold(other.Username, username) {
			return conflict("username %s is taken", username)
		}
	}
	return nil
}

func (s *Store) GetProfile(_ context.Context, id string) (profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return profile.Profile{}, notFound("profile", id)
	}
	return p, nil
}

func (s *Store) GetProfileByUsername(_ context.Context, username string) (profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.profiles {
		if p.Username != "" && strings.EqualFold(p.Username, username) {
			return p, nil
		}
	}
	return profile.Profile{}, notFound("profile", username)
}

func (s *Store) ListProfiles(_ context.Context, filter profile.Filter) ([]profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]profile.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if filter.Role != "" && p.Role != filter.Role {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if q := filter.Query; q != "" && !containsFold(p.Email, q) && !containsFold(p.Username, q) && !containsFold(p.DisplayName, q) {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return page(result, filter.Limit, filter.Offset), nil
}

func (s *Store) DeleteProfile(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[id]; !ok {
		return notFound("profile", id)
	}
	delete(s.profiles, id)
	return nil
}

func (s *Store) AddPoints(_ context.Context, id string, delta int) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return profile.Profile{}, notFound("profile", id)
	}
	p.Points += delta
	if p.Points < 0 {
		p.Points = 0
	}
	p.UpdatedAt = s.now()
	s.profiles[id] = p
	return p, nil
}

func (s *Store) Leaderboard(_ context.Context, limit int) ([]profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]profile.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if p.Status == profile.StatusActive {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Points != result[j].Points {
			return result[i].Points > result[j].Points
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return page(result, limit, 0), nil
}
