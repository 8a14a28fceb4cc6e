package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/conedex/conedex/internal/app/domain/flavor"
)

// FlavorStore implementation ---------------------------------------------------

func (s *Store) CreateFlavor(_ context.Context, f flavor.Flavor) (flavor.Flavor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	stamp(&f.CreatedAt, &f.UpdatedAt, s.now())
	f.Tags = cloneStrings(f.Tags)
	s.flavors[f.ID] = f
	return cloneFlavor(f), nil
}

func (s *Store) UpdateFlavor(_ context.Context, f flavor.Flavor) (flavor.Flavor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.flavors[f.ID]
	if !ok {
		return flavor.Flavor{}, notFound("flavor", f.ID)
	}
	f.CreatedAt = original.CreatedAt
	f.UpdatedAt = s.now()
	f.Tags = cloneStrings(f.Tags)
	s.flavors[f.ID] = f
	return cloneFlavor(f), nil
}

func (s *Store) GetFlavor(_ context.Context, id string) (flavor.Flavor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.flavors[id]
	if !ok {
		return flavor.Flavor{}, notFound("flavor", id)
	}
	return cloneFlavor(f), nil
}

func (s *Store) ListFlavors(_ context.Context, filter flavor.Filter) ([]flavor.Flavor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]flavor.Flavor, 0)
	for _, f := range s.flavors {
		if filter.ShopID != "" && f.ShopID != filter.ShopID {
			continue
		}
		if !filter.IncludeRetired && f.Status == flavor.StatusRetired {
			continue
		}
		if !filter.IncludeUnmoderated && f.Moderation != flavor.ModerationApproved {
			continue
		}
		if filter.Category != "" && f.Category != filter.Category {
			continue
		}
		if q := filter.Query; q != "" && !containsFold(f.Name, q) && !containsFold(f.Description, q) {
			continue
		}
		result = append(result, cloneFlavor(f))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return page(result, filter.Limit, filter.Offset), nil
}

func cloneFlavor(f flavor.Flavor) flavor.Flavor {
	f.Tags = cloneStrings(f.Tags)
	return f
}

// LogStore implementation ------------------------------------------------------

func (s *Store) CreateLog(_ context.Context, l flavor.Log) (flavor.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	stamp(&l.CreatedAt, &l.UpdatedAt, s.now())
	s.logs[l.ID] = l
	return l, nil
}

func (s *Store) UpdateLog(_ context.Context, l flavor.Log) (flavor.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.logs[l.ID]
	if !ok {
		return flavor.Log{}, notFound("log", l.ID)
	}
	l.CreatedAt = original.CreatedAt
	l.UpdatedAt = s.now()
	s.logs[l.ID] = l
	return l, nil
}

func (s *Store) GetLog(_ context.Context, id string) (flavor.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.logs[id]
	if !ok {
		return flavor.Log{}, notFound("log", id)
	}
	return l, nil
}

func (s *Store) DeleteLog(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.logs[id]; !ok {
		return notFound("log", id)
	}
	delete(s.logs, id)
	return nil
}

func (s *Store) ListLogs(_ context.Context, userID string, limit, offset int) ([]flavor.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]flavor.Log, 0)
	for _, l := range s.logs {
		if l.UserID == userID {
			result = append(result, l)
		}
	}
	sortLogs(result)
	return page(result, limit, offset), nil
}

func (s *Store) ListLogEntries(_ context.Context, userID string, since time.Time) ([]flavor.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]flavor.LogEntry, 0)
	for _, l := range s.logs {
		if l.UserID != userID {
			continue
		}
		if !since.IsZero() && l.VisitedAt.Before(since) {
			continue
		}
		result = append(result, flavor.LogEntry{Log: l, Category: s.flavors[l.FlavorID].Category})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].VisitedAt.After(result[j].VisitedAt) })
	return result, nil
}

func sortLogs(logs []flavor.Log) {
	sort.Slice(logs, func(i, j int) bool {
		if !logs[i].VisitedAt.Equal(logs[j].VisitedAt) {
			return logs[i].VisitedAt.After(logs[j].VisitedAt)
		}
		return logs[i].CreatedAt.After(logs[j].CreatedAt)
	})
}
