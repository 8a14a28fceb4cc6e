package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/conedex/conedex/internal/app/domain/moderation"
)

// ModerationStore implementation -----------------------------------------------

func (s *Store) CreateModerationItem(_ context.Context, item moderation.Item) (moderation.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	item.Categories = cloneStrings(item.Categories)
	s.moderation[item.ID] = item
	return item, nil
}

func (s *Store) UpdateModerationItem(_ context.Context, item moderation.Item) (moderation.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.moderation[item.ID]
	if !ok {
		return moderation.Item{}, notFound("moderation item", item.ID)
	}
	item.CreatedAt = original.CreatedAt
	item.Categories = cloneStrings(item.Categories)
	s.moderation[item.ID] = item
	return item, nil
}

func (s *Store) GetModerationItem(_ context.Context, id string) (moderation.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.moderation[id]
	if !ok {
		return moderation.Item{}, notFound("moderation item", id)
	}
	item.Categories = cloneStrings(item.Categories)
	return item, nil
}

func (s *Store) ListModerationItems(_ context.Context, status moderation.Status) ([]moderation.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]moderation.Item, 0)
	for _, item := range s.moderation {
		if status == "" || item.Status == status {
			item.Categories = cloneStrings(item.Categories)
			result = append(result, item)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}
