package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/conedex/conedex/internal/app/domain/quest"
)

// QuestStore implementation ----------------------------------------------------

func (s *Store) CreateQuest(_ context.Context, q quest.Quest) (quest.Quest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	stamp(&q.CreatedAt, &q.UpdatedAt, s.now())
	q = cloneQuest(q)
	s.quests[q.ID] = q
	return cloneQuest(q), nil
}

func (s *Store) UpdateQuest(_ context.Context, q quest.Quest) (quest.Quest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.quests[q.ID]
	if !ok {
		return quest.Quest{}, notFound("quest", q.ID)
	}
	q.CreatedAt = original.CreatedAt
	q.UpdatedAt = s.now()
	q = cloneQuest(q)
	s.quests[q.ID] = q
	return cloneQuest(q), nil
}

func (s *Store) GetQuest(_ context.Context, id string) (quest.Quest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quests[id]
	if !ok {
		return quest.Quest{}, notFound("quest", id)
	}
	return cloneQuest(q), nil
}

func (s *Store) ListQuests(_ context.Context, activeOnly bool) ([]quest.Quest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]quest.Quest, 0, len(s.quests))
	for _, q := range s.quests {
		if activeOnly && !q.Active {
			continue
		}
		result = append(result, cloneQuest(q))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) DeleteQuest(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quests[id]; !ok {
		return notFound("quest", id)
	}
	for _, p := range s.participations {
		if p.QuestID == id {
			return conflict("quest %s has participants", id)
		}
	}
	delete(s.quests, id)
	return nil
}

func (s *Store) CreateParticipation(_ context.Context, p quest.Participation) (quest.Participation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.participations {
		if existing.UserID == p.UserID && existing.QuestID == p.QuestID {
			return quest.Participation{}, conflict("user already joined quest %s", p.QuestID)
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.now()
	if p.JoinedAt.IsZero() {
		p.JoinedAt = now
	}
	p.UpdatedAt = now
	p = cloneParticipation(p)
	s.participations[p.ID] = p
	return cloneParticipation(p), nil
}

func (s *Store) UpdateParticipation(_ context.Context, p quest.Participation) (quest.Participation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.participations[p.ID]
	if !ok {
		return quest.Participation{}, notFound("participation", p.ID)
	}
	p.JoinedAt = original.JoinedAt
	p.UpdatedAt = s.now()
	p = cloneParticipation(p)
	s.participations[p.ID] = p
	return cloneParticipation(p), nil
}

func (s *Store) GetParticipation(_ context.Context, userID, questID string) (quest.Participation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.participations {
		if p.UserID == userID && p.QuestID == questID {
			return cloneParticipation(p), nil
		}
	}
	return quest.Participation{}, notFound("participation", userID+"/"+questID)
}

func (s *Store) ListParticipations(_ context.Context, userID string, status quest.ParticipationStatus) ([]quest.Participation, error) {
	return s.listParticipations(func(p quest.Participation) bool {
		return p.UserID == userID && (status == "" || p.Status == status)
	}), nil
}

func (s *Store) ListQuestParticipations(_ context.Context, questID string, status quest.ParticipationStatus) ([]quest.Participation, error) {
	return s.listParticipations(func(p quest.Participation) bool {
		return p.QuestID == questID && (status == "" || p.Status == status)
	}), nil
}

func (s *Store) listParticipations(match func(quest.Participation) bool) []quest.Participation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]quest.Participation, 0)
	for _, p := range s.participations {
		if match(p) {
			result = append(result, cloneParticipation(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].JoinedAt.After(result[j].JoinedAt) })
	return result
}

func cloneQuest(q quest.Quest) quest.Quest {
	if q.Objectives != nil {
		objs := make([]quest.Objective, len(q.Objectives))
		copy(objs, q.Objectives)
		q.Objectives = objs
	}
	if q.EndsAt != nil {
		end := *q.EndsAt
		q.EndsAt = &end
	}
	return q
}

func cloneParticipation(p quest.Participation) quest.Participation {
	if p.Progress != nil {
		progress := make([]quest.ObjectiveProgress, len(p.Progress))
		copy(progress, p.Progress)
		p.Progress = progress
	}
	if p.CompletedAt != nil {
		at := *p.CompletedAt
		p.CompletedAt = &at
	}
	return p
}
