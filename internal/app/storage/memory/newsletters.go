package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conedex/conedex/internal/app/domain/newsletter"
)

// NewsletterStore implementation -----------------------------------------------

func (s *Store) CreateSubscriber(_ context.Context, sub newsletter.Subscriber) (newsletter.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.subscribers {
		if strings.EqualFold(other.Email, sub.Email) {
			return newsletter.Subscriber{}, conflict("subscriber %s already exists", sub.Email)
		}
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.SubscribedAt.IsZero() {
		sub.SubscribedAt = s.now()
	}
	s.subscribers[sub.ID] = sub
	return sub, nil
}

func (s *Store) UpdateSubscriber(_ context.Context, sub newsletter.Subscriber) (newsletter.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscribers[sub.ID]; !ok {
		return newsletter.Subscriber{}, notFound("subscriber", sub.ID)
	}
	s.subscribers[sub.ID] = sub
	return sub, nil
}

func (s *Store) GetSubscriberByEmail(_ context.Context, email string) (newsletter.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscribers {
		if strings.EqualFold(sub.Email, email) {
			return sub, nil
		}
	}
	return newsletter.Subscriber{}, notFound("subscriber", email)
}

func (s *Store) GetSubscriberByToken(_ context.Context, token string) (newsletter.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscribers {
		if token != "" && sub.Token == token {
			return sub, nil
		}
	}
	return newsletter.Subscriber{}, notFound("subscriber", "token")
}

func (s *Store) ListSubscribers(_ context.Context, status newsletter.SubscriberStatus) ([]newsletter.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]newsletter.Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		if status == "" || sub.Status == status {
			result = append(result, sub)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SubscribedAt.After(result[j].SubscribedAt) })
	return result, nil
}

func (s *Store) CreateNewsletter(_ context.Context, n newsletter.Newsletter) (newsletter.Newsletter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	stamp(&n.CreatedAt, &n.UpdatedAt, s.now())
	s.newsletters[n.ID] = n
	return n, nil
}

func (s *Store) UpdateNewsletter(_ context.Context, n newsletter.Newsletter) (newsletter.Newsletter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.newsletters[n.ID]
	if !ok {
		return newsletter.Newsletter{}, notFound("newsletter", n.ID)
	}
	n.CreatedAt = original.CreatedAt
	n.UpdatedAt = s.now()
	s.newsletters[n.ID] = n
	return n, nil
}

func (s *Store) GetNewsletter(_ context.Context, id string) (newsletter.Newsletter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.newsletters[id]
	if !ok {
		return newsletter.Newsletter{}, notFound("newsletter", id)
	}
	return n, nil
}

func (s *Store) ListNewsletters(_ context.Context) ([]newsletter.Newsletter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]newsletter.Newsletter, 0, len(s.newsletters))
	for _, n := range s.newsletters {
		result = append(result, n)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) DeleteNewsletter(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.newsletters[id]; !ok {
		return notFound("newsletter", id)
	}
	delete(s.newsletters, id)
	return nil
}

func (s *Store) TransitionNewsletter(_ context.Context, id string, from []newsletter.Status, to newsletter.Status) (newsletter.Newsletter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.newsletters[id]
	if !ok {
		return newsletter.Newsletter{}, notFound("newsletter", id)
	}
	allowed := false
	for _, st := range from {
		if n.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return newsletter.Newsletter{}, conflict("newsletter %s is %s", id, n.Status)
	}
	n.Status = to
	n.UpdatedAt = s.now()
	s.newsletters[id] = n
	return n, nil
}

func (s *Store) ListDueNewsletters(_ context.Context, now time.Time) ([]newsletter.Newsletter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]newsletter.Newsletter, 0)
	for _, n := range s.newsletters {
		if n.Status == newsletter.StatusScheduled && n.ScheduledAt != nil && !n.ScheduledAt.After(now) {
			result = append(result, n)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ScheduledAt.Before(*result[j].ScheduledAt) })
	return result, nil
}
