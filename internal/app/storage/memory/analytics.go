package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/conedex/conedex/internal/app/domain/analytics"
	"github.com/conedex/conedex/internal/app/domain/flavor"
	"github.com/conedex/conedex/internal/app/domain/moderation"
	"github.com/conedex/conedex/internal/app/domain/newsletter"
	"github.com/conedex/conedex/internal/app/domain/shop"
	"github.com/conedex/conedex/internal/app/storage"
)

// AnalyticsStore implementation ------------------------------------------------

func (s *Store) Totals(_ context.Context) (analytics.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := analytics.Totals{
		Users:   len(s.profiles),
		Shops:   len(s.shops),
		Flavors: len(s.flavors),
		Logs:    len(s.logs),
	}
	for _, sh := range s.shops {
		if sh.Status == shop.StatusActive {
			t.ActiveShops++
		}
	}
	for _, c := range s.claims {
		if c.Status == shop.ClaimPending {
			t.PendingClaims++
		}
	}
	for _, item := range s.moderation {
		if item.Status == moderation.StatusOpen {
			t.OpenModeration++
		}
	}
	for _, sub := range s.subscribers {
		if sub.Status == newsletter.Subscribed {
			t.Subscribers++
		}
	}
	return t, nil
}

func (s *Store) CountCreated(_ context.Context, entity string, from, to time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in := func(t time.Time) bool { return !t.Before(from) && t.Before(to) }
	count := 0
	switch entity {
	case storage.EntityUsers:
		for _, p := range s.profiles {
			if in(p.CreatedAt) {
				count++
			}
		}
	case storage.EntityShops:
		for _, sh := range s.shops {
			if in(sh.CreatedAt) {
				count++
			}
		}
	case storage.EntityLogs:
		for _, l := range s.logs {
			if in(l.CreatedAt) {
				count++
			}
		}
	default:
		return 0, fmt.Errorf("unknown entity %q", entity)
	}
	return count, nil
}

type ratingAgg struct {
	logs  int
	total int
}

func (a ratingAgg) average() float64 {
	if a.logs == 0 {
		return 0
	}
	return float64(a.total) / float64(a.logs)
}

func (s *Store) logsSinceLocked(since time.Time) []flavor.Log {
	out := make([]flavor.Log, 0, len(s.logs))
	for _, l := range s.logs {
		if since.IsZero() || !l.VisitedAt.Before(since) {
			out = append(out, l)
		}
	}
	return out
}

func (s *Store) TopFlavors(_ context.Context, limit int, since time.Time) ([]analytics.RankedFlavor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	aggs := map[string]*ratingAgg{}
	for _, l := range s.logsSinceLocked(since) {
		a := aggs[l.FlavorID]
		if a == nil {
			a = &ratingAgg{}
			aggs[l.FlavorID] = a
		}
		a.logs++
		a.total += l.Rating
	}

	result := make([]analytics.RankedFlavor, 0, len(aggs))
	for id, a := range aggs {
		f := s.flavors[id]
		result = append(result, analytics.RankedFlavor{
			FlavorID:      id,
			Name:          f.Name,
			ShopID:        f.ShopID,
			ShopName:      s.shops[f.ShopID].Name,
			Logs:          a.logs,
			AverageRating: a.average(),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Logs != result[j].Logs {
			return result[i].Logs > result[j].Logs
		}
		if result[i].AverageRating != result[j].AverageRating {
			return result[i].AverageRating > result[j].AverageRating
		}
		return result[i].FlavorID < result[j].FlavorID
	})
	return page(result, limit, 0), nil
}

func (s *Store) TopShops(_ context.Context, limit int, since time.Time) ([]analytics.RankedShop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	aggs := map[string]*ratingAgg{}
	for _, l := range s.logsSinceLocked(since) {
		a := aggs[l.ShopID]
		if a == nil {
			a = &ratingAgg{}
			aggs[l.ShopID] = a
		}
		a.logs++
		a.total += l.Rating
	}

	result := make([]analytics.RankedShop, 0, len(aggs))
	for id, a := range aggs {
		sh := s.shops[id]
		result = append(result, analytics.RankedShop{
			ShopID:        id,
			Name:          sh.Name,
			City:          sh.City,
			Logs:          a.logs,
			AverageRating: a.average(),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Logs != result[j].Logs {
			return result[i].Logs > result[j].Logs
		}
		if result[i].AverageRating != result[j].AverageRating {
			return result[i].AverageRating > result[j].AverageRating
		}
		return result[i].ShopID < result[j].ShopID
	})
	return page(result, limit, 0), nil
}

func (s *Store) RatingDistribution(_ context.Context, shopID string) (map[int]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dist := map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}
	for _, l := range s.logs {
		if shopID == "" || l.ShopID == shopID {
			dist[l.Rating]++
		}
	}
	return dist, nil
}

func (s *Store) DailyLogCounts(_ context.Context, since time.Time) ([]analytics.DailyCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[string]int{}
	for _, l := range s.logs {
		if l.VisitedAt.Before(since) {
			continue
		}
		counts[l.VisitedAt.UTC().Format("2006-01-02")]++
	}
	result := make([]analytics.DailyCount, 0, len(counts))
	for day, c := range counts {
		result = append(result, analytics.DailyCount{Day: day, Count: c})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Day < result[j].Day })
	return result, nil
}

func (s *Store) ShopStats(_ context.Context, shopID string) (shop.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := shop.Stats{ShopID: shopID, Ratings: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}}
	visitors := map[string]bool{}
	flavorAggs := map[string]*ratingAgg{}
	total := 0
	for _, l := range s.logs {
		if l.ShopID != shopID {
			continue
		}
		stats.TotalLogs++
		total += l.Rating
		stats.Ratings[l.Rating]++
		visitors[l.UserID] = true
		a := flavorAggs[l.FlavorID]
		if a == nil {
			a = &ratingAgg{}
			flavorAggs[l.FlavorID] = a
		}
		a.logs++
		a.total += l.Rating
	}
	stats.UniqueVisitors = len(visitors)
	if stats.TotalLogs > 0 {
		stats.AverageRating = float64(total) / float64(stats.TotalLogs)
	}
	for id, a := range flavorAggs {
		stats.TopFlavors = append(stats.TopFlavors, shop.FlavorCount{
			FlavorID:      id,
			Name:          s.flavors[id].Name,
			Logs:          a.logs,
			AverageRating: a.average(),
		})
	}
	sort.Slice(stats.TopFlavors, func(i, j int) bool {
		if stats.TopFlavors[i].Logs != stats.TopFlavors[j].Logs {
			return stats.TopFlavors[i].Logs > stats.TopFlavors[j].Logs
		}
		return stats.TopFlavors[i].AverageRating > stats.TopFlavors[j].AverageRating
	})
	stats.TopFlavors = page(stats.TopFlavors, 5, 0)
	return stats, nil
}
