package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/conedex/conedex/internal/app/domain/analytics"
	"github.com/conedex/conedex/internal/app/domain/shop"
	"github.com/conedex/conedex/internal/app/storage"
)

// --- AnalyticsStore ----------------------------------------------------------

func (s *Store) Totals(ctx context.Context) (analytics.Totals, error) {
	var t analytics.Totals
	err := s.db.QueryRowxContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM profiles),
			(SELECT COUNT(*) FROM shops),
			(SELECT COUNT(*) FROM shops WHERE status = 'active'),
			(SELECT COUNT(*) FROM flavors),
			(SELECT COUNT(*) FROM flavor_logs),
			(SELECT COUNT(*) FROM shop_claims WHERE status = 'pending'),
			(SELECT COUNT(*) FROM moderation_items WHERE status = 'open'),
			(SELECT COUNT(*) FROM newsletter_subscribers WHERE status = 'subscribed')
	`).Scan(&t.Users, &t.Shops, &t.ActiveShops, &t.Flavors, &t.Logs, &t.PendingClaims, &t.OpenModeration, &t.Subscribers)
	if err != nil {
		return analytics.Totals{}, fmt.Errorf("totals: %w", err)
	}
	return t, nil
}

var entityTables = map[string]string{
	storage.EntityUsers: "profiles",
	storage.EntityShops: "shops",
	storage.EntityLogs:  "flavor_logs",
}

func (s *Store) CountCreated(ctx context.Context, entity string, from, to time.Time) (int, error) {
	table, ok := entityTables[entity]
	if !ok {
		return 0, fmt.Errorf("unknown entity %q", entity)
	}
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM `+table+` WHERE created_at >= $1 AND created_at < $2`, from, to)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", entity, err)
	}
	return count, nil
}

func (s *Store) TopFlavors(ctx context.Context, limit int, since time.Time) ([]analytics.RankedFlavor, error) {
	if limit <= 0 {
		limit = 10
	}
	result := []analytics.RankedFlavor{}
	err := s.db.SelectContext(ctx, &result, `
		SELECT l.flavor_id, f.name, f.shop_id, s.name AS shop_name,
			COUNT(*) AS logs, AVG(l.rating)::float8 AS average_rating
		FROM flavor_logs l
		JOIN flavors f ON f.id = l.flavor_id
		JOIN shops s ON s.id = f.shop_id
		WHERE l.visited_at >= $1
		GROUP BY l.flavor_id, f.name, f.shop_id, s.name
		ORDER BY logs DESC, average_rating DESC, l.flavor_id
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("top flavors: %w", err)
	}
	return result, nil
}

func (s *Store) TopShops(ctx context.Context, limit int, since time.Time) ([]analytics.RankedShop, error) {
	if limit <= 0 {
		limit = 10
	}
	result := []analytics.RankedShop{}
	err := s.db.SelectContext(ctx, &result, `
		SELECT l.shop_id, s.name, s.city, COUNT(*) AS logs, AVG(l.rating)::float8 AS average_rating
		FROM flavor_logs l
		JOIN shops s ON s.id = l.shop_id
		WHERE l.visited_at >= $1
		GROUP BY l.shop_id, s.name, s.city
		ORDER BY logs DESC, average_rating DESC, l.shop_id
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("top shops: %w", err)
	}
	return result, nil
}

type ratingCount struct {
	Rating int `db:"rating"`
	Count  int `db:"count"`
}

func (s *Store) RatingDistribution(ctx context.Context, shopID string) (map[int]int, error) {
	var w where
	if shopID != "" {
		w.add("shop_id = ?", shopID)
	}
	rows := []ratingCount{}
	query := `SELECT rating, COUNT(*) AS count FROM flavor_logs` + w.String() + ` GROUP BY rating`
	if err := s.db.SelectContext(ctx, &rows, query, w.args...); err != nil {
		return nil, fmt.Errorf("rating distribution: %w", err)
	}
	dist := map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}
	for _, r := range rows {
		dist[r.Rating] = r.Count
	}
	return dist, nil
}

func (s *Store) DailyLogCounts(ctx context.Context, since time.Time) ([]analytics.DailyCount, error) {
	result := []analytics.DailyCount{}
	err := s.db.SelectContext(ctx, &result, `
		SELECT to_char(visited_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*) AS count
		FROM flavor_logs
		WHERE visited_at >= $1
		GROUP BY day
		ORDER BY day`, since)
	if err != nil {
		return nil, fmt.Errorf("daily log counts: %w", err)
	}
	return result, nil
}

func (s *Store) ShopStats(ctx context.Context, shopID string) (shop.Stats, error) {
	stats := shop.Stats{ShopID: shopID}
	err := s.db.QueryRowxContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT user_id), COALESCE(AVG(rating), 0)::float8
		FROM flavor_logs WHERE shop_id = $1`, shopID).Scan(&stats.TotalLogs, &stats.UniqueVisitors, &stats.AverageRating)
	if err != nil {
		return shop.Stats{}, fmt.Errorf("shop stats: %w", err)
	}
	if stats.Ratings, err = s.RatingDistribution(ctx, shopID); err != nil {
		return shop.Stats{}, err
	}
	stats.TopFlavors = []shop.FlavorCount{}
	err = s.db.SelectContext(ctx, &stats.TopFlavors, `
		SELECT l.flavor_id, f.name, COUNT(*) AS logs, AVG(l.rating)::float8 AS average_rating
		FROM flavor_logs l JOIN flavors f ON f.id = l.flavor_id
		WHERE l.shop_id = $1
		GROUP BY l.flavor_id, f.name
		ORDER BY logs DESC, average_rating DESC
		LIMIT 5`, shopID)
	if err != nil {
		return shop.Stats{}, fmt.Errorf("shop top flavors: %w", err)
	}
	return stats, nil
}
