package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/conedex/conedex/internal/app/domain/flavor"
)

const flavorColumns = `id, shop_id, name, description, category, tags, status, moderation, created_by, created_at, updated_at`

type flavorRow struct {
	flavor.Flavor
	TagList pq.StringArray `db:"tags"`
}

func (r flavorRow) toFlavor() flavor.Flavor {
	f := r.Flavor
	if len(r.TagList) > 0 {
		f.Tags = []string(r.TagList)
	}
	return f
}

// --- FlavorStore -------------------------------------------------------------

func (s *Store) CreateFlavor(ctx context.Context, f flavor.Flavor) (flavor.Flavor, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	stamp(&f.CreatedAt, &f.UpdatedAt, s.now())

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO flavors (`+flavorColumns+`)
		VALUES (:id, :shop_id, :name, :description, :category, :tags, :status, :moderation, :created_by, :created_at, :updated_at)
	`, flavorRow{Flavor: f, TagList: stringArray(f.Tags)})
	if err != nil {
		return flavor.Flavor{}, mapErr(err, "flavor", f.ID)
	}
	return f, nil
}

func (s *Store) UpdateFlavor(ctx context.Context, f flavor.Flavor) (flavor.Flavor, error) {
	f.UpdatedAt = s.now()
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE flavors
		SET name = :name, description = :description, category = :category, tags = :tags, status = :status,
			moderation = :moderation, updated_at = :updated_at
		WHERE id = :id
	`, flavorRow{Flavor: f, TagList: stringArray(f.Tags)})
	if err != nil {
		return flavor.Flavor{}, mapErr(err, "flavor", f.ID)
	}
	if err := mustAffect(res, "flavor", f.ID); err != nil {
		return flavor.Flavor{}, err
	}
	return s.GetFlavor(ctx, f.ID)
}

func (s *Store) GetFlavor(ctx context.Context, id string) (flavor.Flavor, error) {
	var row flavorRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+flavorColumns+` FROM flavors WHERE id = $1`, id); err != nil {
		return flavor.Flavor{}, mapErr(err, "flavor", id)
	}
	return row.toFlavor(), nil
}

func (s *Store) ListFlavors(ctx context.Context, filter flavor.Filter) ([]flavor.Flavor, error) {
	var w where
	if filter.ShopID != "" {
		w.add("shop_id = ?", filter.ShopID)
	}
	if !filter.IncludeRetired {
		w.add("status <> ?", flavor.StatusRetired)
	}
	if !filter.IncludeUnmoderated {
		w.add("moderation = ?", flavor.ModerationApproved)
	}
	if filter.Category != "" {
		w.add("category = ?", filter.Category)
	}
	if filter.Query != "" {
		w.add("(name ILIKE ? OR description ILIKE ?)", likePattern(filter.Query))
	}
	query := `SELECT ` + flavorColumns + ` FROM flavors` + w.String() + ` ORDER BY created_at DESC` + w.page(filter.Limit, filter.Offset)

	rows := []flavorRow{}
	if err := s.db.SelectContext(ctx, &rows, query, w.args...); err != nil {
		return nil, fmt.Errorf("list flavors: %w", err)
	}
	result := make([]flavor.Flavor, len(rows))
	for i, r := range rows {
		result[i] = r.toFlavor()
	}
	return result, nil
}

// --- LogStore ----------------------------------------------------------------

const logColumns = `id, user_id, flavor_id, shop_id, rating, notes, photo_url, visited_at, created_at, updated_at`

func (s *Store) CreateLog(ctx context.Context, l flavor.Log) (flavor.Log, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	stamp(&l.CreatedAt, &l.UpdatedAt, s.now())

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO flavor_logs (`+logColumns+`)
		VALUES (:id, :user_id, :flavor_id, :shop_id, :rating, :notes, :photo_url, :visited_at, :created_at, :updated_at)
	`, l)
	if err != nil {
		return flavor.Log{}, mapErr(err, "log", l.ID)
	}
	return l, nil
}

func (s *Store) UpdateLog(ctx context.Context, l flavor.Log) (flavor.Log, error) {
	l.UpdatedAt = s.now()
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE flavor_logs
		SET rating = :rating, notes = :notes, photo_url = :photo_url, visited_at = :visited_at, updated_at = :updated_at
		WHERE id = :id
	`, l)
	if err != nil {
		return flavor.Log{}, mapErr(err, "log", l.ID)
	}
	if err := mustAffect(res, "log", l.ID); err != nil {
		return flavor.Log{}, err
	}
	return s.GetLog(ctx, l.ID)
}

func (s *Store) GetLog(ctx context.Context, id string) (flavor.Log, error) {
	var l flavor.Log
	if err := s.db.GetContext(ctx, &l, `SELECT `+logColumns+` FROM flavor_logs WHERE id = $1`, id); err != nil {
		return flavor.Log{}, mapErr(err, "log", id)
	}
	return l, nil
}

func (s *Store) DeleteLog(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM flavor_logs WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "log", id)
	}
	return mustAffect(res, "log", id)
}

func (s *Store) ListLogs(ctx context.Context, userID string, limit, offset int) ([]flavor.Log, error) {
	w := where{}
	w.add("user_id = ?", userID)
	query := `SELECT ` + logColumns + ` FROM flavor_logs` + w.String() +
		` ORDER BY visited_at DESC, created_at DESC` + w.page(limit, offset)

	result := []flavor.Log{}
	if err := s.db.SelectContext(ctx, &result, query, w.args...); err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	return result, nil
}

func (s *Store) ListLogEntries(ctx context.Context, userID string, since time.Time) ([]flavor.LogEntry, error) {
	w := where{}
	w.add("l.user_id = ?", userID)
	if !since.IsZero() {
		w.add("l.visited_at >= ?", since)
	}
	cols := make([]string, 0, 10)
	for _, c := range strings.Split(logColumns, ", ") {
		cols = append(cols, "l."+c)
	}
	query := `SELECT ` + strings.Join(cols, ", ") + `, f.category
		FROM flavor_logs l JOIN flavors f ON f.id = l.flavor_id` + w.String() + ` ORDER BY l.visited_at DESC`

	result := []flavor.LogEntry{}
	if err := s.db.SelectContext(ctx, &result, query, w.args...); err != nil {
		return nil, fmt.Errorf("list log entries: %w", err)
	}
	return result, nil
}
