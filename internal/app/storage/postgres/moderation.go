package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/conedex/conedex/internal/app/domain/moderation"
)

const moderationColumns = `id, content_type, content_id, user_id, excerpt, reason, categories, score, status,
	reviewer_id, resolved_at, created_at`

type moderationRow struct {
	moderation.Item
	Cats pq.StringArray `db:"categories"`
}

func (r moderationRow) toItem() moderation.Item {
	item := r.Item
	if len(r.Cats) > 0 {
		item.Categories = []string(r.Cats)
	}
	return item
}

// --- ModerationStore ---------------------------------------------------------

func (s *Store) CreateModerationItem(ctx context.Context, item moderation.Item) (moderation.Item, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO moderation_items (`+moderationColumns+`)
		VALUES (:id, :content_type, :content_id, :user_id, :excerpt, :reason, :categories, :score, :status,
			:reviewer_id, :resolved_at, :created_at)
	`, moderationRow{Item: item, Cats: stringArray(item.Categories)})
	if err != nil {
		return moderation.Item{}, mapErr(err, "moderation item", item.ID)
	}
	return item, nil
}

func (s *Store) UpdateModerationItem(ctx context.Context, item moderation.Item) (moderation.Item, error) {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE moderation_items
		SET excerpt = :excerpt, reason = :reason, categories = :categories, score = :score, status = :status,
			reviewer_id = :reviewer_id, resolved_at = :resolved_at
		WHERE id = :id
	`, moderationRow{Item: item, Cats: stringArray(item.Categories)})
	if err != nil {
		return moderation.Item{}, mapErr(err, "moderation item", item.ID)
	}
	if err := mustAffect(res, "moderation item", item.ID); err != nil {
		return moderation.Item{}, err
	}
	return s.GetModerationItem(ctx, item.ID)
}

func (s *Store) GetModerationItem(ctx context.Context, id string) (moderation.Item, error) {
	var row moderationRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+moderationColumns+` FROM moderation_items WHERE id = $1`, id); err != nil {
		return moderation.Item{}, mapErr(err, "moderation item", id)
	}
	return row.toItem(), nil
}

func (s *Store) ListModerationItems(ctx context.Context, status moderation.Status) ([]moderation.Item, error) {
	var w where
	if status != "" {
		w.add("status = ?", status)
	}
	rows := []moderationRow{}
	query := `SELECT ` + moderationColumns + ` FROM moderation_items` + w.String() + ` ORDER BY created_at DESC`
	if err := s.db.SelectContext(ctx, &rows, query, w.args...); err != nil {
		return nil, fmt.Errorf("list moderation items: %w", err)
	}
	result := make([]moderation.Item, len(rows))
	for i, r := range rows {
		result[i] = r.toItem()
	}
	return result, nil
}
