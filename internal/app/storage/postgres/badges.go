package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/conedex/conedex/internal/app/domain/badge"
)

const badgeColumns = `id, name, description, image_url, criteria, points, created_at, updated_at`

type badgeRow struct {
	badge.Badge
	Crit jsonColumn[badge.Criteria] `db:"criteria"`
}

func (r badgeRow) toBadge() badge.Badge {
	b := r.Badge
	b.Criteria = r.Crit.V
	return b
}

func newBadgeRow(b badge.Badge) badgeRow {
	return badgeRow{Badge: b, Crit: jsonColumn[badge.Criteria]{V: b.Criteria}}
}

// --- BadgeStore --------------------------------------------------------------

func (s *Store) CreateBadge(ctx context.Context, b badge.Badge) (badge.Badge, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	stamp(&b.CreatedAt, &b.UpdatedAt, s.now())

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO badges (`+badgeColumns+`)
		VALUES (:id, :name, :description, :image_url, :criteria, :points, :created_at, :updated_at)
	`, newBadgeRow(b))
	if err != nil {
		return badge.Badge{}, mapErr(err, "badge", b.Name)
	}
	return b, nil
}

func (s *Store) UpdateBadge(ctx context.Context, b badge.Badge) (badge.Badge, error) {
	b.UpdatedAt = s.now()
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE badges
		SET name = :name, description = :description, image_url = :image_url, criteria = :criteria,
			points = :points, updated_at = :updated_at
		WHERE id = :id
	`, newBadgeRow(b))
	if err != nil {
		return badge.Badge{}, mapErr(err, "badge", b.ID)
	}
	if err := mustAffect(res, "badge", b.ID); err != nil {
		return badge.Badge{}, err
	}
	return s.GetBadge(ctx, b.ID)
}

func (s *Store) GetBadge(ctx context.Context, id string) (badge.Badge, error) {
	var row badgeRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+badgeColumns+` FROM badges WHERE id = $1`, id); err != nil {
		return badge.Badge{}, mapErr(err, "badge", id)
	}
	return row.toBadge(), nil
}

func (s *Store) ListBadges(ctx context.Context) ([]badge.Badge, error) {
	rows := []badgeRow{}
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+badgeColumns+` FROM badges ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	result := make([]badge.Badge, len(rows))
	for i, r := range rows {
		result[i] = r.toBadge()
	}
	return result, nil
}

func (s *Store) DeleteBadge(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM badges WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "badge", id)
	}
	return mustAffect(res, "badge", id)
}

const awardColumns = `id, user_id, badge_id, reason, awarded_at`

func (s *Store) CreateAward(ctx context.Context, a badge.Award) (badge.Award, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AwardedAt.IsZero() {
		a.AwardedAt = s.now()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO badge_awards (`+awardColumns+`)
		VALUES (:id, :user_id, :badge_id, :reason, :awarded_at)
	`, a)
	if err != nil {
		return badge.Award{}, mapErr(err, "award", a.UserID+"/"+a.BadgeID)
	}
	return a, nil
}

func (s *Store) GetAward(ctx context.Context, userID, badgeID string) (badge.Award, error) {
	var a badge.Award
	err := s.db.GetContext(ctx, &a, `SELECT `+awardColumns+` FROM badge_awards WHERE user_id = $1 AND badge_id = $2`, userID, badgeID)
	if err != nil {
		return badge.Award{}, mapErr(err, "award", userID+"/"+badgeID)
	}
	return a, nil
}

func (s *Store) ListAwards(ctx context.Context, userID string) ([]badge.Award, error) {
	result := []badge.Award{}
	err := s.db.SelectContext(ctx, &result, `SELECT `+awardColumns+` FROM badge_awards WHERE user_id = $1 ORDER BY awarded_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list awards: %w", err)
	}
	return result, nil
}
