package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/conedex/conedex/internal/app/domain/profile"
)

const profileColumns = `id, email, username, display_name, avatar_url, bio, role, status, points, created_at, updated_at`

// --- ProfileStore ------------------------------------------------------------

func (s *Store) CreateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	stamp(&p.CreatedAt, &p.UpdatedAt, s.now())

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES (:id, :email, :username, :display_name, :avatar_url, :bio, :role, :status, :points, :created_at, :updated_at)
	`, p)
	if err != nil {
		return profile.Profile{}, mapErr(err, "profile", p.ID)
	}
	return p, nil
}

func (s *Store) UpdateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	p.UpdatedAt = s.now()
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE profiles
		SET email = :email, username = :username, display_name = :display_name, avatar_url = :avatar_url,
			bio = :bio, role = :role, status = :status, points = :points, updated_at = :updated_at
		WHERE id = :id
	`, p)
	if err != nil {
		return profile.Profile{}, mapErr(err, "profile", p.ID)
	}
	if err := mustAffect(res, "profile", p.ID); err != nil {
		return profile.Profile{}, err
	}
	return s.GetProfile(ctx, p.ID)
}

func (s *Store) GetProfile(ctx context.Context, id string) (profile.Profile, error) {
	var p profile.Profile
	err := s.db.GetContext(ctx, &p, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	if err != nil {
		return profile.Profile{}, mapErr(err, "profile", id)
	}
	return p, nil
}

func (s *Store) GetProfileByUsername(ctx context.Context, username string) (profile.Profile, error) {
	var p profile.Profile
	err := s.db.GetContext(ctx, &p, `SELECT `+profileColumns+` FROM profiles WHERE lower(username) = lower($1)`, username)
	if err != nil {
		return profile.Profile{}, mapErr(err, "profile", username)
	}
	return p, nil
}

func (s *Store) ListProfiles(ctx context.Context, filter profile.Filter) ([]profile.Profile, error) {
	var w where
	if filter.Role != "" {
		w.add("role = ?", filter.Role)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if filter.Query != "" {
		w.add("(username ILIKE ? OR display_name ILIKE ? OR email ILIKE ?)", likePattern(filter.Query))
	}
	query := `SELECT ` + profileColumns + ` FROM profiles` + w.String() + ` ORDER BY created_at DESC` + w.page(filter.Limit, filter.Offset)

	result := []profile.Profile{}
	if err := s.db.SelectContext(ctx, &result, query, w.args...); err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return result, nil
}

func (s *Store) DeleteProfile(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "profile", id)
	}
	return mustAffect(res, "profile", id)
}

func (s *Store) AddPoints(ctx context.Context, id string, delta int) (profile.Profile, error) {
	var p profile.Profile
	err := s.db.GetContext(ctx, &p, `
		UPDATE profiles SET points = GREATEST(points + $2, 0), updated_at = $3
		WHERE id = $1
		RETURNING `+profileColumns, id, delta, s.now())
	if err != nil {
		return profile.Profile{}, mapErr(err, "profile", id)
	}
	return p, nil
}

func (s *Store) Leaderboard(ctx context.Context, limit int) ([]profile.Profile, error) {
	if limit <= 0 {
		limit = 10
	}
	result := []profile.Profile{}
	err := s.db.SelectContext(ctx, &result, `
		SELECT `+profileColumns+` FROM profiles
		WHERE status = 'active'
		ORDER BY points DESC, created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return result, nil
}
