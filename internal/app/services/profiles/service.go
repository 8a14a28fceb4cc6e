package profiles

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/conedex/conedex/internal/app/domain/profile"
	"github.com/conedex/conedex/internal/app/storage"
	svcerrors "github.com/conedex/conedex/internal/errors"
	"github.com/conedex/conedex/internal/middleware"
	"github.com/conedex/conedex/pkg/logger"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,30}$`)

const (
	maxDisplayName = 50
	maxBio         = 500
)

// AuthAdmin manages users in the hosted auth provider.
type AuthAdmin interface {
	BanUser(ctx context.Context, userID string) error
	UnbanUser(ctx context.Context, userID string) error
	DeleteUser(ctx context.Context, userID string) error
}

// Patch holds the fields a user may change on their own profile.
type Patch struct {
	Username    *string `json:"username"`
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
	Bio         *string `json:"bio"`
}

// Service manages user profiles.
type Service struct {
	store storage.ProfileStore
	auth  AuthAdmin
	log   *logger.Logger
	now   func() time.Time
}

var _ middleware.IdentityResolver = (*Service)(nil)

// New constructs a profile service. auth may be nil, in which case suspend
// and delete only touch the local profile.
func New(store storage.ProfileStore, auth AuthAdmin, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("profiles")
	}
	return &Service{
		store: store,
		auth:  auth,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// ResolveIdentity implements middleware.IdentityResolver.
func (s *Service) ResolveIdentity(ctx context.Context, userID, email string) (middleware.Identity, error) {
	p, err := s.Ensure(ctx, userID, email)
	if err != nil {
		return middleware.Identity{}, err
	}
	return middleware.Identity{Role: string(p.Role), Suspended: p.Status == profile.StatusSuspended}, nil
}

// Ensure returns the profile for id, creating an explorer profile the first
// time a user is seen.
func (s *Service) Ensure(ctx context.Context, id, email string) (profile.Profile, error) {
	if strings.TrimSpace(id) == "" {
		return profile.Profile{}, svcerrors.Unauthorized("token has no subject")
	}
	email = strings.ToLower(strings.TrimSpace(email))

	p, err := s.store.GetProfile(ctx, id)
	if err == nil {
		if email != "" && p.Email != email {
			p.Email = email
			return s.store.UpdateProfile(ctx, p)
		}
		return p, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return profile.Profile{}, err
	}

	p, err = s.store.CreateProfile(ctx, profile.Profile{
		ID:     id,
		Email:  email,
		Role:   profile.RoleExplorer,
		Status: profile.StatusActive,
	})
	if errors.Is(err, storage.ErrConflict) {
		return s.store.GetProfile(ctx, id)
	}
	if err != nil {
		return profile.Profile{}, err
	}
	s.log.WithField("user_id", id).Info("profile created")
	return p, nil
}

// Get returns one profile.
func (s *Service) Get(ctx context.Context, id string) (profile.Profile, error) {
	return s.store.GetProfile(ctx, id)
}

// UpdateOwn applies a user's changes to their own profile.
func (s *Service) UpdateOwn(ctx context.Context, id string, patch Patch) (profile.Profile, error) {
	p, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return profile.Profile{}, err
	}

	if patch.Username != nil {
		username := strings.ToLower(strings.TrimSpace(*patch.Username))
		if !usernamePattern.MatchString(username) {
			return profile.Profile{}, svcerrors.Validation("username must be 3-30 characters of a-z, 0-9 or _")
		}
		if username != p.Username {
			other, err := s.store.GetProfileByUsername(ctx, username)
			switch {
			case err == nil && other.ID != id:
				return profile.Profile{}, svcerrors.Conflict("username %q is taken", username)
			case err != nil && !errors.Is(err, storage.ErrNotFound):
				return profile.Profile{}, err
			}
		}
		p.Username = username
	}
	if patch.DisplayName != nil {
		name := strings.TrimSpace(*patch.DisplayName)
		if utf8.RuneCountInString(name) > maxDisplayName {
			return profile.Profile{}, svcerrors.Validation("display_name must be at most %d characters", maxDisplayName)
		}
		p.DisplayName = name
	}
	if patch.AvatarURL != nil {
		avatar := strings.TrimSpace(*patch.AvatarURL)
		if avatar != "" && !strings.HasPrefix(avatar, "https://") && !strings.HasPrefix(avatar, "http://") {
			return profile.Profile{}, svcerrors.Validation("avatar_url must be an http(s) URL")
		}
		p.AvatarURL = avatar
	}
	if patch.Bio != nil {
		bio := strings.TrimSpace(*patch.Bio)
		if utf8.RuneCountInString(bio) > maxBio {
			return profile.Profile{}, svcerrors.Validation("bio must be at most %d characters", maxBio)
		}
		p.Bio = bio
	}

	updated, err := s.store.UpdateProfile(ctx, p)
	if errors.Is(err, storage.ErrConflict) {
		return profile.Profile{}, svcerrors.Conflict("username %q is taken", p.Username)
	}
	if err != nil {
		return profile.Profile{}, err
	}
	s.log.WithField("user_id", id).Info("profile updated")
	return updated, nil
}

// List returns profiles for the admin console.
func (s *Service) List(ctx context.Context, filter profile.Filter) ([]profile.Profile, error) {
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, svcerrors.Validation("unknown role %q", filter.Role)
	}
	if filter.Status != "" && filter.Status != profile.StatusActive && filter.Status != profile.StatusSuspended {
		return nil, svcerrors.Validation("unknown status %q", filter.Status)
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	return s.store.ListProfiles(ctx, filter)
}

// SetRole changes a user's role. Admins cannot demote themselves.
func (s *Service) SetRole(ctx context.Context, actor profile.Actor, id string, role profile.Role) (profile.Profile, error) {
	if !role.Valid() {
		return profile.Profile{}, svcerrors.Validation("unknown role %q", role)
	}
	if actor.ID == id && role != profile.RoleAdmin {
		return profile.Profile{}, svcerrors.Forbidden("admins cannot demote themselves")
	}
	p, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return profile.Profile{}, err
	}
	if p.Role == role {
		return p, nil
	}
	previous := p.Role
	p.Role = role
	p, err = s.store.UpdateProfile(ctx, p)
	if err != nil {
		return profile.Profile{}, err
	}
	s.log.WithFields(map[string]interface{}{
		"user_id":  id,
		"admin_id": actor.ID,
		"from":     previous,
		"to":       role,
	}).Info("role changed")
	return p, nil
}

// Promote upgrades an explorer to shop owner. Other roles are left alone.
func (s *Service) Promote(ctx context.Context, id string) (profile.Profile, error) {
	p, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return profile.Profile{}, err
	}
	if p.Role != profile.RoleExplorer {
		return p, nil
	}
	p.Role = profile.RoleShopOwner
	return s.store.UpdateProfile(ctx, p)
}

// Suspend blocks a user from the API and, when configured, from signing in.
func (s *Service) Suspend(ctx context.Context, actor profile.Actor, id string) (profile.Profile, error) {
	if actor.ID == id {
		return profile.Profile{}, svcerrors.Forbidden("admins cannot suspend themselves")
	}
	return s.setStatus(ctx, actor, id, profile.StatusSuspended)
}

// Reactivate lifts a suspension.
func (s *Service) Reactivate(ctx context.Context, actor profile.Actor, id string) (profile.Profile, error) {
	return s.setStatus(ctx, actor, id, profile.StatusActive)
}

func (s *Service) setStatus(ctx context.Context, actor profile.Actor, id string, status profile.Status) (profile.Profile, error) {
	p, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return profile.Profile{}, err
	}
	if p.Status == status {
		return p, nil
	}
	if s.auth != nil {
		if status == profile.StatusSuspended {
			err = s.auth.BanUser(ctx, id)
		} else {
			err = s.auth.UnbanUser(ctx, id)
		}
		if err != nil {
			return profile.Profile{}, svcerrors.Unavailable("auth provider rejected the status change", err)
		}
	}
	p.Status = status
	p, err = s.store.UpdateProfile(ctx, p)
	if err != nil {
		return profile.Profile{}, err
	}
	s.log.WithField("user_id", id).WithField("admin_id", actor.ID).WithField("status", status).Info("profile status changed")
	return p, nil
}

// Delete removes the auth user and then the profile.
func (s *Service) Delete(ctx context.Context, actor profile.Actor, id string) error {
	if actor.ID == id {
		return svcerrors.Forbidden("admins cannot delete themselves")
	}
	if _, err := s.store.GetProfile(ctx, id); err != nil {
		return err
	}
	if s.auth != nil {
		if err := s.auth.DeleteUser(ctx, id); err != nil {
			return svcerrors.Unavailable("auth provider rejected the deletion", err)
		}
	}
	if err := s.store.DeleteProfile(ctx, id); err != nil {
		return err
	}
	s.log.WithField("user_id", id).WithField("admin_id", actor.ID).Info("profile deleted")
	return nil
}

// Leaderboard returns the top active profiles by points.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]profile.Profile, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return s.store.Leaderboard(ctx, limit)
}
