package flavors

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/conedex/conedex/internal/app/domain/flavor"
	"github.com/conedex/conedex/internal/app/domain/moderation"
	"github.com/conedex/conedex/internal/app/domain/profile"
	"github.com/conedex/conedex/internal/app/domain/shop"
	"github.com/conedex/conedex/internal/app/storage"
	svcerrors "github.com/conedex/conedex/internal/errors"
	"github.com/conedex/conedex/pkg/logger"
)

const (
	maxNameLength = 80
	maxTags       = 10
)

// Screener is the slice of the moderation service the flavor pipeline uses.
type Screener interface {
	Check(ctx context.Context, text string) moderation.Verdict
	Categorize(ctx context.Context, name, description string) (string, []string)
	FindDuplicate(ctx context.Context, candidate string, existing []flavor.Flavor) (flavor.Flavor, bool)
	Open(ctx context.Context, contentType moderation.ContentType, contentID, userID, text string, verdict moderation.Verdict) (moderation.Item, error)
}

// Input describes a new flavor.
type Input struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Category    string        `json:"category"`
	Tags        []string      `json:"tags"`
	Status      flavor.Status `json:"status"`
}

// Patch holds optional flavor changes.
type Patch struct {
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	Category    *string        `json:"category"`
	Tags        *[]string      `json:"tags"`
	Status      *flavor.Status `json:"status"`
}

// Service manages shop flavors.
type Service struct {
	store    storage.FlavorStore
	shops    storage.ShopStore
	screener Screener
	log      *logger.Logger
	now      func() time.Time
}

// New constructs a flavor service.
func New(store storage.FlavorStore, shops storage.ShopStore, screener Screener, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("flavors")
	}
	return &Service{
		store:    store,
		shops:    shops,
		screener: screener,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create adds a flavor to a shop after screening, duplicate detection and
// categorization.
func (s *Service) Create(ctx context.Context, actor profile.Actor, shopID string, in Input) (flavor.Flavor, error) {
	sh, err := s.shops.GetShop(ctx, shopID)
	if err != nil {
		return flavor.Flavor{}, err
	}
	if sh.Status == shop.StatusClosed || sh.Status == shop.StatusRejected {
		return flavor.Flavor{}, svcerrors.Validation("shop %s is %s", shopID, sh.Status)
	}

	f := flavor.Flavor{
		ShopID:      shopID,
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Category:    strings.ToLower(strings.TrimSpace(in.Category)),
		Tags:        normalizeTags(in.Tags),
		Status:      in.Status,
		Moderation:  flavor.ModerationApproved,
		CreatedBy:   actor.ID,
	}
	if f.Status == "" {
		f.Status = flavor.StatusAvailable
	}
	if err := validate(f); err != nil {
		return flavor.Flavor{}, err
	}

	existing, err := s.store.ListFlavors(ctx, flavor.Filter{ShopID: shopID, IncludeUnmoderated: true})
	if err != nil {
		return flavor.Flavor{}, err
	}
	if dup, ok := s.screener.FindDuplicate(ctx, f.Name, existing); ok {
		return flavor.Flavor{}, svcerrors.Conflict("flavor %q already exists at this shop as %q (%s)", f.Name, dup.Name, dup.ID).
			WithDetails("existing_id", dup.ID)
	}

	verdict := s.screener.Check(ctx, screenText(f))
	if verdict.Flagged {
		f.Moderation = flavor.ModerationPending
	}
	if f.Category == "" {
		category, tags := s.screener.Categorize(ctx, f.Name, f.Description)
		f.Category = category
		if len(f.Tags) == 0 {
			f.Tags = normalizeTags(tags)
		}
	}

	created, err := s.store.CreateFlavor(ctx, f)
	if err != nil {
		return flavor.Flavor{}, err
	}
	if verdict.Flagged {
		if _, err := s.screener.Open(ctx, moderation.ContentFlavor, created.ID, actor.ID, screenText(created), verdict); err != nil {
			s.log.WithError(err).WithField("flavor_id", created.ID).Error("failed to queue flavor for moderation")
		}
	}
	s.log.WithFields(map[string]interface{}{
		"flavor_id":  created.ID,
		"shop_id":    shopID,
		"category":   created.Category,
		"moderation": created.Moderation,
	}).Info("flavor created")
	return created, nil
}

// Get returns one flavor.
func (s *Service) Get(ctx context.Context, id string) (flavor.Flavor, error) {
	return s.store.GetFlavor(ctx, id)
}

// ListByShop returns a shop's approved flavors.
func (s *Service) ListByShop(ctx context.Context, shopID string, includeRetired bool) ([]flavor.Flavor, error) {
	if _, err := s.shops.GetShop(ctx, shopID); err != nil {
		return nil, err
	}
	return s.store.ListFlavors(ctx, flavor.Filter{ShopID: shopID, IncludeRetired: includeRetired})
}

// Search finds approved, non-retired flavors by text and category.
func (s *Service) Search(ctx context.Context, query, category string, limit, offset int) ([]flavor.Flavor, error) {
	if category != "" && !flavor.ValidCategory(category) {
		return nil, svcerrors.Validation("unknown category %q", category)
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.ListFlavors(ctx, flavor.Filter{
		Query:    strings.TrimSpace(query),
		Category: category,
		Limit:    limit,
		Offset:   offset,
	})
}

// Update applies patch. Shop owners and admins may edit any flavor of the
// shop; creators may edit their own while it awaits moderation.
func (s *Service) Update(ctx context.Context, actor profile.Actor, id string, patch Patch) (flavor.Flavor, error) {
	f, err := s.store.GetFlavor(ctx, id)
	if err != nil {
		return flavor.Flavor{}, err
	}
	if err := s.authorize(ctx, actor, f, true); err != nil {
		return flavor.Flavor{}, err
	}

	textChanged := false
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if flavor.NormalizeName(name) != flavor.NormalizeName(f.Name) {
			existing, err := s.store.ListFlavors(ctx, flavor.Filter{ShopID: f.ShopID, IncludeUnmoderated: true})
			if err != nil {
				return flavor.Flavor{}, err
			}
			others := existing[:0:0]
			for _, e := range existing {
				if e.ID != f.ID {
					others = append(others, e)
				}
			}
			if dup, ok := s.screener.FindDuplicate(ctx, name, others); ok {
				return flavor.Flavor{}, svcerrors.Conflict("flavor %q already exists at this shop as %q (%s)", name, dup.Name, dup.ID).
					WithDetails("existing_id", dup.ID)
			}
		}
		textChanged = textChanged || name != f.Name
		f.Name = name
	}
	if patch.Description != nil {
		desc := strings.TrimSpace(*patch.Description)
		textChanged = textChanged || desc != f.Description
		f.Description = desc
	}
	if patch.Category != nil {
		category := strings.ToLower(strings.TrimSpace(*patch.Category))
		if category == "" {
			// Clearing the category asks for a fresh suggestion, as on create.
			category, _ = s.screener.Categorize(ctx, f.Name, f.Description)
		}
		f.Category = category
	}
	if patch.Tags != nil {
		f.Tags = normalizeTags(*patch.Tags)
	}
	if patch.Status != nil {
		f.Status = *patch.Status
	}
	if err := validate(f); err != nil {
		return flavor.Flavor{}, err
	}

	var verdict moderation.Verdict
	if textChanged && !actor.IsAdmin() {
		verdict = s.screener.Check(ctx, screenText(f))
		if verdict.Flagged {
			f.Moderation = flavor.ModerationPending
		}
	}

	updated, err := s.store.UpdateFlavor(ctx, f)
	if err != nil {
		return flavor.Flavor{}, err
	}
	if verdict.Flagged {
		if _, err := s.screener.Open(ctx, moderation.ContentFlavor, updated.ID, actor.ID, screenText(updated), verdict); err != nil {
			s.log.WithError(err).WithField("flavor_id", updated.ID).Error("failed to queue flavor for moderation")
		}
	}
	s.log.WithField("flavor_id", id).Info("flavor updated")
	return updated, nil
}

// Retire hides a flavor from default listings.
func (s *Service) Retire(ctx context.Context, actor profile.Actor, id string) (flavor.Flavor, error) {
	f, err := s.store.GetFlavor(ctx, id)
	if err != nil {
		return flavor.Flavor{}, err
	}
	if err := s.authorize(ctx, actor, f, false); err != nil {
		return flavor.Flavor{}, err
	}
	if f.Status == flavor.StatusRetired {
		return f, nil
	}
	f.Status = flavor.StatusRetired
	f, err = s.store.UpdateFlavor(ctx, f)
	if err != nil {
		return flavor.Flavor{}, err
	}
	s.log.WithField("flavor_id", id).Info("flavor retired")
	return f, nil
}

func (s *Service) authorize(ctx context.Context, actor profile.Actor, f flavor.Flavor, allowPendingCreator bool) error {
	if actor.IsAdmin() {
		return nil
	}
	if allowPendingCreator && f.CreatedBy == actor.ID && f.Moderation == flavor.ModerationPending {
		return nil
	}
	sh, err := s.shops.GetShop(ctx, f.ShopID)
	if err != nil {
		return err
	}
	if sh.OwnerID != "" && sh.OwnerID == actor.ID {
		return nil
	}
	return svcerrors.Forbidden("only the shop owner or an admin can change this flavor")
}

func validate(f flavor.Flavor) error {
	if f.Name == "" {
		return svcerrors.Validation("name is required")
	}
	if utf8.RuneCountInString(f.Name) > maxNameLength {
		return svcerrors.Validation("name must be at most %d characters", maxNameLength)
	}
	if f.Category != "" && !flavor.ValidCategory(f.Category) {
		return svcerrors.Validation("unknown category %q", f.Category).
			WithDetails("allowed", flavor.Categories)
	}
	if !f.Status.Valid() {
		return svcerrors.Validation("unknown status %q", f.Status)
	}
	if len(f.Tags) > maxTags {
		return svcerrors.Validation("at most %d tags", maxTags)
	}
	return nil
}

func screenText(f flavor.Flavor) string {
	if f.Description == "" {
		return f.Name
	}
	return f.Name + "\n" + f.Description
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
