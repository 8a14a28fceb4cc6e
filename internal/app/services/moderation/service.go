// Package moderation screens user content with the AI providers and runs the
// admin review queue for anything they flag.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/conedex/conedex/internal/ai"
	"github.com/conedex/conedex/internal/app/domain/flavor"
	"github.com/conedex/conedex/internal/app/domain/moderation"
	"github.com/conedex/conedex/internal/app/domain/notification"
	"github.com/conedex/conedex/internal/app/domain/shop"
	"github.com/conedex/conedex/internal/app/metrics"
	"github.com/conedex/conedex/internal/app/storage"
	svcerrors "github.com/conedex/conedex/internal/errors"
	"github.com/conedex/conedex/pkg/logger"
)

// DuplicateThreshold is the embedding cosine similarity at or above which two
// flavor names are treated as the same flavor.
const DuplicateThreshold = 0.92

const maxExcerpt = 280

// Moderator classifies text as safe or not.
type Moderator interface {
	Moderate(ctx context.Context, text string) (ai.ModerationResult, error)
}

// Categorizer suggests a flavor category.
type Categorizer interface {
	Categorize(ctx context.Context, name, description string, categories []string) (ai.Categorization, error)
}

// Embedder produces vector embeddings for similarity checks.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, userID string, typ notification.Type, title, message, link string)
}

// Providers bundles the optional AI backends. Nil members disable the
// corresponding feature.
type Providers struct {
	Moderator   Moderator
	Categorizer Categorizer
	Embedder    Embedder
}

// Service screens content and manages the review queue.
type Service struct {
	store     storage.ModerationStore
	flavors   storage.FlavorStore
	logs      storage.LogStore
	shops     storage.ShopStore
	providers Providers
	notifier  Notifier
	log       *logger.Logger
	now       func() time.Time
}

// New constructs a moderation service.
func New(store storage.ModerationStore, flavors storage.FlavorStore, logs storage.LogStore, shops storage.ShopStore, providers Providers, notifier Notifier, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("moderation")
	}
	return &Service{
		store:     store,
		flavors:   flavors,
		logs:      logs,
		shops:     shops,
		providers: providers,
		notifier:  notifier,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Check runs text through the moderator. Provider failures are logged and
// reported as not flagged.
func (s *Service) Check(ctx context.Context, text string) moderation.Verdict {
	text = strings.TrimSpace(text)
	if text == "" || s.providers.Moderator == nil {
		return moderation.Verdict{}
	}
	start := time.Now()
	res, err := s.providers.Moderator.Moderate(ctx, text)
	metrics.RecordAICall("moderate", time.Since(start), err)
	if err != nil {
		s.log.WithError(err).Warn("moderation check failed; treating content as clean")
		return moderation.Verdict{}
	}
	return moderation.Verdict{Flagged: res.Flagged, Categories: res.Categories, Score: res.Score}
}

// Categorize picks a catalogue category for a flavor. Without a provider, or
// when the provider fails or answers outside the catalogue, it returns
// flavor.CategoryOther.
func (s *Service) Categorize(ctx context.Context, name, description string) (string, []string) {
	if s.providers.Categorizer == nil {
		return flavor.CategoryOther, nil
	}
	start := time.Now()
	res, err := s.providers.Categorizer.Categorize(ctx, name, description, flavor.Categories)
	metrics.RecordAICall("categorize", time.Since(start), err)
	if err != nil {
		s.log.WithError(err).WithField("flavor", name).Warn("categorization failed")
		return flavor.CategoryOther, nil
	}
	if !flavor.ValidCategory(res.Category) {
		return flavor.CategoryOther, res.Tags
	}
	return res.Category, res.Tags
}

// FindDuplicate reports the first of existing that names the same flavor as
// candidate: first by normalized name, then by embedding similarity when an
// embedder is configured.
func (s *Service) FindDuplicate(ctx context.Context, candidate string, existing []flavor.Flavor) (flavor.Flavor, bool) {
	norm := flavor.NormalizeName(candidate)
	if norm == "" || len(existing) == 0 {
		return flavor.Flavor{}, false
	}
	for _, f := range existing {
		if flavor.NormalizeName(f.Name) == norm {
			return f, true
		}
	}
	if s.providers.Embedder == nil {
		return flavor.Flavor{}, false
	}

	texts := make([]string, 0, len(existing)+1)
	texts = append(texts, candidate)
	for _, f := range existing {
		texts = append(texts, f.Name)
	}
	start := time.Now()
	vectors, err := s.providers.Embedder.Embed(ctx, texts)
	metrics.RecordAICall("embed", time.Since(start), err)
	if err != nil {
		s.log.WithError(err).Warn("embedding failed; skipping semantic duplicate check")
		return flavor.Flavor{}, false
	}
	if len(vectors) != len(texts) {
		s.log.WithField("got", len(vectors)).WithField("want", len(texts)).Warn("embedding count mismatch")
		return flavor.Flavor{}, false
	}

	best, bestScore := -1, 0.0
	for i := range existing {
		score := Cosine(vectors[0], vectors[i+1])
		if score >= DuplicateThreshold && score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return flavor.Flavor{}, false
	}
	return existing[best], true
}

// Cosine returns the cosine similarity of a and b, or 0 when either is empty
// or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Open queues flagged content for review.
func (s *Service) Open(ctx context.Context, contentType moderation.ContentType, contentID, userID, text string, verdict moderation.Verdict) (moderation.Item, error) {
	item := moderation.Item{
		ContentType: contentType,
		ContentID:   contentID,
		UserID:      userID,
		Excerpt:     excerpt(text),
		Reason:      strings.Join(verdict.Categories, ", "),
		Categories:  verdict.Categories,
		Score:       verdict.Score,
		Status:      moderation.StatusOpen,
		CreatedAt:   s.now(),
	}
	created, err := s.store.CreateModerationItem(ctx, item)
	if err != nil {
		return moderation.Item{}, err
	}
	s.log.WithFields(map[string]interface{}{
		"item_id":      created.ID,
		"content_type": contentType,
		"content_id":   contentID,
	}).Info("content queued for moderation")
	return created, nil
}

// List returns queue items, optionally filtered by status.
func (s *Service) List(ctx context.Context, status moderation.Status) ([]moderation.Item, error) {
	if status != "" && status != moderation.StatusOpen && status != moderation.StatusApproved && status != moderation.StatusRemoved {
		return nil, svcerrors.Validation("unknown moderation status %q", status)
	}
	return s.store.ListModerationItems(ctx, status)
}

// Resolve closes an open item. Approval publishes the content; removal
// rejects or deletes it.
func (s *Service) Resolve(ctx context.Context, adminID, id string, approve bool) (moderation.Item, error) {
	item, err := s.store.GetModerationItem(ctx, id)
	if err != nil {
		return moderation.Item{}, err
	}
	if item.Status != moderation.StatusOpen {
		return moderation.Item{}, svcerrors.Conflict("moderation item %s is already %s", id, item.Status)
	}

	if err := s.apply(ctx, item, approve); err != nil {
		return moderation.Item{}, err
	}

	now := s.now()
	item.ReviewerID = adminID
	item.ResolvedAt = &now
	item.Status = moderation.StatusRemoved
	if approve {
		item.Status = moderation.StatusApproved
	}
	item, err = s.store.UpdateModerationItem(ctx, item)
	if err != nil {
		return moderation.Item{}, err
	}

	if s.notifier != nil && item.UserID != "" {
		title, message := "Your content was approved", fmt.Sprintf("Your %s is now visible.", item.ContentType)
		if !approve {
			title, message = "Your content was removed", fmt.Sprintf("Your %s did not meet our community guidelines.", item.ContentType)
		}
		s.notifier.Notify(ctx, item.UserID, notification.TypeModeration, title, message, "")
	}
	s.log.WithField("item_id", id).WithField("status", item.Status).Info("moderation item resolved")
	return item, nil
}

func (s *Service) apply(ctx context.Context, item moderation.Item, approve bool) error {
	switch item.ContentType {
	case moderation.ContentFlavor:
		f, err := s.flavors.GetFlavor(ctx, item.ContentID)
		if err != nil {
			return ignoreMissing(err)
		}
		f.Moderation = flavor.ModerationRejected
		if approve {
			f.Moderation = flavor.ModerationApproved
		}
		_, err = s.flavors.UpdateFlavor(ctx, f)
		return err
	case moderation.ContentLog:
		if approve {
			return nil
		}
		return ignoreMissing(s.logs.DeleteLog(ctx, item.ContentID))
	case moderation.ContentShop:
		if approve {
			return nil
		}
		sh, err := s.shops.GetShop(ctx, item.ContentID)
		if err != nil {
			return ignoreMissing(err)
		}
		sh.Status = shop.StatusRejected
		_, err = s.shops.UpdateShop(ctx, sh)
		return err
	}
	return svcerrors.Validation("unknown content type %q", item.ContentType)
}

// ignoreMissing lets a review close when its content has since been deleted.
func ignoreMissing(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

func excerpt(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= maxExcerpt {
		return text
	}
	return string(runes[:maxExcerpt]) + "…"
}
