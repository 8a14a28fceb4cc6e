// Package importer seeds shop listings from the places provider.
package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conedex/conedex/internal/app/domain/flavor"
	"github.com/conedex/conedex/internal/app/domain/shop"
	"github.com/conedex/conedex/internal/app/metrics"
	"github.com/conedex/conedex/internal/app/storage"
	svcerrors "github.com/conedex/conedex/internal/errors"
	"github.com/conedex/conedex/internal/places"
	"github.com/conedex/conedex/pkg/logger"
)

const (
	defaultLimit   = 20
	maxLimit       = 60
	detailWorkers  = 4
	photoMaxWidth  = 1200
	maxDescription = 500
)

// PlacesClient is the places provider.
type PlacesClient interface {
	SearchText(ctx context.Context, q places.SearchQuery) ([]places.Place, error)
	Details(ctx context.Context, placeID string) (places.Place, error)
	PhotoURL(ctx context.Context, photoRef string, maxWidth int) (string, error)
}

// Describer finds a description for a shop website.
type Describer interface {
	Description(ctx context.Context, pageURL string) (string, error)
}

// Query describes an import run.
type Query struct {
	Text         string  `json:"text"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	RadiusMeters float64 `json:"radius_meters"`
	Limit        int     `json:"limit"`
}

// Result summarises an import run.
type Result struct {
	Imported int         `json:"imported"`
	Skipped  int         `json:"skipped"`
	Failed   int         `json:"failed"`
	Errors   []string    `json:"errors,omitempty"`
	Shops    []shop.Shop `json:"shops,omitempty"`
}

// Service imports shops.
type Service struct {
	shops     storage.ShopStore
	places    PlacesClient
	describer Describer
	log       *logger.Logger
}

// New constructs an importer. places may be nil when no API key is set;
// describer may be nil to skip website enrichment.
func New(shops storage.ShopStore, placesClient PlacesClient, describer Describer, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("importer")
	}
	return &Service{shops: shops, places: placesClient, describer: describer, log: log}
}

type candidate struct {
	place       places.Place
	description string
	err         error
}

// ImportFromPlaces searches the provider and inserts every new result as an
// active, unverified shop. Per-place failures are recorded in the result.
func (s *Service) ImportFromPlaces(ctx context.Context, q Query) (Result, error) {
	if s.places == nil {
		return Result{}, svcerrors.Unavailable("places provider is not configured", nil)
	}
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return Result{}, svcerrors.Validation("text is required")
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}

	start := time.Now()
	found, err := s.places.SearchText(ctx, places.SearchQuery{
		Text:         q.Text,
		Lat:          q.Lat,
		Lng:          q.Lng,
		RadiusMeters: q.RadiusMeters,
		Limit:        q.Limit,
	})
	metrics.RecordPlacesCall("search", err)
	if err != nil {
		return Result{}, svcerrors.Unavailable("places search failed", err)
	}

	var result Result
	fresh := make([]places.Place, 0, len(found))
	for _, p := range found {
		if p.PlaceID == "" {
			continue
		}
		if _, err := s.shops.GetShopByPlaceID(ctx, p.PlaceID); err == nil {
			result.Skipped++
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			return result, err
		}
		fresh = append(fresh, p)
	}

	candidates := s.enrich(ctx, fresh)

	seen := make(map[string]bool)
	for _, c := range candidates {
		if c.err != nil {
			result.fail(c.place, c.err)
			continue
		}
		key := dedupeKey(c.place.Name, c.place.Address)
		if seen[key] {
			result.Skipped++
			continue
		}
		seen[key] = true
		dup, err := s.duplicate(ctx, c.place)
		if err != nil {
			result.fail(c.place, err)
			continue
		}
		if dup {
			result.Skipped++
			continue
		}

		sh := shop.Shop{
			Name:        c.place.Name,
			Description: c.description,
			Address:     c.place.Address,
			City:        c.place.City,
			Region:      c.place.Region,
			PostalCode:  c.place.PostalCode,
			Country:     c.place.Country,
			Latitude:    c.place.Lat,
			Longitude:   c.place.Lng,
			Phone:       c.place.Phone,
			Website:     c.place.Website,
			PlaceID:     c.place.PlaceID,
			Status:      shop.StatusActive,
		}
		if len(c.place.PhotoRefs) > 0 {
			url, err := s.places.PhotoURL(ctx, c.place.PhotoRefs[0], photoMaxWidth)
			metrics.RecordPlacesCall("photo", err)
			if err != nil {
				s.log.WithError(err).WithField("place_id", c.place.PlaceID).Warn("shop photo unavailable, importing without it")
			} else {
				sh.PhotoURLs = []string{url}
			}
		}
		created, err := s.shops.CreateShop(ctx, sh)
		if errors.Is(err, storage.ErrConflict) {
			result.Skipped++
			continue
		}
		if err != nil {
			result.fail(c.place, err)
			continue
		}
		result.Imported++
		result.Shops = append(result.Shops, created)
	}

	s.log.WithFields(map[string]interface{}{
		"query":       q.Text,
		"found":       len(found),
		"imported":    result.Imported,
		"skipped":     result.Skipped,
		"failed":      result.Failed,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("places import finished")
	return result, nil
}

// enrich fetches details and website descriptions concurrently, keeping the
// search order.
func (s *Service) enrich(ctx context.Context, found []places.Place) []candidate {
	out := make([]candidate, len(found))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailWorkers)
	for i, p := range found {
		g.Go(func() error {
			detail, err := s.places.Details(gctx, p.PlaceID)
			metrics.RecordPlacesCall("details", err)
			c := candidate{place: p}
			if err != nil {
				c.err = fmt.Errorf("details: %w", err)
			} else {
				c.place = merge(p, detail)
				c.description = s.describe(gctx, c.place)
			}
			out[i] = c
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *Service) describe(ctx context.Context, p places.Place) string {
	if s.describer == nil || p.Website == "" {
		return ""
	}
	desc, err := s.describer.Description(ctx, p.Website)
	if err != nil {
		s.log.WithError(err).WithField("place_id", p.PlaceID).Debug("website description unavailable")
		return ""
	}
	if r := []rune(desc); len(r) > maxDescription {
		desc = string(r[:maxDescription])
	}
	return desc
}

// duplicate reports whether a shop with the same normalized name and address
// already exists.
func (s *Service) duplicate(ctx context.Context, p places.Place) (bool, error) {
	existing, err := s.shops.ListShops(ctx, shop.Filter{Query: p.Name})
	if err != nil {
		return false, err
	}
	key := dedupeKey(p.Name, p.Address)
	for _, sh := range existing {
		if dedupeKey(sh.Name, sh.Address) == key {
			return true, nil
		}
	}
	return false, nil
}

func dedupeKey(name, address string) string {
	return flavor.NormalizeName(name) + "|" + flavor.NormalizeName(address)
}

// merge prefers detail fields and falls back to the search result.
func merge(search, detail places.Place) places.Place {
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	out := detail
	out.PlaceID = pick(detail.PlaceID, search.PlaceID)
	out.Name = pick(detail.Name, search.Name)
	out.Address = pick(detail.Address, search.Address)
	out.Website = pick(detail.Website, search.Website)
	out.Phone = pick(detail.Phone, search.Phone)
	if out.Lat == 0 && out.Lng == 0 {
		out.Lat, out.Lng = search.Lat, search.Lng
	}
	if len(out.PhotoRefs) == 0 {
		out.PhotoRefs = search.PhotoRefs
	}
	return out
}

func (r *Result) fail(p places.Place, err error) {
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf("%s (%s): %v", p.Name, p.PlaceID, err))
}
