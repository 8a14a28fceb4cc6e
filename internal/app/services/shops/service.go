package shops

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conedex/conedex/internal/app/domain/notification"
	"github.com/conedex/conedex/internal/app/domain/profile"
	"github.com/conedex/conedex/internal/app/domain/shop"
	"github.com/conedex/conedex/internal/app/storage"
	svcerrors "github.com/conedex/conedex/internal/errors"
	"github.com/conedex/conedex/pkg/logger"
)

const (
	// MaxPhotoBytes caps uploaded shop photos.
	MaxPhotoBytes = 5 << 20

	defaultRadiusKm = 10
	maxRadiusKm     = 100
)

var photoTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ObjectStore holds uploaded files.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body []byte) (string, error)
}

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, userID string, typ notification.Type, title, message, link string)
}

// Input describes a shop submission.
type Input struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Address     string  `json:"address"`
	City        string  `json:"city"`
	Region      string  `json:"region"`
	PostalCode  string  `json:"postal_code"`
	Country     string  `json:"country"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Phone       string  `json:"phone"`
	Website     string  `json:"website"`
	PlaceID     string  `json:"place_id"`
}

// Patch holds optional shop changes.
type Patch struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Address     *string  `json:"address"`
	City        *string  `json:"city"`
	Region      *string  `json:"region"`
	PostalCode  *string  `json:"postal_code"`
	Country     *string  `json:"country"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Phone       *string  `json:"phone"`
	Website     *string  `json:"website"`
}

// Near restricts a listing to a radius around a point.
type Near struct {
	Lat      float64
	Lng      float64
	RadiusKm float64
}

// ListFilter narrows shop listings.
type ListFilter struct {
	Query    string
	City     string
	Status   shop.Status
	OwnerID  string
	Verified *bool
	Near     *Near
	Limit    int
	Offset   int
}

// Service manages shop listings.
type Service struct {
	store     storage.ShopStore
	analytics storage.AnalyticsStore
	objects   ObjectStore
	notifier  Notifier
	log       *logger.Logger
	now       func() time.Time
}

// New constructs a shop service. objects and notifier may be nil.
func New(store storage.ShopStore, analytics storage.AnalyticsStore, objects ObjectStore, notifier Notifier, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("shops")
	}
	return &Service{
		store:     store,
		analytics: analytics,
		objects:   objects,
		notifier:  notifier,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit adds a shop. Admin submissions go live immediately; everyone else's
// wait for review.
func (s *Service) Submit(ctx context.Context, actor profile.Actor, in Input) (shop.Shop, error) {
	sh := shop.Shop{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Address:     strings.TrimSpace(in.Address),
		City:        strings.TrimSpace(in.City),
		Region:      strings.TrimSpace(in.Region),
		PostalCode:  strings.TrimSpace(in.PostalCode),
		Country:     strings.TrimSpace(in.Country),
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Phone:       strings.TrimSpace(in.Phone),
		Website:     strings.TrimSpace(in.Website),
		PlaceID:     strings.TrimSpace(in.PlaceID),
		Status:      shop.StatusPending,
		CreatedBy:   actor.ID,
	}
	if actor.IsAdmin() {
		sh.Status = shop.StatusActive
	}
	if err := validate(sh); err != nil {
		return shop.Shop{}, err
	}
	if sh.PlaceID != "" {
		if existing, err := s.store.GetShopByPlaceID(ctx, sh.PlaceID); err == nil {
			return shop.Shop{}, svcerrors.Conflict("place %s is already listed", sh.PlaceID).WithDetails("existing_id", existing.ID)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return shop.Shop{}, err
		}
	}

	created, err := s.store.CreateShop(ctx, sh)
	if errors.Is(err, storage.ErrConflict) {
		return shop.Shop{}, svcerrors.Conflict("place %s is already listed", sh.PlaceID)
	}
	if err != nil {
		return shop.Shop{}, err
	}
	s.log.WithFields(map[string]interface{}{
		"shop_id": created.ID,
		"status":  created.Status,
		"user_id": actor.ID,
	}).Info("shop submitted")
	return created, nil
}

// Get returns a shop. Listings that are not active are visible only to
// admins, the owner and the submitter.
func (s *Service) Get(ctx context.Context, actor profile.Actor, id string) (shop.Shop, error) {
	sh, err := s.store.GetShop(ctx, id)
	if err != nil {
		return shop.Shop{}, err
	}
	if sh.Status != shop.StatusActive && !canSee(actor, sh) {
		return shop.Shop{}, svcerrors.NotFound("shop", id)
	}
	return sh, nil
}

func canSee(actor profile.Actor, sh shop.Shop) bool {
	if actor.IsAdmin() {
		return true
	}
	return actor.ID != "" && (actor.ID == sh.OwnerID || actor.ID == sh.CreatedBy)
}

// List returns shops matching filter. Non-admins only see active shops.
// With Near set, results are ordered by distance.
func (s *Service) List(ctx context.Context, actor profile.Actor, f ListFilter) ([]shop.Shop, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 200 {
		f.Limit = 200
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	filter := shop.Filter{
		Query:    strings.TrimSpace(f.Query),
		City:     strings.TrimSpace(f.City),
		OwnerID:  f.OwnerID,
		Verified: f.Verified,
		Limit:    f.Limit,
		Offset:   f.Offset,
	}
	switch {
	case !actor.IsAdmin():
		filter.Statuses = []shop.Status{shop.StatusActive}
	case f.Status != "":
		if !f.Status.Valid() {
			return nil, svcerrors.Validation("unknown status %q", f.Status)
		}
		filter.Statuses = []shop.Status{f.Status}
	}

	if f.Near == nil {
		return s.store.ListShops(ctx, filter)
	}

	near := *f.Near
	if !validCoordinates(near.Lat, near.Lng) {
		return nil, svcerrors.Validation("near coordinates out of range")
	}
	if near.RadiusKm <= 0 {
		near.RadiusKm = defaultRadiusKm
	}
	if near.RadiusKm > maxRadiusKm {
		return nil, svcerrors.Validation("radius must be at most %d km", maxRadiusKm)
	}
	box := BoundingBox(near.Lat, near.Lng, near.RadiusKm)
	filter.Bounds = &box
	filter.Limit, filter.Offset = 0, 0

	candidates, err := s.store.ListShops(ctx, filter)
	if err != nil {
		return nil, err
	}
	result := make([]shop.Shop, 0, len(candidates))
	for _, sh := range candidates {
		d := DistanceKm(near.Lat, near.Lng, sh.Latitude, sh.Longitude)
		if d > near.RadiusKm {
			continue
		}
		sh.DistanceKm = &d
		result = append(result, sh)
	}
	sort.SliceStable(result, func(i, j int) bool { return *result[i].DistanceKm < *result[j].DistanceKm })

	if f.Offset >= len(result) {
		return []shop.Shop{}, nil
	}
	result = result[f.Offset:]
	if len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

// Update edits a shop's details. Only its owner or an admin may do so.
func (s *Service) Update(ctx context.Context, actor profile.Actor, id string, patch Patch) (shop.Shop, error) {
	sh, err := s.manageable(ctx, actor, id)
	if err != nil {
		return shop.Shop{}, err
	}
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	setString(&sh.Name, patch.Name)
	setString(&sh.Description, patch.Description)
	setString(&sh.Address, patch.Address)
	setString(&sh.City, patch.City)
	setString(&sh.Region, patch.Region)
	setString(&sh.PostalCode, patch.PostalCode)
	setString(&sh.Country, patch.Country)
	setString(&sh.Phone, patch.Phone)
	setString(&sh.Website, patch.Website)
	if patch.Latitude != nil {
		sh.Latitude = *patch.Latitude
	}
	if patch.Longitude != nil {
		sh.Longitude = *patch.Longitude
	}
	if err := validate(sh); err != nil {
		return shop.Shop{}, err
	}
	updated, err := s.store.UpdateShop(ctx, sh)
	if err != nil {
		return shop.Shop{}, err
	}
	s.log.WithField("shop_id", id).WithField("user_id", actor.ID).Info("shop updated")
	return updated, nil
}

// Verify marks a shop active and verified.
func (s *Service) Verify(ctx context.Context, actor profile.Actor, id string) (shop.Shop, error) {
	sh, err := s.store.GetShop(ctx, id)
	if err != nil {
		return shop.Shop{}, err
	}
	if sh.Status == shop.StatusClosed {
		return shop.Shop{}, svcerrors.Conflict("shop %s is closed", id)
	}
	now := s.now()
	sh.Status = shop.StatusActive
	sh.Verified = true
	sh.VerifiedAt = &now
	sh.VerifiedBy = actor.ID
	sh, err = s.store.UpdateShop(ctx, sh)
	if err != nil {
		return shop.Shop{}, err
	}
	s.notify(ctx, sh.CreatedBy, notification.TypeShopVerified,
		"Shop verified", fmt.Sprintf("%s is now live on ConeDex.", sh.Name), "/shops/"+sh.ID)
	s.log.WithField("shop_id", id).WithField("admin_id", actor.ID).Info("shop verified")
	return sh, nil
}

// Reject declines a shop listing.
func (s *Service) Reject(ctx context.Context, actor profile.Actor, id, reason string) (shop.Shop, error) {
	sh, err := s.store.GetShop(ctx, id)
	if err != nil {
		return shop.Shop{}, err
	}
	if sh.Status == shop.StatusRejected {
		return sh, nil
	}
	sh.Status = shop.StatusRejected
	sh.Verified = false
	sh, err = s.store.UpdateShop(ctx, sh)
	if err != nil {
		return shop.Shop{}, err
	}
	message := fmt.Sprintf("%s was not approved.", sh.Name)
	if reason = strings.TrimSpace(reason); reason != "" {
		message += " Reason: " + reason
	}
	s.notify(ctx, sh.CreatedBy, notification.TypeShopRejected, "Shop not approved", message, "")
	s.log.WithField("shop_id", id).WithField("admin_id", actor.ID).Info("shop rejected")
	return sh, nil
}

// Close soft-deletes a shop.
func (s *Service) Close(ctx context.Context, actor profile.Actor, id string) (shop.Shop, error) {
	return s.transition(ctx, actor, id, shop.StatusClosed)
}

// Reopen makes a closed shop active again.
func (s *Service) Reopen(ctx context.Context, actor profile.Actor, id string) (shop.Shop, error) {
	sh, err := s.store.GetShop(ctx, id)
	if err != nil {
		return shop.Shop{}, err
	}
	if sh.Status != shop.StatusClosed {
		return shop.Shop{}, svcerrors.Conflict("shop %s is %s, not closed", id, sh.Status)
	}
	return s.transition(ctx, actor, id, shop.StatusActive)
}

func (s *Service) transition(ctx context.Context, actor profile.Actor, id string, to shop.Status) (shop.Shop, error) {
	sh, err := s.store.GetShop(ctx, id)
	if err != nil {
		return shop.Shop{}, err
	}
	if sh.Status == to {
		return sh, nil
	}
	from := sh.Status
	sh.Status = to
	sh, err = s.store.UpdateShop(ctx, sh)
	if err != nil {
		return shop.Shop{}, err
	}
	s.log.WithFields(map[string]interface{}{
		"shop_id":  id,
		"admin_id": actor.ID,
		"from":     from,
		"to":       to,
	}).Info("shop status changed")
	return sh, nil
}

// AddPhoto uploads an image and appends its public URL to the shop.
func (s *Service) AddPhoto(ctx context.Context, actor profile.Actor, id, filename, contentType string, body []byte) (shop.Shop, error) {
	sh, err := s.manageable(ctx, actor, id)
	if err != nil {
		return shop.Shop{}, err
	}
	if s.objects == nil {
		return shop.Shop{}, svcerrors.Unavailable("photo storage is not configured", nil)
	}
	if len(body) == 0 {
		return shop.Shop{}, svcerrors.Validation("photo is empty")
	}
	if len(body) > MaxPhotoBytes {
		return shop.Shop{}, svcerrors.Validation("photo exceeds %d bytes", MaxPhotoBytes)
	}
	contentType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(body)
	}
	ext, ok := photoTypes[contentType]
	if !ok {
		return shop.Shop{}, svcerrors.Validation("unsupported photo type %q", contentType)
	}
	if fileExt := strings.ToLower(path.Ext(filename)); fileExt == ".jpeg" || fileExt == ext {
		ext = fileExt
	}

	key := fmt.Sprintf("shops/%s/%s%s", sh.ID, uuid.NewString(), ext)
	url, err := s.objects.Upload(ctx, key, contentType, body)
	if err != nil {
		return shop.Shop{}, svcerrors.Unavailable("photo upload failed", err)
	}
	sh.PhotoURLs = append(sh.PhotoURLs, url)
	sh, err = s.store.UpdateShop(ctx, sh)
	if err != nil {
		return shop.Shop{}, err
	}
	s.log.WithField("shop_id", id).WithField("key", key).Info("shop photo added")
	return sh, nil
}

// Stats summarises activity at a shop for its owner or an admin.
func (s *Service) Stats(ctx context.Context, actor profile.Actor, id string) (shop.Stats, error) {
	if _, err := s.manageable(ctx, actor, id); err != nil {
		return shop.Stats{}, err
	}
	return s.analytics.ShopStats(ctx, id)
}

func (s *Service) manageable(ctx context.Context, actor profile.Actor, id string) (shop.Shop, error) {
	sh, err := s.store.GetShop(ctx, id)
	if err != nil {
		return shop.Shop{}, err
	}
	if actor.IsAdmin() || (sh.OwnerID != "" && sh.OwnerID == actor.ID) {
		return sh, nil
	}
	return shop.Shop{}, svcerrors.Forbidden("only the shop owner or an admin can manage this shop")
}

func (s *Service) notify(ctx context.Context, userID string, typ notification.Type, title, message, link string) {
	if s.notifier == nil || userID == "" {
		return
	}
	s.notifier.Notify(ctx, userID, typ, title, message, link)
}

func validate(sh shop.Shop) error {
	if sh.Name == "" {
		return svcerrors.Validation("name is required")
	}
	if len(sh.Name) > 120 {
		return svcerrors.Validation("name must be at most 120 characters")
	}
	if sh.Address == "" {
		return svcerrors.Validation("address is required")
	}
	if !validCoordinates(sh.Latitude, sh.Longitude) {
		return svcerrors.Validation("latitude must be within ±90 and longitude within ±180")
	}
	if sh.Website != "" && !strings.HasPrefix(sh.Website, "http://") && !strings.HasPrefix(sh.Website, "https://") {
		return svcerrors.Validation("website must be an http(s) URL")
	}
	return nil
}
