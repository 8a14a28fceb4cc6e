package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/conedex/conedex/internal/app/domain/shop"
)

const shopColumns = `id, name, description, address, city, region, postal_code, country, latitude, longitude,
	phone, website, place_id, photo_urls, owner_id, status, verified, verified_at, verified_by, created_by,
	created_at, updated_at`

type shopRow struct {
	shop.Shop
	Photos pq.StringArray `db:"photo_urls"`
}

func (r shopRow) toShop() shop.Shop {
	sh := r.Shop
	if len(r.Photos) > 0 {
		sh.PhotoURLs = []string(r.Photos)
	}
	return sh
}

func stringArray(in []string) pq.StringArray {
	if in == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(in)
}

// --- ShopStore ---------------------------------------------------------------

func (s *Store) CreateShop(ctx context.Context, sh shop.Shop) (shop.Shop, error) {
	if sh.ID == "" {
		sh.ID = uuid.NewString()
	}
	stamp(&sh.CreatedAt, &sh.UpdatedAt, s.now())
	sh.DistanceKm = nil

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO shops (`+shopColumns+`)
		VALUES (:id, :name, :description, :address, :city, :region, :postal_code, :country, :latitude, :longitude,
			:phone, :website, :place_id, :photo_urls, :owner_id, :status, :verified, :verified_at, :verified_by,
			:created_by, :created_at, :updated_at)
	`, shopRow{Shop: sh, Photos: stringArray(sh.PhotoURLs)})
	if err != nil {
		return shop.Shop{}, mapErr(err, "shop", sh.ID)
	}
	return sh, nil
}

func (s *Store) UpdateShop(ctx context.Context, sh shop.Shop) (shop.Shop, error) {
	sh.UpdatedAt = s.now()
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE shops
		SET name = :name, description = :description, address = :address, city = :city, region = :region,
			postal_code = :postal_code, country = :country, latitude = :latitude, longitude = :longitude,
			phone = :phone, website = :website, place_id = :place_id, photo_urls = :photo_urls,
			owner_id = :owner_id, status = :status, verified = :verified, verified_at = :verified_at,
			verified_by = :verified_by, updated_at = :updated_at
		WHERE id = :id
	`, shopRow{Shop: sh, Photos: stringArray(sh.PhotoURLs)})
	if err != nil {
		return shop.Shop{}, mapErr(err, "shop", sh.ID)
	}
	if err := mustAffect(res, "shop", sh.ID); err != nil {
		return shop.Shop{}, err
	}
	return s.GetShop(ctx, sh.ID)
}

func (s *Store) GetShop(ctx context.Context, id string) (shop.Shop, error) {
	var row shopRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+shopColumns+` FROM shops WHERE id = $1`, id); err != nil {
		return shop.Shop{}, mapErr(err, "shop", id)
	}
	return row.toShop(), nil
}

func (s *Store) GetShopByPlaceID(ctx context.Context, placeID string) (shop.Shop, error) {
	var row shopRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+shopColumns+` FROM shops WHERE place_id = $1`, placeID); err != nil {
		return shop.Shop{}, mapErr(err, "shop", placeID)
	}
	return row.toShop(), nil
}

func (s *Store) ListShops(ctx context.Context, filter shop.Filter) ([]shop.Shop, error) {
	var w where
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		w.add("status = ANY(?)", pq.Array(statuses))
	}
	if filter.OwnerID != "" {
		w.add("owner_id = ?", filter.OwnerID)
	}
	if filter.PlaceID != "" {
		w.add("place_id = ?", filter.PlaceID)
	}
	if filter.Verified != nil {
		w.add("verified = ?", *filter.Verified)
	}
	if filter.City != "" {
		w.add("city ILIKE ?", likePattern(filter.City))
	}
	if filter.Query != "" {
		w.add("(name ILIKE ? OR address ILIKE ? OR city ILIKE ?)", likePattern(filter.Query))
	}
	if b := filter.Bounds; b != nil {
		w.add("latitude >= ?", b.MinLat)
		w.add("latitude <= ?", b.MaxLat)
		w.add("longitude >= ?", b.MinLng)
		w.add("longitude <= ?", b.MaxLng)
	}
	query := `SELECT ` + shopColumns + ` FROM shops` + w.String() + ` ORDER BY created_at DESC` + w.page(filter.Limit, filter.Offset)

	rows := []shopRow{}
	if err := s.db.SelectContext(ctx, &rows, query, w.args...); err != nil {
		return nil, fmt.Errorf("list shops: %w", err)
	}
	result := make([]shop.Shop, len(rows))
	for i, r := range rows {
		result[i] = r.toShop()
	}
	return result, nil
}

// --- ClaimStore --------------------------------------------------------------

const claimColumns = `id, shop_id, user_id, business_email, business_phone, proof_url, message, status,
	reviewer_id, review_notes, reviewed_at, created_at, updated_at`

func (s *Store) CreateClaim(ctx context.Context, c shop.Claim) (shop.Claim, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	stamp(&c.CreatedAt, &c.UpdatedAt, s.now())

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO shop_claims (`+claimColumns+`)
		VALUES (:id, :shop_id, :user_id, :business_email, :business_phone, :proof_url, :message, :status,
			:reviewer_id, :review_notes, :reviewed_at, :created_at, :updated_at)
	`, c)
	if err != nil {
		return shop.Claim{}, mapErr(err, "claim", c.ID)
	}
	return c, nil
}

func (s *Store) UpdateClaim(ctx context.Context, c shop.Claim) (shop.Claim, error) {
	c.UpdatedAt = s.now()
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE shop_claims
		SET business_email = :business_email, business_phone = :business_phone, proof_url = :proof_url,
			message = :message, status = :status, reviewer_id = :reviewer_id, review_notes = :review_notes,
			reviewed_at = :reviewed_at, updated_at = :updated_at
		WHERE id = :id
	`, c)
	if err != nil {
		return shop.Claim{}, mapErr(err, "claim", c.ID)
	}
	if err := mustAffect(res, "claim", c.ID); err != nil {
		return shop.Claim{}, err
	}
	return s.GetClaim(ctx, c.ID)
}

func (s *Store) GetClaim(ctx context.Context, id string) (shop.Claim, error) {
	var c shop.Claim
	if err := s.db.GetContext(ctx, &c, `SELECT `+claimColumns+` FROM shop_claims WHERE id = $1`, id); err != nil {
		return shop.Claim{}, mapErr(err, "claim", id)
	}
	return c, nil
}

func (s *Store) ListClaims(ctx context.Context, filter shop.ClaimFilter) ([]shop.Claim, error) {
	var w where
	if filter.ShopID != "" {
		w.add("shop_id = ?", filter.ShopID)
	}
	if filter.UserID != "" {
		w.add("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	result := []shop.Claim{}
	query := `SELECT ` + claimColumns + ` FROM shop_claims` + w.String() + ` ORDER BY created_at DESC`
	if err := s.db.SelectContext(ctx, &result, query, w.args...); err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	return result, nil
}
