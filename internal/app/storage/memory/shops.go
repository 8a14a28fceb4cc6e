package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/conedex/conedex/internal/app/domain/shop"
)

// ShopStore implementation -----------------------------------------------------

func (s *Store) CreateShop(_ context.Context, sh shop.Shop) (shop.Shop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sh.ID == "" {
		sh.ID = uuid.NewString()
	} else if _, exists := s.shops[sh.ID]; exists {
		return shop.Shop{}, conflict("shop %s already exists", sh.ID)
	}
	if err := s.checkPlaceIDLocked(sh.ID, sh.PlaceID); err != nil {
		return shop.Shop{}, err
	}
	stamp(&sh.CreatedAt, &sh.UpdatedAt, s.now())
	sh.PhotoURLs = cloneStrings(sh.PhotoURLs)
	s.shops[sh.ID] = sh
	return cloneShop(sh), nil
}

func (s *Store) UpdateShop(_ context.Context, sh shop.Shop) (shop.Shop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.shops[sh.ID]
	if !ok {
		return shop.Shop{}, notFound("shop", sh.ID)
	}
	if err := s.checkPlaceIDLocked(sh.ID, sh.PlaceID); err != nil {
		return shop.Shop{}, err
	}
	sh.CreatedAt = original.CreatedAt
	sh.UpdatedAt = s.now()
	sh.PhotoURLs = cloneStrings(sh.PhotoURLs)
	sh.DistanceKm = nil
	s.shops[sh.ID] = sh
	return cloneShop(sh), nil
}

func (s *Store) checkPlaceIDLocked(id, placeID string) error {
	if placeID == "" {
		return nil
	}
	for _, other := range s.shops {
		if other.ID != id && other.PlaceID == placeID {
			return conflict("place %s already listed", placeID)
		}
	}
	return nil
}

func (s *Store) GetShop(_ context.Context, id string) (shop.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sh, ok := s.shops[id]
	if !ok {
		return shop.Shop{}, notFound("shop", id)
	}
	return cloneShop(sh), nil
}

func (s *Store) GetShopByPlaceID(_ context.Context, placeID string) (shop.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sh := range s.shops {
		if placeID != "" && sh.PlaceID == placeID {
			return cloneShop(sh), nil
		}
	}
	return shop.Shop{}, notFound("shop", placeID)
}

func (s *Store) ListShops(_ context.Context, filter shop.Filter) ([]shop.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make(map[shop.Status]bool, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statuses[st] = true
	}

	result := make([]shop.Shop, 0, len(s.shops))
	for _, sh := range s.shops {
		if len(statuses) > 0 && !statuses[sh.Status] {
			continue
		}
		if filter.OwnerID != "" && sh.OwnerID != filter.OwnerID {
			continue
		}
		if filter.PlaceID != "" && sh.PlaceID != filter.PlaceID {
			continue
		}
		if filter.Verified != nil && sh.Verified != *filter.Verified {
			continue
		}
		if filter.City != "" && !containsFold(sh.City, filter.City) {
			continue
		}
		if q := filter.Query; q != "" && !containsFold(sh.Name, q) && !containsFold(sh.Address, q) && !containsFold(sh.City, q) {
			continue
		}
		if b := filter.Bounds; b != nil {
			if sh.Latitude < b.MinLat || sh.Latitude > b.MaxLat || sh.Longitude < b.MinLng || sh.Longitude > b.MaxLng {
				continue
			}
		}
		result = append(result, cloneShop(sh))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return page(result, filter.Limit, filter.Offset), nil
}

// ClaimStore implementation ----------------------------------------------------

func (s *Store) CreateClaim(_ context.Context, c shop.Claim) (shop.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == shop.ClaimPending {
		for _, other := range s.claims {
			if other.ShopID == c.ShopID && other.UserID == c.UserID && other.Status == shop.ClaimPending {
				return shop.Claim{}, conflict("pending claim already exists")
			}
		}
	}
	stamp(&c.CreatedAt, &c.UpdatedAt, s.now())
	s.claims[c.ID] = c
	return c, nil
}

func (s *Store) UpdateClaim(_ context.Context, c shop.Claim) (shop.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.claims[c.ID]
	if !ok {
		return shop.Claim{}, notFound("claim", c.ID)
	}
	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = s.now()
	s.claims[c.ID] = c
	return c, nil
}

func (s *Store) GetClaim(_ context.Context, id string) (shop.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.claims[id]
	if !ok {
		return shop.Claim{}, notFound("claim", id)
	}
	return c, nil
}

func (s *Store) ListClaims(_ context.Context, filter shop.ClaimFilter) ([]shop.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]shop.Claim, 0)
	for _, c := range s.claims {
		if filter.ShopID != "" && c.ShopID != filter.ShopID {
			continue
		}
		if filter.UserID != "" && c.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func cloneShop(sh shop.Shop) shop.Shop {
	sh.PhotoURLs = cloneStrings(sh.PhotoURLs)
	return sh
}
