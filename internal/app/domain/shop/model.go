package shop

import "time"

// Status is a shop listing's lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusRejected Status = "rejected"
	StatusClosed   Status = "closed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusRejected, StatusClosed:
		return true
	}
	return false
}

// Shop is an ice cream shop listing.
type Shop struct {
	ID          string     `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	Description string     `json:"description,omitempty" db:"description"`
	Address     string     `json:"address" db:"address"`
	City        string     `json:"city,omitempty" db:"city"`
	Region      string     `json:"region,omitempty" db:"region"`
	PostalCode  string     `json:"postal_code,omitempty" db:"postal_code"`
	Country     string     `json:"country,omitempty" db:"country"`
	Latitude    float64    `json:"latitude" db:"latitude"`
	Longitude   float64    `json:"longitude" db:"longitude"`
	Phone       string     `json:"phone,omitempty" db:"phone"`
	Website     string     `json:"website,omitempty" db:"website"`
	PlaceID     string     `json:"place_id,omitempty" db:"place_id"`
	PhotoURLs   []string   `json:"photo_urls,omitempty" db:"-"`
	OwnerID     string     `json:"owner_id,omitempty" db:"owner_id"`
	Status      Status     `json:"status" db:"status"`
	Verified    bool       `json:"verified" db:"verified"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty" db:"verified_at"`
	VerifiedBy  string     `json:"verified_by,omitempty" db:"verified_by"`
	CreatedBy   string     `json:"created_by,omitempty" db:"created_by"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`

	// DistanceKm is populated by proximity searches only.
	DistanceKm *float64 `json:"distance_km,omitempty" db:"-"`
}

// Bounds is a latitude/longitude bounding box.
type Bounds struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// Filter narrows shop listings.
type Filter struct {
	Query    string
	City     string
	Statuses []Status
	OwnerID  string
	PlaceID  string
	Verified *bool
	Bounds   *Bounds
	Limit    int
	Offset   int
}

// ClaimStatus is the review state of a claim.
type ClaimStatus string

const (
	ClaimPending  ClaimStatus = "pending"
	ClaimApproved ClaimStatus = "approved"
	ClaimRejected ClaimStatus = "rejected"
)

// Claim is a user's request to be recognised as a shop's owner.
type Claim struct {
	ID            string      `json:"id" db:"id"`
	ShopID        string      `json:"shop_id" db:"shop_id"`
	UserID        string      `json:"user_id" db:"user_id"`
	BusinessEmail string      `json:"business_email" db:"business_email"`
	BusinessPhone string      `json:"business_phone,omitempty" db:"business_phone"`
	ProofURL      string      `json:"proof_url,omitempty" db:"proof_url"`
	Message       string      `json:"message,omitempty" db:"message"`
	Status        ClaimStatus `json:"status" db:"status"`
	ReviewerID    string      `json:"reviewer_id,omitempty" db:"reviewer_id"`
	ReviewNotes   string      `json:"review_notes,omitempty" db:"review_notes"`
	ReviewedAt    *time.Time  `json:"reviewed_at,omitempty" db:"reviewed_at"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
}

// ClaimFilter narrows claim listings.
type ClaimFilter struct {
	ShopID string
	UserID string
	Status ClaimStatus
}

// Stats summarises activity at one shop.
type Stats struct {
	ShopID         string        `json:"shop_id"`
	TotalLogs      int           `json:"total_logs"`
	UniqueVisitors int           `json:"unique_visitors"`
	AverageRating  float64       `json:"average_rating"`
	Ratings        map[int]int   `json:"ratings"`
	TopFlavors     []FlavorCount `json:"top_flavors"`
}

// FlavorCount is a flavor with its log count.
type FlavorCount struct {
	FlavorID      string  `json:"flavor_id" db:"flavor_id"`
	Name          string  `json:"name" db:"name"`
	Logs          int     `json:"logs" db:"logs"`
	AverageRating float64 `json:"average_rating" db:"average_rating"`
}
