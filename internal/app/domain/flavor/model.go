package flavor

import (
	"strings"
	"time"
	"unicode"
)

// Status is a flavor's availability.
type Status string

const (
	StatusAvailable Status = "available"
	StatusSeasonal  Status = "seasonal"
	StatusRetired   Status = "retired"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusSeasonal, StatusRetired:
		return true
	}
	return false
}

// ModerationState tracks whether a flavor is publicly visible.
type ModerationState string

const (
	ModerationApproved ModerationState = "approved"
	ModerationPending  ModerationState = "pending"
	ModerationRejected ModerationState = "rejected"
)

// Categories is the fixed flavor catalogue.
var Categories = []string{
	"chocolate", "vanilla", "fruit", "nut", "coffee", "caramel",
	"cookie", "mint", "sorbet", "vegan", "specialty", "other",
}

// CategoryOther is the fallback category.
const CategoryOther = "other"

// ValidCategory reports whether c is in the catalogue.
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Flavor is a flavor served at a shop.
type Flavor struct {
	ID          string          `json:"id" db:"id"`
	ShopID      string          `json:"shop_id" db:"shop_id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description,omitempty" db:"description"`
	Category    string          `json:"category" db:"category"`
	Tags        []string        `json:"tags,omitempty" db:"-"`
	Status      Status          `json:"status" db:"status"`
	Moderation  ModerationState `json:"moderation" db:"moderation"`
	CreatedBy   string          `json:"created_by,omitempty" db:"created_by"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Filter narrows flavor listings.
type Filter struct {
	ShopID         string
	Query          string
	Category       string
	IncludeRetired bool
	// IncludeUnmoderated also returns pending and rejected flavors.
	IncludeUnmoderated bool
	Limit              int
	Offset             int
}

// NormalizeName folds a flavor name for duplicate comparison: lower case,
// letters and digits only, single spaces.
func NormalizeName(name string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}

// Log is a user's record of trying a flavor.
type Log struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	FlavorID  string    `json:"flavor_id" db:"flavor_id"`
	ShopID    string    `json:"shop_id" db:"shop_id"`
	Rating    int       `json:"rating" db:"rating"`
	Notes     string    `json:"notes,omitempty" db:"notes"`
	PhotoURL  string    `json:"photo_url,omitempty" db:"photo_url"`
	VisitedAt time.Time `json:"visited_at" db:"visited_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// LogEntry is a log joined with the flavor's category, used for progress
// and badge evaluation.
type LogEntry struct {
	Log
	Category string `json:"category" db:"category"`
}

// Activity summarises a user's logs.
type Activity struct {
	TotalLogs     int            `json:"total_logs"`
	UniqueFlavors int            `json:"unique_flavors"`
	UniqueShops   int            `json:"unique_shops"`
	AverageRating float64        `json:"average_rating"`
	HighRatings   int            `json:"high_ratings"`
	Categories    map[string]int `json:"categories"`
}

// Summarize computes an Activity from log entries.
func Summarize(entries []LogEntry) Activity {
	act := Activity{Categories: map[string]int{}}
	flavors := map[string]bool{}
	shops := map[string]bool{}
	categoryFlavors := map[string]map[string]bool{}
	total := 0
	for _, e := range entries {
		act.TotalLogs++
		total += e.Rating
		if e.Rating >= 4 {
			act.HighRatings++
		}
		flavors[e.FlavorID] = true
		shops[e.ShopID] = true
		if e.Category != "" {
			if categoryFlavors[e.Category] == nil {
				categoryFlavors[e.Category] = map[string]bool{}
			}
			categoryFlavors[e.Category][e.FlavorID] = true
		}
	}
	act.UniqueFlavors = len(flavors)
	act.UniqueShops = len(shops)
	for c, set := range categoryFlavors {
		act.Categories[c] = len(set)
	}
	if act.TotalLogs > 0 {
		act.AverageRating = float64(total) / float64(act.TotalLogs)
	}
	return act
}
