package analytics

import "time"

// Totals are platform-wide counts.
type Totals struct {
	Users          int `json:"users"`
	Shops          int `json:"shops"`
	ActiveShops    int `json:"active_shops"`
	Flavors        int `json:"flavors"`
	Logs           int `json:"logs"`
	PendingClaims  int `json:"pending_claims"`
	OpenModeration int `json:"open_moderation"`
	Subscribers    int `json:"subscribers"`
}

// Growth is a windowed count with its change versus the previous window.
type Growth struct {
	Current  int     `json:"current"`
	Previous int     `json:"previous"`
	Trend    float64 `json:"trend"`
}

// Overview is the admin dashboard summary.
type Overview struct {
	Totals      Totals    `json:"totals"`
	NewUsers    Growth    `json:"new_users"`
	NewShops    Growth    `json:"new_shops"`
	NewLogs     Growth    `json:"new_logs"`
	WindowDays  int       `json:"window_days"`
	GeneratedAt time.Time `json:"generated_at"`
}

// RankedFlavor is a flavor ranked by activity.
type RankedFlavor struct {
	FlavorID      string  `json:"flavor_id" db:"flavor_id"`
	Name          string  `json:"name" db:"name"`
	ShopID        string  `json:"shop_id" db:"shop_id"`
	ShopName      string  `json:"shop_name" db:"shop_name"`
	Logs          int     `json:"logs" db:"logs"`
	AverageRating float64 `json:"average_rating" db:"average_rating"`
}

// RankedShop is a shop ranked by activity.
type RankedShop struct {
	ShopID        string  `json:"shop_id" db:"shop_id"`
	Name          string  `json:"name" db:"name"`
	City          string  `json:"city,omitempty" db:"city"`
	Logs          int     `json:"logs" db:"logs"`
	AverageRating float64 `json:"average_rating" db:"average_rating"`
}

// DailyCount is the number of logs on one UTC day.
type DailyCount struct {
	Day   string `json:"day" db:"day"`
	Count int    `json:"count" db:"count"`
}

// TrendPercent is the percent change from previous to current. A previous
// value of zero yields 100 when current is positive and 0 otherwise.
func TrendPercent(current, previous int) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return float64(current-previous) / float64(previous) * 100
}
