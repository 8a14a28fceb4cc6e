package badge

import "time"

// CriteriaKind names what earns a badge automatically.
type CriteriaKind string

const (
	CriteriaManual          CriteriaKind = "manual"
	CriteriaFlavorsLogged   CriteriaKind = "flavors_logged"
	CriteriaUniqueFlavors   CriteriaKind = "unique_flavors"
	CriteriaShopsVisited    CriteriaKind = "shops_visited"
	CriteriaCategoryTried   CriteriaKind = "category_tried"
	CriteriaQuestsCompleted CriteriaKind = "quests_completed"
)

// Valid reports whether k is a known kind.
func (k CriteriaKind) Valid() bool {
	switch k {
	case CriteriaManual, CriteriaFlavorsLogged, CriteriaUniqueFlavors, CriteriaShopsVisited, CriteriaCategoryTried, CriteriaQuestsCompleted:
		return true
	}
	return false
}

// Criteria describes when a badge is earned.
type Criteria struct {
	Kind      CriteriaKind `json:"kind"`
	Threshold int          `json:"threshold,omitempty"`
	Category  string       `json:"category,omitempty"`
}

// Badge is an achievement users can earn.
type Badge struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	ImageURL    string    `json:"image_url,omitempty" db:"image_url"`
	Criteria    Criteria  `json:"criteria" db:"-"`
	Points      int       `json:"points" db:"points"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Award records a badge earned by a user.
type Award struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	BadgeID   string    `json:"badge_id" db:"badge_id"`
	Reason    string    `json:"reason,omitempty" db:"reason"`
	AwardedAt time.Time `json:"awarded_at" db:"awarded_at"`
}

// AwardView pairs an award with its badge.
type AwardView struct {
	Award
	Badge Badge `json:"badge"`
}
