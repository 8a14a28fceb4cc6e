package moderation

import "time"

// Verdict is the outcome of a content check.
type Verdict struct {
	Flagged    bool     `json:"flagged"`
	Categories []string `json:"categories,omitempty"`
	Score      float64  `json:"score"`
}

// ContentType names what was moderated.
type ContentType string

const (
	ContentFlavor ContentType = "flavor"
	ContentLog    ContentType = "log"
	ContentShop   ContentType = "shop"
)

// Status is a review state.
type Status string

const (
	StatusOpen     Status = "open"
	StatusApproved Status = "approved"
	StatusRemoved  Status = "removed"
)

// Item is flagged content awaiting admin review.
type Item struct {
	ID          string      `json:"id" db:"id"`
	ContentType ContentType `json:"content_type" db:"content_type"`
	ContentID   string      `json:"content_id" db:"content_id"`
	UserID      string      `json:"user_id,omitempty" db:"user_id"`
	Excerpt     string      `json:"excerpt" db:"excerpt"`
	Reason      string      `json:"reason,omitempty" db:"reason"`
	Categories  []string    `json:"categories,omitempty" db:"-"`
	Score       float64     `json:"score" db:"score"`
	Status      Status      `json:"status" db:"status"`
	ReviewerID  string      `json:"reviewer_id,omitempty" db:"reviewer_id"`
	ResolvedAt  *time.Time  `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}
