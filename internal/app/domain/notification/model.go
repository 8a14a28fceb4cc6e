package notification

import "time"

// Type classifies a notification.
type Type string

const (
	TypeShopVerified   Type = "shop_verified"
	TypeShopRejected   Type = "shop_rejected"
	TypeClaimApproved  Type = "claim_approved"
	TypeClaimRejected  Type = "claim_rejected"
	TypeQuestCompleted Type = "quest_completed"
	TypeBadgeAwarded   Type = "badge_awarded"
	TypeModeration     Type = "moderation"
	TypeSystem         Type = "system"
)

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	switch t {
	case TypeShopVerified, TypeShopRejected, TypeClaimApproved, TypeClaimRejected,
		TypeQuestCompleted, TypeBadgeAwarded, TypeModeration, TypeSystem:
		return true
	}
	return false
}

// Notification is an in-app message to one user.
type Notification struct {
	ID        string     `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	Type      Type       `json:"type" db:"type"`
	Title     string     `json:"title" db:"title"`
	Message   string     `json:"message" db:"message"`
	Link      string     `json:"link,omitempty" db:"link"`
	Read      bool       `json:"read" db:"read"`
	ReadAt    *time.Time `json:"read_at,omitempty" db:"read_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
