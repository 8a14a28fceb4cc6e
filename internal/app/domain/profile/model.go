package profile

import "time"

// Role is a profile's application role.
type Role string

const (
	RoleExplorer  Role = "explorer"
	RoleShopOwner Role = "shop_owner"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleExplorer, RoleShopOwner, RoleAdmin:
		return true
	}
	return false
}

// Status is a profile's account status.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Profile is the application-side record of an auth user. ID equals the auth
// user ID.
type Profile struct {
	ID          string    `json:"id" db:"id"`
	Email       string    `json:"email" db:"email"`
	Username    string    `json:"username,omitempty" db:"username"`
	DisplayName string    `json:"display_name,omitempty" db:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty" db:"avatar_url"`
	Bio         string    `json:"bio,omitempty" db:"bio"`
	Role        Role      `json:"role" db:"role"`
	Status      Status    `json:"status" db:"status"`
	Points      int       `json:"points" db:"points"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// IsAdmin reports whether the profile has the admin role.
func (p Profile) IsAdmin() bool { return p.Role == RoleAdmin }

// PublicProfile is the part of a profile shown to anonymous callers.
type PublicProfile struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Points      int    `json:"points"`
}

// Public drops contact details and account state.
func (p Profile) Public() PublicProfile {
	return PublicProfile{
		ID:          p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Points:      p.Points,
	}
}

// Filter narrows profile listings.
type Filter struct {
	Query  string
	Role   Role
	Status Status
	Limit  int
	Offset int
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID   string
	Role Role
}

// IsAdmin reports whether the actor has the admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
