package quest

import "time"

// ObjectiveKind names what an objective counts.
type ObjectiveKind string

const (
	ObjectiveLogFlavors    ObjectiveKind = "log_flavors"
	ObjectiveUniqueFlavors ObjectiveKind = "unique_flavors"
	ObjectiveVisitShops    ObjectiveKind = "visit_shops"
	ObjectiveTryCategory   ObjectiveKind = "try_category"
	ObjectiveRateHigh      ObjectiveKind = "rate_high"
)

// Valid reports whether k is a known kind.
func (k ObjectiveKind) Valid() bool {
	switch k {
	case ObjectiveLogFlavors, ObjectiveUniqueFlavors, ObjectiveVisitShops, ObjectiveTryCategory, ObjectiveRateHigh:
		return true
	}
	return false
}

// Objective is one goal within a quest.
type Objective struct {
	Kind     ObjectiveKind `json:"kind"`
	Target   int           `json:"target"`
	Category string        `json:"category,omitempty"`
}

// Quest is a time-boxed set of objectives.
type Quest struct {
	ID          string      `json:"id" db:"id"`
	Title       string      `json:"title" db:"title"`
	Description string      `json:"description,omitempty" db:"description"`
	Objectives  []Objective `json:"objectives" db:"-"`
	Points      int         `json:"points" db:"points"`
	BadgeID     string      `json:"badge_id,omitempty" db:"badge_id"`
	StartsAt    time.Time   `json:"starts_at" db:"starts_at"`
	EndsAt      *time.Time  `json:"ends_at,omitempty" db:"ends_at"`
	Active      bool        `json:"active" db:"active"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// AvailableAt reports whether users may join at now.
func (q Quest) AvailableAt(now time.Time) bool {
	if !q.Active || now.Before(q.StartsAt) {
		return false
	}
	return q.EndsAt == nil || now.Before(*q.EndsAt)
}

// EndedAt reports whether the quest window has closed at now.
func (q Quest) EndedAt(now time.Time) bool {
	return q.EndsAt != nil && !now.Before(*q.EndsAt)
}

// ParticipationStatus is the state of a user's participation.
type ParticipationStatus string

const (
	ParticipationActive    ParticipationStatus = "active"
	ParticipationCompleted ParticipationStatus = "completed"
	ParticipationExpired   ParticipationStatus = "expired"
)

// ObjectiveProgress is the user's standing on one objective.
type ObjectiveProgress struct {
	Kind     ObjectiveKind `json:"kind"`
	Category string        `json:"category,omitempty"`
	Current  int           `json:"current"`
	Target   int           `json:"target"`
	Done     bool          `json:"done"`
}

// Participation links a user to a quest they joined.
type Participation struct {
	ID          string              `json:"id" db:"id"`
	UserID      string              `json:"user_id" db:"user_id"`
	QuestID     string              `json:"quest_id" db:"quest_id"`
	Progress    []ObjectiveProgress `json:"progress" db:"-"`
	Percent     int                 `json:"percent" db:"percent"`
	Status      ParticipationStatus `json:"status" db:"status"`
	JoinedAt    time.Time           `json:"joined_at" db:"joined_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty" db:"completed_at"`
	UpdatedAt   time.Time           `json:"updated_at" db:"updated_at"`
}

// Percent computes completed/total*100, rounded down.
func Percent(progress []ObjectiveProgress) int {
	if len(progress) == 0 {
		return 0
	}
	done := 0
	for _, p := range progress {
		if p.Done {
			done++
		}
	}
	return done * 100 / len(progress)
}

// ParticipationView pairs a participation with its quest.
type ParticipationView struct {
	Participation
	Quest Quest `json:"quest"`
}
