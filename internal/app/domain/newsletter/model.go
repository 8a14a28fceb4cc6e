package newsletter

import "time"

// SubscriberStatus is a subscription state.
type SubscriberStatus string

const (
	Subscribed   SubscriberStatus = "subscribed"
	Unsubscribed SubscriberStatus = "unsubscribed"
)

// Subscriber is a newsletter recipient.
type Subscriber struct {
	ID             string           `json:"id" db:"id"`
	Email          string           `json:"email" db:"email"`
	UserID         string           `json:"user_id,omitempty" db:"user_id"`
	Status         SubscriberStatus `json:"status" db:"status"`
	Token          string           `json:"-" db:"token"`
	SubscribedAt   time.Time        `json:"subscribed_at" db:"subscribed_at"`
	UnsubscribedAt *time.Time       `json:"unsubscribed_at,omitempty" db:"unsubscribed_at"`
}

// Status is a newsletter's delivery state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
)

// Editable reports whether content may still change.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusScheduled
}

// Newsletter is one email campaign.
type Newsletter struct {
	ID             string     `json:"id" db:"id"`
	Subject        string     `json:"subject" db:"subject"`
	HTMLBody       string     `json:"html_body" db:"html_body"`
	TextBody       string     `json:"text_body,omitempty" db:"text_body"`
	Status         Status     `json:"status" db:"status"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty" db:"scheduled_at"`
	SentAt         *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	RecipientCount int        `json:"recipient_count" db:"recipient_count"`
	FailedCount    int        `json:"failed_count" db:"failed_count"`
	CreatedBy      string     `json:"created_by,omitempty" db:"created_by"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}
