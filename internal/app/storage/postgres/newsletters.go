package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/conedex/conedex/internal/app/domain/newsletter"
	"github.com/conedex/conedex/internal/app/storage"
)

const subscriberColumns = `id, email, user_id, status, token, subscribed_at, unsubscribed_at`

// --- NewsletterStore ---------------------------------------------------------

func (s *Store) CreateSubscriber(ctx context.Context, sub newsletter.Subscriber) (newsletter.Subscriber, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.SubscribedAt.IsZero() {
		sub.SubscribedAt = s.now()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO newsletter_subscribers (`+subscriberColumns+`)
		VALUES (:id, :email, :user_id, :status, :token, :subscribed_at, :unsubscribed_at)
	`, sub)
	if err != nil {
		return newsletter.Subscriber{}, mapErr(err, "subscriber", sub.Email)
	}
	return sub, nil
}

func (s *Store) UpdateSubscriber(ctx context.Context, sub newsletter.Subscriber) (newsletter.Subscriber, error) {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE newsletter_subscribers
		SET email = :email, user_id = :user_id, status = :status, token = :token,
			subscribed_at = :subscribed_at, unsubscribed_at = :unsubscribed_at
		WHERE id = :id
	`, sub)
	if err != nil {
		return newsletter.Subscriber{}, mapErr(err, "subscriber", sub.ID)
	}
	if err := mustAffect(res, "subscriber", sub.ID); err != nil {
		return newsletter.Subscriber{}, err
	}
	return sub, nil
}

func (s *Store) GetSubscriberByEmail(ctx context.Context, email string) (newsletter.Subscriber, error) {
	var sub newsletter.Subscriber
	err := s.db.GetContext(ctx, &sub, `SELECT `+subscriberColumns+` FROM newsletter_subscribers WHERE lower(email) = lower($1)`, email)
	if err != nil {
		return newsletter.Subscriber{}, mapErr(err, "subscriber", email)
	}
	return sub, nil
}

func (s *Store) GetSubscriberByToken(ctx context.Context, token string) (newsletter.Subscriber, error) {
	var sub newsletter.Subscriber
	err := s.db.GetContext(ctx, &sub, `SELECT `+subscriberColumns+` FROM newsletter_subscribers WHERE token = $1 AND token <> ''`, token)
	if err != nil {
		return newsletter.Subscriber{}, mapErr(err, "subscriber", "token")
	}
	return sub, nil
}

func (s *Store) ListSubscribers(ctx context.Context, status newsletter.SubscriberStatus) ([]newsletter.Subscriber, error) {
	var w where
	if status != "" {
		w.add("status = ?", status)
	}
	result := []newsletter.Subscriber{}
	query := `SELECT ` + subscriberColumns + ` FROM newsletter_subscribers` + w.String() + ` ORDER BY subscribed_at DESC`
	if err := s.db.SelectContext(ctx, &result, query, w.args...); err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	return result, nil
}

const newsletterColumns = `id, subject, html_body, text_body, status, scheduled_at, sent_at, recipient_count,
	failed_count, created_by, created_at, updated_at`

func (s *Store) CreateNewsletter(ctx context.Context, n newsletter.Newsletter) (newsletter.Newsletter, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	stamp(&n.CreatedAt, &n.UpdatedAt, s.now())

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO newsletters (`+newsletterColumns+`)
		VALUES (:id, :subject, :html_body, :text_body, :status, :scheduled_at, :sent_at, :recipient_count,
			:failed_count, :created_by, :created_at, :updated_at)
	`, n)
	if err != nil {
		return newsletter.Newsletter{}, mapErr(err, "newsletter", n.ID)
	}
	return n, nil
}

func (s *Store) UpdateNewsletter(ctx context.Context, n newsletter.Newsletter) (newsletter.Newsletter, error) {
	n.UpdatedAt = s.now()
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE newsletters
		SET subject = :subject, html_body = :html_body, text_body = :text_body, status = :status,
			scheduled_at = :scheduled_at, sent_at = :sent_at, recipient_count = :recipient_count,
			failed_count = :failed_count, updated_at = :updated_at
		WHERE id = :id
	`, n)
	if err != nil {
		return newsletter.Newsletter{}, mapErr(err, "newsletter", n.ID)
	}
	if err := mustAffect(res, "newsletter", n.ID); err != nil {
		return newsletter.Newsletter{}, err
	}
	return s.GetNewsletter(ctx, n.ID)
}

func (s *Store) GetNewsletter(ctx context.Context, id string) (newsletter.Newsletter, error) {
	var n newsletter.Newsletter
	if err := s.db.GetContext(ctx, &n, `SELECT `+newsletterColumns+` FROM newsletters WHERE id = $1`, id); err != nil {
		return newsletter.Newsletter{}, mapErr(err, "newsletter", id)
	}
	return n, nil
}

func (s *Store) ListNewsletters(ctx context.Context) ([]newsletter.Newsletter, error) {
	result := []newsletter.Newsletter{}
	if err := s.db.SelectContext(ctx, &result, `SELECT `+newsletterColumns+` FROM newsletters ORDER BY created_at DESC`); err != nil {
		return nil, fmt.Errorf("list newsletters: %w", err)
	}
	return result, nil
}

func (s *Store) DeleteNewsletter(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM newsletters WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "newsletter", id)
	}
	return mustAffect(res, "newsletter", id)
}

// TransitionNewsletter is a compare-and-set on status; concurrent senders
// race on the UPDATE and only one observes a row.
func (s *Store) TransitionNewsletter(ctx context.Context, id string, from []newsletter.Status, to newsletter.Status) (newsletter.Newsletter, error) {
	allowed := make([]string, len(from))
	for i, st := range from {
		allowed[i] = string(st)
	}
	var n newsletter.Newsletter
	err := s.db.GetContext(ctx, &n, `
		UPDATE newsletters SET status = $2, updated_at = $3
		WHERE id = $1 AND status = ANY($4)
		RETURNING `+newsletterColumns, id, to, s.now(), pq.Array(allowed))
	if err == nil {
		return n, nil
	}
	if mapped := mapErr(err, "newsletter", id); !isNotFound(mapped) {
		return newsletter.Newsletter{}, mapped
	}
	current, getErr := s.GetNewsletter(ctx, id)
	if getErr != nil {
		return newsletter.Newsletter{}, getErr
	}
	return newsletter.Newsletter{}, fmt.Errorf("newsletter %s is %s: %w", id, current.Status, storage.ErrConflict)
}

func (s *Store) ListDueNewsletters(ctx context.Context, now time.Time) ([]newsletter.Newsletter, error) {
	result := []newsletter.Newsletter{}
	err := s.db.SelectContext(ctx, &result, `
		SELECT `+newsletterColumns+` FROM newsletters
		WHERE status = $1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
		ORDER BY scheduled_at ASC`, newsletter.StatusScheduled, now)
	if err != nil {
		return nil, fmt.Errorf("list due newsletters: %w", err)
	}
	return result, nil
}
