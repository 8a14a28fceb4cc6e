package newsletters

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conedex/conedex/internal/app/domain/newsletter"
	"github.com/conedex/conedex/internal/app/metrics"
	"github.com/conedex/conedex/internal/app/storage"
	svcerrors "github.com/conedex/conedex/internal/errors"
	"github.com/conedex/conedex/internal/mailer"
	"github.com/conedex/conedex/pkg/logger"
)

// UnsubscribePlaceholder is replaced per recipient with their unsubscribe
// link. Bodies without it get a footer appended.
const UnsubscribePlaceholder = "{{unsubscribe_url}}"

const maxSubjectLength = 200

// StaleSendingAfter is how long a newsletter may sit in sending before the
// dispatch job assumes its sender died and marks it failed.
const StaleSendingAfter = 30 * time.Minute

// Draft is the editable content of a newsletter.
type Draft struct {
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
	TextBody string `json:"text_body"`
}

// Service manages subscribers and newsletter campaigns.
type Service struct {
	store   storage.NewsletterStore
	mailer  mailer.Mailer
	baseURL string
	log     *logger.Logger
	now     func() time.Time
}

// New constructs a newsletter service. publicBaseURL prefixes unsubscribe
// links.
func New(store storage.NewsletterStore, m mailer.Mailer, publicBaseURL string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("newsletters")
	}
	if m == nil {
		m = mailer.NewLogMailer(log)
	}
	return &Service{
		store:   store,
		mailer:  m,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe adds an address to the list. Subscribing again is a no-op and
// an unsubscribed address is resubscribed.
func (s *Service) Subscribe(ctx context.Context, email, userID string) (newsletter.Subscriber, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if parsed, err := mail.ParseAddress(email); err != nil || parsed.Address != email {
		return newsletter.Subscriber{}, svcerrors.Validation("a valid email address is required")
	}

	existing, err := s.store.GetSubscriberByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Status == newsletter.Subscribed {
			return existing, nil
		}
		existing.Status = newsletter.Subscribed
		existing.SubscribedAt = s.now()
		existing.UnsubscribedAt = nil
		if existing.UserID == "" {
			existing.UserID = userID
		}
		s.log.WithField("subscriber_id", existing.ID).Info("subscriber returned")
		return s.store.UpdateSubscriber(ctx, existing)
	case !errors.Is(err, storage.ErrNotFound):
		return newsletter.Subscriber{}, err
	}

	sub, err := s.store.CreateSubscriber(ctx, newsletter.Subscriber{
		Email:        email,
		UserID:       userID,
		Status:       newsletter.Subscribed,
		Token:        uuid.NewString(),
		SubscribedAt: s.now(),
	})
	if errors.Is(err, storage.ErrConflict) {
		return s.store.GetSubscriberByEmail(ctx, email)
	}
	if err != nil {
		return newsletter.Subscriber{}, err
	}
	s.log.WithField("subscriber_id", sub.ID).Info("subscriber added")
	return sub, nil
}

// Unsubscribe removes the address holding token from future sends.
func (s *Service) Unsubscribe(ctx context.Context, token string) (newsletter.Subscriber, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return newsletter.Subscriber{}, svcerrors.Validation("token is required")
	}
	sub, err := s.store.GetSubscriberByToken(ctx, token)
	if err != nil {
		return newsletter.Subscriber{}, err
	}
	if sub.Status == newsletter.Unsubscribed {
		return sub, nil
	}
	now := s.now()
	sub.Status = newsletter.Unsubscribed
	sub.UnsubscribedAt = &now
	sub, err = s.store.UpdateSubscriber(ctx, sub)
	if err != nil {
		return newsletter.Subscriber{}, err
	}
	s.log.WithField("subscriber_id", sub.ID).Info("subscriber left")
	return sub, nil
}

// ListSubscribers returns subscribers, optionally by status.
func (s *Service) ListSubscribers(ctx context.Context, status newsletter.SubscriberStatus) ([]newsletter.Subscriber, error) {
	switch status {
	case "", newsletter.Subscribed, newsletter.Unsubscribed:
	default:
		return nil, svcerrors.Validation("unknown subscriber status %q", status)
	}
	return s.store.ListSubscribers(ctx, status)
}

// Create stores a draft newsletter.
func (s *Service) Create(ctx context.Context, adminID string, d Draft) (newsletter.Newsletter, error) {
	d, err := cleanDraft(d)
	if err != nil {
		return newsletter.Newsletter{}, err
	}
	n, err := s.store.CreateNewsletter(ctx, newsletter.Newsletter{
		Subject:   d.Subject,
		HTMLBody:  d.HTMLBody,
		TextBody:  d.TextBody,
		Status:    newsletter.StatusDraft,
		CreatedBy: adminID,
	})
	if err != nil {
		return newsletter.Newsletter{}, err
	}
	s.log.WithField("newsletter_id", n.ID).Info("newsletter drafted")
	return n, nil
}

// Get returns one newsletter.
func (s *Service) Get(ctx context.Context, id string) (newsletter.Newsletter, error) {
	return s.store.GetNewsletter(ctx, id)
}

// List returns every newsletter.
func (s *Service) List(ctx context.Context) ([]newsletter.Newsletter, error) {
	return s.store.ListNewsletters(ctx)
}

// Update replaces the content of a draft or scheduled newsletter.
func (s *Service) Update(ctx context.Context, id string, d Draft) (newsletter.Newsletter, error) {
	n, err := s.editable(ctx, id)
	if err != nil {
		return newsletter.Newsletter{}, err
	}
	d, err = cleanDraft(d)
	if err != nil {
		return newsletter.Newsletter{}, err
	}
	n.Subject, n.HTMLBody, n.TextBody = d.Subject, d.HTMLBody, d.TextBody
	return s.store.UpdateNewsletter(ctx, n)
}

// Schedule queues a newsletter for automatic sending at a future time.
func (s *Service) Schedule(ctx context.Context, id string, at time.Time) (newsletter.Newsletter, error) {
	if !at.After(s.now()) {
		return newsletter.Newsletter{}, svcerrors.Validation("scheduled time must be in the future")
	}
	n, err := s.editable(ctx, id)
	if err != nil {
		return newsletter.Newsletter{}, err
	}
	at = at.UTC()
	n.Status = newsletter.StatusScheduled
	n.ScheduledAt = &at
	n, err = s.store.UpdateNewsletter(ctx, n)
	if err != nil {
		return newsletter.Newsletter{}, err
	}
	s.log.WithField("newsletter_id", id).WithField("scheduled_at", at).Info("newsletter scheduled")
	return n, nil
}

// Unschedule returns a scheduled newsletter to draft.
func (s *Service) Unschedule(ctx context.Context, id string) (newsletter.Newsletter, error) {
	n, err := s.store.TransitionNewsletter(ctx, id, []newsletter.Status{newsletter.StatusScheduled}, newsletter.StatusDraft)
	if err != nil {
		return newsletter.Newsletter{}, stateErr(err)
	}
	n.ScheduledAt = nil
	return s.store.UpdateNewsletter(ctx, n)
}

// Delete removes a draft.
func (s *Service) Delete(ctx context.Context, id string) error {
	n, err := s.store.GetNewsletter(ctx, id)
	if err != nil {
		return err
	}
	if n.Status != newsletter.StatusDraft {
		return svcerrors.Conflict("only drafts can be deleted; newsletter is %s", n.Status)
	}
	return s.store.DeleteNewsletter(ctx, id)
}

// SendTest mails a single preview copy.
func (s *Service) SendTest(ctx context.Context, id, email string) error {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return svcerrors.Validation("a valid email address is required")
	}
	n, err := s.store.GetNewsletter(ctx, id)
	if err != nil {
		return err
	}
	msg := s.message(n)
	msg.To = email
	msg.Subject = "[TEST] " + n.Subject
	msg.HTML = strings.ReplaceAll(msg.HTML, UnsubscribePlaceholder, "#")
	msg.Text = strings.ReplaceAll(msg.Text, UnsubscribePlaceholder, "#")
	err = s.mailer.Send(ctx, msg)
	metrics.RecordEmails("test", boolCount(err == nil), boolCount(err != nil))
	if err != nil {
		return svcerrors.Unavailable("test email failed", err)
	}
	return nil
}

// Send delivers a draft or scheduled newsletter to every subscriber. The
// status moves to sending first so concurrent sends of the same newsletter
// fail with a conflict.
func (s *Service) Send(ctx context.Context, id string) (newsletter.Newsletter, error) {
	n, err := s.store.TransitionNewsletter(ctx, id,
		[]newsletter.Status{newsletter.StatusDraft, newsletter.StatusScheduled}, newsletter.StatusSending)
	if err != nil {
		return newsletter.Newsletter{}, stateErr(err)
	}
	log := s.log.WithField("newsletter_id", id)

	subs, err := s.store.ListSubscribers(ctx, newsletter.Subscribed)
	if err != nil {
		return s.finish(ctx, n, mailer.BatchResult{}, err)
	}
	recipients := make([]mailer.Recipient, 0, len(subs))
	for _, sub := range subs {
		recipients = append(recipients, mailer.Recipient{
			Email:         sub.Email,
			Substitutions: map[string]string{UnsubscribePlaceholder: s.unsubscribeURL(sub.Token)},
		})
	}

	log.WithField("recipients", len(recipients)).Info("newsletter send started")
	result, err := s.mailer.SendBatch(ctx, s.message(n), recipients)
	return s.finish(ctx, n, result, err)
}

func (s *Service) finish(ctx context.Context, n newsletter.Newsletter, result mailer.BatchResult, sendErr error) (newsletter.Newsletter, error) {
	now := s.now()
	n.RecipientCount = result.Sent + result.Failed
	n.FailedCount = result.Failed
	n.SentAt = &now
	n.Status = newsletter.StatusSent
	if sendErr != nil || (result.Sent == 0 && result.Failed > 0) {
		n.Status = newsletter.StatusFailed
	}
	metrics.RecordEmails("newsletter", result.Sent, result.Failed)

	// The send already happened; record the outcome even if the caller's
	// context is gone.
	saveCtx := context.WithoutCancel(ctx)
	updated, err := s.store.UpdateNewsletter(saveCtx, n)
	if err != nil {
		return n, err
	}
	s.log.WithFields(map[string]interface{}{
		"newsletter_id": n.ID,
		"status":        n.Status,
		"sent":          result.Sent,
		"failed":        result.Failed,
		"batches":       result.Batches,
	}).Info("newsletter send finished")
	if sendErr != nil {
		return updated, svcerrors.Unavailable("newsletter send failed", sendErr)
	}
	return updated, nil
}

// DispatchDue fails stale sends, then sends every scheduled newsletter whose
// time has come and returns how many were sent.
func (s *Service) DispatchDue(ctx context.Context, now time.Time) (int, error) {
	var errs []error
	if _, err := s.RecoverStale(ctx, now); err != nil {
		errs = append(errs, err)
	}
	due, err := s.store.ListDueNewsletters(ctx, now)
	if err != nil {
		return 0, errors.Join(append(errs, err)...)
	}
	sent := 0
	for _, n := range due {
		if _, err := s.Send(ctx, n.ID); err != nil {
			if svcerrors.HasCode(err, svcerrors.CodeConflict) {
				continue
			}
			errs = append(errs, fmt.Errorf("newsletter %s: %w", n.ID, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// RecoverStale marks failed every newsletter that has been sending for longer
// than StaleSendingAfter. Interrupted sends are never retried.
func (s *Service) RecoverStale(ctx context.Context, now time.Time) (int, error) {
	all, err := s.store.ListNewsletters(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := now.Add(-StaleSendingAfter)
	recovered := 0
	var errs []error
	for _, n := range all {
		if n.Status != newsletter.StatusSending || !n.UpdatedAt.Before(cutoff) {
			continue
		}
		_, err := s.store.TransitionNewsletter(ctx, n.ID,
			[]newsletter.Status{newsletter.StatusSending}, newsletter.StatusFailed)
		if errors.Is(err, storage.ErrConflict) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("newsletter %s: %w", n.ID, err))
			continue
		}
		recovered++
		s.log.WithFields(map[string]interface{}{
			"newsletter_id": n.ID,
			"sending_since": n.UpdatedAt,
		}).Warn("interrupted newsletter send marked failed")
	}
	return recovered, errors.Join(errs...)
}

func (s *Service) editable(ctx context.Context, id string) (newsletter.Newsletter, error) {
	n, err := s.store.GetNewsletter(ctx, id)
	if err != nil {
		return newsletter.Newsletter{}, err
	}
	if !n.Status.Editable() {
		return newsletter.Newsletter{}, svcerrors.Conflict("newsletter %s is %s and can no longer change", id, n.Status)
	}
	return n, nil
}

func (s *Service) message(n newsletter.Newsletter) mailer.Message {
	html := n.HTMLBody
	if !strings.Contains(html, UnsubscribePlaceholder) {
		html += `<p style="font-size:12px;color:#888"><a href="` + UnsubscribePlaceholder + `">Unsubscribe</a></p>`
	}
	text := n.TextBody
	if text != "" && !strings.Contains(text, UnsubscribePlaceholder) {
		text += "\n\nUnsubscribe: " + UnsubscribePlaceholder
	}
	return mailer.Message{
		Subject:    n.Subject,
		HTML:       html,
		Text:       text,
		Categories: []string{"newsletter"},
	}
}

func (s *Service) unsubscribeURL(token string) string {
	return s.baseURL + "/v1/newsletter/unsubscribe?token=" + url.QueryEscape(token)
}

func cleanDraft(d Draft) (Draft, error) {
	d.Subject = strings.TrimSpace(d.Subject)
	d.HTMLBody = strings.TrimSpace(d.HTMLBody)
	d.TextBody = strings.TrimSpace(d.TextBody)
	if d.Subject == "" {
		return d, svcerrors.Validation("subject is required")
	}
	if len(d.Subject) > maxSubjectLength {
		return d, svcerrors.Validation("subject must be at most %d characters", maxSubjectLength)
	}
	if d.HTMLBody == "" {
		return d, svcerrors.Validation("html_body is required")
	}
	return d, nil
}

// stateErr turns a store state conflict into a service conflict.
func stateErr(err error) error {
	if errors.Is(err, storage.ErrConflict) {
		return svcerrors.Conflict("%s", err.Error())
	}
	return err
}

func boolCount(b bool) int {
	if b {
		return 1
	}
	return 0
}
