package newsletters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/conedex/conedex/internal/app/domain/newsletter"
	"github.com/conedex/conedex/internal/app/storage/memory"
	svcerrors "github.com/conedex/conedex/internal/errors"
	"github.com/conedex/conedex/internal/mailer"
	"github.com/conedex/conedex/pkg/logger"
)

type fakeMailer struct {
	mu         sync.Mutex
	single     []mailer.Message
	recipients []mailer.Recipient
	failAll    bool
}

func (f *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.single = append(f.single, msg)
	return nil
}

func (f *fakeMailer) SendBatch(_ context.Context, _ mailer.Message, recipients []mailer.Recipient) (mailer.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recipients = append(f.recipients, recipients...)
	if f.failAll {
		return mailer.BatchResult{Failed: len(recipients), Batches: 1, Errors: []string{"boom"}}, nil
	}
	return mailer.BatchResult{Sent: len(recipients), Batches: 1}, nil
}

type fixture struct {
	svc    *Service
	store  *memory.Store
	mailer *fakeMailer
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.New(),
		mailer: &fakeMailer{},
		now:    time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = New(f.store, f.mailer, "https://conedex.app/", logger.Discard())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func TestService_SubscribeLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Subscribe(ctx, "nope", ""); !svcerrors.HasCode(err, svcerrors.CodeValidation) {
		t.Fatalf("expected validation, got %v", err)
	}
	sub, err := f.svc.Subscribe(ctx, " Fan@Example.com ", "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if sub.Email != "fan@example.com" || sub.Token == "" || sub.Status != newsletter.Subscribed {
		t.Fatalf("subscriber = %+v", sub)
	}
	again, err := f.svc.Subscribe(ctx, "fan@example.com", "")
	if err != nil || again.ID != sub.ID {
		t.Fatalf("second subscribe = %+v %v", again, err)
	}

	left, err := f.svc.Unsubscribe(ctx, sub.Token)
	if err != nil || left.Status != newsletter.Unsubscribed || left.UnsubscribedAt == nil {
		t.Fatalf("unsubscribe = %+v %v", left, err)
	}
	back, err := f.svc.Subscribe(ctx, "fan@example.com", "")
	if err != nil || back.Status != newsletter.Subscribed || back.UnsubscribedAt != nil || back.Token != sub.Token {
		t.Fatalf("resubscribe = %+v %v", back, err)
	}
	if _, err := f.svc.Unsubscribe(ctx, "bogus"); err == nil {
		t.Fatal("expected unknown token to fail")
	}
}

func TestService_SendPersonalizesUnsubscribeLinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.svc.Subscribe(ctx, fmt.Sprintf("fan%d@example.com", i), ""); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}
	gone, _ := f.svc.Subscribe(ctx, "gone@example.com", "")
	if _, err := f.svc.Unsubscribe(ctx, gone.Token); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	n, err := f.svc.Create(ctx, "admin", Draft{Subject: "June scoops", HTMLBody: "<p>New flavors!</p>"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sent, err := f.svc.Send(ctx, n.ID)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent.Status != newsletter.StatusSent || sent.RecipientCount != 3 || sent.FailedCount != 0 || sent.SentAt == nil {
		t.Fatalf("sent = %+v", sent)
	}
	if len(f.mailer.recipients) != 3 {
		t.Fatalf("recipients = %d", len(f.mailer.recipients))
	}
	for _, r := range f.mailer.recipients {
		link := r.Substitutions[UnsubscribePlaceholder]
		if !strings.HasPrefix(link, "https://conedex.app/v1/newsletter/unsubscribe?token=") || r.Email == "gone@example.com" {
			t.Fatalf("recipient = %+v", r)
		}
	}

	if _, err := f.svc.Send(ctx, n.ID); !svcerrors.HasCode(err, svcerrors.CodeConflict) {
		t.Fatalf("resend: expected conflict, got %v", err)
	}
	if _, err := f.svc.Update(ctx, n.ID, Draft{Subject: "x", HTMLBody: "y"}); !svcerrors.HasCode(err, svcerrors.CodeConflict) {
		t.Fatalf("edit sent: expected conflict, got %v", err)
	}
}

func TestService_SendAllFailedMarksFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mailer.failAll = true

	_, _ = f.svc.Subscribe(ctx, "fan@example.com", "")
	n, _ := f.svc.Create(ctx, "admin", Draft{Subject: "Hi", HTMLBody: "<p>Hi</p>"})
	sent, err := f.svc.Send(ctx, n.ID)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent.Status != newsletter.StatusFailed || sent.FailedCount != 1 {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestService_ScheduleAndDispatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.svc.Subscribe(ctx, "fan@example.com", "")

	n, _ := f.svc.Create(ctx, "admin", Draft{Subject: "Weekly", HTMLBody: "<p>Hello</p>"})
	if _, err := f.svc.Schedule(ctx, n.ID, f.now.Add(-time.Minute)); !svcerrors.HasCode(err, svcerrors.CodeValidation) {
		t.Fatalf("past schedule: expected validation, got %v", err)
	}
	scheduled, err := f.svc.Schedule(ctx, n.ID, f.now.Add(time.Hour))
	if err != nil || scheduled.Status != newsletter.StatusScheduled {
		t.Fatalf("schedule = %+v %v", scheduled, err)
	}

	count, err := f.svc.DispatchDue(ctx, f.now)
	if err != nil || count != 0 {
		t.Fatalf("early dispatch = %d %v", count, err)
	}
	count, err = f.svc.DispatchDue(ctx, f.now.Add(2*time.Hour))
	if err != nil || count != 1 {
		t.Fatalf("dispatch = %d %v", count, err)
	}
	got, _ := f.svc.Get(ctx, n.ID)
	if got.Status != newsletter.StatusSent {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestService_DispatchFailsInterruptedSends(t *testing.T) {
	f := newFixture(t)
	f.store.SetClock(func() time.Time { return f.now })
	ctx := context.Background()

	stuck, _ := f.svc.Create(ctx, "admin", Draft{Subject: "Stuck", HTMLBody: "<p>1</p>"})
	if _, err := f.store.TransitionNewsletter(ctx, stuck.ID,
		[]newsletter.Status{newsletter.StatusDraft}, newsletter.StatusSending); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if _, err := f.svc.Send(ctx, stuck.ID); !svcerrors.HasCode(err, svcerrors.CodeConflict) {
		t.Fatalf("send while sending: expected conflict, got %v", err)
	}

	// Still within the grace period.
	f.now = f.now.Add(StaleSendingAfter / 2)
	if _, err := f.svc.DispatchDue(ctx, f.now); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	got, _ := f.svc.Get(ctx, stuck.ID)
	if got.Status != newsletter.StatusSending {
		t.Fatalf("status before cutoff = %s", got.Status)
	}

	fresh, _ := f.svc.Create(ctx, "admin", Draft{Subject: "Fresh", HTMLBody: "<p>2</p>"})
	if _, err := f.store.TransitionNewsletter(ctx, fresh.ID,
		[]newsletter.Status{newsletter.StatusDraft}, newsletter.StatusSending); err != nil {
		t.Fatalf("transition: %v", err)
	}

	f.now = f.now.Add(StaleSendingAfter)
	if _, err := f.svc.DispatchDue(ctx, f.now); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	got, _ = f.svc.Get(ctx, stuck.ID)
	if got.Status != newsletter.StatusFailed {
		t.Fatalf("stale status = %s", got.Status)
	}
	got, _ = f.svc.Get(ctx, fresh.ID)
	if got.Status != newsletter.StatusSending {
		t.Fatalf("fresh status = %s", got.Status)
	}
	if len(f.mailer.recipients) != 0 {
		t.Fatalf("interrupted send was retried: %v", f.mailer.recipients)
	}
}

func TestService_UnscheduleAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, _ := f.svc.Create(ctx, "admin", Draft{Subject: "Later", HTMLBody: "<p>x</p>"})
	if _, err := f.svc.Schedule(ctx, n.ID, f.now.Add(time.Hour)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := f.svc.Delete(ctx, n.ID); !svcerrors.HasCode(err, svcerrors.CodeConflict) {
		t.Fatalf("delete scheduled: expected conflict, got %v", err)
	}
	draft, err := f.svc.Unschedule(ctx, n.ID)
	if err != nil || draft.Status != newsletter.StatusDraft || draft.ScheduledAt != nil {
		t.Fatalf("unschedule = %+v %v", draft, err)
	}
	if _, err := f.svc.Unschedule(ctx, n.ID); !svcerrors.HasCode(err, svcerrors.CodeConflict) {
		t.Fatalf("unschedule draft: expected conflict, got %v", err)
	}
	if err := f.svc.Delete(ctx, n.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestService_SendTest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, _ := f.svc.Create(ctx, "admin", Draft{Subject: "Preview", HTMLBody: "<p>x</p>", TextBody: "x"})
	if err := f.svc.SendTest(ctx, n.ID, "editor@conedex.app"); err != nil {
		t.Fatalf("send test: %v", err)
	}
	if len(f.mailer.single) != 1 {
		t.Fatalf("messages = %d", len(f.mailer.single))
	}
	msg := f.mailer.single[0]
	if msg.Subject != "[TEST] Preview" || strings.Contains(msg.HTML, UnsubscribePlaceholder) || msg.To != "editor@conedex.app" {
		t.Fatalf("message = %+v", msg)
	}
	got, _ := f.svc.Get(ctx, n.ID)
	if got.Status != newsletter.StatusDraft {
		t.Fatalf("test send changed status to %s", got.Status)
	}
}

func TestStateErr(t *testing.T) {
	if err := stateErr(errors.New("plain")); svcerrors.HasCode(err, svcerrors.CodeConflict) {
		t.Fatal("plain errors should pass through")
	}
}
