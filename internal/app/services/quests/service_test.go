package quests

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/conedex/conedex/internal/app/domain/badge"
	"github.com/conedex/conedex/internal/app/domain/flavor"
	"github.com/conedex/conedex/internal/app/domain/notification"
	"github.com/conedex/conedex/internal/app/domain/profile"
	"github.com/conedex/conedex/internal/app/domain/quest"
	"github.com/conedex/conedex/internal/app/storage/memory"
	svcerrors "github.com/conedex/conedex/internal/errors"
	"github.com/conedex/conedex/pkg/logger"
)

type recordingNotifier struct {
	mu    sync.Mutex
	types []notification.Type
}

func (r *recordingNotifier) Notify(_ context.Context, _ string, typ notification.Type, _, _, _ string) {
	r.mu.Lock()
	r.types = append(r.types, typ)
	r.mu.Unlock()
}

type recordingGranter struct {
	grants []string
}

func (g *recordingGranter) Grant(_ context.Context, userID, badgeID, _, source string) (badge.Award, bool, error) {
	g.grants = append(g.grants, userID+":"+badgeID+":"+source)
	return badge.Award{UserID: userID, BadgeID: badgeID}, true, nil
}

type fixture struct {
	svc      *Service
	store    *memory.Store
	notifier *recordingNotifier
	granter  *recordingGranter
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	ctx := context.Background()
	if _, err := store.CreateProfile(ctx, profile.Profile{ID: "u1", Status: profile.StatusActive}); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	for _, f := range []flavor.Flavor{
		{ID: "f1", ShopID: "s1", Name: "Mint", Category: "fruit"},
		{ID: "f2", ShopID: "s2", Name: "Mango", Category: "fruit"},
	} {
		if _, err := store.CreateFlavor(ctx, f); err != nil {
			t.Fatalf("create flavor: %v", err)
		}
	}
	f := &fixture{
		store:    store,
		notifier: &recordingNotifier{},
		granter:  &recordingGranter{},
		now:      time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = New(store, store, store, f.granter, f.notifier, logger.Discard())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) logVisit(t *testing.T, flavorID, shopID string, rating int, at time.Time) {
	t.Helper()
	_, err := f.store.CreateLog(context.Background(), flavor.Log{UserID: "u1", FlavorID: flavorID, ShopID: shopID, Rating: rating, VisitedAt: at})
	if err != nil {
		t.Fatalf("create log: %v", err)
	}
}

func TestService_CreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	end := f.now.Add(-time.Hour)

	cases := []quest.Quest{
		{Objectives: []quest.Objective{{Kind: quest.ObjectiveLogFlavors, Target: 1}}},
		{Title: "no objectives"},
		{Title: "bad kind", Objectives: []quest.Objective{{Kind: "dance", Target: 1}}},
		{Title: "zero target", Objectives: []quest.Objective{{Kind: quest.ObjectiveLogFlavors}}},
		{Title: "bad category", Objectives: []quest.Objective{{Kind: quest.ObjectiveTryCategory, Target: 1, Category: "pizza"}}},
		{Title: "ends early", StartsAt: f.now, EndsAt: &end, Objectives: []quest.Objective{{Kind: quest.ObjectiveLogFlavors, Target: 1}}},
	}
	for i, c := range cases {
		if _, err := f.svc.Create(ctx, c); !svcerrors.HasCode(err, svcerrors.CodeValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestService_JoinIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.svc.Create(ctx, quest.Quest{Title: "Taster", Active: true,
		Objectives: []quest.Objective{{Kind: quest.ObjectiveLogFlavors, Target: 3}}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	first, err := f.svc.Join(ctx, "u1", q.ID)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	second, err := f.svc.Join(ctx, "u1", q.ID)
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if first.ID != second.ID || first.Status != quest.ParticipationActive {
		t.Fatalf("unexpected participations %+v %+v", first, second)
	}
}

func TestService_JoinRejectsUnavailableQuest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.svc.Create(ctx, quest.Quest{Title: "Later", Active: true, StartsAt: f.now.Add(24 * time.Hour),
		Objectives: []quest.Objective{{Kind: quest.ObjectiveLogFlavors, Target: 1}}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Join(ctx, "u1", q.ID); !svcerrors.HasCode(err, svcerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_RefreshCompletesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.svc.Create(ctx, quest.Quest{
		Title:    "Fruit Fan",
		Active:   true,
		Points:   40,
		BadgeID:  "b1",
		StartsAt: f.now.Add(-time.Hour),
		Objectives: []quest.Objective{
			{Kind: quest.ObjectiveTryCategory, Category: "fruit", Target: 2},
			{Kind: quest.ObjectiveVisitShops, Target: 2},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Logs before the quest window do not count.
	f.logVisit(t, "f1", "s1", 5, f.now.Add(-2*time.Hour))

	p, err := f.svc.Join(ctx, "u1", q.ID)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if p.Percent != 0 {
		t.Fatalf("percent = %d, want 0", p.Percent)
	}

	f.logVisit(t, "f1", "s1", 4, f.now)
	if _, err := f.svc.Refresh(ctx, "u1"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	p, _ = f.store.GetParticipation(ctx, "u1", q.ID)
	if p.Percent != 0 || p.Progress[0].Current != 1 {
		t.Fatalf("unexpected progress %+v", p)
	}

	f.logVisit(t, "f2", "s2", 3, f.now)
	completed, err := f.svc.Refresh(ctx, "u1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(completed) != 1 || completed[0].Status != quest.ParticipationCompleted || completed[0].CompletedAt == nil {
		t.Fatalf("completed = %+v", completed)
	}

	f.logVisit(t, "f2", "s2", 5, f.now)
	again, err := f.svc.Refresh(ctx, "u1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("quest completed twice: %+v", again)
	}

	prof, _ := f.store.GetProfile(ctx, "u1")
	if prof.Points != 40 {
		t.Fatalf("points = %d, want 40", prof.Points)
	}
	if len(f.granter.grants) != 1 || f.granter.grants[0] != "u1:b1:quest" {
		t.Fatalf("grants = %v", f.granter.grants)
	}
	if len(f.notifier.types) != 1 || f.notifier.types[0] != notification.TypeQuestCompleted {
		t.Fatalf("notifications = %v", f.notifier.types)
	}
}

func TestService_DeleteWithParticipantsDeactivates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.svc.Create(ctx, quest.Quest{Title: "Taster", Active: true,
		Objectives: []quest.Objective{{Kind: quest.ObjectiveLogFlavors, Target: 5}}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Join(ctx, "u1", q.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	deleted, err := f.svc.Delete(ctx, q.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted {
		t.Fatal("quest with participants should not be deleted")
	}
	got, err := f.svc.Get(ctx, q.ID)
	if err != nil || got.Active {
		t.Fatalf("quest = %+v err=%v, want inactive", got, err)
	}

	empty, _ := f.svc.Create(ctx, quest.Quest{Title: "Empty", Active: true,
		Objectives: []quest.Objective{{Kind: quest.ObjectiveLogFlavors, Target: 1}}})
	if deleted, err := f.svc.Delete(ctx, empty.ID); err != nil || !deleted {
		t.Fatalf("delete empty: deleted=%v err=%v", deleted, err)
	}
}

func TestService_ExpireEnded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	end := f.now.Add(time.Hour)
	q, err := f.svc.Create(ctx, quest.Quest{Title: "Weekend", Active: true, StartsAt: f.now.Add(-time.Hour), EndsAt: &end,
		Objectives: []quest.Objective{{Kind: quest.ObjectiveLogFlavors, Target: 5}}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Join(ctx, "u1", q.ID); err != nil {
		t.Fatalf("join: %v", err)
	}

	n, err := f.svc.ExpireEnded(ctx, f.now)
	if err != nil || n != 0 {
		t.Fatalf("early expire: n=%d err=%v", n, err)
	}
	n, err = f.svc.ExpireEnded(ctx, end.Add(time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("expire: n=%d err=%v", n, err)
	}
	p, _ := f.store.GetParticipation(ctx, "u1", q.ID)
	if p.Status != quest.ParticipationExpired {
		t.Fatalf("status = %s", p.Status)
	}
}

func TestEvaluate_CapsAtTarget(t *testing.T) {
	progress := Evaluate(
		[]quest.Objective{{Kind: quest.ObjectiveRateHigh, Target: 2}, {Kind: quest.ObjectiveUniqueFlavors, Target: 5}},
		flavor.Activity{HighRatings: 7, UniqueFlavors: 1},
	)
	if progress[0].Current != 2 || !progress[0].Done {
		t.Fatalf("rate_high = %+v", progress[0])
	}
	if progress[1].Current != 1 || progress[1].Done {
		t.Fatalf("unique_flavors = %+v", progress[1])
	}
	if quest.Percent(progress) != 50 {
		t.Fatalf("percent = %d", quest.Percent(progress))
	}
}
