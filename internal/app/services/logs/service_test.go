package logs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/conedex/conedex/internal/app/domain/badge"
	"github.com/conedex/conedex/internal/app/domain/flavor"
	"github.com/conedex/conedex/internal/app/domain/moderation"
	"github.com/conedex/conedex/internal/app/domain/profile"
	"github.com/conedex/conedex/internal/app/domain/quest"
	"github.com/conedex/conedex/internal/app/domain/shop"
	"github.com/conedex/conedex/internal/app/services/badges"
	modsvc "github.com/conedex/conedex/internal/app/services/moderation"
	"github.com/conedex/conedex/internal/app/services/quests"
	"github.com/conedex/conedex/internal/app/storage"
	"github.com/conedex/conedex/internal/app/storage/memory"
	svcerrors "github.com/conedex/conedex/internal/errors"
	"github.com/conedex/conedex/pkg/logger"
)

type blockScreener struct {
	*modsvc.Service
}

func (blockScreener) Check(_ context.Context, text string) moderation.Verdict {
	if strings.Contains(strings.ToLower(text), "awful") {
		return moderation.Verdict{Flagged: true, Categories: []string{"harassment"}}
	}
	return moderation.Verdict{}
}

type fixture struct {
	svc    *Service
	store  *memory.Store
	quests *quests.Service
	badges *badges.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	ctx := context.Background()
	if _, err := store.CreateProfile(ctx, profile.Profile{ID: "u1", Status: profile.StatusActive}); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	shops := []shop.Shop{
		{ID: "s1", Name: "Scoops", Address: "1 Main", Status: shop.StatusActive},
		{ID: "s2", Name: "Pending", Address: "2 Main", Status: shop.StatusPending},
	}
	for _, sh := range shops {
		if _, err := store.CreateShop(ctx, sh); err != nil {
			t.Fatalf("create shop: %v", err)
		}
	}
	flavors := []flavor.Flavor{
		{ID: "f1", ShopID: "s1", Name: "Mint", Category: "mint", Status: flavor.StatusAvailable, Moderation: flavor.ModerationApproved},
		{ID: "f2", ShopID: "s2", Name: "Vanilla", Category: "vanilla", Status: flavor.StatusAvailable, Moderation: flavor.ModerationApproved},
		{ID: "f3", ShopID: "s1", Name: "Bad", Category: "other", Status: flavor.StatusAvailable, Moderation: flavor.ModerationRejected},
	}
	for _, f := range flavors {
		if _, err := store.CreateFlavor(ctx, f); err != nil {
			t.Fatalf("create flavor: %v", err)
		}
	}

	log := logger.Discard()
	badgeSvc := badges.New(store, store, store, store, nil, log)
	questSvc := quests.New(store, store, store, badgeSvc, nil, log)
	mod := modsvc.New(store, store, store, store, modsvc.Providers{}, nil, log)
	return &fixture{
		svc:    New(store, store, store, blockScreener{mod}, questSvc, badgeSvc, log),
		store:  store,
		quests: questSvc,
		badges: badgeSvc,
	}
}

func TestService_RecordValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	future := time.Now().Add(time.Hour)

	cases := map[string]Input{
		"rating low":    {FlavorID: "f1", Rating: 0},
		"rating high":   {FlavorID: "f1", Rating: 6},
		"long notes":    {FlavorID: "f1", Rating: 3, Notes: strings.Repeat("x", maxNotesLength+1)},
		"future visit":  {FlavorID: "f1", Rating: 3, VisitedAt: &future},
		"rejected":      {FlavorID: "f3", Rating: 3},
		"inactive shop": {FlavorID: "f2", Rating: 3},
	}
	for name, in := range cases {
		if _, err := f.svc.Record(ctx, "u1", in); !svcerrors.HasCode(err, svcerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
	if _, err := f.svc.Record(ctx, "u1", Input{FlavorID: "nope", Rating: 3}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing flavor: expected not found, got %v", err)
	}
}

func TestService_RecordUpdatesGamification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.badges.Create(ctx, badge.Badge{Name: "First Scoop", Points: 10, Criteria: badge.Criteria{Kind: badge.CriteriaFlavorsLogged, Threshold: 1}})
	if err != nil {
		t.Fatalf("create badge: %v", err)
	}
	q, err := f.quests.Create(ctx, quest.Quest{
		Title:      "Mint Condition",
		Active:     true,
		Points:     5,
		StartsAt:   time.Now().Add(-time.Hour),
		Objectives: []quest.Objective{{Kind: quest.ObjectiveTryCategory, Category: "mint", Target: 1}},
	})
	if err != nil {
		t.Fatalf("create quest: %v", err)
	}
	if _, err := f.quests.Join(ctx, "u1", q.ID); err != nil {
		t.Fatalf("join: %v", err)
	}

	l, err := f.svc.Record(ctx, "u1", Input{FlavorID: "f1", Rating: 5, Notes: " lovely "})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if l.ShopID != "s1" || l.Notes != "lovely" || l.VisitedAt.IsZero() {
		t.Fatalf("unexpected log %+v", l)
	}

	if _, err := f.store.GetAward(ctx, "u1", first.ID); err != nil {
		t.Fatalf("expected badge award: %v", err)
	}
	p, err := f.store.GetParticipation(ctx, "u1", q.ID)
	if err != nil || p.Status != quest.ParticipationCompleted {
		t.Fatalf("participation = %+v err=%v", p, err)
	}
	prof, _ := f.store.GetProfile(ctx, "u1")
	if prof.Points != 15 {
		t.Fatalf("points = %d, want 15", prof.Points)
	}
}

func TestService_FlaggedNotesAreQueued(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l, err := f.svc.Record(ctx, "u1", Input{FlavorID: "f1", Rating: 1, Notes: "awful service"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	items, _ := f.store.ListModerationItems(ctx, moderation.StatusOpen)
	if len(items) != 1 || items[0].ContentID != l.ID || items[0].ContentType != moderation.ContentLog {
		t.Fatalf("items = %+v", items)
	}
}

func TestService_OwnLogsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l, err := f.svc.Record(ctx, "u1", Input{FlavorID: "f1", Rating: 3})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	rating := 4
	if _, err := f.svc.Update(ctx, "intruder", l.ID, Patch{Rating: &rating}); !svcerrors.HasCode(err, svcerrors.CodeNotFound) {
		t.Fatalf("expected not found for other user, got %v", err)
	}
	if err := f.svc.Delete(ctx, "intruder", l.ID); !svcerrors.HasCode(err, svcerrors.CodeNotFound) {
		t.Fatalf("expected not found for other user, got %v", err)
	}
	updated, err := f.svc.Update(ctx, "u1", l.ID, Patch{Rating: &rating})
	if err != nil || updated.Rating != 4 {
		t.Fatalf("update = %+v %v", updated, err)
	}
	if err := f.svc.Delete(ctx, "u1", l.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestService_Summary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, r := range []int{5, 3} {
		if _, err := f.svc.Record(ctx, "u1", Input{FlavorID: "f1", Rating: r}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	sum, err := f.svc.Summary(ctx, "u1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.TotalLogs != 2 || sum.UniqueFlavors != 1 || sum.AverageRating != 4 || sum.Categories["mint"] != 1 {
		t.Fatalf("summary = %+v", sum)
	}
}
