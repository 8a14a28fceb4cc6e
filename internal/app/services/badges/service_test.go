package badges

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/conedex/conedex/internal/app/domain/badge"
	"github.com/conedex/conedex/internal/app/domain/flavor"
	"github.com/conedex/conedex/internal/app/domain/notification"
	"github.com/conedex/conedex/internal/app/domain/profile"
	"github.com/conedex/conedex/internal/app/domain/shop"
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

func newService(t *testing.T) (*Service, *memory.Store, *recordingNotifier) {
	t.Helper()
	store := memory.New()
	notifier := &recordingNotifier{}
	if _, err := store.CreateProfile(context.Background(), profile.Profile{ID: "u1", Status: profile.StatusActive}); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return New(store, store, store, store, notifier, logger.Discard()), store, notifier
}

func TestService_CreateValidation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	cases := []badge.Badge{
		{Criteria: badge.Criteria{Kind: badge.CriteriaManual}},
		{Name: "x", Criteria: badge.Criteria{Kind: "bogus"}},
		{Name: "x", Criteria: badge.Criteria{Kind: badge.CriteriaFlavorsLogged}},
		{Name: "x", Criteria: badge.Criteria{Kind: badge.CriteriaCategoryTried, Threshold: 1, Category: "pizza"}},
	}
	for i, c := range cases {
		if _, err := svc.Create(ctx, c); !svcerrors.HasCode(err, svcerrors.CodeValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestService_AwardIsIdempotent(t *testing.T) {
	svc, store, notifier := newService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, badge.Badge{Name: "Founder", Points: 25, Criteria: badge.Criteria{Kind: badge.CriteriaManual}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	first, err := svc.Award(ctx, "u1", b.ID, "early supporter")
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	second, err := svc.Award(ctx, "u1", b.ID, "again")
	if err != nil {
		t.Fatalf("second award: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same award, got %s and %s", first.ID, second.ID)
	}
	p, _ := store.GetProfile(ctx, "u1")
	if p.Points != 25 {
		t.Fatalf("points = %d, want 25", p.Points)
	}
	if len(notifier.types) != 1 || notifier.types[0] != notification.TypeBadgeAwarded {
		t.Fatalf("notifications = %v", notifier.types)
	}

	views, err := svc.ListForUser(ctx, "u1")
	if err != nil || len(views) != 1 || views[0].Badge.Name != "Founder" {
		t.Fatalf("views = %+v err = %v", views, err)
	}
}

func TestService_EvaluateAwardsMetCriteria(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	sh, _ := store.CreateShop(ctx, shop.Shop{Name: "S", Status: shop.StatusActive})
	mint, _ := store.CreateFlavor(ctx, flavor.Flavor{ShopID: sh.ID, Name: "Mint", Category: "mint", Moderation: flavor.ModerationApproved})
	choc, _ := store.CreateFlavor(ctx, flavor.Flavor{ShopID: sh.ID, Name: "Choc", Category: "chocolate", Moderation: flavor.ModerationApproved})
	now := time.Now().UTC()
	_, _ = store.CreateLog(ctx, flavor.Log{UserID: "u1", FlavorID: mint.ID, ShopID: sh.ID, Rating: 5, VisitedAt: now})
	_, _ = store.CreateLog(ctx, flavor.Log{UserID: "u1", FlavorID: choc.ID, ShopID: sh.ID, Rating: 4, VisitedAt: now})

	two, _ := svc.Create(ctx, badge.Badge{Name: "Two Scoops", Criteria: badge.Criteria{Kind: badge.CriteriaFlavorsLogged, Threshold: 2}})
	minty, _ := svc.Create(ctx, badge.Badge{Name: "Minty", Criteria: badge.Criteria{Kind: badge.CriteriaCategoryTried, Threshold: 1, Category: "mint"}})
	_, _ = svc.Create(ctx, badge.Badge{Name: "Explorer", Criteria: badge.Criteria{Kind: badge.CriteriaShopsVisited, Threshold: 3}})
	_, _ = svc.Create(ctx, badge.Badge{Name: "Hand picked", Criteria: badge.Criteria{Kind: badge.CriteriaManual}})

	awarded, err := svc.Evaluate(ctx, "u1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	got := map[string]bool{}
	for _, a := range awarded {
		got[a.BadgeID] = true
	}
	if len(awarded) != 2 || !got[two.ID] || !got[minty.ID] {
		t.Fatalf("awarded = %+v", awarded)
	}

	again, err := svc.Evaluate(ctx, "u1")
	if err != nil || len(again) != 0 {
		t.Fatalf("second evaluate = %+v err = %v", again, err)
	}
}
