package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/conedex/conedex/internal/app/domain/flavor"
	"github.com/conedex/conedex/internal/app/domain/newsletter"
	"github.com/conedex/conedex/internal/app/domain/profile"
	"github.com/conedex/conedex/internal/app/domain/quest"
	"github.com/conedex/conedex/internal/app/domain/shop"
	"github.com/conedex/conedex/internal/app/storage"
)

func TestStore_ProfileUsernameConflict(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.CreateProfile(ctx, profile.Profile{ID: "u1", Username: "Cone"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := store.CreateProfile(ctx, profile.Profile{ID: "u2", Username: "cone"})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := store.GetProfile(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStore_ShopFiltersAndPlaceIDConflict(t *testing.T) {
	store := New()
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.SetClock(func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) })

	a, _ := store.CreateShop(ctx, shop.Shop{Name: "Alpha", PlaceID: "p1", Status: shop.StatusActive, Latitude: 10, Longitude: 10})
	_, _ = store.CreateShop(ctx, shop.Shop{Name: "Beta", Status: shop.StatusPending, Latitude: 50, Longitude: 50})

	if _, err := store.CreateShop(ctx, shop.Shop{Name: "Dup", PlaceID: "p1"}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	active, _ := store.ListShops(ctx, shop.Filter{Statuses: []shop.Status{shop.StatusActive}})
	if len(active) != 1 || active[0].ID != a.ID {
		t.Fatalf("active = %+v", active)
	}

	boxed, _ := store.ListShops(ctx, shop.Filter{Bounds: &shop.Bounds{MinLat: 40, MaxLat: 60, MinLng: 40, MaxLng: 60}})
	if len(boxed) != 1 || boxed[0].Name != "Beta" {
		t.Fatalf("boxed = %+v", boxed)
	}

	all, _ := store.ListShops(ctx, shop.Filter{})
	if len(all) != 2 || all[0].Name != "Beta" {
		t.Fatalf("expected newest first, got %+v", all)
	}
}

func TestStore_ParticipationUniqueness(t *testing.T) {
	store := New()
	ctx := context.Background()

	q, _ := store.CreateQuest(ctx, quest.Quest{Title: "q", Active: true})
	if _, err := store.CreateParticipation(ctx, quest.Participation{UserID: "u1", QuestID: q.ID}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := store.CreateParticipation(ctx, quest.Participation{UserID: "u1", QuestID: q.ID}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := store.DeleteQuest(ctx, q.ID); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected conflict deleting quest with participants, got %v", err)
	}
}

func TestStore_TransitionNewsletter(t *testing.T) {
	store := New()
	ctx := context.Background()

	n, _ := store.CreateNewsletter(ctx, newsletter.Newsletter{Subject: "s", Status: newsletter.StatusDraft})
	if _, err := store.TransitionNewsletter(ctx, n.ID, []newsletter.Status{newsletter.StatusDraft}, newsletter.StatusSending); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if _, err := store.TransitionNewsletter(ctx, n.ID, []newsletter.Status{newsletter.StatusDraft}, newsletter.StatusSending); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestStore_LogEntriesAndAnalytics(t *testing.T) {
	store := New()
	ctx := context.Background()

	sh, _ := store.CreateShop(ctx, shop.Shop{Name: "S", Status: shop.StatusActive})
	f1, _ := store.CreateFlavor(ctx, flavor.Flavor{ShopID: sh.ID, Name: "Choc", Category: "chocolate", Moderation: flavor.ModerationApproved})
	f2, _ := store.CreateFlavor(ctx, flavor.Flavor{ShopID: sh.ID, Name: "Lemon", Category: "sorbet", Moderation: flavor.ModerationApproved})

	day := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	_, _ = store.CreateLog(ctx, flavor.Log{UserID: "u1", FlavorID: f1.ID, ShopID: sh.ID, Rating: 5, VisitedAt: day})
	_, _ = store.CreateLog(ctx, flavor.Log{UserID: "u2", FlavorID: f1.ID, ShopID: sh.ID, Rating: 3, VisitedAt: day.Add(24 * time.Hour)})
	_, _ = store.CreateLog(ctx, flavor.Log{UserID: "u1", FlavorID: f2.ID, ShopID: sh.ID, Rating: 4, VisitedAt: day.Add(-48 * time.Hour)})

	entries, _ := store.ListLogEntries(ctx, "u1", day)
	if len(entries) != 1 || entries[0].Category != "chocolate" {
		t.Fatalf("entries = %+v", entries)
	}

	top, _ := store.TopFlavors(ctx, 10, time.Time{})
	if len(top) != 2 || top[0].FlavorID != f1.ID || top[0].AverageRating != 4 || top[0].ShopName != "S" {
		t.Fatalf("top = %+v", top)
	}

	stats, _ := store.ShopStats(ctx, sh.ID)
	if stats.TotalLogs != 3 || stats.UniqueVisitors != 2 || stats.AverageRating != 4 || stats.Ratings[5] != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	daily, _ := store.DailyLogCounts(ctx, day)
	if len(daily) != 2 || daily[0].Day != "2024-06-01" {
		t.Fatalf("daily = %+v", daily)
	}
}
