package flavors

import (
	"context"
	"strings"
	"testing"

	"github.com/conedex/conedex/internal/app/domain/flavor"
	"github.com/conedex/conedex/internal/app/domain/moderation"
	"github.com/conedex/conedex/internal/app/domain/profile"
	"github.com/conedex/conedex/internal/app/domain/shop"
	modsvc "github.com/conedex/conedex/internal/app/services/moderation"
	"github.com/conedex/conedex/internal/app/storage/memory"
	svcerrors "github.com/conedex/conedex/internal/errors"
	"github.com/conedex/conedex/pkg/logger"
)

// flaggingScreener flags any text containing a blocked word.
type flaggingScreener struct {
	*modsvc.Service
	blocked string
}

func (f flaggingScreener) Check(_ context.Context, text string) moderation.Verdict {
	if f.blocked != "" && strings.Contains(strings.ToLower(text), f.blocked) {
		return moderation.Verdict{Flagged: true, Categories: []string{"harassment"}, Score: 0.8}
	}
	return moderation.Verdict{}
}

var (
	explorer = profile.Actor{ID: "u1", Role: profile.RoleExplorer}
	owner    = profile.Actor{ID: "owner", Role: profile.RoleShopOwner}
	admin    = profile.Actor{ID: "admin", Role: profile.RoleAdmin}
)

func newService(t *testing.T, blocked string) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	ctx := context.Background()
	for _, sh := range []shop.Shop{
		{ID: "s1", Name: "Scoops", Address: "1 Main", Status: shop.StatusActive, OwnerID: "owner"},
		{ID: "closed", Name: "Gone", Address: "2 Main", Status: shop.StatusClosed},
	} {
		if _, err := store.CreateShop(ctx, sh); err != nil {
			t.Fatalf("create shop: %v", err)
		}
	}
	mod := modsvc.New(store, store, store, store, modsvc.Providers{}, nil, logger.Discard())
	return New(store, store, flaggingScreener{Service: mod, blocked: blocked}, logger.Discard()), store
}

func TestService_CreateDefaultsCategory(t *testing.T) {
	svc, _ := newService(t, "")
	f, err := svc.Create(context.Background(), explorer, "s1", Input{Name: "  Lavender Honey ", Tags: []string{"Floral", "floral"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if f.Name != "Lavender Honey" || f.Category != flavor.CategoryOther || f.Status != flavor.StatusAvailable {
		t.Fatalf("unexpected flavor %+v", f)
	}
	if f.Moderation != flavor.ModerationApproved || len(f.Tags) != 1 || f.Tags[0] != "floral" {
		t.Fatalf("unexpected flavor %+v", f)
	}
}

func TestService_CreateValidation(t *testing.T) {
	svc, _ := newService(t, "")
	ctx := context.Background()

	if _, err := svc.Create(ctx, explorer, "closed", Input{Name: "Mint"}); !svcerrors.HasCode(err, svcerrors.CodeValidation) {
		t.Fatalf("closed shop: expected validation, got %v", err)
	}
	if _, err := svc.Create(ctx, explorer, "s1", Input{Name: "   "}); !svcerrors.HasCode(err, svcerrors.CodeValidation) {
		t.Fatalf("blank name: expected validation, got %v", err)
	}
	if _, err := svc.Create(ctx, explorer, "s1", Input{Name: "Mint", Category: "pizza"}); !svcerrors.HasCode(err, svcerrors.CodeValidation) {
		t.Fatalf("bad category: expected validation, got %v", err)
	}
	if _, err := svc.Create(ctx, explorer, "missing", Input{Name: "Mint"}); err == nil {
		t.Fatal("expected missing shop to fail")
	}
}

func TestService_CreateRejectsDuplicate(t *testing.T) {
	svc, _ := newService(t, "")
	ctx := context.Background()

	first, err := svc.Create(ctx, explorer, "s1", Input{Name: "Cookies & Cream", Category: "cookie"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = svc.Create(ctx, explorer, "s1", Input{Name: "cookies cream"})
	if !svcerrors.HasCode(err, svcerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	se := svcerrors.GetServiceError(err)
	if se.Details["existing_id"] != first.ID {
		t.Fatalf("details = %v", se.Details)
	}
}

func TestService_FlaggedFlavorIsPending(t *testing.T) {
	svc, store := newService(t, "nasty")
	ctx := context.Background()

	f, err := svc.Create(ctx, explorer, "s1", Input{Name: "Nasty Swirl", Description: "truly nasty", Category: "other"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if f.Moderation != flavor.ModerationPending {
		t.Fatalf("moderation = %s", f.Moderation)
	}
	items, _ := store.ListModerationItems(ctx, moderation.StatusOpen)
	if len(items) != 1 || items[0].ContentID != f.ID || items[0].ContentType != moderation.ContentFlavor {
		t.Fatalf("moderation items = %+v", items)
	}

	listed, _ := svc.ListByShop(ctx, "s1", false)
	if len(listed) != 0 {
		t.Fatalf("pending flavor should be hidden, got %+v", listed)
	}

	// The creator may fix a pending flavor.
	name := "Nice Swirl"
	desc := "truly lovely"
	if _, err := svc.Update(ctx, explorer, f.ID, Patch{Name: &name, Description: &desc}); err != nil {
		t.Fatalf("creator update: %v", err)
	}
}

func TestService_UpdateAndRetirePermissions(t *testing.T) {
	svc, _ := newService(t, "")
	ctx := context.Background()

	f, err := svc.Create(ctx, explorer, "s1", Input{Name: "Pistachio", Category: "nut"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	seasonal := flavor.StatusSeasonal
	if _, err := svc.Update(ctx, explorer, f.ID, Patch{Status: &seasonal}); !svcerrors.HasCode(err, svcerrors.CodeForbidden) {
		t.Fatalf("explorer update: expected forbidden, got %v", err)
	}
	updated, err := svc.Update(ctx, owner, f.ID, Patch{Status: &seasonal})
	if err != nil || updated.Status != flavor.StatusSeasonal {
		t.Fatalf("owner update: %+v %v", updated, err)
	}
	if _, err := svc.Retire(ctx, explorer, f.ID); !svcerrors.HasCode(err, svcerrors.CodeForbidden) {
		t.Fatalf("explorer retire: expected forbidden, got %v", err)
	}
	retired, err := svc.Retire(ctx, admin, f.ID)
	if err != nil || retired.Status != flavor.StatusRetired {
		t.Fatalf("admin retire: %+v %v", retired, err)
	}

	listed, _ := svc.ListByShop(ctx, "s1", false)
	if len(listed) != 0 {
		t.Fatalf("retired flavor listed: %+v", listed)
	}
	listed, _ = svc.ListByShop(ctx, "s1", true)
	if len(listed) != 1 {
		t.Fatalf("includeRetired = %+v", listed)
	}
}

func TestService_UpdateCategoryStaysInCatalogue(t *testing.T) {
	svc, store := newService(t, "")
	ctx := context.Background()

	f, err := svc.Create(ctx, explorer, "s1", Input{Name: "Pistachio", Category: "nut"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, cleared := range []string{"", "   "} {
		category := cleared
		updated, err := svc.Update(ctx, owner, f.ID, Patch{Category: &category})
		if err != nil {
			t.Fatalf("update category %q: %v", cleared, err)
		}
		if updated.Category != flavor.CategoryOther {
			t.Fatalf("category %q stored as %q", cleared, updated.Category)
		}
	}
	unknown := "moon-rock"
	if _, err := svc.Update(ctx, owner, f.ID, Patch{Category: &unknown}); !svcerrors.HasCode(err, svcerrors.CodeValidation) {
		t.Fatalf("unknown category: expected validation, got %v", err)
	}
	stored, err := store.GetFlavor(ctx, f.ID)
	if err != nil || !flavor.ValidCategory(stored.Category) {
		t.Fatalf("stored flavor %+v %v", stored, err)
	}
}

func TestService_Search(t *testing.T) {
	svc, _ := newService(t, "")
	ctx := context.Background()

	for _, in := range []Input{{Name: "Dark Chocolate", Category: "chocolate"}, {Name: "Milk Chocolate", Category: "chocolate"}, {Name: "Lemon", Category: "sorbet"}} {
		if _, err := svc.Create(ctx, explorer, "s1", in); err != nil {
			t.Fatalf("create %s: %v", in.Name, err)
		}
	}
	got, err := svc.Search(ctx, "chocolate", "", 0, 0)
	if err != nil || len(got) != 2 {
		t.Fatalf("search = %+v %v", got, err)
	}
	got, _ = svc.Search(ctx, "", "sorbet", 0, 0)
	if len(got) != 1 || got[0].Name != "Lemon" {
		t.Fatalf("category search = %+v", got)
	}
	if _, err := svc.Search(ctx, "", "pizza", 0, 0); !svcerrors.HasCode(err, svcerrors.CodeValidation) {
		t.Fatalf("expected validation, got %v", err)
	}
}
