package importer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/conedex/conedex/internal/app/domain/shop"
	"github.com/conedex/conedex/internal/app/storage/memory"
	svcerrors "github.com/conedex/conedex/internal/errors"
	"github.com/conedex/conedex/internal/places"
	"github.com/conedex/conedex/pkg/logger"
)

type fakePlaces struct {
	search  []places.Place
	details map[string]places.Place
}

func (f *fakePlaces) SearchText(context.Context, places.SearchQuery) ([]places.Place, error) {
	return f.search, nil
}

func (f *fakePlaces) Details(_ context.Context, id string) (places.Place, error) {
	d, ok := f.details[id]
	if !ok {
		return places.Place{}, errors.New("details unavailable")
	}
	return d, nil
}

func (f *fakePlaces) PhotoURL(_ context.Context, ref string, _ int) (string, error) {
	if ref == "broken-ref" {
		return "", errors.New("photo unavailable")
	}
	return "https://photos.example/" + ref, nil
}

func TestService_ImportFromPlaces(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><meta name="description" content="  Small-batch   gelato since 1982. "></head></html>`))
	}))
	defer site.Close()

	store := memory.New()
	ctx := context.Background()
	if _, err := store.CreateShop(ctx, shop.Shop{Name: "Known", Address: "1 Old Rd", PlaceID: "p-known", Status: shop.StatusActive}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.CreateShop(ctx, shop.Shop{Name: "Twin Scoops", Address: "5 Elm St.", Status: shop.StatusActive}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	fake := &fakePlaces{
		search: []places.Place{
			{PlaceID: "p-known", Name: "Known"},
			{PlaceID: "p-new", Name: "Gelato Uno"},
			{PlaceID: "p-twin", Name: "Twin Scoops"},
			{PlaceID: "p-broken", Name: "Broken"},
		},
		details: map[string]places.Place{
			"p-new":  {PlaceID: "p-new", Name: "Gelato Uno", Address: "9 Via Roma", City: "Boston", Lat: 42.36, Lng: -71.06, Website: site.URL, PhotoRefs: []string{"ref1", "ref2"}},
			"p-twin": {PlaceID: "p-twin", Name: "Twin Scoops", Address: "5 Elm St"},
		},
	}
	svc := New(store, fake, NewSiteScraper(site.Client()), logger.Discard())

	res, err := svc.ImportFromPlaces(ctx, Query{Text: "gelato in boston"})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Imported != 1 || res.Skipped != 2 || res.Failed != 1 || len(res.Errors) != 1 {
		t.Fatalf("result = %+v", res)
	}

	imported, err := store.GetShopByPlaceID(ctx, "p-new")
	if err != nil {
		t.Fatalf("imported shop: %v", err)
	}
	if imported.Status != shop.StatusActive || imported.Verified {
		t.Fatalf("imported status = %s verified=%v", imported.Status, imported.Verified)
	}
	if imported.Description != "Small-batch gelato since 1982." {
		t.Fatalf("description = %q", imported.Description)
	}
	if len(imported.PhotoURLs) != 1 || imported.PhotoURLs[0] != "https://photos.example/ref1" {
		t.Fatalf("photos = %v", imported.PhotoURLs)
	}

	again, err := svc.ImportFromPlaces(ctx, Query{Text: "gelato in boston"})
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if again.Imported != 0 {
		t.Fatalf("second import should skip everything, got %+v", again)
	}
}

func TestService_ImportKeepsShopWhenPhotoFails(t *testing.T) {
	store := memory.New()
	fake := &fakePlaces{
		search:  []places.Place{{PlaceID: "p-1", Name: "Frost"}},
		details: map[string]places.Place{"p-1": {PlaceID: "p-1", Name: "Frost", Address: "2 Ice Ln", PhotoRefs: []string{"broken-ref"}}},
	}
	res, err := New(store, fake, nil, logger.Discard()).ImportFromPlaces(context.Background(), Query{Text: "frost"})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Imported != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}
	sh, err := store.GetShopByPlaceID(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("imported shop: %v", err)
	}
	if len(sh.PhotoURLs) != 0 {
		t.Fatalf("photos = %v", sh.PhotoURLs)
	}
}

func TestService_ImportedPhotoNeverCarriesAPIKey(t *testing.T) {
	const apiKey = "SECRET-GOOGLE-KEY"
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/places:searchText":
			w.Write([]byte(`{"places":[{"id":"p1","displayName":{"text":"Cone Zone"}}]}`))
		case r.URL.Path == "/v1/places/p1":
			w.Write([]byte(`{"id":"p1","displayName":{"text":"Cone Zone"},"formattedAddress":"3 Waffle Way","photos":[{"name":"places/p1/photos/r1"}]}`))
		case strings.HasSuffix(r.URL.Path, "/media"):
			if r.Header.Get("X-Goog-Api-Key") != apiKey {
				http.Error(w, "missing key", http.StatusForbidden)
				return
			}
			w.Write([]byte(`{"photoUri":"https://lh3.googleusercontent.com/places/r1=w1200"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer upstream.Close()

	client, err := places.New(places.Config{APIKey: apiKey, BaseURL: upstream.URL, RequestsPerSec: 1000}, logger.Discard())
	if err != nil {
		t.Fatalf("places client: %v", err)
	}
	store := memory.New()
	if _, err := New(store, client, nil, logger.Discard()).ImportFromPlaces(context.Background(), Query{Text: "cones"}); err != nil {
		t.Fatalf("import: %v", err)
	}

	sh, err := store.GetShopByPlaceID(context.Background(), "p1")
	if err != nil {
		t.Fatalf("imported shop: %v", err)
	}
	if len(sh.PhotoURLs) != 1 || sh.PhotoURLs[0] != "https://lh3.googleusercontent.com/places/r1=w1200" {
		t.Fatalf("photos = %v", sh.PhotoURLs)
	}
	for _, u := range sh.PhotoURLs {
		if strings.Contains(u, apiKey) {
			t.Fatalf("photo url leaks the api key: %s", u)
		}
	}
}

func TestService_ImportRequiresProvider(t *testing.T) {
	svc := New(memory.New(), nil, nil, logger.Discard())
	if _, err := svc.ImportFromPlaces(context.Background(), Query{Text: "x"}); !svcerrors.HasCode(err, svcerrors.CodeUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	svc = New(memory.New(), &fakePlaces{}, nil, logger.Discard())
	if _, err := svc.ImportFromPlaces(context.Background(), Query{}); !svcerrors.HasCode(err, svcerrors.CodeValidation) {
		t.Fatalf("expected validation, got %v", err)
	}
}

func TestSiteScraper_FallsBackToOpenGraph(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><meta property="og:description" content="Soft serve by the sea"></head><body></body></html>`))
	}))
	defer site.Close()

	desc, err := NewSiteScraper(site.Client()).Description(context.Background(), site.URL)
	if err != nil || desc != "Soft serve by the sea" {
		t.Fatalf("description = %q err=%v", desc, err)
	}
	if _, err := NewSiteScraper(nil).Description(context.Background(), "ftp://nope"); err == nil {
		t.Fatal("expected unsupported scheme error")
	}
}
