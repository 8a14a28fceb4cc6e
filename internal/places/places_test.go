package places

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conedex/conedex/pkg/logger"
)

const searchFixture = `{"places":[{
  "id":"ChIJ123",
  "displayName":{"text":"Scoops Ahoy","languageCode":"en"},
  "formattedAddress":"1 Main St, Hawkins, IN 47000, USA",
  "addressComponents":[
    {"longText":"Hawkins","shortText":"Hawkins","types":["locality","political"]},
    {"longText":"Indiana","shortText":"IN","types":["administrative_area_level_1","political"]},
    {"longText":"47000","shortText":"47000","types":["postal_code"]},
    {"longText":"United States","shortText":"US","types":["country","political"]}
  ],
  "location":{"latitude":39.1,"longitude":-86.5},
  "rating":4.6,
  "websiteUri":"https://scoops.example",
  "photos":[{"name":"places/ChIJ123/photos/p1"},{"name":"places/ChIJ123/photos/p2"}]
}]}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := New(Config{APIKey: "key-1", BaseURL: server.URL, RequestsPerSec: 1000}, logger.Discard())
	require.NoError(t, err)
	return client
}

func TestSearchText_ParsesAndCaches(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/v1/places:searchText", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("X-Goog-Api-Key"))
		assert.True(t, strings.HasPrefix(r.Header.Get("X-Goog-FieldMask"), "places.id"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ice cream in hawkins", body["textQuery"])
		assert.NotNil(t, body["locationBias"])
		w.Write([]byte(searchFixture))
	})

	q := SearchQuery{Text: "ice cream in hawkins", Lat: 39.1, Lng: -86.5, RadiusMeters: 5000, Limit: 5}
	places, err := client.SearchText(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, places, 1)

	p := places[0]
	assert.Equal(t, "ChIJ123", p.PlaceID)
	assert.Equal(t, "Scoops Ahoy", p.Name)
	assert.Equal(t, "Hawkins", p.City)
	assert.Equal(t, "IN", p.Region)
	assert.Equal(t, "47000", p.PostalCode)
	assert.Equal(t, "US", p.Country)
	assert.InDelta(t, 39.1, p.Lat, 1e-9)
	assert.Equal(t, []string{"places/ChIJ123/photos/p1", "places/ChIJ123/photos/p2"}, p.PhotoRefs)

	_, err = client.SearchText(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second search should be served from cache")
}

func TestDetails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/places/ChIJ123", r.URL.Path)
		assert.False(t, strings.Contains(r.Header.Get("X-Goog-FieldMask"), "places."))
		w.Write([]byte(`{"id":"ChIJ123","displayName":{"text":"Scoops Ahoy"},"nationalPhoneNumber":"(555) 010-0000"}`))
	})

	p, err := client.Details(context.Background(), "ChIJ123")
	require.NoError(t, err)
	assert.Equal(t, "(555) 010-0000", p.Phone)
}

func TestDetails_UpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"status":"NOT_FOUND"}}`, http.StatusNotFound)
	})
	_, err := client.Details(context.Background(), "missing")
	assert.Error(t, err)
}

func TestPhotoURL_ResolvesWithoutKeyInURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/places/ChIJ123/photos/p1/media", r.URL.Path)
		assert.Equal(t, "400", r.URL.Query().Get("maxWidthPx"))
		assert.Equal(t, "true", r.URL.Query().Get("skipHttpRedirect"))
		assert.Empty(t, r.URL.Query().Get("key"))
		assert.Equal(t, "key-1", r.Header.Get("X-Goog-Api-Key"))
		w.Write([]byte(`{"name":"places/ChIJ123/photos/p1/media","photoUri":"https://lh3.googleusercontent.com/p/abc=w400"}`))
	})

	url, err := client.PhotoURL(context.Background(), "places/ChIJ123/photos/p1", 400)
	require.NoError(t, err)
	assert.Equal(t, "https://lh3.googleusercontent.com/p/abc=w400", url)
	assert.NotContains(t, url, "key-1")
}

func TestPhotoURL_RejectsKeyedOrEmptyResponses(t *testing.T) {
	cases := map[string]string{
		"missing uri": `{"name":"places/x/photos/p1/media"}`,
		"keyed uri":   `{"photoUri":"https://maps.example/photo?key=key-1"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			})
			_, err := client.PhotoURL(context.Background(), "places/x/photos/p1", 0)
			assert.Error(t, err)
		})
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := client.PhotoURL(context.Background(), " ", 0)
	assert.Error(t, err)
}
