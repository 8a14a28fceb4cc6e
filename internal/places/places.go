// Package places wraps the Google Places API (New) for shop discovery.
package places

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/conedex/conedex/internal/cache"
	"github.com/conedex/conedex/internal/httputil"
	"github.com/conedex/conedex/pkg/logger"
)

const (
	defaultBaseURL = "https://places.googleapis.com"
	searchTTL      = time.Hour
	maxResults     = 20
)

var placeFields = []string{
	"id", "displayName", "formattedAddress", "addressComponents", "location",
	"rating", "websiteUri", "nationalPhoneNumber", "photos",
}

// Place is the subset of a Places result ConeDex uses.
type Place struct {
	PlaceID    string   `json:"place_id"`
	Name       string   `json:"name"`
	Address    string   `json:"address"`
	City       string   `json:"city,omitempty"`
	Region     string   `json:"region,omitempty"`
	PostalCode string   `json:"postal_code,omitempty"`
	Country    string   `json:"country,omitempty"`
	Lat        float64  `json:"lat"`
	Lng        float64  `json:"lng"`
	Rating     float64  `json:"rating,omitempty"`
	Website    string   `json:"website,omitempty"`
	Phone      string   `json:"phone,omitempty"`
	PhotoRefs  []string `json:"photo_refs,omitempty"`
}

// SearchQuery describes a text search, optionally biased to a circle.
type SearchQuery struct {
	Text         string
	Lat, Lng     float64
	RadiusMeters float64
	Limit        int
}

// Config configures the client.
type Config struct {
	APIKey         string
	BaseURL        string
	RequestsPerSec float64
	Cache          cache.Cache
	HTTPClient     *http.Client
}

// Client is a paced, cached Places API client.
type Client struct {
	http    *httputil.Client
	apiKey  string
	limiter *rate.Limiter
	cache   cache.Cache
	log     *logger.Logger
}

// New creates a Places client.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GOOGLE_PLACES_API_KEY is required")
	}
	if log == nil {
		log = logger.NewDefault("places")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 5
	}
	c := cfg.Cache
	if c == nil {
		c = cache.NewMemory()
	}
	return &Client{
		http: httputil.NewClient(httputil.ClientConfig{
			BaseURL:    baseURL,
			Timeout:    15 * time.Second,
			HTTPClient: cfg.HTTPClient,
			Headers:    map[string]string{"X-Goog-Api-Key": cfg.APIKey},
		}),
		apiKey:  cfg.APIKey,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		cache:   c,
		log:     log,
	}, nil
}

// SearchText runs a text search. Results are cached for an hour.
func (c *Client) SearchText(ctx context.Context, q SearchQuery) ([]Place, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, fmt.Errorf("search text is required")
	}
	if q.Limit <= 0 || q.Limit > maxResults {
		q.Limit = maxResults
	}

	key := searchCacheKey(q)
	var cached []Place
	if found, err := c.cache.Get(ctx, key, &cached); err != nil {
		c.log.WithError(err).Warn("places cache read failed")
	} else if found {
		return cached, nil
	}

	body := map[string]interface{}{
		"textQuery":      q.Text,
		"maxResultCount": q.Limit,
	}
	if q.RadiusMeters > 0 {
		body["locationBias"] = map[string]interface{}{
			"circle": map[string]interface{}{
				"center": map[string]float64{"latitude": q.Lat, "longitude": q.Lng},
				"radius": q.RadiusMeters,
			},
		}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search: %w", err)
	}

	raw, err := c.call(ctx, http.MethodPost, "/v1/places:searchText", payload, fieldMask("places."))
	if err != nil {
		return nil, fmt.Errorf("places search: %w", err)
	}

	var out []Place
	gjson.GetBytes(raw, "places").ForEach(func(_, value gjson.Result) bool {
		out = append(out, parsePlace(value))
		return true
	})

	if err := c.cache.Set(ctx, key, out, searchTTL); err != nil {
		c.log.WithError(err).Warn("places cache write failed")
	}
	return out, nil
}

// Details fetches one place by ID.
func (c *Client) Details(ctx context.Context, placeID string) (Place, error) {
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return Place{}, fmt.Errorf("place id is required")
	}
	raw, err := c.call(ctx, http.MethodGet, "/v1/places/"+neturl.PathEscape(placeID), nil, fieldMask(""))
	if err != nil {
		return Place{}, fmt.Errorf("places details: %w", err)
	}
	place := parsePlace(gjson.ParseBytes(raw))
	if place.PlaceID == "" {
		return Place{}, fmt.Errorf("places details: response has no id")
	}
	return place, nil
}

// PhotoURL resolves a photo reference to a short-lived public image URL. The
// media endpoint is asked for JSON instead of a redirect so the API key stays
// in the request header and never appears in the returned URL.
func (c *Client) PhotoURL(ctx context.Context, photoRef string, maxWidth int) (string, error) {
	photoRef = strings.Trim(strings.TrimSpace(photoRef), "/")
	if photoRef == "" {
		return "", fmt.Errorf("photo reference is required")
	}
	if maxWidth <= 0 {
		maxWidth = 800
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	path := fmt.Sprintf("/v1/%s/media?maxWidthPx=%d&skipHttpRedirect=true", photoRef, maxWidth)
	raw, err := c.http.DoRaw(ctx, http.MethodGet, path, nil, "", nil)
	if err != nil {
		return "", fmt.Errorf("places photo: %w", err)
	}
	uri := gjson.GetBytes(raw, "photoUri").String()
	if uri == "" {
		return "", fmt.Errorf("places photo: response has no photoUri")
	}
	if strings.Contains(uri, c.apiKey) {
		return "", fmt.Errorf("places photo: refusing URL that embeds the API key")
	}
	return uri, nil
}

func (c *Client) call(ctx context.Context, method, path string, payload []byte, mask string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	extra := http.Header{}
	extra.Set("X-Goog-FieldMask", mask)
	return c.http.DoRaw(ctx, method, path, payload, "application/json", extra)
}

func fieldMask(prefix string) string {
	parts := make([]string, len(placeFields))
	for i, f := range placeFields {
		parts[i] = prefix + f
	}
	return strings.Join(parts, ",")
}

func parsePlace(v gjson.Result) Place {
	p := Place{
		PlaceID: v.Get("id").String(),
		Name:    v.Get("displayName.text").String(),
		Address: v.Get("formattedAddress").String(),
		Lat:     v.Get("location.latitude").Float(),
		Lng:     v.Get("location.longitude").Float(),
		Rating:  v.Get("rating").Float(),
		Website: v.Get("websiteUri").String(),
		Phone:   v.Get("nationalPhoneNumber").String(),
	}
	v.Get("addressComponents").ForEach(func(_, comp gjson.Result) bool {
		for _, t := range comp.Get("types").Array() {
			switch t.String() {
			case "locality":
				p.City = comp.Get("longText").String()
			case "administrative_area_level_1":
				p.Region = comp.Get("shortText").String()
			case "postal_code":
				p.PostalCode = comp.Get("longText").String()
			case "country":
				p.Country = comp.Get("shortText").String()
			}
		}
		return true
	})
	for _, photo := range v.Get("photos.#.name").Array() {
		p.PhotoRefs = append(p.PhotoRefs, photo.String())
	}
	return p
}

func searchCacheKey(q SearchQuery) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%.5f|%.5f|%.0f|%d", strings.ToLower(q.Text), q.Lat, q.Lng, q.RadiusMeters, q.Limit)))
	return "places:search:" + hex.EncodeToString(sum[:])
}
