// Package database provides the Supabase storage and auth-admin integration.
package database

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	neturl "net/url"
	"path"
	"strings"
	"time"

	"github.com/conedex/conedex/internal/httputil"
)

// ErrNotConfigured is returned by operations that need Supabase credentials
// when none were supplied.
var ErrNotConfigured = errors.New("supabase is not configured")

// Client wraps the Supabase REST, storage and auth admin APIs.
type Client struct {
	url        string
	serviceKey string
	bucket     string
	http       *httputil.Client
}

// Config holds Supabase configuration.
type Config struct {
	URL        string
	ServiceKey string
	Bucket     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewClient creates a new Supabase client.
func NewClient(cfg Config) (*Client, error) {
	url := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if url == "" {
		return nil, fmt.Errorf("SUPABASE_URL is required")
	}
	parsed, err := neturl.Parse(url)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("SUPABASE_URL must be a valid URL")
	}
	if parsed.User != nil {
		return nil, fmt.Errorf("SUPABASE_URL must not include user info")
	}
	if cfg.ServiceKey == "" {
		return nil, fmt.Errorf("SUPABASE_SERVICE_KEY is required")
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "shop-photos"
	}

	return &Client{
		url:        url,
		serviceKey: cfg.ServiceKey,
		bucket:     bucket,
		http: httputil.NewClient(httputil.ClientConfig{
			BaseURL:    url,
			Timeout:    cfg.Timeout,
			MaxRetries: 2,
			HTTPClient: cfg.HTTPClient,
			Headers: map[string]string{
				"apikey":        cfg.ServiceKey,
				"Authorization": "Bearer " + cfg.ServiceKey,
			},
		}),
	}, nil
}

// Bucket returns the storage bucket name.
func (c *Client) Bucket() string { return c.bucket }

// Ping checks that the REST endpoint answers with the configured key.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.http.DoRaw(ctx, http.MethodGet, "/rest/v1/", nil, "", nil)
	return err
}

// RPC calls a Postgres function exposed through PostgREST.
func (c *Client) RPC(ctx context.Context, fn string, args, target interface{}) error {
	if fn == "" {
		return fmt.Errorf("function name is required")
	}
	extra := http.Header{}
	extra.Set("Prefer", "return=representation")
	return c.http.Do(ctx, http.MethodPost, "/rest/v1/rpc/"+neturl.PathEscape(fn), args, target, extra)
}

func objectPath(key string) string {
	clean := path.Clean("/" + key)
	return strings.TrimPrefix(clean, "/")
}
