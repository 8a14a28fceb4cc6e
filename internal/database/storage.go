package database

import (
	"context"
	"fmt"
	"net/http"
)

// Upload stores body at key in the configured bucket and returns the public
// URL of the object.
func (c *Client) Upload(ctx context.Context, key, contentType string, body []byte) (string, error) {
	key = objectPath(key)
	if key == "" || key == "." {
		return "", fmt.Errorf("object key is required")
	}
	extra := http.Header{}
	extra.Set("x-upsert", "false")
	extra.Set("Cache-Control", "max-age=3600")

	endpoint := fmt.Sprintf("/storage/v1/object/%s/%s", c.bucket, key)
	if _, err := c.http.DoRaw(ctx, http.MethodPost, endpoint, body, contentType, extra); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return c.PublicURL(key), nil
}

// PublicURL returns the public URL for key in the configured bucket.
func (c *Client) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.url, c.bucket, objectPath(key))
}

// Remove deletes objects by key.
func (c *Client) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixes := make([]string, 0, len(keys))
	for _, key := range keys {
		prefixes = append(prefixes, objectPath(key))
	}
	endpoint := fmt.Sprintf("/storage/v1/object/%s", c.bucket)
	if err := c.http.Do(ctx, http.MethodDelete, endpoint, map[string][]string{"prefixes": prefixes}, nil, nil); err != nil {
		return fmt.Errorf("remove objects: %w", err)
	}
	return nil
}
