package database

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	neturl "net/url"

	"github.com/conedex/conedex/internal/httputil"
)

// banForever is the ban duration Supabase accepts for an indefinite ban.
const banForever = "876000h"

// DeleteUser removes the auth user. A user that no longer exists is not an
// error.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	err := c.http.Do(ctx, http.MethodDelete, "/auth/v1/admin/users/"+neturl.PathEscape(userID), nil, nil, nil)
	var se *httputil.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete auth user: %w", err)
	}
	return nil
}

// BanUser blocks sign-in for the auth user.
func (c *Client) BanUser(ctx context.Context, userID string) error {
	return c.setBan(ctx, userID, banForever)
}

// UnbanUser lifts a ban.
func (c *Client) UnbanUser(ctx context.Context, userID string) error {
	return c.setBan(ctx, userID, "none")
}

func (c *Client) setBan(ctx context.Context, userID, duration string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	body := map[string]string{"ban_duration": duration}
	if err := c.http.Do(ctx, http.MethodPut, "/auth/v1/admin/users/"+neturl.PathEscape(userID), body, nil, nil); err != nil {
		return fmt.Errorf("update auth user ban: %w", err)
	}
	return nil
}
