// Package logging carries request-scoped identity and tracing values through
// context.Context.
package logging

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	// TraceIDKey holds the request trace identifier.
	TraceIDKey contextKey = "trace_id"
	// UserIDKey holds the authenticated user identifier.
	UserIDKey contextKey = "user_id"
	// RoleKey holds the authenticated user's application role.
	RoleKey contextKey = "role"
	// EmailKey holds the authenticated user's email claim.
	EmailKey contextKey = "email"
)

// NewTraceID generates a fresh trace identifier.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTraceID stores traceID in ctx. Empty values leave ctx untouched.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns the trace identifier, if any.
func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

// WithUserID stores the authenticated user ID.
func WithUserID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID returns the authenticated user ID, if any.
func GetUserID(ctx context.Context) string {
	return stringValue(ctx, UserIDKey)
}

// WithRole stores the caller's role.
func WithRole(ctx context.Context, role string) context.Context {
	if role == "" {
		return ctx
	}
	return context.WithValue(ctx, RoleKey, role)
}

// GetRole returns the caller's role, if any.
func GetRole(ctx context.Context) string {
	return stringValue(ctx, RoleKey)
}

// WithEmail stores the caller's email claim.
func WithEmail(ctx context.Context, email string) context.Context {
	if email == "" {
		return ctx
	}
	return context.WithValue(ctx, EmailKey, email)
}

// GetEmail returns the caller's email claim, if any.
func GetEmail(ctx context.Context) string {
	return stringValue(ctx, EmailKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
