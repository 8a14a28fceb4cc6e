// Package middleware provides HTTP middleware for the ConeDex API
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/conedex/conedex/internal/errors"
	internalhttputil "github.com/conedex/conedex/internal/httputil"
	"github.com/conedex/conedex/internal/logging"
	"github.com/conedex/conedex/pkg/logger"
)

// Claims represents the Supabase access token claims the API relies on.
// The application role lives on the profile, not in the token.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity is what the API knows about an authenticated caller beyond the
// token itself.
type Identity struct {
	Role      string
	Suspended bool
}

// IdentityResolver maps a verified token subject onto an application
// identity, creating the profile on first sight.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, userID, email string) (Identity, error)
}

// AuthMiddleware provides JWT authentication
type AuthMiddleware struct {
	secret   []byte
	resolver IdentityResolver
	logger   *logger.Logger
}

// NewAuthMiddleware creates a new authentication middleware. resolver may be
// nil, in which case callers carry no role.
func NewAuthMiddleware(secret string, resolver IdentityResolver, log *logger.Logger) *AuthMiddleware {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &AuthMiddleware{
		secret:   []byte(secret),
		resolver: resolver,
		logger:   log,
	}
}

// Handler rejects requests without a valid bearer token.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := extractToken(r)
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		ctx, err := m.authenticate(r.Context(), tokenString)
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Optional attaches the caller's identity when a valid token is present and
// otherwise lets the request through anonymously.
func (m *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := extractToken(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx, err := m.authenticate(r.Context(), tokenString)
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Debug("Ignoring invalid optional token")
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) authenticate(ctx context.Context, tokenString string) (context.Context, error) {
	claims, err := m.validateToken(tokenString)
	if err != nil {
		m.logger.WithContext(ctx).WithError(err).Warn("Token validation failed")
		return nil, err
	}

	ctx = logging.WithUserID(ctx, claims.Subject)
	ctx = logging.WithEmail(ctx, claims.Email)

	if m.resolver != nil {
		identity, err := m.resolver.ResolveIdentity(ctx, claims.Subject, claims.Email)
		if err != nil {
			return nil, err
		}
		if identity.Suspended {
			return nil, errors.Forbidden("Account suspended")
		}
		ctx = logging.WithRole(ctx, identity.Role)
	}

	m.logger.WithContext(ctx).Debug("Authentication successful")
	return ctx, nil
}

// validateToken validates a JWT token and returns claims
func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.InvalidToken(nil).WithDetails("method", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithExpirationRequired())

	if err != nil {
		return nil, errors.InvalidToken(err)
	}

	if !token.Valid {
		return nil, errors.InvalidToken(nil)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "invalid claims type")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "missing subject")
	}

	return claims, nil
}

// extractToken reads the bearer token from the Authorization header, falling
// back to the access_token query parameter browsers use for websockets.
func extractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if token := r.URL.Query().Get("access_token"); token != "" {
			return token, nil
		}
		return "", errors.Unauthorized("Missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errors.Unauthorized("Invalid Authorization header format")
	}
	return strings.TrimSpace(parts[1]), nil
}

// respondError sends an error response
func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("Authentication failed", err)
	}

	internalhttputil.WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)

	m.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": serviceErr.HTTPStatus,
	}).Warn("Authentication failed")
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// GetUserRole extracts user role from context
func GetUserRole(ctx context.Context) string {
	return logging.GetRole(ctx)
}

// RequireRole lets through only callers whose role is one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetUserID(r.Context()) == "" {
				internalhttputil.WriteError(w, r, errors.Unauthorized("Authentication required"))
				return
			}
			if !allowed[GetUserRole(r.Context())] {
				internalhttputil.WriteError(w, r, errors.Forbidden("Insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
