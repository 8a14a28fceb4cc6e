package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	app "github.com/conedex/conedex/internal/app"
	"github.com/conedex/conedex/internal/app/domain/profile"
	"github.com/conedex/conedex/internal/app/metrics"
	"github.com/conedex/conedex/internal/app/storage"
	svcerrors "github.com/conedex/conedex/internal/errors"
	"github.com/conedex/conedex/internal/httputil"
	"github.com/conedex/conedex/internal/middleware"
	"github.com/conedex/conedex/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Options configures the HTTP surface.
type Options struct {
	// Auth verifies bearer tokens. Required.
	Auth *middleware.AuthMiddleware
	// RateLimiter throttles API calls per user or client IP. Optional.
	RateLimiter *middleware.RateLimiter
	CORSOrigins []string
	// AuditFile, when set, receives admin mutations as JSON lines.
	AuditFile string
	AuditSize int
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	auth  *middleware.AuthMiddleware
	limit func(http.Handler) http.Handler
	audit *auditLog
	log   *logger.Logger
}

// NewHandler returns a router exposing the REST API, health and metrics.
func NewHandler(application *app.Application, opts Options, log *logger.Logger) (http.Handler, error) {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	if opts.Auth == nil {
		return nil, fmt.Errorf("auth middleware is required")
	}
	var sink auditSink
	if opts.AuditFile != "" {
		file, err := newFileAuditSink(opts.AuditFile)
		if err != nil {
			return nil, fmt.Errorf("open audit file: %w", err)
		}
		sink = file
	}
	h := &handler{
		app:   application,
		auth:  opts.Auth,
		limit: func(next http.Handler) http.Handler { return next },
		audit: newAuditLog(opts.AuditSize, sink),
		log:   log,
	}
	if opts.RateLimiter != nil {
		h.limit = opts.RateLimiter.Handler
	}

	r := mux.NewRouter()
	r.Use(metrics.InstrumentHandler)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorResponse(w, r, http.StatusNotFound, string(svcerrors.CodeNotFound), "Route not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorResponse(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	h.registerPublic(v1)
	h.registerUser(v1)

	admin := v1.PathPrefix("/admin").Subrouter()
	admin.Use(opts.Auth.Handler, middleware.RequireRole(string(profile.RoleAdmin)), h.limit, h.auditMiddleware)
	h.registerAdmin(admin)

	// Preflight requests match no route, so CORS and logging sit outside
	// the router.
	var out http.Handler = r
	out = middleware.NewCORSMiddleware(opts.CORSOrigins).Handler(out)
	out = middleware.LoggingMiddleware(log)(out)
	out = middleware.RecoveryMiddleware(log)(out)
	return out, nil
}

// public routes attach the caller when a token is present.
func (h *handler) public(fn http.HandlerFunc) http.Handler {
	return h.auth.Optional(h.limit(fn))
}

// user routes require a valid token.
func (h *handler) user(fn http.HandlerFunc) http.Handler {
	return h.auth.Handler(h.limit(fn))
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func actorFrom(r *http.Request) profile.Actor {
	return profile.Actor{
		ID:   middleware.GetUserID(r.Context()),
		Role: profile.Role(middleware.GetUserRole(r.Context())),
	}
}

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return svcerrors.Validation("request body is required")
		}
		return svcerrors.Validation("invalid request body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	httputil.WriteJSON(w, status, data)
}

// writeError maps service and storage errors onto the error envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if svcerrors.GetServiceError(err) == nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httputil.WriteErrorResponse(w, r, http.StatusNotFound, string(svcerrors.CodeNotFound), "Resource not found", nil)
			return
		case errors.Is(err, storage.ErrConflict):
			httputil.WriteErrorResponse(w, r, http.StatusConflict, string(svcerrors.CodeConflict), "Resource conflict", nil)
			return
		}
	}
	httputil.WriteError(w, r, err)
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, svcerrors.Validation("%s must be a non-negative integer", name)
	}
	return n, nil
}

func queryFloat(r *http.Request, name string) (float64, bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, svcerrors.Validation("%s must be a number", name)
	}
	return f, true, nil
}

func queryBool(r *http.Request, name string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, svcerrors.Validation("%s must be true or false", name)
	}
	return &b, nil
}

// paging reads limit and offset.
func paging(r *http.Request) (int, int, error) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		return 0, 0, err
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}
