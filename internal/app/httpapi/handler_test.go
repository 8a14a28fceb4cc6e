package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/conedex/conedex/internal/app"
	"github.com/conedex/conedex/internal/app/domain/notification"
	"github.com/conedex/conedex/internal/app/domain/profile"
	"github.com/conedex/conedex/internal/app/domain/shop"
	"github.com/conedex/conedex/internal/app/storage"
	"github.com/conedex/conedex/internal/app/storage/memory"
	svcerrors "github.com/conedex/conedex/internal/errors"
	"github.com/conedex/conedex/internal/httputil"
	"github.com/conedex/conedex/internal/middleware"
	"github.com/conedex/conedex/pkg/logger"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

type testAPI struct {
	t       *testing.T
	store   *memory.Store
	app     *app.Application
	handler http.Handler
}

func newTestAPI(t *testing.T, opts Options) *testAPI {
	t.Helper()
	return newTestAPIWith(t, opts, app.Providers{})
}

// newTestAPIWith builds the API over a fresh memory store with the given
// hosted-service doubles.
func newTestAPIWith(t *testing.T, opts Options, providers app.Providers) *testAPI {
	t.Helper()
	if providers.PublicBaseURL == "" {
		providers.PublicBaseURL = "https://conedex.test"
	}
	store := memory.New()
	application, err := app.New(app.Stores{
		Profiles:      store,
		Shops:         store,
		Claims:        store,
		Flavors:       store,
		Logs:          store,
		Quests:        store,
		Badges:        store,
		Notifications: store,
		Newsletters:   store,
		Moderation:    store,
		Analytics:     store,
	}, providers, logger.Discard())
	require.NoError(t, err)

	opts.Auth = middleware.NewAuthMiddleware(testSecret, application.Profiles, logger.Discard())
	handler, err := NewHandler(application, opts, logger.Discard())
	require.NoError(t, err)

	_, err = store.CreateProfile(context.Background(), profile.Profile{
		ID: "admin-1", Email: "admin@conedex.test", Role: profile.RoleAdmin, Status: profile.StatusActive,
	})
	require.NoError(t, err)
	return &testAPI{t: t, store: store, app: application, handler: handler}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	claims := &middleware.Claims{
		Email: userID + "@conedex.test",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

// do sends a request as userID ("" for anonymous) and returns the recorder.
func (a *testAPI) do(method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(a.t, userID))
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[httputil.ErrorBody](t, rec).Error.Code
}

var scoops = map[string]interface{}{
	"name":      "Scoops",
	"address":   "1 Cone St",
	"city":      "Portland",
	"latitude":  45.52,
	"longitude": -122.68,
}

func TestHealthAndUnknownRoute(t *testing.T) {
	api := newTestAPI(t, Options{})

	rec := api.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))

	rec = api.do(http.MethodGet, "/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(svcerrors.CodeNotFound), errorCode(t, rec))

	rec = api.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthBoundaries(t *testing.T) {
	api := newTestAPI(t, Options{})

	rec := api.do(http.MethodPost, "/v1/shops", "", scoops)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(http.MethodGet, "/v1/admin/users", "u1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodGet, "/v1/admin/users", "admin-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decode[[]profile.Profile](t, rec)
	assert.Len(t, users, 2, "the explorer profile is created on first sight")

	rec = api.do(http.MethodGet, "/v1/shops", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStrictJSON(t *testing.T) {
	api := newTestAPI(t, Options{})

	rec := api.do(http.MethodPost, "/v1/shops", "u1", `{"name":"Scoops","bogus":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(svcerrors.CodeValidation), errorCode(t, rec))

	rec = api.do(http.MethodPost, "/v1/shops", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShopSubmissionAndVerification(t *testing.T) {
	api := newTestAPI(t, Options{})

	rec := api.do(http.MethodPost, "/v1/shops", "u1", scoops)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	submitted := decode[shop.Shop](t, rec)
	assert.Equal(t, shop.StatusPending, submitted.Status)

	// Pending listings are hidden from everyone but the submitter and admins.
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/v1/shops/"+submitted.ID, "", nil).Code)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/v1/shops/"+submitted.ID, "u1", nil).Code)

	rec = api.do(http.MethodPost, "/v1/admin/shops/"+submitted.ID+"/verify", "admin-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	verified := decode[shop.Shop](t, rec)
	assert.Equal(t, shop.StatusActive, verified.Status)
	assert.True(t, verified.Verified)

	rec = api.do(http.MethodGet, "/v1/shops?q=scoop", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]shop.Shop](t, rec), 1)

	rec = api.do(http.MethodGet, "/v1/notifications", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	notes := decode[[]notification.Notification](t, rec)
	require.Len(t, notes, 1)
	assert.Equal(t, notification.TypeShopVerified, notes[0].Type)

	rec = api.do(http.MethodGet, "/v1/notifications/unread-count", "u1", nil)
	assert.Equal(t, 1, decode[map[string]int](t, rec)["unread"])
	assert.Equal(t, http.StatusNoContent, api.do(http.MethodPost, "/v1/notifications/"+notes[0].ID+"/read", "u1", nil).Code)
	rec = api.do(http.MethodGet, "/v1/notifications/unread-count", "u1", nil)
	assert.Equal(t, 0, decode[map[string]int](t, rec)["unread"])
}

func TestFlavorLogFlow(t *testing.T) {
	api := newTestAPI(t, Options{})

	rec := api.do(http.MethodPost, "/v1/shops", "admin-1", scoops)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sh := decode[shop.Shop](t, rec)

	rec = api.do(http.MethodPost, "/v1/shops/"+sh.ID+"/flavors", "u1", map[string]interface{}{
		"name": "Mint Chip", "category": "mint",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	flavorID := decode[map[string]interface{}](t, rec)["id"].(string)

	rec = api.do(http.MethodPost, "/v1/shops/"+sh.ID+"/flavors", "u2", map[string]interface{}{"name": "mint chip"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(http.MethodPost, "/v1/logs", "u1", map[string]interface{}{
		"flavor_id": flavorID, "rating": 5, "notes": "fresh",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	logID := decode[map[string]interface{}](t, rec)["id"].(string)

	rec = api.do(http.MethodGet, "/v1/me/summary", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[map[string]interface{}](t, rec)
	assert.EqualValues(t, 1, summary["total_logs"])
	assert.EqualValues(t, 1, summary["high_ratings"])

	// Another user's log is invisible to them.
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodDelete, "/v1/logs/"+logID, "u2", nil).Code)
	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/v1/logs/"+logID, "u1", nil).Code)

	rec = api.do(http.MethodGet, "/v1/shops/"+sh.ID+"/flavors", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]interface{}](t, rec), 1)
}

func TestClaimApprovalSetsOwner(t *testing.T) {
	api := newTestAPI(t, Options{})

	sh := decode[shop.Shop](t, api.do(http.MethodPost, "/v1/shops", "admin-1", scoops))
	rec := api.do(http.MethodPost, "/v1/shops/"+sh.ID+"/claims", "owner-1", map[string]interface{}{
		"business_email": "owner@scoops.test", "message": "I run it",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	claim := decode[shop.Claim](t, rec)

	rec = api.do(http.MethodPost, "/v1/admin/claims/"+claim.ID+"/approve", "admin-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(http.MethodGet, "/v1/shops/"+sh.ID, "", nil)
	assert.Equal(t, "owner-1", decode[shop.Shop](t, rec).OwnerID)

	rec = api.do(http.MethodGet, "/v1/me", "owner-1", nil)
	assert.Equal(t, profile.RoleShopOwner, decode[profile.Profile](t, rec).Role)
}

func TestNewsletterSubscription(t *testing.T) {
	api := newTestAPI(t, Options{})

	rec := api.do(http.MethodPost, "/v1/newsletter/subscribe", "", map[string]string{"email": "Fan@Example.com"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	subs, err := api.store.ListSubscribers(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, subs, 1)

	rec = api.do(http.MethodGet, "/v1/newsletter/unsubscribe?token="+subs[0].Token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unsubscribed", decode[map[string]string](t, rec)["status"])

	rec = api.do(http.MethodPost, "/v1/newsletter/unsubscribe", "", map[string]string{"token": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLeaderboardHidesPrivateFields(t *testing.T) {
	api := newTestAPI(t, Options{})
	_, err := api.store.CreateProfile(context.Background(), profile.Profile{
		ID: "u-1", Email: "secret.person@example.com", Username: "scooper", Role: profile.RoleExplorer,
		Status: profile.StatusActive, Points: 40,
	})
	require.NoError(t, err)

	rec := api.do(http.MethodGet, "/v1/leaderboard", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "@")

	entries := decode[[]map[string]interface{}](t, rec)
	require.Len(t, entries, 2)
	assert.Equal(t, "u-1", entries[0]["id"])
	assert.Equal(t, "scooper", entries[0]["username"])
	assert.EqualValues(t, 40, entries[0]["points"])
	for _, e := range entries {
		assert.NotContains(t, e, "email")
		assert.NotContains(t, e, "role")
		assert.NotContains(t, e, "status")
	}
}

func TestAdminMutationsAreAudited(t *testing.T) {
	auditFile := filepath.Join(t.TempDir(), "audit.jsonl")
	api := newTestAPI(t, Options{AuditFile: auditFile})

	rec := api.do(http.MethodPost, "/v1/admin/badges", "admin-1", map[string]interface{}{
		"name": "First Scoop", "criteria": map[string]interface{}{"kind": "flavors_logged", "threshold": 1}, "points": 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	api.do(http.MethodGet, "/v1/admin/quests", "admin-1", nil)

	rec = api.do(http.MethodGet, "/v1/admin/audit", "admin-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]auditEntry](t, rec)
	require.Len(t, entries, 1, "reads are not audited")
	assert.Equal(t, "admin-1", entries[0].User)
	assert.Equal(t, http.StatusCreated, entries[0].Status)
	assert.Equal(t, "/v1/admin/badges", entries[0].Path)

	raw, err := os.ReadFile(auditFile)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), "\n"))
}

func TestAdminQuestDeleteDeactivatesJoinedQuest(t *testing.T) {
	api := newTestAPI(t, Options{})

	rec := api.do(http.MethodPost, "/v1/admin/quests", "admin-1", map[string]interface{}{
		"title":      "Taste Three",
		"objectives": []map[string]interface{}{{"kind": "log_flavors", "target": 3}},
		"points":     25,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	questID := decode[map[string]interface{}](t, rec)["id"].(string)

	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/v1/quests/"+questID+"/join", "u1", nil).Code)

	rec = api.do(http.MethodDelete, "/v1/admin/quests/"+questID, "admin-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]bool{"deleted": false, "deactivated": true}, decode[map[string]bool](t, rec))

	rec = api.do(http.MethodGet, "/v1/quests", "", nil)
	assert.Empty(t, decode[[]map[string]interface{}](t, rec))
}

func TestWriteErrorMapsStorageSentinels(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	writeError(rec, req, fmt.Errorf("shop x: %w", storage.ErrNotFound))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	writeError(rec, req, fmt.Errorf("username: %w", storage.ErrConflict))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestNotificationStream(t *testing.T) {
	api := newTestAPI(t, Options{})
	server := httptest.NewServer(api.handler)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/notifications/stream?access_token=" + token(t, "u1")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	hub := api.app.Notifications.Hub()
	require.Eventually(t, func() bool { return hub.Subscribers("u1") == 1 }, 2*time.Second, 10*time.Millisecond)

	api.app.Notifications.Notify(context.Background(), "u1", notification.TypeSystem, "Hello", "New flavors this week", "")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got notification.Notification
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "Hello", got.Title)
	assert.Equal(t, "u1", got.UserID)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Subscribers("u1") == 0 }, 2*time.Second, 10*time.Millisecond)
}
