//go:build integration && postgres

package httpapi

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"

	app "github.com/conedex/conedex/internal/app"
	"github.com/conedex/conedex/internal/app/domain/profile"
	"github.com/conedex/conedex/internal/app/domain/shop"
	"github.com/conedex/conedex/internal/app/storage/postgres"
	"github.com/conedex/conedex/internal/middleware"
	"github.com/conedex/conedex/internal/platform/migrations"
	"github.com/conedex/conedex/pkg/logger"
)

// Runs the shop review flow against a real database to make sure the
// migrations and the postgres store agree with the API.
func TestIntegrationPostgres(t *testing.T) {
	_ = godotenv.Load() // allow .env for local runs
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration")
	}

	db, err := postgres.Open(dsn, 5, 2, time.Minute)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, migrations.Up(db))

	store := postgres.New(db)
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
	}, app.Providers{PublicBaseURL: "https://conedex.test"}, logger.Discard())
	require.NoError(t, err)

	auth := middleware.NewAuthMiddleware(testSecret, application.Profiles, logger.Discard())
	handler, err := NewHandler(application, Options{Auth: auth}, logger.Discard())
	require.NoError(t, err)
	api := &testAPI{t: t, app: application, handler: handler}

	adminID := "integration-admin-" + time.Now().Format("150405.000")
	_, err = application.Profiles.Ensure(context.Background(), adminID, adminID+"@conedex.test")
	require.NoError(t, err)
	_, err = application.Profiles.SetRole(context.Background(), profile.Actor{ID: "bootstrap", Role: profile.RoleAdmin}, adminID, profile.RoleAdmin)
	require.NoError(t, err)

	rec := api.do(http.MethodPost, "/v1/shops", "integration-user", scoops)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	submitted := decode[shop.Shop](t, rec)

	rec = api.do(http.MethodPost, "/v1/admin/shops/"+submitted.ID+"/verify", adminID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, decode[shop.Shop](t, rec).Verified)
}
