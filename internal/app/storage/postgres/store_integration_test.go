//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/conedex/conedex/internal/app/domain/badge"
	"github.com/conedex/conedex/internal/app/domain/flavor"
	"github.com/conedex/conedex/internal/app/domain/profile"
	"github.com/conedex/conedex/internal/app/domain/quest"
	"github.com/conedex/conedex/internal/app/domain/shop"
	"github.com/conedex/conedex/internal/app/storage"
	"github.com/conedex/conedex/internal/platform/migrations"
)

func startPostgres(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "conedex",
				"POSTGRES_PASSWORD": "conedex",
				"POSTGRES_DB":       "conedex",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://conedex:conedex@%s:%s/conedex?sslmode=disable", host, port.Port())
	db, err := Open(dsn, 5, 2, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, migrations.Up(db))
	version, dirty, err := migrations.Version(db)
	require.NoError(t, err)
	require.False(t, dirty)
	require.EqualValues(t, 3, version)
	return New(db)
}

func TestStoreIntegration(t *testing.T) {
	store := startPostgres(t)
	ctx := context.Background()

	user, err := store.CreateProfile(ctx, profile.Profile{Email: "a@example.com", Username: "Scoop", Role: profile.RoleExplorer, Status: profile.StatusActive})
	require.NoError(t, err)
	_, err = store.CreateProfile(ctx, profile.Profile{Email: "b@example.com", Username: "scoop", Role: profile.RoleExplorer, Status: profile.StatusActive})
	require.True(t, errors.Is(err, storage.ErrConflict), "got %v", err)

	sh, err := store.CreateShop(ctx, shop.Shop{Name: "Gelato Bar", PlaceID: "place-1", Status: shop.StatusActive, PhotoURLs: []string{"x.jpg"}})
	require.NoError(t, err)
	got, err := store.GetShopByPlaceID(ctx, "place-1")
	require.NoError(t, err)
	require.Equal(t, []string{"x.jpg"}, got.PhotoURLs)

	fl, err := store.CreateFlavor(ctx, flavor.Flavor{ShopID: sh.ID, Name: "Pistachio", Category: "nut", Status: flavor.StatusAvailable, Moderation: flavor.ModerationApproved, Tags: []string{"green"}})
	require.NoError(t, err)
	_, err = store.CreateLog(ctx, flavor.Log{UserID: user.ID, FlavorID: fl.ID, ShopID: sh.ID, Rating: 5, VisitedAt: time.Now().UTC()})
	require.NoError(t, err)

	entries, err := store.ListLogEntries(ctx, user.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "nut", entries[0].Category)

	q, err := store.CreateQuest(ctx, quest.Quest{Title: "Nutty", Active: true, StartsAt: time.Now().UTC(), Objectives: []quest.Objective{{Kind: quest.ObjectiveTryCategory, Target: 1, Category: "nut"}}})
	require.NoError(t, err)
	_, err = store.CreateParticipation(ctx, quest.Participation{UserID: user.ID, QuestID: q.ID, Status: quest.ParticipationActive})
	require.NoError(t, err)
	require.True(t, errors.Is(store.DeleteQuest(ctx, q.ID), storage.ErrConflict))

	b, err := store.CreateBadge(ctx, badge.Badge{Name: "First Scoop", Criteria: badge.Criteria{Kind: badge.CriteriaFlavorsLogged, Threshold: 1}})
	require.NoError(t, err)
	_, err = store.CreateAward(ctx, badge.Award{UserID: user.ID, BadgeID: b.ID})
	require.NoError(t, err)
	_, err = store.CreateAward(ctx, badge.Award{UserID: user.ID, BadgeID: b.ID})
	require.True(t, errors.Is(err, storage.ErrConflict))

	stats, err := store.ShopStats(ctx, sh.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalLogs)
	require.Equal(t, 1, stats.Ratings[5])

	totals, err := store.Totals(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, totals.ActiveShops)
}
