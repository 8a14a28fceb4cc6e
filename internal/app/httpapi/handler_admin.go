package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/conedex/conedex/internal/app/domain/badge"
	"github.com/conedex/conedex/internal/app/domain/moderation"
	"github.com/conedex/conedex/internal/app/domain/newsletter"
	"github.com/conedex/conedex/internal/app/domain/notification"
	"github.com/conedex/conedex/internal/app/domain/profile"
	"github.com/conedex/conedex/internal/app/domain/quest"
	"github.com/conedex/conedex/internal/app/domain/shop"
	"github.com/conedex/conedex/internal/app/services/importer"
	"github.com/conedex/conedex/internal/app/services/newsletters"
	svcerrors "github.com/conedex/conedex/internal/errors"
)

func (h *handler) registerAdmin(admin *mux.Router) {
	admin.HandleFunc("/users", h.adminListUsers).Methods(http.MethodGet)
	admin.HandleFunc("/users/{id}/role", h.adminSetRole).Methods(http.MethodPost)
	admin.HandleFunc("/users/{id}/suspend", h.adminSuspend).Methods(http.MethodPost)
	admin.HandleFunc("/users/{id}/reactivate", h.adminReactivate).Methods(http.MethodPost)
	admin.HandleFunc("/users/{id}", h.adminDeleteUser).Methods(http.MethodDelete)

	admin.HandleFunc("/shops", h.listShops).Methods(http.MethodGet)
	admin.HandleFunc("/shops/import", h.adminImportShops).Methods(http.MethodPost)
	admin.HandleFunc("/shops/{id}/verify", h.adminVerifyShop).Methods(http.MethodPost)
	admin.HandleFunc("/shops/{id}/reject", h.adminRejectShop).Methods(http.MethodPost)
	admin.HandleFunc("/shops/{id}/close", h.adminCloseShop).Methods(http.MethodPost)
	admin.HandleFunc("/shops/{id}/reopen", h.adminReopenShop).Methods(http.MethodPost)

	admin.HandleFunc("/claims", h.adminListClaims).Methods(http.MethodGet)
	admin.HandleFunc("/claims/{id}/approve", h.adminApproveClaim).Methods(http.MethodPost)
	admin.HandleFunc("/claims/{id}/reject", h.adminRejectClaim).Methods(http.MethodPost)

	admin.HandleFunc("/quests", h.adminListQuests).Methods(http.MethodGet)
	admin.HandleFunc("/quests", h.adminCreateQuest).Methods(http.MethodPost)
	admin.HandleFunc("/quests/{id}", h.adminUpdateQuest).Methods(http.MethodPut)
	admin.HandleFunc("/quests/{id}", h.adminDeleteQuest).Methods(http.MethodDelete)

	admin.HandleFunc("/badges", h.adminCreateBadge).Methods(http.MethodPost)
	admin.HandleFunc("/badges/{id}", h.adminUpdateBadge).Methods(http.MethodPut)
	admin.HandleFunc("/badges/{id}", h.adminDeleteBadge).Methods(http.MethodDelete)
	admin.HandleFunc("/badges/{id}/award", h.adminAwardBadge).Methods(http.MethodPost)

	admin.HandleFunc("/newsletters", h.adminListNewsletters).Methods(http.MethodGet)
	admin.HandleFunc("/newsletters", h.adminCreateNewsletter).Methods(http.MethodPost)
	admin.HandleFunc("/newsletters/{id}", h.adminGetNewsletter).Methods(http.MethodGet)
	admin.HandleFunc("/newsletters/{id}", h.adminUpdateNewsletter).Methods(http.MethodPut)
	admin.HandleFunc("/newsletters/{id}", h.adminDeleteNewsletter).Methods(http.MethodDelete)
	admin.HandleFunc("/newsletters/{id}/schedule", h.adminScheduleNewsletter).Methods(http.MethodPost)
	admin.HandleFunc("/newsletters/{id}/unschedule", h.adminUnscheduleNewsletter).Methods(http.MethodPost)
	admin.HandleFunc("/newsletters/{id}/test", h.adminTestNewsletter).Methods(http.MethodPost)
	admin.HandleFunc("/newsletters/{id}/send", h.adminSendNewsletter).Methods(http.MethodPost)
	admin.HandleFunc("/subscribers", h.adminListSubscribers).Methods(http.MethodGet)

	admin.HandleFunc("/moderation", h.adminListModeration).Methods(http.MethodGet)
	admin.HandleFunc("/moderation/{id}/resolve", h.adminResolveModeration).Methods(http.MethodPost)

	admin.HandleFunc("/analytics/overview", h.adminOverview).Methods(http.MethodGet)
	admin.HandleFunc("/analytics/top-flavors", h.adminTopFlavors).Methods(http.MethodGet)
	admin.HandleFunc("/analytics/top-shops", h.adminTopShops).Methods(http.MethodGet)
	admin.HandleFunc("/analytics/ratings", h.adminRatings).Methods(http.MethodGet)
	admin.HandleFunc("/analytics/daily", h.adminDaily).Methods(http.MethodGet)

	admin.HandleFunc("/notifications/broadcast", h.adminBroadcast).Methods(http.MethodPost)
	admin.HandleFunc("/audit", h.auditEntries).Methods(http.MethodGet)
}

// Users -----------------------------------------------------------------------

func (h *handler) adminListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paging(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	list, err := h.app.Profiles.List(r.Context(), profile.Filter{
		Query:  q.Get("q"),
		Role:   profile.Role(q.Get("role")),
		Status: profile.Status(q.Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) adminSetRole(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Role profile.Role `json:"role"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.app.Profiles.SetRole(r.Context(), actorFrom(r), pathVar(r, "id"), payload.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) adminSuspend(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Profiles.Suspend(r.Context(), actorFrom(r), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) adminReactivate(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Profiles.Reactivate(r.Context(), actorFrom(r), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) adminDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Profiles.Delete(r.Context(), actorFrom(r), pathVar(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Shops and claims ------------------------------------------------------------

func (h *handler) adminImportShops(w http.ResponseWriter, r *http.Request) {
	var q importer.Query
	if err := decodeJSON(w, r, &q); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.app.Importer.ImportFromPlaces(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) adminVerifyShop(w http.ResponseWriter, r *http.Request) {
	h.shopTransition(w, r, h.app.Shops.Verify)
}

func (h *handler) adminCloseShop(w http.ResponseWriter, r *http.Request) {
	h.shopTransition(w, r, h.app.Shops.Close)
}

func (h *handler) adminReopenShop(w http.ResponseWriter, r *http.Request) {
	h.shopTransition(w, r, h.app.Shops.Reopen)
}

func (h *handler) adminRejectShop(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	sh, err := h.app.Shops.Reject(r.Context(), actorFrom(r), pathVar(r, "id"), payload.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

type shopTransitionFunc func(ctx context.Context, actor profile.Actor, id string) (shop.Shop, error)

func (h *handler) shopTransition(w http.ResponseWriter, r *http.Request, fn shopTransitionFunc) {
	sh, err := fn(r.Context(), actorFrom(r), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (h *handler) adminListClaims(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Claims.List(r.Context(), shop.ClaimStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type reviewPayload struct {
	Notes string `json:"notes"`
}

// decodeOptional decodes a body that may be absent.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.ContentLength == 0 {
		return nil
	}
	return decodeJSON(w, r, dst)
}

func (h *handler) adminApproveClaim(w http.ResponseWriter, r *http.Request) {
	var payload reviewPayload
	if err := decodeOptional(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.app.Claims.Approve(r.Context(), actorFrom(r).ID, pathVar(r, "id"), payload.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) adminRejectClaim(w http.ResponseWriter, r *http.Request) {
	var payload reviewPayload
	if err := decodeOptional(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.app.Claims.Reject(r.Context(), actorFrom(r).ID, pathVar(r, "id"), payload.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Quests and badges -----------------------------------------------------------

type questPayload struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Objectives  []quest.Objective `json:"objectives"`
	Points      int               `json:"points"`
	BadgeID     string            `json:"badge_id"`
	StartsAt    *time.Time        `json:"starts_at"`
	EndsAt      *time.Time        `json:"ends_at"`
	Active      *bool             `json:"active"`
}

func (p questPayload) quest() quest.Quest {
	q := quest.Quest{
		Title:       p.Title,
		Description: p.Description,
		Objectives:  p.Objectives,
		Points:      p.Points,
		BadgeID:     p.BadgeID,
		EndsAt:      p.EndsAt,
		Active:      p.Active == nil || *p.Active,
	}
	if p.StartsAt != nil {
		q.StartsAt = p.StartsAt.UTC()
	}
	return q
}

func (h *handler) adminListQuests(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Quests.ListAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) adminCreateQuest(w http.ResponseWriter, r *http.Request) {
	var payload questPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.app.Quests.Create(r.Context(), payload.quest())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (h *handler) adminUpdateQuest(w http.ResponseWriter, r *http.Request) {
	var payload questPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.app.Quests.Update(r.Context(), pathVar(r, "id"), payload.quest())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *handler) adminDeleteQuest(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.app.Quests.Delete(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted, "deactivated": !deleted})
}

type badgePayload struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	ImageURL    string         `json:"image_url"`
	Criteria    badge.Criteria `json:"criteria"`
	Points      int            `json:"points"`
}

func (p badgePayload) badge() badge.Badge {
	return badge.Badge{
		Name:        p.Name,
		Description: p.Description,
		ImageURL:    p.ImageURL,
		Criteria:    p.Criteria,
		Points:      p.Points,
	}
}

func (h *handler) adminCreateBadge(w http.ResponseWriter, r *http.Request) {
	var payload badgePayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.app.Badges.Create(r.Context(), payload.badge())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *handler) adminUpdateBadge(w http.ResponseWriter, r *http.Request) {
	var payload badgePayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.app.Badges.Update(r.Context(), pathVar(r, "id"), payload.badge())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *handler) adminDeleteBadge(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Badges.Delete(r.Context(), pathVar(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) adminAwardBadge(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID string `json:"user_id"`
		Reason string `json:"reason"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	if payload.UserID == "" {
		writeError(w, r, svcerrors.Validation("user_id is required"))
		return
	}
	award, err := h.app.Badges.Award(r.Context(), payload.UserID, pathVar(r, "id"), payload.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, award)
}

// Newsletters -----------------------------------------------------------------

func (h *handler) adminListNewsletters(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Newsletters.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) adminCreateNewsletter(w http.ResponseWriter, r *http.Request) {
	var d newsletters.Draft
	if err := decodeJSON(w, r, &d); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := h.app.Newsletters.Create(r.Context(), actorFrom(r).ID, d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (h *handler) adminGetNewsletter(w http.ResponseWriter, r *http.Request) {
	n, err := h.app.Newsletters.Get(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *handler) adminUpdateNewsletter(w http.ResponseWriter, r *http.Request) {
	var d newsletters.Draft
	if err := decodeJSON(w, r, &d); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := h.app.Newsletters.Update(r.Context(), pathVar(r, "id"), d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *handler) adminDeleteNewsletter(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Newsletters.Delete(r.Context(), pathVar(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) adminScheduleNewsletter(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ScheduledAt time.Time `json:"scheduled_at"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := h.app.Newsletters.Schedule(r.Context(), pathVar(r, "id"), payload.ScheduledAt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *handler) adminUnscheduleNewsletter(w http.ResponseWriter, r *http.Request) {
	n, err := h.app.Newsletters.Unschedule(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *handler) adminTestNewsletter(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.app.Newsletters.SendTest(r.Context(), pathVar(r, "id"), payload.Email); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) adminSendNewsletter(w http.ResponseWriter, r *http.Request) {
	n, err := h.app.Newsletters.Send(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *handler) adminListSubscribers(w http.ResponseWriter, r *http.Request) {
	status := newsletter.SubscriberStatus(r.URL.Query().Get("status"))
	list, err := h.app.Newsletters.ListSubscribers(r.Context(), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Moderation ------------------------------------------------------------------

func (h *handler) adminListModeration(w http.ResponseWriter, r *http.Request) {
	status := moderation.Status(r.URL.Query().Get("status"))
	list, err := h.app.Moderation.List(r.Context(), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) adminResolveModeration(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Approve *bool `json:"approve"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	if payload.Approve == nil {
		writeError(w, r, svcerrors.Validation("approve is required"))
		return
	}
	item, err := h.app.Moderation.Resolve(r.Context(), actorFrom(r).ID, pathVar(r, "id"), *payload.Approve)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Analytics -------------------------------------------------------------------

func (h *handler) adminOverview(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	overview, err := h.app.Analytics.Overview(r.Context(), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (h *handler) adminTopFlavors(w http.ResponseWriter, r *http.Request) {
	limit, days, err := limitAndDays(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.app.Analytics.TopFlavors(r.Context(), limit, days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) adminTopShops(w http.ResponseWriter, r *http.Request) {
	limit, days, err := limitAndDays(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.app.Analytics.TopShops(r.Context(), limit, days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func limitAndDays(r *http.Request) (int, int, error) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		return 0, 0, err
	}
	days, err := queryInt(r, "days", 0)
	if err != nil {
		return 0, 0, err
	}
	return limit, days, nil
}

func (h *handler) adminRatings(w http.ResponseWriter, r *http.Request) {
	dist, err := h.app.Analytics.RatingDistribution(r.Context(), r.URL.Query().Get("shop_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dist)
}

func (h *handler) adminDaily(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.app.Analytics.DailyActivity(r.Context(), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) adminBroadcast(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Type    notification.Type `json:"type"`
		Title   string            `json:"title"`
		Message string            `json:"message"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	if payload.Type == "" {
		payload.Type = notification.TypeSystem
	}
	n, err := h.app.Notifications.Broadcast(r.Context(), payload.Type, payload.Title, payload.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"recipients": n})
}
