package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/conedex/conedex/internal/app/services/claims"
	"github.com/conedex/conedex/internal/app/services/flavors"
	"github.com/conedex/conedex/internal/app/services/logs"
	"github.com/conedex/conedex/internal/app/services/profiles"
	"github.com/conedex/conedex/internal/app/services/shops"
	svcerrors "github.com/conedex/conedex/internal/errors"
	"github.com/conedex/conedex/internal/httputil"
)

// photoFormLimit leaves room for multipart framing around the photo.
const photoFormLimit = shops.MaxPhotoBytes + 1<<20

func (h *handler) registerUser(v1 *mux.Router) {
	v1.Handle("/me", h.user(h.getMe)).Methods(http.MethodGet)
	v1.Handle("/me", h.user(h.updateMe)).Methods(http.MethodPatch)
	v1.Handle("/me/logs", h.user(h.myLogs)).Methods(http.MethodGet)
	v1.Handle("/me/summary", h.user(h.mySummary)).Methods(http.MethodGet)
	v1.Handle("/me/badges", h.user(h.myBadges)).Methods(http.MethodGet)
	v1.Handle("/me/quests", h.user(h.myQuests)).Methods(http.MethodGet)
	v1.Handle("/me/claims", h.user(h.myClaims)).Methods(http.MethodGet)

	v1.Handle("/shops", h.user(h.submitShop)).Methods(http.MethodPost)
	v1.Handle("/shops/{id}", h.user(h.updateShop)).Methods(http.MethodPatch)
	v1.Handle("/shops/{id}/photos", h.user(h.addShopPhoto)).Methods(http.MethodPost)
	v1.Handle("/shops/{id}/stats", h.user(h.shopStats)).Methods(http.MethodGet)
	v1.Handle("/shops/{id}/claims", h.user(h.submitClaim)).Methods(http.MethodPost)
	v1.Handle("/shops/{id}/flavors", h.user(h.createFlavor)).Methods(http.MethodPost)

	v1.Handle("/flavors/{id}", h.user(h.updateFlavor)).Methods(http.MethodPatch)
	v1.Handle("/flavors/{id}", h.user(h.retireFlavor)).Methods(http.MethodDelete)

	v1.Handle("/logs", h.user(h.recordLog)).Methods(http.MethodPost)
	v1.Handle("/logs/{id}", h.user(h.updateLog)).Methods(http.MethodPatch)
	v1.Handle("/logs/{id}", h.user(h.deleteLog)).Methods(http.MethodDelete)

	v1.Handle("/quests/{id}/join", h.user(h.joinQuest)).Methods(http.MethodPost)

	v1.Handle("/notifications", h.user(h.listNotifications)).Methods(http.MethodGet)
	v1.Handle("/notifications/unread-count", h.user(h.unreadCount)).Methods(http.MethodGet)
	v1.Handle("/notifications/read-all", h.user(h.markAllRead)).Methods(http.MethodPost)
	// The stream is not rate limited: one upgrade holds the connection open.
	v1.Handle("/notifications/stream", h.auth.Handler(http.HandlerFunc(h.notificationStream))).Methods(http.MethodGet)
	v1.Handle("/notifications/{id}/read", h.user(h.markRead)).Methods(http.MethodPost)
	v1.Handle("/notifications/{id}", h.user(h.deleteNotification)).Methods(http.MethodDelete)
}

// Profile ---------------------------------------------------------------------

func (h *handler) getMe(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Profiles.Get(r.Context(), actorFrom(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) updateMe(w http.ResponseWriter, r *http.Request) {
	var patch profiles.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.app.Profiles.UpdateOwn(r.Context(), actorFrom(r).ID, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) myLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paging(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.app.Logs.List(r.Context(), actorFrom(r).ID, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) mySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.app.Logs.Summary(r.Context(), actorFrom(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *handler) myBadges(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Badges.ListForUser(r.Context(), actorFrom(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) myQuests(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Quests.Progress(r.Context(), actorFrom(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) myClaims(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Claims.ListMine(r.Context(), actorFrom(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Shops -----------------------------------------------------------------------

func (h *handler) submitShop(w http.ResponseWriter, r *http.Request) {
	var in shops.Input
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	sh, err := h.app.Shops.Submit(r.Context(), actorFrom(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sh)
}

func (h *handler) updateShop(w http.ResponseWriter, r *http.Request) {
	var patch shops.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	sh, err := h.app.Shops.Update(r.Context(), actorFrom(r), pathVar(r, "id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

// addShopPhoto takes a multipart form with the image in the "photo" field.
func (h *handler) addShopPhoto(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, photoFormLimit)
	if err := r.ParseMultipartForm(photoFormLimit); err != nil {
		writeError(w, r, svcerrors.Validation("invalid multipart form: %v", err))
		return
	}
	file, header, err := r.FormFile("photo")
	if err != nil {
		writeError(w, r, svcerrors.Validation("photo field is required"))
		return
	}
	defer file.Close()

	body, err := httputil.ReadAllStrict(file, shops.MaxPhotoBytes)
	if err != nil {
		writeError(w, r, svcerrors.Validation("photo exceeds %d bytes", shops.MaxPhotoBytes))
		return
	}
	sh, err := h.app.Shops.AddPhoto(r.Context(), actorFrom(r), pathVar(r, "id"), header.Filename, header.Header.Get("Content-Type"), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sh)
}

func (h *handler) shopStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.app.Shops.Stats(r.Context(), actorFrom(r), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) submitClaim(w http.ResponseWriter, r *http.Request) {
	var in claims.Input
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	claim, err := h.app.Claims.Submit(r.Context(), actorFrom(r).ID, pathVar(r, "id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, claim)
}

// Flavors and logs ------------------------------------------------------------

func (h *handler) createFlavor(w http.ResponseWriter, r *http.Request) {
	var in flavors.Input
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	f, err := h.app.Flavors.Create(r.Context(), actorFrom(r), pathVar(r, "id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (h *handler) updateFlavor(w http.ResponseWriter, r *http.Request) {
	var patch flavors.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	f, err := h.app.Flavors.Update(r.Context(), actorFrom(r), pathVar(r, "id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *handler) retireFlavor(w http.ResponseWriter, r *http.Request) {
	f, err := h.app.Flavors.Retire(r.Context(), actorFrom(r), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *handler) recordLog(w http.ResponseWriter, r *http.Request) {
	var in logs.Input
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	l, err := h.app.Logs.Record(r.Context(), actorFrom(r).ID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (h *handler) updateLog(w http.ResponseWriter, r *http.Request) {
	var patch logs.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	l, err := h.app.Logs.Update(r.Context(), actorFrom(r).ID, pathVar(r, "id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *handler) deleteLog(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Logs.Delete(r.Context(), actorFrom(r).ID, pathVar(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) joinQuest(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Quests.Join(r.Context(), actorFrom(r).ID, pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Notifications ---------------------------------------------------------------

func (h *handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	list, err := h.app.Notifications.List(r.Context(), actorFrom(r).ID, unreadOnly, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.app.Notifications.UnreadCount(r.Context(), actorFrom(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": n})
}

func (h *handler) markRead(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Notifications.MarkRead(r.Context(), actorFrom(r).ID, pathVar(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.app.Notifications.MarkAllRead(r.Context(), actorFrom(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (h *handler) deleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Notifications.Delete(r.Context(), actorFrom(r).ID, pathVar(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
