package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/conedex/conedex/internal/app/domain/profile"
	"github.com/conedex/conedex/internal/app/domain/shop"
	"github.com/conedex/conedex/internal/app/services/shops"
	svcerrors "github.com/conedex/conedex/internal/errors"
	"github.com/conedex/conedex/internal/middleware"
)

func (h *handler) registerPublic(v1 *mux.Router) {
	v1.Handle("/shops", h.public(h.listShops)).Methods(http.MethodGet)
	v1.Handle("/shops/{id}", h.public(h.getShop)).Methods(http.MethodGet)
	v1.Handle("/shops/{id}/flavors", h.public(h.listShopFlavors)).Methods(http.MethodGet)
	v1.Handle("/flavors", h.public(h.searchFlavors)).Methods(http.MethodGet)
	v1.Handle("/quests", h.public(h.listQuests)).Methods(http.MethodGet)
	v1.Handle("/badges", h.public(h.listBadges)).Methods(http.MethodGet)
	v1.Handle("/leaderboard", h.public(h.leaderboard)).Methods(http.MethodGet)
	v1.Handle("/newsletter/subscribe", h.public(h.subscribe)).Methods(http.MethodPost)
	v1.Handle("/newsletter/unsubscribe", h.public(h.unsubscribe)).Methods(http.MethodGet, http.MethodPost)
}

// shopFilter reads the shop listing query string.
func shopFilter(r *http.Request) (shops.ListFilter, error) {
	q := r.URL.Query()
	f := shops.ListFilter{
		Query:   q.Get("q"),
		City:    q.Get("city"),
		Status:  shop.Status(q.Get("status")),
		OwnerID: q.Get("owner_id"),
	}
	var err error
	if f.Limit, f.Offset, err = paging(r); err != nil {
		return f, err
	}
	if f.Verified, err = queryBool(r, "verified"); err != nil {
		return f, err
	}
	lat, hasLat, err := queryFloat(r, "lat")
	if err != nil {
		return f, err
	}
	lng, hasLng, err := queryFloat(r, "lng")
	if err != nil {
		return f, err
	}
	if hasLat != hasLng {
		return f, svcerrors.Validation("lat and lng must be given together")
	}
	if hasLat {
		radius, _, err := queryFloat(r, "radius_km")
		if err != nil {
			return f, err
		}
		f.Near = &shops.Near{Lat: lat, Lng: lng, RadiusKm: radius}
	}
	return f, nil
}

func (h *handler) listShops(w http.ResponseWriter, r *http.Request) {
	filter, err := shopFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.app.Shops.List(r.Context(), actorFrom(r), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) getShop(w http.ResponseWriter, r *http.Request) {
	sh, err := h.app.Shops.Get(r.Context(), actorFrom(r), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (h *handler) listShopFlavors(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	if _, err := h.app.Shops.Get(r.Context(), actorFrom(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	includeRetired, _ := strconv.ParseBool(r.URL.Query().Get("include_retired"))
	list, err := h.app.Flavors.ListByShop(r.Context(), id, includeRetired)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) searchFlavors(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paging(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	list, err := h.app.Flavors.Search(r.Context(), q.Get("q"), q.Get("category"), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) listQuests(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Quests.ListAvailable(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) listBadges(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Badges.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.app.Profiles.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]profile.PublicProfile, 0, len(list))
	for _, p := range list {
		out = append(out, p.Public())
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) subscribe(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	sub, err := h.app.Newsletters.Subscribe(r.Context(), payload.Email, middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"email": sub.Email, "status": sub.Status})
}

// unsubscribe accepts the token from the email link (GET) or a JSON body.
func (h *handler) unsubscribe(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if r.Method == http.MethodPost {
		var payload struct {
			Token string `json:"token"`
		}
		if err := decodeJSON(w, r, &payload); err != nil {
			writeError(w, r, err)
			return
		}
		token = payload.Token
	}
	sub, err := h.app.Newsletters.Unsubscribe(r.Context(), token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"email": sub.Email, "status": sub.Status})
}
