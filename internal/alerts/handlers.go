package alerts

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"sprout/internal/faults"
	"sprout/internal/models"

	"github.com/gorilla/mux"
)

type HTTP struct{ store *Store }

func NewHTTP(s *Store) *HTTP { return &HTTP{store: s} }

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/alerts", h.list).Methods(http.MethodGet)
	api.HandleFunc("/alerts/{uuid}/read", h.markRead).Methods(http.MethodPost)
}

func accountFrom(r *http.Request) string { return r.Header.Get("X-Account-ID") }

// GET /api/v1/alerts?device_id=&unread=&limit=
func (h *HTTP) list(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	if account == "" {
		models.WriteProblemKind(w, http.StatusUnauthorized, string(faults.Unauthorized), "missing account identity", nil)
		return
	}
	f := ListFilter{
		AccountID:  account,
		DeviceUUID: r.URL.Query().Get("device_id"),
	}
	if v := r.URL.Query().Get("unread"); v != "" {
		f.UnreadOnly, _ = strconv.ParseBool(v)
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		f.Limit, _ = strconv.Atoi(v)
	}
	out, err := h.store.List(f)
	if err != nil {
		models.WriteProblemKind(w, http.StatusServiceUnavailable, string(faults.Unavailable), "alert listing failed", nil)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"alerts": out, "count": len(out)})
}

// POST /api/v1/alerts/{uuid}/read
func (h *HTTP) markRead(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	if account == "" {
		models.WriteProblemKind(w, http.StatusUnauthorized, string(faults.Unauthorized), "missing account identity", nil)
		return
	}
	a, err := h.store.MarkRead(mux.Vars(r)["uuid"], account)
	if err != nil {
		if errors.Is(err, ErrNotOwned) {
			models.WriteProblemKind(w, http.StatusNotFound, string(faults.NotFound), "alert not found", nil)
		} else {
			models.WriteProblemKind(w, http.StatusServiceUnavailable, string(faults.Unavailable), "alert update failed", nil)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(a)
}
