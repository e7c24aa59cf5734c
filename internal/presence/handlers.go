package presence

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"sprout/internal/faults"
	"sprout/internal/models"
	"sprout/internal/repo"

	"github.com/Masterminds/semver/v3"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type HTTP struct {
	tracker *Tracker
	devices *repo.DeviceStore
	creds   *repo.CredentialStore
}

func NewHTTP(t *Tracker, devices *repo.DeviceStore, creds *repo.CredentialStore) *HTTP {
	return &HTTP{tracker: t, devices: devices, creds: creds}
}

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/heartbeat", h.heartbeat).Methods(http.MethodPost)
	api.HandleFunc("/devices/{uuid}/presence", h.devicePresence).Methods(http.MethodGet)
}

// POST /api/v1/heartbeat — no-payload "I'm alive" ping from firmware; updates
// last_seen/last_heartbeat without writing telemetry.
func (h *HTTP) heartbeat(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DeviceID        string   `json:"device_id"`
		APIKey          string   `json:"apiKey"`
		FirmwareVersion string   `json:"firmware_version"`
		BatteryLevel    *float64 `json:"battery_level"`
		SignalStrength  *float64 `json:"signal_strength"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblemKind(w, http.StatusBadRequest, string(faults.Validation), "invalid json", nil)
		return
	}
	if in.DeviceID == "" {
		models.WriteProblemKind(w, http.StatusBadRequest, string(faults.Validation), "device_id required", nil)
		return
	}
	if _, err := h.creds.AuthenticateDevice(in.APIKey, in.DeviceID); err != nil {
		kind := faults.KindOf(err)
		models.WriteProblemKind(w, faults.HTTPStatus(kind), string(kind), err.Error(), nil)
		return
	}

	fw := strings.TrimSpace(in.FirmwareVersion)
	if fw != "" {
		if _, err := semver.NewVersion(fw); err != nil {
			models.WriteProblemKind(w, http.StatusBadRequest, string(faults.Validation),
				"firmware_version is not a valid version", nil)
			return
		}
	}

	now := time.Now().UTC()
	if err := h.devices.TouchHeartbeat(in.DeviceID, now, fw); err != nil {
		models.WriteProblemKind(w, http.StatusServiceUnavailable, string(faults.Unavailable), "heartbeat write failed", nil)
		return
	}
	h.tracker.Touch(in.DeviceID, now)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"last_seen": now,
	})
}

// GET /api/v1/devices/{uuid}/presence — account-scoped four-bucket state.
func (h *HTTP) devicePresence(w http.ResponseWriter, r *http.Request) {
	account := r.Header.Get("X-Account-ID")
	if account == "" {
		models.WriteProblemKind(w, http.StatusUnauthorized, string(faults.Unauthorized), "missing account identity", nil)
		return
	}
	id := mux.Vars(r)["uuid"]
	dev, err := h.devices.FindByUUID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			models.WriteProblemKind(w, http.StatusNotFound, string(faults.NotFound), "device not found", nil)
		} else {
			models.WriteProblemKind(w, http.StatusServiceUnavailable, string(faults.Unavailable), "device lookup failed", nil)
		}
		return
	}
	if dev.AccountID != account {
		models.WriteProblemKind(w, http.StatusForbidden, string(faults.Forbidden), "device belongs to another account", nil)
		return
	}

	now := time.Now().UTC()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"device_id":         dev.UUID,
		"state":             h.tracker.StateOf(dev, now),
		"is_online":         dev.IsOnline,
		"connection_status": dev.ConnectionStatus,
		"last_seen":         dev.LastSeen,
		"last_heartbeat":    dev.LastHeartbeat,
	})
}
