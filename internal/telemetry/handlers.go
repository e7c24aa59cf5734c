package telemetry

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"sprout/internal/faults"
	"sprout/internal/models"
	"sprout/internal/repo"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type HTTP struct {
	svc   *Service
	store *Store
	zones *repo.ZoneStore
}

func NewHTTP(svc *Service, store *Store, zones *repo.ZoneStore) *HTTP {
	return &HTTP{svc: svc, store: store, zones: zones}
}

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/telemetry", h.ingest).Methods(http.MethodPost)
	api.HandleFunc("/zones/{zone}/freshness", h.zoneFreshness).Methods(http.MethodGet)
}

func writeFault(w http.ResponseWriter, err error) {
	kind := faults.KindOf(err)
	models.WriteProblemKind(w, faults.HTTPStatus(kind), string(kind), err.Error(), faults.DetailsOf(err))
}

// POST /api/v1/telemetry — device credential auth, apiKey in the body as the
// firmware sends it.
func (h *HTTP) ingest(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DeviceID       string   `json:"device_id"`
		ZoneID         string   `json:"zone_id"`
		SensorType     string   `json:"sensor_type"`
		Value          any      `json:"value"`
		Unit           string   `json:"unit"`
		APIKey         string   `json:"apiKey"`
		BatteryLevel   *float64 `json:"battery_level"`
		SignalStrength *float64 `json:"signal_strength"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblemKind(w, http.StatusBadRequest, string(faults.Validation), "invalid json", nil)
		return
	}
	var missing []string
	if in.DeviceID == "" {
		missing = append(missing, "device_id is required")
	}
	if in.ZoneID == "" {
		missing = append(missing, "zone_id is required")
	}
	if in.SensorType == "" {
		missing = append(missing, "sensor_type is required")
	}
	if in.Value == nil {
		missing = append(missing, "value is required")
	}
	if len(missing) > 0 {
		models.WriteProblemKind(w, http.StatusBadRequest, string(faults.Validation), "invalid reading", missing)
		return
	}

	res, err := h.svc.Ingest(IngestInput{
		DeviceID:       in.DeviceID,
		ZoneID:         in.ZoneID,
		SensorType:     in.SensorType,
		Value:          in.Value,
		Unit:           in.Unit,
		Secret:         in.APIKey,
		BatteryLevel:   in.BatteryLevel,
		SignalStrength: in.SignalStrength,
	})
	if err != nil {
		writeFault(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

// GET /api/v1/zones/{zone}/freshness?device_id= — account-scoped cache view.
func (h *HTTP) zoneFreshness(w http.ResponseWriter, r *http.Request) {
	account := r.Header.Get("X-Account-ID")
	if account == "" {
		models.WriteProblemKind(w, http.StatusUnauthorized, string(faults.Unauthorized), "missing account identity", nil)
		return
	}
	zoneID := mux.Vars(r)["zone"]
	zone, err := h.zones.FindByUUID(zoneID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			models.WriteProblemKind(w, http.StatusNotFound, string(faults.NotFound), "zone not found", nil)
		} else {
			models.WriteProblemKind(w, http.StatusServiceUnavailable, string(faults.Unavailable), "zone lookup failed", nil)
		}
		return
	}
	if zone.AccountID != account {
		models.WriteProblemKind(w, http.StatusForbidden, string(faults.Forbidden), "zone belongs to another account", nil)
		return
	}

	now := time.Now().UTC()
	w.Header().Set("Content-Type", "application/json")
	if deviceID := r.URL.Query().Get("device_id"); deviceID != "" {
		row, err := h.store.GetFreshness(zone.UUID, deviceID, now)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				models.WriteProblemKind(w, http.StatusNotFound, string(faults.NotFound), "no cached readings for device", nil)
			} else {
				models.WriteProblemKind(w, http.StatusServiceUnavailable, string(faults.Unavailable), "cache read failed", nil)
			}
			return
		}
		_ = json.NewEncoder(w).Encode(row)
		return
	}
	rows, err := h.store.ListFreshness(zone.UUID, now)
	if err != nil {
		models.WriteProblemKind(w, http.StatusServiceUnavailable, string(faults.Unavailable), "cache read failed", nil)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"zone_id": zone.UUID, "freshness": rows})
}
