package commandq

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"sprout/internal/faults"
	"sprout/internal/models"

	"github.com/gorilla/mux"
)

type HTTP struct{ svc *Service }

func NewHTTP(s *Service) *HTTP { return &HTTP{svc: s} }

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/commands", h.enqueue).Methods(http.MethodPost)
	api.HandleFunc("/commands", h.retrieve).Methods(http.MethodGet)
	api.HandleFunc("/commands", h.report).Methods(http.MethodPut)
	api.HandleFunc("/commands", h.cancel).Methods(http.MethodDelete)
}

func writeFault(w http.ResponseWriter, err error) {
	kind := faults.KindOf(err)
	models.WriteProblemKind(w, faults.HTTPStatus(kind), string(kind), err.Error(), faults.DetailsOf(err))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// POST /api/v1/commands — caller/account auth via X-Account-ID.
func (h *HTTP) enqueue(w http.ResponseWriter, r *http.Request) {
	account := r.Header.Get("X-Account-ID")
	if account == "" {
		models.WriteProblemKind(w, http.StatusUnauthorized, string(faults.Unauthorized), "missing account identity", nil)
		return
	}
	var in struct {
		DeviceID     string         `json:"device_id"`
		CommandType  string         `json:"command_type"`
		Parameters   map[string]any `json:"parameters"`
		Priority     string         `json:"priority"`
		ScheduledFor *time.Time     `json:"scheduled_for"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblemKind(w, http.StatusBadRequest, string(faults.Validation), "invalid json", nil)
		return
	}
	if in.DeviceID == "" || in.CommandType == "" {
		models.WriteProblemKind(w, http.StatusBadRequest, string(faults.Validation),
			"device_id and command_type are required", nil)
		return
	}

	cmd, err := h.svc.Enqueue(EnqueueInput{
		AccountID:    account,
		DeviceID:     in.DeviceID,
		CommandType:  in.CommandType,
		Parameters:   in.Parameters,
		Priority:     in.Priority,
		ScheduledFor: in.ScheduledFor,
	})
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmd)
}

// GET /api/v1/commands?device_id=&apiKey=&limit=&priority= — device credential auth.
func (h *HTTP) retrieve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	deviceID := q.Get("device_id")
	if deviceID == "" {
		models.WriteProblemKind(w, http.StatusBadRequest, string(faults.Validation), "device_id required", nil)
		return
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	res, err := h.svc.Retrieve(deviceID, q.Get("apiKey"), limit, q.Get("priority"))
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"commands":      res.Commands,
		"total_pending": res.TotalPending,
		"retrieved_at":  res.RetrievedAt,
	})
}

// PUT /api/v1/commands — device reports a terminal status.
func (h *HTTP) report(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CommandID        string         `json:"command_id"`
		APIKey           string         `json:"apiKey"`
		Status           string         `json:"status"`
		ExecutionDetails map[string]any `json:"execution_details"`
		ErrorMessage     string         `json:"error_message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblemKind(w, http.StatusBadRequest, string(faults.Validation), "invalid json", nil)
		return
	}
	if in.CommandID == "" {
		models.WriteProblemKind(w, http.StatusBadRequest, string(faults.Validation), "command_id required", nil)
		return
	}

	cmd, err := h.svc.Report(ReportInput{
		CommandID:        in.CommandID,
		Secret:           in.APIKey,
		Status:           in.Status,
		ExecutionDetails: in.ExecutionDetails,
		ErrorMessage:     in.ErrorMessage,
	})
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmd)
}

// DELETE /api/v1/commands — caller cancels a still-pending command.
func (h *HTTP) cancel(w http.ResponseWriter, r *http.Request) {
	account := r.Header.Get("X-Account-ID")
	if account == "" {
		models.WriteProblemKind(w, http.StatusUnauthorized, string(faults.Unauthorized), "missing account identity", nil)
		return
	}
	var in struct {
		CommandID string `json:"command_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.CommandID == "" {
		models.WriteProblemKind(w, http.StatusBadRequest, string(faults.Validation), "command_id required", nil)
		return
	}

	cmd, err := h.svc.Cancel(in.CommandID, account)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmd)
}
