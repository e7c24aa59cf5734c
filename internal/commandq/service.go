package commandq

import (
	"errors"
	"fmt"
	"time"

	"sprout/config"
	"sprout/internal/cmdschema"
	"sprout/internal/events"
	"sprout/internal/faults"
	"sprout/internal/logs"
	"sprout/internal/models"
	"sprout/internal/presence"
	"sprout/internal/repo"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service owns the command state machine and ordering policy per device. It is
// stateless: all mutual exclusion lives in conditional updates against the
// store, so any number of gateway instances can run it concurrently.
type Service struct {
	repo    *Repo
	devices *repo.DeviceStore
	creds   *repo.CredentialStore
	tracker *presence.Tracker
	bus     events.Publisher
	cfg     config.GatewayConfig
}

func NewService(r *Repo, devices *repo.DeviceStore, creds *repo.CredentialStore,
	tracker *presence.Tracker, bus events.Publisher, cfg config.GatewayConfig) *Service {
	if bus == nil {
		bus = events.Nop{}
	}
	return &Service{repo: r, devices: devices, creds: creds, tracker: tracker, bus: bus, cfg: cfg}
}

type EnqueueInput struct {
	AccountID    string
	DeviceID     string
	CommandType  string
	Parameters   map[string]any
	Priority     string
	ScheduledFor *time.Time
}

// Enqueue validates against the schema registry, checks device ownership,
// snapshots the presence hint and persists a pending command. Never blocks
// waiting for device pickup.
func (s *Service) Enqueue(in EnqueueInput) (*models.Command, error) {
	if errs := cmdschema.Validate(in.CommandType, in.Parameters); len(errs) > 0 {
		return nil, faults.NewValidation("invalid command", errs)
	}

	priority := in.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	rank := models.PriorityRank(priority)
	if rank < 0 {
		return nil, faults.NewValidation("invalid command",
			[]string{fmt.Sprintf("unknown priority: %s", priority)})
	}

	dev, err := s.devices.FindByUUID(in.DeviceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, faults.New(faults.NotFound, "device not found")
		}
		return nil, faults.Wrap(faults.Unavailable, "device lookup failed", err)
	}
	if dev.AccountID != in.AccountID {
		return nil, faults.New(faults.Forbidden, "device belongs to another account")
	}

	now := time.Now().UTC()
	cmd := &models.Command{
		UUID:         uuid.NewString(),
		DeviceUUID:   dev.UUID,
		AccountID:    in.AccountID,
		CommandType:  in.CommandType,
		Parameters:   models.JSONMap(in.Parameters),
		Priority:     priority,
		PriorityRank: rank,
		Status:       models.StatusPending,
		ScheduledFor: in.ScheduledFor,
		EstimatedMS:  cmdschema.Estimate(in.CommandType, in.Parameters).Milliseconds(),
		DeviceOnline: s.tracker.OnlineHint(dev, now), // snapshot, not authoritative
	}
	if err := s.repo.Create(cmd); err != nil {
		return nil, faults.Wrap(faults.Unavailable, "command write failed", err)
	}

	s.bus.Publish(events.TopicCommandCreated, cmd)
	return cmd, nil
}

type RetrieveResult struct {
	Commands     []models.Command
	TotalPending int64
	RetrievedAt  time.Time
}

// Retrieve authenticates the device credential and atomically claims up to
// limit pending commands (priority DESC, creation ASC). At-most-once per
// retrieval: a concurrent retriever never receives the same command.
func (s *Service) Retrieve(deviceID, secret string, limit int, priorityFilter string) (*RetrieveResult, error) {
	if _, err := s.creds.AuthenticateDevice(secret, deviceID); err != nil {
		return nil, err
	}
	if priorityFilter != "" && models.PriorityRank(priorityFilter) < 0 {
		return nil, faults.NewValidation("invalid retrieve request",
			[]string{fmt.Sprintf("unknown priority: %s", priorityFilter)})
	}
	if limit <= 0 {
		limit = s.cfg.RetrieveLimit
	}
	if max := s.cfg.RetrieveMaxLimit; max > 0 && limit > max {
		limit = max
	}

	now := time.Now().UTC()
	claimed, err := s.repo.ClaimPending(deviceID, limit, priorityFilter, now)
	if err != nil {
		return nil, faults.Wrap(faults.Unavailable, "command claim failed", err)
	}
	remaining, err := s.repo.CountPending(deviceID)
	if err != nil {
		return nil, faults.Wrap(faults.Unavailable, "pending count failed", err)
	}
	return &RetrieveResult{Commands: claimed, TotalPending: remaining, RetrievedAt: now}, nil
}

type ReportInput struct {
	CommandID        string
	Secret           string
	Status           string
	ExecutionDetails map[string]any
	ErrorMessage     string
}

// Report accepts the device's terminal status for a command it picked up.
func (s *Service) Report(in ReportInput) (*models.Command, error) {
	if in.Status != models.StatusExecuted && in.Status != models.StatusFailed {
		return nil, faults.NewValidation("invalid report",
			[]string{fmt.Sprintf("status must be %s or %s", models.StatusExecuted, models.StatusFailed)})
	}

	cmd, err := s.repo.FindByUUID(in.CommandID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, faults.New(faults.NotFound, "command not found")
		}
		return nil, faults.Wrap(faults.Unavailable, "command lookup failed", err)
	}
	if _, err := s.creds.AuthenticateDevice(in.Secret, cmd.DeviceUUID); err != nil {
		return nil, err
	}
	if models.IsTerminalStatus(cmd.Status) {
		return nil, faults.New(faults.InvalidTransition,
			fmt.Sprintf("command already %s", cmd.Status))
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"completed_at":      now,
		"execution_details": models.JSONMap(in.ExecutionDetails),
		"error_message":     in.ErrorMessage,
	}
	if in.Status == models.StatusExecuted {
		updates["executed_at"] = now
	}
	swapped, err := s.repo.Transition(cmd.UUID, cmd.Status, in.Status, cmd.DeviceUUID, "device report", updates)
	if err != nil {
		return nil, faults.Wrap(faults.Unavailable, "command update failed", err)
	}
	if !swapped {
		return nil, faults.New(faults.Conflict, "command changed concurrently, retry")
	}
	return s.repo.FindByUUID(cmd.UUID)
}

// Cancel is caller-initiated and only valid against pending commands; once a
// device picked a command up, abort via an off-setting command (e.g. PUMP_OFF)
// or let the timeout sweep reap it.
func (s *Service) Cancel(commandID, accountID string) (*models.Command, error) {
	cmd, err := s.repo.FindByUUID(commandID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, faults.New(faults.NotFound, "command not found")
		}
		return nil, faults.Wrap(faults.Unavailable, "command lookup failed", err)
	}
	if cmd.AccountID != accountID {
		return nil, faults.New(faults.Forbidden, "command belongs to another account")
	}
	if cmd.Status != models.StatusPending {
		return nil, faults.New(faults.InvalidTransition,
			fmt.Sprintf("only pending commands can be cancelled (status is %s)", cmd.Status))
	}

	now := time.Now().UTC()
	swapped, err := s.repo.Transition(cmd.UUID, models.StatusPending, models.StatusCancelled, accountID, "cancelled by caller",
		map[string]any{"cancelled_at": now, "cancelled_by": accountID, "completed_at": now})
	if err != nil {
		return nil, faults.Wrap(faults.Unavailable, "command update failed", err)
	}
	if !swapped {
		return nil, faults.New(faults.Conflict, "command changed concurrently, retry")
	}
	return s.repo.FindByUUID(cmd.UUID)
}

// SweepTimeouts reaps commands stuck in_progress past estimate*TimeoutFactor.
// Same CAS discipline as retrieve: each transition is conditional, so
// concurrent sweeps or late device reports cannot double-finalize.
func (s *Service) SweepTimeouts(now time.Time) (int, error) {
	factor := s.cfg.TimeoutFactor
	if factor <= 0 {
		factor = 3
	}
	stale, err := s.repo.StaleInProgress(factor, now)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, c := range stale {
		swapped, err := s.repo.Transition(c.UUID, models.StatusInProgress, models.StatusTimeout, "sweeper", "execution timeout",
			map[string]any{"completed_at": now, "error_message": "execution timed out"})
		if err != nil {
			return swept, err
		}
		if swapped {
			swept++
			logs.Logger.Warnf("command %s timed out (type=%s device=%s)", c.UUID, c.CommandType, c.DeviceUUID)
		}
	}
	return swept, nil
}
