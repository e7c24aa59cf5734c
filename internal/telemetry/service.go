package telemetry

import (
	"errors"
	"fmt"
	"time"

	"sprout/internal/alerts"
	"sprout/internal/cmdschema"
	"sprout/internal/faults"
	"sprout/internal/models"
	"sprout/internal/presence"
	"sprout/internal/repo"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service is the telemetry write path: authenticate, persist, update derived
// state, return the actuation hint. It never commands a pump itself; callers
// translate the hint into an enqueued command so all actuation stays auditable
// through the queue.
type Service struct {
	db        *gorm.DB
	store     *Store
	devices   *repo.DeviceStore
	zones     *repo.ZoneStore
	creds     *repo.CredentialStore
	tracker   *presence.Tracker
	evaluator *alerts.Evaluator
	alerts    *alerts.Store
}

func NewService(db *gorm.DB, store *Store, devices *repo.DeviceStore, zones *repo.ZoneStore,
	creds *repo.CredentialStore, tracker *presence.Tracker,
	evaluator *alerts.Evaluator, alertStore *alerts.Store) *Service {
	return &Service{
		db: db, store: store, devices: devices, zones: zones, creds: creds,
		tracker: tracker, evaluator: evaluator, alerts: alertStore,
	}
}

type IngestInput struct {
	DeviceID       string
	ZoneID         string
	SensorType     string
	Value          any // coerced; non-numeric input is rejected
	Unit           string
	Secret         string
	BatteryLevel   *float64
	SignalStrength *float64
}

type IngestResult struct {
	IrrigationNeeded bool   `json:"irrigation_needed"`
	ReadingID        string `json:"reading_id"`
}

// Ingest accepts one reading. Steps are all-or-nothing: the reading row, the
// freshness upsert, the device touch and any alert commit together or not at
// all.
func (s *Service) Ingest(in IngestInput) (*IngestResult, error) {
	cred, err := s.creds.AuthenticateDevice(in.Secret, in.DeviceID)
	if err != nil {
		return nil, err
	}

	value, ok := cmdschema.Number(in.Value)
	if !ok {
		return nil, faults.NewValidation("invalid reading", []string{"value must be numeric"})
	}
	if !models.KnownSensorType(in.SensorType) {
		return nil, faults.NewValidation("invalid reading",
			[]string{fmt.Sprintf("unknown sensor type: %s", in.SensorType)})
	}

	zone, err := s.zones.FindByUUID(in.ZoneID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, faults.New(faults.NotFound, "zone not found")
		}
		return nil, faults.Wrap(faults.Unavailable, "zone lookup failed", err)
	}
	dev, err := s.devices.FindByUUID(in.DeviceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, faults.New(faults.NotFound, "device not found")
		}
		return nil, faults.Wrap(faults.Unavailable, "device lookup failed", err)
	}
	// cross-entity ownership: guards against spoofed zone assignment
	if dev.AccountID != zone.AccountID || cred.AccountID != dev.AccountID {
		return nil, faults.New(faults.Forbidden, "device and zone belong to different accounts")
	}

	now := time.Now().UTC()
	reading := &models.SensorReading{
		UUID:           uuid.NewString(),
		DeviceUUID:     dev.UUID,
		ZoneUUID:       zone.UUID,
		SensorType:     in.SensorType,
		Value:          value,
		Unit:           in.Unit,
		BatteryLevel:   in.BatteryLevel,
		SignalStrength: in.SignalStrength,
		ReadingAt:      now,
	}

	var alert *models.Alert
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.store.AppendReading(tx, reading); err != nil {
			return err
		}
		if err := s.store.UpsertFreshness(tx, zone.UUID, dev.UUID, in.SensorType, value, now); err != nil {
			return err
		}
		if err := s.devices.Touch(tx, dev.UUID, now); err != nil {
			return err
		}
		if alert = s.evaluator.Evaluate(reading); alert != nil {
			if err := s.alerts.Create(tx, alert); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, faults.Wrap(faults.Unavailable, "telemetry write failed", err)
	}

	// post-commit side effects
	s.tracker.Touch(dev.UUID, now)
	if alert != nil {
		s.alerts.Announce(alert)
	}

	needed := in.SensorType == models.SensorMoisture &&
		zone.MoistureThreshold != nil &&
		value < *zone.MoistureThreshold
	return &IngestResult{IrrigationNeeded: needed, ReadingID: reading.UUID}, nil
}
