// Package alerts evaluates threshold rules against accepted readings and owns
// the alert rows they produce.
package alerts

import (
	"fmt"

	"sprout/internal/models"

	"github.com/google/uuid"
)

// Thresholds — injectable so tests and deployments can tune the rules without
// touching the table below.
type Thresholds struct {
	MoistureCriticalBelow float64
	TemperatureHighAbove  float64
	HumidityLowBelow      float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MoistureCriticalBelow: 20,
		TemperatureHighAbove:  35,
		HumidityLowBelow:      30,
	}
}

type rule struct {
	sensorType string
	alertType  string
	severity   string
	match      func(value float64, th Thresholds) bool
	message    func(value float64, unit string, th Thresholds) string
}

// First match wins per sensor type; at most one alert per reading. Comparisons
// are strict: moisture=20, temperature=35, humidity=30 do not fire.
var rules = []rule{
	{
		sensorType: models.SensorMoisture,
		alertType:  models.AlertLowMoisture,
		severity:   models.SeverityCritical,
		match:      func(v float64, th Thresholds) bool { return v < th.MoistureCriticalBelow },
		message: func(v float64, unit string, th Thresholds) string {
			return fmt.Sprintf("moisture %.1f%s below critical threshold %.1f", v, unit, th.MoistureCriticalBelow)
		},
	},
	{
		sensorType: models.SensorTemperature,
		alertType:  models.AlertHighTemperature,
		severity:   models.SeverityHigh,
		match:      func(v float64, th Thresholds) bool { return v > th.TemperatureHighAbove },
		message: func(v float64, unit string, th Thresholds) string {
			return fmt.Sprintf("temperature %.1f%s above threshold %.1f", v, unit, th.TemperatureHighAbove)
		},
	},
	{
		sensorType: models.SensorHumidity,
		alertType:  models.AlertLowHumidity,
		severity:   models.SeverityMedium,
		match:      func(v float64, th Thresholds) bool { return v < th.HumidityLowBelow },
		message: func(v float64, unit string, th Thresholds) string {
			return fmt.Sprintf("humidity %.1f%s below threshold %.1f", v, unit, th.HumidityLowBelow)
		},
	},
}

type Evaluator struct {
	th Thresholds
}

func NewEvaluator(th Thresholds) *Evaluator {
	return &Evaluator{th: th}
}

// Evaluate is stateless and side-effect-free: it returns the alert a reading
// warrants, or nil. It deliberately does not deduplicate against recent
// identical alerts; every qualifying reading produces a new row.
func (e *Evaluator) Evaluate(r *models.SensorReading) *models.Alert {
	for _, rl := range rules {
		if rl.sensorType != r.SensorType {
			continue
		}
		if !rl.match(r.Value, e.th) {
			return nil
		}
		return &models.Alert{
			UUID:       uuid.NewString(),
			DeviceUUID: r.DeviceUUID,
			ZoneUUID:   r.ZoneUUID,
			AlertType:  rl.alertType,
			Severity:   rl.severity,
			Message:    rl.message(r.Value, r.Unit, e.th),
			IsRead:     false,
		}
	}
	return nil
}
