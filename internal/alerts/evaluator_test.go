package alerts

import (
	"testing"

	"sprout/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reading(sensorType string, value float64) *models.SensorReading {
	return &models.SensorReading{
		DeviceUUID: "dev-1",
		ZoneUUID:   "zone-1",
		SensorType: sensorType,
		Value:      value,
		Unit:       "%",
	}
}

func TestMoistureCritical(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())

	a := e.Evaluate(reading(models.SensorMoisture, 15))
	require.NotNil(t, a)
	assert.Equal(t, models.AlertLowMoisture, a.AlertType)
	assert.Equal(t, models.SeverityCritical, a.Severity)
	assert.False(t, a.IsRead)
	assert.NotEmpty(t, a.UUID)

	// strict <: exactly 20 does not fire
	assert.Nil(t, e.Evaluate(reading(models.SensorMoisture, 20)))
}

func TestTemperatureHighStrictBoundary(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())

	a := e.Evaluate(reading(models.SensorTemperature, 36))
	require.NotNil(t, a)
	assert.Equal(t, models.AlertHighTemperature, a.AlertType)
	assert.Equal(t, models.SeverityHigh, a.Severity)

	assert.Nil(t, e.Evaluate(reading(models.SensorTemperature, 35)))
}

func TestHumidityLow(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())

	a := e.Evaluate(reading(models.SensorHumidity, 25))
	require.NotNil(t, a)
	assert.Equal(t, models.AlertLowHumidity, a.AlertType)
	assert.Equal(t, models.SeverityMedium, a.Severity)

	assert.Nil(t, e.Evaluate(reading(models.SensorHumidity, 30)))
}

func TestLightNeverFires(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())
	assert.Nil(t, e.Evaluate(reading(models.SensorLight, 0)))
	assert.Nil(t, e.Evaluate(reading(models.SensorLight, 100000)))
}

func TestInjectedThresholds(t *testing.T) {
	e := NewEvaluator(Thresholds{MoistureCriticalBelow: 50, TemperatureHighAbove: 10, HumidityLowBelow: 5})
	assert.NotNil(t, e.Evaluate(reading(models.SensorMoisture, 40)))
	assert.NotNil(t, e.Evaluate(reading(models.SensorTemperature, 11)))
	assert.Nil(t, e.Evaluate(reading(models.SensorHumidity, 6)))
}

// No suppression window: identical readings keep producing new alerts.
func TestEvaluateNoDedup(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())
	first := e.Evaluate(reading(models.SensorMoisture, 10))
	second := e.Evaluate(reading(models.SensorMoisture, 10))
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.NotEqual(t, first.UUID, second.UUID)
}
