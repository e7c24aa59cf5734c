package cmdschema

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimal valid parameter set per command type
var minimalParams = map[string]map[string]any{
	PumpOn:          {},
	PumpOff:         {},
	PumpDuration:    {"duration": 5000.0},
	CalibrateSensor: {"sensor_type": "moisture", "min_value": 0.0, "max_value": 100.0},
	UpdateFirmware:  {"version": "v1.2.3"},
	SystemReboot:    {},
	GetStatus:       {},
}

func TestCatalogMinimalValid(t *testing.T) {
	for _, def := range Catalog {
		params, ok := minimalParams[def.Type]
		require.True(t, ok, "no minimal params for %s", def.Type)
		assert.Empty(t, Validate(def.Type, params), "type %s", def.Type)
	}
}

func TestMissingRequiredNamesParameter(t *testing.T) {
	for _, def := range Catalog {
		for _, p := range def.Params {
			if !p.Required {
				continue
			}
			params := map[string]any{}
			for k, v := range minimalParams[def.Type] {
				if k != p.Name {
					params[k] = v
				}
			}
			errs := Validate(def.Type, params)
			require.NotEmpty(t, errs, "%s without %s", def.Type, p.Name)
			assert.Contains(t, errs, fmt.Sprintf("missing required parameter: %s", p.Name))
		}
	}
}

func TestUnknownCommandType(t *testing.T) {
	errs := Validate("SELF_DESTRUCT", nil)
	require.Len(t, errs, 1)
	assert.Equal(t, "unknown command type: SELF_DESTRUCT", errs[0])
}

func TestPumpDurationBounds(t *testing.T) {
	cases := []struct {
		duration float64
		valid    bool
	}{
		{500, false},
		{999, false},
		{1000, true},   // inclusive lower bound
		{5000, true},
		{300000, true}, // inclusive upper bound
		{300001, false},
	}
	for _, c := range cases {
		errs := Validate(PumpDuration, map[string]any{"duration": c.duration})
		if c.valid {
			assert.Empty(t, errs, "duration=%v", c.duration)
		} else {
			assert.NotEmpty(t, errs, "duration=%v", c.duration)
		}
	}
}

func TestPumpOnDurationUnconstrained(t *testing.T) {
	assert.Empty(t, Validate(PumpOn, map[string]any{"duration": 999999.0}))
}

func TestFirmwareVersionShape(t *testing.T) {
	valid := []string{"v1.0.0", "v0.0.1", "v12.34.56"}
	invalid := []string{"1.0.0", "v1.0", "v1", "latest", "v1.0.0-rc1", "v1.0.0+build"}

	for _, v := range valid {
		assert.Empty(t, Validate(UpdateFirmware, map[string]any{"version": v}), "version=%s", v)
	}
	for _, v := range invalid {
		assert.NotEmpty(t, Validate(UpdateFirmware, map[string]any{"version": v}), "version=%s", v)
	}
}

func TestRebootDelayRange(t *testing.T) {
	assert.Empty(t, Validate(SystemReboot, map[string]any{"delay": 0.0}))
	assert.Empty(t, Validate(SystemReboot, map[string]any{"delay": 60000.0}))
	assert.NotEmpty(t, Validate(SystemReboot, map[string]any{"delay": 60001.0}))
	assert.NotEmpty(t, Validate(SystemReboot, map[string]any{"delay": -1.0}))
}

func TestUnknownParameterRejected(t *testing.T) {
	errs := Validate(PumpOff, map[string]any{"bogus": 1})
	require.Len(t, errs, 1)
	assert.Equal(t, "unknown parameter: bogus", errs[0])
}

func TestValidateReturnsAllViolations(t *testing.T) {
	errs := Validate(CalibrateSensor, map[string]any{"sensor_type": "sound"})
	// bad enum + two missing required params
	assert.Len(t, errs, 3)
}

func TestEstimate(t *testing.T) {
	assert.Equal(t, 2*time.Minute, Estimate(UpdateFirmware, nil))
	// numeric duration parameter overrides the per-type default
	assert.Equal(t, 10*time.Second, Estimate(PumpDuration, map[string]any{"duration": 10000.0}))
	assert.Equal(t, time.Duration(0), Estimate("NOPE", nil))
}
