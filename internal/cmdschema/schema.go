// Package cmdschema is the command schema registry: per command type, the
// required/optional parameter names, their validation rules and an estimated
// execution duration (ETA hint + timeout sweep input). Adding a command type
// means adding one Catalog entry; nothing else in the gateway changes.
package cmdschema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

type ParamDef struct {
	Name     string
	Required bool
	Validate func(v any) error // nil -> presence is enough
}

type CommandDef struct {
	Type              string
	Params            []ParamDef
	EstimatedDuration time.Duration
}

// Built-in command types.
const (
	PumpOn          = "PUMP_ON"
	PumpOff         = "PUMP_OFF"
	PumpDuration    = "PUMP_DURATION"
	CalibrateSensor = "CALIBRATE_SENSOR"
	UpdateFirmware  = "UPDATE_FIRMWARE"
	SystemReboot    = "SYSTEM_REBOOT"
	GetStatus       = "GET_STATUS"
)

/* ——— validators ——— */

// Number coerces a JSON-decoded value to float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func numeric(v any) error {
	if _, ok := Number(v); !ok {
		return fmt.Errorf("must be numeric")
	}
	return nil
}

func numRange(min, max float64) func(any) error {
	return func(v any) error {
		n, ok := Number(v)
		if !ok {
			return fmt.Errorf("must be numeric")
		}
		if n < min || n > max {
			return fmt.Errorf("out of range [%g..%g]", min, max)
		}
		return nil
	}
}

func oneOf(allowed ...string) func(any) error {
	return func(v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("must be a string")
		}
		for _, a := range allowed {
			if s == a {
				return nil
			}
		}
		return fmt.Errorf("must be one of %s", strings.Join(allowed, "|"))
	}
}

// firmwareVersion requires the exact vMAJOR.MINOR.PATCH shape the firmware
// updater understands; semver pre-release/build suffixes are rejected.
func firmwareVersion(v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("must be a string")
	}
	if !strings.HasPrefix(s, "v") {
		return fmt.Errorf("must match vMAJOR.MINOR.PATCH")
	}
	ver, err := semver.StrictNewVersion(strings.TrimPrefix(s, "v"))
	if err != nil || ver.Prerelease() != "" || ver.Metadata() != "" {
		return fmt.Errorf("must match vMAJOR.MINOR.PATCH")
	}
	return nil
}

/* ——— catalog ——— */

var Catalog = []CommandDef{
	{
		Type:              PumpOn,
		EstimatedDuration: 5 * time.Second,
		Params: []ParamDef{
			{Name: "duration"}, // optional, unconstrained
		},
	},
	{
		Type:              PumpOff,
		EstimatedDuration: 1 * time.Second,
	},
	{
		Type:              PumpDuration,
		EstimatedDuration: 5 * time.Second,
		Params: []ParamDef{
			{Name: "duration", Required: true, Validate: numRange(1000, 300000)},
			{Name: "intensity"},
		},
	},
	{
		Type:              CalibrateSensor,
		EstimatedDuration: 10 * time.Second,
		Params: []ParamDef{
			{Name: "sensor_type", Required: true, Validate: oneOf("moisture", "temperature", "humidity", "light")},
			{Name: "min_value", Required: true, Validate: numeric},
			{Name: "max_value", Required: true, Validate: numeric},
			{Name: "unit"},
		},
	},
	{
		Type:              UpdateFirmware,
		EstimatedDuration: 2 * time.Minute,
		Params: []ParamDef{
			{Name: "version", Required: true, Validate: firmwareVersion},
			{Name: "url"},
			{Name: "checksum"},
		},
	},
	{
		Type:              SystemReboot,
		EstimatedDuration: 30 * time.Second,
		Params: []ParamDef{
			{Name: "delay", Validate: numRange(0, 60000)},
		},
	},
	{
		Type:              GetStatus,
		EstimatedDuration: 2 * time.Second,
		Params: []ParamDef{
			{Name: "include_sensors"},
			{Name: "include_network"},
		},
	},
}

var byType map[string]CommandDef

func init() {
	byType = make(map[string]CommandDef, len(Catalog))
	for _, d := range Catalog {
		byType[d.Type] = d
	}
}

func Def(commandType string) (CommandDef, bool) {
	d, ok := byType[commandType]
	return d, ok
}

// Validate checks parameters against the registry. Pure; returns nil when
// valid, otherwise every violated rule (not just the first).
func Validate(commandType string, params map[string]any) []string {
	def, ok := byType[commandType]
	if !ok {
		return []string{fmt.Sprintf("unknown command type: %s", commandType)}
	}

	known := make(map[string]ParamDef, len(def.Params))
	for _, p := range def.Params {
		known[p.Name] = p
	}

	var errs []string
	for _, p := range def.Params {
		v, present := params[p.Name]
		if !present {
			if p.Required {
				errs = append(errs, fmt.Sprintf("missing required parameter: %s", p.Name))
			}
			continue
		}
		if p.Validate != nil {
			if err := p.Validate(v); err != nil {
				errs = append(errs, fmt.Sprintf("parameter %s: %v", p.Name, err))
			}
		}
	}

	// reject parameters the type does not declare; deterministic order
	var extras []string
	for name := range params {
		if _, ok := known[name]; !ok {
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)
	for _, name := range extras {
		errs = append(errs, fmt.Sprintf("unknown parameter: %s", name))
	}

	return errs
}

// Estimate returns the expected execution time for an enqueued command; a
// numeric duration parameter overrides the per-type default.
func Estimate(commandType string, params map[string]any) time.Duration {
	def, ok := byType[commandType]
	if !ok {
		return 0
	}
	if v, present := params["duration"]; present {
		if n, ok := Number(v); ok && n > 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return def.EstimatedDuration
}
