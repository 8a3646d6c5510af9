// Package ups defines the operational states a monitored UPS can report and
// the decoding of raw upsd status tokens into them.
package ups

import "strings"

// OperationalState is the decoded condition of a UPS device.
type OperationalState string

const (
	StateOnline         OperationalState = "online"
	StateOnBattery      OperationalState = "on_battery"
	StateLowBattery     OperationalState = "low_battery"
	StateReplaceBattery OperationalState = "replace_battery"
	StateCharging       OperationalState = "charging"
	StateDischarging    OperationalState = "discharging"
	StateBypass         OperationalState = "bypass"
	StateCalibration    OperationalState = "calibration"
	StateOff            OperationalState = "off"
	StateOverload       OperationalState = "overload"
	StateTrimming       OperationalState = "trimming"
	StateBoosting       OperationalState = "boosting"
	StateForcedShutdown OperationalState = "forced_shutdown"
	StateUnknown        OperationalState = "unknown"
)

// statusCodes maps upsd status codes to states in decode priority order.
// The first code contained in the raw token wins, so a token like "OB LB"
// resolves to on-battery even though the low-battery flag is also set.
var statusCodes = []struct {
	code  string
	state OperationalState
}{
	{"OL", StateOnline},
	{"OB", StateOnBattery},
	{"LB", StateLowBattery},
	{"RB", StateReplaceBattery},
	{"CHRG", StateCharging},
	{"DISCHRG", StateDischarging},
	{"BYPASS", StateBypass},
	{"CAL", StateCalibration},
	{"OFF", StateOff},
	{"OVER", StateOverload},
	{"TRIM", StateTrimming},
	{"BOOST", StateBoosting},
	{"FSD", StateForcedShutdown},
}

// labels provides the human-readable form used in notification messages.
var labels = map[OperationalState]string{
	StateOnline:         "Online",
	StateOnBattery:      "On Battery",
	StateLowBattery:     "Low Battery",
	StateReplaceBattery: "Replace Battery",
	StateCharging:       "Charging",
	StateDischarging:    "Discharging",
	StateBypass:         "Bypass",
	StateCalibration:    "Calibration",
	StateOff:            "Off",
	StateOverload:       "Overload",
	StateTrimming:       "Trimming",
	StateBoosting:       "Boosting",
	StateForcedShutdown: "Forced Shutdown",
	StateUnknown:        "Unknown",
}

// DecodeStatus translates a raw upsd status token (a whitespace-joined set of
// short codes such as "OL CHRG") into a single OperationalState. Unrecognized
// or empty input decodes to StateUnknown; there is no failure mode.
func DecodeStatus(raw string) OperationalState {
	token := strings.ToUpper(strings.TrimSpace(raw))
	if token == "" {
		return StateUnknown
	}

	for _, sc := range statusCodes {
		if strings.Contains(token, sc.code) {
			return sc.state
		}
	}

	return StateUnknown
}

// Label returns the display name for a state, e.g. "On Battery".
func (s OperationalState) Label() string {
	if label, ok := labels[s]; ok {
		return label
	}
	return labels[StateUnknown]
}

func (s OperationalState) String() string {
	return string(s)
}
