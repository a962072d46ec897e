package netatmo

import (
	"strconv"
	"strings"
	"time"
)

// MeasureType identifies one kind of telemetry sample. The integer codes are
// stable and part of the stored record layout; never renumber them.
type MeasureType int

const (
	Temperature MeasureType = iota
	CO2
	Humidity
	Pressure
	Noise
	Rain
	WindStrength
	WindAngle
)

var measureTypeNames = map[MeasureType]string{
	Temperature:  "Temperature",
	CO2:          "CO2",
	Humidity:     "Humidity",
	Pressure:     "Pressure",
	Noise:        "Noise",
	Rain:         "Rain",
	WindStrength: "WindStrength",
	WindAngle:    "WindAngle",
}

var measureTypeUnits = map[MeasureType]string{
	Temperature:  "°C",
	CO2:          "ppm",
	Humidity:     "%",
	Pressure:     "mbar",
	Noise:        "db",
	Rain:         "mm",
	WindStrength: "km/h",
	WindAngle:    "°",
}

func (t MeasureType) String() string {
	if name, ok := measureTypeNames[t]; ok {
		return name
	}
	return "MeasureType(" + strconv.Itoa(int(t)) + ")"
}

// Unit returns the display unit for this measurement type.
func (t MeasureType) Unit() string {
	return measureTypeUnits[t]
}

// ParseMeasureType resolves a measurement type by its canonical name.
func ParseMeasureType(name string) (MeasureType, bool) {
	for t, n := range measureTypeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// TypesForDevice maps a cloud device type to the ordered measurement types it
// reports. The order matters: getmeasure value rows are positional and are
// zipped against this list. Unknown device types report nothing.
func TypesForDevice(deviceType string) []MeasureType {
	switch deviceType {
	case "NAMain":
		return []MeasureType{Temperature, CO2, Humidity, Pressure, Noise}
	case "NAModule1", "NAModule4":
		return []MeasureType{Temperature, Humidity}
	case "NAModule3":
		return []MeasureType{Rain}
	case "NAModule2":
		return []MeasureType{WindStrength, WindAngle}
	default:
		return nil
	}
}

// TypeCodesCSV renders types as the comma-joined numeric codes the getmeasure
// endpoint expects.
func TypeCodesCSV(types []MeasureType) string {
	codes := make([]string, 0, len(types))
	for _, t := range types {
		codes = append(codes, strconv.Itoa(int(t)))
	}
	return strings.Join(codes, ",")
}

// Station is a top-level device (base unit). Stations are created once per
// discovered id and never mutated afterwards.
type Station struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// MeasurementTypes returns the ordered measurement type set of this station.
func (s Station) MeasurementTypes() []MeasureType {
	return TypesForDevice(s.Type)
}

// Module is a sensor attached to a station.
type Module struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	StationID string `json:"stationId"`
}

// MeasurementTypes returns the ordered measurement type set of this module.
func (m Module) MeasurementTypes() []MeasureType {
	return TypesForDevice(m.Type)
}

// Measure is a single telemetry sample. ModuleID is empty for samples owned
// by the station itself. (StationID, ModuleID, Type, Timestamp) is unique.
type Measure struct {
	StationID string      `json:"stationId"`
	ModuleID  string      `json:"moduleId,omitempty"`
	Type      MeasureType `json:"type"`
	Value     float64     `json:"value"`
	Timestamp time.Time   `json:"timestamp"`
}

// Unit returns the display unit of the sample's measurement type.
func (m Measure) Unit() string {
	return m.Type.Unit()
}

// Token is a persisted OAuth credential. Two records exist at most, named
// TokenNameAuth and TokenNameRefresh. ExpiresAt is authoritative for
// validity; "expired" is a read-time classification, not a stored state.
type Token struct {
	Name      string
	Value     string
	ExpiresAt time.Time
}

// Token record names.
const (
	TokenNameAuth    = "authToken"
	TokenNameRefresh = "refreshToken"
)

// Valid reports whether the token is still usable at the given instant.
func (t Token) Valid(now time.Time) bool {
	return now.Before(t.ExpiresAt)
}
