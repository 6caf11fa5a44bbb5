package meter

import (
	"fmt"
	"time"
)

// Measurement is the name every data point is written under.
const Measurement = "energy_consumption"

// APIPath is the telemetry endpoint served by every meter.
const APIPath = "/api/v1/data"

// Reading is one validated meter payload.
type Reading struct {
	WifiStrength        int64
	TotalPowerImportKWh float64
	TotalPowerExportKWh float64
	ActivePowerW        float64
	ActivePowerL1W      float64
	ActivePowerL2W      float64
	ActivePowerL3W      float64
}

// Fields returns the reading keyed by its wire names.
func (r Reading) Fields() map[string]interface{} {
	return map[string]interface{}{
		"wifi_strength":          r.WifiStrength,
		"total_power_import_kwh": r.TotalPowerImportKWh,
		"total_power_export_kwh": r.TotalPowerExportKWh,
		"active_power_w":         r.ActivePowerW,
		"active_power_l1_w":      r.ActivePowerL1W,
		"active_power_l2_w":      r.ActivePowerL2W,
		"active_power_l3_w":      r.ActivePowerL3W,
	}
}

// DataPoint is a reading ready for the sink.
type DataPoint struct {
	Measurement string
	Tags        map[string]string
	Time        time.Time
	Fields      map[string]interface{}
}

// NewDataPoint tags a reading with the meter name and stamps it with now in UTC.
func NewDataPoint(name string, r Reading, now time.Time) DataPoint {
	return DataPoint{
		Measurement: Measurement,
		Tags:        map[string]string{"meter": name},
		Time:        now.UTC(),
		Fields:      r.Fields(),
	}
}

// Meter returns the meter tag.
func (p DataPoint) Meter() string {
	return p.Tags["meter"]
}

// Timestamp renders the point time as ISO-8601 with UTC offset.
func (p DataPoint) Timestamp() string {
	return p.Time.Format(time.RFC3339Nano)
}

// InfluxMeasurement …
func (p DataPoint) InfluxMeasurement() string {
	return p.Measurement
}

// InfluxTags …
func (p DataPoint) InfluxTags() map[string]string {
	return p.Tags
}

// InfluxFields …
func (p DataPoint) InfluxFields() map[string]interface{} {
	return p.Fields
}

// String is used for log output.
func (p DataPoint) String() string {
	return fmt.Sprintf("%s meter=%s %s %v", p.Measurement, p.Meter(), p.Timestamp(), p.Fields)
}
