package meter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

var (
	errMissing  = errors.New("missing or null")
	errTrailing = errors.New("unexpected data after JSON value")
)

// integer accepts JSON numbers with no fractional part, so -50 and -50.0 both
// decode while -50.5 and "-50" do not.
type integer int64

type integerError struct {
	raw string
}

func (e *integerError) Error() string {
	return fmt.Sprintf("cannot use %s as an integer", e.raw)
}

func (i *integer) UnmarshalJSON(b []byte) error {
	raw := string(b)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*i = integer(n)
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return &integerError{raw: raw}
	}
	*i = integer(f)
	return nil
}

// wireReading mirrors the meter JSON. Pointers tell absent fields from zero values;
// unknown fields are ignored.
type wireReading struct {
	WifiStrength        *integer `json:"wifi_strength"`
	TotalPowerImportKWh *float64 `json:"total_power_import_kwh"`
	TotalPowerExportKWh *float64 `json:"total_power_export_kwh"`
	ActivePowerW        *float64 `json:"active_power_w"`
	ActivePowerL1W      *float64 `json:"active_power_l1_w"`
	ActivePowerL2W      *float64 `json:"active_power_l2_w"`
	ActivePowerL3W      *float64 `json:"active_power_l3_w"`
}

// DecodeReading parses and validates one meter response body. The body must
// hold exactly one JSON value.
func DecodeReading(r io.Reader) (Reading, error) {
	var w wireReading
	dec := json.NewDecoder(r)
	if err := dec.Decode(&w); err != nil {
		var (
			typeErr *json.UnmarshalTypeError
			intErr  *integerError
		)
		switch {
		case errors.As(err, &typeErr):
			return Reading{}, &ValidationError{Field: typeErr.Field, Err: err}
		case errors.As(err, &intErr):
			return Reading{}, &ValidationError{Field: "wifi_strength", Err: err}
		}
		return Reading{}, &ValidationError{Err: err}
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Reading{}, &ValidationError{Err: errTrailing}
	}
	return w.reading()
}

func (w wireReading) reading() (Reading, error) {
	if w.WifiStrength == nil {
		return Reading{}, &ValidationError{Field: "wifi_strength", Err: errMissing}
	}

	floats := []struct {
		name string
		v    *float64
	}{
		{"total_power_import_kwh", w.TotalPowerImportKWh},
		{"total_power_export_kwh", w.TotalPowerExportKWh},
		{"active_power_w", w.ActivePowerW},
		{"active_power_l1_w", w.ActivePowerL1W},
		{"active_power_l2_w", w.ActivePowerL2W},
		{"active_power_l3_w", w.ActivePowerL3W},
	}
	for _, f := range floats {
		if f.v == nil {
			return Reading{}, &ValidationError{Field: f.name, Err: errMissing}
		}
	}

	return Reading{
		WifiStrength:        int64(*w.WifiStrength),
		TotalPowerImportKWh: *w.TotalPowerImportKWh,
		TotalPowerExportKWh: *w.TotalPowerExportKWh,
		ActivePowerW:        *w.ActivePowerW,
		ActivePowerL1W:      *w.ActivePowerL1W,
		ActivePowerL2W:      *w.ActivePowerL2W,
		ActivePowerL3W:      *w.ActivePowerL3W,
	}, nil
}
