package timeseries

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/influxdata/influxdb/models"

	"github.com/riahtu/energy-saving/internal/metadata"
)

var (
	t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	t1 = t0.Add(5 * time.Minute)
)

func row(name, device string, values ...[]any) models.Row {
	return models.Row{
		Name:    name,
		Tags:    map[string]string{"device": device},
		Columns: []string{"time", "value"},
		Values:  values,
	}
}

func TestTranslate_SumsPatternRows(t *testing.T) {
	rows := []models.Row{
		row("phase_b", "ps1", []any{t0.Format(time.RFC3339), json.Number("2.00")}),
		row("phase_a", "ps1", []any{t0.Format(time.RFC3339), json.Number("1.23")}, []any{t1.Format(time.RFC3339), json.Number("4")}),
	}
	target := ReadTarget{
		DeviceType:  metadata.PowerSupplyAttribute,
		Measurement: "power",
		ValueType:   metadata.ValueTypeContinuous,
	}

	r, err := Translate(rows, target, ReadOptions{})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	pts := r[SeriesKey{DeviceType: metadata.PowerSupplyAttribute, Measurement: "power", Device: "ps1"}]
	if len(pts) != 2 {
		t.Fatalf("points = %v, want 2 timestamps", pts)
	}
	if got := pts[t0].(float64); math.Abs(got-3.23) > 1e-9 {
		t.Errorf("power at t0 = %v, want 3.23", got)
	}
	if got := pts[t1].(float64); got != 4 {
		t.Errorf("power at t1 = %v, want 4", got)
	}
}

func TestTranslate_Formatters(t *testing.T) {
	tests := []struct {
		name string
		vt   metadata.ValueType
		a, b any
		want any
	}{
		{"binary overwrites", metadata.ValueTypeBinary, true, false, false},
		{"integer adds", metadata.ValueTypeInteger, json.Number("2"), json.Number("3"), int64(5)},
		{"continuous rounds then adds", metadata.ValueTypeContinuous, json.Number("1.004"), json.Number("1"), 2.0},
		{"discrete passes", metadata.ValueTypeDiscrete, "open", "closed", "closed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := []models.Row{
				row("m_1", "d1", []any{t0.Format(time.RFC3339), tt.a}),
				row("m_2", "d1", []any{t0.Format(time.RFC3339), tt.b}),
			}
			r, err := Translate(rows, ReadTarget{DeviceType: "dt", Measurement: "m", ValueType: tt.vt}, ReadOptions{})
			if err != nil {
				t.Fatalf("Translate() error = %v", err)
			}
			got := r[SeriesKey{DeviceType: "dt", Measurement: "m", Device: "d1"}][t0]
			if got != tt.want {
				t.Errorf("value = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestTranslate_DeviceAllowList(t *testing.T) {
	rows := []models.Row{
		row("temperature", "s1", []any{t0.Format(time.RFC3339), json.Number("21.5")}),
		row("temperature", "s2", []any{t0.Format(time.RFC3339), json.Number("22.5")}),
	}

	target := ReadTarget{
		DeviceType:    metadata.SensorAttribute,
		Measurement:   "temperature",
		ValueType:     metadata.ValueTypeContinuous,
		Devices:       []string{"s2"},
		FilterDevices: true,
	}
	r, err := Translate(rows, target, ReadOptions{})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if len(r) != 1 {
		t.Fatalf("series = %v, want only s2", r.Keys())
	}
	if _, ok := r[SeriesKey{DeviceType: metadata.SensorAttribute, Measurement: "temperature", Device: "s2"}]; !ok {
		t.Error("s2 missing")
	}

	target.FilterDevices = false
	target.Devices = nil
	r, err = Translate(rows, target, ReadOptions{})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if len(r) != 2 {
		t.Errorf("unfiltered series = %v, want 2", r.Keys())
	}
}

func TestTranslate_EpochAndUnits(t *testing.T) {
	rows := []models.Row{
		row("power", "ps1",
			[]any{json.Number("1709294400"), json.Number("1500")},
			[]any{json.Number("1709294700"), nil},
		),
	}
	target := ReadTarget{
		DeviceType:  metadata.PowerSupplyAttribute,
		Measurement: "power",
		ValueType:   metadata.ValueTypeContinuous,
		Unit:        &UnitConversion{Requested: "kW", Native: "W"},
	}

	r, err := Translate(rows, target, ReadOptions{Precision: "s"})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	pts := r[SeriesKey{DeviceType: metadata.PowerSupplyAttribute, Measurement: "power", Device: "ps1"}]
	if len(pts) != 1 {
		t.Fatalf("points = %v, want nil sample skipped", pts)
	}
	if got := pts[t0]; got != 1.5 {
		t.Errorf("power at t0 = %v, want 1.5 kW", got)
	}
}

func TestParseTimestamp_Numbers(t *testing.T) {
	tests := []struct {
		name      string
		v         any
		precision string
		want      time.Time
	}{
		{"float seconds", float64(1709294400), "s", t0},
		{"fractional float seconds", 1709294400.5, "s", t0.Add(500 * time.Millisecond)},
		{"int64 ms", int64(1709294400123), "ms", t0.Add(123 * time.Millisecond)},
		{"json seconds", json.Number("1709294400"), "s", t0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTimestamp(tt.v, tt.precision)
			if err != nil {
				t.Fatalf("parseTimestamp(%v) error = %v", tt.v, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseTimestamp(%v) = %v, want %v", tt.v, got, tt.want)
			}
		})
	}
}

func TestTranslate_BadTimestamp(t *testing.T) {
	rows := []models.Row{row("m", "d", []any{"garbage-time", json.Number("1")})}
	if _, err := Translate(rows, ReadTarget{Measurement: "m"}, ReadOptions{}); err == nil {
		t.Error("Translate() expected error for unparseable timestamp")
	}
}

func TestFrame(t *testing.T) {
	a := SeriesKey{DeviceType: "dt", Measurement: "m", Device: "a"}
	b := SeriesKey{DeviceType: "dt", Measurement: "m", Device: "b"}

	left := NewFrame(Result{a: Points{t0: 1.0}})
	right := NewFrame(Result{b: Points{t1: 2.0}})
	joined := left.Join(right)

	if len(joined.Index) != 2 || len(joined.Columns) != 2 {
		t.Fatalf("joined frame = %+v", joined)
	}
	if v, ok := joined.Value(t0, a); !ok || v != 1.0 {
		t.Errorf("Value(t0, a) = %v, %v", v, ok)
	}
	if _, ok := joined.Value(t0, b); ok {
		t.Error("Value(t0, b) should be empty")
	}
	if v, ok := joined.Value(t1, b); !ok || v != 2.0 {
		t.Errorf("Value(t1, b) = %v, %v", v, ok)
	}

	back := joined.Result()
	if len(back[a]) != 1 || len(back[b]) != 1 {
		t.Errorf("Result() = %v", back)
	}
}
