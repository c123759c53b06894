package timeseries

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/riahtu/energy-saving/internal/metadata"
)

func TestConvertUnit(t *testing.T) {
	kw, ok := ConvertUnit(1500, "W", "kW")
	if !ok || kw != 1.5 {
		t.Errorf("ConvertUnit(1500, W, kW) = %v, %v", kw, ok)
	}
	w, ok := ConvertUnit(kw, "kw", "w")
	if !ok || w != 1500 {
		t.Errorf("ConvertUnit(1.5, kw, w) = %v, %v", w, ok)
	}
	x, ok := ConvertUnit(21, "C", "F")
	if ok || x != 21 {
		t.Errorf("ConvertUnit(21, C, F) = %v, %v, want unchanged", x, ok)
	}
}

func TestConvertValue(t *testing.T) {
	tests := []struct {
		name string
		vt   metadata.ValueType
		in   any
		want any
	}{
		{"binary from bool", metadata.ValueTypeBinary, true, true},
		{"binary from number", metadata.ValueTypeBinary, json.Number("0"), false},
		{"binary from string", metadata.ValueTypeBinary, "true", true},
		{"continuous from int", metadata.ValueTypeContinuous, 3, 3.0},
		{"continuous from string", metadata.ValueTypeContinuous, "2.5", 2.5},
		{"continuous from number", metadata.ValueTypeContinuous, json.Number("1.25"), 1.25},
		{"integer from float", metadata.ValueTypeInteger, 3.9, int64(3)},
		{"integer from number", metadata.ValueTypeInteger, json.Number("42"), int64(42)},
		{"integer from bool", metadata.ValueTypeInteger, true, int64(1)},
		{"discrete passes", metadata.ValueTypeDiscrete, "open", "open"},
		{"discrete integral number", metadata.ValueTypeDiscrete, json.Number("3"), int64(3)},
		{"discrete fractional number", metadata.ValueTypeDiscrete, json.Number("2.5"), 2.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConvertValue(tt.vt, tt.in)
			if err != nil {
				t.Fatalf("ConvertValue() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ConvertValue() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestConvertValue_Failure(t *testing.T) {
	tests := []struct {
		vt metadata.ValueType
		in any
	}{
		{metadata.ValueTypeContinuous, "warm"},
		{metadata.ValueTypeInteger, "3.5"},
		{metadata.ValueTypeBinary, "maybe"},
		{metadata.ValueTypeContinuous, []int{1}},
	}
	for _, tt := range tests {
		if _, err := ConvertValue(tt.vt, tt.in); !errors.Is(err, ErrValueConversion) {
			t.Errorf("ConvertValue(%s, %v) error = %v, want ErrValueConversion", tt.vt, tt.in, err)
		}
	}
}

func TestTimeDelta(t *testing.T) {
	tests := []struct {
		precision string
		want      float64
	}{
		{"", 7200},
		{"h", 2},
		{"m", 120},
		{"s", 7200},
		{"ms", 7.2e6},
		{"u", 7.2e9},
		{"ns", 7.2e12},
	}
	for _, tt := range tests {
		got, err := TimeDelta(tt.precision, 7200)
		if err != nil {
			t.Fatalf("TimeDelta(%q) error = %v", tt.precision, err)
		}
		if got != tt.want {
			t.Errorf("TimeDelta(%q, 7200) = %v, want %v", tt.precision, got, tt.want)
		}
	}

	if _, err := TimeDelta("d", 1); !errors.Is(err, ErrInvalidPrecision) {
		t.Errorf("TimeDelta(d) error = %v, want ErrInvalidPrecision", err)
	}
}

func TestEpochTime(t *testing.T) {
	want := time.Date(2017, 7, 14, 2, 40, 0, 0, time.UTC)

	tests := []struct {
		n         json.Number
		precision string
	}{
		{"1500000000", "s"},
		{"1500000000000", "ms"},
		{"1500000000000000000", "ns"},
		{"1500000000000000000", ""},
		{"25000000", "m"},
	}
	for _, tt := range tests {
		got, err := EpochTime(tt.n, tt.precision)
		if err != nil {
			t.Fatalf("EpochTime(%s, %q) error = %v", tt.n, tt.precision, err)
		}
		if !got.Equal(want) {
			t.Errorf("EpochTime(%s, %q) = %v, want %v", tt.n, tt.precision, got, want)
		}
	}

	got, err := EpochTime("1500000000.5", "s")
	if err != nil {
		t.Fatalf("EpochTime(fractional) error = %v", err)
	}
	if d := got.Sub(want); math.Abs(float64(d-500*time.Millisecond)) > float64(time.Millisecond) {
		t.Errorf("EpochTime(fractional) = %v", got)
	}
}

func TestTruncate(t *testing.T) {
	in := time.Date(2024, 1, 1, 10, 15, 42, 123456789, time.UTC)
	got, err := truncate(in, "s")
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2024, 1, 1, 10, 15, 42, 0, time.UTC); !got.Equal(want) {
		t.Errorf("truncate(s) = %v, want %v", got, want)
	}
	if _, err := truncate(in, "x"); !errors.Is(err, ErrInvalidPrecision) {
		t.Errorf("truncate(x) error = %v", err)
	}
}
