package timeseries

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/riahtu/energy-saving/internal/metadata"
)

// unitPair is a (from, to) pair of lower-cased unit names.
type unitPair struct {
	from string
	to   string
}

// unitConverters holds the supported unit conversions.
var unitConverters = map[unitPair]func(float64) float64{
	{from: "w", to: "kw"}: func(x float64) float64 { return x / 1000 },
	{from: "kw", to: "w"}: func(x float64) float64 { return x * 1000 },
}

// unitConverter returns the converter from one unit to another, or nil
// when the pair is not supported.
func unitConverter(from, to string) func(float64) float64 {
	return unitConverters[unitPair{from: strings.ToLower(from), to: strings.ToLower(to)}]
}

// ConvertUnit converts x from one unit to another. The boolean is false
// when the pair has no converter, in which case x is returned unchanged.
func ConvertUnit(x float64, from, to string) (float64, bool) {
	fn := unitConverter(from, to)
	if fn == nil {
		return x, false
	}
	return fn(x), true
}

// ConversionPolicy decides what happens when a sample cannot be coerced to
// its value type. Strict fails the whole write; otherwise Default replaces
// the sample, and a nil Default drops it.
type ConversionPolicy struct {
	Strict  bool
	Default any
}

// ConvertValue coerces v to the Go type of a value type: bool for binary,
// float64 for continuous and int64 for integer. Discrete and unknown types
// pass v through, except that a decoded JSON number becomes int64 when it
// is integral and float64 otherwise.
func ConvertValue(vt metadata.ValueType, v any) (any, error) {
	switch vt {
	case metadata.ValueTypeBinary:
		return toBool(v)
	case metadata.ValueTypeContinuous:
		return toFloat(v)
	case metadata.ValueTypeInteger:
		return toInt(v)
	default:
		if n, ok := v.(json.Number); ok {
			return jsonNumber(n)
		}
		return v, nil
	}
}

func jsonNumber(n json.Number) (any, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a number", ErrValueConversion, n.String())
	}
	return f, nil
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false, fmt.Errorf("%w: %q is not a boolean", ErrValueConversion, x)
		}
		return b, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return false, err
	}
	return f != 0, nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrValueConversion, x.String())
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrValueConversion, x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: unsupported value %T", ErrValueConversion, v)
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrValueConversion, x)
		}
		return int64(x), nil
	case float32:
		return toInt(float64(x))
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrValueConversion, x.String())
		}
		return toInt(f)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer", ErrValueConversion, x)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: unsupported value %T", ErrValueConversion, v)
}

// numeric reports whether v can take part in arithmetic.
func numeric(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64, json.Number:
		return true
	}
	return false
}

// precisionUnits maps a time precision to its duration.
var precisionUnits = map[string]time.Duration{
	"ns": time.Nanosecond,
	"u":  time.Microsecond,
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
}

// PrecisionUnit returns the duration of one tick at the given precision.
// An empty precision means nanoseconds.
func PrecisionUnit(precision string) (time.Duration, error) {
	if precision == "" {
		return time.Nanosecond, nil
	}
	d, ok := precisionUnits[precision]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrecision, precision)
	}
	return d, nil
}

// TimeDelta expresses a number of seconds in the given precision.
// An empty precision returns seconds unchanged.
func TimeDelta(precision string, seconds float64) (float64, error) {
	switch precision {
	case "", "s":
		return seconds, nil
	case "h":
		return seconds / 3600, nil
	case "m":
		return seconds / 60, nil
	case "ms":
		return seconds * 1e3, nil
	case "u":
		return math.Trunc(seconds * 1e6), nil
	case "ns":
		return math.Trunc(seconds * 1e9), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPrecision, precision)
}

// EpochTime converts an epoch value expressed in precision ticks to a UTC
// time. Integral values are converted exactly; fractional values go
// through TimeDelta.
func EpochTime(n json.Number, precision string) (time.Time, error) {
	if i, err := n.Int64(); err == nil {
		unit, err := PrecisionUnit(precision)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(0, i*int64(unit)).UTC(), nil
	}

	f, err := n.Float64()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: epoch %q", ErrInvalidQuery, n.String())
	}
	if precision == "" {
		precision = "ns"
	}
	perSecond, err := TimeDelta(precision, 1)
	if err != nil {
		return time.Time{}, err
	}
	sec, frac := math.Modf(f / perSecond)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}

// truncate aligns t to the given precision.
func truncate(t time.Time, precision string) (time.Time, error) {
	unit, err := PrecisionUnit(precision)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC().Truncate(unit), nil
}
