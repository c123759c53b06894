package timeseries

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/influxdata/influxdb/models"

	"github.com/riahtu/energy-saving/internal/metadata"
)

// ReadTarget describes the measurement that a set of result rows belongs to.
type ReadTarget struct {
	DeviceType  string
	Measurement string
	ValueType   metadata.ValueType
	Unit        *UnitConversion

	// Devices is the device allow-list. An empty list only filters when
	// FilterDevices is set.
	Devices       []string
	FilterDevices bool
}

// TargetFor builds the read target of one resolved measurement.
func TargetFor(deviceType string, m *ResolvedMeasurement) ReadTarget {
	return ReadTarget{
		DeviceType:    deviceType,
		Measurement:   m.Name,
		ValueType:     m.ValueType,
		Unit:          m.Unit,
		Devices:       m.Devices,
		FilterDevices: !m.AllDevices || len(m.Devices) > 0,
	}
}

func (t ReadTarget) allows(device string) bool {
	if !t.FilterDevices {
		return true
	}
	for _, d := range t.Devices {
		if d == device {
			return true
		}
	}
	return false
}

// ReadOptions control how result rows are decoded.
type ReadOptions struct {
	// Precision of epoch timestamps. Empty means RFC 3339 strings.
	Precision string
	Logger    Logger
}

// accumulator keeps the running value per (device, timestamp) while rows of
// several raw measurements fold into one canonical measurement.
type accumulator map[accumulatorKey]any

type accumulatorKey struct {
	device string
	ts     time.Time
}

// Translate folds result rows into series of the target measurement.
//
// Rows are processed in (name, tags) order so accumulation is
// deterministic. Every sample is unit-converted from the stored unit to the
// requested one, then combined with the accumulated value for the same
// device and timestamp according to the value type: binary overwrites,
// integer and continuous add, anything else passes through.
func Translate(rows []models.Row, target ReadTarget, opts ReadOptions) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	var convert func(float64) float64
	if target.Unit != nil {
		convert = unitConverter(target.Unit.Native, target.Unit.Requested)
		if convert == nil {
			logger.Debug("no unit converter",
				"measurement", target.Measurement, "from", target.Unit.Native, "to", target.Unit.Requested)
		}
	}

	sorted := make([]models.Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return tagString(sorted[i].Tags) < tagString(sorted[j].Tags)
	})

	result := make(Result)
	acc := make(accumulator)

	for _, row := range sorted {
		device := row.Tags[TagDevice]
		if !target.allows(device) {
			continue
		}

		key := SeriesKey{DeviceType: target.DeviceType, Measurement: target.Measurement, Device: device}
		pts, ok := result[key]
		if !ok {
			pts = make(Points)
			result[key] = pts
		}

		timeCol, valueCol := columnIndex(row.Columns, "time", 0), columnIndex(row.Columns, "value", 1)
		for _, values := range row.Values {
			if timeCol >= len(values) || valueCol >= len(values) {
				continue
			}
			ts, err := parseTimestamp(values[timeCol], opts.Precision)
			if err != nil {
				return nil, fmt.Errorf("series %s: %w", row.Name, err)
			}
			v := values[valueCol]
			if v == nil {
				continue
			}
			if n, isNum := v.(json.Number); isNum {
				v = decodeNumber(n, target.ValueType)
			}
			if convert != nil && numeric(v) {
				f, _ := toFloat(v)
				v = convert(f)
			}

			ak := accumulatorKey{device: device, ts: ts}
			formatted, err := formatValue(target.ValueType, v, acc[ak])
			if err != nil {
				logger.Warn("dropping unformattable sample",
					"measurement", row.Name, "device", device, "time", ts, "error", err)
				continue
			}
			acc[ak] = formatted
			pts[ts] = formatted
		}
	}
	return result, nil
}

// formatValue combines a sample with the value accumulated so far.
func formatValue(vt metadata.ValueType, v, base any) (any, error) {
	switch vt {
	case metadata.ValueTypeBinary:
		return v, nil
	case metadata.ValueTypeInteger:
		n, err := toInt(v)
		if err != nil {
			return nil, err
		}
		if base != nil {
			b, err := toInt(base)
			if err != nil {
				return nil, err
			}
			n += b
		}
		return n, nil
	case metadata.ValueTypeContinuous:
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		f = math.Round(f*100) / 100
		if base != nil {
			b, err := toFloat(base)
			if err != nil {
				return nil, err
			}
			f += b
		}
		return f, nil
	default:
		return v, nil
	}
}

// decodeNumber turns a JSON number into int64 for integer measurements and
// float64 otherwise.
func decodeNumber(n json.Number, vt metadata.ValueType) any {
	if vt == metadata.ValueTypeInteger {
		if i, err := n.Int64(); err == nil {
			return i
		}
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// parseTimestamp reads a time column: RFC 3339 text or an epoch number.
func parseTimestamp(v any, precision string) (time.Time, error) {
	switch x := v.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, x); err == nil {
			return t.UTC(), nil
		}
		t, err := dateparse.ParseIn(x, time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrInvalidQuery, x)
		}
		return t.UTC(), nil
	case json.Number:
		return EpochTime(x, precision)
	case float64:
		return EpochTime(json.Number(strconv.FormatFloat(x, 'f', -1, 64)), precision)
	case int64:
		return EpochTime(json.Number(strconv.FormatInt(x, 10)), precision)
	case time.Time:
		return x.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: timestamp of type %T", ErrInvalidQuery, v)
}

func columnIndex(columns []string, name string, fallback int) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return fallback
}

// tagString renders tags as sorted key=value pairs.
func tagString(tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + tags[k]
	}
	return strings.Join(parts, ",")
}
