package timeseries

import (
	"errors"
	"fmt"
	"time"

	"github.com/riahtu/energy-saving/internal/metadata"
)

// WriteOptions control how incoming samples are prepared for storage.
type WriteOptions struct {
	// Precision that timestamps are truncated to. Empty keeps nanoseconds.
	Precision string
	Policy    ConversionPolicy

	// RejectUnknown fails on a series outside the mapping instead of
	// skipping it.
	RejectUnknown bool

	Logger Logger
}

// GeneratedSeries is one series ready to be written. Key holds the raw
// measurement name the caller used; Canonical is the metadata name it
// resolved to.
type GeneratedSeries struct {
	Key       SeriesKey
	Canonical string
	Points    Points
}

// Tags returns the tags the series is stored under.
func (g GeneratedSeries) Tags(datacenter string) map[string]string {
	return map[string]string{
		TagDatacenter: datacenter,
		TagDeviceType: g.Key.DeviceType,
		TagDevice:     g.Key.Device,
	}
}

// Generate validates incoming series against a mapping and prepares them
// for writing.
//
// Raw measurement names are resolved through the device type's patterns.
// Series whose device type, measurement or device are outside the mapping
// are skipped, or rejected when opts.RejectUnknown is set. Every sample is
// truncated to the precision, coerced to the measurement's value type and
// converted from the requested unit to the stored one. With a strict policy
// the first failed coercion aborts the whole batch before anything is
// returned.
func Generate(data Result, m *Mapping, opts WriteOptions) ([]GeneratedSeries, error) {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	var out []GeneratedSeries
	for _, key := range data.Keys() {
		dt, ok := m.DeviceType(key.DeviceType)
		if !ok {
			if opts.RejectUnknown {
				return nil, fmt.Errorf("%w: %s", ErrUnknownDeviceType, key.DeviceType)
			}
			logger.Debug("skipping series of unselected device type", "device_type", key.DeviceType)
			continue
		}
		canonical := dt.Canonical(key.Measurement)
		rm, ok := dt.Measurement(canonical)
		if !ok {
			if opts.RejectUnknown {
				return nil, fmt.Errorf("%w: %s/%s", ErrUnknownMeasurement, key.DeviceType, key.Measurement)
			}
			logger.Debug("skipping series of unselected measurement",
				"device_type", key.DeviceType, "measurement", key.Measurement)
			continue
		}
		if !rm.HasDevice(key.Device) {
			if opts.RejectUnknown {
				return nil, fmt.Errorf("%w: %s/%s/%s", ErrUnknownDevice, key.DeviceType, canonical, key.Device)
			}
			logger.Debug("skipping series of unselected device",
				"device_type", key.DeviceType, "measurement", canonical, "device", key.Device)
			continue
		}

		pts, err := generatePoints(data[key], rm, key, opts, logger)
		if err != nil {
			return nil, err
		}
		out = append(out, GeneratedSeries{Key: key, Canonical: canonical, Points: pts})
	}
	return out, nil
}

func generatePoints(in Points, rm *ResolvedMeasurement, key SeriesKey, opts WriteOptions, logger Logger) (Points, error) {
	var convert func(float64) float64
	if rm.Unit != nil {
		convert = unitConverter(rm.Unit.Requested, rm.Unit.Native)
		if convert == nil {
			logger.Debug("no unit converter",
				"measurement", rm.Name, "from", rm.Unit.Requested, "to", rm.Unit.Native)
		}
	}

	out := make(Points, len(in))
	for _, t := range in.Times() {
		ts, err := truncate(t, opts.Precision)
		if err != nil {
			return nil, err
		}
		v := in[t]
		if v == nil {
			continue
		}

		converted, err := ConvertValue(rm.ValueType, v)
		if err != nil {
			logger.Warn("value conversion failed",
				"device_type", key.DeviceType, "measurement", key.Measurement, "device", key.Device,
				"time", ts, "value", v, "error", err)
			if opts.Policy.Strict {
				if !errors.Is(err, ErrValueConversion) {
					err = fmt.Errorf("%w: %w", ErrValueConversion, err)
				}
				return nil, fmt.Errorf("%s/%s/%s at %s: %w",
					key.DeviceType, key.Measurement, key.Device, ts.Format(time.RFC3339Nano), err)
			}
			converted = opts.Policy.Default
			if converted == nil {
				continue
			}
		}

		if convert != nil && numeric(converted) {
			f, _ := toFloat(converted)
			f = convert(f)
			if rm.ValueType == metadata.ValueTypeInteger {
				converted = int64(f)
			} else {
				converted = f
			}
		}
		out[ts] = converted
	}
	return out, nil
}
