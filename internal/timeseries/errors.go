package timeseries

import "errors"

// Domain errors for the time-series engine.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound is returned when the requested datacenter does not exist.
	ErrNotFound = errors.New("timeseries: datacenter not found")

	// ErrUnknownDeviceType is returned in strict mode for a device type absent from metadata.
	ErrUnknownDeviceType = errors.New("timeseries: unknown device type")

	// ErrUnknownMeasurement is returned in strict mode for a measurement absent from a device type.
	ErrUnknownMeasurement = errors.New("timeseries: unknown measurement")

	// ErrUnknownDevice is returned in strict mode for a device not bound to a measurement.
	ErrUnknownDevice = errors.New("timeseries: unknown device")

	// ErrValueConversion is returned when a sample cannot be coerced to its value type
	// and strict conversion is enabled.
	ErrValueConversion = errors.New("timeseries: value conversion failed")

	// ErrNoSamples is returned by a strict write whose data holds no storable sample.
	ErrNoSamples = errors.New("timeseries: no samples to write")

	// ErrInvalidTimeBound is returned when a time bound is neither relative nor a parseable timestamp.
	ErrInvalidTimeBound = errors.New("timeseries: invalid time bound")

	// ErrInvalidQuery is returned when query parameters cannot form a valid statement.
	ErrInvalidQuery = errors.New("timeseries: invalid query")

	// ErrInvalidPrecision is returned for a time precision outside ns, u, ms, s, m, h.
	ErrInvalidPrecision = errors.New("timeseries: invalid time precision")

	// ErrInvalidPattern is returned when an attribute's measurement pattern does not compile.
	ErrInvalidPattern = errors.New("timeseries: invalid measurement pattern")
)
