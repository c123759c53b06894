package metadata

import "errors"

// Domain errors for metadata lookups.
var (
	// ErrDatacenterNotFound is returned when no datacenter has the requested name.
	ErrDatacenterNotFound = errors.New("metadata: datacenter not found")

	// ErrUnknownDeviceType is returned for a tag outside the six device types.
	ErrUnknownDeviceType = errors.New("metadata: unknown device type")

	// ErrInvalidValueType is returned when an attribute declares an unsupported value type.
	ErrInvalidValueType = errors.New("metadata: invalid value type")

	// ErrInvalidDocument is returned when an import document fails validation.
	ErrInvalidDocument = errors.New("metadata: invalid import document")
)
