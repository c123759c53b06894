package ingest

import "errors"

// Domain errors for telemetry ingest.
var (
	// ErrInvalidPayload is returned when a telemetry payload cannot be decoded.
	ErrInvalidPayload = errors.New("ingest: invalid payload")

	// ErrDatacenterNotAccepted is returned for readings of a datacenter the
	// bridge is not configured to ingest.
	ErrDatacenterNotAccepted = errors.New("ingest: datacenter not accepted")

	// ErrWriteRejected is returned when the store refuses part of a reading.
	ErrWriteRejected = errors.New("ingest: write rejected")
)
