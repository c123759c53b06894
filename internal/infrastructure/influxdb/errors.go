package influxdb

import "errors"

// Sentinel errors for InfluxDB operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, influxdb.ErrNotConnected) {
//	    // Handle disconnected state
//	}
var (
	// ErrNotConnected indicates the client is not connected to InfluxDB.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrQueryFailed indicates the server rejected a query or returned a statement error.
	ErrQueryFailed = errors.New("influxdb: query failed")

	// ErrWriteFailed indicates a write operation failed.
	ErrWriteFailed = errors.New("influxdb: write failed")

	// ErrDeleteFailed indicates a series deletion failed.
	ErrDeleteFailed = errors.New("influxdb: delete failed")

	// ErrDisabled indicates InfluxDB integration is disabled in config.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
