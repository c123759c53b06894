// Package influxdb provides the time-series session for the energy saving core.
//
// A Client issues InfluxQL queries, writes single-field series and drops
// series by exact tag match. It satisfies the store contract the timeseries
// engine consumes.
//
// # Server versions
//
// With api_version 1 every operation uses the 1.x HTTP API
// (github.com/influxdata/influxdb/client/v2): queries, batch writes and
// DROP SERIES statements.
//
// With api_version 2 queries still run as InfluxQL through the 1.x
// compatibility endpoint, authenticated with the token. Writes and deletes use
// the 2.x API through influxdb-client-go.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	rows, err := client.Query(ctx, "select value from power group by device", "s")
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
package influxdb
