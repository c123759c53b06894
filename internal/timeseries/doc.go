// Package timeseries reads, writes and deletes datacenter time series.
//
// A request names a datacenter and a Selector over its device types,
// measurements and devices. The selector is resolved against metadata into a
// Mapping, the subset of metadata the request addresses. Reads turn the
// mapping into one select statement per measurement, run them on a Session
// and fold the rows back into series keyed by (device type, measurement,
// device). Writes validate incoming series against the mapping, coerce each
// sample to its value type and hand the points to the Session.
//
// # Measurement patterns
//
// An attribute may declare a regular expression matching the raw
// measurement names stored for it, for example phase_.* for per-phase power.
// Reads query the pattern and sum the matching rows into the canonical
// measurement. Writes keep the raw name so each raw series stays addressable.
//
// # Units
//
// Callers may request a unit per measurement. Reads convert from the stored
// unit to the requested one and writes convert back. Pairs without a
// converter are left unchanged.
//
// # Usage
//
//	svc := timeseries.NewService(repo, influx, timeseries.Options{Precision: "s"})
//	svc.SetLogger(log)
//
//	listing, err := svc.List(ctx, timeseries.ListRequest{
//	    Datacenter: "dc1",
//	    DeviceType: timeseries.One(metadata.PowerSupplyAttribute),
//	    QueryParams: timeseries.QueryParams{
//	        Where: timeseries.Where{StartTime: "-2h"},
//	    },
//	})
package timeseries
