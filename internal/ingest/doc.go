// Package ingest stores device telemetry received over MQTT.
//
// Collectors publish readings to
//
//	energysaving/telemetry/{datacenter}/{device_type}/{device}/{measurement}
//
// with a payload of {"time": ..., "value": ...} or an array of such objects.
// The bridge resolves each message against datacenter metadata through the
// time-series service, so raw measurement names matching an attribute
// pattern are accepted. Messages that cannot be stored are answered on
// energysaving/ingest/{datacenter}/rejected.
package ingest
