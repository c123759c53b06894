// Package mqtt connects the energy saving core to an MQTT broker.
//
// Devices publish readings under the telemetry hierarchy; the ingest bridge
// subscribes to it and reports back on the ingest topics:
//
//	energysaving/telemetry/{datacenter}/{device_type}/{device}/{measurement}
//	energysaving/ingest/{datacenter}/rejected
//	energysaving/ingest/status                 (retained)
//	energysaving/system/status                 (retained, also the will)
//
// The measurement level carries the raw measurement name; several raw names
// may fold into one attribute through its measurement pattern.
//
// Routes registered with Subscribe are restored after every reconnect. Use
// TLS (mqtt.broker.tls) outside local development.
package mqtt
