// Package metadata provides read access to the datacenter catalogue.
//
// A datacenter declares, per device type, which attributes exist, their
// value semantics (type, unit, statistical envelope, legal values) and which
// physical devices report them. The time-series engine resolves every
// selection against this catalogue before touching the store.
//
// The six device type tags are fixed:
//
//	sensor_attribute
//	controller_attribute
//	controller_parameter
//	power_supply_attribute
//	controller_power_supply_attribute
//	environment_sensor_attribute
//
// Metadata is derived on each fetch and never cached, so a Datacenter value
// reflects the store at the time of the call.
//
// The catalogue is populated by Import from a YAML document:
//
//	datacenters:
//	  - name: dc1
//	    time_interval: 60
//	    device_types:
//	      sensor_attribute:
//	        - name: power
//	          type: continuous
//	          unit: kW
//	          pattern: "phase_.*"
//	          devices: [pdu1, pdu2]
package metadata
