package timeseries

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/riahtu/energy-saving/internal/metadata"
)

// Units carries requested units: device type, then measurement, then unit.
type Units map[string]map[string]string

// lookup returns the requested unit for one measurement, if any.
func (u Units) lookup(deviceType, measurement string) string {
	if u == nil {
		return ""
	}
	return u[deviceType][measurement]
}

// UnitConversion records a caller-requested unit that differs from the
// unit stored in metadata.
type UnitConversion struct {
	Requested string `json:"requested"`
	Native    string `json:"native"`
}

// ResolvedMeasurement is one measurement of a Mapping.
type ResolvedMeasurement struct {
	Name      string
	ValueType metadata.ValueType
	Pattern   string
	Unit      *UnitConversion

	// Devices are the selected devices, always a subset of the bound ones.
	Devices []string

	// AllDevices is set when devices were not narrowed by the caller.
	AllDevices bool

	pattern *regexp.Regexp
}

// HasDevice reports whether device is among the resolved devices.
func (m *ResolvedMeasurement) HasDevice(device string) bool {
	for _, d := range m.Devices {
		if d == device {
			return true
		}
	}
	return false
}

// Expression returns the measurement as used in a select statement: the
// pattern as a regex literal when one is declared, the name otherwise.
func (m *ResolvedMeasurement) Expression() string {
	if m.Pattern != "" {
		return "/^" + m.Pattern + "$/"
	}
	return m.Name
}

// DeviceTypeMapping holds the resolved measurements of one device type, in
// resolution order.
type DeviceTypeMapping struct {
	Name         string
	Measurements []*ResolvedMeasurement

	index    map[string]int
	patterns []*ResolvedMeasurement // declaration order
}

// Measurement returns a resolved measurement by canonical name.
func (d *DeviceTypeMapping) Measurement(name string) (*ResolvedMeasurement, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.Measurements[i], true
}

// Canonical maps a raw measurement name to a canonical one. The first
// declared pattern that matches the whole name wins; a name matching no
// pattern is its own canonical name.
func (d *DeviceTypeMapping) Canonical(raw string) string {
	for _, m := range d.patterns {
		if m.pattern.MatchString(raw) {
			return m.Name
		}
	}
	return raw
}

func (d *DeviceTypeMapping) add(m *ResolvedMeasurement) {
	if i, ok := d.index[m.Name]; ok {
		d.Measurements[i] = m
		return
	}
	d.index[m.Name] = len(d.Measurements)
	d.Measurements = append(d.Measurements, m)
}

// Mapping is the resolved subset of a datacenter's metadata that a
// selection addresses.
type Mapping struct {
	Datacenter  string
	DeviceTypes []*DeviceTypeMapping

	index map[string]int
}

// DeviceType returns the mapping of one device type.
func (m *Mapping) DeviceType(name string) (*DeviceTypeMapping, bool) {
	i, ok := m.index[name]
	if !ok {
		return nil, false
	}
	return m.DeviceTypes[i], true
}

// Series returns every (device type, measurement, device) triple of the
// mapping in resolution order.
func (m *Mapping) Series() []SeriesKey {
	var keys []SeriesKey
	for _, dt := range m.DeviceTypes {
		for _, rm := range dt.Measurements {
			for _, dev := range rm.Devices {
				keys = append(keys, SeriesKey{DeviceType: dt.Name, Measurement: rm.Name, Device: dev})
			}
		}
	}
	return keys
}

// Resolve expands a device-type selector against datacenter metadata.
//
// In strict mode a name absent from metadata at any level fails with
// ErrUnknownDeviceType, ErrUnknownMeasurement or ErrUnknownDevice. Otherwise
// unknown names are dropped.
func Resolve(dc *metadata.Datacenter, sel Selector, units Units, strict bool) (*Mapping, error) {
	return resolve(dc, sel, units, strict, noopLogger{})
}

func resolve(dc *metadata.Datacenter, sel Selector, units Units, strict bool, logger Logger) (*Mapping, error) {
	mapping := &Mapping{Datacenter: dc.Name, index: make(map[string]int)}

	for _, dts := range sel.expand(metadata.DeviceTypeTags()) {
		dtMeta, ok := dc.DeviceType(dts.name)
		if !ok {
			if strict {
				return nil, fmt.Errorf("%w: %s", ErrUnknownDeviceType, dts.name)
			}
			logger.Debug("skipping unknown device type", "datacenter", dc.Name, "device_type", dts.name)
			continue
		}

		dtMapping, err := resolveDeviceType(dtMeta, dts.sub, units, strict, logger)
		if err != nil {
			return nil, err
		}
		mapping.index[dtMapping.Name] = len(mapping.DeviceTypes)
		mapping.DeviceTypes = append(mapping.DeviceTypes, dtMapping)
	}
	return mapping, nil
}

func resolveDeviceType(dt *metadata.DeviceType, sel Selector, units Units, strict bool, logger Logger) (*DeviceTypeMapping, error) {
	out := &DeviceTypeMapping{Name: dt.Name, index: make(map[string]int)}

	for _, ms := range sel.expand(dt.Names()) {
		attr, ok := dt.Attribute(ms.name)
		if !ok {
			if strict {
				return nil, fmt.Errorf("%w: %s/%s", ErrUnknownMeasurement, dt.Name, ms.name)
			}
			logger.Debug("skipping unknown measurement", "device_type", dt.Name, "measurement", ms.name)
			continue
		}

		rm, err := resolveMeasurement(dt.Name, attr, ms.sub, units, strict, logger)
		if err != nil {
			return nil, err
		}
		out.add(rm)
	}

	for _, name := range dt.Names() {
		if rm, ok := out.Measurement(name); ok && rm.pattern != nil {
			out.patterns = append(out.patterns, rm)
		}
	}
	return out, nil
}

func resolveMeasurement(deviceType string, attr *metadata.Attribute, sel Selector, units Units, strict bool, logger Logger) (*ResolvedMeasurement, error) {
	rm := &ResolvedMeasurement{
		Name:       attr.Name,
		ValueType:  attr.ValueType,
		Pattern:    attr.Pattern,
		AllDevices: sel.IsAll(),
		Devices:    []string{},
	}

	if attr.Pattern != "" {
		re, err := regexp.Compile("^(?:" + attr.Pattern + ")$")
		if err != nil {
			return nil, fmt.Errorf("%w: %s/%s: %w", ErrInvalidPattern, deviceType, attr.Name, err)
		}
		rm.pattern = re
	}

	if requested := units.lookup(deviceType, attr.Name); requested != "" && !strings.EqualFold(requested, attr.Unit) {
		rm.Unit = &UnitConversion{Requested: requested, Native: attr.Unit}
	}

	for _, ds := range sel.expand(attr.Devices) {
		if !attr.HasDevice(ds.name) {
			if strict {
				return nil, fmt.Errorf("%w: %s/%s/%s", ErrUnknownDevice, deviceType, attr.Name, ds.name)
			}
			logger.Debug("skipping unknown device", "device_type", deviceType, "measurement", attr.Name, "device", ds.name)
			continue
		}
		rm.Devices = append(rm.Devices, ds.name)
	}
	return rm, nil
}
