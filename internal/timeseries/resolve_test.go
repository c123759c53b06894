package timeseries

import (
	"errors"
	"reflect"
	"testing"

	"github.com/riahtu/energy-saving/internal/metadata"
)

// testDatacenter builds dc1: a power supply with a per-phase pattern and a
// unit, a binary status, and a sensor with two devices.
func testDatacenter() *metadata.Datacenter {
	dc := &metadata.Datacenter{
		ID:           "dc1-id",
		Name:         "dc1",
		TimeInterval: 300,
		DeviceTypes:  make(map[string]*metadata.DeviceType),
	}
	for _, tag := range metadata.DeviceTypeTags() {
		dc.DeviceTypes[tag] = metadata.NewDeviceType(tag, nil)
	}

	dc.DeviceTypes[metadata.PowerSupplyAttribute] = metadata.NewDeviceType(metadata.PowerSupplyAttribute, []*metadata.Attribute{
		{
			Name:       "power",
			DeviceType: metadata.PowerSupplyAttribute,
			ValueType:  metadata.ValueTypeContinuous,
			Unit:       "W",
			Pattern:    "phase_.*",
			Devices:    []string{"ps1", "ps2"},
		},
		{
			Name:       "status",
			DeviceType: metadata.PowerSupplyAttribute,
			ValueType:  metadata.ValueTypeBinary,
			Devices:    []string{"ps1"},
		},
		{
			Name:       "spare",
			DeviceType: metadata.PowerSupplyAttribute,
			ValueType:  metadata.ValueTypeInteger,
			Devices:    []string{},
		},
	})
	dc.DeviceTypes[metadata.SensorAttribute] = metadata.NewDeviceType(metadata.SensorAttribute, []*metadata.Attribute{
		{
			Name:       "temperature",
			DeviceType: metadata.SensorAttribute,
			ValueType:  metadata.ValueTypeContinuous,
			Unit:       "C",
			Devices:    []string{"s1", "s2"},
		},
		{
			Name:       "count",
			DeviceType: metadata.SensorAttribute,
			ValueType:  metadata.ValueTypeInteger,
			Devices:    []string{"s1"},
		},
	})
	return dc
}

func TestResolve_AllDeviceTypes(t *testing.T) {
	m, err := Resolve(testDatacenter(), All(), nil, true)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	var names []string
	for _, dt := range m.DeviceTypes {
		names = append(names, dt.Name)
	}
	if !reflect.DeepEqual(names, metadata.DeviceTypeTags()) {
		t.Errorf("device types = %v, want %v", names, metadata.DeviceTypeTags())
	}

	ps, ok := m.DeviceType(metadata.PowerSupplyAttribute)
	if !ok {
		t.Fatal("power supply mapping missing")
	}
	power, ok := ps.Measurement("power")
	if !ok {
		t.Fatal("power measurement missing")
	}
	if !reflect.DeepEqual(power.Devices, []string{"ps1", "ps2"}) {
		t.Errorf("power devices = %v", power.Devices)
	}
	if !power.AllDevices {
		t.Error("AllDevices = false, want true")
	}
	spare, _ := ps.Measurement("spare")
	if spare == nil || spare.Devices == nil || len(spare.Devices) != 0 {
		t.Errorf("spare devices = %#v, want empty list", spare)
	}
}

func TestResolve_DevicesAreSubsetOfBindings(t *testing.T) {
	sel := Each(map[string]Selector{
		metadata.SensorAttribute: Each(map[string]Selector{
			"temperature": Many("s2", "ghost", "s1"),
			"count":       All(),
		}),
	})

	m, err := Resolve(testDatacenter(), sel, nil, false)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	dc := testDatacenter()
	for _, key := range m.Series() {
		attr, _ := dc.DeviceTypes[key.DeviceType].Attribute(key.Measurement)
		if !attr.HasDevice(key.Device) {
			t.Errorf("resolved device %v is not bound", key)
		}
	}

	sensor, _ := m.DeviceType(metadata.SensorAttribute)
	temp, _ := sensor.Measurement("temperature")
	if !reflect.DeepEqual(temp.Devices, []string{"s2", "s1"}) {
		t.Errorf("temperature devices = %v, want [s2 s1]", temp.Devices)
	}
	if temp.AllDevices {
		t.Error("AllDevices = true for explicit selection")
	}
}

func TestResolve_Strictness(t *testing.T) {
	tests := []struct {
		name    string
		sel     Selector
		wantErr error
	}{
		{"unknown device type", One("chiller_attribute"), ErrUnknownDeviceType},
		{
			"unknown measurement",
			Each(map[string]Selector{metadata.SensorAttribute: One("humidity")}),
			ErrUnknownMeasurement,
		},
		{
			"unknown device",
			Each(map[string]Selector{
				metadata.SensorAttribute: Each(map[string]Selector{"count": One("s9")}),
			}),
			ErrUnknownDevice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Resolve(testDatacenter(), tt.sel, nil, true); !errors.Is(err, tt.wantErr) {
				t.Errorf("strict Resolve() error = %v, want %v", err, tt.wantErr)
			}
			if _, err := Resolve(testDatacenter(), tt.sel, nil, false); err != nil {
				t.Errorf("non-strict Resolve() error = %v", err)
			}
		})
	}
}

func TestResolve_UnitConversionOnlyWhenDifferent(t *testing.T) {
	units := Units{
		metadata.PowerSupplyAttribute: {"power": "kW"},
		metadata.SensorAttribute:      {"temperature": "c"},
	}
	m, err := Resolve(testDatacenter(), Many(metadata.PowerSupplyAttribute, metadata.SensorAttribute), units, true)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	ps, _ := m.DeviceType(metadata.PowerSupplyAttribute)
	power, _ := ps.Measurement("power")
	want := &UnitConversion{Requested: "kW", Native: "W"}
	if !reflect.DeepEqual(power.Unit, want) {
		t.Errorf("power unit = %+v, want %+v", power.Unit, want)
	}

	sensor, _ := m.DeviceType(metadata.SensorAttribute)
	temp, _ := sensor.Measurement("temperature")
	if temp.Unit != nil {
		t.Errorf("temperature unit = %+v, want nil", temp.Unit)
	}
}

func TestDeviceTypeMapping_Canonical(t *testing.T) {
	m, err := Resolve(testDatacenter(), One(metadata.PowerSupplyAttribute), nil, true)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	ps, _ := m.DeviceType(metadata.PowerSupplyAttribute)

	tests := map[string]string{
		"phase_a":   "power",
		"phase_b":   "power",
		"xphase_a":  "xphase_a",
		"status":    "status",
		"something": "something",
	}
	for raw, want := range tests {
		if got := ps.Canonical(raw); got != want {
			t.Errorf("Canonical(%q) = %q, want %q", raw, got, want)
		}
	}

	power, _ := ps.Measurement("power")
	if got := power.Expression(); got != "/^phase_.*$/" {
		t.Errorf("Expression() = %q", got)
	}
}

func TestDeviceTypeMapping_CanonicalDeclarationOrder(t *testing.T) {
	dc := testDatacenter()
	dc.DeviceTypes[metadata.PowerSupplyAttribute] = metadata.NewDeviceType(metadata.PowerSupplyAttribute, []*metadata.Attribute{
		{Name: "zpower", ValueType: metadata.ValueTypeContinuous, Pattern: "phase_.*", Devices: []string{"ps1"}},
		{Name: "apower", ValueType: metadata.ValueTypeContinuous, Pattern: "phase_a", Devices: []string{"ps1"}},
	})

	selectors := map[string]Selector{
		"one": One(metadata.PowerSupplyAttribute),
		"each": Each(map[string]Selector{
			metadata.PowerSupplyAttribute: Each(map[string]Selector{"apower": All(), "zpower": All()}),
		}),
		"many": Each(map[string]Selector{
			metadata.PowerSupplyAttribute: Many("apower", "zpower"),
		}),
	}
	for name, sel := range selectors {
		t.Run(name, func(t *testing.T) {
			m, err := Resolve(dc, sel, nil, true)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			ps, _ := m.DeviceType(metadata.PowerSupplyAttribute)
			for raw, want := range map[string]string{"phase_a": "zpower", "phase_b": "zpower"} {
				if got := ps.Canonical(raw); got != want {
					t.Errorf("Canonical(%q) = %q, want %q", raw, got, want)
				}
			}
		})
	}
}

func TestResolve_InvalidPattern(t *testing.T) {
	dc := testDatacenter()
	dc.DeviceTypes[metadata.SensorAttribute] = metadata.NewDeviceType(metadata.SensorAttribute, []*metadata.Attribute{
		{Name: "bad", ValueType: metadata.ValueTypeContinuous, Pattern: "(", Devices: []string{"s1"}},
	})
	if _, err := Resolve(dc, One(metadata.SensorAttribute), nil, true); !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("Resolve() error = %v, want ErrInvalidPattern", err)
	}
}
