package metadata

// ValueType describes how an attribute's samples are interpreted.
type ValueType string

// Supported value types.
const (
	ValueTypeBinary     ValueType = "binary"
	ValueTypeContinuous ValueType = "continuous"
	ValueTypeInteger    ValueType = "integer"
	ValueTypeDiscrete   ValueType = "discrete"
)

// Valid reports whether v is one of the supported value types.
func (v ValueType) Valid() bool {
	switch v {
	case ValueTypeBinary, ValueTypeContinuous, ValueTypeInteger, ValueTypeDiscrete:
		return true
	}
	return false
}

// Device type tags.
const (
	SensorAttribute                = "sensor_attribute"
	ControllerAttribute            = "controller_attribute"
	ControllerParameter            = "controller_parameter"
	PowerSupplyAttribute           = "power_supply_attribute"
	ControllerPowerSupplyAttribute = "controller_power_supply_attribute"
	EnvironmentSensorAttribute     = "environment_sensor_attribute"
)

// deviceTypeTags lists the device types in their canonical order.
var deviceTypeTags = []string{
	SensorAttribute,
	ControllerAttribute,
	ControllerParameter,
	PowerSupplyAttribute,
	ControllerPowerSupplyAttribute,
	EnvironmentSensorAttribute,
}

// deviceKinds maps a device type to the kind of device that reports it.
var deviceKinds = map[string]string{
	SensorAttribute:                "sensor",
	ControllerAttribute:            "controller",
	ControllerParameter:            "controller",
	PowerSupplyAttribute:           "power_supply",
	ControllerPowerSupplyAttribute: "controller_power_supply",
	EnvironmentSensorAttribute:     "environment_sensor",
}

// DeviceTypeTags returns the six device type tags in canonical order.
func DeviceTypeTags() []string {
	tags := make([]string, len(deviceTypeTags))
	copy(tags, deviceTypeTags)
	return tags
}

// IsDeviceType reports whether tag is one of the six device types.
func IsDeviceType(tag string) bool {
	_, ok := deviceKinds[tag]
	return ok
}

// DeviceKind returns the kind of device that reports the given device type.
func DeviceKind(deviceType string) (string, bool) {
	kind, ok := deviceKinds[deviceType]
	return kind, ok
}

// Attribute is one attribute or parameter definition of a device type.
type Attribute struct {
	Name       string    `json:"name"`
	DeviceType string    `json:"device_type"`
	ValueType  ValueType `json:"type"`
	Unit       string    `json:"unit,omitempty"`

	// Pattern is a regular expression matching the raw measurement names
	// folded into this attribute. Empty means the name itself.
	Pattern string `json:"pattern,omitempty"`

	Mean           *float64 `json:"mean,omitempty"`
	Deviation      *float64 `json:"deviation,omitempty"`
	Min            *float64 `json:"min,omitempty"`
	Max            *float64 `json:"max,omitempty"`
	PossibleValues []any    `json:"possible_values,omitempty"`

	// Devices are the bound device names, sorted.
	Devices []string `json:"devices"`
}

// HasDevice reports whether name is bound to the attribute.
func (a *Attribute) HasDevice(name string) bool {
	for _, d := range a.Devices {
		if d == name {
			return true
		}
	}
	return false
}

// DeviceType holds the ordered attributes of one device type.
type DeviceType struct {
	Name       string
	Attributes []*Attribute

	index map[string]int
}

// NewDeviceType builds a DeviceType from attributes in declaration order.
// A later attribute with a duplicate name replaces the earlier one in place.
func NewDeviceType(name string, attrs []*Attribute) *DeviceType {
	dt := &DeviceType{
		Name:  name,
		index: make(map[string]int, len(attrs)),
	}
	for _, a := range attrs {
		dt.add(a)
	}
	return dt
}

func (dt *DeviceType) add(a *Attribute) {
	if dt.index == nil {
		dt.index = make(map[string]int)
	}
	if i, ok := dt.index[a.Name]; ok {
		dt.Attributes[i] = a
		return
	}
	dt.index[a.Name] = len(dt.Attributes)
	dt.Attributes = append(dt.Attributes, a)
}

// Attribute returns the attribute with the given name.
func (dt *DeviceType) Attribute(name string) (*Attribute, bool) {
	i, ok := dt.index[name]
	if !ok {
		return nil, false
	}
	return dt.Attributes[i], true
}

// Names returns the attribute names in declaration order.
func (dt *DeviceType) Names() []string {
	names := make([]string, len(dt.Attributes))
	for i, a := range dt.Attributes {
		names[i] = a.Name
	}
	return names
}

// Datacenter is the metadata of one datacenter.
type Datacenter struct {
	ID           string
	Name         string
	TimeInterval int
	Models       map[string]any
	Properties   map[string]any

	// DeviceTypes is keyed by device type tag and always holds all six tags.
	DeviceTypes map[string]*DeviceType
}

// DeviceType returns the metadata for one device type tag.
func (dc *Datacenter) DeviceType(tag string) (*DeviceType, bool) {
	dt, ok := dc.DeviceTypes[tag]
	return dt, ok
}
