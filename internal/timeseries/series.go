package timeseries

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"
)

// SeriesKey identifies one series.
type SeriesKey struct {
	DeviceType  string `json:"device_type"`
	Measurement string `json:"measurement"`
	Device      string `json:"device"`
}

// Less orders keys by device type, measurement, then device.
func (k SeriesKey) Less(o SeriesKey) bool {
	if k.DeviceType != o.DeviceType {
		return k.DeviceType < o.DeviceType
	}
	if k.Measurement != o.Measurement {
		return k.Measurement < o.Measurement
	}
	return k.Device < o.Device
}

// Points are the samples of one series keyed by timestamp.
type Points map[time.Time]any

// Times returns the timestamps in ascending order.
func (p Points) Times() []time.Time {
	times := make([]time.Time, 0, len(p))
	for t := range p {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times
}

// Result holds series keyed by (device type, measurement, device).
type Result map[SeriesKey]Points

// Keys returns the series keys in order.
func (r Result) Keys() []SeriesKey {
	keys := make([]SeriesKey, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Merge copies every series of other into r. Samples of other win on
// timestamp collisions.
func (r Result) Merge(other Result) {
	for k, pts := range other {
		dst, ok := r[k]
		if !ok {
			dst = make(Points, len(pts))
			r[k] = dst
		}
		for t, v := range pts {
			dst[t] = v
		}
	}
}

// Nested returns the result as device type, measurement, device, points.
func (r Result) Nested() map[string]map[string]map[string]Points {
	out := make(map[string]map[string]map[string]Points)
	for k, pts := range r {
		byMeasurement, ok := out[k.DeviceType]
		if !ok {
			byMeasurement = make(map[string]map[string]Points)
			out[k.DeviceType] = byMeasurement
		}
		byDevice, ok := byMeasurement[k.Measurement]
		if !ok {
			byDevice = make(map[string]Points)
			byMeasurement[k.Measurement] = byDevice
		}
		byDevice[k.Device] = pts
	}
	return out
}

// MarshalJSON encodes the nested form with RFC 3339 timestamp keys.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Nested())
}

// UnmarshalJSON decodes the nested form. Timestamps must be RFC 3339 and
// numbers are kept as json.Number.
func (r *Result) UnmarshalJSON(data []byte) error {
	var nested map[string]map[string]map[string]map[time.Time]json.RawMessage
	if err := json.Unmarshal(data, &nested); err != nil {
		return err
	}
	out := make(Result)
	for dt, byMeasurement := range nested {
		for m, byDevice := range byMeasurement {
			for dev, raw := range byDevice {
				pts := make(Points, len(raw))
				for t, msg := range raw {
					v, err := decodeValue(msg)
					if err != nil {
						return err
					}
					pts[t.UTC()] = v
				}
				out[SeriesKey{DeviceType: dt, Measurement: m, Device: dev}] = pts
			}
		}
	}
	*r = out
	return nil
}

// decodeValue decodes one JSON sample keeping numbers as json.Number.
func decodeValue(msg json.RawMessage) (any, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
