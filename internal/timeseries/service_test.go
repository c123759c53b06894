package timeseries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb/models"

	"github.com/riahtu/energy-saving/internal/metadata"
)

type fakeMeta struct {
	dcs map[string]*metadata.Datacenter
}

func (f *fakeMeta) Datacenter(_ context.Context, name string) (*metadata.Datacenter, error) {
	dc, ok := f.dcs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", metadata.ErrDatacenterNotFound, name)
	}
	return dc, nil
}

type writeCall struct {
	measurement string
	tags        map[string]string
	points      map[time.Time]any
}

type deleteCall struct {
	measurement string
	tags        map[string]string
}

// fakeSession stores written points in memory and answers queries by
// matching the measurement expression of the select statement.
type fakeSession struct {
	mu       sync.Mutex
	tabular  bool
	queries  []string
	writes   []writeCall
	deletes  []deleteCall
	failWith map[string]error
}

func (f *fakeSession) Query(_ context.Context, command, _ string) ([]models.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, command)

	from := strings.Fields(strings.SplitN(command, " from ", 2)[1])[0]
	match := func(name string) bool { return name == from }
	if strings.HasPrefix(from, "/^") {
		prefix := strings.TrimSuffix(strings.TrimPrefix(from, "/^"), ".*$/")
		match = func(name string) bool { return strings.HasPrefix(name, prefix) }
	}

	byRow := make(map[string]*models.Row)
	for _, w := range f.writes {
		if !match(w.measurement) || !strings.Contains(command, "device_type = '"+w.tags[TagDeviceType]+"'") {
			continue
		}
		id := w.measurement + "/" + w.tags[TagDevice]
		r, ok := byRow[id]
		if !ok {
			r = &models.Row{Name: w.measurement, Tags: map[string]string{TagDevice: w.tags[TagDevice]}, Columns: []string{"time", "value"}}
			byRow[id] = r
		}
		for ts, v := range w.points {
			r.Values = append(r.Values, []any{ts.Format(time.RFC3339Nano), jsonValue(v)})
		}
	}

	ids := make([]string, 0, len(byRow))
	for id := range byRow {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := make([]models.Row, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, *byRow[id])
	}
	return rows, nil
}

// jsonValue mimics the store client, which decodes numbers as json.Number.
func jsonValue(v any) any {
	switch x := v.(type) {
	case float64:
		return json.Number(fmt.Sprint(x))
	case int64:
		return json.Number(fmt.Sprint(x))
	}
	return v
}

func (f *fakeSession) WritePoints(_ context.Context, measurement string, tags map[string]string, points map[time.Time]any, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failWith[measurement]; err != nil {
		return err
	}
	f.writes = append(f.writes, writeCall{measurement: measurement, tags: tags, points: points})
	return nil
}

func (f *fakeSession) DeleteSeries(_ context.Context, measurement string, tags map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, deleteCall{measurement: measurement, tags: tags})
	return f.failWith["delete:"+tags[TagDevice]]
}

func (f *fakeSession) Tabular() bool { return f.tabular }

func newTestService(t *testing.T, session *fakeSession) *Service {
	t.Helper()
	meta := &fakeMeta{dcs: map[string]*metadata.Datacenter{"dc1": testDatacenter()}}
	return NewService(meta, session, Options{Precision: "s", MaxConcurrency: 2})
}

func TestService_CreateThenList(t *testing.T) {
	ctx := context.Background()
	session := &fakeSession{}
	svc := newTestService(t, session)

	ok, err := svc.Create(ctx, CreateRequest{
		Datacenter: "dc1",
		DeviceType: One(metadata.PowerSupplyAttribute),
		Data: Result{
			{DeviceType: metadata.PowerSupplyAttribute, Measurement: "phase_a", Device: "ps1"}: {t0: 1.23},
			{DeviceType: metadata.PowerSupplyAttribute, Measurement: "phase_b", Device: "ps1"}: {t0: 2.0},
		},
	})
	if err != nil || !ok {
		t.Fatalf("Create() = %v, %v", ok, err)
	}
	if len(session.writes) != 2 {
		t.Fatalf("writes = %d, want 2 raw series", len(session.writes))
	}

	listing, err := svc.List(ctx, ListRequest{
		Datacenter: "dc1",
		DeviceType: Each(map[string]Selector{metadata.PowerSupplyAttribute: One("power")}),
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	pts := listing.Series[SeriesKey{DeviceType: metadata.PowerSupplyAttribute, Measurement: "power", Device: "ps1"}]
	if got, _ := pts[t0].(float64); math.Abs(got-3.23) > 1e-9 {
		t.Errorf("power = %v, want 3.23", pts[t0])
	}
	if listing.Frame != nil {
		t.Error("Frame set for non-tabular session")
	}

	if len(session.queries) != 1 || !strings.Contains(session.queries[0], "from /^phase_.*$/") {
		t.Errorf("queries = %v", session.queries)
	}
}

func TestService_ListTabular(t *testing.T) {
	session := &fakeSession{tabular: true}
	svc := newTestService(t, session)
	session.writes = []writeCall{
		{measurement: "temperature", tags: map[string]string{TagDeviceType: metadata.SensorAttribute, TagDevice: "s1"}, points: map[time.Time]any{t0: 21.5}},
		{measurement: "count", tags: map[string]string{TagDeviceType: metadata.SensorAttribute, TagDevice: "s1"}, points: map[time.Time]any{t1: int64(4)}},
	}

	listing, err := svc.List(context.Background(), ListRequest{Datacenter: "dc1", DeviceType: One(metadata.SensorAttribute)})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if listing.Frame == nil {
		t.Fatal("Frame not set for tabular session")
	}
	if len(listing.Frame.Index) != 2 || len(listing.Frame.Columns) != 2 {
		t.Errorf("frame = %+v", listing.Frame)
	}
	if v, ok := listing.Frame.Value(t1, SeriesKey{DeviceType: metadata.SensorAttribute, Measurement: "count", Device: "s1"}); !ok || v != int64(4) {
		t.Errorf("count cell = %#v, %v", v, ok)
	}
}

func TestService_ListErrors(t *testing.T) {
	svc := newTestService(t, &fakeSession{})
	ctx := context.Background()

	_, err := svc.List(ctx, ListRequest{Datacenter: "nowhere"})
	if !errors.Is(err, ErrNotFound) || !errors.Is(err, metadata.ErrDatacenterNotFound) {
		t.Errorf("List(unknown datacenter) error = %v", err)
	}

	_, err = svc.List(ctx, ListRequest{Datacenter: "dc1", DeviceType: One("chiller_attribute")})
	if !errors.Is(err, ErrUnknownDeviceType) {
		t.Errorf("List(unknown device type) error = %v, want strict failure", err)
	}

	nonStrict := false
	if _, err := svc.List(ctx, ListRequest{Datacenter: "dc1", DeviceType: One("chiller_attribute"), Strict: &nonStrict}); err != nil {
		t.Errorf("List(non-strict) error = %v", err)
	}

	_, err = svc.List(ctx, ListRequest{
		Datacenter:  "dc1",
		QueryParams: QueryParams{Where: Where{StartTime: "whenever"}},
	})
	if !errors.Is(err, ErrInvalidTimeBound) {
		t.Errorf("List(bad bound) error = %v", err)
	}
}

func TestService_CreatePartialFailure(t *testing.T) {
	session := &fakeSession{failWith: map[string]error{"count": errors.New("store unavailable")}}
	svc := newTestService(t, session)

	ok, err := svc.Create(context.Background(), CreateRequest{
		Datacenter: "dc1",
		Data: Result{
			{DeviceType: metadata.SensorAttribute, Measurement: "count", Device: "s1"}:       {t0: 1},
			{DeviceType: metadata.SensorAttribute, Measurement: "temperature", Device: "s1"}: {t0: 20.0},
		},
	})
	if ok || err == nil {
		t.Fatalf("Create() = %v, %v, want failure", ok, err)
	}
	if len(session.writes) != 1 || session.writes[0].measurement != "temperature" {
		t.Errorf("writes = %+v, want the other series still written", session.writes)
	}
}

func TestService_CreateStrict(t *testing.T) {
	strict := true
	tests := []struct {
		name string
		data Result
		want error
	}{
		{"unknown measurement", Result{{DeviceType: metadata.SensorAttribute, Measurement: "humidity", Device: "s1"}: {t0: 1.0}}, ErrUnknownMeasurement},
		{"unbound device", Result{{DeviceType: metadata.SensorAttribute, Measurement: "temperature", Device: "ghost"}: {t0: 1.0}}, ErrUnknownDevice},
		{"nothing to store", Result{{DeviceType: metadata.SensorAttribute, Measurement: "temperature", Device: "s1"}: {t0: nil}}, ErrNoSamples},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := &fakeSession{}
			svc := newTestService(t, session)
			req := CreateRequest{Datacenter: "dc1", DeviceType: One(metadata.SensorAttribute), Data: tt.data, Strict: &strict}

			ok, err := svc.Create(context.Background(), req)
			if ok || !errors.Is(err, tt.want) {
				t.Errorf("Create() = %v, %v; want %v", ok, err, tt.want)
			}
			if len(session.writes) != 0 {
				t.Errorf("writes = %+v", session.writes)
			}

			req.Strict = nil
			if ok, err := svc.Create(context.Background(), req); !ok || err != nil {
				t.Errorf("non-strict Create() = %v, %v; want the series skipped", ok, err)
			}
		})
	}
}

func TestService_Delete(t *testing.T) {
	session := &fakeSession{failWith: map[string]error{"delete:s1": errors.New("boom")}}
	svc := newTestService(t, session)

	err := svc.Delete(context.Background(), DeleteRequest{
		Datacenter: "dc1",
		DeviceType: Each(map[string]Selector{metadata.SensorAttribute: One("temperature")}),
	})
	if err == nil {
		t.Fatal("Delete() expected joined error")
	}
	if len(session.deletes) != 2 {
		t.Fatalf("deletes = %+v, want both devices attempted", session.deletes)
	}
	for _, d := range session.deletes {
		if d.measurement != "temperature" || d.tags[TagDatacenter] != "dc1" || d.tags[TagDeviceType] != metadata.SensorAttribute {
			t.Errorf("delete = %+v", d)
		}
	}
}

type fakeAuditor struct {
	entries []map[string]any
}

func (f *fakeAuditor) Record(_ context.Context, action, entityType, entityID string, details map[string]any) error {
	entry := map[string]any{"action": action, "entity_type": entityType, "entity_id": entityID}
	for k, v := range details {
		entry[k] = v
	}
	f.entries = append(f.entries, entry)
	return nil
}

func TestService_DeleteIsAudited(t *testing.T) {
	svc := newTestService(t, &fakeSession{})
	auditor := &fakeAuditor{}
	svc.SetAuditor(auditor)

	err := svc.Delete(context.Background(), DeleteRequest{Datacenter: "dc1", DeviceType: One(metadata.SensorAttribute)})
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(auditor.entries) != 1 {
		t.Fatalf("audit entries = %v", auditor.entries)
	}
	e := auditor.entries[0]
	if e["action"] != "delete" || e["entity_id"] != "dc1" || e["series"] != 3 || e["failed"] != false {
		t.Errorf("audit entry = %v", e)
	}
}

func TestService_TimeInterval(t *testing.T) {
	svc := newTestService(t, &fakeSession{})
	got, err := svc.TimeInterval(context.Background(), "dc1", "ms")
	if err != nil {
		t.Fatalf("TimeInterval() error = %v", err)
	}
	if got != 300000 {
		t.Errorf("TimeInterval() = %v, want 300000", got)
	}
}

func TestCreateRequest_UnmarshalJSON(t *testing.T) {
	input := `{
		"datacenter": "dc1",
		"device_type": {"sensor_attribute": {"temperature": ["s1"]}},
		"data": {"sensor_attribute": {"temperature": {"s1": {"2024-03-01T12:00:00Z": 21.5}}}}
	}`
	var req CreateRequest
	if err := json.Unmarshal([]byte(input), &req); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	v := req.Data[SeriesKey{DeviceType: "sensor_attribute", Measurement: "temperature", Device: "s1"}][t0]
	if v != json.Number("21.5") {
		t.Errorf("sample = %#v", v)
	}
	if req.DeviceType.Kind() != SelectEach {
		t.Errorf("device_type kind = %v", req.DeviceType.Kind())
	}
}
