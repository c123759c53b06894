package timeseries

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"
)

// Reserved where keys holding the time bounds.
const (
	whereStartTime = "starttime"
	whereEndTime   = "endtime"
)

// Tags added to every series written by the service.
const (
	TagDatacenter = "datacenter"
	TagDeviceType = "device_type"
	TagDevice     = "device"
)

var (
	// relativeTime matches now() arithmetic such as "now() - 2h" or "-1d".
	relativeTime = regexp.MustCompile(`^(now\(\))?\s*[+-]?\s*\d+(u|ms|s|m|h|d|w)(\s*[+-]\s*\d+(u|ms|s|m|h|d|w))*$`)
	signSpacing  = regexp.MustCompile(`\s*([+-])\s*`)

	identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	plainName  = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// ParseTimeBound normalizes one time bound of a where clause.
//
// A bound starting with a sign is taken relative to now(). Relative bounds
// are returned with single spaces around each sign. Anything else must be
// a parseable timestamp and is returned single-quoted exactly as given.
// An empty bound yields an empty string.
func ParseTimeBound(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if s[0] == '+' || s[0] == '-' {
		s = "now()" + s
	}
	if relativeTime.MatchString(s) {
		out := signSpacing.ReplaceAllString(s, " $1 ")
		return strings.TrimSpace(out), nil
	}
	if s == "now()" {
		return s, nil
	}
	if _, err := dateparse.ParseAny(s); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidTimeBound, s)
	}
	return quoteLiteral(s), nil
}

// TagFilter is the condition on one tag: a single value, or a list of
// alternatives.
type TagFilter struct {
	Values []string
	List   bool
}

// Eq filters a tag on a single value.
func Eq(v string) TagFilter {
	return TagFilter{Values: []string{v}}
}

// In filters a tag on any of the given values.
func In(values ...string) TagFilter {
	return TagFilter{Values: append([]string(nil), values...), List: true}
}

// UnmarshalJSON decodes a scalar or an array of scalars.
func (f *TagFilter) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		values := make([]string, 0, len(raw))
		for _, r := range raw {
			v, ok, err := scalarString(r)
			if err != nil {
				return err
			}
			if ok {
				values = append(values, v)
			}
		}
		*f = TagFilter{Values: values, List: true}
		return nil
	}

	v, ok, err := scalarString(data)
	if err != nil {
		return err
	}
	if !ok {
		*f = TagFilter{}
		return nil
	}
	*f = Eq(v)
	return nil
}

// MarshalJSON encodes a list filter as an array and a scalar as a string.
func (f TagFilter) MarshalJSON() ([]byte, error) {
	if f.List {
		return json.Marshal(f.Values)
	}
	if len(f.Values) == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(f.Values[0])
}

// scalarString renders a JSON scalar as a tag value. Null yields ok=false.
func scalarString(data json.RawMessage) (string, bool, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", false, err
	}
	switch x := v.(type) {
	case nil:
		return "", false, nil
	case string:
		return x, true, nil
	case json.Number:
		return x.String(), true, nil
	case bool:
		return strconv.FormatBool(x), true, nil
	}
	return "", false, fmt.Errorf("%w: tag filter must be a scalar, got %s", ErrInvalidQuery, data)
}

// Where holds the time bounds and tag filters of a query.
type Where struct {
	StartTime string
	EndTime   string
	Tags      map[string]TagFilter
}

// Set adds or replaces a tag filter.
func (w *Where) Set(tag string, f TagFilter) {
	if w.Tags == nil {
		w.Tags = make(map[string]TagFilter)
	}
	w.Tags[tag] = f
}

// UnmarshalJSON decodes an object whose starttime and endtime keys are time
// bounds and whose other keys are tag filters.
func (w *Where) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*w = Where{}
	for key, value := range raw {
		switch key {
		case whereStartTime, whereEndTime:
			bound, _, err := scalarString(value)
			if err != nil {
				return err
			}
			if key == whereStartTime {
				w.StartTime = bound
			} else {
				w.EndTime = bound
			}
		default:
			var f TagFilter
			if err := json.Unmarshal(value, &f); err != nil {
				return fmt.Errorf("where %s: %w", key, err)
			}
			w.Set(key, f)
		}
	}
	return nil
}

// MarshalJSON encodes the where clause as a flat object.
func (w Where) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(w.Tags)+2)
	for k, f := range w.Tags {
		m[k] = f
	}
	if w.StartTime != "" {
		m[whereStartTime] = w.StartTime
	}
	if w.EndTime != "" {
		m[whereEndTime] = w.EndTime
	}
	return json.Marshal(m)
}

// Clause renders the conditions joined by "and", without the leading
// keyword. Time bounds come first, then tag filters sorted by tag.
func (w Where) Clause() (string, error) {
	var conds []string

	start, err := ParseTimeBound(w.StartTime)
	if err != nil {
		return "", err
	}
	if start != "" {
		conds = append(conds, "time >= "+start)
	}
	end, err := ParseTimeBound(w.EndTime)
	if err != nil {
		return "", err
	}
	if end != "" {
		conds = append(conds, "time < "+end)
	}

	tags := make([]string, 0, len(w.Tags))
	for k := range w.Tags {
		tags = append(tags, k)
	}
	sort.Strings(tags)

	for _, tag := range tags {
		f := w.Tags[tag]
		if len(f.Values) == 0 {
			continue
		}
		if !f.List {
			conds = append(conds, tag+" = "+quoteLiteral(f.Values[0]))
			continue
		}
		alts := make([]string, len(f.Values))
		for i, v := range f.Values {
			alts[i] = tag + " = " + quoteLiteral(v)
		}
		conds = append(conds, "("+strings.Join(alts, " or ")+")")
	}
	return strings.Join(conds, " and "), nil
}

// FillPolicy is the fill() argument of a grouped query. JSON numbers and
// strings are both accepted.
type FillPolicy string

// UnmarshalJSON accepts a string, a number or null.
func (f *FillPolicy) UnmarshalJSON(data []byte) error {
	v, _, err := scalarString(data)
	if err != nil {
		return err
	}
	*f = FillPolicy(v)
	return nil
}

// QueryParams are the caller-supplied parts of a read query.
type QueryParams struct {
	Where       Where      `json:"where"`
	GroupBy     []string   `json:"group_by,omitempty"`
	OrderBy     []string   `json:"order_by,omitempty"`
	Fill        FillPolicy `json:"fill,omitempty"`
	Aggregation string     `json:"aggregation,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	Offset      int        `json:"offset,omitempty"`

	// Query, when set, is sent verbatim instead of a generated statement.
	Query string `json:"query,omitempty"`
}

// Query is a complete read query against one measurement expression.
type Query struct {
	Measurement string
	QueryParams
}

// BuildQuery renders a select statement:
//
//	select value|fn(value) as value from M [where ...] [group by ...]
//	[order by ...] [fill(x)] [limit n] [offset n]
//
// A raw query is returned unchanged.
func BuildQuery(q Query) (string, error) {
	if q.Query != "" {
		return q.Query, nil
	}
	if q.Measurement == "" {
		return "", fmt.Errorf("%w: measurement is required", ErrInvalidQuery)
	}
	if q.Limit < 0 || q.Offset < 0 {
		return "", fmt.Errorf("%w: negative limit or offset", ErrInvalidQuery)
	}

	var b strings.Builder
	b.WriteString("select ")
	if q.Aggregation != "" {
		if !identifier.MatchString(q.Aggregation) {
			return "", fmt.Errorf("%w: aggregation %q", ErrInvalidQuery, q.Aggregation)
		}
		b.WriteString(q.Aggregation + "(value) as value")
	} else {
		b.WriteString("value")
	}
	b.WriteString(" from ")
	b.WriteString(measurementExpr(q.Measurement))

	where, err := q.Where.Clause()
	if err != nil {
		return "", err
	}
	if where != "" {
		b.WriteString(" where " + where)
	}
	if len(q.GroupBy) > 0 {
		b.WriteString(" group by " + strings.Join(q.GroupBy, ", "))
	}
	if len(q.OrderBy) > 0 {
		b.WriteString(" order by " + strings.Join(q.OrderBy, ", "))
	}
	if q.Fill != "" {
		b.WriteString(" fill(" + string(q.Fill) + ")")
	}
	if q.Limit > 0 {
		b.WriteString(" limit " + strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		b.WriteString(" offset " + strconv.Itoa(q.Offset))
	}
	return b.String(), nil
}

// QueryFromRequest builds the statement for one measurement of one device
// type. The datacenter and device type become tag filters, overriding any
// caller filter on the same tags, and results are grouped by device.
func QueryFromRequest(datacenter, deviceType, measurement string, params QueryParams) (string, error) {
	if params.Query != "" {
		return params.Query, nil
	}

	q := Query{Measurement: measurement, QueryParams: params}

	q.Where.Tags = make(map[string]TagFilter, len(params.Where.Tags)+2)
	for k, f := range params.Where.Tags {
		q.Where.Tags[k] = f
	}
	q.Where.Set(TagDatacenter, Eq(datacenter))
	q.Where.Set(TagDeviceType, Eq(deviceType))

	q.GroupBy = make([]string, 0, len(params.GroupBy)+1)
	for _, g := range params.GroupBy {
		if g != TagDevice {
			q.GroupBy = append(q.GroupBy, g)
		}
	}
	q.GroupBy = append(q.GroupBy, TagDevice)

	return BuildQuery(q)
}

// measurementExpr quotes a measurement name unless it is a regex literal or
// consists only of letters, digits and underscores.
func measurementExpr(m string) string {
	if len(m) > 1 && strings.HasPrefix(m, "/") && strings.HasSuffix(m, "/") {
		return m
	}
	if plainName.MatchString(m) {
		return m
	}
	return `"` + strings.ReplaceAll(m, `"`, `\"`) + `"`
}

func quoteLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}
