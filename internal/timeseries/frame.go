package timeseries

import (
	"sort"
	"time"
)

// Frame is the tabular form of a Result: one row per timestamp and one
// column per series. Missing cells are nil.
type Frame struct {
	Index   []time.Time `json:"index"`
	Columns []SeriesKey `json:"columns"`
	Data    [][]any     `json:"data"`
}

// NewFrame lays out a result with sorted timestamps and sorted columns.
func NewFrame(r Result) *Frame {
	f := &Frame{Columns: r.Keys()}

	seen := make(map[time.Time]bool)
	for _, pts := range r {
		for t := range pts {
			if !seen[t] {
				seen[t] = true
				f.Index = append(f.Index, t)
			}
		}
	}
	sort.Slice(f.Index, func(i, j int) bool { return f.Index[i].Before(f.Index[j]) })

	f.Data = make([][]any, len(f.Index))
	for i, t := range f.Index {
		row := make([]any, len(f.Columns))
		for j, key := range f.Columns {
			if v, ok := r[key][t]; ok {
				row[j] = v
			}
		}
		f.Data[i] = row
	}
	return f
}

// Result converts the frame back to series, skipping empty cells.
func (f *Frame) Result() Result {
	r := make(Result, len(f.Columns))
	for _, key := range f.Columns {
		r[key] = make(Points)
	}
	for i, t := range f.Index {
		for j, key := range f.Columns {
			if v := f.Data[i][j]; v != nil {
				r[key][t] = v
			}
		}
	}
	return r
}

// Join combines two frames on their timestamps. The index is the union of
// both indexes and columns of other win when both frames hold a column.
func (f *Frame) Join(other *Frame) *Frame {
	if f == nil {
		return other
	}
	if other == nil {
		return f
	}
	merged := f.Result()
	merged.Merge(other.Result())
	return NewFrame(merged)
}

// Value returns the cell for one timestamp and series.
func (f *Frame) Value(t time.Time, key SeriesKey) (any, bool) {
	i := sort.Search(len(f.Index), func(i int) bool { return !f.Index[i].Before(t) })
	if i == len(f.Index) || !f.Index[i].Equal(t) {
		return nil, false
	}
	for j, c := range f.Columns {
		if c == key {
			v := f.Data[i][j]
			return v, v != nil
		}
	}
	return nil, false
}
