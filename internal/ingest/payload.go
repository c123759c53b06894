package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/araddon/dateparse"

	"github.com/riahtu/energy-saving/internal/timeseries"
)

// Reading is one telemetry sample as published by a collector.
type Reading struct {
	// Time is an RFC 3339 string, another parseable date string, or an
	// epoch number in the configured precision. Missing means now.
	Time json.RawMessage `json:"time,omitempty"`

	Value any `json:"value"`
}

// decodeReadings parses a payload holding one reading or an array of them.
func decodeReadings(payload []byte, precision string, now func() time.Time) (timeseries.Points, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var readings []Reading
	if payload[0] == '[' {
		if err := dec.Decode(&readings); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	} else {
		var r Reading
		if err := dec.Decode(&r); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		readings = []Reading{r}
	}

	points := make(timeseries.Points, len(readings))
	for _, r := range readings {
		ts, err := readingTime(r.Time, precision, now)
		if err != nil {
			return nil, err
		}
		points[ts] = r.Value
	}
	return points, nil
}

func readingTime(raw json.RawMessage, precision string, now func() time.Time) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return now().UTC(), nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("%w: time: %w", ErrInvalidPayload, err)
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC(), nil
		}
		t, err := dateparse.ParseIn(s, time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: time %q", ErrInvalidPayload, s)
		}
		return t.UTC(), nil
	}

	t, err := timeseries.EpochTime(json.Number(raw), precision)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time %s: %w", ErrInvalidPayload, raw, err)
	}
	return t, nil
}
