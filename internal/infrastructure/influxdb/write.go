package influxdb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	client "github.com/influxdata/influxdb/client/v2"
)

// valueField is the single field every energy saving point carries.
const valueField = "value"

// WritePoints writes one series: every (timestamp, value) pair becomes a
// point of measurement with the given tags and a single value field.
// Nil values are skipped. Points are written in timestamp order as one batch.
//
// precision is the timestamp precision of the 1.x write (ns when empty).
// Writes through the 2.x API always use nanoseconds.
func (c *Client) WritePoints(ctx context.Context, measurement string, tags map[string]string, points map[time.Time]any, precision string) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	times := make([]time.Time, 0, len(points))
	for ts, v := range points {
		if v != nil {
			times = append(times, ts)
		}
	}
	if len(times) == 0 {
		return nil
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	if c.v2 != nil {
		return c.writeV2(ctx, measurement, tags, points, times)
	}
	return c.writeV1(ctx, measurement, tags, points, times, precision)
}

func (c *Client) writeV1(ctx context.Context, measurement string, tags map[string]string, points map[time.Time]any, times []time.Time, precision string) error {
	bp, err := client.NewBatchPoints(client.BatchPointsConfig{
		Database:  c.database,
		Precision: precision,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	for _, ts := range times {
		pt, err := client.NewPoint(measurement, tags, map[string]interface{}{valueField: points[ts]}, ts)
		if err != nil {
			return fmt.Errorf("%w: point %s at %s: %w", ErrWriteFailed, measurement, ts.Format(time.RFC3339Nano), err)
		}
		bp.AddPoint(pt)
	}

	// The 1.x client has no context-aware write; honour cancellation up front.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.v1.Write(bp); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

func (c *Client) writeV2(ctx context.Context, measurement string, tags map[string]string, points map[time.Time]any, times []time.Time) error {
	pts := make([]*write.Point, 0, len(times))
	for _, ts := range times {
		pts = append(pts, write.NewPoint(measurement, tags, map[string]interface{}{valueField: points[ts]}, ts))
	}

	writeAPI := c.v2.WriteAPIBlocking(c.cfg.Org, c.cfg.Bucket)
	if err := writeAPI.WritePoint(ctx, pts...); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}
