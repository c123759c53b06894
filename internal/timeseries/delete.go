package timeseries

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// deleteSeries drops every (device type, measurement, device) series of the
// mapping. All deletions are attempted; failures are joined.
func deleteSeries(ctx context.Context, session Session, m *Mapping, limit int, logger Logger) error {
	var (
		mu   sync.Mutex
		errs []error
	)

	var g errgroup.Group
	g.SetLimit(limit)
	for _, key := range m.Series() {
		key := key
		tags := map[string]string{
			TagDatacenter: m.Datacenter,
			TagDeviceType: key.DeviceType,
			TagDevice:     key.Device,
		}
		g.Go(func() error {
			if err := session.DeleteSeries(ctx, key.Measurement, tags); err != nil {
				logger.Error("deleting series failed",
					"device_type", key.DeviceType, "measurement", key.Measurement, "device", key.Device, "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // Failures are collected in errs
	return errors.Join(errs...)
}
