package timeseries

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/influxdata/influxdb/models"
	"golang.org/x/sync/errgroup"

	"github.com/riahtu/energy-saving/internal/metadata"
)

// defaultMaxConcurrency bounds concurrent store calls when unset.
const defaultMaxConcurrency = 4

// Logger defines the logging interface used by the service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetadataSource loads datacenter metadata.
type MetadataSource interface {
	Datacenter(ctx context.Context, name string) (*metadata.Datacenter, error)
}

// Session is a connection to the time-series store.
type Session interface {
	Query(ctx context.Context, command, precision string) ([]models.Row, error)
	WritePoints(ctx context.Context, measurement string, tags map[string]string, points map[time.Time]any, precision string) error
	DeleteSeries(ctx context.Context, measurement string, tags map[string]string) error

	// Tabular reports whether reads should be returned as frames.
	Tabular() bool
}

// Auditor records destructive operations.
type Auditor interface {
	Record(ctx context.Context, action, entityType, entityID string, details map[string]any) error
}

// Options configure a Service.
type Options struct {
	// Precision is the default time precision of reads and writes.
	Precision string

	// StrictConversion fails writes containing samples that cannot be
	// coerced; otherwise DefaultValue replaces them.
	StrictConversion bool
	DefaultValue     any

	// MaxConcurrency bounds concurrent store calls.
	MaxConcurrency int
}

// Service reads, writes and deletes datacenter time series.
type Service struct {
	meta    MetadataSource
	session Session
	opts    Options
	logger  Logger
	auditor Auditor
}

// NewService creates a service over a metadata source and a store session.
func NewService(meta MetadataSource, session Session, opts Options) *Service {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultMaxConcurrency
	}
	return &Service{
		meta:    meta,
		session: session,
		opts:    opts,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// SetAuditor records every Delete through a.
func (s *Service) SetAuditor(a Auditor) {
	s.auditor = a
}

// ListRequest selects series to read.
type ListRequest struct {
	Datacenter string   `json:"datacenter"`
	DeviceType Selector `json:"device_type"`
	QueryParams

	Units     Units  `json:"units,omitempty"`
	Precision string `json:"precision,omitempty"`

	// Strict defaults to true for reads.
	Strict *bool `json:"strict,omitempty"`
}

// Listing is the outcome of a read. Frame is set when the session is tabular.
type Listing struct {
	Series Result `json:"series"`
	Frame  *Frame `json:"frame,omitempty"`
}

// CreateRequest carries series to write.
type CreateRequest struct {
	Datacenter string   `json:"datacenter"`
	DeviceType Selector `json:"device_type"`
	Data       Result   `json:"data"`
	Units      Units    `json:"units,omitempty"`
	Precision  string   `json:"precision,omitempty"`

	// Strict defaults to false for writes. A strict write also rejects data
	// for series outside the selection and data that leaves nothing to store.
	Strict *bool `json:"strict,omitempty"`
}

// DeleteRequest selects series to delete.
type DeleteRequest struct {
	Datacenter string   `json:"datacenter"`
	DeviceType Selector `json:"device_type"`

	// Strict defaults to false for deletes.
	Strict *bool `json:"strict,omitempty"`
}

// Resolve loads a datacenter and resolves a selection against it.
func (s *Service) Resolve(ctx context.Context, datacenter string, sel Selector, units Units, strict bool) (*Mapping, error) {
	dc, err := s.meta.Datacenter(ctx, datacenter)
	if err != nil {
		if errors.Is(err, metadata.ErrDatacenterNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, fmt.Errorf("loading datacenter %s: %w", datacenter, err)
	}
	return resolve(dc, sel, units, strict, s.logger)
}

// TimeInterval returns the datacenter's sampling interval in the given
// precision.
func (s *Service) TimeInterval(ctx context.Context, datacenter, precision string) (float64, error) {
	dc, err := s.meta.Datacenter(ctx, datacenter)
	if err != nil {
		if errors.Is(err, metadata.ErrDatacenterNotFound) {
			return 0, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return 0, err
	}
	return TimeDelta(precision, float64(dc.TimeInterval))
}

type readJob struct {
	target ReadTarget
	query  string
}

// List reads the selected series. One query is issued per selected
// measurement, concurrently, and the results are merged in selection order.
func (s *Service) List(ctx context.Context, req ListRequest) (*Listing, error) {
	mapping, err := s.Resolve(ctx, req.Datacenter, req.DeviceType, req.Units, boolOr(req.Strict, true))
	if err != nil {
		return nil, err
	}
	precision := s.precision(req.Precision)

	var jobs []readJob
	for _, dt := range mapping.DeviceTypes {
		for _, rm := range dt.Measurements {
			if !rm.AllDevices && len(rm.Devices) == 0 {
				continue
			}
			query, err := QueryFromRequest(mapping.Datacenter, dt.Name, rm.Expression(), req.QueryParams)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, readJob{target: TargetFor(dt.Name, rm), query: query})
		}
	}

	results := make([]Result, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxConcurrency)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			s.logger.Debug("querying time series", "query", job.query)
			rows, err := s.session.Query(gctx, job.query, precision)
			if err != nil {
				return fmt.Errorf("querying %s/%s: %w", job.target.DeviceType, job.target.Measurement, err)
			}
			r, err := Translate(rows, job.target, ReadOptions{Precision: precision, Logger: s.logger})
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	listing := &Listing{Series: make(Result)}
	var frame *Frame
	for _, r := range results {
		listing.Series.Merge(r)
		if s.session.Tabular() {
			frame = frame.Join(NewFrame(r))
		}
	}
	if s.session.Tabular() {
		if frame == nil {
			frame = NewFrame(Result{})
		}
		listing.Frame = frame
	}
	return listing, nil
}

// Create writes series. It reports true only when every series was
// written; failures are returned joined.
func (s *Service) Create(ctx context.Context, req CreateRequest) (bool, error) {
	strict := boolOr(req.Strict, false)
	mapping, err := s.Resolve(ctx, req.Datacenter, req.DeviceType, req.Units, strict)
	if err != nil {
		return false, err
	}
	precision := s.precision(req.Precision)

	series, err := Generate(req.Data, mapping, WriteOptions{
		Precision:     precision,
		Policy:        ConversionPolicy{Strict: s.opts.StrictConversion, Default: s.opts.DefaultValue},
		RejectUnknown: strict,
		Logger:        s.logger,
	})
	if err != nil {
		return false, err
	}
	if strict && len(req.Data) > 0 && !hasSamples(series) {
		return false, ErrNoSamples
	}
	return s.emit(ctx, mapping.Datacenter, series, precision)
}

func hasSamples(series []GeneratedSeries) bool {
	for _, gs := range series {
		if len(gs.Points) > 0 {
			return true
		}
	}
	return false
}

// emit writes generated series concurrently. Every series is attempted.
func (s *Service) emit(ctx context.Context, datacenter string, series []GeneratedSeries, precision string) (bool, error) {
	var (
		mu   sync.Mutex
		errs []error
	)

	var g errgroup.Group
	g.SetLimit(s.opts.MaxConcurrency)
	for _, gs := range series {
		gs := gs
		if len(gs.Points) == 0 {
			continue
		}
		g.Go(func() error {
			err := s.session.WritePoints(ctx, gs.Key.Measurement, gs.Tags(datacenter), gs.Points, precision)
			if err != nil {
				s.logger.Error("writing series failed",
					"datacenter", datacenter, "device_type", gs.Key.DeviceType,
					"measurement", gs.Key.Measurement, "device", gs.Key.Device, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s/%s/%s: %w", gs.Key.DeviceType, gs.Key.Measurement, gs.Key.Device, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // Failures are collected in errs

	if len(errs) > 0 {
		return false, errors.Join(errs...)
	}
	return true, nil
}

// Delete drops the selected series.
func (s *Service) Delete(ctx context.Context, req DeleteRequest) error {
	mapping, err := s.Resolve(ctx, req.Datacenter, req.DeviceType, nil, boolOr(req.Strict, false))
	if err != nil {
		return err
	}
	series := mapping.Series()
	err = deleteSeries(ctx, s.session, mapping, s.opts.MaxConcurrency, s.logger)

	if s.auditor != nil {
		details := map[string]any{"series": len(series), "failed": err != nil}
		if auditErr := s.auditor.Record(ctx, "delete", "series", mapping.Datacenter, details); auditErr != nil {
			s.logger.Warn("recording deletion failed", "datacenter", mapping.Datacenter, "error", auditErr)
		}
	}
	return err
}

func (s *Service) precision(requested string) string {
	if requested != "" {
		return requested
	}
	return s.opts.Precision
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
