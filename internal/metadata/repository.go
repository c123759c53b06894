package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/riahtu/energy-saving/internal/infrastructure/database"
)

// Logger defines the logging interface used by the repository.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Repository reads and imports datacenter metadata over a SQL connection.
//
// Every read derives fresh metadata from the store; nothing is cached.
type Repository struct {
	db     *database.DB
	logger Logger
}

// NewRepository creates a repository over an open, migrated database.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db, logger: noopLogger{}}
}

// SetLogger sets the logger for the repository.
func (r *Repository) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Datacenter loads the metadata of the named datacenter.
// Returns ErrDatacenterNotFound if no datacenter has that name.
func (r *Repository) Datacenter(ctx context.Context, name string) (*Datacenter, error) {
	dc, err := r.loadDatacenterRow(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := r.loadAttributes(ctx, dc); err != nil {
		return nil, err
	}
	return dc, nil
}

// ListDatacenters returns all datacenter names, sorted.
func (r *Repository) ListDatacenters(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT name FROM datacenters ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying datacenters: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning datacenter: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating datacenters: %w", err)
	}
	return names, nil
}

// Metadata loads the metadata of every datacenter, keyed by name.
func (r *Repository) Metadata(ctx context.Context) (map[string]*Datacenter, error) {
	names, err := r.ListDatacenters(ctx)
	if err != nil {
		return nil, err
	}

	result := make(map[string]*Datacenter, len(names))
	for _, name := range names {
		dc, err := r.Datacenter(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("loading datacenter %q: %w", name, err)
		}
		result[name] = dc
	}
	return result, nil
}

// DeviceTypeMetadata loads the attributes of one device type of a datacenter.
// Returns ErrUnknownDeviceType for a tag outside the six device types.
func (r *Repository) DeviceTypeMetadata(ctx context.Context, datacenter, deviceType string) (*DeviceType, error) {
	if !IsDeviceType(deviceType) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDeviceType, deviceType)
	}
	dc, err := r.Datacenter(ctx, datacenter)
	if err != nil {
		return nil, err
	}
	dt, _ := dc.DeviceType(deviceType)
	return dt, nil
}

func (r *Repository) loadDatacenterRow(ctx context.Context, name string) (*Datacenter, error) {
	query := `
		SELECT id, name, time_interval, models, properties
		FROM datacenters
		WHERE name = ?`

	var (
		dc         Datacenter
		models     sql.NullString
		properties sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, name).Scan(&dc.ID, &dc.Name, &dc.TimeInterval, &models, &properties)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrDatacenterNotFound, name)
		}
		return nil, fmt.Errorf("querying datacenter: %w", err)
	}

	if dc.Models, err = decodeObject(models); err != nil {
		return nil, fmt.Errorf("decoding models of %q: %w", name, err)
	}
	if dc.Properties, err = decodeObject(properties); err != nil {
		return nil, fmt.Errorf("decoding properties of %q: %w", name, err)
	}

	dc.DeviceTypes = make(map[string]*DeviceType, len(deviceTypeTags))
	for _, tag := range deviceTypeTags {
		dc.DeviceTypes[tag] = NewDeviceType(tag, nil)
	}
	return &dc, nil
}

// loadAttributes fills dc.DeviceTypes with attribute definitions and their bound devices.
func (r *Repository) loadAttributes(ctx context.Context, dc *Datacenter) error {
	query := `
		SELECT id, device_type, name, value_type, unit, measurement_pattern,
			mean, deviation, min_value, max_value, possible_values
		FROM attributes
		WHERE datacenter_id = ?
		ORDER BY device_type, position, name`

	rows, err := r.db.QueryContext(ctx, query, dc.ID)
	if err != nil {
		return fmt.Errorf("querying attributes: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Attribute)
	for rows.Next() {
		id, attr, err := scanAttribute(rows)
		if err != nil {
			return err
		}
		dt, ok := dc.DeviceTypes[attr.DeviceType]
		if !ok {
			r.logger.Warn("skipping attribute with unknown device type",
				"datacenter", dc.Name, "device_type", attr.DeviceType, "attribute", attr.Name)
			continue
		}
		dt.add(attr)
		byID[id] = attr
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating attributes: %w", err)
	}

	return r.loadBindings(ctx, dc.ID, byID)
}

func (r *Repository) loadBindings(ctx context.Context, datacenterID string, byID map[string]*Attribute) error {
	query := `
		SELECT b.attribute_id, d.name
		FROM attribute_bindings b
		JOIN devices d ON d.id = b.device_id
		JOIN attributes a ON a.id = b.attribute_id
		WHERE a.datacenter_id = ?
		ORDER BY d.name`

	rows, err := r.db.QueryContext(ctx, query, datacenterID)
	if err != nil {
		return fmt.Errorf("querying attribute bindings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var attributeID, device string
		if err := rows.Scan(&attributeID, &device); err != nil {
			return fmt.Errorf("scanning attribute binding: %w", err)
		}
		if attr, ok := byID[attributeID]; ok {
			attr.Devices = append(attr.Devices, device)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating attribute bindings: %w", err)
	}

	for _, attr := range byID {
		if attr.Devices == nil {
			attr.Devices = []string{}
		}
	}
	return nil
}

func scanAttribute(rows *sql.Rows) (string, *Attribute, error) {
	var (
		id             string
		attr           Attribute
		valueType      string
		unit           sql.NullString
		pattern        sql.NullString
		mean           sql.NullFloat64
		deviation      sql.NullFloat64
		minValue       sql.NullFloat64
		maxValue       sql.NullFloat64
		possibleValues sql.NullString
	)
	err := rows.Scan(&id, &attr.DeviceType, &attr.Name, &valueType, &unit, &pattern,
		&mean, &deviation, &minValue, &maxValue, &possibleValues)
	if err != nil {
		return "", nil, fmt.Errorf("scanning attribute: %w", err)
	}

	attr.ValueType = ValueType(valueType)
	attr.Unit = unit.String
	// Controller parameters are never pattern-aggregated.
	if attr.DeviceType != ControllerParameter {
		attr.Pattern = pattern.String
	}
	attr.Mean = nullFloat(mean)
	attr.Deviation = nullFloat(deviation)
	attr.Min = nullFloat(minValue)
	attr.Max = nullFloat(maxValue)

	if possibleValues.Valid && possibleValues.String != "" {
		if err := json.Unmarshal([]byte(possibleValues.String), &attr.PossibleValues); err != nil {
			return "", nil, fmt.Errorf("decoding possible values of %q: %w", attr.Name, err)
		}
	}
	return id, &attr, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func decodeObject(s sql.NullString) (map[string]any, error) {
	if !s.Valid || s.String == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}
