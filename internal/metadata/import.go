package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Document is a metadata import document.
type Document struct {
	Datacenters []DatacenterSpec `yaml:"datacenters"`
}

// DatacenterSpec declares one datacenter and its attributes.
type DatacenterSpec struct {
	Name         string         `yaml:"name"`
	Type         string         `yaml:"type"`
	TimeInterval int            `yaml:"time_interval"`
	Location     map[string]any `yaml:"location"`
	Models       map[string]any `yaml:"models"`
	Properties   map[string]any `yaml:"properties"`

	// DeviceTypes maps a device type tag to its attributes in declaration order.
	DeviceTypes map[string][]AttributeSpec `yaml:"device_types"`
}

// AttributeSpec declares one attribute or parameter.
type AttributeSpec struct {
	Name           string   `yaml:"name"`
	Type           string   `yaml:"type"`
	Unit           string   `yaml:"unit"`
	Pattern        string   `yaml:"pattern"`
	Mean           *float64 `yaml:"mean"`
	Deviation      *float64 `yaml:"deviation"`
	Min            *float64 `yaml:"min"`
	Max            *float64 `yaml:"max"`
	PossibleValues []any    `yaml:"possible_values"`
	Devices        []string `yaml:"devices"`
}

// LoadDocument reads an import document from a YAML file.
func LoadDocument(path string) (*Document, error) {
	f, err := os.Open(path) //nolint:gosec // Path comes from operator flag
	if err != nil {
		return nil, fmt.Errorf("opening metadata file: %w", err)
	}
	defer f.Close() //nolint:errcheck // Read-only file

	return ParseDocument(f)
}

// ParseDocument decodes and validates an import document.
func ParseDocument(r io.Reader) (*Document, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing metadata document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks the document for structural errors.
// Empty value types default to continuous.
func (d *Document) Validate() error {
	var errs []string
	seen := make(map[string]bool)

	for i := range d.Datacenters {
		dc := &d.Datacenters[i]
		if dc.Name == "" {
			errs = append(errs, fmt.Sprintf("datacenters[%d]: name is required", i))
			continue
		}
		if seen[dc.Name] {
			errs = append(errs, fmt.Sprintf("datacenter %q declared twice", dc.Name))
		}
		seen[dc.Name] = true

		for tag, attrs := range dc.DeviceTypes {
			if !IsDeviceType(tag) {
				errs = append(errs, fmt.Sprintf("datacenter %q: unknown device type %q", dc.Name, tag))
				continue
			}
			names := make(map[string]bool, len(attrs))
			for j := range attrs {
				a := &attrs[j]
				if a.Name == "" {
					errs = append(errs, fmt.Sprintf("datacenter %q: %s[%d]: name is required", dc.Name, tag, j))
					continue
				}
				if names[a.Name] {
					errs = append(errs, fmt.Sprintf("datacenter %q: %s.%s declared twice", dc.Name, tag, a.Name))
				}
				names[a.Name] = true

				if a.Type == "" {
					a.Type = string(ValueTypeContinuous)
				}
				if !ValueType(a.Type).Valid() {
					errs = append(errs, fmt.Sprintf("datacenter %q: %s.%s: %v %q", dc.Name, tag, a.Name, ErrInvalidValueType, a.Type))
				}
				if a.Pattern != "" {
					if tag == ControllerParameter {
						errs = append(errs, fmt.Sprintf("datacenter %q: %s.%s: parameters cannot declare a pattern", dc.Name, tag, a.Name))
					} else if _, err := regexp.Compile(a.Pattern); err != nil {
						errs = append(errs, fmt.Sprintf("datacenter %q: %s.%s: invalid pattern: %v", dc.Name, tag, a.Name, err))
					}
				}
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidDocument, strings.Join(errs, "\n  - "))
	}
	return nil
}

// Import writes every datacenter of doc to the store.
// An existing datacenter with the same name is replaced along with its
// devices, attributes and bindings. Each datacenter is imported in its own
// transaction.
func (r *Repository) Import(ctx context.Context, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	for i := range doc.Datacenters {
		if err := r.importDatacenter(ctx, &doc.Datacenters[i]); err != nil {
			return fmt.Errorf("importing datacenter %q: %w", doc.Datacenters[i].Name, err)
		}
		r.logger.Info("datacenter metadata imported", "datacenter", doc.Datacenters[i].Name)
	}
	return nil
}

func (r *Repository) importDatacenter(ctx context.Context, spec *DatacenterSpec) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if err := r.deleteDatacenter(ctx, tx, spec.Name); err != nil {
		return err
	}

	dcType := spec.Type
	if dcType == "" {
		dcType = "production"
	}
	location, err := encodeJSON(spec.Location)
	if err != nil {
		return err
	}
	models, err := encodeJSON(spec.Models)
	if err != nil {
		return err
	}
	properties, err := encodeJSON(spec.Properties)
	if err != nil {
		return err
	}

	dcID := uuid.NewString()
	if _, err := tx.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO datacenters (id, name, type, time_interval, location, models, properties)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		dcID, spec.Name, dcType, spec.TimeInterval, location, models, properties,
	); err != nil {
		return fmt.Errorf("inserting datacenter: %w", err)
	}

	// Devices are created on first reference, keyed by kind and name.
	deviceIDs := make(map[string]string)
	deviceID := func(kind, name string) (string, error) {
		key := kind + "/" + name
		if id, ok := deviceIDs[key]; ok {
			return id, nil
		}
		id := uuid.NewString()
		if _, err := tx.ExecContext(ctx, r.db.Rebind(
			"INSERT INTO devices (id, datacenter_id, kind, name) VALUES (?, ?, ?, ?)"),
			id, dcID, kind, name,
		); err != nil {
			return "", fmt.Errorf("inserting device %q: %w", name, err)
		}
		deviceIDs[key] = id
		return id, nil
	}

	for _, tag := range deviceTypeTags {
		kind, _ := DeviceKind(tag)
		for pos, a := range spec.DeviceTypes[tag] {
			attrID := uuid.NewString()
			if err := r.insertAttribute(ctx, tx, attrID, dcID, tag, pos, a); err != nil {
				return err
			}
			for _, device := range a.Devices {
				devID, err := deviceID(kind, device)
				if err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx, r.db.Rebind(
					"INSERT INTO attribute_bindings (attribute_id, device_id) VALUES (?, ?)"),
					attrID, devID,
				); err != nil {
					return fmt.Errorf("binding %s.%s to %q: %w", tag, a.Name, device, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing import: %w", err)
	}
	return nil
}

func (r *Repository) insertAttribute(ctx context.Context, tx *sql.Tx, id, dcID, tag string, pos int, a AttributeSpec) error {
	possible, err := encodeJSON(a.PossibleValues)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO attributes (
			id, datacenter_id, device_type, name, value_type, unit, measurement_pattern,
			mean, deviation, min_value, max_value, possible_values, position
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		id, dcID, tag, a.Name, a.Type, nullString(a.Unit), nullString(a.Pattern),
		a.Mean, a.Deviation, a.Min, a.Max, possible, pos,
	)
	if err != nil {
		return fmt.Errorf("inserting attribute %s.%s: %w", tag, a.Name, err)
	}
	return nil
}

// deleteDatacenter removes a datacenter and everything it owns.
func (r *Repository) deleteDatacenter(ctx context.Context, tx *sql.Tx, name string) error {
	statements := []string{
		`DELETE FROM attribute_bindings WHERE attribute_id IN (
			SELECT a.id FROM attributes a JOIN datacenters dc ON dc.id = a.datacenter_id WHERE dc.name = ?)`,
		`DELETE FROM attributes WHERE datacenter_id IN (SELECT id FROM datacenters WHERE name = ?)`,
		`DELETE FROM devices WHERE datacenter_id IN (SELECT id FROM datacenters WHERE name = ?)`,
		`DELETE FROM datacenters WHERE name = ?`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, r.db.Rebind(stmt), name); err != nil {
			return fmt.Errorf("removing previous datacenter: %w", err)
		}
	}
	return nil
}

func encodeJSON[T any](v T) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding json: %w", err)
	}
	if string(data) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
