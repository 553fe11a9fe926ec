package records

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"labcore/pkg/domain"
)

// Dataset is an in-memory RecordSource and RecordSink. It backs bulk imports
// from YAML files and doubles as a repository in tests.
type Dataset struct {
	mu   sync.RWMutex
	set  domain.RecordSet
	fail error
}

var (
	_ domain.RecordSource = (*Dataset)(nil)
	_ domain.RecordSink   = (*Dataset)(nil)
)

// NewDataset wraps set. A nil set yields an empty dataset.
func NewDataset(set domain.RecordSet) *Dataset {
	return &Dataset{set: Apply(set, nil)}
}

// ReadRecords returns a copy of the records of kind.
func (d *Dataset) ReadRecords(_ context.Context, kind domain.EntityType) ([]domain.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Record, 0, len(d.set[kind]))
	for _, rec := range d.set[kind] {
		out = append(out, domain.Record{Key: rec.Key, Fields: append([]string(nil), rec.Fields...)})
	}
	return out, nil
}

// ApplyRecords folds ops into the dataset.
func (d *Dataset) ApplyRecords(_ context.Context, ops []domain.RecordOp) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.set = Apply(d.set, ops)
	return nil
}

// FailWith makes every subsequent ApplyRecords return err. Pass nil to reset.
func (d *Dataset) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = err
}

// Records returns a copy of the full record set.
func (d *Dataset) Records() domain.RecordSet {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Apply(d.set, nil)
}

// ReadAll collects every kind from src.
func ReadAll(ctx context.Context, src domain.RecordSource) (domain.RecordSet, error) {
	set := make(domain.RecordSet, len(Kinds))
	for _, kind := range Kinds {
		recs, err := src.ReadRecords(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("read %s records: %w", kind, err)
		}
		if len(recs) > 0 {
			set[kind] = recs
		}
	}
	return set, nil
}

// DecodeYAML reads a record set keyed by kind name.
func DecodeYAML(r io.Reader) (*Dataset, error) {
	var raw map[domain.EntityType][]domain.Record
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	known := make(map[domain.EntityType]bool, len(Kinds))
	for _, kind := range Kinds {
		known[kind] = true
	}
	for kind, recs := range raw {
		if !known[kind] {
			return nil, fmt.Errorf("decode dataset: unknown record kind %q", kind)
		}
		for i, rec := range recs {
			if rec.Key == "" {
				return nil, fmt.Errorf("decode dataset: %s record %d has no key", kind, i)
			}
		}
	}
	return NewDataset(raw), nil
}

// LoadYAMLFile opens and decodes a dataset file.
func LoadYAMLFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = f.Close() }()
	return DecodeYAML(f)
}

// EncodeYAML writes set in the format DecodeYAML reads.
func EncodeYAML(w io.Writer, set domain.RecordSet) error {
	ordered := make(map[string][]domain.Record, len(set))
	for kind, recs := range set {
		if len(recs) > 0 {
			ordered[string(kind)] = recs
		}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(ordered); err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	return enc.Close()
}
