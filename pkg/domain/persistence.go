package domain

import (
	"context"
	"time"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Create fails with KindDuplicateEntity and
// mutates nothing when the natural key is already registered.
type Transaction interface {
	Snapshot() TransactionView
	Now() time.Time
	CreatePermanentEmployee(PermanentEmployee) (PermanentEmployee, error)
	UpdatePermanentEmployee(badge string, mutator func(*PermanentEmployee) error) (PermanentEmployee, error)
	DeletePermanentEmployee(badge string) error
	CreateCareerEvent(CareerEvent) (CareerEvent, error)
	DeleteCareerEvent(key CareerEventKey) error
	CreateProjectEmployee(ProjectEmployee) (ProjectEmployee, error)
	UpdateProjectEmployee(badge string, mutator func(*ProjectEmployee) error) (ProjectEmployee, error)
	DeleteProjectEmployee(badge string) error
	CreateProject(Project) (Project, error)
	UpdateProject(cup string, mutator func(*Project) error) (Project, error)
	DeleteProject(cup string) error
	CreateLab(Lab) (Lab, error)
	UpdateLab(name string, mutator func(*Lab) error) (Lab, error)
	DeleteLab(name string) error
	CreateEquipment(Equipment) (Equipment, error)
	UpdateEquipment(id int64, mutator func(*Equipment) error) (Equipment, error)
	DeleteEquipment(id int64) error
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	RuleView
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	// Restore replaces the registry with snapshot after writing ops to the
	// durable backend. Nothing changes when the write fails.
	Restore(ctx context.Context, snapshot Snapshot, ops []RecordOp) error
	ExportState() Snapshot
	NowFunc() func() time.Time
}

// Record is a flat field list persisted under a natural key.
type Record struct {
	Key    string   `json:"key" yaml:"key"`
	Fields []string `json:"fields" yaml:"fields"`
}

// RecordSet groups records by entity kind.
type RecordSet map[EntityType][]Record

// RecordOp is a single put or remove against the Repository Port.
type RecordOp struct {
	Kind   EntityType
	Key    string
	Fields []string
	Delete bool
}

// RecordSource is the bulk-read half of the Repository Port.
type RecordSource interface {
	ReadRecords(ctx context.Context, kind EntityType) ([]Record, error)
}

// RecordSink is the write half of the Repository Port. ApplyRecords is atomic:
// either every op is stored or none is.
type RecordSink interface {
	ApplyRecords(ctx context.Context, ops []RecordOp) error
}
