package core

import (
	"context"
	"time"

	blobcore "labcore/internal/infra/blob/core"
	"labcore/internal/infra/persistence/memory"
	"labcore/pkg/domain"
)

// Logger is the structured logging surface used by the service; *slog.Logger satisfies it.
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

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock. A nil ClockFunc reads the system clock.
type ClockFunc func() time.Time

// Now returns the current time in UTC.
func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f().UTC()
}

// AuditStatus is the outcome recorded for an audited operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one service operation.
type AuditEntry struct {
	Operation string
	Entity    domain.EntityType
	Action    domain.Action
	EntityID  string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives an entry for every audited operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes operation outcomes and latency.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts one span per service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended with the operation error, if any.
type TraceSpan interface {
	End(err error)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the fallback clock used when the store exposes none.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) { s.clock = clock }
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithArchive enables snapshot and reconcile report exports to store.
func WithArchive(store blobcore.Store) ServiceOption {
	return func(s *Service) { s.archive = store }
}

// Service is the engine-to-UI contract: every mutation runs as one
// transaction on the registry and either commits and persists or fails with a
// domain error and changes nothing.
type Service struct {
	store   PersistentStore
	engine  *RulesEngine
	logger  Logger
	clock   Clock
	now     func() time.Time
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	archive blobcore.Store
}

// NewService constructs a service over an explicit store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	svc := &Service{
		store:   store,
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.engine = extractRulesEngine(store)
	svc.now = selectNowFunc(store, svc.clock)
	return svc
}

// NewInMemoryService creates a service over a fresh in-memory store. A clock
// passed through WithClock also drives the store's notion of today.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	probe := &Service{}
	for _, opt := range opts {
		opt(probe)
	}
	var storeOpts []memory.Option
	if probe.clock != nil {
		storeOpts = append(storeOpts, memory.WithClock(probe.clock.Now))
	}
	return NewService(memory.NewStore(engine, storeOpts...), opts...)
}

// Store returns the underlying store.
func (s *Service) Store() PersistentStore { return s.store }

// RulesEngine returns the engine of the store, or nil when it exposes none.
func (s *Service) RulesEngine() *RulesEngine { return s.engine }

// Today returns the current civil date.
func (s *Service) Today() time.Time { return domain.DateOf(s.now()) }

func extractRulesEngine(store PersistentStore) *RulesEngine {
	if provider, ok := store.(interface{ RulesEngine() *RulesEngine }); ok {
		return provider.RulesEngine()
	}
	return nil
}

func selectNowFunc(store PersistentStore, clock Clock) func() time.Time {
	if provider, ok := store.(interface{ NowFunc() func() time.Time }); ok {
		if fn := provider.NowFunc(); fn != nil {
			return func() time.Time { return fn().UTC() }
		}
	}
	if clock != nil {
		return clock.Now
	}
	return func() time.Time { return time.Now().UTC() }
}

type operationMeta struct {
	entity domain.EntityType
	action domain.Action
}

var operations = map[string]operationMeta{
	"add_permanent_employee":    {domain.EntityPermanentEmployee, domain.ActionCreate},
	"modify_permanent_employee": {domain.EntityPermanentEmployee, domain.ActionUpdate},
	"delete_permanent_employee": {domain.EntityPermanentEmployee, domain.ActionDelete},
	"set_executive":             {domain.EntityPermanentEmployee, domain.ActionUpdate},
	"refresh_careers":           {domain.EntityPermanentEmployee, domain.ActionUpdate},
	"add_executive_event":       {domain.EntityCareerEvent, domain.ActionCreate},
	"move_executive_event":      {domain.EntityCareerEvent, domain.ActionUpdate},
	"remove_executive_event":    {domain.EntityCareerEvent, domain.ActionDelete},
	"add_project_employee":      {domain.EntityProjectEmployee, domain.ActionCreate},
	"modify_project_employee":   {domain.EntityProjectEmployee, domain.ActionUpdate},
	"delete_project_employee":   {domain.EntityProjectEmployee, domain.ActionDelete},
	"add_project":               {domain.EntityProject, domain.ActionCreate},
	"modify_project":            {domain.EntityProject, domain.ActionUpdate},
	"delete_project":            {domain.EntityProject, domain.ActionDelete},
	"add_lab":                   {domain.EntityLab, domain.ActionCreate},
	"modify_lab":                {domain.EntityLab, domain.ActionUpdate},
	"delete_lab":                {domain.EntityLab, domain.ActionDelete},
	"add_equipment":             {domain.EntityEquipment, domain.ActionCreate},
	"modify_equipment":          {domain.EntityEquipment, domain.ActionUpdate},
	"delete_equipment":          {domain.EntityEquipment, domain.ActionDelete},
	"add_affiliation":           {domain.EntityAffiliation, domain.ActionCreate},
	"remove_affiliation":        {domain.EntityAffiliation, domain.ActionDelete},
	"add_collaboration":         {domain.EntityCollaboration, domain.ActionCreate},
	"remove_collaboration":      {domain.EntityCollaboration, domain.ActionDelete},
}

// run wraps an operation with tracing, metrics, logging and auditing. fn
// returns the natural key of the affected entity.
func (s *Service) run(ctx context.Context, operation string, fn func(context.Context) (string, error)) error {
	ctx, span := s.tracer.Start(ctx, operation)
	start := time.Now()
	entityID, err := fn(ctx)
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, duration)
	if err != nil {
		s.logger.Error("operation failed", "operation", operation, "entity_id", entityID, "duration", duration, "error", err)
		s.recordAudit(ctx, operation, entityID, duration, err)
		return err
	}
	s.logger.Debug("operation completed", "operation", operation, "entity_id", entityID, "duration", duration)
	s.recordAuditSuccess(ctx, operation, entityID, duration)
	return nil
}

func (s *Service) recordAuditSuccess(ctx context.Context, operation, entityID string, duration time.Duration) {
	s.recordAudit(ctx, operation, entityID, duration, nil)
}

func (s *Service) recordAudit(ctx context.Context, operation, entityID string, duration time.Duration, err error) {
	meta, ok := operations[operation]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: operation,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// transact runs fn in one store transaction under the operation wrapper. fn
// returns the natural key of the affected entity.
func (s *Service) transact(ctx context.Context, operation string, fn func(tx Transaction) (string, error)) (Result, error) {
	var res Result
	err := s.run(ctx, operation, func(ctx context.Context) (string, error) {
		var key string
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var fnErr error
			key, fnErr = fn(tx)
			return fnErr
		})
		return key, err
	})
	return res, err
}
