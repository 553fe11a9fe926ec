// Package memory provides the in-memory entity registry backing every store.
// It keeps one map per entity kind keyed by natural key and applies mutations
// to a transactional working copy.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"labcore/internal/infra/persistence/records"
	"labcore/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.RecordSource    = (*Store)(nil)
)

type (
	// PermanentEmployee aliases domain.PermanentEmployee.
	PermanentEmployee = domain.PermanentEmployee
	// ProjectEmployee aliases domain.ProjectEmployee.
	ProjectEmployee = domain.ProjectEmployee
	// CareerEvent aliases domain.CareerEvent.
	CareerEvent = domain.CareerEvent
	// Project aliases domain.Project.
	Project = domain.Project
	// Lab aliases domain.Lab.
	Lab = domain.Lab
	// Equipment aliases domain.Equipment.
	Equipment = domain.Equipment
	// Snapshot aliases domain.Snapshot.
	Snapshot = domain.Snapshot
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	permanent map[string]PermanentEmployee
	staff     map[string]ProjectEmployee
	events    map[domain.CareerEventKey]CareerEvent
	projects  map[string]Project
	labs      map[string]Lab
	equipment map[int64]Equipment
}

func newMemoryState() memoryState {
	return memoryState{
		permanent: make(map[string]PermanentEmployee),
		staff:     make(map[string]ProjectEmployee),
		events:    make(map[domain.CareerEventKey]CareerEvent),
		projects:  make(map[string]Project),
		labs:      make(map[string]Lab),
		equipment: make(map[int64]Equipment),
	}
}

// view exposes the state maps without copying; callers must not mutate them.
func (s memoryState) view() Snapshot {
	return Snapshot{
		PermanentEmployees: s.permanent,
		ProjectEmployees:   s.staff,
		CareerEvents:       s.events,
		Projects:           s.projects,
		Labs:               s.labs,
		Equipment:          s.equipment,
	}
}

func (s memoryState) clone() memoryState {
	return memoryStateFromSnapshot(s.view())
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.PermanentEmployees {
		state.permanent[k] = stripPermanent(clonePermanent(v))
	}
	for k, v := range s.ProjectEmployees {
		state.staff[k] = v
	}
	for k, v := range s.CareerEvents {
		state.events[k] = v
	}
	for k, v := range s.Projects {
		state.projects[k] = stripProject(cloneProject(v))
	}
	for k, v := range s.Labs {
		state.labs[k] = stripLab(cloneLab(v))
	}
	for k, v := range s.Equipment {
		state.equipment[k] = cloneEquipment(v)
	}
	return state
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := domain.NewSnapshot()
	for k, v := range state.permanent {
		s.PermanentEmployees[k] = clonePermanent(decoratePermanent(&state, v))
	}
	for k, v := range state.staff {
		s.ProjectEmployees[k] = v
	}
	for k, v := range state.events {
		s.CareerEvents[k] = v
	}
	for k, v := range state.projects {
		s.Projects[k] = cloneProject(decorateProject(&state, v))
	}
	for k, v := range state.labs {
		s.Labs[k] = cloneLab(decorateLab(&state, v))
	}
	for k, v := range state.equipment {
		s.Equipment[k] = cloneEquipment(v)
	}
	return s
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

func clonePermanent(e PermanentEmployee) PermanentEmployee {
	cp := e
	cp.EndDate = cloneTime(e.EndDate)
	cp.Address = cloneString(e.Address)
	cp.CareerEvents = append([]CareerEvent(nil), e.CareerEvents...)
	cp.DirectedLabs = append([]string(nil), e.DirectedLabs...)
	cp.ReferentProjects = append([]string(nil), e.ReferentProjects...)
	cp.ResponsibleProjects = append([]string(nil), e.ResponsibleProjects...)
	cp.Labs = append([]string(nil), e.Labs...)
	return cp
}

func cloneProject(p Project) Project {
	cp := p
	cp.EndDate = cloneTime(p.EndDate)
	cp.LabNames = append([]string(nil), p.LabNames...)
	cp.StaffBadges = append([]string(nil), p.StaffBadges...)
	cp.EquipmentIDs = append([]int64(nil), p.EquipmentIDs...)
	return cp
}

func cloneLab(l Lab) Lab {
	cp := l
	cp.Affiliates = append([]string(nil), l.Affiliates...)
	cp.ProjectCUPs = append([]string(nil), l.ProjectCUPs...)
	cp.EquipmentIDs = append([]int64(nil), l.EquipmentIDs...)
	return cp
}

func cloneEquipment(e Equipment) Equipment {
	cp := e
	cp.LabName = cloneString(e.LabName)
	return cp
}

// strip* drop derived back-references so only the owning side is stored.
func stripPermanent(e PermanentEmployee) PermanentEmployee {
	e.CareerEvents = nil
	e.DirectedLabs = nil
	e.ReferentProjects = nil
	e.ResponsibleProjects = nil
	e.Labs = nil
	return e
}

func stripProject(p Project) Project {
	p.StaffBadges = nil
	p.EquipmentIDs = nil
	return p
}

func stripLab(l Lab) Lab {
	l.ProjectCUPs = nil
	l.EquipmentIDs = nil
	return l
}

func containsString(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func employeeEvents(state *memoryState, badge string) []CareerEvent {
	var out []CareerEvent
	for _, e := range state.events {
		if e.Badge == badge {
			out = append(out, e)
		}
	}
	domain.SortCareerEvents(out)
	return out
}

func decoratePermanent(state *memoryState, e PermanentEmployee) PermanentEmployee {
	e.CareerEvents = employeeEvents(state, e.Badge)
	e.DirectedLabs, e.Labs = nil, nil
	for _, lab := range state.labs {
		if lab.DirectorBadge == e.Badge {
			e.DirectedLabs = append(e.DirectedLabs, lab.Name)
		}
		if containsString(lab.Affiliates, e.Badge) {
			e.Labs = append(e.Labs, lab.Name)
		}
	}
	e.ReferentProjects, e.ResponsibleProjects = nil, nil
	for _, p := range state.projects {
		if p.ReferentBadge == e.Badge {
			e.ReferentProjects = append(e.ReferentProjects, p.CUP)
		}
		if p.ResponsibleBadge == e.Badge {
			e.ResponsibleProjects = append(e.ResponsibleProjects, p.CUP)
		}
	}
	sort.Strings(e.DirectedLabs)
	sort.Strings(e.Labs)
	sort.Strings(e.ReferentProjects)
	sort.Strings(e.ResponsibleProjects)
	return e
}

func decorateProject(state *memoryState, p Project) Project {
	p.StaffBadges, p.EquipmentIDs = nil, nil
	for _, pe := range state.staff {
		if pe.ProjectCUP == p.CUP {
			p.StaffBadges = append(p.StaffBadges, pe.Badge)
		}
	}
	for _, eq := range state.equipment {
		if eq.ProjectCUP == p.CUP {
			p.EquipmentIDs = append(p.EquipmentIDs, eq.ID)
		}
	}
	sort.Strings(p.StaffBadges)
	sort.Slice(p.EquipmentIDs, func(i, j int) bool { return p.EquipmentIDs[i] < p.EquipmentIDs[j] })
	return p
}

func decorateLab(state *memoryState, l Lab) Lab {
	l.ProjectCUPs, l.EquipmentIDs = nil, nil
	for _, p := range state.projects {
		if containsString(p.LabNames, l.Name) {
			l.ProjectCUPs = append(l.ProjectCUPs, p.CUP)
		}
	}
	for _, eq := range state.equipment {
		if eq.LabName != nil && *eq.LabName == l.Name {
			l.EquipmentIDs = append(l.EquipmentIDs, eq.ID)
		}
	}
	sort.Strings(l.ProjectCUPs)
	sort.Slice(l.EquipmentIDs, func(i, j int) bool { return l.EquipmentIDs[i] < l.EquipmentIDs[j] })
	return l
}

// Store provides an in-memory transactional registry for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	sink   domain.RecordSink
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for "today" in derivations and rules.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithRecordSink stages every commit through sink before swapping state.
func WithRecordSink(sink domain.RecordSink) Option {
	return func(s *Store) { s.sink = sink }
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetRecordSink attaches the durable backend after construction.
func (s *Store) SetRecordSink(sink domain.RecordSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// ExportState clones the current store state, decorated with back-references.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot without
// touching the durable backend.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// Restore writes ops to the record sink, then replaces the store state.
func (s *Store) Restore(ctx context.Context, snapshot Snapshot, ops []domain.RecordOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := memoryStateFromSnapshot(snapshot)
	if s.sink != nil && len(ops) > 0 {
		if err := s.sink.ApplyRecords(ctx, ops); err != nil {
			return fmt.Errorf("persist records: %w", err)
		}
	}
	s.state = state
	return nil
}

// ReadRecords returns the committed records of one kind. A sink that can be
// read back is authoritative; otherwise the registry state is encoded.
func (s *Store) ReadRecords(ctx context.Context, kind domain.EntityType) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if src, ok := s.sink.(domain.RecordSource); ok {
		return src.ReadRecords(ctx, kind)
	}
	return records.Encode(s.state.view())[kind], nil
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
	today time.Time
}

func newTransactionView(state *memoryState, now time.Time) TransactionView {
	return transactionView{state: state, today: domain.DateOf(now)}
}

// RunInTransaction applies fn to a working copy, evaluates the rules, writes
// the record diff to the sink and only then commits the working copy.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state, tx.now)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.sink != nil && len(tx.changes) > 0 {
		ops := records.Diff(records.Encode(s.state.view()), records.Encode(tx.state.view()))
		if len(ops) > 0 {
			if err := s.sink.ApplyRecords(ctx, ops); err != nil {
				return result, fmt.Errorf("persist records: %w", err)
			}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	now := s.nowFn()
	s.mu.RUnlock()

	return fn(newTransactionView(&snapshot, now))
}
