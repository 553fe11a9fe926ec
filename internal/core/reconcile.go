package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"labcore/internal/infra/persistence/records"
	"labcore/pkg/domain"
)

// Reconcile stages, in execution order.
const (
	StagePermanentEmployees = "permanent_employees"
	StageCareerEvents       = "career_events"
	StageHeal               = "heal"
	StageLabs               = "labs"
	StageProjects           = "projects"
	StageProjectEmployees   = "project_employees"
	StageEquipment          = "equipment"
	StageLinks              = "links"
)

// ReconcileError aborts a load. Nothing of the dataset is applied.
type ReconcileError struct {
	Step  int
	Stage string
	Err   error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("reconcile step %d (%s): %v", e.Step, e.Stage, e.Err)
}

func (e *ReconcileError) Unwrap() error { return e.Err }

// DroppedLink is an affiliation or collaboration discarded during a load.
type DroppedLink struct {
	Kind   domain.EntityType `json:"kind"`
	Key    string            `json:"key"`
	Reason string            `json:"reason"`
}

// ReconcileReport lists what a load healed or discarded.
type ReconcileReport struct {
	RunID             string        `json:"run_id"`
	Today             time.Time     `json:"today"`
	HealedTiers       []string      `json:"healed_tiers,omitempty"`
	SynthesizedEvents []CareerEvent `json:"synthesized_events,omitempty"`
	DiscardedEvents   []CareerEvent `json:"discarded_events,omitempty"`
	DroppedLinks      []DroppedLink `json:"dropped_links,omitempty"`
	DetachedEquipment []int64       `json:"detached_equipment,omitempty"`
	PersistedOps      int           `json:"persisted_ops"`
}

// Empty reports whether the load changed nothing.
func (r ReconcileReport) Empty() bool {
	return len(r.HealedTiers) == 0 && len(r.SynthesizedEvents) == 0 && len(r.DiscardedEvents) == 0 &&
		len(r.DroppedLinks) == 0 && len(r.DetachedEquipment) == 0 && r.PersistedOps == 0
}

// Reconciler rebuilds a registry snapshot from raw records, healing derived
// career data and rejecting datasets that break an invariant.
type Reconciler struct {
	newRunID func() string
}

// NewReconciler returns a reconciler stamping reports with random run ids.
func NewReconciler() *Reconciler {
	return &Reconciler{newRunID: uuid.NewString}
}

type reconcileRun struct {
	raw    domain.RecordSet
	today  time.Time
	snap   domain.Snapshot
	report ReconcileReport
	events map[string][]CareerEvent
	// collaborations declared by the raw link records, valid or not
	declared map[string]map[string]struct{}
}

// Reconcile runs every load step over raw as of today.
func (r *Reconciler) Reconcile(ctx context.Context, raw domain.RecordSet, today time.Time) (domain.Snapshot, ReconcileReport, error) {
	run := &reconcileRun{
		raw:      raw,
		today:    domain.DateOf(today),
		snap:     domain.NewSnapshot(),
		events:   make(map[string][]CareerEvent),
		declared: make(map[string]map[string]struct{}),
	}
	run.report = ReconcileReport{RunID: r.newRunID(), Today: run.today}
	steps := []struct {
		stage string
		fn    func() error
	}{
		{StagePermanentEmployees, run.loadPermanentEmployees},
		{StageCareerEvents, run.loadCareerEvents},
		{StageHeal, run.healCareers},
		{StageLabs, run.loadLabs},
		{StageProjects, run.loadProjects},
		{StageProjectEmployees, run.loadProjectEmployees},
		{StageEquipment, run.loadEquipment},
		{StageLinks, run.loadLinks},
	}
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return domain.Snapshot{}, run.report, err
		}
		if err := step.fn(); err != nil {
			return domain.Snapshot{}, run.report, &ReconcileError{Step: i + 1, Stage: step.stage, Err: err}
		}
	}
	return run.snap, run.report, nil
}

func duplicate(entity domain.EntityType, key string) error {
	return domain.Errorf(domain.KindDuplicateEntity, entity, key, "appears twice in the dataset")
}

func (run *reconcileRun) loadPermanentEmployees() error {
	staffTaxIDs := make(map[string]string)
	for _, rec := range run.raw[domain.EntityProjectEmployee] {
		if pe, err := records.DecodeProjectEmployee(rec); err == nil {
			staffTaxIDs[pe.TaxID] = pe.Badge
		}
	}
	directs := make(map[string]string)
	for _, rec := range run.raw[domain.EntityLab] {
		if lab, err := records.DecodeLab(rec); err == nil {
			directs[lab.DirectorBadge] = lab.Name
		}
	}
	identities := make(map[string][]identityRecord)
	for _, rec := range run.raw[domain.EntityPermanentEmployee] {
		emp, err := records.DecodePermanentEmployee(rec)
		if err != nil {
			return err
		}
		if _, exists := run.snap.PermanentEmployees[emp.Badge]; exists {
			return duplicate(domain.EntityPermanentEmployee, emp.Badge)
		}
		if emp.EndDate != nil && emp.EndDate.Before(emp.HireDate) {
			return domain.Errorf(domain.KindTemporalIncoherence, domain.EntityPermanentEmployee, emp.Badge,
				"end date %s precedes hire date %s", domain.FormatDate(*emp.EndDate), domain.FormatDate(emp.HireDate))
		}
		if other, clash := staffTaxIDs[emp.TaxID]; clash {
			return domain.Errorf(domain.KindUniquenessViolation, domain.EntityPermanentEmployee, emp.Badge,
				"tax id %s also identifies project employee %s", emp.TaxID, other)
		}
		derived := domain.TierOf(emp.HireDate, run.today)
		switch {
		case emp.Tier.Rank() > derived.Rank():
			return domain.Errorf(domain.KindTemporalIncoherence, domain.EntityPermanentEmployee, emp.Badge,
				"stored tier %s is above tenure tier %s", emp.Tier, derived)
		case emp.Tier != derived:
			emp.Tier = derived
			run.report.HealedTiers = append(run.report.HealedTiers, emp.Badge)
		}
		if lab, directing := directs[emp.Badge]; directing && !emp.Active() && emp.Tier != domain.TierSenior {
			return domain.Errorf(domain.KindReferentialViolation, domain.EntityPermanentEmployee, emp.Badge,
				"terminated %s still directs lab %q", emp.Tier, lab)
		}
		run.snap.PermanentEmployees[emp.Badge] = emp
		identities[emp.TaxID] = append(identities[emp.TaxID], permanentIdentity(emp))
	}
	sort.Strings(run.report.HealedTiers)
	return checkIdentities(identities)
}

func checkIdentities(groups map[string][]identityRecord) error {
	taxIDs := make([]string, 0, len(groups))
	for taxID := range groups {
		taxIDs = append(taxIDs, taxID)
	}
	sort.Strings(taxIDs)
	for _, taxID := range taxIDs {
		if err := checkIdentity(taxID, groups[taxID]); err != nil {
			return err
		}
	}
	return nil
}

func (run *reconcileRun) loadCareerEvents() error {
	for _, rec := range run.raw[domain.EntityCareerEvent] {
		ev, err := records.DecodeCareerEvent(rec)
		if err != nil {
			return err
		}
		key := ev.Key()
		emp, ok := run.snap.PermanentEmployees[ev.Badge]
		if !ok {
			return domain.Errorf(domain.KindReferentialViolation, domain.EntityCareerEvent, string(key), "employee %q not found", ev.Badge)
		}
		if ev.Date.Before(emp.HireDate) {
			return domain.Errorf(domain.KindTemporalIncoherence, domain.EntityCareerEvent, string(key),
				"event date %s precedes hire date %s", domain.FormatDate(ev.Date), domain.FormatDate(emp.HireDate))
		}
		if ev.Type.IsExecutive() && emp.EndDate != nil && ev.Date.After(domain.DateOf(*emp.EndDate)) {
			return domain.Errorf(domain.KindTemporalIncoherence, domain.EntityCareerEvent, string(key),
				"event date %s follows end date %s", domain.FormatDate(ev.Date), domain.FormatDate(*emp.EndDate))
		}
		if _, exists := run.snap.CareerEvents[key]; exists {
			return duplicate(domain.EntityCareerEvent, string(key))
		}
		run.snap.CareerEvents[key] = ev
		run.events[ev.Badge] = append(run.events[ev.Badge], ev)
	}
	for _, badge := range sortedKeys(run.events) {
		if err := domain.ValidateExecutiveSequence(run.events[badge]); err != nil {
			return err
		}
	}
	return nil
}

func (run *reconcileRun) healCareers() error {
	for _, badge := range sortedKeys(run.snap.PermanentEmployees) {
		emp := run.snap.PermanentEmployees[badge]
		run.healTierEvents(emp)
		if err := run.healExecutive(emp); err != nil {
			return err
		}
	}
	return nil
}

func (run *reconcileRun) healTierEvents(emp PermanentEmployee) {
	want := domain.TierEvents(emp.Badge, emp.HireDate, run.today)
	wanted := make(map[domain.CareerEventKey]struct{}, len(want))
	for _, ev := range want {
		wanted[ev.Key()] = struct{}{}
	}
	var kept []CareerEvent
	for _, ev := range run.events[emp.Badge] {
		if ev.Type.IsTier() {
			if _, ok := wanted[ev.Key()]; !ok {
				delete(run.snap.CareerEvents, ev.Key())
				run.report.DiscardedEvents = append(run.report.DiscardedEvents, ev)
				continue
			}
		}
		kept = append(kept, ev)
	}
	run.events[emp.Badge] = kept
	for _, ev := range want {
		if _, ok := run.snap.CareerEvents[ev.Key()]; !ok {
			run.addEvent(ev)
		}
	}
}

func (run *reconcileRun) addEvent(ev CareerEvent) {
	run.snap.CareerEvents[ev.Key()] = ev
	run.events[ev.Badge] = append(run.events[ev.Badge], ev)
	run.report.SynthesizedEvents = append(run.report.SynthesizedEvents, ev)
}

// healExecutive synthesizes the executive event implied by a flag that
// disagrees with the history.
func (run *reconcileRun) healExecutive(emp PermanentEmployee) error {
	events := run.events[emp.Badge]
	fromEvents := domain.ExecutiveFromEvents(events)
	if emp.Executive == fromEvents {
		return nil
	}
	promoted, removed := domain.LatestExecutiveDates(events)
	if emp.Executive {
		date := domain.DateOf(emp.HireDate)
		if removed != nil {
			date = removed.AddDate(0, 0, 1)
			latest := run.today
			if emp.EndDate != nil && domain.DateOf(*emp.EndDate).Before(latest) {
				latest = domain.DateOf(*emp.EndDate)
			}
			if date.After(latest) {
				return domain.Errorf(domain.KindTemporalIncoherence, domain.EntityPermanentEmployee, emp.Badge,
					"executive flag set but no promotion fits after the removal on %s", domain.FormatDate(*removed))
			}
		}
		run.addEvent(CareerEvent{Type: domain.EventPromotedExecutive, Date: date, Badge: emp.Badge})
	} else {
		date := run.today
		if promoted.After(date) {
			date = *promoted
		}
		if emp.EndDate != nil && !domain.DateOf(*emp.EndDate).Before(*promoted) {
			date = domain.DateOf(*emp.EndDate)
		}
		run.addEvent(CareerEvent{Type: domain.EventRemovedExecutive, Date: date, Badge: emp.Badge})
	}
	return domain.ValidateExecutiveSequence(run.events[emp.Badge])
}

func (run *reconcileRun) loadLabs() error {
	for _, rec := range run.raw[domain.EntityLab] {
		lab, err := records.DecodeLab(rec)
		if err != nil {
			return err
		}
		if _, exists := run.snap.Labs[lab.Name]; exists {
			return duplicate(domain.EntityLab, lab.Name)
		}
		director, ok := run.snap.PermanentEmployees[lab.DirectorBadge]
		if problem := directorProblem(director, ok); problem != "" {
			return domain.Errorf(domain.KindReferentialViolation, domain.EntityLab, lab.Name, "director %q %s", lab.DirectorBadge, problem)
		}
		run.snap.Labs[lab.Name] = lab
	}
	for _, rec := range run.raw[domain.EntityCollaboration] {
		cup, lab, err := records.DecodeLink(domain.EntityCollaboration, rec)
		if err != nil {
			return err
		}
		if run.declared[cup] == nil {
			run.declared[cup] = make(map[string]struct{})
		}
		run.declared[cup][lab] = struct{}{}
	}
	return nil
}

type employeeIndex map[string]PermanentEmployee

func (idx employeeIndex) FindPermanentEmployee(badge string) (PermanentEmployee, bool) {
	emp, ok := idx[badge]
	return emp, ok
}

func (run *reconcileRun) loadProjects() error {
	names := make(map[string]string)
	for _, rec := range run.raw[domain.EntityProject] {
		p, err := records.DecodeProject(rec)
		if err != nil {
			return err
		}
		if _, exists := run.snap.Projects[p.CUP]; exists {
			return duplicate(domain.EntityProject, p.CUP)
		}
		if p.EndDate != nil && p.EndDate.Before(p.StartDate) {
			return domain.Errorf(domain.KindTemporalIncoherence, domain.EntityProject, p.CUP,
				"end date %s precedes start date %s", domain.FormatDate(*p.EndDate), domain.FormatDate(p.StartDate))
		}
		if !p.Budget.IsPositive() {
			return domain.Errorf(domain.KindBudgetExceeded, domain.EntityProject, p.CUP, "budget must be positive")
		}
		if other, taken := names[p.Name]; taken {
			return domain.Errorf(domain.KindUniquenessViolation, domain.EntityProject, p.CUP, "name %q already used by project %q", p.Name, other)
		}
		if problems := projectRoleProblems(employeeIndex(run.snap.PermanentEmployees), p, run.today); len(problems) > 0 {
			return domain.Errorf(domain.KindReferentialViolation, domain.EntityProject, p.CUP, "%s", problems[0])
		}
		if p.ActiveOn(run.today) {
			if n := run.validCollaborations(p.CUP); n > domain.MaxCollaborations {
				return domain.Errorf(domain.KindLimitExceeded, domain.EntityProject, p.CUP,
					"%d collaborating labs exceed the limit of %d", n, domain.MaxCollaborations)
			}
		}
		names[p.Name] = p.CUP
		run.snap.Projects[p.CUP] = p
	}
	return nil
}

func (run *reconcileRun) validCollaborations(cup string) int {
	n := 0
	for lab := range run.declared[cup] {
		if _, ok := run.snap.Labs[lab]; ok {
			n++
		}
	}
	return n
}

func (run *reconcileRun) loadProjectEmployees() error {
	permanentTaxIDs := make(map[string]string, len(run.snap.PermanentEmployees))
	for _, emp := range run.snap.PermanentEmployees {
		permanentTaxIDs[emp.TaxID] = emp.Badge
	}
	identities := make(map[string][]identityRecord)
	totals := make(map[string]decimal.Decimal)
	for _, rec := range run.raw[domain.EntityProjectEmployee] {
		pe, err := records.DecodeProjectEmployee(rec)
		if err != nil {
			return err
		}
		if _, exists := run.snap.ProjectEmployees[pe.Badge]; exists {
			return duplicate(domain.EntityProjectEmployee, pe.Badge)
		}
		if _, clash := run.snap.PermanentEmployees[pe.Badge]; clash {
			return domain.Errorf(domain.KindUniquenessViolation, domain.EntityProjectEmployee, pe.Badge, "badge already used by a permanent employee")
		}
		if other, clash := permanentTaxIDs[pe.TaxID]; clash {
			return domain.Errorf(domain.KindUniquenessViolation, domain.EntityProjectEmployee, pe.Badge,
				"tax id %s also identifies permanent employee %s", pe.TaxID, other)
		}
		project, ok := run.snap.Projects[pe.ProjectCUP]
		if !ok {
			return domain.Errorf(domain.KindReferentialViolation, domain.EntityProjectEmployee, pe.Badge, "project %q not found", pe.ProjectCUP)
		}
		if msg := contractProblem(pe, project); msg != "" {
			return domain.Errorf(domain.KindTemporalIncoherence, domain.EntityProjectEmployee, pe.Badge, "%s", msg)
		}
		if pe.Cost.IsNegative() {
			return domain.Errorf(domain.KindBudgetExceeded, domain.EntityProjectEmployee, pe.Badge, "cost must not be negative")
		}
		totals[pe.ProjectCUP] = totals[pe.ProjectCUP].Add(pe.Cost)
		run.snap.ProjectEmployees[pe.Badge] = pe
		identities[pe.TaxID] = append(identities[pe.TaxID], staffIdentity(pe))
	}
	if err := checkIdentities(identities); err != nil {
		return err
	}
	return run.checkTotals(domain.CategoryStaff, totals)
}

func (run *reconcileRun) checkTotals(category domain.CostCategory, totals map[string]decimal.Decimal) error {
	for _, cup := range sortedKeys(totals) {
		if err := checkCeiling(category, run.snap.Projects[cup], totals[cup]); err != nil {
			return err
		}
	}
	return nil
}

func (run *reconcileRun) loadEquipment() error {
	totals := make(map[string]decimal.Decimal)
	for _, rec := range run.raw[domain.EntityEquipment] {
		eq, err := records.DecodeEquipment(rec)
		if err != nil {
			return err
		}
		key := rec.Key
		if _, exists := run.snap.Equipment[eq.ID]; exists {
			return duplicate(domain.EntityEquipment, key)
		}
		if _, ok := run.snap.Projects[eq.ProjectCUP]; !ok {
			return domain.Errorf(domain.KindReferentialViolation, domain.EntityEquipment, key, "project %q not found", eq.ProjectCUP)
		}
		if eq.LabName != nil {
			if _, ok := run.snap.Labs[*eq.LabName]; !ok {
				return domain.Errorf(domain.KindReferentialViolation, domain.EntityEquipment, key, "lab %q not found", *eq.LabName)
			}
			if _, ok := run.declared[eq.ProjectCUP][*eq.LabName]; !ok {
				return domain.Errorf(domain.KindReferentialViolation, domain.EntityEquipment, key,
					"lab %q does not collaborate on project %q", *eq.LabName, eq.ProjectCUP)
			}
		}
		if eq.Cost.IsNegative() {
			return domain.Errorf(domain.KindBudgetExceeded, domain.EntityEquipment, key, "cost must not be negative")
		}
		totals[eq.ProjectCUP] = totals[eq.ProjectCUP].Add(eq.Cost)
		run.snap.Equipment[eq.ID] = eq
	}
	return run.checkTotals(domain.CategoryEquipment, totals)
}

func (run *reconcileRun) drop(kind domain.EntityType, key, reason string) {
	run.report.DroppedLinks = append(run.report.DroppedLinks, DroppedLink{Kind: kind, Key: key, Reason: reason})
}

func (run *reconcileRun) loadLinks() error {
	for _, rec := range run.raw[domain.EntityCollaboration] {
		cup, lab, err := records.DecodeLink(domain.EntityCollaboration, rec)
		if err != nil {
			return err
		}
		key := records.LinkKey(cup, lab)
		project, ok := run.snap.Projects[cup]
		switch {
		case !ok:
			run.drop(domain.EntityCollaboration, key, "unknown project")
			continue
		case !project.ActiveOn(run.today):
			run.drop(domain.EntityCollaboration, key, "project ended "+domain.FormatDate(*project.EndDate))
			continue
		}
		if _, ok := run.snap.Labs[lab]; !ok {
			run.drop(domain.EntityCollaboration, key, "unknown lab")
			continue
		}
		if !containsName(project.LabNames, lab) {
			project.LabNames = append(project.LabNames, lab)
			sort.Strings(project.LabNames)
			run.snap.Projects[cup] = project
		}
	}
	for _, id := range sortedKeys(run.snap.Equipment) {
		eq := run.snap.Equipment[id]
		if eq.LabName == nil || containsName(run.snap.Projects[eq.ProjectCUP].LabNames, *eq.LabName) {
			continue
		}
		eq.LabName = nil
		run.snap.Equipment[id] = eq
		run.report.DetachedEquipment = append(run.report.DetachedEquipment, id)
	}
	for _, rec := range run.raw[domain.EntityAffiliation] {
		badge, labName, err := records.DecodeLink(domain.EntityAffiliation, rec)
		if err != nil {
			return err
		}
		key := records.LinkKey(badge, labName)
		emp, ok := run.snap.PermanentEmployees[badge]
		switch {
		case !ok:
			run.drop(domain.EntityAffiliation, key, "unknown employee")
			continue
		case !emp.Active():
			run.drop(domain.EntityAffiliation, key, "employee terminated "+domain.FormatDate(*emp.EndDate))
			continue
		}
		lab, ok := run.snap.Labs[labName]
		if !ok {
			run.drop(domain.EntityAffiliation, key, "unknown lab")
			continue
		}
		if !containsName(lab.Affiliates, badge) {
			lab.Affiliates = append(lab.Affiliates, badge)
			sort.Strings(lab.Affiliates)
			run.snap.Labs[labName] = lab
		}
	}
	return nil
}

func sortedKeys[K string | int64, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
