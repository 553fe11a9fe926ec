package memory

import (
	"sort"
	"strconv"
	"time"

	"labcore/pkg/domain"
)

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state, tx.now)
}

// Now returns the transaction timestamp.
func (tx *transaction) Now() time.Time { return tx.now }

func (tx *transaction) requireEmployee(entity domain.EntityType, key, role, badge string) error {
	if badge == "" {
		return domain.Errorf(domain.KindReferentialViolation, entity, key, "%s is required", role)
	}
	if _, ok := tx.state.permanent[badge]; !ok {
		return domain.Errorf(domain.KindReferentialViolation, entity, key, "%s %q not found", role, badge)
	}
	return nil
}

func (tx *transaction) validatePermanent(e PermanentEmployee) error {
	if e.Badge == "" {
		return domain.Errorf(domain.KindReferentialViolation, domain.EntityPermanentEmployee, "", "badge is required")
	}
	if _, clash := tx.state.staff[e.Badge]; clash {
		return domain.Errorf(domain.KindUniquenessViolation, domain.EntityPermanentEmployee, e.Badge, "badge already used by a project employee")
	}
	if !e.Tier.Valid() {
		return domain.Errorf(domain.KindTemporalIncoherence, domain.EntityPermanentEmployee, e.Badge, "unknown tier %q", e.Tier)
	}
	if e.HireDate.IsZero() {
		return domain.Errorf(domain.KindTemporalIncoherence, domain.EntityPermanentEmployee, e.Badge, "hire date is required")
	}
	if e.EndDate != nil && domain.DateOf(*e.EndDate).Before(domain.DateOf(e.HireDate)) {
		return domain.Errorf(domain.KindTemporalIncoherence, domain.EntityPermanentEmployee, e.Badge,
			"end date %s precedes hire date %s", domain.FormatDate(*e.EndDate), domain.FormatDate(e.HireDate))
	}
	return nil
}

// CreatePermanentEmployee stores a new permanent employee.
func (tx *transaction) CreatePermanentEmployee(e PermanentEmployee) (PermanentEmployee, error) {
	if _, exists := tx.state.permanent[e.Badge]; exists {
		return PermanentEmployee{}, domain.Errorf(domain.KindDuplicateEntity, domain.EntityPermanentEmployee, e.Badge, "already registered")
	}
	if err := tx.validatePermanent(e); err != nil {
		return PermanentEmployee{}, err
	}
	e = stripPermanent(clonePermanent(e))
	tx.state.permanent[e.Badge] = e
	created := clonePermanent(decoratePermanent(&tx.state, e))
	tx.recordChange(Change{Entity: domain.EntityPermanentEmployee, Action: domain.ActionCreate, Key: e.Badge, After: created})
	return created, nil
}

// UpdatePermanentEmployee mutates an existing permanent employee. The badge is immutable.
func (tx *transaction) UpdatePermanentEmployee(badge string, mutator func(*PermanentEmployee) error) (PermanentEmployee, error) {
	current, ok := tx.state.permanent[badge]
	if !ok {
		return PermanentEmployee{}, domain.NotFound(domain.EntityPermanentEmployee, badge)
	}
	before := clonePermanent(decoratePermanent(&tx.state, current))
	next := clonePermanent(current)
	if err := mutator(&next); err != nil {
		return PermanentEmployee{}, err
	}
	next.Badge = badge
	if err := tx.validatePermanent(next); err != nil {
		return PermanentEmployee{}, err
	}
	next = stripPermanent(next)
	tx.state.permanent[badge] = next
	after := clonePermanent(decoratePermanent(&tx.state, next))
	tx.recordChange(Change{Entity: domain.EntityPermanentEmployee, Action: domain.ActionUpdate, Key: badge, Before: before, After: after})
	return after, nil
}

// DeletePermanentEmployee removes an employee that holds no roles, links or events.
func (tx *transaction) DeletePermanentEmployee(badge string) error {
	current, ok := tx.state.permanent[badge]
	if !ok {
		return domain.NotFound(domain.EntityPermanentEmployee, badge)
	}
	decorated := decoratePermanent(&tx.state, current)
	switch {
	case len(decorated.DirectedLabs) > 0:
		return domain.Errorf(domain.KindReferentialViolation, domain.EntityPermanentEmployee, badge, "still directs lab %q", decorated.DirectedLabs[0])
	case len(decorated.ReferentProjects) > 0:
		return domain.Errorf(domain.KindReferentialViolation, domain.EntityPermanentEmployee, badge, "still referent of project %q", decorated.ReferentProjects[0])
	case len(decorated.ResponsibleProjects) > 0:
		return domain.Errorf(domain.KindReferentialViolation, domain.EntityPermanentEmployee, badge, "still responsible for project %q", decorated.ResponsibleProjects[0])
	case len(decorated.Labs) > 0:
		return domain.Errorf(domain.KindReferentialViolation, domain.EntityPermanentEmployee, badge, "still affiliated with lab %q", decorated.Labs[0])
	case len(decorated.CareerEvents) > 0:
		return domain.Errorf(domain.KindReferentialViolation, domain.EntityPermanentEmployee, badge, "still has %d career events", len(decorated.CareerEvents))
	}
	delete(tx.state.permanent, badge)
	tx.recordChange(Change{Entity: domain.EntityPermanentEmployee, Action: domain.ActionDelete, Key: badge, Before: clonePermanent(decorated)})
	return nil
}

// CreateCareerEvent stores a career event for an existing employee.
func (tx *transaction) CreateCareerEvent(e CareerEvent) (CareerEvent, error) {
	e.Date = domain.DateOf(e.Date)
	key := e.Key()
	if !e.Type.Valid() {
		return CareerEvent{}, domain.Errorf(domain.KindSequenceViolation, domain.EntityCareerEvent, string(key), "unknown event type %q", e.Type)
	}
	emp, ok := tx.state.permanent[e.Badge]
	if !ok {
		return CareerEvent{}, domain.Errorf(domain.KindReferentialViolation, domain.EntityCareerEvent, string(key), "employee %q not found", e.Badge)
	}
	if e.Date.Before(domain.DateOf(emp.HireDate)) {
		return CareerEvent{}, domain.Errorf(domain.KindTemporalIncoherence, domain.EntityCareerEvent, string(key),
			"event date %s precedes hire date %s", domain.FormatDate(e.Date), domain.FormatDate(emp.HireDate))
	}
	if _, exists := tx.state.events[key]; exists {
		return CareerEvent{}, domain.Errorf(domain.KindDuplicateEntity, domain.EntityCareerEvent, string(key), "already registered")
	}
	tx.state.events[key] = e
	tx.recordChange(Change{Entity: domain.EntityCareerEvent, Action: domain.ActionCreate, Key: string(key), After: e})
	return e, nil
}

// DeleteCareerEvent removes a career event by key.
func (tx *transaction) DeleteCareerEvent(key domain.CareerEventKey) error {
	current, ok := tx.state.events[key]
	if !ok {
		return domain.NotFound(domain.EntityCareerEvent, string(key))
	}
	delete(tx.state.events, key)
	tx.recordChange(Change{Entity: domain.EntityCareerEvent, Action: domain.ActionDelete, Key: string(key), Before: current})
	return nil
}

func (tx *transaction) validateProjectEmployee(e ProjectEmployee) error {
	if e.Badge == "" {
		return domain.Errorf(domain.KindReferentialViolation, domain.EntityProjectEmployee, "", "badge is required")
	}
	if _, clash := tx.state.permanent[e.Badge]; clash {
		return domain.Errorf(domain.KindUniquenessViolation, domain.EntityProjectEmployee, e.Badge, "badge already used by a permanent employee")
	}
	if _, ok := tx.state.projects[e.ProjectCUP]; !ok {
		return domain.Errorf(domain.KindReferentialViolation, domain.EntityProjectEmployee, e.Badge, "project %q not found", e.ProjectCUP)
	}
	if domain.DateOf(e.ExpiryDate).Before(domain.DateOf(e.HireDate)) {
		return domain.Errorf(domain.KindTemporalIncoherence, domain.EntityProjectEmployee, e.Badge,
			"expiry date %s precedes hire date %s", domain.FormatDate(e.ExpiryDate), domain.FormatDate(e.HireDate))
	}
	if e.Cost.IsNegative() {
		return domain.Errorf(domain.KindBudgetExceeded, domain.EntityProjectEmployee, e.Badge, "cost must not be negative")
	}
	return nil
}

// CreateProjectEmployee stores fixed-term staff charged to an existing project.
func (tx *transaction) CreateProjectEmployee(e ProjectEmployee) (ProjectEmployee, error) {
	if _, exists := tx.state.staff[e.Badge]; exists {
		return ProjectEmployee{}, domain.Errorf(domain.KindDuplicateEntity, domain.EntityProjectEmployee, e.Badge, "already registered")
	}
	if err := tx.validateProjectEmployee(e); err != nil {
		return ProjectEmployee{}, err
	}
	tx.state.staff[e.Badge] = e
	tx.recordChange(Change{Entity: domain.EntityProjectEmployee, Action: domain.ActionCreate, Key: e.Badge, After: e})
	return e, nil
}

// UpdateProjectEmployee mutates existing fixed-term staff.
func (tx *transaction) UpdateProjectEmployee(badge string, mutator func(*ProjectEmployee) error) (ProjectEmployee, error) {
	current, ok := tx.state.staff[badge]
	if !ok {
		return ProjectEmployee{}, domain.NotFound(domain.EntityProjectEmployee, badge)
	}
	next := current
	if err := mutator(&next); err != nil {
		return ProjectEmployee{}, err
	}
	next.Badge = badge
	if err := tx.validateProjectEmployee(next); err != nil {
		return ProjectEmployee{}, err
	}
	tx.state.staff[badge] = next
	tx.recordChange(Change{Entity: domain.EntityProjectEmployee, Action: domain.ActionUpdate, Key: badge, Before: current, After: next})
	return next, nil
}

// DeleteProjectEmployee removes fixed-term staff.
func (tx *transaction) DeleteProjectEmployee(badge string) error {
	current, ok := tx.state.staff[badge]
	if !ok {
		return domain.NotFound(domain.EntityProjectEmployee, badge)
	}
	delete(tx.state.staff, badge)
	tx.recordChange(Change{Entity: domain.EntityProjectEmployee, Action: domain.ActionDelete, Key: badge, Before: current})
	return nil
}

func (tx *transaction) validateProject(p *Project) error {
	if p.CUP == "" {
		return domain.Errorf(domain.KindReferentialViolation, domain.EntityProject, "", "CUP is required")
	}
	if p.Name == "" {
		return domain.Errorf(domain.KindUniquenessViolation, domain.EntityProject, p.CUP, "name is required")
	}
	for cup, other := range tx.state.projects {
		if cup != p.CUP && other.Name == p.Name {
			return domain.Errorf(domain.KindUniquenessViolation, domain.EntityProject, p.CUP, "name %q already used by project %q", p.Name, cup)
		}
	}
	if !p.Budget.IsPositive() {
		return domain.Errorf(domain.KindBudgetExceeded, domain.EntityProject, p.CUP, "budget must be positive")
	}
	if p.EndDate != nil && domain.DateOf(*p.EndDate).Before(domain.DateOf(p.StartDate)) {
		return domain.Errorf(domain.KindTemporalIncoherence, domain.EntityProject, p.CUP,
			"end date %s precedes start date %s", domain.FormatDate(*p.EndDate), domain.FormatDate(p.StartDate))
	}
	if err := tx.requireEmployee(domain.EntityProject, p.CUP, "referent", p.ReferentBadge); err != nil {
		return err
	}
	if err := tx.requireEmployee(domain.EntityProject, p.CUP, "responsible", p.ResponsibleBadge); err != nil {
		return err
	}
	p.LabNames = dedupeStrings(p.LabNames)
	if len(p.LabNames) > domain.MaxCollaborations {
		return domain.Errorf(domain.KindLimitExceeded, domain.EntityProject, p.CUP,
			"%d collaborating labs exceed the limit of %d", len(p.LabNames), domain.MaxCollaborations)
	}
	for _, lab := range p.LabNames {
		if _, ok := tx.state.labs[lab]; !ok {
			return domain.Errorf(domain.KindReferentialViolation, domain.EntityProject, p.CUP, "lab %q not found", lab)
		}
	}
	sort.Strings(p.LabNames)
	return nil
}

// CreateProject stores a new project.
func (tx *transaction) CreateProject(p Project) (Project, error) {
	if _, exists := tx.state.projects[p.CUP]; exists {
		return Project{}, domain.Errorf(domain.KindDuplicateEntity, domain.EntityProject, p.CUP, "already registered")
	}
	p = stripProject(cloneProject(p))
	if err := tx.validateProject(&p); err != nil {
		return Project{}, err
	}
	tx.state.projects[p.CUP] = p
	created := cloneProject(decorateProject(&tx.state, p))
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionCreate, Key: p.CUP, After: created})
	return created, nil
}

// UpdateProject mutates an existing project. The CUP is immutable.
func (tx *transaction) UpdateProject(cup string, mutator func(*Project) error) (Project, error) {
	current, ok := tx.state.projects[cup]
	if !ok {
		return Project{}, domain.NotFound(domain.EntityProject, cup)
	}
	before := cloneProject(decorateProject(&tx.state, current))
	next := cloneProject(current)
	if err := mutator(&next); err != nil {
		return Project{}, err
	}
	next.CUP = cup
	next = stripProject(next)
	if err := tx.validateProject(&next); err != nil {
		return Project{}, err
	}
	for _, eq := range tx.state.equipment {
		if eq.ProjectCUP == cup && eq.LabName != nil && !containsString(next.LabNames, *eq.LabName) {
			return Project{}, domain.Errorf(domain.KindReferentialViolation, domain.EntityProject, cup,
				"lab %q still hosts equipment %d of this project", *eq.LabName, eq.ID)
		}
	}
	tx.state.projects[cup] = next
	after := cloneProject(decorateProject(&tx.state, next))
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionUpdate, Key: cup, Before: before, After: after})
	return after, nil
}

// DeleteProject removes a project with no staff, equipment or collaborations.
func (tx *transaction) DeleteProject(cup string) error {
	current, ok := tx.state.projects[cup]
	if !ok {
		return domain.NotFound(domain.EntityProject, cup)
	}
	decorated := decorateProject(&tx.state, current)
	switch {
	case len(decorated.StaffBadges) > 0:
		return domain.Errorf(domain.KindReferentialViolation, domain.EntityProject, cup, "still employs %q", decorated.StaffBadges[0])
	case len(decorated.EquipmentIDs) > 0:
		return domain.Errorf(domain.KindReferentialViolation, domain.EntityProject, cup, "still owns equipment %d", decorated.EquipmentIDs[0])
	case len(decorated.LabNames) > 0:
		return domain.Errorf(domain.KindReferentialViolation, domain.EntityProject, cup, "still collaborates with lab %q", decorated.LabNames[0])
	}
	delete(tx.state.projects, cup)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionDelete, Key: cup, Before: cloneProject(decorated)})
	return nil
}

func (tx *transaction) validateLab(l *Lab) error {
	if l.Name == "" {
		return domain.Errorf(domain.KindReferentialViolation, domain.EntityLab, "", "name is required")
	}
	if err := tx.requireEmployee(domain.EntityLab, l.Name, "director", l.DirectorBadge); err != nil {
		return err
	}
	l.Affiliates = dedupeStrings(l.Affiliates)
	for _, badge := range l.Affiliates {
		if _, ok := tx.state.permanent[badge]; !ok {
			return domain.Errorf(domain.KindReferentialViolation, domain.EntityLab, l.Name, "affiliate %q not found", badge)
		}
	}
	sort.Strings(l.Affiliates)
	return nil
}

// CreateLab stores a new lab.
func (tx *transaction) CreateLab(l Lab) (Lab, error) {
	if _, exists := tx.state.labs[l.Name]; exists {
		return Lab{}, domain.Errorf(domain.KindDuplicateEntity, domain.EntityLab, l.Name, "already registered")
	}
	l = stripLab(cloneLab(l))
	if err := tx.validateLab(&l); err != nil {
		return Lab{}, err
	}
	tx.state.labs[l.Name] = l
	created := cloneLab(decorateLab(&tx.state, l))
	tx.recordChange(Change{Entity: domain.EntityLab, Action: domain.ActionCreate, Key: l.Name, After: created})
	return created, nil
}

// UpdateLab mutates an existing lab. The name is immutable.
func (tx *transaction) UpdateLab(name string, mutator func(*Lab) error) (Lab, error) {
	current, ok := tx.state.labs[name]
	if !ok {
		return Lab{}, domain.NotFound(domain.EntityLab, name)
	}
	before := cloneLab(decorateLab(&tx.state, current))
	next := cloneLab(current)
	if err := mutator(&next); err != nil {
		return Lab{}, err
	}
	next.Name = name
	next = stripLab(next)
	if err := tx.validateLab(&next); err != nil {
		return Lab{}, err
	}
	tx.state.labs[name] = next
	after := cloneLab(decorateLab(&tx.state, next))
	tx.recordChange(Change{Entity: domain.EntityLab, Action: domain.ActionUpdate, Key: name, Before: before, After: after})
	return after, nil
}

// DeleteLab removes a lab with no affiliates, collaborations or hosted equipment.
func (tx *transaction) DeleteLab(name string) error {
	current, ok := tx.state.labs[name]
	if !ok {
		return domain.NotFound(domain.EntityLab, name)
	}
	decorated := decorateLab(&tx.state, current)
	switch {
	case len(decorated.Affiliates) > 0:
		return domain.Errorf(domain.KindReferentialViolation, domain.EntityLab, name, "still has affiliate %q", decorated.Affiliates[0])
	case len(decorated.ProjectCUPs) > 0:
		return domain.Errorf(domain.KindReferentialViolation, domain.EntityLab, name, "still collaborates on project %q", decorated.ProjectCUPs[0])
	case len(decorated.EquipmentIDs) > 0:
		return domain.Errorf(domain.KindReferentialViolation, domain.EntityLab, name, "still hosts equipment %d", decorated.EquipmentIDs[0])
	}
	delete(tx.state.labs, name)
	tx.recordChange(Change{Entity: domain.EntityLab, Action: domain.ActionDelete, Key: name, Before: cloneLab(decorated)})
	return nil
}

func (tx *transaction) validateEquipment(e Equipment) error {
	key := strconv.FormatInt(e.ID, 10)
	if _, ok := tx.state.projects[e.ProjectCUP]; !ok {
		return domain.Errorf(domain.KindReferentialViolation, domain.EntityEquipment, key, "project %q not found", e.ProjectCUP)
	}
	if e.LabName != nil {
		if _, ok := tx.state.labs[*e.LabName]; !ok {
			return domain.Errorf(domain.KindReferentialViolation, domain.EntityEquipment, key, "lab %q not found", *e.LabName)
		}
	}
	if e.Cost.IsNegative() {
		return domain.Errorf(domain.KindBudgetExceeded, domain.EntityEquipment, key, "cost must not be negative")
	}
	return nil
}

func (tx *transaction) nextEquipmentID() int64 {
	var highest int64
	for id := range tx.state.equipment {
		if id > highest {
			highest = id
		}
	}
	return highest + 1
}

// CreateEquipment stores a new equipment item. A zero ID is assigned max+1.
func (tx *transaction) CreateEquipment(e Equipment) (Equipment, error) {
	if e.ID == 0 {
		e.ID = tx.nextEquipmentID()
	}
	key := strconv.FormatInt(e.ID, 10)
	if _, exists := tx.state.equipment[e.ID]; exists {
		return Equipment{}, domain.Errorf(domain.KindDuplicateEntity, domain.EntityEquipment, key, "already registered")
	}
	if err := tx.validateEquipment(e); err != nil {
		return Equipment{}, err
	}
	e = cloneEquipment(e)
	tx.state.equipment[e.ID] = e
	tx.recordChange(Change{Entity: domain.EntityEquipment, Action: domain.ActionCreate, Key: key, After: cloneEquipment(e)})
	return cloneEquipment(e), nil
}

// UpdateEquipment mutates an existing equipment item. The ID is immutable.
func (tx *transaction) UpdateEquipment(id int64, mutator func(*Equipment) error) (Equipment, error) {
	key := strconv.FormatInt(id, 10)
	current, ok := tx.state.equipment[id]
	if !ok {
		return Equipment{}, domain.NotFound(domain.EntityEquipment, key)
	}
	next := cloneEquipment(current)
	if err := mutator(&next); err != nil {
		return Equipment{}, err
	}
	next.ID = id
	if err := tx.validateEquipment(next); err != nil {
		return Equipment{}, err
	}
	tx.state.equipment[id] = cloneEquipment(next)
	tx.recordChange(Change{Entity: domain.EntityEquipment, Action: domain.ActionUpdate, Key: key, Before: current, After: cloneEquipment(next)})
	return cloneEquipment(next), nil
}

// DeleteEquipment removes an equipment item.
func (tx *transaction) DeleteEquipment(id int64) error {
	key := strconv.FormatInt(id, 10)
	current, ok := tx.state.equipment[id]
	if !ok {
		return domain.NotFound(domain.EntityEquipment, key)
	}
	delete(tx.state.equipment, id)
	tx.recordChange(Change{Entity: domain.EntityEquipment, Action: domain.ActionDelete, Key: key, Before: current})
	return nil
}
