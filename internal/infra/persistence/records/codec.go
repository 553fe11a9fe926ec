// Package records converts registry snapshots to and from the flat field lists
// exchanged with the Repository Port.
package records

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"labcore/pkg/domain"
)

// Kinds lists every record kind in dependency order: owners before the
// records that reference them.
var Kinds = []domain.EntityType{
	domain.EntityPermanentEmployee,
	domain.EntityCareerEvent,
	domain.EntityLab,
	domain.EntityProject,
	domain.EntityProjectEmployee,
	domain.EntityEquipment,
	domain.EntityAffiliation,
	domain.EntityCollaboration,
}

// Field counts per kind.
const (
	permanentFields     = 10
	staffFields         = 9
	careerEventFields   = 3
	projectFields       = 7
	labFields           = 3
	equipmentFields     = 5
	affiliationFields   = 2
	collaborationFields = 2
)

// LinkKey renders the key of an affiliation or collaboration record.
func LinkKey(owner, lab string) string { return owner + "|" + lab }

func formatOptionalDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return domain.FormatDate(*t)
}

func formatOptionalString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// EncodePermanentEmployee flattens e.
func EncodePermanentEmployee(e domain.PermanentEmployee) domain.Record {
	return domain.Record{Key: e.Badge, Fields: []string{
		e.Badge,
		e.Name,
		e.Surname,
		e.TaxID,
		domain.FormatDate(e.BirthDate),
		string(e.Tier),
		domain.FormatDate(e.HireDate),
		formatOptionalDate(e.EndDate),
		strconv.FormatBool(e.Executive),
		formatOptionalString(e.Address),
	}}
}

// EncodeProjectEmployee flattens e.
func EncodeProjectEmployee(e domain.ProjectEmployee) domain.Record {
	return domain.Record{Key: e.Badge, Fields: []string{
		e.Badge,
		e.Name,
		e.Surname,
		e.TaxID,
		domain.FormatDate(e.BirthDate),
		domain.FormatDate(e.HireDate),
		domain.FormatDate(e.ExpiryDate),
		e.Cost.String(),
		e.ProjectCUP,
	}}
}

// EncodeCareerEvent flattens e.
func EncodeCareerEvent(e domain.CareerEvent) domain.Record {
	return domain.Record{Key: string(e.Key()), Fields: []string{
		e.Badge,
		string(e.Type),
		domain.FormatDate(e.Date),
	}}
}

// EncodeProject flattens p without its collaborations.
func EncodeProject(p domain.Project) domain.Record {
	return domain.Record{Key: p.CUP, Fields: []string{
		p.CUP,
		p.Name,
		p.Budget.String(),
		domain.FormatDate(p.StartDate),
		formatOptionalDate(p.EndDate),
		p.ReferentBadge,
		p.ResponsibleBadge,
	}}
}

// EncodeLab flattens l without its affiliations.
func EncodeLab(l domain.Lab) domain.Record {
	return domain.Record{Key: l.Name, Fields: []string{l.Name, l.Topic, l.DirectorBadge}}
}

// EncodeEquipment flattens e.
func EncodeEquipment(e domain.Equipment) domain.Record {
	id := strconv.FormatInt(e.ID, 10)
	return domain.Record{Key: id, Fields: []string{
		id,
		e.Description,
		e.Cost.String(),
		e.ProjectCUP,
		formatOptionalString(e.LabName),
	}}
}

// EncodeAffiliation flattens an employee-lab link.
func EncodeAffiliation(badge, lab string) domain.Record {
	return domain.Record{Key: LinkKey(badge, lab), Fields: []string{badge, lab}}
}

// EncodeCollaboration flattens a project-lab link.
func EncodeCollaboration(cup, lab string) domain.Record {
	return domain.Record{Key: LinkKey(cup, lab), Fields: []string{cup, lab}}
}

// Encode flattens every entity of s. Links are emitted from their owning side:
// Lab.Affiliates and Project.LabNames. Records of each kind are sorted by key.
func Encode(s domain.Snapshot) domain.RecordSet {
	set := make(domain.RecordSet, len(Kinds))
	for _, e := range s.PermanentEmployees {
		set[domain.EntityPermanentEmployee] = append(set[domain.EntityPermanentEmployee], EncodePermanentEmployee(e))
	}
	for _, e := range s.ProjectEmployees {
		set[domain.EntityProjectEmployee] = append(set[domain.EntityProjectEmployee], EncodeProjectEmployee(e))
	}
	for _, e := range s.CareerEvents {
		set[domain.EntityCareerEvent] = append(set[domain.EntityCareerEvent], EncodeCareerEvent(e))
	}
	for _, p := range s.Projects {
		set[domain.EntityProject] = append(set[domain.EntityProject], EncodeProject(p))
		for _, lab := range p.LabNames {
			set[domain.EntityCollaboration] = append(set[domain.EntityCollaboration], EncodeCollaboration(p.CUP, lab))
		}
	}
	for _, l := range s.Labs {
		set[domain.EntityLab] = append(set[domain.EntityLab], EncodeLab(l))
		for _, badge := range l.Affiliates {
			set[domain.EntityAffiliation] = append(set[domain.EntityAffiliation], EncodeAffiliation(badge, l.Name))
		}
	}
	for _, e := range s.Equipment {
		set[domain.EntityEquipment] = append(set[domain.EntityEquipment], EncodeEquipment(e))
	}
	for kind := range set {
		SortRecords(kind, set[kind])
	}
	return set
}

// SortRecords orders records by key. Equipment sorts numerically.
func SortRecords(kind domain.EntityType, recs []domain.Record) {
	if kind == domain.EntityEquipment {
		sort.Slice(recs, func(i, j int) bool {
			a, _ := strconv.ParseInt(recs[i].Key, 10, 64)
			b, _ := strconv.ParseInt(recs[j].Key, 10, 64)
			return a < b
		})
		return
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Key < recs[j].Key })
}

// DecodeError reports a record that cannot be parsed.
type DecodeError struct {
	Kind  domain.EntityType
	Key   string
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode %s %q: %v", e.Kind, e.Key, e.Err)
	}
	return fmt.Sprintf("decode %s %q field %s: %v", e.Kind, e.Key, e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type fieldReader struct {
	kind   domain.EntityType
	rec    domain.Record
	err    error
	fields []string
}

func newFieldReader(kind domain.EntityType, rec domain.Record, want int) *fieldReader {
	r := &fieldReader{kind: kind, rec: rec, fields: rec.Fields}
	if len(rec.Fields) != want {
		r.err = &DecodeError{Kind: kind, Key: rec.Key, Err: fmt.Errorf("expected %d fields, got %d", want, len(rec.Fields))}
	}
	return r
}

func (r *fieldReader) fail(field string, err error) {
	if r.err == nil {
		r.err = &DecodeError{Kind: r.kind, Key: r.rec.Key, Field: field, Err: err}
	}
}

func (r *fieldReader) text(i int) string {
	if r.err != nil {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func (r *fieldReader) required(i int, field string) string {
	v := r.text(i)
	if r.err == nil && v == "" {
		r.fail(field, fmt.Errorf("required"))
	}
	return v
}

func (r *fieldReader) optionalText(i int) *string {
	v := r.text(i)
	if v == "" {
		return nil
	}
	return &v
}

func (r *fieldReader) date(i int, field string) time.Time {
	v := r.required(i, field)
	if r.err != nil {
		return time.Time{}
	}
	t, err := domain.ParseDate(v)
	if err != nil {
		r.fail(field, err)
	}
	return t
}

func (r *fieldReader) optionalDate(i int, field string) *time.Time {
	v := r.text(i)
	if r.err != nil || v == "" {
		return nil
	}
	t, err := domain.ParseDate(v)
	if err != nil {
		r.fail(field, err)
		return nil
	}
	return &t
}

func (r *fieldReader) amount(i int, field string) decimal.Decimal {
	v := r.required(i, field)
	if r.err != nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		r.fail(field, err)
	}
	return d
}

func (r *fieldReader) boolean(i int, field string) bool {
	v := r.text(i)
	if r.err != nil || v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(field, err)
	}
	return b
}

// DecodePermanentEmployee parses a permanent_employee record.
func DecodePermanentEmployee(rec domain.Record) (domain.PermanentEmployee, error) {
	r := newFieldReader(domain.EntityPermanentEmployee, rec, permanentFields)
	e := domain.PermanentEmployee{
		Badge:     r.required(0, "badge"),
		Name:      r.text(1),
		Surname:   r.text(2),
		TaxID:     r.required(3, "tax_id"),
		BirthDate: r.date(4, "birth_date"),
		Tier:      domain.Tier(r.text(5)),
		HireDate:  r.date(6, "hire_date"),
		EndDate:   r.optionalDate(7, "end_date"),
		Executive: r.boolean(8, "executive"),
		Address:   r.optionalText(9),
	}
	if r.err == nil && !e.Tier.Valid() {
		r.fail("tier", fmt.Errorf("unknown tier %q", e.Tier))
	}
	return e, r.err
}

// DecodeProjectEmployee parses a project_employee record.
func DecodeProjectEmployee(rec domain.Record) (domain.ProjectEmployee, error) {
	r := newFieldReader(domain.EntityProjectEmployee, rec, staffFields)
	e := domain.ProjectEmployee{
		Badge:      r.required(0, "badge"),
		Name:       r.text(1),
		Surname:    r.text(2),
		TaxID:      r.required(3, "tax_id"),
		BirthDate:  r.date(4, "birth_date"),
		HireDate:   r.date(5, "hire_date"),
		ExpiryDate: r.date(6, "expiry_date"),
		Cost:       r.amount(7, "cost"),
		ProjectCUP: r.required(8, "project_cup"),
	}
	return e, r.err
}

// DecodeCareerEvent parses a career_event record.
func DecodeCareerEvent(rec domain.Record) (domain.CareerEvent, error) {
	r := newFieldReader(domain.EntityCareerEvent, rec, careerEventFields)
	e := domain.CareerEvent{
		Badge: r.required(0, "badge"),
		Type:  domain.CareerEventType(r.required(1, "type")),
		Date:  r.date(2, "date"),
	}
	if r.err == nil && !e.Type.Valid() {
		r.fail("type", fmt.Errorf("unknown event type %q", e.Type))
	}
	return e, r.err
}

// DecodeProject parses a project record. LabNames is left empty.
func DecodeProject(rec domain.Record) (domain.Project, error) {
	r := newFieldReader(domain.EntityProject, rec, projectFields)
	p := domain.Project{
		CUP:              r.required(0, "cup"),
		Name:             r.required(1, "name"),
		Budget:           r.amount(2, "budget"),
		StartDate:        r.date(3, "start_date"),
		EndDate:          r.optionalDate(4, "end_date"),
		ReferentBadge:    r.required(5, "referent"),
		ResponsibleBadge: r.required(6, "responsible"),
	}
	return p, r.err
}

// DecodeLab parses a lab record. Affiliates is left empty.
func DecodeLab(rec domain.Record) (domain.Lab, error) {
	r := newFieldReader(domain.EntityLab, rec, labFields)
	l := domain.Lab{
		Name:          r.required(0, "name"),
		Topic:         r.text(1),
		DirectorBadge: r.required(2, "director"),
	}
	return l, r.err
}

// DecodeEquipment parses an equipment record.
func DecodeEquipment(rec domain.Record) (domain.Equipment, error) {
	r := newFieldReader(domain.EntityEquipment, rec, equipmentFields)
	idText := r.required(0, "id")
	var id int64
	if r.err == nil {
		parsed, err := strconv.ParseInt(idText, 10, 64)
		if err != nil || parsed <= 0 {
			r.fail("id", fmt.Errorf("invalid id %q", idText))
		}
		id = parsed
	}
	e := domain.Equipment{
		ID:          id,
		Description: r.text(1),
		Cost:        r.amount(2, "cost"),
		ProjectCUP:  r.required(3, "project_cup"),
		LabName:     r.optionalText(4),
	}
	return e, r.err
}

// DecodeLink parses an affiliation or collaboration record into its owner key
// (badge or CUP) and lab name.
func DecodeLink(kind domain.EntityType, rec domain.Record) (owner, lab string, err error) {
	want := affiliationFields
	if kind == domain.EntityCollaboration {
		want = collaborationFields
	}
	r := newFieldReader(kind, rec, want)
	owner = r.required(0, "owner")
	lab = r.required(1, "lab")
	return owner, lab, r.err
}
