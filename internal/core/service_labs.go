package core

import (
	"context"

	"labcore/internal/infra/persistence/records"
	"labcore/pkg/domain"
)

// AddLab registers a lab directed by an active senior employee.
func (s *Service) AddLab(ctx context.Context, lab Lab) (Lab, Result, error) {
	var created Lab
	res, err := s.transact(ctx, "add_lab", func(tx Transaction) (string, error) {
		if err := checkLabStaff(tx.Snapshot(), lab); err != nil {
			return lab.Name, err
		}
		var err error
		created, err = tx.CreateLab(lab)
		return lab.Name, err
	})
	return created, res, err
}

// ModifyLab applies mutator to name.
func (s *Service) ModifyLab(ctx context.Context, name string, mutator func(*Lab) error) (Lab, Result, error) {
	var updated Lab
	res, err := s.transact(ctx, "modify_lab", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		current, ok := view.FindLab(name)
		if !ok {
			return name, domain.NotFound(domain.EntityLab, name)
		}
		next := current
		next.Affiliates = append([]string(nil), current.Affiliates...)
		if err := mutator(&next); err != nil {
			return name, err
		}
		next.Name = name
		if err := checkLabStaff(view, next); err != nil {
			return name, err
		}
		var err error
		updated, err = tx.UpdateLab(name, func(l *Lab) error {
			*l = next
			return nil
		})
		return name, err
	})
	return updated, res, err
}

// DeleteLab detaches the hosted equipment, collaborations and affiliates of
// name, then removes it.
func (s *Service) DeleteLab(ctx context.Context, name string) (Result, error) {
	return s.transact(ctx, "delete_lab", func(tx Transaction) (string, error) {
		lab, ok := tx.Snapshot().FindLab(name)
		if !ok {
			return name, domain.NotFound(domain.EntityLab, name)
		}
		for _, id := range lab.EquipmentIDs {
			if _, err := tx.UpdateEquipment(id, func(e *Equipment) error {
				e.LabName = nil
				return nil
			}); err != nil {
				return name, err
			}
		}
		for _, cup := range lab.ProjectCUPs {
			if _, err := tx.UpdateProject(cup, func(p *Project) error {
				p.LabNames = removeString(p.LabNames, name)
				return nil
			}); err != nil {
				return name, err
			}
		}
		if len(lab.Affiliates) > 0 {
			if _, err := tx.UpdateLab(name, func(l *Lab) error {
				l.Affiliates = nil
				return nil
			}); err != nil {
				return name, err
			}
		}
		return name, tx.DeleteLab(name)
	})
}

// AddAffiliation affiliates an active permanent employee with a lab.
func (s *Service) AddAffiliation(ctx context.Context, badge, lab string) (Lab, Result, error) {
	var updated Lab
	key := records.LinkKey(badge, lab)
	res, err := s.transact(ctx, "add_affiliation", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		current, ok := view.FindLab(lab)
		if !ok {
			return key, domain.NotFound(domain.EntityLab, lab)
		}
		emp, ok := view.FindPermanentEmployee(badge)
		if !ok {
			return key, domain.NotFound(domain.EntityPermanentEmployee, badge)
		}
		if !emp.Active() {
			return key, domain.Errorf(domain.KindReferentialViolation, domain.EntityAffiliation, key,
				"employee terminated on %s", domain.FormatDate(*emp.EndDate))
		}
		if containsName(current.Affiliates, badge) {
			return key, domain.Errorf(domain.KindDuplicateEntity, domain.EntityAffiliation, key, "already registered")
		}
		var err error
		updated, err = tx.UpdateLab(lab, func(l *Lab) error {
			l.Affiliates = append(l.Affiliates, badge)
			return nil
		})
		return key, err
	})
	return updated, res, err
}

// RemoveAffiliation drops the link between badge and lab.
func (s *Service) RemoveAffiliation(ctx context.Context, badge, lab string) (Lab, Result, error) {
	var updated Lab
	key := records.LinkKey(badge, lab)
	res, err := s.transact(ctx, "remove_affiliation", func(tx Transaction) (string, error) {
		current, ok := tx.Snapshot().FindLab(lab)
		if !ok || !containsName(current.Affiliates, badge) {
			return key, domain.NotFound(domain.EntityAffiliation, key)
		}
		var err error
		updated, err = tx.UpdateLab(lab, func(l *Lab) error {
			l.Affiliates = removeString(l.Affiliates, badge)
			return nil
		})
		return key, err
	})
	return updated, res, err
}

// checkLabStaff rejects a lab whose director cannot direct or whose new
// affiliates are terminated or unknown.
func checkLabStaff(view domain.RuleView, lab Lab) error {
	director, ok := view.FindPermanentEmployee(lab.DirectorBadge)
	if problem := directorProblem(director, ok); problem != "" {
		return domain.Errorf(domain.KindReferentialViolation, domain.EntityLab, lab.Name, "director %q %s", lab.DirectorBadge, problem)
	}
	var existing []string
	if current, ok := view.FindLab(lab.Name); ok {
		existing = current.Affiliates
	}
	for _, badge := range lab.Affiliates {
		if containsName(existing, badge) {
			continue
		}
		emp, ok := view.FindPermanentEmployee(badge)
		if !ok {
			return domain.Errorf(domain.KindReferentialViolation, domain.EntityLab, lab.Name, "affiliate %q not found", badge)
		}
		if !emp.Active() {
			return domain.Errorf(domain.KindReferentialViolation, domain.EntityLab, lab.Name,
				"affiliate %q terminated on %s", badge, domain.FormatDate(*emp.EndDate))
		}
	}
	return nil
}
