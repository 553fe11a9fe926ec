package core

import (
	"context"
	"strconv"

	"labcore/pkg/domain"
)

// AddProjectEmployee registers fixed-term staff after checking the staff
// ceiling of the paying project.
func (s *Service) AddProjectEmployee(ctx context.Context, pe ProjectEmployee) (ProjectEmployee, Result, error) {
	var created ProjectEmployee
	res, err := s.transact(ctx, "add_project_employee", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		if _, exists := view.FindProjectEmployee(pe.Badge); exists {
			return pe.Badge, domain.Errorf(domain.KindDuplicateEntity, domain.EntityProjectEmployee, pe.Badge, "already registered")
		}
		if err := NewBudgetGuard(view).CanAdd(domain.CategoryStaff, pe.ProjectCUP, pe.Cost); err != nil {
			return pe.Badge, err
		}
		var err error
		created, err = tx.CreateProjectEmployee(pe)
		return pe.Badge, err
	})
	return created, res, err
}

// ModifyProjectEmployee applies mutator to badge. Cost and project changes go
// through the budget guard.
func (s *Service) ModifyProjectEmployee(ctx context.Context, badge string, mutator func(*ProjectEmployee) error) (ProjectEmployee, Result, error) {
	var updated ProjectEmployee
	res, err := s.transact(ctx, "modify_project_employee", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		current, ok := view.FindProjectEmployee(badge)
		if !ok {
			return badge, domain.NotFound(domain.EntityProjectEmployee, badge)
		}
		next := current
		if err := mutator(&next); err != nil {
			return badge, err
		}
		if err := NewBudgetGuard(view).CanEdit(domain.CategoryStaff, current.ProjectCUP, next.ProjectCUP, current.Cost, next.Cost); err != nil {
			return badge, err
		}
		var err error
		updated, err = tx.UpdateProjectEmployee(badge, func(e *ProjectEmployee) error {
			*e = next
			return nil
		})
		return badge, err
	})
	return updated, res, err
}

// DeleteProjectEmployee removes fixed-term staff.
func (s *Service) DeleteProjectEmployee(ctx context.Context, badge string) (Result, error) {
	return s.transact(ctx, "delete_project_employee", func(tx Transaction) (string, error) {
		return badge, tx.DeleteProjectEmployee(badge)
	})
}

// AddEquipment registers an equipment purchase. A zero ID is assigned the next
// free one; a hosting lab must collaborate on the owning project.
func (s *Service) AddEquipment(ctx context.Context, eq Equipment) (Equipment, Result, error) {
	var created Equipment
	res, err := s.transact(ctx, "add_equipment", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		key := strconv.FormatInt(eq.ID, 10)
		if eq.ID != 0 {
			if _, exists := view.FindEquipment(eq.ID); exists {
				return key, domain.Errorf(domain.KindDuplicateEntity, domain.EntityEquipment, key, "already registered")
			}
		}
		if err := NewBudgetGuard(view).CanAdd(domain.CategoryEquipment, eq.ProjectCUP, eq.Cost); err != nil {
			return key, err
		}
		if err := checkHosting(view, eq); err != nil {
			return key, err
		}
		var err error
		created, err = tx.CreateEquipment(eq)
		return strconv.FormatInt(created.ID, 10), err
	})
	return created, res, err
}

// ModifyEquipment applies mutator to id under the budget guard and hosting check.
func (s *Service) ModifyEquipment(ctx context.Context, id int64, mutator func(*Equipment) error) (Equipment, Result, error) {
	var updated Equipment
	key := strconv.FormatInt(id, 10)
	res, err := s.transact(ctx, "modify_equipment", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		current, ok := view.FindEquipment(id)
		if !ok {
			return key, domain.NotFound(domain.EntityEquipment, key)
		}
		next := current
		if err := mutator(&next); err != nil {
			return key, err
		}
		next.ID = id
		if err := NewBudgetGuard(view).CanEdit(domain.CategoryEquipment, current.ProjectCUP, next.ProjectCUP, current.Cost, next.Cost); err != nil {
			return key, err
		}
		if err := checkHosting(view, next); err != nil {
			return key, err
		}
		var err error
		updated, err = tx.UpdateEquipment(id, func(e *Equipment) error {
			*e = next
			return nil
		})
		return key, err
	})
	return updated, res, err
}

// DeleteEquipment removes an equipment item.
func (s *Service) DeleteEquipment(ctx context.Context, id int64) (Result, error) {
	key := strconv.FormatInt(id, 10)
	return s.transact(ctx, "delete_equipment", func(tx Transaction) (string, error) {
		return key, tx.DeleteEquipment(id)
	})
}

func checkHosting(view domain.RuleView, eq Equipment) error {
	if eq.LabName == nil {
		return nil
	}
	key := strconv.FormatInt(eq.ID, 10)
	if _, ok := view.FindLab(*eq.LabName); !ok {
		return domain.Errorf(domain.KindReferentialViolation, domain.EntityEquipment, key, "lab %q not found", *eq.LabName)
	}
	project, ok := view.FindProject(eq.ProjectCUP)
	if !ok || !containsName(project.LabNames, *eq.LabName) {
		return domain.Errorf(domain.KindReferentialViolation, domain.EntityEquipment, key,
			"lab %q does not collaborate on project %q", *eq.LabName, eq.ProjectCUP)
	}
	return nil
}
