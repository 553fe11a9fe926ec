package core

import (
	"context"
	"time"

	"labcore/internal/infra/persistence/records"
	"labcore/pkg/domain"
)

// AddProject registers a project. Collaborations may only be declared on an
// active project.
func (s *Service) AddProject(ctx context.Context, p Project) (Project, Result, error) {
	var created Project
	res, err := s.transact(ctx, "add_project", func(tx Transaction) (string, error) {
		if len(p.LabNames) > 0 {
			if err := requireActiveProject(p, tx.Now()); err != nil {
				return p.CUP, err
			}
		}
		var err error
		created, err = tx.CreateProject(p)
		return p.CUP, err
	})
	return created, res, err
}

// ModifyProject applies mutator to cup. A budget change must keep both cost
// categories under the new half budget.
func (s *Service) ModifyProject(ctx context.Context, cup string, mutator func(*Project) error) (Project, Result, error) {
	var updated Project
	res, err := s.transact(ctx, "modify_project", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		current, ok := view.FindProject(cup)
		if !ok {
			return cup, domain.NotFound(domain.EntityProject, cup)
		}
		next := current
		next.LabNames = append([]string(nil), current.LabNames...)
		if err := mutator(&next); err != nil {
			return cup, err
		}
		if !next.Budget.Equal(current.Budget) {
			if err := NewBudgetGuard(view).CanRebudget(cup, next.Budget); err != nil {
				return cup, err
			}
		}
		for _, lab := range next.LabNames {
			if containsName(current.LabNames, lab) {
				continue
			}
			if err := requireActiveProject(next, tx.Now()); err != nil {
				return cup, err
			}
		}
		var err error
		updated, err = tx.UpdateProject(cup, func(p *Project) error {
			*p = next
			return nil
		})
		return cup, err
	})
	return updated, res, err
}

// DeleteProject drops the collaborations of cup and removes it. Projects that
// still employ staff or own equipment are rejected.
func (s *Service) DeleteProject(ctx context.Context, cup string) (Result, error) {
	return s.transact(ctx, "delete_project", func(tx Transaction) (string, error) {
		project, ok := tx.Snapshot().FindProject(cup)
		if !ok {
			return cup, domain.NotFound(domain.EntityProject, cup)
		}
		switch {
		case len(project.StaffBadges) > 0:
			return cup, domain.Errorf(domain.KindReferentialViolation, domain.EntityProject, cup, "still employs %q", project.StaffBadges[0])
		case len(project.EquipmentIDs) > 0:
			return cup, domain.Errorf(domain.KindReferentialViolation, domain.EntityProject, cup, "still owns equipment %d", project.EquipmentIDs[0])
		}
		if len(project.LabNames) > 0 {
			if _, err := tx.UpdateProject(cup, func(p *Project) error {
				p.LabNames = nil
				return nil
			}); err != nil {
				return cup, err
			}
		}
		return cup, tx.DeleteProject(cup)
	})
}

// AddCollaboration links an active project to a lab.
func (s *Service) AddCollaboration(ctx context.Context, cup, lab string) (Project, Result, error) {
	var updated Project
	key := records.LinkKey(cup, lab)
	res, err := s.transact(ctx, "add_collaboration", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		project, ok := view.FindProject(cup)
		if !ok {
			return key, domain.NotFound(domain.EntityProject, cup)
		}
		if _, ok := view.FindLab(lab); !ok {
			return key, domain.NotFound(domain.EntityLab, lab)
		}
		if containsName(project.LabNames, lab) {
			return key, domain.Errorf(domain.KindDuplicateEntity, domain.EntityCollaboration, key, "already registered")
		}
		if err := requireActiveProject(project, tx.Now()); err != nil {
			return key, err
		}
		if len(project.LabNames) >= domain.MaxCollaborations {
			return key, domain.Errorf(domain.KindLimitExceeded, domain.EntityCollaboration, key,
				"project already collaborates with %d labs", len(project.LabNames))
		}
		var err error
		updated, err = tx.UpdateProject(cup, func(p *Project) error {
			p.LabNames = append(p.LabNames, lab)
			return nil
		})
		return key, err
	})
	return updated, res, err
}

// RemoveCollaboration unlinks a project from a lab. Equipment of the project
// hosted by the lab must be moved first.
func (s *Service) RemoveCollaboration(ctx context.Context, cup, lab string) (Project, Result, error) {
	var updated Project
	key := records.LinkKey(cup, lab)
	res, err := s.transact(ctx, "remove_collaboration", func(tx Transaction) (string, error) {
		project, ok := tx.Snapshot().FindProject(cup)
		if !ok || !containsName(project.LabNames, lab) {
			return key, domain.NotFound(domain.EntityCollaboration, key)
		}
		var err error
		updated, err = tx.UpdateProject(cup, func(p *Project) error {
			p.LabNames = removeString(p.LabNames, lab)
			return nil
		})
		return key, err
	})
	return updated, res, err
}

func requireActiveProject(p Project, today time.Time) error {
	if p.ActiveOn(today) {
		return nil
	}
	return domain.Errorf(domain.KindReferentialViolation, domain.EntityProject, p.CUP,
		"project ended on %s and cannot take new collaborations", domain.FormatDate(*p.EndDate))
}
