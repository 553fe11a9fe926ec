package core

import (
	"context"
	"fmt"
	"time"

	"labcore/pkg/domain"
)

const projectRolesRuleName = "project_roles"

// NewProjectRolesRule checks that the referent and responsible of every
// affected project cover its span, and that the responsible of an active
// project is an executive.
func NewProjectRolesRule() domain.Rule {
	return projectRolesRule{}
}

type projectRolesRule struct{}

func (projectRolesRule) Name() string { return projectRolesRuleName }

func (projectRolesRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	touched := newTouchedKeys(changes)
	today := view.Today()
	res := domain.Result{}
	for _, project := range view.ListProjects() {
		_, projectTouched := touched.projects[project.CUP]
		if !projectTouched && !touched.hasEmployee(project.ReferentBadge) && !touched.hasEmployee(project.ResponsibleBadge) {
			continue
		}
		for _, msg := range projectRoleProblems(view, project, today) {
			res.Violations = append(res.Violations, blockf(projectRolesRuleName, domain.KindReferentialViolation,
				domain.EntityProject, project.CUP, "%s", msg))
		}
	}
	return res, nil
}

type employeeFinder interface {
	FindPermanentEmployee(badge string) (domain.PermanentEmployee, bool)
}

func projectRoleProblems(view employeeFinder, project domain.Project, today time.Time) []string {
	var problems []string
	roles := []struct {
		name  string
		badge string
	}{
		{"referent", project.ReferentBadge},
		{"responsible", project.ResponsibleBadge},
	}
	for _, role := range roles {
		emp, ok := view.FindPermanentEmployee(role.badge)
		if !ok {
			problems = append(problems, fmt.Sprintf("%s %q not found", role.name, role.badge))
			continue
		}
		if !coversSpan(emp, project) {
			problems = append(problems, fmt.Sprintf("%s %q employment does not cover the project span", role.name, role.badge))
		}
		if role.name == "responsible" && project.ActiveOn(today) && !emp.Executive {
			problems = append(problems, fmt.Sprintf("responsible %q is not an executive", role.badge))
		}
	}
	return problems
}

// coversSpan reports whether emp is employed for the whole project span.
func coversSpan(emp domain.PermanentEmployee, project domain.Project) bool {
	if domain.DateOf(project.StartDate).Before(domain.DateOf(emp.HireDate)) {
		return false
	}
	if emp.EndDate == nil {
		return true
	}
	return project.EndDate != nil && !domain.DateOf(*project.EndDate).After(domain.DateOf(*emp.EndDate))
}
