package core

import (
	"context"
	"strconv"

	"labcore/pkg/domain"
)

const equipmentHostingRuleName = "equipment_hosting"

// NewEquipmentHostingRule requires hosted equipment to sit in a lab that
// collaborates on the owning project.
func NewEquipmentHostingRule() domain.Rule {
	return equipmentHostingRule{}
}

type equipmentHostingRule struct{}

func (equipmentHostingRule) Name() string { return equipmentHostingRuleName }

func (equipmentHostingRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, eq := range view.ListEquipment() {
		if eq.LabName == nil {
			continue
		}
		project, ok := view.FindProject(eq.ProjectCUP)
		if ok && containsName(project.LabNames, *eq.LabName) {
			continue
		}
		res.Violations = append(res.Violations, blockf(equipmentHostingRuleName, domain.KindReferentialViolation,
			domain.EntityEquipment, strconv.FormatInt(eq.ID, 10),
			"lab %q does not collaborate on project %q", *eq.LabName, eq.ProjectCUP))
	}
	return res, nil
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
