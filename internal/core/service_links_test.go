package core_test

import (
	"context"
	"reflect"
	"testing"

	"labcore/pkg/domain"
)

func TestDeleteLabDetachesEverything(t *testing.T) {
	svc := newTestService(t)
	seed(t, svc)
	ctx := context.Background()
	addJunior(t, svc, "B003", "T3")
	if _, _, err := svc.AddAffiliation(ctx, "B003", "Optics"); err != nil {
		t.Fatalf("affiliate: %v", err)
	}
	eq, _, err := svc.AddEquipment(ctx, domain.Equipment{Description: "laser", Cost: amount(100), ProjectCUP: "CUP1", LabName: strPtr("Optics")})
	if err != nil {
		t.Fatalf("hosted equipment: %v", err)
	}

	if _, err := svc.DeleteLab(ctx, "Optics"); err != nil {
		t.Fatalf("delete lab: %v", err)
	}

	if !svc.CheckLabNameAvailable(ctx, "Optics") {
		t.Fatalf("expected lab removed")
	}
	director, _ := svc.ResolvePermanentEmployee(ctx, "B001")
	if len(director.DirectedLabs) != 0 || len(director.Labs) != 0 {
		t.Fatalf("expected director detached: %+v", director)
	}
	affiliate, _ := svc.ResolvePermanentEmployee(ctx, "B003")
	if len(affiliate.Labs) != 0 {
		t.Fatalf("expected affiliate detached: %+v", affiliate.Labs)
	}
	project, _ := svc.ResolveProject(ctx, "CUP1")
	if len(project.LabNames) != 0 {
		t.Fatalf("expected collaboration dropped: %v", project.LabNames)
	}
	hosted, ok := svc.ResolveEquipment(ctx, "1 - laser")
	if !ok || hosted.ID != eq.ID || hosted.LabName != nil {
		t.Fatalf("expected equipment kept without a lab: %+v", hosted)
	}
	for _, rec := range exportRecords(t, svc)[domain.EntityCollaboration] {
		t.Fatalf("unexpected collaboration record %v", rec)
	}

	_, err = svc.DeleteLab(ctx, "Optics")
	expectKind(t, err, domain.KindNotFound)
}

func TestAffiliations(t *testing.T) {
	svc := newTestService(t)
	seed(t, svc)
	ctx := context.Background()
	addJunior(t, svc, "B003", "T3")
	addJunior(t, svc, "B004", "T4")

	lab, _, err := svc.AddAffiliation(ctx, "B004", "Optics")
	if err != nil {
		t.Fatalf("affiliate B004: %v", err)
	}
	lab, _, err = svc.AddAffiliation(ctx, "B003", "Optics")
	if err != nil {
		t.Fatalf("affiliate B003: %v", err)
	}
	if !reflect.DeepEqual(lab.Affiliates, []string{"B003", "B004"}) {
		t.Fatalf("expected sorted affiliates, got %v", lab.Affiliates)
	}

	_, _, err = svc.AddAffiliation(ctx, "B003", "Optics")
	expectKind(t, err, domain.KindDuplicateEntity)
	_, _, err = svc.AddAffiliation(ctx, "B003", "Nowhere")
	expectKind(t, err, domain.KindNotFound)
	_, _, err = svc.AddAffiliation(ctx, "B404", "Optics")
	expectKind(t, err, domain.KindNotFound)

	if _, _, err := svc.RemoveAffiliation(ctx, "B004", "Optics"); err != nil {
		t.Fatalf("remove affiliation: %v", err)
	}
	_, _, err = svc.RemoveAffiliation(ctx, "B004", "Optics")
	expectKind(t, err, domain.KindNotFound)

	if _, _, err := svc.ModifyPermanentEmployee(ctx, "B004", func(e *domain.PermanentEmployee) error {
		e.EndDate = datePtr(2024, 1, 31)
		return nil
	}); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	_, _, err = svc.AddAffiliation(ctx, "B004", "Optics")
	expectKind(t, err, domain.KindReferentialViolation)
	_, _, err = svc.ModifyLab(ctx, "Optics", func(l *domain.Lab) error {
		l.Affiliates = append(l.Affiliates, "B004")
		return nil
	})
	expectKind(t, err, domain.KindReferentialViolation)
}

func TestLabDirectorMustBeActiveSenior(t *testing.T) {
	svc := newTestService(t)
	seed(t, svc)
	ctx := context.Background()
	addJunior(t, svc, "B003", "T3")

	if !svc.CheckDirector(ctx, "B001") || svc.CheckDirector(ctx, "B003") || svc.CheckDirector(ctx, "B404") {
		t.Fatalf("unexpected director checks")
	}
	_, _, err := svc.AddLab(ctx, domain.Lab{Name: "Bio", DirectorBadge: "B003"})
	expectKind(t, err, domain.KindReferentialViolation)
	_, _, err = svc.ModifyLab(ctx, "Optics", func(l *domain.Lab) error {
		l.DirectorBadge = "B003"
		return nil
	})
	expectKind(t, err, domain.KindReferentialViolation)
	_, _, err = svc.AddLab(ctx, domain.Lab{Name: "Optics", DirectorBadge: "B001"})
	expectKind(t, err, domain.KindDuplicateEntity)

	renamed, _, err := svc.ModifyLab(ctx, "Optics", func(l *domain.Lab) error {
		l.Topic = "photonics"
		return nil
	})
	if err != nil || renamed.Topic != "photonics" {
		t.Fatalf("modify topic: %v %+v", err, renamed)
	}
}

func TestCollaborations(t *testing.T) {
	svc := newTestService(t)
	seed(t, svc)
	ctx := context.Background()
	for _, name := range []string{"L2", "L3", "L4"} {
		if _, _, err := svc.AddLab(ctx, domain.Lab{Name: name, DirectorBadge: "B001"}); err != nil {
			t.Fatalf("add lab %s: %v", name, err)
		}
	}

	_, _, err := svc.AddCollaboration(ctx, "CUP1", "Optics")
	expectKind(t, err, domain.KindDuplicateEntity)
	if _, _, err := svc.AddCollaboration(ctx, "CUP1", "L3"); err != nil {
		t.Fatalf("collaborate L3: %v", err)
	}
	project, _, err := svc.AddCollaboration(ctx, "CUP1", "L2")
	if err != nil {
		t.Fatalf("collaborate L2: %v", err)
	}
	if !reflect.DeepEqual(project.LabNames, []string{"L2", "L3", "Optics"}) {
		t.Fatalf("unexpected collaborations %v", project.LabNames)
	}
	_, _, err = svc.AddCollaboration(ctx, "CUP1", "L4")
	expectKind(t, err, domain.KindLimitExceeded)
	_, _, err = svc.AddCollaboration(ctx, "CUP9", "L4")
	expectKind(t, err, domain.KindNotFound)
	_, _, err = svc.AddCollaboration(ctx, "CUP1", "Nowhere")
	expectKind(t, err, domain.KindNotFound)

	if _, _, err := svc.AddEquipment(ctx, domain.Equipment{Description: "laser", Cost: amount(10), ProjectCUP: "CUP1", LabName: strPtr("L2")}); err != nil {
		t.Fatalf("hosted equipment: %v", err)
	}
	_, _, err = svc.AddEquipment(ctx, domain.Equipment{Description: "scope", Cost: amount(10), ProjectCUP: "CUP1", LabName: strPtr("L4")})
	expectKind(t, err, domain.KindReferentialViolation)
	_, _, err = svc.RemoveCollaboration(ctx, "CUP1", "L2")
	expectKind(t, err, domain.KindReferentialViolation)
	_, _, err = svc.RemoveCollaboration(ctx, "CUP1", "L4")
	expectKind(t, err, domain.KindNotFound)

	if _, _, err := svc.ModifyEquipment(ctx, 1, func(e *domain.Equipment) error {
		e.LabName = strPtr("L3")
		return nil
	}); err != nil {
		t.Fatalf("move equipment: %v", err)
	}
	project, _, err = svc.RemoveCollaboration(ctx, "CUP1", "L2")
	if err != nil || !reflect.DeepEqual(project.LabNames, []string{"L3", "Optics"}) {
		t.Fatalf("remove collaboration: %v %v", err, project.LabNames)
	}
	lab, _ := svc.ResolveLab(ctx, "L3")
	if !reflect.DeepEqual(lab.EquipmentIDs, []int64{1}) || !reflect.DeepEqual(lab.ProjectCUPs, []string{"CUP1"}) {
		t.Fatalf("unexpected lab decorations %+v", lab)
	}
}

func TestEndedProjectsTakeNoCollaborations(t *testing.T) {
	svc := newTestService(t)
	seed(t, svc)
	ctx := context.Background()
	ended := domain.Project{
		CUP: "CUP3", Name: "Closed", Budget: amount(1000), StartDate: domain.Date(2020, 1, 1), EndDate: datePtr(2023, 12, 31),
		ReferentBadge: "B001", ResponsibleBadge: "B001", LabNames: []string{"Optics"},
	}
	_, _, err := svc.AddProject(ctx, ended)
	expectKind(t, err, domain.KindReferentialViolation)

	ended.LabNames = nil
	if _, _, err := svc.AddProject(ctx, ended); err != nil {
		t.Fatalf("add ended project: %v", err)
	}
	_, _, err = svc.AddCollaboration(ctx, "CUP3", "Optics")
	expectKind(t, err, domain.KindReferentialViolation)
	_, _, err = svc.ModifyProject(ctx, "CUP3", func(p *domain.Project) error {
		p.LabNames = append(p.LabNames, "Optics")
		return nil
	})
	expectKind(t, err, domain.KindReferentialViolation)

	tooMany := domain.Project{
		CUP: "CUP4", Name: "Wide", Budget: amount(1000), StartDate: domain.Date(2020, 1, 1),
		ReferentBadge: "B001", ResponsibleBadge: "B001", LabNames: []string{"a", "b", "c", "d"},
	}
	_, _, err = svc.AddProject(ctx, tooMany)
	expectKind(t, err, domain.KindLimitExceeded)
}

func TestProjectRoles(t *testing.T) {
	svc := newTestService(t)
	seed(t, svc)
	ctx := context.Background()
	addJunior(t, svc, "B003", "T3")
	base := domain.Project{
		CUP: "CUP5", Name: "Roles", Budget: amount(1000), StartDate: domain.Date(2023, 6, 1),
		ReferentBadge: "B001", ResponsibleBadge: "B001",
	}

	cases := []struct {
		name   string
		mutate func(*domain.Project)
	}{
		{"responsible not executive", func(p *domain.Project) { p.ResponsibleBadge = "B003" }},
		{"referent hired after start", func(p *domain.Project) { p.ReferentBadge = "B003"; p.StartDate = domain.Date(2022, 1, 1) }},
		{"unknown responsible", func(p *domain.Project) { p.ResponsibleBadge = "B404" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := base
			tc.mutate(&p)
			_, _, err := svc.AddProject(ctx, p)
			expectKind(t, err, domain.KindReferentialViolation)
		})
	}

	if _, _, err := svc.AddProject(ctx, base); err != nil {
		t.Fatalf("add project: %v", err)
	}
	if svc.CheckProjectNameAvailable(ctx, "Roles", "") || !svc.CheckProjectNameAvailable(ctx, "Roles", "CUP5") {
		t.Fatalf("unexpected project name checks")
	}
	if svc.CheckCUPAvailable(ctx, "CUP5") || !svc.CheckCUPAvailable(ctx, "CUP6") {
		t.Fatalf("unexpected CUP checks")
	}
	_, _, err := svc.ModifyProject(ctx, "CUP5", func(p *domain.Project) error {
		p.Name = "Beam"
		return nil
	})
	expectKind(t, err, domain.KindUniquenessViolation)
	_, _, err = svc.ModifyPermanentEmployee(ctx, "B001", func(e *domain.PermanentEmployee) error {
		e.EndDate = datePtr(2024, 1, 1)
		return nil
	})
	expectKind(t, err, domain.KindReferentialViolation)
}

func TestDeleteProject(t *testing.T) {
	svc := newTestService(t)
	seed(t, svc)
	ctx := context.Background()
	if _, _, err := svc.AddProjectEmployee(ctx, staffMember("P001", "S1", "CUP1", 10)); err != nil {
		t.Fatalf("add staff: %v", err)
	}

	_, err := svc.DeleteProject(ctx, "CUP1")
	expectKind(t, err, domain.KindReferentialViolation)
	if _, err := svc.DeleteProjectEmployee(ctx, "P001"); err != nil {
		t.Fatalf("delete staff: %v", err)
	}
	if _, err := svc.DeleteProject(ctx, "CUP1"); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	lab, _ := svc.ResolveLab(ctx, "Optics")
	if len(lab.ProjectCUPs) != 0 {
		t.Fatalf("expected collaboration removed, got %v", lab.ProjectCUPs)
	}
	emp, _ := svc.ResolvePermanentEmployee(ctx, "B001")
	if len(emp.ReferentProjects) != 0 || len(emp.ResponsibleProjects) != 0 {
		t.Fatalf("expected roles released: %+v", emp)
	}
	_, err = svc.DeleteProject(ctx, "CUP1")
	expectKind(t, err, domain.KindNotFound)
}
