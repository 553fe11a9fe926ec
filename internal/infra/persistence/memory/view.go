package memory

import (
	"sort"
	"time"
)

func (v transactionView) Today() time.Time { return v.today }

func (v transactionView) ListPermanentEmployees() []PermanentEmployee {
	out := make([]PermanentEmployee, 0, len(v.state.permanent))
	for _, e := range v.state.permanent {
		out = append(out, clonePermanent(decoratePermanent(v.state, e)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Badge < out[j].Badge })
	return out
}

func (v transactionView) ListProjectEmployees() []ProjectEmployee {
	out := make([]ProjectEmployee, 0, len(v.state.staff))
	for _, e := range v.state.staff {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Badge < out[j].Badge })
	return out
}

func (v transactionView) ListProjects() []Project {
	out := make([]Project, 0, len(v.state.projects))
	for _, p := range v.state.projects {
		out = append(out, cloneProject(decorateProject(v.state, p)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CUP < out[j].CUP })
	return out
}

func (v transactionView) ListLabs() []Lab {
	out := make([]Lab, 0, len(v.state.labs))
	for _, l := range v.state.labs {
		out = append(out, cloneLab(decorateLab(v.state, l)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (v transactionView) ListEquipment() []Equipment {
	out := make([]Equipment, 0, len(v.state.equipment))
	for _, e := range v.state.equipment {
		out = append(out, cloneEquipment(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListCareerEvents returns the events of badge in chronological order.
func (v transactionView) ListCareerEvents(badge string) []CareerEvent {
	return employeeEvents(v.state, badge)
}

func (v transactionView) FindPermanentEmployee(badge string) (PermanentEmployee, bool) {
	e, ok := v.state.permanent[badge]
	if !ok {
		return PermanentEmployee{}, false
	}
	return clonePermanent(decoratePermanent(v.state, e)), true
}

func (v transactionView) FindProjectEmployee(badge string) (ProjectEmployee, bool) {
	e, ok := v.state.staff[badge]
	return e, ok
}

func (v transactionView) FindProject(cup string) (Project, bool) {
	p, ok := v.state.projects[cup]
	if !ok {
		return Project{}, false
	}
	return cloneProject(decorateProject(v.state, p)), true
}

func (v transactionView) FindLab(name string) (Lab, bool) {
	l, ok := v.state.labs[name]
	if !ok {
		return Lab{}, false
	}
	return cloneLab(decorateLab(v.state, l)), true
}

func (v transactionView) FindEquipment(id int64) (Equipment, bool) {
	e, ok := v.state.equipment[id]
	if !ok {
		return Equipment{}, false
	}
	return cloneEquipment(e), true
}
