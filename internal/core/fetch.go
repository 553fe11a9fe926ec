package core

import (
	"context"

	"labcore/internal/infra/persistence/records"
	"labcore/pkg/domain"
)

// Fetch* accessors return one row per entity in key order, with the same
// field order as the persisted record.

func (s *Service) fetch(ctx context.Context, fn func(view TransactionView) []domain.Record) ([][]string, error) {
	var rows [][]string
	err := s.store.View(ctx, func(view TransactionView) error {
		for _, rec := range fn(view) {
			rows = append(rows, append([]string(nil), rec.Fields...))
		}
		return nil
	})
	return rows, err
}

// FetchPermanentEmployees returns the permanent employee rows.
func (s *Service) FetchPermanentEmployees(ctx context.Context) ([][]string, error) {
	return s.fetch(ctx, func(view TransactionView) []domain.Record {
		var out []domain.Record
		for _, e := range view.ListPermanentEmployees() {
			out = append(out, records.EncodePermanentEmployee(e))
		}
		return out
	})
}

// FetchProjectEmployees returns the project employee rows.
func (s *Service) FetchProjectEmployees(ctx context.Context) ([][]string, error) {
	return s.fetch(ctx, func(view TransactionView) []domain.Record {
		var out []domain.Record
		for _, e := range view.ListProjectEmployees() {
			out = append(out, records.EncodeProjectEmployee(e))
		}
		return out
	})
}

// FetchCareerEvents returns the career events of badge in chronological
// order, or of every employee when badge is empty.
func (s *Service) FetchCareerEvents(ctx context.Context, badge string) ([][]string, error) {
	return s.fetch(ctx, func(view TransactionView) []domain.Record {
		badges := []string{badge}
		if badge == "" {
			badges = badges[:0]
			for _, e := range view.ListPermanentEmployees() {
				badges = append(badges, e.Badge)
			}
		}
		var out []domain.Record
		for _, b := range badges {
			for _, ev := range view.ListCareerEvents(b) {
				out = append(out, records.EncodeCareerEvent(ev))
			}
		}
		return out
	})
}

// FetchProjects returns the project rows.
func (s *Service) FetchProjects(ctx context.Context) ([][]string, error) {
	return s.fetch(ctx, func(view TransactionView) []domain.Record {
		var out []domain.Record
		for _, p := range view.ListProjects() {
			out = append(out, records.EncodeProject(p))
		}
		return out
	})
}

// FetchLabs returns the lab rows.
func (s *Service) FetchLabs(ctx context.Context) ([][]string, error) {
	return s.fetch(ctx, func(view TransactionView) []domain.Record {
		var out []domain.Record
		for _, l := range view.ListLabs() {
			out = append(out, records.EncodeLab(l))
		}
		return out
	})
}

// FetchEquipment returns the equipment rows.
func (s *Service) FetchEquipment(ctx context.Context) ([][]string, error) {
	return s.fetch(ctx, func(view TransactionView) []domain.Record {
		var out []domain.Record
		for _, e := range view.ListEquipment() {
			out = append(out, records.EncodeEquipment(e))
		}
		return out
	})
}
