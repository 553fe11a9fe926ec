package core

import (
	"context"
	"strconv"
	"strings"
)

// DisplayKeySeparator separates the natural key from the label in the
// composite strings shown by pickers, as in "B001 - Doe".
const DisplayKeySeparator = " - "

// ParseDisplayKey returns the natural key carried by a display string.
func ParseDisplayKey(display string) string {
	key, _, _ := strings.Cut(display, DisplayKeySeparator)
	return strings.TrimSpace(key)
}

func (s *Service) resolve(ctx context.Context, display string, fn func(view TransactionView, key string) bool) bool {
	key := ParseDisplayKey(display)
	if key == "" {
		return false
	}
	found := false
	_ = s.store.View(ctx, func(view TransactionView) error {
		found = fn(view, key)
		return nil
	})
	return found
}

// ResolvePermanentEmployee looks up the permanent employee named by display.
func (s *Service) ResolvePermanentEmployee(ctx context.Context, display string) (PermanentEmployee, bool) {
	var out PermanentEmployee
	ok := s.resolve(ctx, display, func(view TransactionView, key string) bool {
		var found bool
		out, found = view.FindPermanentEmployee(key)
		return found
	})
	return out, ok
}

// ResolveProjectEmployee looks up the project employee named by display.
func (s *Service) ResolveProjectEmployee(ctx context.Context, display string) (ProjectEmployee, bool) {
	var out ProjectEmployee
	ok := s.resolve(ctx, display, func(view TransactionView, key string) bool {
		var found bool
		out, found = view.FindProjectEmployee(key)
		return found
	})
	return out, ok
}

// ResolveProject looks up the project named by display.
func (s *Service) ResolveProject(ctx context.Context, display string) (Project, bool) {
	var out Project
	ok := s.resolve(ctx, display, func(view TransactionView, key string) bool {
		var found bool
		out, found = view.FindProject(key)
		return found
	})
	return out, ok
}

// ResolveLab looks up the lab named by display.
func (s *Service) ResolveLab(ctx context.Context, display string) (Lab, bool) {
	var out Lab
	ok := s.resolve(ctx, display, func(view TransactionView, key string) bool {
		var found bool
		out, found = view.FindLab(key)
		return found
	})
	return out, ok
}

// ResolveEquipment looks up the equipment named by display.
func (s *Service) ResolveEquipment(ctx context.Context, display string) (Equipment, bool) {
	var out Equipment
	ok := s.resolve(ctx, display, func(view TransactionView, key string) bool {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return false
		}
		var found bool
		out, found = view.FindEquipment(id)
		return found
	})
	return out, ok
}
