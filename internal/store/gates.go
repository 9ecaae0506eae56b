package store

import (
	"strings"

	"golang.org/x/xerrors"
)

func (s *Store) AddGate(name, location, status string) (*Gate, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, xerrors.Errorf("%w: empty gate name", ErrInvalidValue)
	}
	if !oneOf(status, AdminGateStatuses) {
		return nil, xerrors.Errorf("%w: gate status %q", ErrInvalidValue, status)
	}
	gate := &Gate{Name: name, Location: strings.TrimSpace(location), Status: status}
	if err := s.db.Create(gate).Error; err != nil {
		return nil, xerrors.Errorf("add gate: %w", err)
	}
	return gate, nil
}

func (s *Store) ListGates() ([]Gate, error) {
	var gates []Gate
	if err := s.db.Order("gate_id").Find(&gates).Error; err != nil {
		return nil, xerrors.Errorf("list gates: %w", err)
	}
	return gates, nil
}

// UpdateGateStatus sets the status of a gate. Callers restrict which statuses
// a role may use; any of StaffGateStatuses is accepted here.
func (s *Store) UpdateGateStatus(id uint, status string) error {
	if !oneOf(status, StaffGateStatuses) {
		return xerrors.Errorf("%w: gate status %q", ErrInvalidValue, status)
	}
	res := s.db.Model(&Gate{}).Where("gate_id = ?", id).Update("status", status)
	if res.Error != nil {
		return xerrors.Errorf("update gate %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
