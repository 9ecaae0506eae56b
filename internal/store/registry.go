package store

import (
	"strings"

	"golang.org/x/xerrors"
)

// AddModel registers a detection model version.
func (s *Store) AddModel(name, version, status string) (*DetectionModel, error) {
	name, version = strings.TrimSpace(name), strings.TrimSpace(version)
	switch {
	case name == "" || version == "":
		return nil, xerrors.Errorf("%w: model name and version are required", ErrInvalidValue)
	case !oneOf(status, ModelStatuses):
		return nil, xerrors.Errorf("%w: model status %q", ErrInvalidValue, status)
	}
	m := &DetectionModel{Name: name, Version: version, Status: status}
	if err := s.db.Create(m).Error; err != nil {
		return nil, xerrors.Errorf("add model: %w", err)
	}
	return m, nil
}

func (s *Store) ListModels() ([]DetectionModel, error) {
	var models []DetectionModel
	if err := s.db.Order("id").Find(&models).Error; err != nil {
		return nil, xerrors.Errorf("list models: %w", err)
	}
	return models, nil
}
