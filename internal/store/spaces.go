package store

import (
	"strings"

	"golang.org/x/xerrors"
)

func (s *Store) AddSpace(location string, capacity int, availability string) (*Space, error) {
	location = strings.TrimSpace(location)
	switch {
	case location == "":
		return nil, xerrors.Errorf("%w: empty location", ErrInvalidValue)
	case capacity < 1:
		return nil, xerrors.Errorf("%w: capacity must be at least 1", ErrInvalidValue)
	case !oneOf(availability, SpaceAvailabilities):
		return nil, xerrors.Errorf("%w: availability %q", ErrInvalidValue, availability)
	}
	space := &Space{Location: location, Capacity: capacity, Availability: availability}
	if err := s.db.Create(space).Error; err != nil {
		return nil, xerrors.Errorf("add space: %w", err)
	}
	return space, nil
}

// ListSpaces returns every space, or only the available ones.
func (s *Store) ListSpaces(availableOnly bool) ([]Space, error) {
	var spaces []Space
	q := s.db.Order("space_id")
	if availableOnly {
		q = q.Where("availability = ?", SpaceAvailable)
	}
	if err := q.Find(&spaces).Error; err != nil {
		return nil, xerrors.Errorf("list spaces: %w", err)
	}
	return spaces, nil
}

func (s *Store) UpdateSpaceAvailability(id uint, availability string) error {
	if !oneOf(availability, SpaceAvailabilities) {
		return xerrors.Errorf("%w: availability %q", ErrInvalidValue, availability)
	}
	res := s.db.Model(&Space{}).Where("space_id = ?", id).Update("availability", availability)
	if res.Error != nil {
		return xerrors.Errorf("update space %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
