package store

import (
	"time"

	"golang.org/x/xerrors"
	"gorm.io/gorm"
)

// AddAllocation reserves a space for a user.
func (s *Store) AddAllocation(spaceID, userID uint) (*Allocation, error) {
	alloc := &Allocation{SpaceID: spaceID, UserID: userID, Timestamp: time.Now().UTC()}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&Space{}, spaceID).Error; err != nil {
			return notFound(err)
		}
		if err := tx.First(&User{}, userID).Error; err != nil {
			return notFound(err)
		}
		return tx.Create(alloc).Error
	})
	if err != nil {
		return nil, err
	}
	return alloc, nil
}

// UserAllocations returns the reservations of a user with the space details,
// newest first.
func (s *Store) UserAllocations(userID uint) ([]AllocationView, error) {
	var views []AllocationView
	err := s.db.Model(&Allocation{}).
		Select("allocations.id, allocations.space_id, spaces.location, spaces.capacity, allocations.timestamp").
		Joins("JOIN spaces ON spaces.space_id = allocations.space_id").
		Where("allocations.user_id = ?", userID).
		Order("allocations.timestamp DESC, allocations.id DESC").
		Scan(&views).Error
	if err != nil {
		return nil, xerrors.Errorf("user allocations: %w", err)
	}
	return views, nil
}
