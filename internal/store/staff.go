package store

import (
	"errors"
	"strings"

	"golang.org/x/xerrors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mpromonet/gin-spotdetect/internal/domain"
)

// AddStaff links a staff record to an existing account and switches that
// account to the staff role.
func (s *Store) AddStaff(userID uint, name, role, contact string) (*Staff, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, xerrors.Errorf("%w: empty staff name", ErrInvalidValue)
	}
	staff := &Staff{UserID: userID, Name: name, Role: strings.TrimSpace(role), Contact: strings.TrimSpace(contact)}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var user User
		if err := tx.First(&user, userID).Error; err != nil {
			return notFound(err)
		}
		if user.UserType == domain.RoleAdmin {
			return xerrors.Errorf("%w: admin accounts cannot be staff", ErrInvalidValue)
		}
		var n int64
		if err := tx.Model(&Staff{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return xerrors.Errorf("%w: user %d is already staff", ErrInvalidValue, userID)
		}
		if err := tx.Create(staff).Error; err != nil {
			return err
		}
		return tx.Model(&User{}).Where("id = ?", userID).Update("user_type", domain.RoleStaff).Error
	})
	if err != nil {
		return nil, err
	}
	return staff, nil
}

func (s *Store) ListStaff() ([]Staff, error) {
	var staff []Staff
	if err := s.db.Order("staff_id").Find(&staff).Error; err != nil {
		return nil, xerrors.Errorf("list staff: %w", err)
	}
	return staff, nil
}

func (s *Store) StaffByUserID(userID uint) (*Staff, error) {
	var staff Staff
	if err := s.db.Where("user_id = ?", userID).First(&staff).Error; err != nil {
		return nil, notFound(err)
	}
	return &staff, nil
}

// AssignGateToStaff is idempotent: assigning the same gate twice is a no-op.
func (s *Store) AssignGateToStaff(staffID, gateID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&Staff{}, staffID).Error; err != nil {
			return notFound(err)
		}
		if err := tx.First(&Gate{}, gateID).Error; err != nil {
			return notFound(err)
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&StaffGate{StaffID: staffID, GateID: gateID}).Error
	})
}

// StaffGates lists the gates a staff member monitors.
func (s *Store) StaffGates(staffID uint) ([]Gate, error) {
	var gates []Gate
	err := s.db.
		Joins("JOIN staff_gates ON staff_gates.gate_id = gates.gate_id").
		Where("staff_gates.staff_id = ?", staffID).
		Order("gates.gate_id").
		Find(&gates).Error
	if err != nil {
		return nil, xerrors.Errorf("staff gates: %w", err)
	}
	return gates, nil
}

// StaffMonitorsGate reports whether gateID is assigned to staffID.
func (s *Store) StaffMonitorsGate(staffID, gateID uint) (bool, error) {
	var link StaffGate
	err := s.db.Where("staff_id = ? AND gate_id = ?", staffID, gateID).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, xerrors.Errorf("staff gate lookup: %w", err)
	}
	return true, nil
}
