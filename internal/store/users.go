package store

import (
	"errors"
	"strings"

	"golang.org/x/xerrors"
	"gorm.io/gorm"

	"github.com/mpromonet/gin-spotdetect/internal/auth"
	"github.com/mpromonet/gin-spotdetect/internal/domain"
)

// CreateUser registers a new account. The password is stored as a bcrypt hash.
func (s *Store) CreateUser(username, password string, role domain.Role) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, xerrors.Errorf("%w: empty username", ErrInvalidValue)
	}
	if !role.Valid() {
		return nil, xerrors.Errorf("%w: role %q", ErrInvalidValue, role)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, xerrors.Errorf("%w: %v", ErrInvalidValue, err)
	}

	user := &User{Username: username, PasswordHash: hash, UserType: role}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&User{}).Where("username = ?", username).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrUserExists
		}
		return tx.Create(user).Error
	})
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return nil, err
		}
		return nil, xerrors.Errorf("create user %s: %w", username, err)
	}
	return user, nil
}

// Authenticate returns the user when the password matches.
func (s *Store) Authenticate(username, password string) (*User, error) {
	var user User
	err := s.db.Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, xerrors.Errorf("authenticate %s: %w", username, err)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

func (s *Store) UserByID(id uint) (*User, error) {
	var user User
	if err := s.db.First(&user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) ListUsers() ([]User, error) {
	var users []User
	if err := s.db.Order("id").Find(&users).Error; err != nil {
		return nil, xerrors.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *Store) SetUserType(id uint, role domain.Role) error {
	if !role.Valid() {
		return xerrors.Errorf("%w: role %q", ErrInvalidValue, role)
	}
	res := s.db.Model(&User{}).Where("id = ?", id).Update("user_type", role)
	if res.Error != nil {
		return xerrors.Errorf("set user type: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// EnsureAdmin creates the bootstrap admin account unless the name is taken.
// It reports whether an account was created.
func (s *Store) EnsureAdmin(username, password string) (bool, error) {
	if username == "" {
		return false, nil
	}
	_, err := s.CreateUser(username, password, domain.RoleAdmin)
	if errors.Is(err, ErrUserExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
