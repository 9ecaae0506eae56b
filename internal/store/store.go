// Package store persists users, spaces, gates, staff, allocations, model
// registrations and detection history in SQLite through gorm.
package store

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"golang.org/x/xerrors"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUserExists         = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidValue       = errors.New("invalid value")
)

type Store struct {
	db *gorm.DB
}

// Open creates the database file if needed and migrates every table.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, xerrors.Errorf("create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on&_busy_timeout=5000"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, xerrors.Errorf("open %s: %w", path, err)
	}

	if err := db.AutoMigrate(
		&User{},
		&Space{},
		&Gate{},
		&Staff{},
		&StaffGate{},
		&Allocation{},
		&DetectionModel{},
		&Spot{},
	); err != nil {
		return nil, xerrors.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
