package auth

import (
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/xerrors"
)

const MinPasswordLength = 4

var ErrWeakPassword = xerrors.Errorf("password must be at least %d characters", MinPasswordLength)

func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", xerrors.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
