package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultBcryptCost стандартная сложность bcrypt
	DefaultBcryptCost = 12

	minPasswordLength = 6
	maxPasswordLength = 72 // bcrypt игнорирует байты после 72-го
)

var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrPasswordLength  = errors.New("password must be between 6 and 72 characters long")
)

// PasswordService сервис для работы с паролями
type PasswordService struct {
	cost int
}

// NewPasswordService создает сервис с заданной сложностью; 0 означает DefaultBcryptCost
func NewPasswordService(cost int) *PasswordService {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	cost = min(max(cost, bcrypt.MinCost), bcrypt.MaxCost)
	return &PasswordService{cost: cost}
}

// HashPassword хеширует пароль с использованием bcrypt
func (s *PasswordService) HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", ErrInvalidPassword
	}

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", err
	}

	return string(hashedBytes), nil
}

// VerifyPassword проверяет соответствие пароля и хеша
func (s *PasswordService) VerifyPassword(hashedPassword, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)); err != nil {
		return ErrInvalidPassword
	}
	return nil
}

// IsValidPassword проверяет длину пароля
func IsValidPassword(password string) error {
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return ErrPasswordLength
	}
	return nil
}
