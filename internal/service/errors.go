package service

import (
	"QRLinks-Backend/internal/repository"
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrSlugConflict     = errors.New("slug already in use")
	ErrNotFound         = errors.New("link not found")
	ErrForbidden        = errors.New("forbidden")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError описывает отсутствующее или некорректное поле запроса
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// storeErr переводит ошибки репозитория в ошибки сервиса
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrSlugNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrSlugExists):
		return ErrSlugConflict
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}
