package service

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// SlugAlphabet URL-безопасный алфавит nanoid
	SlugAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz_-"
	// MinSlugLength держит вероятность коллизий пренебрежимо малой
	MinSlugLength = 7

	slugReplacement = '-'
)

// SlugGenerator выдает кандидатов в слаги. Уникальность не проверяет
type SlugGenerator struct {
	length int
}

func NewSlugGenerator(length int) *SlugGenerator {
	if length < MinSlugLength {
		length = MinSlugLength
	}
	return &SlugGenerator{length: length}
}

// Allocate возвращает нормализованный запрошенный слаг или случайный, если запрошен пустой
func (g *SlugGenerator) Allocate(requested string) (string, error) {
	if strings.TrimSpace(requested) != "" {
		return NormalizeSlug(requested), nil
	}
	return g.Generate()
}

// Generate генерирует случайный слаг из SlugAlphabet
func (g *SlugGenerator) Generate() (string, error) {
	slug, err := gonanoid.Generate(SlugAlphabet, g.length)
	if err != nil {
		return "", fmt.Errorf("failed to generate slug: %w", err)
	}
	return slug, nil
}

// NormalizeSlug обрезает пробелы и заменяет символы вне [A-Za-z0-9_-] на '-'
func NormalizeSlug(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return slugReplacement
		}
	}, s)
}
