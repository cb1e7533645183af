package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Category selects which release-type variant of the listing endpoint is queried.
type Category string

const (
	CategoryAlbum       Category = "album"
	CategorySingle      Category = "single"
	CategoryCompilation Category = "compilation"
	CategoryAppearsOn   Category = "appears_on"
)

var (
	// ErrUnknownCategory is returned when a category name is not recognized.
	ErrUnknownCategory = errors.New("unknown release category")

	// ErrNoCategories is returned when a run requests no categories.
	ErrNoCategories = errors.New("no release categories requested")

	// ErrDuplicateCategory is returned when a category is listed twice.
	ErrDuplicateCategory = errors.New("duplicate release category")
)

// AllCategories returns every known category in canonical order.
func AllCategories() []Category {
	return []Category{CategoryAlbum, CategorySingle, CategoryCompilation, CategoryAppearsOn}
}

// DefaultCategories returns the categories queried when none are configured.
func DefaultCategories() []Category {
	return []Category{CategoryAlbum, CategorySingle}
}

// ParseCategory converts a user-facing name into a Category.
// Both "appears-on" and "appears_on" are accepted.
func ParseCategory(s string) (Category, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for _, c := range AllCategories() {
		if string(c) == normalized {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// ParseCategories parses and validates a category list.
func ParseCategories(names []string) ([]Category, error) {
	out := make([]Category, 0, len(names))
	for _, name := range names {
		c, err := ParseCategory(name)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := ValidateCategories(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateCategories rejects empty, unknown or repeated categories.
func ValidateCategories(categories []Category) error {
	if len(categories) == 0 {
		return ErrNoCategories
	}
	seen := make(map[Category]bool, len(categories))
	for _, c := range categories {
		if !c.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownCategory, string(c))
		}
		if seen[c] {
			return fmt.Errorf("%w: %s", ErrDuplicateCategory, c)
		}
		seen[c] = true
	}
	return nil
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryAlbum, CategorySingle, CategoryCompilation, CategoryAppearsOn:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (c Category) String() string {
	return string(c)
}
