package review

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases and hyphenates a title.
func Slugify(title string) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = nonAlphanumeric.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// ResolveSlug probes for collisions and appends -1, -2, ... until the slug
// is unique. Existing records are never overwritten.
func ResolveSlug(ctx context.Context, exists func(ctx context.Context, slug string) (bool, error), title string) (string, error) {
	base := Slugify(title)
	if base == "" {
		base = "untitled"
	}

	slug := base
	for i := 1; ; i++ {
		taken, err := exists(ctx, slug)
		if err != nil {
			return "", fmt.Errorf("probe slug %q: %w", slug, err)
		}
		if !taken {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}
