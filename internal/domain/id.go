package domain

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const maxSlugLen = 40

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases name and collapses everything that is not a letter or
// digit into single dashes.
func Slugify(name string) string {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(name), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	if slug == "" {
		slug = "schedule"
	}
	return slug
}

// NewScheduleID returns "<slug>-<8 hex chars>"
func NewScheduleID(name string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return Slugify(name) + "-" + suffix
}
