package shareport

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// ValidateSlug reports whether s is a usable batch identifier: non-empty,
// URL-safe (lowercase letters, digits, hyphens), no leading or trailing
// hyphen.
func ValidateSlug(s string) error {
	if s == "" || len(s) > 128 {
		return ErrInvalidSlug
	}
	if strings.HasPrefix(s, "-") || strings.HasSuffix(s, "-") {
		return ErrInvalidSlug
	}
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' {
			continue
		}
		return ErrInvalidSlug
	}
	return nil
}

// GenerateSlug derives a URL-safe slug from a human title, appending a
// short random suffix so two batches with the same title never collide.
func GenerateSlug(title string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) && r < 128 || unicode.IsDigit(r) && r < 128:
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	base := strings.Trim(b.String(), "-")
	suffix := uuid.New().String()[:8]
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}
