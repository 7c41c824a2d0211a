package binaryrepo

import (
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// sanitizeFilename normalizes the name (NFKC) and replaces punctuation,
// control characters, separators and path-sensitive runes with
// underscores, keeping the result safe as both a filesystem name and an
// object key segment.
func sanitizeFilename(name string) string {
	normalized := norm.NFKC.String(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r == '.' || r == '-' || r == '_':
			return r
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return r
		default:
			return '_'
		}
	}, normalized)
}

// uniqueFilename sanitizes the name and appends a freshly generated
// suffix before the extension, guaranteeing the result never collides
// with an earlier save of the same base name.
func uniqueFilename(name string) string {
	sanitized := sanitizeFilename(name)
	ext := path.Ext(sanitized)
	base := strings.TrimSuffix(sanitized, ext)
	return base + "_" + uuid.NewString() + ext
}
