package metadata

import (
	"regexp"
	"strings"
	"unicode"
)

// Patterns stripped from titles before free-text provider search.
var titleCleanupPatterns = []*regexp.Regexp{
	// Featuring annotations
	regexp.MustCompile(`(?i)\s*[\(\[]\s*(?:feat\.?|ft\.?|featuring)\s+[^\)\]]+[\)\]]`),

	// Edition/version suffixes
	regexp.MustCompile(`(?i)\s*[\(\[]\s*remaster(?:ed)?(?:\s+\d{4})?\s*[\)\]]`),
	regexp.MustCompile(`(?i)\s*[\(\[]\s*radio\s+edit\s*[\)\]]`),
	regexp.MustCompile(`(?i)\s*[\(\[]\s*single\s+version\s*[\)\]]`),
	regexp.MustCompile(`(?i)\s*[\(\[]\s*album\s+version\s*[\)\]]`),
	regexp.MustCompile(`(?i)\s*[\(\[]\s*deluxe(?:\s+edition)?\s*[\)\]]`),

	// Trailing dash suffixes: "Song - Remastered 2011", "Song - Radio Edit"
	regexp.MustCompile(`(?i)\s*-\s*remaster(?:ed)?(?:\s+\d{4})?\s*$`),
	regexp.MustCompile(`(?i)\s*-\s*radio\s+edit\s*$`),
	regexp.MustCompile(`(?i)\s*-\s*single\s+version\s*$`),
}

// CleanTitle strips featuring annotations and edition suffixes so that
// free-text search hits the base recording rather than a specific cut.
func CleanTitle(title string) string {
	title = strings.TrimSpace(title)
	for _, p := range titleCleanupPatterns {
		title = p.ReplaceAllString(title, "")
	}
	return strings.TrimSpace(title)
}

// SearchQuery builds the "{artist} {cleaned title}" free-text query
// used by provider fuzzy search.
func SearchQuery(t Track) string {
	return strings.TrimSpace(t.Artist + " " + CleanTitle(t.Name))
}

// Normalize lowercases and strips all non-alphanumeric runes.
// Comparisons on the result tolerate punctuation and casing noise.
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ArtistsMatch reports whether two artist strings name the same artist,
// after normalization, using substring containment in either direction.
// Very short normalized names (under 3 runes) must match exactly, so
// one-letter artists do not swallow everything containing that letter.
func ArtistsMatch(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if len([]rune(na)) < 3 || len([]rune(nb)) < 3 {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

// TitlesOverlap reports whether one normalized title contains the other.
func TitlesOverlap(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}
