// Package normalizers turns noisy free-text project and certificate fields into comparable canonical strings.
package normalizers

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("remove_whitespace", RemoveWhitespace)
	Register("alphanumeric", Alphanumeric)
	Register("transliterate", Transliterate)
	Register("job_number", JobNumber)
	Register("date", PublishDate)
	Register("city", City)
	Register("company", CompanyName)
	Register("title", Title)
	Register("street_number", StreetNumber)
	Register("street_name", StreetName)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value. Unknown names leave the value untouched.
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// CollapseWhitespace folds whitespace runs into one space and trims the ends.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// RemoveWhitespace removes all whitespace characters
func RemoveWhitespace(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Alphanumeric keeps only alphanumeric characters
func Alphanumeric(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Transliterate strips combining marks so accented letters compare as their ASCII base.
// Returns "" if the input cannot be transformed.
func Transliterate(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return ""
	}
	return out
}

// JobNumber drops separators and keeps the alphanumeric core of a job identifier.
func JobNumber(s string) string {
	return strings.ToLower(Alphanumeric(Transliterate(s)))
}

var dateRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// PublishDate returns the first YYYY-MM-DD substring, or "".
func PublishDate(s string) string {
	return dateRe.FindString(s)
}

var titlePunctuation = strings.NewReplacer(":", "", "-", "", ";", "", ".", "", "'", "")

// Title lowercases and removes whitespace and the separators : - ; . '
func Title(s string) string {
	return RemoveWhitespace(titlePunctuation.Replace(strings.ToLower(Transliterate(s))))
}
