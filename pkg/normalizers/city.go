package normalizers

import (
	"regexp"
	"strings"
)

var (
	cityAdminRe      = regexp.MustCompile(`\b(city|county|municipality|district|ward|township|region)\b`)
	cityOfTheRe      = regexp.MustCompile(`\bof the\b|\bof\b`)
	citySaintRe      = regexp.MustCompile(`\b(saint|ste|st)\b\.?`)
	cityProvinceRe   = regexp.MustCompile(`\s+(on|ontario)$`)
	cityPossessiveRe = regexp.MustCompile(`'s$`)
)

// City canonicalizes a municipality name: "City of Ottawa, ON" and "ottawa" both become "ottawa".
func City(s string) string {
	s = strings.ToLower(strings.TrimSpace(Transliterate(s)))
	if s == "" {
		return ""
	}

	s = strings.ReplaceAll(s, "ottawa-carleton", "ottawa")

	if i := strings.Index(s, ","); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, " - "); i >= 0 {
		s = s[:i]
	}

	s = cityAdminRe.ReplaceAllString(s, " ")
	s = cityOfTheRe.ReplaceAllString(s, " ")
	s = citySaintRe.ReplaceAllString(s, "st")
	s = CollapseWhitespace(s)
	s = cityProvinceRe.ReplaceAllString(s, "")
	s = cityPossessiveRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "/", "&")

	return CollapseWhitespace(s)
}
