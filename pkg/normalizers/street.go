package normalizers

import (
	"regexp"
	"strings"
)

var (
	streetNumberRe = regexp.MustCompile(`(\d+)\s+(\w[\w-]*)`)
	unitMarkerRe   = regexp.MustCompile(`^(unit|suite|apt|apartment)\b|^ste\b\.?\s*\d`)
	streetSaintRe  = regexp.MustCompile(`^(saint|ste|st)\b\.?\s*`)
	streetWordRe   = regexp.MustCompile(`^[a-z]+(-[a-z]+)*`)
)

// Street splits an address into its civic number and the first word of the street name.
// "8-1230 marenger street, apt. 8," yields ("1230", "marenger").
func Street(address string) (number, name string) {
	s := strings.ToLower(Transliterate(address))
	matches := streetNumberRe.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return "", ""
	}

	last := matches[len(matches)-1]
	number = s[last[2]:last[3]]
	rest := strings.TrimSpace(s[last[3]:])

	if unitMarkerRe.MatchString(rest) {
		comma := strings.Index(rest, ",")
		if comma < 0 {
			return number, ""
		}
		rest = strings.TrimSpace(rest[comma+1:])
	}

	rest = streetSaintRe.ReplaceAllString(rest, "")
	return number, streetWordRe.FindString(rest)
}

// StreetNumber returns the civic number of an address.
func StreetNumber(address string) string {
	number, _ := Street(address)
	return number
}

// StreetName returns the first word of the street name of an address.
func StreetName(address string) string {
	_, name := Street(address)
	return name
}
