package matching

import "strings"

var multiPhaseKeywords = []string{"campus", "hospital", "university", "college"}

// IsMultiPhaseProned reports whether a project is likely built in phases, each of which can
// post its own certificate.
func IsMultiPhaseProned(city, title string) bool {
	text := strings.ToLower(city + " " + title)
	for _, keyword := range multiPhaseKeywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
