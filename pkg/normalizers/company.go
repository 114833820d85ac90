package normalizers

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/Gobusters/ectolinq"
)

// companyStopwords are generic corporate, trade and industry terms that carry no identity.
var companyStopwords = map[string]struct{}{
	"the": {}, "and": {}, "of": {}, "ltd": {}, "limited": {}, "inc": {}, "incorporated": {},
	"corp": {}, "corporation": {}, "co": {}, "company": {}, "group": {}, "canada": {},
	"ontario": {}, "construction": {}, "contracting": {}, "contractor": {}, "general": {},
	"mechanical": {}, "electrical": {}, "electric": {}, "plumbing": {}, "heating": {},
	"roofing": {}, "service": {}, "system": {}, "solution": {}, "enterprise": {},
	"builder": {}, "building": {}, "development": {}, "industry": {}, "industrie": {},
	"industrial": {}, "engineering": {}, "restoration": {}, "management": {}, "design": {},
	"home": {}, "holding": {}, "partner": {}, "associate": {}, "consultant": {}, "project": {},
	"property": {}, "ulc": {}, "llp": {}, "lp": {},
}

var (
	operatingAsRe = regexp.MustCompile(`\bo/a\b`)
	careOfRe      = regexp.MustCompile(`\bc/o\b`)
	acronymRe     = regexp.MustCompile(`[A-Z&-]{3,}`)
)

// CompanyName canonicalizes a party name: "Dilfo Mechanical Ltd." becomes "dilfo".
// Tokens are concatenated without separators.
func CompanyName(s string) string {
	s = strings.ToLower(strings.TrimSpace(Transliterate(s)))
	if s == "" {
		return ""
	}

	s = extractOperatingName(s)

	// periods and apostrophes join ("a.b.c." -> "abc", "joe's" -> "joes"), other punctuation splits
	s = strings.NewReplacer(".", "", "'", "").Replace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)

	tokens := strings.Fields(s)
	keepPlurals := ectolinq.Contains(tokens, "s")

	var out strings.Builder
	for _, tok := range tokens {
		if isStopword(tok) {
			continue
		}
		if !keepPlurals {
			tok = singular(tok)
		}
		out.WriteString(tok)
	}

	// a repeated pass sees the result as one token, so it must already be singular and not a stopword
	name := singular(out.String())
	if isStopword(name) {
		return ""
	}
	return name
}

// extractOperatingName keeps the trading name from "x o/a y", "c/o y" and "y for x" forms.
func extractOperatingName(s string) string {
	if loc := operatingAsRe.FindStringIndex(s); loc != nil {
		if rest := strings.TrimSpace(s[loc[1]:]); rest != "" {
			return rest
		}
	}
	if loc := careOfRe.FindStringIndex(s); loc != nil {
		if rest := strings.TrimSpace(s[loc[1]:]); rest != "" {
			return rest
		}
	}
	if i := strings.Index(s, " for "); i > 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func isStopword(tok string) bool {
	if _, ok := companyStopwords[tok]; ok {
		return true
	}
	_, ok := companyStopwords[singular(tok)]
	return ok
}

// singular strips one trailing "s". "s" itself and double-s endings ("ross") are kept so the
// result is stable under repeated normalization.
func singular(tok string) string {
	if len(tok) < 2 || !strings.HasSuffix(tok, "s") || strings.HasSuffix(tok, "ss") {
		return tok
	}
	return tok[:len(tok)-1]
}

// Acronyms returns every run of three or more capitals, '&' or '-' in the original text.
func Acronyms(s string) []string {
	return acronymRe.FindAllString(Transliterate(s), -1)
}

// Initials returns the first letter of every non-stopword token, lowercased.
func Initials(s string) string {
	var out strings.Builder
	for _, tok := range strings.FieldsFunc(strings.ToLower(Transliterate(s)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if isStopword(tok) {
			continue
		}
		out.WriteRune([]rune(tok)[0])
	}
	return out.String()
}
