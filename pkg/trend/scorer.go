package trend

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/elonfeng/trendkoll/pkg/source"
)

// Signal names used in a Breakdown.
const (
	SignalLocaleLanguage = "locale-language"
	SignalTrustedDomain  = "trusted-domain"
	SignalForeignDomain  = "foreign-domain"
	SignalLocalePlace    = "locale-place"
	SignalSportKeyword   = "sport-keyword"
	SignalLaunchKeyword  = "launch-keyword"
	SignalForeignFocus   = "foreign-focus"
	SignalTooShort       = "too-short"
	SignalTooLong        = "too-long"
	SignalLengthOK       = "length-ok"
)

// Scorer rates how relevant a title is to the locale audience. Scores are
// small signed integers; categories compare them against a threshold.
type Scorer struct {
	letters       string
	localeWords   map[string]bool
	localeTLD     string
	trusted       []string
	neutralTLDs   map[string]bool
	places        []string
	sportCats     map[string]bool
	sportWords    []string
	launchCats    map[string]bool
	launchWords   map[string]bool
	foreignPlaces map[string]bool
	minLen        int
	maxLen        int
}

// NewScorer creates a scorer from the heuristic tables.
func NewScorer(t Tables) *Scorer {
	return &Scorer{
		letters:       t.LocaleLetters,
		localeWords:   toSet(lowerAll(t.LocaleWords)),
		localeTLD:     strings.TrimPrefix(strings.ToLower(t.LocaleTLD), "."),
		trusted:       lowerAll(t.TrustedDomains),
		neutralTLDs:   toSet(lowerAll(t.NeutralTLDs)),
		places:        lowerAll(t.PlaceWords),
		sportCats:     toSet(t.SportCategories),
		sportWords:    lowerAll(t.SportWords),
		launchCats:    toSet(t.LaunchCategories),
		launchWords:   toSet(lowerAll(t.LaunchWords)),
		foreignPlaces: toSet(t.ForeignPlaces),
		minLen:        t.MinTitleLen,
		maxLen:        t.MaxTitleLen,
	}
}

// Score computes the relevance of title for the given category. originURL
// may be empty. The returned breakdown sums to the score.
func (s *Scorer) Score(title, categorySlug, originURL string) (int, Breakdown) {
	b := Breakdown{}
	lower := strings.ToLower(title)
	words := tokenize(title)

	if s.localeLanguage(title, words) {
		b[SignalLocaleLanguage] = 3
	}

	if domain := source.Domain(originURL); domain != "" {
		switch {
		case s.trustedDomain(domain):
			b[SignalTrustedDomain] = 3
		case !s.neutralTLDs[tld(domain)]:
			b[SignalForeignDomain] = -1
		}
	}

	hasPlace := containsAny(lower, s.places)
	if hasPlace {
		b[SignalLocalePlace] = 2
	}

	if s.sportCats[categorySlug] && containsAny(lower, s.sportWords) {
		b[SignalSportKeyword] = 2
	}
	if s.launchCats[categorySlug] && s.anyWord(words, s.launchWords, true) {
		b[SignalLaunchKeyword] = 2
	}

	if !hasPlace && s.anyWord(words, s.foreignPlaces, false) {
		b[SignalForeignFocus] = -2
	}

	n := utf8.RuneCountInString(title)
	switch {
	case n < s.minLen:
		b[SignalTooShort] = -1
	case s.maxLen > 0 && n > s.maxLen:
		b[SignalTooLong] = -1
	default:
		b[SignalLengthOK] = 1
	}

	return b.Total(), b
}

func (s *Scorer) localeLanguage(title string, words []string) bool {
	if s.letters != "" && strings.ContainsAny(title, s.letters) {
		return true
	}
	return s.anyWord(words, s.localeWords, true)
}

func (s *Scorer) trustedDomain(domain string) bool {
	if s.localeTLD != "" && strings.HasSuffix(domain, "."+s.localeTLD) {
		return true
	}
	for _, d := range s.trusted {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

func (s *Scorer) anyWord(words []string, set map[string]bool, fold bool) bool {
	for _, w := range words {
		if fold {
			w = strings.ToLower(w)
		}
		if set[w] {
			return true
		}
	}
	return false
}

// tokenize splits on anything that is not a letter or digit. Go's \b only
// understands ASCII, so whole-word matching of å/ä/ö words goes through here.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func tld(domain string) string {
	if i := strings.LastIndex(domain, "."); i >= 0 {
		return domain[i+1:]
	}
	return domain
}

func lowerAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}
