package trend

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer turns raw source titles into display titles.
type Normalizer struct {
	prefix        *regexp.Regexp
	nonArticle    []*regexp.Regexp
	suffix        *regexp.Regexp
	substitutions []compiledSubstitution
	localize      map[string]bool
}

type compiledSubstitution struct {
	re      *regexp.Regexp
	replace string
}

// NewNormalizer compiles the normalization tables.
func NewNormalizer(t Tables) (*Normalizer, error) {
	n := &Normalizer{localize: toSet(t.LocalizeCategories)}

	if len(t.BoilerplatePrefixes) > 0 {
		re, err := regexp.Compile(`(?i)^(?:` + strings.Join(t.BoilerplatePrefixes, "|") + `)\s*`)
		if err != nil {
			return nil, fmt.Errorf("compile boilerplate prefixes: %w", err)
		}
		n.prefix = re
	}

	for _, p := range t.NonArticlePatterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("compile non-article pattern %q: %w", p, err)
		}
		n.nonArticle = append(n.nonArticle, re)
	}

	if t.SourceSuffixPattern != "" {
		re, err := regexp.Compile(t.SourceSuffixPattern)
		if err != nil {
			return nil, fmt.Errorf("compile source suffix: %w", err)
		}
		n.suffix = re
	}

	for _, sub := range t.TermSubstitutions {
		// \b is ASCII-only in RE2, which is fine for the English source terms.
		re, err := regexp.Compile(`(?i)\b(?:` + sub.Pattern + `)\b`)
		if err != nil {
			return nil, fmt.Errorf("compile substitution %q: %w", sub.Pattern, err)
		}
		n.substitutions = append(n.substitutions, compiledSubstitution{re: re, replace: sub.Replace})
	}
	return n, nil
}

// NormalizeTitle strips boilerplate prefixes and a trailing source suffix.
// It returns "" for titles that are not articles (TV promos and the like),
// which callers treat as a discard.
func (n *Normalizer) NormalizeTitle(raw string) string {
	t := strings.TrimSpace(raw)
	if t == "" {
		return ""
	}
	if n.prefix != nil {
		t = n.prefix.ReplaceAllString(t, "")
	}
	for _, re := range n.nonArticle {
		if re.MatchString(t) {
			return ""
		}
	}
	if n.suffix != nil {
		t = n.suffix.ReplaceAllString(t, "")
	}
	return strings.TrimSpace(t)
}

// DomainTermSubstitute rewrites common English product-news terms into the
// locale language and re-normalizes the result.
func (n *Normalizer) DomainTermSubstitute(text string) string {
	for _, sub := range n.substitutions {
		text = sub.re.ReplaceAllLiteralString(text, sub.replace)
	}
	return n.NormalizeTitle(text)
}

// Localize applies DomainTermSubstitute when slug is a localized category
// and returns title unchanged otherwise.
func (n *Normalizer) Localize(slug, title string) string {
	if !n.localize[slug] {
		return title
	}
	return n.DomainTermSubstitute(title)
}

var punctuationReplacer = strings.NewReplacer(
	"’", "'", "‘", "'",
	"“", `"`, "”", `"`,
	"–", "-", "—", "-",
)

// CanonicalKey folds text into a dedup key: lowercase, diacritics removed,
// only letters, digits and single spaces kept. Titles that differ only in
// case, accents, punctuation or spacing share a key.
func CanonicalKey(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = punctuationReplacer.Replace(s)

	fold := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	if folded, _, err := transform.String(fold, s); err == nil {
		s = folded
	}

	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			pendingSpace = true
		}
	}
	return b.String()
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
