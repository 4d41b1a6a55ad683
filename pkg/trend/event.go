package trend

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Event kinds.
const (
	EventWeather = "weather"
	EventSport   = "sport"
	EventPolicy  = "policy"
)

// EventKey identifies a recurring story (a named storm, a club, a policy
// debate) so follow-up articles can update one post instead of spawning new
// ones.
type EventKey struct {
	Kind string
	Name string
}

func (k EventKey) String() string {
	return k.Kind + ":" + k.Name
}

// Canonicalizer maps titles to event keys.
type Canonicalizer struct {
	storm  *regexp.Regexp
	clubs  []string
	policy []PolicyTopic
}

// NewCanonicalizer compiles the event tables.
func NewCanonicalizer(t Tables) (*Canonicalizer, error) {
	c := &Canonicalizer{
		clubs: lowerAll(t.Clubs),
	}
	for _, p := range t.PolicyTopics {
		c.policy = append(c.policy, PolicyTopic{Keyword: strings.ToLower(p.Keyword), Slug: p.Slug})
	}

	if len(t.StormWords) > 0 {
		words := lowerAll(t.StormWords)
		// Longest first: alternation is leftmost-first, so "orkanen" must win over "orkan".
		sort.SliceStable(words, func(i, j int) bool { return len(words[i]) > len(words[j]) })
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		re, err := regexp.Compile(`(?:^|[^\p{L}])(?:` + strings.Join(words, "|") + `)\s+(\p{L}+)`)
		if err != nil {
			return nil, fmt.Errorf("compile storm pattern: %w", err)
		}
		c.storm = re
	}
	return c, nil
}

// EventKey returns the event a title belongs to. Storm names take
// precedence over clubs, and clubs over policy topics.
func (c *Canonicalizer) EventKey(title string) (EventKey, bool) {
	lower := strings.ToLower(title)

	if c.storm != nil {
		if m := c.storm.FindStringSubmatch(lower); m != nil {
			return EventKey{Kind: EventWeather, Name: m[1]}, true
		}
	}
	for _, club := range c.clubs {
		if club != "" && strings.Contains(lower, club) {
			return EventKey{Kind: EventSport, Name: club}, true
		}
	}
	for _, p := range c.policy {
		if p.Keyword != "" && strings.Contains(lower, p.Keyword) {
			return EventKey{Kind: EventPolicy, Name: p.Slug}, true
		}
	}
	return EventKey{}, false
}
