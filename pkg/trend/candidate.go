package trend

import (
	"fmt"
	"sort"
	"strings"
)

// Candidate is a normalized, scored topic eligible for selection. Two
// candidates with the same DedupKey are the same topic.
type Candidate struct {
	Title        string    `json:"title"`
	DedupKey     string    `json:"dedup_key"`
	CategorySlug string    `json:"category_slug"`
	CategoryName string    `json:"category_name"`
	Origin       string    `json:"origin,omitempty"`
	Score        int       `json:"score"`
	Breakdown    Breakdown `json:"breakdown"`
}

// Breakdown maps a scoring signal to its signed contribution.
type Breakdown map[string]int

// Total sums all contributions.
func (b Breakdown) Total() int {
	total := 0
	for _, v := range b {
		total += v
	}
	return total
}

// String renders the breakdown as "{name:+n, name:-n}" with names sorted.
func (b Breakdown) String() string {
	if len(b) == 0 {
		return "{}"
	}
	names := make([]string, 0, len(b))
	for k := range b {
		names = append(names, k)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, fmt.Sprintf("%s:%+d", k, b[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
