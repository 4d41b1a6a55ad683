package publish

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/elonfeng/trendkoll/pkg/source"
)

// Excerpt lengths.
const (
	ExcerptChars       = 160
	UpdateExcerptChars = 220
)

// Marker that opens the affiliate section of a summary.
const affiliateMarker = "affiliate-idéer"

var sentenceBreak = regexp.MustCompile(`[.!?]\s+`)

// Excerpt returns the first sentence of text that is neither a bullet nor
// the affiliate heading, cut at a word boundary to maxChars runes with an
// ellipsis.
func Excerpt(text string, maxChars int) string {
	if text == "" {
		return ""
	}
	var parts []string
	for _, p := range sentenceBreak.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}

	excerpt := text
	if len(parts) > 0 {
		excerpt = parts[0]
		for _, p := range parts {
			if !strings.HasPrefix(p, "-") && !strings.HasPrefix(strings.ToLower(p), affiliateMarker) {
				excerpt = p
				break
			}
		}
	}

	if utf8.RuneCountInString(excerpt) <= maxChars {
		return excerpt
	}
	cut := string([]rune(excerpt)[:maxChars])
	if i := strings.LastIndex(cut, " "); i >= 0 {
		cut = cut[:i]
	}
	return cut + "…"
}

// TextToHTML renders plain text as paragraphs; runs of lines starting with
// "- " become a bullet list.
func TextToHTML(text string) string {
	var parts, bullets []string
	flush := func() {
		if len(bullets) == 0 {
			return
		}
		var b strings.Builder
		b.WriteString("<ul>")
		for _, item := range bullets {
			b.WriteString("<li>" + html.EscapeString(item) + "</li>")
		}
		b.WriteString("</ul>")
		parts = append(parts, b.String())
		bullets = nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "- ") {
			bullets = append(bullets, strings.TrimSpace(line[2:]))
			continue
		}
		flush()
		parts = append(parts, "<p>"+html.EscapeString(line)+"</p>")
	}
	flush()

	if len(parts) == 0 {
		return "<p></p>"
	}
	return strings.Join(parts, "\n")
}

// SourcesHTML renders the source list of a post.
func SourcesHTML(evidence []source.Evidence) string {
	var items strings.Builder
	for _, e := range evidence {
		domain := source.Domain(e.Link)
		label := e.Source
		if label == "" {
			label = domain
		}
		if label == "" {
			label = "Källa"
		}
		if domain != "" && !strings.Contains(strings.ToLower(domain), strings.ToLower(label)) {
			label = fmt.Sprintf("%s (%s)", label, domain)
		}
		fmt.Fprintf(&items, "<li><a href='%s' target='_blank' rel='nofollow noopener'>%s</a></li>",
			html.EscapeString(e.Link), html.EscapeString(label))
	}

	header := "<h3>Källor</h3>"
	if len(evidence) == 1 {
		header = "<h3>Källa</h3>"
	}
	list := items.String()
	if list == "" {
		list = "<li>(Inga källor tillgängliga just nu)</li>"
	}
	return header + "\n<ul>" + list + "</ul>"
}

// Body assembles the post body from the summary text and its sources.
func Body(summary string, evidence []source.Evidence, published time.Time) string {
	return fmt.Sprintf("<p><em>Publicerad: %s UTC</em></p>\n<div class='tk-summary'>\n%s\n</div>\n%s",
		published.UTC().Format("2006-01-02 15:04"),
		TextToHTML(summary),
		SourcesHTML(evidence),
	)
}

// UpdateHTML is the short update appended to an existing event post.
func UpdateHTML(title string, evidence []source.Evidence) string {
	names := make([]string, 0, len(evidence))
	for _, e := range evidence {
		names = append(names, e.Source)
	}
	return TextToHTML(Excerpt(title+". "+strings.Join(names, ", "), UpdateExcerptChars))
}

// Tags are the topics attached to every post.
func Tags(now time.Time) []string {
	return []string{"idag", "svenska-trender", now.UTC().Format("2006-01-02")}
}
