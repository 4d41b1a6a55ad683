package source

import (
	"fmt"
	"html"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type rssItem struct {
	title       string
	link        string
	description string
	published   time.Time
}

// rssFeed renders a minimal RSS 2.0 document.
func rssFeed(items ...rssItem) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>test</title>`)
	for _, it := range items {
		b.WriteString("<item>")
		fmt.Fprintf(&b, "<title>%s</title>", html.EscapeString(it.title))
		if it.link != "" {
			fmt.Fprintf(&b, "<link>%s</link>", html.EscapeString(it.link))
		}
		if it.description != "" {
			fmt.Fprintf(&b, "<description><![CDATA[%s]]></description>", it.description)
		}
		if !it.published.IsZero() {
			fmt.Fprintf(&b, "<pubDate>%s</pubDate>", it.published.Format(time.RFC1123Z))
		}
		b.WriteString("</item>")
	}
	b.WriteString("</channel></rss>")
	return b.String()
}

func TestDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.svt.se/nyheter/a", "svt.se"},
		{"https://WWW.DN.SE/a", "dn.se"},
		{"http://m3.idg.se:8080/x", "m3.idg.se"},
		{"  https://example.com  ", "example.com"},
		{"", ""},
		{"not a url", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Domain(tt.in), tt.in)
	}
}
