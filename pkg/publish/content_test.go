package publish

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/elonfeng/trendkoll/pkg/source"
)

func TestExcerpt(t *testing.T) {
	summary := "Enkelt förklarat: En storm drar in över Norrland. Detta har hänt: SMHI varnar.\n- Tåg ställs in\n\nAffiliate-idéer:\n- Pannlampa"
	assert.Equal(t, "Enkelt förklarat: En storm drar in över Norrland", Excerpt(summary, ExcerptChars))

	assert.Equal(t, "Riktig mening", Excerpt("- punkt först. Riktig mening. Mer", 160))
	assert.Equal(t, "Riktig mening", Excerpt("Affiliate-idéer: köp. Riktig mening", 160))
	assert.Equal(t, "- bara punkter", Excerpt("- bara punkter", 160))
	assert.Equal(t, "", Excerpt("", 160))
}

func TestExcerptCutsAtWord(t *testing.T) {
	long := strings.Repeat("ordet ", 40)
	got := Excerpt(long, 20)
	assert.Equal(t, "ordet ordet ordet…", got)

	// Rune-based, not byte-based.
	got = Excerpt("åäö åäö åäö åäö", 9)
	assert.Equal(t, "åäö åäö…", got)
}

func TestTextToHTML(t *testing.T) {
	in := "Enkelt förklarat: det blåser.\n\n- Tåg <ställs> in\n- Skolor stänger\nVad händer härnäst: mer blåst."
	want := "<p>Enkelt förklarat: det blåser.</p>\n" +
		"<ul><li>Tåg &lt;ställs&gt; in</li><li>Skolor stänger</li></ul>\n" +
		"<p>Vad händer härnäst: mer blåst.</p>"
	assert.Equal(t, want, TextToHTML(in))
	assert.Equal(t, "<p></p>", TextToHTML("  \n "))
}

func TestSourcesHTML(t *testing.T) {
	one := SourcesHTML([]source.Evidence{{Source: "svt.se", Link: "https://www.svt.se/a"}})
	assert.Equal(t, "<h3>Källa</h3>\n<ul><li><a href='https://www.svt.se/a' target='_blank' rel='nofollow noopener'>svt.se</a></li></ul>", one)

	two := SourcesHTML([]source.Evidence{
		{Source: "SVT Nyheter", Link: "https://www.svt.se/a"},
		{Source: "", Link: "https://dn.se/b"},
	})
	assert.True(t, strings.HasPrefix(two, "<h3>Källor</h3>"))
	assert.Contains(t, two, ">SVT Nyheter (svt.se)</a>")
	assert.Contains(t, two, ">dn.se</a>")

	none := SourcesHTML(nil)
	assert.Contains(t, none, "Inga källor tillgängliga just nu")
}

func TestBody(t *testing.T) {
	published := time.Date(2025, 10, 3, 14, 5, 0, 0, time.FixedZone("CEST", 2*60*60))
	body := Body("Enkelt förklarat: hej.", []source.Evidence{{Source: "SVT", Link: "https://svt.se/a"}}, published)

	assert.True(t, strings.HasPrefix(body, "<p><em>Publicerad: 2025-10-03 12:05 UTC</em></p>"))
	assert.Contains(t, body, "<div class='tk-summary'>\n<p>Enkelt förklarat: hej.</p>\n</div>")
	assert.Contains(t, body, "<h3>Källa</h3>")
}

func TestUpdateHTML(t *testing.T) {
	got := UpdateHTML("Stormen Ingrid når land", []source.Evidence{{Source: "SVT"}, {Source: "SMHI"}})
	assert.Equal(t, "<p>Stormen Ingrid når land</p>", got)
}

func TestTags(t *testing.T) {
	now := time.Date(2025, 10, 3, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, []string{"idag", "svenska-trender", "2025-10-03"}, Tags(now))
}
