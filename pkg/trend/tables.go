package trend

// Substitution replaces a foreign term with its localized equivalent.
// Pattern is a regular expression matched as a whole word, case-insensitively.
type Substitution struct {
	Pattern string `yaml:"pattern"`
	Replace string `yaml:"replace"`
}

// PolicyTopic maps a single-topic keyword to an event slug.
type PolicyTopic struct {
	Keyword string `yaml:"keyword"`
	Slug    string `yaml:"slug"`
}

// Tables holds the heuristic word lists behind normalization, scoring and
// event detection. They are tuned by trial and swapped per locale, so
// nothing in this package hard-codes them.
type Tables struct {
	// Normalization.
	BoilerplatePrefixes []string       `yaml:"boilerplate_prefixes"`
	NonArticlePatterns  []string       `yaml:"non_article_patterns"`
	SourceSuffixPattern string         `yaml:"source_suffix_pattern"`
	TermSubstitutions   []Substitution `yaml:"term_substitutions"`
	LocalizeCategories  []string       `yaml:"localize_categories"`

	// Scoring.
	LocaleLetters    string   `yaml:"locale_letters"`
	LocaleWords      []string `yaml:"locale_words"`
	LocaleTLD        string   `yaml:"locale_tld"`
	TrustedDomains   []string `yaml:"trusted_domains"`
	NeutralTLDs      []string `yaml:"neutral_tlds"`
	PlaceWords       []string `yaml:"place_words"`
	SportCategories  []string `yaml:"sport_categories"`
	SportWords       []string `yaml:"sport_words"`
	LaunchCategories []string `yaml:"launch_categories"`
	LaunchWords      []string `yaml:"launch_words"`
	ForeignPlaces    []string `yaml:"foreign_places"`
	MinTitleLen      int      `yaml:"min_title_len"`
	MaxTitleLen      int      `yaml:"max_title_len"`

	// Event detection.
	StormWords   []string      `yaml:"storm_words"`
	Clubs        []string      `yaml:"clubs"`
	PolicyTopics []PolicyTopic `yaml:"policy_topics"`

	// Evidence: one snippet from these domains is enough corroboration.
	TrustedSingleSource []string `yaml:"trusted_single_source"`
}

// DefaultTables returns the Swedish tables.
func DefaultTables() Tables {
	return Tables{
		BoilerplatePrefixes: []string{
			`JUST NU:`, `DN Direkt\s*-\s*`, `LIVE:`, `AB:\s*`, `Aftonbladet:\s*`, `Expressen:\s*`,
		},
		NonArticlePatterns: []string{
			`^se\s`,
			`^ett inlägg i\s*”?se`,
		},
		SourceSuffixPattern: `\s+[–-]\s+[^\-–—|:]{2,}$`,
		TermSubstitutions: []Substitution{
			{Pattern: `update`, Replace: "uppdatering"},
			{Pattern: `review`, Replace: "recension"},
			{Pattern: `launch`, Replace: "lansering"},
			{Pattern: `rollout`, Replace: "utrullning"},
			{Pattern: `stable`, Replace: "stabil"},
			{Pattern: `now rolling out`, Replace: "utrullas nu"},
			{Pattern: `is rolling out`, Replace: "utrullas"},
			{Pattern: `will (likely )?feature`, Replace: "väntas få"},
			{Pattern: `is finally headed to`, Replace: "lanseras i"},
			{Pattern: `coming to`, Replace: "kommer till"},
			{Pattern: `teases?`, Replace: "teasar"},
			{Pattern: `leaked`, Replace: "läckt"},
		},
		LocalizeCategories: []string{"prylradar", "teknik-prylar"},

		LocaleLetters: "åäöÅÄÖ",
		LocaleWords: []string{
			"är", "och", "eller", "men", "som", "på", "för", "med",
			"utan", "en", "ett", "det", "den", "i", "från",
		},
		LocaleTLD: "se",
		TrustedDomains: []string{
			"svt.se", "svtplay.se", "sr.se", "aftonbladet.se", "expressen.se", "dn.se", "svd.se",
			"gp.se", "nyheter24.se", "omni.se", "breakit.se", "di.se", "privataaffarer.se",
			"sweclockers.com", "m3.idg.se", "mobil.se", "surfa.se", "nyteknik.se", "feber.se",
			"fotbollskanalen.se", "hockeysverige.se", "svenskafans.com",
		},
		NeutralTLDs: []string{"com"},
		PlaceWords: []string{
			"sverige", "svensk", "svenska", "stockholm", "göteborg", "malmö", "umeå",
			"luleå", "umea", "lulea", "örebro", "uppsala", "borås", "boras",
		},
		SportCategories: []string{"sport"},
		SportWords: []string{
			"allsvenskan", "shl", "slutspel", "kvartsfinal", "semifinal", "landslaget",
			"hockeyallsvenskan", "derby", "aik", "djurgården", "hammarby", "mff", "ifk",
			"mjällby", "häcken", "malmö ff", "brynäs", "frölunda",
		},
		LaunchCategories: []string{"prylradar", "teknik-prylar", "gaming-esport"},
		LaunchWords: []string{
			"lanser", "lansering", "lanseras", "släpper", "uppdatering", "recension",
			"test", "release", "utrullning", "launch", "review", "update",
		},
		ForeignPlaces: []string{"India", "Indien", "China", "Kina", "USA", "US", "UK"},
		MinTitleLen:   28,
		MaxTitleLen:   120,

		StormWords: []string{"stormen", "orkanen", "orkan", "hurricane"},
		Clubs: []string{
			"mjällby", "mff", "malmö ff", "häcken", "aik", "djurgården", "hammarby",
			"ifk", "elfsborg", "norrköping", "rosengård", "brynäs", "frölunda",
		},
		PolicyTopics: []PolicyTopic{
			{Keyword: "kärnkraft", Slug: "karnkraft"},
		},

		TrustedSingleSource: []string{
			"svt.se", "smhi.se", "polisen.se", "fotbollskanalen.se", "svenskfotboll.se",
			"hockeysverige.se", "m3.idg.se", "sweclockers.com",
		},
	}
}
