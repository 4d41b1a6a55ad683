package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elonfeng/trendkoll/internal/logging"
)

const wikimediaTopURL = "https://wikimedia.org/api/rest_v1/metrics/pageviews/top"

// DefaultWikipediaMetaPrefixes are sv.wikipedia namespaces and pages that
// never represent a topic.
var DefaultWikipediaMetaPrefixes = []string{
	"Special:", "Huvudsida", "Portal:", "Wikipedia:", "Mall:",
	"Kategori:", "Diskussion:", "Användare:", "Fil:", "Wikidata:",
}

// Wikipedia lists the most viewed articles of a project for a day. The
// pageview dump for today is often not published yet, so older days are
// tried in turn.
type Wikipedia struct {
	client       *http.Client
	project      string
	metaPrefixes []string
	lookback     int
	baseURL      string
	now          func() time.Time
}

// NewWikipedia creates a pageview list for project (e.g. "sv.wikipedia").
func NewWikipedia(project string, metaPrefixes []string) *Wikipedia {
	if project == "" {
		project = "sv.wikipedia"
	}
	if len(metaPrefixes) == 0 {
		metaPrefixes = DefaultWikipediaMetaPrefixes
	}
	return &Wikipedia{
		client:       &http.Client{Timeout: 15 * time.Second},
		project:      project,
		metaPrefixes: metaPrefixes,
		lookback:     2,
		baseURL:      wikimediaTopURL,
		now:          time.Now,
	}
}

func (w *Wikipedia) Name() Name { return NameWikipedia }

// Top returns up to limit article titles from the most recent day that has
// data: today, then yesterday, then the day before.
func (w *Wikipedia) Top(ctx context.Context, limit int) ([]string, error) {
	var lastErr error
	for back := 0; back <= w.lookback; back++ {
		day := w.now().UTC().AddDate(0, 0, -back)
		titles, err := w.topForDay(ctx, day, limit)
		if err != nil {
			lastErr = err
			continue
		}
		if len(titles) == 0 {
			continue
		}
		if back > 0 {
			logging.Debug("wikipedia fallback", "days_back", back, "titles", len(titles))
		}
		return titles, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

func (w *Wikipedia) topForDay(ctx context.Context, day time.Time, limit int) ([]string, error) {
	reqURL := fmt.Sprintf("%s/%s/all-access/%s", w.baseURL, w.project, day.Format("2006/01/02"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create wikipedia request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch wikipedia top %s: %w", day.Format("2006-01-02"), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wikipedia top %s status %d", day.Format("2006-01-02"), resp.StatusCode)
	}

	var result wikiTopResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode wikipedia top: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, nil
	}

	var titles []string
	for _, a := range result.Items[0].Articles {
		if len(titles) >= limit {
			break
		}
		title := strings.ReplaceAll(a.Article, "_", " ")
		if title == "" || w.isMeta(title) {
			continue
		}
		titles = append(titles, title)
	}
	return titles, nil
}

func (w *Wikipedia) isMeta(title string) bool {
	for _, p := range w.metaPrefixes {
		if strings.HasPrefix(title, p) {
			return true
		}
	}
	return false
}

type wikiTopResult struct {
	Items []struct {
		Articles []struct {
			Article string `json:"article"`
			Views   int    `json:"views"`
			Rank    int    `json:"rank"`
		} `json:"articles"`
	} `json:"items"`
}
