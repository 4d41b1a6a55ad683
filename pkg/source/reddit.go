package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/elonfeng/trendkoll/internal/logging"
	"github.com/mmcdole/gofeed"
)

// Reddit lists the top posts of the day in a subreddit. The JSON listing is
// tried first and the RSS rendering of the same listing is the fallback.
// With client credentials the OAuth API host is used for the JSON call.
type Reddit struct {
	client       *http.Client
	parser       *gofeed.Parser
	subreddit    string
	clientID     string
	clientSecret string
	publicURL    string
	oauthURL     string
	mu           sync.Mutex
	token        string
	tokenExpiry  time.Time
}

// NewReddit creates a top-of-day list for subreddit (default "sweden").
func NewReddit(subreddit, clientID, clientSecret string) *Reddit {
	if subreddit == "" {
		subreddit = "sweden"
	}
	return &Reddit{
		client:       &http.Client{Timeout: 15 * time.Second},
		parser:       gofeed.NewParser(),
		subreddit:    subreddit,
		clientID:     clientID,
		clientSecret: clientSecret,
		publicURL:    "https://www.reddit.com",
		oauthURL:     "https://oauth.reddit.com",
	}
}

func (r *Reddit) Name() Name { return NameReddit }

func (r *Reddit) Top(ctx context.Context, limit int) ([]string, error) {
	titles, err := r.topJSON(ctx, limit)
	if err == nil {
		return titles, nil
	}
	logging.Warn("reddit json listing failed, trying rss", "subreddit", r.subreddit, "err", err)

	titles, rssErr := r.topRSS(ctx, limit)
	if rssErr != nil {
		return nil, fmt.Errorf("reddit r/%s: json: %v; rss: %w", r.subreddit, err, rssErr)
	}
	return titles, nil
}

func (r *Reddit) topJSON(ctx context.Context, limit int) ([]string, error) {
	base := r.publicURL
	var bearer string
	if r.clientID != "" {
		if err := r.authenticate(ctx); err != nil {
			return nil, fmt.Errorf("reddit auth: %w", err)
		}
		base = r.oauthURL
		bearer = r.token
	}

	reqURL := fmt.Sprintf("%s/r/%s/top/.json?t=day&limit=20", base, url.PathEscape(r.subreddit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch r/%s: %w", r.subreddit, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit r/%s status %d", r.subreddit, resp.StatusCode)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode r/%s: %w", r.subreddit, err)
	}

	var titles []string
	for _, child := range listing.Data.Children {
		if len(titles) >= limit {
			break
		}
		if child.Data.Stickied {
			continue
		}
		if t := strings.TrimSpace(child.Data.Title); t != "" {
			titles = append(titles, t)
		}
	}
	return titles, nil
}

func (r *Reddit) topRSS(ctx context.Context, limit int) ([]string, error) {
	reqURL := fmt.Sprintf("%s/r/%s/top/.rss?t=day&limit=20", r.publicURL, url.PathEscape(r.subreddit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch r/%s rss: %w", r.subreddit, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit r/%s rss status %d", r.subreddit, resp.StatusCode)
	}

	feed, err := r.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse r/%s rss: %w", r.subreddit, err)
	}

	var titles []string
	for _, entry := range feed.Items {
		if len(titles) >= limit {
			break
		}
		if t := strings.TrimSpace(entry.Title); t != "" {
			titles = append(titles, t)
		}
	}
	return titles, nil
}

func (r *Reddit) authenticate(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.token != "" && time.Now().Before(r.tokenExpiry) {
		return nil
	}

	data := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.publicURL+"/api/v1/access_token",
		strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}

	req.SetBasicAuth(r.clientID, r.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("reddit token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reddit auth status %d", resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return fmt.Errorf("decode reddit token: %w", err)
	}

	r.token = tokenResp.AccessToken
	r.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)
	return nil
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title    string `json:"title"`
				Stickied bool   `json:"stickied"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}
