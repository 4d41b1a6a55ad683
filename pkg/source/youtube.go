package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const youTubeVideosURL = "https://www.googleapis.com/youtube/v3/videos"

// ErrNoAPIKey is returned by adapters that need credentials they were not given.
var ErrNoAPIKey = errors.New("api key required")

// YouTube lists the most popular videos for a region.
type YouTube struct {
	client  *http.Client
	apiKey  string
	region  string
	baseURL string
}

// NewYouTube creates a trending-videos list. An empty apiKey makes Top
// return ErrNoAPIKey, which callers treat as an unavailable source.
func NewYouTube(apiKey, region string) *YouTube {
	if region == "" {
		region = "SE"
	}
	return &YouTube{
		client:  &http.Client{Timeout: 15 * time.Second},
		apiKey:  strings.TrimSpace(apiKey),
		region:  region,
		baseURL: youTubeVideosURL,
	}
}

func (y *YouTube) Name() Name { return NameYouTube }

func (y *YouTube) Top(ctx context.Context, limit int) ([]string, error) {
	if y.apiKey == "" {
		return nil, fmt.Errorf("youtube: %w (set YT_API_KEY)", ErrNoAPIKey)
	}
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("chart", "mostPopular")
	params.Set("regionCode", y.region)
	params.Set("maxResults", strconv.Itoa(limit))
	params.Set("key", y.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create youtube request: %w", err)
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch youtube trending: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("youtube trending status %d", resp.StatusCode)
	}

	var result ytVideoResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode youtube trending: %w", err)
	}

	var titles []string
	for _, video := range result.Items {
		if t := strings.TrimSpace(video.Snippet.Title); t != "" {
			titles = append(titles, t)
		}
		if len(titles) >= limit {
			break
		}
	}
	return titles, nil
}

type ytVideoResult struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
		} `json:"snippet"`
	} `json:"items"`
}
