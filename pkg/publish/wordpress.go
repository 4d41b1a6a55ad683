package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elonfeng/trendkoll/pkg/source"
	"github.com/elonfeng/trendkoll/pkg/trend"
)

const (
	wpIngestPath = "/wp-json/trendkollen/v1/ingest"
	wpTrendPath  = "/wp-json/wp/v2/trend"
	wpMediaPath  = "/wp-json/wp/v2/media"

	updateSeparator = "\n<hr />\n<h3>Uppdatering</h3>\n"
)

// WordPress publishes to a WordPress site exposing a "trend" post type and
// an ingest endpoint, authenticated with an application password.
type WordPress struct {
	client  *http.Client
	baseURL string
	user    string
	pass    string
	now     func() time.Time
}

// NewWordPress creates a WordPress store.
func NewWordPress(baseURL, user, appPassword string) *WordPress {
	return &WordPress{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		user:    user,
		pass:    appPassword,
		now:     time.Now,
	}
}

type wpPost struct {
	ID      json.Number `json:"id"`
	Date    string      `json:"date"`
	DateGMT string      `json:"date_gmt"`
	Title   struct {
		Rendered string `json:"rendered"`
	} `json:"title"`
	Content struct {
		Rendered string `json:"rendered"`
	} `json:"content"`
}

// publishedAt prefers the GMT date. Posts with no parseable date count as
// just published.
func (p wpPost) publishedAt(now time.Time) time.Time {
	for _, raw := range []string{p.DateGMT, p.Date} {
		if t, ok := source.ParseTimestamp(raw); ok {
			return t
		}
	}
	return now
}

func (w *WordPress) ExistsWithinWindow(ctx context.Context, title string, window time.Duration) (bool, error) {
	posts, err := w.search(ctx, title)
	if err != nil {
		return false, err
	}
	now := w.now().UTC()
	want := trend.CanonicalKey(title)
	for _, p := range posts {
		have := trend.CanonicalKey(html.UnescapeString(strings.TrimSpace(p.Title.Rendered)))
		if have == want && now.Sub(p.publishedAt(now)) <= window {
			return true, nil
		}
	}
	return false, nil
}

func (w *WordPress) FindRecentByQuery(ctx context.Context, query string, window time.Duration) (string, error) {
	posts, err := w.search(ctx, query)
	if err != nil {
		return "", err
	}
	now := w.now().UTC()
	for _, p := range posts {
		if now.Sub(p.publishedAt(now)) <= window {
			return p.ID.String(), nil
		}
	}
	return "", ErrNotFound
}

func (w *WordPress) Create(ctx context.Context, post Post) (string, error) {
	if post.Tags == nil {
		post.Tags = []string{}
	}
	if post.Categories == nil {
		post.Categories = []string{}
	}

	var res struct {
		PostID json.Number `json:"post_id"`
	}
	if err := w.doJSON(ctx, http.MethodPost, wpIngestPath, post, &res); err != nil {
		return "", fmt.Errorf("ingest post: %w", err)
	}
	if res.PostID == "" {
		return "", fmt.Errorf("ingest post: response carried no post_id")
	}
	return res.PostID.String(), nil
}

func (w *WordPress) AppendUpdate(ctx context.Context, id, updateHTML string) error {
	path := wpTrendPath + "/" + url.PathEscape(id)

	var current wpPost
	if err := w.doJSON(ctx, http.MethodGet, path, nil, &current); err != nil {
		return fmt.Errorf("read post %s: %w", id, err)
	}

	body := map[string]string{"content": current.Content.Rendered + updateSeparator + updateHTML}
	if err := w.doJSON(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("append update to post %s: %w", id, err)
	}
	return nil
}

// AttachImage uploads img to the media library. Card images become the
// featured image; social images are stored in the tk_social_image meta.
func (w *WordPress) AttachImage(ctx context.Context, postID string, img Image) (string, error) {
	req, err := w.newRequest(ctx, http.MethodPost, wpMediaPath, bytes.NewReader(img.Data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, img.Filename))

	var media struct {
		ID        json.Number `json:"id"`
		SourceURL string      `json:"source_url"`
	}
	if err := w.do(req, &media); err != nil {
		return "", fmt.Errorf("upload media %s: %w", img.Filename, err)
	}

	var patch map[string]any
	switch img.Role {
	case ImageSocial:
		patch = map[string]any{"meta": map[string]string{"tk_social_image": media.SourceURL}}
	default:
		id, err := media.ID.Int64()
		if err != nil {
			return "", fmt.Errorf("upload media %s: bad media id %q", img.Filename, media.ID)
		}
		patch = map[string]any{"featured_media": id}
	}

	if err := w.doJSON(ctx, http.MethodPost, wpTrendPath+"/"+url.PathEscape(postID), patch, nil); err != nil {
		return "", fmt.Errorf("link %s image to post %s: %w", img.Role, postID, err)
	}
	return media.SourceURL, nil
}

func (w *WordPress) search(ctx context.Context, query string) ([]wpPost, error) {
	params := url.Values{}
	params.Set("search", query)
	params.Set("per_page", "10")
	params.Set("orderby", "date")
	params.Set("order", "desc")

	var posts []wpPost
	if err := w.doJSON(ctx, http.MethodGet, wpTrendPath+"?"+params.Encode(), nil, &posts); err != nil {
		return nil, fmt.Errorf("search posts %q: %w", query, err)
	}
	return posts, nil
}

func (w *WordPress) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := w.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return w.do(req, out)
}

func (w *WordPress) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, w.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create wordpress request: %w", err)
	}
	req.SetBasicAuth(w.user, w.pass)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (w *WordPress) do(req *http.Request, out any) error {
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("call wordpress: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("wordpress %s %s status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode wordpress response: %w", err)
	}
	return nil
}
