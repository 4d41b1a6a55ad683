// Package store is a local SQLite content store. It stands in for the
// remote publishing target in dry runs and single-machine setups.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/elonfeng/trendkoll/pkg/publish"
	"github.com/elonfeng/trendkoll/pkg/trend"
)

const updateSeparator = "\n<hr />\n<h3>Uppdatering</h3>\n"

// PostRecord is a stored post.
type PostRecord struct {
	ID             string    `db:"id" json:"id"`
	Title          string    `db:"title" json:"title"`
	TitleKey       string    `db:"title_key" json:"-"`
	Content        string    `db:"content" json:"content"`
	Excerpt        string    `db:"excerpt" json:"excerpt"`
	TagsJSON       string    `db:"tags" json:"-"`
	CategoriesJSON string    `db:"categories" json:"-"`
	Tags           []string  `db:"-" json:"tags"`
	Categories     []string  `db:"-" json:"categories"`
	Updates        int       `db:"updates" json:"updates"`
	PublishedAt    time.Time `db:"published_at" json:"published_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// MediaRecord is an image attached to a post.
type MediaRecord struct {
	ID        string    `db:"id" json:"id"`
	PostID    string    `db:"post_id" json:"post_id"`
	Role      string    `db:"role" json:"role"`
	Filename  string    `db:"filename" json:"filename"`
	Path      string    `db:"path" json:"path"`
	Size      int       `db:"size" json:"size"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SQLiteStore implements publish.Store and publish.MediaAttacher.
type SQLiteStore struct {
	db       *sqlx.DB
	mediaDir string
	now      func() time.Time
}

var (
	_ publish.Store         = (*SQLiteStore)(nil)
	_ publish.MediaAttacher = (*SQLiteStore)(nil)
)

// New opens a SQLite database and runs migrations. Images are written to
// mediaDir, which defaults to a "media" directory next to the database.
func New(path, mediaDir string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir %s: %w", dir, err)
		}
	}
	if mediaDir == "" {
		mediaDir = filepath.Join(filepath.Dir(path), "media")
	}

	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, mediaDir: mediaDir, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ExistsWithinWindow(ctx context.Context, title string, window time.Duration) (bool, error) {
	since := s.now().UTC().Add(-window)
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM posts WHERE title_key = ? AND published_at >= ?",
		trend.CanonicalKey(title), since)
	if err != nil {
		return false, fmt.Errorf("check post exists: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) FindRecentByQuery(ctx context.Context, query string, window time.Duration) (string, error) {
	key := trend.CanonicalKey(query)
	if key == "" {
		return "", publish.ErrNotFound
	}
	since := s.now().UTC().Add(-window)

	var id string
	err := s.db.GetContext(ctx, &id, `
		SELECT id FROM posts
		WHERE title_key LIKE ? ESCAPE '\' AND published_at >= ?
		ORDER BY published_at DESC LIMIT 1
	`, "%"+escapeLike(key)+"%", since)
	if errors.Is(err, sql.ErrNoRows) {
		return "", publish.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find recent post %q: %w", query, err)
	}
	return id, nil
}

func (s *SQLiteStore) Create(ctx context.Context, post publish.Post) (string, error) {
	tagsJSON, _ := json.Marshal(nonNil(post.Tags))
	catsJSON, _ := json.Marshal(nonNil(post.Categories))
	now := s.now().UTC()
	id := uuid.NewString()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, title, title_key, content, excerpt, tags, categories, published_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, post.Title, trend.CanonicalKey(post.Title), post.Body, post.Excerpt,
		string(tagsJSON), string(catsJSON), now, now)
	if err != nil {
		return "", fmt.Errorf("insert post: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) AppendUpdate(ctx context.Context, id, html string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET content = content || ?, updates = updates + 1, updated_at = ?
		WHERE id = ?
	`, updateSeparator+html, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("append update to post %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("append update to post %s: %w", id, publish.ErrNotFound)
	}
	return nil
}

// AttachImage writes img under the media directory and records it. The
// returned URL is the file path.
func (s *SQLiteStore) AttachImage(ctx context.Context, postID string, img publish.Image) (string, error) {
	if _, err := s.GetPost(ctx, postID); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.mediaDir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}

	id := uuid.NewString()
	name := filepath.Base(img.Filename)
	if name == "." || name == string(filepath.Separator) {
		name = id + ".png"
	}
	path := filepath.Join(s.mediaDir, name)
	if err := os.WriteFile(path, img.Data, 0o644); err != nil {
		return "", fmt.Errorf("write media %s: %w", name, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO media (id, post_id, role, filename, path, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, postID, string(img.Role), name, path, len(img.Data), s.now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert media %s: %w", name, err)
	}
	return path, nil
}

// GetPost returns one post.
func (s *SQLiteStore) GetPost(ctx context.Context, id string) (*PostRecord, error) {
	var p PostRecord
	err := s.db.GetContext(ctx, &p, "SELECT * FROM posts WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get post %s: %w", id, publish.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", id, err)
	}
	p.decode()
	return &p, nil
}

// ListPosts returns the newest posts first.
func (s *SQLiteStore) ListPosts(ctx context.Context, limit int) ([]PostRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var posts []PostRecord
	if err := s.db.SelectContext(ctx, &posts, "SELECT * FROM posts ORDER BY published_at DESC LIMIT ?", limit); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	for i := range posts {
		posts[i].decode()
	}
	return posts, nil
}

// ListMedia returns the images attached to a post.
func (s *SQLiteStore) ListMedia(ctx context.Context, postID string) ([]MediaRecord, error) {
	var media []MediaRecord
	if err := s.db.SelectContext(ctx, &media, "SELECT * FROM media WHERE post_id = ? ORDER BY created_at", postID); err != nil {
		return nil, fmt.Errorf("list media for %s: %w", postID, err)
	}
	return media, nil
}

func (p *PostRecord) decode() {
	json.Unmarshal([]byte(p.TagsJSON), &p.Tags)
	json.Unmarshal([]byte(p.CategoriesJSON), &p.Categories)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
