package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/trendkoll/pkg/publish"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestStore(t *testing.T) (*SQLiteStore, *clock) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "trendkoll.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	c := &clock{t: time.Date(2025, 10, 3, 12, 0, 0, 0, time.UTC)}
	s.now = c.now
	return s, c
}

func TestCreateAndGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, publish.Post{
		Title:      "Stormen Ingrid drar in",
		Body:       "<p>Blåsigt</p>",
		Excerpt:    "Blåsigt",
		Tags:       []string{"idag", "svenska-trender"},
		Categories: []string{"nyheter"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	p, err := s.GetPost(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Stormen Ingrid drar in", p.Title)
	assert.Equal(t, "stormen ingrid drar in", p.TitleKey)
	assert.Equal(t, []string{"idag", "svenska-trender"}, p.Tags)
	assert.Equal(t, []string{"nyheter"}, p.Categories)
	assert.Equal(t, 0, p.Updates)

	_, err = s.GetPost(ctx, "missing")
	assert.ErrorIs(t, err, publish.ErrNotFound)
}

func TestExistsWithinWindow(t *testing.T) {
	s, c := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, publish.Post{Title: "Malmö FF vann derbyt"})
	require.NoError(t, err)

	ok, err := s.ExistsWithinWindow(ctx, "malmo ff vann derbyt!", 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ExistsWithinWindow(ctx, "Malmö FF förlorade", 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	c.t = c.t.Add(25 * time.Hour)
	ok, err = s.ExistsWithinWindow(ctx, "Malmö FF vann derbyt", 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindRecentByQuery(t *testing.T) {
	s, c := newTestStore(t)
	ctx := context.Background()

	older, err := s.Create(ctx, publish.Post{Title: "Stormen Ingrid närmar sig"})
	require.NoError(t, err)
	c.t = c.t.Add(time.Hour)
	newer, err := s.Create(ctx, publish.Post{Title: "Stormen Ingrid når land"})
	require.NoError(t, err)
	assert.NotEqual(t, older, newer)

	id, err := s.FindRecentByQuery(ctx, "ingrid", 12*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, newer, id)

	_, err = s.FindRecentByQuery(ctx, "aik", 12*time.Hour)
	assert.ErrorIs(t, err, publish.ErrNotFound)

	_, err = s.FindRecentByQuery(ctx, "%", 12*time.Hour)
	assert.ErrorIs(t, err, publish.ErrNotFound)

	c.t = c.t.Add(13 * time.Hour)
	_, err = s.FindRecentByQuery(ctx, "ingrid", 12*time.Hour)
	assert.ErrorIs(t, err, publish.ErrNotFound)
}

func TestAppendUpdate(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, publish.Post{Title: "Stormen Ingrid", Body: "<p>Först</p>"})
	require.NoError(t, err)

	require.NoError(t, s.AppendUpdate(ctx, id, "<p>Nytt</p>"))

	p, err := s.GetPost(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "<p>Först</p>\n<hr />\n<h3>Uppdatering</h3>\n<p>Nytt</p>", p.Content)
	assert.Equal(t, 1, p.Updates)

	err = s.AppendUpdate(ctx, "missing", "<p>x</p>")
	assert.ErrorIs(t, err, publish.ErrNotFound)
}

func TestAttachImage(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, publish.Post{Title: "Stormen Ingrid"})
	require.NoError(t, err)

	path, err := s.AttachImage(ctx, id, publish.Image{Role: publish.ImageCard, Filename: "card_trend_1.png", Data: []byte("png")})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)

	media, err := s.ListMedia(ctx, id)
	require.NoError(t, err)
	require.Len(t, media, 1)
	assert.Equal(t, "card", media[0].Role)
	assert.Equal(t, 3, media[0].Size)

	_, err = s.AttachImage(ctx, "missing", publish.Image{Filename: "x.png"})
	assert.ErrorIs(t, err, publish.ErrNotFound)
}

func TestListPosts(t *testing.T) {
	s, c := newTestStore(t)
	ctx := context.Background()

	for _, title := range []string{"Ett", "Två", "Tre"} {
		_, err := s.Create(ctx, publish.Post{Title: title})
		require.NoError(t, err)
		c.t = c.t.Add(time.Minute)
	}

	posts, err := s.ListPosts(ctx, 2)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "Tre", posts[0].Title)
	assert.Equal(t, "Två", posts[1].Title)
}
