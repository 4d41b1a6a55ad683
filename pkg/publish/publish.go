// Package publish defines the content store the run driver publishes to
// and the HTML rendering of a post.
package publish

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no post matches a lookup.
var ErrNotFound = errors.New("post not found")

// Post is a new entry for the content store.
type Post struct {
	Title      string   `json:"title"`
	Body       string   `json:"content"`
	Excerpt    string   `json:"excerpt"`
	Tags       []string `json:"topics"`
	Categories []string `json:"categories"`
}

// Store is the external content store.
type Store interface {
	// ExistsWithinWindow reports whether a post with the same canonical
	// title was published within window.
	ExistsWithinWindow(ctx context.Context, title string, window time.Duration) (bool, error)
	// FindRecentByQuery returns the newest post matching query published
	// within window, or ErrNotFound.
	FindRecentByQuery(ctx context.Context, query string, window time.Duration) (string, error)
	// Create publishes post and returns its id.
	Create(ctx context.Context, post Post) (string, error)
	// AppendUpdate appends an update section to an existing post.
	AppendUpdate(ctx context.Context, id, html string) error
}

// ImageRole says what an attached image is used for.
type ImageRole string

const (
	ImageCard   ImageRole = "card"   // featured image, no text
	ImageSocial ImageRole = "social" // og:image with title text
)

// Image is a rendered PNG to attach to a post.
type Image struct {
	Role     ImageRole
	Filename string
	Data     []byte
}

// MediaAttacher is implemented by stores that can hold images.
type MediaAttacher interface {
	// AttachImage uploads img and links it to the post. It returns the
	// public URL of the uploaded media.
	AttachImage(ctx context.Context, postID string, img Image) (string, error)
}
