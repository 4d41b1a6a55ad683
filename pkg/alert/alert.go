package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/elonfeng/trendkoll/pkg/source"
)

// Action says whether a post was created or an existing one updated.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)

// Notification describes one published trend.
type Notification struct {
	Action   Action            `json:"action"`
	PostID   string            `json:"post_id"`
	Title    string            `json:"title"`
	Category string            `json:"category"`
	Excerpt  string            `json:"excerpt"`
	Score    int               `json:"score"`
	Evidence []source.Evidence `json:"evidence"`
}

// Notifier delivers notifications to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return m != nil && len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers. Every
// notifier is tried; failures are joined.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// topEvidence returns at most limit evidence entries.
func topEvidence(n *Notification, limit int) []source.Evidence {
	if len(n.Evidence) < limit {
		return n.Evidence
	}
	return n.Evidence[:limit]
}

func heading(n *Notification) string {
	if n.Action == ActionUpdated {
		return "🔄 " + n.Title
	}
	return "📰 " + n.Title
}
