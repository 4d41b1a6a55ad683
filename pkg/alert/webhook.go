package alert

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	// SignatureHeader carries "sha256=" and the hex HMAC-SHA256 of
	// "<timestamp>.<body>" under the shared secret.
	SignatureHeader = "X-Trendkoll-Signature"
	TimestampHeader = "X-Trendkoll-Timestamp"
	EventHeader     = "X-Trendkoll-Event"
	DeliveryHeader  = "X-Trendkoll-Delivery"
)

// Event names sent to webhook receivers.
const (
	EventTrendCreated = "trend.created"
	EventTrendUpdated = "trend.updated"
)

// Delivery is the webhook request body.
type Delivery struct {
	ID     string        `json:"id"`
	Event  string        `json:"event"`
	SentAt time.Time     `json:"sent_at"`
	Data   *Notification `json:"data"`
}

// Webhook posts deliveries as JSON to a generic HTTP endpoint.
type Webhook struct {
	client *http.Client
	url    string
	secret string
	now    func() time.Time
	newID  func() string
}

// NewWebhook creates a generic webhook notifier. An empty secret disables
// signing.
func NewWebhook(url, secret string) *Webhook {
	return &Webhook{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    url,
		secret: secret,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Send(ctx context.Context, n *Notification) error {
	d := Delivery{
		ID:     w.newID(),
		Event:  eventName(n.Action),
		SentAt: w.now().UTC().Truncate(time.Second),
		Data:   n,
	}
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "trendkoll/1.0")
	req.Header.Set(EventHeader, d.Event)
	req.Header.Set(DeliveryHeader, d.ID)

	if w.secret != "" {
		ts := strconv.FormatInt(d.SentAt.Unix(), 10)
		req.Header.Set(TimestampHeader, ts)
		req.Header.Set(SignatureHeader, "sha256="+Sign(w.secret, ts, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook %s: %w", d.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s status %d", d.Event, resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of "<timestamp>.<body>" under secret.
// Receivers should reject timestamps far from their own clock.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func eventName(a Action) string {
	if a == ActionUpdated {
		return EventTrendUpdated
	}
	return EventTrendCreated
}
