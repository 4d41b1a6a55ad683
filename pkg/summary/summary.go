// Package summary writes short plain-language explainers for a topic using
// a chain of language models, with a templated fallback when none answer.
package summary

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/elonfeng/trendkoll/internal/logging"
	"github.com/elonfeng/trendkoll/pkg/source"
)

var (
	// ErrUnavailable means every model in the chain failed.
	ErrUnavailable = errors.New("summary unavailable")
	// ErrTransient marks failures worth retrying on the same model.
	ErrTransient = errors.New("transient model error")
)

// RetryBaseDelay is the first backoff after a transient failure; it doubles
// per attempt. Tests override this to avoid real sleeps.
var RetryBaseDelay = time.Second

// Summarizer produces the summary text for a topic.
type Summarizer interface {
	Summarize(ctx context.Context, topic string, evidence []source.Evidence) (string, error)
}

// Model is one provider model.
type Model interface {
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
}

// Chain tries models in order. Transient failures are retried on the same
// model with exponential backoff; any other failure moves on to the next
// model.
type Chain struct {
	models   []Model
	attempts int
}

// NewChain creates a chain making up to attempts calls per model.
func NewChain(attempts int, models ...Model) *Chain {
	if attempts <= 0 {
		attempts = 2
	}
	return &Chain{models: models, attempts: attempts}
}

// Summarize returns the first non-empty completion. It returns
// ErrUnavailable when the chain is exhausted.
func (c *Chain) Summarize(ctx context.Context, topic string, evidence []source.Evidence) (string, error) {
	system, user := Prompt(topic, evidence)

	for _, m := range c.models {
		for attempt := 0; attempt < c.attempts; attempt++ {
			out, err := m.Complete(ctx, system, user)
			if err == nil {
				if out = strings.TrimSpace(out); out != "" {
					return out, nil
				}
				err = errors.New("empty completion")
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if !errors.Is(err, ErrTransient) || attempt == c.attempts-1 {
				logging.Warn("model failed", "model", m.Name(), "attempt", attempt+1, "err", err)
				break
			}

			wait := time.Duration(1<<attempt) * RetryBaseDelay
			logging.Warn("model timed out, retrying", "model", m.Name(), "attempt", attempt+1, "wait", wait)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return "", ErrUnavailable
}

const systemPrompt = `Skriv på enkel svenska (ca högstadienivå), 110–150 ord. Ingen rubrik.
MÅSTE ingå i ordning:
1) Enkelt förklarat: 1 mening som sammanfattar med vardagsord (undvik fackspråk; förklara termer i parentes, t.ex. 'reaktor (el-fabrik)').
2) Detta har hänt: 1–2 meningar (vad/när/var MED namn på personer/bolag/lag och siffror/datum om de finns).
3) Varför det spelar roll: 1–2 meningar (påverkan/siffror: pris, tid, risk, omfattning).
4) Så påverkar det dig: 2–4 punkter som börjar med '- ' (konkreta effekter i vardagen för en person i Sverige).
5) Vad händer härnäst: 1 mening (nästa steg med datum eller tydlig trigger).
Avsluta med: 'Affiliate-idéer:' och 1–2 punkter som börjar med '- '.
Undvik jargong och klichéer. Var specifik. Ingen markdown.`

// Prompt builds the system and user messages for a topic.
func Prompt(topic string, evidence []source.Evidence) (system, user string) {
	snippets := "Inga källsnuttar"
	if len(evidence) > 0 {
		parts := make([]string, 0, len(evidence))
		for _, e := range evidence {
			parts = append(parts, fmt.Sprintf("%s (%s)", label(e), e.Link))
		}
		snippets = strings.Join(parts, "; ")
	}
	return systemPrompt, fmt.Sprintf("Ämne: %s\nNyhetssnuttar: %s", topic, snippets)
}

// Fallback is the templated summary used when no model is available.
func Fallback(topic string, evidence []source.Evidence) string {
	var bullets []string
	for i, e := range evidence {
		if i == 3 {
			break
		}
		bullets = append(bullets, "- "+label(e))
	}
	if len(bullets) == 0 {
		bullets = []string{"- Ingen nyhetskälla tillgänglig"}
	}
	return fmt.Sprintf("Enkelt förklarat: %s.\n\n%s\n\nAffiliate-idéer:\n- Sök efter relaterade produkter/tjänster hos dina partnernätverk.",
		strings.TrimRight(topic, "."), strings.Join(bullets, "\n"))
}

func label(e source.Evidence) string {
	switch {
	case e.Source != "":
		return e.Source
	case e.Title != "":
		return e.Title
	default:
		return e.Domain
	}
}

// classify marks timeouts as transient.
func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}

// statusError marks rate limiting and server errors as transient.
func statusError(provider string, code int, detail any) error {
	err := fmt.Errorf("%s status %d: %v", provider, code, detail)
	if code == 429 || code >= 500 {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}
