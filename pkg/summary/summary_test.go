package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/trendkoll/pkg/source"
)

type scriptedModel struct {
	name    string
	replies []reply
	calls   int
}

type reply struct {
	text string
	err  error
}

func (m *scriptedModel) Name() string { return m.name }

func (m *scriptedModel) Complete(context.Context, string, string) (string, error) {
	r := m.replies[min(m.calls, len(m.replies)-1)]
	m.calls++
	return r.text, r.err
}

func noBackoff(t *testing.T) {
	t.Helper()
	orig := RetryBaseDelay
	RetryBaseDelay = 0
	t.Cleanup(func() { RetryBaseDelay = orig })
}

var timeout = fmt.Errorf("%w: read timeout", ErrTransient)

func TestChainFirstModelAnswers(t *testing.T) {
	a := &scriptedModel{name: "a", replies: []reply{{text: "  Enkelt förklarat: det blåser.  "}}}
	b := &scriptedModel{name: "b", replies: []reply{{text: "unused"}}}

	out, err := NewChain(2, a, b).Summarize(context.Background(), "Stormen Ingrid", nil)
	require.NoError(t, err)
	assert.Equal(t, "Enkelt förklarat: det blåser.", out)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 0, b.calls)
}

func TestChainRetriesTransientThenMovesOn(t *testing.T) {
	noBackoff(t)
	a := &scriptedModel{name: "a", replies: []reply{{err: timeout}}}
	b := &scriptedModel{name: "b", replies: []reply{{err: timeout}, {text: "svar"}}}

	out, err := NewChain(2, a, b).Summarize(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "svar", out)
	assert.Equal(t, 2, a.calls)
	assert.Equal(t, 2, b.calls)
}

func TestChainPermanentErrorSkipsRetries(t *testing.T) {
	noBackoff(t)
	a := &scriptedModel{name: "a", replies: []reply{{err: errors.New("openai status 400")}}}
	b := &scriptedModel{name: "b", replies: []reply{{text: ""}}}
	c := &scriptedModel{name: "c", replies: []reply{{text: "ok"}}}

	out, err := NewChain(2, a, b, c).Summarize(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls, "empty completions are not retried")
}

func TestChainExhausted(t *testing.T) {
	noBackoff(t)
	a := &scriptedModel{name: "a", replies: []reply{{err: timeout}}}

	_, err := NewChain(2, a).Summarize(context.Background(), "x", nil)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = NewChain(2).Summarize(context.Background(), "x", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestChainStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := &scriptedModel{name: "a", replies: []reply{{err: timeout}}}

	_, err := NewChain(2, a).Summarize(ctx, "x", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, a.calls)
}

func TestPrompt(t *testing.T) {
	system, user := Prompt("Stormen Ingrid", []source.Evidence{
		{Source: "SVT Nyheter", Link: "https://svt.se/a"},
		{Title: "Ingrid når land", Link: "https://dn.se/b"},
	})
	assert.Contains(t, system, "Affiliate-idéer:")
	assert.Equal(t, "Ämne: Stormen Ingrid\nNyhetssnuttar: SVT Nyheter (https://svt.se/a); Ingrid når land (https://dn.se/b)", user)

	_, user = Prompt("x", nil)
	assert.Contains(t, user, "Inga källsnuttar")
}

func TestFallback(t *testing.T) {
	got := Fallback("Stormen Ingrid drar in", []source.Evidence{
		{Source: "SVT"}, {Source: "DN"}, {Source: "SMHI"}, {Source: "Expressen"},
	})
	assert.Equal(t, "Enkelt förklarat: Stormen Ingrid drar in.\n\n- SVT\n- DN\n- SMHI\n\nAffiliate-idéer:\n- Sök efter relaterade produkter/tjänster hos dina partnernätverk.", got)

	assert.Contains(t, Fallback("x", nil), "- Ingen nyhetskälla tillgänglig")
}

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-5-mini", body.Model)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)

		w.Write([]byte(`{"choices":[{"message":{"content":"Enkelt förklarat: hej."}}]}`))
	}))
	defer srv.Close()

	out, err := NewOpenAI("key", "gpt-5-mini", srv.URL).Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "Enkelt förklarat: hej.", out)
}

func TestOpenAIStatusClassification(t *testing.T) {
	status := http.StatusServiceUnavailable
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(`{"error":{"message":"nope"}}`))
	}))
	defer srv.Close()

	m := NewOpenAI("key", "", srv.URL)
	_, err := m.Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrTransient)

	status = http.StatusBadRequest
	_, err = m.Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTransient)
	assert.Contains(t, err.Error(), "status 400")
}

func TestAnthropicComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sys", body["system"])

		w.Write([]byte(`{"content":[{"type":"text","text":"Del ett."},{"type":"text","text":"Del två."}]}`))
	}))
	defer srv.Close()

	out, err := NewAnthropic("key", "", srv.URL).Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "Del ett.\nDel två.", out)
}
