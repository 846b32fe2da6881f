package aigen

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questforge/questforge/internal/domain"
)

// ═══════════════════════════════════════════════════════════════════════════
// Ollama generator
// ═══════════════════════════════════════════════════════════════════════════

func TestOllamaGenerator_Generate(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var fields map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(raw, &fields))
		assert.NotContains(t, fields, "format")

		var req chatRequest
		require.NoError(t, json.Unmarshal(raw, &req))
		assert.False(t, req.Stream)
		assert.Equal(t, "llama3.2", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)

		_ = json.NewEncoder(w).Encode(chatResponse{
			Model:   "llama3.2",
			Message: chatMessage{Role: "assistant", Content: `[{"title":"Read"}]`},
			Done:    true,
		})
	}))
	defer server.Close()

	g := NewOllamaGenerator(Config{BaseURL: server.URL, Model: "llama3.2"})
	text, err := g.Generate(context.Background(), domain.GenerateRequest{System: "sys", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, `[{"title":"Read"}]`, text)
}

func TestOllamaGenerator_StatusError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	g := NewOllamaGenerator(Config{BaseURL: server.URL, Model: "missing"})
	_, err := g.Generate(context.Background(), domain.GenerateRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestOllamaGenerator_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	g := NewOllamaGenerator(Config{BaseURL: server.URL, Model: "slow", Timeout: 50 * time.Millisecond})
	_, err := g.Generate(context.Background(), domain.GenerateRequest{Prompt: "hi"})
	require.Error(t, err)
}

func TestOllamaGenerator_Probe(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer server.Close()

	g := NewOllamaGenerator(Config{BaseURL: server.URL + "/"})
	require.NoError(t, g.Probe(context.Background()))
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Generate(context.Background(), domain.GenerateRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, domain.ErrGeneratorDisabled)
}

// ═══════════════════════════════════════════════════════════════════════════
// Cache
// ═══════════════════════════════════════════════════════════════════════════

type countingGenerator struct {
	calls atomic.Int32
	err   error
}

func (c *countingGenerator) Generate(_ context.Context, req domain.GenerateRequest) (string, error) {
	c.calls.Add(1)
	if c.err != nil {
		return "", c.err
	}
	return "reply:" + req.Prompt, nil
}

func TestCachedGenerator_HitAndExpiry(t *testing.T) {
	inner := &countingGenerator{}
	c := NewCachedGenerator(inner, 4, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.setClock(func() time.Time { return now })

	req := domain.GenerateRequest{System: "s", Prompt: "p"}
	for i := 0; i < 3; i++ {
		text, err := c.Generate(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "reply:p", text)
	}
	assert.Equal(t, int32(1), inner.calls.Load())

	now = now.Add(2 * time.Minute)
	_, err := c.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedGenerator_DoesNotCacheErrors(t *testing.T) {
	inner := &countingGenerator{err: errors.New("boom")}
	c := NewCachedGenerator(inner, 4, time.Minute)

	req := domain.GenerateRequest{Prompt: "p"}
	_, err := c.Generate(context.Background(), req)
	require.Error(t, err)
	_, err = c.Generate(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, 0, c.Len())
}

func TestCachedGenerator_EvictsLeastRecent(t *testing.T) {
	inner := &countingGenerator{}
	c := NewCachedGenerator(inner, 2, time.Minute)
	ctx := context.Background()

	for _, p := range []string{"a", "b", "c"} {
		_, err := c.Generate(ctx, domain.GenerateRequest{Prompt: p})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())

	_, err := c.Generate(ctx, domain.GenerateRequest{Prompt: "a"})
	require.NoError(t, err)
	assert.Equal(t, int32(4), inner.calls.Load(), "evicted prompt should miss")
}

// ═══════════════════════════════════════════════════════════════════════════
// Parsing
// ═══════════════════════════════════════════════════════════════════════════

func TestParseQuestArray_WithProse(t *testing.T) {
	text := "Here are your quests!\n" +
		`[{"title":"Read 20 pages","description":"Any book","xpReward":40,"target":20,"type":"study","difficulty":"easy","category":"learning"}]` +
		"\nGood luck."

	quests, err := ParseQuestArray(text)
	require.NoError(t, err)
	require.Len(t, quests, 1)
	assert.Equal(t, "Read 20 pages", quests[0].Title)
	assert.Equal(t, int64(40), quests[0].XPReward)
	assert.Equal(t, 20, quests[0].Target)
	assert.Equal(t, domain.QuestStudy, quests[0].Type)
}

func TestParseQuestArray_RepairsTrailingComma(t *testing.T) {
	text := `[{"title":"Focus","xpReward":30,"target":25,"type":"focus",},]`

	quests, err := ParseQuestArray(text)
	require.NoError(t, err)
	require.Len(t, quests, 1)
	assert.Equal(t, "Focus", quests[0].Title)
}

func TestParseQuestArray_Failures(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no array", "I cannot help with that."},
		{"empty array", "[]"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQuestArray(tt.text)
			assert.ErrorIs(t, err, domain.ErrGeneratorUnparsable)
		})
	}
}
