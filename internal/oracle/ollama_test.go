package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lowvibe/internal/chat"
)

func fakeOllama(t *testing.T, content string, promptTokens int, seen *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model":             "m",
			"message":           map[string]any{"role": "assistant", "content": content},
			"done":              true,
			"prompt_eval_count": promptTokens,
			"eval_count":        7,
		})
	}))
}

func TestOllamaComplete(t *testing.T) {
	var seen map[string]any
	srv := fakeOllama(t, `{"ok": true, "reason": "done"}`, 100, &seen)
	defer srv.Close()

	o, err := NewOllama(OllamaConfig{BaseURL: srv.URL, Model: "m", ContextLength: 4096}, nil)
	require.NoError(t, err)

	raw, usage, err := o.Complete(context.Background(), []chat.Message{chat.System("s"), chat.User("u")}, verdictSchema)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true, "reason": "done"}`, string(raw))
	assert.Equal(t, Usage{PromptTokens: 100, CompletionTokens: 7, TotalTokens: 107}, usage)

	assert.Equal(t, "m", seen["model"])
	assert.Equal(t, false, seen["stream"])
	assert.Equal(t, "object", seen["format"].(map[string]any)["type"])
	assert.EqualValues(t, 4096, seen["options"].(map[string]any)["num_ctx"])
}

func TestOllamaOverflowWhenPromptFillsWindow(t *testing.T) {
	srv := fakeOllama(t, `{"ok": true}`, 2048, nil)
	defer srv.Close()

	o, err := NewOllama(OllamaConfig{BaseURL: srv.URL, Model: "m", ContextLength: 2048}, nil)
	require.NoError(t, err)

	_, _, err = o.Complete(context.Background(), []chat.Message{chat.User("u")}, verdictSchema)
	assert.True(t, IsOverflow(err))
}

func TestOllamaSchemaViolation(t *testing.T) {
	srv := fakeOllama(t, `{"reason": "forgot ok"}`, 10, nil)
	defer srv.Close()

	o, err := NewOllama(OllamaConfig{BaseURL: srv.URL, Model: "m"}, nil)
	require.NoError(t, err)

	_, _, err = o.Complete(context.Background(), []chat.Message{chat.User("u")}, verdictSchema)
	assert.True(t, IsRecoverable(err))
}

func TestToGeminiContents(t *testing.T) {
	system, contents := toGeminiContents([]chat.Message{
		chat.System("a"), chat.System("b"), chat.User("u"), chat.Assistant("x"), chat.Corrective("fix"),
	})
	assert.Equal(t, "a\n\nb", system)
	require.Len(t, contents, 3)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "[system] fix", contents[2].Parts[0].Text)
}
