package agentloop

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWebSearch(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"results": [
			{"title": "Go", "url": "https://go.dev", "content": "The Go programming language", "score": 0.97},
			{"title": "Go wiki", "url": "https://go.dev/wiki", "content": "wiki", "score": 0.5}
		]}`)
	}))
	defer server.Close()

	wt := NewWebTools(WebConfig{APIKey: "tv-key", SearchURL: server.URL})
	out, err := wt.webSearch(context.Background(), json.RawMessage(`{"query": "golang", "max_results": 1}`))
	require.NoError(t, err)

	require.Equal(t, "tv-key", captured["api_key"])
	require.Equal(t, "golang", captured["query"])
	require.EqualValues(t, 1, captured["max_results"])

	var result webSearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Results, 1)
	require.Equal(t, "https://go.dev", result.Results[0].URL)
}

func TestWebSearchMissingKey(t *testing.T) {
	wt := NewWebTools(WebConfig{})
	out, err := wt.webSearch(context.Background(), json.RawMessage(`{"query": "golang"}`))
	require.NoError(t, err)
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	require.Contains(t, payload["error"], "missing Tavily API key")
}

func TestWebSearchUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"detail": "bad key"}`)
	}))
	defer server.Close()

	wt := NewWebTools(WebConfig{APIKey: "tv-key", SearchURL: server.URL})
	out, err := wt.webSearch(context.Background(), json.RawMessage(`{"query": "golang"}`))
	require.NoError(t, err)
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	require.Contains(t, payload["error"], "status 403")
}

const testPage = `<html><head><title>Doc</title>
<style>body { color: red }</style>
<script>console.log("noise")</script>
</head><body>
<h1>Heading</h1>
<p>First paragraph with &amp; entity.</p>
<p>Second paragraph mentions gophers.</p>
</body></html>`

func TestWebOpenExtractsText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, testPage)
	}))
	defer server.Close()

	wt := NewWebTools(WebConfig{})
	args, _ := json.Marshal(map[string]interface{}{"url": server.URL})
	out, err := wt.webOpen(context.Background(), args)
	require.NoError(t, err)

	var result webOpenResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Equal(t, server.URL, result.URL)
	require.Equal(t, 1, result.StartLine)
	require.NotEmpty(t, result.Lines)

	joined := ""
	for _, line := range result.Lines {
		joined += line + "\n"
	}
	require.Contains(t, joined, "Heading")
	require.Contains(t, joined, "First paragraph with & entity.")
	require.NotContains(t, joined, "console.log")
	require.NotContains(t, joined, "color: red")
	require.NotContains(t, joined, "<p>")
}

func TestWebOpenPagination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<p>one</p><p>two</p><p>three</p>")
	}))
	defer server.Close()

	wt := NewWebTools(WebConfig{})
	args, _ := json.Marshal(map[string]interface{}{"url": server.URL, "offset": 2, "limit": 1})
	out, err := wt.webOpen(context.Background(), args)
	require.NoError(t, err)

	var result webOpenResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Equal(t, 2, result.StartLine)
	require.Equal(t, 2, result.EndLine)
	require.Len(t, result.Lines, 1)
	require.Equal(t, "2: two", result.Lines[0])
}

func TestWebFindUsesCachedPage(t *testing.T) {
	fetches := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		io.WriteString(w, "<p>alpha</p><p>needle here</p><p>omega</p>")
	}))
	defer server.Close()

	wt := NewWebTools(WebConfig{})
	openArgs, _ := json.Marshal(map[string]interface{}{"url": server.URL})
	_, err := wt.webOpen(context.Background(), openArgs)
	require.NoError(t, err)

	findArgs, _ := json.Marshal(map[string]interface{}{"url": server.URL, "pattern": "needle"})
	out, err := wt.webFind(context.Background(), findArgs)
	require.NoError(t, err)
	require.Equal(t, 1, fetches, "web_find should reuse the fetched page")

	var result webFindResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Matches, 1)
	match := result.Matches[0]
	require.Equal(t, 2, match.MatchLine)
	require.Equal(t, 1, match.StartLine)
	require.Equal(t, 3, match.EndLine)
	require.Len(t, match.Lines, 3)
	require.Equal(t, "2: needle here", match.Lines[1])
}

func TestWebFindTruncatesAtMaxResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<p>hit</p><p>hit</p><p>hit</p>")
	}))
	defer server.Close()

	wt := NewWebTools(WebConfig{})
	args, _ := json.Marshal(map[string]interface{}{
		"url": server.URL, "pattern": "hit", "max_results": 2, "context_lines": 0,
	})
	out, err := wt.webFind(context.Background(), args)
	require.NoError(t, err)

	var result webFindResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Matches, 2)
	require.True(t, result.Truncated)
}

func TestWebFindBadPattern(t *testing.T) {
	wt := NewWebTools(WebConfig{})
	args := json.RawMessage(`{"url": "https://example.com", "pattern": "("}`)
	out, err := wt.webFind(context.Background(), args)
	require.NoError(t, err)
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	require.Contains(t, payload["error"], "invalid regex pattern")
}

func TestExtractTextLines(t *testing.T) {
	lines := extractTextLines("plain text\nno markup")
	require.Equal(t, []string{"plain text", "no markup"}, lines)
}
