package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultSearchURL is the Tavily API endpoint used for web_search.
	DefaultSearchURL = "https://api.tavily.com"

	defaultSearchResults  = 5
	maxSearchResults      = 20
	defaultFindResults    = 20
	maxFindResults        = 100
	defaultFindContext    = 1
	maxWebResponseBytes   = 4 << 20
	defaultWebHTTPTimeout = 30 * time.Second
)

// WebConfig configures the optional web tool suite.
type WebConfig struct {
	// APIKey authenticates web_search requests against the Tavily API.
	APIKey string
	// SearchURL overrides the Tavily base URL. Defaults to DefaultSearchURL.
	SearchURL string
	// HTTPClient overrides the HTTP client used for all web tools.
	HTTPClient *http.Client
}

// WebTools implements web_search, web_open, and web_find. Pages fetched by
// web_open are cached by URL so a following web_find on the same URL does
// not refetch.
type WebTools struct {
	cfg    WebConfig
	client *http.Client

	mu    sync.Mutex
	pages map[string][]string // url -> extracted text lines
}

// NewWebTools returns a WebTools backed by the given config.
func NewWebTools(cfg WebConfig) *WebTools {
	if cfg.SearchURL == "" {
		cfg.SearchURL = DefaultSearchURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultWebHTTPTimeout}
	}
	return &WebTools{
		cfg:    cfg,
		client: client,
		pages:  map[string][]string{},
	}
}

// RegisterWebTools registers web_search, web_open, and web_find on a
// ToolRegistry.
func RegisterWebTools(reg *ToolRegistry, wt *WebTools) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        "web_search",
			Description: "Searches the web and returns ranked results.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "Search query.",
					},
					"max_results": map[string]interface{}{
						"type":        []interface{}{"integer", "null"},
						"minimum":     1.0,
						"default":     defaultSearchResults,
						"description": "Maximum number of results to return (>= 1).",
					},
				},
				"required":             []interface{}{"query", "max_results"},
				"additionalProperties": false,
			},
		},
		Executor: wt.webSearch,
	})
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        "web_open",
			Description: "Fetches a URL and returns its extracted text with numbered lines.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"url": map[string]interface{}{
						"type":        "string",
						"description": "URL to open.",
					},
					"offset": map[string]interface{}{
						"type":        []interface{}{"integer", "null"},
						"minimum":     1.0,
						"default":     1,
						"description": "1-indexed start line (>= 1).",
					},
					"limit": map[string]interface{}{
						"type":        []interface{}{"integer", "null"},
						"minimum":     1.0,
						"default":     DefaultReadLimit,
						"description": "Maximum number of lines to return (>= 1).",
					},
				},
				"required":             []interface{}{"url", "offset", "limit"},
				"additionalProperties": false,
			},
		},
		Executor: wt.webOpen,
	})
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        "web_find",
			Description: "Searches the extracted text of a page for a pattern.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"url": map[string]interface{}{
						"type":        "string",
						"description": "URL of the page to search.",
					},
					"pattern": map[string]interface{}{
						"type":        "string",
						"description": "Regular expression (RE2 syntax) to search for.",
					},
					"max_results": map[string]interface{}{
						"type":        []interface{}{"integer", "null"},
						"minimum":     1.0,
						"default":     defaultFindResults,
						"description": "Maximum number of matches to return (>= 1).",
					},
					"context_lines": map[string]interface{}{
						"type":        []interface{}{"integer", "null"},
						"minimum":     0.0,
						"default":     defaultFindContext,
						"description": "Lines of context around each match (>= 0).",
					},
				},
				"required":             []interface{}{"url", "pattern", "max_results", "context_lines"},
				"additionalProperties": false,
			},
		},
		Executor: wt.webFind,
	})
}

type webSearchArgs struct {
	Query      string `json:"query"`
	MaxResults *int   `json:"max_results"`
}

type webSearchHit struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type webSearchResult struct {
	Query   string         `json:"query"`
	Results []webSearchHit `json:"results"`
}

func (wt *WebTools) webSearch(ctx context.Context, raw json.RawMessage) (string, error) {
	var args webSearchArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("invalid web_search arguments: %w", err)
	}
	if wt.cfg.APIKey == "" {
		return ToolError("web_search is not configured: missing Tavily API key"), nil
	}

	maxResults := defaultSearchResults
	if args.MaxResults != nil {
		maxResults = *args.MaxResults
	}
	if maxResults < 1 {
		return ToolError("invalid max_results: web_search.max_results must be >= 1"), nil
	}
	if maxResults > maxSearchResults {
		maxResults = maxSearchResults
	}

	body, err := json.Marshal(map[string]interface{}{
		"api_key":     wt.cfg.APIKey,
		"query":       args.Query,
		"max_results": maxResults,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(wt.cfg.SearchURL, "/")+"/search", strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := wt.client.Do(req)
	if err != nil {
		return ToolError(fmt.Sprintf("web_search request failed: %v", err)), nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxWebResponseBytes))
	if err != nil {
		return ToolError(fmt.Sprintf("web_search response read failed: %v", err)), nil
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := Truncate(string(data), 500)
		return ToolError(fmt.Sprintf("web_search failed with status %d: %s", resp.StatusCode, msg)), nil
	}

	var parsed struct {
		Results []webSearchHit `json:"results"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return ToolError(fmt.Sprintf("web_search returned malformed JSON: %v", err)), nil
	}
	if parsed.Results == nil {
		parsed.Results = []webSearchHit{}
	}
	if len(parsed.Results) > maxResults {
		parsed.Results = parsed.Results[:maxResults]
	}

	out, err := json.Marshal(webSearchResult{Query: args.Query, Results: parsed.Results})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

type webOpenArgs struct {
	URL    string `json:"url"`
	Offset *int   `json:"offset"`
	Limit  *int   `json:"limit"`
}

type webOpenResult struct {
	URL        string   `json:"url"`
	TotalLines int      `json:"total_lines"`
	StartLine  int      `json:"start_line"`
	EndLine    int      `json:"end_line"`
	Lines      []string `json:"lines"`
}

func (wt *WebTools) webOpen(ctx context.Context, raw json.RawMessage) (string, error) {
	var args webOpenArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("invalid web_open arguments: %w", err)
	}

	offset := 1
	if args.Offset != nil {
		offset = *args.Offset
	}
	limit := DefaultReadLimit
	if args.Limit != nil && *args.Limit < limit {
		limit = *args.Limit
	}
	if offset < 1 || limit < 1 {
		return ToolError("invalid pagination: web_open.offset and web_open.limit must be >= 1 (offset is 1-indexed)"), nil
	}

	lines, toolErr, err := wt.pageLines(ctx, args.URL)
	if err != nil {
		return "", err
	}
	if toolErr != "" {
		return toolErr, nil
	}

	total := len(lines)
	if offset > total && total > 0 {
		return ToolError(fmt.Sprintf("offset (%d) is beyond total lines (%d)", offset, total)), nil
	}

	result := webOpenResult{URL: args.URL, Lines: []string{}}
	if total > 0 {
		end := offset + limit - 1
		if end > total {
			end = total
		}
		result.TotalLines = total
		result.StartLine = offset
		result.EndLine = end
		numbered := make([]string, 0, end-offset+1)
		for i := offset; i <= end; i++ {
			numbered = append(numbered, fmt.Sprintf("%d: %s", i, lines[i-1]))
		}
		result.Lines = numbered
	}

	out, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

type webFindArgs struct {
	URL          string `json:"url"`
	Pattern      string `json:"pattern"`
	MaxResults   *int   `json:"max_results"`
	ContextLines *int   `json:"context_lines"`
}

type webFindMatch struct {
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`
	MatchLine int      `json:"match_line"`
	Lines     []string `json:"lines"`
}

type webFindResult struct {
	URL       string         `json:"url"`
	Pattern   string         `json:"pattern"`
	Matches   []webFindMatch `json:"matches"`
	Truncated bool           `json:"truncated"`
}

func (wt *WebTools) webFind(ctx context.Context, raw json.RawMessage) (string, error) {
	var args webFindArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("invalid web_find arguments: %w", err)
	}

	maxResults := defaultFindResults
	if args.MaxResults != nil {
		maxResults = *args.MaxResults
	}
	if maxResults < 1 {
		return ToolError("invalid max_results: web_find.max_results must be >= 1"), nil
	}
	if maxResults > maxFindResults {
		maxResults = maxFindResults
	}
	contextLines := defaultFindContext
	if args.ContextLines != nil {
		contextLines = *args.ContextLines
	}
	if contextLines < 0 {
		return ToolError("invalid context_lines: web_find.context_lines must be >= 0"), nil
	}

	pattern, err := regexp.Compile(args.Pattern)
	if err != nil {
		return ToolError(fmt.Sprintf("invalid regex pattern: %s: %v", args.Pattern, err)), nil
	}

	lines, toolErr, err := wt.pageLines(ctx, args.URL)
	if err != nil {
		return "", err
	}
	if toolErr != "" {
		return toolErr, nil
	}

	matches := []webFindMatch{}
	truncated := false
	for i, line := range lines {
		if !pattern.MatchString(line) {
			continue
		}
		if len(matches) >= maxResults {
			truncated = true
			break
		}
		start := i - contextLines
		if start < 0 {
			start = 0
		}
		end := i + contextLines
		if end > len(lines)-1 {
			end = len(lines) - 1
		}
		numbered := make([]string, 0, end-start+1)
		for j := start; j <= end; j++ {
			numbered = append(numbered, fmt.Sprintf("%d: %s", j+1, lines[j]))
		}
		matches = append(matches, webFindMatch{
			StartLine: start + 1,
			EndLine:   end + 1,
			MatchLine: i + 1,
			Lines:     numbered,
		})
	}

	out, err := json.Marshal(webFindResult{
		URL:       args.URL,
		Pattern:   args.Pattern,
		Matches:   matches,
		Truncated: truncated,
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// pageLines returns the extracted text lines for a URL, fetching and caching
// on first use. The second return value is a non-empty tool error payload
// when the fetch failed in a way the model should see.
func (wt *WebTools) pageLines(ctx context.Context, url string) ([]string, string, error) {
	wt.mu.Lock()
	lines, ok := wt.pages[url]
	wt.mu.Unlock()
	if ok {
		return lines, "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, ToolError(fmt.Sprintf("invalid url: %v", err)), nil
	}
	req.Header.Set("User-Agent", "ra/0.1")

	resp, err := wt.client.Do(req)
	if err != nil {
		return nil, ToolError(fmt.Sprintf("fetch failed: %v", err)), nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxWebResponseBytes))
	if err != nil {
		return nil, ToolError(fmt.Sprintf("fetch read failed: %v", err)), nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ToolError(fmt.Sprintf("fetch failed with status %d", resp.StatusCode)), nil
	}

	lines = extractTextLines(string(data))
	wt.mu.Lock()
	wt.pages[url] = lines
	wt.mu.Unlock()
	return lines, "", nil
}

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style|noscript)\b[^>]*>.*?</(script|style|noscript)>`)
	blockTagRe    = regexp.MustCompile(`(?i)</?(p|div|br|li|ul|ol|tr|td|th|table|h[1-6]|section|article|header|footer|nav|blockquote|pre|main|aside|form|hr)\b[^>]*>`)
	anyTagRe      = regexp.MustCompile(`<[^>]+>`)
)

// extractTextLines converts an HTML document to plain text lines. Block-level
// tags become line breaks, remaining tags are stripped, entities are decoded,
// and blank lines are dropped so line numbers stay dense. Non-HTML input
// passes through mostly unchanged.
func extractTextLines(body string) []string {
	text := scriptStyleRe.ReplaceAllString(body, "\n")
	text = blockTagRe.ReplaceAllString(text, "\n")
	text = anyTagRe.ReplaceAllString(text, "")
	text = html.UnescapeString(text)

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}
