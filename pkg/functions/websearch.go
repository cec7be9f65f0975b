package functions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SetWeb is the out-of-context web-access function set, grounded on
// llm_os/functions/function_sets/web.py. The spec lists "the web-search
// client" as an external collaborator: interface only. Searcher is that
// contract; web_fetch has a real (if minimal) implementation since
// fetching a URL over HTTP needs no external service.
const SetWeb SetName = "web"

// ErrSearchNotConfigured is returned by the stub Searcher when no real
// backend has been wired.
var ErrSearchNotConfigured = errors.New("web search backend not configured")

// SearchHit is one web search result.
type SearchHit struct {
	Title string
	URL   string
	Snip  string
}

// Searcher is the external web-search collaborator's contract.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchHit, error)
}

// StubSearcher always returns ErrSearchNotConfigured. It satisfies
// Searcher so the runtime can start without a configured provider; the
// web_search tool surfaces the error to the model as a normal tool
// failure (Status: Failed. Result: …), not a crash.
type StubSearcher struct{}

func (StubSearcher) Search(context.Context, string, int) ([]SearchHit, error) {
	return nil, ErrSearchNotConfigured
}

var initWebOnce bool //nolint:gochecknoglobals // guarded by RegisterWeb's idempotency check

// RegisterWeb registers the web-search and URL-fetch functions as
// out-of-context (discoverable by embedding search, per spec.md 4.5).
// Call once at process startup, before Seal().
func RegisterWeb() {
	if initWebOnce {
		return
	}
	initWebOnce = true

	Register(SetWeb, false, Definition{
		Name:        "web_search",
		Description: "Search the web for current information not in your training data.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]*Property{
				"query": {Type: "string", Description: "Search query."},
			},
			Required: []string{"query"},
		},
	}, []string{"query"}, newWebSearch)

	Register(SetWeb, false, Definition{
		Name:        "web_fetch",
		Description: "Fetch a URL and return up to the first 4096 bytes of its raw response body.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]*Property{
				"url": {Type: "string", Description: "URL to fetch."},
			},
			Required: []string{"url"},
		},
	}, []string{"url"}, newWebFetch)
}

type webSearchTool struct{ search Searcher }

func newWebSearch(d *Deps) (Tool, error) {
	s := d.WebSearch
	if s == nil {
		s = StubSearcher{}
	}
	return &webSearchTool{search: s}, nil
}
func (t *webSearchTool) Name() string { return "web_search" }
func (t *webSearchTool) Definition() Definition {
	e, _ := Lookup(t.Name())
	return e.Meta
}

func (t *webSearchTool) Exec(ctx context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	hits, err := t.search.Search(ctx, query, 5)
	if err != nil {
		return nil, err
	}
	out := ""
	for _, h := range hits {
		out += fmt.Sprintf("- %s (%s): %s\n", h.Title, h.URL, h.Snip)
	}
	return out, nil
}

const webFetchMaxBytes = 4096

type webFetchTool struct{ client *http.Client }

func newWebFetch(*Deps) (Tool, error) {
	return &webFetchTool{client: &http.Client{Timeout: 10 * time.Second}}, nil
}
func (t *webFetchTool) Name() string { return "web_fetch" }
func (t *webFetchTool) Definition() Definition {
	e, _ := Lookup(t.Name())
	return e.Meta
}

func (t *webFetchTool) Exec(ctx context.Context, args map[string]any) (any, error) {
	rawURL, _ := args["url"].(string)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, webFetchMaxBytes))
	if err != nil {
		return nil, err
	}
	return string(body), nil
}
