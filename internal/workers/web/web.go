// Package web implements the web-multi lane worker: it dispatches a query
// to each enumerated source concurrently, unions results, and reports
// ok = any(ok). A task's Sources list is built by the tool router
// (tavily + wikipedia by default, or arxiv alone, also served by this
// worker; see arxiv.go).
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"lanecore/internal/config"
	"lanecore/internal/turnstate"
)

// DefaultTimeout matches spec.md §5's external-SDK timeout for web tools.
const DefaultTimeout = 12 * time.Second

// Worker dispatches a web task to its enumerated sources.
type Worker struct {
	TavilyAPIKey string
	HTTPClient   *http.Client
	Timeout      time.Duration
}

// New builds a web Worker from process config.
func New(cfg config.Config) *Worker {
	return &Worker{
		TavilyAPIKey: cfg.TavilyAPIKey,
		HTTPClient:   &http.Client{Timeout: DefaultTimeout},
		Timeout:      DefaultTimeout,
	}
}

func (w *Worker) Kind() turnstate.TaskKind { return turnstate.TaskWeb }

// Item is one search hit returned by a source.
type Item struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Published string `json:"published,omitempty"`
	Summary   string `json:"summary,omitempty"`
}

var aggregatorHostPattern = regexp.MustCompile(`(?i)^(www\.)?(google|bing|duckduckgo)\.`)

// newsLikePattern mirrors the tool router's cue-word detection so the
// worker can apply the same "strip aggregator URLs" rule independently of
// how the task was constructed.
var newsLikePattern = regexp.MustCompile(`(?i)\b(news|breaking|today|latest|headline)\b`)

func (w *Worker) Run(ctx context.Context, task turnstate.Task) turnstate.ToolResult {
	sources := task.Sources
	if len(sources) == 0 {
		sources = []turnstate.WebSource{turnstate.WebSourceTavily, turnstate.WebSourceWikipedia}
	}

	type sourceResult struct {
		source turnstate.WebSource
		items  []Item
		ok     bool
		err    string
	}
	results := make([]sourceResult, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			items, err := w.fetchSource(gctx, src, task.Query)
			r := sourceResult{source: src, items: items, ok: err == nil}
			if err != nil {
				r.err = err.Error()
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()

	newsLike := newsLikePattern.MatchString(task.Query)

	var allItems []Item
	var citations []turnstate.Citation
	anyOK := false
	var errs []string
	for _, r := range results {
		if r.ok {
			anyOK = true
		} else if r.err != "" {
			errs = append(errs, string(r.source)+": "+r.err)
		}
		for _, it := range r.items {
			if newsLike && aggregatorHostPattern.MatchString(hostOf(it.URL)) {
				continue
			}
			allItems = append(allItems, it)
			citations = append(citations, turnstate.Citation{Title: it.Title, URL: it.URL, Snippet: it.Summary})
		}
	}

	data := map[string]any{"items": allItems, "news_like": newsLike}
	res := turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskWeb, OK: anyOK, Data: data, Citations: citations}
	if !anyOK && len(errs) > 0 {
		res.Error = strings.Join(errs, "; ")
	}
	return res
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

func (w *Worker) fetchSource(ctx context.Context, src turnstate.WebSource, query string) ([]Item, error) {
	switch src {
	case turnstate.WebSourceTavily:
		return w.fetchTavily(ctx, query)
	case turnstate.WebSourceWikipedia:
		return w.fetchWikipedia(ctx, query)
	case turnstate.WebSourceArxiv:
		return w.fetchArxiv(ctx, query)
	default:
		return nil, fmt.Errorf("web: unsupported source %q", src)
	}
}

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

type tavilyResponse struct {
	Results []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		Content       string `json:"content"`
		PublishedDate string `json:"published_date"`
	} `json:"results"`
}

func (w *Worker) fetchTavily(ctx context.Context, query string) ([]Item, error) {
	if w.TavilyAPIKey == "" {
		return nil, fmt.Errorf("tavily api key not configured")
	}
	body, err := json.Marshal(tavilyRequest{APIKey: w.TavilyAPIKey, Query: query, MaxResults: 5, IncludeAnswer: false})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.tavily.com/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("tavily: status %s", resp.Status)
	}
	var out tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(out.Results))
	for _, r := range out.Results {
		items = append(items, Item{Title: r.Title, URL: r.URL, Published: r.PublishedDate, Summary: truncate(r.Content, 400)})
	}
	return items, nil
}

type wikiSearchResponse struct {
	Query struct {
		Search []struct {
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
		} `json:"search"`
	} `json:"query"`
}

func (w *Worker) fetchWikipedia(ctx context.Context, query string) ([]Item, error) {
	u := "https://en.wikipedia.org/w/api.php?action=query&list=search&format=json&srlimit=5&srsearch=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := w.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("wikipedia: status %s", resp.Status)
	}
	var out wikiSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(out.Query.Search))
	for _, r := range out.Query.Search {
		items = append(items, Item{
			Title:   r.Title,
			URL:     "https://en.wikipedia.org/wiki/" + url.PathEscape(strings.ReplaceAll(r.Title, " ", "_")),
			Summary: stripTags(r.Snippet),
		})
	}
	return items, nil
}

func (w *Worker) client() *http.Client {
	if w.HTTPClient != nil {
		return w.HTTPClient
	}
	return &http.Client{Timeout: DefaultTimeout}
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

func stripTags(s string) string {
	return tagPattern.ReplaceAllString(s, "")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
