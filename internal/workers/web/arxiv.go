package web

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// arXiv is dispatched as one more WebSource within the shared web Worker
// (a task's Sources list is either [tavily, wikipedia] or [arxiv], never
// both), so its query-building and ranking logic lives here as methods on
// Worker rather than a separate lane worker / TaskKind.

var (
	yearPattern    = regexp.MustCompile(`\b(20\d{2})\b`)
	quotedTitlePat = regexp.MustCompile(`"([^"]{6,})"`)
	trailingCuePat = regexp.MustCompile(`(?i)\b(in|from|on|about)\b\s*$`)
)

var genaiHintTerms = []string{
	"gen ai", "genai", "generative ai", "foundation model", "foundation models",
	"large language model", "large language models", "llm", "llms",
}

var genaiBoostTerms = []string{
	"generative ai", "generative model", "foundation model", "large language model",
	"llm", "diffusion", "text-to-image", "text to image", "image generation",
	"prompting", "instruction tuning", "rlhf", "rlaif", "multimodal",
}

var topicStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "in": true, "on": true, "for": true,
	"about": true, "of": true, "to": true, "and": true, "paper": true,
	"papers": true, "research": true, "recent": true, "latest": true,
	"find": true, "me": true, "can": true, "you": true, "please": true,
	"show": true, "list": true, "get": true, "search": true, "from": true,
	"arxiv": true, "is": true, "this": true, "that": true, "with": true,
	"using": true, "by": true, "at": true, "as": true,
}

func isGenAIIntent(topic string) bool {
	low := strings.ToLower(topic)
	for _, h := range genaiHintTerms {
		if strings.Contains(low, h) {
			return true
		}
	}
	return false
}

func extractTitleHint(topic string) string {
	if m := quotedTitlePat.FindStringSubmatch(topic); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func topicTerms(topic string) []string {
	low := strings.ToLower(topic)
	fields := strings.FieldsFunc(low, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-')
	})
	var out []string
	for _, f := range fields {
		if !topicStopwords[f] && len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

func buildEffectiveQuery(topic string, year int, titleHint string) string {
	clean := strings.TrimSpace(topic)
	var apiQuery string
	switch {
	case titleHint != "":
		apiQuery = fmt.Sprintf(`ti:"%s" OR all:"%s"`, titleHint, titleHint)
	case isGenAIIntent(clean):
		genaiClause := `(all:"generative ai" OR all:"large language model" OR all:llm OR all:"foundation model" OR all:diffusion OR all:"text-to-image" OR all:multimodal)`
		apiQuery = "cat:cs.* AND " + genaiClause
	default:
		apiQuery = "all:" + clean
	}
	if year > 0 {
		apiQuery = fmt.Sprintf("%s AND submittedDate:[%d01010000 TO %d12312359]", apiQuery, year, year)
	}
	return apiQuery
}

// arxivPaper is one ranked arXiv search hit, prior to being folded into a
// generic web Item.
type arxivPaper struct {
	Title     string
	URL       string
	PDFURL    string
	Summary   string
	Authors   []string
	Published string
}

func scoreRow(p arxivPaper, terms []string, genaiIntent bool, titleHint string) int {
	title := strings.ToLower(p.Title)
	summary := strings.ToLower(p.Summary)
	score := 0

	if titleHint != "" {
		normTitle := normalizeForMatch(title)
		normHint := normalizeForMatch(titleHint)
		switch {
		case normTitle == normHint:
			score += 1000
		case strings.Contains(normTitle, normHint):
			score += 450
		}
		hintTokens := strings.Fields(normHint)
		var kept []string
		for _, t := range hintTokens {
			if len(t) >= 3 {
				kept = append(kept, t)
			}
		}
		if len(kept) > 0 {
			overlap := 0
			for _, t := range kept {
				if strings.Contains(normTitle, t) {
					overlap++
				}
			}
			score += overlap * 250 / len(kept)
		}
	}

	for _, term := range terms {
		switch {
		case strings.Contains(title, term):
			score += 5
		case strings.Contains(summary, term):
			score += 2
		}
	}

	if genaiIntent {
		for _, term := range genaiBoostTerms {
			switch {
			case strings.Contains(title, term):
				score += 6
			case strings.Contains(summary, term):
				score += 3
			}
		}
	}

	if p.Published != "" {
		score++
	}
	return score
}

var nonAlnumPattern = regexp.MustCompile(`[^a-z0-9\s]+`)
var whitespacePattern = regexp.MustCompile(`\s+`)

func normalizeForMatch(s string) string {
	s = strings.ToLower(s)
	s = nonAlnumPattern.ReplaceAllString(s, " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// rankAndFilter mirrors the scored-then-thresholded selection: a title-hint
// search requires a strong match (score >= 120), an open-topic search keeps
// anything with positive signal, and either falls back to the best-effort
// ranked list if too few rows clear the bar.
func rankAndFilter(rows []arxivPaper, topic string, topK int, titleHint string) []arxivPaper {
	terms := topicTerms(topic)
	genaiIntent := isGenAIIntent(topic)

	type scored struct {
		row   arxivPaper
		score int
	}
	ranked := make([]scored, len(rows))
	for i, r := range rows {
		ranked[i] = scored{row: r, score: scoreRow(r, terms, genaiIntent, titleHint)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	var filtered []arxivPaper
	if titleHint != "" {
		for _, r := range ranked {
			if r.score >= 120 {
				filtered = append(filtered, r.row)
			}
		}
	} else {
		for _, r := range ranked {
			if r.score > 0 {
				filtered = append(filtered, r.row)
			}
		}
	}
	if len(filtered) < maxInt(1, topK) {
		filtered = filtered[:0]
		for _, r := range ranked {
			filtered = append(filtered, r.row)
		}
	}
	if len(filtered) > maxInt(1, topK) {
		filtered = filtered[:maxInt(1, topK)]
	}
	return filtered
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string       `xml:"title"`
	ID        string       `xml:"id"`
	Summary   string       `xml:"summary"`
	Published string       `xml:"published"`
	Links     []atomLink   `xml:"link"`
	Authors   []atomAuthor `xml:"author"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
	Rel  string `xml:"rel,attr"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

// fetchArxiv builds an effective query from the raw user query, fetches the
// arXiv Atom feed, ranks results, and folds them into generic web Items.
func (w *Worker) fetchArxiv(ctx context.Context, query string) ([]Item, error) {
	q := strings.TrimSpace(query)
	topK := 5

	year := 0
	if m := yearPattern.FindString(q); m != "" {
		year, _ = strconv.Atoi(m)
	}
	topic := yearPattern.ReplaceAllString(q, " ")
	topic = trailingCuePat.ReplaceAllString(strings.TrimSpace(topic), "")
	if topic == "" {
		topic = q
	}
	titleHint := extractTitleHint(topic)
	apiQuery := buildEffectiveQuery(topic, year, titleHint)

	sortBy := "submittedDate"
	if titleHint != "" {
		sortBy = "relevance"
	}
	maxResults := topK * 6
	if maxResults < 15 {
		maxResults = 15
	}

	rows, err := w.queryArxivAPI(ctx, apiQuery, maxResults, sortBy)
	if err != nil {
		return nil, fmt.Errorf("arxiv: %w", err)
	}

	if year > 0 {
		filtered := rows[:0]
		for _, r := range rows {
			if strings.HasPrefix(r.Published, strconv.Itoa(year)) {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}

	ranked := rankAndFilter(rows, topic, topK, titleHint)

	items := make([]Item, 0, len(ranked))
	for _, r := range ranked {
		items = append(items, Item{Title: r.Title, URL: r.URL, Published: r.Published, Summary: r.Summary})
	}
	return items, nil
}

func (w *Worker) queryArxivAPI(ctx context.Context, apiQuery string, maxResults int, sortBy string) ([]arxivPaper, error) {
	u := fmt.Sprintf(
		"http://export.arxiv.org/api/query?search_query=%s&start=0&max_results=%d&sortBy=%s&sortOrder=descending",
		url.QueryEscape(apiQuery), maxResults, sortBy,
	)
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
		return nil, fmt.Errorf("status %s", resp.Status)
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, err
	}

	rows := make([]arxivPaper, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		var absURL, pdfURL string
		for _, l := range e.Links {
			switch {
			case l.Type == "application/pdf":
				pdfURL = l.Href
			case l.Href != "" && absURL == "":
				absURL = l.Href
			}
		}
		if absURL == "" {
			absURL = e.ID
		}
		if !strings.Contains(absURL, "/abs/") {
			continue
		}
		authors := make([]string, 0, len(e.Authors))
		for _, au := range e.Authors {
			authors = append(authors, au.Name)
		}
		rows = append(rows, arxivPaper{
			Title:     whitespacePattern.ReplaceAllString(strings.TrimSpace(e.Title), " "),
			URL:       absURL,
			PDFURL:    pdfURL,
			Summary:   whitespacePattern.ReplaceAllString(strings.TrimSpace(e.Summary), " "),
			Authors:   authors,
			Published: e.Published,
		})
	}
	return rows, nil
}
