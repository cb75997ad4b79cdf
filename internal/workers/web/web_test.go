package web

import (
	"testing"

	"lanecore/internal/turnstate"
)

func TestKind_ReturnsWeb(t *testing.T) {
	w := &Worker{}
	if w.Kind() != turnstate.TaskWeb {
		t.Fatalf("expected TaskWeb, got %v", w.Kind())
	}
}

func TestHostOf_ParsesHost(t *testing.T) {
	if got := hostOf("https://www.google.com/search?q=x"); got != "www.google.com" {
		t.Fatalf("got %q", got)
	}
}

func TestNewsLikePattern_MatchesCueWords(t *testing.T) {
	if !newsLikePattern.MatchString("what's the latest breaking news") {
		t.Fatal("expected news-like query to match")
	}
	if newsLikePattern.MatchString("what is a binary search tree") {
		t.Fatal("expected non-news query to not match")
	}
}

func TestAggregatorHostPattern_MatchesSearchEngineHosts(t *testing.T) {
	if !aggregatorHostPattern.MatchString("www.google.com") {
		t.Fatal("expected google host to match aggregator pattern")
	}
	if aggregatorHostPattern.MatchString("en.wikipedia.org") {
		t.Fatal("expected wikipedia host to not match aggregator pattern")
	}
}

func TestTruncate_ClampsLength(t *testing.T) {
	if got := truncate("hello world", 5); got != "hello" {
		t.Fatalf("got %q", got)
	}
	if got := truncate("hi", 5); got != "hi" {
		t.Fatalf("got %q", got)
	}
}

func TestStripTags_RemovesHTML(t *testing.T) {
	if got := stripTags(`<span class="x">hello</span> world`); got != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestFetchSource_UnsupportedSourceErrors(t *testing.T) {
	w := &Worker{}
	_, err := w.fetchSource(nil, turnstate.WebSource("bogus"), "q")
	if err == nil {
		t.Fatal("expected error for unsupported source")
	}
}
