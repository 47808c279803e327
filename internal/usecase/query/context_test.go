package query

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kailas-cloud/docqa/internal/domain/chunk"
	"github.com/kailas-cloud/docqa/internal/domain/search/result"
)

func hit(text string, meta map[string]string, score float64) result.Result {
	return result.New(chunk.New("doc", 0, text, meta), score)
}

func TestBuildContext_HeadersAndSeparator(t *testing.T) {
	hits := []result.Result{
		hit("  first passage ", map[string]string{"page_number": "3", "source": "a.pdf"}, 0.9),
		hit("second passage", map[string]string{"source": "b.md"}, 0.8),
		hit("third passage", nil, 0.7),
	}

	got := BuildContext(hits, DefaultHeaders, 4500)
	want := "[p.3 • a.pdf] first passage" + ContextSeparator +
		"[b.md] second passage" + ContextSeparator +
		"third passage"
	if got != want {
		t.Errorf("got:\n%q\nwant:\n%q", got, want)
	}
}

func TestBuildContext_Cap(t *testing.T) {
	block := strings.Repeat("x", 100)
	hits := []result.Result{hit(block, nil, 3), hit(block, nil, 2), hit(block, nil, 1)}

	sep := utf8.RuneCountInString(ContextSeparator)
	got := BuildContext(hits, nil, 200+sep)
	if n := strings.Count(got, ContextSeparator); n != 1 {
		t.Errorf("expected exactly two blocks, got %d separators", n)
	}
	if utf8.RuneCountInString(got) > 200+sep {
		t.Errorf("context exceeds cap: %d", utf8.RuneCountInString(got))
	}
}

func TestBuildContext_TruncatesOversizedFirstBlock(t *testing.T) {
	hits := []result.Result{hit(strings.Repeat("ж", 50), nil, 1)}

	got := BuildContext(hits, nil, 10)
	if utf8.RuneCountInString(got) != 10 {
		t.Errorf("expected 10 runes, got %d", utf8.RuneCountInString(got))
	}
	if !utf8.ValidString(got) {
		t.Error("truncation split a rune")
	}
}

func TestBuildContext_Empty(t *testing.T) {
	if got := BuildContext(nil, DefaultHeaders, 100); got != "" {
		t.Errorf("expected empty context, got %q", got)
	}
}

func TestCompilePatterns(t *testing.T) {
	res, err := CompilePatterns(DefaultSmalltalkPatterns)
	if err != nil {
		t.Fatalf("default patterns must compile: %v", err)
	}
	if !matchAny(res, "ПРИВЕТ") {
		t.Error("patterns should be case-insensitive")
	}
	if matchAny(res, "приветствие в отчёте") {
		t.Error("word prefix should not match")
	}
	if _, err := CompilePatterns([]string{"("}); err == nil {
		t.Error("expected compile error")
	}
}
