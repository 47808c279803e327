// Package chunker splits documents into overlapping, retrieval-sized chunks.
package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kailas-cloud/docqa/internal/domain/chunk"
	"github.com/kailas-cloud/docqa/internal/domain/document"
)

// DefaultMaxSize is the default number of characters per chunk.
const DefaultMaxSize = 3000

// DefaultOverlap is the default number of overlapping characters.
const DefaultOverlap = 300

// Boundary selects where a window may end.
type Boundary string

// Boundary heuristics.
const (
	BoundaryNone      Boundary = "none"
	BoundarySentence  Boundary = "sentence"
	BoundaryParagraph Boundary = "paragraph"
)

// ParseBoundary converts a config value into a Boundary.
func ParseBoundary(s string) (Boundary, error) {
	switch b := Boundary(strings.ToLower(strings.TrimSpace(s))); b {
	case BoundaryNone, BoundarySentence, BoundaryParagraph:
		return b, nil
	case "":
		return BoundarySentence, nil
	default:
		return "", fmt.Errorf("unknown chunk boundary %q", s)
	}
}

// Chunker splits document text into windows of at most maxSize runes.
type Chunker struct {
	maxSize  int
	overlap  int
	boundary Boundary
}

// Option configures the chunker.
type Option func(*Chunker)

// WithMaxSize sets the window size in characters.
func WithMaxSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.maxSize = size
		}
	}
}

// WithOverlap sets the overlap between consecutive windows in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// WithBoundary sets the boundary heuristic.
func WithBoundary(b Boundary) Option {
	return func(c *Chunker) {
		if b != "" {
			c.boundary = b
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		maxSize:  DefaultMaxSize,
		overlap:  DefaultOverlap,
		boundary: BoundarySentence,
	}
	for _, opt := range opts {
		opt(c)
	}

	// overlap must leave room to advance
	if c.overlap >= c.maxSize {
		c.overlap = c.maxSize / 4
	}
	return c
}

// MaxSize returns the configured window size.
func (c *Chunker) MaxSize() int { return c.maxSize }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits the document into chunks. Chunk text is not trimmed, so the
// concatenation of non-overlapping parts reproduces the document exactly.
func (c *Chunker) Chunk(doc document.Document) []chunk.Chunk {
	spans := c.Split(doc.Text())
	if len(spans) == 0 {
		return nil
	}

	chunks := make([]chunk.Chunk, len(spans))
	for i, s := range spans {
		chunks[i] = chunk.New(doc.ID(), i, s, doc.Metadata())
	}
	return chunks
}

// Split returns the window texts for text. Blank text yields nil.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	spans := c.spans(runes)
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = string(runes[s.start:s.end])
	}
	return out
}

type span struct{ start, end int }

func (c *Chunker) spans(runes []rune) []span {
	n := len(runes)
	out := make([]span, 0, n/(c.maxSize-c.overlap)+1)

	start := 0
	for start < n {
		end := start + c.maxSize
		if end >= n {
			out = append(out, span{start, n})
			break
		}
		end = c.cut(runes, start, end)
		out = append(out, span{start, end})

		// overlap never exceeds half of a window shortened by a boundary cut
		next := end
		if ov := min(c.overlap, (end-start)/2); ov > 0 {
			next = snapToWord(runes, end-ov, end)
		}
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return out
}

// cut picks the window end in (start, limit]. limit < len(runes).
func (c *Chunker) cut(runes []rune, start, limit int) int {
	var levels []func([]rune, int) bool
	switch c.boundary {
	case BoundaryParagraph:
		levels = []func([]rune, int) bool{isParagraphEnd, isWordEnd}
	case BoundarySentence:
		levels = []func([]rune, int) bool{isParagraphEnd, isSentenceEnd, isWordEnd}
	default:
		return limit
	}

	// a boundary in the first half of the window is too early to be useful
	floor := start + (limit-start)/2
	for _, atBoundary := range levels {
		for p := limit; p > floor; p-- {
			if atBoundary(runes, p) {
				return p
			}
		}
	}
	return limit
}

// snapToWord moves pos forward to the next word start before end, or returns
// pos unchanged when there is none.
func snapToWord(runes []rune, pos, end int) int {
	if pos < 0 {
		pos = 0
	}
	for p := pos; p < end; p++ {
		if isWordStart(runes, p) {
			return p
		}
	}
	return pos
}

func isParagraphEnd(r []rune, p int) bool {
	return p >= 2 && r[p-1] == '\n' && r[p-2] == '\n'
}

func isSentenceEnd(r []rune, p int) bool {
	if p < 1 {
		return false
	}
	if r[p-1] == '\n' {
		return true
	}
	if p >= len(r) || !unicode.IsSpace(r[p]) {
		return false
	}
	switch r[p-1] {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

func isWordEnd(r []rune, p int) bool {
	return p >= 1 && p < len(r) && unicode.IsSpace(r[p]) && !unicode.IsSpace(r[p-1])
}

func isWordStart(r []rune, p int) bool {
	if unicode.IsSpace(r[p]) {
		return false
	}
	return p == 0 || unicode.IsSpace(r[p-1])
}
