package query

import (
	"fmt"
	"regexp"
	"time"

	"github.com/kailas-cloud/docqa/internal/corpus"
	"github.com/kailas-cloud/docqa/internal/domain/search/filter"
)

const (
	// DefaultMaxContextChars caps the assembled context.
	DefaultMaxContextChars = 4500
	// DefaultGenerationTimeout bounds a single generator call.
	DefaultGenerationTimeout = 60 * time.Second
	// DefaultNoContextReply is returned when retrieval finds nothing.
	DefaultNoContextReply = "I could not find relevant passages for your question. " +
		"Try rephrasing it or naming the section, period or topic."
	// DefaultSmalltalkReply answers greetings without touching the index.
	DefaultSmalltalkReply = "Hello! I answer questions about the indexed documents. " +
		"Ask me something specific, for example about a figure or a section."
	// ContextSeparator joins context blocks.
	ContextSeparator = "\n\n---\n\n"
)

// DefaultSmalltalkPatterns match greetings and questions about the assistant itself.
var DefaultSmalltalkPatterns = []string{
	`^(hi|hello|hey)\b`,
	`^good\s+(morning|afternoon|evening)`,
	`^how are you`,
	`^who are you`,
	`^what can you do`,
	`^привет(\P{L}|$)`,
	`^здравствуй`,
	`^добрый\s+(день|вечер|утро)`,
	`^как дела`,
	`^(ты кто|кто ты)`,
	`^что ты умеешь`,
}

// HeaderField renders one metadata value in a context block header as Prefix+value.
type HeaderField struct {
	Key    string
	Prefix string
}

// DefaultHeaders show the page number and the source file.
var DefaultHeaders = []HeaderField{
	{Key: corpus.PageKey, Prefix: "p."},
	{Key: corpus.SourceKey},
}

// Scope narrows retrieval to Filter for questions that match any of Patterns.
type Scope struct {
	Patterns []*regexp.Regexp
	Filter   filter.Expression
}

// Matches reports whether the scope applies to question.
func (s Scope) Matches(question string) bool {
	if s.Filter.IsEmpty() {
		return false
	}
	return matchAny(s.Patterns, question)
}

// Config tunes the query service.
type Config struct {
	K                 int
	MaxContextChars   int
	GenerationTimeout time.Duration
	NoContextReply    string
	SmalltalkPatterns []*regexp.Regexp
	SmalltalkReply    string
	Headers           []HeaderField
	Scope             Scope
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	patterns, err := CompilePatterns(DefaultSmalltalkPatterns)
	if err != nil {
		panic(err)
	}
	return Config{
		MaxContextChars:   DefaultMaxContextChars,
		GenerationTimeout: DefaultGenerationTimeout,
		NoContextReply:    DefaultNoContextReply,
		SmalltalkPatterns: patterns,
		SmalltalkReply:    DefaultSmalltalkReply,
		Headers:           DefaultHeaders,
	}
}

func (c *Config) applyDefaults() {
	if c.MaxContextChars <= 0 {
		c.MaxContextChars = DefaultMaxContextChars
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = DefaultGenerationTimeout
	}
	if c.NoContextReply == "" {
		c.NoContextReply = DefaultNoContextReply
	}
	if c.SmalltalkReply == "" {
		c.SmalltalkReply = DefaultSmalltalkReply
	}
}

// CompilePatterns compiles case-insensitive regular expressions.
func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
