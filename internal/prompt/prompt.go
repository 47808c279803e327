// Package prompt renders the grounded-answer prompt sent to the generator.
package prompt

import (
	"bytes"
	"fmt"
	"text/template"
)

// DefaultSystem instructs the model to stay inside the retrieved context.
const DefaultSystem = "You answer questions about a document collection. " +
	"Rely only on the provided context and never on outside knowledge. " +
	"Quote exact figures, dates and names as they appear in the context. " +
	"If the context is not enough to answer, say so and suggest how to narrow the question."

// DefaultUser is the user message template. It sees .Context and .Question.
const DefaultUser = `Context:
{{.Context}}

Question: {{.Question}}

Answer with the fact first, then a short explanation of one to three sentences.

Answer:`

// Data is the template input.
type Data struct {
	Question string
	Context  string
}

// Builder renders system and user messages.
type Builder struct {
	system string
	user   *template.Template
}

// New parses the user template. Empty arguments select the defaults.
func New(system, userTemplate string) (*Builder, error) {
	if system == "" {
		system = DefaultSystem
	}
	if userTemplate == "" {
		userTemplate = DefaultUser
	}
	tmpl, err := template.New("user").Option("missingkey=error").Parse(userTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	return &Builder{system: system, user: tmpl}, nil
}

// MustDefault returns a Builder with the built-in prompts.
func MustDefault() *Builder {
	b, err := New("", "")
	if err != nil {
		panic(err)
	}
	return b
}

// System returns the system message.
func (b *Builder) System() string { return b.system }

// User renders the user message for question and context.
func (b *Builder) User(question, context string) (string, error) {
	var buf bytes.Buffer
	if err := b.user.Execute(&buf, Data{Question: question, Context: context}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}
