package document

import (
	"fmt"
	"unicode/utf8"
)

// MaxIDLength is the maximum document identifier length in bytes.
const MaxIDLength = 512

// Document is a normalized source unit (immutable value object).
type Document struct {
	id       string
	text     string
	metadata map[string]string
}

// New validates and creates a Document.
// ID: non-empty, at most MaxIDLength bytes. Text: valid UTF-8 (may be empty).
func New(id, text string, metadata map[string]string) (Document, error) {
	if id == "" {
		return Document{}, fmt.Errorf("document ID is required")
	}
	if len(id) > MaxIDLength {
		return Document{}, fmt.Errorf("document ID too long (max %d)", MaxIDLength)
	}
	if !utf8.ValidString(text) {
		return Document{}, fmt.Errorf("document %q: text is not valid UTF-8", id)
	}

	return Document{
		id:       id,
		text:     text,
		metadata: cloneStringMap(metadata),
	}, nil
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(id, text string, metadata map[string]string) Document {
	return Document{id: id, text: text, metadata: metadata}
}

// ID returns the document identifier.
func (d *Document) ID() string { return d.id }

// Text returns the document text.
func (d *Document) Text() string { return d.text }

// Metadata returns a copy of the source metadata.
func (d *Document) Metadata() map[string]string { return cloneStringMap(d.metadata) }

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
