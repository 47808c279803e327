package corpus

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kailas-cloud/docqa/internal/domain/document"
)

// loadText reads a plain text or markdown file as a single document.
// A blank file yields nil without error.
func loadText(path, rel string) (*document.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	text := strings.TrimPrefix(string(data), "\ufeff")
	meta := map[string]string{SourceKey: rel}
	if title := markdownTitle(text); title != "" {
		meta["title"] = title
	}

	doc, err := newDocument(rel, text, meta)
	if errors.Is(err, errBlank) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// markdownTitle returns the first level-one heading, if any.
func markdownTitle(text string) string {
	for _, line := range strings.SplitN(text, "\n", 50) {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}
