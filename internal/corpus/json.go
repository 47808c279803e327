package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kailas-cloud/docqa/internal/domain/document"
)

// listKeys are metadata keys whose list values are joined into one string.
var listKeys = map[string]struct{}{
	"languages": {},
	"tags":      {},
	"keywords":  {},
}

type element struct {
	Text     *string        `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// loadJSON reads a JSON array of {"text", "metadata"} elements. Each element
// with non-blank text becomes a document with id "<rel>:<index>".
func loadJSON(path, rel string) ([]document.Document, []Skipped, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read: %w", err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("decode json: %w", err)
	}

	var (
		docs    []document.Document
		skipped []Skipped
	)
	for i, msg := range raw {
		id := rel + ":" + strconv.Itoa(i)

		var el element
		if err := json.Unmarshal(msg, &el); err != nil || el.Text == nil {
			// non-object elements and elements without text carry nothing to index
			continue
		}

		meta := SanitizeMetadata(el.Metadata)
		meta[SourceKey] = rel

		doc, err := newDocument(id, strings.TrimSpace(*el.Text), meta)
		if errors.Is(err, errBlank) {
			continue
		}
		if err != nil {
			skipped = append(skipped, Skipped{Path: id, Reason: err.Error()})
			continue
		}
		docs = append(docs, doc)
	}
	return docs, skipped, nil
}

// SanitizeMetadata flattens element metadata into strings. List values under
// languages, tags and keywords are joined with ", "; other scalars are
// stringified; nested values and nulls are dropped.
func SanitizeMetadata(md map[string]any) map[string]string {
	clean := make(map[string]string, len(md)+1)
	for k, v := range md {
		if list, ok := v.([]any); ok {
			if _, joinable := listKeys[k]; !joinable {
				continue
			}
			parts := make([]string, 0, len(list))
			for _, x := range list {
				if s, ok := scalar(x); ok {
					parts = append(parts, s)
				}
			}
			clean[k] = strings.Join(parts, ", ")
			continue
		}
		if s, ok := scalar(v); ok {
			clean[k] = s
		}
	}
	return clean
}

func scalar(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case json.Number:
		return x.String(), true
	default:
		return "", false
	}
}
