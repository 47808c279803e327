package query

import (
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/docqa/internal/domain/search/result"
)

// BuildContext joins hits (already in descending score order) into the
// generator context. Each block is "[h1 • h2] text". Blocks are added while
// the total stays within maxChars runes; a first block that alone exceeds the
// cap is truncated so the context is never empty when hits exist.
func BuildContext(hits []result.Result, headers []HeaderField, maxChars int) string {
	var (
		blocks []string
		total  int
	)
	sepLen := utf8.RuneCountInString(ContextSeparator)

	for i := range hits {
		block := formatBlock(hits[i].Text(), hits[i].Metadata(), headers)
		n := utf8.RuneCountInString(block)
		cost := n
		if len(blocks) > 0 {
			cost += sepLen
		}

		if total+cost > maxChars {
			if len(blocks) == 0 && maxChars > 0 {
				blocks = append(blocks, truncateRunes(block, maxChars))
			}
			break
		}
		blocks = append(blocks, block)
		total += cost
	}
	return strings.Join(blocks, ContextSeparator)
}

func formatBlock(text string, meta map[string]string, headers []HeaderField) string {
	bits := make([]string, 0, len(headers))
	for _, h := range headers {
		if v := meta[h.Key]; v != "" {
			bits = append(bits, h.Prefix+v)
		}
	}
	text = strings.TrimSpace(text)
	if len(bits) == 0 {
		return text
	}
	return "[" + strings.Join(bits, " • ") + "] " + text
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
