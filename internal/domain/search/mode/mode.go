package mode

import (
	"fmt"
	"strings"
)

// Mode is the retrieval strategy.
type Mode string

// Retrieval mode constants.
const (
	// Similarity returns the top-k chunks by score.
	Similarity Mode = "similarity"
	// MMR re-ranks fetch_k candidates by maximal marginal relevance.
	MMR Mode = "mmr"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Similarity || m == MMR
}

// Parse converts a config or query value into a Mode. Empty means Similarity.
func Parse(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if m == "" {
		return Similarity, nil
	}
	if !m.IsValid() {
		return "", fmt.Errorf("invalid search type: %q", s)
	}
	return m, nil
}
