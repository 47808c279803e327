package result

import (
	"testing"

	"github.com/kailas-cloud/docqa/internal/domain/chunk"
)

func TestNew(t *testing.T) {
	c := chunk.New("report.json:4", 1, "Dividends were approved.", map[string]string{"page_number": "40"})
	c = c.WithEmbedding([]float32{0.1, 0.2})

	r := New(c, 0.87)

	if r.ID() != "report.json:4#0001" {
		t.Errorf("ID() = %q", r.ID())
	}
	if r.DocumentID() != "report.json:4" {
		t.Errorf("DocumentID() = %q", r.DocumentID())
	}
	if r.Score() != 0.87 {
		t.Errorf("Score() = %f", r.Score())
	}
	if r.Text() != "Dividends were approved." {
		t.Errorf("Text() = %q", r.Text())
	}
	if r.Metadata()["page_number"] != "40" {
		t.Errorf("Metadata() = %v", r.Metadata())
	}
	if len(r.Vector()) != 2 {
		t.Errorf("Vector() len = %d", len(r.Vector()))
	}
}

func TestWithText(t *testing.T) {
	c := chunk.New("report.json:4", 1, "Dividends were approved. The board met twice.", nil)
	r := New(c, 0.5)

	trimmed := r.WithText("Dividends were approved.")
	if trimmed.Text() != "Dividends were approved." {
		t.Errorf("Text() = %q", trimmed.Text())
	}
	if trimmed.ID() != r.ID() || trimmed.Score() != r.Score() {
		t.Errorf("identity changed: %s %f", trimmed.ID(), trimmed.Score())
	}
	if r.Text() != "Dividends were approved. The board met twice." {
		t.Errorf("original result modified: %q", r.Text())
	}
}
