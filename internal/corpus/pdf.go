package corpus

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ledongthuc/pdf"

	"github.com/kailas-cloud/docqa/internal/domain/document"
)

// PageKey is the metadata key holding the one-based PDF page number.
const PageKey = "page_number"

// loadPDF extracts plain text per page; each non-blank page becomes a
// document with id "<rel>:<page>".
func loadPDF(path, rel string) (docs []document.Document, skipped []Skipped, err error) {
	f, rdr, err := pdf.Open(path)
	if err != nil {
		if f != nil {
			f.Close()
		}
		return nil, nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			docs, skipped = nil, nil
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	for i := 1; i <= rdr.NumPage(); i++ {
		page := rdr.Page(i)
		if page.V.IsNull() {
			continue
		}

		id := rel + ":" + strconv.Itoa(i)
		text, err := page.GetPlainText(nil)
		if err != nil {
			skipped = append(skipped, Skipped{Path: id, Reason: fmt.Sprintf("extract text: %v", err)})
			continue
		}

		meta := map[string]string{SourceKey: rel, PageKey: strconv.Itoa(i)}
		doc, err := newDocument(id, text, meta)
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
