// Package corpus loads source files into normalized documents.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/document"
)

// SourceKey is the metadata key holding the document's path relative to the corpus root.
const SourceKey = "source"

// DefaultExtensions lists the file types loaded when none are configured.
var DefaultExtensions = []string{".json", ".txt", ".md", ".pdf"}

// Skipped describes a file or element that could not be turned into a document.
type Skipped struct {
	Path   string
	Reason string
}

// Result is the output of a corpus load.
type Result struct {
	Documents []document.Document
	Skipped   []Skipped
}

// Loader walks a corpus path and decodes supported files.
type Loader struct {
	extensions map[string]struct{}
}

// NewLoader creates a loader for the given file extensions (with leading dot).
func NewLoader(extensions []string) *Loader {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	ext := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		ext[e] = struct{}{}
	}
	return &Loader{extensions: ext}
}

// Load reads every supported file under root (a directory or a single file).
// Files that cannot be decoded are reported in Result.Skipped. An unreadable
// root fails with domain.ErrCorpusUnreadable.
func (l *Loader) Load(ctx context.Context, root string) (Result, error) {
	info, err := os.Stat(root)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", domain.ErrCorpusUnreadable, err)
	}

	var files []string
	base := root
	if info.IsDir() {
		files, err = l.collect(root)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %w", domain.ErrCorpusUnreadable, err)
		}
	} else {
		base = filepath.Dir(root)
		files = []string{root}
	}

	var res Result
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("load corpus: %w", err)
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		rel = filepath.ToSlash(rel)

		docs, skipped, err := l.loadFile(path, rel)
		if err != nil {
			res.Skipped = append(res.Skipped, Skipped{Path: rel, Reason: err.Error()})
			continue
		}
		res.Documents = append(res.Documents, docs...)
		res.Skipped = append(res.Skipped, skipped...)
	}
	return res, nil
}

// collect returns supported files under root in lexical order.
func (l *Loader) collect(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// unreadable subtrees are skipped
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if l.supports(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

func (l *Loader) supports(path string) bool {
	_, ok := l.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (l *Loader) loadFile(path, rel string) ([]document.Document, []Skipped, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return loadJSON(path, rel)
	case ".pdf":
		return loadPDF(path, rel)
	default:
		doc, err := loadText(path, rel)
		if err != nil {
			return nil, nil, err
		}
		if doc == nil {
			return nil, nil, nil
		}
		return []document.Document{*doc}, nil, nil
	}
}

var errBlank = errors.New("blank text")

func newDocument(id, text string, meta map[string]string) (document.Document, error) {
	if strings.TrimSpace(text) == "" {
		return document.Document{}, errBlank
	}
	doc, err := document.New(id, text, meta)
	if err != nil {
		return document.Document{}, fmt.Errorf("decode: %w", err)
	}
	return doc, nil
}
