// Package watch rebuilds the index when files under the corpus directory change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/usecase/indexing"
)

// DefaultDebounce is the quiet period after the last change before a rebuild starts.
const DefaultDebounce = 2 * time.Second

// Rebuilder runs a full index rebuild.
type Rebuilder interface {
	Rebuild(ctx context.Context, corpusPath string) (indexing.BuildResult, error)
}

// Watcher coalesces bursts of corpus changes into single rebuilds.
type Watcher struct {
	root       string
	rebuilder  Rebuilder
	debounce   time.Duration
	extensions map[string]struct{}
	logger     *zap.Logger
}

// New creates a Watcher. An empty extensions list accepts every file.
func New(root string, rebuilder Rebuilder, debounce time.Duration, extensions []string, logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ext := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		ext[strings.ToLower(e)] = struct{}{}
	}
	return &Watcher{
		root:       root,
		rebuilder:  rebuilder,
		debounce:   debounce,
		extensions: ext,
		logger:     logger.With(zap.String("component", "watch"), zap.String("root", root)),
	}
}

// Run watches until ctx is cancelled. A change arriving while a rebuild runs
// schedules one more rebuild after it finishes, and so does a rebuild refused
// because one started elsewhere (HTTP or startup) is already running.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}
	w.logger.Info("Watching corpus")

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	var (
		running bool
		pending bool
		done    = make(chan bool, 1)
	)

	start := func() {
		running = true
		go func() {
			done <- w.rebuild(ctx)
		}()
	}

	for {
		select {
		case <-ctx.Done():
			if running {
				<-done
			}
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.handleEvent(fw, event) {
				continue
			}
			w.logger.Debug("Corpus changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", zap.Error(err))

		case <-timer.C:
			if running {
				pending = true
				continue
			}
			start()

		case retry := <-done:
			running = false
			if pending || retry {
				pending = false
				timer.Reset(w.debounce)
			}
		}
	}
}

// rebuild reports whether the change still needs a rebuild.
func (w *Watcher) rebuild(ctx context.Context) bool {
	res, err := w.rebuilder.Rebuild(ctx, w.root)
	switch {
	case err == nil:
		w.logger.Info("Rebuilt index after corpus change",
			zap.String("build_id", res.BuildID),
			zap.Int("documents", res.DocumentCount),
			zap.Int("chunks", res.ChunkCount),
		)
	case errors.Is(err, domain.ErrRebuildInProgress):
		// the running build may have read the corpus before this change
		w.logger.Info("Another rebuild is running, retrying after it")
		return ctx.Err() == nil
	case ctx.Err() != nil:
		// shutting down
	default:
		w.logger.Warn("Rebuild after corpus change failed", zap.Error(err))
	}
	return false
}

// handleEvent reports whether event should trigger a rebuild. New directories
// are added to the watch list.
func (w *Watcher) handleEvent(fw *fsnotify.Watcher, event fsnotify.Event) bool {
	if isHidden(event.Name) {
		return false
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if fw != nil {
				if err := w.addTree(fw, event.Name); err != nil {
					w.logger.Warn("Failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
				}
			}
			return true
		}
	}

	return w.accepts(event.Name)
}

func (w *Watcher) accepts(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	_, ok := w.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(path) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch corpus %s: %w", root, err)
	}
	return nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
