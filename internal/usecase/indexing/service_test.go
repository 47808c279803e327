package indexing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/docqa/internal/corpus"
	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/chunk"
)

const longText = "First sentence here. Second sentence follows it. Third one closes the paragraph."

func TestRebuild_Success(t *testing.T) {
	loader := &mockLoader{result: corpus.Result{
		Documents: mustDocs(t, longText, "short doc"),
		Skipped:   []corpus.Skipped{{Path: "broken.pdf", Reason: "unreadable"}},
	}}
	svc, idx := newTestService(t, loader, &hashEmbedder{}, WithBatchSize(2))

	if svc.State() != StateUninitialized {
		t.Fatalf("expected uninitialized before first build, got %q", svc.State())
	}

	res, err := svc.Rebuild(context.Background(), "corpus")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.DocumentCount != 2 {
		t.Errorf("expected 2 documents, got %d", res.DocumentCount)
	}
	if res.ChunkCount < 3 {
		t.Errorf("expected the long document to be split, got %d chunks", res.ChunkCount)
	}
	if res.SkippedCount != 1 {
		t.Errorf("expected 1 skipped, got %d", res.SkippedCount)
	}
	if res.BuildID == "" {
		t.Error("expected build id")
	}

	stats := idx.Stats()
	if !stats.Ready || stats.ChunkCount != res.ChunkCount || stats.DocumentCount != 2 {
		t.Errorf("unexpected index stats: %+v", stats)
	}
	if svc.State() != StateReady {
		t.Errorf("expected ready, got %q", svc.State())
	}
}

func TestRebuild_Idempotent(t *testing.T) {
	loader := &mockLoader{result: corpus.Result{Documents: mustDocs(t, longText)}}
	svc, idx := newTestService(t, loader, &hashEmbedder{})
	ctx := context.Background()

	first, err := svc.Rebuild(ctx, "corpus")
	if err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	firstIDs := chunkIDs(idx.Current().Chunks())

	second, err := svc.Rebuild(ctx, "corpus")
	if err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	if first.ChunkCount != second.ChunkCount || first.DocumentCount != second.DocumentCount {
		t.Errorf("counts differ: %+v vs %+v", first, second)
	}
	if first.BuildID == second.BuildID {
		t.Error("each rebuild should get a fresh build id")
	}
	if got := chunkIDs(idx.Current().Chunks()); got != firstIDs {
		t.Errorf("chunk ids differ:\n%s\n%s", firstIDs, got)
	}
}

func TestRebuild_NoDocuments(t *testing.T) {
	svc, idx := newTestService(t, &mockLoader{}, &hashEmbedder{})

	_, err := svc.Rebuild(context.Background(), "corpus")
	if !errors.Is(err, domain.ErrNoDocuments) || !errors.Is(err, domain.ErrIndexBuild) {
		t.Fatalf("expected ErrNoDocuments build error, got %v", err)
	}
	if idx.Stats().Ready {
		t.Error("index must stay not ready")
	}
}

func TestRebuild_LoaderError(t *testing.T) {
	loader := &mockLoader{err: domain.ErrCorpusUnreadable}
	svc, _ := newTestService(t, loader, &hashEmbedder{})

	_, err := svc.Rebuild(context.Background(), "missing")
	var be *domain.IndexBuildError
	if !errors.As(err, &be) || be.Stage != "load" {
		t.Fatalf("expected load-stage build error, got %v", err)
	}
	if !errors.Is(err, domain.ErrCorpusUnreadable) {
		t.Errorf("expected cause in chain, got %v", err)
	}
}

func TestRebuild_EmbedFailureKeepsPreviousSnapshot(t *testing.T) {
	loader := &mockLoader{result: corpus.Result{Documents: mustDocs(t, longText)}}
	emb := &hashEmbedder{}
	svc, idx := newTestService(t, loader, emb)
	ctx := context.Background()

	first, err := svc.Rebuild(ctx, "corpus")
	if err != nil {
		t.Fatalf("first rebuild: %v", err)
	}

	emb.err = domain.ErrEmbeddingProviderError
	loader.result = corpus.Result{Documents: mustDocs(t, "a", "b", "c")}
	_, err = svc.Rebuild(ctx, "corpus")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected provider error, got %v", err)
	}

	stats := idx.Stats()
	if stats.BuildID != first.BuildID || stats.DocumentCount != 1 {
		t.Errorf("previous snapshot must stay active, got %+v", stats)
	}
	if svc.State() != StateReady {
		t.Errorf("expected state to return to ready, got %q", svc.State())
	}
}

func TestRebuild_ConcurrentFailsFast(t *testing.T) {
	loader := &mockLoader{result: corpus.Result{Documents: mustDocs(t, longText)}}
	emb := &hashEmbedder{block: make(chan struct{}), started: make(chan struct{})}
	svc, _ := newTestService(t, loader, emb)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Rebuild(context.Background(), "corpus")
		done <- err
	}()

	<-emb.started
	if svc.State() != StateIndexing {
		t.Errorf("expected indexing during rebuild, got %q", svc.State())
	}

	_, err := svc.Rebuild(context.Background(), "corpus")
	if !errors.Is(err, domain.ErrRebuildInProgress) {
		t.Errorf("expected ErrRebuildInProgress, got %v", err)
	}

	close(emb.block)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("first rebuild failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("rebuild did not finish")
	}
}

func TestRebuild_ContextCancelled(t *testing.T) {
	loader := &mockLoader{result: corpus.Result{Documents: mustDocs(t, longText)}}
	emb := &hashEmbedder{block: make(chan struct{})}
	svc, idx := newTestService(t, loader, emb)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := svc.Rebuild(ctx, "corpus")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if idx.Stats().Ready {
		t.Error("cancelled build must not commit")
	}
}

type ragged struct{ hashEmbedder }

func (r *ragged) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, 4+i)
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

func TestRebuild_DimensionMismatch(t *testing.T) {
	loader := &mockLoader{result: corpus.Result{Documents: mustDocs(t, "one", "two")}}
	svc, _ := newTestService(t, loader, &ragged{})

	_, err := svc.Rebuild(context.Background(), "corpus")
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestRebuild_BatchesByConfiguredSize(t *testing.T) {
	loader := &mockLoader{result: corpus.Result{Documents: mustDocs(t, "a", "b", "c", "d", "e")}}
	emb := &hashEmbedder{}
	svc, _ := newTestService(t, loader, emb, WithBatchSize(2), WithConcurrency(3))

	if _, err := svc.Rebuild(context.Background(), "corpus"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := emb.batchCalls.Load(); got != 3 {
		t.Errorf("expected 3 batches for 5 chunks, got %d", got)
	}
}

func TestBootstrap(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}
	loader := &mockLoader{result: corpus.Result{Documents: mustDocs(t, "hello")}}
	svc, _ := newTestService(t, loader, &hashEmbedder{})
	ctx := context.Background()

	if _, ran, err := svc.Bootstrap(ctx, filepath.Join(dir, "missing"), false); ran || err != nil {
		t.Errorf("missing corpus: ran=%v err=%v", ran, err)
	}

	if _, ran, err := svc.Bootstrap(ctx, dir, false); !ran || err != nil {
		t.Fatalf("first bootstrap: ran=%v err=%v", ran, err)
	}

	if _, ran, _ := svc.Bootstrap(ctx, dir, false); ran {
		t.Error("ready index should skip bootstrap")
	}
	if _, ran, err := svc.Bootstrap(ctx, dir, true); !ran || err != nil {
		t.Errorf("forced bootstrap: ran=%v err=%v", ran, err)
	}
}

func chunkIDs(items []chunk.Chunk) string {
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID()
	}
	return strings.Join(ids, ",")
}
