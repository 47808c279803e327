// Package snapshot persists vector index snapshots as self-contained SQLite files.
//
// Layout under the data directory:
//
//	snapshots/<build_id>.db   one file per committed build
//	CURRENT                   build id of the active snapshot
//
// A snapshot is written to <build_id>.db.partial and renamed into place, then
// CURRENT is swapped via temp file + rename. A crash at any point leaves the
// previous CURRENT intact.
package snapshot

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/chunk"
	"github.com/kailas-cloud/docqa/internal/repository/snapshot/migrations"
	"github.com/kailas-cloud/docqa/internal/vectorindex"
)

const (
	snapshotsDir  = "snapshots"
	currentFile   = "CURRENT"
	fileExt       = ".db"
	partialSuffix = ".partial"
	formatVersion = "1"

	// DefaultKeep is how many snapshot files survive pruning, the current one included.
	DefaultKeep = 2
)

var _ vectorindex.Persister = (*Store)(nil)

// Store implements vectorindex.Persister on the local filesystem.
type Store struct {
	dir    string
	keep   int
	logger *zap.Logger
}

// NewStore prepares the data directory. keep < 1 falls back to DefaultKeep.
func NewStore(dataDir string, keep int, logger *zap.Logger) (*Store, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(filepath.Join(dataDir, snapshotsDir), 0o750); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	if keep < 1 {
		keep = DefaultKeep
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dataDir, keep: keep, logger: logger}, nil
}

// Save writes the snapshot to its own file and points CURRENT at it.
func (s *Store) Save(ctx context.Context, snap *vectorindex.Snapshot) error {
	final := s.snapshotPath(snap.ID())
	partial := final + partialSuffix
	_ = os.Remove(partial)

	if err := writeSnapshot(ctx, partial, snap); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("writing snapshot %s: %w", snap.ID(), err)
	}
	if err := os.Rename(partial, final); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("committing snapshot file: %w", err)
	}
	if err := s.writeCurrent(snap.ID()); err != nil {
		return err
	}

	s.prune(snap.ID())
	return nil
}

// Load returns the snapshot named by CURRENT, or (nil, nil) when none exists.
// Any inconsistency is reported as domain.ErrSnapshotCorrupt.
func (s *Store) Load(ctx context.Context) (*vectorindex.Snapshot, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, currentFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading %s: %w", domain.ErrSnapshotCorrupt, currentFile, err)
	}

	id := strings.TrimSpace(string(raw))
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("%w: invalid %s contents", domain.ErrSnapshotCorrupt, currentFile)
	}

	path := s.snapshotPath(id)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: snapshot file for %s: %w", domain.ErrSnapshotCorrupt, id, err)
	}

	snap, err := readSnapshot(ctx, path, id)
	if err != nil {
		if errors.Is(err, domain.ErrSnapshotCorrupt) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrSnapshotCorrupt, err)
	}
	return snap, nil
}

// CurrentID returns the build id recorded in CURRENT, or "" when none.
func (s *Store) CurrentID() string {
	raw, err := os.ReadFile(filepath.Join(s.dir, currentFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func (s *Store) snapshotPath(id string) string {
	return filepath.Join(s.dir, snapshotsDir, id+fileExt)
}

func (s *Store) writeCurrent(id string) error {
	tmp, err := os.CreateTemp(s.dir, currentFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating %s temp file: %w", currentFile, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(id + "\n"); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", currentFile, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("syncing %s: %w", currentFile, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", currentFile, err)
	}
	target := filepath.Join(s.dir, currentFile)
	// an empty directory in place of CURRENT cannot be renamed over
	if info, err := os.Lstat(target); err == nil && info.IsDir() {
		_ = os.Remove(target)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("swapping %s: %w", currentFile, err)
	}
	return nil
}

// prune removes leftover partial files and all but the newest keep snapshots.
func (s *Store) prune(currentID string) {
	dir := filepath.Join(s.dir, snapshotsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.logger.Warn("Failed to list snapshots for pruning", zap.Error(err))
		return
	}

	type candidate struct {
		name    string
		modTime time.Time
	}
	var old []candidate
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, partialSuffix):
			_ = os.Remove(filepath.Join(dir, name))
		case strings.HasSuffix(name, fileExt) && name != currentID+fileExt:
			info, err := e.Info()
			if err != nil {
				continue
			}
			old = append(old, candidate{name: name, modTime: info.ModTime()})
		}
	}

	sort.Slice(old, func(i, j int) bool { return old[i].modTime.After(old[j].modTime) })
	for i := s.keep - 1; i < len(old); i++ {
		if err := os.Remove(filepath.Join(dir, old[i].name)); err != nil {
			s.logger.Warn("Failed to prune snapshot", zap.String("file", old[i].name), zap.Error(err))
		}
	}
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func writeSnapshot(ctx context.Context, path string, snap *vectorindex.Snapshot) error {
	db, err := openDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrate(ctx, db, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	meta := map[string]string{
		"format_version": formatVersion,
		"build_id":       snap.ID(),
		"built_at":       snap.BuiltAt().Format(time.RFC3339Nano),
		"metric":         string(snap.Metric()),
		"dimension":      strconv.Itoa(snap.Dimension()),
		"document_count": strconv.Itoa(snap.DocumentCount()),
		"chunk_count":    strconv.Itoa(snap.ChunkCount()),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, "INSERT INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("saving meta %s: %w", k, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (seq, id, document_id, ordinal, text, metadata, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for i, c := range snap.Chunks() {
		metadataJSON, err := json.Marshal(c.Metadata())
		if err != nil {
			return fmt.Errorf("marshalling chunk metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, i, c.ID(), c.DocumentID(), c.Ordinal(), c.Text(),
			string(metadataJSON), float32SliceToBytes(c.Embedding())); err != nil {
			return fmt.Errorf("saving chunk %s: %w", c.ID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func readSnapshot(ctx context.Context, path, id string) (*vectorindex.Snapshot, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, err
	}
	if meta["build_id"] != id {
		return nil, fmt.Errorf("%w: build id %q does not match %s %q",
			domain.ErrSnapshotCorrupt, meta["build_id"], currentFile, id)
	}

	builtAt, err := time.Parse(time.RFC3339Nano, meta["built_at"])
	if err != nil {
		return nil, fmt.Errorf("%w: built_at: %w", domain.ErrSnapshotCorrupt, err)
	}
	metric, err := vectorindex.ParseMetric(meta["metric"])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSnapshotCorrupt, err)
	}
	docCount, err := strconv.Atoi(meta["document_count"])
	if err != nil {
		return nil, fmt.Errorf("%w: document_count: %w", domain.ErrSnapshotCorrupt, err)
	}
	chunkCount, err := strconv.Atoi(meta["chunk_count"])
	if err != nil {
		return nil, fmt.Errorf("%w: chunk_count: %w", domain.ErrSnapshotCorrupt, err)
	}

	chunks, err := readChunks(ctx, db, chunkCount)
	if err != nil {
		return nil, err
	}
	if len(chunks) != chunkCount {
		return nil, fmt.Errorf("%w: expected %d chunks, found %d",
			domain.ErrSnapshotCorrupt, chunkCount, len(chunks))
	}

	snap, err := vectorindex.NewSnapshot(id, builtAt, metric, docCount, chunks)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSnapshotCorrupt, err)
	}
	return snap, nil
}

func readMeta(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT key, value FROM meta")
	if err != nil {
		return nil, fmt.Errorf("%w: querying meta: %w", domain.ErrSnapshotCorrupt, err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("%w: scanning meta: %w", domain.ErrSnapshotCorrupt, err)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating meta: %w", domain.ErrSnapshotCorrupt, err)
	}
	if meta["format_version"] != formatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %q",
			domain.ErrSnapshotCorrupt, meta["format_version"])
	}
	return meta, nil
}

func readChunks(ctx context.Context, db *sql.DB, sizeHint int) ([]chunk.Chunk, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, document_id, ordinal, text, metadata, embedding
		FROM chunks ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: querying chunks: %w", domain.ErrSnapshotCorrupt, err)
	}
	defer rows.Close()

	chunks := make([]chunk.Chunk, 0, max(sizeHint, 0))
	for rows.Next() {
		var (
			id, docID, text, metadataJSON string
			ordinal                       int
			embeddingBlob                 []byte
		)
		if err := rows.Scan(&id, &docID, &ordinal, &text, &metadataJSON, &embeddingBlob); err != nil {
			return nil, fmt.Errorf("%w: scanning chunk: %w", domain.ErrSnapshotCorrupt, err)
		}

		var meta map[string]string
		if err := json.Unmarshal([]byte(metadataJSON), &meta); err != nil {
			return nil, fmt.Errorf("%w: chunk %s metadata: %w", domain.ErrSnapshotCorrupt, id, err)
		}
		vec, err := bytesToFloat32Slice(embeddingBlob)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %s: %w", domain.ErrSnapshotCorrupt, id, err)
		}

		chunks = append(chunks, chunk.Reconstruct(id, docID, ordinal, text, meta, vec))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating chunks: %w", domain.ErrSnapshotCorrupt, err)
	}
	return chunks, nil
}

// migrate runs all pending migrations.
func migrate(ctx context.Context, db *sql.DB, fsys embed.FS) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

func float32SliceToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob: len=%d (not multiple of 4)", len(data))
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats, nil
}
