package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

var (
	// ErrEmbedding indicates the embedding backend failed or returned a
	// vector of the wrong size. The document is not stored.
	ErrEmbedding = errors.New("embedding failed")

	// ErrPersistence indicates the durable write failed. The document is
	// not stored; callers may retry the Add.
	ErrPersistence = errors.New("persistence failed")
)

// Result is one retrieved document with its squared-L2 distance to the query.
type Result struct {
	ID       int64
	Text     string
	Distance float32
}

// Store holds embedded documents and supports brute-force nearest-neighbor
// retrieval. Document ids are insertion positions: they strictly increase
// and index directly into the persisted files.
//
// Every Add persists synchronously before returning, so the on-disk state
// is crash-consistent at document granularity. Brute-force squared-L2 over
// a few thousand FAQ-style documents is exact and fast enough; a tree- or
// graph-based index can replace the scan behind the same Add/Query surface.
//
// Add serializes with itself through a write lock held across persistence;
// Query takes only a read lock, and never while an embedding call is in
// flight.
type Store struct {
	embedder *Embedder
	dim      int

	indexPath string
	metaPath  string

	mu      sync.RWMutex
	vectors [][]float32
	texts   []string
}

// Open loads the persisted index and metadata from dataDir, or initializes
// an empty store with the given dimension when none exist.
func Open(embedder *Embedder, dim int, dataDir string) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dim)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	s := &Store{
		embedder:  embedder,
		dim:       dim,
		indexPath: filepath.Join(dataDir, "index.bin"),
		metaPath:  filepath.Join(dataDir, "metadata.json"),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Add embeds text, appends it as the next document, and persists before
// returning. All-or-nothing: on any failure the document is not added.
func (s *Store) Add(ctx context.Context, text string) (int64, error) {
	vec, err := s.embed(ctx, text)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := int64(len(s.texts))
	s.vectors = append(s.vectors, vec)
	s.texts = append(s.texts, text)

	if err := s.persistLocked(); err != nil {
		s.vectors = s.vectors[:id]
		s.texts = s.texts[:id]
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return id, nil
}

// AddBatch embeds all texts concurrently, then appends and persists them
// in one write. Used for seeding; all-or-nothing like Add.
func (s *Store) AddBatch(ctx context.Context, texts []string) ([]int64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	for i, v := range vecs {
		if len(v) != s.dim {
			return nil, fmt.Errorf("%w: text %d: got %d components, want %d", ErrEmbedding, i, len(v), s.dim)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base := int64(len(s.texts))
	s.vectors = append(s.vectors, vecs...)
	s.texts = append(s.texts, texts...)

	if err := s.persistLocked(); err != nil {
		s.vectors = s.vectors[:base]
		s.texts = s.texts[:base]
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	ids := make([]int64, len(texts))
	for i := range ids {
		ids[i] = base + int64(i)
	}
	return ids, nil
}

// Query embeds the query text and returns up to k documents ordered by
// ascending squared-L2 distance, ties broken by lower id. An empty store
// yields an empty result, not an error.
func (s *Store) Query(ctx context.Context, text string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	if s.Count() == 0 {
		return nil, nil
	}

	vec, err := s.embed(ctx, text)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Result, len(s.vectors))
	for i, v := range s.vectors {
		results[i] = Result{
			ID:       int64(i),
			Text:     s.texts[i],
			Distance: squaredL2(vec, v),
		}
	}

	// Full sort: the corpus is small and the exhaustive scan is the
	// reference behavior, including its insertion-order tie-break.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// All returns every stored document text in id order.
func (s *Store) All() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.texts))
	copy(out, s.texts)
	return out
}

// Count returns the number of stored documents.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.texts)
}

// Dimension returns the embedding size fixed at store creation.
func (s *Store) Dimension() int {
	return s.dim
}

// Persist rewrites the index and metadata files from the current contents.
// Add and AddBatch already persist; this exists for callers that need to
// force a rewrite (e.g. after a tooling repair).
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persistLocked(); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(vec) != s.dim {
		return nil, fmt.Errorf("%w: got %d components, want %d", ErrEmbedding, len(vec), s.dim)
	}
	return vec, nil
}

// load reads the persisted index/metadata pair. A document present in one
// file but not the other (torn write between the two renames) is dropped,
// keeping the pair aligned by position.
func (s *Store) load() error {
	vectors, vecErr := readIndexFile(s.indexPath, s.dim)
	texts, metaErr := readMetadataFile(s.metaPath, s.dim)

	if os.IsNotExist(vecErr) && os.IsNotExist(metaErr) {
		return nil
	}
	if vecErr != nil && !os.IsNotExist(vecErr) {
		return fmt.Errorf("loading index: %w", vecErr)
	}
	if metaErr != nil && !os.IsNotExist(metaErr) {
		return fmt.Errorf("loading metadata: %w", metaErr)
	}

	if len(vectors) != len(texts) {
		n := min(len(vectors), len(texts))
		slog.Warn("index/metadata length mismatch, truncating",
			"vectors", len(vectors), "texts", len(texts), "kept", n)
		vectors = vectors[:n]
		texts = texts[:n]
	}

	s.vectors = vectors
	s.texts = texts
	return nil
}

func (s *Store) persistLocked() error {
	if err := writeIndexFile(s.indexPath, s.dim, s.vectors); err != nil {
		return err
	}
	return writeMetadataFile(s.metaPath, s.dim, s.texts)
}

// squaredL2 returns the squared Euclidean distance between two vectors of
// equal length. Accumulates in float64 for stability.
func squaredL2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(sum)
}
