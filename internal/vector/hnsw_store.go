package vector

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	codalexerrors "github.com/brindle-dev/codalex/internal/errors"
)

// HNSWStore implements Store on top of coder/hnsw's pure-Go graph, one
// graph per named collection, generalized to a collection map since
// spec.md §4.7 addresses the vector store by collection name rather than
// assuming one global index.
type HNSWStore struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

type collection struct {
	graph   *hnsw.Graph[uint64]
	modelID string
	dim     int

	idMap   map[string]uint64 // Point.ID -> internal key
	keyMap  map[uint64]string
	payload map[uint64]Payload
	// vectors keeps each point's normalized vector addressable by key so
	// Get can hand a caller back its raw vector (needed by the embedding
	// pipeline's move-without-re-embed path, spec.md §4.7 point 4); the
	// hnsw graph itself exposes no by-key lookup, only nearest-neighbor
	// search.
	vectors map[uint64][]float32
	nextKey uint64
}

// collectionMeta is the gob-persisted half of a collection (ID mappings,
// payloads, model identity); the graph itself is persisted separately via
// hnsw.Graph.Export, splitting the graph file from its .meta sidecar.
type collectionMeta struct {
	ModelID string
	Dim     int
	IDMap   map[string]uint64
	Payload map[uint64]Payload
	Vectors map[uint64][]float32
	NextKey uint64
}

// NewHNSWStore creates an empty, in-memory-until-Save vector store.
func NewHNSWStore() *HNSWStore {
	return &HNSWStore{collections: make(map[string]*collection)}
}

func newCollection(dim int, modelID string) *collection {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 32
	g.EfSearch = 64
	g.Ml = 0.25
	return &collection{
		graph:   g,
		modelID: modelID,
		dim:     dim,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		payload: make(map[uint64]Payload),
		vectors: make(map[uint64][]float32),
	}
}

func (s *HNSWStore) EnsureCollection(ctx context.Context, name string, dim int, modelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[name]; ok {
		if c.dim != dim || c.modelID != modelID {
			return codalexerrors.ModelMismatch(fmt.Sprintf("%s/%d", c.modelID, c.dim), fmt.Sprintf("%s/%d", modelID, dim))
		}
		return nil
	}
	s.collections[name] = newCollection(dim, modelID)
	return nil
}

func (s *HNSWStore) Upsert(ctx context.Context, collectionName string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collectionName]
	if !ok {
		return fmt.Errorf("upsert: unknown collection %q", collectionName)
	}

	for _, p := range points {
		if len(p.Vector) != c.dim {
			return codalexerrors.ModelMismatch(fmt.Sprintf("dim=%d", c.dim), fmt.Sprintf("dim=%d", len(p.Vector)))
		}
	}

	for _, p := range points {
		if existingKey, exists := c.idMap[p.ID]; exists {
			// Lazy deletion: Graph.Delete corrupts the graph when it
			// removes the last node, so orphan the mapping instead and
			// let the new key shadow it.
			delete(c.keyMap, existingKey)
			delete(c.payload, existingKey)
			delete(c.vectors, existingKey)
			delete(c.idMap, p.ID)
		}

		key := c.nextKey
		c.nextKey++

		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		normalizeInPlace(vec)

		c.graph.Add(hnsw.MakeNode(key, vec))
		c.idMap[p.ID] = key
		c.keyMap[key] = p.ID
		c.payload[key] = p.Payload
		c.vectors[key] = vec
	}
	return nil
}

// Get returns the stored vector and payload for id, used by the embedding
// pipeline's move-without-re-embed path (spec.md §4.7 point 4): it copies
// an existing point's vector under a new deterministic ID rather than
// calling the provider again.
func (s *HNSWStore) Get(ctx context.Context, collectionName, id string) (Point, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collectionName]
	if !ok {
		return Point{}, false, nil
	}
	key, ok := c.idMap[id]
	if !ok {
		return Point{}, false, nil
	}
	return Point{ID: id, Vector: c.vectors[key], Payload: c.payload[key]}, true, nil
}

func (s *HNSWStore) Search(ctx context.Context, collectionName string, query []float32, k int, filter Filter) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collectionName]
	if !ok {
		return nil, fmt.Errorf("search: unknown collection %q", collectionName)
	}
	if len(query) != c.dim {
		return nil, codalexerrors.ModelMismatch(fmt.Sprintf("dim=%d", c.dim), fmt.Sprintf("dim=%d", len(query)))
	}
	if c.graph.Len() == 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeInPlace(q)

	// Over-fetch since filtering happens post-search and some neighbors
	// may be orphaned (lazy-deleted) or excluded by filter.
	fetch := k * 4
	if fetch < k+16 {
		fetch = k + 16
	}
	nodes := c.graph.Search(q, fetch)

	results := make([]SearchResult, 0, k)
	for _, node := range nodes {
		id, ok := c.keyMap[node.Key]
		if !ok {
			continue
		}
		payload := c.payload[node.Key]
		if filter != nil && !filter(payload) {
			continue
		}
		distance := c.graph.Distance(q, node.Value)
		results = append(results, SearchResult{
			ID:      id,
			Score:   cosineDistanceToScore(distance),
			Payload: payload,
		})
		if len(results) >= k {
			break
		}
	}
	return results, nil
}

func (s *HNSWStore) Delete(ctx context.Context, collectionName string, filter Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collectionName]
	if !ok {
		return nil
	}
	for key, id := range c.keyMap {
		if filter == nil || filter(c.payload[key]) {
			delete(c.keyMap, key)
			delete(c.payload, key)
			delete(c.vectors, key)
			delete(c.idMap, id)
		}
	}
	return nil
}

func (s *HNSWStore) CollectionInfo(name string) (string, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return "", 0, false
	}
	return c.modelID, c.dim, true
}

// Save persists every collection under dataDir/vectors/<name>.hnsw(+.meta)
// using a temp-file-then-rename atomic save pattern.
func (s *HNSWStore) Save(dataDir string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := filepath.Join(dataDir, "vectors")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create vector dir: %w", err)
	}
	for name, c := range s.collections {
		if err := saveCollection(dir, name, c); err != nil {
			return fmt.Errorf("save collection %s: %w", name, err)
		}
	}
	return nil
}

func saveCollection(dir, name string, c *collection) error {
	graphPath := filepath.Join(dir, name+".hnsw")
	tmpPath := graphPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create graph file: %w", err)
	}
	if err := c.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, graphPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename graph file: %w", err)
	}

	metaPath := graphPath + ".meta"
	metaTmp := metaPath + ".tmp"
	mf, err := os.Create(metaTmp)
	if err != nil {
		return fmt.Errorf("create meta file: %w", err)
	}
	meta := collectionMeta{ModelID: c.modelID, Dim: c.dim, IDMap: c.idMap, Payload: c.payload, Vectors: c.vectors, NextKey: c.nextKey}
	if err := gob.NewEncoder(mf).Encode(meta); err != nil {
		mf.Close()
		os.Remove(metaTmp)
		return fmt.Errorf("encode meta: %w", err)
	}
	if err := mf.Close(); err != nil {
		os.Remove(metaTmp)
		return err
	}
	return os.Rename(metaTmp, metaPath)
}

// Load reads every *.hnsw.meta under dataDir/vectors into collections,
// replacing any in-memory state.
func (s *HNSWStore) Load(dataDir string) error {
	dir := filepath.Join(dataDir, "vectors")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read vector dir: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		name := e.Name()
		const suffix = ".hnsw.meta"
		if e.IsDir() || len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
			continue
		}
		collName := name[:len(name)-len(suffix)]
		c, err := loadCollection(dir, collName)
		if err != nil {
			return fmt.Errorf("load collection %s: %w", collName, err)
		}
		s.collections[collName] = c
	}
	return nil
}

func loadCollection(dir, name string) (*collection, error) {
	metaPath := filepath.Join(dir, name+".hnsw.meta")
	mf, err := os.Open(metaPath)
	if err != nil {
		return nil, fmt.Errorf("open meta: %w", err)
	}
	defer mf.Close()

	var meta collectionMeta
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode meta: %w", err)
	}

	c := newCollection(meta.Dim, meta.ModelID)
	c.idMap = meta.IDMap
	c.payload = meta.Payload
	c.vectors = meta.Vectors
	c.nextKey = meta.NextKey
	c.keyMap = make(map[uint64]string, len(c.idMap))
	for id, key := range c.idMap {
		c.keyMap[key] = id
	}

	graphPath := filepath.Join(dir, name+".hnsw")
	gf, err := os.Open(graphPath)
	if err != nil {
		return nil, fmt.Errorf("open graph: %w", err)
	}
	defer gf.Close()
	if err := c.graph.Import(bufio.NewReader(gf)); err != nil {
		return nil, fmt.Errorf("import graph: %w", err)
	}
	return c, nil
}

func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = nil
	return nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// cosineDistanceToScore maps coder/hnsw's cosine distance (0 identical, 2
// opposite) onto the [0,1] similarity score spec.md §4.7 requires.
func cosineDistanceToScore(distance float32) float32 {
	return 1.0 - distance/2.0
}

var _ Store = (*HNSWStore)(nil)
