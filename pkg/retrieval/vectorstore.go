package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/potto-labs/potto/pkg/models"
)

// MetadataFilter narrows a search to one service and a set of operations.
// A nil filter means unfiltered semantic search. Multiple operations form
// a disjunction, matching the labels that map to more than one operation.
type MetadataFilter struct {
	Service    string
	Operations []string
}

// Matches reports whether a document's metadata satisfies the filter.
func (f *MetadataFilter) Matches(service, operation string) bool {
	if f == nil {
		return true
	}
	if f.Service != "" && service != f.Service {
		return false
	}
	if len(f.Operations) == 0 {
		return true
	}
	for _, op := range f.Operations {
		if operation == op {
			return true
		}
	}
	return false
}

// SearchResult is the raw vector-store answer.
type SearchResult struct {
	Documents []string
	Metadatas []map[string]any
	Distances []float64
}

// VectorStore is the capability contract with the index the external
// tenancy scanner populates.
type VectorStore interface {
	Search(ctx context.Context, embedding []float32, topK int, filter *MetadataFilter) (SearchResult, error)
}

// indexedDocument is one stored document with its vector.
type indexedDocument struct {
	Text      string          `json:"text"`
	Metadata  models.Document `json:"metadata"`
	Embedding []float32       `json:"embedding"`
}

// InMemoryStore is a cosine-similarity vector store for tests and the
// demo tenancy. LoadFile ingests a scanner-produced JSON dump.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs []indexedDocument
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Add indexes one document.
func (s *InMemoryStore) Add(text string, meta models.Document, embedding []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, indexedDocument{Text: text, Metadata: meta, Embedding: embedding})
}

// LoadFile ingests a JSON array of indexed documents.
func (s *InMemoryStore) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading index file: %w", err)
	}
	var docs []indexedDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return 0, fmt.Errorf("parsing index file: %w", err)
	}
	s.mu.Lock()
	s.docs = append(s.docs, docs...)
	s.mu.Unlock()
	return len(docs), nil
}

// Len reports the number of indexed documents.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Search ranks filtered documents by cosine distance to the embedding.
func (s *InMemoryStore) Search(_ context.Context, embedding []float32, topK int, filter *MetadataFilter) (SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		doc      indexedDocument
		distance float64
	}
	var candidates []scored
	for _, d := range s.docs {
		if !filter.Matches(d.Metadata.Service, d.Metadata.Operation) {
			continue
		}
		candidates = append(candidates, scored{doc: d, distance: cosineDistance(embedding, d.Embedding)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	var out SearchResult
	for _, c := range candidates {
		out.Documents = append(out.Documents, c.doc.Text)
		out.Metadatas = append(out.Metadatas, documentMetadata(c.doc.Metadata))
		out.Distances = append(out.Distances, c.distance)
	}
	return out, nil
}

func documentMetadata(d models.Document) map[string]any {
	return map[string]any{
		"resource_type":  d.ResourceType,
		"service":        d.Service,
		"operation":      d.Operation,
		"ocid":           d.OCID,
		"compartment_id": d.CompartmentID,
		"name":           d.Name,
	}
}

// cosineDistance is 1 - cosine similarity; mismatched widths rank last.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.MaxFloat64
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return math.MaxFloat64
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
