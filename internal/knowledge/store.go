// Package knowledge holds the product knowledge base: a word-window
// chunker, an embedding client, and an in-memory brute-force cosine
// store. The catalog is small (hundreds of chunks), so exact search
// beats carrying a vector database.
package knowledge

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chatclerk/chatclerk/pkg/models"
)

// DefaultMaxDocs caps the embedded store. The catalog is tiny; hitting
// this means something is ingesting in a loop.
const DefaultMaxDocs = 10_000

// Store is an in-memory vector store with brute-force cosine search.
type Store struct {
	mu      sync.RWMutex
	docs    map[string]*models.KnowledgeDoc
	maxDocs int
}

type StoreOption func(*Store)

func WithMaxDocs(n int) StoreOption {
	return func(s *Store) { s.maxDocs = n }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		docs:    make(map[string]*models.KnowledgeDoc),
		maxDocs: DefaultMaxDocs,
	}
	for _, opt := range opts {
		opt(s)
	}
	log.Info().Int("max_docs", s.maxDocs).Msg("Knowledge store initialized")
	return s
}

func (s *Store) Upsert(docs []models.KnowledgeDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newCount := 0
	for _, d := range docs {
		if _, exists := s.docs[d.ID]; !exists {
			newCount++
		}
	}
	if total := len(s.docs) + newCount; total > s.maxDocs {
		return fmt.Errorf("knowledge store capacity exceeded: %d > %d", total, s.maxDocs)
	}

	now := time.Now()
	for _, d := range docs {
		cp := d
		if cp.ID == "" {
			cp.ID = uuid.NewString()
		}
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		s.docs[cp.ID] = &cp
	}
	return nil
}

// Query returns the topK docs nearest to vector, best first. Docs with
// a mismatched vector length are skipped.
func (s *Store) Query(vector []float64, topK int) []models.SearchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		doc   *models.KnowledgeDoc
		score float64
	}
	var candidates []scored
	for _, d := range s.docs {
		if len(d.Vector) != len(vector) {
			continue
		}
		candidates = append(candidates, scored{doc: d, score: cosineSimilarity(vector, d.Vector)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if topK > len(candidates) {
		topK = len(candidates)
	}
	results := make([]models.SearchResult, topK)
	for i := 0; i < topK; i++ {
		results[i] = models.SearchResult{Doc: *candidates[i].doc, Score: candidates[i].score}
	}
	return results
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]*models.KnowledgeDoc)
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
