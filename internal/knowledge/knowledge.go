package knowledge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/chatclerk/chatclerk/internal/config"
	"github.com/chatclerk/chatclerk/pkg/models"
)

// Base answers product questions: it chunks ingested catalog text,
// embeds the chunks, and serves cosine-nearest chunks for a query.
type Base struct {
	embedder     Embedder
	store        *Store
	chunkWords   int
	chunkOverlap int
	defaultTopK  int
}

func NewBase(embedder Embedder, store *Store, cfg config.KnowledgeConfig) *Base {
	return &Base{
		embedder:     embedder,
		store:        store,
		chunkWords:   cfg.ChunkWords,
		chunkOverlap: cfg.ChunkOverlap,
		defaultTopK:  cfg.TopK,
	}
}

// Ingest chunks, embeds, and stores one source text. Metadata is
// copied onto every chunk. Returns the number of chunks stored.
func (b *Base) Ingest(ctx context.Context, text string, metadata map[string]string) (int, error) {
	chunks := ChunkWords(text, b.chunkWords, b.chunkOverlap)
	if len(chunks) == 0 {
		return 0, nil
	}

	vectors, err := b.embedder.Embed(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}

	docs := make([]models.KnowledgeDoc, 0, len(chunks))
	for i, chunk := range chunks {
		if vectors[i] == nil {
			continue
		}
		docs = append(docs, models.KnowledgeDoc{
			Text:     chunk,
			Metadata: metadata,
			Vector:   vectors[i],
		})
	}
	if err := b.store.Upsert(docs); err != nil {
		return 0, err
	}

	log.Info().Int("chunks", len(docs)).Msg("Catalog text ingested")
	return len(docs), nil
}

// Search embeds the query and returns the nearest chunks, best first.
// topK <= 0 falls back to the configured default.
func (b *Base) Search(ctx context.Context, query string, topK int) ([]models.SearchResult, error) {
	if topK <= 0 {
		topK = b.defaultTopK
	}
	vectors, err := b.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 || vectors[0] == nil {
		return nil, fmt.Errorf("embedder returned no vector for query")
	}
	return b.store.Query(vectors[0], topK), nil
}

// Count reports how many chunks the store holds.
func (b *Base) Count() int { return b.store.Count() }
