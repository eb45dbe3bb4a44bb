// Package rag provides the in-memory vector store backing the retrieval
// and memories modules.
package rag

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/graniet/kheish/internal/llm"
)

// maxSearchResults caps every search regardless of the requested topK.
// The original implementation hard-codes 5; callers treat topK as
// advisory, so the cap is kept.
const maxSearchResults = 5

// DocumentEmbedding is a stored document with its embedding vector.
type DocumentEmbedding struct {
	ID        string
	Embedding []float32
	Content   string
	Metadata  string
}

// VectorStore indexes text and answers nearest-neighbor queries.
type VectorStore interface {
	// AddDocument indexes content under a sequential "doc-N" id and
	// returns the id.
	AddDocument(ctx context.Context, content string) (string, error)

	// AddDocumentWithID indexes content under "<prefix>-N". The memories
	// module uses the "mem" prefix to tag long-term entries.
	AddDocumentWithID(ctx context.Context, prefix, content string) (string, error)

	// UpsertDocument inserts or replaces the document with the given id.
	UpsertDocument(ctx context.Context, docID, content, metadata string) error

	// SearchDocuments returns documents ranked by cosine similarity to
	// the query, best first. topK is advisory: at most 5 documents are
	// returned.
	SearchDocuments(ctx context.Context, query string, topK int) ([]DocumentEmbedding, error)
}

// InMemoryStore is a full-scan VectorStore. It is owned by a single task
// worker and is not safe for concurrent use.
type InMemoryStore struct {
	documents []DocumentEmbedding
	nextID    int
	embedder  llm.Embedder
}

// NewInMemoryStore creates an empty store using the given embedder.
func NewInMemoryStore(embedder llm.Embedder) *InMemoryStore {
	return &InMemoryStore{embedder: embedder}
}

// cosineSimilarity scores two vectors. Zero-norm vectors score 0 rather
// than dividing by zero.
func cosineSimilarity(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, v := range a {
		normA += float64(v) * float64(v)
	}
	for _, v := range b {
		normB += float64(v) * float64(v)
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

func (s *InMemoryStore) AddDocument(ctx context.Context, content string) (string, error) {
	return s.AddDocumentWithID(ctx, "doc", content)
}

func (s *InMemoryStore) AddDocumentWithID(ctx context.Context, prefix, content string) (string, error) {
	vector, err := s.embedder.EmbedText(ctx, content)
	if err != nil {
		return "", fmt.Errorf("embed document: %w", err)
	}
	s.nextID++
	docID := fmt.Sprintf("%s-%d", prefix, s.nextID)
	s.documents = append(s.documents, DocumentEmbedding{
		ID:        docID,
		Embedding: vector,
		Content:   content,
	})
	return docID, nil
}

func (s *InMemoryStore) UpsertDocument(ctx context.Context, docID, content, metadata string) error {
	vector, err := s.embedder.EmbedText(ctx, content)
	if err != nil {
		return fmt.Errorf("embed document: %w", err)
	}
	for i := range s.documents {
		if s.documents[i].ID == docID {
			s.documents[i].Content = content
			s.documents[i].Embedding = vector
			s.documents[i].Metadata = metadata
			return nil
		}
	}
	s.documents = append(s.documents, DocumentEmbedding{
		ID:        docID,
		Embedding: vector,
		Content:   content,
		Metadata:  metadata,
	})
	return nil
}

func (s *InMemoryStore) SearchDocuments(ctx context.Context, query string, topK int) ([]DocumentEmbedding, error) {
	queryVector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	type scored struct {
		score float32
		index int
	}
	ranked := make([]scored, 0, len(s.documents))
	for i := range s.documents {
		ranked = append(ranked, scored{
			score: cosineSimilarity(queryVector, s.documents[i].Embedding),
			index: i,
		})
	}
	// Descending by score; insertion order breaks ties.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	limit := maxSearchResults
	if len(ranked) < limit {
		limit = len(ranked)
	}
	results := make([]DocumentEmbedding, 0, limit)
	for _, r := range ranked[:limit] {
		results = append(results, s.documents[r.index])
	}
	return results, nil
}
