package services

import (
	"context"
	"fmt"

	"github.com/yungbote/mindgraph-backend/internal/domain"
	"github.com/yungbote/mindgraph-backend/internal/platform/logger"
)

// EmbeddingClient is the slice of the genai client the embedding service
// needs.
type EmbeddingClient interface {
	EmbedContent(ctx context.Context, text string) ([]float32, error)
}

type EmbeddingService struct {
	log    *logger.Logger
	client EmbeddingClient
}

func NewEmbeddingService(log *logger.Logger, client EmbeddingClient) *EmbeddingService {
	return &EmbeddingService{
		log:    log.With("service", "EmbeddingService"),
		client: client,
	}
}

// embeddingText builds the canonical text document embedded for a node. Kept
// stable: changing it silently degrades similarity search against already
// stored vectors.
func embeddingText(node *domain.ConceptNode) string {
	return fmt.Sprintf("Concept Name: %s\nDescription: %s", node.Name, node.Description)
}

// EnsureEmbedding computes the node's embedding if it does not carry one yet.
func (s *EmbeddingService) EnsureEmbedding(ctx context.Context, node *domain.ConceptNode) error {
	if len(node.Embedding) > 0 {
		return nil
	}
	vec, err := s.client.EmbedContent(ctx, embeddingText(node))
	if err != nil {
		return fmt.Errorf("embed node %s: %w", node.ID, err)
	}
	node.Embedding = vec
	return nil
}
