package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/mindgraph-backend/internal/data/graph"
	"github.com/yungbote/mindgraph-backend/internal/domain"
	apperr "github.com/yungbote/mindgraph-backend/internal/pkg/errors"
	"github.com/yungbote/mindgraph-backend/internal/platform/genai"
	"github.com/yungbote/mindgraph-backend/internal/platform/logger"
)

// Generator is the generative-model collaborator: one prompt in, one opaque
// response envelope out. Failures surface as errors, never as a
// half-populated envelope.
type Generator interface {
	GenerateContent(ctx context.Context, prompt, responseMIMEType string) (*genai.GenerateContentResponse, error)
}

type GraphConfig struct {
	SimilarityThreshold   float64
	MaxSemanticCandidates int
}

// GraphService owns all concept graph mutations, including the AI-driven
// expansion pipeline. All storage calls go through the retry wrapper.
type GraphService struct {
	log       *logger.Logger
	repo      graph.ConceptRepo
	retry     *RetryableStore
	embedding *EmbeddingService
	generator Generator
	prompts   *PromptService
	cfg       GraphConfig
}

func NewGraphService(
	log *logger.Logger,
	repo graph.ConceptRepo,
	retry *RetryableStore,
	embedding *EmbeddingService,
	generator Generator,
	prompts *PromptService,
	cfg GraphConfig,
) *GraphService {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.85
	}
	if cfg.MaxSemanticCandidates <= 0 {
		cfg.MaxSemanticCandidates = 5
	}
	return &GraphService{
		log:       log.With("service", "GraphService"),
		repo:      repo,
		retry:     retry,
		embedding: embedding,
		generator: generator,
		prompts:   prompts,
		cfg:       cfg,
	}
}

// ---- CRUD ----

func (s *GraphService) CreateNode(ctx context.Context, workspaceID string, node domain.ConceptNode) (*domain.ConceptNode, error) {
	if strings.TrimSpace(node.Name) == "" {
		return nil, fmt.Errorf("node name required: %w", apperr.ErrInvalidArgument)
	}
	if node.ID == uuid.Nil {
		node.ID = uuid.New()
	}
	node.WorkspaceID = workspaceID
	if err := s.embedding.EnsureEmbedding(ctx, &node); err != nil {
		return nil, err
	}
	return DoValue(ctx, s.retry, func(ctx context.Context) (*domain.ConceptNode, error) {
		return s.repo.AddNode(ctx, node)
	})
}

func (s *GraphService) GetGraph(ctx context.Context, workspaceID string) (*domain.Graph, error) {
	return DoValue(ctx, s.retry, func(ctx context.Context) (*domain.Graph, error) {
		return s.repo.FullGraph(ctx, workspaceID)
	})
}

func (s *GraphService) GetNode(ctx context.Context, workspaceID string, id uuid.UUID) (*domain.ConceptNode, error) {
	return DoValue(ctx, s.retry, func(ctx context.Context) (*domain.ConceptNode, error) {
		return s.repo.GetNode(ctx, workspaceID, id)
	})
}

func (s *GraphService) UpdateNodeProperties(ctx context.Context, workspaceID string, id uuid.UUID, upd domain.NodeUpdate) (*domain.ConceptNode, error) {
	return DoValue(ctx, s.retry, func(ctx context.Context) (*domain.ConceptNode, error) {
		return s.repo.UpdateNode(ctx, workspaceID, id, upd)
	})
}

func (s *GraphService) DeleteNode(ctx context.Context, workspaceID string, id uuid.UUID) (bool, error) {
	return DoValue(ctx, s.retry, func(ctx context.Context) (bool, error) {
		return s.repo.DeleteNode(ctx, workspaceID, id)
	})
}

func (s *GraphService) CreateEdge(ctx context.Context, workspaceID string, edge domain.ConceptEdge) (*domain.ConceptEdge, error) {
	if strings.TrimSpace(edge.Label) == "" {
		return nil, fmt.Errorf("edge label required: %w", apperr.ErrInvalidArgument)
	}
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.repo.AddEdge(ctx, workspaceID, edge)
	})
	if err != nil {
		return nil, err
	}
	return &edge, nil
}

func (s *GraphService) DeleteEdge(ctx context.Context, workspaceID string, edge domain.ConceptEdge) (bool, error) {
	return DoValue(ctx, s.retry, func(ctx context.Context) (bool, error) {
		return s.repo.DeleteEdge(ctx, workspaceID, edge)
	})
}

func (s *GraphService) ClearWorkspace(ctx context.Context, workspaceID string) (int64, error) {
	return DoValue(ctx, s.retry, func(ctx context.Context) (int64, error) {
		return s.repo.ClearWorkspace(ctx, workspaceID)
	})
}

// ---- Expansion ----

// ExpandNode expands a single node; the route-level convenience over
// ExpandNodes.
func (s *GraphService) ExpandNode(ctx context.Context, workspaceID string, nodeID uuid.UUID) (*domain.Graph, error) {
	return s.ExpandNodes(ctx, workspaceID, []uuid.UUID{nodeID})
}

// ExpandNodes asks the generator for new concepts related to the given
// source nodes and persists the proposed subgraph atomically. Generator
// failures of any sort degrade to an empty graph; only storage problems are
// errors.
func (s *GraphService) ExpandNodes(ctx context.Context, workspaceID string, nodeIDs []uuid.UUID) (*domain.Graph, error) {
	if len(nodeIDs) == 0 {
		return nil, fmt.Errorf("at least one source node required: %w", apperr.ErrInvalidArgument)
	}

	sources := make([]*domain.ConceptNode, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		node, err := s.GetNode(ctx, workspaceID, id)
		if err != nil {
			return nil, err
		}
		sources = append(sources, node)
	}

	contextNodes := s.gatherContext(ctx, workspaceID, sources)

	template, err := s.prompts.Get(PromptKeyExpandNode)
	if err != nil {
		return nil, err
	}
	prompt := renderExpandPrompt(template, sources, contextNodes)

	payload := s.generate(ctx, prompt)
	if payload == nil || len(payload.Nodes) == 0 {
		return domain.EmptyGraph(), nil
	}

	newNodes := make([]domain.ConceptNode, 0, len(payload.Nodes))
	for _, n := range payload.Nodes {
		newNodes = append(newNodes, domain.ConceptNode{
			ID:          uuid.New(),
			Name:        n.Name,
			Description: n.Description,
			WorkspaceID: workspaceID,
		})
	}

	newEdges := s.resolveEdges(payload.Edges, newNodes, sources)

	// Every new node needs an embedding before it may be persisted.
	eg, egCtx := errgroup.WithContext(ctx)
	for i := range newNodes {
		node := &newNodes[i]
		eg.Go(func() error {
			return s.embedding.EnsureEmbedding(egCtx, node)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return s.repo.AddSubgraph(ctx, newNodes, newEdges)
	})
	if err != nil {
		return nil, err
	}

	return &domain.Graph{Nodes: newNodes, Edges: newEdges}, nil
}

// gatherContext fans out across source nodes, collecting structural
// neighbors and semantic matches into one deduplicated set. Semantic queries
// exclude every node already accumulated at the time they are issued, seeded
// with all source ids, so later queries are biased away from known results.
func (s *GraphService) gatherContext(ctx context.Context, workspaceID string, sources []*domain.ConceptNode) []domain.ConceptNode {
	var mu sync.Mutex
	collected := map[uuid.UUID]domain.ConceptNode{}
	excluded := map[uuid.UUID]struct{}{}
	for _, src := range sources {
		excluded[src.ID] = struct{}{}
	}

	snapshotExcluded := func() []uuid.UUID {
		mu.Lock()
		defer mu.Unlock()
		out := make([]uuid.UUID, 0, len(excluded))
		for id := range excluded {
			out = append(out, id)
		}
		return out
	}
	absorb := func(nodes []domain.ConceptNode) {
		mu.Lock()
		defer mu.Unlock()
		for _, n := range nodes {
			excluded[n.ID] = struct{}{}
			if _, seen := collected[n.ID]; seen {
				continue
			}
			collected[n.ID] = n
		}
	}

	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src *domain.ConceptNode) {
			defer wg.Done()

			neighbors, err := DoValue(ctx, s.retry, func(ctx context.Context) ([]domain.ConceptNode, error) {
				return s.repo.Neighbors(ctx, workspaceID, src.ID)
			})
			if err != nil {
				s.log.Warn("structural context fetch failed", "node_id", src.ID, "error", err.Error())
			} else {
				absorb(neighbors)
			}

			if err := s.embedding.EnsureEmbedding(ctx, src); err != nil {
				// Partial context is acceptable: proceed structural-only for
				// this source.
				s.log.Warn("skipping semantic context, embedding unavailable", "node_id", src.ID, "error", err.Error())
				return
			}

			exclude := snapshotExcluded()
			similar, err := DoValue(ctx, s.retry, func(ctx context.Context) ([]domain.ConceptNode, error) {
				return s.repo.SimilarNodes(ctx, workspaceID, src.Embedding, exclude, s.cfg.SimilarityThreshold, s.cfg.MaxSemanticCandidates)
			})
			if err != nil {
				s.log.Warn("semantic context fetch failed", "node_id", src.ID, "error", err.Error())
				return
			}
			absorb(similar)
		}(src)
	}
	wg.Wait()

	sourceIDs := map[uuid.UUID]struct{}{}
	for _, src := range sources {
		sourceIDs[src.ID] = struct{}{}
	}
	out := make([]domain.ConceptNode, 0, len(collected))
	for id, n := range collected {
		if _, isSource := sourceIDs[id]; isSource {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// generate runs the single generation call plus extraction, sanitization and
// schema validation. Any failure degrades to nil with a log line; the
// mutation as a whole becomes a no-op rather than an error.
func (s *GraphService) generate(ctx context.Context, prompt string) *expansionPayload {
	resp, err := s.generator.GenerateContent(ctx, prompt, "application/json")
	if err != nil {
		s.log.Error("generation call failed", "error", err.Error())
		return nil
	}

	raw := resp.StructuredText()
	parsed, err := ParseModelJSON(raw)
	if err != nil {
		s.log.Error("model response unparsable", "error", err.Error(), "raw", raw)
		return nil
	}

	payload, err := validateExpansionPayload(parsed)
	if err != nil {
		s.log.Error("model response failed schema validation", "error", err.Error())
		return nil
	}
	return payload
}

// resolveEdges maps endpoint references onto stable node ids. An edge whose
// index falls outside its referenced list is dropped, never fatal.
func (s *GraphService) resolveEdges(edges []expansionEdge, newNodes []domain.ConceptNode, sources []*domain.ConceptNode) []domain.ConceptEdge {
	resolve := func(ref endpointRef) (uuid.UUID, bool) {
		if ref.IsNew {
			if ref.Index < 0 || ref.Index >= len(newNodes) {
				return uuid.Nil, false
			}
			return newNodes[ref.Index].ID, true
		}
		if ref.Index < 0 || ref.Index >= len(sources) {
			return uuid.Nil, false
		}
		return sources[ref.Index].ID, true
	}

	out := make([]domain.ConceptEdge, 0, len(edges))
	for _, e := range edges {
		sourceID, ok := resolve(e.Source)
		if !ok {
			s.log.Warn("dropping edge with out-of-range source index", "index", e.Source.Index, "is_new", e.Source.IsNew)
			continue
		}
		targetID, ok := resolve(e.Target)
		if !ok {
			s.log.Warn("dropping edge with out-of-range target index", "index", e.Target.Index, "is_new", e.Target.IsNew)
			continue
		}
		out = append(out, domain.ConceptEdge{SourceID: sourceID, TargetID: targetID, Label: e.Label})
	}
	return out
}

// renderExpandPrompt fills the action template. Pure string formatting, no
// side effects.
func renderExpandPrompt(template string, sources []*domain.ConceptNode, contextNodes []domain.ConceptNode) string {
	var sourceLines []string
	for _, src := range sources {
		sourceLines = append(sourceLines, fmt.Sprintf("- %q described as %q", src.Name, src.Description))
	}

	contextBlock := ""
	if len(contextNodes) > 0 {
		var items []string
		for _, n := range contextNodes {
			items = append(items, fmt.Sprintf("- %s: %s", n.Name, n.Description))
		}
		contextBlock = "To avoid creating duplicate concepts, be aware of these " +
			"semantically similar or directly related concepts that already exist in the graph:\n" +
			strings.Join(items, "\n")
	}

	r := strings.NewReplacer(
		"{source_concepts}", strings.Join(sourceLines, "\n"),
		"{existing_nodes_context}", contextBlock,
	)
	return r.Replace(template)
}
