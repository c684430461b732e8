package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/mindgraph-backend/internal/domain"
	apperr "github.com/yungbote/mindgraph-backend/internal/pkg/errors"
	"github.com/yungbote/mindgraph-backend/internal/platform/genai"
	"github.com/yungbote/mindgraph-backend/internal/platform/logger"
)

type subgraphWrite struct {
	nodes []domain.ConceptNode
	edges []domain.ConceptEdge
}

// fakeRepo is an in-memory ConceptRepo recording the calls the expansion
// pipeline makes.
type fakeRepo struct {
	mu        sync.Mutex
	nodes     map[uuid.UUID]domain.ConceptNode
	neighbors map[uuid.UUID][]domain.ConceptNode
	similar   []domain.ConceptNode

	similarExcludes [][]uuid.UUID
	subgraphWrites  []subgraphWrite
	subgraphErrs    []error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		nodes:     map[uuid.UUID]domain.ConceptNode{},
		neighbors: map[uuid.UUID][]domain.ConceptNode{},
	}
}

func (r *fakeRepo) AddNode(_ context.Context, node domain.ConceptNode) (*domain.ConceptNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[node.ID] = node
	return &node, nil
}

func (r *fakeRepo) GetNode(_ context.Context, workspaceID string, id uuid.UUID) (*domain.ConceptNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok || n.WorkspaceID != workspaceID {
		return nil, fmt.Errorf("node %s: %w", id, apperr.ErrNotFound)
	}
	return &n, nil
}

func (r *fakeRepo) UpdateNode(_ context.Context, _ string, id uuid.UUID, upd domain.NodeUpdate) (*domain.ConceptNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if upd.Name != nil {
		n.Name = *upd.Name
	}
	if upd.Description != nil {
		n.Description = *upd.Description
	}
	r.nodes[id] = n
	return &n, nil
}

func (r *fakeRepo) DeleteNode(_ context.Context, _ string, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.nodes[id]
	delete(r.nodes, id)
	return ok, nil
}

func (r *fakeRepo) AddEdge(_ context.Context, _ string, _ domain.ConceptEdge) error {
	return nil
}

func (r *fakeRepo) DeleteEdge(_ context.Context, _ string, _ domain.ConceptEdge) (bool, error) {
	return true, nil
}

func (r *fakeRepo) FullGraph(_ context.Context, _ string) (*domain.Graph, error) {
	return domain.EmptyGraph(), nil
}

func (r *fakeRepo) Neighbors(_ context.Context, _ string, id uuid.UUID) ([]domain.ConceptNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.neighbors[id], nil
}

func (r *fakeRepo) SimilarNodes(_ context.Context, _ string, _ []float32, exclude []uuid.UUID, _ float64, _ int) ([]domain.ConceptNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.similarExcludes = append(r.similarExcludes, exclude)
	return r.similar, nil
}

func (r *fakeRepo) AddSubgraph(_ context.Context, nodes []domain.ConceptNode, edges []domain.ConceptEdge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.subgraphErrs) > 0 {
		err := r.subgraphErrs[0]
		r.subgraphErrs = r.subgraphErrs[1:]
		if err != nil {
			return err
		}
	}
	r.subgraphWrites = append(r.subgraphWrites, subgraphWrite{nodes: nodes, edges: edges})
	return nil
}

func (r *fakeRepo) ClearWorkspace(_ context.Context, _ string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(len(r.nodes))
	r.nodes = map[uuid.UUID]domain.ConceptNode{}
	return n, nil
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *fakeEmbedder) EmbedContent(_ context.Context, _ string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
}

func (g *fakeGenerator) GenerateContent(_ context.Context, _, _ string) (*genai.GenerateContentResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []genai.Candidate{
			{Content: genai.Content{Parts: []genai.Part{{Text: g.text}}}},
		},
	}, nil
}

type graphFixture struct {
	svc      *GraphService
	repo     *fakeRepo
	embedder *fakeEmbedder
	gen      *fakeGenerator
}

func newGraphFixture(t *testing.T) *graphFixture {
	t.Helper()
	log := logger.NewNop()
	repo := newFakeRepo()
	embedder := &fakeEmbedder{}
	gen := &fakeGenerator{}
	retry, _ := newTestRetryStore(t, 3, 10*time.Millisecond)
	prompts := NewPromptService(log, filepath.Join(t.TempDir(), "prompts.yaml"))
	svc := NewGraphService(log, repo, retry, NewEmbeddingService(log, embedder), gen, prompts, GraphConfig{})
	return &graphFixture{svc: svc, repo: repo, embedder: embedder, gen: gen}
}

func (f *graphFixture) seedNode(t *testing.T, workspaceID, name string) domain.ConceptNode {
	t.Helper()
	n := domain.ConceptNode{
		ID:          uuid.New(),
		Name:        name,
		Description: name + " description",
		Embedding:   []float32{1, 0, 0},
		WorkspaceID: workspaceID,
	}
	f.repo.nodes[n.ID] = n
	return n
}

const validExpansion = `{
  "nodes": [
    {"name": "Backpropagation", "description": "Gradient computation through the chain rule."},
    {"name": "Gradient Descent", "description": "Iterative optimization along the negative gradient."}
  ],
  "edges": [
    {"source": {"is_new": false, "index": 0}, "target": {"is_new": true, "index": 0}, "label": "is trained by"},
    {"source": {"is_new": true, "index": 0}, "target": {"is_new": true, "index": 1}, "label": "relies on"}
  ]
}`

func TestExpandNodePersistsGeneratedSubgraph(t *testing.T) {
	f := newGraphFixture(t)
	src := f.seedNode(t, "ws-1", "Neural Network")
	f.gen.text = validExpansion

	g, err := f.svc.ExpandNode(context.Background(), "ws-1", src.ID)
	if err != nil {
		t.Fatalf("ExpandNode: %v", err)
	}
	if len(g.Nodes) != 2 {
		t.Fatalf("nodes: want=2 got=%d", len(g.Nodes))
	}
	if len(g.Edges) != 2 {
		t.Fatalf("edges: want=2 got=%d", len(g.Edges))
	}
	if f.gen.calls != 1 {
		t.Fatalf("generator calls: want=1 got=%d", f.gen.calls)
	}

	if len(f.repo.subgraphWrites) != 1 {
		t.Fatalf("subgraph writes: want=1 got=%d", len(f.repo.subgraphWrites))
	}
	write := f.repo.subgraphWrites[0]
	for _, n := range write.nodes {
		if n.WorkspaceID != "ws-1" {
			t.Fatalf("persisted node missing workspace: %+v", n)
		}
		if len(n.Embedding) == 0 {
			t.Fatalf("persisted node %q has no embedding", n.Name)
		}
	}
	if write.edges[0].SourceID != src.ID {
		t.Fatalf("edge source: want=%s got=%s", src.ID, write.edges[0].SourceID)
	}
	if write.edges[0].TargetID != write.nodes[0].ID {
		t.Fatalf("edge target: want=%s got=%s", write.nodes[0].ID, write.edges[0].TargetID)
	}
}

func TestExpandNodeDropsOutOfRangeEdges(t *testing.T) {
	f := newGraphFixture(t)
	src := f.seedNode(t, "ws-1", "Calculus")
	f.gen.text = `{
  "nodes": [
    {"name": "Derivative", "description": "Instantaneous rate of change."},
    {"name": "Integral", "description": "Accumulation of quantities."}
  ],
  "edges": [
    {"source": {"is_new": false, "index": 0}, "target": {"is_new": true, "index": 7}, "label": "covers"},
    {"source": {"is_new": true, "index": 0}, "target": {"is_new": false, "index": 3}, "label": "generalizes"},
    {"source": {"is_new": true, "index": 0}, "target": {"is_new": true, "index": 1}, "label": "inverse of"}
  ]
}`

	g, err := f.svc.ExpandNode(context.Background(), "ws-1", src.ID)
	if err != nil {
		t.Fatalf("ExpandNode: %v", err)
	}
	if len(g.Nodes) != 2 {
		t.Fatalf("nodes: want=2 got=%d", len(g.Nodes))
	}
	if len(g.Edges) != 1 {
		t.Fatalf("edges: want=1 got=%d", len(g.Edges))
	}
	if g.Edges[0].Label != "inverse of" {
		t.Fatalf("surviving edge: want=%q got=%q", "inverse of", g.Edges[0].Label)
	}
}

func TestExpandNodeEmptyOnUnparsableOutput(t *testing.T) {
	f := newGraphFixture(t)
	src := f.seedNode(t, "ws-1", "Entropy")
	f.gen.text = "I could not produce JSON, sorry."

	g, err := f.svc.ExpandNode(context.Background(), "ws-1", src.ID)
	if err != nil {
		t.Fatalf("ExpandNode: %v", err)
	}
	if len(g.Nodes) != 0 || len(g.Edges) != 0 {
		t.Fatalf("want empty graph got nodes=%d edges=%d", len(g.Nodes), len(g.Edges))
	}
	if len(f.repo.subgraphWrites) != 0 {
		t.Fatalf("subgraph persisted from unparsable output")
	}
}

func TestExpandNodeEmptyOnSchemaViolation(t *testing.T) {
	f := newGraphFixture(t)
	src := f.seedNode(t, "ws-1", "Entropy")
	// Valid JSON, but nodes lack the required description.
	f.gen.text = `{"nodes": [{"name": "Thermodynamics"}], "edges": []}`

	g, err := f.svc.ExpandNode(context.Background(), "ws-1", src.ID)
	if err != nil {
		t.Fatalf("ExpandNode: %v", err)
	}
	if len(g.Nodes) != 0 {
		t.Fatalf("want empty graph got nodes=%d", len(g.Nodes))
	}
	if len(f.repo.subgraphWrites) != 0 {
		t.Fatalf("subgraph persisted from invalid payload")
	}
}

func TestExpandNodeEmptyOnGeneratorError(t *testing.T) {
	f := newGraphFixture(t)
	src := f.seedNode(t, "ws-1", "Entropy")
	f.gen.err = errors.New("model unavailable")

	g, err := f.svc.ExpandNode(context.Background(), "ws-1", src.ID)
	if err != nil {
		t.Fatalf("ExpandNode: %v", err)
	}
	if len(g.Nodes) != 0 {
		t.Fatalf("want empty graph got nodes=%d", len(g.Nodes))
	}
}

func TestExpandNodeUnknownSource(t *testing.T) {
	f := newGraphFixture(t)
	_, err := f.svc.ExpandNode(context.Background(), "ws-1", uuid.New())
	if !apperr.IsNotFound(err) {
		t.Fatalf("want ErrNotFound got=%v", err)
	}
}

func TestExpandNodesRequiresSources(t *testing.T) {
	f := newGraphFixture(t)
	_, err := f.svc.ExpandNodes(context.Background(), "ws-1", nil)
	if !apperr.IsInvalidArgument(err) {
		t.Fatalf("want ErrInvalidArgument got=%v", err)
	}
}

func TestExpandNodeRetriesTransientPersist(t *testing.T) {
	f := newGraphFixture(t)
	src := f.seedNode(t, "ws-1", "Graph Theory")
	f.gen.text = validExpansion
	f.repo.subgraphErrs = []error{fmt.Errorf("%w: leader switch", apperr.ErrTransientStore)}

	g, err := f.svc.ExpandNode(context.Background(), "ws-1", src.ID)
	if err != nil {
		t.Fatalf("ExpandNode: %v", err)
	}
	if len(g.Nodes) != 2 {
		t.Fatalf("nodes: want=2 got=%d", len(g.Nodes))
	}
	if len(f.repo.subgraphWrites) != 1 {
		t.Fatalf("subgraph writes after retry: want=1 got=%d", len(f.repo.subgraphWrites))
	}
}

func TestSemanticQueryExcludesSourcesAndNeighbors(t *testing.T) {
	f := newGraphFixture(t)
	src := f.seedNode(t, "ws-1", "Linear Algebra")
	neighbor := domain.ConceptNode{ID: uuid.New(), Name: "Matrix", WorkspaceID: "ws-1"}
	f.repo.neighbors[src.ID] = []domain.ConceptNode{neighbor}
	f.gen.text = validExpansion

	if _, err := f.svc.ExpandNode(context.Background(), "ws-1", src.ID); err != nil {
		t.Fatalf("ExpandNode: %v", err)
	}

	if len(f.repo.similarExcludes) != 1 {
		t.Fatalf("semantic queries: want=1 got=%d", len(f.repo.similarExcludes))
	}
	excluded := map[uuid.UUID]bool{}
	for _, id := range f.repo.similarExcludes[0] {
		excluded[id] = true
	}
	if !excluded[src.ID] {
		t.Fatalf("source id missing from exclusion set")
	}
	if !excluded[neighbor.ID] {
		t.Fatalf("structural neighbor missing from exclusion set")
	}
}

func TestExpandNodeProceedsWithoutEmbedding(t *testing.T) {
	f := newGraphFixture(t)
	src := f.seedNode(t, "ws-1", "Topology")
	src.Embedding = nil
	f.repo.nodes[src.ID] = src
	f.embedder.err = errors.New("embedding service down")
	f.gen.text = "not json"

	// Semantic context is skipped, structural context still flows, the
	// expansion itself still runs.
	if _, err := f.svc.ExpandNode(context.Background(), "ws-1", src.ID); err != nil {
		t.Fatalf("ExpandNode: %v", err)
	}
	if len(f.repo.similarExcludes) != 0 {
		t.Fatalf("semantic query issued without an embedding")
	}
	if f.gen.calls != 1 {
		t.Fatalf("generator calls: want=1 got=%d", f.gen.calls)
	}
}

func TestCreateNodeValidatesAndEmbeds(t *testing.T) {
	f := newGraphFixture(t)

	if _, err := f.svc.CreateNode(context.Background(), "ws-1", domain.ConceptNode{Name: "  "}); !apperr.IsInvalidArgument(err) {
		t.Fatalf("blank name: want ErrInvalidArgument got=%v", err)
	}

	created, err := f.svc.CreateNode(context.Background(), "ws-1", domain.ConceptNode{
		Name:        "Fourier Transform",
		Description: "Decomposes a signal into frequencies.",
	})
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Fatalf("node id not assigned")
	}
	if created.WorkspaceID != "ws-1" {
		t.Fatalf("workspace: want=%q got=%q", "ws-1", created.WorkspaceID)
	}
	if len(created.Embedding) == 0 {
		t.Fatalf("node stored without embedding")
	}
	if f.embedder.calls != 1 {
		t.Fatalf("embedder calls: want=1 got=%d", f.embedder.calls)
	}
}

func TestCreateEdgeRequiresLabel(t *testing.T) {
	f := newGraphFixture(t)
	edge := domain.ConceptEdge{SourceID: uuid.New(), TargetID: uuid.New()}
	if _, err := f.svc.CreateEdge(context.Background(), "ws-1", edge); !apperr.IsInvalidArgument(err) {
		t.Fatalf("want ErrInvalidArgument got=%v", err)
	}
}
