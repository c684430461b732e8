// Package graph is the Neo4j-backed concept graph repository. Every method
// opens a short-lived session; the bulk subgraph write is the only
// multi-statement transaction.
package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/mindgraph-backend/internal/domain"
	apperr "github.com/yungbote/mindgraph-backend/internal/pkg/errors"
	"github.com/yungbote/mindgraph-backend/internal/platform/logger"
	"github.com/yungbote/mindgraph-backend/internal/platform/neo4jdb"
)

type ConceptRepo interface {
	AddNode(ctx context.Context, node domain.ConceptNode) (*domain.ConceptNode, error)
	GetNode(ctx context.Context, workspaceID string, id uuid.UUID) (*domain.ConceptNode, error)
	UpdateNode(ctx context.Context, workspaceID string, id uuid.UUID, upd domain.NodeUpdate) (*domain.ConceptNode, error)
	DeleteNode(ctx context.Context, workspaceID string, id uuid.UUID) (bool, error)
	AddEdge(ctx context.Context, workspaceID string, edge domain.ConceptEdge) error
	DeleteEdge(ctx context.Context, workspaceID string, edge domain.ConceptEdge) (bool, error)
	FullGraph(ctx context.Context, workspaceID string) (*domain.Graph, error)
	Neighbors(ctx context.Context, workspaceID string, id uuid.UUID) ([]domain.ConceptNode, error)
	SimilarNodes(ctx context.Context, workspaceID string, embedding []float32, exclude []uuid.UUID, threshold float64, limit int) ([]domain.ConceptNode, error)
	AddSubgraph(ctx context.Context, nodes []domain.ConceptNode, edges []domain.ConceptEdge) error
	ClearWorkspace(ctx context.Context, workspaceID string) (int64, error)
}

type conceptRepo struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewConceptRepo(client *neo4jdb.Client, log *logger.Logger) ConceptRepo {
	return &conceptRepo{
		client: client,
		log:    log.With("repo", "ConceptRepo"),
	}
}

func (r *conceptRepo) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: r.client.Database,
	})
}

// classify maps driver connectivity/session failures onto the transient
// sentinel so the retry wrapper can discriminate without string matching.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if neo4j.IsRetryable(err) || neo4j.IsConnectivityError(err) {
		return fmt.Errorf("%w: %v", apperr.ErrTransientStore, err)
	}
	return err
}

func nodeFromProps(props map[string]any) domain.ConceptNode {
	n := domain.ConceptNode{}
	if s, ok := props["id"].(string); ok {
		if id, err := uuid.Parse(s); err == nil {
			n.ID = id
		}
	}
	n.Name, _ = props["name"].(string)
	n.Description, _ = props["description"].(string)
	n.WorkspaceID, _ = props["workspaceId"].(string)
	if raw, ok := props["embedding"].([]any); ok && len(raw) > 0 {
		vec := make([]float32, 0, len(raw))
		for _, v := range raw {
			if f, ok := v.(float64); ok {
				vec = append(vec, float32(f))
			}
		}
		n.Embedding = vec
	}
	return n
}

func nodeParams(node domain.ConceptNode) map[string]any {
	var emb any
	if len(node.Embedding) > 0 {
		vals := make([]float64, len(node.Embedding))
		for i, f := range node.Embedding {
			vals[i] = float64(f)
		}
		emb = vals
	}
	return map[string]any{
		"id":          node.ID.String(),
		"name":        node.Name,
		"description": node.Description,
		"embedding":   emb,
		"workspaceId": node.WorkspaceID,
	}
}

func (r *conceptRepo) AddNode(ctx context.Context, node domain.ConceptNode) (*domain.ConceptNode, error) {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	res, err := session.Run(ctx, `
MERGE (n:Concept {id: $id})
ON CREATE SET
    n.name = $name,
    n.description = $description,
    n.embedding = $embedding,
    n.workspaceId = $workspaceId
RETURN n
`, nodeParams(node))
	if err != nil {
		return nil, classify(err)
	}
	record, err := res.Single(ctx)
	if err != nil {
		return nil, classify(err)
	}
	raw, _ := record.Values[0].(neo4j.Node)
	out := nodeFromProps(raw.Props)
	return &out, nil
}

func (r *conceptRepo) GetNode(ctx context.Context, workspaceID string, id uuid.UUID) (*domain.ConceptNode, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	res, err := session.Run(ctx,
		`MATCH (n:Concept {id: $id, workspaceId: $workspaceId}) RETURN n`,
		map[string]any{"id": id.String(), "workspaceId": workspaceID})
	if err != nil {
		return nil, classify(err)
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, classify(err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("node %s: %w", id, apperr.ErrNotFound)
	}
	raw, _ := records[0].Values[0].(neo4j.Node)
	out := nodeFromProps(raw.Props)
	return &out, nil
}

func (r *conceptRepo) UpdateNode(ctx context.Context, workspaceID string, id uuid.UUID, upd domain.NodeUpdate) (*domain.ConceptNode, error) {
	if upd.IsEmpty() {
		return r.GetNode(ctx, workspaceID, id)
	}

	props := map[string]any{}
	if upd.Name != nil {
		props["name"] = *upd.Name
	}
	if upd.Description != nil {
		props["description"] = *upd.Description
	}

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	res, err := session.Run(ctx, `
MATCH (n:Concept {id: $id, workspaceId: $workspaceId})
SET n += $props
RETURN n
`, map[string]any{"id": id.String(), "workspaceId": workspaceID, "props": props})
	if err != nil {
		return nil, classify(err)
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, classify(err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("node %s: %w", id, apperr.ErrNotFound)
	}
	raw, _ := records[0].Values[0].(neo4j.Node)
	out := nodeFromProps(raw.Props)
	return &out, nil
}

func (r *conceptRepo) DeleteNode(ctx context.Context, workspaceID string, id uuid.UUID) (bool, error) {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	res, err := session.Run(ctx,
		`MATCH (n:Concept {id: $id, workspaceId: $workspaceId}) DETACH DELETE n`,
		map[string]any{"id": id.String(), "workspaceId": workspaceID})
	if err != nil {
		return false, classify(err)
	}
	summary, err := res.Consume(ctx)
	if err != nil {
		return false, classify(err)
	}
	return summary.Counters().NodesDeleted() > 0, nil
}

func (r *conceptRepo) AddEdge(ctx context.Context, workspaceID string, edge domain.ConceptEdge) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	// CREATE, not MERGE: duplicate labeled edges between the same pair are
	// allowed.
	res, err := session.Run(ctx, `
MATCH (a:Concept {id: $sourceId, workspaceId: $workspaceId})
MATCH (b:Concept {id: $targetId, workspaceId: $workspaceId})
CREATE (a)-[r:RELATED {label: $label}]->(b)
RETURN r.label AS label
`, map[string]any{
		"sourceId":    edge.SourceID.String(),
		"targetId":    edge.TargetID.String(),
		"label":       edge.Label,
		"workspaceId": workspaceID,
	})
	if err != nil {
		return classify(err)
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return classify(err)
	}
	if len(records) == 0 {
		return fmt.Errorf("edge endpoints in workspace %s: %w", workspaceID, apperr.ErrNotFound)
	}
	return nil
}

func (r *conceptRepo) DeleteEdge(ctx context.Context, workspaceID string, edge domain.ConceptEdge) (bool, error) {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	res, err := session.Run(ctx, `
MATCH (a:Concept {id: $sourceId, workspaceId: $workspaceId})
      -[r:RELATED {label: $label}]->
      (b:Concept {id: $targetId, workspaceId: $workspaceId})
DELETE r
`, map[string]any{
		"sourceId":    edge.SourceID.String(),
		"targetId":    edge.TargetID.String(),
		"label":       edge.Label,
		"workspaceId": workspaceID,
	})
	if err != nil {
		return false, classify(err)
	}
	summary, err := res.Consume(ctx)
	if err != nil {
		return false, classify(err)
	}
	return summary.Counters().RelationshipsDeleted() > 0, nil
}

func (r *conceptRepo) FullGraph(ctx context.Context, workspaceID string) (*domain.Graph, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	res, err := session.Run(ctx, `
MATCH (n:Concept {workspaceId: $workspaceId})
OPTIONAL MATCH (n)-[r:RELATED]->(m:Concept {workspaceId: $workspaceId})
RETURN collect(DISTINCT n) AS nodes,
       collect(DISTINCT {source: startNode(r).id, target: endNode(r).id, label: r.label}) AS rels
`, map[string]any{"workspaceId": workspaceID})
	if err != nil {
		return nil, classify(err)
	}
	record, err := res.Single(ctx)
	if err != nil {
		return nil, classify(err)
	}

	out := domain.EmptyGraph()
	if rawNodes, ok := record.Values[0].([]any); ok {
		for _, rn := range rawNodes {
			if n, ok := rn.(neo4j.Node); ok {
				out.Nodes = append(out.Nodes, nodeFromProps(n.Props))
			}
		}
	}
	if rawRels, ok := record.Values[1].([]any); ok {
		for _, rr := range rawRels {
			rel, ok := rr.(map[string]any)
			if !ok {
				continue
			}
			srcStr, _ := rel["source"].(string)
			tgtStr, _ := rel["target"].(string)
			label, _ := rel["label"].(string)
			src, errA := uuid.Parse(srcStr)
			tgt, errB := uuid.Parse(tgtStr)
			if errA != nil || errB != nil {
				continue
			}
			out.Edges = append(out.Edges, domain.ConceptEdge{SourceID: src, TargetID: tgt, Label: label})
		}
	}
	return out, nil
}

func (r *conceptRepo) Neighbors(ctx context.Context, workspaceID string, id uuid.UUID) ([]domain.ConceptNode, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	res, err := session.Run(ctx, `
MATCH (source:Concept {id: $id, workspaceId: $workspaceId})--(neighbor:Concept)
WHERE neighbor.workspaceId = $workspaceId
RETURN DISTINCT neighbor
`, map[string]any{"id": id.String(), "workspaceId": workspaceID})
	if err != nil {
		return nil, classify(err)
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]domain.ConceptNode, 0, len(records))
	for _, rec := range records {
		if n, ok := rec.Values[0].(neo4j.Node); ok {
			out = append(out, nodeFromProps(n.Props))
		}
	}
	return out, nil
}

func (r *conceptRepo) SimilarNodes(ctx context.Context, workspaceID string, embedding []float32, exclude []uuid.UUID, threshold float64, limit int) ([]domain.ConceptNode, error) {
	vec := make([]float64, len(embedding))
	for i, f := range embedding {
		vec[i] = float64(f)
	}
	excluded := make([]string, 0, len(exclude))
	for _, id := range exclude {
		excluded = append(excluded, id.String())
	}

	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	res, err := session.Run(ctx, `
CALL db.index.vector.queryNodes($index, $limit, $queryVector)
YIELD node, score
WHERE score >= $threshold AND node.workspaceId = $workspaceId AND NOT node.id IN $excludedIds
RETURN node
`, map[string]any{
		"index":       neo4jdb.VectorIndexName,
		"limit":       limit,
		"queryVector": vec,
		"threshold":   threshold,
		"workspaceId": workspaceID,
		"excludedIds": excluded,
	})
	if err != nil {
		return nil, classify(err)
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]domain.ConceptNode, 0, len(records))
	for _, rec := range records {
		if n, ok := rec.Values[0].(neo4j.Node); ok {
			out = append(out, nodeFromProps(n.Props))
		}
	}
	return out, nil
}

// AddSubgraph persists nodes and edges as a single write transaction. No node
// is visible to readers unless the whole batch commits.
func (r *conceptRepo) AddSubgraph(ctx context.Context, nodes []domain.ConceptNode, edges []domain.ConceptEdge) error {
	nodesPayload := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		nodesPayload = append(nodesPayload, nodeParams(n))
	}
	edgesPayload := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		edgesPayload = append(edgesPayload, map[string]any{
			"sourceId": e.SourceID.String(),
			"targetId": e.TargetID.String(),
			"label":    e.Label,
		})
	}

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if len(nodesPayload) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $nodes AS nodeData
MERGE (n:Concept {id: nodeData.id})
ON CREATE SET
    n.name = nodeData.name,
    n.description = nodeData.description,
    n.embedding = nodeData.embedding,
    n.workspaceId = nodeData.workspaceId
`, map[string]any{"nodes": nodesPayload})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		if len(edgesPayload) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $edges AS edgeData
MATCH (source:Concept {id: edgeData.sourceId})
MATCH (target:Concept {id: edgeData.targetId})
CREATE (source)-[r:RELATED {label: edgeData.label}]->(target)
`, map[string]any{"edges": edgesPayload})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return classify(err)
}

func (r *conceptRepo) ClearWorkspace(ctx context.Context, workspaceID string) (int64, error) {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	res, err := session.Run(ctx,
		`MATCH (n:Concept {workspaceId: $workspaceId}) DETACH DELETE n RETURN count(n) AS deleted`,
		map[string]any{"workspaceId": workspaceID})
	if err != nil {
		return 0, classify(err)
	}
	record, err := res.Single(ctx)
	if err != nil {
		return 0, classify(err)
	}
	deleted, _ := record.Values[0].(int64)
	return deleted, nil
}
