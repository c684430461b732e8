package domain

import "github.com/google/uuid"

// ConceptNode is a vertex in a workspace's concept graph. Embedding is
// populated lazily; a node must carry one before it can participate in
// similarity search.
type ConceptNode struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Embedding   []float32 `json:"embedding,omitempty"`
	WorkspaceID string    `json:"workspace_id,omitempty"`
}

// ConceptEdge is a directed, labeled relationship between two nodes in the
// same workspace. Duplicate labeled edges between the same pair are allowed.
type ConceptEdge struct {
	SourceID uuid.UUID `json:"source_id"`
	TargetID uuid.UUID `json:"target_id"`
	Label    string    `json:"label"`
}

type Graph struct {
	Nodes []ConceptNode `json:"nodes"`
	Edges []ConceptEdge `json:"edges"`
}

func EmptyGraph() *Graph {
	return &Graph{Nodes: []ConceptNode{}, Edges: []ConceptEdge{}}
}

// NodeUpdate carries partial property updates; nil means "leave unchanged".
type NodeUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (u NodeUpdate) IsEmpty() bool {
	return u.Name == nil && u.Description == nil
}
