package services

import (
	"fmt"
	"math"

	apperr "github.com/yungbote/mindgraph-backend/internal/pkg/errors"
)

// Typed shape of the generator's expansion payload. Validation happens once
// here, at the orchestrator boundary; anything that does not match is an
// ErrModelOutput and never propagates as an untyped value.

type expansionNode struct {
	Name        string
	Description string
}

// endpointRef addresses an edge endpoint: IsNew selects the proposed-nodes
// list, otherwise the original source-nodes list; Index is 0-based within
// the selected list.
type endpointRef struct {
	IsNew bool
	Index int
}

type expansionEdge struct {
	Source endpointRef
	Target endpointRef
	Label  string
}

type expansionPayload struct {
	Nodes []expansionNode
	Edges []expansionEdge
}

func schemaErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperr.ErrModelOutput, fmt.Sprintf(format, args...))
}

func validateExpansionPayload(v any) (*expansionPayload, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, schemaErr("payload is %T, want object", v)
	}

	rawNodes, ok := obj["nodes"]
	if !ok {
		return nil, schemaErr("missing required field %q", "nodes")
	}
	nodeList, ok := rawNodes.([]any)
	if !ok {
		return nil, schemaErr("field %q is %T, want array", "nodes", rawNodes)
	}

	rawEdges, ok := obj["edges"]
	if !ok {
		return nil, schemaErr("missing required field %q", "edges")
	}
	edgeList, ok := rawEdges.([]any)
	if !ok {
		return nil, schemaErr("field %q is %T, want array", "edges", rawEdges)
	}

	out := &expansionPayload{
		Nodes: make([]expansionNode, 0, len(nodeList)),
		Edges: make([]expansionEdge, 0, len(edgeList)),
	}

	for i, raw := range nodeList {
		nodeObj, ok := raw.(map[string]any)
		if !ok {
			return nil, schemaErr("nodes[%d] is %T, want object", i, raw)
		}
		name, err := requiredString(nodeObj, "name", fmt.Sprintf("nodes[%d]", i))
		if err != nil {
			return nil, err
		}
		description, err := requiredString(nodeObj, "description", fmt.Sprintf("nodes[%d]", i))
		if err != nil {
			return nil, err
		}
		out.Nodes = append(out.Nodes, expansionNode{Name: name, Description: description})
	}

	for i, raw := range edgeList {
		edgeObj, ok := raw.(map[string]any)
		if !ok {
			return nil, schemaErr("edges[%d] is %T, want object", i, raw)
		}
		source, err := requiredRef(edgeObj, "source", i)
		if err != nil {
			return nil, err
		}
		target, err := requiredRef(edgeObj, "target", i)
		if err != nil {
			return nil, err
		}
		label, err := requiredString(edgeObj, "label", fmt.Sprintf("edges[%d]", i))
		if err != nil {
			return nil, err
		}
		out.Edges = append(out.Edges, expansionEdge{Source: source, Target: target, Label: label})
	}

	return out, nil
}

func requiredString(obj map[string]any, field, where string) (string, error) {
	raw, ok := obj[field]
	if !ok {
		return "", schemaErr("%s missing required field %q", where, field)
	}
	s, ok := raw.(string)
	if !ok {
		return "", schemaErr("%s.%s is %T, want string", where, field, raw)
	}
	return s, nil
}

func requiredRef(obj map[string]any, field string, edgeIdx int) (endpointRef, error) {
	where := fmt.Sprintf("edges[%d].%s", edgeIdx, field)
	raw, ok := obj[field]
	if !ok {
		return endpointRef{}, schemaErr("edges[%d] missing required field %q", edgeIdx, field)
	}
	refObj, ok := raw.(map[string]any)
	if !ok {
		return endpointRef{}, schemaErr("%s is %T, want object", where, raw)
	}
	rawIsNew, ok := refObj["is_new"]
	if !ok {
		return endpointRef{}, schemaErr("%s missing required field %q", where, "is_new")
	}
	isNew, ok := rawIsNew.(bool)
	if !ok {
		return endpointRef{}, schemaErr("%s.is_new is %T, want bool", where, rawIsNew)
	}
	rawIndex, ok := refObj["index"]
	if !ok {
		return endpointRef{}, schemaErr("%s missing required field %q", where, "index")
	}
	idxFloat, ok := rawIndex.(float64)
	if !ok || idxFloat != math.Trunc(idxFloat) {
		return endpointRef{}, schemaErr("%s.index is not an integer", where)
	}
	return endpointRef{IsNew: isNew, Index: int(idxFloat)}, nil
}
