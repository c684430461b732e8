package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/mindgraph-backend/internal/domain"
	"github.com/yungbote/mindgraph-backend/internal/http/response"
	"github.com/yungbote/mindgraph-backend/internal/pkg/ctxutil"
	apperr "github.com/yungbote/mindgraph-backend/internal/pkg/errors"
	"github.com/yungbote/mindgraph-backend/internal/platform/logger"
	"github.com/yungbote/mindgraph-backend/internal/services"
)

type GraphHandler struct {
	log   *logger.Logger
	graph *services.GraphService
}

func NewGraphHandler(log *logger.Logger, graph *services.GraphService) *GraphHandler {
	return &GraphHandler{
		log:   log.With("handler", "GraphHandler"),
		graph: graph,
	}
}

func nodeIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_node_id",
			fmt.Errorf("invalid node id: %w", err))
		return uuid.Nil, false
	}
	return id, true
}

func (h *GraphHandler) GetGraph(c *gin.Context) {
	workspaceID := ctxutil.Workspace(c.Request.Context())
	g, err := h.graph.GetGraph(c.Request.Context(), workspaceID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, g)
}

func (h *GraphHandler) ClearGraph(c *gin.Context) {
	workspaceID := ctxutil.Workspace(c.Request.Context())
	deleted, err := h.graph.ClearWorkspace(c.Request.Context(), workspaceID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": deleted})
}

func (h *GraphHandler) AddNode(c *gin.Context) {
	var node domain.ConceptNode
	if err := c.ShouldBindJSON(&node); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	workspaceID := ctxutil.Workspace(c.Request.Context())
	created, err := h.graph.CreateNode(c.Request.Context(), workspaceID, node)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *GraphHandler) GetNode(c *gin.Context) {
	id, ok := nodeIDParam(c)
	if !ok {
		return
	}
	workspaceID := ctxutil.Workspace(c.Request.Context())
	node, err := h.graph.GetNode(c.Request.Context(), workspaceID, id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, node)
}

func (h *GraphHandler) UpdateNode(c *gin.Context) {
	id, ok := nodeIDParam(c)
	if !ok {
		return
	}
	var upd domain.NodeUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	workspaceID := ctxutil.Workspace(c.Request.Context())
	node, err := h.graph.UpdateNodeProperties(c.Request.Context(), workspaceID, id, upd)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, node)
}

func (h *GraphHandler) DeleteNode(c *gin.Context) {
	id, ok := nodeIDParam(c)
	if !ok {
		return
	}
	workspaceID := ctxutil.Workspace(c.Request.Context())
	deleted, err := h.graph.DeleteNode(c.Request.Context(), workspaceID, id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	if !deleted {
		response.RespondError(c, http.StatusNotFound, "not_found", apperr.ErrNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

// ExpandNode generates new related concepts for one node. An expansion where
// the model produced nothing valid is reported as a server error: the client
// asked for content and got none.
func (h *GraphHandler) ExpandNode(c *gin.Context) {
	id, ok := nodeIDParam(c)
	if !ok {
		return
	}
	workspaceID := ctxutil.Workspace(c.Request.Context())
	created, err := h.graph.ExpandNode(c.Request.Context(), workspaceID, id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	if len(created.Nodes) == 0 {
		response.RespondError(c, http.StatusInternalServerError, "expansion_empty",
			fmt.Errorf("model failed to generate a valid expansion"))
		return
	}
	c.JSON(http.StatusCreated, created)
}

type expandRequest struct {
	NodeIDs []uuid.UUID `json:"node_ids"`
}

// ExpandNodes is the multi-source variant: one generation call covering all
// requested source nodes.
func (h *GraphHandler) ExpandNodes(c *gin.Context) {
	var req expandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	workspaceID := ctxutil.Workspace(c.Request.Context())
	created, err := h.graph.ExpandNodes(c.Request.Context(), workspaceID, req.NodeIDs)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	if len(created.Nodes) == 0 {
		response.RespondError(c, http.StatusInternalServerError, "expansion_empty",
			fmt.Errorf("model failed to generate a valid expansion"))
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *GraphHandler) AddEdge(c *gin.Context) {
	var edge domain.ConceptEdge
	if err := c.ShouldBindJSON(&edge); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	workspaceID := ctxutil.Workspace(c.Request.Context())
	created, err := h.graph.CreateEdge(c.Request.Context(), workspaceID, edge)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *GraphHandler) DeleteEdge(c *gin.Context) {
	var edge domain.ConceptEdge
	if err := c.ShouldBindJSON(&edge); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	workspaceID := ctxutil.Workspace(c.Request.Context())
	deleted, err := h.graph.DeleteEdge(c.Request.Context(), workspaceID, edge)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	if !deleted {
		response.RespondError(c, http.StatusNotFound, "not_found", apperr.ErrNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}
