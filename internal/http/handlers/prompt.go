package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/mindgraph-backend/internal/domain"
	"github.com/yungbote/mindgraph-backend/internal/http/response"
	"github.com/yungbote/mindgraph-backend/internal/platform/logger"
	"github.com/yungbote/mindgraph-backend/internal/services"
)

type PromptHandler struct {
	log     *logger.Logger
	prompts *services.PromptService
}

func NewPromptHandler(log *logger.Logger, prompts *services.PromptService) *PromptHandler {
	return &PromptHandler{
		log:     log.With("handler", "PromptHandler"),
		prompts: prompts,
	}
}

func (h *PromptHandler) GetPrompt(c *gin.Context) {
	key := services.NormalizePromptKey(c.Param("key"))
	text, err := h.prompts.Get(key)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, domain.PromptDocument{Key: key, Prompt: text})
}

func (h *PromptHandler) UpdatePrompt(c *gin.Context) {
	key := services.NormalizePromptKey(c.Param("key"))
	var upd domain.PromptUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	text, err := h.prompts.Upsert(key, upd.Prompt)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, domain.PromptDocument{Key: key, Prompt: text})
}

// ResetPrompt discards any override and serves the compiled-in default again.
func (h *PromptHandler) ResetPrompt(c *gin.Context) {
	key := services.NormalizePromptKey(c.Param("key"))
	text, err := h.prompts.Reset(key)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, domain.PromptDocument{Key: key, Prompt: text})
}
