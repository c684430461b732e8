package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/mindgraph-backend/internal/http/response"
	"github.com/yungbote/mindgraph-backend/internal/pkg/ctxutil"
)

const WorkspaceHeader = "X-Workspace-ID"

// RequireWorkspace extracts the workspace id header and stamps it onto the
// request context. Every graph entity is scoped to it.
func RequireWorkspace() gin.HandlerFunc {
	return func(c *gin.Context) {
		workspaceID := strings.TrimSpace(c.GetHeader(WorkspaceHeader))
		if workspaceID == "" {
			response.RespondError(c, http.StatusBadRequest, "missing_workspace",
				fmt.Errorf("missing %s header", WorkspaceHeader))
			c.Abort()
			return
		}
		ctx := ctxutil.WithWorkspace(c.Request.Context(), workspaceID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
