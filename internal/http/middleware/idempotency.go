package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/mindgraph-backend/internal/http/response"
	"github.com/yungbote/mindgraph-backend/internal/pkg/ctxutil"
	apperr "github.com/yungbote/mindgraph-backend/internal/pkg/errors"
	"github.com/yungbote/mindgraph-backend/internal/services"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotency-Replayed"
)

// captureWriter tees the response body so the gate can record it for replay
// while the first execution still streams to the client.
type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotent gates a mutating route on the Idempotency-Key header. Requests
// without the header run undeduplicated. A repeated key returns the original
// response byte-for-byte; a key whose first attempt is still running gets a
// retryable conflict.
func Idempotent(gate *services.IdempotencyGate) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if clientKey == "" {
			c.Next()
			return
		}
		workspaceID := ctxutil.Workspace(c.Request.Context())

		cw := &captureWriter{ResponseWriter: c.Writer}
		res, err := gate.Execute(c.Request.Context(), workspaceID, clientKey, func(_ context.Context) (*services.GateResult, bool) {
			c.Writer = cw
			c.Next()
			c.Writer = cw.ResponseWriter

			status := cw.Status()
			// 5xx means the handler failed; clear the marker so the client
			// may retry. Anything below is the request's settled outcome.
			commit := status < http.StatusInternalServerError
			return &services.GateResult{
				StatusCode:  status,
				ContentType: cw.Header().Get("Content-Type"),
				Body:        cw.buf.Bytes(),
			}, commit
		})
		if err != nil {
			switch {
			case errors.Is(err, apperr.ErrDuplicateInFlight):
				c.Header("Retry-After", "2")
				response.RespondError(c, http.StatusConflict, "processing", err)
			case apperr.IsLockUnavailable(err):
				c.Header("Retry-After", "1")
				response.RespondError(c, http.StatusServiceUnavailable, "lock_unavailable", err)
			default:
				response.RespondError(c, http.StatusInternalServerError, "internal", err)
			}
			c.Abort()
			return
		}
		if res != nil && res.Replayed {
			contentType := res.ContentType
			if contentType == "" {
				contentType = "application/json; charset=utf-8"
			}
			c.Header(replayedHeader, "true")
			c.Data(res.StatusCode, contentType, res.Body)
			c.Abort()
		}
	}
}
