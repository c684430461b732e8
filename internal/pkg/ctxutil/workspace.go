package ctxutil

import "context"

type ctxKey int

const workspaceKey ctxKey = iota

// WithWorkspace stamps the workspace id onto the request context. The
// middleware is the only writer; services read it back with Workspace.
func WithWorkspace(ctx context.Context, workspaceID string) context.Context {
	return context.WithValue(ctx, workspaceKey, workspaceID)
}

func Workspace(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(workspaceKey).(string)
	return v
}
