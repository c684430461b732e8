package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yungbote/mindgraph-backend/internal/clients/redis"
	apperr "github.com/yungbote/mindgraph-backend/internal/pkg/errors"
	"github.com/yungbote/mindgraph-backend/internal/platform/logger"
)

const (
	idemStatusPending  = "pending"
	idemStatusComplete = "complete"
)

// idempotencyRecord is the value stored under the composite key. Response
// bytes round-trip through JSON as base64.
type idempotencyRecord struct {
	Status      string `json:"status"`
	StatusCode  int    `json:"status_code,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Response    []byte `json:"response,omitempty"`
}

// GateResult is what a gated handler produced, or a replay of an earlier
// production.
type GateResult struct {
	StatusCode  int
	ContentType string
	Body        []byte
	Replayed    bool
}

// IdempotencyGate guarantees at-most-one effective execution per
// (workspace, client key). The PENDING marker is written with an atomic
// conditional set; whoever wins runs the handler, everyone else observes the
// marker. If the lock store is unreachable the gate fails closed: the request
// is rejected as retryable rather than run unprotected.
//
// Policy for a concurrent duplicate observing PENDING: the gate does not
// block and poll; it returns ErrDuplicateInFlight so the transport layer can
// answer "processing, retry later".
type IdempotencyGate struct {
	log         *logger.Logger
	store       redis.Store
	pendingTTL  time.Duration
	completeTTL time.Duration
}

func NewIdempotencyGate(log *logger.Logger, store redis.Store, pendingTTL, completeTTL time.Duration) *IdempotencyGate {
	if pendingTTL <= 0 {
		pendingTTL = 2 * time.Minute
	}
	if completeTTL <= 0 {
		completeTTL = 24 * time.Hour
	}
	return &IdempotencyGate{
		log:         log.With("service", "IdempotencyGate"),
		store:       store,
		pendingTTL:  pendingTTL,
		completeTTL: completeTTL,
	}
}

func idempotencyKey(workspaceID, clientKey string) string {
	sum := sha256.Sum256([]byte(workspaceID + "\x00" + clientKey))
	return "idem:" + hex.EncodeToString(sum[:])
}

// Execute runs handler at most once for the composite key. The handler's
// second return reports whether its result should be committed as the key's
// permanent response; on false the PENDING marker is cleared so a future
// retry may re-attempt. A handler panic also clears the marker before
// propagating, so the key is not held hostage until TTL expiry.
func (g *IdempotencyGate) Execute(ctx context.Context, workspaceID, clientKey string, handler func(ctx context.Context) (*GateResult, bool)) (*GateResult, error) {
	key := idempotencyKey(workspaceID, clientKey)

	pendingRaw, err := json.Marshal(idempotencyRecord{Status: idemStatusPending})
	if err != nil {
		return nil, err
	}

	acquired, err := g.store.SetNX(ctx, key, string(pendingRaw), g.pendingTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrLockUnavailable, err)
	}

	if !acquired {
		raw, found, err := g.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrLockUnavailable, err)
		}
		if !found {
			// Marker expired between SetNX and Get. Treat as in-flight; the
			// client's retry will take a fresh attempt.
			return nil, apperr.ErrDuplicateInFlight
		}
		var rec idempotencyRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("%w: corrupt idempotency record: %v", apperr.ErrLockUnavailable, err)
		}
		if rec.Status != idemStatusComplete {
			return nil, apperr.ErrDuplicateInFlight
		}
		return &GateResult{
			StatusCode:  rec.StatusCode,
			ContentType: rec.ContentType,
			Body:        rec.Response,
			Replayed:    true,
		}, nil
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if delErr := g.store.Del(ctx, key); delErr != nil {
			g.log.Warn("failed to clear pending idempotency record", "error", delErr.Error())
		}
	}()

	result, commit := handler(ctx)
	if !commit {
		return result, nil
	}

	committed = true
	completeRaw, err := json.Marshal(idempotencyRecord{
		Status:      idemStatusComplete,
		StatusCode:  result.StatusCode,
		ContentType: result.ContentType,
		Response:    result.Body,
	})
	if err == nil {
		err = g.store.Set(ctx, key, string(completeRaw), g.completeTTL)
	}
	if err != nil {
		// The handler already ran; losing the record weakens replay, not the
		// at-most-once execution itself.
		g.log.Warn("failed to record idempotency response", "error", err.Error())
	}
	return result, nil
}
