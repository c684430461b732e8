package neo4jdb

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/mindgraph-backend/internal/platform/envutil"
	"github.com/yungbote/mindgraph-backend/internal/platform/logger"
)

const VectorIndexName = "concept_embeddings"

type Client struct {
	Driver   neo4j.DriverWithContext
	Database string
	log      *logger.Logger
}

func NewFromEnv(log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("neo4jdb: logger required")
	}

	uri := strings.TrimSpace(os.Getenv("NEO4J_URI"))
	if uri == "" {
		return nil, fmt.Errorf("neo4jdb: missing NEO4J_URI")
	}

	user := envutil.Str("NEO4J_USER", "neo4j")
	password := strings.TrimSpace(os.Getenv("NEO4J_PASSWORD"))
	database := strings.TrimSpace(os.Getenv("NEO4J_DATABASE"))

	timeoutSec := envutil.Int("NEO4J_TIMEOUT_SECONDS", 10)
	maxPool := envutil.Int("NEO4J_MAX_POOL_SIZE", 50)

	auth := neo4j.BasicAuth(user, password, "")
	driver, err := neo4j.NewDriverWithContext(uri, auth, func(cfg *neo4j.Config) {
		cfg.MaxConnectionPoolSize = maxPool
		cfg.SocketConnectTimeout = time.Duration(timeoutSec) * time.Second
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: init driver: %w", err)
	}

	return &Client{
		Driver:   driver,
		Database: database,
		log:      log.With("client", "Neo4jDB"),
	}, nil
}

// VerifyConnectivityWithRetry blocks until the database answers or the
// attempt budget is spent. The store usually comes up after the service in
// compose-style deployments, so startup tolerates a cold database.
func (c *Client) VerifyConnectivityWithRetry(ctx context.Context, attempts int, delay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.Driver.VerifyConnectivity(ctx); err == nil {
			c.log.Info("connected to neo4j", "attempt", attempt)
			return nil
		} else {
			lastErr = err
		}
		if attempt == attempts {
			break
		}
		c.log.Warn("neo4j not ready, retrying", "attempt", attempt, "max_attempts", attempts, "delay", delay.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("neo4jdb: verify connectivity after %d attempts: %w", attempts, lastErr)
}

// EnsureVectorIndex provisions the cosine vector index used for semantic
// retrieval if it does not exist yet.
func (c *Client) EnsureVectorIndex(ctx context.Context, dimensions int) error {
	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: c.Database,
	})
	defer session.Close(ctx)

	res, err := session.Run(ctx,
		`SHOW INDEXES YIELD name WHERE toLower(name) = $name RETURN count(*) > 0 AS indexExists`,
		map[string]any{"name": VectorIndexName})
	if err != nil {
		return fmt.Errorf("neo4jdb: check vector index: %w", err)
	}
	record, err := res.Single(ctx)
	if err != nil {
		return fmt.Errorf("neo4jdb: check vector index: %w", err)
	}
	if exists, _ := record.Values[0].(bool); exists {
		c.log.Info("vector index present", "index", VectorIndexName)
		return nil
	}

	c.log.Info("creating vector index", "index", VectorIndexName, "dimensions", dimensions)
	createRes, err := session.Run(ctx, fmt.Sprintf(`
CREATE VECTOR INDEX `+"`%s`"+`
FOR (n:Concept) ON (n.embedding)
OPTIONS { indexConfig: {
    `+"`vector.dimensions`"+`: %d,
    `+"`vector.similarity_function`"+`: 'cosine'
} }
`, VectorIndexName, dimensions), nil)
	if err != nil {
		return fmt.Errorf("neo4jdb: create vector index: %w", err)
	}
	if _, err := createRes.Consume(ctx); err != nil {
		return fmt.Errorf("neo4jdb: create vector index: %w", err)
	}
	return nil
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := c.Driver.Close(ctx)
	c.Driver = nil
	return err
}
