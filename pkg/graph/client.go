// Package graph mirrors catalog entities and their links into a Neo4j/Memgraph graph over Bolt.
package graph

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	neo4jconfig "github.com/neo4j/neo4j-go-driver/v5/neo4j/config"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// Database selects a named database. Empty uses the server default, which is all Memgraph has.
	Database    string
	MaxPoolSize int
	// WriteTimeout bounds a projection transaction including its retries.
	WriteTimeout time.Duration
}

func (c Config) uri() string {
	return "bolt://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Client owns the Bolt driver. Projection writes are its only traffic.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	timeout  time.Duration
	logger   ectologger.Logger
}

func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.uri(), auth, func(c *neo4jconfig.Config) {
		if cfg.MaxPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxPoolSize
		}
		if cfg.WriteTimeout > 0 {
			c.MaxTransactionRetryTime = cfg.WriteTimeout
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create graph driver for %s: %w", cfg.uri(), err)
	}

	return &Client{
		driver:   driver,
		database: cfg.Database,
		timeout:  cfg.WriteTimeout,
		logger:   logger,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) VerifyConnectivity(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

// ExecuteWrite runs work in a managed write transaction. The driver retries transient failures.
func (c *Client) ExecuteWrite(ctx context.Context, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.ExecuteWrite")
	defer span.End()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: c.database,
	})
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, work)
	if err != nil {
		tracing.RecordError(ctx, err)
		c.logger.WithContext(ctx).WithError(err).Warn("Graph write failed")
	}
	return result, err
}
