// Package neo4jdb mirrors a built graph into Neo4j.
package neo4jdb

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Config holds connection settings. An empty URI disables the sink.
type Config struct {
	URI         string        `json:"uri" yaml:"uri"`
	User        string        `json:"user" yaml:"user"`
	Password    string        `json:"password" yaml:"password"`
	Database    string        `json:"database" yaml:"database"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	MaxPoolSize int           `json:"max_pool_size" yaml:"max_pool_size"`
}

// Client wraps a driver bound to one database.
type Client struct {
	Driver   neo4j.DriverWithContext
	Database string
	timeout  time.Duration
}

// NewClient connects and verifies connectivity. It returns nil, nil when
// cfg.URI is empty.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, nil
	}
	user := strings.TrimSpace(cfg.User)
	if user == "" {
		user = "neo4j"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxPool := cfg.MaxPoolSize
	if maxPool <= 0 {
		maxPool = 50
	}

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, cfg.Password, ""), func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = maxPool
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: init driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(vctx)
		return nil, fmt.Errorf("neo4jdb: verify connectivity: %w", err)
	}
	slog.Info("neo4jdb: connected", "uri", uri, "database", cfg.Database)
	return &Client{Driver: driver, Database: cfg.Database, timeout: timeout}, nil
}

// Close releases the driver. It is safe on a nil client.
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
