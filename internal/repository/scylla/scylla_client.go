package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"kyc-service/internal/config"
	"kyc-service/internal/util"
)

type ScyllaClient struct {
	Session *gocql.Session
	config  *config.ScyllaConfig
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	logger.Info("ScyllaDB session established",
		util.Any("nodes", scyllaConfig.Nodes),
		util.String("keyspace", scyllaConfig.Keyspace),
	)

	return &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}, nil
}

func (c *ScyllaClient) HealthCheck(ctx context.Context) error {
	return c.Session.Query("SELECT release_version FROM system.local").WithContext(ctx).Exec()
}

func (c *ScyllaClient) Close() {
	if c.Session != nil {
		c.Session.Close()
	}
}
