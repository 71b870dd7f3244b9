package client

import (
	"context"
	"fmt"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"kyc-service/internal/config"
	"kyc-service/internal/util"
)

type ClickHouseClient struct {
	Conn   driver.Conn
	config *config.ClickHouseConfig
}

func NewClickHouseClient(cfg *config.Config, logger *zap.Logger) (*ClickHouseClient, error) {
	chConfig := cfg.ClickHouse

	opts := &ch.Options{
		Addr: []string{chConfig.Addr},
		Auth: ch.Auth{
			Database: chConfig.Database,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    20,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping failed: %w", err)
	}

	logger.Info("ClickHouse client initialized",
		util.String("addr", chConfig.Addr),
		util.String("database", chConfig.Database),
	)

	return &ClickHouseClient{
		Conn:   conn,
		config: &chConfig,
	}, nil
}

func (c *ClickHouseClient) Close() error {
	return c.Conn.Close()
}
