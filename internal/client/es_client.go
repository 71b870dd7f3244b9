package client

import (
	"bytes"
	"context"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"kyc-service/internal/config"
	"kyc-service/internal/util"
)

type ESClient struct {
	Client *elasticsearch.Client
	config *config.ElasticConfig
	logger *zap.Logger
}

func NewElasticsearchClient(cfg *config.Config, logger *zap.Logger) (*ESClient, error) {
	elasticConfig := elasticsearch.Config{
		Addresses: cfg.Elastic.Addresses,
	}

	client, err := elasticsearch.NewClient(elasticConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	esClient := &ESClient{
		Client: client,
		config: &cfg.Elastic,
		logger: logger,
	}

	logger.Info("Elasticsearch client initialized",
		util.Any("addresses", cfg.Elastic.Addresses),
		util.String("index", cfg.Elastic.Index),
	)
	return esClient, nil
}

// IndexDocument upserts a JSON document under the configured index.
func (c *ESClient) IndexDocument(ctx context.Context, docID string, body []byte) error {
	req := esapi.IndexRequest{
		Index:      c.config.Index,
		DocumentID: docID,
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.Client)
	if err != nil {
		return fmt.Errorf("failed to index document %s: %w", docID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch returned %s for document %s", res.Status(), docID)
	}
	return nil
}

func (c *ESClient) HealthCheck(ctx context.Context) error {
	res, err := c.Client.Ping(c.Client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping returned %s", res.Status())
	}
	return nil
}
