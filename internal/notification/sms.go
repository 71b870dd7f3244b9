package notification

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"

	"kyc-service/internal/config"
	"kyc-service/internal/util"
)

// SNSSender delivers SMS through AWS SNS. Phone numbers must be E.164.
type SNSSender struct {
	client *sns.Client
	logger *zap.Logger
}

func NewSNSSender(ctx context.Context, cfg config.SNSConfig, logger *zap.Logger) (*SNSSender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &SNSSender{
		client: sns.NewFromConfig(awsCfg),
		logger: logger,
	}, nil
}

func (s *SNSSender) SendSMS(ctx context.Context, to, body string) error {
	_, err := s.client.Publish(ctx, &sns.PublishInput{
		Message:     aws.String(body),
		PhoneNumber: aws.String(to),
	})
	if err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}

	s.logger.Debug("SMS sent", util.String("to", to))
	return nil
}
