package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"kyc-service/internal/audit"
	"kyc-service/internal/bucketing"
	"kyc-service/internal/client"
	"kyc-service/internal/config"
	"kyc-service/internal/encryption"
	"kyc-service/internal/events"
	"kyc-service/internal/notification"
	"kyc-service/internal/repository"
	redisrepo "kyc-service/internal/repository/redis"
	"kyc-service/internal/repository/scylla"
	"kyc-service/internal/search"
	"kyc-service/internal/service"
	"kyc-service/internal/sumsub"
	"kyc-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient
	storage          *client.S3Storage

	// Managers
	encryptionManager *encryption.Manager
	bucketingManager  *bucketing.Manager

	// Repositories
	userRepository repository.UserRepository
	otpCache       *redisrepo.OTPCache

	// Services
	docService  *service.DocumentSubmissionService
	authService *service.AuthService
	reconciler  *service.WebhookReconciler

	closeOnce sync.Once
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	f := &Factory{config: cfg}

	if err := f.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := f.initializeManagers(); err != nil {
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}
	f.initializeServices()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("scylla_enabled", cfg.Scylla.Enabled),
		util.Bool("kafka_enabled", cfg.Kafka.Enabled),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)
	return f, nil
}

// initializeClients initializes external service clients with health checks.
// Redis, the record store, and object storage are required; the analytics
// and messaging sinks degrade to no-ops when disabled or unreachable.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Redis (required: OTP and reset-code storage)
	redisClient, err := client.NewRedisClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	f.redisClient = redisClient
	if err := f.redisClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}
	util.Info("Redis client initialized and healthy")

	// ScyllaDB (record store; in-memory fallback for local development)
	if f.config.Scylla.Enabled {
		scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get())
		if err != nil {
			return fmt.Errorf("scylla: %w", err)
		}
		f.scyllaClient = scyllaClient
		if err := f.scyllaClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("scylla health check: %w", err)
		}
		util.Info("ScyllaDB client initialized and healthy")
	} else {
		util.Warn("ScyllaDB disabled - using in-memory user store")
	}

	// S3 (required: durable document image storage)
	storage, err := client.NewS3Storage(ctx, f.config, util.Get())
	if err != nil {
		return fmt.Errorf("s3: %w", err)
	}
	f.storage = storage
	util.Info("S3 storage client initialized")

	// Kafka
	if f.config.Kafka.Enabled {
		producer, err := client.NewKafkaProducer(f.config, util.Get())
		if err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
	}

	// ClickHouse
	if f.config.ClickHouse.Enabled {
		chClient, err := client.NewClickHouseClient(f.config, util.Get())
		if err != nil {
			util.Warn("ClickHouse initialization failed - proceeding without audit sink", util.ErrorField(err))
		} else {
			f.clickhouseClient = chClient
			util.Info("ClickHouse client initialized")
		}
	}

	// Elasticsearch
	if f.config.Elastic.Enabled {
		esClient, err := client.NewElasticsearchClient(f.config, util.Get())
		if err != nil {
			util.Warn("Elasticsearch initialization failed - proceeding without search index", util.ErrorField(err))
		} else {
			f.esClient = esClient
			util.Info("Elasticsearch client initialized")
		}
	}

	return nil
}

func (f *Factory) initializeManagers() error {
	f.bucketingManager = bucketing.NewManager(f.config.Bucketing.UserBuckets)

	var kmsClient *kms.Client
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			return fmt.Errorf("aws config for kms: %w", err)
		}
		kmsClient = kms.NewFromConfig(awsCfg)
	}
	f.encryptionManager = encryption.NewManager(f.config, kmsClient)

	if f.scyllaClient != nil {
		f.userRepository = scylla.NewUserRepository(f.scyllaClient, f.bucketingManager, util.Get())
	} else {
		f.userRepository = repository.NewMemoryUserRepository()
	}
	f.otpCache = redisrepo.NewOTPCache(f.redisClient)
	return nil
}

func (f *Factory) initializeServices() {
	logger := util.Get()

	var publisher events.Publisher = events.NoopPublisher{}
	if f.kafkaProducer != nil {
		publisher = events.NewKafkaPublisher(f.kafkaProducer, logger)
	}
	var recorder audit.Recorder = audit.NoopRecorder{}
	if f.clickhouseClient != nil {
		recorder = audit.NewClickHouseRecorder(f.clickhouseClient, logger)
	}
	var indexer search.Indexer = search.NoopIndexer{}
	if f.esClient != nil {
		indexer = search.NewESIndexer(f.esClient, logger)
	}

	var emailSender notification.EmailSender = notification.NoopEmailSender{}
	if f.config.Mailgun.APIKey != "" {
		emailSender = notification.NewMailgunSender(f.config.Mailgun, logger)
	}
	var smsSender notification.SMSSender = notification.NoopSMSSender{}
	if f.config.SNS.Enabled {
		sender, err := notification.NewSNSSender(context.Background(), f.config.SNS, logger)
		if err != nil {
			util.Warn("SNS initialization failed - SMS delivery disabled", util.ErrorField(err))
		} else {
			smsSender = sender
		}
	}

	verificationClient := sumsub.NewClient(f.config.Sumsub, logger)

	f.docService = service.NewDocumentSubmissionService(
		f.userRepository, f.storage, verificationClient,
		publisher, recorder, indexer, logger,
	)
	f.reconciler = service.NewWebhookReconciler(
		f.userRepository, publisher, recorder, indexer, logger,
	)
	f.authService = service.NewAuthService(
		f.userRepository, f.otpCache, emailSender, smsSender,
		f.encryptionManager, f.bucketingManager, f.docService,
		f.config.JWT, logger,
	)
}

func (f *Factory) Config() *config.Config { return f.config }

func (f *Factory) AuthService() *service.AuthService { return f.authService }

func (f *Factory) DocumentService() *service.DocumentSubmissionService { return f.docService }

func (f *Factory) Reconciler() *service.WebhookReconciler { return f.reconciler }

// Close releases all client connections. Safe to call more than once.
func (f *Factory) Close() {
	f.closeOnce.Do(func() {
		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Warn("Failed to close Kafka producer", util.ErrorField(err))
			}
		}
		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Warn("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}
		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}
		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Warn("Failed to close Redis client", util.ErrorField(err))
			}
		}
		util.Info("Factory closed")
	})
}
