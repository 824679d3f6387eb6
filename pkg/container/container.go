package container

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"paysync-backend/internal/config"
	"paysync-backend/internal/domains/payment/gateway/paypal"
	"paysync-backend/internal/domains/payment/handler"
	"paysync-backend/internal/domains/payment/job"
	"paysync-backend/internal/domains/payment/repository"
	"paysync-backend/internal/domains/payment/service"
	"paysync-backend/internal/domains/payment/session"
	"paysync-backend/internal/domains/payment/tokencache"
	"paysync-backend/internal/domains/payment/webhook"
	infraCache "paysync-backend/internal/infrastructure/cache"
	"paysync-backend/internal/infrastructure/database"
	"paysync-backend/internal/infrastructure/email"
	"paysync-backend/internal/infrastructure/tracing"
	"paysync-backend/pkg/cache"
	"paysync-backend/pkg/jwt"
	"paysync-backend/pkg/logger"
)

// ========================================
// CONTAINER STRUCT
// ========================================

// Container is the root of the dependency graph shared by the API and the
// worker.
type Container struct {
	// ========================================
	// INFRASTRUCTURE LAYER
	// ========================================
	Config      *config.Config
	DB          *database.PostgresDB
	Redis       *infraCache.RedisClient
	Cache       cache.Cache
	JWTManager  *jwt.Manager
	AsynqClient *asynq.Client // nil when the queue is disabled
	Mailer      email.EmailService

	shutdownTracing func(context.Context) error

	// ========================================
	// REPOSITORY LAYER
	// ========================================
	TransactionStore repository.TransactionStore
	WebhookRepo      repository.WebhookRepository
	OrderStateRepo   repository.OrderStateRepository

	// ========================================
	// SERVICE LAYER
	// ========================================
	Gateways           *paypal.Provider
	Alerter            service.Alerter
	Reconciler         *service.Reconciler
	CheckoutService    service.CheckoutService
	AdminActionService service.AdminActionService

	Dispatcher       *webhook.Dispatcher
	Verifier         *webhook.Verifier
	WebhookScheduler webhook.Scheduler

	// ========================================
	// HANDLER LAYER (HTTP)
	// ========================================
	CheckoutHandler *handler.CheckoutHandler
	AdminHandler    *handler.AdminHandler
	WebhookHandler  *handler.WebhookHandler
}

// ========================================
// CONSTRUCTOR: BUILD CONTAINER
// ========================================

// NewContainer builds the graph in dependency order: config, infrastructure,
// repositories, services, handlers.
func NewContainer() (*Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.Init(cfg.App.Environment)

	c := &Container{Config: cfg}

	if err := c.initInfrastructure(); err != nil {
		c.Cleanup()
		return nil, err
	}
	c.initRepositories()
	if err := c.initServices(); err != nil {
		c.Cleanup()
		return nil, err
	}
	c.initHandlers()

	logger.Info("Container initialized", map[string]interface{}{
		"environment": cfg.App.Environment,
		"queue":       c.AsynqClient != nil,
	})
	return c, nil
}

// ========================================
// STEP 1: INFRASTRUCTURE
// ========================================
func (c *Container) initInfrastructure() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	c.DB = database.NewPostgresDB(c.Config.Database)
	if err := c.DB.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	c.Redis = infraCache.NewRedisClient(c.Config.Redis)
	if err := c.Redis.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	c.Cache = cache.NewRedisCache(c.Redis.Client, "paysync:")

	c.JWTManager = jwt.NewManager(c.Config.JWT.Secret, c.Config.JWT.AccessTokenExpiry)

	if c.Config.Queue.Enabled {
		c.AsynqClient = asynq.NewClient(c.RedisClientOpt())
	}

	c.Mailer = email.NewSMTPEmailService(email.SMTPConfig{
		Host:     c.Config.Email.Host,
		Port:     c.Config.Email.Port,
		Username: c.Config.Email.Username,
		Password: c.Config.Email.Password,
		From:     c.Config.Email.From,
	})

	shutdown, err := tracing.Init(ctx, c.Config.Telemetry.OTLPEndpoint, c.Config.App.Name, c.Config.App.Version)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	c.shutdownTracing = shutdown
	return nil
}

// RedisClientOpt is the asynq connection for the configured Redis.
func (c *Container) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.Config.Redis.Host,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	}
}

// ========================================
// STEP 2: REPOSITORIES
// ========================================
func (c *Container) initRepositories() {
	c.TransactionStore = repository.NewTransactionRepository(c.DB.Pool)
	c.WebhookRepo = repository.NewWebhookRepository(c.DB.Pool)
	c.OrderStateRepo = repository.NewOrderStateRepository(c.DB.Pool)
}

// ========================================
// STEP 3: SERVICES
// ========================================
func (c *Container) initServices() error {
	tokens, err := tokencache.New(c.Cache, c.Config.TokenCache.Secret)
	if err != nil {
		return fmt.Errorf("failed to init token cache: %w", err)
	}

	pp := c.Config.PayPal
	paypalConfig := paypal.NewConfig(pp.ClientID, pp.ClientSecret, pp.BaseURL)
	paypalConfig.ConnectTimeout = pp.ConnectTimeout
	paypalConfig.RequestTimeout = pp.RequestTimeout
	c.Gateways, err = paypal.NewProvider(paypalConfig, tokens)
	if err != nil {
		return err
	}

	c.Alerter = service.NewLogAlerter()
	if c.AsynqClient != nil {
		c.Alerter = job.NewQueueAlerter(c.AsynqClient, c.Alerter)
	}

	c.Reconciler = service.NewReconciler(c.TransactionStore, c.Gateways, c.Alerter)
	c.CheckoutService = service.NewCheckoutService(
		c.TransactionStore,
		c.Gateways,
		session.NewStore(c.Cache, 0),
		c.OrderStateRepo,
		c.Alerter,
	)
	c.AdminActionService = service.NewAdminActionService(
		c.TransactionStore,
		c.Gateways,
		c.Reconciler,
		c.OrderStateRepo,
		c.Alerter,
	)

	c.Dispatcher = webhook.NewDispatcher(c.TransactionStore, c.WebhookRepo, webhook.DefaultHandlers(webhook.Deps{
		Syncer:  c.Reconciler,
		Store:   c.TransactionStore,
		Orders:  c.OrderStateRepo,
		Alerter: c.Alerter,
	})...)
	c.Verifier = webhook.NewVerifier(webhook.Config{
		WebhookID:        pp.WebhookID,
		CertHostSuffixes: pp.CertHostSuffixes,
		CertFetchTimeout: pp.CertFetchTimeout,
	}, c.Gateways)

	if c.AsynqClient != nil {
		c.WebhookScheduler = job.NewWebhookQueue(c.AsynqClient)
	} else {
		c.WebhookScheduler = &webhook.InlineScheduler{Dispatcher: c.Dispatcher}
	}
	return nil
}

// ========================================
// STEP 4: HANDLERS
// ========================================
func (c *Container) initHandlers() {
	c.CheckoutHandler = handler.NewCheckoutHandler(c.CheckoutService)
	c.AdminHandler = handler.NewAdminHandler(c.AdminActionService, c.WebhookRepo)
	c.WebhookHandler = handler.NewWebhookHandler(c.Verifier, c.WebhookScheduler)
}

// Cleanup releases resources on shutdown. Safe on a partially built container.
func (c *Container) Cleanup() {
	if c.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.shutdownTracing(ctx); err != nil {
			logger.Error("Failed to flush traces", err)
		}
		cancel()
	}
	if c.AsynqClient != nil {
		if err := c.AsynqClient.Close(); err != nil {
			logger.Error("Failed to close asynq client", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logger.Error("Failed to close Redis", err)
		}
	}
	if c.DB != nil {
		_ = c.DB.Close()
	}
}
