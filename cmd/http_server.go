package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/frahmantamala/dental-credit/api"
	"github.com/frahmantamala/dental-credit/internal"
	"github.com/frahmantamala/dental-credit/internal/auth"
	authpg "github.com/frahmantamala/dental-credit/internal/auth/postgres"
	"github.com/frahmantamala/dental-credit/internal/cache"
	"github.com/frahmantamala/dental-credit/internal/clinic"
	clinicpg "github.com/frahmantamala/dental-credit/internal/clinic/postgres"
	"github.com/frahmantamala/dental-credit/internal/core/database"
	"github.com/frahmantamala/dental-credit/internal/core/events"
	"github.com/frahmantamala/dental-credit/internal/credit"
	creditpg "github.com/frahmantamala/dental-credit/internal/credit/postgres"
	"github.com/frahmantamala/dental-credit/internal/document"
	documentpg "github.com/frahmantamala/dental-credit/internal/document/postgres"
	"github.com/frahmantamala/dental-credit/internal/notification"
	notificationpg "github.com/frahmantamala/dental-credit/internal/notification/postgres"
	"github.com/frahmantamala/dental-credit/internal/offer"
	offerpg "github.com/frahmantamala/dental-credit/internal/offer/postgres"
	"github.com/frahmantamala/dental-credit/internal/payment"
	paymentpg "github.com/frahmantamala/dental-credit/internal/payment/postgres"
	"github.com/frahmantamala/dental-credit/internal/paymentgateway"
	"github.com/frahmantamala/dental-credit/internal/paymentgateway/mercadopago"
	"github.com/frahmantamala/dental-credit/internal/realtime"
	"github.com/frahmantamala/dental-credit/internal/transport/rest"
	"github.com/frahmantamala/dental-credit/internal/transport/swagger"
	"github.com/frahmantamala/dental-credit/internal/user"
	userpg "github.com/frahmantamala/dental-credit/internal/user/postgres"
	"github.com/frahmantamala/dental-credit/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := startHTTPServer(); err != nil {
			fmt.Fprintf(os.Stderr, "server: %v\n", err)
			os.Exit(1)
		}
	},
}

// Dependencies is the wired application shared by the server and the workers.
type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	Gorm     *gorm.DB
	Logger   *slog.Logger
	Bus      *events.EventBus
	Hub      *realtime.Hub
	Archive  *realtime.DynamoArchive
	Handlers rest.Handlers

	Credit     *credit.Service
	Payment    *payment.Service
	Reconciler *payment.Reconciler

	closers []func() error
}

// Close releases everything initializeDependencies opened, in reverse order.
func (d *Dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.Logger.Error("failed to release dependency", "error", err)
		}
	}
}

func startHTTPServer() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, deps.Handlers, deps.Config.Server, deps.Logger)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deps.Logger.Info("Starting HTTP server", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	reconcilerDone := make(chan struct{})
	g.Go(func() error {
		defer close(reconcilerDone)
		return deps.Reconciler.Schedule(gctx, deps.Config.Payment.ReconcileSchedule)
	})
	g.Go(func() error {
		<-gctx.Done()
		deps.Logger.Info("shutting down")
		// SSE streams end when the hub closes their channels
		deps.Hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		// the reconciler publishes too, so it stops before the bus drains
		select {
		case <-reconcilerDone:
		case <-shutdownCtx.Done():
			deps.Logger.Warn("payment reconciliation still running at shutdown")
		}
		if err := deps.Bus.Drain(shutdownCtx); err != nil {
			deps.Logger.Warn("event handlers still running at shutdown", "error", err)
		}
		return nil
	})

	err = g.Wait()
	deps.Logger.Info("Server stopped")
	return err
}

func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	cfg, err := loadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	env := "development"
	if cfg.Observability.Logging.Format == "json" {
		env = "production"
	}
	logger.InitWithLevel(env, cfg.Observability.Logging.Level)
	lg := logger.LoggerWrapper()

	deps := &Dependencies{Config: cfg, Logger: lg}
	ok := false
	defer func() {
		if !ok {
			deps.Close()
		}
	}()

	db, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	deps.DB = db
	deps.closers = append(deps.closers, db.Close)

	gdb, err := initGorm(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}
	deps.Gorm = gdb

	health := rest.NewHealthHandler(db)

	c, err := initCache(ctx, cfg.Cache, health, deps)
	if err != nil {
		return nil, err
	}

	processor, err := initProcessor(cfg, lg, deps)
	if err != nil {
		return nil, err
	}

	bus := events.NewEventBus(lg)
	deps.Bus = bus
	hub := realtime.NewHub(cfg.Realtime.BufferSize, lg)
	deps.Hub = hub
	bus.SubscribeOrdered(events.EventTypeRecordChanged, hub.Handle)

	if cfg.Realtime.ArchiveTable != "" {
		ddb, err := realtime.NewDynamoClient(ctx, cfg.Realtime.ArchiveRegion, cfg.Realtime.ArchiveEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize change archive: %w", err)
		}
		deps.Archive = realtime.NewDynamoArchive(ddb, cfg.Realtime.ArchiveTable, lg)
		bus.SubscribeOrdered(events.EventTypeRecordChanged, deps.Archive.Handle)
	}

	tx := database.NewTxManager(gdb)
	clock := cache.SystemClock{}

	userSvc := user.NewService(userpg.NewRepository(gdb), lg)
	authSvc := auth.NewService(authpg.NewRepository(gdb), auth.NewJWTTokenGenerator(
		cfg.Security.AccessTokenSecret,
		cfg.Security.RefreshTokenSecret,
		cfg.Security.AccessTokenDuration,
		cfg.Security.RefreshTokenDuration,
	), lg)

	notificationSvc := notification.NewService(notificationpg.NewNotificationRepository(gdb), bus, lg)
	if cfg.Notification.Email.Enabled {
		notification.NewEmailNotifier(
			cfg.Notification.Email.Sender,
			userSvc,
			notification.NewSMTPMailer(cfg.Notification.Email),
			lg,
		).Register(bus)
	}

	creditRepo := creditpg.NewCreditRepository(gdb)
	creditSvc := credit.NewService(credit.Deps{
		Repo:      creditRepo,
		Tx:        tx,
		Notifier:  notificationSvc,
		Directory: userSvc,
		Cache:     c,
		CacheTTL:  cfg.Cache.TTL,
		Publisher: bus,
		Clock:     clock,
		Logger:    lg,
	})
	deps.Credit = creditSvc

	offerSvc := offer.NewService(offerpg.NewOfferRepository(gdb), creditSvc, c, cfg.Cache.TTL, bus, lg)

	storage, filesDir, err := initStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize document storage: %w", err)
	}
	documentSvc := document.NewService(documentpg.NewDocumentRepository(gdb), creditRepo, storage, cfg.Storage.MaxFileSize, bus, clock, lg)

	paymentRepo := paymentpg.NewPaymentRepository(gdb)
	paymentSvc := payment.NewService(payment.Deps{
		Repo:      paymentRepo,
		Requests:  creditRepo,
		Processor: processor,
		Tx:        tx,
		Notifier:  notificationSvc,
		Publisher: bus,
		Clock:     clock,
		Logger:    lg,
	})
	deps.Payment = paymentSvc
	deps.Reconciler = payment.NewReconciler(paymentRepo, processor, paymentSvc, cfg.Payment.ReconcileAfter, clock, lg)

	spec, err := swagger.Load(ctx, api.OpenAPI)
	if err != nil {
		return nil, fmt.Errorf("failed to load openapi document: %w", err)
	}

	deps.Handlers = rest.Handlers{
		Health:       health,
		Auth:         auth.NewHandler(authSvc, lg),
		User:         user.NewHandler(userSvc, lg),
		Clinic:       clinic.NewHandler(clinic.NewService(clinicpg.NewClinicRepository(gdb), clock, lg), lg),
		Credit:       credit.NewHandler(creditSvc, lg),
		Offer:        offer.NewHandler(offerSvc, lg),
		Document:     document.NewHandler(documentSvc, lg),
		Payment:      payment.NewHandler(paymentSvc, lg),
		Webhook:      payment.NewWebhookHandler(paymentSvc, lg),
		Notification: notification.NewHandler(notificationSvc, lg),
		Realtime:     realtime.NewHandler(hub, creditSvc, lg),
		RBAC:         auth.NewRBACAuthorization(auth.NewPermissionChecker(), lg),
		AccessPolicy: auth.NewRequestAccessPolicy(db, lg),
		Spec:         spec,
		FilesDir:     filesDir,
	}

	ok = true
	return deps, nil
}

// initStorage returns the document storage and the directory to serve under /files, empty for s3.
func initStorage(ctx context.Context, cfg internal.StorageConfig) (document.Storage, string, error) {
	if cfg.Driver != "s3" {
		local, err := document.NewLocalStorage(cfg.Dir, cfg.PublicBaseURL)
		if err != nil {
			return nil, "", err
		}
		return local, local.Dir(), nil
	}
	client, err := document.NewS3Client(ctx, cfg.Region, cfg.Endpoint)
	if err != nil {
		return nil, "", err
	}
	remote, err := document.NewS3Storage(client, cfg.Bucket, cfg.Region, cfg.PublicBaseURL)
	if err != nil {
		return nil, "", err
	}
	return remote, "", nil
}

func initCache(ctx context.Context, cfg internal.CacheConfig, health *rest.HealthHandler, deps *Dependencies) (cache.Cache, error) {
	if cfg.Driver != "redis" {
		return cache.NewMemoryCache(cache.SystemClock{}), nil
	}
	rc := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	deps.closers = append(deps.closers, rc.Close)
	if err := rc.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	health.AddCheck("redis", rc.Ping)
	return rc, nil
}

func initProcessor(cfg *internal.Config, lg *slog.Logger, deps *Dependencies) (payment.Processor, error) {
	switch cfg.Payment.Provider {
	case "mercadopago":
		p, err := mercadopago.NewProcessor(mercadopago.Config{
			AccessToken:     cfg.Payment.MercadoPagoToken,
			Mock:            cfg.Payment.MercadoPagoMock,
			PayerEmail:      cfg.Payment.PayerEmail,
			NotificationURL: cfg.Payment.WebhookURL,
		}, lg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize mercado pago: %w", err)
		}
		return p, nil
	default:
		client := paymentgateway.NewClient(paymentgateway.Config{
			BaseURL:        cfg.Payment.GatewayURL,
			APIKey:         cfg.Payment.APIKey,
			WebhookURL:     cfg.Payment.WebhookURL,
			Timeout:        cfg.Payment.PaymentTimeout,
			Simulate:       cfg.Payment.Simulate,
			MaxWorkers:     cfg.Payment.MaxWorkers,
			JobQueueSize:   cfg.Payment.JobQueueSize,
			WorkerPoolSize: cfg.Payment.WorkerPoolSize,
		}, lg)
		deps.closers = append(deps.closers, func() error {
			client.Shutdown()
			return nil
		})
		return client, nil
	}
}

// initDB opens the pgx backed pool shared by sqlx and gorm.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		TranslateError: true,
	})
}
