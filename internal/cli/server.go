package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"avtotest-service/internal/admission"
	"avtotest-service/internal/app"
	"avtotest-service/internal/auth"
	"avtotest-service/internal/cache"
	"avtotest-service/internal/config"
	"avtotest-service/internal/domain"
	"avtotest-service/internal/infra/memory"
	"avtotest-service/internal/infra/postgres"
	redisstore "avtotest-service/internal/infra/redis"
	"avtotest-service/internal/quiz"
	transport "avtotest-service/internal/transport/http"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// catalogBackend is the source of truth for tickets, questions and groups.
type catalogBackend interface {
	cache.Source
	app.CatalogWriter
	app.GroupReader
	app.QuestionSource
}

// userBackend holds profiles, device slots and credentials.
type userBackend interface {
	app.UserRepository
	app.CredentialStore
	admission.SlotStore
}

type resultBackend interface {
	quiz.ResultSink
	app.ResultReader
	app.ResultCleaner
}

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var (
		catalog catalogBackend
		users   userBackend
		results resultBackend
	)
	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, logger); err != nil {
			return err
		}
		pool, err := postgres.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		catalog = postgres.NewCatalogStore(pool)
		users = postgres.NewUserStore(pool)
		results = postgres.NewResultStore(pool)
	} else {
		logger.Warn("postgres url not configured, using in-memory stores")
		catalog = memory.NewStaticCatalog(nil, nil)
		users = memory.NewUserStore()
		results = memory.NewResultStore()
	}

	var (
		local    cache.LocalStore = memory.NewCatalogStore()
		sessions app.SessionRepository
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		local = redisstore.NewCatalogStore(client, config.TTLDuration(cfg.Cache.TTL, 24*time.Hour))
		sessions = redisstore.NewSessionStore(client, config.TTLDuration(cfg.Quiz.SessionTTL, 45*time.Minute))
	} else {
		sessions = memory.NewSessionStore()
	}

	if err := ensureAdmin(ctx, users, cfg, logger); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	content := cache.NewCatalog(local, catalog, logger.Named("cache"))
	go func() {
		if err := content.Resync(ctx); err != nil {
			logger.Warn("catalog warm-up failed", zap.Error(err))
		}
	}()

	quizService := app.NewQuizService(sessions, content, catalog, results, app.QuizConfig{
		Duration:    config.TTLDuration(cfg.Quiz.Duration, quiz.DefaultDuration),
		AutoAdvance: config.TTLDuration(cfg.Quiz.AutoAdvance, quiz.DefaultAutoAdvance),
		RandomSizes: cfg.Quiz.RandomSizes,
		Metrics:     quiz.NewMetrics(reg),
	}, logger.Named("quiz"))

	svc := transport.Services{
		Accounts: app.NewAccountService(users, app.TokenSettings{
			Secret: cfg.Auth.JWTSecret,
			Issuer: cfg.Auth.Issuer,
			TTL:    config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour),
		}),
		Admin:     app.NewAdminService(users, results, sessions, logger.Named("admin")),
		Catalog:   app.NewCatalogAdmin(catalog, logger.Named("catalog")),
		Content:   content,
		Quiz:      quizService,
		Review:    app.NewReviewService(results, content, catalog, logger.Named("review")),
		Admission: admission.NewController(nil, nil, users, logger.Named("admission"), admission.NewMetrics(reg)),
	}
	router := transport.NewServer(svc, transport.Options{
		JWTSecret:    cfg.Auth.JWTSecret,
		JWTIssuer:    cfg.Auth.Issuer,
		CookieName:   cfg.Admission.CookieName,
		CookieSecure: cfg.Admission.CookieSecure,
		Gatherer:     reg,
		Logger:       logger.Named("http"),
	}).Router()

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// ensureAdmin creates the configured bootstrap admin unless the email is taken.
func ensureAdmin(ctx context.Context, users userBackend, cfg config.Config, logger *zap.Logger) error {
	email := strings.ToLower(strings.TrimSpace(cfg.Bootstrap.AdminEmail))
	if email == "" {
		return nil
	}
	_, _, _, err := users.Credentials(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	hash, salt, err := auth.HashPassword(cfg.Bootstrap.AdminPassword)
	if err != nil {
		return err
	}
	id := uuid.NewString()
	err = users.CreateUser(ctx, domain.Profile{
		UserID:    id,
		FullName:  "Administrator",
		Email:     email,
		Role:      domain.RoleAdmin,
		Slots:     domain.DeviceSlots{UserID: id},
		CreatedAt: time.Now().UTC(),
	}, hash, salt)
	if errors.Is(err, domain.ErrAlreadyExists) {
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("bootstrap admin created", zap.String("email", email))
	return nil
}
