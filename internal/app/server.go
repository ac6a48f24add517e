// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"stockwatch/internal/config"
	"stockwatch/internal/db"
	authHandler "stockwatch/internal/handlers/auth"
	financeHandler "stockwatch/internal/handlers/finance"
	notifyH "stockwatch/internal/handlers/notification"
	researchHandler "stockwatch/internal/handlers/research"
	wsHandler "stockwatch/internal/handlers/websocket"
	"stockwatch/internal/middleware"
	"stockwatch/internal/pkg/jwt"
	"stockwatch/internal/pkg/session"
	"stockwatch/internal/repository/postgres"
	"stockwatch/internal/scheduler"
	authUsecase "stockwatch/internal/service/auth"
	"stockwatch/internal/service/email"
	financeUsecase "stockwatch/internal/service/finance"
	notifyUsecase "stockwatch/internal/service/notification"
	researchUsecase "stockwatch/internal/service/research"
	"stockwatch/internal/websocket"
	wsHandlers "stockwatch/internal/websocket/handler"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
}

func NewServer(cfg config.AppConfig, logger *zap.Logger) *Server {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	return &Server{cfg: cfg, engine: gin.New(), logger: logger}
}

// tokenValidator breaks the construction cycle between the hub, which
// authenticates sockets, and the auth service, which disconnects them.
type tokenValidator struct {
	auth *authUsecase.AuthService
}

func (v *tokenValidator) ValidateToken(ctx context.Context, token string) (*jwt.Claims, error) {
	return v.auth.ValidateToken(ctx, token)
}

// Start wires every dependency and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	logger := s.logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, db.PostgresConfig{URL: s.cfg.DatabaseURL, MaxConns: 20})
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	dbWrapper := postgres.NewDB(pool)
	defer dbWrapper.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	logger.Info("postgres connected")

	// ----- Redis -----
	redisClient, err := db.NewRedis(db.RedisConfig{
		Addresses: []string{s.cfg.RedisAddr},
		Password:  s.cfg.RedisPass,
		DB:        s.cfg.RedisDB,
		PoolSize:  10,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisClient.Close()
	logger.Info("redis connected")

	// ----- JWT Manager -----
	jwtManager, err := jwt.LoadAndBuild(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT manager: %w", err)
	}

	// ----- Session Manager & Rate Limiter -----
	sessionManager := session.NewManager(redisClient, logger)
	rateLimiter := session.NewRateLimiter(redisClient)

	// ----- Email -----
	emailSender := email.NewEmailSender(
		s.cfg.SMTPHost,
		s.cfg.SMTPPort,
		s.cfg.SMTPUser,
		s.cfg.SMTPPass,
		s.cfg.SMTPFromName,
		s.cfg.SMTPSecure,
	)

	// ----- Repositories -----
	userRepo := postgres.NewUserRepository(pool)
	notifyRepo := postgres.NewNotificationRepository(pool)
	alertRepo := postgres.NewPriceAlertRepository(pool)
	prefsRepo := postgres.NewPreferencesRepository(pool)

	// ----- WebSocket Hub -----
	validator := &tokenValidator{}
	hub := websocket.NewHub(validator, logger)

	// ----- Services (Usecases) -----
	authService := authUsecase.NewAuthService(
		userRepo,
		jwtManager,
		sessionManager,
		rateLimiter,
		emailSender,
		hub,
		s.cfg.AppBaseURL,
		logger,
	)
	validator.auth = authService

	notifService := notifyUsecase.NewNotificationService(notifyRepo, alertRepo, prefsRepo, hub, logger)
	hub.RegisterHandler(wsHandlers.NewNotificationHandler(notifService, logger))

	runner := financeUsecase.NewPythonRunner(s.cfg.PythonPath, s.cfg.FinanceWorkers, s.cfg.FinanceTimeout, logger)
	financeService := financeUsecase.NewFinanceService(runner, s.cfg.FinanceWorkers, logger)

	researchService := researchUsecase.NewResearchService(researchUsecase.Config{
		NewsAPIKey:      s.cfg.NewsAPIKey,
		AlphaVantageKey: s.cfg.AlphaVantageKey,
		ChatKey:         s.cfg.AIChatKey,
		ChatURL:         s.cfg.AIChatURL,
		ChatModel:       s.cfg.AIChatModel,
	}, researchUsecase.NewRedisCache(redisClient, logger), logger)

	// ----- Admin seeding -----
	seedCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := authService.EnsureAdminExists(seedCtx, s.cfg.AdminEmail, s.cfg.AdminPassword); err != nil {
		// Don't fail startup, just log the error
		logger.Error("failed to ensure admin exists", zap.Error(err))
	}
	cancel()

	// ----- Background jobs -----
	jobs := scheduler.New(logger)
	monitor := notifyUsecase.NewAlertMonitor(notifService, financeService, s.cfg.FinanceWorkers, logger)
	if err := jobs.AddJob(s.cfg.AlertCronSpec, monitor); err != nil {
		return fmt.Errorf("invalid ALERT_CRON_SPEC %q: %w", s.cfg.AlertCronSpec, err)
	}
	jobs.Start()
	defer jobs.Stop()

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	// ----- Middlewares -----
	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(s.cfg.AllowedOrigins),
	)

	// ----- Router -----
	SetupRouter(s.engine, &Handlers{
		AuthHandler:     authHandler.NewAuthHandler(authService, logger),
		NotifHandler:    notifyH.NewNotificationHandler(notifService),
		FinanceHandler:  financeHandler.NewFinanceHandler(financeService, logger),
		ResearchHandler: researchHandler.NewResearchHandler(researchService, logger),
		WSHandler:       wsHandler.NewWebSocketHandler(hub, s.cfg.AllowedOrigins, logger),
		AuthMiddleware:  middleware.NewAuthMiddleware(authService),
		Health:          dbWrapper,
	})

	// ----- Start HTTP -----
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", s.cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	// Hijacked websocket connections are not tracked by Shutdown; stopping
	// the hub closes them.
	stopHub()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
