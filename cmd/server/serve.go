package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"designguard/internal/access"
	"designguard/internal/chat"
	"designguard/internal/config"
	"designguard/internal/db"
	"designguard/internal/design"
	"designguard/internal/mail"
	"designguard/internal/media"
	"designguard/internal/metrics"
	myMiddleware "designguard/internal/middleware"
	"designguard/internal/notification"
	"designguard/internal/order"
	"designguard/internal/profile"
	"designguard/internal/ratelimit"
	"designguard/internal/user"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and websocket server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Platform
	database, err := db.NewDatabase(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer database.Close()
	log.Info("connected to postgres")

	if cfg.MigrateOnBoot {
		if err := database.MigrateUp(); err != nil {
			return err
		}
		log.Info("database schema up to date")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// The limiter fails open, so a missing redis only degrades rate limiting.
		log.Warn("redis unreachable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	limiter := ratelimit.NewLimiter(redisClient, log)

	queueClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer queueClient.Close()
	mailer := mail.NewQueue(queueClient, cfg.OTPTTL, log)

	images, err := media.NewStore(cfg.CloudinaryURL, cfg.UploadTimeout, log)
	if err != nil {
		return err
	}

	// 2. Features
	hub := chat.NewHub(log)
	go hub.Run()
	defer hub.Stop()

	router := newRouter(cfg, log, services{
		database: database,
		hub:      hub,
		limiter:  limiter,
		mailer:   mailer,
		images:   images,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", cfg.Addr), zap.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

type services struct {
	database *db.Database
	hub      *chat.Hub
	limiter  *ratelimit.Limiter
	mailer   *mail.Queue
	images   *media.Store
}

func newRouter(cfg *config.Config, log *zap.Logger, s services) http.Handler {
	conn := s.database.Conn

	userService := user.NewService(user.NewRepository(conn), s.mailer, s.limiter, cfg.JWTSecret, user.Options{
		TokenTTL:      cfg.JWTTTL,
		ResetTokenTTL: cfg.ResetTokenTTL,
		OTPTTL:        cfg.OTPTTL,
		FrontendURL:   cfg.FrontendURL,
	}, log)
	userHandler := user.NewHandler(userService, log)
	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	chatRepo := chat.NewRepository(conn)
	relay := chat.NewRelay(s.hub, chatRepo, s.limiter, log)
	chatHandler := chat.NewHandler(s.hub, relay, chatRepo, authMiddleware, userService, log)

	emitter := notification.NewEmitter(notification.NewRepository(conn), s.hub, log)
	notificationHandler := notification.NewHandler(emitter, log)

	accessService := access.NewService(access.NewRepository(conn), log)
	accessHandler := access.NewHandler(accessService, log)

	designService := design.NewService(design.NewRepository(conn), accessService, s.images, cfg.MaxUploadBytes, log)
	designHandler := design.NewHandler(designService, cfg.MaxUploadBytes, log)

	orderService := order.NewService(order.NewRepository(conn), accessService, emitter, log)
	orderHandler := order.NewHandler(orderService, log)

	profileService := profile.NewService(profile.NewRepository(conn), s.images, cfg.MaxUploadBytes, log)
	profileHandler := profile.NewHandler(profileService, cfg.MaxUploadBytes, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(myMiddleware.RequestLogger(log))
	r.Use(middleware.Recoverer)

	// Public routes
	r.Handle("/metrics", metrics.Handler())
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", userHandler.Register)
		r.Post("/verify-otp", userHandler.VerifyOTP)
		r.Post("/resend-otp", userHandler.ResendOTP)
		r.Post("/login", userHandler.Login)
		r.Post("/forgot-password", userHandler.ForgotPassword)
		r.Post("/reset-password", userHandler.ResetPassword)
	})

	// The websocket handshake authenticates itself so it can refuse the upgrade.
	r.Get("/ws", chatHandler.ServeWs)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		r.Get("/api/users/search", userHandler.Search)

		r.Route("/api/chat", func(r chi.Router) {
			r.Get("/history/{roomId}", chatHandler.History)
			r.Get("/rooms", chatHandler.Rooms)
			r.Post("/room", chatHandler.CreateRoom)
			r.Post("/clear", chatHandler.Clear)
		})

		r.Route("/api/notifications", func(r chi.Router) {
			r.Get("/", notificationHandler.List)
			r.Get("/unread-count", notificationHandler.UnreadCount)
			r.Put("/read-all", notificationHandler.MarkAllRead)
			r.Put("/{id}/read", notificationHandler.MarkRead)
		})

		r.Get("/api/factories", accessHandler.Factories)
		r.Route("/api/access", func(r chi.Router) {
			r.Post("/request", accessHandler.Request)
			r.Get("/pending", accessHandler.Pending)
			r.Put("/respond/{id}", accessHandler.Respond)
		})

		r.Route("/api/designs", func(r chi.Router) {
			r.Post("/", designHandler.Create)
			r.Get("/{id}", designHandler.List)
			r.Put("/{id}", designHandler.Update)
			r.Delete("/{id}", designHandler.Delete)
		})

		r.Route("/api/orders", func(r chi.Router) {
			r.Post("/", orderHandler.Place)
			r.Get("/", orderHandler.List)
			r.Get("/{id}", orderHandler.Get)
			r.Put("/{id}/status", orderHandler.UpdateStatus)
		})

		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.Me)
			r.Put("/", profileHandler.Update)
			r.Post("/picture", profileHandler.UploadPicture)
			r.Get("/{userId}", profileHandler.Public)
		})
	})

	return r
}
