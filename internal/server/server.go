// Package server contains the HTTP, HTML and WebSocket handlers for the blog.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "blango/docs" // swagger docs
	"blango/internal/cache"
	"blango/internal/config"
	"blango/internal/database"
	"blango/internal/featureflags"
	"blango/internal/media"
	"blango/internal/middleware"
	"blango/internal/models"
	"blango/internal/notifications"
	"blango/internal/observability"
	"blango/internal/repository"
	"blango/internal/service"
	"blango/internal/web"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	logger         *slog.Logger

	tokens       *middleware.Tokens
	throttle     middleware.ThrottlePolicy
	media        media.Store
	mailer       service.Mailer
	featureFlags *featureflags.Manager
	feed         *notifications.CommentFeed
	renderer     *web.Renderer
	// cacheStorage backs the response cache and CSRF tokens when Redis is up.
	cacheStorage fiber.Storage

	userRepo       repository.UserRepository
	userService    *service.UserService
	postService    *service.PostService
	tagService     *service.TagService
	commentService *service.CommentService
}

// Option overrides a dependency built by NewServerWithDeps.
type Option func(*Server)

// WithMediaStore replaces the configured media backend.
func WithMediaStore(store media.Store) Option {
	return func(s *Server) { s.media = store }
}

// WithMailer replaces the configured email backend.
func WithMailer(m service.Mailer) Option {
	return func(s *Server) { s.mailer = m }
}

// WithLogger replaces the global structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	// A nil client means Redis is unreachable; caching and fan-out degrade to local.
	cache.InitRedis(cfg.RedisURL)

	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, opts ...Option) (*Server, error) {
	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("blango-api"),
		logger:         middleware.Logger,
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.media == nil {
		store, err := media.New(context.Background(), cfg)
		if err != nil {
			return nil, fmt.Errorf("media store: %w", err)
		}
		s.media = store
	}
	if s.mailer == nil {
		s.mailer = service.NewMailer(cfg, s.logger)
	}

	policy, err := middleware.NewThrottlePolicy(cfg)
	if err != nil {
		return nil, err
	}
	s.throttle = policy
	s.tokens = middleware.NewTokens(cfg.JWTSecret, cfg.JWTTTL, redisClient)
	if redisClient != nil {
		s.cacheStorage = cache.NewStorage(redisClient, "respcache:")
	}

	userRepo := repository.NewUserRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	postRepo := repository.NewPostRepository(db)
	tagRepo := repository.NewTagRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	s.userRepo = userRepo

	s.feed = notifications.NewCommentFeed(
		notifications.NewHub(),
		notifications.NewNotifier(redisClient, s.logger),
		s.logger,
	)

	images := service.NewImageService(s.media, cfg.ImageMaxUploadSizeMB)
	s.postService = service.NewPostService(postRepo, tagRepo, userRepo, commentRepo, images, s.feed, cfg.Location())
	s.commentService = service.NewCommentService(commentRepo, userRepo, s.postService, s.featureFlags, s.feed)
	s.tagService = service.NewTagService(tagRepo)
	s.userService = service.NewUserService(userRepo, profileRepo, s.mailer, s.featureFlags, service.UserServiceConfig{
		Secret:         cfg.JWTSecret,
		BaseURL:        cfg.BaseURL,
		ActivationDays: cfg.AccountActivationDays,
	}, s.logger)

	renderer, err := web.NewRenderer(web.Helpers{
		Recent:   s.recentPosts,
		Tags:     s.allTags,
		MediaURL: s.media.URL,
	})
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	s.renderer = renderer

	return s, nil
}

// recentPosts backs the recent_posts template helper, which has no request
// context of its own.
func (s *Server) recentPosts(excludeID uint) ([]models.Post, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.postService.Recent(ctx, excludeID)
}

// allTags backs the tag sidebar on the index page.
func (s *Server) allTags() ([]models.Tag, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.tagService.All(ctx)
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())

	// Resolve the caller before the context middleware copies user_id into the request context.
	app.Use(middleware.OptionalAuth(s.tokens))
	app.Use(s.loadUser())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New(helmet.Config{
		// Bootstrap is loaded from a CDN by the HTML pages.
		ContentSecurityPolicy: "default-src 'self'; style-src 'self' https://cdn.jsdelivr.net; script-src 'self' https://cdn.jsdelivr.net; img-src 'self' data: https:",
	}))

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS must run before anything that can short-circuit so error responses keep the headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api/v1", middleware.Throttle(s.redis, s.throttle))
	s.setupAPIRoutes(api)
	s.setupPageRoutes(app)
}

func (s *Server) setupAPIRoutes(api fiber.Router) {
	// Swagger documentation
	api.Get("/swagger.json", s.SwaggerJSON)
	api.Get("/swagger.yaml", s.SwaggerYAML)
	api.Get("/swagger/*", s.SwaggerUI())

	// Auth
	tokenScope := middleware.Scope{Name: middleware.ScopeTokenAuth}
	if rate, err := config.ParseRate(s.config.ThrottleTokenAuth); err == nil {
		tokenScope.Rate = rate
	}
	tokenThrottle := middleware.Throttle(s.redis, middleware.ThrottlePolicy{Enabled: s.throttle.Enabled, Now: s.throttle.Now}, tokenScope)
	api.Post("/token-auth/", tokenThrottle, s.ObtainToken)

	auth := api.Group("/auth")
	auth.Post("/register", s.RegisterAPI)
	auth.Post("/activate/:key", s.ActivateAPI)

	// Posts. Specific paths are registered before /:id.
	posts := api.Group("/posts")
	postsCache := s.responseCache("posts", s.config.PostsCacheTTL)
	posts.Get("/", postsCache, s.ListPosts)
	posts.Post("/", middleware.AuthRequired(), s.CreatePost)
	posts.Get("/by-time/:period", postsCache, s.ListPostsByTime)
	posts.Get("/mine", middleware.AuthRequired(), postsCache, s.ListMyPosts)
	posts.Get("/:id/comments/ws", s.CommentFeedUpgrade, s.CommentFeed())
	posts.Put("/:id/hero-image", middleware.AuthRequired(), s.UploadHeroImage)
	posts.Get("/:id", postsCache, s.GetPost)
	posts.Put("/:id", middleware.AuthRequired(), s.UpdatePost)
	posts.Patch("/:id", middleware.AuthRequired(), s.PartialUpdatePost)
	posts.Delete("/:id", middleware.AuthRequired(), s.DeletePost)

	// Tags
	tags := api.Group("/tags")
	tagsCache := s.responseCache("tags", s.config.TagsCacheTTL)
	tags.Get("/", tagsCache, s.ListTags)
	tags.Post("/", middleware.AuthRequired(), s.CreateTag)
	tags.Get("/:id/posts", tagsCache, s.ListTagPosts)
	tags.Get("/:id", tagsCache, s.GetTag)
	tags.Put("/:id", middleware.AuthRequired(), s.UpdateTag)
	tags.Patch("/:id", middleware.AuthRequired(), s.UpdateTag)
	tags.Delete("/:id", middleware.AuthRequired(), s.DeleteTag)

	// Users are addressed by email.
	users := api.Group("/users")
	users.Get("/:email/comments", s.ListUserComments)
	users.Post("/:email/comments", middleware.AuthRequired(), s.CreateUserComment)
	users.Get("/:email", s.responseCache("users", s.config.UsersCacheTTL), s.GetUser)

	// Admin
	admin := api.Group("/admin", StaffRequired())
	admin.Get("/users", s.AdminListUsers)
	admin.Post("/users/:id/promote", s.PromoteUser)
	admin.Post("/users/:id/demote", s.DemoteUser)
	admin.Delete("/users/:id", s.AdminDeleteUser)
	admin.Get("/comments", s.AdminListComments)
	admin.Delete("/comments/:id", s.AdminDeleteComment)
	admin.Post("/cleanup", s.RunCleanup)
	admin.Get("/feature-flags", s.GetFeatureFlags)
}

func (s *Server) responseCache(route string, ttl time.Duration) fiber.Handler {
	return middleware.ResponseCache(middleware.CacheOptions{
		Route:   route,
		TTL:     ttl,
		Backend: s.config.CacheBackend,
		Storage: s.cacheStorage,
	})
}

// LivenessCheck handles liveness probe requests
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/live [get]
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
// @Summary Readiness probe
// @Description Checks the database and Redis.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/ready [get]
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// errorHandler renders errors that escape a handler: JSON for the API and
// plain text for HTML pages.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	status := models.StatusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.ErrorContext(c.UserContext(), "unhandled error",
			slog.String("path", c.Path()), slog.String("error", err.Error()))
	}

	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		var fe *fiber.Error
		if errors.As(err, &fe) && fe.Code == fiber.StatusNotFound {
			err = models.NewNotFoundMessage("Not found.")
		} else if status >= fiber.StatusInternalServerError {
			err = models.NewInternalError(err)
		}
	}

	if !isAPIPath(c.Path()) {
		msg := err.Error()
		if errors.As(err, &appErr) {
			msg = appErr.Message
		}
		return c.Status(status).SendString(msg)
	}
	return models.RespondWithError(c, err)
}

// App builds the Fiber application with middleware and routes. Start calls
// it; tests use it with app.Test.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName:      "Blango",
		ErrorHandler: s.errorHandler,
		Views:        s.renderer,
		BodyLimit:    (s.config.ImageMaxUploadSizeMB + 1) * 1024 * 1024,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := s.App()

	// Wire the comment feed to Redis pub/sub if available
	go func() {
		if err := s.feed.Start(s.shutdownCtx); err != nil {
			s.logger.Error("failed to start comment feed wiring", slog.String("error", err.Error()))
		}
	}()

	if s.config.CleanupInterval > 0 {
		go s.runCleanupLoop(s.shutdownCtx, s.config.CleanupInterval)
	}

	s.logger.Info("server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// runCleanupLoop sweeps expired inactive accounts every interval.
func (s *Server) runCleanupLoop(ctx context.Context, interval time.Duration) {
	job := observability.NewJobLogger(s.logger, "cleanup_inactive_users")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = job.Run(ctx, s.cleanupInactive)
		}
	}
}

func (s *Server) cleanupInactive(ctx context.Context) (map[string]any, error) {
	deleted, err := s.userService.CleanupInactive(ctx, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return map[string]any{"deleted": deleted}, nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop the feed subscriber and cleanup loop
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			s.logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	// Close WebSocket connections gracefully
	if err := s.feed.Hub().Shutdown(ctx); err != nil {
		s.logger.Error("error shutting down comment hub", slog.String("error", err.Error()))
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			s.logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			s.logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}
