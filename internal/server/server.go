package server

import (
	"context"
	"time"

	"backend-dailyrecord/internal/auth"
	"backend-dailyrecord/internal/config"
	"backend-dailyrecord/internal/db"
	"backend-dailyrecord/internal/enrich"
	"backend-dailyrecord/internal/logging"
	"backend-dailyrecord/internal/member"
	"backend-dailyrecord/internal/metrics"
	"backend-dailyrecord/internal/photo"
	"backend-dailyrecord/internal/post"
	"backend-dailyrecord/internal/shared/apperr"
	"backend-dailyrecord/internal/storage"
	"backend-dailyrecord/internal/stream"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
)

// lockMargin keeps the analysis lock alive a little past the upstream timeout.
const lockMargin = 15 * time.Second

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     db.Querier
	Redis  *redis.Client
	Stream *stream.Hub
	Store  *storage.Local
}

func NewServer(cfg config.Config, querier db.Querier, redisClient *redis.Client) (*Server, error) {
	store, err := storage.NewLocal(cfg.UploadDir)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		BodyLimit:    cfg.MaxUploadBytes,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logging.RequestLogger())
	app.Use(metrics.Middleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigin,
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowCredentials: true,
	}))

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     querier,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
		Store:  store,
	}

	registerRoutes(s)
	return s, nil
}

func (s *Server) Close() {
	s.Stream.Close()
}

func registerRoutes(s *Server) {
	codec := auth.NewCodec(s.Cfg.JWTSecret)
	requireAuth := auth.RequireAuth()
	s.App.Use(auth.Gate(codec))

	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.App.Get("/metrics", metrics.Handler())

	members := member.NewService(s.DB, codec, auth.NewHasher(s.Cfg.BcryptCost))
	enricher := enrich.NewClient(enrich.Config{
		Endpoint: s.Cfg.AIEndpoint,
		APIKey:   s.Cfg.AIAPIKey,
		Model:    s.Cfg.AIModel,
		Timeout:  s.Cfg.AITimeout,
	})
	locker := photo.NewLocker(s.Redis, s.Cfg.AITimeout+lockMargin)
	photos := photo.NewService(s.DB, s.Store, enricher, locker, s.Stream)

	member.RegisterRoutes(s.App.Group("/api/members"), members, member.CookieOptions{Secure: s.Cfg.CookieSecure}, requireAuth)
	photo.RegisterRoutes(s.App.Group("/api/photos"), photos, requireAuth)
	storage.RegisterRoutes(s.App.Group("/uploads"), s.Store, requireAuth)
	post.RegisterRoutes(s.App.Group("/posts"), post.NewService(s.DB), requireAuth)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, func(ctx context.Context, email string) (string, error) {
		m, err := members.FindByEmail(ctx, email)
		return m.ID, err
	}, requireAuth)
}

func errorHandler(c *fiber.Ctx, err error) error {
	if status := apperr.Status(err); status >= fiber.StatusInternalServerError {
		logging.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Int("status", status).Msg("request failed")
	}
	return apperr.Handler(c, err)
}
