package server

import (
	"time"

	"github.com/linuskang/bubbly/internal/audit"
	"github.com/linuskang/bubbly/internal/auth"
	"github.com/linuskang/bubbly/internal/cache"
	"github.com/linuskang/bubbly/internal/config"
	"github.com/linuskang/bubbly/internal/notify"
	"github.com/linuskang/bubbly/internal/report"
	"github.com/linuskang/bubbly/internal/review"
	"github.com/linuskang/bubbly/internal/user"
	"github.com/linuskang/bubbly/internal/waypoint"
	"github.com/linuskang/bubbly/internal/xp"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const cacheTTL = 10 * time.Minute

type Server struct {
	App   *fiber.App
	Cfg   config.Config
	DB    *pgxpool.Pool
	Redis *redis.Client
	Log   *logrus.Logger
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}

	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:   app,
		Cfg:   cfg,
		DB:    db,
		Redis: redisClient,
		Log:   log,
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	var notifier notify.Notifier = notify.Nop{}
	if s.Cfg.WebhookURL != "" {
		notifier = notify.NewWebhook(s.Cfg.WebhookURL, s.Log)
	}

	c := cache.New(s.Redis, cacheTTL)
	xpSvc := xp.NewService(s.DB)

	session := auth.Session(s.Cfg.JWTSecret)
	sessionOrKey := auth.SessionOrAPIKey(s.Cfg.JWTSecret, s.Cfg.APIKey)
	apiKeyOnly := auth.APIKeyOnly(s.Cfg.APIKey)

	auth.RegisterRoutes(s.App.Group("/auth"),
		auth.NewService(s.Cfg.JWTSecret, s.Cfg.LinkBaseURL, s.DB, auth.LogMailer{Log: s.Log}), session)

	api := s.App.Group("/api")
	waypointSvc := waypoint.NewService(s.DB, notifier, xpSvc)
	waypoint.RegisterRoutes(api.Group("/waypoints"), waypointSvc, audit.NewStore(s.DB), c, sessionOrKey, apiKeyOnly)
	waypoint.RegisterStats(api, waypointSvc, c)
	review.RegisterRoutes(api.Group("/reviews"),
		review.NewService(s.DB, notifier, xpSvc), session, sessionOrKey)
	user.RegisterRoutes(api.Group("/user"), user.NewService(s.DB), session, sessionOrKey)
	report.RegisterRoutes(api, report.NewService(s.DB, notifier), session)
}
