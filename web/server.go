// Package web serves the HTTP API: auth, trips, expenses, budgets, fx
// rates, settlement, and the per-trip websocket event feed.
package web

import (
	"context"
	"log"
	"log/slog"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"

	"checkmate/auth"
	"checkmate/config"
	dbt "checkmate/db/db"
	"checkmate/db/mem"
	"checkmate/db/pg"
	"checkmate/fx"
	"checkmate/libs/logging"
	"checkmate/mq/gcppubsub"
	"checkmate/mq/goch"
	mqt "checkmate/mq/mq"
	"checkmate/mq/rabbit"
	"checkmate/settle"
)

type ServiceConfig struct {
	IsDev           bool
	Port            string
	MQMode          string
	RateLimitPerMin int
}

// Handler bundles every dependency the route handlers need.
type Handler struct {
	Store  dbt.Store
	JWT    *auth.JWTManager
	Fx     *fx.Service
	MQ     mqt.TripMessageQueueWrapper
	Engine *settle.Engine
	Log    *slog.Logger
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(h *Handler, cfg ServiceConfig) *gin.Engine {
	r := gin.New()
	setupMiddlewares(r, cfg)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metricsHandler())

	r.POST("/auth/signup", h.Signup)
	r.POST("/auth/login", h.Login)

	authorized := r.Group("/", AuthMiddleware(h.JWT), TripDataLoaderInjectionMiddleware(h.Store))
	{
		authorized.GET("/users/me", h.Me)

		authorized.POST("/trips", h.CreateTrip)
		authorized.GET("/trips", h.ListTrips)
		authorized.GET("/trips/:id", h.GetTrip)
		authorized.GET("/trips/:id/participants", h.ListParticipants)
		authorized.POST("/trips/:id/participants", h.AddParticipant)

		authorized.GET("/trips/:id/expenses", h.ListExpenses)
		authorized.POST("/trips/:id/expenses", h.CreateExpense)
		authorized.PUT("/trips/:id/expenses/:expenseId", h.UpdateExpense)
		authorized.PUT("/trips/:id/expenses/:expenseId/order", h.ReorderExpense)
		authorized.DELETE("/trips/:id/expenses/:expenseId", h.DeleteExpense)

		authorized.GET("/trips/:id/fx", h.GetExchangeRate)

		authorized.GET("/trips/:id/budget", h.GetBudget)
		authorized.PUT("/trips/:id/budget", h.PutBudget)

		authorized.POST("/trips/:id/settlement", h.Settle)
		authorized.GET("/trips/:id/settlement", h.GetSettlement)

		authorized.GET("/ws/trips/:id", h.TripEventFeed)
	}

	return r
}

// Serve starts the web server with dependencies resolved from the
// environment. It blocks until the server stops.
func Serve(svcCfg ServiceConfig) {
	logging.Setup()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if svcCfg.Port == "" {
		svcCfg.Port = cfg.Port
	}
	if svcCfg.MQMode == "" {
		svcCfg.MQMode = cfg.MQMode
	}
	if svcCfg.RateLimitPerMin == 0 {
		svcCfg.RateLimitPerMin = cfg.RateLimitPerMin
	}

	if !svcCfg.IsDev {
		gin.SetMode(gin.ReleaseMode)
	}

	var store dbt.Store
	if svcCfg.IsDev && cfg.DatabaseURL == "" {
		slog.Warn("no DATABASE_URL set, using in-memory store")
		store = mem.NewInMemoryStore()
	} else {
		gormDB, err := pg.InitPostgresGORM(pg.CreateDSN())
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pg.CloseGORM(gormDB)
		store = pg.NewGORMStore(gormDB)
	}

	wrapper := buildMQWrapper(svcCfg.MQMode, cfg)

	h := &Handler{
		Store:  store,
		JWT:    auth.NewJWTManager(cfg.JWTSecret, cfg.TokenExpiry),
		Fx:     fx.NewService(store, fx.NewClient(cfg.FxAPIKey, cfg.FxAPIBaseURL), slog.Default()),
		MQ:     wrapper,
		Engine: settle.NewEngine(store, store, store),
		Log:    slog.Default(),
	}

	roller := StartTripStatusRoller(store, slog.Default())
	defer roller.Stop()

	r := NewRouter(h, svcCfg)
	if err := r.Run(":" + svcCfg.Port); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}

func buildMQWrapper(mode string, cfg *config.Config) mqt.TripMessageQueueWrapper {
	switch mode {
	case "rabbit":
		conn := rabbit.NewRabbitConnection(cfg.RabbitURL)
		wrapper, err := rabbit.NewRabbitTripMessageQueueWrapper(conn)
		if err != nil {
			log.Fatalf("Failed to set up RabbitMQ queues: %v", err)
		}
		return wrapper
	case "gcp":
		ctx := context.Background()
		client, err := pubsub.NewClient(ctx, gcppubsub.GetGCPProjectID())
		if err != nil {
			log.Fatalf("Failed to create Pub/Sub client: %v", err)
		}
		wrapper, err := gcppubsub.NewGCPTripMessageQueueWrapper(ctx, client)
		if err != nil {
			log.Fatalf("Failed to set up Pub/Sub topics: %v", err)
		}
		return wrapper
	default:
		return goch.NewGoChanTripMessageQueueWrapper()
	}
}
