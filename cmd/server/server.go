package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/thereayou/aicc-chat/internal/bot"
	"github.com/thereayou/aicc-chat/internal/broker"
	"github.com/thereayou/aicc-chat/internal/config"
	"github.com/thereayou/aicc-chat/internal/handlers"
	"github.com/thereayou/aicc-chat/internal/history"
	"github.com/thereayou/aicc-chat/internal/models"
	"github.com/thereayou/aicc-chat/internal/presence"
	"github.com/thereayou/aicc-chat/internal/reaper"
	"github.com/thereayou/aicc-chat/internal/routing"
	"github.com/thereayou/aicc-chat/internal/store"
	ws "github.com/thereayou/aicc-chat/internal/websocket"
	"github.com/thereayou/aicc-chat/pkg/auth"
)

type Server struct {
	Router     *gin.Engine
	Config     *config.Config
	Hub        *ws.Hub
	Dispatcher *routing.Dispatcher
	Reaper     *reaper.Reaper
	Broker     broker.Broker
}

func NewServer() *Server {
	if err := godotenv.Load(".env.local"); err != nil {
		if err := godotenv.Load(); err != nil {
			log.Println(".env not found, using environment variables")
		}
	}
	cfg := config.Load()

	// Redis нужен хранилищу комнат и присутствию во всех режимах,
	// кроме single
	var rdb *redis.Client
	var roomStore store.Store
	var reg presence.Presence
	if cfg.SystemMode == config.SystemModeSingle {
		roomStore = store.NewMemoryStore()
		reg = presence.NewMemoryRegistry()
	} else {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(redisOpts)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Redis connect failed: %v", err)
		}
		roomStore = store.NewRedisStore(rdb)
		reg = presence.NewRegistry(rdb)
	}

	// история опциональна: без DATABASE_URL чат живет без архива
	var hist *history.Database
	if cfg.DatabaseURL != "" {
		var err error
		hist, err = history.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Postgres connect failed: %v", err)
		}
	} else {
		log.Println("DATABASE_URL is not set, history archive is disabled")
	}

	hub := ws.NewHub(roomStore, reg)

	var bus broker.Broker
	switch cfg.SystemMode {
	case config.SystemModeRedis:
		bus = broker.NewRedisBroker(rdb, hub)
	case config.SystemModeNATS:
		var err error
		bus, err = broker.NewNATSBroker(cfg.NATSURL, hub)
		if err != nil {
			log.Fatalf("NATS connect failed: %v", err)
		}
	default:
		bus = broker.NewLocalBroker(hub)
	}

	michat := bot.NewMiChat(bot.MiChatOptions{
		Endpoint:         cfg.AIEndpoint,
		DefaultCompanyID: cfg.AICompanyID,
		DefaultUserID:    cfg.AIUserID,
		RagSysInfo:       cfg.AIRagSysInfo,
	})
	analysis := bot.NewAnalysis(michat, bot.AnalysisOptions{
		Endpoint:         cfg.AIEndpoint,
		SummaryURI:       cfg.AISummaryURI,
		KeywordURI:       cfg.AIKeywordURI,
		CategoryURI:      cfg.AICategoryURI,
		DefaultCompanyID: cfg.AICompanyID,
		DefaultUserID:    cfg.AIUserID,
	})

	var archive routing.Archive
	if hist != nil {
		archive = hist
	}
	strategy := buildStrategy(cfg, roomStore, bus, michat, archive, hub)

	dispatcher := routing.NewDispatcher(strategy, cfg.DispatchWorkers, cfg.DispatchQueueSize)
	idleReaper := reaper.New(roomStore, bus, archive, hub, cfg.ReaperInterval, cfg.ReaperThreshold)

	// уход клиента из назначенной комнаты должен быть виден оператору
	hub.SetCustomerGoneHandler(func(roomID, userID, userName string) {
		ctx := context.Background()
		mode, err := roomStore.GetMode(ctx, roomID)
		if err != nil || (mode != models.ModeAgent && mode != models.ModeWaiting) {
			return
		}
		dispatcher.Submit(&models.ChatEvent{
			RoomID:   roomID,
			Sender:   userName,
			SenderID: userID,
			Role:     models.RoleSystem,
			Body:     "The customer has left the chat.",
			Type:     models.TypeCustomerLeft,
		})
	})

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTLifetime)

	messageH := handlers.NewMessageHandler(dispatcher, roomStore)
	customerH := handlers.NewCustomerHandler(roomStore, strategy, hub, hist, jwtMgr)
	agentH := handlers.NewAgentHandler(roomStore, bus, reg, hist, hub, jwtMgr)
	presenceH := handlers.NewPresenceHandler(reg)
	wsH := handlers.NewWebSocketHandler(hub, messageH)

	var sessionH *handlers.SessionHandler
	var analysisH *handlers.AnalysisHandler
	if hist != nil {
		sessionH = handlers.NewSessionHandler(hist)
		analysisH = handlers.NewAnalysisHandler(analysis, hist)
	}

	router := gin.Default()
	APIEndpoints(router, jwtMgr, customerH, agentH, sessionH, presenceH, analysisH, messageH, wsH)

	return &Server{
		Router:     router,
		Config:     cfg,
		Hub:        hub,
		Dispatcher: dispatcher,
		Reaper:     idleReaper,
		Broker:     bus,
	}
}

func buildStrategy(cfg *config.Config, st store.Store, bus broker.Broker, bridge bot.Bridge, archive routing.Archive, hub *ws.Hub) routing.Strategy {
	switch cfg.ChatMode {
	case config.ChatModeSimple:
		return routing.NewSimpleStrategy(bus, archive)
	case config.ChatModeAgent:
		return routing.NewAgentStrategy(bus, archive)
	default:
		botStrategy := routing.NewBotStrategy(st, bus, bridge, archive, hub)
		agentStrategy := routing.NewAgentStrategy(bus, archive)
		return routing.NewDynamicStrategy(st, botStrategy, agentStrategy, archive, hub)
	}
}

func (s *Server) Run() {
	go s.Hub.Run()
	s.Dispatcher.Start()
	s.Reaper.Start()
	defer func() {
		s.Reaper.Stop()
		s.Dispatcher.Stop()
		s.Hub.Stop()
		s.Broker.Close()
	}()

	log.Printf("Server starting on port %s (system mode %s, chat mode %s)",
		s.Config.Port, s.Config.SystemMode, s.Config.ChatMode)
	if err := s.Router.Run(":" + s.Config.Port); err != nil {
		log.Fatalf("Server run error: %v", err)
	}
}
