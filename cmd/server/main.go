package main

import (
	"context"
	"flag"
	"net/http"
	"os"

	"community-chat/internal/db"
	"community-chat/internal/directory"
	"community-chat/internal/memstore"
	myMiddleware "community-chat/internal/middleware"
	"community-chat/internal/msglog"
	"community-chat/internal/notify"
	"community-chat/internal/people"
	"community-chat/internal/presence"
	"community-chat/internal/push"
	"community-chat/internal/receipt"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// 1. Config & Flags
	addr := flag.String("addr", ":8080", "http service address")
	flag.Parse()
	godotenv.Load()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Fatal("❌ JWT_SECRET is not set")
	}

	dsn := os.Getenv("DB_DSN")
	redisAddr := os.Getenv("REDIS_ADDR")

	// 2. Storage (Platform Layer). With DB_DSN set we run on Postgres;
	// without it everything lives in the memory store (dev mode).
	var (
		peopleStore    people.Store
		directoryStore directory.Store
		messageStore   msglog.Store
		receiptStore   receipt.Store
		notifyStore    notify.Store
	)
	if dsn != "" {
		database, err := db.NewDatabase(dsn)
		if err != nil {
			logger.Fatal("❌ Failed to connect to DB", "err", err)
		}
		logger.Info("✅ Connected to PostgreSQL")

		if err := database.AutoMigrate(); err != nil {
			logger.Fatal("❌ Migration failed", "err", err)
		}
		logger.Info("✅ Database schema initialized")

		peopleStore = people.NewRepository(database.Conn)
		directoryStore = directory.NewRepository(database.Conn)
		messageStore = msglog.NewRepository(database.Conn)
		receiptStore = receipt.NewRepository(database.Conn)
		notifyStore = notify.NewRepository(database.Conn)
	} else {
		logger.Warn("DB_DSN not set, running on the in-memory store")
		mem := memstore.New()
		peopleStore = mem
		directoryStore = mem
		messageStore = mem
		receiptStore = mem
		notifyStore = mem
	}

	// 3. Redis (Platform Layer): presence/typing, hub fan-out, queue.
	var redisClient *redis.Client
	if redisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: redisAddr})
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			logger.Fatal("❌ Failed to connect to Redis", "err", err)
		}
		logger.Info("✅ Connected to Redis")
	} else {
		logger.Warn("REDIS_ADDR not set, presence and fan-out stay in-process")
	}

	// 4. Engine components
	peopleService := people.NewService(peopleStore, jwtSecret)
	receiptService := receipt.NewService(receiptStore)
	directoryService := directory.NewService(directoryStore, peopleService, receiptService)

	var presenceStore presence.Store
	if redisClient != nil {
		presenceStore = presence.NewRedisStore(redisClient)
	} else {
		presenceStore = presence.NewMemoryStore()
	}
	presenceService := presence.NewService(presenceStore, directoryService, peopleService)

	dispatcher := notify.NewDispatcher(notifyStore, directoryService, peopleService, logger)
	if redisClient != nil && os.Getenv("QUEUE_MODE") == "asynq" {
		queueOpt := asynq.RedisClientOpt{Addr: redisAddr}
		dispatcher.WithQueue(asynq.NewClient(queueOpt))

		worker := asynq.NewServer(queueOpt, asynq.Config{
			Concurrency: 5,
			Queues:      map[string]int{"notifications": 2, "default": 1},
		})
		mux := asynq.NewServeMux()
		dispatcher.RegisterTasks(mux)
		go func() {
			if err := worker.Run(mux); err != nil {
				logger.Error("notification worker stopped", "err", err)
			}
		}()
		logger.Info("✅ Queued notification fan-out enabled")
	}

	hub := push.NewHub(redisClient, directoryService, nil, presenceService, logger)
	messageService := msglog.NewService(messageStore, directoryService, receiptService,
		peopleService, logger, dispatcher, hub)
	hub.SetMessages(messageService)

	go hub.Run()
	go hub.SubscribeToRedis()

	// 5. Handlers & middleware
	peopleHandler := people.NewHandler(peopleService)
	directoryHandler := directory.NewHandler(directoryService)
	messageHandler := msglog.NewHandler(messageService)
	receiptHandler := receipt.NewHandler(receiptService)
	presenceHandler := presence.NewHandler(presenceService)
	notifyHandler := notify.NewHandler(notifyStore)

	authMiddleware := myMiddleware.NewAuthMiddleware(peopleService)

	// 6. Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public
	r.Post("/register", peopleHandler.Register)
	r.Post("/login", peopleHandler.Login)

	// Protected (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		// WebSocket (real-time push; polling the GETs below is the fallback)
		r.Get("/ws", hub.ServeWs)

		r.Route("/api", func(r chi.Router) {
			r.Post("/conversations", directoryHandler.Create)
			r.Get("/conversations", directoryHandler.List)

			r.Post("/conversations/{id}/messages", messageHandler.Send)
			r.Get("/conversations/{id}/messages", messageHandler.History)
			r.Post("/conversations/{id}/read", receiptHandler.MarkRead)

			r.Post("/conversations/{id}/typing", presenceHandler.SetTyping)
			r.Delete("/conversations/{id}/typing", presenceHandler.ClearTyping)
			r.Get("/conversations/{id}/typing", presenceHandler.WhoIsTyping)

			r.Patch("/messages/{id}", messageHandler.Edit)
			r.Delete("/messages/{id}", messageHandler.Delete)
			r.Get("/messages/search", messageHandler.Search)

			r.Get("/unread", receiptHandler.Unread)

			r.Put("/presence", presenceHandler.SetPresence)
			r.Get("/presence", presenceHandler.GetPresence)

			r.Get("/notifications", notifyHandler.List)
		})
	})

	logger.Info("🚀 Server starting", "addr", *addr)
	if err := http.ListenAndServe(*addr, r); err != nil {
		logger.Fatal("server stopped", "err", err)
	}
}
