package main

import (
	"context"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"go-messenger/internal/chat"
	"go-messenger/internal/config"
	"go-messenger/internal/db"
	"go-messenger/internal/logger"
	"go-messenger/internal/middleware"
	"go-messenger/internal/presence"
	"go-messenger/internal/suggest"
	"go-messenger/internal/user"
	"go-messenger/internal/view"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Error("config", "err", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel)
	log := logger.Log

	// Platform layer: durable document store and ephemeral key-value store.
	database, err := db.NewDatabase(cfg.DBDSN)
	if err != nil {
		log.Error("postgres connect failed", "err", err)
		os.Exit(1)
	}
	if err := database.AutoMigrate(); err != nil {
		log.Error("migration failed", "err", err)
		os.Exit(1)
	}
	log.Info("connected to postgres")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Error("redis connect failed", "err", err)
		os.Exit(1)
	}
	log.Info("connected to redis")

	// User feature
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWTSecret)
	userHandler := user.NewHandler(userService)

	// Chat feature
	chatRepo := chat.NewRepository(database.Conn)
	streamer := chat.NewStreamer(redisClient, chatRepo)
	chatService := chat.NewService(chatRepo, streamer)
	chatHandler := chat.NewHandler(chatService, chatRepo)

	// Presence and smart replies
	presenceStore := presence.NewStore(redisClient)
	completer := suggest.NewClient(cfg.SuggestURL, cfg.SuggestTimeout)
	if cfg.SuggestURL == "" {
		log.Info("SUGGEST_URL not set, smart replies disabled")
	}

	viewHandler := view.NewHandler(chatService, streamer, presenceStore, userRepo, completer)

	authMiddleware := middleware.NewAuthMiddleware(userService)

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Public routes
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/users/search", userHandler.SearchUsers)
		r.Put("/api/profile", userHandler.UpdateProfile)

		r.Post("/api/conversations", chatHandler.StartConversation)
		r.Get("/api/messages", chatHandler.GetChatHistory)
		r.Post("/api/messages", chatHandler.SendMessage)

		// One websocket per open conversation view
		r.Get("/ws", viewHandler.ServeWs)
	})

	log.Info("server starting", "addr", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		log.Error("server exited", "err", err)
		os.Exit(1)
	}
}
