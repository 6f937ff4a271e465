package main

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/lgrondin/tchatbox-backend/internal/config"
	"github.com/lgrondin/tchatbox-backend/internal/database"
	"github.com/lgrondin/tchatbox-backend/internal/handlers"
	"github.com/lgrondin/tchatbox-backend/internal/middleware"
	"github.com/lgrondin/tchatbox-backend/internal/routes"
	"github.com/lgrondin/tchatbox-backend/internal/services"
	"github.com/lgrondin/tchatbox-backend/internal/store"
)

func main() {
	// Load env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	// Connect to PostgreSQL (user records)
	log.Printf("Connecting to PostgreSQL...")
	if err := database.ConnectPostgres(cfg.PostgresURI); err != nil {
		log.Fatal("Failed to connect to PostgreSQL:", err)
	}
	defer database.DisconnectPostgres()

	// Connect to Redis (rate limiting, presence mirror, recent cache)
	log.Printf("Connecting to Redis...")
	if err := database.ConnectRedis(cfg.RedisURI); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer database.DisconnectRedis()

	// Connect to MongoDB (message log)
	log.Printf("Connecting to MongoDB...")
	if err := database.Connect(cfg.MongoURI); err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer database.Disconnect()

	if err := store.EnsureMessageIndexes(context.Background(), database.DB); err != nil {
		log.Printf("⚠️  WARNING: failed to ensure MongoDB message indexes: %v", err)
	} else {
		log.Println("✅ MongoDB message indexes ensured")
	}

	// Wire the coordinator
	userStore := store.NewPostgresUserStore(database.PostgresDB)
	messageStore := store.NewMongoMessageStore(database.DB, database.RedisClient)

	registry := services.NewRegistry(userStore)
	if err := registry.Load(context.Background()); err != nil {
		log.Fatal("Failed to load user registry:", err)
	}

	hub := services.NewHub()
	router := services.NewRouter(registry, hub, messageStore)
	if err := router.Load(context.Background()); err != nil {
		log.Fatal("Failed to load broadcast history:", err)
	}

	gw := &handlers.Gateway{
		Registry:   registry,
		Hub:        hub,
		Router:     router,
		Social:     services.NewSocial(registry, hub),
		Moderation: services.NewModeration(registry, hub, router, cfg.AdminPseudo),
		Signaling:  services.NewSignaling(registry, hub),
	}

	// Initialize Cloudinary for avatar uploads
	if cfg.CloudinaryName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		uploads, err := services.NewCloudinaryService(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			log.Printf("Warning: Failed to initialize Cloudinary: %v", err)
			log.Println("Avatar uploads will not be available")
		} else {
			gw.Uploads = uploads
			log.Println("✅ Cloudinary service initialized")
		}
	} else {
		log.Println("Warning: Cloudinary credentials not found. Avatar uploads will not be available")
	}

	// Setup router
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RateLimitMiddleware)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	routes.SetupRoutes(r, gw)

	log.Println("📋 Registered routes:")
	log.Println("  GET  /health")
	log.Println("  GET  /ws")
	log.Println("  POST /api/upload")
	log.Println("  GET  /api/history")

	log.Printf("🚀 tchatbox backend running on :%s (admin: %s)", cfg.Port, cfg.AdminPseudo)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
