package main

import (
	"collaborative-deck-editor/internal/auth"
	"collaborative-deck-editor/internal/comment"
	"collaborative-deck-editor/internal/config"
	"collaborative-deck-editor/internal/db"
	"collaborative-deck-editor/internal/deck"
	"collaborative-deck-editor/internal/events"
	"collaborative-deck-editor/internal/middleware"
	"collaborative-deck-editor/internal/session"
	"collaborative-deck-editor/internal/upstream"
	"collaborative-deck-editor/internal/user"
	"collaborative-deck-editor/internal/worker"
	"collaborative-deck-editor/redis"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Connect to database
	db.ConnectDb()
	defer db.CloseDb()

	// Migrate database schema
	db.Migrate()

	// Initialize Redis
	redis.InitRedis()

	// Seed database with initial data (for development)
	if config.AppConfig.Environment == "development" {
		db.SeedData()
	}

	cache := redis.NewCache(redis.RedisClient)
	prefs := redis.NewPrefs(redis.RedisClient)
	pool := worker.NewWorkerPool(4)
	appBus := events.NewBus()

	upstreamClient := upstream.NewClient(
		config.AppConfig.UpstreamAddress,
		config.AppConfig.UpstreamSecret,
	)

	// Initialize repository
	userRepo := user.NewRepository(db.AppDb)
	deckRepo := deck.NewRepository(db.AppDb)
	commentRepo := comment.NewRepository(db.AppDb)
	// Initialize service
	userService := user.NewService(userRepo, cache)
	deckService := deck.NewService(deckRepo, userService, upstreamClient, cache)
	commentService := comment.NewService(commentRepo, deckService, cache, appBus)
	registry := session.NewRegistry(deckService, upstreamClient, redis.RedisClient, pool, log.Logger)
	// Initialize handler
	userHandler := user.NewHandler(userService)
	deckHandler := deck.NewHandler(deckService)
	commentHandler := comment.NewHandler(commentService)
	sessionHandler := session.NewHandler(registry, deckService, upstreamClient, prefs)

	// Initialize Gin router
	router := gin.Default()
	router.Use(middleware.ErrorHandler())

	// cors setting
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}

	if config.AppConfig.Environment == "development" {
		// Allow all origins in development
		corsConfig.AllowAllOrigins = true
	} else {
		// Restrict origins in production
		corsConfig.AllowOrigins = []string{config.AppConfig.FrontendAddress}
	}
	router.Use(cors.New(corsConfig))

	// User routes
	router.POST("/register", userHandler.Register)
	router.POST("/login", userHandler.Login)
	router.DELETE("/logout", auth.AuthMiddleWare(), userHandler.Logout)
	router.GET("/profile", auth.AuthMiddleWare(), userHandler.GetProfile)
	router.GET("/users", auth.AuthMiddleWare(), userHandler.SearchUsers)

	// Deck routes
	router.POST("/decks", auth.AuthMiddleWare(), deckHandler.Create)
	router.GET("/decks", auth.AuthMiddleWare(), deckHandler.ShowUserDecks)
	router.GET("/decks/:uuid", auth.AuthMiddleWare(), deckHandler.ShowDeck)
	router.PUT("/decks/:uuid", auth.AuthMiddleWare(), deckHandler.Rename)
	router.DELETE("/decks/:uuid", auth.AuthMiddleWare(), deckHandler.DeleteDeck)
	router.GET("/decks/:uuid/role", auth.AuthMiddleWare(), deckHandler.ShowMyRole)
	router.GET("/decks/:uuid/collaborators", auth.AuthMiddleWare(), deckHandler.ListCollaborators)
	router.POST("/decks/:uuid/collaborators", auth.AuthMiddleWare(), deckHandler.AddCollaborator)
	router.PUT("/decks/:uuid/collaborators", auth.AuthMiddleWare(), deckHandler.ChangeCollaboratorRole)
	router.DELETE("/decks/:uuid/collaborators/:userId", auth.AuthMiddleWare(), deckHandler.RemoveCollaborator)

	// Comment routes
	router.GET("/decks/:uuid/threads", auth.AuthMiddleWare(), commentHandler.ListThreads)
	router.POST("/decks/:uuid/threads", auth.AuthMiddleWare(), commentHandler.CreateThread)
	router.POST("/decks/:uuid/threads/:thread_id/comments", auth.AuthMiddleWare(), commentHandler.Reply)
	router.PUT("/decks/:uuid/threads/:thread_id/resolve", auth.AuthMiddleWare(), commentHandler.Resolve)
	router.DELETE("/decks/:uuid/threads/:thread_id", auth.AuthMiddleWare(), commentHandler.DeleteThread)
	router.GET("/decks/:uuid/mentions", auth.AuthMiddleWare(), commentHandler.MentionDirectory)

	// Live editing session routes
	router.POST("/decks/:uuid/session", auth.AuthMiddleWare(), sessionHandler.Open)
	router.DELETE("/decks/:uuid/session", auth.AuthMiddleWare(), sessionHandler.Close)
	router.GET("/decks/:uuid/session/state", auth.AuthMiddleWare(), sessionHandler.State)
	router.PUT("/decks/:uuid/session/current-slide", auth.AuthMiddleWare(), sessionHandler.Navigate)
	router.POST("/decks/:uuid/slides", auth.AuthMiddleWare(), sessionHandler.AddSlide)
	router.PUT("/decks/:uuid/slides/reorder", auth.AuthMiddleWare(), sessionHandler.ReorderSlides)
	router.PUT("/decks/:uuid/slides/:slide_id", auth.AuthMiddleWare(), sessionHandler.UpdateSlide)
	router.DELETE("/decks/:uuid/slides/:slide_id", auth.AuthMiddleWare(), sessionHandler.RemoveSlide)
	router.POST("/decks/:uuid/slides/:slide_id/duplicate", auth.AuthMiddleWare(), sessionHandler.DuplicateSlide)
	router.POST("/decks/:uuid/slides/:slide_id/components", auth.AuthMiddleWare(), sessionHandler.AddComponent)
	router.DELETE("/decks/:uuid/slides/:slide_id/components/:component_id", auth.AuthMiddleWare(), sessionHandler.RemoveComponent)
	router.POST("/decks/:uuid/slides/:slide_id/edit", auth.AuthMiddleWare(), sessionHandler.BeginEdit)
	router.PUT("/decks/:uuid/slides/:slide_id/draft", auth.AuthMiddleWare(), sessionHandler.StageDraft)
	router.POST("/decks/:uuid/slides/:slide_id/draft/commit", auth.AuthMiddleWare(), sessionHandler.CommitDraft)
	router.POST("/decks/:uuid/slides/:slide_id/draft/discard", auth.AuthMiddleWare(), sessionHandler.DiscardDraft)
	router.POST("/decks/:uuid/slides/:slide_id/undo", auth.AuthMiddleWare(), sessionHandler.Undo)
	router.POST("/decks/:uuid/slides/:slide_id/redo", auth.AuthMiddleWare(), sessionHandler.Redo)

	// Generation routes (SSE clients pass the token as a query param)
	router.POST("/decks/:uuid/generation/start", auth.AuthMiddleWare(), sessionHandler.StartGeneration)
	router.POST("/decks/:uuid/generation/stop", auth.AuthMiddleWare(), sessionHandler.StopGeneration)
	router.GET("/decks/:uuid/generation/events", auth.AuthMiddleWare(), sessionHandler.GenerationEvents)

	// Presence routes
	router.GET("/decks/:uuid/presence", auth.AuthMiddleWare(), sessionHandler.Peers)
	router.GET("/decks/:uuid/presence/events", auth.AuthMiddleWare(), sessionHandler.PresenceEvents)
	router.POST("/decks/:uuid/presence/cursor", auth.AuthMiddleWare(), sessionHandler.Cursor)
	router.POST("/decks/:uuid/presence/selection", auth.AuthMiddleWare(), sessionHandler.Selection)

	// Sync, images and prefs
	router.POST("/decks/:uuid/sync", auth.AuthMiddleWare(), sessionHandler.Sync)
	router.POST("/decks/:uuid/import-prompt-shown", auth.AuthMiddleWare(), sessionHandler.MarkImportPromptShown)
	router.POST("/images/generate", auth.AuthMiddleWare(), sessionHandler.GenerateImage)
	router.GET("/images/recent", auth.AuthMiddleWare(), sessionHandler.RecentImages)
	router.GET("/prefs", auth.AuthMiddleWare(), sessionHandler.GetPrefs)
	router.PUT("/prefs", auth.AuthMiddleWare(), sessionHandler.UpdatePrefs)

	// internal use routes
	router.GET("/internal/decks/:uuid/permission", auth.InternalAuthMiddleware(config.AppConfig.InternalSecret), deckHandler.ShowUserRole)
	router.GET("/internal/decks/:uuid", auth.InternalAuthMiddleware(config.AppConfig.InternalSecret), deckHandler.ShowDeckState)

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Server configuration
	serverPort := config.AppConfig.ServerPort
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverPort),
		Handler: router.Handler(),
	}

	// Start server
	go func() {
		log.Info().Msgf("Server listening on port %s", serverPort)
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	// Flush open sessions, then drain the persistence queue
	registry.Shutdown()
	pool.Shutdown()

	<-ctx.Done()
	log.Info().Msg("Server shutdown complete")
}
