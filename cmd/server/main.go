package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/voicekhata/backend/docs"
	"github.com/voicekhata/backend/internal/audit"
	"github.com/voicekhata/backend/internal/config"
	"github.com/voicekhata/backend/internal/database"
	"github.com/voicekhata/backend/internal/handlers"
	"github.com/voicekhata/backend/internal/logger"
	mW "github.com/voicekhata/backend/internal/middleware"
	"github.com/voicekhata/backend/internal/services"
	"go.uber.org/zap"
)

// @title VoiceKhata API
// @version 1.0
// @description Voice and text udhaar ledger for small shops, with YES/NO confirmation before every write
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// Initialize config
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	readErr := viper.ReadInConfig()

	viper.BindEnv("app.env", "APP_ENV")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("khata.confidence_threshold", "KHATA_CONFIDENCE_THRESHOLD")
	viper.BindEnv("khata.pending_ttl", "KHATA_PENDING_TTL")
	viper.BindEnv("khata.pending_retention", "KHATA_PENDING_RETENTION")
	viper.BindEnv("khata.pending_policy", "KHATA_PENDING_POLICY")
	viper.BindEnv("khata.dedupe_ttl", "KHATA_DEDUPE_TTL")
	viper.BindEnv("khata.default_country_code", "KHATA_DEFAULT_COUNTRY_CODE")
	viper.BindEnv("khata.summary_top_n", "KHATA_SUMMARY_TOP_N")
	viper.BindEnv("khata.share_base_url", "KHATA_SHARE_BASE_URL")

	viper.BindEnv("ai.enabled", "AI_ENABLED")
	viper.BindEnv("ai.api_key", "AI_API_KEY", "GEMINI_API_KEY")
	viper.BindEnv("ai.base_url", "AI_BASE_URL")
	viper.BindEnv("ai.model", "AI_MODEL")
	viper.BindEnv("ai.timeout", "AI_TIMEOUT")
	viper.BindEnv("ai.requests_per_minute", "AI_REQUESTS_PER_MINUTE")

	viper.BindEnv("speech.enabled", "SPEECH_ENABLED")
	viper.BindEnv("speech.language_code", "SPEECH_LANGUAGE_CODE")
	viper.BindEnv("speech.timeout", "SPEECH_TIMEOUT")

	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("log.format", "LOG_FORMAT")
	viper.BindEnv("log.output", "LOG_OUTPUT")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")

	log := logger.New(logger.LoadConfig())
	defer log.Sync()

	if readErr != nil {
		log.Info("config file not found, using environment and defaults", zap.Error(readErr))
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	ctx := context.Background()
	khataCfg := config.LoadKhataConfig()

	// Initialize storage
	db, err := database.InitDB(ctx, log)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Fatal("failed to create schema", zap.Error(err))
	}

	redisClient := database.InitRedis(ctx, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	pendingOpts := services.PendingOptionsFromConfig(khataCfg)
	var (
		pending services.PendingStore
		dedupe  services.InboundDeduper
	)
	if redisClient != nil {
		pending = services.NewRedisPendingStore(redisClient, pendingOpts)
		dedupe = services.NewRedisDeduper(redisClient, khataCfg.DedupeTTL)
	} else {
		memPending := services.NewMemoryPendingStore(pendingOpts)
		memPending.StartCleanup(time.Minute)
		defer memPending.Close()
		pending = memPending
		dedupe = services.NewMemoryDeduper(khataCfg.DedupeTTL)
	}

	// Initialize services
	aiCfg := config.LoadAIConfig()
	var provider services.IntentProvider
	if aiCfg.Enabled {
		provider = services.NewOpenAIIntentProvider(aiCfg)
	} else {
		log.Warn("intent model disabled, using keyword heuristic only")
	}
	extractor := services.NewIntentExtractor(provider, services.ExtractorOptions{
		Threshold:         khataCfg.ConfidenceThreshold,
		Timeout:           aiCfg.Timeout,
		RequestsPerMinute: aiCfg.RequestsPerMinute,
	}, log)

	var transcriber services.Transcriber
	if transcription := services.NewTranscriptionService(ctx, config.LoadSpeechConfig(), log); transcription != nil {
		defer transcription.Close()
		transcriber = transcription
	}

	ledgerService := services.NewLedgerService(db)
	confirmationService := services.NewConfirmationService(services.ConfirmationDeps{
		Config:      khataCfg,
		Intents:     extractor,
		Pending:     pending,
		Ledger:      ledgerService,
		Dedupe:      dedupe,
		Transcriber: transcriber,
		Audit:       audit.NewLogger(log),
		Logger:      log,
	})
	shareService := services.NewShareService(ledgerService, redisClient, khataCfg.ShareBaseURL, log)

	khataHandler := handlers.NewKhataHandler(confirmationService, log)
	shareHandler := handlers.NewShareHandler(shareService, log)

	// Setup router
	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(mW.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           86400,
	}))

	r.Get("/health", handlers.Health)

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		// Customer links are public
		r.Get("/share/{token}", shareHandler.GetStatement)
		r.Get("/share/{token}/qr", shareHandler.GetQRCode)

		r.Group(func(r chi.Router) {
			r.Use(mW.OperatorAuth(viper.GetString("jwt.secret_key")))

			r.Post("/messages", khataHandler.SubmitMessage)
			r.Post("/decisions", khataHandler.SubmitDecision)
			r.Get("/entries", khataHandler.ListEntries)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
