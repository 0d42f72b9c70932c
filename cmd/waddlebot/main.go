// Command waddlebot-core runs the WaddleBot core server: the Event Stream
// Pipeline's HTTP boundary, the Router, the Translation Core, the Gateway
// Creator, and the Bot-Score analytics engine, all wired against a single
// PostgreSQL database and a shared Redis instance.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/penguintechinc/waddlebot-core/pkg/analytics"
	"github.com/penguintechinc/waddlebot-core/pkg/api"
	"github.com/penguintechinc/waddlebot-core/pkg/auth"
	"github.com/penguintechinc/waddlebot-core/pkg/cache"
	"github.com/penguintechinc/waddlebot-core/pkg/config"
	"github.com/penguintechinc/waddlebot-core/pkg/database"
	"github.com/penguintechinc/waddlebot-core/pkg/gateway"
	"github.com/penguintechinc/waddlebot-core/pkg/models"
	"github.com/penguintechinc/waddlebot-core/pkg/router"
	"github.com/penguintechinc/waddlebot-core/pkg/streambus"
	"github.com/penguintechinc/waddlebot-core/pkg/translate"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	ginMode := getEnv("GIN_MODE", "debug")
	gin.SetMode(ginMode)

	log.Printf("Starting WaddleBot core")
	log.Printf("Config Directory: %s", *configDir)

	ctx := context.Background()

	cfg, err := config.Load(envPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Printf("HTTP Port: %d", cfg.ModulePort)

	// Database: connection pool + embedded migrations.
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}
	dbClient, err := database.NewClient(dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Printf("Error closing database client: %v", err)
		}
	}()
	log.Println("✓ Connected to PostgreSQL database")
	db := dbClient.DB()

	// Redis: shared L2 cache tier and, when enabled, the event stream bus.
	redisOpts, err := redis.ParseURL(cfg.CacheURL)
	if err != nil {
		log.Fatalf("Failed to parse CACHE_URL: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Printf("Error closing redis client: %v", err)
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	log.Println("✓ Connected to Redis")

	tieredCache, err := cache.NewTiered(cache.DefaultConfig(), redisClient, db)
	if err != nil {
		log.Fatalf("Failed to build translation cache: %v", err)
	}

	bus := streambus.NewRedisBus(redisClient, cfg.StreamEnabled)
	log.Println("✓ Event stream bus ready")

	// Router: session lifecycle, entity/role/alias resolution, policy.
	entities := database.NewEntityStore(db)
	roles := database.NewMemberRoleStore(db)
	aliases := database.NewAliasStore(db)
	registry := router.NewRegistry()

	rt := router.New(router.Deps{
		Bus:          bus,
		Registry:     registry,
		Policy:       router.NewEngine(),
		Aliases:      aliases,
		Entities:     entities,
		Roles:        roles,
		Requirements: map[string]router.ModuleRequirement{},
		NewSessionID: func() string { return uuid.NewString() },
		MaxRetries:   int64(cfg.StreamMaxRetries),
		ResponsesBlockMS: cfg.StreamBlockMS,
	})
	rt.Start(ctx)
	defer rt.Stop()
	log.Println("✓ Router started")

	// Gateway Creator: brings a platform channel under WaddleBot control.
	gatewayCreator := gateway.NewCreator(
		database.NewServerStore(db),
		database.NewActivationCodeStore(db),
		database.NewGatewayStore(db),
		gateway.NewStreamOnboarder(bus),
	)
	log.Println("✓ Gateway creator ready")

	// Translation Core: ensemble detector + provider fallback chain + cache.
	ensemble := translate.NewEnsemble(translate.NGramSignal{}, translate.StatisticalSignal{})
	var providers []translate.Provider
	if commercialKey := os.Getenv("TRANSLATE_COMMERCIAL_API_KEY"); commercialKey != "" {
		providers = append(providers, translate.NewCommercialProvider(
			"commercial", commercialKey, getEnv("TRANSLATE_COMMERCIAL_BASE_URL", "https://api.commercial-translate.example")))
	}
	providers = append(providers, translate.NewLightweightProvider(
		"lightweight", getEnv("TRANSLATE_LIGHTWEIGHT_BASE_URL", "http://localhost:5000")))
	var aiProvider translate.Provider
	if aiKey := os.Getenv("TRANSLATE_AI_API_KEY"); aiKey != "" {
		ai := translate.NewAIBackedProvider("ai_backed", aiKey, getEnv("TRANSLATE_AI_BASE_URL", "https://api.openai.com/v1"))
		providers = append(providers, ai)
		aiProvider = ai
	}
	chain := translate.NewChain(providers...)
	translateOpts := translate.Options{
		MinWords:            cfg.TranslationMinWords,
		ConfidenceThreshold: cfg.TranslationConfidenceThreshold,
		AIMode:              translate.AIDecisionMode(cfg.AIDecisionMode),
	}
	translator := translate.NewService(translateOpts, ensemble, chain, tieredCache, aiProvider)
	log.Println("✓ Translation core ready")

	// Bot-Score analytics.
	analyticsService := analytics.NewService(
		analytics.NewPostgresSource(db),
		analytics.NewPostgresStore(db),
		time.Now,
	)
	log.Println("✓ Analytics engine ready")

	// Auth: JWT or API-key credential verification.
	verifier := auth.NewVerifier([]byte(cfg.JWTSecret), cfg.JWTAlgorithm, database.NewAPIKeyStore(db))

	// HTTP boundary.
	server := api.NewServer(rt, registry, bus, verifier)
	registerDomainRoutes(server.Engine(), gatewayCreator, analyticsService, translator, verifier)

	addr := ":" + strconv.Itoa(cfg.ModulePort)
	log.Printf("HTTP server listening on %s", addr)
	if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// registerDomainRoutes wires the Gateway Creator and analytics engine onto
// the server's gin engine, behind the same auth middleware every other
// authenticated route uses. The translator is accepted but not used: no
// route calls it and the Router is not given it, so the Translation Core is
// constructed at startup and nothing invokes it.
func registerDomainRoutes(engine *gin.Engine, creator *gateway.Creator, analyticsSvc *analytics.Service, translator *translate.Service, verifier *auth.Verifier) {
	_ = translator // not used by any route or by the Router

	authenticated := engine.Group("/")
	authenticated.Use(auth.Middleware(verifier))

	authenticated.POST("/gateways", auth.RequireRole(models.RoleOwner), func(c *gin.Context) {
		var req struct {
			CommunityID      string          `json:"community_id" binding:"required"`
			Platform         models.Platform `json:"platform" binding:"required"`
			PlatformEntityID string          `json:"platform_entity_id" binding:"required"`
			ChannelID        string          `json:"channel_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := creator.Create(c.Request.Context(), req.CommunityID, req.Platform, req.PlatformEntityID, req.ChannelID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, result)
	})

	authenticated.GET("/communities/:id/score", func(c *gin.Context) {
		score, err := analyticsSvc.GetScore(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, score)
	})
}
