package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lpernett/godotenv"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/Sori-Labs/sori-go-sdk/browser"
	"github.com/Sori-Labs/sori-go-sdk/handlers"
	"github.com/Sori-Labs/sori-go-sdk/intent"
	"github.com/Sori-Labs/sori-go-sdk/models"
	"github.com/Sori-Labs/sori-go-sdk/utils"
)

// Load environment variables from .env file before the config is read
func init() {
	log.Info("Loading environment variables")
	if err := godotenv.Load(); err != nil {
		log.Warn("Error loading .env file")
	}
}

func main() {
	cfg := models.LoadConfig()

	// Set up logging
	log.SetLevel(log.InfoLevel)
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.SetFormatter(&log.TextFormatter{
		ForceColors:   true,
		FullTimestamp: true,
	})
	log.Info("Server Version: Sori Gateway V1")

	logger := newZapLogger(cfg.Debug)
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis is an optional second cache tier; resolution works without it.
	var redisClient *redis.Client
	if cfg.HasRedis() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          0,
			DialTimeout: 20 * time.Second,
		})

		redisCtx, cancelRedis := context.WithTimeout(ctx, 10*time.Second)
		if _, err := redisClient.Ping(redisCtx).Result(); err != nil {
			log.Warnf("Failed to connect to Redis, continuing without shared cache: %v", err)
			redisClient = nil
		} else {
			log.Info("Successfully connected to Redis")
		}
		cancelRedis()
	}

	matcher := intent.NewMatcher()
	if cfg.RulesPath != "" {
		rules, err := intent.LoadRuleFile(cfg.RulesPath)
		if err != nil {
			log.Warnf("Failed to load rule file: %v", err)
		} else {
			matcher.Reload(rules)
			log.Infof("Loaded %d custom rules from %s", len(rules), cfg.RulesPath)
		}
		if err := intent.WatchRuleFile(ctx, cfg.RulesPath, matcher); err != nil {
			log.Warnf("Rule file watching disabled: %v", err)
		}
	}

	gateway := &handlers.Gateway{
		Config:  cfg,
		Matcher: matcher,
		Cache:   intent.NewCache(cfg.CacheSize, redisClient, cfg.CacheTTL),
	}

	if cfg.HasFastClassifier() {
		gateway.Fast = utils.NewFastClassifier(cfg)
		log.Info("Fast classifier enabled")
	}

	var memory *utils.ExampleMemory
	if cfg.HasPinecone() {
		var err error
		memory, err = utils.NewExampleMemory(cfg)
		if err != nil {
			log.Warnf("Failed to connect to Pinecone, continuing without example memory: %v", err)
		} else {
			gateway.Memory = memory
			log.Info("Example memory enabled")
		}
	}

	if cfg.HasContextClassifier() {
		contextual := utils.NewContextClassifier(cfg)
		if memory != nil {
			contextual.Memory = memory
		}
		gateway.Context = contextual
		log.Info("Context classifier enabled")
	}

	if cfg.HasTTS() {
		gateway.Synth = utils.NewSpeechSynthesizer(cfg)
		log.Info("Speech synthesis enabled")
	}

	if cfg.BrowserMode == models.BrowserModeLocal {
		executor, err := browser.NewLocalExecutor(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to start local browser: %v", err)
		}
		defer executor.Close()
		gateway.Local = executor
		log.Info("Local browser executor enabled")
	}

	// Define HTTP routes
	http.HandleFunc("/healthz", handlers.HealthCheckHandler)
	http.HandleFunc("/voice", gateway.HandleVoiceSession)

	// Set up signal handling
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverExit := make(chan struct{})

	// Start HTTP server in a goroutine
	go func() {
		addr := ":" + cfg.Port
		log.Info("Starting server on ", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Error("Server error: ", err)
		}
		close(serverExit)
	}()

	// On termination, close all connections and shut down the server
	select {
	case <-stop:
		log.Info("Shutting down server...")
	case <-serverExit:
		log.Info("Server exited unexpectedly...")
	}

	cancel()

	log.Info("Server shut down gracefully")
}

func newZapLogger(debug bool) *zap.Logger {
	if debug {
		if logger, err := zap.NewDevelopment(); err == nil {
			return logger
		}
	}
	logger, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
