package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Ding0127/qa-chatbot/internal/config"
	dbRedis "github.com/Ding0127/qa-chatbot/internal/db/redis"
	"github.com/Ding0127/qa-chatbot/internal/domain"
	logpkg "github.com/Ding0127/qa-chatbot/internal/logger"
	"github.com/Ding0127/qa-chatbot/internal/metrics"
	budgetrepo "github.com/Ding0127/qa-chatbot/internal/repository/budget"
	convlogrepo "github.com/Ding0127/qa-chatbot/internal/repository/convlog"
	indexrepo "github.com/Ding0127/qa-chatbot/internal/repository/index"
	chiTransport "github.com/Ding0127/qa-chatbot/internal/transport/chi"
	openaiTransport "github.com/Ding0127/qa-chatbot/internal/transport/openai"
	classifyuc "github.com/Ding0127/qa-chatbot/internal/usecase/classify"
	embeddinguc "github.com/Ding0127/qa-chatbot/internal/usecase/embedding"
	healthuc "github.com/Ding0127/qa-chatbot/internal/usecase/health"
	raguc "github.com/Ding0127/qa-chatbot/internal/usecase/rag"
	usageuc "github.com/Ding0127/qa-chatbot/internal/usecase/usage"
	"github.com/Ding0127/qa-chatbot/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting qa-chatbot server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("retrieval_policy", cfg.Retrieval.Policy),
	)

	roster, err := parseRoster(cfg.Roster)
	if err != nil {
		logger.Fatal("Invalid roster", zap.Error(err))
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	// Optional token budget, shared between the embedding client and
	// the usage endpoint.
	var budget *embeddinguc.BudgetTracker
	budgetCfg := cfg.Embedding.Budget
	if budgetCfg.DailyTokenLimit > 0 || budgetCfg.MonthlyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if budgetCfg.Action == "reject" {
			action = embeddinguc.BudgetActionReject
		}
		budget = embeddinguc.NewBudgetTracker(
			"embedding", budgetCfg.DailyTokenLimit, budgetCfg.MonthlyTokenLimit, action, logger,
		)
		budget.WithStore(ctx, budgetrepo.New(store, 48*time.Hour, 62*24*time.Hour))
	}

	// Pass nil interface (not typed nil pointer!) if budget is not configured.
	var budgetChecker embeddinguc.BudgetChecker
	var budgetReader usageuc.BudgetReader
	if budget != nil {
		budgetChecker = budget
		budgetReader = budget
	}

	baseEmbedder := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:  cfg.Embedding.APIKey,
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
		Logger:  logger,
	})
	embedClient := embeddinguc.NewClient(baseEmbedder, embeddinguc.ClientConfig{
		Attempts:    cfg.Embedding.MaxRetries,
		RetryDelay:  time.Duration(cfg.Embedding.RetryDelaySec * float64(time.Second)),
		CallTimeout: time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
		BatchSize:   cfg.Embedding.BatchSize,
		BatchDelay:  time.Duration(cfg.Embedding.BatchDelayMs) * time.Millisecond,
		Budget:      budgetChecker,
		Logger:      logger,
	})
	logger.Info("Embedding client ready",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("batch_size", cfg.Embedding.BatchSize),
	)

	streamClient := openaiTransport.NewStreamClient(&openaiTransport.StreamConfig{
		APIKey:  cfg.Completion.APIKey,
		BaseURL: cfg.Completion.BaseURL,
		Model:   cfg.Completion.Model,
		Timeout: time.Duration(cfg.Completion.TimeoutSec) * time.Second,
		Logger:  logger,
	})
	chatClient := openaiTransport.NewChatClient(&openaiTransport.ChatConfig{
		APIKey:  cfg.Completion.APIKey,
		BaseURL: cfg.Completion.BaseURL,
		Model:   cfg.Completion.Model,
	})

	indexRepo := indexrepo.New(store, "")
	convlogRepo := convlogrepo.New(store, "", logger)

	// The orchestrator records turns from inside stream consumption,
	// where no request context survives; bound each write on its own.
	turnLogger := domain.TurnLoggerFunc(func(userID string, turn domain.Turn) {
		writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := convlogRepo.Append(writeCtx, userID, turn); err != nil {
			logger.Error("Failed to record turn",
				zap.String("user_id", userID), zap.Error(err))
		}
	})

	ragSvc := raguc.New(embedClient, indexRepo, streamClient, turnLogger, raguc.Config{
		Policy:        raguc.RetrievalPolicy(cfg.Retrieval.Policy),
		TopK:          cfg.Retrieval.TopK,
		MinSimilarity: cfg.Retrieval.MinSimilarity,
		Temperature:   cfg.Completion.Temperature,
		Logger:        logger,
	})
	classifier := classifyuc.New(chatClient, logger)
	healthSvc := healthuc.New(store, baseEmbedder)
	usageSvc := usageuc.New(budgetReader)

	server := chiTransport.NewServer(
		roster, ragSvc, classifier, convlogRepo, healthSvc, usageSvc, logger,
	)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// parseRoster validates the configured user id -> age group map.
func parseRoster(raw map[string]string) (map[string]domain.AgeGroup, error) {
	roster := make(map[string]domain.AgeGroup, len(raw))
	for userID, label := range raw {
		group, err := domain.ParseAgeGroup(label)
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", userID, err)
		}
		roster[userID] = group
	}
	return roster, nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a
// plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits one canonical log line per request and puts
// a request-scoped logger into the context.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
