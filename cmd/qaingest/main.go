// Command qaingest loads the preprocessed educational corpus into the
// vector index: it embeds every document and stores content, metadata,
// and vector as indexed Redis hashes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Ding0127/qa-chatbot/internal/config"
	dbRedis "github.com/Ding0127/qa-chatbot/internal/db/redis"
	"github.com/Ding0127/qa-chatbot/internal/domain"
	logpkg "github.com/Ding0127/qa-chatbot/internal/logger"
	indexrepo "github.com/Ding0127/qa-chatbot/internal/repository/index"
	openaiTransport "github.com/Ding0127/qa-chatbot/internal/transport/openai"
	embeddinguc "github.com/Ding0127/qa-chatbot/internal/usecase/embedding"
)

// corpusDoc mirrors one entry of processed_documents.json.
type corpusDoc struct {
	Content  string `json:"content"`
	Metadata struct {
		Topic    string `json:"topic"`
		Question string `json:"question"`
		AgeGroup string `json:"age_group"`
	} `json:"metadata"`
}

const storeBatchSize = 100

func main() {
	file := flag.String("file", "processed_data/processed_documents.json", "corpus JSON file")
	reset := flag.Bool("reset", false, "drop and recreate the index before loading")
	flag.Parse()

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

	docs, err := loadCorpus(*file)
	if err != nil {
		logger.Fatal("Failed to load corpus", zap.String("file", *file), zap.Error(err))
	}
	logger.Info("Corpus loaded", zap.String("file", *file), zap.Int("documents", len(docs)))

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

	repo := indexrepo.New(store, "")
	if err := repo.EnsureIndex(ctx, *reset); err != nil {
		logger.Fatal("Failed to ensure index", zap.Error(err))
	}
	logger.Info("Index ready", zap.Bool("reset", *reset))

	embedClient := embeddinguc.NewClient(
		openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
			APIKey:  cfg.Embedding.APIKey,
			BaseURL: cfg.Embedding.BaseURL,
			Model:   cfg.Embedding.Model,
			Logger:  logger,
		}),
		embeddinguc.ClientConfig{
			Attempts:    cfg.Embedding.MaxRetries,
			RetryDelay:  time.Duration(cfg.Embedding.RetryDelaySec * float64(time.Second)),
			CallTimeout: time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
			BatchSize:   cfg.Embedding.BatchSize,
			BatchDelay:  time.Duration(cfg.Embedding.BatchDelayMs) * time.Millisecond,
			Logger:      logger,
		},
	)

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	logger.Info("Embedding corpus", zap.Int("documents", len(texts)))
	vectors := embedClient.EmbedBatch(ctx, texts)

	var degraded int
	items := make([]indexrepo.IngestDoc, 0, len(docs))
	for i, d := range docs {
		group, err := domain.ParseAgeGroup(d.Metadata.AgeGroup)
		if err != nil {
			logger.Warn("Skipping document with unknown age group",
				zap.Int("position", i), zap.String("age_group", d.Metadata.AgeGroup))
			continue
		}
		if domain.IsZeroVector(vectors[i]) {
			degraded++
		}
		items = append(items, indexrepo.IngestDoc{
			ID:       strconv.Itoa(i),
			Document: domain.NewDocument(d.Content, d.Metadata.Topic, d.Metadata.Question, group),
			Vector:   vectors[i],
		})
	}
	if degraded > 0 {
		logger.Warn("Some documents embedded as zero vectors", zap.Int("count", degraded))
	}

	for start := 0; start < len(items); start += storeBatchSize {
		end := start + storeBatchSize
		if end > len(items) {
			end = len(items)
		}
		if err := repo.AddBatch(ctx, items[start:end]); err != nil {
			logger.Fatal("Failed to store batch",
				zap.Int("from", start), zap.Int("to", end), zap.Error(err))
		}
		logger.Info("Stored batch", zap.Int("from", start), zap.Int("to", end))
	}

	logger.Info("Ingestion complete",
		zap.Int("stored", len(items)),
		zap.Int("degraded", degraded),
	)
}

func loadCorpus(path string) ([]corpusDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	var docs []corpusDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse corpus: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("corpus is empty")
	}
	return docs, nil
}
