package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stemsi/bandexam-backend/internal/config"
	"github.com/stemsi/bandexam-backend/internal/database"
	"github.com/stemsi/bandexam-backend/internal/logger"
	"github.com/stemsi/bandexam-backend/internal/model"
	"github.com/stemsi/bandexam-backend/internal/repository"
	"github.com/stemsi/bandexam-backend/internal/service"
)

func main() {
	var path string
	flag.StringVar(&path, "file", "seeds/academic_sample.json", "JSON file holding an array of tests")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup("bandexam-seed", cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	tests, err := readTests(path)
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("Failed to read seed file")
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	testRepo := repository.NewTestRepository(pool)
	catalog := service.NewTestCatalog(testRepo, rdb, cfg.ContentCacheTTL, log)

	fmt.Printf("=== Seeding %d test(s) from %s ===\n", len(tests), path)

	created := 0
	for i := range tests {
		t := &tests[i]
		if err := testRepo.Create(ctx, t); err != nil {
			log.Error().Err(err).Str("title", t.Title).Msg("Failed to create test")
			continue
		}
		// Drop any stale cached copy of a re-seeded id.
		if err := catalog.Invalidate(ctx, t.ID); err != nil {
			log.Warn().Err(err).Str("test_id", t.ID.String()).Msg("Failed to invalidate cache")
		}
		created++
		fmt.Printf("  %s  %-40s  %d question(s)\n", t.ID, t.Title, t.QuestionCount())
	}

	fmt.Printf("=== Done: %d/%d created ===\n", created, len(tests))
}

func readTests(path string) ([]model.Test, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tests []model.Test
	if err := json.Unmarshal(data, &tests); err != nil {
		return nil, fmt.Errorf("decode tests: %w", err)
	}
	return tests, nil
}
