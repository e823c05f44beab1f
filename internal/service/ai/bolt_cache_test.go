package ai

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"convanalyzer/internal/models"
)

func TestBoltCacheRoundTripAndExpiry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "classifications.bolt")
	cache, err := OpenBoltCache(path, time.Hour, nil)
	if err != nil {
		t.Fatalf("OpenBoltCache: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cls := &models.Classification{
		OverallSentiment: models.SentimentNegative,
		BotUnderstanding: models.QualityPoor,
		BotPerformance:   models.QualityPoor,
		Categories:       []models.Category{models.CategoryCatering, models.CategoryCake},
	}
	if _, ok := cache.Load(ctx, "fp"); ok {
		t.Fatalf("expected miss on empty cache")
	}
	cache.Store(ctx, "fp", cls)

	got, ok := cache.Load(ctx, "fp")
	if !ok {
		t.Fatalf("expected hit")
	}
	if got.OverallSentiment != cls.OverallSentiment || len(got.Categories) != 2 {
		t.Fatalf("unexpected entry %+v", got)
	}

	now = now.Add(2 * time.Hour)
	if _, ok := cache.Load(ctx, "fp"); ok {
		t.Fatalf("expected expired entry to miss")
	}
}

func TestBoltCacheInvalidate(t *testing.T) {
	cache, err := OpenBoltCache(filepath.Join(t.TempDir(), "classifications.bolt"), time.Hour, nil)
	if err != nil {
		t.Fatalf("OpenBoltCache: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	cache.Store(ctx, "fp", &models.Classification{
		OverallSentiment: models.SentimentNeutral,
		BotUnderstanding: models.QualityGood,
		BotPerformance:   models.QualityAcceptable,
		Categories:       []models.Category{models.CategoryVenues},
	})
	if _, ok := cache.Load(ctx, "fp"); !ok {
		t.Fatalf("expected hit after store")
	}
	cache.Invalidate(ctx, "fp")
	if _, ok := cache.Load(ctx, "fp"); ok {
		t.Fatalf("expected miss after invalidate")
	}
	// unknown keys are a no-op
	cache.Invalidate(ctx, "missing")
}

func TestBoltCacheSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classifications.bolt")
	first, err := OpenBoltCache(path, 0, nil)
	if err != nil {
		t.Fatalf("OpenBoltCache: %v", err)
	}
	first.Store(context.Background(), "fp", &models.Classification{
		OverallSentiment: models.SentimentPositive,
		BotUnderstanding: models.QualityGood,
		BotPerformance:   models.QualityGood,
		BotAnswered:      true,
		Categories:       []models.Category{models.CategoryHoneymoon},
	})
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := OpenBoltCache(path, 0, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	if _, ok := second.Load(context.Background(), "fp"); !ok {
		t.Fatalf("entry lost across reopen")
	}
}
