package counter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/QuestPassApp/QuestPass/app/models"
	"github.com/QuestPassApp/QuestPass/internal/pkg/cache"
	"github.com/QuestPassApp/QuestPass/internal/pkg/database"
	"github.com/QuestPassApp/QuestPass/internal/pkg/env"
)

// setupTestRedis points the cache package at a reachable Redis or skips the
// test.
func setupTestRedis(t *testing.T) {
	t.Helper()

	hosts := []string{env.GetEnv("CACHE_HOST", ""), "cache", "qp-cache", "localhost", "127.0.0.1"}
	port := env.GetEnv("CACHE_PORT", "6379")
	passwords := []string{env.GetEnv("CACHE_PASSWORD", ""), "questpass", ""}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, host := range hosts {
		if host == "" {
			continue
		}
		for _, password := range passwords {
			client := redis.NewClient(&redis.Options{
				Addr:     fmt.Sprintf("%s:%s", host, port),
				Password: password,
				DB:       0,
			})
			err := client.Ping(ctx).Err()
			client.Close()
			if err != nil {
				continue
			}

			if env.Env == nil {
				env.Env = make(map[string]string)
			}
			env.Env["CACHE_HOST"] = host
			env.Env["CACHE_PORT"] = port
			env.Env["CACHE_PASSWORD"] = password
			cache.SetupCache()
			return
		}
	}
	t.Skipf("no reachable Redis for counter tests")
}

func resetCounters(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	cache.GetClient().Del(ctx, attemptsKey, verifiedKey, rejectedKey, pendingKey)
}

// setupTestDB swaps the global database handle for an in-memory SQLite
// instance so FlushAll has somewhere to write.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.IncentiveDefinition{}))

	previous := database.DB
	database.DB = db
	t.Cleanup(func() { database.DB = previous })
	return db
}

func seedDefinition(t *testing.T, db *gorm.DB, definitionUUID string, attempts int64) *models.IncentiveDefinition {
	t.Helper()
	def := &models.IncentiveDefinition{
		DefinitionUUID: definitionUUID,
		EventID:        "ev-counter",
		IncentiveType:  models.IncentiveTypeFeedback,
		DiscountBps:    500,
		Active:         true,
		AttemptCount:   attempts,
	}
	require.NoError(t, db.Create(def).Error)
	return def
}

func TestTrackerRoutesOutcomes(t *testing.T) {
	setupTestRedis(t)
	resetCounters(t)
	defer resetCounters(t)

	defID := "def-" + uuid.NewString()
	tracker := Tracker{}
	tracker.TrackAttempt(defID)
	tracker.TrackAttempt(defID)
	tracker.TrackOutcome(defID, models.VerificationStatusVerified)
	tracker.TrackOutcome(defID, models.VerificationStatusRejected)
	tracker.TrackOutcome(defID, models.VerificationStatusPendingManual)
	tracker.TrackOutcome(defID, "exploded") // unknown statuses are dropped

	ctx := context.Background()
	client := cache.GetClient()
	assert.Equal(t, "2", client.HGet(ctx, attemptsKey, defID).Val())
	assert.Equal(t, "1", client.HGet(ctx, verifiedKey, defID).Val())
	assert.Equal(t, "1", client.HGet(ctx, rejectedKey, defID).Val())
	assert.Equal(t, "1", client.HGet(ctx, pendingKey, defID).Val())
}

func TestFlushAllAppliesBatchedIncrements(t *testing.T) {
	setupTestRedis(t)
	resetCounters(t)
	defer resetCounters(t)
	db := setupTestDB(t)

	defA := "def-" + uuid.NewString()
	defB := "def-" + uuid.NewString()
	seedDefinition(t, db, defA, 5)
	seedDefinition(t, db, defB, 0)

	require.NoError(t, AddAttempt(defA))
	require.NoError(t, AddAttempt(defA))
	require.NoError(t, AddAttempt(defA))
	require.NoError(t, AddAttempt(defB))
	require.NoError(t, AddVerified(defA))
	require.NoError(t, AddVerified(defA))
	require.NoError(t, AddRejected(defB))

	require.NoError(t, FlushAll())

	var gotA, gotB models.IncentiveDefinition
	require.NoError(t, db.Where("definition_uuid = ?", defA).First(&gotA).Error)
	require.NoError(t, db.Where("definition_uuid = ?", defB).First(&gotB).Error)
	assert.Equal(t, int64(8), gotA.AttemptCount)
	assert.Equal(t, int64(2), gotA.VerifiedCount)
	assert.Equal(t, int64(1), gotB.AttemptCount)
	assert.Equal(t, int64(1), gotB.RejectedCount)

	// The hashes were drained, so a second flush changes nothing.
	require.NoError(t, FlushAll())
	var again models.IncentiveDefinition
	require.NoError(t, db.Where("definition_uuid = ?", defA).First(&again).Error)
	assert.Equal(t, int64(8), again.AttemptCount)
	assert.Equal(t, int64(2), again.VerifiedCount)
}

func TestFlushAllIgnoresUnknownDefinitions(t *testing.T) {
	setupTestRedis(t)
	resetCounters(t)
	defer resetCounters(t)
	setupTestDB(t)

	require.NoError(t, AddAttempt("def-ghost-"+uuid.NewString()))
	require.NoError(t, FlushAll())

	// Hash is drained even though no row matched.
	size, err := cache.GetClient().HLen(context.Background(), attemptsKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
}
