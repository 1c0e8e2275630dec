package counter

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/QuestPassApp/QuestPass/app/models"
	"github.com/QuestPassApp/QuestPass/internal/pkg/cache"
	"github.com/QuestPassApp/QuestPass/internal/pkg/database"
)

const (
	attemptsKey = "incentive:counters:attempts"
	verifiedKey = "incentive:counters:verified"
	rejectedKey = "incentive:counters:rejected"
	pendingKey  = "incentive:counters:pending"

	// DefaultFlushInterval is how often pending counts move to the database
	DefaultFlushInterval = time.Minute
)

// AddAttempt increments the pending attempt counter for a definition in Redis
func AddAttempt(definitionUUID string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, attemptsKey, definitionUUID, 1).Err()
}

// AddVerified increments the pending verified counter for a definition in Redis
func AddVerified(definitionUUID string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, verifiedKey, definitionUUID, 1).Err()
}

// AddRejected increments the pending rejected counter for a definition in Redis
func AddRejected(definitionUUID string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, rejectedKey, definitionUUID, 1).Err()
}

// AddPending increments the pending manual-review counter for a definition in Redis
func AddPending(definitionUUID string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, pendingKey, definitionUUID, 1).Err()
}

// Tracker forwards attempt and outcome counts to the Redis hashes. Counting
// only feeds campaign analytics, so failures are logged and dropped rather
// than surfaced to the caller.
type Tracker struct{}

func (Tracker) TrackAttempt(definitionUUID string) {
	if err := AddAttempt(definitionUUID); err != nil {
		log.Debugf("[Counter] Failed to count attempt for %s: %v", definitionUUID, err)
	}
}

func (Tracker) TrackOutcome(definitionUUID, status string) {
	var err error
	switch status {
	case models.VerificationStatusVerified:
		err = AddVerified(definitionUUID)
	case models.VerificationStatusRejected:
		err = AddRejected(definitionUUID)
	case models.VerificationStatusPendingManual:
		err = AddPending(definitionUUID)
	default:
		return
	}
	if err != nil {
		log.Debugf("[Counter] Failed to count %s outcome for %s: %v", status, definitionUUID, err)
	}
}

// FlushAll flushes all outcome counters to the incentive definition rows
func FlushAll() error {
	if err := flushHashToColumn(attemptsKey, "attempt_count"); err != nil {
		return err
	}
	if err := flushHashToColumn(verifiedKey, "verified_count"); err != nil {
		return err
	}
	if err := flushHashToColumn(rejectedKey, "rejected_count"); err != nil {
		return err
	}
	return flushHashToColumn(pendingKey, "pending_count")
}

// flushHashToColumn drains a Redis hash atomically and applies batched increments
// to the incentive_definitions table. Uses RENAME to a temporary key for atomic
// drain without losing in-flight increments.
func flushHashToColumn(redisKey, column string) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	// Atomically move the hash to a temp key for draining
	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		if err.Error() == "redis: nil" {
			return nil
		}
		return err
	}

	// Ensure cleanup of tmpKey even if later steps fail
	defer rdb.Del(ctx, tmpKey)

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	// Collect definition ids and increments; sort ids for stable SQL
	type pair struct {
		id  string
		inc int64
	}
	pairs := make([]pair, 0, len(data))
	for k, v := range data {
		inc, ierr := strconv.ParseInt(v, 10, 64)
		if ierr != nil || inc == 0 {
			continue
		}
		pairs = append(pairs, pair{id: k, inc: inc})
	}
	if len(pairs) == 0 {
		return nil
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })

	// Compose SQL
	// UPDATE incentive_definitions SET <column> = <column> + CASE definition_uuid WHEN ? THEN ? ... END WHERE definition_uuid IN ( ... )
	var builder strings.Builder
	args := make([]interface{}, 0, len(pairs)*3)
	builder.WriteString("UPDATE incentive_definitions SET ")
	builder.WriteString(column)
	builder.WriteString(" = ")
	builder.WriteString(column)
	builder.WriteString(" + CASE definition_uuid ")
	for _, p := range pairs {
		builder.WriteString(" WHEN ? THEN ?")
		args = append(args, p.id, p.inc)
	}
	builder.WriteString(" END WHERE definition_uuid IN (")
	for i, p := range pairs {
		if i > 0 {
			builder.WriteString(",")
		}
		builder.WriteString("?")
		args = append(args, p.id)
	}
	builder.WriteString(")")

	db := database.GetDB()
	if err := db.Exec(builder.String(), args...).Error; err != nil {
		return err
	}
	return nil
}

