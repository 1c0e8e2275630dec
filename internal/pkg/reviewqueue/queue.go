package reviewqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/QuestPassApp/QuestPass/internal/pkg/cache"
	"github.com/QuestPassApp/QuestPass/internal/pkg/verification"
)

const (
	// Redis key prefixes
	TaskKeyPrefix     = "review:"
	TaskQueueKey      = "review_queue"
	TaskProcessingKey = "review_processing"
	TaskStatsKey      = "review_stats"
	OpenReviewsKey    = "review_open"

	// Task settings
	DefaultMaxRetries = 3
	TaskTTL           = 7 * 24 * time.Hour // Unresolved reviews expire after a week
)

var (
	// ErrTaskNotFound is returned when a review task id is unknown or expired.
	ErrTaskNotFound = errors.New("review task not found")
	// ErrTaskNotOpen is returned when a resolution targets a task that is not
	// (or no longer) open: intake has not published it yet, or another
	// reviewer resolved it first.
	ErrTaskNotOpen = errors.New("review task is not open")
)

// Archiver persists review evidence off-process before a task is opened for
// reviewers.
type Archiver interface {
	ArchiveReviewItem(ctx context.Context, task *Task) (string, error)
}

// Queue manages manual-review intake using Redis. Claims enqueued by the
// manual verifier pass through a worker pool that archives their evidence and
// publishes them to the open-reviews index reviewers work from.
type Queue struct {
	client     *redis.Client
	archiver   Archiver
	workers    int
	workerPool chan struct{}
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

// NewQueue creates a new review queue. The archiver is optional; without one
// tasks are opened for review without an evidence archive.
func NewQueue(workers int, archiver Archiver) *Queue {
	if workers <= 0 {
		workers = 2 // Default number of workers
	}

	return &Queue{
		client:     cache.GetClient(),
		archiver:   archiver,
		workers:    workers,
		workerPool: make(chan struct{}, workers),
		stopCh:     make(chan struct{}),
	}
}

// Start starts the review queue workers
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	q.running = true
	log.Infof("[ReviewQueue] Starting %d workers", q.workers)

	// Initialize worker pool
	for i := 0; i < q.workers; i++ {
		q.workerPool <- struct{}{}
	}

	// Start workers
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	// Start stuck-processing sweeper (recovers tasks stuck in processing due to crashes)
	q.wg.Add(1)
	go q.stuckSweeper(10*time.Minute, 1*time.Minute)
}

// Stop stops the review queue workers
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}

	log.Info("[ReviewQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.wg.Wait()
	log.Info("[ReviewQueue] All workers stopped")
}

// stuckSweeper periodically scans the processing list and requeues tasks stuck for longer than maxAge
func (q *Queue) stuckSweeper(maxAge time.Duration, interval time.Duration) {
	defer q.wg.Done()
	log.Infof("[ReviewQueue] Stuck sweeper running (maxAge=%s, interval=%s)", maxAge, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			log.Info("[ReviewQueue] Stuck sweeper stopping")
			return
		case <-ticker.C:
			ids, err := q.client.LRange(ctx, TaskProcessingKey, 0, -1).Result()
			if err != nil {
				log.Errorf("[ReviewQueue] Sweeper LRange error: %v", err)
				continue
			}
			now := time.Now()
			for _, id := range ids {
				taskKey := TaskKeyPrefix + id
				data, err := q.client.Get(ctx, taskKey).Result()
				if err != nil {
					// Task data missing; remove from processing list
					if err != redis.Nil {
						log.Errorf("[ReviewQueue] Sweeper Get error for %s: %v", id, err)
					}
					_ = q.client.LRem(ctx, TaskProcessingKey, 1, id).Err()
					continue
				}
				var task Task
				if uerr := json.Unmarshal([]byte(data), &task); uerr != nil {
					log.Errorf("[ReviewQueue] Sweeper unmarshal error for %s: %v", id, uerr)
					_ = q.client.LRem(ctx, TaskProcessingKey, 1, id).Err()
					continue
				}
				if task.Status != TaskStatusProcessing {
					// Clean up stray entry
					_ = q.client.LRem(ctx, TaskProcessingKey, 1, id).Err()
					continue
				}
				// Determine when processing started
				started := task.ProcessedAt
				if started == nil || started.IsZero() {
					tmp := task.UpdatedAt
					if tmp.IsZero() {
						tmp = task.CreatedAt
					}
					started = &tmp
				}
				if now.Sub(*started) > maxAge {
					log.Warnf("[ReviewQueue] Recovering stuck task %s (purchase %s), age=%s", task.ID, task.Item.PurchaseID, now.Sub(*started))
					task.Status = TaskStatusPending
					task.ErrorMsg = "recovered by sweeper"
					task.UpdatedAt = now
					q.updateTask(ctx, &task)
					// Move from processing back to pending
					_ = q.client.LRem(ctx, TaskProcessingKey, 1, id).Err()
					_ = q.client.RPush(ctx, TaskQueueKey, id).Err()
				}
			}
		}
	}
}

// worker processes review tasks from the queue
func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log.Infof("[ReviewQueue] Worker %d started", id)

	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			log.Infof("[ReviewQueue] Worker %d stopping", id)
			return
		default:
			// Acquire worker slot
			<-q.workerPool

			// Try to get a task from the queue
			task, err := q.dequeueTask(ctx)
			if err != nil {
				if err != redis.Nil {
					log.Errorf("[ReviewQueue] Worker %d: Error dequeuing task: %v", id, err)
				}
				// Release worker slot and wait before retry
				q.workerPool <- struct{}{}
				time.Sleep(time.Second)
				continue
			}

			if task != nil {
				log.Infof("[ReviewQueue] Worker %d processing task %s (purchase %s)", id, task.ID, task.Item.PurchaseID)
				q.processTask(ctx, task)
			}

			// Release worker slot
			q.workerPool <- struct{}{}
		}
	}
}

// Enqueue adds a claim to the review intake. It implements
// verification.ReviewQueue so the manual verifier can hand claims over
// without knowing about Redis.
func (q *Queue) Enqueue(ctx context.Context, item verification.ReviewItem) error {
	_, err := q.EnqueueTask(ctx, item)
	return err
}

// EnqueueTask adds a new review task to the queue
func (q *Queue) EnqueueTask(ctx context.Context, item verification.ReviewItem) (*Task, error) {
	now := time.Now()
	task := &Task{
		ID:         uuid.New().String(),
		Item:       item,
		Status:     TaskStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		RetryCount: 0,
		MaxRetries: DefaultMaxRetries,
	}

	// Store task data
	taskData, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}

	taskKey := TaskKeyPrefix + task.ID

	// Use a pipeline for atomic operations
	pipe := q.client.Pipeline()
	pipe.Set(ctx, taskKey, taskData, TaskTTL)
	pipe.LPush(ctx, TaskQueueKey, task.ID)
	pipe.HIncrBy(ctx, TaskStatsKey, string(TaskStatusPending), 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	log.Infof("[ReviewQueue] Enqueued task %s (purchase %s, incentive %s)", task.ID, item.PurchaseID, item.IncentiveType)
	return task, nil
}

// dequeueTask gets the next task from the queue
func (q *Queue) dequeueTask(ctx context.Context) (*Task, error) {
	// Move task from pending queue to processing queue atomically
	result, err := q.client.BRPopLPush(ctx, TaskQueueKey, TaskProcessingKey, time.Second).Result()
	if err != nil {
		return nil, err
	}

	taskID := result
	taskKey := TaskKeyPrefix + taskID

	// Get task data
	taskData, err := q.client.Get(ctx, taskKey).Result()
	if err != nil {
		// Task data not found, remove from processing queue
		q.client.LRem(ctx, TaskProcessingKey, 1, taskID)
		return nil, fmt.Errorf("task data not found for ID %s", taskID)
	}

	var task Task
	if err := json.Unmarshal([]byte(taskData), &task); err != nil {
		// Invalid task data, remove from processing queue
		q.client.LRem(ctx, TaskProcessingKey, 1, taskID)
		return nil, fmt.Errorf("failed to unmarshal task %s: %w", taskID, err)
	}

	return &task, nil
}

// processTask runs intake for a single task: archive the evidence, then
// publish the task to the open-reviews index.
func (q *Queue) processTask(ctx context.Context, task *Task) {
	task.MarkAsProcessing()
	q.updateTask(ctx, task)

	if err := q.archiveTask(ctx, task); err != nil {
		log.Errorf("[ReviewQueue] Task %s failed: %v", task.ID, err)
		task.MarkAsFailed(err.Error())

		// Check if intake can be retried
		if task.IsRetryable() {
			log.Infof("[ReviewQueue] Retrying task %s (Attempt %d/%d)", task.ID, task.RetryCount, task.MaxRetries)
			task.MarkAsRetrying()
			q.updateTask(ctx, task)

			// Re-enqueue for retry after a delay
			time.AfterFunc(time.Minute*time.Duration(task.RetryCount), func() {
				q.client.LPush(ctx, TaskQueueKey, task.ID)
			})
		} else {
			log.Errorf("[ReviewQueue] Task %s permanently failed after %d retries", task.ID, task.RetryCount)
			q.updateTask(ctx, task)
			q.updateTaskStats(ctx, TaskStatusFailed, 1)
		}
		q.removeFromProcessing(ctx, task.ID)
		return
	}

	q.openForReview(ctx, task)
	q.removeFromProcessing(ctx, task.ID)
}

// archiveTask stores the review evidence through the archiver, when one is
// configured.
func (q *Queue) archiveTask(ctx context.Context, task *Task) error {
	if q.archiver == nil {
		return nil
	}
	key, err := q.archiver.ArchiveReviewItem(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to archive review evidence: %w", err)
	}
	task.ArchiveKey = key
	return nil
}

// openForReview publishes a task to the index reviewers read from.
func (q *Queue) openForReview(ctx context.Context, task *Task) {
	task.MarkAsOpen()
	taskData, err := json.Marshal(task)
	if err != nil {
		log.Errorf("[ReviewQueue] Failed to marshal task %s: %v", task.ID, err)
		return
	}

	pipe := q.client.Pipeline()
	pipe.Set(ctx, TaskKeyPrefix+task.ID, taskData, TaskTTL)
	pipe.HSet(ctx, OpenReviewsKey, task.ID, taskData)
	pipe.HIncrBy(ctx, TaskStatsKey, string(TaskStatusOpen), 1)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Errorf("[ReviewQueue] Failed to open task %s for review: %v", task.ID, err)
		return
	}

	log.Infof("[ReviewQueue] Task %s is open for review (purchase %s, incentive %s)", task.ID, task.Item.PurchaseID, task.Item.IncentiveType)
}

// Resolve closes an open review task with the reviewer's decision. Removal
// from the open index is first-wins: the second of two concurrent resolutions
// gets ErrTaskNotOpen.
func (q *Queue) Resolve(ctx context.Context, taskID, resolution, note string) (*Task, error) {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	removed, err := q.client.HDel(ctx, OpenReviewsKey, taskID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to close review task %s: %w", taskID, err)
	}
	if removed == 0 {
		return nil, ErrTaskNotOpen
	}

	task.MarkAsResolved(resolution, note)
	q.updateTask(ctx, task)
	q.updateTaskStats(ctx, TaskStatusResolved, 1)
	log.Infof("[ReviewQueue] Task %s resolved as %s (purchase %s)", taskID, resolution, task.Item.PurchaseID)
	return task, nil
}

// updateTask updates task data in Redis
func (q *Queue) updateTask(ctx context.Context, task *Task) {
	taskData, err := json.Marshal(task)
	if err != nil {
		log.Errorf("[ReviewQueue] Failed to marshal task %s: %v", task.ID, err)
		return
	}

	taskKey := TaskKeyPrefix + task.ID
	if err := q.client.Set(ctx, taskKey, taskData, TaskTTL).Err(); err != nil {
		log.Errorf("[ReviewQueue] Failed to update task %s: %v", task.ID, err)
	}
}

// removeFromProcessing removes a task from the processing queue
func (q *Queue) removeFromProcessing(ctx context.Context, taskID string) {
	if err := q.client.LRem(ctx, TaskProcessingKey, 1, taskID).Err(); err != nil {
		log.Errorf("[ReviewQueue] Failed to remove task %s from processing queue: %v", taskID, err)
	}
}

// updateTaskStats updates task statistics
func (q *Queue) updateTaskStats(ctx context.Context, status TaskStatus, delta int64) {
	if err := q.client.HIncrBy(ctx, TaskStatsKey, string(status), delta).Err(); err != nil {
		log.Errorf("[ReviewQueue] Failed to update task stats: %v", err)
	}
}

// GetTask retrieves a task by ID
func (q *Queue) GetTask(ctx context.Context, taskID string) (*Task, error) {
	taskKey := TaskKeyPrefix + taskID
	taskData, err := q.client.Get(ctx, taskKey).Result()
	if err == redis.Nil {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}

	var task Task
	if err := json.Unmarshal([]byte(taskData), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}

	return &task, nil
}

// OpenTasks lists the tasks currently waiting for a reviewer, oldest first.
func (q *Queue) OpenTasks(ctx context.Context) ([]Task, error) {
	entries, err := q.client.HGetAll(ctx, OpenReviewsKey).Result()
	if err != nil {
		return nil, err
	}

	tasks := make([]Task, 0, len(entries))
	for id, data := range entries {
		var task Task
		if err := json.Unmarshal([]byte(data), &task); err != nil {
			log.Errorf("[ReviewQueue] Skipping unreadable open task %s: %v", id, err)
			continue
		}
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// GetTaskStats returns statistics about task statuses
func (q *Queue) GetTaskStats(ctx context.Context) (map[TaskStatus]int64, error) {
	stats, err := q.client.HGetAll(ctx, TaskStatsKey).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[TaskStatus]int64)
	for status, count := range stats {
		if countInt, err := json.Number(count).Int64(); err == nil {
			result[TaskStatus(status)] = countInt
		}
	}

	return result, nil
}

// GetQueueSize returns the number of tasks waiting for intake
func (q *Queue) GetQueueSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, TaskQueueKey).Result()
}

// GetProcessingSize returns the number of tasks in intake right now
func (q *Queue) GetProcessingSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, TaskProcessingKey).Result()
}

// GetOpenCount returns the number of tasks waiting for a reviewer
func (q *Queue) GetOpenCount(ctx context.Context) (int64, error) {
	return q.client.HLen(ctx, OpenReviewsKey).Result()
}
