package reviewqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QuestPassApp/QuestPass/app/models"
	"github.com/QuestPassApp/QuestPass/internal/pkg/verification"
)

type stubArchiver struct {
	key string
}

func (a *stubArchiver) ArchiveReviewItem(ctx context.Context, task *Task) (string, error) {
	return a.key, nil
}

// TestQueueIntakeAndResolve walks one claim through the full review path:
// enqueue, intake, open for review, resolve.
func TestQueueIntakeAndResolve(t *testing.T) {
	host, port, password := resolveTestRedis(t)
	configureTestCache(host, port, password)
	resetReviewQueueRedis(t)
	t.Cleanup(func() { resetReviewQueueRedis(t) })

	queue := NewQueue(1, &stubArchiver{key: "reviews/2026/05/task.json"})
	queue.Start()
	t.Cleanup(queue.Stop)

	ctx := context.Background()
	task, err := queue.EnqueueTask(ctx, verification.ReviewItem{
		PurchaseID:     "p-manual-1",
		DefinitionUUID: "def-manual-1",
		IncentiveType:  models.IncentiveTypeManual,
		Description:    "volunteered at the info desk",
		SubmittedAt:    time.Now(),
	})
	require.NoError(t, err)

	// Wait for intake to publish the task for reviewers.
	deadline := time.Now().Add(10 * time.Second)
	var open []Task
	for time.Now().Before(deadline) {
		open, err = queue.OpenTasks(ctx)
		require.NoError(t, err)
		if len(open) > 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	require.Len(t, open, 1)
	assert.Equal(t, task.ID, open[0].ID)
	assert.Equal(t, TaskStatusOpen, open[0].Status)
	assert.Equal(t, "reviews/2026/05/task.json", open[0].ArchiveKey)
	assert.Equal(t, "p-manual-1", open[0].Item.PurchaseID)

	resolved, err := queue.Resolve(ctx, task.ID, ResolutionApproved, "confirmed with staff")
	require.NoError(t, err)
	assert.Equal(t, TaskStatusResolved, resolved.Status)
	assert.Equal(t, ResolutionApproved, resolved.Resolution)
	assert.Equal(t, "confirmed with staff", resolved.ResolutionNote)

	// The open index is drained and a second resolution is turned away.
	open, err = queue.OpenTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	_, err = queue.Resolve(ctx, task.ID, ResolutionRejected, "")
	assert.ErrorIs(t, err, ErrTaskNotOpen)

	stats, err := queue.GetTaskStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats[TaskStatusPending])
	assert.Equal(t, int64(1), stats[TaskStatusOpen])
	assert.Equal(t, int64(1), stats[TaskStatusResolved])
}

// TestResolveRequiresOpenTask checks the guard rails around resolutions.
func TestResolveRequiresOpenTask(t *testing.T) {
	host, port, password := resolveTestRedis(t)
	configureTestCache(host, port, password)
	resetReviewQueueRedis(t)
	t.Cleanup(func() { resetReviewQueueRedis(t) })

	// Queue is never started, so intake does not publish the task.
	queue := NewQueue(1, nil)

	ctx := context.Background()
	task, err := queue.EnqueueTask(ctx, verification.ReviewItem{
		PurchaseID:     "p-manual-2",
		DefinitionUUID: "def-manual-1",
		IncentiveType:  models.IncentiveTypeSponsorSession,
		Description:    "sat in the sponsor keynote",
		SubmittedAt:    time.Now(),
	})
	require.NoError(t, err)

	_, err = queue.Resolve(ctx, task.ID, ResolutionApproved, "")
	assert.ErrorIs(t, err, ErrTaskNotOpen)

	_, err = queue.Resolve(ctx, "no-such-task", ResolutionApproved, "")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	size, err := queue.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
}
