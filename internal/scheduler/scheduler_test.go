package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/prenos/internal/db"
	"github.com/erazemk/prenos/internal/lock"
	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/store"
	"github.com/erazemk/prenos/internal/transfer"
)

var start = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type fakeExecutor struct {
	mu    sync.Mutex
	calls []int64
	err   error
}

func (f *fakeExecutor) ExecuteScheduled(_ context.Context, id int64) (*model.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if f.err != nil {
		return nil, f.err
	}
	return &model.Transfer{ID: id, Status: model.StatusCompleted}, nil
}

func (f *fakeExecutor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// seedApproved stores an approved transfer due at start and queues its job.
func seedApproved(t *testing.T, database *sql.DB) *model.Transfer {
	t.Helper()
	ctx := context.Background()

	user, err := store.CreateUser(ctx, database, "requester", "hash", model.RoleUser)
	require.NoError(t, err)
	loc, err := store.CreateLocation(ctx, database, "Depot")
	require.NoError(t, err)
	asset, err := store.CreateAsset(ctx, database, model.Asset{Name: "Forklift"})
	require.NoError(t, err)

	tr := &model.Transfer{
		Type:          model.TransferLocation,
		Status:        model.StatusApproved,
		AssetIDs:      []int64{asset.ID},
		ToLocationID:  &loc.ID,
		Reason:        "seasonal move to the depot",
		ScheduledDate: &start,
		RequestedBy:   user.ID,
	}
	require.NoError(t, store.CreateTransfer(ctx, database, tr, start.Add(-time.Hour)))

	ok, err := store.EnqueueJob(ctx, database, tr.ID, 3, start, start)
	require.NoError(t, err)
	require.True(t, ok)
	return tr
}

func newScheduler(database *sql.DB, exec Executor) *Scheduler {
	s := New(database, exec, Config{Backoff: time.Second}, nil)
	s.Now = func() time.Time { return start }
	return s
}

func jobsOf(t *testing.T, database *sql.DB, transferID int64) []model.Job {
	t.Helper()
	jobs, err := store.ListJobs(context.Background(), database, transferID)
	require.NoError(t, err)
	return jobs
}

func TestScheduledTransferWaitsUntilDue(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	svc := transfer.NewService(database, lock.NewAssetLocks(lock.NewMemoryStore(), 0),
		lock.NewGuard(lock.NewMemoryStore()), nil, transfer.Options{})
	svc.Now = func() time.Time { return start }

	user, _ := store.CreateUser(ctx, database, "requester", "hash", model.RoleUser)
	dept, _ := store.CreateDepartment(ctx, database, "Logistics")
	asset, _ := store.CreateAsset(ctx, database, model.Asset{Name: "Pallet jack"})

	due := start.Add(10 * time.Minute)
	tr, err := svc.Create(ctx, transfer.CreateRequest{
		Type:           model.TransferDepartment,
		AssetIDs:       []int64{asset.ID},
		ToDepartmentID: &dept.ID,
		Reason:         "logistics takes over the jack",
		ScheduledDate:  &due,
	}, user.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusApproved, tr.Status)

	s := newScheduler(database, svc)

	// Polls before the scheduled date leave the transfer alone.
	for _, at := range []time.Time{start, start.Add(5 * time.Minute), due.Add(-time.Second)} {
		s.Now = func() time.Time { return at }
		queued, err := s.Poll(ctx)
		require.NoError(t, err)
		assert.Zero(t, queued)

		worked, err := s.RunOnce(ctx)
		require.NoError(t, err)
		assert.False(t, worked)
	}
	got, _ := svc.Get(ctx, tr.ID)
	assert.Equal(t, model.StatusApproved, got.Status)

	s.Now = func() time.Time { return due }
	queued, err := s.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	queued, _ = s.Poll(ctx)
	assert.Zero(t, queued, "a due transfer is queued once")

	worked, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, worked)

	got, _ = svc.Get(ctx, tr.ID)
	assert.Equal(t, model.StatusCompleted, got.Status)

	jobs := jobsOf(t, database, tr.ID)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.JobDone, jobs[0].Status)
}

func TestJobSkipsTransferThatIsNoLongerApproved(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	tr := seedApproved(t, database)

	tr.Status = model.StatusCancelled
	ok, err := store.UpdateTransfer(ctx, database, tr, model.StatusApproved, start)
	require.NoError(t, err)
	require.True(t, ok)

	exec := &fakeExecutor{}
	worked, err := newScheduler(database, exec).RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, worked)

	assert.Zero(t, exec.count())
	assert.Equal(t, model.JobDone, jobsOf(t, database, tr.ID)[0].Status)
}

func TestTransientFailureRetriesThenFails(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	tr := seedApproved(t, database)

	exec := &fakeExecutor{err: errors.New("database is locked")}
	s := newScheduler(database, exec)

	now := start
	s.Now = func() time.Time { return now }
	for attempt := 1; attempt <= 3; attempt++ {
		worked, err := s.RunOnce(ctx)
		require.NoError(t, err)
		require.True(t, worked, "attempt %d", attempt)

		job := jobsOf(t, database, tr.ID)[0]
		assert.Equal(t, attempt, job.Attempts)
		assert.Equal(t, "database is locked", job.LastError)
		if attempt < 3 {
			assert.Equal(t, model.JobPending, job.Status)
			// Exponential(1s, attempt-1) with jitter is always below this.
			now = now.Add(time.Minute)
		} else {
			assert.Equal(t, model.JobFailed, job.Status)
		}
	}

	worked, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, worked, "failed jobs are not retried forever")
	assert.Equal(t, 3, exec.count())
}

func TestFailedJobIsNotQueuedAgain(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	tr := seedApproved(t, database)

	exec := &fakeExecutor{err: errors.New("db down")}
	s := newScheduler(database, exec)

	now := start
	s.Now = func() time.Time { return now }
	for range 3 {
		worked, err := s.RunOnce(ctx)
		require.NoError(t, err)
		require.True(t, worked)
		now = now.Add(time.Minute)
	}
	require.Equal(t, model.JobFailed, jobsOf(t, database, tr.ID)[0].Status)

	for _, later := range []time.Duration{5 * time.Minute, time.Hour, 24 * time.Hour} {
		now = start.Add(later)
		queued, err := s.Poll(ctx)
		require.NoError(t, err)
		assert.Zero(t, queued, "after %s", later)

		worked, err := s.RunOnce(ctx)
		require.NoError(t, err)
		assert.False(t, worked)
	}
	assert.Len(t, jobsOf(t, database, tr.ID), 1)
	assert.Equal(t, 3, exec.count())
}

func TestPermanentFailureIsNotRetried(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	tr := seedApproved(t, database)

	exec := &fakeExecutor{err: fmt.Errorf("executing: %w", transfer.ErrNotFound)}
	worked, err := newScheduler(database, exec).RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, worked)

	job := jobsOf(t, database, tr.ID)[0]
	assert.Equal(t, model.JobFailed, job.Status)
	assert.Equal(t, 1, job.Attempts)

	queued, err := newScheduler(database, exec).Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, queued)
}

func TestScheduledTransferRunsAfterRequesterIsRemoved(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	svc := transfer.NewService(database, lock.NewAssetLocks(lock.NewMemoryStore(), 0),
		lock.NewGuard(lock.NewMemoryStore()), nil, transfer.Options{})
	svc.Now = func() time.Time { return start }

	user, _ := store.CreateUser(ctx, database, "requester", "hash", model.RoleUser)
	dept, _ := store.CreateDepartment(ctx, database, "Logistics")
	asset, _ := store.CreateAsset(ctx, database, model.Asset{Name: "Pallet jack"})

	due := start.Add(time.Hour)
	tr, err := svc.Create(ctx, transfer.CreateRequest{
		Type:           model.TransferDepartment,
		AssetIDs:       []int64{asset.ID},
		ToDepartmentID: &dept.ID,
		Reason:         "logistics takes over the jack",
		ScheduledDate:  &due,
	}, user.ID)
	require.NoError(t, err)
	require.NoError(t, store.DeleteUser(ctx, database, user.ID))

	s := newScheduler(database, svc)
	s.Now = func() time.Time { return due }
	queued, err := s.Poll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, queued)

	worked, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, worked)

	got, err := svc.Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, model.JobDone, jobsOf(t, database, tr.ID)[0].Status)

	moved, _ := store.GetAsset(ctx, database, asset.ID)
	assert.Equal(t, dept.ID, *moved.DepartmentID)
}

func TestRunStopsOnCancel(t *testing.T) {
	database := db.NewTestDB(t)
	tr := seedApproved(t, database)

	exec := &fakeExecutor{}
	s := New(database, exec, Config{Interval: time.Hour, Workers: 2, Idle: 10 * time.Millisecond}, nil)
	s.Now = func() time.Time { return start }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return exec.count() >= 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, model.JobDone, jobsOf(t, database, tr.ID)[0].Status)
}
