package store

import (
	"context"
	"testing"
	"time"

	"github.com/erazemk/prenos/internal/db"
	"github.com/erazemk/prenos/internal/model"
)

func TestEnqueueJobDeduplicates(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()

	tr := seedTransfer(t, ctx, database, model.StatusApproved, &now)

	ok, err := EnqueueJob(ctx, database, tr.ID, 3, now, now)
	if err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if !ok {
		t.Fatal("expected first enqueue to insert")
	}

	ok, err = EnqueueJob(ctx, database, tr.ID, 3, now, now)
	if err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if ok {
		t.Error("expected duplicate enqueue to be ignored")
	}

	jobs, _ := ListJobs(ctx, database, tr.ID)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}

	// Once finished, the transfer can be queued again.
	CompleteJob(ctx, database, jobs[0].ID, now)
	ok, _ = EnqueueJob(ctx, database, tr.ID, 3, now, now)
	if !ok {
		t.Error("expected enqueue after completion to insert")
	}
}

func TestClaimRetryAndFail(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()

	tr := seedTransfer(t, ctx, database, model.StatusApproved, &now)
	EnqueueJob(ctx, database, tr.ID, 2, now, now)

	job, err := ClaimJob(ctx, database, now, time.Minute)
	if err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}
	if job == nil || job.Status != model.JobRunning || job.Attempts != 1 {
		t.Fatalf("expected running job with 1 attempt, got %+v", job)
	}

	// Nothing else is due.
	none, _ := ClaimJob(ctx, database, now, time.Minute)
	if none != nil {
		t.Fatalf("expected no claimable job, got %+v", none)
	}

	RetryJob(ctx, database, job.ID, now.Add(time.Second), "database busy", now)
	if early, _ := ClaimJob(ctx, database, now, time.Minute); early != nil {
		t.Fatal("expected retried job not to be due yet")
	}

	job, _ = ClaimJob(ctx, database, now.Add(2*time.Second), time.Minute)
	if job == nil || job.Attempts != 2 || job.LastError != "database busy" {
		t.Fatalf("expected second attempt with last error, got %+v", job)
	}

	FailJob(ctx, database, job.ID, "gave up", now)
	got, _ := GetJob(ctx, database, job.ID)
	if got.Status != model.JobFailed || got.LastError != "gave up" {
		t.Errorf("expected failed job, got %+v", got)
	}
}

func TestReclaimExpiredJobs(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()

	tr := seedTransfer(t, ctx, database, model.StatusApproved, &now)
	EnqueueJob(ctx, database, tr.ID, 3, now, now)
	job, _ := ClaimJob(ctx, database, now, time.Second)

	n, err := ReclaimExpiredJobs(ctx, database, now)
	if err != nil {
		t.Fatalf("ReclaimExpiredJobs: %v", err)
	}
	if n != 0 {
		t.Errorf("expected live lease to be kept, reclaimed %d", n)
	}

	n, _ = ReclaimExpiredJobs(ctx, database, now.Add(time.Minute))
	if n != 1 {
		t.Fatalf("expected 1 reclaimed job, got %d", n)
	}
	got, _ := GetJob(ctx, database, job.ID)
	if got.Status != model.JobPending {
		t.Errorf("expected job back to pending, got %q", got.Status)
	}
}
