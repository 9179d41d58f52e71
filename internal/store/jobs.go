package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/prenos/internal/model"
)

const jobColumns = `id, transfer_id, status, attempts, max_attempts, run_at, lease_until,
	COALESCE(last_error, ''), created_at, updated_at`

// EnqueueJob queues an execution job for a transfer. At most one pending or
// running job exists per transfer; if one already does, EnqueueJob reports
// false and changes nothing.
func EnqueueJob(ctx context.Context, q Querier, transferID int64, maxAttempts int, runAt, now time.Time) (bool, error) {
	now = utc(now)
	result, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO jobs (transfer_id, status, max_attempts, run_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		transferID, model.JobPending, maxAttempts, utc(runAt), now, now,
	)
	if err != nil {
		return false, fmt.Errorf("enqueueing job for transfer %d: %w", transferID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enqueueing job for transfer %d: %w", transferID, err)
	}
	return n == 1, nil
}

// ClaimJob leases the oldest due pending job until now+lease and counts the
// attempt. It returns nil when nothing is due.
func ClaimJob(ctx context.Context, q Querier, now time.Time, lease time.Duration) (*model.Job, error) {
	now = utc(now)
	var id int64
	err := q.QueryRowContext(ctx,
		`UPDATE jobs
		 SET status = ?, attempts = attempts + 1, lease_until = ?, updated_at = ?
		 WHERE id = (
		     SELECT id FROM jobs WHERE status = ? AND run_at <= ?
		     ORDER BY run_at, id LIMIT 1
		 )
		 RETURNING id`,
		model.JobRunning, now.Add(lease), now, model.JobPending, now,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claiming job: %w", err)
	}
	return GetJob(ctx, q, id)
}

// GetJob returns a job by ID.
func GetJob(ctx context.Context, q Querier, id int64) (*model.Job, error) {
	j, err := scanJob(q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting job: %w", err)
	}
	return j, nil
}

// CompleteJob marks a job done.
func CompleteJob(ctx context.Context, q Querier, id int64, now time.Time) error {
	return finishJob(ctx, q, id, model.JobDone, "", now)
}

// FailJob marks a job permanently failed.
func FailJob(ctx context.Context, q Querier, id int64, lastErr string, now time.Time) error {
	return finishJob(ctx, q, id, model.JobFailed, lastErr, now)
}

// RetryJob returns a running job to the queue, due at runAt.
func RetryJob(ctx context.Context, q Querier, id int64, runAt time.Time, lastErr string, now time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE jobs SET status = ?, run_at = ?, lease_until = NULL, last_error = ?, updated_at = ?
		 WHERE id = ?`,
		model.JobPending, utc(runAt), nullString(lastErr), utc(now), id,
	)
	if err != nil {
		return fmt.Errorf("rescheduling job %d: %w", id, err)
	}
	return nil
}

// ReclaimExpiredJobs returns running jobs whose lease expired to the queue,
// or fails them when no attempts are left. It returns how many jobs were
// requeued.
func ReclaimExpiredJobs(ctx context.Context, q Querier, now time.Time) (int64, error) {
	now = utc(now)
	_, err := q.ExecContext(ctx,
		`UPDATE jobs SET status = ?, lease_until = NULL, last_error = 'lease expired', updated_at = ?
		 WHERE status = ? AND lease_until < ? AND attempts >= max_attempts`,
		model.JobFailed, now, model.JobRunning, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failing expired jobs: %w", err)
	}

	result, err := q.ExecContext(ctx,
		`UPDATE jobs SET status = ?, lease_until = NULL, run_at = ?, updated_at = ?
		 WHERE status = ? AND lease_until < ?`,
		model.JobPending, now, now, model.JobRunning, now,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaiming expired jobs: %w", err)
	}
	return result.RowsAffected()
}

// ListJobs returns all jobs of a transfer, oldest first.
func ListJobs(ctx context.Context, q Querier, transferID int64) ([]model.Job, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE transfer_id = ? ORDER BY id`, transferID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func finishJob(ctx context.Context, q Querier, id int64, status, lastErr string, now time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE jobs SET status = ?, lease_until = NULL, last_error = ?, updated_at = ? WHERE id = ?`,
		status, nullString(lastErr), utc(now), id,
	)
	if err != nil {
		return fmt.Errorf("marking job %d %s: %w", id, status, err)
	}
	return nil
}

func scanJob(s rowScanner) (*model.Job, error) {
	j := &model.Job{}
	if err := s.Scan(&j.ID, &j.TransferID, &j.Status, &j.Attempts, &j.MaxAttempts, &j.RunAt,
		&j.LeaseUntil, &j.LastError, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	return j, nil
}
