package jobs

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const stuckAfter = 5 * time.Minute

type Repo struct {
	DB *gorm.DB
}

// Enqueue inserts a job with the caller's transaction so it commits or rolls
// back together with the change that scheduled it.
func Enqueue(tx *gorm.DB, userID uint64, typ string, payload any, runAt time.Time) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	j := Job{
		UserID:      userID,
		Type:        typ,
		Payload:     datatypes.JSON(b),
		RunAt:       runAt,
		Status:      StatusPending,
		MaxAttempts: 8,
	}
	return tx.Create(&j).Error
}

// Claim one due job atomically. On postgres FOR UPDATE SKIP LOCKED ensures no
// double-claim; other dialects fall back to a guarded status flip.
func (r *Repo) Claim(ctx context.Context, workerID string) (*Job, error) {
	var job Job
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		// requeue RUNNING jobs whose worker died
		if err := tx.Model(&Job{}).
			Where("status = ? AND locked_at IS NOT NULL AND locked_at < ?", StatusRunning, now.Add(-stuckAfter)).
			Updates(map[string]any{"status": StatusPending, "locked_by": nil, "locked_at": nil, "updated_at": now}).Error; err != nil {
			return err
		}

		if tx.Dialector.Name() == "postgres" {
			return tx.Raw(`
with cte as (
  select id
  from jobs
  where status='PENDING' and run_at <= now()
  order by run_at asc
  for update skip locked
  limit 1
)
update jobs
set status='RUNNING', locked_by=?, locked_at=now(), updated_at=now()
where id in (select id from cte)
returning *;
`, workerID).Scan(&job).Error
		}

		var cand Job
		if err := tx.Where("status = ? AND run_at <= ?", StatusPending, now).
			Order("run_at asc").Limit(1).Find(&cand).Error; err != nil {
			return err
		}
		if cand.ID == 0 {
			return nil
		}
		res := tx.Model(&Job{}).
			Where("id = ? AND status = ?", cand.ID, StatusPending).
			Updates(map[string]any{"status": StatusRunning, "locked_by": workerID, "locked_at": now, "updated_at": now})
		if res.Error != nil || res.RowsAffected == 0 {
			return res.Error
		}
		cand.Status = StatusRunning
		job = cand
		return nil
	})
	if err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}

func (r *Repo) MarkDone(ctx context.Context, id uint64) error {
	return r.set(ctx, id, map[string]any{"status": StatusDone})
}

func (r *Repo) MarkFailed(ctx context.Context, id uint64, errMsg string) error {
	return r.set(ctx, id, map[string]any{"status": StatusFailed, "last_error": errMsg})
}

func (r *Repo) RetryLater(ctx context.Context, id uint64, attempts int, runAt time.Time, errMsg string) error {
	return r.set(ctx, id, map[string]any{
		"status":     StatusPending,
		"attempts":   attempts,
		"run_at":     runAt,
		"locked_by":  nil,
		"locked_at":  nil,
		"last_error": errMsg,
	})
}

func (r *Repo) set(ctx context.Context, id uint64, cols map[string]any) error {
	cols["updated_at"] = time.Now()
	return r.DB.WithContext(ctx).Model(&Job{}).Where("id = ?", id).Updates(cols).Error
}
