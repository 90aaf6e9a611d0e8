package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"questlog/internal/logging"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Worker struct {
	ID           string
	Repo         *Repo
	DB           *gorm.DB
	Log          *zap.Logger
	PollInterval time.Duration
}

type simpleTodo struct {
	ID        uint64     `gorm:"column:id"`
	UserID    uint64     `gorm:"column:user_id"`
	Completed bool       `gorm:"column:completed"`
	Expired   bool       `gorm:"column:expired"`
	ExpiresAt *time.Time `gorm:"column:expires_at"`
}

func (simpleTodo) TableName() string { return "simple_todos" }

func (w *Worker) Run(ctx context.Context) {
	interval := w.PollInterval
	if interval <= 0 {
		interval = 800 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				w.log().Warn("worker claim error", zap.Error(err))
			}
		}
	}
}

// RunOnce claims and handles at most one due job. It reports whether a job
// was handled.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.Repo.Claim(ctx, w.ID)
	if err != nil || job == nil {
		return false, err
	}
	w.handle(ctx, job)
	return true, nil
}

func (w *Worker) handle(ctx context.Context, job *Job) {
	switch job.Type {
	case TypeTodoExpire:
		w.handleTodoExpire(ctx, job)
	default:
		_ = w.Repo.MarkFailed(ctx, job.ID, "unknown job type")
	}
}

func (w *Worker) handleTodoExpire(ctx context.Context, job *Job) {
	type payload struct {
		TodoID uint64 `json:"todo_id"`
	}
	var p payload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		_ = w.Repo.MarkFailed(ctx, job.ID, "bad payload")
		return
	}

	var todo simpleTodo
	err := w.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", p.TodoID, job.UserID).
		First(&todo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		_ = w.Repo.MarkDone(ctx, job.ID)
		return
	}
	if err != nil {
		w.retry(ctx, job, "db read error")
		return
	}

	if todo.Completed || todo.Expired {
		_ = w.Repo.MarkDone(ctx, job.ID)
		return
	}
	if todo.ExpiresAt != nil && todo.ExpiresAt.After(time.Now()) {
		_ = w.Repo.RetryLater(ctx, job.ID, job.Attempts, *todo.ExpiresAt, "not yet expired")
		return
	}

	// completed=false guard: a completion racing this job wins
	if err := w.DB.WithContext(ctx).Model(&simpleTodo{}).
		Where("id = ? AND completed = ?", todo.ID, false).
		Update("expired", true).Error; err != nil {
		w.retry(ctx, job, "db write error")
		return
	}
	w.log().Info("todo expired", zap.Uint64("user_id", job.UserID), zap.Uint64("todo_id", todo.ID))
	_ = w.Repo.MarkDone(ctx, job.ID)
}

func (w *Worker) retry(ctx context.Context, job *Job, errMsg string) {
	attempts := job.Attempts + 1
	if attempts >= job.MaxAttempts {
		_ = w.Repo.MarkFailed(ctx, job.ID, errMsg)
		return
	}

	sec := math.Min(math.Pow(2, float64(attempts)), 600)
	next := time.Now().Add(time.Duration(sec) * time.Second)

	_ = w.Repo.RetryLater(ctx, job.ID, attempts, next, errMsg)
}

func (w *Worker) log() *zap.Logger { return logging.OrNop(w.Log) }
