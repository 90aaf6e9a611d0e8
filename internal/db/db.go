package db

import (
	"database/sql"
	"fmt"

	"questlog/internal/attributes"
	"questlog/internal/auth"
	"questlog/internal/character"
	"questlog/internal/family"
	"questlog/internal/goals"
	"questlog/internal/jobs"
	"questlog/internal/journal"
	"questlog/internal/ledger"
	"questlog/internal/stats"
	"questlog/internal/tags"
	"questlog/internal/todos"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens postgres through lib/pq and hands the pool to gorm.
func Connect(dsn string, maxOpen, maxIdle int) (*gorm.DB, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), Config())
	if err != nil {
		return nil, err
	}
	return gdb, nil
}

// Config is shared by every dialect so duplicate-key errors are translated
// the same way in tests and production.
func Config() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	// Tables
	if err := gdb.AutoMigrate(
		&auth.User{},
		&character.Character{},
		&goals.Goal{},
		&tags.Tag{},
		&tags.GoalTag{},
		&stats.SkillStat{},
		&family.Member{},
		&ledger.Grant{},
		&journal.Journal{},
		&attributes.UserAttribute{},
		&todos.SimpleTodo{},
		&jobs.Job{},
	); err != nil {
		return err
	}

	// Helpful indexes
	stmts := []string{
		`create index if not exists idx_grants_user_target on experience_grants(user_id, target_type, target_id);`,
		`create index if not exists idx_journals_user_status on journals(user_id, status);`,
		`create index if not exists idx_todos_open on simple_todos(user_id, completed, expires_at);`,
		`create index if not exists idx_jobs_due on jobs(status, run_at);`,
		`create index if not exists idx_jobs_lock on jobs(status, locked_at);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
