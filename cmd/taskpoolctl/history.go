package main

import (
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// runRecord is one row of the run-history audit trail: a local
// diagnostic log for the CLI operator, not task persistence: tasks
// are never replayed from this table, and nothing in the pool reads
// it back.
type runRecord struct {
	ID         uint `gorm:"primarykey"`
	Seq        uint64 // submission sequence number, local to this serve process
	StartedAt  time.Time
	DurationMs int64
	Outcome    string // "ok" or the task's error string
}

// openHistory opens (creating if absent) the sqlite run-history
// database at path and migrates runRecord into it.
func openHistory(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&runRecord{}); err != nil {
		return nil, err
	}
	return db, nil
}

func recordRun(db *gorm.DB, seq uint64, started time.Time, dur time.Duration, taskErr error) {
	outcome := "ok"
	if taskErr != nil {
		outcome = taskErr.Error()
	}
	rec := runRecord{
		Seq:        seq,
		StartedAt:  started,
		DurationMs: dur.Milliseconds(),
		Outcome:    outcome,
	}
	// Best-effort: a failed history write must never take down the pool
	// that produced the record it was trying to log.
	db.Create(&rec)
}
