package main

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenHistory_MigratesSchema(t *testing.T) {
	db, err := openHistory(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("openHistory: %v", err)
	}
	if !db.Migrator().HasTable(&runRecord{}) {
		t.Fatalf("openHistory did not migrate runRecord's table")
	}
}

func TestRecordRun_WritesOutcome(t *testing.T) {
	db, err := openHistory(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("openHistory: %v", err)
	}

	recordRun(db, 1, time.Now(), 5*time.Millisecond, nil)
	recordRun(db, 2, time.Now(), 10*time.Millisecond, errors.New("boom"))

	var rows []runRecord
	if err := db.Order("seq").Find(&rows).Error; err != nil {
		t.Fatalf("querying run history: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Outcome != "ok" {
		t.Errorf("rows[0].Outcome = %q, want %q", rows[0].Outcome, "ok")
	}
	if rows[1].Outcome != "boom" {
		t.Errorf("rows[1].Outcome = %q, want %q", rows[1].Outcome, "boom")
	}
	if rows[1].DurationMs != 10 {
		t.Errorf("rows[1].DurationMs = %d, want 10", rows[1].DurationMs)
	}
}
