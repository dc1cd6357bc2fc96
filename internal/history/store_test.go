package history_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"vidscribe/internal/history"
	"vidscribe/internal/testsupport"
)

func TestRecordAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	run := history.Run{ID: "1f0c2a7e-aaaa", URL: "https://example.com/v", StartedAt: started, OutputFormat: "txt"}
	if err := store.Record(ctx, run); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	got, err := store.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got == nil || got.Status != history.StatusRunning || !got.StartedAt.Equal(started) || got.FinishedAt != nil {
		t.Fatalf("unexpected run %+v", got)
	}

	finished := started.Add(90 * time.Second)
	run.Status = history.StatusCompleted
	run.Stage = "DONE"
	run.Language = "en"
	run.Speakers = 2
	run.Segments = 14
	run.DurationSeconds = 61.5
	run.OutputPath = "/tmp/out.txt"
	run.Tier = "medium/float16/beam5"
	run.FinishedAt = &finished
	if err := store.Record(ctx, run); err != nil {
		t.Fatalf("Record update returned error: %v", err)
	}

	got, err = store.Get(ctx, "1f0c")
	if err != nil {
		t.Fatalf("Get by prefix returned error: %v", err)
	}
	if got.Status != history.StatusCompleted || got.Speakers != 2 || got.OutputPath != "/tmp/out.txt" {
		t.Fatalf("unexpected updated run %+v", got)
	}
	if got.Elapsed() != 90*time.Second {
		t.Fatalf("unexpected elapsed %v", got.Elapsed())
	}
}

func TestGetMissingAndAmbiguous(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if got, err := store.Get(ctx, "nope"); err != nil || got != nil {
		t.Fatalf("expected nil for missing run, got %+v, %v", got, err)
	}
	for _, id := range []string{"abc-1", "abc-2"} {
		if err := store.Record(ctx, history.Run{ID: id, URL: "u"}); err != nil {
			t.Fatalf("Record returned error: %v", err)
		}
	}
	if _, err := store.Get(ctx, "abc"); err == nil {
		t.Fatal("expected ambiguous prefix error")
	}
	if got, err := store.Get(ctx, "abc-2"); err != nil || got == nil || got.ID != "abc-2" {
		t.Fatalf("exact match failed: %+v, %v", got, err)
	}
	if got, err := store.Get(ctx, "ab_"); err != nil || got != nil {
		t.Fatalf("underscore must match literally, got %+v, %v", got, err)
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		start := base.Add(time.Duration(i) * time.Minute).Add(time.Duration(i) * 100 * time.Millisecond)
		if err := store.Record(ctx, history.Run{ID: id, URL: "u", StartedAt: start}); err != nil {
			t.Fatalf("Record returned error: %v", err)
		}
	}
	runs, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Fatalf("unexpected order %+v", runs)
	}
	all, err := store.List(ctx, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("List(0) = %d runs, %v", len(all), err)
	}
}

func TestMarkInterruptedAndStats(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	ctx := context.Background()
	if err := store.Record(ctx, history.Run{ID: "live", URL: "u"}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if err := store.Record(ctx, history.Run{ID: "done", URL: "u", Status: history.StatusCompleted}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	n, err := store.MarkInterrupted(ctx)
	if err != nil || n != 1 {
		t.Fatalf("MarkInterrupted = %d, %v", n, err)
	}
	got, _ := store.Get(ctx, "live")
	if got.Status != history.StatusFailed || got.Error == "" || got.FinishedAt == nil {
		t.Fatalf("unexpected interrupted run %+v", got)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats[history.StatusFailed] != 1 || stats[history.StatusCompleted] != 1 {
		t.Fatalf("unexpected stats %v", stats)
	}
}

func TestClear(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	ctx := context.Background()
	for _, id := range []string{"x", "y"} {
		if err := store.Record(ctx, history.Run{ID: id, URL: "u"}); err != nil {
			t.Fatalf("Record returned error: %v", err)
		}
	}
	n, err := store.Clear(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Clear = %d, %v", n, err)
	}
	runs, _ := store.List(ctx, 0)
	if len(runs) != 0 {
		t.Fatalf("expected empty history, got %d", len(runs))
	}
}

func TestRecordRequiresID(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	if err := store.Record(context.Background(), history.Run{URL: "u"}); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	_ = store.Close()

	db, err := sql.Open("sqlite", cfg.HistoryPath())
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := history.Open(cfg); !errors.Is(err, history.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}
