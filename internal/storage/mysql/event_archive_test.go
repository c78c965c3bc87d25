package mysql

import (
	"context"
	"database/sql/driver"
	"errors"
	"io/fs"
	"strings"
	"testing"
	"time"

	xerrors "SwarmFlow/internal/errors"
	"SwarmFlow/internal/event"
)

func TestEventArchiveDeliver(t *testing.T) {
	t.Parallel()

	ops := []mockOperation{execOp(insertEventSQL, mockResult{rowsAffected: 1})}
	db, drv := newMockDB(t, ops)
	defer drv.assertConsumed(t)
	defer db.Close()

	archive := &EventArchive{db: db}
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ev := event.Event{ID: "ev-1", Type: event.TaskCreated, SwarmID: "swarm-1", Data: map[string]any{"task_id": "t-1"}, Timestamp: ts}
	if err := archive.Deliver(context.Background(), ev); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}

	args := drv.ops[0].args
	if len(args) != 5 {
		t.Fatalf("unexpected args: %v", args)
	}
	if args[0] != "ev-1" || args[1] != "swarm-1" || args[2] != "task.created" {
		t.Fatalf("unexpected identity args: %v", args[:3])
	}
	if payload, _ := args[3].(string); !strings.Contains(payload, `"task_id":"t-1"`) {
		t.Fatalf("unexpected payload: %v", args[3])
	}
	if args[4] != ts.UnixMilli() {
		t.Fatalf("unexpected timestamp: %v", args[4])
	}
}

func TestEventArchiveDeliverFailure(t *testing.T) {
	t.Parallel()

	db, drv := newMockDB(t, []mockOperation{failingExecOp(insertEventSQL, errors.New("table is read only"))})
	defer drv.assertConsumed(t)
	defer db.Close()

	archive := &EventArchive{db: db}
	err := archive.Deliver(context.Background(), event.Event{ID: "ev-2", Type: event.Shutdown, Timestamp: time.Now()})
	if !xerrors.HasCode(err, xerrors.CodeStorageFailure) {
		t.Fatalf("expected storage failure, got %v", err)
	}
	if drv.ops[0].args[3] != nil {
		t.Fatalf("events without data must store a NULL payload, got %v", drv.ops[0].args[3])
	}
}

func TestEventArchiveRecent(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ops := []mockOperation{
		queryOp(recentEventsSQL, mockRowsData{
			columns: []string{"id", "swarm_id", "event_type", "payload", "occurred_at"},
			values: [][]driver.Value{
				{"ev-2", "swarm-1", "task.assigned", `{"agent_id":"a-1"}`, ts.Add(time.Second).UnixMilli()},
				{"ev-1", "swarm-1", "shutdown", nil, ts.UnixMilli()},
			},
		}),
	}
	db, drv := newMockDB(t, ops)
	defer drv.assertConsumed(t)
	defer db.Close()

	events, err := (&EventArchive{db: db}).Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != event.TaskAssigned || events[0].Data["agent_id"] != "a-1" {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].Data != nil || !events[1].Timestamp.Equal(ts) {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
	if drv.ops[0].args[0] != int64(100) {
		t.Fatalf("expected default limit 100, got %v", drv.ops[0].args[0])
	}
}

func TestEventArchiveRunMigrations(t *testing.T) {
	t.Parallel()

	ops := []mockOperation{
		execOp(createSchemaMigrationsSQL, mockResult{}),
		queryOp(selectAppliedSQL, mockRowsData{columns: []string{"version"}}),
		beginOp(),
		execOp(readMigrationStatement(t), mockResult{}),
		execOp(insertAppliedSQL, mockResult{rowsAffected: 1}),
		commitOp(),
	}
	db, drv := newMockDB(t, ops)
	defer drv.assertConsumed(t)
	defer db.Close()

	if err := (&EventArchive{db: db}).runMigrations(context.Background()); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
	if drv.ops[4].args[0] != "0001" {
		t.Fatalf("unexpected migration version: %v", drv.ops[4].args[0])
	}
}

func TestEventArchiveSkipsAppliedMigrations(t *testing.T) {
	t.Parallel()

	ops := []mockOperation{
		execOp(createSchemaMigrationsSQL, mockResult{}),
		queryOp(selectAppliedSQL, mockRowsData{
			columns: []string{"version"},
			values:  [][]driver.Value{{"0001"}},
		}),
	}
	db, drv := newMockDB(t, ops)
	defer drv.assertConsumed(t)
	defer db.Close()

	if err := (&EventArchive{db: db}).runMigrations(context.Background()); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
}

func TestEventArchiveMigrationRollback(t *testing.T) {
	t.Parallel()

	ops := []mockOperation{
		execOp(createSchemaMigrationsSQL, mockResult{}),
		queryOp(selectAppliedSQL, mockRowsData{columns: []string{"version"}}),
		beginOp(),
		failingExecOp(readMigrationStatement(t), errors.New("syntax error")),
		rollbackOp(),
	}
	db, drv := newMockDB(t, ops)
	defer drv.assertConsumed(t)
	defer db.Close()

	err := (&EventArchive{db: db}).runMigrations(context.Background())
	if !xerrors.HasCode(err, xerrors.CodeStorageFailure) || xerrors.MetadataOf(err, "migration") != "0001_create_events.sql" {
		t.Fatalf("unexpected migration error: %v", err)
	}
}

func TestNormalizeDSN(t *testing.T) {
	dsn, err := normalizeDSN("swarm:secret@tcp(localhost:3306)/swarmflow")
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Fatalf("expected parseTime in %q", dsn)
	}
	if _, err := normalizeDSN("  "); !xerrors.HasCode(err, xerrors.CodeValidation) {
		t.Fatalf("expected validation error for empty dsn, got %v", err)
	}
	if _, err := normalizeDSN("tcp(localhost"); !xerrors.HasCode(err, xerrors.CodeValidation) {
		t.Fatalf("expected validation error for malformed dsn, got %v", err)
	}
}

func readMigrationStatement(t *testing.T) string {
	t.Helper()
	content, err := fs.ReadFile(embeddedMigrations, "0001_create_events.sql")
	if err != nil {
		t.Fatalf("failed to read migration: %v", err)
	}
	statements := splitSQLStatements(string(content))
	if len(statements) == 0 {
		t.Fatalf("no statements in migration")
	}
	return statements[0]
}
