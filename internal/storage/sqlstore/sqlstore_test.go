package sqlstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"

	"Empleaido-Core/deploy/migrations"
	"Empleaido-Core/internal/activation"
	"Empleaido-Core/internal/audit"
	"Empleaido-Core/internal/execution"
	"Empleaido-Core/internal/life"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

const (
	insertActivationSQL = `INSERT INTO activations (` + activationColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	selectActivationSQL = `SELECT ` + activationColumns + ` FROM activations WHERE activation_id = ?`
	updateActivationSQL = `UPDATE activations SET current_phase = ?, messages_in_phase = ?, completed_at = ?, preferences = ?, bootstrap_cleared = ?, version = ?, updated_at = ? WHERE activation_id = ? AND version = ?`
	selectVersionSQL    = `SELECT version FROM activations WHERE activation_id = ?`
)

func activationRow(version int64) mockRowsData {
	return mockRowsData{
		columns: []string{"activation_id", "user_id", "agent_id", "current_phase", "messages_in_phase", "started_at", "completed_at", "preferences", "bootstrap_cleared", "version", "updated_at"},
		values: [][]driver.Value{{
			"act-1", "user-1", "sera", "context_learning", int64(2), fixedNow.UnixMilli(), nil,
			`{"formality":"casual","confirmed":["formality"]}`, int64(0), version, fixedNow.UnixMilli(),
		}},
	}
}

func TestActivationCreate(t *testing.T) {
	t.Parallel()

	db, drv := newMockDB(t, DialectMySQL, []mockOperation{
		execOp(insertActivationSQL, mockResult{rowsAffected: 1}),
		execErrOp(insertActivationSQL, &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}),
	})
	defer drv.assertConsumed(t)
	store := db.Activations()

	state, err := store.Create(context.Background(), "user-1", "sera")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if state.Version != 1 || state.CurrentPhase != activation.PhaseAwakening || state.ActivationID == "" {
		t.Fatalf("unexpected state: %+v", state)
	}
	if _, err := store.Create(context.Background(), "user-1", "sera"); !errors.Is(err, activation.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestActivationGet(t *testing.T) {
	t.Parallel()

	db, drv := newMockDB(t, DialectSQLite, []mockOperation{
		queryOp(selectActivationSQL, activationRow(4)),
		queryOp(selectActivationSQL, mockRowsData{columns: activationRow(0).columns}),
	})
	defer drv.assertConsumed(t)
	store := db.Activations()

	state, err := store.Get(context.Background(), "act-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if state.CurrentPhase != activation.PhaseContextLearning || state.MessagesInPhase != 2 || state.Version != 4 {
		t.Fatalf("unexpected state: %+v", state)
	}
	if state.Preferences.Formality != "casual" || len(state.Preferences.Confirmed) != 1 || state.CompletedAt != nil {
		t.Fatalf("unexpected preferences: %+v", state.Preferences)
	}

	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, activation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestActivationSaveVersioning(t *testing.T) {
	t.Parallel()

	db, drv := newMockDB(t, DialectMySQL, []mockOperation{
		execOp(updateActivationSQL, mockResult{rowsAffected: 1}),
		execOp(updateActivationSQL, mockResult{rowsAffected: 0}),
		queryOp(selectVersionSQL, mockRowsData{columns: []string{"version"}, values: [][]driver.Value{{int64(9)}}}),
		execOp(updateActivationSQL, mockResult{rowsAffected: 0}),
		queryOp(selectVersionSQL, mockRowsData{columns: []string{"version"}}),
	})
	defer drv.assertConsumed(t)
	db.now = func() time.Time { return fixedNow }
	store := db.Activations()

	state := activation.New("user-1", "sera", fixedNow)
	if err := store.Save(context.Background(), state); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if state.Version != 2 {
		t.Fatalf("version should be incremented, got %d", state.Version)
	}
	if err := store.Save(context.Background(), state); !errors.Is(err, activation.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if state.Version != 2 {
		t.Fatalf("conflicting save must not touch the version")
	}
	if err := store.Save(context.Background(), state); !errors.Is(err, activation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAuditAppendAndList(t *testing.T) {
	t.Parallel()

	columns := []string{"id", "ts", "kind", "activation_id", "agent_id", "user_id", "skill", "input", "verdict", "reason_code", "reason", "outcome", "detail"}
	db, drv := newMockDB(t, DialectSQLite, []mockOperation{
		execOp(`INSERT INTO audit_events (`+auditColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, mockResult{rowsAffected: 1}),
		queryOp(`SELECT `+auditColumns+` FROM audit_events WHERE activation_id = ? AND kind = ? ORDER BY ts DESC, id DESC LIMIT ?`, mockRowsData{
			columns: columns,
			values: [][]driver.Value{{
				"evt-1", fixedNow.UnixMilli(), "validation", "act-1", "sera", "user-1", "tax_planning",
				`{"year":2024}`, "deny", "requires_unlock", "Skill \"tax_planning\" requires upgrade to unlock", "", nil,
			}},
		}),
	})
	defer drv.assertConsumed(t)
	store := db.Audit()
	ctx := context.Background()

	if err := store.Append(ctx, audit.Event{Kind: audit.KindValidation, AgentID: "sera", Skill: "tax_planning", Input: map[string]any{"year": 2024}}); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	events, err := store.List(ctx, audit.Filter{ActivationID: "act-1", Kind: audit.KindValidation, Limit: 5})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(events) != 1 || events[0].ReasonCode != "requires_unlock" || !events[0].Timestamp.Equal(fixedNow) {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[0].Input["year"] != float64(2024) || events[0].Detail != "" {
		t.Fatalf("unexpected decoded fields: %+v", events[0])
	}
}

func TestBuildAuditQueryWithoutFilter(t *testing.T) {
	query, args := buildAuditQuery(audit.Filter{})
	if want := `SELECT ` + auditColumns + ` FROM audit_events ORDER BY ts DESC, id DESC LIMIT ?`; query != want {
		t.Fatalf("unexpected query: %s", query)
	}
	if len(args) != 1 || args[0] != 1000 {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestPendingResolveIsConditional(t *testing.T) {
	t.Parallel()

	const resolveSQL = `UPDATE pending_confirmations SET status = ?, resolved_at = ? WHERE id = ? AND status = ?`
	selectSQL := `SELECT ` + pendingColumns + ` FROM pending_confirmations WHERE id = ?`
	resolvedRow := mockRowsData{
		columns: []string{"id", "activation_id", "user_id", "agent_id", "skill", "input", "output", "status", "created_at", "expires_at", "resolved_at"},
		values: [][]driver.Value{{
			"conf-1", "act-1", "user-1", "sera", "calculate_itbis", nil, "ITBIS: 1800", "confirmed",
			fixedNow.UnixMilli(), fixedNow.Add(time.Hour).UnixMilli(), fixedNow.Add(time.Minute).UnixMilli(),
		}},
	}
	db, drv := newMockDB(t, DialectMySQL, []mockOperation{
		execOp(resolveSQL, mockResult{rowsAffected: 1}),
		execOp(resolveSQL, mockResult{rowsAffected: 0}),
		queryOp(selectSQL, resolvedRow),
		execOp(resolveSQL, mockResult{rowsAffected: 0}),
		queryOp(selectSQL, mockRowsData{columns: resolvedRow.columns}),
	})
	defer drv.assertConsumed(t)
	store := db.Pending()
	ctx := context.Background()

	if err := store.Resolve(ctx, "conf-1", execution.StatusConfirmed, fixedNow); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if err := store.Resolve(ctx, "conf-1", execution.StatusRejected, fixedNow); !errors.Is(err, execution.ErrConfirmationResolved) {
		t.Fatalf("expected ErrConfirmationResolved, got %v", err)
	}
	if err := store.Resolve(ctx, "missing", execution.StatusRejected, fixedNow); !errors.Is(err, execution.ErrConfirmationNotFound) {
		t.Fatalf("expected ErrConfirmationNotFound, got %v", err)
	}
}

func TestLifeApplyInsertsThenUpdates(t *testing.T) {
	t.Parallel()

	selectSQL := `SELECT level, experience, trust, energy, updated_at FROM life_stats WHERE stats_key = ? FOR UPDATE`
	columns := []string{"level", "experience", "trust", "energy", "updated_at"}
	db, drv := newMockDB(t, DialectMySQL, []mockOperation{
		beginOp(),
		queryOp(selectSQL, mockRowsData{columns: columns}),
		execOp(`INSERT INTO life_stats (stats_key, level, experience, trust, energy, updated_at) VALUES (?, ?, ?, ?, ?, ?)`, mockResult{rowsAffected: 1}),
		commitOp(),
		beginOp(),
		queryOp(selectSQL, mockRowsData{
			columns: columns,
			values:  [][]driver.Value{{int64(1), int64(20), 0.62, int64(90), fixedNow.UnixMilli()}},
		}),
		execOp(`UPDATE life_stats SET level = ?, experience = ?, trust = ?, energy = ?, updated_at = ? WHERE stats_key = ?`, mockResult{rowsAffected: 1}),
		commitOp(),
	})
	defer drv.assertConsumed(t)
	db.now = func() time.Time { return fixedNow }
	store := db.Life()
	ctx := context.Background()

	first, err := store.Apply(ctx, "act-1", life.ActivityTaskCompleted)
	if err != nil || first.Experience != 20 || first.Energy != 90 {
		t.Fatalf("unexpected first apply: %+v %v", first, err)
	}
	second, err := store.Apply(ctx, "act-1", life.ActivityTaskCompleted)
	if err != nil || second.Experience != 40 || second.Energy != 80 || second.Trust != 0.64 {
		t.Fatalf("unexpected second apply: %+v %v", second, err)
	}
}

func TestLifeGetRecoversEnergyOverTime(t *testing.T) {
	t.Parallel()

	db, drv := newMockDB(t, DialectSQLite, []mockOperation{
		queryOp(`SELECT level, experience, trust, energy, updated_at FROM life_stats WHERE stats_key = ?`, mockRowsData{
			columns: []string{"level", "experience", "trust", "energy", "updated_at"},
			values:  [][]driver.Value{{int64(2), int64(120), 0.7, int64(5), fixedNow.Add(-time.Hour).UnixMilli()}},
		}),
	})
	defer drv.assertConsumed(t)
	db.now = func() time.Time { return fixedNow }

	got, err := db.Life().Get(context.Background(), "act-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Energy != 65 || got.Experience != 120 {
		t.Fatalf("expected energy recovered to 65, got %+v", got)
	}
}

func TestRunMigrationsAppliesPending(t *testing.T) {
	t.Parallel()

	fsys, err := migrations.For("sqlite")
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	content, err := fs.ReadFile(fsys, "0003_create_pending_confirmations.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	statements := splitSQLStatements(string(content))
	if len(statements) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(statements))
	}

	db, drv := newMockDB(t, DialectSQLite, []mockOperation{
		execOp(createSchemaMigrationsSQL, mockResult{}),
		queryOp(`SELECT version FROM schema_migrations`, mockRowsData{
			columns: []string{"version"},
			values:  [][]driver.Value{{"0001"}, {"0002"}},
		}),
		beginOp(),
		execOp(statements[0], mockResult{}),
		execOp(statements[1], mockResult{}),
		execOp(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, mockResult{rowsAffected: 1}),
		commitOp(),
	})
	defer drv.assertConsumed(t)

	if err := db.runMigrations(context.Background()); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "oracle", DSN: "x"}); !errors.Is(err, ErrUnsupportedDriver) {
		t.Fatalf("expected ErrUnsupportedDriver, got %v", err)
	}
}
