package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := OpenMemory(context.Background(), "dbtest_"+t.Name())
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestMigrate_CreatesSessionsAndIsIdempotent(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	// 2 回目は何もしない
	if err := Migrate(ctx, conn, DriverSQLite); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	var n int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 applied migration, got %d", n)
	}
	if _, err := conn.ExecContext(ctx, `SELECT id, session_ulid, attended_on, identifier, display_name,
group_name, in_at_ms, out_at_ms, stale, created_at_ms FROM sessions`); err != nil {
		t.Fatalf("sessions table missing columns: %v", err)
	}
}

func TestMigrate_RejectsOutBeforeIn(t *testing.T) {
	conn := openTestDB(t)
	_, err := conn.ExecContext(context.Background(), `
INSERT INTO sessions(session_ulid, attended_on, identifier, display_name, in_at_ms, out_at_ms, created_at_ms)
VALUES ('u1', '2026-01-01', '042', 'A', 2000, 1000, 0)`)
	if err == nil {
		t.Fatal("expected CHECK constraint failure")
	}
}

func TestLoadMigrations_BothDialects(t *testing.T) {
	for _, d := range []string{DriverSQLite, DriverMySQL} {
		ms, err := loadMigrations(d)
		if err != nil {
			t.Fatalf("%s: %v", d, err)
		}
		if len(ms) == 0 || ms[0].version != 1 {
			t.Errorf("%s: unexpected migrations %+v", d, ms)
		}
	}
}

func TestParseVersion(t *testing.T) {
	if v, err := parseVersion("0012_add.sql"); err != nil || v != 12 {
		t.Errorf("expected 12, got %d (%v)", v, err)
	}
	if _, err := parseVersion("init.sql"); err == nil {
		t.Error("expected error for filename without version")
	}
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := RunInTx(ctx, conn, nil, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO sessions(session_ulid, attended_on, identifier, display_name, in_at_ms, created_at_ms)
VALUES ('u1', '2026-01-01', '042', 'A', 1000, 0)`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var n int
	if err := ReadOnly(ctx, conn, DriverSQLite, func(ctx context.Context, tx DBTX) error {
		return tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n)
	}); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("expected rollback, found %d rows", n)
	}
}

func TestRunInTx_RollsBackOnPanic(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected the panic to propagate")
			}
		}()
		_ = RunInTx(ctx, conn, nil, func(ctx context.Context, tx DBTX) error {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO sessions(session_ulid, attended_on, identifier, display_name, in_at_ms, created_at_ms)
VALUES ('u1', '2026-01-01', '042', 'A', 1000, 0)`); err != nil {
				return err
			}
			panic("boom")
		})
	}()

	var n int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("expected rollback, found %d rows", n)
	}
}

func TestSnapshotOptions(t *testing.T) {
	if snapshotOptions(DriverSQLite) != nil {
		t.Error("sqlite must use default tx options")
	}
	o := snapshotOptions(DriverMySQL)
	if o == nil || !o.ReadOnly || o.Isolation != sql.LevelRepeatableRead {
		t.Errorf("unexpected mysql options %+v", o)
	}
}

func TestWorker_SerializesJobs(t *testing.T) {
	conn := openTestDB(t)
	w := NewWorker(conn)
	t.Cleanup(w.Close)

	var (
		mu      sync.Mutex
		running int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := w.Do(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
				mu.Lock()
				running++
				if running > maxSeen {
					maxSeen = running
				}
				mu.Unlock()
				time.Sleep(2 * time.Millisecond)
				mu.Lock()
				running--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("Do: %v", err)
			}
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Errorf("expected jobs to run one at a time, saw %d concurrent", maxSeen)
	}
}

func TestWorker_SkipsJobWhoseContextExpiredInQueue(t *testing.T) {
	conn := openTestDB(t)
	w := NewWorker(conn)
	t.Cleanup(w.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		ran = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// ジョブが投入されていれば実行前に捨てられる
	if err := w.Do(context.Background(), func(ctx context.Context, tx *sql.Tx) error { return nil }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if ran {
		t.Error("cancelled job must not run")
	}
}

func TestWorker_DoAfterClose(t *testing.T) {
	conn := openTestDB(t)
	w := NewWorker(conn)
	w.Close()
	w.Close()

	err := w.Do(context.Background(), func(ctx context.Context, tx *sql.Tx) error { return nil })
	if !errors.Is(err, ErrWorkerClosed) {
		t.Fatalf("expected ErrWorkerClosed, got %v", err)
	}
}
