package attendance

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"attendance-backend/internal/directory"
	dbpkg "attendance-backend/internal/platform/db"
)

var dbSeq atomic.Int64

// openTestStore は本番と同じスキーマのインメモリ SQLite 上に Store を作る。
func openTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()

	name := fmt.Sprintf("attendance_%s_%d",
		strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()), dbSeq.Add(1))
	conn, err := dbpkg.OpenMemory(context.Background(), name)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	w := dbpkg.NewWorker(conn)
	t.Cleanup(func() {
		w.Close()
		conn.Close()
	})
	return NewStore(conn, w, dbpkg.DriverSQLite), conn
}

func testDirectory() *directory.Holder {
	return directory.NewHolder(directory.New([]directory.Entry{
		{ID: "042", Name: "Alice", Group: "CS"},
		{ID: "007", Name: "Bond", Group: "MI6"},
		{ID: "100", Name: "Carol", Group: "EE"},
	}))
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func at(hms string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04:05", "2026-03-02 "+hms, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestService(t *testing.T) (*Service, *Store, *sql.DB) {
	t.Helper()
	st, conn := openTestStore(t)
	svc := NewService(st, testDirectory(), Options{Location: time.UTC, AllowTimestampOverride: true})
	svc.clock = fixedClock{t: at("12:00:00")}
	return svc, st, conn
}

func countOpen(t *testing.T, conn *sql.DB, ident, date string) int {
	t.Helper()
	var n int
	err := conn.QueryRowContext(context.Background(), `
SELECT COUNT(*) FROM sessions
WHERE identifier = ? AND attended_on = ? AND out_at_ms IS NULL AND stale = 0`, ident, date).Scan(&n)
	if err != nil {
		t.Fatalf("countOpen: %v", err)
	}
	return n
}

// gatedLedger は FindOpenSession の直後に全員が揃うまで待たせ、
// 「全員が同じ状態を読んでから確定しに行く」競合を決定的に再現する。
// rounds[i] は i 回目の読み取りに参加する goroutine 数。
type gatedLedger struct {
	*Store

	mu      sync.Mutex
	rounds  []int
	arrived []int
	gates   []chan struct{}
	calls   int
}

func newGatedLedger(st *Store, rounds ...int) *gatedLedger {
	g := &gatedLedger{Store: st, rounds: rounds, arrived: make([]int, len(rounds))}
	for range rounds {
		g.gates = append(g.gates, make(chan struct{}))
	}
	return g
}

func (g *gatedLedger) FindOpenSession(ctx context.Context, identifier, date string) (*SessionRecord, error) {
	rec, err := g.Store.FindOpenSession(ctx, identifier, date)

	g.mu.Lock()
	g.calls++
	round, seen := -1, 0
	for i, n := range g.rounds {
		if g.calls <= seen+n {
			round = i
			break
		}
		seen += n
	}
	var gate chan struct{}
	if round >= 0 {
		g.arrived[round]++
		gate = g.gates[round]
		if g.arrived[round] == g.rounds[round] {
			close(gate)
		}
	}
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-time.After(5 * time.Second):
		}
	}
	return rec, err
}
