package attendance

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	dbpkg "attendance-backend/internal/platform/db"
)

// Ledger は出欠台帳。トグル判定（Engine）はこのインタフェースだけを見る。
type Ledger interface {
	FindOpenSession(ctx context.Context, identifier, date string) (*SessionRecord, error)
	AppendCheckIn(ctx context.Context, rec SessionRecord) (SessionRecord, error)
	CloseSession(ctx context.Context, id uint64, outAt time.Time) (SessionRecord, error)
	ListAll(ctx context.Context) ([]SessionRecord, error)
}

const sessionCols = `id, session_ulid, attended_on, identifier, display_name, group_name, in_at_ms, out_at_ms, stale`

// Store は SQL（sqlite / mysql）上の Ledger 実装。
// 書き込みは Worker で直列化し、1 操作 = 1 トランザクション。
type Store struct {
	db     *sql.DB
	writer *dbpkg.Worker
	driver string
	now    func() time.Time
}

func NewStore(db *sql.DB, writer *dbpkg.Worker, driver string) *Store {
	return &Store{db: db, writer: writer, driver: driver, now: time.Now}
}

var _ Ledger = (*Store)(nil)

func scanSession(sc interface{ Scan(...any) error }) (SessionRecord, error) {
	var r sessionRow
	if err := sc.Scan(&r.ID, &r.SessionULID, &r.AttendedOn, &r.Identifier, &r.DisplayName,
		&r.GroupName, &r.InAtMs, &r.OutAtMs, &r.Stale); err != nil {
		return SessionRecord{}, err
	}
	return r.toModel(), nil
}

// FindOpenSession: (identifier, date) の open を 1 件返す。無ければ nil。
// 複数ある場合は in_at が最新（同時刻なら後から入った方）を採り、残りは stale に落とす。
// スキャンの判定用。画面の参照には書き込みをしない PeekOpenSession を使う。
func (s *Store) FindOpenSession(ctx context.Context, identifier, date string) (*SessionRecord, error) {
	opens, err := s.openSessions(ctx, identifier, date)
	if err != nil || len(opens) == 0 {
		return nil, err
	}

	cur := opens[0]
	if len(opens) > 1 {
		ids := make([]uint64, 0, len(opens)-1)
		for _, r := range opens[1:] {
			ids = append(ids, r.ID)
		}
		log.Printf("[WARN] %d open sessions for %s on %s: keeping id=%d, marking %v stale",
			len(opens), identifier, date, cur.ID, ids)
		if _, err := s.markStale(ctx, ids); err != nil {
			// 選択は決定的なので続行する
			log.Printf("[ERROR] mark stale %v: %v", ids, err)
		}
	}
	return &cur, nil
}

// PeekOpenSession は FindOpenSession と同じ 1 件を返すが、stale の書き込みはしない。
func (s *Store) PeekOpenSession(ctx context.Context, identifier, date string) (*SessionRecord, error) {
	opens, err := s.openSessions(ctx, identifier, date)
	if err != nil || len(opens) == 0 {
		return nil, err
	}
	return &opens[0], nil
}

// 新しい順（in_at_ms DESC, id DESC）
func (s *Store) openSessions(ctx context.Context, identifier, date string) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT `+sessionCols+`
	FROM sessions
	WHERE identifier = ? AND attended_on = ? AND out_at_ms IS NULL AND stale = 0
	ORDER BY in_at_ms DESC, id DESC`, identifier, date)
	if err != nil {
		return nil, storageErr("find open session", err)
	}

	var opens []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, storageErr("find open session", err)
		}
		opens = append(opens, rec)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, storageErr("find open session", err)
	}
	return opens, nil
}

// AppendCheckIn: open な記録を追加する。同じキーに open があれば ErrDuplicateOpenSession。
func (s *Store) AppendCheckIn(ctx context.Context, rec SessionRecord) (SessionRecord, error) {
	if err := validateCheckIn(rec); err != nil {
		return SessionRecord{}, err
	}

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `
	SELECT 1 FROM sessions
	WHERE identifier = ? AND attended_on = ? AND out_at_ms IS NULL AND stale = 0
	LIMIT 1`, rec.Identifier, rec.Date).Scan(&one)
		if err == nil {
			return ErrDuplicateOpenSession
		}
		if err != sql.ErrNoRows {
			return err
		}

		id, err := insertSession(ctx, tx, rec, s.now())
		if err != nil {
			return err
		}
		rec.ID = id
		return nil
	})
	if err != nil {
		return SessionRecord{}, storageErr("append check-in", err)
	}
	rec.InAt = time.UnixMilli(rec.InAt.UnixMilli()).UTC()
	return rec, nil
}

// CloseSession: 指定の open な記録に out_at を入れる。
// 既に閉じている / stale / 存在しない場合は ErrRecordNotOpen。
func (s *Store) CloseSession(ctx context.Context, id uint64, outAt time.Time) (SessionRecord, error) {
	var out SessionRecord
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rec, err := scanSession(tx.QueryRowContext(ctx,
			`SELECT `+sessionCols+` FROM sessions WHERE id = ?`, id))
		if err == sql.ErrNoRows {
			return ErrRecordNotOpen
		}
		if err != nil {
			return err
		}
		if !rec.Open() || rec.Stale {
			return ErrRecordNotOpen
		}
		outMs := outAt.UnixMilli()
		if outMs < rec.InAt.UnixMilli() {
			return ErrInvalid("out time must not be before in time")
		}

		res, err := tx.ExecContext(ctx, `
	UPDATE sessions SET out_at_ms = ?
	WHERE id = ? AND out_at_ms IS NULL AND stale = 0`, outMs, id)
		if err != nil {
			return err
		}
		if aff, _ := res.RowsAffected(); aff != 1 {
			return ErrRecordNotOpen
		}

		t := time.UnixMilli(outMs).UTC()
		rec.OutAt = &t
		out = rec
		return nil
	})
	if err != nil {
		return SessionRecord{}, storageErr("close session", err)
	}
	return out, nil
}

// ListAll: 台帳の全件を追記順で。読み取り Tx 1 本で取るので書きかけは見えない。
func (s *Store) ListAll(ctx context.Context) ([]SessionRecord, error) {
	var out []SessionRecord
	err := dbpkg.ReadOnly(ctx, s.db, s.driver, func(ctx context.Context, tx dbpkg.DBTX) error {
		rows, err := tx.QueryContext(ctx, `SELECT `+sessionCols+` FROM sessions ORDER BY id ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			rec, err := scanSession(rows)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, storageErr("list all", err)
	}
	return out, nil
}

func (s *Store) GetByULID(ctx context.Context, ulid string) (SessionRecord, error) {
	rec, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionCols+` FROM sessions WHERE session_ulid = ?`, ulid))
	if err == sql.ErrNoRows {
		return SessionRecord{}, ErrNotFound("session not found")
	}
	if err != nil {
		return SessionRecord{}, storageErr("get session", err)
	}
	return rec, nil
}

// List: 条件に応じて動的WHERE + ORDER + LIMIT/OFFSET
func (s *Store) List(ctx context.Context, q ListQuery) ([]SessionRecord, int64, error) {
	var (
		buf    bytes.Buffer
		args   []any
		wheres []string
	)

	buf.WriteString(`SELECT ` + sessionCols + ` FROM sessions`)
	if q.Identifier != nil && *q.Identifier != "" {
		wheres = append(wheres, "identifier = ?")
		args = append(args, *q.Identifier)
	}
	if q.On != nil && *q.On != "" {
		wheres = append(wheres, "attended_on = ?")
		args = append(args, *q.On)
	} else {
		if q.From != nil && *q.From != "" {
			wheres = append(wheres, "attended_on >= ?")
			args = append(args, *q.From)
		}
		if q.To != nil && *q.To != "" {
			wheres = append(wheres, "attended_on <= ?")
			args = append(args, *q.To)
		}
	}
	if q.OpenOnly {
		wheres = append(wheres, "out_at_ms IS NULL AND stale = 0")
	}
	if len(wheres) > 0 {
		buf.WriteString(" WHERE " + strings.Join(wheres, " AND "))
	}

	switch q.Sort {
	case SortInAtAsc:
		buf.WriteString(" ORDER BY in_at_ms ASC, id ASC")
	case SortAttendedOnDesc:
		buf.WriteString(" ORDER BY attended_on DESC, in_at_ms DESC, id DESC")
	case SortAttendedOnAsc:
		buf.WriteString(" ORDER BY attended_on ASC, in_at_ms ASC, id ASC")
	default:
		buf.WriteString(" ORDER BY in_at_ms DESC, id DESC")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	buf.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	rows, err := s.db.QueryContext(ctx, buf.String(), args...)
	if err != nil {
		return nil, 0, storageErr("list sessions", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, 0, storageErr("list sessions", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storageErr("list sessions", err)
	}

	// COUNT（ORDER BY より前までを再構築）
	var cntBuf bytes.Buffer
	cntBuf.WriteString("SELECT COUNT(*) FROM sessions")
	if len(wheres) > 0 {
		cntBuf.WriteString(" WHERE " + strings.Join(wheres, " AND "))
	}
	var total int64
	if err := s.db.QueryRowContext(ctx, cntBuf.String(), args...).Scan(&total); err != nil {
		return nil, 0, storageErr("count sessions", err)
	}
	return out, total, nil
}

// SweepStaleOpens: 起動時に 1 回。(identifier, date) ごとに open が複数あれば最新以外を stale にする。
func (s *Store) SweepStaleOpens(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, identifier, attended_on
	FROM sessions
	WHERE out_at_ms IS NULL AND stale = 0
	ORDER BY identifier, attended_on, in_at_ms DESC, id DESC`)
	if err != nil {
		return 0, storageErr("sweep stale opens", err)
	}

	var (
		stale   []uint64
		lastKey string
	)
	for rows.Next() {
		var (
			id         uint64
			ident, day string
		)
		if err := rows.Scan(&id, &ident, &day); err != nil {
			rows.Close()
			return 0, storageErr("sweep stale opens", err)
		}
		key := ident + "\x00" + day
		if key == lastKey {
			log.Printf("[WARN] stale open session id=%d for %s on %s", id, ident, day)
			stale = append(stale, id)
			continue
		}
		lastKey = key
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return 0, storageErr("sweep stale opens", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}
	return s.markStale(ctx, stale)
}

// ImportRecords: 旧 CSV ログの取り込み。重複 open の整理は SweepStaleOpens に任せる。
// 同じ (identifier, date, in_at) の行が既にあれば取り込まない（同じファイルの再取り込み対策）。
// 戻り値は (取り込んだ件数, 飛ばした件数)。
func (s *Store) ImportRecords(ctx context.Context, recs []SessionRecord) (int, int, error) {
	for i := range recs {
		if err := validateRecord(recs[i]); err != nil {
			return 0, 0, ErrInvalid(fmt.Sprintf("record %d: %s", i+1, err.Error()))
		}
	}
	now := s.now()
	var imported, skipped int
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		imported, skipped = 0, 0
		for _, rec := range recs {
			var one int
			err := tx.QueryRowContext(ctx, `
	SELECT 1 FROM sessions
	WHERE identifier = ? AND attended_on = ? AND in_at_ms = ?
	LIMIT 1`, rec.Identifier, rec.Date, rec.InAt.UnixMilli()).Scan(&one)
			if err == nil {
				skipped++
				continue
			}
			if err != sql.ErrNoRows {
				return err
			}
			if _, err := insertSession(ctx, tx, rec, now); err != nil {
				return err
			}
			imported++
		}
		return nil
	})
	if err != nil {
		return 0, 0, storageErr("import records", err)
	}
	if skipped > 0 {
		log.Printf("[WARN] import: %d row(s) already in the ledger, skipped", skipped)
	}
	return imported, skipped, nil
}

func (s *Store) markStale(ctx context.Context, ids []uint64) (int, error) {
	var n int
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, id := range ids {
			res, err := tx.ExecContext(ctx,
				`UPDATE sessions SET stale = 1 WHERE id = ? AND out_at_ms IS NULL`, id)
			if err != nil {
				return err
			}
			aff, _ := res.RowsAffected()
			n += int(aff)
		}
		return nil
	})
	if err != nil {
		return 0, storageErr("mark stale", err)
	}
	return n, nil
}

func insertSession(ctx context.Context, tx *sql.Tx, rec SessionRecord, now time.Time) (uint64, error) {
	var outMs any
	if rec.OutAt != nil {
		outMs = rec.OutAt.UnixMilli()
	}
	res, err := tx.ExecContext(ctx, `
	INSERT INTO sessions
	(session_ulid, attended_on, identifier, display_name, group_name, in_at_ms, out_at_ms, stale, created_at_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		rec.SessionULID, rec.Date, rec.Identifier, rec.DisplayName, rec.Group,
		rec.InAt.UnixMilli(), outMs, now.UTC().UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func validateCheckIn(rec SessionRecord) error {
	if rec.OutAt != nil {
		return ErrInvalid("check-in record must be open")
	}
	if err := validateRecord(rec); err != nil {
		return ErrInvalid(err.Error())
	}
	return nil
}

func validateRecord(rec SessionRecord) error {
	switch {
	case rec.SessionULID == "":
		return fmt.Errorf("session_ulid is required")
	case rec.Identifier == "":
		return fmt.Errorf("identifier is required")
	case rec.Date == "":
		return fmt.Errorf("date is required")
	case rec.InAt.IsZero():
		return fmt.Errorf("in time is required")
	}
	if _, err := time.Parse(DateLayout, rec.Date); err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD")
	}
	if rec.OutAt != nil && rec.OutAt.UnixMilli() < rec.InAt.UnixMilli() {
		return fmt.Errorf("out time must not be before in time")
	}
	return nil
}
