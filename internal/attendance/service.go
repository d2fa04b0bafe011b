package attendance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"attendance-backend/internal/directory"
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

type Options struct {
	Location *time.Location
	// true の時だけ ScanRequest.Timestamp を使う
	AllowTimestampOverride bool
}

// ===== Service本体 =====

type Service struct {
	store    *Store
	engine   *Engine
	dir      *directory.Holder
	clock    Clock
	loc      *time.Location
	override bool
}

func NewService(store *Store, dir *directory.Holder, opt Options) *Service {
	loc := opt.Location
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		store:    store,
		engine:   NewEngine(store, loc),
		dir:      dir,
		clock:    realClock{},
		loc:      loc,
		override: opt.AllowTimestampOverride,
	}
}

func (s *Service) Location() *time.Location { return s.loc }

// POST /mark_attendance
// 返り値の ScanResponse はエラー時も画面表示用に埋めて返す。
func (s *Service) Scan(ctx context.Context, in ScanRequest) (ScanResponse, error) {
	id := in.ID()
	if id == "" {
		return ScanResponse{Status: StatusError, Message: "grc_id is required"}, ErrInvalid("grc_id is required")
	}

	now := s.clock.Now()
	if in.Timestamp != nil && s.override {
		now = *in.Timestamp
	}

	who, err := s.dir.Resolve(id)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return ScanResponse{
				Status:  StatusNotFound,
				Message: fmt.Sprintf("Error: GRC_ID '%s' not found in the student list.", id),
				Name:    "Unknown",
				GRCID:   id,
			}, fmt.Errorf("%w: %s", ErrIdentityNotFound, id)
		}
		return ScanResponse{Status: StatusError, Message: err.Error(), GRCID: id}, err
	}

	res, err := s.engine.Toggle(ctx, who, now)
	if err != nil {
		resp := ScanResponse{Name: who.Name, GRCID: id}
		switch {
		case errors.Is(err, ErrConcurrentScanConflict):
			log.Printf("[WARN] scan %s: %v", id, err)
			resp.Status = StatusConflict
			resp.Message = fmt.Sprintf("%s, your scan collided with another scan. Please scan again.", who.Name)
		default:
			log.Printf("[ERROR] scan %s: %v", id, err)
			resp.Status = StatusError
			resp.Message = "Server error: status unknown, scanning again is safe."
		}
		return resp, err
	}

	at := res.At.In(s.loc)
	resp := ScanResponse{
		Status:        res.Kind.String(),
		Name:          who.Name,
		GRCID:         id,
		Timestamp:     at.Format(DisplayLayout),
		EffectiveTime: &at,
		SessionULID:   res.Record.SessionULID,
	}
	if res.Kind == CheckIn {
		resp.Message = fmt.Sprintf("Welcome, %s! You are CHECKED IN.", who.Name)
	} else {
		resp.Message = fmt.Sprintf("Goodbye, %s! You are CHECKED OUT.", who.Name)
	}
	return resp, nil
}

// GET /attendances
func (s *Service) List(ctx context.Context, q ListQuery) ([]SessionResponse, int64, error) {
	if q.Sort == "" {
		q.Sort = DefaultSort
	}
	if q.Limit <= 0 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	for _, p := range []*string{q.On, q.From, q.To} {
		if p == nil || *p == "" {
			continue
		}
		n, err := s.normalizeDate(*p)
		if err != nil {
			return nil, 0, ErrInvalid("dates must be YYYY-MM-DD or 'today'")
		}
		*p = n
	}

	rows, total, err := s.store.List(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	out := make([]SessionResponse, 0, len(rows))
	for i := 0; i < len(rows); i++ {
		out = append(out, rows[i].toDTO(s.loc))
	}
	return out, total, nil
}

// GET /attendances/open?user_id=&on=
// 参照だけ。重複 open の stale 化はスキャンと起動時の掃除に任せる。
func (s *Service) OpenSession(ctx context.Context, userID, on string) (SessionResponse, error) {
	if userID == "" {
		return SessionResponse{}, ErrInvalid("user_id is required")
	}
	if on == "" {
		on = "today"
	}
	date, err := s.normalizeDate(on)
	if err != nil {
		return SessionResponse{}, ErrInvalid("on must be YYYY-MM-DD or 'today'")
	}
	rec, err := s.store.PeekOpenSession(ctx, userID, date)
	if err != nil {
		return SessionResponse{}, err
	}
	if rec == nil {
		return SessionResponse{}, ErrNotFound("no open session")
	}
	return rec.toDTO(s.loc), nil
}

// GET /sessions/:session_ulid
func (s *Service) Get(ctx context.Context, ulid string) (SessionResponse, error) {
	if ulid == "" {
		return SessionResponse{}, ErrInvalid("session_ulid is required")
	}
	rec, err := s.store.GetByULID(ctx, ulid)
	if err != nil {
		return SessionResponse{}, err
	}
	return rec.toDTO(s.loc), nil
}

// ListAll はレポート用の全件スナップショット（台帳の追記順）。
func (s *Service) ListAll(ctx context.Context) ([]SessionRecord, error) {
	return s.store.ListAll(ctx)
}

func (s *Service) Student(id string) (directory.Entry, error) {
	e, err := s.dir.Resolve(id)
	if err != nil {
		return directory.Entry{}, ErrNotFound("student not found")
	}
	return e, nil
}

// ExportLog は台帳を旧 attendance_log.csv 形式で書き出す。
func (s *Service) ExportLog(ctx context.Context, w io.Writer) error {
	recs, err := s.store.ListAll(ctx)
	if err != nil {
		return err
	}
	return WriteLog(w, recs, s.loc)
}

// ImportLog は旧 attendance_log.csv を取り込み、重複 open を stale に整理する。
func (s *Service) ImportLog(ctx context.Context, r io.Reader) (ImportResult, error) {
	recs, err := ReadLog(r, s.loc, s.engine.ids)
	if err != nil {
		return ImportResult{}, err
	}
	n, skipped, err := s.store.ImportRecords(ctx, recs)
	if err != nil {
		return ImportResult{}, err
	}
	stale, err := s.store.SweepStaleOpens(ctx)
	if err != nil {
		return ImportResult{Imported: n, Skipped: skipped}, err
	}
	log.Printf("[INFO] imported %d legacy records (%d skipped, %d stale opens)", n, skipped, stale)
	return ImportResult{Imported: n, Skipped: skipped, StaleMarked: stale}, nil
}

func (s *Service) normalizeDate(v string) (string, error) {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "today" {
		return s.clock.Now().In(s.loc).Format(DateLayout), nil
	}
	if _, err := time.Parse(DateLayout, v); err != nil {
		return "", err
	}
	return v, nil
}
