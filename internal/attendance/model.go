package attendance

import (
	"database/sql"
	"time"
)

// DB行に対応（スキャン用）
type sessionRow struct {
	ID          uint64
	SessionULID string
	AttendedOn  string // "YYYY-MM-DD"
	Identifier  string
	DisplayName string
	GroupName   string
	InAtMs      int64
	OutAtMs     sql.NullInt64
	Stale       bool
}

// SessionRecord は 1 回分の入室〜退室。OutAt が nil の間は「在室中（open）」。
// DisplayName / Group は入室時点の名簿の写しで、後から引き直さない。
type SessionRecord struct {
	ID          uint64
	SessionULID string
	Date        string
	Identifier  string
	DisplayName string
	Group       string
	InAt        time.Time
	OutAt       *time.Time
	// 同じキーに open が複数あったときの古い方。自動で閉じない。
	Stale bool
}

func (r SessionRecord) Open() bool { return r.OutAt == nil }

func (r sessionRow) toModel() SessionRecord {
	rec := SessionRecord{
		ID:          r.ID,
		SessionULID: r.SessionULID,
		Date:        r.AttendedOn,
		Identifier:  r.Identifier,
		DisplayName: r.DisplayName,
		Group:       r.GroupName,
		InAt:        time.UnixMilli(r.InAtMs).UTC(),
		Stale:       r.Stale,
	}
	if r.OutAtMs.Valid {
		t := time.UnixMilli(r.OutAtMs.Int64).UTC()
		rec.OutAt = &t
	}
	return rec
}

func (r SessionRecord) toDTO(loc *time.Location) SessionResponse {
	out := SessionResponse{
		SessionULID: r.SessionULID,
		Date:        r.Date,
		Identifier:  r.Identifier,
		DisplayName: r.DisplayName,
		Group:       r.Group,
		InAt:        r.InAt.In(loc),
		InTime:      r.InAt.In(loc).Format(TimeLayout),
		Open:        r.Open(),
		Stale:       r.Stale,
	}
	if r.OutAt != nil {
		t := r.OutAt.In(loc)
		out.OutAt = &t
		out.OutTime = t.Format(TimeLayout)
	}
	return out
}
