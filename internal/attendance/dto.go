package attendance

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	SortInAtDesc       = "in_at_desc"
	SortInAtAsc        = "in_at_asc"
	SortAttendedOnDesc = "attended_on_desc"
	SortAttendedOnAsc  = "attended_on_asc"
	DefaultPageLimit   = 50
	MaxPageLimit       = 200
	DefaultSort        = SortInAtDesc
	DateLayout         = "2006-01-02"
	TimeLayout         = "15:04:05"
	DisplayLayout      = "03:04:05 PM"
)

// スキャン結果のステータス（画面表示用）
const (
	StatusCheckIn  = "Check-In"
	StatusCheckOut = "Check-Out"
	StatusNotFound = "Not Found"
	StatusConflict = "Conflict"
	StatusError    = "error"
)

// FlexString は "042" でも 42 でも受け付ける（QR の中身が数値だけのことがある）。
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// ScanRequest: POST /mark_attendance
type ScanRequest struct {
	GRCID      FlexString `json:"grc_id"`
	Identifier FlexString `json:"identifier"`
	// テスト用の時刻上書き（allow_timestamp_override 有効時のみ）
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

func (r ScanRequest) ID() string {
	if id := strings.TrimSpace(string(r.Identifier)); id != "" {
		return id
	}
	return strings.TrimSpace(string(r.GRCID))
}

type ScanResponse struct {
	Status        string     `json:"status"`
	Message       string     `json:"message"`
	Name          string     `json:"name"`
	GRCID         string     `json:"grc_id"`
	Timestamp     string     `json:"timestamp,omitempty"` // "03:04:05 PM"
	EffectiveTime *time.Time `json:"effective_time,omitempty"`
	SessionULID   string     `json:"session_ulid,omitempty"`
}

type SessionResponse struct {
	SessionULID string     `json:"session_ulid"`
	Date        string     `json:"date"`
	Identifier  string     `json:"grc_id"`
	DisplayName string     `json:"student_name"`
	Group       string     `json:"student_dept"`
	InAt        time.Time  `json:"in_at"`
	InTime      string     `json:"in_time"`
	OutAt       *time.Time `json:"out_at,omitempty"`
	OutTime     string     `json:"out_time"`
	Open        bool       `json:"open"`
	Stale       bool       `json:"stale,omitempty"`
}

type ListQuery struct {
	Identifier *string
	On         *string
	From       *string
	To         *string
	OpenOnly   bool
	Limit      int
	Offset     int
	Sort       string
}

type ImportResult struct {
	Imported    int `json:"imported"`
	Skipped     int `json:"skipped"`
	StaleMarked int `json:"stale_marked"`
}
