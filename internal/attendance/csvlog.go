package attendance

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// 旧 attendance_log.csv と同じ列。out_time が空 = 在室中。
var logHeader = []string{"date", "grc_id", "student_name", "student_dept", "in_time", "out_time"}

// WriteLog は記録を旧ログ形式の CSV で書き出す。時刻は loc の壁時計。
func WriteLog(w io.Writer, recs []SessionRecord, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(logHeader); err != nil {
		return err
	}
	for _, r := range recs {
		out := ""
		if r.OutAt != nil {
			out = r.OutAt.In(loc).Format(TimeLayout)
		}
		if err := cw.Write([]string{
			r.Date,
			r.Identifier,
			r.DisplayName,
			r.Group,
			r.InAt.In(loc).Format(TimeLayout),
			out,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadLog は旧ログ形式の CSV を読む。列はヘッダ名で引く（並び順は問わない）。
func ReadLog(r io.Reader, loc *time.Location, ids IDGen) ([]SessionRecord, error) {
	if ids == nil {
		ids = ulidGen{}
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, ErrInvalid(fmt.Sprintf("csv header: %v", err))
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, need := range []string{"date", "grc_id", "in_time"} {
		if _, ok := col[need]; !ok {
			return nil, ErrInvalid("csv header must contain " + need)
		}
	}
	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []SessionRecord
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, ErrInvalid(fmt.Sprintf("line %d: %v", line, err))
		}

		date := get(rec, "date")
		ident := get(rec, "grc_id")
		if date == "" && ident == "" {
			continue
		}
		inAt, err := parseWallClock(date, get(rec, "in_time"), loc)
		if err != nil {
			return nil, ErrInvalid(fmt.Sprintf("line %d: in_time: %v", line, err))
		}
		s := SessionRecord{
			Date:        date,
			Identifier:  ident,
			DisplayName: get(rec, "student_name"),
			Group:       get(rec, "student_dept"),
			InAt:        inAt,
		}
		if v := get(rec, "out_time"); v != "" && !strings.EqualFold(v, "nan") {
			outAt, err := parseWallClock(date, v, loc)
			if err != nil {
				return nil, ErrInvalid(fmt.Sprintf("line %d: out_time: %v", line, err))
			}
			if outAt.Before(inAt) {
				return nil, ErrInvalid(fmt.Sprintf("line %d: out_time before in_time", line))
			}
			s.OutAt = &outAt
		}
		if s.SessionULID, err = ids.New(inAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func parseWallClock(date, clock string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, loc)
}
