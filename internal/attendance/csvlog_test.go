package attendance

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

type seqIDs struct{ n int }

func (s *seqIDs) New(time.Time) (string, error) {
	s.n++
	return strings.Repeat("0", 25) + string(rune('0'+s.n)), nil
}

func TestReadLog(t *testing.T) {
	in := "\ufeffDate,GRC_ID,Student_Name,Student_Dept,In_Time,Out_Time\n" +
		"2026-03-02,042,Alice,CS,09:00:00,17:00:00\n" +
		",,,,,\n" +
		"2026-03-02, 007 ,Bond,MI6,10:00:00,nan\n"

	recs, err := ReadLog(strings.NewReader(in), time.UTC, &seqIDs{})
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].OutAt == nil || !recs[0].OutAt.Equal(at("17:00:00")) {
		t.Errorf("unexpected out time %v", recs[0].OutAt)
	}
	if recs[1].Identifier != "007" || recs[1].OutAt != nil {
		t.Errorf("nan out_time should be open, got %+v", recs[1])
	}
	if recs[0].SessionULID == recs[1].SessionULID {
		t.Error("each record needs its own id")
	}
}

func TestReadLog_ColumnOrderAndLocation(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	in := "out_time,in_time,grc_id,date\n,09:00:00,042,2026-03-02\n"

	recs, err := ReadLog(strings.NewReader(in), jst, nil)
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	want := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if !recs[0].InAt.Equal(want) {
		t.Errorf("expected %v, got %v", want, recs[0].InAt)
	}
	if len(recs[0].SessionULID) != 26 {
		t.Errorf("expected a ULID, got %q", recs[0].SessionULID)
	}
}

func TestReadLog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"missing column", "date,grc_id\n2026-03-02,042\n"},
		{"bad in_time", "date,grc_id,in_time\n2026-03-02,042,9am\n"},
		{"bad date", "date,grc_id,in_time\n03/02/2026,042,09:00:00\n"},
		{"out before in", "date,grc_id,in_time,out_time\n2026-03-02,042,17:00:00,09:00:00\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadLog(strings.NewReader(tt.in), time.UTC, nil)
			var api *APIError
			if !errors.As(err, &api) || api.Code != CodeInvalidArgument {
				t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
			}
		})
	}
}

func TestReadLog_Empty(t *testing.T) {
	recs, err := ReadLog(strings.NewReader(""), time.UTC, nil)
	if err != nil || len(recs) != 0 {
		t.Fatalf("expected nothing, got %v (%v)", recs, err)
	}
}

func TestWriteLog_UsesLocation(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	out := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	recs := []SessionRecord{{
		Date: "2026-03-02", Identifier: "042", DisplayName: "Alice, A.", Group: "CS",
		InAt:  time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		OutAt: &out,
	}}

	var buf bytes.Buffer
	if err := WriteLog(&buf, recs, jst); err != nil {
		t.Fatalf("WriteLog: %v", err)
	}
	want := "date,grc_id,student_name,student_dept,in_time,out_time\n" +
		`2026-03-02,042,"Alice, A.",CS,09:00:00,17:30:00` + "\n"
	if buf.String() != want {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}
