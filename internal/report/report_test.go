package report

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"attendance-backend/internal/attendance"
)

func TestPaginate(t *testing.T) {
	tests := []struct {
		n, per int
		want   []Page
	}{
		{0, 10, []Page{{0, 0}}},
		{7, 10, []Page{{0, 7}}},
		{8, 10, []Page{{0, 7}, {7, 8}}},
		{17, 10, []Page{{0, 7}, {7, 17}}},
		{18, 10, []Page{{0, 7}, {7, 17}, {17, 18}}},
	}
	for _, tt := range tests {
		got := Paginate(tt.n, tt.per)
		if len(got) != len(tt.want) {
			t.Fatalf("Paginate(%d, %d) = %v, want %v", tt.n, tt.per, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Paginate(%d, %d)[%d] = %v, want %v", tt.n, tt.per, i, got[i], tt.want[i])
			}
		}
	}
}

func TestPaginate_CoversAllRows(t *testing.T) {
	for n := 0; n < 200; n++ {
		next := 0
		for _, p := range Paginate(n, RowsPerPage) {
			if p.Start != next || p.End < p.Start || p.End-p.Start > RowsPerPage {
				t.Fatalf("n=%d: bad page %v", n, p)
			}
			next = p.End
		}
		if next != n {
			t.Fatalf("n=%d: pages end at %d", n, next)
		}
	}
}

func rec(id string, in time.Time, out *time.Time) attendance.SessionRecord {
	return attendance.SessionRecord{
		Date: in.Format(attendance.DateLayout), Identifier: id, DisplayName: "Name " + id,
		InAt: in, OutAt: out,
	}
}

func clock(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

func TestSorted_ChronologicalAndStable(t *testing.T) {
	rows := []attendance.SessionRecord{
		rec("c", clock(10, 0), nil),
		rec("a", clock(9, 0), nil),
		rec("b", clock(10, 0), nil),
		rec("d", clock(8, 0), nil),
	}
	got := Sorted(rows)
	want := []string{"d", "a", "c", "b"}
	for i, id := range want {
		if got[i].Identifier != id {
			t.Fatalf("position %d: want %s, got %s", i, id, got[i].Identifier)
		}
	}
	if rows[0].Identifier != "c" {
		t.Error("input must not be reordered")
	}
}

func TestRender_PagesAndOutput(t *testing.T) {
	var rows []attendance.SessionRecord
	for i := 0; i < 100; i++ {
		out := clock(17, 0)
		rows = append(rows, rec("042", clock(8, 0).Add(time.Duration(i)*time.Minute), &out))
	}
	rows = append(rows, rec("007", clock(18, 0), nil))

	opt := Options{Location: time.UTC}
	pdf := build(Sorted(rows), opt)
	if want := len(Paginate(len(rows), RowsPerPage)); pdf.PageCount() != want {
		t.Errorf("expected %d pages, got %d", want, pdf.PageCount())
	}

	var buf bytes.Buffer
	if err := Render(&buf, rows, opt); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Errorf("output is not a PDF")
	}
}

func TestRender_EmptyLedger(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, nil, Options{}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if build(nil, Options{}).PageCount() != 1 {
		t.Error("empty report should still have a header page")
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRender_WriteFailure(t *testing.T) {
	rows := []attendance.SessionRecord{rec("042", clock(9, 0), nil)}
	if err := Render(failWriter{}, rows, Options{}); err == nil {
		t.Fatal("expected write error")
	}
}

func TestRender_UTF8FontKeepsCJKNames(t *testing.T) {
	font, err := LoadFont("testdata/DejaVuSansCondensed.ttf")
	if err != nil {
		t.Fatalf("LoadFont: %v", err)
	}
	r := rec("100", clock(9, 0), nil)
	r.DisplayName = "山田太郎"

	pdf := build([]attendance.SessionRecord{r}, Options{Location: time.UTC, Font: font})
	pdf.SetCompression(false)
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatalf("Output: %v", err)
	}
	// 田太郎 (UTF-16BE) がそのままページに載っていること
	if !bytes.Contains(buf.Bytes(), []byte{0x75, 0x30, 0x59, 0x2a, 0x90, 0xce}) {
		t.Error("CJK name missing from page content")
	}

	// 標準フォントだと cp1252 に落ちて消える
	plain := build([]attendance.SessionRecord{r}, Options{Location: time.UTC})
	plain.SetCompression(false)
	buf.Reset()
	if err := plain.Output(&buf); err != nil {
		t.Fatalf("Output: %v", err)
	}
	if bytes.Contains(buf.Bytes(), []byte{0x75, 0x30, 0x59, 0x2a, 0x90, 0xce}) {
		t.Error("did not expect UTF-16 text without a UTF-8 font")
	}
}

func TestUnprintable(t *testing.T) {
	a := rec("1", clock(9, 0), nil)
	a.DisplayName = "José Müller"
	b := rec("2", clock(9, 0), nil)
	b.DisplayName = "山田太郎"
	c := rec("3", clock(10, 0), nil)
	c.DisplayName = "山田太郎"

	got := unprintable([]attendance.SessionRecord{a, b, c})
	if len(got) != 1 || got[0] != "山田太郎" {
		t.Errorf("unexpected %v", got)
	}
}

func TestLoadFont(t *testing.T) {
	if b, err := LoadFont(""); b != nil || err != nil {
		t.Errorf("empty path should be a no-op, got %d bytes, %v", len(b), err)
	}
	if _, err := LoadFont("testdata/missing.ttf"); err == nil {
		t.Error("expected error for missing font")
	}
}

func TestCells_OpenSessionHasEmptyOutTime(t *testing.T) {
	c := cells(rec("042", clock(9, 0), nil), time.UTC)
	if len(c) != len(headers) {
		t.Fatalf("expected %d cells, got %d", len(headers), len(c))
	}
	if c[3] != "09:00:00" || c[4] != "" {
		t.Errorf("unexpected cells %v", c)
	}
}

func TestRenderCSV(t *testing.T) {
	out := clock(17, 0)
	rows := []attendance.SessionRecord{
		rec("007", clock(10, 0), nil),
		rec("042", clock(9, 0), &out),
	}
	var buf bytes.Buffer
	if err := RenderCSV(&buf, rows, Options{Location: time.UTC}); err != nil {
		t.Fatalf("RenderCSV: %v", err)
	}
	want := "date,grc_id,student_name,student_dept,in_time,out_time\n" +
		"2026-03-02,042,Name 042,,09:00:00,17:00:00\n" +
		"2026-03-02,007,Name 007,,10:00:00,\n"
	if buf.String() != want {
		t.Errorf("unexpected csv:\n%s", buf.String())
	}
}

type stubSource struct {
	rows []attendance.SessionRecord
	err  error
}

func (s stubSource) ListAll(context.Context) ([]attendance.SessionRecord, error) {
	return s.rows, s.err
}

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, h)
	r.GET("/export_pdf", h.PDF)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHandler(t *testing.T) {
	rows := []attendance.SessionRecord{rec("042", clock(9, 0), nil)}
	h := NewHandler(stubSource{rows: rows}, Options{Location: time.UTC})

	for _, path := range []string{"/reports/attendance.pdf", "/export_pdf"} {
		w := serve(h, path)
		if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/pdf" {
			t.Errorf("%s: unexpected response %d %q", path, w.Code, w.Header().Get("Content-Type"))
		}
	}
	w := serve(h, "/reports/attendance.csv")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "042") {
		t.Errorf("unexpected csv response %d: %s", w.Code, w.Body.String())
	}
}

func TestHandler_Errors(t *testing.T) {
	if w := serve(NewHandler(stubSource{}, Options{}), "/export_pdf"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for empty ledger, got %d", w.Code)
	}
	down := stubSource{err: attendance.ErrStorageUnavailable}
	if w := serve(NewHandler(down, Options{}), "/reports/attendance.pdf"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}
