// Package report は台帳の全件を印刷用の PDF / CSV にする。
package report

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"time"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"

	"attendance-backend/internal/attendance"
)

const DefaultTitle = "GRC Daily Attendance Report"

// レイアウト（pt, letter 612x792）
const (
	marginX     = 72.0
	titleY      = 72.0
	headerY     = 108.0
	contHeaderY = 72.0
	rowHeight   = 14.4

	// 続きのページに入る行数。1 ページ目はタイトルの分だけ少ない。
	RowsPerPage = 46
	titleRows   = 3
)

var (
	headers   = []string{"Date", "ID", "Name", "In Time", "Out Time"}
	colWidths = []float64{72, 86.4, 158.4, 72, 72}
)

type Options struct {
	Title    string
	Location *time.Location
	// UTF-8 の TrueType フォント。nil なら Helvetica (cp1252) で描く。
	Font []byte
}

// LoadFont は report.font_path の TTF を読む。空パスなら nil。
func LoadFont(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report font: %w", err)
	}
	return b, nil
}

// fontFamily: Font 指定時に登録するファミリ名
const fontFamily = "report"

func (o Options) title() string {
	if o.Title == "" {
		return DefaultTitle
	}
	return o.Title
}

func (o Options) loc() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}

// Page は rows[Start:End] を 1 ページに載せる。
type Page struct {
	Start, End int
}

// Paginate は n 行を perPage 行ずつに分ける。1 ページ目はタイトル分 titleRows 行少ない。
// n == 0 でもヘッダだけのページを 1 枚返す。
func Paginate(n, perPage int) []Page {
	if perPage <= titleRows {
		perPage = titleRows + 1
	}
	first := perPage - titleRows
	if n <= first {
		return []Page{{0, n}}
	}
	pages := []Page{{0, first}}
	for start := first; start < n; start += perPage {
		end := start + perPage
		if end > n {
			end = n
		}
		pages = append(pages, Page{start, end})
	}
	return pages
}

// Sorted は入室時刻順（同時刻は台帳の追記順のまま）に並べた写しを返す。
func Sorted(rows []attendance.SessionRecord) []attendance.SessionRecord {
	out := make([]attendance.SessionRecord, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].InAt.Before(out[j].InAt)
	})
	return out
}

// Render は PDF を w に書く。失敗するのは書き込みだけ。
func Render(w io.Writer, rows []attendance.SessionRecord, opt Options) error {
	return build(Sorted(rows), opt).Output(w)
}

// RenderCSV は同じ並びで attendance_log.csv 形式を書く。
func RenderCSV(w io.Writer, rows []attendance.SessionRecord, opt Options) error {
	return attendance.WriteLog(w, Sorted(rows), opt.loc())
}

func build(rows []attendance.SessionRecord, opt Options) *fpdf.Fpdf {
	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetMargins(marginX, titleY, marginX)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(opt.title(), true)
	loc := opt.loc()

	family := "Helvetica"
	tr := func(s string) string { return s }
	if opt.Font != nil {
		pdf.AddUTF8FontFromBytes(fontFamily, "", opt.Font)
		pdf.AddUTF8FontFromBytes(fontFamily, "B", opt.Font)
		family = fontFamily
	} else {
		tr = pdf.UnicodeTranslatorFromDescriptor("")
		if lost := unprintable(rows); len(lost) > 0 {
			log.Printf("[WARN] report: %d name(s) not representable in cp1252; set report.font_path (e.g. %q)", len(lost), lost[0])
		}
	}

	pageW, _ := pdf.GetPageSize()
	for i, p := range Paginate(len(rows), RowsPerPage) {
		pdf.AddPage()
		y := contHeaderY
		if i == 0 {
			pdf.SetFont(family, "B", 14)
			pdf.Text(marginX+36, titleY, tr(opt.title()))
			y = headerY
		}

		pdf.SetFont(family, "B", 10)
		x := marginX
		for c, h := range headers {
			pdf.Text(x, y, h)
			x += colWidths[c]
		}
		y += 7.2
		pdf.Line(marginX, y, pageW-marginX, y)
		y += 10.8

		pdf.SetFont(family, "", 9)
		for _, r := range rows[p.Start:p.End] {
			x = marginX
			for c, cell := range cells(r, loc) {
				pdf.Text(x, y, tr(cell))
				x += colWidths[c]
			}
			y += rowHeight
		}
	}
	return pdf
}

func cells(r attendance.SessionRecord, loc *time.Location) []string {
	out := ""
	if r.OutAt != nil {
		out = r.OutAt.In(loc).Format(attendance.TimeLayout)
	}
	return []string{
		r.Date,
		r.Identifier,
		r.DisplayName,
		r.InAt.In(loc).Format(attendance.TimeLayout),
		out,
	}
}

// unprintable は標準フォント (cp1252) で描けない表示名を返す。
func unprintable(rows []attendance.SessionRecord) []string {
	var out []string
	seen := map[string]bool{}
	enc := charmap.Windows1252.NewEncoder()
	for _, r := range rows {
		if seen[r.DisplayName] {
			continue
		}
		seen[r.DisplayName] = true
		if _, err := enc.String(r.DisplayName); err != nil {
			out = append(out, r.DisplayName)
		}
	}
	return out
}
