// Package directory は学籍番号 → 氏名・所属 の名簿。起動時に一度読み込み、以後は読み取り専用。
package directory

import (
	"errors"
	"sync/atomic"
)

var ErrNotFound = errors.New("identity not found")

type Entry struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Group string `json:"group"`
}

// Directory は不変のスナップショット。入れ替えは Holder.Swap で丸ごと行う。
type Directory struct {
	byID  map[string]Entry
	order []string
}

// New は entries から名簿を作る。ID 重複は先勝ち、空 ID は捨てる。
func New(entries []Entry) *Directory {
	d := &Directory{
		byID:  make(map[string]Entry, len(entries)),
		order: make([]string, 0, len(entries)),
	}
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		if _, dup := d.byID[e.ID]; dup {
			continue
		}
		d.byID[e.ID] = e
		d.order = append(d.order, e.ID)
	}
	return d
}

func (d *Directory) Resolve(id string) (Entry, error) {
	if d == nil {
		return Entry{}, ErrNotFound
	}
	e, ok := d.byID[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.order)
}

// Entries は読み込み順のコピー。
func (d *Directory) Entries() []Entry {
	if d == nil {
		return nil
	}
	out := make([]Entry, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.byID[id])
	}
	return out
}

// Holder は現在の名簿を指すポインタ。読み手は常に完成済みの Directory を見る。
type Holder struct {
	cur atomic.Pointer[Directory]
}

func NewHolder(d *Directory) *Holder {
	h := &Holder{}
	h.cur.Store(d)
	return h
}

func (h *Holder) Current() *Directory { return h.cur.Load() }

// Swap は名簿を丸ごと差し替え、古い方を返す。
func (h *Holder) Swap(d *Directory) *Directory { return h.cur.Swap(d) }

func (h *Holder) Resolve(id string) (Entry, error) { return h.Current().Resolve(id) }
