package directory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// 名簿 CSV はヘッダなし: Name, ID, Dept
const (
	colName = iota
	colID
	colGroup
)

// Load は名簿 CSV を読み込む。encoding は utf-8 / shift_jis(cp932) / utf-16。
func Load(path, enc string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("名簿の読み込み失敗: %w", err)
	}
	defer f.Close()

	d, dropped, err := Parse(f, enc)
	if err != nil {
		return nil, fmt.Errorf("名簿のパース失敗 %s: %w", path, err)
	}
	if dropped > 0 {
		log.Printf("[WARN] roster %s: %d duplicate id(s) ignored (first occurrence kept)", path, dropped)
	}
	return d, nil
}

// Parse は r から名簿を作り、捨てた重複 ID の件数も返す。
func Parse(r io.Reader, enc string) (*Directory, int, error) {
	dec, err := decoderFor(enc)
	if err != nil {
		return nil, 0, err
	}

	cr := csv.NewReader(transform.NewReader(r, dec))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		entries []Entry
		seen    = map[string]struct{}{}
		dropped int
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		if len(rec) < 2 {
			continue
		}
		e := Entry{
			Name: strings.TrimSpace(rec[colName]),
			ID:   strings.TrimSpace(rec[colID]),
		}
		if len(rec) > colGroup {
			e.Group = strings.TrimSpace(rec[colGroup])
		}
		if e.ID == "" {
			continue
		}
		if _, dup := seen[e.ID]; dup {
			dropped++
			continue
		}
		seen[e.ID] = struct{}{}
		entries = append(entries, e)
	}
	return New(entries), dropped, nil
}

func decoderFor(enc string) (transform.Transformer, error) {
	switch strings.ToLower(strings.TrimSpace(enc)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8BOM.NewDecoder(), nil
	case "shift_jis", "sjis", "cp932":
		return japanese.ShiftJIS.NewDecoder(), nil
	case "utf-16", "utf16":
		// BOM があればそれに従う
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder(), nil
	default:
		return nil, fmt.Errorf("unsupported roster encoding: %q", enc)
	}
}
