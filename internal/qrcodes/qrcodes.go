// Package qrcodes は学生証用の QR 画像を作る。中身は ID の文字列だけ。
package qrcodes

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	qrcode "github.com/skip2/go-qrcode"

	"attendance-backend/internal/directory"
)

// 10px モジュール + 余白 4 で version 1 が収まる大きさ
const DefaultSize = 290

func PNG(id string, size int) ([]byte, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("qrcodes: empty id")
	}
	if size <= 0 {
		size = DefaultSize
	}
	return qrcode.Encode(id, qrcode.Low, size)
}

// FileName: 名前は英数字・空白・_ だけ残して "<name>_<id>.png"
func FileName(name, id string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '_' {
			b.WriteRune(r)
		}
	}
	return fmt.Sprintf("%s_%s.png", strings.TrimRight(b.String(), " "), id)
}

// GenerateAll は名簿の全員分の PNG を outDir に書き、書いた枚数を返す。
func GenerateAll(entries []directory.Entry, outDir string, size int) (int, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, err
	}
	n := 0
	for i, e := range entries {
		id, name := strings.TrimSpace(e.ID), strings.TrimSpace(e.Name)
		if id == "" || name == "" {
			log.Printf("[WARN] skip row %d: missing id or name", i+1)
			continue
		}
		png, err := PNG(id, size)
		if err != nil {
			return n, fmt.Errorf("%s: %w", id, err)
		}
		// ID 自体にパス区切りが入っていても outDir の外には書かない
		path := filepath.Join(outDir, filepath.Base(FileName(name, id)))
		if err := os.WriteFile(path, png, 0o644); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
