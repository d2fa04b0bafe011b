// genqr は名簿の全員分の QR 画像を書き出す。
//
//	go run ./cmd/genqr -config config/config.yaml -out qrcodes
package main

import (
	"flag"
	"log"

	"attendance-backend/internal/directory"
	"attendance-backend/internal/platform/config"
	"attendance-backend/internal/qrcodes"
)

func main() {
	cfgPath := flag.String("config", config.PathFromEnv(), "config file")
	out := flag.String("out", "qrcodes", "output directory")
	size := flag.Int("size", qrcodes.DefaultSize, "image size in px")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("[ERROR] load config: %v", err)
	}

	dir, err := directory.Load(cfg.Roster.Path, cfg.Roster.Encoding)
	if err != nil {
		log.Fatalf("[ERROR] load roster %s: %v", cfg.Roster.Path, err)
	}

	n, err := qrcodes.GenerateAll(dir.Entries(), *out, *size)
	if err != nil {
		log.Fatalf("[ERROR] generate: %v", err)
	}
	log.Printf("[INFO] generated %d QR codes in %s", n, *out)
}
