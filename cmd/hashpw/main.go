// hashpw は config.yaml の auth.admin_password_hash に入れる bcrypt ハッシュを出力する。
//
//	go run ./cmd/hashpw 'password'
package main

import (
	"fmt"
	"log"
	"os"

	"attendance-backend/internal/platform/auth"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: hashpw <password>")
		os.Exit(2)
	}
	h, err := auth.HashPassword(os.Args[1])
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	fmt.Println(h)
}
