// Package auth は管理者用の JWT 発行と検証。アカウントは設定ファイルの 1 つだけ。
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleAdmin    = "admin"
	adminSubject = "admin"
)

var (
	ErrAuthFailed = errors.New("authentication failed")
	ErrDisabled   = errors.New("admin login disabled")
)

// Claims: sub + role + exp
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Service struct {
	secret []byte
	hash   []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService: secret が空なら管理 API 自体を出さない想定（呼び出し側で判定）。
func NewService(secret, adminPasswordHash string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		secret: []byte(secret),
		hash:   []byte(adminPasswordHash),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *Service) Secret() []byte { return s.secret }

// Login はパスワードを bcrypt ハッシュと照合して HS256 のトークンを返す。
func (s *Service) Login(password string) (string, time.Time, error) {
	if len(s.secret) == 0 || len(s.hash) == 0 {
		return "", time.Time{}, ErrDisabled
	}
	if err := bcrypt.CompareHashAndPassword(s.hash, []byte(password)); err != nil {
		return "", time.Time{}, ErrAuthFailed
	}
	return s.Issue(adminSubject, RoleAdmin)
}

func (s *Service) Issue(sub, role string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// HashPassword は config の admin_password_hash を作る用。
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("empty password")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
