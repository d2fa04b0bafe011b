package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPath     = "config/config.yaml"
	EnvConfigPath   = "ATTENDANCE_CONFIG"
	DefaultAddr     = ":8443"
	DefaultTimezone = "Local"
	DefaultTitle    = "GRC Daily Attendance Report"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "sqlite" | "mysql"
	Path     string `yaml:"path"`   // sqlite のファイルパス
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type RosterConfig struct {
	Path     string `yaml:"path"`
	Encoding string `yaml:"encoding"` // utf-8 | shift_jis | utf-16
}

type AuthConfig struct {
	// 空なら /admin 系は無効
	Secret            string `yaml:"secret"`
	AdminPasswordHash string `yaml:"admin_password_hash"`
	TokenTTLHours     int    `yaml:"token_ttl_hours"`
}

type ReportConfig struct {
	Title string `yaml:"title"`
	// 日本語名を印字するための UTF-8 TTF（例: config/fonts/ipaexg.ttf）。空なら Helvetica。
	FontPath string `yaml:"font_path"`
}

type Config struct {
	Version     string         `yaml:"version"`
	Mode        string         `yaml:"mode"`
	Addr        string         `yaml:"addr"`
	Timezone    string         `yaml:"timezone"`
	DB          DatabaseConfig `yaml:"database"`
	Certificate *Certs         `yaml:"certificate,omitempty"`
	Roster      RosterConfig   `yaml:"roster"`
	Auth        AuthConfig     `yaml:"auth"`
	Report      ReportConfig   `yaml:"report"`

	// テスト用: スキャン時の timestamp 上書きを許可する
	AllowTimestampOverride bool `yaml:"allow_timestamp_override"`
}

// PathFromEnv は ATTENDANCE_CONFIG があればそれを、なければ既定パスを返す。
func PathFromEnv() string {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return DefaultPath
}

func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込み失敗: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルのパース失敗: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "dev"
	}
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite"
	}
	if c.DB.Driver == "sqlite" && c.DB.Path == "" {
		c.DB.Path = "./data/attendance.db"
	}
	if c.Roster.Path == "" {
		c.Roster.Path = "students.csv"
	}
	if c.Roster.Encoding == "" {
		c.Roster.Encoding = "utf-8"
	}
	if c.Report.Title == "" {
		c.Report.Title = DefaultTitle
	}
	if c.Auth.TokenTTLHours <= 0 {
		c.Auth.TokenTTLHours = 24
	}
}

func (c *Config) Validate() error {
	if c.Mode != "dev" && c.Mode != "release" {
		return fmt.Errorf("mode must be dev or release: %q", c.Mode)
	}
	switch c.DB.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("database.driver must be sqlite or mysql: %q", c.DB.Driver)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}

// Location は出欠の「日付」を切る基準のタイムゾーン。
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}
