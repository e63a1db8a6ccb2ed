package rewear

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
)

type resolvedValue struct {
	Value  string `json:"value"`
	Source Source `json:"source"`
}

type showPayload struct {
	ConfigFile  string        `json:"config_file"`
	HistoryFile string        `json:"history_file"`
	Dialect     string        `json:"dialect,omitempty"`
	URL         resolvedValue `json:"url"`
	User        resolvedValue `json:"user"`
	Password    resolvedValue `json:"password"`
}

func runShow(cfg *Config, stdout io.Writer) error {
	creds, err := cfg.credentials()
	if err != nil {
		return err
	}

	payload := showPayload{
		ConfigFile:  cfg.ConfigFile,
		HistoryFile: cfg.HistoryFile,
		URL:         resolvedValue{Value: redactLocation(creds.URL), Source: creds.URLSource},
		User:        resolvedValue{Value: creds.User, Source: creds.UserSource},
		Password:    resolvedValue{Value: maskSecret(creds.Password), Source: creds.PasswordSource},
	}
	if name, err := detectDialect(stripJDBCPrefix(creds.URL)); err == nil {
		payload.Dialect = name
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal show output: %w", err)
	}

	fmt.Fprintln(stdout, string(data))
	return nil
}

// redactLocation hides a password embedded in a URL or go-sql-driver DSN.
func redactLocation(v string) string {
	loc := stripJDBCPrefix(v)
	prefix := strings.TrimSuffix(strings.TrimSpace(v), loc)

	if u, err := url.Parse(loc); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			return prefix + u.Redacted()
		}
	}
	if strings.Contains(loc, "@tcp(") || strings.Contains(loc, "@unix(") {
		if cfg, err := mysql.ParseDSN(loc); err == nil && cfg.Passwd != "" {
			cfg.Passwd = "xxxxx"
			return prefix + cfg.FormatDSN()
		}
	}
	return v
}

func maskSecret(v string) string {
	s := strings.TrimSpace(v)
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
