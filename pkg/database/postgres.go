package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/noah-isme/letter-workflow-api/pkg/config"
)

// DSN renders a lib/pq keyword/value connection string. Values are quoted
// so passwords containing spaces or quotes survive.
func DSN(cfg config.DatabaseConfig) string {
	pairs := []struct {
		key   string
		value string
	}{
		{"host", cfg.Host},
		{"port", fmt.Sprint(cfg.Port)},
		{"user", cfg.User},
		{"password", cfg.Password},
		{"dbname", cfg.Name},
		{"sslmode", cfg.SSLMode},
	}
	if cfg.ConnectTimeout > 0 {
		pairs = append(pairs, struct {
			key   string
			value string
		}{"connect_timeout", fmt.Sprint(int(cfg.ConnectTimeout.Seconds()))})
	}

	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p.value == "" {
			continue
		}
		parts = append(parts, p.key+"="+quote(p.value))
	}
	return strings.Join(parts, " ")
}

func quote(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// NewPostgres opens the workflow database and verifies it is reachable
// before ctx expires.
func NewPostgres(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(orDefault(cfg.ConnMaxLifetime, time.Hour))
	db.SetConnMaxIdleTime(orDefault(cfg.ConnMaxIdleTime, 30*time.Minute))

	pingCtx, cancel := context.WithTimeout(ctx, orDefault(cfg.ConnectTimeout, 5*time.Second))
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s@%s:%d/%s: %w", cfg.User, cfg.Host, cfg.Port, cfg.Name, err)
	}
	return db, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
