package pgcheck

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
)

const connectTimeout = 10 * time.Second

type Target struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// ConnString renders target as a postgres:// URL with credentials escaped.
func ConnString(t Target) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(t.User, t.Password),
		Host:   net.JoinHostPort(t.Host, strconv.Itoa(t.Port)),
		Path:   "/" + t.Database,
	}
	q := url.Values{}
	q.Set("connect_timeout", strconv.Itoa(int(connectTimeout.Seconds())))
	if t.SSLMode != "" {
		q.Set("sslmode", t.SSLMode)
	}
	q.Set("application_name", "pgbackup")
	u.RawQuery = q.Encode()
	return u.String()
}

// Prober reports the server version of a target.
type Prober interface {
	ServerVersion(ctx context.Context, t Target) (string, error)
}

type PGX struct{}

func (PGX) ServerVersion(ctx context.Context, t Target) (string, error) {
	cfg, err := pgx.ParseConfig(ConnString(t))
	if err != nil {
		return "", fmt.Errorf("failed to parse connection config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return "", fmt.Errorf("failed to connect to %s:%d: %w", t.Host, t.Port, err)
	}
	defer conn.Close(context.Background())

	if err := conn.Ping(ctx); err != nil {
		return "", fmt.Errorf("failed to ping database: %w", err)
	}

	var version string
	if err := conn.QueryRow(ctx, "SHOW server_version").Scan(&version); err != nil {
		return "", fmt.Errorf("failed to query server version: %w", err)
	}

	slog.Debug("Connected to PostgreSQL", "host", t.Host, "database", t.Database, "serverVersion", version)
	return version, nil
}
