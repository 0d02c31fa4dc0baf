package db

import (
	"net/url"
	"testing"

	"github.com/inkwell-comics/modsvc/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresURL(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "db",
		Port:     6543,
		User:     "mod",
		Password: "p@ss word",
		DBName:   "comics",
	}

	u, err := url.Parse(PostgresURL(cfg))
	require.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "db:6543", u.Host)
	assert.Equal(t, "/comics", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss word", pw)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))

	cfg.UseSSL = true
	u, err = url.Parse(PostgresURL(cfg))
	require.NoError(t, err)
	assert.Equal(t, "require", u.Query().Get("sslmode"))

	assert.Empty(t, u.Query().Get("application_name"))

	cfg.ApplicationName = "modsvc-test"
	u, err = url.Parse(PostgresURL(cfg))
	require.NoError(t, err)
	assert.Equal(t, "modsvc-test", u.Query().Get("application_name"))
}

func TestPoolFallbacks(t *testing.T) {
	assert.Equal(t, maxOpenConns, orInt(0, maxOpenConns))
	assert.Equal(t, 7, orInt(7, maxOpenConns))
	assert.Equal(t, connMaxLife, orDuration(-1, connMaxLife))
}
