package bootstrap

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-media-jobs/config"
)

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.DBConfig{
		Host:           "db.internal",
		Port:           6432,
		User:           "media",
		Password:       "p@ss:w/rd",
		Name:           "mediajobs",
		SSLMode:        "require",
		ConnectTimeout: 3 * time.Second,
	})

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db.internal:6432", u.Host)
	assert.Equal(t, "/mediajobs", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss:w/rd", pw)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
	assert.Equal(t, "3", u.Query().Get("connect_timeout"))
}

func TestPostgresDSN_NoTimeout(t *testing.T) {
	dsn := PostgresDSN(config.DBConfig{Host: "localhost", Port: 5432, Name: "x", SSLMode: "disable"})
	assert.NotContains(t, dsn, "connect_timeout")
}
