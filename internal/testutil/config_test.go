package testutil

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTestDBConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want TestDBConfig
	}{
		{
			name: "local docker-compose defaults",
			env:  map[string]string{},
			want: TestDBConfig{Host: "localhost", Port: "55432", User: "mediajobs", Password: "mediajobs", DBName: "mediajobs"},
		},
		{
			name: "ci overrides",
			env: map[string]string{
				"TEST_DB_HOST": "postgres", "TEST_DB_PORT": "5432",
				"TEST_DB_USER": "ci", "TEST_DB_PASSWORD": "ci-pass", "TEST_DB_NAME": "mediajobs_ci",
			},
			want: TestDBConfig{Host: "postgres", Port: "5432", User: "ci", Password: "ci-pass", DBName: "mediajobs_ci"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"TEST_DB_HOST", "TEST_DB_PORT", "TEST_DB_USER", "TEST_DB_PASSWORD", "TEST_DB_NAME"} {
				t.Setenv(key, tt.env[key])
			}
			assert.Equal(t, tt.want, DefaultTestDBConfig())
		})
	}
}

func TestBuildBaseDSN(t *testing.T) {
	t.Setenv("DB_SSL_MODE", "")
	dsn := buildBaseDSN(TestDBConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "mediajobs"})

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db:5432", u.Host)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
}

func TestGenerateSchemaName(t *testing.T) {
	a, b := generateSchemaName(), generateSchemaName()
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^[a-z0-9_]+$`, a)
}
