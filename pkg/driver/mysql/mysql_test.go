package mysql

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/ammar0144/doc4go/pkg/driver/drivertest"
	"github.com/ammar0144/doc4go/pkg/query"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"missing host", func(c *Config) { c.Host = "" }, true},
		{"bad port", func(c *Config) { c.Port = 70000 }, true},
		{"missing database", func(c *Config) { c.Database = "" }, true},
		{"missing user", func(c *Config) { c.Username = "" }, true},
		{"no conns", func(c *Config) { c.MaxOpenConns = 0 }, true},
		{"idle above open", func(c *Config) { c.MaxIdleConns = 100 }, true},
		{"tls cert without key", func(c *Config) {
			c.SSL = SSLConfig{Enabled: true, CertFile: "cert.pem"}
		}, true},
		{"tls skip verify", func(c *Config) {
			c.SSL = SSLConfig{Enabled: true, SkipVerify: true, CAFile: "/nonexistent"}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "secret"
	cfg.SSL = SSLConfig{Enabled: true, SkipVerify: true}

	dsn, err := cfg.DSN()
	require.NoError(t, err)
	assert.Contains(t, dsn, "root:secret@tcp(localhost:3306)/test")
	assert.Contains(t, dsn, "clientFoundRows=true")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "tls=skip-verify")

	parsed, err := ConfigFromDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "localhost", parsed.Host)
	assert.Equal(t, 3306, parsed.Port)
	assert.Equal(t, "secret", parsed.Password)
	assert.Equal(t, "test", parsed.Database)
}

func TestConfig_TLSFailsEarly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SSL = SSLConfig{Enabled: true, CAFile: "/nonexistent/ca.pem"}
	_, err := cfg.DSN()
	assert.Error(t, err)
}

func TestParseLocation(t *testing.T) {
	assert.Equal(t, time.UTC, parseLocation("bogus/zone"))
	assert.Equal(t, "UTC", parseLocation("").String())
}

func TestGetLogLevel(t *testing.T) {
	assert.Equal(t, logger.Info, getLogLevel("debug"))
	assert.Equal(t, logger.Warn, getLogLevel("WARN"))
	assert.Equal(t, logger.Silent, getLogLevel("silent"))
	assert.Equal(t, logger.Error, getLogLevel(""))
}

func TestDialect(t *testing.T) {
	q, err := query.NewBuilder("users").
		Where("age", query.GreaterThan, 18).
		Where("name", query.Like, "L%").
		Desc("age").
		Build()
	require.NoError(t, err)

	stmt, err := query.RenderSelect(Dialect{}, "users", "id, data", q)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT id, data FROM users WHERE JSON_EXTRACT(data, '$.age') > CAST(? AS JSON) AND "+
			"JSON_UNQUOTE(JSON_EXTRACT(data, '$.name')) LIKE ? ORDER BY JSON_EXTRACT(data, '$.age') DESC",
		stmt.SQL)
	assert.Equal(t, []interface{}{"18", "L%"}, stmt.Args)
}

func TestConformance(t *testing.T) {
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set")
	}
	cfg, err := ConfigFromDSN(dsn)
	require.NoError(t, err)

	e, err := Open(cfg)
	require.NoError(t, err)
	defer e.Close()

	drivertest.Run(t, e)
}
