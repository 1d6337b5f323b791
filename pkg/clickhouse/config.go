package clickhouse

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
)

// Config is the connection setup for NewClient. Zero fields take the
// default tag.
type Config struct {
	Host             string
	Port             int    `default:"9000"`
	Database         string `default:"default"`
	User             string `default:"default"`
	Password         string
	MaxOpenConns     int           `default:"10"`
	MaxIdleConns     int           `default:"5"`
	ConnMaxLifetime  time.Duration `default:"5m"`
	DialTimeout      time.Duration `default:"5s"`
	ReadTimeout      time.Duration `default:"10s"`
	MaxExecutionTime time.Duration
	UseHTTP          bool
	AsyncInsert      bool
	WaitForAsync     bool
}

func (c *Config) normalize() error {
	if c.Host == "" {
		return errors.New("host is required")
	}
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("clickhouse defaults: %w", err)
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		c.MaxIdleConns = c.MaxOpenConns
	}
	return nil
}

// DSN renders the clickhouse-go URL. Write timeouts stay client side since
// some server versions reject them as a setting.
func (c Config) DSN() string {
	scheme := "clickhouse"
	if c.UseHTTP {
		scheme = "http"
	}
	dsn := fmt.Sprintf("%s://%s:%s@%s:%d/%s", scheme, c.User, c.Password, c.Host, c.Port, c.Database)

	var params []string
	if c.DialTimeout > 0 {
		params = append(params, "dial_timeout="+c.DialTimeout.String())
	}
	if c.ReadTimeout > 0 {
		params = append(params, "read_timeout="+c.ReadTimeout.String())
	}
	if c.MaxExecutionTime > 0 {
		params = append(params, fmt.Sprintf("max_execution_time=%d", int(c.MaxExecutionTime.Seconds())))
	}
	if c.AsyncInsert {
		params = append(params, "async_insert=1")
		if c.WaitForAsync {
			params = append(params, "wait_for_async_insert=1")
		}
	}
	if len(params) == 0 {
		return dsn
	}
	return dsn + "?" + strings.Join(params, "&")
}
