package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// DSN returns a lib/pq connection string. ConnectionString wins when set;
// otherwise key=value pairs are built from the discrete fields.
func (d *DatabaseConfig) DSN() string {
	if s := strings.TrimSpace(d.ConnectionString); s != "" {
		return s
	}
	pairs := []string{
		"host=" + quoteConnValue(d.Host),
		"port=" + strconv.Itoa(d.Port),
		"user=" + quoteConnValue(d.User),
	}
	if d.Password != "" {
		pairs = append(pairs, "password="+quoteConnValue(d.Password))
	}
	if d.Database != "" {
		pairs = append(pairs, "dbname="+quoteConnValue(d.Database))
	}
	if d.SSLMode != "" {
		pairs = append(pairs, "sslmode="+quoteConnValue(d.SSLMode))
	}
	return strings.Join(pairs, " ")
}

// quoteConnValue quotes a conninfo value when it is empty or holds spaces,
// quotes or backslashes.
func quoteConnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " '\\\t") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// Target describes the connection for logs without credentials.
func (d *DatabaseConfig) Target() string {
	if strings.TrimSpace(d.ConnectionString) != "" {
		return "dsn"
	}
	return fmt.Sprintf("%s:%d/%s", d.Host, d.Port, d.Database)
}

// checkConnectionString parses URL-form connection strings so malformed ones
// fail at startup instead of on first query.
func checkConnectionString(dsn string) error {
	dsn = strings.TrimSpace(dsn)
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil
	}
	if _, err := pq.ParseURL(dsn); err != nil {
		return fmt.Errorf("database.dsn is invalid: %w", err)
	}
	return nil
}
