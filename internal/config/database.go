// internal/config/database.go
package config

import (
	"fmt"
	"strings"
)

const applicationName = "imi-ownership"

// sqlitePragmas mirror what the ledger needs from a single embedded writer.
var sqlitePragmas = []string{"busy_timeout(5000)", "foreign_keys(1)"}

// DSN returns the connection string for the configured driver. For sqlite, Database is
// a file path or a file: URI, and the connection pragmas are appended as query params.
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return withSQLitePragmas(d.Database)
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC application_name=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode, applicationName,
	)
}

func withSQLitePragmas(path string) string {
	params := make([]string, 0, len(sqlitePragmas))
	for _, p := range sqlitePragmas {
		params = append(params, "_pragma="+p)
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}
