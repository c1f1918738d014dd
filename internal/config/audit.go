package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// EffectiveDSN normalizes the audit DSN so timestamps scan into time.Time in
// UTC. The configured value must be a go-sql-driver/mysql DSN.
func (a *AuditConfig) EffectiveDSN() (string, error) {
	raw := strings.TrimSpace(a.DSN)
	if raw == "" {
		return "", fmt.Errorf("audit.dsn is empty")
	}
	parsed, err := mysql.ParseDSN(raw)
	if err != nil {
		return "", fmt.Errorf("audit.dsn is invalid: %w", err)
	}
	if parsed.DBName == "" {
		return "", fmt.Errorf("audit.dsn must name a database")
	}
	parsed.ParseTime = true
	parsed.Loc = time.UTC
	return parsed.FormatDSN(), nil
}
