package plugins

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/systmms/credbroker/pkg/credential"
)

// SQLPlugin rotates database login passwords directly, for targets that
// consume rotated credentials as database users rather than via a secret
// store. It is push-only: databases do not expose the current password,
// so the plugin cannot originate reverse flow.
type SQLPlugin struct {
	name   string
	driver string
	db     *sql.DB
}

// NewSQLPluginFactory creates the sql factory.
func NewSQLPluginFactory(name string, cfg map[string]interface{}) (Plugin, error) {
	driver := configString(cfg, "driver")
	switch driver {
	case "postgres", "mysql":
	case "":
		return nil, fmt.Errorf("missing required 'driver' field for sql plugin")
	default:
		return nil, fmt.Errorf("unsupported sql driver '%s' (postgres, mysql)", driver)
	}

	dsn, err := requireConfig(cfg, "dsn", "sql")
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", driver, err)
	}

	return NewSQLPlugin(name, driver, db), nil
}

// NewSQLPlugin creates a SQL plugin over an existing connection pool.
// Exposed so tests can inject a sqlmock database.
func NewSQLPlugin(name, driver string, db *sql.DB) *SQLPlugin {
	return &SQLPlugin{
		name:   name,
		driver: driver,
		db:     db,
	}
}

// Name returns the plugin type identifier.
func (p *SQLPlugin) Name() string {
	return "sql"
}

// quoteIdent quotes a database identifier for the active driver.
// ALTER USER statements cannot take the user name as a bind parameter.
func (p *SQLPlugin) quoteIdent(ident string) string {
	switch p.driver {
	case "mysql":
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	default:
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	}
}

// Push sets the database user's password to the rotated value.
func (p *SQLPlugin) Push(ctx context.Context, account credential.Account, value []byte, kind credential.Kind) error {
	if kind != credential.KindPassword {
		return fmt.Errorf("sql plugin only rotates passwords, got kind %s", kind)
	}

	var query string
	var args []interface{}
	switch p.driver {
	case "mysql":
		query = fmt.Sprintf("ALTER USER %s@'%%' IDENTIFIED BY ?", p.quoteIdent(account.Name))
		args = []interface{}{string(value)}
	default:
		// Postgres does not accept bind parameters in ALTER ROLE, so the
		// password is embedded as a quoted literal.
		query = fmt.Sprintf("ALTER ROLE %s WITH PASSWORD '%s'",
			p.quoteIdent(account.Name), strings.ReplaceAll(string(value), "'", "''"))
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to rotate password for user %s: %w", account.Name, err)
	}
	return nil
}

// RefreshCredentials verifies the connection pool is still usable.
func (p *SQLPlugin) RefreshCredentials(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
