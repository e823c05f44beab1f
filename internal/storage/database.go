package storage

import (
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"convanalyzer/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// NormalizeDriver maps config aliases onto the three supported dialects.
func NormalizeDriver(dbType string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "mysql":
		return DriverMySQL, nil
	case "postgres", "postgresql", "pgx":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", dbType)
	}
}

// Open connects to the database configured under cfg.Databases[dbType].
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}
	driver, err := NormalizeDriver(dbType)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	switch driver {
	case DriverSQLite:
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if dbCfg.DSN == ":memory:" {
			// every pooled connection would otherwise get its own empty database
			db.SetMaxOpenConns(1)
		}
	case DriverMySQL:
		dsn := dbCfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
				dbCfg.Username,
				dbCfg.Password,
				dbCfg.Host,
				dbCfg.Port,
				dbCfg.DBName,
				mysqlParams(dbCfg.Params),
			)
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	case DriverPostgres:
		dsn := dbCfg.DSN
		if dsn == "" {
			dsn = postgresURL(dbCfg)
		}
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// mysqlParams makes sure DATETIME columns scan into time.Time.
func mysqlParams(params string) string {
	if strings.Contains(params, "parseTime=") {
		return params
	}
	if params == "" {
		return "parseTime=true"
	}
	return params + "&parseTime=true"
}

func postgresURL(c config.DatabaseConfig) string {
	port := c.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(port),
		Path:     "/" + c.DBName,
		RawQuery: c.Params,
	}
	return u.String()
}

// Rebind rewrites ? placeholders into the $n form postgres expects.
func Rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, dbType string) error {
	driver, err := NormalizeDriver(dbType)
	if err != nil {
		return fmt.Errorf("unsupported driver for migration: %s", dbType)
	}
	var stmts []string
	switch driver {
	case DriverSQLite:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS ground_truth_labels (
				conversation_id TEXT PRIMARY KEY,
				payload TEXT NOT NULL,
				labeled_by TEXT NOT NULL DEFAULT '',
				labeled_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_labels_updated_at ON ground_truth_labels(updated_at DESC)`,
			`CREATE TABLE IF NOT EXISTS analysis_runs (
				run_id TEXT PRIMARY KEY,
				model TEXT NOT NULL,
				input_path TEXT NOT NULL,
				output_path TEXT NOT NULL,
				selection TEXT NOT NULL,
				processed INTEGER NOT NULL,
				succeeded INTEGER NOT NULL,
				failed INTEGER NOT NULL,
				interrupted INTEGER NOT NULL DEFAULT 0,
				started_at DATETIME NOT NULL,
				finished_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON analysis_runs(started_at DESC)`,
		}
	case DriverMySQL:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS ground_truth_labels (
				conversation_id VARCHAR(255) NOT NULL PRIMARY KEY,
				payload MEDIUMTEXT NOT NULL,
				labeled_by VARCHAR(255) NOT NULL DEFAULT '',
				labeled_at DATETIME(6) NOT NULL,
				updated_at DATETIME(6) NOT NULL,
				INDEX idx_labels_updated_at (updated_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS analysis_runs (
				run_id CHAR(36) NOT NULL PRIMARY KEY,
				model VARCHAR(255) NOT NULL,
				input_path TEXT NOT NULL,
				output_path TEXT NOT NULL,
				selection VARCHAR(255) NOT NULL,
				processed INT NOT NULL,
				succeeded INT NOT NULL,
				failed INT NOT NULL,
				interrupted TINYINT(1) NOT NULL DEFAULT 0,
				started_at DATETIME(6) NOT NULL,
				finished_at DATETIME(6) NOT NULL,
				INDEX idx_runs_started_at (started_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	case DriverPostgres:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS ground_truth_labels (
				conversation_id TEXT PRIMARY KEY,
				payload TEXT NOT NULL,
				labeled_by TEXT NOT NULL DEFAULT '',
				labeled_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_labels_updated_at ON ground_truth_labels(updated_at DESC)`,
			`CREATE TABLE IF NOT EXISTS analysis_runs (
				run_id UUID PRIMARY KEY,
				model TEXT NOT NULL,
				input_path TEXT NOT NULL,
				output_path TEXT NOT NULL,
				selection TEXT NOT NULL,
				processed INTEGER NOT NULL,
				succeeded INTEGER NOT NULL,
				failed INTEGER NOT NULL,
				interrupted BOOLEAN NOT NULL DEFAULT FALSE,
				started_at TIMESTAMPTZ NOT NULL,
				finished_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON analysis_runs(started_at DESC)`,
		}
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
