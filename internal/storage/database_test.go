package storage

import (
	"testing"

	"convanalyzer/internal/config"
)

func TestOpenAndMigrateInMemory(t *testing.T) {
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// idempotent
	if err := Migrate(db, "sqlite"); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	for _, table := range []string{"ground_truth_labels", "analysis_runs"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"oracle": {DSN: "x"}}}
	if _, err := Open("oracle", cfg); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := Open("mysql", cfg); err == nil {
		t.Fatalf("expected missing config error")
	}
}

func TestNormalizeDriver(t *testing.T) {
	cases := map[string]string{
		"sqlite":     DriverSQLite,
		"SQLite3":    DriverSQLite,
		"mysql":      DriverMySQL,
		"postgresql": DriverPostgres,
		"pgx":        DriverPostgres,
	}
	for in, want := range cases {
		got, err := NormalizeDriver(in)
		if err != nil || got != want {
			t.Fatalf("NormalizeDriver(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
}

func TestRebind(t *testing.T) {
	q := `UPDATE t SET a = ?, b = ? WHERE id = ?`
	if got := Rebind(DriverPostgres, q); got != `UPDATE t SET a = $1, b = $2 WHERE id = $3` {
		t.Fatalf("unexpected postgres query %q", got)
	}
	if got := Rebind(DriverSQLite, q); got != q {
		t.Fatalf("sqlite query should be unchanged, got %q", got)
	}
}

func TestMysqlParamsAddsParseTime(t *testing.T) {
	if got := mysqlParams(""); got != "parseTime=true" {
		t.Fatalf("unexpected %q", got)
	}
	if got := mysqlParams("charset=utf8mb4"); got != "charset=utf8mb4&parseTime=true" {
		t.Fatalf("unexpected %q", got)
	}
	if got := mysqlParams("parseTime=false"); got != "parseTime=false" {
		t.Fatalf("explicit setting should win, got %q", got)
	}
}

func TestPostgresURL(t *testing.T) {
	got := postgresURL(config.DatabaseConfig{Host: "db", Username: "u", Password: "p@ss", DBName: "labels", Params: "sslmode=disable"})
	want := "postgres://u:p%40ss@db:5432/labels?sslmode=disable"
	if got != want {
		t.Fatalf("postgresURL = %q, want %q", got, want)
	}
}
