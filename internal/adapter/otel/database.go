package otel

import (
	"database/sql"
	"fmt"

	"github.com/XSAM/otelsql"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OpenDB opens the program database with OpenTelemetry instrumentation.
// Every SQL operation is traced and tagged with the database file, and
// connection-pool metrics are exported alongside.
func OpenDB(dataSourceName string) (*sql.DB, error) {
	attrs := []attribute.KeyValue{
		semconv.DBSystemSqlite,
		attribute.String("db.namespace", dataSourceName),
	}

	db, err := otelsql.Open("sqlite", dataSourceName, otelsql.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("opening instrumented database: %w", err)
	}

	// The program store and the River notification queue share this
	// database, so keep a single connection and let writers queue on
	// busy_timeout instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(attrs...)); err != nil {
		return nil, fmt.Errorf("registering db stats metrics: %w", err)
	}

	return db, nil
}
