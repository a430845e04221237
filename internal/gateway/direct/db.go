// Package direct implements the gateway against self-hosted infrastructure:
// PostgreSQL for the table store, S3-compatible object storage for blobs, and
// a local accounts table for auth. It serves development and self-hosted
// deployments; the hosted service is reached through gateway/rest instead.
package direct

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"lumigram/internal/config"
)

// Connect opens the PostgreSQL pool used by the table store and auth.
func Connect(cfg *config.Config) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=require",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}
