package driver

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ConnectDB opens the Postgres pool from the environment and verifies it
// with a ping. DATABASE_URL wins; otherwise the discrete DB_* variables
// are assembled.
func ConnectDB() *sql.DB {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			envOr("DB_HOST", "localhost"),
			envOr("DB_PORT", "5432"),
			envOr("DB_USER", "postgres"),
			os.Getenv("DB_PASSWORD"),
			envOr("DB_NAME", "ellarises"),
			envOr("DB_SSLMODE", "disable"),
		)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logrus.WithError(err).Fatal("failed to open database")
	}
	if err := db.Ping(); err != nil {
		logrus.WithError(err).Fatal("failed to connect to database")
	}
	return db
}

// Migrate applies all pending migrations from dir at startup.
func Migrate(db *sql.DB, dir string) error {
	drv, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return errors.Wrap(err, "creating migration driver")
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", drv)
	if err != nil {
		return errors.Wrap(err, "creating migrator")
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, "applying migrations")
	}
	logrus.WithField("dir", dir).Info("migrations up to date")
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
