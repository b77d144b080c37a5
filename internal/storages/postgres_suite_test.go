package storage

import (
	"context"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"testing"
)

// postgresSuiteLock is the advisory lock key held by every postgres-backed suite.
const postgresSuiteLock = 715001

type PostgresTestSuite struct {
	suite.Suite
	db   *sqlx.DB
	m    *migrate.Migrate
	lock *sqlx.Conn
}

func runPostgresSuite(t *testing.T, s suite.TestingSuite) {
	viper.AutomaticEnv()
	if viper.GetString("DB_DSN") == "" {
		t.Skip("DB_DSN is not defined, skipping postgres tests")
	}
	suite.Run(t, s)
}

func (s *PostgresTestSuite) SetupSuite() {
	var err error
	s.db, err = sqlx.Connect("pgx", viper.GetString("DB_DSN"))
	require.NoError(s.T(), err, "failed to connect to database")

	// Packages are tested in parallel and share the database.
	s.lock, err = s.db.Connx(context.Background())
	require.NoError(s.T(), err, "failed to reserve connection")
	_, err = s.lock.ExecContext(context.Background(), "SELECT pg_advisory_lock($1)", postgresSuiteLock)
	require.NoError(s.T(), err, "failed to lock database")

	s.m, err = NewMigrator(s.db)
	require.NoError(s.T(), err, "failed to open migrations")

	err = s.m.Up()
	if err != migrate.ErrNoChange {
		require.NoError(s.T(), err, "failed to migrate database")
	}
}

func (s *PostgresTestSuite) TearDownSuite() {
	if s.m != nil {
		_ = s.m.Down()
	}
	if s.lock != nil {
		_, _ = s.lock.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", postgresSuiteLock)
		_ = s.lock.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
