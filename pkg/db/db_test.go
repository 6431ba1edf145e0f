package db

import (
	"errors"
	"testing"

	"creatorhub-engine/pkg/config"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
)

func TestDialect(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Host = "db"
	cfg.Database.Port = "5432"
	cfg.Database.User = "app"
	cfg.Database.DBNAME = "earnings"

	cfg.Database.Type = "postgres"
	d, err := Dialect(cfg)
	require.NoError(t, err)
	require.Equal(t, "postgres", d.Name())
	require.Equal(t, "earnings", getDBNameFromDialector(d.(*postgres.Dialector)))

	cfg.Database.Type = "mysql"
	d, err = Dialect(cfg)
	require.NoError(t, err)
	require.Equal(t, "mysql", d.Name())
	require.Equal(t, "earnings", getDBNameFromDialector(d.(*mysql.Dialector)))

	cfg.Database.Type = "sqlite"
	d, err = Dialect(cfg)
	require.NoError(t, err)
	require.Equal(t, "sqlite", d.Name())

	cfg.Database.Type = "oracle"
	_, err = Dialect(cfg)
	require.True(t, errors.Is(err, ErrUnsupportedDialect))
}
