package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"creditflow/internal/config"
	"creditflow/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestConfigurePool(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, configurePool(db, &config.Config{StoreDriver: config.StoreSQLite}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestMigrateCreatesCreditTables(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	for _, m := range PersistentModels() {
		assert.True(t, db.Migrator().HasTable(m), "%T", m)
	}
}

func TestOpenRepository(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name string
		cfg  *config.Config
	}{
		{"memory", &config.Config{StoreDriver: config.StoreMemory}},
		{"sqlite", &config.Config{StoreDriver: config.StoreSQLite, SQLitePath: filepath.Join(t.TempDir(), "credit.sqlite")}},
		{"bolt", &config.Config{StoreDriver: config.StoreBolt, BoltPath: filepath.Join(t.TempDir(), "credit.db")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo, err := OpenRepository(tc.cfg)
			require.NoError(t, err)
			t.Cleanup(func() { _ = repo.Close() })

			req := &models.CreditRequest{
				Cashier:   "Jane",
				Customer:  "Alice Johnson",
				Amount:    decimal.NewFromInt(150),
				Reason:    "Groceries",
				Status:    models.CreditRequestStatusPending,
				CreatedAt: time.Now().UTC(),
			}
			require.NoError(t, repo.CreateRequest(ctx, req))
			got, err := repo.GetRequest(ctx, req.ID)
			require.NoError(t, err)
			assert.Equal(t, "Alice Johnson", got.Customer)
		})
	}

	t.Run("unknown driver", func(t *testing.T) {
		_, err := OpenRepository(&config.Config{StoreDriver: "mongo"})
		assert.Error(t, err)
	})
}

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(&config.Config{DBHost: "db", DBPort: "5432", DBUser: "u", DBPassword: "p", DBName: "credit"})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=credit sslmode=disable", dsn)
}

func TestOpenPostgresPinger(t *testing.T) {
	t.Run("bad DSN", func(t *testing.T) {
		_, err := OpenPostgresPinger("postgres://user@localhost:notaport/credit")
		assert.Error(t, err)
	})

	t.Run("unreachable server fails the ping and the handle is reused", func(t *testing.T) {
		pinger, err := OpenPostgresPinger("postgres://user:pw@127.0.0.1:1/credit?sslmode=disable&connect_timeout=1")
		require.NoError(t, err)
		t.Cleanup(func() { _ = pinger.Close() })

		handle := pinger.db
		assert.Error(t, pinger.Ping(context.Background()))
		assert.Error(t, pinger.Ping(context.Background()))
		assert.Same(t, handle, pinger.db)
		assert.Equal(t, 1, pinger.db.Stats().MaxOpenConnections)
	})
}
