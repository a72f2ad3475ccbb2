package mysql

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketetl/internal/ddl"
	"marketetl/internal/schema"
	"marketetl/internal/storage"
)

// TestMySQLStorageRegistrationUsesNewRepositoryHook verifies that the "mysql"
// backend registered in init() goes through newRepository and that Close
// reaches the cleanup function.
func TestMySQLStorageRegistrationUsesNewRepositoryHook(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var gotCfg Config
	closed := false
	newRepository = func(ctx context.Context, cfg Config) (*Repository, func(), error) {
		gotCfg = cfg
		return &Repository{}, func() { closed = true }, nil
	}

	repo, err := storage.New(context.Background(), storage.Config{
		Kind:          "mysql",
		DSN:           "u:p@tcp(localhost:3306)/markets",
		Table:         "market_events",
		OverwriteMode: storage.OverwriteStatic,
	})
	require.NoError(t, err)
	assert.Equal(t, "u:p@tcp(localhost:3306)/markets", gotCfg.DSN)
	assert.Equal(t, "market_events", gotCfg.Table)
	assert.True(t, gotCfg.Static)

	repo.Close()
	assert.True(t, closed)
}

func TestMySQLStorageRegistrationPropagatesError(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	boom := errors.New("boom")
	newRepository = func(context.Context, Config) (*Repository, func(), error) { return nil, nil, boom }

	repo, err := storage.New(context.Background(), storage.Config{Kind: "mysql"})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, repo)
}

func TestNewRepository_InvalidDSN(t *testing.T) {
	t.Parallel()

	_, _, err := NewRepository(context.Background(), Config{DSN: "not a dsn", Table: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql dsn")

	_, _, err = NewRepository(context.Background(), Config{DSN: "u:p@tcp(h:3306)/db"})
	assert.ErrorContains(t, err, "table must not be empty")
}

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()

	got, err := ddl.BuildCreateTableSQL(ddl.FromContract(schema.Canonical, "markets.market_events", Dialect), Dialect)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "CREATE TABLE IF NOT EXISTS `markets`.`market_events` ("))
	assert.Contains(t, got, "`partition` VARCHAR(255)")
	assert.Contains(t, got, "`bid_pr` DECIMAL(18,2)")
	assert.Contains(t, got, "`ask_size` INT")
}

func TestQuoteIdent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "`partition`", QuoteIdent("partition"))
	assert.Equal(t, "`we``ird`", QuoteIdent("we`ird"))
}
