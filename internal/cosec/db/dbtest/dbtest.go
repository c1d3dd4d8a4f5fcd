// Package dbtest opens throwaway SQLite-backed repositories for tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/gartstein/cosec/internal/cosec/db"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

// NewRepository returns a migrated repository over a private in-memory
// database. The shared cache keeps every pooled connection on the same data.
func NewRepository(t testing.TB) *db.Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	repo, err := db.Open(sqlite.Open(dsn))
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}
