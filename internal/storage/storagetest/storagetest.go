package storagetest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Gopher0727/ProfDash/config"
	"github.com/Gopher0727/ProfDash/internal/storage"
)

// NewDB 为每个测试创建独立的内存 sqlite 库并完成迁移
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := storage.NewDB(&config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		LogLevel:   "silent",
	})
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db))

	t.Cleanup(func() {
		_ = storage.Close(db)
	})
	return db
}
