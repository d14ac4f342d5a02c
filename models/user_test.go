package models

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newModelTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func TestMigrateUserModelsSeedsRolesOnce(t *testing.T) {
	db := newModelTestDB(t)

	require.NoError(t, MigrateUserModels(db))
	// re-running the migration must not duplicate the seeded roles
	require.NoError(t, MigrateUserModels(db))

	var count int64
	require.NoError(t, db.Model(&Role{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)

	for _, name := range []string{RoleAdmin, RoleAnalyst, RoleViewer} {
		var role Role
		assert.NoError(t, db.Where("name = ?", name).First(&role).Error, name)
	}
}

func TestHasRoleSuperuserBypass(t *testing.T) {
	db := newModelTestDB(t)
	require.NoError(t, MigrateUserModels(db))

	admin := &User{Email: "root@example.com", Username: "root", IsActive: true, IsSuperuser: true}
	require.NoError(t, admin.SetPassword("testpassword"))
	require.NoError(t, db.Create(admin).Error)

	has, err := HasRole(db, admin, RoleAnalyst)
	require.NoError(t, err)
	assert.True(t, has)

	viewer := &User{Email: "viewer@example.com", Username: "viewer", IsActive: true}
	require.NoError(t, viewer.SetPassword("testpassword"))
	require.NoError(t, db.Create(viewer).Error)

	has, err = HasRole(db, viewer, RoleAnalyst)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, AddRole(db, viewer.ID, RoleAnalyst))
	has, err = HasRole(db, viewer, RoleAnalyst)
	require.NoError(t, err)
	assert.True(t, has)
}
