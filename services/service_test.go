package services

import (
	"path/filepath"
	"testing"

	"cryptovision_backend/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a throwaway SQLite database with the full schema
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	require.NoError(t, models.MigrateUserModels(db))
	require.NoError(t, models.MigrateCryptoModels(db))
	require.NoError(t, models.MigrateAlertModels(db))

	return db
}

// newTestUser inserts a minimal active user
func newTestUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	user := &models.User{
		Email:    email,
		Username: email,
		IsActive: true,
	}
	require.NoError(t, user.SetPassword("testpassword"))
	require.NoError(t, db.Create(user).Error)
	return user
}
