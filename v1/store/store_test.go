package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Connect(Config{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func TestGormRoleStore_PrimaryRole(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&UserProfile{
		UserID: "u1",
		Email:  "nurse@rcms.example",
		Role:   "rn_ccm",
	}).Error)

	s := NewGormRoleStore(db)

	role, err := s.PrimaryRole(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "rn_ccm", role, "raw value is returned untouched")

	_, err = s.PrimaryRole(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormRoleStore_LegacyRole(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&LegacyUser{
		ID:       "u2",
		Email:    "old@rcms.example",
		UserRole: "attorney",
	}).Error)

	s := NewGormRoleStore(db)

	role, err := s.LegacyRole(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, "attorney", role)

	_, err = s.LegacyRole(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormRoleStore_PrimaryRolePostgres(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"user_id", "role"}).
		AddRow("u1", "super_admin")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "user_id","role" FROM "user_profiles" WHERE user_id = $1 ORDER BY "user_profiles"."user_id" LIMIT $2`)).
		WithArgs("u1", 1).
		WillReturnRows(rows)

	s := NewGormRoleStore(db)
	role, err := s.PrimaryRole(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "super_admin", role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect(Config{Driver: "oracle"})
	assert.ErrorContains(t, err, "unsupported database driver")
}
