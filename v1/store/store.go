// Package store provides the GORM-backed lookups the role fetcher and
// case handlers read. The role contract is deliberately narrow: only the
// role column of either table is read for authorization purposes.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound indicates the subject has no row in the queried table.
var ErrNotFound = errors.New("record not found")

// UserProfile is the preferred profile store row.
type UserProfile struct {
	UserID    string    `gorm:"primaryKey;column:user_id"`
	Email     string    `gorm:"column:email"`
	Role      string    `gorm:"column:role"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName sets the table name for GORM.
func (UserProfile) TableName() string {
	return "user_profiles"
}

// LegacyUser is the legacy user table consulted when the profile store
// has no row for the subject.
type LegacyUser struct {
	ID       string `gorm:"primaryKey;column:id"`
	Email    string `gorm:"column:email"`
	UserRole string `gorm:"column:user_role"`
}

// TableName sets the table name for GORM.
func (LegacyUser) TableName() string {
	return "rc_users"
}

// RoleStore resolves raw role strings for a subject id. Implementations
// return ErrNotFound when the subject has no row; any other error is a
// hard lookup failure.
type RoleStore interface {
	PrimaryRole(ctx context.Context, userID string) (string, error)
	LegacyRole(ctx context.Context, userID string) (string, error)
}

// GormRoleStore reads roles through a GORM connection.
type GormRoleStore struct {
	db *gorm.DB
}

// NewGormRoleStore creates a role store over an existing connection.
func NewGormRoleStore(db *gorm.DB) *GormRoleStore {
	return &GormRoleStore{db: db}
}

// PrimaryRole looks the subject up in the profile store.
func (s *GormRoleStore) PrimaryRole(ctx context.Context, userID string) (string, error) {
	var profile UserProfile
	err := s.db.WithContext(ctx).Select("user_id", "role").Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("profile lookup failed: %w", err)
	}
	return profile.Role, nil
}

// LegacyRole looks the subject up in the legacy user table.
func (s *GormRoleStore) LegacyRole(ctx context.Context, userID string) (string, error) {
	var user LegacyUser
	err := s.db.WithContext(ctx).Select("id", "user_role").Where("id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("legacy user lookup failed: %w", err)
	}
	return user.UserRole, nil
}

// Config holds database connection settings.
type Config struct {
	// Driver is "postgres" or "sqlite".
	Driver   string
	Host     string
	Port     string
	Username string
	Password string
	Database string
	SSLMode  string
	// Path is the sqlite database path (":memory:" for tests).
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Connect opens a GORM connection for the configured driver.
func Connect(cfg Config) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	var db *gorm.DB
	var err error
	switch cfg.Driver {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(cfg.Path), gormConfig)
	case "postgres", "":
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode)
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	slog.Info("Database connected", "driver", cfg.Driver)
	return db, nil
}
