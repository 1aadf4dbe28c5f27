package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openAuditDB(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	s := NewStore(db)
	require.NoError(t, s.AutoMigrate())
	return s
}

func TestStore_InsertAndListByCase(t *testing.T) {
	s := openAuditDB(t)
	ctx := context.Background()

	// Call the insert path directly so the rows are visible without
	// waiting on the fire-and-forget goroutine.
	s.insert(ctx, NewRecord("EXPORT", "u1", "ATTORNEY", "case-1"))
	s.insert(ctx, NewFailureRecord("EXPORT", "u2", "CLIENT", "case-1", "requires export clearance"))
	s.insert(ctx, NewRecord("CONSENT_REVOKED", "u3", "CLIENT", "case-2"))

	entries, err := s.ListByCase(ctx, "case-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "EXPORT", entries[0].Action)
	assert.Equal(t, StatusSuccess, entries[0].Status)
	assert.Equal(t, "u1", entries[0].ActorID)
	assert.Equal(t, "ATTORNEY", entries[0].ActorRole)
	assert.NotEmpty(t, entries[0].ID, "primary key is assigned on create")

	assert.Equal(t, StatusFailure, entries[1].Status)
	assert.Equal(t, "requires export clearance", entries[1].Detail)

	other, err := s.ListByCase(ctx, "case-2")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, "CONSENT_REVOKED", other[0].Action)
}

func TestStore_ListByCaseOrdersOldestFirst(t *testing.T) {
	s := openAuditDB(t)
	ctx := context.Background()

	later := NewRecord("EXPORT", "u1", "STAFF", "case-1")
	later.Timestamp = time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC).Format(time.RFC3339Nano)
	earlier := NewRecord("CONSENT_REVOKED", "u1", "STAFF", "case-1")
	earlier.Timestamp = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC).Format(time.RFC3339Nano)

	s.insert(ctx, later)
	s.insert(ctx, earlier)

	entries, err := s.ListByCase(ctx, "case-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "CONSENT_REVOKED", entries[0].Action)
	assert.Equal(t, "EXPORT", entries[1].Action)
}

func TestStore_LogEventStampsTimestamp(t *testing.T) {
	s := openAuditDB(t)

	record := &Record{Action: "EXPORT", Status: StatusSuccess, ActorID: "u1", CaseID: "case-1"}
	s.LogEvent(context.Background(), record)
	assert.NotEmpty(t, record.Timestamp, "emit time is stamped before the async write")

	require.Eventually(t, func() bool {
		entries, err := s.ListByCase(context.Background(), "case-1")
		return err == nil && len(entries) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestStore_IsEnabled(t *testing.T) {
	assert.True(t, openAuditDB(t).IsEnabled())
	assert.False(t, NewStore(nil).IsEnabled())
}
