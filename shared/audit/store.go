package audit

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// Store is an Auditor that keeps the trail in the service's own
// database. Used by local and single-tenant deployments that do not run
// a separate trail service. Writes are append-only and asynchronous;
// a failed insert is logged and dropped, never surfaced to the caller.
type Store struct {
	db *gorm.DB
}

// NewStore creates a database-backed auditor over an existing connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates the audit_entries table.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Entry{})
}

// IsEnabled reports whether the store has a usable connection.
func (s *Store) IsEnabled() bool {
	return s.db != nil
}

// LogEvent inserts the record in a background goroutine.
func (s *Store) LogEvent(ctx context.Context, record *Record) {
	if s.db == nil {
		return
	}
	stamp(record)
	go s.insert(context.Background(), record)
}

func (s *Store) insert(ctx context.Context, record *Record) {
	ts, err := time.Parse(time.RFC3339Nano, record.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}
	entry := Entry{
		Timestamp: ts,
		Action:    record.Action,
		Status:    record.Status,
		ActorID:   record.ActorID,
		ActorRole: record.ActorRole,
		CaseID:    record.CaseID,
		Detail:    record.Detail,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		slog.Error("Failed to persist audit record", "error", err, "action", record.Action)
	}
}

// ListByCase returns the trail for one case, oldest first.
func (s *Store) ListByCase(ctx context.Context, caseID string) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("timestamp asc").
		Find(&entries).Error
	return entries, err
}
