package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/rcms-care/portal-backend/v1/models"
)

// CaseRecord is the persisted case row. Consent lives inline; providers
// in a child table.
type CaseRecord struct {
	ID                   string     `gorm:"primaryKey;column:id"`
	Status               string     `gorm:"column:status"`
	ClientFullName       string     `gorm:"column:client_full_name"`
	ClientRcmsID         string     `gorm:"column:client_rcms_id;index"`
	DesignatedAttorneyID string     `gorm:"column:designated_attorney_id"`
	ConsentSigned        bool       `gorm:"column:consent_signed"`
	ConsentSignedAt      *time.Time `gorm:"column:consent_signed_at"`
	ShareWithAttorney    bool       `gorm:"column:share_with_attorney"`
	ShareWithProviders   bool       `gorm:"column:share_with_providers"`
	RestrictedAccess     bool       `gorm:"column:restricted_access"`
	CreatedAt            time.Time  `gorm:"column:created_at"`
	UpdatedAt            time.Time  `gorm:"column:updated_at"`
}

// TableName sets the table name for GORM.
func (CaseRecord) TableName() string {
	return "cases"
}

// CaseProvider links a provider to a case.
type CaseProvider struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	CaseID     string    `gorm:"column:case_id;index"`
	ProviderID string    `gorm:"column:provider_id"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

// TableName sets the table name for GORM.
func (CaseProvider) TableName() string {
	return "case_providers"
}

// Snapshot converts the row to the policy engine's view of the case.
func (r *CaseRecord) Snapshot() models.CaseSnapshot {
	return models.CaseSnapshot{
		ID:     r.ID,
		Status: models.CaseStatus(r.Status),
		Consent: models.Consent{
			Signed: r.ConsentSigned,
			Scope: models.ConsentScope{
				ShareWithAttorney:  r.ShareWithAttorney,
				ShareWithProviders: r.ShareWithProviders,
			},
			RestrictedAccess: r.RestrictedAccess,
			SignedAt:         r.ConsentSignedAt,
		},
		DesignatedAttorneyID: r.DesignatedAttorneyID,
		Client: models.ClientRecord{
			FullName: r.ClientFullName,
			RcmsID:   r.ClientRcmsID,
		},
	}
}

// CaseStore reads and mutates cases. All reads return snapshots; the
// policy engine, not the store, decides what a caller may see.
type CaseStore interface {
	GetCase(ctx context.Context, caseID string) (models.CaseSnapshot, error)
	SearchByName(ctx context.Context, name string) ([]models.CaseSnapshot, error)
	RevokeConsent(ctx context.Context, caseID string) (models.CaseSnapshot, error)
	RouteProvider(ctx context.Context, caseID, providerID string) error
	AddProvider(ctx context.Context, caseID, providerID string) error
	SwapProvider(ctx context.Context, caseID, fromProviderID, toProviderID string) error
}

// GormCaseStore is the GORM-backed CaseStore.
type GormCaseStore struct {
	db *gorm.DB
}

// NewGormCaseStore creates a case store over an existing connection.
func NewGormCaseStore(db *gorm.DB) *GormCaseStore {
	return &GormCaseStore{db: db}
}

// GetCase fetches one case by id.
func (s *GormCaseStore) GetCase(ctx context.Context, caseID string) (models.CaseSnapshot, error) {
	var record CaseRecord
	err := s.db.WithContext(ctx).Where("id = ?", caseID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.CaseSnapshot{}, ErrNotFound
		}
		return models.CaseSnapshot{}, fmt.Errorf("case lookup failed: %w", err)
	}
	return record.Snapshot(), nil
}

// SearchByName finds cases by client name substring. Callers must gate
// this behind CanSearchByName; the store does not check roles.
func (s *GormCaseStore) SearchByName(ctx context.Context, name string) ([]models.CaseSnapshot, error) {
	var records []CaseRecord
	err := s.db.WithContext(ctx).
		Where("client_full_name LIKE ?", "%"+name+"%").
		Order("id asc").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("case search failed: %w", err)
	}
	snapshots := make([]models.CaseSnapshot, 0, len(records))
	for i := range records {
		snapshots = append(snapshots, records[i].Snapshot())
	}
	return snapshots, nil
}

// RevokeConsent clears the consent scope and moves the case to sensitive
// hold in one transaction, so no reader sees a revoked consent with an
// open status.
func (s *GormCaseStore) RevokeConsent(ctx context.Context, caseID string) (models.CaseSnapshot, error) {
	var record CaseRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", caseID).First(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		updates := map[string]interface{}{
			"consent_signed":       false,
			"share_with_attorney":  false,
			"share_with_providers": false,
			"status":               string(models.CaseStatusHoldSensitive),
		}
		if err := tx.Model(&CaseRecord{}).Where("id = ?", caseID).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", caseID).First(&record).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.CaseSnapshot{}, ErrNotFound
		}
		return models.CaseSnapshot{}, fmt.Errorf("consent revocation failed: %w", err)
	}
	return record.Snapshot(), nil
}

// RouteProvider records the routing and moves the case to ROUTED.
func (s *GormCaseStore) RouteProvider(ctx context.Context, caseID, providerID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&CaseRecord{}).Where("id = ?", caseID).
			Update("status", string(models.CaseStatusRouted))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Create(&CaseProvider{CaseID: caseID, ProviderID: providerID}).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("provider routing failed: %w", err)
	}
	return nil
}

// AddProvider attaches a provider to the case.
func (s *GormCaseStore) AddProvider(ctx context.Context, caseID, providerID string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&CaseRecord{}).Where("id = ?", caseID).Count(&count).Error; err != nil {
		return fmt.Errorf("case lookup failed: %w", err)
	}
	if count == 0 {
		return ErrNotFound
	}
	if err := s.db.WithContext(ctx).Create(&CaseProvider{CaseID: caseID, ProviderID: providerID}).Error; err != nil {
		return fmt.Errorf("provider add failed: %w", err)
	}
	return nil
}

// SwapProvider replaces one provider with another in one transaction.
func (s *GormCaseStore) SwapProvider(ctx context.Context, caseID, fromProviderID, toProviderID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&CaseProvider{}).
			Where("case_id = ? AND provider_id = ?", caseID, fromProviderID).
			Update("provider_id", toProviderID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("provider swap failed: %w", err)
	}
	return nil
}

// AutoMigrate creates the case tables plus the role lookup tables. Local
// and test deployments only; production schemas are managed externally.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&UserProfile{}, &LegacyUser{}, &CaseRecord{}, &CaseProvider{})
}
