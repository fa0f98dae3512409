package patient

import (
	"context"
	"errors"
	"fmt"

	"pasientflyt/backend/internal/common"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a patient id does not resolve.
var ErrNotFound = errors.New("patient not found")

// Service provides patient reads and the narrow set of mutations workflow
// actions are allowed to perform.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Get fetches one patient by id within an organization.
func (s *Service) Get(ctx context.Context, organizationID, patientID string) (*Patient, error) {
	var p Patient
	err := s.db.WithContext(ctx).
		Scopes(common.NotDeleted(), common.ByOrganization(organizationID)).
		Where("id = ?", patientID).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return &p, nil
}

// ListByOrganization streams the organization's patients in batches. The
// time-based trigger scan uses this instead of loading the whole population
// at once.
func (s *Service) ListByOrganization(ctx context.Context, organizationID string, fn func(batch []*Patient) error) error {
	const batchSize = 500

	var batch []*Patient
	result := s.db.WithContext(ctx).
		Scopes(common.NotDeleted(), common.ByOrganization(organizationID)).
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			return fn(batch)
		})
	if result.Error != nil {
		return fmt.Errorf("scan patients: %w", result.Error)
	}
	return nil
}

// UpdateStatus sets the patient's status field.
func (s *Service) UpdateStatus(ctx context.Context, organizationID, patientID, status string) error {
	return s.updateColumn(ctx, organizationID, patientID, "status", status)
}

// UpdateLifecycle sets the patient's lifecycle stage.
func (s *Service) UpdateLifecycle(ctx context.Context, organizationID, patientID, lifecycle string) error {
	return s.updateColumn(ctx, organizationID, patientID, "lifecycle", lifecycle)
}

func (s *Service) updateColumn(ctx context.Context, organizationID, patientID, column string, value string) error {
	res := s.db.WithContext(ctx).
		Model(&Patient{}).
		Scopes(common.ByOrganization(organizationID)).
		Where("id = ?", patientID).
		Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("update patient %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddTag appends the tag with set-union semantics: adding an existing tag
// is a no-op, not a duplicate.
func (s *Service) AddTag(ctx context.Context, organizationID, patientID, tag string) error {
	p, err := s.Get(ctx, organizationID, patientID)
	if err != nil {
		return err
	}
	if p.HasTag(tag) {
		return nil
	}
	p.Tags = append(p.Tags, tag)
	if err := s.db.WithContext(ctx).Model(p).Update("tags", p.Tags).Error; err != nil {
		return fmt.Errorf("add tag: %w", err)
	}
	return nil
}
