package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"pasientflyt/backend/internal/common"
)

// ErrNotFound is returned when a workflow does not exist in the
// organization or has been soft deleted.
var ErrNotFound = errors.New("workflow not found")

// Service manages workflow definitions. Every definition is validated
// before it is persisted so the engine only ever reads well-formed rules.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// CreateInput is the payload for a new workflow.
type CreateInput struct {
	Name              string            `json:"name" binding:"required"`
	Description       string            `json:"description"`
	TriggerType       TriggerType       `json:"triggerType" binding:"required"`
	TriggerConfig     TriggerConfig     `json:"triggerConfig"`
	Conditions        []ConditionClause `json:"conditions"`
	Actions           []ActionSpec      `json:"actions" binding:"required"`
	IsActive          *bool             `json:"isActive"`
	MaxRunsPerPatient *int              `json:"maxRunsPerPatient"`
}

func (s *Service) Create(ctx context.Context, organizationID, createdBy string, in CreateInput) (*Workflow, error) {
	w := &Workflow{
		ID:                uuid.New().String(),
		OrganizationID:    organizationID,
		Name:              in.Name,
		Description:       in.Description,
		TriggerType:       in.TriggerType,
		TriggerConfig:     in.TriggerConfig,
		Conditions:        in.Conditions,
		Actions:           in.Actions,
		IsActive:          true,
		MaxRunsPerPatient: 1,
		CreatedBy:         createdBy,
	}
	if in.IsActive != nil {
		w.IsActive = *in.IsActive
	}
	if in.MaxRunsPerPatient != nil {
		w.MaxRunsPerPatient = *in.MaxRunsPerPatient
	}
	if err := Validate(w); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(w).Error; err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}
	return w, nil
}

func (s *Service) Get(ctx context.Context, organizationID, id string) (*Workflow, error) {
	var w Workflow
	err := s.db.WithContext(ctx).
		Scopes(common.NotDeleted(), common.ByOrganization(organizationID)).
		Where("id = ?", id).
		First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return &w, nil
}

// ListFilter narrows a workflow listing.
type ListFilter struct {
	TriggerType TriggerType
	ActiveOnly  bool
}

func (s *Service) List(ctx context.Context, organizationID string, f ListFilter) ([]*Workflow, error) {
	q := s.db.WithContext(ctx).
		Scopes(common.NotDeleted(), common.ByOrganization(organizationID))
	if f.TriggerType != "" {
		q = q.Where("trigger_type = ?", f.TriggerType)
	}
	if f.ActiveOnly {
		q = q.Scopes(common.ActiveOnly())
	}
	var workflows []*Workflow
	if err := q.Order("created_at DESC").Find(&workflows).Error; err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	return workflows, nil
}

// UpdateInput carries the mutable fields; nil pointers are left unchanged.
type UpdateInput struct {
	Name              *string            `json:"name"`
	Description       *string            `json:"description"`
	TriggerType       *TriggerType       `json:"triggerType"`
	TriggerConfig     *TriggerConfig     `json:"triggerConfig"`
	Conditions        *[]ConditionClause `json:"conditions"`
	Actions           *[]ActionSpec      `json:"actions"`
	MaxRunsPerPatient *int               `json:"maxRunsPerPatient"`
}

func (s *Service) Update(ctx context.Context, organizationID, id string, in UpdateInput) (*Workflow, error) {
	w, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		w.Name = *in.Name
	}
	if in.Description != nil {
		w.Description = *in.Description
	}
	if in.TriggerType != nil {
		w.TriggerType = *in.TriggerType
	}
	if in.TriggerConfig != nil {
		w.TriggerConfig = *in.TriggerConfig
	}
	if in.Conditions != nil {
		w.Conditions = *in.Conditions
	}
	if in.Actions != nil {
		w.Actions = *in.Actions
	}
	if in.MaxRunsPerPatient != nil {
		w.MaxRunsPerPatient = *in.MaxRunsPerPatient
	}
	if err := Validate(w); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Save(w).Error; err != nil {
		return nil, fmt.Errorf("update workflow: %w", err)
	}
	return w, nil
}

// SetActive toggles a workflow on or off without touching its definition.
func (s *Service) SetActive(ctx context.Context, organizationID, id string, active bool) error {
	res := s.db.WithContext(ctx).Model(&Workflow{}).
		Scopes(common.NotDeleted(), common.ByOrganization(organizationID)).
		Where("id = ?", id).
		Update("is_active", active)
	if res.Error != nil {
		return fmt.Errorf("set workflow active: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete soft deletes; execution history is retained.
func (s *Service) Delete(ctx context.Context, organizationID, id, deletedBy string) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&Workflow{}).
		Scopes(common.NotDeleted(), common.ByOrganization(organizationID)).
		Where("id = ?", id).
		Updates(map[string]any{
			"deleted_at": now,
			"deleted_by": deletedBy,
			"is_active":  false,
		})
	if res.Error != nil {
		return fmt.Errorf("delete workflow: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// OrganizationIDs returns every organization with at least one active,
// time-derived workflow. The daily tick iterates this list.
func (s *Service) OrganizationIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&Workflow{}).
		Scopes(common.NotDeleted(), common.ActiveOnly()).
		Where("trigger_type IN ?", TimeTriggerTypes).
		Distinct("organization_id").
		Pluck("organization_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list organizations with time-based workflows: %w", err)
	}
	return ids, nil
}
