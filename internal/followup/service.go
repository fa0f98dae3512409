package followup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pasientflyt/backend/internal/common"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Kind distinguishes patient follow-ups from internal staff tasks.
type Kind string

const (
	KindFollowUp Kind = "FOLLOW_UP"
	KindTask     Kind = "TASK"
)

// FollowUp is a pending piece of work created for a patient or a staff
// member. Rows created by the workflow engine carry AutoGenerated and a
// TriggerRule provenance string naming the workflow that produced them.
type FollowUp struct {
	ID             string  `json:"id" gorm:"primaryKey;type:uuid"`
	OrganizationID string  `json:"organizationId" gorm:"type:uuid;not null;index"`
	PatientID      *string `json:"patientId,omitempty" gorm:"type:uuid;index"`
	AssigneeID     *string `json:"assigneeId,omitempty" gorm:"type:uuid;index"`

	Kind        Kind      `json:"kind" gorm:"size:20;not null"`
	Title       string    `json:"title" gorm:"size:255;not null"`
	Description string    `json:"description" gorm:"type:text"`
	DueDate     time.Time `json:"dueDate" gorm:"index"`
	Status      string    `json:"status" gorm:"size:20;default:PENDING;index"`

	AutoGenerated bool   `json:"autoGenerated" gorm:"default:false"`
	TriggerRule   string `json:"triggerRule,omitempty" gorm:"size:255"`

	common.TimestampModel
}

// CreateInput captures everything needed to open a follow-up or task.
type CreateInput struct {
	OrganizationID string
	PatientID      *string
	AssigneeID     *string
	Kind           Kind
	Title          string
	Description    string
	DueInDays      int
	AutoGenerated  bool
	TriggerRule    string
}

// Service persists follow-ups and tasks.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, logger: logger}
}

// Create opens a follow-up with a due date of today plus DueInDays.
func (s *Service) Create(ctx context.Context, in CreateInput) (*FollowUp, error) {
	if in.Title == "" {
		return nil, errors.New("follow-up title must not be empty")
	}
	if in.Kind == "" {
		in.Kind = KindFollowUp
	}

	now := time.Now().UTC()
	fu := &FollowUp{
		ID:             uuid.New().String(),
		OrganizationID: in.OrganizationID,
		PatientID:      in.PatientID,
		AssigneeID:     in.AssigneeID,
		Kind:           in.Kind,
		Title:          in.Title,
		Description:    in.Description,
		DueDate:        now.AddDate(0, 0, in.DueInDays),
		Status:         "PENDING",
		AutoGenerated:  in.AutoGenerated,
		TriggerRule:    in.TriggerRule,
	}

	if err := s.db.WithContext(ctx).Create(fu).Error; err != nil {
		return nil, fmt.Errorf("create follow-up: %w", err)
	}

	s.logger.Debug("follow-up created",
		zap.String("id", fu.ID),
		zap.String("kind", string(fu.Kind)),
		zap.Bool("auto_generated", fu.AutoGenerated),
	)
	return fu, nil
}

// ListForPatient returns a patient's open follow-ups, newest first.
func (s *Service) ListForPatient(ctx context.Context, organizationID, patientID string) ([]*FollowUp, error) {
	var items []*FollowUp
	err := s.db.WithContext(ctx).
		Scopes(common.ByOrganization(organizationID)).
		Where("patient_id = ?", patientID).
		Order("created_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list follow-ups: %w", err)
	}
	return items, nil
}
