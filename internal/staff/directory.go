package staff

import (
	"context"
	"fmt"

	"pasientflyt/backend/internal/common"

	"gorm.io/gorm"
)

// Staff is one clinic employee reachable by NOTIFY_STAFF.
type Staff struct {
	ID             string `json:"id" gorm:"primaryKey;type:uuid"`
	OrganizationID string `json:"organizationId" gorm:"type:uuid;not null;index"`
	Name           string `json:"name" gorm:"size:255"`
	Email          string `json:"email" gorm:"size:255"`
	Role           string `json:"role" gorm:"size:50;index"` // e.g. DOCTOR, NURSE, RECEPTION, ADMIN
	IsActive       bool   `json:"isActive" gorm:"default:true"`

	common.TimestampModel
}

// Directory resolves staff audiences for workflow actions.
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// Resolve returns active staff matching either an explicit id list or a
// role filter. When both are given the id list wins; when neither is given
// the result is empty rather than the whole organization.
func (d *Directory) Resolve(ctx context.Context, organizationID string, ids []string, roles []string) ([]*Staff, error) {
	query := d.db.WithContext(ctx).
		Scopes(common.ByOrganization(organizationID), common.ActiveOnly())

	switch {
	case len(ids) > 0:
		query = query.Where("id IN ?", ids)
	case len(roles) > 0:
		query = query.Where("role IN ?", roles)
	default:
		return nil, nil
	}

	var members []*Staff
	if err := query.Find(&members).Error; err != nil {
		return nil, fmt.Errorf("resolve staff: %w", err)
	}
	return members, nil
}
