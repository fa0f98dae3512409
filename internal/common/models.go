package common

import "time"

// TimestampModel provides created/updated timestamps for embedding.
type TimestampModel struct {
	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// SoftDeleteModel provides soft-delete bookkeeping for embedding.
type SoftDeleteModel struct {
	DeletedAt *time.Time `json:"deletedAt,omitempty" gorm:"index"`
	DeletedBy string     `json:"deletedBy,omitempty" gorm:"size:100"`
}

// IsDeleted reports whether the row was soft-deleted.
func (m *SoftDeleteModel) IsDeleted() bool {
	return m.DeletedAt != nil
}

// SoftDelete marks the row deleted by the given operator.
func (m *SoftDeleteModel) SoftDelete(operatorID string) {
	now := time.Now().UTC()
	m.DeletedAt = &now
	m.DeletedBy = operatorID
}
