package patient

import (
	"strings"
	"time"

	"pasientflyt/backend/internal/common"
)

// Lifecycle stages a patient moves through.
const (
	LifecycleLead     = "LEAD"
	LifecycleNew      = "NEW"
	LifecycleActive   = "ACTIVE"
	LifecycleAtRisk   = "AT_RISK"
	LifecycleDormant  = "DORMANT"
	LifecycleArchived = "ARCHIVED"
)

// Patient is the clinic patient row read by the workflow engine. The engine
// consumes it read-only except through UPDATE_STATUS / UPDATE_LIFECYCLE /
// ADD_TAG actions.
type Patient struct {
	ID             string `json:"id" gorm:"primaryKey;type:uuid"`
	OrganizationID string `json:"organizationId" gorm:"type:uuid;not null;index"`

	FirstName string `json:"firstName" gorm:"size:100"`
	LastName  string `json:"lastName" gorm:"size:100"`
	Email     string `json:"email" gorm:"size:255"`
	Phone     string `json:"phone" gorm:"size:50"`

	Status    string   `json:"status" gorm:"size:50;index"`
	Lifecycle string   `json:"lifecycle" gorm:"size:50;index"`
	Tags      []string `json:"tags" gorm:"type:jsonb;serializer:json"`

	BirthDate     *time.Time `json:"birthDate"`
	LastVisitDate *time.Time `json:"lastVisitDate" gorm:"index"`
	TotalVisits   int        `json:"totalVisits" gorm:"default:0"`

	common.TimestampModel
	common.SoftDeleteModel
}

// FullName joins first and last name, tolerating either being empty.
func (p *Patient) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// HasTag reports whether the tag is already present (case-sensitive).
func (p *Patient) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// EvaluationContext flattens the patient into the field map the condition
// evaluator reads. Date fields are rendered as YYYY-MM-DD strings; absent
// values are simply omitted so clauses referencing them fail closed.
func (p *Patient) EvaluationContext() map[string]any {
	ctx := map[string]any{
		"first_name":   p.FirstName,
		"last_name":    p.LastName,
		"status":       p.Status,
		"lifecycle":    p.Lifecycle,
		"tags":         p.Tags,
		"total_visits": p.TotalVisits,
	}
	if p.Email != "" {
		ctx["email"] = p.Email
	}
	if p.Phone != "" {
		ctx["phone"] = p.Phone
	}
	if p.LastVisitDate != nil {
		ctx["last_visit_date"] = p.LastVisitDate.Format("2006-01-02")
		ctx["days_since_visit"] = int(time.Since(*p.LastVisitDate).Hours() / 24)
	}
	if p.BirthDate != nil {
		ctx["birth_date"] = p.BirthDate.Format("2006-01-02")
	}
	return ctx
}
