package patient

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Patient{}))
	return db
}

func seed(t *testing.T, db *gorm.DB, p *Patient) *Patient {
	t.Helper()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.OrganizationID == "" {
		p.OrganizationID = uuid.New().String()
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func TestGetScopedToOrganization(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	p := seed(t, db, &Patient{FirstName: "Kari"})

	got, err := svc.Get(ctx, p.OrganizationID, p.ID)
	require.NoError(t, err)
	require.Equal(t, "Kari", got.FirstName)

	_, err = svc.Get(ctx, uuid.New().String(), p.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetExcludesSoftDeleted(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	p := seed(t, db, &Patient{FirstName: "Ola"})
	now := time.Now().UTC()
	require.NoError(t, db.Model(p).Update("deleted_at", now).Error)

	_, err := svc.Get(context.Background(), p.OrganizationID, p.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateLifecycleAndStatus(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	p := seed(t, db, &Patient{Lifecycle: LifecycleActive, Status: "OK"})

	require.NoError(t, svc.UpdateLifecycle(ctx, p.OrganizationID, p.ID, LifecycleAtRisk))
	require.NoError(t, svc.UpdateStatus(ctx, p.OrganizationID, p.ID, "FOLLOW_UP"))

	got, err := svc.Get(ctx, p.OrganizationID, p.ID)
	require.NoError(t, err)
	require.Equal(t, LifecycleAtRisk, got.Lifecycle)
	require.Equal(t, "FOLLOW_UP", got.Status)

	require.ErrorIs(t, svc.UpdateStatus(ctx, p.OrganizationID, uuid.New().String(), "X"), ErrNotFound)
}

func TestAddTagSetUnion(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	p := seed(t, db, &Patient{Tags: []string{"vip"}})

	require.NoError(t, svc.AddTag(ctx, p.OrganizationID, p.ID, "recall"))
	// Re-adding is a no-op, never a duplicate.
	require.NoError(t, svc.AddTag(ctx, p.OrganizationID, p.ID, "recall"))

	got, err := svc.Get(ctx, p.OrganizationID, p.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"vip", "recall"}, got.Tags)
}

func TestListByOrganizationBatches(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	orgID := uuid.New().String()
	for i := 0; i < 7; i++ {
		seed(t, db, &Patient{OrganizationID: orgID})
	}
	seed(t, db, &Patient{}) // other org

	var seen int
	err := svc.ListByOrganization(context.Background(), orgID, func(batch []*Patient) error {
		seen += len(batch)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 7, seen)
}

func TestEvaluationContextOmitsAbsentValues(t *testing.T) {
	p := &Patient{FirstName: "Kari", Lifecycle: LifecycleActive}
	ctx := p.EvaluationContext()

	require.Equal(t, "Kari", ctx["first_name"])
	_, hasEmail := ctx["email"]
	require.False(t, hasEmail)
	_, hasVisit := ctx["last_visit_date"]
	require.False(t, hasVisit)

	lastVisit := time.Now().UTC().AddDate(0, 0, -10)
	p.LastVisitDate = &lastVisit
	p.Email = "kari@example.no"
	ctx = p.EvaluationContext()
	require.Equal(t, "kari@example.no", ctx["email"])
	require.Equal(t, 10, ctx["days_since_visit"])
}
