package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/javajoker/wildlife-licensing/internal/database"
	"github.com/javajoker/wildlife-licensing/internal/models"
	"github.com/javajoker/wildlife-licensing/internal/testutil"
)

func countUsers(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
	return n
}

func TestWithTransactionCommitsAndRollsBack(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	err := database.WithTransaction(ctx, db, func(tx *gorm.DB) error {
		return tx.Create(&models.User{Email: "kept@dept.gov"}).Error
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = database.WithTransaction(ctx, db, func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&models.User{Email: "dropped@dept.gov"}).Error)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), countUsers(t, db))
}

func TestWithTransactionJoinsOuterTransaction(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	err := database.WithTransaction(ctx, db, func(outer *gorm.DB) error {
		inner := database.WithTransaction(ctx, outer, func(tx *gorm.DB) error {
			return tx.Create(&models.User{Email: "inner@dept.gov"}).Error
		})
		require.NoError(t, inner)
		return errors.New("abort outer")
	})
	require.Error(t, err)
	assert.Zero(t, countUsers(t, db))
}

func TestWithTransactionRollsBackOnPanic(t *testing.T) {
	db := testutil.NewDB(t)

	assert.Panics(t, func() {
		database.WithTransaction(context.Background(), db, func(tx *gorm.DB) error {
			tx.Create(&models.User{Email: "panic@dept.gov"})
			panic("unexpected")
		})
	})
	assert.Zero(t, countUsers(t, db))
}

func TestSingleDefaultGroupConstraint(t *testing.T) {
	db := testutil.NewDB(t)

	require.NoError(t, db.Create(&models.Group{Name: "A", Kind: models.GroupKindAssessor, IsDefault: true}).Error)
	err := db.Create(&models.Group{Name: "B", Kind: models.GroupKindAssessor, IsDefault: true}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	assert.NoError(t, db.Create(&models.Group{Name: "C", Kind: models.GroupKindAssessor}).Error)
	assert.NoError(t, db.Create(&models.Group{Name: "D", Kind: models.GroupKindApprover, IsDefault: true}).Error)
}

func TestSeedInitialDataIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)

	require.NoError(t, database.SeedInitialData(db))
	require.NoError(t, database.SeedInitialData(db))

	var groups, standards int64
	db.Model(&models.Group{}).Where("is_default = ?", true).Count(&groups)
	db.Model(&models.StandardRequirement{}).Count(&standards)
	assert.Equal(t, int64(2), groups)
	assert.Equal(t, int64(3), standards)
}

func TestProposalLodgementNumber(t *testing.T) {
	db := testutil.NewDB(t)

	p := &models.Proposal{CustomerStatus: models.CustomerStatusDraft, ProcessingStatus: models.ProcessingStatusDraft}
	require.NoError(t, db.Create(p).Error)

	var stored models.Proposal
	require.NoError(t, db.First(&stored, p.ID).Error)
	assert.Equal(t, p.LodgementNumber, stored.LodgementNumber)
	assert.NotEmpty(t, stored.LodgementNumber)
}

func TestRunMigrationsCreatesEveryTable(t *testing.T) {
	db := testutil.NewDB(t)

	for _, model := range []interface{}{
		&models.Proposal{}, &models.Approval{}, &models.Compliance{}, &models.Referral{},
		&models.Requirement{}, &models.Group{}, &models.GroupScope{}, &models.AuditLog{}, &models.EmailLog{},
	} {
		assert.True(t, db.Migrator().HasTable(model), "%T", model)
	}
	assert.True(t, db.Migrator().HasColumn(&models.Proposal{}, "assessor_data"))
}

func TestProposalPayloadRoundTrip(t *testing.T) {
	db := testutil.NewDB(t)

	p := &models.Proposal{
		CustomerStatus:   models.CustomerStatusDraft,
		ProcessingStatus: models.ProcessingStatusDraft,
		Data:             models.JSONB{"hives": float64(12), "site": "Swan"},
	}
	require.NoError(t, db.Create(p).Error)

	var stored models.Proposal
	require.NoError(t, db.First(&stored, p.ID).Error)
	assert.Equal(t, models.JSONB{"hives": float64(12), "site": "Swan"}, stored.Data)
	assert.Nil(t, stored.AssessorData)
}
