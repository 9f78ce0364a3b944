// internal/database/connection.go
package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/wildlife-licensing/internal/config"
	"github.com/javajoker/wildlife-licensing/internal/models"
)

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := Open(postgres.Open(cfg.DSN()), cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("Database connection established successfully")
	return db, nil
}

// Open connects with the shared gorm settings. Duplicate-key errors are translated to gorm.ErrDuplicatedKey.
func Open(dialector gorm.Dialector, logLevel string) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.New(
			log.New(logrus.StandardLogger().Writer(), "", 0),
			logger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  parseLogLevel(logLevel),
				IgnoreRecordNotFoundError: true,
			},
		),
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	return gorm.Open(dialector, gormConfig)
}

func parseLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Error getting underlying sql.DB")
		return
	}

	if err := sqlDB.Close(); err != nil {
		logrus.WithError(err).Error("Error closing database connection")
	} else {
		logrus.Info("Database connection closed successfully")
	}
}

func RunMigrations(db *gorm.DB) error {
	logrus.Info("Running database migrations...")

	err := db.AutoMigrate(
		&models.User{},
		&models.Organisation{},
		&models.Group{},
		&models.GroupScope{},
		&models.Proposal{},
		&models.DeclinedDetails{},
		&models.AmendmentRequest{},
		&models.StandardRequirement{},
		&models.Requirement{},
		&models.Referral{},
		&models.Approval{},
		&models.Compliance{},
		&models.AuditLog{},
		&models.EmailLog{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := createConstraints(db); err != nil {
		return fmt.Errorf("failed to create constraints: %w", err)
	}

	createIndexes(db)

	logrus.Info("Database migrations completed successfully")
	return nil
}

// createConstraints adds the integrity rules gorm tags cannot express. Failures abort the migration.
func createConstraints(db *gorm.DB) error {
	constraints := []string{
		// At most one default group per kind
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_assessment_groups_single_default ON assessment_groups(kind) WHERE is_default",
		// One referral per proposal and target user for each side of the protocol
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_referrals_proposal_target ON referrals(proposal_id, referral_id, sent_from)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_group_scopes_unique ON group_scopes(group_id, activity, region)",
	}

	for _, stmt := range constraints {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

func createIndexes(db *gorm.DB) {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_proposals_status_pair ON proposals(processing_status, customer_status)",
		"CREATE INDEX IF NOT EXISTS idx_proposals_created_at ON proposals(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_requirements_proposal_order ON requirements(proposal_id, req_order)",
		"CREATE INDEX IF NOT EXISTS idx_compliances_approval_due ON compliances(approval_id, due_date)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_email_logs_resource ON email_logs(resource_type, resource_id)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			// Continue with other indexes instead of failing completely
			logrus.WithError(err).WithField("index", index).Warn("Failed to create index")
		}
	}
}

// SeedInitialData creates the default groups and the standard requirement catalogue.
func SeedInitialData(db *gorm.DB) error {
	logrus.Info("Seeding initial data...")

	defaults := []models.Group{
		{Name: "Default Assessor Group", Kind: models.GroupKindAssessor, IsDefault: true},
		{Name: "Default Approver Group", Kind: models.GroupKindApprover, IsDefault: true},
	}
	for _, group := range defaults {
		var count int64
		if err := db.Model(&models.Group{}).Where("kind = ? AND is_default = ?", group.Kind, true).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check default %s group: %w", group.Kind, err)
		}
		if count > 0 {
			continue
		}
		if err := db.Create(&group).Error; err != nil {
			return fmt.Errorf("failed to create default %s group: %w", group.Kind, err)
		}
		logrus.WithField("kind", group.Kind).Info("Default group created")
	}

	standard := []models.StandardRequirement{
		{Code: "R1", Text: "The licence holder must submit an annual return of activities undertaken."},
		{Code: "R2", Text: "The licence holder must notify the department of any change of postal address within 14 days."},
		{Code: "R3", Text: "The licence holder must carry a copy of this licence while undertaking the licensed activity."},
	}
	for _, req := range standard {
		var count int64
		db.Model(&models.StandardRequirement{}).Where("code = ?", req.Code).Count(&count)
		if count == 0 {
			if err := db.Create(&req).Error; err != nil {
				logrus.WithError(err).WithField("code", req.Code).Warn("Failed to create standard requirement")
			}
		}
	}

	logrus.Info("Initial data seeding completed")
	return nil
}

// WithTransaction runs fn inside a transaction. When db is already a transaction fn joins it.
func WithTransaction(ctx context.Context, db *gorm.DB, fn func(*gorm.DB) error) error {
	if _, ok := db.Statement.ConnPool.(gorm.TxCommitter); ok {
		return fn(db)
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
