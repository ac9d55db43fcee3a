package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/talkbase/accounts/internal/models"
	"github.com/talkbase/accounts/internal/scopes"
	"github.com/talkbase/accounts/pkg/crypto"
	"github.com/talkbase/accounts/pkg/logger"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Team{},
		&models.TeamMember{},
		&models.InviteLink{},
		&models.OTP{},
		&models.RefreshToken{},
	)
}

// AutoMigrateAndSeed migrates the schema and provisions the admin team.
func AutoMigrateAndSeed(db *gorm.DB) error {
	if err := AutoMigrate(db); err != nil {
		return err
	}
	return SeedAdminTeam(db)
}

// Phone number reserved for the bootstrap platform administrator.
const seedAdminPhone = "10000000000"

// SeedAdminTeam provisions the single admin-flagged team on first start.
// Members of this team bypass all scope restrictions, so exactly one such
// team may ever exist; the call is a no-op when one is already present.
func SeedAdminTeam(db *gorm.DB) error {
	var adminTeams int64
	if err := db.Model(&models.Team{}).Where("is_admin = ?", true).Count(&adminTeams).Error; err != nil {
		return fmt.Errorf("count admin teams: %w", err)
	}
	if adminTeams > 0 {
		return nil
	}

	password, err := crypto.GenerateToken(24)
	if err != nil {
		return fmt.Errorf("generate admin password: %w", err)
	}
	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		admin := &models.User{
			FullName:        "Platform Admin",
			PhoneNumber:     seedAdminPhone,
			Password:        hashed,
			Notify:          datatypes.NewJSONType(models.NotifyPreferences{}),
			CreatedByMethod: models.CreatedByAdminPanel,
		}
		if err := tx.Create(admin).Error; err != nil {
			return fmt.Errorf("create admin user: %w", err)
		}

		team := &models.Team{
			CreatedBy: admin.ID,
			IsAdmin:   true,
			Metadata:  datatypes.JSONMap{},
			Name:      "Platform Admin",
		}
		if err := tx.Create(team).Error; err != nil {
			return fmt.Errorf("create admin team: %w", err)
		}

		admin.LastUsedTeamID = &team.ID
		if err := tx.Model(admin).Update("last_used_team_id", team.ID).Error; err != nil {
			return fmt.Errorf("set admin last used team: %w", err)
		}

		membership := &models.TeamMember{
			TeamID:  team.ID,
			UserID:  admin.ID,
			AddedBy: &admin.ID,
			Scopes:  datatypes.NewJSONSlice(scopes.All()),
		}
		if err := tx.Create(membership).Error; err != nil {
			return fmt.Errorf("create admin membership: %w", err)
		}

		// The generated password is only ever shown here. Operators are
		// expected to rotate it immediately.
		logger.Warn("seeded platform admin account",
			zap.String("phoneNumber", seedAdminPhone),
			zap.String("password", password),
		)
		return nil
	})
}
