package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talkbase/accounts/internal/models"
	"github.com/talkbase/accounts/internal/scopes"
)

func TestAutoMigrateAndSeed(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite"})
	require.NoError(t, err)

	require.NoError(t, AutoMigrateAndSeed(db))

	// Running again must not provision a second admin team.
	require.NoError(t, AutoMigrateAndSeed(db))

	var teams []models.Team
	require.NoError(t, db.Where("is_admin = ?", true).Find(&teams).Error)
	require.Len(t, teams, 1)

	var admin models.User
	require.NoError(t, db.Where("phone_number = ?", seedAdminPhone).First(&admin).Error)
	require.NotNil(t, admin.LastUsedTeamID)
	assert.Equal(t, teams[0].ID, *admin.LastUsedTeamID)

	var membership models.TeamMember
	require.NoError(t, db.Where("team_id = ? AND user_id = ?", teams[0].ID, admin.ID).First(&membership).Error)
	assert.ElementsMatch(t, scopes.All(), []scopes.Scope(membership.Scopes))
}
