package services

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/talkbase/accounts/internal/auth"
	"github.com/talkbase/accounts/internal/database/testutil"
	"github.com/talkbase/accounts/internal/models"
	"github.com/talkbase/accounts/internal/scopes"
	"github.com/talkbase/accounts/internal/subscription"
)

type fixture struct {
	db   *gorm.DB
	gate *subscription.StaticGate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		db:   testutil.MustOpenTestDB(t, testutil.WithAdminTeam()),
		gate: subscription.NewStaticGate(),
	}
}

func (f *fixture) createUser(t *testing.T, name, phone string) *models.User {
	t.Helper()

	user := &models.User{
		FullName:        name,
		PhoneNumber:     phone,
		Password:        "hashed",
		Notify:          datatypes.NewJSONType(models.NotifyPreferences{}),
		CreatedByMethod: models.CreatedByOTP,
	}
	require.NoError(t, f.db.Create(user).Error)
	return user
}

// createTeam creates a team owned by the user with a creator membership
// holding the given scopes (all user scopes when none given).
func (f *fixture) createTeam(t *testing.T, creator *models.User, name string, memberScopes ...scopes.Scope) *models.Team {
	t.Helper()

	if len(memberScopes) == 0 {
		memberScopes = scopes.AllUser()
	}

	team := &models.Team{
		CreatedBy: creator.ID,
		Metadata:  datatypes.JSONMap{},
		Name:      name,
	}
	require.NoError(t, f.db.Create(team).Error)

	member := &models.TeamMember{
		TeamID: team.ID,
		UserID: creator.ID,
		Scopes: datatypes.NewJSONSlice(memberScopes),
	}
	require.NoError(t, f.db.Create(member).Error)

	require.NoError(t, f.db.Model(creator).Update("last_used_team_id", team.ID).Error)
	creator.LastUsedTeamID = &team.ID
	return team
}

func (f *fixture) addMember(t *testing.T, team *models.Team, user *models.User, addedBy string, memberScopes ...scopes.Scope) *models.TeamMember {
	t.Helper()

	member := &models.TeamMember{
		TeamID:  team.ID,
		UserID:  user.ID,
		AddedBy: &addedBy,
		Scopes:  datatypes.NewJSONSlice(memberScopes),
	}
	require.NoError(t, f.db.Create(member).Error)
	return member
}

// adminUser returns the seeded platform admin.
func (f *fixture) adminUser(t *testing.T) (*models.User, *models.Team) {
	t.Helper()

	var team models.Team
	require.NoError(t, f.db.Where("is_admin = ?", true).Take(&team).Error)

	var user models.User
	require.NoError(t, f.db.Take(&user, "id = ?", team.CreatedBy).Error)
	return &user, &team
}

func claimsFor(user *models.User, teamID string, granted ...scopes.Scope) *auth.Claims {
	return &auth.Claims{
		Scope: scopes.Encode(granted),
		User: auth.TokenUser{
			ID:          user.ID,
			FullName:    user.FullName,
			PhoneNumber: user.PhoneNumber,
			TeamID:      teamID,
		},
	}
}
