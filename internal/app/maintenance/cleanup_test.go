package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/talkbase/accounts/internal/auth"
	testutil "github.com/talkbase/accounts/internal/database/testutil"
	"github.com/talkbase/accounts/internal/events"
	"github.com/talkbase/accounts/internal/models"
	"github.com/talkbase/accounts/internal/scopes"
	"github.com/talkbase/accounts/internal/services"
	"github.com/talkbase/accounts/internal/subscription"
)

func seedSweepFixtures(t *testing.T, db *gorm.DB) (models.User, models.Team) {
	t.Helper()

	user := models.User{
		FullName:        "Sweep Owner",
		PhoneNumber:     "31600000099",
		Password:        "not-a-real-hash",
		CreatedByMethod: models.CreatedByOTP,
	}
	require.NoError(t, db.Create(&user).Error)

	team := models.Team{
		Name:      "Sweep Team",
		CreatedBy: user.ID,
	}
	require.NoError(t, db.Create(&team).Error)

	return user, team
}

func TestSweeperRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	user, team := seedSweepFixtures(t, db)

	now := time.Now()

	require.NoError(t, db.Create(&models.RefreshToken{
		UserID:    user.ID,
		ExpiresAt: now.Add(-time.Hour),
	}).Error)
	require.NoError(t, db.Create(&models.RefreshToken{
		UserID:    user.ID,
		ExpiresAt: now.Add(time.Hour),
	}).Error)

	require.NoError(t, db.Create(&models.OTP{
		PhoneNumber: "31600000001",
		Code:        123456,
		ExpiresAt:   now.Add(-time.Minute),
	}).Error)
	require.NoError(t, db.Create(&models.OTP{
		PhoneNumber: "31600000002",
		Code:        654321,
		ExpiresAt:   now.Add(time.Minute),
	}).Error)

	require.NoError(t, db.Create(&models.InviteLink{
		TeamID:    team.ID,
		CreatedBy: user.ID,
		ExpiresAt: now.Add(-time.Hour),
		Scopes:    []scopes.Scope{"MESSAGES_READ"},
	}).Error)
	require.NoError(t, db.Create(&models.InviteLink{
		TeamID:    team.ID,
		CreatedBy: user.ID,
		ExpiresAt: now.Add(time.Hour),
		Scopes:    []scopes.Scope{"MESSAGES_READ"},
	}).Error)

	refresh, err := iauth.NewRefreshService(db, iauth.RefreshConfig{})
	require.NoError(t, err)

	sweeper := NewSweeper(
		refresh,
		services.NewOTPService(db, nil),
		services.NewInviteService(db, subscription.NewStaticGate(), events.NewManager(nil)),
	)

	require.NoError(t, sweeper.RunOnce(context.Background()))

	var tokens, otps, invites int64
	require.NoError(t, db.Model(&models.RefreshToken{}).Count(&tokens).Error)
	require.NoError(t, db.Model(&models.OTP{}).Count(&otps).Error)
	require.NoError(t, db.Model(&models.InviteLink{}).Count(&invites).Error)

	require.EqualValues(t, 1, tokens)
	require.EqualValues(t, 1, otps)
	require.EqualValues(t, 1, invites)
}

func TestSweeperSkipsMissingServices(t *testing.T) {
	sweeper := NewSweeper(nil, nil, nil)

	require.NoError(t, sweeper.Start())
	require.NoError(t, sweeper.RunOnce(context.Background()))
	<-sweeper.Stop().Done()
}
