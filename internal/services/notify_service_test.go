package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/talkbase/accounts/internal/models"
	apperrors "github.com/talkbase/accounts/pkg/errors"
	"github.com/talkbase/accounts/pkg/mail"
)

type fakeWhatsApp struct {
	sent []string
	err  error
}

func (s *fakeWhatsApp) SendText(_ context.Context, phoneNumber, _ string) error {
	s.sent = append(s.sent, phoneNumber)
	return s.err
}

type fakeMailer struct {
	sent []mail.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.sent = append(m.sent, msg)
	return m.err
}

func (f *fixture) createNotifiableUser(t *testing.T, phone, email string, prefs models.NotifyPreferences) *models.User {
	t.Helper()

	user := f.createUser(t, "Notified", phone)
	updates := map[string]any{"notify": datatypes.NewJSONType(prefs)}
	if email != "" {
		updates["email_address"] = email
	}
	require.NoError(t, f.db.Model(user).Updates(updates).Error)
	return user
}

func TestNotifyFanOut(t *testing.T) {
	f := newFixture(t)
	wa := &fakeWhatsApp{}
	mailer := &fakeMailer{}
	svc := NewNotifyService(f.db, wa, mailer)

	user := f.createNotifiableUser(t, "15556660001", "user@example.com", models.NotifyPreferences{
		WhatsApp: true,
		Email:    true,
	})

	results, err := svc.Notify(context.Background(), user.ID, "Welcome", "<p>hello</p>")
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Delivered)
	}

	assert.Equal(t, []string{"15556660001"}, wa.sent)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "user@example.com", mailer.sent[0].To)
	assert.Equal(t, "Welcome", mailer.sent[0].Subject)
}

func TestNotifyHonoursPreferences(t *testing.T) {
	f := newFixture(t)
	wa := &fakeWhatsApp{}
	mailer := &fakeMailer{}
	svc := NewNotifyService(f.db, wa, mailer)

	user := f.createNotifiableUser(t, "15556660002", "user2@example.com", models.NotifyPreferences{
		WhatsApp: false,
		Email:    true,
	})

	results, err := svc.Notify(context.Background(), user.ID, "Hi", "body")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "email", results[0].Channel)
	assert.Empty(t, wa.sent)
}

func TestNotifySkipsEmailWithoutAddress(t *testing.T) {
	f := newFixture(t)
	mailer := &fakeMailer{}
	svc := NewNotifyService(f.db, &fakeWhatsApp{}, mailer)

	user := f.createNotifiableUser(t, "15556660003", "", models.NotifyPreferences{
		WhatsApp: true,
		Email:    true,
	})

	results, err := svc.Notify(context.Background(), user.ID, "Hi", "body")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "whatsapp", results[0].Channel)
	assert.Empty(t, mailer.sent)
}

func TestNotifyFailuresDoNotPropagate(t *testing.T) {
	f := newFixture(t)
	wa := &fakeWhatsApp{err: errors.New("gateway down")}
	mailer := &fakeMailer{err: mail.ErrSMTPDisabled}
	svc := NewNotifyService(f.db, wa, mailer)

	user := f.createNotifiableUser(t, "15556660004", "user4@example.com", models.NotifyPreferences{
		WhatsApp: true,
		Email:    true,
	})

	results, err := svc.Notify(context.Background(), user.ID, "Hi", "body")
	require.NoError(t, err, "delivery failures never fail the operation")
	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.Delivered)
		assert.NotEmpty(t, r.Error)
	}
}

func TestNotifyUnknownUser(t *testing.T) {
	f := newFixture(t)
	svc := NewNotifyService(f.db, &fakeWhatsApp{}, &fakeMailer{})

	_, err := svc.Notify(context.Background(), "00000000-0000-0000-0000-000000000000", "Hi", "body")
	assert.Equal(t, apperrors.ErrNotFound.Code, apperrors.FromError(err).Code)
}
