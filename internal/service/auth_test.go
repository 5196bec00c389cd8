package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/natours-go/internal/apperr"
	"github.com/olegiv/natours-go/internal/docstore"
	"github.com/olegiv/natours-go/internal/model"
)

func resetURL(token string) string {
	return "http://localhost:3000/api/v1/users/resetPassword/" + token
}

// lastResetToken extracts the plaintext token from the most recent reset mail.
func lastResetToken(t *testing.T, f *fixture) string {
	t.Helper()
	msg, ok := f.outbox.Last()
	require.True(t, ok, "expected a reset mail")
	i := strings.Index(msg.Text, "/resetPassword/")
	require.GreaterOrEqual(t, i, 0)
	return strings.Fields(msg.Text[i+len("/resetPassword/"):])[0]
}

func TestAuthService_Signup(t *testing.T) {
	f := newFixture(t)

	s, err := f.auth.Signup(f.ctx, map[string]any{
		"name":            "Laura Wilson",
		"email":           "Laura@Example.com",
		"password":        "pass1234",
		"passwordConfirm": "pass1234",
		"role":            "admin",
	}, "http://localhost:3000/me")
	require.NoError(t, err)

	assert.NotEmpty(t, s.Token)
	assert.Equal(t, "laura@example.com", s.User["email"])
	assert.Equal(t, "user", s.User["role"], "role cannot be self-assigned")
	assert.NotContains(t, s.User, model.FieldPassword)

	claims, ok := f.sessions.Verify(s.Token)
	require.True(t, ok)
	assert.Equal(t, s.User.ID(), claims.Subject)

	msg, ok := f.outbox.Last()
	require.True(t, ok)
	assert.Equal(t, "laura@example.com", msg.To)
	assert.Contains(t, msg.Subject, "Welcome")
}

func TestAuthService_SignupErrors(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "Laura Wilson", "laura@example.com", "pass1234")

	_, err := f.auth.Signup(f.ctx, map[string]any{
		"name": "Other", "email": "laura@example.com", "password": "pass1234", "passwordConfirm": "pass1234",
	}, "")
	var dup *docstore.DuplicateKeyError
	assert.ErrorAs(t, err, &dup, "duplicate email")

	_, err = f.auth.Signup(f.ctx, map[string]any{
		"name": "Other", "email": "other@example.com", "password": "pass1234", "passwordConfirm": "different",
	}, "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	long := strings.Repeat("x", 80)
	_, err = f.auth.Signup(f.ctx, map[string]any{
		"name": "Other", "email": "other@example.com", "password": long, "passwordConfirm": long,
	}, "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Equal(t, 400, apperr.From(err).StatusCode())
}

func TestAuthService_SignupMailFailureIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.outbox.Err = errors.New("smtp down")

	s := f.signup(t, "Laura Wilson", "laura@example.com", "pass1234")
	assert.NotEmpty(t, s.Token)
}

func TestAuthService_Login(t *testing.T) {
	f := newFixture(t)
	created := f.signup(t, "Laura Wilson", "laura@example.com", "pass1234")

	s, err := f.auth.Login(f.ctx, " LAURA@example.com ", "pass1234", "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, created.User.ID(), s.User.ID())
	assert.NotContains(t, s.User, model.FieldPassword)

	events, err := f.events.Recent(f.ctx, model.EventCategoryAuth, 10)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "User logged in", events[0]["message"])
}

func TestAuthService_LoginEnumerationResistance(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "Laura Wilson", "laura@example.com", "pass1234")

	_, wrongPassword := f.auth.Login(f.ctx, "laura@example.com", "wrong-password", "")
	_, unknownEmail := f.auth.Login(f.ctx, "nobody@example.com", "pass1234", "")

	require.Error(t, wrongPassword)
	require.Error(t, unknownEmail)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.Equal(t, apperr.From(wrongPassword).StatusCode(), apperr.From(unknownEmail).StatusCode())
	assert.Equal(t, MsgIncorrectLogin, apperr.From(unknownEmail).Message)
}

func TestAuthService_LoginRequiresBothFields(t *testing.T) {
	f := newFixture(t)
	for _, tc := range []struct{ email, password string }{{"", "x"}, {"a@b.io", ""}, {"", ""}} {
		_, err := f.auth.Login(f.ctx, tc.email, tc.password, "")
		assert.Equal(t, MsgMissingLogin, apperr.From(err).Message)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	}
}

func TestAuthService_Authenticate(t *testing.T) {
	f := newFixture(t)
	s := f.signup(t, "Laura Wilson", "laura@example.com", "pass1234")

	user, err := f.auth.Authenticate(f.ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, s.User.ID(), user.ID())

	tests := []struct {
		name  string
		token string
		msg   string
	}{
		{"no token", "", MsgNotLoggedIn},
		{"garbage", "abc.def.ghi", MsgInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auth.Authenticate(f.ctx, tt.token)
			assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))
			assert.Equal(t, tt.msg, apperr.From(err).Message)
		})
	}
}

func TestAuthService_AuthenticateDeactivatedUser(t *testing.T) {
	f := newFixture(t)
	s := f.signup(t, "Laura Wilson", "laura@example.com", "pass1234")
	require.NoError(t, f.profiles.DeleteMe(f.ctx, s.User.ID()))

	_, err := f.auth.Authenticate(f.ctx, s.Token)
	assert.Equal(t, MsgUserGone, apperr.From(err).Message)
}

func TestAuthService_PasswordChangeInvalidatesTokens(t *testing.T) {
	f := newFixture(t)
	s := f.signup(t, "Laura Wilson", "laura@example.com", "pass1234")
	oldToken := s.Token

	f.clock.Advance(5 * time.Second)
	updated, err := f.auth.UpdatePassword(f.ctx, s.User.ID(), "pass1234", "newpass123", "newpass123")
	require.NoError(t, err)

	f.clock.Advance(5 * time.Second)
	_, err = f.auth.Authenticate(f.ctx, oldToken)
	assert.Equal(t, MsgPasswordChanged, apperr.From(err).Message)

	// The token issued with the change stays valid.
	_, err = f.auth.Authenticate(f.ctx, updated.Token)
	assert.NoError(t, err)

	_, err = f.auth.Login(f.ctx, "laura@example.com", "newpass123", "")
	assert.NoError(t, err)
}

func TestAuthService_PasswordChangeOneSecondAfterIssue(t *testing.T) {
	f := newFixture(t)
	s := f.signup(t, "Laura Wilson", "laura@example.com", "pass1234")
	oldToken := s.Token

	// The change is backdated to the second the old token was issued.
	f.clock.Advance(time.Second)
	updated, err := f.auth.UpdatePassword(f.ctx, s.User.ID(), "pass1234", "newpass123", "newpass123")
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	_, err = f.auth.Authenticate(f.ctx, oldToken)
	assert.Equal(t, MsgPasswordChanged, apperr.From(err).Message)

	_, err = f.auth.Authenticate(f.ctx, updated.Token)
	assert.NoError(t, err)
}

func TestAuthService_UpdatePasswordChecksCurrent(t *testing.T) {
	f := newFixture(t)
	s := f.signup(t, "Laura Wilson", "laura@example.com", "pass1234")

	_, err := f.auth.UpdatePassword(f.ctx, s.User.ID(), "wrong", "newpass123", "newpass123")
	assert.Equal(t, MsgWrongCurrentPass, apperr.From(err).Message)

	_, err = f.auth.UpdatePassword(f.ctx, s.User.ID(), "pass1234", "newpass123", "mismatch")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestAuthService_ResetPasswordSingleUse(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "Laura Wilson", "laura@example.com", "pass1234")

	require.NoError(t, f.auth.ForgotPassword(f.ctx, "laura@example.com", resetURL))
	token := lastResetToken(t, f)

	stored, err := f.catalog.Collection(model.Users).FindOne(f.ctx, docstore.Filter{"email": "laura@example.com"}, docstore.Projection{})
	require.NoError(t, err)
	assert.NotEqual(t, token, stored.String(model.FieldPasswordResetToken), "only the digest is stored")
	assert.NotEmpty(t, stored.String(model.FieldPasswordResetToken))

	f.clock.Advance(time.Minute)
	s, err := f.auth.ResetPassword(f.ctx, token, "brandnew123", "brandnew123")
	require.NoError(t, err)
	assert.NotEmpty(t, s.Token)

	_, err = f.auth.ResetPassword(f.ctx, token, "another123", "another123")
	assert.Equal(t, MsgResetInvalid, apperr.From(err).Message, "replayed token must fail")

	cleared, err := f.catalog.Collection(model.Users).FindByID(f.ctx, s.User.ID(), docstore.Projection{})
	require.NoError(t, err)
	assert.NotContains(t, cleared, model.FieldPasswordResetToken)
	assert.NotContains(t, cleared, model.FieldPasswordResetExpires)

	_, err = f.auth.Login(f.ctx, "laura@example.com", "brandnew123", "")
	assert.NoError(t, err)
}

func TestAuthService_ResetPasswordExpired(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "Laura Wilson", "laura@example.com", "pass1234")

	require.NoError(t, f.auth.ForgotPassword(f.ctx, "laura@example.com", resetURL))
	token := lastResetToken(t, f)

	f.clock.Advance(11 * time.Minute)
	_, err := f.auth.ResetPassword(f.ctx, token, "brandnew123", "brandnew123")
	assert.Equal(t, MsgResetInvalid, apperr.From(err).Message)
}

func TestAuthService_ForgotPassword(t *testing.T) {
	f := newFixture(t)

	err := f.auth.ForgotPassword(f.ctx, "nobody@example.com", resetURL)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.Equal(t, MsgNoUserWithEmail, apperr.From(err).Message)
}

func TestAuthService_ForgotPasswordRollsBackOnMailFailure(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "Laura Wilson", "laura@example.com", "pass1234")
	f.outbox.Err = errors.New("smtp down")

	err := f.auth.ForgotPassword(f.ctx, "laura@example.com", resetURL)
	require.Error(t, err)
	ae := apperr.From(err)
	assert.Equal(t, apperr.KindUpstream, ae.Kind)
	assert.Equal(t, 500, ae.StatusCode())
	assert.Equal(t, MsgResetMailFailed, ae.Message)

	stored, err := f.catalog.Collection(model.Users).FindOne(f.ctx, docstore.Filter{"email": "laura@example.com"}, docstore.Projection{})
	require.NoError(t, err)
	assert.NotContains(t, stored, model.FieldPasswordResetToken)
	assert.NotContains(t, stored, model.FieldPasswordResetExpires)
}
