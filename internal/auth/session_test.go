package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/igreja/tesouraria/pkg/clients/identity"
)

type fakeProvider struct {
	creds *identity.Credentials
	err   error
	reset []string
}

func (f *fakeProvider) SignIn(context.Context, string, string) (*identity.Credentials, error) {
	return f.creds, f.err
}

func (f *fakeProvider) SignUp(_ context.Context, email, _, displayName string) (*identity.Credentials, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &identity.Credentials{UserID: "new-uid", Email: email, DisplayName: displayName, ExpiresIn: time.Hour}, nil
}

func (f *fakeProvider) SendPasswordReset(_ context.Context, email string) error {
	f.reset = append(f.reset, email)
	return f.err
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "uid-1", "exp": exp.Unix()})
	raw, err := token.SignedString([]byte("provider-secret"))
	require.NoError(t, err)
	return raw
}

func TestSignInNotifiesSubscribers(t *testing.T) {
	exp := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	provider := &fakeProvider{creds: &identity.Credentials{UserID: "uid-1", Email: "a@igreja.org", IDToken: signedToken(t, exp)}}
	session := NewSession(provider, zaptest.NewLogger(t))

	var seen []*User
	unsubscribe := session.Subscribe(func(u *User) { seen = append(seen, u) })

	user, err := session.SignIn(context.Background(), "a@igreja.org", "pw")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", user.ID)
	assert.True(t, user.ExpiresAt.Equal(exp))
	assert.Equal(t, "uid-1", session.CurrentUser().ID)

	session.SignOut()
	assert.Nil(t, session.CurrentUser())

	unsubscribe()
	session.Restore(&User{ID: "uid-2"})

	require.Len(t, seen, 2)
	assert.Equal(t, "uid-1", seen[0].ID)
	assert.Nil(t, seen[1])
}

func TestSignInFailureKeepsState(t *testing.T) {
	provider := &fakeProvider{err: identity.ErrInvalidCredentials}
	session := NewSession(provider, nil)
	session.Restore(&User{ID: "uid-0"})

	_, err := session.SignIn(context.Background(), "a@igreja.org", "bad")
	assert.True(t, errors.Is(err, identity.ErrInvalidCredentials))
	assert.Equal(t, "uid-0", session.CurrentUser().ID)
}

func TestSignUpFallsBackToExpiresIn(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	session := NewSession(&fakeProvider{}, nil)
	session.now = func() time.Time { return now }

	user, err := session.SignUp(context.Background(), "novo@igreja.org", "pw", "Novo")
	require.NoError(t, err)
	assert.Equal(t, "Novo", user.DisplayName)
	assert.Equal(t, now.Add(time.Hour), user.ExpiresAt)
}

func TestCurrentUserReturnsCopy(t *testing.T) {
	session := NewSession(&fakeProvider{}, nil)
	session.Restore(&User{ID: "uid-1"})

	u := session.CurrentUser()
	u.ID = "tampered"
	assert.Equal(t, "uid-1", session.CurrentUser().ID)
}

func TestTokenExpiryRejectsGarbage(t *testing.T) {
	_, ok := tokenExpiry("not-a-jwt")
	assert.False(t, ok)
}

func TestExpiredUserIsSignedOut(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	session := NewSession(&fakeProvider{}, zaptest.NewLogger(t))
	session.now = func() time.Time { return now }

	events := make(chan *User, 4)
	session.Subscribe(func(u *User) { events <- u })

	session.Restore(&User{ID: "uid-1", ExpiresAt: now.Add(time.Minute)})
	require.Equal(t, "uid-1", (<-events).ID)
	require.NotNil(t, session.CurrentUser())

	now = now.Add(time.Minute)
	assert.Nil(t, session.CurrentUser())
	assert.Nil(t, session.CurrentUser())

	select {
	case u := <-events:
		assert.Nil(t, u)
	case <-time.After(time.Second):
		t.Fatal("subscribers were not told about the expiry")
	}
	select {
	case u := <-events:
		t.Fatalf("unexpected second notification: %+v", u)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnexpiredUserStaysSignedIn(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	session := NewSession(&fakeProvider{}, nil)
	session.now = func() time.Time { return now }

	session.Restore(&User{ID: "uid-1", ExpiresAt: now.Add(time.Second)})
	assert.Equal(t, "uid-1", session.CurrentUser().ID)

	session.Restore(&User{ID: "uid-2"})
	now = now.Add(24 * time.Hour)
	assert.Equal(t, "uid-2", session.CurrentUser().ID, "users without an expiry never lapse")
}

func TestExpiryDoesNotClobberNewerSignIn(t *testing.T) {
	session := NewSession(&fakeProvider{}, nil)
	stale := &User{ID: "uid-1"}
	session.Restore(stale)
	session.Restore(&User{ID: "uid-2"})

	session.expire(stale)
	assert.Equal(t, "uid-2", session.CurrentUser().ID)
}
