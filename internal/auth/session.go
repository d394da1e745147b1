package auth

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/igreja/tesouraria/pkg/clients/identity"
)

// User is the authenticated principal. Its ID owns every document the
// console reads or writes.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Listener is told about every auth-state change; nil means signed out.
type Listener func(user *User)

// Source is the read side of a session, as needed by the data layer.
type Source interface {
	CurrentUser() *User
	Subscribe(fn Listener) (unsubscribe func())
}

// Session tracks the signed-in principal of this console process.
type Session struct {
	provider identity.Client
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.RWMutex
	current   *User
	listeners map[int]Listener
	nextID    int
}

var _ Source = (*Session)(nil)

// NewSession wires a session to an identity provider.
func NewSession(provider identity.Client, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		provider:  provider,
		logger:    logger,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
}

// SignIn authenticates against the provider and makes the user current.
func (s *Session) SignIn(ctx context.Context, email, password string) (*User, error) {
	creds, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	user := s.userFrom(creds)
	s.logger.Info("user signed in", zap.String("user_id", user.ID))
	s.set(user)
	return user, nil
}

// SignUp registers a new account and signs it in.
func (s *Session) SignUp(ctx context.Context, email, password, displayName string) (*User, error) {
	creds, err := s.provider.SignUp(ctx, email, password, displayName)
	if err != nil {
		return nil, err
	}
	user := s.userFrom(creds)
	s.logger.Info("user signed up", zap.String("user_id", user.ID))
	s.set(user)
	return user, nil
}

// SendPasswordReset delegates to the provider.
func (s *Session) SendPasswordReset(ctx context.Context, email string) error {
	return s.provider.SendPasswordReset(ctx, email)
}

// SignOut forgets the current user.
func (s *Session) SignOut() {
	s.logger.Info("user signed out")
	s.set(nil)
}

// Restore makes a previously authenticated user current without talking
// to the provider.
func (s *Session) Restore(user *User) {
	s.set(user)
}

// CurrentUser returns a copy of the signed-in user, or nil. A user whose
// credentials have expired is signed out on the spot.
func (s *Session) CurrentUser() *User {
	s.mu.RLock()
	current := s.current
	var u User
	if current != nil {
		u = *current
	}
	s.mu.RUnlock()

	if current == nil {
		return nil
	}
	if !u.ExpiresAt.IsZero() && !s.now().Before(u.ExpiresAt) {
		s.expire(current)
		return nil
	}
	return &u
}

// Subscribe registers fn for auth-state changes.
func (s *Session) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Session) set(user *User) {
	s.mu.Lock()
	s.current = user
	listeners := s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, user)
}

// expire signs out user unless someone else changed the session first.
// Listeners hear about it in the background because the caller may be
// holding locks those listeners take.
func (s *Session) expire(user *User) {
	s.mu.Lock()
	if s.current != user {
		s.mu.Unlock()
		return
	}
	s.current = nil
	listeners := s.listenersLocked()
	s.mu.Unlock()

	s.logger.Info("session expired", zap.String("user_id", user.ID), zap.Time("expires_at", user.ExpiresAt))
	go notify(listeners, nil)
}

func (s *Session) listenersLocked() []Listener {
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	return listeners
}

func notify(listeners []Listener, user *User) {
	for _, fn := range listeners {
		if user == nil {
			fn(nil)
			continue
		}
		u := *user
		fn(&u)
	}
}

func (s *Session) userFrom(creds *identity.Credentials) *User {
	user := &User{
		ID:          creds.UserID,
		Email:       creds.Email,
		DisplayName: creds.DisplayName,
	}
	if exp, ok := tokenExpiry(creds.IDToken); ok {
		user.ExpiresAt = exp
	} else if creds.ExpiresIn > 0 {
		user.ExpiresAt = s.now().Add(creds.ExpiresIn)
	}
	return user
}

// tokenExpiry reads the exp claim of an ID token. The signature is not
// checked here; the provider that issued the token already vouched for it.
func tokenExpiry(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
