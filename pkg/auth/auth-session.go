package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
)

// State is the position of a Session in the authentication flow.
type State string

const (
	SignedOut       State = "signed-out"
	SigningUp       State = "signing-up"
	SigningIn       State = "signing-in"
	SignedIn        State = "signed-in"
	ResetRequested  State = "password-reset-requested"
	ResetInProgress State = "password-reset-in-progress"
)

// Event notifies subscribers of session changes.
type Event string

const (
	EventSignedIn         Event = "SIGNED_IN"
	EventSignedOut        Event = "SIGNED_OUT"
	EventTokenRefreshed   Event = "TOKEN_REFRESHED"
	EventUserUpdated      Event = "USER_UPDATED"
	EventPasswordRecovery Event = "PASSWORD_RECOVERY"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("this email is already registered")
	ErrNoResetSession     = errors.New("no active password reset session")
	ErrUnavailable        = errors.New("authentication service unavailable")
)

// user facing messages, deliberately vague about credentials
const (
	msgInvalidCredentials = "Invalid email or password"
	msgEmailTaken         = "This email is already registered"
	msgCheckEmail         = "Check your email to confirm your account"
	msgResetSent          = "Password reset instructions sent, check your email"
	msgNoResetSession     = "Your reset link is invalid or has expired"
	msgUnavailable        = "Authentication is temporarily unavailable, please retry"
)

// UserEnsurer creates the local profile matching a provider user, unless it exists already.
type UserEnsurer interface {
	EnsureUser(ctx context.Context, id, email, name string) error
}

// EnsureFunc adapts a function to the UserEnsurer interface.
type EnsureFunc func(ctx context.Context, id, email, name string) error

func (f EnsureFunc) EnsureUser(ctx context.Context, id, email, name string) error {
	return f(ctx, id, email, name)
}

// Listener receives session events along with the tokens current at the time; nil after signing out.
type Listener func(event Event, tokens *Tokens)

// Snapshot exposes the observable flags of a Session.
type Snapshot struct {
	State   State  `json:"state"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
	Success string `json:"success,omitempty"`
}

// Session orchestrates sign up, sign in, OAuth and password resets on top of a Provider.
// It is safe for concurrent use, though flows are meant to be driven one action at a time.
type Session struct {
	provider Provider
	users    UserEnsurer
	siteURL  string

	mu           sync.Mutex
	snapshot     Snapshot
	tokens       *Tokens
	listeners    map[int]Listener
	nextListener int
}

func NewSession(provider Provider, users UserEnsurer, siteURL string) *Session {
	return &Session{
		provider:  provider,
		users:     users,
		siteURL:   strings.TrimRight(siteURL, "/"),
		snapshot:  Snapshot{State: SignedOut},
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers a listener and returns the function that removes it.
func (s *Session) Subscribe(listener Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var id = s.nextListener
	s.nextListener++
	s.listeners[id] = listener
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Tokens returns the active session tokens, if any.
func (s *Session) Tokens() *Tokens {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

// Restore resumes a session from previously issued tokens, without notifying listeners.
func (s *Session) Restore(tokens *Tokens) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = tokens
	s.snapshot = Snapshot{State: SignedIn}
}

// SignUp registers the user with the provider, creates the local profile and signs in explicitly,
// since registration alone doesn't yield an active session.
func (s *Session) SignUp(ctx context.Context, data SignUpData) error {
	if err := data.Validate(); err != nil {
		s.fail(SignedOut, err.Error())
		return err
	}
	s.begin(SigningUp)

	var email = normaliseEmail(data.Email)
	user, _, err := s.provider.SignUp(ctx, email, data.Password, s.siteURL+"/reading")
	if err != nil {
		if isEmailTaken(err) {
			s.fail(SignedOut, msgEmailTaken)
			return ErrEmailTaken
		}
		s.fail(SignedOut, msgUnavailable)
		return errors.Join(ErrUnavailable, err)
	}

	// the provider conceals existing accounts by returning users without identities
	if user.ID == "" || (user.Identities != nil && len(user.Identities) == 0) {
		s.fail(SignedOut, msgEmailTaken)
		return ErrEmailTaken
	}

	if err = s.users.EnsureUser(ctx, user.ID, email, defaultName(email)); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			s.fail(SignedOut, msgEmailTaken)
			return ErrEmailTaken
		}
		s.fail(SignedOut, "Couldn't create your profile, please retry")
		return err
	}

	tokens, err := s.provider.SignInWithPassword(ctx, email, data.Password)
	if err != nil {
		if isEmailNotConfirmed(err) {
			s.settle(SignedOut, msgCheckEmail)
			return nil
		}
		s.fail(SignedOut, msgInvalidCredentials)
		return errors.Join(ErrInvalidCredentials, err)
	}

	s.establish(tokens, EventSignedIn, "Account created")
	return nil
}

// SignIn forwards the credentials, reporting every rejection with the same generic message;
// unconfirmed accounts included, since the provider only reports those once the password matched.
func (s *Session) SignIn(ctx context.Context, data SignInData) error {
	if err := data.Validate(); err != nil {
		s.fail(SignedOut, msgInvalidCredentials)
		return ErrInvalidCredentials
	}
	s.begin(SigningIn)

	tokens, err := s.provider.SignInWithPassword(ctx, normaliseEmail(data.Email), data.Password)
	if err != nil {
		if isUnavailable(err) {
			s.fail(SignedOut, msgUnavailable)
			return errors.Join(ErrUnavailable, err)
		}
		s.fail(SignedOut, msgInvalidCredentials)
		return ErrInvalidCredentials
	}

	s.establish(tokens, EventSignedIn, "Signed in")
	return nil
}

// CompleteOAuth exchanges the authorization code returned to the callback route for a session.
func (s *Session) CompleteOAuth(ctx context.Context, code, verifier string) error {
	s.begin(SigningIn)

	tokens, err := s.provider.ExchangeCode(ctx, code, verifier)
	if err != nil {
		s.fail(SignedOut, "Sign in failed, please retry")
		return err
	}

	if err = s.users.EnsureUser(ctx, tokens.User.ID, normaliseEmail(tokens.User.Email), displayName(tokens.User)); err != nil {
		s.fail(SignedOut, "Couldn't create your profile, please retry")
		return err
	}

	s.establish(tokens, EventSignedIn, "Signed in")
	return nil
}

// Refresh swaps a refresh token for a new session.
func (s *Session) Refresh(ctx context.Context, refreshToken string) error {
	var previous = s.Snapshot().State
	s.begin(previous)

	tokens, err := s.provider.Refresh(ctx, refreshToken)
	if err != nil {
		if isUnavailable(err) {
			s.fail(previous, msgUnavailable)
			return errors.Join(ErrUnavailable, err)
		}
		s.clear(EventSignedOut, "")
		s.fail(SignedOut, "Your session has expired, please sign in again")
		return errors.Join(ErrInvalidToken, err)
	}

	s.establish(tokens, EventTokenRefreshed, "")
	return nil
}

// SignOut revokes the session with the provider on a best effort basis; local state is cleared regardless.
func (s *Session) SignOut(ctx context.Context) error {
	var err error
	if tokens := s.Tokens(); tokens != nil && tokens.AccessToken != "" {
		s.begin(s.Snapshot().State)
		err = s.provider.SignOut(ctx, tokens.AccessToken)
	}
	s.clear(EventSignedOut, "Signed out")
	return err
}

// ForgotPassword asks the provider to email a reset link leading back to the site.
func (s *Session) ForgotPassword(ctx context.Context, data ForgotPasswordData) error {
	if err := data.Validate(); err != nil {
		s.fail(SignedOut, err.Error())
		return err
	}
	s.begin(SignedOut)

	if err := s.provider.ResetPasswordForEmail(ctx, normaliseEmail(data.Email), s.siteURL+"/reset-password"); err != nil {
		// unknown addresses are not disclosed, only outages are reported
		if isUnavailable(err) {
			s.fail(SignedOut, msgUnavailable)
			return errors.Join(ErrUnavailable, err)
		}
	}
	s.settle(ResetRequested, msgResetSent)
	return nil
}

// BeginPasswordReset adopts the recovery session carried by the reset link.
func (s *Session) BeginPasswordReset(tokens *Tokens) {
	s.mu.Lock()
	s.tokens = tokens
	s.snapshot = Snapshot{State: ResetInProgress}
	var listeners = s.listenersLocked()
	s.mu.Unlock()
	notify(listeners, EventPasswordRecovery, tokens)
}

// UpdatePassword sets a new password; it requires an active (usually recovery) session.
func (s *Session) UpdatePassword(ctx context.Context, data UpdatePasswordData) error {
	var previous = s.Snapshot().State
	var tokens = s.Tokens()
	if tokens == nil || tokens.AccessToken == "" {
		s.fail(previous, msgNoResetSession)
		return ErrNoResetSession
	}
	if err := data.Validate(); err != nil {
		s.fail(previous, err.Error())
		return err
	}
	s.begin(ResetInProgress)

	user, err := s.provider.UpdatePassword(ctx, tokens.AccessToken, data.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			s.clear(EventSignedOut, "")
			s.fail(SignedOut, msgNoResetSession)
			return ErrNoResetSession
		}
		s.fail(previous, "Couldn't update your password, please retry")
		return err
	}

	var updated = *tokens
	if user.ID != "" {
		updated.User = user
	}
	s.establish(&updated, EventUserUpdated, "Password updated")
	return nil
}

func (s *Session) begin(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = Snapshot{State: state, Loading: true}
}

func (s *Session) fail(state State, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = Snapshot{State: state, Error: message}
}

func (s *Session) settle(state State, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = Snapshot{State: state, Success: message}
}

// establish records a new session and notifies listeners outside the lock, so they may query the session.
func (s *Session) establish(tokens *Tokens, event Event, message string) {
	s.mu.Lock()
	s.tokens = tokens
	s.snapshot = Snapshot{State: SignedIn, Success: message}
	var listeners = s.listenersLocked()
	s.mu.Unlock()
	notify(listeners, event, tokens)
}

func (s *Session) clear(event Event, message string) {
	s.mu.Lock()
	s.tokens = nil
	s.snapshot = Snapshot{State: SignedOut, Success: message}
	var listeners = s.listenersLocked()
	s.mu.Unlock()
	notify(listeners, event, nil)
}

func (s *Session) listenersLocked() []Listener {
	var listeners = make([]Listener, 0, len(s.listeners))
	for id := 0; id < s.nextListener; id++ {
		if listener, ok := s.listeners[id]; ok {
			listeners = append(listeners, listener)
		}
	}
	return listeners
}

func notify(listeners []Listener, event Event, tokens *Tokens) {
	for _, listener := range listeners {
		listener(event, tokens)
	}
}

func isEmailTaken(err error) bool {
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		return false
	}
	switch providerErr.Code {
	case "user_already_exists", "email_exists":
		return true
	}
	return strings.Contains(strings.ToLower(providerErr.Message), "already registered")
}

func isEmailNotConfirmed(err error) bool {
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		return false
	}
	return providerErr.Code == "email_not_confirmed" ||
		strings.Contains(strings.ToLower(providerErr.Message), "email not confirmed")
}

// isUnavailable tells outages and transport failures apart from rejections.
func isUnavailable(err error) bool {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Status >= http.StatusInternalServerError
	}
	return err != nil
}
