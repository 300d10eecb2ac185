package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	gotrue "github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
)

// Provider is the hosted authentication service: it owns credentials, sessions and reset emails.
type Provider interface {
	SignUp(ctx context.Context, email, password, redirectTo string) (AuthUser, *Tokens, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)
	ExchangeCode(ctx context.Context, code, verifier string) (*Tokens, error)
	SignOut(ctx context.Context, accessToken string) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdatePassword(ctx context.Context, accessToken, password string) (AuthUser, error)
	GetUser(ctx context.Context, accessToken string) (AuthUser, error)
	AuthorizeURL(provider, redirectTo, codeChallenge string) string
}

// AuthUser is the provider's view of a user, not to be confused with the profile stored locally.
type AuthUser struct {
	ID           string            `json:"id"`
	Email        string            `json:"email"`
	Identities   []json.RawMessage `json:"identities"`
	UserMetadata map[string]any    `json:"user_metadata"`
}

// Tokens is an authenticated session as issued by the provider.
type Tokens struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type,omitempty"`
	ExpiresIn    int      `json:"expires_in"`
	User         AuthUser `json:"user"`
}

// ProviderError is a non successful answer from the provider.
type ProviderError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("auth provider responded %d %s: %s", e.Status, e.Code, e.Message)
}

// ErrInvalidToken signals an expired, revoked or forged access token.
var ErrInvalidToken = errors.New("invalid or expired token")

type GoTrueConfig struct {
	// BaseURL is the project URL, without the `/auth/v1` suffix
	BaseURL string
	// AnonKey is the public anonymous API key
	AnonKey string
	Timeout time.Duration
}

// GoTrueClient talks to a GoTrue compatible REST API, as exposed by Supabase projects.
// Token grants, logout and user endpoints go through the gotrue-go client; sign up and recovery need a
// `redirect_to` parameter and the PKCE exchange an `auth_code` field, neither of which that client sends.
type GoTrueClient struct {
	api        gotrue.Client
	endpoint   string
	anonKey    string
	httpClient *http.Client
}

func NewGoTrueClient(cfg GoTrueConfig) (*GoTrueClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("auth provider URL is required")
	}
	if cfg.AnonKey == "" {
		return nil, errors.New("auth provider anonymous key is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	var endpoint = strings.TrimRight(cfg.BaseURL, "/") + "/auth/v1"
	var httpClient = http.Client{Timeout: cfg.Timeout}
	return &GoTrueClient{
		api:        gotrue.New("", cfg.AnonKey).WithCustomGoTrueURL(endpoint).WithClient(httpClient),
		endpoint:   endpoint,
		anonKey:    cfg.AnonKey,
		httpClient: &httpClient,
	}, nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *GoTrueClient) SignUp(ctx context.Context, email, password, redirectTo string) (AuthUser, *Tokens, error) {
	// the provider answers with a session when confirmations are disabled, and with a bare user otherwise
	var response struct {
		Tokens
		AuthUser
	}
	var path = "/signup"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	if err := c.do(ctx, http.MethodPost, path, "", credentials{email, password}, &response); err != nil {
		return AuthUser{}, nil, err
	}
	if response.AccessToken != "" {
		return response.Tokens.User, &response.Tokens, nil
	}
	return response.AuthUser, nil, nil
}

func (c *GoTrueClient) SignInWithPassword(ctx context.Context, email, password string) (*Tokens, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	response, err := c.api.SignInWithEmailPassword(email, password)
	if err != nil {
		return nil, fromLibrary(err)
	}
	return tokensFrom(response.Session), nil
}

func (c *GoTrueClient) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	response, err := c.api.RefreshToken(refreshToken)
	if err != nil {
		return nil, fromLibrary(err)
	}
	return tokensFrom(response.Session), nil
}

func (c *GoTrueClient) ExchangeCode(ctx context.Context, code, verifier string) (*Tokens, error) {
	var tokens Tokens
	var body = map[string]string{"auth_code": code, "code_verifier": verifier}
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=pkce", "", body, &tokens); err != nil {
		return nil, err
	}
	return &tokens, nil
}

func (c *GoTrueClient) SignOut(ctx context.Context, accessToken string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fromLibrary(c.api.WithToken(accessToken).Logout())
}

func (c *GoTrueClient) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	var path = "/recover"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	return c.do(ctx, http.MethodPost, path, "", map[string]string{"email": email}, nil)
}

func (c *GoTrueClient) UpdatePassword(ctx context.Context, accessToken, password string) (AuthUser, error) {
	if err := ctx.Err(); err != nil {
		return AuthUser{}, err
	}
	response, err := c.api.WithToken(accessToken).UpdateUser(types.UpdateUserRequest{Password: &password})
	if err != nil {
		return AuthUser{}, asTokenError(fromLibrary(err))
	}
	return userFrom(response.User), nil
}

func (c *GoTrueClient) GetUser(ctx context.Context, accessToken string) (AuthUser, error) {
	if err := ctx.Err(); err != nil {
		return AuthUser{}, err
	}
	response, err := c.api.WithToken(accessToken).GetUser()
	if err != nil {
		return AuthUser{}, asTokenError(fromLibrary(err))
	}
	return userFrom(response.User), nil
}

// AuthorizeURL builds the address users are redirected to for an OAuth sign in with PKCE.
func (c *GoTrueClient) AuthorizeURL(provider, redirectTo, codeChallenge string) string {
	var query = url.Values{}
	query.Set("provider", provider)
	query.Set("redirect_to", redirectTo)
	query.Set("code_challenge", codeChallenge)
	query.Set("code_challenge_method", "s256")
	return c.endpoint + "/authorize?" + query.Encode()
}

func tokensFrom(session types.Session) *Tokens {
	return &Tokens{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    session.TokenType,
		ExpiresIn:    session.ExpiresIn,
		User:         userFrom(session.User),
	}
}

func userFrom(user types.User) AuthUser {
	var converted = AuthUser{Email: user.Email, UserMetadata: user.UserMetadata}
	if user.ID != uuid.Nil {
		converted.ID = user.ID.String()
	}
	for _, identity := range user.Identities {
		if encoded, err := json.Marshal(identity); err == nil {
			converted.Identities = append(converted.Identities, encoded)
		}
	}
	return converted
}

// fromLibrary recovers the status and body that gotrue-go folds into its error messages,
// as in "response status code 400: {...}". Transport failures are returned untouched.
func fromLibrary(err error) error {
	if err == nil {
		return nil
	}
	var status int
	if _, scanErr := fmt.Sscanf(err.Error(), "response status code %d", &status); scanErr != nil {
		return err
	}
	_, body, _ := strings.Cut(err.Error(), ": ")
	return parseProviderError(status, []byte(body))
}

// asTokenError maps rejected bearer tokens onto ErrInvalidToken.
func asTokenError(err error) error {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) &&
		(providerErr.Status == http.StatusUnauthorized || providerErr.Status == http.StatusForbidden) {
		return fmt.Errorf("%w: %s", ErrInvalidToken, providerErr.Message)
	}
	return err
}

func (c *GoTrueClient) do(ctx context.Context, method, path, accessToken string, payload, target any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken == "" {
		accessToken = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read auth response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseProviderError(resp.StatusCode, raw)
	}

	if target == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err = json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to parse auth response: %w", err)
	}
	return nil
}

// parseProviderError understands both the current and the legacy OAuth style error bodies.
func parseProviderError(status int, raw []byte) error {
	var body struct {
		ErrorCode        string `json:"error_code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	_ = json.Unmarshal(raw, &body)

	var providerErr = &ProviderError{Status: status, Code: body.ErrorCode}
	if providerErr.Code == "" {
		providerErr.Code = body.Error
	}
	for _, message := range []string{body.Msg, body.Message, body.ErrorDescription} {
		if message != "" {
			providerErr.Message = message
			break
		}
	}
	if providerErr.Message == "" {
		providerErr.Message = http.StatusText(status)
	}
	return providerErr
}
