package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrInvalidCredentials covers unknown e-mails and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailExists is returned by SignUp for an already registered e-mail.
	ErrEmailExists = errors.New("email already registered")
)

// Client exposes the identity provider operations used by the console.
type Client interface {
	SignIn(ctx context.Context, email, password string) (*Credentials, error)
	SignUp(ctx context.Context, email, password, displayName string) (*Credentials, error)
	SendPasswordReset(ctx context.Context, email string) error
}

// Credentials is the result of a successful sign-in or sign-up.
type Credentials struct {
	UserID       string
	Email        string
	DisplayName  string
	IDToken      string
	RefreshToken string
	ExpiresIn    time.Duration
}

// APIClient talks to an Identity Toolkit compatible REST API.
type APIClient struct {
	httpClient *resty.Client
}

// NewClient builds a client for baseURL (for example
// https://identitytoolkit.googleapis.com/v1) authenticated by apiKey.
func NewClient(baseURL, apiKey string) *APIClient {
	restyClient := resty.New()
	restyClient.
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetQueryParam("key", apiKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second)

	return &APIClient{httpClient: restyClient}
}

type accountResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn exchanges an e-mail and password for credentials.
func (c *APIClient) SignIn(ctx context.Context, email, password string) (*Credentials, error) {
	payload := map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}

	result := new(accountResponse)
	if err := c.post(ctx, "/accounts:signInWithPassword", payload, result); err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	return result.credentials(), nil
}

// SignUp registers a new account and sets its display name.
func (c *APIClient) SignUp(ctx context.Context, email, password, displayName string) (*Credentials, error) {
	payload := map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}

	created := new(accountResponse)
	if err := c.post(ctx, "/accounts:signUp", payload, created); err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}

	creds := created.credentials()
	if displayName == "" {
		return creds, nil
	}

	update := map[string]any{
		"idToken":           created.IDToken,
		"displayName":       displayName,
		"returnSecureToken": false,
	}
	if err := c.post(ctx, "/accounts:update", update, nil); err != nil {
		return nil, fmt.Errorf("set display name: %w", err)
	}
	creds.DisplayName = displayName
	return creds, nil
}

// SendPasswordReset asks the provider to e-mail a reset link.
func (c *APIClient) SendPasswordReset(ctx context.Context, email string) error {
	payload := map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}
	if err := c.post(ctx, "/accounts:sendOobCode", payload, nil); err != nil {
		return fmt.Errorf("password reset: %w", err)
	}
	return nil
}

func (c *APIClient) post(ctx context.Context, path string, payload any, result any) error {
	apiErr := new(apiError)

	req := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetError(apiErr)
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Post(path)
	if err != nil {
		return err
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		return classify(resp.StatusCode(), apiErr.Error.Message)
	}
	return nil
}

func classify(status int, message string) error {
	// Messages may carry a suffix, e.g. "WEAK_PASSWORD : Password should be at least 6 characters".
	code := strings.TrimSpace(strings.SplitN(message, ":", 2)[0])

	switch code {
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED":
		return ErrInvalidCredentials
	case "EMAIL_EXISTS":
		return ErrEmailExists
	}
	return fmt.Errorf("identity api error: status=%d, message=%s", status, message)
}

func (r *accountResponse) credentials() *Credentials {
	creds := &Credentials{
		UserID:       r.LocalID,
		Email:        r.Email,
		DisplayName:  r.DisplayName,
		IDToken:      r.IDToken,
		RefreshToken: r.RefreshToken,
	}
	if seconds, err := strconv.Atoi(r.ExpiresIn); err == nil {
		creds.ExpiresIn = time.Duration(seconds) * time.Second
	}
	return creds
}
