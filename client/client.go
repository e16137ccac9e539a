package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/panyam/onesession/internal/metrics"
)

// DefaultAPIPrefix is where the remote service mounts its endpoints
const DefaultAPIPrefix = "/api"

// AuthClient talks to the remote authentication service. It holds no session
// state: every call is a single request with no retry and no caching.
type AuthClient struct {
	serverURL     string
	apiPrefix     string
	httpClient    *http.Client
	baseTransport http.RoundTripper
}

// Credentials is the request body for signup and signin
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SigninResponse is returned by a successful signin
type SigninResponse struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

// Identity is returned by a successful session lookup
type Identity struct {
	Email string `json:"email"`
}

// ClientOption configures an AuthClient
type ClientOption func(*AuthClient)

// WithAPIPrefix sets the path prefix of the remote endpoints (default "/api")
func WithAPIPrefix(prefix string) ClientOption {
	return func(c *AuthClient) {
		c.apiPrefix = "/" + strings.Trim(prefix, "/")
		if c.apiPrefix == "/" {
			c.apiPrefix = ""
		}
	}
}

// WithHTTPClient sets a custom base HTTP client (for timeouts, TLS config, etc.)
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *AuthClient) {
		if client == nil {
			return
		}
		if client.Transport != nil {
			c.baseTransport = client.Transport
		}
		c.httpClient.Timeout = client.Timeout
		c.httpClient.CheckRedirect = client.CheckRedirect
		c.httpClient.Jar = client.Jar
	}
}

// WithTransport sets a custom base transport (for connection pooling, proxies, etc.)
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *AuthClient) {
		c.baseTransport = transport
	}
}

// NewAuthClient creates a client for the service at serverURL
func NewAuthClient(serverURL string, opts ...ClientOption) *AuthClient {
	u, err := url.Parse(serverURL)
	if err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}

	c := &AuthClient{
		serverURL:     strings.TrimSuffix(serverURL, "/"),
		apiPrefix:     DefaultAPIPrefix,
		httpClient:    &http.Client{},
		baseTransport: http.DefaultTransport,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.httpClient.Transport = c.baseTransport
	return c
}

// ServerURL returns the server URL this client is configured for
func (c *AuthClient) ServerURL() string {
	return c.serverURL
}

// Signup registers a new account. On a non-2xx answer it returns an *AuthError
// carrying the response body, or "signup failed" if the body is empty.
func (c *AuthClient) Signup(ctx context.Context, email, password string) error {
	resp, err := c.postJSON(ctx, c.httpClient, "/auth/signup", Credentials{Email: email, Password: password})
	if err != nil {
		observe(OpSignup, err)
		return err
	}
	defer resp.Body.Close()

	if !isSuccess(resp) {
		err := failureFromBody(OpSignup, resp, MsgSignupFailed)
		observe(OpSignup, err)
		return err
	}

	observe(OpSignup, nil)
	return nil
}

// Signin exchanges credentials for a bearer token and the account's email.
// Failures follow the same contract as Signup, with "signin failed" as the
// generic message.
func (c *AuthClient) Signin(ctx context.Context, email, password string) (*SigninResponse, error) {
	resp, err := c.postJSON(ctx, c.httpClient, "/auth/signin", Credentials{Email: email, Password: password})
	if err != nil {
		observe(OpSignin, err)
		return nil, err
	}
	defer resp.Body.Close()

	if !isSuccess(resp) {
		err := failureFromBody(OpSignin, resp, MsgSigninFailed)
		observe(OpSignin, err)
		return nil, err
	}

	var out SigninResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		err = fmt.Errorf("invalid signin response from server: %w", err)
		observe(OpSignin, err)
		return nil, err
	}

	observe(OpSignin, nil)
	return &out, nil
}

// FetchIdentity looks up the account owning token. Any non-2xx answer yields
// the generic "failed to fetch user info" error; the server body is not
// surfaced here.
func (c *AuthClient) FetchIdentity(ctx context.Context, token string) (*Identity, error) {
	httpClient := &http.Client{
		Timeout:       c.httpClient.Timeout,
		CheckRedirect: c.httpClient.CheckRedirect,
		Jar:           c.httpClient.Jar,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   c.baseTransport,
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/me"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		observe(OpFetchIdentity, err)
		return nil, err
	}
	defer resp.Body.Close()

	if !isSuccess(resp) {
		_, _ = io.Copy(io.Discard, resp.Body)
		err := &AuthError{Op: OpFetchIdentity, StatusCode: resp.StatusCode, Message: MsgFetchIdentityFailed}
		observe(OpFetchIdentity, err)
		return nil, err
	}

	var out Identity
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		err = fmt.Errorf("invalid identity response from server: %w", err)
		observe(OpFetchIdentity, err)
		return nil, err
	}

	observe(OpFetchIdentity, nil)
	return &out, nil
}

// Signout notifies the remote service. The outcome is never surfaced: callers
// clear their session regardless.
func (c *AuthClient) Signout(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/auth/signout"), nil)
	if err != nil {
		log.Debug().Err(err).Msg("signout: failed to build request")
		return
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observe(OpSignout, err)
		log.Debug().Err(err).Str("server", c.serverURL).Msg("signout request failed")
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if !isSuccess(resp) {
		observe(OpSignout, &AuthError{Op: OpSignout, StatusCode: resp.StatusCode})
		log.Debug().Int("status", resp.StatusCode).Msg("signout rejected by server")
		return
	}
	observe(OpSignout, nil)
}

func (c *AuthClient) endpoint(path string) string {
	return c.serverURL + c.apiPrefix + path
}

func (c *AuthClient) postJSON(ctx context.Context, httpClient *http.Client, path string, body any) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return httpClient.Do(req)
}

func isSuccess(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// failureFromBody builds an AuthError from the response body, falling back to
// the generic message when the body is empty or unreadable.
func failureFromBody(op string, resp *http.Response, generic string) *AuthError {
	msg := generic
	if body, err := io.ReadAll(resp.Body); err == nil {
		if text := strings.TrimSpace(string(body)); text != "" {
			msg = text
		}
	}
	return &AuthError{Op: op, StatusCode: resp.StatusCode, Message: msg}
}

func observe(op string, err error) {
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
		if _, ok := IsAuthError(err); ok {
			outcome = metrics.OutcomeRejected
		}
	}
	metrics.AuthRequests.WithLabelValues(op, outcome).Inc()
}
