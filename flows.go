package onesession

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/panyam/onesession/client"
)

// Page paths the flows navigate between
const (
	PathSignup = "/signup"
	PathSignin = "/signin"
	PathMe     = "/me"
)

// AuthAPI is the remote service as the flows see it. *client.AuthClient
// implements it.
type AuthAPI interface {
	Signup(ctx context.Context, email, password string) error
	Signin(ctx context.Context, email, password string) (*client.SigninResponse, error)
	FetchIdentity(ctx context.Context, token string) (*client.Identity, error)
	Signout(ctx context.Context)
}

var _ AuthAPI = (*client.AuthClient)(nil)

// Outcome is the result of a flow: a page to go to, or an error to show
// inline on the current page.
type Outcome struct {
	Next string
	Err  error
}

// OK reports whether the flow succeeded
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Message is the text to show for a failed flow
func (o Outcome) Message(fallback string) string {
	return client.ErrorMessage(o.Err, fallback)
}

// Flows composes the auth client and a session context into the signup,
// signin and profile pages.
type Flows struct {
	Client  AuthAPI
	Session *SessionContext
}

// Signup registers the user and sends them to signin
func (f *Flows) Signup(ctx context.Context, creds Credentials) Outcome {
	if err := creds.Validate(); err != nil {
		return Outcome{Err: err}
	}
	if err := f.Client.Signup(ctx, strings.TrimSpace(creds.Email), creds.Password); err != nil {
		return Outcome{Err: err}
	}
	return Outcome{Next: PathSignin}
}

// Signin authenticates and, only on success, establishes the session
func (f *Flows) Signin(ctx context.Context, creds Credentials) Outcome {
	if err := creds.Validate(); err != nil {
		return Outcome{Err: err}
	}
	resp, err := f.Client.Signin(ctx, strings.TrimSpace(creds.Email), creds.Password)
	if err != nil {
		return Outcome{Err: err}
	}
	if err := f.Session.Establish(resp.Token, resp.Email); err != nil {
		return Outcome{Err: err}
	}
	return Outcome{Next: PathMe}
}

// Profile is the session the "me" page displays
func (f *Flows) Profile() Session {
	return f.Session.Current()
}

// Signout tells the remote service (without waiting on its answer) and then
// clears the session whatever the remote did.
func (f *Flows) Signout(ctx context.Context) Outcome {
	f.Client.Signout(ctx)
	if err := f.Session.Clear(); err != nil {
		log.Warn().Err(err).Msg("signout left credential entries behind")
	}
	return Outcome{Next: PathSignin}
}

// Verify asks the remote service who the current token belongs to
func (f *Flows) Verify(ctx context.Context) (*client.Identity, error) {
	s := f.Session.Current()
	if !s.Authenticated() {
		return nil, ErrNoSession
	}
	return f.Client.FetchIdentity(ctx, s.Token)
}
