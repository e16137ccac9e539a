package client

import (
	"net/http"

	"golang.org/x/oauth2"
)

// AuthTransport wraps an http.RoundTripper to add Authorization headers.
// The token is read from Source on every request, so a session established or
// cleared after the transport was built is picked up immediately. If Source
// returns an error (for example because nobody is signed in) the request is sent
// without credentials.
type AuthTransport struct {
	Base   http.RoundTripper
	Source oauth2.TokenSource
}

// RoundTrip implements http.RoundTripper
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Source != nil {
		if tok, err := t.Source.Token(); err == nil && tok != nil && tok.AccessToken != "" {
			// Clone the request to avoid mutating the original
			req2 := req.Clone(req.Context())
			tok.SetAuthHeader(req2)
			req = req2
		}
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	return base.RoundTrip(req)
}

// NewAuthTransport creates an AuthTransport reading tokens from source
func NewAuthTransport(source oauth2.TokenSource) *AuthTransport {
	return &AuthTransport{
		Base:   http.DefaultTransport,
		Source: source,
	}
}

// NewAuthTransportWithBase creates an AuthTransport with a custom base transport
func NewAuthTransportWithBase(base http.RoundTripper, source oauth2.TokenSource) *AuthTransport {
	return &AuthTransport{
		Base:   base,
		Source: source,
	}
}
