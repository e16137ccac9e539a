package onesession

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultSigninURL is where the Guard sends unauthenticated requests
const DefaultSigninURL = "/signin"

// Decision is the outcome of one Guard evaluation
type Decision struct {
	Allow    bool
	Redirect string
}

// Guard admits requests only while the session holds a token. It keeps no
// state of its own: every evaluation reads the session again, so a clear made
// in another context revokes access on the very next request.
type Guard struct {
	Session   SessionReader
	SigninURL string

	// CallbackURLParam, when set, carries the requested path to the signin page
	CallbackURLParam string
}

/**
 * Ensures that config values have reasonable defaults.
 */
func (g *Guard) EnsureReasonableDefaults() {
	if g.SigninURL == "" {
		g.SigninURL = DefaultSigninURL
	}
}

// Evaluate decides whether protected content may be shown right now
func (g *Guard) Evaluate() Decision {
	g.EnsureReasonableDefaults()
	if g.Session != nil && g.Session.Current().Authenticated() {
		return Decision{Allow: true}
	}
	return Decision{Redirect: g.SigninURL}
}

// Wrap serves next when Evaluate allows it and redirects to the signin page otherwise
func (g *Guard) Wrap(next http.Handler) http.Handler {
	g.EnsureReasonableDefaults()
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			d := g.Evaluate()
			if d.Allow {
				next.ServeHTTP(w, r)
				return
			}

			redirUrl := d.Redirect
			if g.CallbackURLParam != "" {
				encodedUrl := strings.Replace(url.QueryEscape(r.URL.Path), "+", "%20", -1)
				redirUrl = fmt.Sprintf("%s?%s=%s", redirUrl, g.CallbackURLParam, encodedUrl)
			}
			log.Debug().Str("path", r.URL.Path).Str("redirect", redirUrl).Msg("no session, redirecting")
			http.Redirect(w, r, redirUrl, http.StatusFound)
		},
	)
}
