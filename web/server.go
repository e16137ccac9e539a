// Package web serves the signup, signin and profile pages on top of a
// onesession.SessionContext, and pushes session changes to open pages.
package web

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/panyam/onesession"
	"github.com/panyam/onesession/client"
)

//go:embed templates/*.html
var templateFS embed.FS

const flashKey = "flash"

// MsgSignedUp is flashed on the signin page after a successful signup
const MsgSignedUp = "Account created. Please sign in."

type pageData struct {
	Title string
	Flash string
	Email string
	Error string
}

// Server hosts the page flows for one session context
type Server struct {
	Flows    *onesession.Flows
	Guard    *onesession.Guard
	Sessions *scs.SessionManager

	// Registry, when set, is exposed at /metrics
	Registry *prometheus.Registry

	pages map[string]*template.Template
}

// New creates a server for flows, guarding /me with the flows' session
func New(flows *onesession.Flows) (*Server, error) {
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}

	sessions := scs.New()
	sessions.Lifetime = 24 * time.Hour
	sessions.Cookie.Name = "onesession_flash"
	sessions.Cookie.SameSite = http.SameSiteLaxMode

	return &Server{
		Flows:    flows,
		Guard:    &onesession.Guard{Session: flows.Session},
		Sessions: sessions,
		pages:    pages,
	}, nil
}

func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template)
	for _, name := range []string{"signup", "signin", "me"} {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s page: %w", name, err)
		}
		pages[name] = tmpl
	}
	return pages, nil
}

// Handler returns all routes wrapped in the flash session middleware
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc(onesession.PathSignup, s.handleSignupPage).Methods(http.MethodGet)
	r.HandleFunc(onesession.PathSignup, s.handleSignup).Methods(http.MethodPost)
	r.HandleFunc(onesession.PathSignin, s.handleSigninPage).Methods(http.MethodGet)
	r.HandleFunc(onesession.PathSignin, s.handleSignin).Methods(http.MethodPost)
	r.Handle(onesession.PathMe, s.Guard.Wrap(http.HandlerFunc(s.handleMe))).Methods(http.MethodGet)
	r.HandleFunc("/signout", s.handleSignout).Methods(http.MethodPost)
	r.HandleFunc("/session/events", s.handleEvents).Methods(http.MethodGet)
	if s.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return s.Sessions.LoadAndSave(r)
}

func (s *Server) render(w http.ResponseWriter, page string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.pages[page].ExecuteTemplate(w, "layout", data); err != nil {
		log.Error().Err(err).Str("page", page).Msg("failed to render page")
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, onesession.PathSignin, http.StatusFound)
}

func (s *Server) handleSignupPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, "signup", pageData{Title: "Sign Up"})
}

func credentialsFrom(r *http.Request) onesession.Credentials {
	return onesession.Credentials{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	creds := credentialsFrom(r)
	out := s.Flows.Signup(r.Context(), creds)
	if !out.OK() {
		s.render(w, "signup", pageData{
			Title: "Sign Up",
			Email: creds.Email,
			Error: out.Message(client.MsgSignupFailed),
		})
		return
	}

	s.Sessions.Put(r.Context(), flashKey, MsgSignedUp)
	http.Redirect(w, r, out.Next, http.StatusSeeOther)
}

func (s *Server) handleSigninPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, "signin", pageData{
		Title: "Sign In",
		Flash: s.Sessions.PopString(r.Context(), flashKey),
	})
}

func (s *Server) handleSignin(w http.ResponseWriter, r *http.Request) {
	creds := credentialsFrom(r)
	out := s.Flows.Signin(r.Context(), creds)
	if !out.OK() {
		s.render(w, "signin", pageData{
			Title: "Sign In",
			Email: creds.Email,
			Error: out.Message(client.MsgSigninFailed),
		})
		return
	}
	http.Redirect(w, r, out.Next, http.StatusSeeOther)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.render(w, "me", pageData{Title: "Me", Email: s.Flows.Profile().Email})
}

func (s *Server) handleSignout(w http.ResponseWriter, r *http.Request) {
	out := s.Flows.Signout(r.Context())
	http.Redirect(w, r, out.Next, http.StatusSeeOther)
}

type sessionEvent struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
}

// handleEvents streams the session state as server-sent events: once on
// connect and again after every change.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	changes := make(chan onesession.Session, 16)
	cancel := s.Flows.Session.OnChange(func(sess onesession.Session) {
		select {
		case changes <- sess:
		default:
			log.Debug().Msg("dropping session event for slow client")
		}
	})
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(sess onesession.Session) error {
		data, err := json.Marshal(sessionEvent{Authenticated: sess.Authenticated(), Email: sess.Email})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: session\ndata: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	if err := send(s.Flows.Session.Current()); err != nil {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case sess := <-changes:
			if err := send(sess); err != nil {
				log.Debug().Err(err).Msg("session event stream closed")
				return
			}
		}
	}
}
