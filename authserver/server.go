// Package authserver is a small development implementation of the remote
// authentication service that client.AuthClient talks to. Passwords are
// bcrypt-hashed and sessions are stateless HS256 tokens.
package authserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// Response bodies. Error bodies are plain text.
const (
	MsgEmailPasswordRequired = "Email and password required"
	MsgEmailExists           = "Email already exists"
	MsgInvalidCredentials    = "Invalid credentials"
	MsgUnauthorized          = "Unauthorized"
	MsgInvalidBody           = "Invalid request body"
	MsgServerError           = "Server error"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signinResponse struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

type meResponse struct {
	Email string `json:"email"`
}

type emailKey struct{}

// Server serves the auth endpoints under a path prefix
type Server struct {
	Users      UserStore
	Tokens     *TokenIssuer
	APIPrefix  string
	BcryptCost int
}

// New creates a server with the default "/api" prefix
func New(users UserStore, tokens *TokenIssuer) *Server {
	return &Server{
		Users:      users,
		Tokens:     tokens,
		APIPrefix:  "/api",
		BcryptCost: bcrypt.DefaultCost,
	}
}

// Handler returns the routes:
//
//	POST {prefix}/auth/signup
//	POST {prefix}/auth/signin
//	POST {prefix}/auth/signout
//	GET  {prefix}/me (bearer token required)
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.Register(r)
	return r
}

// Register adds the routes to an existing router
func (s *Server) Register(r *mux.Router) {
	api := r.PathPrefix(strings.TrimSuffix(s.APIPrefix, "/")).Subrouter()
	api.HandleFunc("/auth/signup", s.HandleSignup).Methods(http.MethodPost)
	api.HandleFunc("/auth/signin", s.HandleSignin).Methods(http.MethodPost)
	api.HandleFunc("/auth/signout", s.HandleSignout).Methods(http.MethodPost)
	api.Handle("/me", s.RequireBearer(http.HandlerFunc(s.HandleMe))).Methods(http.MethodGet)
}

func (s *Server) HandleSignup(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	cost := s.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), cost)
	if err != nil {
		log.Error().Err(err).Msg("failed to hash password")
		http.Error(w, MsgServerError, http.StatusInternalServerError)
		return
	}

	err = s.Users.CreateUser(r.Context(), User{Email: req.Email, PasswordHash: string(hash)})
	if errors.Is(err, ErrDuplicateEmail) {
		http.Error(w, MsgEmailExists, http.StatusConflict)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to create user")
		http.Error(w, MsgServerError, http.StatusInternalServerError)
		return
	}

	log.Info().Str("email", req.Email).Msg("user signed up")
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) HandleSignin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	user, err := s.Users.FindUserByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			log.Error().Err(err).Msg("user lookup failed")
		}
		http.Error(w, MsgInvalidCredentials, http.StatusUnauthorized)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		http.Error(w, MsgInvalidCredentials, http.StatusUnauthorized)
		return
	}

	token, err := s.Tokens.Issue(user.Email)
	if err != nil {
		log.Error().Err(err).Msg("failed to issue token")
		http.Error(w, MsgServerError, http.StatusInternalServerError)
		return
	}

	encodeJSON(w, signinResponse{Token: token, Email: user.Email})
}

// HandleSignout acknowledges the signout. Tokens are stateless, so there is
// nothing to revoke.
func (s *Server) HandleSignout(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) HandleMe(w http.ResponseWriter, r *http.Request) {
	email, _ := r.Context().Value(emailKey{}).(string)
	encodeJSON(w, meResponse{Email: email})
}

// RequireBearer rejects requests without a valid bearer token
func (s *Server) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, MsgUnauthorized, http.StatusUnauthorized)
			return
		}

		email, err := s.Tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			log.Debug().Err(err).Msg("rejecting bearer token")
			http.Error(w, MsgUnauthorized, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), emailKey{}, email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, MsgInvalidBody, http.StatusBadRequest)
		return req, false
	}
	req.Email = NormalizeEmail(req.Email)
	if req.Email == "" || req.Password == "" {
		http.Error(w, MsgEmailPasswordRequired, http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func encodeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
