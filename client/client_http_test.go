package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestAuthClient_Signup_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/signup" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}

		body, _ := io.ReadAll(r.Body)
		var req Credentials
		json.Unmarshal(body, &req)
		if req.Email != "a@x.com" || req.Password != "secret" {
			t.Errorf("unexpected body: %+v", req)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	c := NewAuthClient(server.URL)
	if err := c.Signup(context.Background(), "a@x.com", "secret"); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
}

func TestAuthClient_Signup_Failure(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{
			name:    "server message",
			status:  http.StatusConflict,
			body:    "Email already exists\n",
			wantMsg: "Email already exists",
		},
		{
			name:    "empty body",
			status:  http.StatusInternalServerError,
			body:    "",
			wantMsg: MsgSignupFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			err := NewAuthClient(server.URL).Signup(context.Background(), "a@x.com", "secret")
			authErr, ok := IsAuthError(err)
			if !ok {
				t.Fatalf("expected *AuthError, got %v", err)
			}
			if authErr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", authErr.Message, tt.wantMsg)
			}
			if authErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", authErr.StatusCode, tt.status)
			}
			if authErr.Op != OpSignup {
				t.Errorf("Op = %q, want %q", authErr.Op, OpSignup)
			}
		})
	}
}

func TestAuthClient_Signin_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/signin" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(SigninResponse{Token: "abc", Email: "a@x.com"})
	}))
	defer server.Close()

	resp, err := NewAuthClient(server.URL).Signin(context.Background(), "a@x.com", "secret")
	if err != nil {
		t.Fatalf("Signin() error = %v", err)
	}
	if resp.Token != "abc" || resp.Email != "a@x.com" {
		t.Errorf("Signin() = %+v", resp)
	}
}

func TestAuthClient_Signin_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := NewAuthClient(server.URL).Signin(context.Background(), "a@x.com", "wrong")
	if err == nil {
		t.Fatal("Signin() should have failed")
	}
	if err.Error() != "invalid credentials" {
		t.Errorf("error = %q, want %q", err.Error(), "invalid credentials")
	}
}

func TestAuthClient_Signin_EmptyBodyUsesGenericMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewAuthClient(server.URL).Signin(context.Background(), "a@x.com", "secret")
	if err == nil || err.Error() != MsgSigninFailed {
		t.Errorf("error = %v, want %q", err, MsgSigninFailed)
	}
}

func TestAuthClient_FetchIdentity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/me" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer abc" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(Identity{Email: "a@x.com"})
	}))
	defer server.Close()

	c := NewAuthClient(server.URL)

	id, err := c.FetchIdentity(context.Background(), "abc")
	if err != nil {
		t.Fatalf("FetchIdentity() error = %v", err)
	}
	if id.Email != "a@x.com" {
		t.Errorf("Email = %q, want a@x.com", id.Email)
	}

	// The server body is never surfaced for session lookups
	_, err = c.FetchIdentity(context.Background(), "stale")
	if err == nil {
		t.Fatal("FetchIdentity() with bad token should fail")
	}
	if err.Error() != MsgFetchIdentityFailed {
		t.Errorf("error = %q, want %q", err.Error(), MsgFetchIdentityFailed)
	}
}

func TestAuthClient_Signout_IgnoresOutcome(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/signout" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	NewAuthClient(server.URL).Signout(context.Background())

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected exactly one signout call, got %d", calls)
	}

	// Unreachable server must not panic or block
	unreachable := NewAuthClient("http://127.0.0.1:1")
	unreachable.Signout(context.Background())
}

func TestAuthClient_SingleAttempt(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	NewAuthClient(server.URL).Signin(context.Background(), "a@x.com", "secret")
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected exactly one attempt, got %d", calls)
	}
}

func TestAuthClient_TransportFailureIsNotAuthError(t *testing.T) {
	c := NewAuthClient("http://127.0.0.1:1")
	err := c.Signup(context.Background(), "a@x.com", "secret")
	if err == nil {
		t.Fatal("expected transport error")
	}
	if _, ok := IsAuthError(err); ok {
		t.Errorf("transport failure should not be an *AuthError: %v", err)
	}
	if msg := ErrorMessage(err, MsgSignupFailed); msg == "" {
		t.Error("ErrorMessage should never be empty for a non-nil error")
	}
}

func TestAuthClient_APIPrefixAndURLNormalization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/auth/signup" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	c := NewAuthClient(server.URL+"/ignored/path", WithAPIPrefix("v2/"))
	if c.ServerURL() != server.URL {
		t.Errorf("ServerURL() = %q, want %q", c.ServerURL(), server.URL)
	}
	if err := c.Signup(context.Background(), "a@x.com", "secret"); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
}

func TestAuthClient_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewAuthClient(server.URL).Signup(ctx, "a@x.com", "secret")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
