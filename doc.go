// Package onesession keeps one signed-in session consistent across every
// execution context (process, tab, worker) that shares a credential store.
//
// onesession separates the problem into four parts:
//
// Credential Store: durable key-value storage (package client and the backends
// under client/stores) holding two entries, "token" and "email". Every backend
// tells a handle about writes made through other handles, never about its own.
//
// Auth Client: client.AuthClient makes single-attempt requests to the remote
// service for signup, signin, session lookup and signout. Every rejection is a
// *client.AuthError.
//
// Session Context: SessionContext is the authoritative in-memory session of one
// context. It is rehydrated from the store, mutated only through Establish and
// Clear, and follows writes made by sibling contexts key by key.
//
// Route Guard: Guard admits requests only while the session holds a token.
//
// # Basic Usage
//
//	import (
//	    "github.com/panyam/onesession"
//	    "github.com/panyam/onesession/client"
//	    "github.com/panyam/onesession/client/stores/fs"
//	)
//
//	store, _ := fs.NewFSCredentialStore("", "myapp")
//	session, _ := onesession.NewSessionContext(store)
//	defer session.Close()
//
//	flows := &onesession.Flows{
//	    Client:  client.NewAuthClient("http://localhost:8080"),
//	    Session: session,
//	}
//	out := flows.Signin(ctx, onesession.Credentials{Email: "a@x.com", Password: "secret"})
//	if !out.OK() {
//	    fmt.Println(out.Message(client.MsgSigninFailed))
//	}
//
// Protect handlers with a Guard:
//
//	guard := &onesession.Guard{Session: session}
//	mux.Handle("/me", guard.Wrap(profileHandler))
//
// # Two-key race
//
// Token and email are two entries written one after the other, so a sibling
// context sees two notifications. SessionContext applies each as it arrives;
// in between, Current can return a session whose fields disagree. Session.Paired
// reports that state. The Guard only looks at the token.
package onesession
