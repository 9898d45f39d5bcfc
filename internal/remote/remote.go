// Package remote describes the management endpoint as an opaque
// request/response service. Implementations translate their transport
// failures into the errors declared here.
package remote

import (
	"context"
)

// ObjectRef identifies a managed object on the server. It is a reference
// only; nothing about the remote object graph is held locally.
type ObjectRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

func (r ObjectRef) IsZero() bool {
	return r.Kind == "" && r.ID == ""
}

func (r ObjectRef) String() string {
	return r.Kind + ":" + r.ID
}

// Property is one returned property value keyed by the path the server
// reports for it.
type Property struct {
	Path  string
	Value any
}

// MissingProperty is a requested path the server could not return for one
// object. Err is a *Error when the server supplied a fault.
type MissingProperty struct {
	Path string
	Err  error
}

// ObjectContent is the raw per-object result of a property retrieval.
type ObjectContent struct {
	Object     ObjectRef
	Properties []Property
	Missing    []MissingProperty
}

// Credentials passed to Endpoint.Authenticate.
type Credentials struct {
	Host     string
	Username string
	Password string
}

// Endpoint authenticates against a management server.
type Endpoint interface {
	// Authenticate returns a live Conn or an error wrapping
	// ErrAuthentication or ErrConnectivity.
	Authenticate(ctx context.Context, creds Credentials) (Conn, error)
}

// Conn is an authenticated session to one endpoint. Calls on an expired
// session fail with an error wrapping ErrSessionExpired.
type Conn interface {
	// RootFolder is the root of the server's inventory.
	RootFolder() ObjectRef
	CreateView(ctx context.Context, kind string, root ObjectRef) (ObjectRef, error)
	DestroyView(ctx context.Context, view ObjectRef) error
	// RetrieveProperties returns paths for every object of kind in view in
	// a single round trip, in server order.
	RetrieveProperties(ctx context.Context, view ObjectRef, kind string, paths []string) ([]ObjectContent, error)
	// Ping verifies the server still honours the session.
	Ping(ctx context.Context) error
	Logout(ctx context.Context) error
}
