// Package remotetest provides an in-memory remote.Endpoint for tests.
package remotetest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/EternisAI/vconnector/internal/remote"
	"github.com/samber/lo"
)

// Object is one managed object held by the fake inventory.
type Object struct {
	Ref        remote.ObjectRef
	Properties map[string]any
	// Denied lists paths the fake reports as a permission fault.
	Denied []string
}

// Endpoint is a fake management server. Properties are served verbatim;
// a requested path below a stored key returns the containing value under
// the stored key, the way a server returns an enclosing data object.
type Endpoint struct {
	mu sync.Mutex

	users   map[string]string
	objects []Object
	root    remote.ObjectRef

	// Unreachable makes Authenticate fail with remote.ErrConnectivity.
	Unreachable bool
	// InvalidPaths are rejected by RetrieveProperties as a whole.
	InvalidPaths map[string]bool
	// DestroyErr is returned by every DestroyView call.
	DestroyErr error

	AuthCalls     int
	RetrieveCalls int
	LogoutCalls   int

	nextConn int
	nextView int
	views    map[string]string
	conns    []*Conn
}

func NewEndpoint() *Endpoint {
	return &Endpoint{
		users:        make(map[string]string),
		root:         remote.ObjectRef{Kind: "Folder", ID: "group-d1"},
		InvalidPaths: make(map[string]bool),
		views:        make(map[string]string),
	}
}

func (e *Endpoint) AddUser(username, password string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.users[username] = password
}

func (e *Endpoint) AddObject(kind, id string, props map[string]any, denied ...string) remote.ObjectRef {
	e.mu.Lock()
	defer e.mu.Unlock()
	ref := remote.ObjectRef{Kind: kind, ID: id}
	e.objects = append(e.objects, Object{Ref: ref, Properties: props, Denied: denied})
	return ref
}

// ExpireSessions invalidates every issued session server-side.
func (e *Endpoint) ExpireSessions() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.conns {
		c.expired = true
	}
}

// OpenViews reports views created and not yet destroyed.
func (e *Endpoint) OpenViews() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.views)
}

func (e *Endpoint) Authenticate(ctx context.Context, creds remote.Credentials) (remote.Conn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.AuthCalls++
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", remote.ErrConnectivity, err)
	}
	if e.Unreachable {
		return nil, fmt.Errorf("%w: dial %s: connection refused", remote.ErrConnectivity, creds.Host)
	}
	if pass, ok := e.users[creds.Username]; !ok || pass != creds.Password {
		return nil, fmt.Errorf("%w: invalid login for %s", remote.ErrAuthentication, creds.Username)
	}

	e.nextConn++
	c := &Conn{ep: e, id: e.nextConn}
	e.conns = append(e.conns, c)
	return c, nil
}

func (e *Endpoint) hasKind(kind string) bool {
	for _, o := range e.objects {
		if o.Ref.Kind == kind {
			return true
		}
	}
	return false
}

// Conn is a session issued by Endpoint.
type Conn struct {
	ep        *Endpoint
	id        int
	expired   bool
	loggedOut bool
}

func (c *Conn) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", remote.ErrConnectivity, err)
	}
	if c.expired || c.loggedOut {
		return remote.ErrSessionExpired
	}
	return nil
}

func (c *Conn) RootFolder() remote.ObjectRef {
	return c.ep.root
}

func (c *Conn) CreateView(ctx context.Context, kind string, root remote.ObjectRef) (remote.ObjectRef, error) {
	c.ep.mu.Lock()
	defer c.ep.mu.Unlock()

	if err := c.check(ctx); err != nil {
		return remote.ObjectRef{}, err
	}
	if !c.ep.hasKind(kind) {
		return remote.ObjectRef{}, &remote.Error{Op: "CreateContainerView", Object: root, Fault: "InvalidType", Detail: kind}
	}

	c.ep.nextView++
	ref := remote.ObjectRef{Kind: "ContainerView", ID: fmt.Sprintf("session[%d]view-%d", c.id, c.ep.nextView)}
	c.ep.views[ref.ID] = kind
	return ref, nil
}

func (c *Conn) DestroyView(ctx context.Context, view remote.ObjectRef) error {
	c.ep.mu.Lock()
	defer c.ep.mu.Unlock()

	delete(c.ep.views, view.ID)
	if c.ep.DestroyErr != nil {
		return c.ep.DestroyErr
	}
	return c.check(ctx)
}

func (c *Conn) RetrieveProperties(ctx context.Context, view remote.ObjectRef, kind string, paths []string) ([]remote.ObjectContent, error) {
	c.ep.mu.Lock()
	defer c.ep.mu.Unlock()

	c.ep.RetrieveCalls++
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	if _, ok := c.ep.views[view.ID]; !ok {
		return nil, &remote.Error{Op: "RetrieveProperties", Object: view, Fault: "ManagedObjectNotFound"}
	}
	for _, p := range paths {
		if c.ep.InvalidPaths[p] {
			return nil, &remote.Error{Op: "RetrieveProperties", Path: p, Fault: "InvalidProperty"}
		}
	}

	var out []remote.ObjectContent
	for _, o := range c.ep.objects {
		if o.Ref.Kind != kind {
			continue
		}
		content := remote.ObjectContent{Object: o.Ref}
		for _, p := range paths {
			if lo.Contains(o.Denied, p) {
				content.Missing = append(content.Missing, remote.MissingProperty{
					Path: p,
					Err:  &remote.Error{Op: "RetrieveProperties", Object: o.Ref, Path: p, Fault: "NoPermission", Denied: true},
				})
				continue
			}
			if v, ok := o.Properties[p]; ok {
				content.Properties = append(content.Properties, remote.Property{Path: p, Value: v})
				continue
			}
			for key, v := range o.Properties {
				if strings.HasPrefix(p, key+".") {
					content.Properties = append(content.Properties, remote.Property{Path: key, Value: v})
					break
				}
			}
		}
		out = append(out, content)
	}
	return out, nil
}

func (c *Conn) Ping(ctx context.Context) error {
	c.ep.mu.Lock()
	defer c.ep.mu.Unlock()
	return c.check(ctx)
}

func (c *Conn) Logout(ctx context.Context) error {
	c.ep.mu.Lock()
	defer c.ep.mu.Unlock()

	c.ep.LogoutCalls++
	if err := c.check(ctx); err != nil {
		return err
	}
	c.loggedOut = true
	return nil
}
