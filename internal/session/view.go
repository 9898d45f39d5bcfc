package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/EternisAI/vconnector/internal/remote"
)

// ObjectRef is a managed object reference tied to the session that
// issued it.
type ObjectRef struct {
	remote.ObjectRef
	session *Manager
}

// Ref wraps a raw reference with m as its issuing session.
func (m *Manager) Ref(ref remote.ObjectRef) ObjectRef {
	return ObjectRef{ObjectRef: ref, session: m}
}

func (r ObjectRef) Session() *Manager {
	return r.session
}

// View is a server-side container view. It is only valid for the session
// generation that created it and must be released after use.
type View struct {
	ref        ObjectRef
	kind       string
	root       remote.ObjectRef
	generation uint64
	released   bool
}

// OpenView creates a container view over every object of kind reachable
// from root. A zero root selects the inventory root folder.
func (m *Manager) OpenView(ctx context.Context, kind string, root remote.ObjectRef) (*View, error) {
	var view *View
	err := m.Call(ctx, func(ctx context.Context, conn remote.Conn) error {
		if root.IsZero() {
			root = conn.RootFolder()
		}
		ref, err := conn.CreateView(ctx, kind, root)
		if err != nil {
			return err
		}
		view = &View{
			ref:        m.Ref(ref),
			kind:       kind,
			root:       root,
			generation: m.generation,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create %s view: %w", kind, err)
	}

	slog.Debug("View created", "host", m.record.Host, "kind", kind, "view", view.ref.ID)
	return view, nil
}

func (v *View) Ref() ObjectRef {
	return v.ref
}

func (v *View) Kind() string {
	return v.kind
}

func (v *View) Root() remote.ObjectRef {
	return v.root
}

func (v *View) Session() *Manager {
	return v.ref.session
}

// Valid reports whether the view is unreleased and its session is still the
// one that created it, judged locally.
func (v *View) Valid() bool {
	m := v.ref.session
	return !v.released && m != nil && m.IsConnected() && m.generation == v.generation
}

// Release destroys the server-side view. Views whose session is gone are
// marked released without a remote call. Calling Release twice is a no-op.
func (v *View) Release(ctx context.Context) error {
	if v.released {
		return nil
	}
	valid := v.Valid()
	v.released = true
	if !valid {
		return nil
	}

	m := v.ref.session
	err := m.Call(ctx, func(ctx context.Context, conn remote.Conn) error {
		return conn.DestroyView(ctx, v.ref.ObjectRef)
	})
	if err != nil {
		return fmt.Errorf("release view %s: %w", v.ref.ID, err)
	}
	slog.Debug("View released", "host", m.record.Host, "view", v.ref.ID)
	return nil
}
