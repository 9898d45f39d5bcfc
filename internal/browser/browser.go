// Package browser discovers managed objects through container views.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/EternisAI/vconnector/internal/cache"
	"github.com/EternisAI/vconnector/internal/collector"
	"github.com/EternisAI/vconnector/internal/remote"
	"github.com/EternisAI/vconnector/internal/session"
)

type Browser struct {
	session *session.Manager
	cache   *cache.Inventory[remote.ObjectRef]
}

type Option func(*Browser)

// WithCache makes GetByProperty remember resolved objects.
func WithCache(inv *cache.Inventory[remote.ObjectRef]) Option {
	return func(b *Browser) {
		b.cache = inv
	}
}

func New(m *session.Manager, opts ...Option) *Browser {
	b := &Browser{session: m}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// GetView returns a view over every object of kind reachable from root. A
// zero root selects the inventory root folder. The caller releases it.
func (b *Browser) GetView(ctx context.Context, kind string, root remote.ObjectRef) (*session.View, error) {
	return b.session.OpenView(ctx, kind, root)
}

// GetByProperty returns the first object of kind, in server order, whose
// property name equals value. Numbers match by value regardless of their Go
// type. No match is reported with found=false.
func (b *Browser) GetByProperty(ctx context.Context, name string, value any, kind string, root remote.ObjectRef) (ref session.ObjectRef, found bool, err error) {
	key := cacheKey(kind, name, value, root)
	// a disconnected manager falls through to GetView, which reports it
	if b.cache != nil && b.session.IsConnected() {
		if cached, ok := b.cache.Get(key); ok {
			slog.Debug("Object found in cache", "host", b.session.Host(), "kind", kind, "property", name)
			return b.session.Ref(cached), true, nil
		}
	}

	view, err := b.GetView(ctx, kind, root)
	if err != nil {
		return session.ObjectRef{}, false, err
	}
	defer func() {
		if releaseErr := view.Release(ctx); releaseErr != nil {
			slog.Warn("Failed to release view", "host", b.session.Host(), "kind", kind, "error", releaseErr)
		}
	}()

	records, err := collector.Collect(ctx, view, kind, []string{name})
	if err != nil {
		return session.ObjectRef{}, false, fmt.Errorf("lookup %s by %s: %w", kind, name, err)
	}

	for _, record := range records {
		v, ok := record.Get(name)
		if !ok || !matches(v, value) {
			continue
		}
		if b.cache != nil {
			b.cache.Add(key, record.Object.ObjectRef)
		}
		return record.Object, true, nil
	}
	return session.ObjectRef{}, false, nil
}

func cacheKey(kind, name string, value any, root remote.ObjectRef) string {
	return fmt.Sprintf("%s|%s|%T:%v|%s", kind, name, value, value, root)
}

func matches(got, want any) bool {
	g, gok := number(got)
	w, wok := number(want)
	if gok && wok {
		return g.equal(w)
	}
	return reflect.DeepEqual(got, want)
}

type numeric struct {
	i     int64
	u     uint64
	f     float64
	kind  reflect.Kind
	float bool
}

func number(v any) (numeric, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return numeric{i: rv.Int(), f: float64(rv.Int()), kind: reflect.Int64}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return numeric{u: rv.Uint(), f: float64(rv.Uint()), kind: reflect.Uint64}, true
	case reflect.Float32, reflect.Float64:
		return numeric{f: rv.Float(), float: true}, true
	}
	return numeric{}, false
}

// equal compares integers exactly and falls back to float64 when either
// side is a float.
func (n numeric) equal(o numeric) bool {
	switch {
	case n.float || o.float:
		return n.f == o.f
	case n.kind == o.kind:
		return n.i == o.i && n.u == o.u
	case n.kind == reflect.Int64:
		return n.i >= 0 && uint64(n.i) == o.u
	default:
		return o.i >= 0 && uint64(o.i) == n.u
	}
}
