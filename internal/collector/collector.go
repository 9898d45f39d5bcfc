// Package collector retrieves property values for every object in a view
// with a single round trip.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/EternisAI/vconnector/internal/remote"
	"github.com/EternisAI/vconnector/internal/session"
	"github.com/samber/lo"
)

// Collect returns one record per object of kind in view, in server order.
// Permission faults fail the whole call with a *remote.Error naming the
// object and path.
func Collect(ctx context.Context, view *session.View, kind string, paths []string) ([]PropertyRecord, error) {
	if view == nil || !view.Valid() {
		return nil, fmt.Errorf("%w: view is released or its session is gone", remote.ErrNotConnected)
	}

	paths = lo.Uniq(paths)
	m := view.Session()

	var contents []remote.ObjectContent
	err := m.Call(ctx, func(ctx context.Context, conn remote.Conn) error {
		var err error
		contents, err = conn.RetrieveProperties(ctx, view.Ref().ObjectRef, kind, paths)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("collect %s properties: %w", kind, err)
	}

	records := make([]PropertyRecord, 0, len(contents))
	for _, content := range contents {
		record, err := buildRecord(m, content, paths)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	slog.Debug("Properties collected", "host", m.Host(), "kind", kind, "objects", len(records), "paths", len(paths))
	return records, nil
}

func buildRecord(m *session.Manager, content remote.ObjectContent, paths []string) (PropertyRecord, error) {
	record := PropertyRecord{
		Object: m.Ref(content.Object),
		Values: make(map[string]any, len(paths)),
	}

	missing := make(map[string]error, len(content.Missing))
	for _, mp := range content.Missing {
		if errors.Is(mp.Err, remote.ErrPermissionDenied) {
			return PropertyRecord{}, permissionError(content.Object, mp)
		}
		missing[mp.Path] = mp.Err
	}

	props := make(map[string]any, len(content.Properties))
	for _, p := range content.Properties {
		props[p.Path] = p.Value
	}

	for _, path := range paths {
		if err, ok := missing[path]; ok {
			record.Values[path] = Absent{Err: err}
			continue
		}
		if v, ok := lookup(props, path); ok {
			record.Values[path] = normalize(m, v)
			continue
		}
		record.Values[path] = Absent{}
	}
	return record, nil
}

func permissionError(obj remote.ObjectRef, mp remote.MissingProperty) error {
	var rerr *remote.Error
	if errors.As(mp.Err, &rerr) {
		if rerr.Object.IsZero() {
			rerr.Object = obj
		}
		if rerr.Path == "" {
			rerr.Path = mp.Path
		}
		return rerr
	}
	return &remote.Error{Op: "RetrieveProperties", Object: obj, Path: mp.Path, Fault: "NoPermission", Detail: mp.Err.Error(), Denied: true}
}

// lookup resolves path against the returned properties. The server may
// answer a nested path with the enclosing value under a shorter path; the
// remaining segments are then walked locally.
func lookup(props map[string]any, path string) (any, bool) {
	if v, ok := props[path]; ok {
		return v, v != nil
	}
	segments := strings.Split(path, ".")
	for i := len(segments) - 1; i > 0; i-- {
		prefix := strings.Join(segments[:i], ".")
		if v, ok := props[prefix]; ok {
			return walk(v, segments[i:])
		}
	}
	return nil, false
}

func walk(value any, segments []string) (any, bool) {
	v := reflect.ValueOf(value)
	for _, seg := range segments {
		v = indirect(v)
		if !v.IsValid() {
			return nil, false
		}
		if inner, ok := arrayOf(v); ok {
			v = indirect(inner)
		}
		switch v.Kind() {
		case reflect.Map:
			if v.Type().Key().Kind() != reflect.String {
				return nil, false
			}
			v = v.MapIndex(reflect.ValueOf(seg).Convert(v.Type().Key()))
		case reflect.Struct:
			v = v.FieldByNameFunc(func(name string) bool {
				return strings.EqualFold(name, seg)
			})
		default:
			return nil, false
		}
		if !v.IsValid() {
			return nil, false
		}
	}
	v = indirect(v)
	if !v.IsValid() || !v.CanInterface() {
		return nil, false
	}
	return v.Interface(), true
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// arrayOf unwraps the single-slice wrapper structs the SOAP API uses for
// array-valued properties (ArrayOfString, ArrayOfManagedObjectReference).
func arrayOf(v reflect.Value) (reflect.Value, bool) {
	if v.Kind() != reflect.Struct || !strings.HasPrefix(v.Type().Name(), "ArrayOf") || v.NumField() != 1 {
		return reflect.Value{}, false
	}
	f := v.Field(0)
	if f.Kind() != reflect.Slice {
		return reflect.Value{}, false
	}
	return f, true
}

func normalize(m *session.Manager, value any) any {
	switch v := value.(type) {
	case remote.ObjectRef:
		return m.Ref(v)
	case []remote.ObjectRef:
		return lo.Map(v, func(ref remote.ObjectRef, _ int) session.ObjectRef {
			return m.Ref(ref)
		})
	}
	if inner, ok := arrayOf(indirect(reflect.ValueOf(value))); ok && inner.CanInterface() {
		return normalize(m, inner.Interface())
	}
	return value
}
