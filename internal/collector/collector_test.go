package collector

import (
	"context"
	"testing"

	"github.com/EternisAI/vconnector/internal/remote"
	"github.com/EternisAI/vconnector/internal/remote/remotetest"
	"github.com/EternisAI/vconnector/internal/session"
	"github.com/EternisAI/vconnector/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type datastoreSummary struct {
	Capacity  int64
	FreeSpace int64
	Url       string
}

type ArrayOfString struct {
	String []string
}

func connect(t *testing.T, ep *remotetest.Endpoint) *session.Manager {
	t.Helper()
	ep.AddUser("root", "p4ssw0rd")
	m := session.New(store.ConnectionRecord{Host: "vc01", Username: "root", Password: "p4ssw0rd", Enabled: true}, ep)
	require.NoError(t, m.Connect(context.Background()))
	return m
}

func openView(t *testing.T, m *session.Manager, kind string) *session.View {
	t.Helper()
	view, err := m.OpenView(context.Background(), kind, remote.ObjectRef{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = view.Release(context.Background()) })
	return view
}

func TestCollectMarksAbsentProperties(t *testing.T) {
	ctx := context.Background()
	ep := remotetest.NewEndpoint()
	ep.AddObject("Datastore", "datastore-1", map[string]any{
		"name":    "ds1",
		"summary": map[string]any{"capacity": int64(1 << 40)},
	})
	ep.AddObject("Datastore", "datastore-2", map[string]any{"name": "ds2"})
	m := connect(t, ep)
	view := openView(t, m, "Datastore")

	records, err := Collect(ctx, view, "Datastore", []string{"name", "summary.capacity"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 1, ep.RetrieveCalls)

	assert.Equal(t, "datastore-1", records[0].Object.ID)
	assert.Same(t, m, records[0].Object.Session())
	assert.Equal(t, "ds1", records[0].Values["name"])
	assert.Equal(t, int64(1<<40), records[0].Values["summary.capacity"])

	assert.Equal(t, "ds2", records[1].Values["name"])
	require.Contains(t, records[1].Values, "summary.capacity")
	assert.True(t, records[1].IsAbsent("summary.capacity"))
	_, ok := records[1].Get("summary.capacity")
	assert.False(t, ok)
}

func TestCollectWalksStructs(t *testing.T) {
	ctx := context.Background()
	ep := remotetest.NewEndpoint()
	ep.AddObject("Datastore", "datastore-1", map[string]any{
		"summary": &datastoreSummary{Capacity: 100, FreeSpace: 40, Url: "ds:///vmfs/volumes/1/"},
	})
	view := openView(t, connect(t, ep), "Datastore")

	records, err := Collect(ctx, view, "Datastore", []string{"summary.capacity", "summary.freeSpace", "summary.url", "summary.nope"})
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, int64(100), r.Values["summary.capacity"])
	assert.Equal(t, int64(40), r.Values["summary.freeSpace"])
	assert.Equal(t, "ds:///vmfs/volumes/1/", r.Values["summary.url"])
	assert.True(t, r.IsAbsent("summary.nope"))
}

func TestCollectNormalizesValues(t *testing.T) {
	ctx := context.Background()
	ep := remotetest.NewEndpoint()
	host := remote.ObjectRef{Kind: "HostSystem", ID: "host-1"}
	ep.AddObject("VirtualMachine", "vm-1", map[string]any{
		"runtime.host": host,
		"datastore":    []remote.ObjectRef{{Kind: "Datastore", ID: "datastore-1"}},
		"tags":         ArrayOfString{String: []string{"a", "b"}},
	})
	m := connect(t, ep)
	view := openView(t, m, "VirtualMachine")

	records, err := Collect(ctx, view, "VirtualMachine", []string{"runtime.host", "datastore", "tags", "tags"})
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Len(t, r.Values, 3)

	ref, ok := r.Values["runtime.host"].(session.ObjectRef)
	require.True(t, ok)
	assert.Equal(t, host, ref.ObjectRef)
	assert.Same(t, m, ref.Session())

	refs, ok := r.Values["datastore"].([]session.ObjectRef)
	require.True(t, ok)
	require.Len(t, refs, 1)
	assert.Equal(t, "datastore-1", refs[0].ID)

	assert.Equal(t, []string{"a", "b"}, r.Values["tags"])
}

func TestCollectPermissionDenied(t *testing.T) {
	ep := remotetest.NewEndpoint()
	ep.AddObject("VirtualMachine", "vm-1", map[string]any{"name": "vm-1", "config": map[string]any{}}, "config")
	view := openView(t, connect(t, ep), "VirtualMachine")

	_, err := Collect(context.Background(), view, "VirtualMachine", []string{"name", "config"})
	assert.ErrorIs(t, err, remote.ErrPermissionDenied)

	var rerr *remote.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "config", rerr.Path)
	assert.Equal(t, "vm-1", rerr.Object.ID)
}

func TestCollectInvalidPath(t *testing.T) {
	ep := remotetest.NewEndpoint()
	ep.AddObject("VirtualMachine", "vm-1", map[string]any{"name": "vm-1"})
	ep.InvalidPaths["bogus.path"] = true
	view := openView(t, connect(t, ep), "VirtualMachine")

	_, err := Collect(context.Background(), view, "VirtualMachine", []string{"name", "bogus.path"})
	var rerr *remote.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "InvalidProperty", rerr.Fault)
	assert.Equal(t, "bogus.path", rerr.Path)
}

func TestCollectReleasedView(t *testing.T) {
	ctx := context.Background()
	ep := remotetest.NewEndpoint()
	ep.AddObject("VirtualMachine", "vm-1", nil)
	view := openView(t, connect(t, ep), "VirtualMachine")
	require.NoError(t, view.Release(ctx))

	_, err := Collect(ctx, view, "VirtualMachine", []string{"name"})
	assert.ErrorIs(t, err, remote.ErrNotConnected)
	assert.Zero(t, ep.RetrieveCalls)
}

func TestCollectExpiredSession(t *testing.T) {
	ctx := context.Background()
	ep := remotetest.NewEndpoint()
	ep.AddObject("VirtualMachine", "vm-1", nil)
	m := connect(t, ep)
	view := openView(t, m, "VirtualMachine")
	ep.ExpireSessions()

	_, err := Collect(ctx, view, "VirtualMachine", []string{"name"})
	assert.ErrorIs(t, err, remote.ErrNotConnected)
	assert.False(t, m.IsConnected())
	assert.False(t, view.Valid())
}

func TestRecordHelpers(t *testing.T) {
	r := PropertyRecord{Values: map[string]any{"name": "vm-1", "guest.ipAddress": Absent{}}}

	v, ok := r.Get("name")
	assert.True(t, ok)
	assert.Equal(t, "vm-1", v)
	assert.True(t, r.IsAbsent("guest.ipAddress"))
	assert.False(t, r.IsAbsent("name"))
	_, ok = r.Get("unrequested")
	assert.False(t, ok)
	assert.Equal(t, "<absent>", Absent{}.String())
}
