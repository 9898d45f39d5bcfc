package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/EternisAI/vconnector/internal/api/http/dto"
	"github.com/EternisAI/vconnector/internal/api/http/handler"
	"github.com/EternisAI/vconnector/internal/auth"
	"github.com/EternisAI/vconnector/internal/db"
	"github.com/EternisAI/vconnector/internal/remote/remotetest"
	"github.com/EternisAI/vconnector/internal/session"
	"github.com/EternisAI/vconnector/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "router-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	engine   *gin.Engine
	endpoint *remotetest.Endpoint
	store    *store.Store
	admin    string
	reader   string
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(ctx, db.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "api.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Init(ctx))

	ep := remotetest.NewEndpoint()
	ep.AddUser("root", "p4ssw0rd")
	ep.AddObject("Datastore", "datastore-1", map[string]any{"name": "ds1", "summary": map[string]any{"capacity": 100}})
	ep.AddObject("Datastore", "datastore-2", map[string]any{"name": "ds2"})
	ep.AddObject("VirtualMachine", "vm-1", map[string]any{"numCpu": int32(4)})

	registry := session.NewRegistry(ep)
	t.Cleanup(func() { registry.CloseAll(context.Background()) })

	engine := gin.New()
	SetupRoute(engine, &Services{
		Store:      s,
		Registry:   registry,
		AuthSecret: testSecret,
		Cache:      handler.CacheConfig{Size: 10, TTL: time.Minute},
	})

	admin, err := auth.GenerateToken(auth.Config{JWTSecret: testSecret}, "ops", auth.RoleAdmin)
	require.NoError(t, err)
	reader, err := auth.GenerateToken(auth.Config{JWTSecret: testSecret}, "viewer", auth.RoleReader)
	require.NoError(t, err)

	return &testEnv{engine: engine, endpoint: ep, store: s, admin: admin, reader: reader}
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	env := setup(t)
	w := env.do("GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Store)
}

func TestHealthWithoutStore(t *testing.T) {
	engine := gin.New()
	SetupRoute(engine, &Services{})

	req, _ := http.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCredentialLifecycle(t *testing.T) {
	env := setup(t)

	w := env.do("POST", "/api/v1/credentials", env.admin, dto.CreateCredentialRequest{Host: "vc01", Username: "root", Password: "p4ssw0rd"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotContains(t, w.Body.String(), "p4ssw0rd")

	w = env.do("POST", "/api/v1/credentials", env.admin, dto.CreateCredentialRequest{Host: "vc01", Username: "other"})
	assert.Equal(t, http.StatusConflict, w.Code)

	pass := "n3w"
	w = env.do("PATCH", "/api/v1/credentials/vc01", env.admin, dto.UpdateCredentialRequest{Password: &pass})
	require.Equal(t, http.StatusOK, w.Code)
	var cred dto.CredentialResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cred))
	assert.Equal(t, "root", cred.Username)
	assert.True(t, cred.Enabled)

	record, err := env.store.Get(context.Background(), "vc01")
	require.NoError(t, err)
	assert.Equal(t, "n3w", record.Password)

	w = env.do("POST", "/api/v1/credentials/vc01/disable", env.admin, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do("GET", "/api/v1/credentials/vc01", env.reader, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cred))
	assert.False(t, cred.Enabled)

	w = env.do("GET", "/api/v1/credentials", env.reader, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list dto.ListCredentialsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	w = env.do("DELETE", "/api/v1/credentials/vc01", env.admin, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do("DELETE", "/api/v1/credentials/vc01", env.admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do("GET", "/api/v1/credentials/vc01", env.reader, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCredentialValidation(t *testing.T) {
	env := setup(t)

	w := env.do("POST", "/api/v1/credentials", env.admin, map[string]string{"host": "vc01"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	empty := "  "
	require.NoError(t, env.store.Add(context.Background(), store.ConnectionRecord{Host: "vc01", Username: "root", Enabled: true}))
	w = env.do("PATCH", "/api/v1/credentials/vc01", env.admin, dto.UpdateCredentialRequest{Username: &empty})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("PATCH", "/api/v1/credentials/vc02", env.admin, dto.UpdateCredentialRequest{})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReaderCannotWrite(t *testing.T) {
	env := setup(t)

	w := env.do("POST", "/api/v1/credentials", env.reader, dto.CreateCredentialRequest{Host: "vc01", Username: "root"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do("GET", "/api/v1/credentials", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionLifecycle(t *testing.T) {
	env := setup(t)
	require.NoError(t, env.store.Add(context.Background(), store.ConnectionRecord{Host: "vc01", Username: "root", Password: "p4ssw0rd", Enabled: true}))

	w := env.do("POST", "/api/v1/sessions/vc01", env.admin, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var sess dto.SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, "connected", sess.State)
	assert.NotNil(t, sess.ConnectedAt)

	w = env.do("GET", "/api/v1/sessions", env.reader, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list dto.ListSessionsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	w = env.do("POST", "/api/v1/sessions/vc01/collect", env.reader, dto.CollectRequest{Kind: "Datastore", Paths: []string{"name", "summary.capacity"}})
	require.Equal(t, http.StatusOK, w.Code)
	var collected dto.CollectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &collected))
	require.Equal(t, 2, collected.Count)
	assert.Equal(t, float64(100), collected.Records[0].Properties["summary.capacity"])
	assert.Equal(t, []string{"summary.capacity"}, collected.Records[1].Absent)
	assert.Contains(t, collected.Records[1].Properties, "summary.capacity")
	assert.Zero(t, env.endpoint.OpenViews())

	w = env.do("POST", "/api/v1/sessions/vc01/lookup", env.reader, dto.LookupRequest{Kind: "Datastore", Property: "name", Value: "ds2"})
	require.Equal(t, http.StatusOK, w.Code)
	var lookup dto.LookupResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lookup))
	assert.True(t, lookup.Found)
	assert.Equal(t, "datastore-2", lookup.Object.ID)

	w = env.do("POST", "/api/v1/sessions/vc01/lookup", env.reader, dto.LookupRequest{Kind: "VirtualMachine", Property: "numCpu", Value: 4})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lookup))
	assert.True(t, lookup.Found)
	assert.Equal(t, "vm-1", lookup.Object.ID)

	w = env.do("POST", "/api/v1/sessions/vc01/lookup", env.reader, dto.LookupRequest{Kind: "Datastore", Property: "name", Value: "nope"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lookup))
	assert.False(t, lookup.Found)

	env.endpoint.ExpireSessions()
	w = env.do("POST", "/api/v1/sessions/vc01/collect", env.reader, dto.CollectRequest{Kind: "Datastore", Paths: []string{"name"}})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do("POST", "/api/v1/sessions/vc01/reconnect", env.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, "connected", sess.State)

	w = env.do("DELETE", "/api/v1/sessions/vc01", env.admin, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do("GET", "/api/v1/sessions/vc01", env.reader, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionConnectErrors(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	w := env.do("POST", "/api/v1/sessions/vc09", env.admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, env.store.Add(ctx, store.ConnectionRecord{Host: "vc01", Username: "root", Password: "wrong", Enabled: true}))
	w = env.do("POST", "/api/v1/sessions/vc01", env.admin, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	require.NoError(t, env.store.Add(ctx, store.ConnectionRecord{Host: "vc02", Username: "root", Password: "p4ssw0rd", Enabled: true}))
	env.endpoint.Unreachable = true
	w = env.do("POST", "/api/v1/sessions/vc02", env.admin, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = env.do("POST", "/api/v1/sessions/vc02/collect", env.reader, dto.CollectRequest{Kind: "Datastore", Paths: []string{"name"}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCollectRemoteError(t *testing.T) {
	env := setup(t)
	require.NoError(t, env.store.Add(context.Background(), store.ConnectionRecord{Host: "vc01", Username: "root", Password: "p4ssw0rd", Enabled: true}))
	require.Equal(t, http.StatusCreated, env.do("POST", "/api/v1/sessions/vc01", env.admin, nil).Code)

	w := env.do("POST", "/api/v1/sessions/vc01/collect", env.reader, dto.CollectRequest{Kind: "Bogus", Paths: []string{"name"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "InvalidType")
}
