package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/EternisAI/vconnector/internal/api/http/dto"
	"github.com/EternisAI/vconnector/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSessions expects the vc01 credential created by TestCredentials.
func TestSessions(t *testing.T, router *gin.Engine, jwtSecret string) {
	admin := issueToken(t, jwtSecret, auth.RoleAdmin)
	reader := issueToken(t, jwtSecret, auth.RoleReader)

	rr := doJSONWithAuth(router, "POST", "/api/v1/sessions/vc01", nil, admin)
	require.Equal(t, http.StatusCreated, rr.Code)

	t.Run("collect", func(t *testing.T) {
		body := dto.CollectRequest{Kind: "VirtualMachine", Paths: []string{"name", "summary.numCpu"}}
		rr := doJSONWithAuth(router, "POST", "/api/v1/sessions/vc01/collect", body, reader)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.CollectResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Equal(t, 2, resp.Count)
		assert.Equal(t, "web01", resp.Records[0].Properties["name"])
		assert.Empty(t, resp.Records[0].Absent)
		assert.Equal(t, []string{"summary.numCpu"}, resp.Records[1].Absent)
	})

	t.Run("lookup", func(t *testing.T) {
		body := dto.LookupRequest{Kind: "VirtualMachine", Property: "name", Value: "db01"}
		rr := doJSONWithAuth(router, "POST", "/api/v1/sessions/vc01/lookup", body, reader)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.LookupResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.True(t, resp.Found)
		assert.Equal(t, "vm-2", resp.Object.ID)
	})

	t.Run("disconnect", func(t *testing.T) {
		rr := doJSONWithAuth(router, "DELETE", "/api/v1/sessions/vc01", nil, admin)
		assert.Equal(t, http.StatusNoContent, rr.Code)

		rr = doJSONWithAuth(router, "DELETE", "/api/v1/sessions/vc01", nil, admin)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
