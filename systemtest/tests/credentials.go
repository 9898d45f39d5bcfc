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

func TestCredentials(t *testing.T, router *gin.Engine, jwtSecret string) {
	admin := issueToken(t, jwtSecret, auth.RoleAdmin)
	reader := issueToken(t, jwtSecret, auth.RoleReader)

	t.Run("create", func(t *testing.T) {
		body := dto.CreateCredentialRequest{Host: "vc01", Username: "root", Password: "p4ssw0rd"}
		rr := doJSONWithAuth(router, "POST", "/api/v1/credentials", body, admin)
		require.Equal(t, http.StatusCreated, rr.Code)
		assert.NotContains(t, rr.Body.String(), "p4ssw0rd")
	})

	t.Run("duplicate host", func(t *testing.T) {
		body := dto.CreateCredentialRequest{Host: "vc01", Username: "other"}
		rr := doJSONWithAuth(router, "POST", "/api/v1/credentials", body, admin)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("reader cannot create", func(t *testing.T) {
		body := dto.CreateCredentialRequest{Host: "vc02", Username: "root"}
		rr := doJSONWithAuth(router, "POST", "/api/v1/credentials", body, reader)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("list", func(t *testing.T) {
		rr := doJSONWithAuth(router, "GET", "/api/v1/credentials", nil, reader)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.ListCredentialsResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, "vc01", resp.Credentials[0].Host)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		rr := doJSON(router, "GET", "/api/v1/credentials", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
