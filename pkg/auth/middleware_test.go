package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penguintechinc/waddlebot-core/pkg/models"
)

func newTestRouter(verifier *Verifier, required models.Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", Middleware(verifier), RequireRole(required), func(c *gin.Context) {
		credential, _ := FromContext(c)
		c.JSON(http.StatusOK, gin.H{"user_id": credential.UserID()})
	})
	return r
}

func TestMiddleware_RejectsMissingCredential(t *testing.T) {
	v := NewVerifier([]byte("secret"), "HS256", nil)
	r := newTestRouter(v, models.RoleMember)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_AcceptsBearerToken(t *testing.T) {
	secret := []byte("secret")
	v := NewVerifier(secret, "HS256", nil)
	r := newTestRouter(v, models.RoleMember)

	token, err := IssueJWT(secret, "HS256", "u1", "alice", "", []string{"member"}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "u1")
}

func TestMiddleware_RejectsInsufficientRole(t *testing.T) {
	secret := []byte("secret")
	v := NewVerifier(secret, "HS256", nil)
	r := newTestRouter(v, models.RoleAdmin)

	token, err := IssueJWT(secret, "HS256", "u1", "alice", "", []string{"member"}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMiddleware_AcceptsAPIKey(t *testing.T) {
	store := fakeAPIKeyStore{records: map[string]*APIKeyRecord{
		"key-123": {Key: "key-123", UserID: "u2", Roles: []string{"admin"}},
	}}
	v := NewVerifier(nil, "HS256", store)
	r := newTestRouter(v, models.RoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("X-API-Key", "key-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
