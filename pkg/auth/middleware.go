package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/penguintechinc/waddlebot-core/pkg/models"
)

// credentialContextKey is the gin context key the resolved Credential is
// stored under.
const credentialContextKey = "auth.credential"

// Middleware implements the "Authorization: Bearer <jwt>" / "X-API-Key:
// <key>" convention (spec.md §6) as the authenticate step of the fixed
// parse → authenticate → authorize → validate → handle → serialize → log
// pipeline (spec.md §9's "decorator-stacked endpoints" redesign note).
func Middleware(verifier *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential, err := resolveCredential(c, verifier)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   gin.H{"message": err.Error(), "code": "unauthorized"},
			})
			return
		}
		c.Set(credentialContextKey, credential)
		c.Next()
	}
}

func resolveCredential(c *gin.Context, verifier *Verifier) (Credential, error) {
	if header := c.GetHeader("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return Credential{}, ErrInvalidCredential
		}
		return verifier.VerifyBearer(c.Request.Context(), token)
	}
	if key := c.GetHeader("X-API-Key"); key != "" {
		return verifier.VerifyAPIKey(c.Request.Context(), key)
	}
	return Credential{}, ErrMissingCredential
}

// FromContext retrieves the Credential set by Middleware. The second
// return is false if Middleware did not run (programmer error — every
// route handled by pkg/api registers it) or authentication was skipped.
func FromContext(c *gin.Context) (Credential, bool) {
	v, ok := c.Get(credentialContextKey)
	if !ok {
		return Credential{}, false
	}
	credential, ok := v.(Credential)
	return credential, ok
}

// RequireRole is the authorize step: it aborts with 403 unless the
// request's credential satisfies required.
func RequireRole(required models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential, ok := FromContext(c)
		if !ok || !Authorize(credential, required) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   gin.H{"message": "insufficient role", "code": "policy_denied"},
			})
			return
		}
		c.Next()
	}
}
