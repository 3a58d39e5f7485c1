package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"lectureattend/internal/apperrors"
	"lectureattend/internal/authz"
	"lectureattend/internal/model"
)

const principalKey = "principal"

// DeviceKeyHeader carries a scanner credential. Scanner requests never
// present a user token.
const DeviceKeyHeader = "X-Device-Key"

// UserAuth enforces bearer JWT tokens signed with HS256 and stores the
// requesting principal on the context.
func UserAuth(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			abort(c, "missing bearer token")
			return
		}
		tokenStr := strings.TrimSpace(header[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			abort(c, "invalid token")
			return
		}
		c.Set(principalKey, authz.Principal{ID: claims.RegisteredClaims.Subject, Role: model.Role(claims.Role)})
		c.Next()
	}
}

// PrincipalFrom returns the principal set by UserAuth.
func PrincipalFrom(c *gin.Context) (authz.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return authz.Principal{}, false
	}
	p, ok := v.(authz.Principal)
	return p, ok
}

func abort(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": apperrors.Clone(apperrors.ErrUnauthorized, msg),
	})
}
