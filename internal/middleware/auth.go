// internal/middleware/auth.go
package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/imi-ownership/internal/i18n"
	"github.com/javajoker/imi-ownership/internal/utils"
)

// AuthRequired verifies the bearer token issued by the auth service and records the
// requester on both the gin context and the request meta used for audit entries.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := utils.GetLangFromContext(c)

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			key := i18n.KeyAuthRequired
			if c.GetHeader("Authorization") != "" {
				key = i18n.KeyAuthInvalidToken
			}
			utils.UnauthorizedResponse(c, i18n.T(lang, key))
			c.Abort()
			return
		}

		claims, err := utils.ValidateJWT(token)
		if err != nil {
			key := i18n.KeyAuthInvalidToken
			if errors.Is(err, jwt.ErrTokenExpired) {
				key = i18n.KeyAuthTokenExpired
			}
			logrus.WithError(err).WithField("path", c.FullPath()).Debug("Rejected bearer token")
			utils.UnauthorizedResponse(c, i18n.T(lang, key))
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_type", claims.UserType)

		meta := utils.RequestMetaFrom(c.Request.Context())
		meta.ActorType = claims.UserType
		c.Request = c.Request.WithContext(utils.WithRequestMeta(c.Request.Context(), meta))
		c.Next()
	}
}

// AdminRequired must run after AuthRequired. Dispute resolution and ledger repair are
// admin-only.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !utils.IsAdmin(c) {
			userID, _ := c.Get("user_id")
			logrus.WithFields(logrus.Fields{
				"user_id": userID,
				"path":    c.FullPath(),
			}).Warn("Non-admin requested an admin route")
			utils.ForbiddenResponse(c, "")
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
