package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/annel0/mmo-replay/internal/access"
	"github.com/annel0/mmo-replay/internal/auth"
)

const claimsKey = "claims"

// jwtMiddleware проверяет JWT токен в заголовке Authorization
func (rs *RestServer) jwtMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			fail(c, http.StatusUnauthorized, "Отсутствует токен авторизации")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			fail(c, http.StatusUnauthorized, "Неверный формат токена")
			return
		}

		claims, err := rs.cfg.Issuer.Validate(parts[1])
		if err != nil {
			rs.log.Debug("Отклонён токен: %v", err)
			fail(c, http.StatusUnauthorized, "Недействительный токен")
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// requirePerm пропускает администраторов и владельцев права p
func (rs *RestServer) requirePerm(p access.Perm) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !hasPerm(claimsOf(c), p) {
			fail(c, http.StatusForbidden, "Недостаточно прав: "+p.String())
			return
		}
		c.Next()
	}
}

func claimsOf(c *gin.Context) *auth.Claims {
	v, exists := c.Get(claimsKey)
	if !exists {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

func hasPerm(claims *auth.Claims, p access.Perm) bool {
	if claims == nil {
		return false
	}
	if claims.IsAdmin {
		return true
	}
	name := p.String()
	for _, granted := range claims.Perms {
		if strings.EqualFold(granted, name) {
			return true
		}
	}
	return false
}
