package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/aicc-chat/internal/models"
	"github.com/thereayou/aicc-chat/pkg/auth"
)

const UserKey = "user"

// AuthMiddleware проверяет JWT токен и кладет профиль в контекст
func AuthMiddleware(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractTokenFromHeader(c.Request)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			c.Abort()
			return
		}

		claims, err := jwtManager.Verify(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set(UserKey, claims.UserInfo())
		c.Next()
	}
}

// RequireRole пускает дальше только пользователей указанной роли
func RequireRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || user.Role != role {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// WSAuthMiddleware — вариант для WebSocket: браузерный клиент не может
// выставить заголовок при upgrade, поэтому токен принимается и из query
func WSAuthMiddleware(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
					token = parts[1]
				}
			}
		}

		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		claims, err := jwtManager.Verify(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set(UserKey, claims.UserInfo())
		c.Next()
	}
}

// CurrentUser достает профиль, положенный auth-middleware
func CurrentUser(c *gin.Context) *models.UserInfo {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil
	}
	user, ok := v.(*models.UserInfo)
	if !ok {
		return nil
	}
	return user
}
